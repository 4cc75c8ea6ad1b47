package services

import (
	"context"
	"encoding/json"
	"errors"

	awspkg "github.com/Mark23Dev/project-nexus/pkg/aws"
	"github.com/Mark23Dev/project-nexus/services/order-service/models"
	"go.uber.org/zap"
)

// ProductEventPoller is the queue side of the consumer.
type ProductEventPoller interface {
	StartPolling(ctx context.Context, handler awspkg.MessageHandler) error
}

// CatalogInvalidator drops cached catalog data.
type CatalogInvalidator interface {
	InvalidateCatalog(ctx context.Context) error
}

// ProductEventConsumer invalidates the catalog cache when the product
// service announces a change.
type ProductEventConsumer struct {
	poller  ProductEventPoller
	catalog CatalogInvalidator
	metrics *awspkg.MetricsClient
	logger  *zap.Logger
}

func NewProductEventConsumer(poller ProductEventPoller, catalog CatalogInvalidator, metrics *awspkg.MetricsClient, logger *zap.Logger) *ProductEventConsumer {
	return &ProductEventConsumer{poller: poller, catalog: catalog, metrics: metrics, logger: logger}
}

// Start polls until ctx is cancelled.
func (c *ProductEventConsumer) Start(ctx context.Context) {
	c.logger.Info("Starting product event consumer")
	err := c.poller.StartPolling(ctx, c.HandleMessage)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("Product event polling stopped", zap.Error(err))
	}
}

// HandleMessage processes one queue message. Messages that can never be
// processed are acknowledged so they do not loop.
func (c *ProductEventConsumer) HandleMessage(ctx context.Context, body string) error {
	var envelope struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err == nil && envelope.Message != "" {
		body = envelope.Message
	}

	var evt models.ProductEvent
	if err := json.Unmarshal([]byte(body), &evt); err != nil {
		c.logger.Warn("Dropping malformed product event", zap.Error(err))
		return nil
	}

	switch evt.Type {
	case models.EventProductCreated, models.EventProductUpdated, models.EventProductDeleted:
	default:
		c.logger.Debug("Ignoring product event", zap.String("type", evt.Type))
		return nil
	}

	if err := c.catalog.InvalidateCatalog(ctx); err != nil {
		return err
	}
	c.logger.Info("Catalog cache invalidated",
		zap.String("type", evt.Type),
		zap.String("product_id", evt.ProductID),
	)
	if c.metrics.IsEnabled() {
		_ = c.metrics.RecordCount(ctx, awspkg.MetricCatalogInvalidations, map[string]string{"EventType": evt.Type})
	}
	return nil
}
