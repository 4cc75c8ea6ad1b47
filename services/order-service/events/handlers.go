package events

import (
	"context"
	"encoding/json"
	"sync"

	awspkg "github.com/Mark23Dev/project-nexus/pkg/aws"
	"github.com/Mark23Dev/project-nexus/services/order-service/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SNSHandler publishes events to an SNS topic with an event_type attribute.
type SNSHandler struct {
	publisher awspkg.SNSPublisher
	topicArn  string
}

func NewSNSHandler(publisher awspkg.SNSPublisher, topicArn string) *SNSHandler {
	return &SNSHandler{publisher: publisher, topicArn: topicArn}
}

func (h *SNSHandler) Name() string { return "sns" }

func (h *SNSHandler) Handle(ctx context.Context, evt models.OrderEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return h.publisher.Publish(ctx, h.topicArn, body, map[string]string{"event_type": evt.Type})
}

// OrderEventWriter is the Kafka side of the event stream.
type OrderEventWriter interface {
	PublishOrderEvent(ctx context.Context, evt models.OrderEvent) error
}

type KafkaHandler struct {
	writer OrderEventWriter
}

func NewKafkaHandler(writer OrderEventWriter) *KafkaHandler {
	return &KafkaHandler{writer: writer}
}

func (h *KafkaHandler) Name() string { return "kafka" }

func (h *KafkaHandler) Handle(ctx context.Context, evt models.OrderEvent) error {
	return h.writer.PublishOrderEvent(ctx, evt)
}

// MetricsRecorder is satisfied by *awspkg.MetricsClient.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	RecordValue(ctx context.Context, metricName string, value float64, dimensions map[string]string) error
}

// recentEventWindow bounds how many recorded event ids MetricsHandler keeps.
const recentEventWindow = 4096

// MetricsHandler turns order events into CloudWatch business metrics. An
// event redelivered by the relay (because another handler failed) is counted
// once.
type MetricsHandler struct {
	recorder MetricsRecorder
	service  string

	mu       sync.Mutex
	recorded map[string]struct{}
	order    []string
}

func NewMetricsHandler(recorder MetricsRecorder, service string) *MetricsHandler {
	return &MetricsHandler{recorder: recorder, service: service, recorded: make(map[string]struct{})}
}

func (h *MetricsHandler) Name() string { return "metrics" }

func (h *MetricsHandler) Handle(ctx context.Context, evt models.OrderEvent) error {
	if h.seen(evt.ID) {
		return nil
	}
	if err := h.record(ctx, evt); err != nil {
		return err
	}
	h.remember(evt.ID)
	return nil
}

func (h *MetricsHandler) seen(id string) bool {
	if id == "" {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.recorded[id]
	return ok
}

func (h *MetricsHandler) remember(id string) {
	if id == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.recorded[id]; ok {
		return
	}
	if len(h.order) >= recentEventWindow {
		delete(h.recorded, h.order[0])
		h.order = h.order[1:]
	}
	h.recorded[id] = struct{}{}
	h.order = append(h.order, id)
}

func (h *MetricsHandler) record(ctx context.Context, evt models.OrderEvent) error {
	dims := map[string]string{"Service": h.service}

	switch evt.Type {
	case models.EventOrderCreated:
		if err := h.recorder.RecordCount(ctx, awspkg.MetricOrdersCreated, dims); err != nil {
			return err
		}
		if total, err := decimal.NewFromString(evt.TotalPrice); err == nil {
			return h.recorder.RecordValue(ctx, awspkg.MetricOrderValue, total.InexactFloat64(), dims)
		}
		return nil
	case models.EventOrderItemsReplaced:
		return h.recorder.RecordCount(ctx, awspkg.MetricOrderItemsReplaced, dims)
	case models.EventOrderDeleted:
		return h.recorder.RecordCount(ctx, awspkg.MetricOrdersDeleted, dims)
	case models.EventOrderStatusChanged:
		statusDims := map[string]string{"Service": h.service, "Status": string(evt.Status)}
		if err := h.recorder.RecordCount(ctx, awspkg.MetricOrderStatusChanged, statusDims); err != nil {
			return err
		}
		if metric, ok := statusMetrics[evt.Status]; ok {
			return h.recorder.RecordCount(ctx, metric, dims)
		}
	}
	return nil
}

var statusMetrics = map[models.OrderStatus]string{
	models.StatusDelivered: awspkg.MetricOrdersCompleted,
	models.StatusCancelled: awspkg.MetricOrdersCancelled,
	models.StatusRefunded:  awspkg.MetricOrdersRefunded,
}

// LogHandler writes an audit line for every event.
type LogHandler struct {
	logger *zap.Logger
}

func NewLogHandler(logger *zap.Logger) *LogHandler {
	return &LogHandler{logger: logger}
}

func (h *LogHandler) Name() string { return "log" }

func (h *LogHandler) Handle(_ context.Context, evt models.OrderEvent) error {
	h.logger.Info("order_event",
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type),
		zap.String("order_id", evt.OrderID),
		zap.String("actor_id", evt.ActorID),
		zap.String("status", string(evt.Status)),
		zap.String("total_price", evt.TotalPrice),
		zap.Int64("version", evt.Version),
	)
	return nil
}
