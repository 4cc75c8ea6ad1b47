package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Mark23Dev/project-nexus/services/order-service/models"
	"github.com/Mark23Dev/project-nexus/services/order-service/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Relay moves events from the order_events outbox to the dispatcher. It
// polls on an interval and can be woken early with Notify after a commit.
type Relay struct {
	outbox     repository.OutboxRepository
	dispatcher *Dispatcher
	logger     *zap.Logger
	interval   time.Duration
	batchSize  int
	wake       chan struct{}
}

func NewRelay(outbox repository.OutboxRepository, dispatcher *Dispatcher, interval time.Duration, logger *zap.Logger) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	return &Relay{
		outbox:     outbox,
		dispatcher: dispatcher,
		logger:     logger,
		interval:   interval,
		batchSize:  100,
		wake:       make(chan struct{}, 1),
	}
}

// Notify asks the relay to run a pass soon. It never blocks.
func (r *Relay) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run drains the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Outbox relay started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Outbox relay stopped")
			return
		case <-ticker.C:
		case <-r.wake:
		}
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("Outbox relay pass failed", zap.Error(err))
		}
	}
}

// RunOnce delivers one batch and returns how many events were sent.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	return r.outbox.ProcessPending(ctx, r.batchSize, r.deliver)
}

func (r *Relay) deliver(ctx context.Context, rows []models.OutboxEvent) []uuid.UUID {
	delivered := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		var evt models.OrderEvent
		if err := json.Unmarshal(row.Payload, &evt); err != nil {
			// An undecodable payload will never succeed; drop it from the queue.
			r.logger.Error("Discarding malformed outbox event", zap.String("event_id", row.ID.String()), zap.Error(err))
			delivered = append(delivered, row.ID)
			continue
		}
		if err := r.dispatcher.Dispatch(ctx, evt); err != nil {
			if row.Attempts+1 >= repository.MaxDeliveryAttempts {
				r.logger.Error("Outbox event exhausted delivery attempts",
					zap.String("event_id", row.ID.String()),
					zap.String("event_type", row.EventType),
					zap.Error(err),
				)
			}
			continue
		}
		delivered = append(delivered, row.ID)
	}
	return delivered
}
