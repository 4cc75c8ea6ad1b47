package repository

import (
	"context"
	"time"

	"github.com/Mark23Dev/project-nexus/services/order-service/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxDeliveryAttempts is how often an event is retried before the relay stops
// selecting it. Exhausted rows stay unsent in order_events for inspection.
const MaxDeliveryAttempts = 10

// DeliverFunc publishes a batch of outbox events and returns the ids that
// were delivered.
type DeliverFunc func(ctx context.Context, events []models.OutboxEvent) []uuid.UUID

// OutboxRepository hands unsent order events to a relay.
type OutboxRepository interface {
	ProcessPending(ctx context.Context, limit int, deliver DeliverFunc) (int, error)
}

type GormOutboxRepository struct {
	db *gorm.DB
}

func NewGormOutboxRepository(db *gorm.DB) OutboxRepository {
	return &GormOutboxRepository{db: db}
}

// ProcessPending locks up to limit unsent events (skipping rows another relay
// holds), delivers them and marks the delivered ones sent. Undelivered events
// get their attempt counter bumped; fewer attempts are served first so a run
// of failing events cannot hold back newer ones.
func (r *GormOutboxRepository) ProcessPending(ctx context.Context, limit int, deliver DeliverFunc) (int, error) {
	sent := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var events []models.OutboxEvent
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("sent_at IS NULL").
			Where("attempts < ?", MaxDeliveryAttempts).
			Order("attempts, created_at").
			Limit(limit).
			Find(&events).Error; err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		delivered := deliver(ctx, events)
		done := make(map[uuid.UUID]bool, len(delivered))
		for _, id := range delivered {
			done[id] = true
		}
		var failed []uuid.UUID
		for _, e := range events {
			if !done[e.ID] {
				failed = append(failed, e.ID)
			}
		}

		if len(delivered) > 0 {
			if err := tx.Model(&models.OutboxEvent{}).
				Where("id IN ?", delivered).
				Update("sent_at", time.Now().UTC()).Error; err != nil {
				return err
			}
		}
		if len(failed) > 0 {
			if err := tx.Model(&models.OutboxEvent{}).
				Where("id IN ?", failed).
				Update("attempts", gorm.Expr("attempts + 1")).Error; err != nil {
				return err
			}
		}
		sent = len(delivered)
		return nil
	})
	return sent, err
}
