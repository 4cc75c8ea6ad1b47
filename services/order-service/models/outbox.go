package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// OutboxEvent is a domain event recorded in the same transaction as the
// mutation that produced it. SentAt stays nil until a relay has published it.
type OutboxEvent struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey"`
	AggregateID uuid.UUID      `gorm:"type:uuid;not null;index"`
	EventType   string         `gorm:"type:varchar(64);not null"`
	Payload     datatypes.JSON `gorm:"type:jsonb;not null"`
	Attempts    int            `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"not null;index"`
	SentAt      *time.Time     `gorm:"index"`
}

func (OutboxEvent) TableName() string { return "order_events" }
