// Package events delivers committed order events to named handlers.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Mark23Dev/project-nexus/services/order-service/models"
	"go.uber.org/zap"
)

// Handler reacts to one order event. Handlers must be idempotent: delivery
// is at-least-once.
type Handler interface {
	Name() string
	Handle(ctx context.Context, evt models.OrderEvent) error
}

type subscription struct {
	handler Handler
	types   map[string]bool
}

func (s subscription) wants(eventType string) bool {
	return len(s.types) == 0 || s.types[eventType]
}

// Dispatcher fans an event out to every subscribed handler.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *zap.Logger
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

// Subscribe registers h for the given event types, or for all when none are
// given.
func (d *Dispatcher) Subscribe(h Handler, eventTypes ...string) {
	s := subscription{handler: h}
	if len(eventTypes) > 0 {
		s.types = make(map[string]bool, len(eventTypes))
		for _, t := range eventTypes {
			s.types[t] = true
		}
	}
	d.mu.Lock()
	d.subs = append(d.subs, s)
	d.mu.Unlock()
}

// Handlers returns the names of the registered handlers.
func (d *Dispatcher) Handlers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.subs))
	for i, s := range d.subs {
		names[i] = s.handler.Name()
	}
	return names
}

// Dispatch runs every interested handler. All handlers run even when one
// fails; the failures are joined into the returned error.
func (d *Dispatcher) Dispatch(ctx context.Context, evt models.OrderEvent) error {
	d.mu.RLock()
	subs := make([]subscription, len(d.subs))
	copy(subs, d.subs)
	d.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if !s.wants(evt.Type) {
			continue
		}
		if err := s.handler.Handle(ctx, evt); err != nil {
			d.logger.Warn("Event handler failed",
				zap.String("handler", s.handler.Name()),
				zap.String("event_type", evt.Type),
				zap.String("event_id", evt.ID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.handler.Name(), err))
		}
	}
	return errors.Join(errs...)
}
