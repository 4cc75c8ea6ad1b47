// Package workflow holds the order status state machine.
package workflow

import (
	"fmt"

	"github.com/Mark23Dev/project-nexus/services/order-service/models"
)

var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusPending:    {models.StatusProcessing, models.StatusCancelled},
	models.StatusProcessing: {models.StatusShipped, models.StatusCancelled},
	models.StatusShipped:    {models.StatusDelivered},
	models.StatusDelivered:  {models.StatusRefunded},
	models.StatusCancelled:  nil,
	models.StatusRefunded:   nil,
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	From    models.OrderStatus
	To      models.OrderStatus
	Allowed []models.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// Next returns the statuses reachable from s in one step.
func Next(s models.OrderStatus) []models.OrderStatus {
	next := transitions[s]
	out := make([]models.OrderStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from -> to is a legal single step.
func CanTransition(from, to models.OrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Validate returns a *TransitionError when from -> to is illegal.
func Validate(from, to models.OrderStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return &TransitionError{From: from, To: to, Allowed: Next(from)}
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s models.OrderStatus) bool {
	return len(transitions[s]) == 0
}

// AllowsItemMutation reports whether items may be replaced or the order deleted.
func AllowsItemMutation(s models.OrderStatus) bool {
	return s == models.StatusPending
}

// AllowsAddressChange reports whether shipping and billing addresses may change.
func AllowsAddressChange(s models.OrderStatus) bool {
	return s == models.StatusPending || s == models.StatusProcessing
}
