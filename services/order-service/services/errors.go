package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Mark23Dev/project-nexus/services/order-service/models"
	"github.com/Mark23Dev/project-nexus/services/order-service/repository"
	"github.com/Mark23Dev/project-nexus/services/order-service/workflow"
)

// ErrorKind classifies a failed operation for callers.
type ErrorKind string

const (
	KindInvalidReference   ErrorKind = "invalid_reference"
	KindProductUnavailable ErrorKind = "product_unavailable"
	KindInvalidState       ErrorKind = "invalid_state"
	KindInvalidTransition  ErrorKind = "invalid_transition"
	KindForbidden          ErrorKind = "forbidden"
	KindConflict           ErrorKind = "conflict"
	KindTransient          ErrorKind = "transient"
	KindValidation         ErrorKind = "validation"
	KindNotFound           ErrorKind = "not_found"
	KindUnauthenticated    ErrorKind = "unauthenticated"
	KindInternal           ErrorKind = "internal"
)

var kindStatus = map[ErrorKind]int{
	KindInvalidReference:   http.StatusBadRequest,
	KindProductUnavailable: http.StatusBadRequest,
	KindValidation:         http.StatusBadRequest,
	KindUnauthenticated:    http.StatusUnauthorized,
	KindForbidden:          http.StatusForbidden,
	KindNotFound:           http.StatusNotFound,
	KindInvalidState:       http.StatusConflict,
	KindInvalidTransition:  http.StatusConflict,
	KindConflict:           http.StatusConflict,
	KindTransient:          http.StatusServiceUnavailable,
	KindInternal:           http.StatusInternalServerError,
}

// ServiceError is the only error type returned by the services in this
// package.
type ServiceError struct {
	StatusCode int
	Kind       ErrorKind
	Message    string
	Details    map[string]any
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is matches another *ServiceError of the same kind. A product_unavailable
// error also matches invalid_reference.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return e.Kind == KindProductUnavailable && t.Kind == KindInvalidReference
}

// Retryable reports whether the caller may retry the same request.
func (e *ServiceError) Retryable() bool {
	return e.Kind == KindConflict || e.Kind == KindTransient
}

// Sentinels for errors.Is checks against a kind.
var (
	ErrInvalidReference   = &ServiceError{Kind: KindInvalidReference}
	ErrProductUnavailable = &ServiceError{Kind: KindProductUnavailable}
	ErrInvalidState       = &ServiceError{Kind: KindInvalidState}
	ErrInvalidTransition  = &ServiceError{Kind: KindInvalidTransition}
	ErrForbidden          = &ServiceError{Kind: KindForbidden}
	ErrConflict           = &ServiceError{Kind: KindConflict}
	ErrTransient          = &ServiceError{Kind: KindTransient}
	ErrValidation         = &ServiceError{Kind: KindValidation}
	ErrNotFound           = &ServiceError{Kind: KindNotFound}
	ErrInternal           = &ServiceError{Kind: KindInternal}
)

func newError(kind ErrorKind, message string, err error) *ServiceError {
	return &ServiceError{StatusCode: kindStatus[kind], Kind: kind, Message: message, Err: err}
}

func (e *ServiceError) with(key string, value any) *ServiceError {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func validationError(message string) *ServiceError {
	return newError(KindValidation, message, nil)
}

func forbidden() *ServiceError {
	return newError(KindForbidden, "You are not allowed to modify this order", nil)
}

func orderNotFound() *ServiceError {
	return newError(KindNotFound, "Order not found", nil)
}

func invalidState(op string, status models.OrderStatus) *ServiceError {
	return newError(KindInvalidState, fmt.Sprintf("Order cannot be %s in status %s", op, status), nil).
		with("status", string(status))
}

// fromStoreError converts repository and precondition failures into a
// ServiceError. Unknown errors become internal without exposing the cause in
// the message.
func fromStoreError(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	var transErr *workflow.TransitionError
	if errors.As(err, &transErr) {
		return transitionError(transErr)
	}

	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		return newError(KindNotFound, "Order not found", err)
	case errors.Is(err, repository.ErrProductNotFound):
		return newError(KindNotFound, "Product not found", err)
	case errors.Is(err, repository.ErrInvalidReference):
		e := newError(KindInvalidReference, "Order references an unknown product", err)
		var missing *repository.MissingProductsError
		if errors.As(err, &missing) {
			ids := make([]string, len(missing.ProductIDs))
			for i, id := range missing.ProductIDs {
				ids[i] = id.String()
			}
			e.with("product_ids", ids)
		}
		return e
	case errors.Is(err, repository.ErrValueOutOfRange):
		return newError(KindValidation, "Order quantities or total are out of range", err)
	case errors.Is(err, repository.ErrProductReferenced):
		return newError(KindConflict, "Product is referenced by existing orders", err)
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrDuplicateIdempotencyKey):
		return newError(KindConflict, "Order was modified concurrently, retry the request", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return newError(KindTransient, "Request timed out, retry the request", err)
	}
	return newError(KindInternal, "Internal error", err)
}

func transitionError(e *workflow.TransitionError) *ServiceError {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return newError(KindInvalidTransition, e.Error(), e).
		with("from", string(e.From)).
		with("to", string(e.To)).
		with("allowed", allowed)
}
