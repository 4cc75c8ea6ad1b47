package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrProductNotFound         = errors.New("product not found")
	ErrInvalidReference        = errors.New("order item references an unknown product")
	ErrConflict                = errors.New("order was modified concurrently")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
	ErrProductReferenced       = errors.New("product is referenced by existing orders")
	ErrValueOutOfRange         = errors.New("order value out of range")
)

// MissingProductsError lists the product ids an item set referenced that do
// not exist. It matches ErrInvalidReference with errors.Is.
type MissingProductsError struct {
	ProductIDs []uuid.UUID
}

func (e *MissingProductsError) Error() string {
	ids := make([]string, len(e.ProductIDs))
	for i, id := range e.ProductIDs {
		ids[i] = id.String()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidReference, strings.Join(ids, ", "))
}

func (e *MissingProductsError) Is(target error) bool {
	return target == ErrInvalidReference
}

// PostgreSQL SQLSTATE codes the store reacts to.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgNumericOutOfRange    = "22003"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// translateOrderError maps driver errors to the package sentinels. Errors it
// does not recognise are returned unchanged.
func translateOrderError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrOrderNotFound
	}
	switch pgCode(err) {
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case pgUniqueViolation:
		return fmt.Errorf("%w: %v", ErrDuplicateIdempotencyKey, err)
	case pgForeignKeyViolation:
		return fmt.Errorf("%w: %v", ErrInvalidReference, err)
	case pgCheckViolation, pgNumericOutOfRange:
		return fmt.Errorf("%w: %v", ErrValueOutOfRange, err)
	}
	return err
}
