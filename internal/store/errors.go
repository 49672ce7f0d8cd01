package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrConflict           = errors.New("conflict")
	ErrViewUnavailable    = errors.New("sales history view unavailable")
	// ErrConcurrentUpdate marks a unit of work aborted because another one
	// touched the same rows. Nothing was written; the sale can be resubmitted.
	ErrConcurrentUpdate = errors.New("sale conflicted with a concurrent update, please retry")
)

const (
	StepSaleCreation       = "sale creation"
	StepProductLookup      = "product lookup"
	StepBatchFetch         = "batch fetch"
	StepBatchUpdate        = "batch update"
	StepSaleItemInsert     = "sale-item insert"
	StepProductStockUpdate = "product stock update"
)

type ValidationError struct {
	Field  string
	Reason string
}

func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidTransaction
}

type InsufficientStockError struct {
	ProductID string
	Product   string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.Product, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// StorageError tags a persistence failure with the checkout step it broke.
type StorageError struct {
	Step string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Wrap returns err tagged with step, leaving nil, validation and stock errors untouched.
func Wrap(step string, err error) error {
	if err == nil {
		return nil
	}
	var storageErr *StorageError
	var validationErr *ValidationError
	var stockErr *InsufficientStockError
	if errors.As(err, &storageErr) || errors.As(err, &validationErr) || errors.As(err, &stockErr) {
		return err
	}
	return &StorageError{Step: step, Err: err}
}
