package orders

import (
	"errors"
	"fmt"
)

var ErrEmptyOrder = errors.New("order must contain at least one item")

// NotFoundError: a referenced product id does not exist. Client error, not
// retried.
type NotFoundError struct {
	ProductID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.ProductID)
}

// InsufficientStockError carries everything the API layer needs to render a
// structured conflict response.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q: available %d, requested %d",
		e.ProductName, e.Available, e.Requested)
}

// InvalidStateError: an illegal state transition was attempted. Programmer
// error, never expected in normal operation.
type InvalidStateError struct {
	Op     string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state in %s: %s", e.Op, e.Reason)
}

// StoreError: the backing store failed mid-placement. Any partial reservation
// has already been released by the time this surfaces; callers may retry the
// whole placement.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
