package queue

import (
	"errors"
	"fmt"
)

var (
	ErrQueueFull      = errors.New("build queue full")
	ErrKindCapReached = errors.New("order kind cap reached")
	ErrStaleHandle    = errors.New("stale order handle")
	ErrSpotLocked     = errors.New("resource spot already locked")
	ErrUnknownSpot    = errors.New("unknown resource spot")
	ErrNoBuilder      = errors.New("order has no builder")
	ErrBadTransition  = errors.New("invalid order status transition")
)

// BindingError describes a builder/spot/order binding that was refused.
type BindingError struct {
	Order   Handle
	Builder int
	Spot    int
	Err     error
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("bind order %s (builder %d, spot %d): %v", e.Order, e.Builder, e.Spot, e.Err)
}

func (e *BindingError) Unwrap() error { return e.Err }
