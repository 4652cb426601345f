package checkout

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind classifies checkout failures for the transport layer.
type Kind string

const (
	KindClientInput           Kind = "client_input"
	KindEmptyCart             Kind = "empty_cart"
	KindCouponInvalid         Kind = "coupon_invalid"
	KindCouponInapplicable    Kind = "coupon_inapplicable"
	KindInsufficientInventory Kind = "insufficient_inventory"
	KindNotFound              Kind = "not_found"
	KindConflict              Kind = "conflict"
	KindPersistence           Kind = "persistence"
	KindNotification          Kind = "notification"
)

// Error is a classified failure. Message is safe to show to the caller.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable is true for faults the caller may resubmit unchanged.
func (e *Error) Retryable() bool { return e.Kind == KindPersistence }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// KindOf returns the Kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

var (
	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTxConflict marks lock timeouts, deadlocks and serialization
	// failures; the engine retries these.
	ErrTxConflict = errors.New("transaction conflict")
	// ErrDuplicate marks unique-constraint violations.
	ErrDuplicate = errors.New("duplicate")
)

// sentinel rejections
var (
	errNoItems         = newError(KindEmptyCart, "no items in cart")
	errCouponInvalid   = newError(KindCouponInvalid, "invalid or expired coupon")
	errCouponExhausted = newError(KindCouponInvalid, "coupon usage limit reached")
	errCouponNotApply  = newError(KindCouponInapplicable, "coupon does not apply to these items")
)

func insufficient(line CartLine, available int) *Error {
	return &Error{
		Kind:    KindInsufficientInventory,
		Message: fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", line.Name, line.Quantity, available),
	}
}

func persistence(err error) *Error {
	return &Error{Kind: KindPersistence, Message: "order could not be stored, please retry", Err: err}
}

// InvalidInput builds a ClientInput rejection.
func InvalidInput(msg string) *Error {
	return newError(KindClientInput, msg)
}
