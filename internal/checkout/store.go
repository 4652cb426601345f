package checkout

import (
	"context"
	"time"
)

// Store is the persistence the engine needs. Reads outside WithinTx see
// committed data and take no locks.
type Store interface {
	CartLines(ctx context.Context, userID string) ([]CartLine, error)
	// CouponByCode returns ErrNotFound for unknown codes.
	CouponByCode(ctx context.Context, code string) (*Coupon, error)
	// WithinTx runs fn in one transaction; fn's error rolls everything back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the locked view used while committing an order. Every Lock* call
// holds its rows until the transaction ends.
type Tx interface {
	// LockCart locks the user's cart and returns its lines with product
	// price and stock read under lock.
	LockCart(ctx context.Context, userID string) ([]CartLine, error)
	LockCoupon(ctx context.Context, code string) (*Coupon, error)
	DecrementStock(ctx context.Context, productID int64, qty int) error
	ConsumeCoupon(ctx context.Context, couponID int64) error
	InsertOrder(ctx context.Context, o *Order) error
	DeleteCartLines(ctx context.Context, userID string, lineIDs []int64) error
}

// OrderStore serves the read side and the operator status flow.
type OrderStore interface {
	OrderByID(ctx context.Context, id string) (*Order, error)
	OrdersByUser(ctx context.Context, userID string) ([]Order, error)
	// SetOrderStatus updates only when the current status equals from;
	// otherwise it returns ErrTxConflict.
	SetOrderStatus(ctx context.Context, id string, from, to Status) error
}

type CouponStore interface {
	ActiveCoupons(ctx context.Context, day time.Time) ([]Coupon, error)
	// CreateCoupon returns ErrDuplicate when the code is taken.
	CreateCoupon(ctx context.Context, c *Coupon) error
}
