package checkout

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

const (
	maxShippingAddress = 255
	maxPaymentMethod   = 50
)

// Request is one checkout attempt by an authenticated user.
type Request struct {
	User            User
	ShippingAddress string
	PaymentMethod   string
	CouponCode      string
}

func (r *Request) normalize() error {
	r.ShippingAddress = strings.TrimSpace(r.ShippingAddress)
	r.PaymentMethod = strings.TrimSpace(r.PaymentMethod)
	r.CouponCode = strings.TrimSpace(r.CouponCode)
	switch {
	case r.User.ID == "":
		return InvalidInput("user is required")
	case r.ShippingAddress == "":
		return InvalidInput("shipping_address is required")
	case len(r.ShippingAddress) > maxShippingAddress:
		return InvalidInput("shipping_address is too long")
	case r.PaymentMethod == "":
		return InvalidInput("payment_method is required")
	case len(r.PaymentMethod) > maxPaymentMethod:
		return InvalidInput("payment_method is too long")
	}
	return nil
}

// Observer receives one call per finished checkout. outcome is "committed"
// or the rejection Kind.
type Observer interface {
	ObserveCheckout(outcome string, elapsed time.Duration)
}

// Engine converts carts into orders.
type Engine struct {
	Store      Store
	Dispatcher Dispatcher
	Log        *slog.Logger
	Observer   Observer

	// Operators receive the new-order alert.
	Operators []string
	// Timeout bounds one store transaction.
	Timeout time.Duration
	// Attempts bounds retries on ErrTxConflict.
	Attempts int
	// NotifyTimeout bounds delivery of both notifications.
	NotifyTimeout time.Duration

	Now   func() time.Time
	NewID func() string

	inflight sync.WaitGroup
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e *Engine) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func (e *Engine) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return 5 * time.Second
}

func (e *Engine) attempts() int {
	if e.Attempts > 0 {
		return e.Attempts
	}
	return 3
}

// Checkout places an order from the user's cart. Notifications are sent
// after commit in the background; their failure never fails the order.
func (e *Engine) Checkout(ctx context.Context, req Request) (*Order, error) {
	start := time.Now()
	o, err := e.checkout(ctx, req)
	if e.Observer != nil {
		outcome := "committed"
		if err != nil {
			outcome = string(KindOf(err))
		}
		e.Observer.ObserveCheckout(outcome, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	e.log().Info("order committed",
		"order_id", o.ID,
		"user_id", o.UserID,
		"total", o.Total.StringFixed(2),
		"lines", len(o.Lines),
	)
	e.notify(o, req.User)
	return o, nil
}

func (e *Engine) checkout(ctx context.Context, req Request) (*Order, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	// Validating: cheap rejections against committed data, no locks held.
	snap, err := (&Reader{Store: e.Store}).Snapshot(ctx, req.User.ID)
	if err != nil {
		return nil, persistence(err)
	}
	if snap.Empty() {
		return nil, errNoItems
	}
	if req.CouponCode != "" {
		c, err := e.Store.CouponByCode(ctx, req.CouponCode)
		if err := e.checkCoupon(c, err); err != nil {
			return nil, err
		}
		if _, ok := CalculateDiscount(c, snap.Lines); !ok {
			return nil, errCouponNotApply
		}
	}

	// Pricing and Persisting: repeated under row locks, since the cart,
	// stock and coupon counter may have moved since the snapshot.
	var o *Order
	for attempt := 1; ; attempt++ {
		o, err = e.commit(ctx, req)
		if err == nil || !errors.Is(err, ErrTxConflict) || attempt >= e.attempts() {
			break
		}
		e.log().Warn("checkout conflict, retrying", "user_id", req.User.ID, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, persistence(ctx.Err())
		case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
		}
	}
	if err != nil {
		if KindOf(err) != "" {
			return nil, err
		}
		return nil, persistence(err)
	}
	return o, nil
}

func (e *Engine) checkCoupon(c *Coupon, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return errCouponInvalid
	case err != nil:
		return persistence(errors.Wrap(err, "load coupon"))
	case !c.ActiveOn(e.now()):
		return errCouponInvalid
	case c.Exhausted():
		return errCouponExhausted
	}
	return nil
}

func (e *Engine) commit(ctx context.Context, req Request) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	var out *Order
	err := e.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		lines, err := tx.LockCart(ctx, req.User.ID)
		if err != nil {
			return errors.Wrap(err, "lock cart")
		}
		if len(lines) == 0 {
			return errNoItems
		}

		var coupon *Coupon
		var disc *Discount
		if req.CouponCode != "" {
			coupon, err = tx.LockCoupon(ctx, req.CouponCode)
			if err := e.checkCoupon(coupon, err); err != nil {
				return err
			}
			d, ok := CalculateDiscount(coupon, lines)
			if !ok {
				return errCouponNotApply
			}
			disc = &d
		}
		q := Price(lines, disc)

		o := &Order{
			ID:              e.newID(),
			UserID:          req.User.ID,
			Status:          StatusProcessing,
			Subtotal:        q.Subtotal,
			Total:           q.Total,
			Discount:        q.Discount,
			ShippingAddress: req.ShippingAddress,
			PaymentMethod:   req.PaymentMethod,
			CreatedAt:       e.now().UTC(),
			Lines:           make([]OrderLine, 0, len(lines)),
		}
		if coupon != nil {
			code := coupon.Code
			o.CouponCode = &code
		}

		lineIDs := make([]int64, 0, len(lines))
		for _, l := range lines {
			if l.Quantity > l.Available {
				return insufficient(l, l.Available)
			}
			if err := tx.DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
				return errors.Wrapf(err, "decrement stock of product %d", l.ProductID)
			}
			o.Lines = append(o.Lines, OrderLine{
				ProductID:    l.ProductID,
				ProductName:  l.Name,
				Quantity:     l.Quantity,
				PriceAtOrder: l.Price,
			})
			lineIDs = append(lineIDs, l.ID)
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		if err := tx.DeleteCartLines(ctx, req.User.ID, lineIDs); err != nil {
			return errors.Wrap(err, "clear cart")
		}
		if coupon != nil && coupon.MaxUsage != nil {
			if err := tx.ConsumeCoupon(ctx, coupon.ID); err != nil {
				return errors.Wrap(err, "consume coupon")
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Preview prices code against the user's cart without consuming it.
func (e *Engine) Preview(ctx context.Context, userID, code string) (Quote, *Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Quote{}, nil, InvalidInput("coupon_code is required")
	}
	snap, err := (&Reader{Store: e.Store}).Snapshot(ctx, userID)
	if err != nil {
		return Quote{}, nil, persistence(err)
	}
	if snap.Empty() {
		return Quote{}, nil, errNoItems
	}
	c, err := e.Store.CouponByCode(ctx, code)
	if err := e.checkCoupon(c, err); err != nil {
		return Quote{}, nil, err
	}
	d, ok := CalculateDiscount(c, snap.Lines)
	if !ok {
		return Quote{}, nil, errCouponNotApply
	}
	return Price(snap.Lines, &d), c, nil
}

// Wait blocks until background notifications have finished.
func (e *Engine) Wait() { e.inflight.Wait() }
