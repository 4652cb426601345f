package checkout

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Coupons manages coupon definitions.
type Coupons struct {
	Store CouponStore
	Now   func() time.Time
}

func (s *Coupons) Active(ctx context.Context) ([]Coupon, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	out, err := s.Store.ActiveCoupons(ctx, dateOf(now()))
	if err != nil {
		return nil, persistence(err)
	}
	return out, nil
}

// Create validates and stores c. Codes are unique.
func (s *Coupons) Create(ctx context.Context, c *Coupon) error {
	c.Code = strings.TrimSpace(c.Code)
	switch {
	case c.Code == "" || len(c.Code) > 50:
		return InvalidInput("coupon_code must be 1-50 characters")
	case c.Kind != DiscountAmount && c.Kind != DiscountPercentage:
		return InvalidInput("discount_type must be amount or percentage")
	case c.Value.IsNegative():
		return InvalidInput("discount_value must not be negative")
	case c.Kind == DiscountPercentage && c.Value.GreaterThan(decimal.NewFromInt(100)):
		return InvalidInput("percentage discount_value must not exceed 100")
	case c.MinPurchase.IsNegative():
		return InvalidInput("min_purchase_amount must not be negative")
	case c.EndDate.Before(c.StartDate):
		return InvalidInput("end_date is before start_date")
	case c.MaxUsage != nil && *c.MaxUsage < 0:
		return InvalidInput("max_usage must not be negative")
	}
	c.StartDate, c.EndDate = dateOf(c.StartDate), dateOf(c.EndDate)
	err := s.Store.CreateCoupon(ctx, c)
	if errors.Is(err, ErrDuplicate) {
		return newError(KindConflict, "coupon code already exists")
	}
	if err != nil {
		return persistence(err)
	}
	return nil
}
