package memstore

import (
	"context"
	"time"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	"github.com/shopspring/decimal"
)

// Demo returns a store with a small catalog, a filled cart for user
// "demo" and two coupons valid this year.
func Demo(now time.Time) *Store {
	ctx := context.Background()
	s := New()
	mug := s.AddProduct("Ceramic Mug", decimal.RequireFromString("12.50"), 40)
	tee := s.AddProduct("Logo T-Shirt", decimal.RequireFromString("19.99"), 25)
	s.AddProduct("Sticker Pack", decimal.RequireFromString("3.25"), 200)
	s.AddToCart("demo", mug, 2)
	s.AddToCart("demo", tee, 1)

	start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(now.Year(), 12, 31, 0, 0, 0, 0, time.UTC)
	uses := 100
	_ = s.CreateCoupon(ctx, &checkout.Coupon{
		Code: "WELCOME10", Kind: checkout.DiscountPercentage,
		Value: decimal.NewFromInt(10), MinPurchase: decimal.NewFromInt(20),
		StartDate: start, EndDate: end, MaxUsage: &uses,
	})
	_ = s.CreateCoupon(ctx, &checkout.Coupon{
		Code: "FIVEOFF", Kind: checkout.DiscountAmount,
		Value: decimal.NewFromInt(5), MinPurchase: decimal.Zero,
		StartDate: start, EndDate: end,
	})
	return s
}
