package checkout

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        int64
	Name      string
	Price     decimal.Decimal
	Available int
}

// CartLine is one product+quantity pairing in a user's cart, resolved
// against the product row it points at.
type CartLine struct {
	ID        int64
	ProductID int64
	Name      string
	Quantity  int
	Price     decimal.Decimal
	Available int
}

// Amount is price × quantity for the line.
func (l CartLine) Amount() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type DiscountKind string

const (
	DiscountAmount     DiscountKind = "amount"
	DiscountPercentage DiscountKind = "percentage"
)

type Coupon struct {
	ID          int64
	Code        string
	Kind        DiscountKind
	Value       decimal.Decimal
	MinPurchase decimal.Decimal
	StartDate   time.Time
	EndDate     time.Time
	MaxUsage    *int // nil = unlimited
}

// ActiveOn reports whether day falls inside [StartDate, EndDate], compared
// by calendar date in UTC.
func (c *Coupon) ActiveOn(day time.Time) bool {
	d := dateOf(day)
	return !d.Before(dateOf(c.StartDate)) && !d.After(dateOf(c.EndDate))
}

// Exhausted is true when the coupon tracks uses and has none left.
func (c *Coupon) Exhausted() bool {
	return c.MaxUsage != nil && *c.MaxUsage <= 0
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Order struct {
	ID              string
	UserID          string
	Status          Status
	Subtotal        decimal.Decimal
	Total           decimal.Decimal
	CouponCode      *string
	Discount        decimal.Decimal
	ShippingAddress string
	PaymentMethod   string
	CreatedAt       time.Time
	Lines           []OrderLine
}

// OrderLine keeps the unit price captured when the order was placed.
type OrderLine struct {
	ProductID    int64
	ProductName  string
	Quantity     int
	PriceAtOrder decimal.Decimal
}

func (l OrderLine) Amount() decimal.Decimal {
	return l.PriceAtOrder.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// User is the authenticated caller.
type User struct {
	ID    string
	Email string
}
