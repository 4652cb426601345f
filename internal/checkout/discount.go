package checkout

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Discount is what a coupon is worth against one cart.
type Discount struct {
	Kind   DiscountKind
	Value  decimal.Decimal // nominal coupon value
	Amount decimal.Decimal // computed, before capping at the subtotal
}

// Subtotal sums price × quantity over the lines.
func Subtotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount())
	}
	return total
}

// CalculateDiscount prices coupon c against the cart. ok is false when the
// coupon does not apply. It has no side effects.
func CalculateDiscount(c *Coupon, lines []CartLine) (d Discount, ok bool) {
	total := Subtotal(lines)
	if total.LessThan(c.MinPurchase) {
		return Discount{}, false
	}
	d = Discount{Kind: c.Kind, Value: c.Value}
	switch c.Kind {
	case DiscountPercentage:
		d.Amount = c.Value.Div(hundred).Mul(total).Round(2)
	case DiscountAmount:
		d.Amount = c.Value
	default:
		return Discount{}, false
	}
	return d, true
}

// Quote is a priced cart.
type Quote struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal // applied amount, never above Subtotal
	Total    decimal.Decimal
	Coupon   *Discount
}

// Price computes the quote for lines with an optional discount. A discount
// larger than the subtotal is capped so Total never drops below zero.
func Price(lines []CartLine, d *Discount) Quote {
	q := Quote{Subtotal: Subtotal(lines), Discount: decimal.Zero, Coupon: d}
	if d != nil {
		q.Discount = decimal.Min(d.Amount, q.Subtotal)
	}
	q.Total = q.Subtotal.Sub(q.Discount)
	return q
}
