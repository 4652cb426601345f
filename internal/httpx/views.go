package httpx

import (
	"time"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	"github.com/shopspring/decimal"
)

func money(d decimal.Decimal) string { return d.StringFixed(2) }

type lineItemView struct {
	ProductID    int64  `json:"product_id"`
	Product      string `json:"product"`
	Quantity     int    `json:"quantity"`
	PriceAtOrder string `json:"price_at_order"`
	Amount       string `json:"amount"`
}

type orderView struct {
	OrderID         string         `json:"order_id"`
	User            string         `json:"user"`
	TotalAmount     string         `json:"total_amount"`
	SubtotalAmount  string         `json:"subtotal_amount"`
	DiscountAmount  string         `json:"discount_amount"`
	CouponCode      *string        `json:"coupon_code"`
	OrderStatus     string         `json:"order_status"`
	ShippingAddress string         `json:"shipping_address"`
	PaymentMethod   string         `json:"payment_method"`
	CreatedAt       time.Time      `json:"created_at"`
	LineItems       []lineItemView `json:"line_items"`
}

func toOrderView(o *checkout.Order) orderView {
	v := orderView{
		OrderID:         o.ID,
		User:            o.UserID,
		TotalAmount:     money(o.Total),
		SubtotalAmount:  money(o.Subtotal),
		DiscountAmount:  money(o.Discount),
		CouponCode:      o.CouponCode,
		OrderStatus:     string(o.Status),
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		CreatedAt:       o.CreatedAt,
		LineItems:       make([]lineItemView, 0, len(o.Lines)),
	}
	for _, l := range o.Lines {
		v.LineItems = append(v.LineItems, lineItemView{
			ProductID:    l.ProductID,
			Product:      l.ProductName,
			Quantity:     l.Quantity,
			PriceAtOrder: money(l.PriceAtOrder),
			Amount:       money(l.Amount()),
		})
	}
	return v
}

type couponView struct {
	CouponCode        string `json:"coupon_code"`
	DiscountType      string `json:"discount_type"`
	DiscountValue     string `json:"discount_value"`
	MinPurchaseAmount string `json:"min_purchase_amount"`
	StartDate         string `json:"start_date"`
	EndDate           string `json:"end_date"`
	MaxUsage          *int   `json:"max_usage"`
}

const dateLayout = "2006-01-02"

func toCouponView(c *checkout.Coupon) couponView {
	return couponView{
		CouponCode:        c.Code,
		DiscountType:      string(c.Kind),
		DiscountValue:     money(c.Value),
		MinPurchaseAmount: money(c.MinPurchase),
		StartDate:         c.StartDate.Format(dateLayout),
		EndDate:           c.EndDate.Format(dateLayout),
		MaxUsage:          c.MaxUsage,
	}
}

type discountDetails struct {
	DiscountType   string `json:"discount_type"`
	DiscountValue  string `json:"discount_value"`
	DiscountAmount string `json:"discount_amount"`
}

type previewView struct {
	CouponCode          string          `json:"coupon_code"`
	OriginalTotalAmount string          `json:"original_total_amount"`
	DiscountDetails     discountDetails `json:"discount_details"`
	FinalPrice          string          `json:"final_price"`
}

func toPreviewView(q checkout.Quote, c *checkout.Coupon) previewView {
	v := previewView{
		CouponCode:          c.Code,
		OriginalTotalAmount: money(q.Subtotal),
		FinalPrice:          money(q.Total),
		DiscountDetails: discountDetails{
			DiscountType:   string(c.Kind),
			DiscountValue:  money(c.Value),
			DiscountAmount: money(q.Discount),
		},
	}
	return v
}
