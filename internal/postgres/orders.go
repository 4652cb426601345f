package postgres

import (
	"context"
	"time"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `id::text, user_id, order_status, subtotal_amount, total_amount,
	coupon_code, discount_amount, shipping_address, payment_method, created_at`

func scanOrder(row pgx.Row) (checkout.Order, error) {
	var o checkout.Order
	var status string
	err := row.Scan(&o.ID, &o.UserID, &status, &o.Subtotal, &o.Total,
		&o.CouponCode, &o.Discount, &o.ShippingAddress, &o.PaymentMethod, &o.CreatedAt)
	o.Status = checkout.Status(status)
	return o, err
}

// loadLines fills Lines for every order in one query.
func (s *Store) loadLines(ctx context.Context, orders []checkout.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, 0, len(orders))
	idx := make(map[string]int, len(orders))
	for i, o := range orders {
		ids = append(ids, o.ID)
		idx[o.ID] = i
	}
	rows, err := s.DB.Query(ctx, `
		SELECT order_id::text, product_id, product_name, quantity, price_at_order
		FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY id`, ids)
	if err != nil {
		return classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		var orderID string
		var l checkout.OrderLine
		if err := rows.Scan(&orderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.PriceAtOrder); err != nil {
			return err
		}
		i := idx[orderID]
		orders[i].Lines = append(orders[i].Lines, l)
	}
	return classify(rows.Err())
}

func (s *Store) OrderByID(ctx context.Context, id string) (*checkout.Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id::text = $1`, id))
	if err != nil {
		return nil, classify(err)
	}
	out := []checkout.Order{o}
	if err := s.loadLines(ctx, out); err != nil {
		return nil, err
	}
	return &out[0], nil
}

func (s *Store) OrdersByUser(ctx context.Context, userID string) ([]checkout.Order, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+`
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, classify(err)
	}
	var out []checkout.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	if err := s.loadLines(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SetOrderStatus(ctx context.Context, id string, from, to checkout.Status) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE orders SET order_status = $3
		WHERE id::text = $1 AND order_status = $2`, id, string(from), string(to))
	if err != nil {
		return classify(err)
	}
	if ct.RowsAffected() == 0 {
		return checkout.ErrTxConflict
	}
	return nil
}

func (s *Store) ActiveCoupons(ctx context.Context, day time.Time) ([]checkout.Coupon, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, coupon_code, discount_type, discount_value, min_purchase_amount,
		       start_date, end_date, max_usage
		FROM coupons
		WHERE start_date <= $1::date AND end_date >= $1::date
		ORDER BY coupon_code`, day)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var out []checkout.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, classify(rows.Err())
}

func (s *Store) CreateCoupon(ctx context.Context, c *checkout.Coupon) error {
	err := s.DB.QueryRow(ctx, `
		INSERT INTO coupons(coupon_code, discount_type, discount_value, min_purchase_amount,
		                    start_date, end_date, max_usage)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		c.Code, string(c.Kind), c.Value, c.MinPurchase, c.StartDate, c.EndDate, c.MaxUsage,
	).Scan(&c.ID)
	return classify(err)
}
