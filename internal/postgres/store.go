package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements the checkout stores on PostgreSQL. Checkout
// transactions lock the cart row, then cart items and products in product
// id order, then the coupon row.
type Store struct {
	DB *pgxpool.Pool
	// LockTimeout bounds each row-lock wait inside a transaction.
	LockTimeout time.Duration
}

var (
	_ checkout.Store       = (*Store)(nil)
	_ checkout.OrderStore  = (*Store)(nil)
	_ checkout.CouponStore = (*Store)(nil)
)

const cartLinesSQL = `
	SELECT ci.id, ci.product_id, p.name, ci.quantity, p.price, p.quantity
	FROM cart_items ci
	JOIN products p ON p.id = ci.product_id
	WHERE ci.cart_id = $1
	ORDER BY p.id`

const couponSQL = `
	SELECT id, coupon_code, discount_type, discount_value, min_purchase_amount,
	       start_date, end_date, max_usage
	FROM coupons WHERE coupon_code = $1`

func scanCartLines(rows pgx.Rows) ([]checkout.CartLine, error) {
	defer rows.Close()
	var out []checkout.CartLine
	for rows.Next() {
		var l checkout.CartLine
		if err := rows.Scan(&l.ID, &l.ProductID, &l.Name, &l.Quantity, &l.Price, &l.Available); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanCoupon(row pgx.Row) (*checkout.Coupon, error) {
	var c checkout.Coupon
	var kind string
	err := row.Scan(&c.ID, &c.Code, &kind, &c.Value, &c.MinPurchase, &c.StartDate, &c.EndDate, &c.MaxUsage)
	if err != nil {
		return nil, classify(err)
	}
	c.Kind = checkout.DiscountKind(kind)
	return &c, nil
}

func (s *Store) CartLines(ctx context.Context, userID string) ([]checkout.CartLine, error) {
	var cartID int64
	err := s.DB.QueryRow(ctx, `SELECT id FROM carts WHERE user_id=$1`, userID).Scan(&cartID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	rows, err := s.DB.Query(ctx, cartLinesSQL, cartID)
	if err != nil {
		return nil, classify(err)
	}
	lines, err := scanCartLines(rows)
	return lines, classify(err)
}

func (s *Store) CouponByCode(ctx context.Context, code string) (*checkout.Coupon, error) {
	return scanCoupon(s.DB.QueryRow(ctx, couponSQL, code))
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if s.LockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.LockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return classify(err)
		}
	}
	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return classify(err)
	}
	return classify(tx.Commit(ctx))
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) LockCart(ctx context.Context, userID string) ([]checkout.CartLine, error) {
	var cartID int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM carts WHERE user_id=$1 FOR UPDATE`, userID).Scan(&cartID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	rows, err := t.tx.Query(ctx, cartLinesSQL+` FOR UPDATE OF ci, p`, cartID)
	if err != nil {
		return nil, classify(err)
	}
	lines, err := scanCartLines(rows)
	return lines, classify(err)
}

func (t *pgTx) LockCoupon(ctx context.Context, code string) (*checkout.Coupon, error) {
	return scanCoupon(t.tx.QueryRow(ctx, couponSQL+` FOR UPDATE`, code))
}

func (t *pgTx) DecrementStock(ctx context.Context, productID int64, qty int) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products SET quantity = quantity - $2, updated_at = now()
		WHERE id = $1 AND quantity >= $2`, productID, qty)
	if err != nil {
		return classify(err)
	}
	if ct.RowsAffected() != 1 {
		return errors.Wrapf(checkout.ErrTxConflict, "stock of product %d changed under lock", productID)
	}
	return nil
}

func (t *pgTx) ConsumeCoupon(ctx context.Context, couponID int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE coupons SET max_usage = max_usage - 1
		WHERE id = $1 AND max_usage > 0`, couponID)
	return classify(err)
}

func (t *pgTx) InsertOrder(ctx context.Context, o *checkout.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, order_status, subtotal_amount, total_amount,
		                   coupon_code, discount_amount, shipping_address, payment_method, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.UserID, string(o.Status), o.Subtotal, o.Total,
		o.CouponCode, o.Discount, o.ShippingAddress, o.PaymentMethod, o.CreatedAt,
	)
	if err != nil {
		return classify(err)
	}
	for _, l := range o.Lines {
		_, err = t.tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, product_name, quantity, price_at_order)
			VALUES ($1, $2, $3, $4, $5)`,
			o.ID, l.ProductID, l.ProductName, l.Quantity, l.PriceAtOrder,
		)
		if err != nil {
			return classify(err)
		}
	}
	return nil
}

func (t *pgTx) DeleteCartLines(ctx context.Context, userID string, lineIDs []int64) error {
	_, err := t.tx.Exec(ctx, `
		DELETE FROM cart_items
		WHERE id = ANY($1) AND cart_id = (SELECT id FROM carts WHERE user_id = $2)`,
		lineIDs, userID)
	return classify(err)
}
