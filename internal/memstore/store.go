// Package memstore is an in-process implementation of the checkout stores.
// Writers are serialized by a lock that is acquired under the caller's
// context. A transaction works on a copy that replaces the live state only
// on success, so readers are never blocked by a running transaction.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	"github.com/shopspring/decimal"
)

type cartLine struct {
	ID        int64
	ProductID int64
	Quantity  int
}

type state struct {
	nextProduct int64
	nextLine    int64
	nextCoupon  int64
	products    map[int64]checkout.Product
	carts       map[string][]cartLine
	coupons     map[string]checkout.Coupon
	orders      map[string]checkout.Order
}

func (s *state) clone() *state {
	c := &state{
		nextProduct: s.nextProduct,
		nextLine:    s.nextLine,
		nextCoupon:  s.nextCoupon,
		products:    make(map[int64]checkout.Product, len(s.products)),
		carts:       make(map[string][]cartLine, len(s.carts)),
		coupons:     make(map[string]checkout.Coupon, len(s.coupons)),
		orders:      make(map[string]checkout.Order, len(s.orders)),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = append([]cartLine(nil), v...)
	}
	for k, v := range s.coupons {
		c.coupons[k] = copyCoupon(v)
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	return c
}

func copyCoupon(c checkout.Coupon) checkout.Coupon {
	if c.MaxUsage != nil {
		n := *c.MaxUsage
		c.MaxUsage = &n
	}
	return c
}

func copyOrder(o checkout.Order) checkout.Order {
	o.Lines = append([]checkout.OrderLine(nil), o.Lines...)
	if o.CouponCode != nil {
		code := *o.CouponCode
		o.CouponCode = &code
	}
	return o
}

type Store struct {
	// writer is held by whoever may change st, including a whole transaction.
	writer chan struct{}
	mu     sync.RWMutex
	st     *state
}

var (
	_ checkout.Store       = (*Store)(nil)
	_ checkout.OrderStore  = (*Store)(nil)
	_ checkout.CouponStore = (*Store)(nil)
)

func New() *Store {
	return &Store{writer: make(chan struct{}, 1), st: &state{
		nextProduct: 1,
		nextLine:    1,
		nextCoupon:  1,
		products:    map[int64]checkout.Product{},
		carts:       map[string][]cartLine{},
		coupons:     map[string]checkout.Coupon{},
		orders:      map[string]checkout.Order{},
	}}
}

func (s *Store) lockWriter(ctx context.Context) error {
	select {
	case s.writer <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) unlockWriter() { <-s.writer }

// update applies fn to the live state under both locks.
func (s *Store) update(fn func(st *state)) {
	s.writer <- struct{}{}
	defer s.unlockWriter()
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

func (st *state) resolve(userID string) []checkout.CartLine {
	lines := st.carts[userID]
	out := make([]checkout.CartLine, 0, len(lines))
	for _, l := range lines {
		p := st.products[l.ProductID]
		out = append(out, checkout.CartLine{
			ID:        l.ID,
			ProductID: l.ProductID,
			Name:      p.Name,
			Quantity:  l.Quantity,
			Price:     p.Price,
			Available: p.Available,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func (s *Store) CartLines(ctx context.Context, userID string) ([]checkout.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.resolve(userID), nil
}

func (s *Store) CouponByCode(ctx context.Context, code string) (*checkout.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.st.coupons[code]
	if !ok {
		return nil, checkout.ErrNotFound
	}
	c = copyCoupon(c)
	return &c, nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	if err := s.lockWriter(ctx); err != nil {
		return err
	}
	defer s.unlockWriter()

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()
	if err := fn(ctx, &memTx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

type memTx struct{ st *state }

func (t *memTx) LockCart(ctx context.Context, userID string) ([]checkout.CartLine, error) {
	return t.st.resolve(userID), nil
}

func (t *memTx) LockCoupon(ctx context.Context, code string) (*checkout.Coupon, error) {
	c, ok := t.st.coupons[code]
	if !ok {
		return nil, checkout.ErrNotFound
	}
	c = copyCoupon(c)
	return &c, nil
}

func (t *memTx) DecrementStock(ctx context.Context, productID int64, qty int) error {
	p, ok := t.st.products[productID]
	if !ok {
		return checkout.ErrNotFound
	}
	if p.Available < qty {
		return checkout.ErrTxConflict
	}
	p.Available -= qty
	t.st.products[productID] = p
	return nil
}

func (t *memTx) ConsumeCoupon(ctx context.Context, couponID int64) error {
	for code, c := range t.st.coupons {
		if c.ID != couponID {
			continue
		}
		if c.MaxUsage == nil || *c.MaxUsage <= 0 {
			return nil
		}
		n := *c.MaxUsage - 1
		c.MaxUsage = &n
		t.st.coupons[code] = c
		return nil
	}
	return checkout.ErrNotFound
}

func (t *memTx) InsertOrder(ctx context.Context, o *checkout.Order) error {
	if _, ok := t.st.orders[o.ID]; ok {
		return checkout.ErrDuplicate
	}
	t.st.orders[o.ID] = copyOrder(*o)
	return nil
}

func (t *memTx) DeleteCartLines(ctx context.Context, userID string, lineIDs []int64) error {
	drop := make(map[int64]bool, len(lineIDs))
	for _, id := range lineIDs {
		drop[id] = true
	}
	kept := t.st.carts[userID][:0]
	for _, l := range t.st.carts[userID] {
		if !drop[l.ID] {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		delete(t.st.carts, userID)
		return nil
	}
	t.st.carts[userID] = kept
	return nil
}

func (s *Store) OrderByID(ctx context.Context, id string) (*checkout.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.st.orders[id]
	if !ok {
		return nil, checkout.ErrNotFound
	}
	o = copyOrder(o)
	return &o, nil
}

func (s *Store) OrdersByUser(ctx context.Context, userID string) ([]checkout.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []checkout.Order
	for _, o := range s.st.orders {
		if o.UserID == userID {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SetOrderStatus(ctx context.Context, id string, from, to checkout.Status) error {
	if err := s.lockWriter(ctx); err != nil {
		return err
	}
	defer s.unlockWriter()
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.orders[id]
	if !ok {
		return checkout.ErrNotFound
	}
	if o.Status != from {
		return checkout.ErrTxConflict
	}
	o.Status = to
	s.st.orders[id] = o
	return nil
}

func (s *Store) ActiveCoupons(ctx context.Context, day time.Time) ([]checkout.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []checkout.Coupon
	for _, c := range s.st.coupons {
		if c.ActiveOn(day) {
			out = append(out, copyCoupon(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) CreateCoupon(ctx context.Context, c *checkout.Coupon) error {
	if err := s.lockWriter(ctx); err != nil {
		return err
	}
	defer s.unlockWriter()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.coupons[c.Code]; ok {
		return checkout.ErrDuplicate
	}
	c.ID = s.st.nextCoupon
	s.st.nextCoupon++
	s.st.coupons[c.Code] = copyCoupon(*c)
	return nil
}

// AddProduct stores a product and returns its id.
func (s *Store) AddProduct(name string, price decimal.Decimal, available int) int64 {
	var id int64
	s.update(func(st *state) {
		id = st.nextProduct
		st.nextProduct++
		st.products[id] = checkout.Product{ID: id, Name: name, Price: price, Available: available}
	})
	return id
}

// SetPrice changes a product's live price.
func (s *Store) SetPrice(productID int64, price decimal.Decimal) {
	s.update(func(st *state) {
		p := st.products[productID]
		p.Price = price
		st.products[productID] = p
	})
}

func (s *Store) Product(id int64) (checkout.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.products[id]
	return p, ok
}

// AddToCart adds qty of a product to the user's cart, merging with an
// existing line for the same product.
func (s *Store) AddToCart(userID string, productID int64, qty int) int64 {
	var id int64
	s.update(func(st *state) {
		lines := st.carts[userID]
		for i := range lines {
			if lines[i].ProductID == productID {
				lines[i].Quantity += qty
				id = lines[i].ID
				return
			}
		}
		id = st.nextLine
		st.nextLine++
		st.carts[userID] = append(lines, cartLine{ID: id, ProductID: productID, Quantity: qty})
	})
	return id
}

func (s *Store) CartSize(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.st.carts[userID])
}

func (s *Store) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.st.orders)
}
