package checkout

import (
	"context"

	"github.com/go-faster/errors"
)

// Orders is the read and operator side of committed orders.
type Orders struct {
	Store OrderStore
}

// Get returns the order when viewer owns it or is an operator.
func (s *Orders) Get(ctx context.Context, id, viewer string, operator bool) (*Order, error) {
	o, err := s.Store.OrderByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(KindNotFound, "order not found")
	}
	if err != nil {
		return nil, persistence(err)
	}
	if !operator && o.UserID != viewer {
		return nil, newError(KindNotFound, "order not found")
	}
	return o, nil
}

func (s *Orders) History(ctx context.Context, userID string) ([]Order, error) {
	out, err := s.Store.OrdersByUser(ctx, userID)
	if err != nil {
		return nil, persistence(err)
	}
	return out, nil
}

// UpdateStatus moves an order forward along Processing → Shipped → Delivered.
func (s *Orders) UpdateStatus(ctx context.Context, id string, to Status) (*Order, error) {
	if _, ok := ParseStatus(string(to)); !ok {
		return nil, InvalidInput("unknown order status " + string(to))
	}
	o, err := s.Get(ctx, id, "", true)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, to) {
		return nil, newError(KindConflict, "cannot move order from "+string(o.Status)+" to "+string(to))
	}
	err = s.Store.SetOrderStatus(ctx, id, o.Status, to)
	if errors.Is(err, ErrTxConflict) {
		return nil, newError(KindConflict, "order status changed concurrently")
	}
	if err != nil {
		return nil, persistence(err)
	}
	o.Status = to
	return o, nil
}
