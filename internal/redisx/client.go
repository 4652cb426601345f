package redisx

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

const pending = "pending"

// ErrInFlight reports that another request holds the idempotency key.
var ErrInFlight = errors.New("request with this idempotency key is in progress")

// Store holds the redis-backed helpers used by the API and the notifier.
type Store struct {
	RDB *redis.Client
}

// Claim reserves an idempotency key for userID. When a previous request
// already completed, its stored response is returned instead.
func (s *Store) Claim(ctx context.Context, userID, key string) ([]byte, error) {
	k := IdemCheckoutKey(userID, key)
	ok, err := s.RDB.SetNX(ctx, k, pending, TTLPending).Result()
	if err != nil {
		return nil, errors.Wrap(err, "claim idempotency key")
	}
	if ok {
		return nil, nil
	}
	v, err := s.RDB.Get(ctx, k).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		// expired between SETNX and GET
		return s.Claim(ctx, userID, key)
	case err != nil:
		return nil, errors.Wrap(err, "read idempotency key")
	case string(v) == pending:
		return nil, ErrInFlight
	}
	return v, nil
}

// Complete stores the response for a claimed key.
func (s *Store) Complete(ctx context.Context, userID, key string, body []byte) error {
	return s.RDB.Set(ctx, IdemCheckoutKey(userID, key), body, TTLIdempotency).Err()
}

// Release drops a claimed key so the request can be retried.
func (s *Store) Release(ctx context.Context, userID, key string) error {
	return s.RDB.Del(ctx, IdemCheckoutKey(userID, key)).Err()
}

// OrderGeneration returns the order's current cache generation. It must be
// read before the order is loaded from the store.
func (s *Store) OrderGeneration(ctx context.Context, orderID string) (int64, error) {
	n, err := s.RDB.Get(ctx, OrderGenKey(orderID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (s *Store) CachedOrder(ctx context.Context, orderID string, gen int64) ([]byte, bool) {
	b, err := s.RDB.Get(ctx, OrderKey(orderID, gen)).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (s *Store) CacheOrder(ctx context.Context, orderID string, gen int64, body []byte) error {
	return s.RDB.Set(ctx, OrderKey(orderID, gen), body, TTLOrderCache).Err()
}

// InvalidateOrder bumps the generation. A body cached by a reader that
// loaded the order before the bump lands under the old generation and is
// never served.
func (s *Store) InvalidateOrder(ctx context.Context, orderID string) error {
	k := OrderGenKey(orderID)
	pipe := s.RDB.TxPipeline()
	pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, TTLOrderGen)
	_, err := pipe.Exec(ctx)
	return err
}

// FirstDelivery marks an event as handled by service and reports whether
// this call was the first to do so.
func (s *Store) FirstDelivery(ctx context.Context, service, eventID string) (bool, error) {
	return s.RDB.SetNX(ctx, DedupKey(service, eventID), "1", TTLDedup).Result()
}

// Forget clears a dedup mark so a failed delivery can be redelivered.
func (s *Store) Forget(ctx context.Context, service, eventID string) error {
	return s.RDB.Del(ctx, DedupKey(service, eventID)).Err()
}
