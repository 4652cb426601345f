package redisx

import (
	"fmt"
	"time"
)

const (
	// Checkout replay: idem:checkout:{user_id}:{idempotency_key} -> response body | "pending"
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Order cache: order:{order_id}:v{generation} -> order JSON
	KeyOrder = "order:%s:v%d"

	// Order cache generation: order:{order_id}:gen -> counter bumped on every change
	KeyOrderGen = "order:%s:gen"

	// Dedup notification delivery: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLPending     = 30 * time.Second
	TTLOrderCache  = 5 * time.Minute
	TTLOrderGen    = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)

func IdemCheckoutKey(userID, key string) string { return fmt.Sprintf(KeyIdemCheckout, userID, key) }
func OrderKey(orderID string, gen int64) string { return fmt.Sprintf(KeyOrder, orderID, gen) }
func OrderGenKey(orderID string) string { return fmt.Sprintf(KeyOrderGen, orderID) }
func DedupKey(service, id string) string { return fmt.Sprintf(KeyDedup, service, id) }
