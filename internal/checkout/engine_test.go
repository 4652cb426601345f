package checkout_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	"github.com/ariefcatur/storefront-checkout/internal/memstore"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var today = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recorder struct {
	mu   sync.Mutex
	msgs []checkout.Message
	err  error
}

func (r *recorder) Dispatch(ctx context.Context, m checkout.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return r.err
}

func (r *recorder) messages() []checkout.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]checkout.Message(nil), r.msgs...)
}

type fixture struct {
	store  *memstore.Store
	engine *checkout.Engine
	disp   *recorder
	logs   *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	disp := &recorder{}
	logs := &bytes.Buffer{}
	e := &checkout.Engine{
		Store:      st,
		Dispatcher: disp,
		Log:        slog.New(slog.NewTextHandler(&syncWriter{w: logs}, nil)),
		Operators:  []string{"ops@example.com"},
		Timeout:    time.Second,
		Attempts:   3,
		Now:        func() time.Time { return today },
	}
	return &fixture{store: st, engine: e, disp: disp, logs: logs}
}

type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (f *fixture) coupon(t *testing.T, code string, kind checkout.DiscountKind, value, min string, maxUsage *int) {
	t.Helper()
	err := f.store.CreateCoupon(context.Background(), &checkout.Coupon{
		Code:        code,
		Kind:        kind,
		Value:       dec(value),
		MinPurchase: dec(min),
		StartDate:   today.AddDate(0, 0, -10),
		EndDate:     today.AddDate(0, 0, 10),
		MaxUsage:    maxUsage,
	})
	if err != nil {
		t.Fatalf("create coupon: %v", err)
	}
}

func request(user string) checkout.Request {
	return checkout.Request{
		User:            checkout.User{ID: user, Email: user + "@example.com"},
		ShippingAddress: "1 Main St",
		PaymentMethod:   "card",
	}
}

func intp(n int) *int { return &n }

func wantKind(t *testing.T, err error, kind checkout.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := checkout.KindOf(err); got != kind {
		t.Fatalf("kind = %q, want %q (err: %v)", got, kind, err)
	}
}

func TestCheckoutCommitsOrder(t *testing.T) {
	f := newFixture(t)
	mug := f.store.AddProduct("Mug", dec("12.50"), 5)
	tee := f.store.AddProduct("Tee", dec("19.99"), 5)
	f.store.AddToCart("alice", mug, 2)
	f.store.AddToCart("alice", tee, 1)
	f.coupon(t, "WELCOME10", checkout.DiscountPercentage, "10", "20", intp(3))

	req := request("alice")
	req.CouponCode = " WELCOME10 "
	o, err := f.engine.Checkout(context.Background(), req)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	f.engine.Wait()

	if o.Status != checkout.StatusProcessing || o.UserID != "alice" || o.ID == "" {
		t.Errorf("unexpected order header %+v", o)
	}
	if o.Subtotal.StringFixed(2) != "44.99" || o.Discount.StringFixed(2) != "4.50" || o.Total.StringFixed(2) != "40.49" {
		t.Errorf("amounts = %s - %s = %s", o.Subtotal, o.Discount, o.Total)
	}
	if o.CouponCode == nil || *o.CouponCode != "WELCOME10" {
		t.Errorf("coupon code = %v", o.CouponCode)
	}
	if len(o.Lines) != 2 || o.Lines[0].ProductName != "Mug" || !o.Lines[0].PriceAtOrder.Equal(dec("12.50")) {
		t.Errorf("lines = %+v", o.Lines)
	}

	if p, _ := f.store.Product(mug); p.Available != 3 {
		t.Errorf("mug stock = %d, want 3", p.Available)
	}
	if p, _ := f.store.Product(tee); p.Available != 4 {
		t.Errorf("tee stock = %d, want 4", p.Available)
	}
	if n := f.store.CartSize("alice"); n != 0 {
		t.Errorf("cart has %d lines after checkout", n)
	}
	c, _ := f.store.CouponByCode(context.Background(), "WELCOME10")
	if *c.MaxUsage != 2 {
		t.Errorf("remaining uses = %d, want 2", *c.MaxUsage)
	}

	msgs := f.disp.messages()
	if len(msgs) != 2 {
		t.Fatalf("dispatched %d messages, want 2", len(msgs))
	}
	conf, alert := msgs[0], msgs[1]
	if conf.Template != checkout.TemplateOrderConfirmation || conf.Subject != "Order Confirmation" || conf.To[0] != "alice@example.com" {
		t.Errorf("confirmation = %+v", conf)
	}
	for _, want := range []string{"Mug x 2 @ 12.50 = 25.00", "Subtotal: 44.99", "Discount: 4.50 (WELCOME10)", "Total:    40.49"} {
		if !strings.Contains(conf.Body, want) {
			t.Errorf("confirmation body missing %q:\n%s", want, conf.Body)
		}
	}
	if alert.Subject != "New Order" || alert.To[0] != "ops@example.com" ||
		alert.Body != "A new order has been placed. Order ID: "+o.ID {
		t.Errorf("alert = %+v", alert)
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Checkout(context.Background(), request("nobody"))
	wantKind(t, err, checkout.KindEmptyCart)
	if f.store.OrderCount() != 0 {
		t.Fatal("order written for empty cart")
	}
}

func TestCheckoutClientInput(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddProduct("Mug", dec("1.00"), 1)
	f.store.AddToCart("alice", p, 1)

	tests := []struct {
		name   string
		mutate func(*checkout.Request)
	}{
		{"missing user", func(r *checkout.Request) { r.User.ID = "" }},
		{"blank address", func(r *checkout.Request) { r.ShippingAddress = "   " }},
		{"long address", func(r *checkout.Request) { r.ShippingAddress = strings.Repeat("a", 256) }},
		{"missing payment", func(r *checkout.Request) { r.PaymentMethod = "" }},
		{"long payment", func(r *checkout.Request) { r.PaymentMethod = strings.Repeat("p", 51) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request("alice")
			tt.mutate(&req)
			_, err := f.engine.Checkout(context.Background(), req)
			wantKind(t, err, checkout.KindClientInput)
		})
	}
	if f.store.CartSize("alice") != 1 {
		t.Fatal("cart changed by rejected requests")
	}
}

func TestCheckoutCouponRejections(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddProduct("Mug", dec("10.00"), 10)
	f.store.AddToCart("alice", p, 1)
	f.coupon(t, "USEDUP", checkout.DiscountAmount, "1", "0", intp(0))
	f.coupon(t, "BIGSPEND", checkout.DiscountAmount, "1", "100", nil)
	_ = f.store.CreateCoupon(context.Background(), &checkout.Coupon{
		Code: "EXPIRED", Kind: checkout.DiscountAmount, Value: dec("1"), MinPurchase: dec("0"),
		StartDate: today.AddDate(0, -1, 0), EndDate: today.AddDate(0, 0, -1),
	})
	_ = f.store.CreateCoupon(context.Background(), &checkout.Coupon{
		Code: "SOON", Kind: checkout.DiscountAmount, Value: dec("1"), MinPurchase: dec("0"),
		StartDate: today.AddDate(0, 0, 1), EndDate: today.AddDate(0, 1, 0),
	})

	tests := []struct {
		code    string
		kind    checkout.Kind
		message string
	}{
		{"NOPE", checkout.KindCouponInvalid, "invalid or expired coupon"},
		{"EXPIRED", checkout.KindCouponInvalid, "invalid or expired coupon"},
		{"SOON", checkout.KindCouponInvalid, "invalid or expired coupon"},
		{"USEDUP", checkout.KindCouponInvalid, "coupon usage limit reached"},
		{"BIGSPEND", checkout.KindCouponInapplicable, "coupon does not apply to these items"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			req := request("alice")
			req.CouponCode = tt.code
			_, err := f.engine.Checkout(context.Background(), req)
			wantKind(t, err, tt.kind)
			var ce *checkout.Error
			if !errors.As(err, &ce) || ce.Message != tt.message {
				t.Errorf("message = %v, want %q", err, tt.message)
			}
		})
	}
	if prod, _ := f.store.Product(p); prod.Available != 10 || f.store.OrderCount() != 0 {
		t.Fatal("rejected checkout had side effects")
	}
}

func TestCheckoutShortageRollsBackEarlierLines(t *testing.T) {
	f := newFixture(t)
	plenty := f.store.AddProduct("Plenty", dec("1.00"), 10)
	scarce := f.store.AddProduct("Scarce", dec("2.00"), 1)
	f.store.AddToCart("alice", plenty, 3)
	f.store.AddToCart("alice", scarce, 2)
	f.coupon(t, "ONCE", checkout.DiscountAmount, "1", "0", intp(1))

	req := request("alice")
	req.CouponCode = "ONCE"
	_, err := f.engine.Checkout(context.Background(), req)
	wantKind(t, err, checkout.KindInsufficientInventory)
	if !strings.Contains(err.Error(), "Scarce") {
		t.Errorf("error does not name the product: %v", err)
	}

	if p, _ := f.store.Product(plenty); p.Available != 10 {
		t.Errorf("earlier line decrement not rolled back: stock %d", p.Available)
	}
	if f.store.CartSize("alice") != 2 || f.store.OrderCount() != 0 {
		t.Error("cart or orders changed by failed checkout")
	}
	c, _ := f.store.CouponByCode(context.Background(), "ONCE")
	if *c.MaxUsage != 1 {
		t.Errorf("coupon consumed by failed checkout")
	}
	f.engine.Wait()
	if n := len(f.disp.messages()); n != 0 {
		t.Errorf("dispatched %d notifications for failed checkout", n)
	}
}

func TestConcurrentCheckoutsForLastUnit(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddProduct("Last", dec("5.00"), 1)
	const buyers = 8
	for i := 0; i < buyers; i++ {
		f.store.AddToCart(string(rune('a'+i)), p, 1)
	}

	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Checkout(context.Background(), request(string(rune('a'+i))))
		}(i)
	}
	wg.Wait()
	f.engine.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		wantKind(t, err, checkout.KindInsufficientInventory)
	}
	if ok != 1 {
		t.Fatalf("%d checkouts succeeded, want 1", ok)
	}
	if prod, _ := f.store.Product(p); prod.Available != 0 {
		t.Fatalf("stock = %d, want 0", prod.Available)
	}
}

func TestConcurrentCheckoutsForLastCouponUse(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddProduct("Mug", dec("10.00"), 100)
	f.coupon(t, "SINGLE", checkout.DiscountAmount, "2", "0", intp(1))
	const buyers = 6
	for i := 0; i < buyers; i++ {
		f.store.AddToCart(string(rune('a'+i)), p, 1)
	}

	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := request(string(rune('a' + i)))
			req.CouponCode = "SINGLE"
			_, errs[i] = f.engine.Checkout(context.Background(), req)
		}(i)
	}
	wg.Wait()
	f.engine.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		wantKind(t, err, checkout.KindCouponInvalid)
		if !strings.Contains(err.Error(), "usage limit reached") {
			t.Errorf("loser error = %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("%d checkouts used the coupon, want 1", ok)
	}
	c, _ := f.store.CouponByCode(context.Background(), "SINGLE")
	if *c.MaxUsage != 0 {
		t.Fatalf("remaining uses = %d, want 0", *c.MaxUsage)
	}
}

func TestUnlimitedCouponIsReusable(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddProduct("Mug", dec("10.00"), 100)
	f.coupon(t, "ALWAYS", checkout.DiscountAmount, "1", "0", nil)
	for i := 0; i < 3; i++ {
		f.store.AddToCart("alice", p, 1)
		req := request("alice")
		req.CouponCode = "ALWAYS"
		if _, err := f.engine.Checkout(context.Background(), req); err != nil {
			t.Fatalf("checkout %d: %v", i, err)
		}
	}
	c, _ := f.store.CouponByCode(context.Background(), "ALWAYS")
	if c.MaxUsage != nil {
		t.Fatal("unlimited coupon gained a counter")
	}
}

func TestOrderPricesAreFrozen(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddProduct("Mug", dec("12.50"), 10)
	f.store.AddToCart("alice", p, 2)
	o, err := f.engine.Checkout(context.Background(), request("alice"))
	if err != nil {
		t.Fatal(err)
	}
	f.store.SetPrice(p, dec("99.00"))

	got, err := (&checkout.Orders{Store: f.store}).Get(context.Background(), o.ID, "alice", false)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Lines[0].PriceAtOrder.Equal(dec("12.50")) || got.Total.StringFixed(2) != "25.00" {
		t.Fatalf("stored order changed with product price: %+v", got)
	}
}

func TestNotificationFailureDoesNotFailOrder(t *testing.T) {
	f := newFixture(t)
	f.disp.err = errors.New("smtp down")
	p := f.store.AddProduct("Mug", dec("3.00"), 10)
	f.store.AddToCart("alice", p, 1)

	o, err := f.engine.Checkout(context.Background(), request("alice"))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	f.engine.Wait()
	if f.store.OrderCount() != 1 || o == nil {
		t.Fatal("order not committed")
	}
	if n := len(f.disp.messages()); n != 2 {
		t.Errorf("attempted %d notifications, want 2", n)
	}
	if !strings.Contains(f.logs.String(), "notification not delivered") {
		t.Errorf("failure not logged:\n%s", f.logs.String())
	}
}

func TestNotificationsSkipMissingRecipients(t *testing.T) {
	f := newFixture(t)
	f.engine.Operators = nil
	p := f.store.AddProduct("Mug", dec("3.00"), 10)
	f.store.AddToCart("alice", p, 1)
	req := request("alice")
	req.User.Email = ""
	if _, err := f.engine.Checkout(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	f.engine.Wait()
	if n := len(f.disp.messages()); n != 0 {
		t.Fatalf("dispatched %d messages without recipients", n)
	}
}

// flakyStore fails the first n transactions with a lock conflict.
type flakyStore struct {
	checkout.Store
	mu sync.Mutex
	n  int
}

func (s *flakyStore) WithinTx(ctx context.Context, fn func(context.Context, checkout.Tx) error) error {
	s.mu.Lock()
	fail := s.n > 0
	s.n--
	s.mu.Unlock()
	if fail {
		return errors.Wrap(checkout.ErrTxConflict, "lock timeout")
	}
	return s.Store.WithinTx(ctx, fn)
}

func TestCheckoutRetriesConflicts(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddProduct("Mug", dec("3.00"), 10)
	f.store.AddToCart("alice", p, 1)
	f.engine.Store = &flakyStore{Store: f.store, n: 2}

	if _, err := f.engine.Checkout(context.Background(), request("alice")); err != nil {
		t.Fatalf("Checkout after two conflicts: %v", err)
	}
}

func TestCheckoutConflictBecomesRetryableFault(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddProduct("Mug", dec("3.00"), 10)
	f.store.AddToCart("alice", p, 1)
	f.engine.Store = &flakyStore{Store: f.store, n: 10}

	_, err := f.engine.Checkout(context.Background(), request("alice"))
	wantKind(t, err, checkout.KindPersistence)
	var ce *checkout.Error
	if !errors.As(err, &ce) || !ce.Retryable() {
		t.Fatalf("fault not retryable: %v", err)
	}
	if f.store.OrderCount() != 0 || f.store.CartSize("alice") != 1 {
		t.Fatal("failed checkout had side effects")
	}
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *countingObserver) ObserveCheckout(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func TestCheckoutReportsOutcome(t *testing.T) {
	f := newFixture(t)
	obs := &countingObserver{}
	f.engine.Observer = obs
	p := f.store.AddProduct("Mug", dec("3.00"), 10)
	f.store.AddToCart("alice", p, 1)

	_, _ = f.engine.Checkout(context.Background(), request("alice"))
	_, _ = f.engine.Checkout(context.Background(), request("alice"))
	if len(obs.outcomes) != 2 || obs.outcomes[0] != "committed" || obs.outcomes[1] != string(checkout.KindEmptyCart) {
		t.Fatalf("outcomes = %v", obs.outcomes)
	}
}

func TestPreviewDoesNotConsume(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddProduct("Mug", dec("50.00"), 10)
	f.store.AddToCart("alice", p, 2)
	f.coupon(t, "TEN", checkout.DiscountPercentage, "10", "50", intp(1))

	q, c, err := f.engine.Preview(context.Background(), "alice", "TEN")
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if c.Code != "TEN" || q.Subtotal.StringFixed(2) != "100.00" || q.Discount.StringFixed(2) != "10.00" || q.Total.StringFixed(2) != "90.00" {
		t.Fatalf("quote = %+v", q)
	}
	again, _ := f.store.CouponByCode(context.Background(), "TEN")
	if *again.MaxUsage != 1 || f.store.CartSize("alice") != 1 {
		t.Fatal("preview had side effects")
	}

	_, _, err = f.engine.Preview(context.Background(), "alice", "")
	wantKind(t, err, checkout.KindClientInput)
	_, _, err = f.engine.Preview(context.Background(), "bob", "TEN")
	wantKind(t, err, checkout.KindEmptyCart)
}
