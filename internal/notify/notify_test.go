package notify

import (
	"context"
	"encoding/json"
	"net/smtp"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	"github.com/go-faster/errors"
	kafkago "github.com/segmentio/kafka-go"
)

type captured struct {
	key, value []byte
	headers    []kafkago.Header
}

type fakePublisher struct {
	msgs []captured
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, captured{key, value, headers})
	return nil
}

func TestKafkaDispatcherEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	d := &KafkaDispatcher{Producer: pub, ServiceName: "storefront-api", Now: func() time.Time { return at }}

	err := d.Dispatch(context.Background(), checkout.Message{
		Template: checkout.TemplateNewOrderAlert,
		OrderID:  "o-1",
		To:       []string{"ops@example.com"},
		Subject:  "New Order",
		Body:     "A new order has been placed. Order ID: o-1",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.msgs))
	}
	m := pub.msgs[0]
	if string(m.key) != "o-1" {
		t.Errorf("key = %q, want order id", m.key)
	}

	var env Envelope
	if err := json.Unmarshal(m.value, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.EventType != EventEmailRequested || env.EventVersion != 1 || env.CorrelationID != "o-1" {
		t.Errorf("unexpected envelope %+v", env)
	}
	if !env.OccurredAt.Equal(at) || env.Producer != "storefront-api" || env.EventID == "" {
		t.Errorf("unexpected envelope metadata %+v", env)
	}
	var p EmailRequestedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.Subject != "New Order" || len(p.To) != 1 || p.To[0] != "ops@example.com" {
		t.Errorf("unexpected payload %+v", p)
	}
}

func TestKafkaDispatcherPublishError(t *testing.T) {
	d := &KafkaDispatcher{Producer: &fakePublisher{err: context.DeadlineExceeded}}
	err := d.Dispatch(context.Background(), checkout.Message{OrderID: "o-1"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want wrapped deadline", err)
	}
}

type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDedup) FirstDelivery(ctx context.Context, service, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	if d.seen[service+id] {
		return false, nil
	}
	d.seen[service+id] = true
	return true, nil
}

func (d *memDedup) Forget(ctx context.Context, service, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, service+id)
	return nil
}

type fakeSender struct {
	sent []EmailRequestedPayload
	err  error
}

func (s *fakeSender) Send(ctx context.Context, p EmailRequestedPayload) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, p)
	return nil
}

func envelopeMessage(t *testing.T, eventID, eventType string) kafkago.Message {
	t.Helper()
	env := Envelope{
		EventID:   eventID,
		EventType: eventType,
		Payload: json.RawMessage(`{"template":"order_confirmation","order_id":"o-1",` +
			`"to":["a@example.com"],"subject":"Order Confirmation","body":"hi"}`),
	}
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	return kafkago.Message{Value: b}
}

func TestServiceDedupsRedelivery(t *testing.T) {
	sender := &fakeSender{}
	svc := &Service{Dedup: &memDedup{}, Sender: sender, ServiceName: "notifier"}
	msg := envelopeMessage(t, "ev-1", EventEmailRequested)

	for i := 0; i < 3; i++ {
		if err := svc.HandleEmailRequested(context.Background(), msg); err != nil {
			t.Fatalf("handle #%d: %v", i, err)
		}
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sender.sent))
	}
	if sender.sent[0].OrderID != "o-1" {
		t.Errorf("order id = %q", sender.sent[0].OrderID)
	}
}

func TestServiceFailedSendIsRetried(t *testing.T) {
	sender := &fakeSender{err: errors.New("relay down")}
	svc := &Service{Dedup: &memDedup{}, Sender: sender, ServiceName: "notifier"}
	msg := envelopeMessage(t, "ev-2", EventEmailRequested)

	if err := svc.HandleEmailRequested(context.Background(), msg); err == nil {
		t.Fatal("expected error so the consumer retries")
	}
	sender.err = nil
	if err := svc.HandleEmailRequested(context.Background(), msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d emails after retry, want 1", len(sender.sent))
	}
}

func TestServiceDropsPermanentRejection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		drop bool
	}{
		{"mailbox unavailable", &textproto.Error{Code: 550, Msg: "no such user"}, true},
		{"wrapped 5xx", errors.Wrap(&textproto.Error{Code: 553, Msg: "bad address"}, "smtp send"), true},
		{"no recipients", errNoRecipients, true},
		{"greylisted", &textproto.Error{Code: 451, Msg: "try later"}, false},
		{"network", errors.New("dial tcp: connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &Service{Dedup: &memDedup{}, Sender: &fakeSender{err: tt.err}, ServiceName: "notifier"}
			err := svc.HandleEmailRequested(context.Background(), envelopeMessage(t, "ev-p", EventEmailRequested))
			if got := err == nil; got != tt.drop {
				t.Errorf("dropped = %v, want %v (err %v)", got, tt.drop, err)
			}
		})
	}
}

func TestServiceIgnoresOtherEvents(t *testing.T) {
	sender := &fakeSender{}
	svc := &Service{Sender: sender}
	if err := svc.HandleEmailRequested(context.Background(), envelopeMessage(t, "ev-3", "Other")); err != nil {
		t.Fatal(err)
	}
	if err := svc.HandleEmailRequested(context.Background(), kafkago.Message{Value: []byte("{")}); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("sent %d emails, want 0", len(sender.sent))
	}
}

func TestSMTPMailerBuildsMultipart(t *testing.T) {
	var gotTo []string
	var gotMsg string
	m := &SMTPMailer{
		Addr: "relay:1025",
		From: "noreply@example.com",
		send: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotTo, gotMsg = to, string(msg)
			return nil
		},
	}
	err := m.Send(context.Background(), EmailRequestedPayload{
		To:      []string{"a@example.com", "b@example.com"},
		Subject: "Order Confirmation",
		Body:    "plain body",
		HTML:    "<p>html body</p>",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(gotTo) != 2 {
		t.Errorf("recipients = %v", gotTo)
	}
	for _, want := range []string{
		"From: noreply@example.com\r\n",
		"To: a@example.com, b@example.com\r\n",
		"Subject: Order Confirmation\r\n",
		"multipart/alternative",
		"plain body",
		"<p>html body</p>",
	} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSMTPMailerRequiresRecipients(t *testing.T) {
	m := &SMTPMailer{send: func(string, smtp.Auth, string, []string, []byte) error { return nil }}
	if err := m.Send(context.Background(), EmailRequestedPayload{}); err == nil {
		t.Fatal("expected error")
	}
}
