package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	kafkax "github.com/ariefcatur/storefront-checkout/internal/kafka"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher is the part of kafkax.Producer the dispatcher needs.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

var _ Publisher = (*kafkax.Producer)(nil)

// KafkaDispatcher publishes each message as an EmailRequested envelope.
type KafkaDispatcher struct {
	Producer    Publisher
	ServiceName string
	Now         func() time.Time
}

var _ checkout.Dispatcher = (*KafkaDispatcher)(nil)

func (d *KafkaDispatcher) Dispatch(ctx context.Context, m checkout.Message) error {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventEmailRequested,
		EventVersion:  1,
		OccurredAt:    now().UTC(),
		Producer:      d.ServiceName,
		CorrelationID: m.OrderID,
		Payload: kafkax.MustMarshal(EmailRequestedPayload{
			Template: m.Template,
			OrderID:  m.OrderID,
			To:       m.To,
			Subject:  m.Subject,
			Body:     m.Body,
			HTML:     m.HTML,
		}),
	}
	err := d.Producer.Publish(ctx, PartitionKey(m.OrderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventEmailRequested)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	if err != nil {
		return errors.Wrap(err, "publish notification")
	}
	return nil
}

// LogDispatcher writes messages to the log instead of delivering them.
type LogDispatcher struct {
	Log *slog.Logger
}

var _ checkout.Dispatcher = (*LogDispatcher)(nil)

func (d *LogDispatcher) Dispatch(ctx context.Context, m checkout.Message) error {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "notification",
		"template", m.Template,
		"order_id", m.OrderID,
		"to", m.To,
		"subject", m.Subject,
	)
	return nil
}
