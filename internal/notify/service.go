package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	kafkax "github.com/ariefcatur/storefront-checkout/internal/kafka"
	"github.com/ariefcatur/storefront-checkout/internal/redisx"
	"github.com/go-faster/errors"
	kafkago "github.com/segmentio/kafka-go"
)

// Deduper remembers which events were already delivered.
type Deduper interface {
	FirstDelivery(ctx context.Context, service, eventID string) (bool, error)
	Forget(ctx context.Context, service, eventID string) error
}

var _ Deduper = (*redisx.Store)(nil)

// Service is the notifier worker's message handler.
type Service struct {
	Dedup       Deduper
	Sender      Sender
	ServiceName string
	Log         *slog.Logger
}

// HandleEmailRequested is installed as the consumer handler. Returning an
// error makes the consumer retry the message before it commits the offset,
// so malformed or permanently rejected messages are logged and dropped.
func (s *Service) HandleEmailRequested(ctx context.Context, m kafkago.Message) error {
	var env Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.log().Error("drop malformed envelope", "offset", m.Offset, "error", err)
		return nil
	}
	if env.EventType != EventEmailRequested {
		return nil
	}

	if s.Dedup != nil {
		first, err := s.Dedup.FirstDelivery(ctx, s.ServiceName, env.EventID)
		if err != nil {
			s.log().Warn("dedup unavailable", "event_id", env.EventID, "error", err)
		} else if !first {
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[EmailRequestedPayload](env.Payload)
	if err != nil {
		s.log().Error("drop malformed payload", "event_id", env.EventID, "error", err)
		return nil
	}
	if err := s.Sender.Send(ctx, p); err != nil {
		if Permanent(err) {
			s.log().Error("drop rejected notification",
				"event_id", env.EventID,
				"order_id", p.OrderID,
				"template", p.Template,
				"error", err,
			)
			return nil
		}
		if s.Dedup != nil {
			_ = s.Dedup.Forget(ctx, s.ServiceName, env.EventID)
		}
		return errors.Wrapf(err, "deliver %s for order %s", p.Template, p.OrderID)
	}
	s.log().Info("notification delivered",
		"event_id", env.EventID,
		"order_id", p.OrderID,
		"template", p.Template,
	)
	return nil
}

func (s *Service) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}
