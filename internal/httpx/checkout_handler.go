package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	"github.com/ariefcatur/storefront-checkout/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
)

// Idempotency replays completed checkouts keyed by caller and client key.
type Idempotency interface {
	Claim(ctx context.Context, userID, key string) ([]byte, error)
	Complete(ctx context.Context, userID, key string, body []byte) error
	Release(ctx context.Context, userID, key string) error
}

var _ Idempotency = (*redisx.Store)(nil)

type CheckoutHandler struct {
	Engine *checkout.Engine
	Idem   Idempotency // optional
	Log    *slog.Logger
}

type checkoutReq struct {
	ShippingAddress string `json:"shipping_address"`
	PaymentMethod   string `json:"payment_method"`
	CouponCode      string `json:"coupon_code"`
}

type previewReq struct {
	CouponCode string `json:"coupon_code"`
}

const maxIdempotencyKey = 128

// Register mounts the routes on an authenticated router.
func (h *CheckoutHandler) Register(r chi.Router) {
	r.Post("/checkout", h.checkout)
	r.Post("/coupons/preview", h.preview)
}

func (h *CheckoutHandler) log() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

func (h *CheckoutHandler) checkout(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req checkoutReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(key) > maxIdempotencyKey {
		writeError(w, h.log(), checkout.InvalidInput("Idempotency-Key is too long"))
		return
	}
	ctx := r.Context()
	if key != "" && h.Idem != nil {
		prev, err := h.Idem.Claim(ctx, p.User.ID, key)
		switch {
		case errors.Is(err, redisx.ErrInFlight):
			writeProblem(w, http.StatusConflict, string(checkout.KindConflict), err.Error())
			return
		case err != nil:
			// replay is best effort; fall through to a normal checkout
			h.log().Warn("idempotency unavailable", "user_id", p.User.ID, "error", err)
			key = ""
		case prev != nil:
			w.Header().Set("Idempotent-Replayed", "true")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write(prev)
			return
		}
	}

	o, err := h.Engine.Checkout(ctx, checkout.Request{
		User:            p.User,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		CouponCode:      req.CouponCode,
	})
	if err != nil {
		if key != "" && h.Idem != nil {
			_ = h.Idem.Release(context.WithoutCancel(ctx), p.User.ID, key)
		}
		writeError(w, h.log(), err)
		return
	}

	body, err := json.Marshal(toOrderView(o))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	if key != "" && h.Idem != nil {
		if err := h.Idem.Complete(context.WithoutCancel(ctx), p.User.ID, key, body); err != nil {
			h.log().Warn("store idempotent response", "order_id", o.ID, "error", err)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

func (h *CheckoutHandler) preview(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req previewReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	q, c, err := h.Engine.Preview(r.Context(), p.User.ID, req.CouponCode)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, toPreviewView(q, c))
}
