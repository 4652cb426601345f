package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	"github.com/ariefcatur/storefront-checkout/internal/redisx"
	"github.com/go-chi/chi/v5"
)

// OrderCache holds rendered order bodies per cache generation.
// InvalidateOrder moves an order to a new generation.
type OrderCache interface {
	OrderGeneration(ctx context.Context, orderID string) (int64, error)
	CachedOrder(ctx context.Context, orderID string, gen int64) ([]byte, bool)
	CacheOrder(ctx context.Context, orderID string, gen int64, body []byte) error
	InvalidateOrder(ctx context.Context, orderID string) error
}

var _ OrderCache = (*redisx.Store)(nil)

type OrdersHandler struct {
	Orders *checkout.Orders
	Cache  OrderCache // optional
	Log    *slog.Logger
}

type statusReq struct {
	OrderStatus string `json:"order_status"`
}

// Register mounts the routes on an authenticated router.
func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.With(RequireAdmin).Patch("/admin/orders/{id}/status", h.updateStatus)
}

func (h *OrdersHandler) log() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	orders, err := h.Orders.History(r.Context(), p.User.ID)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	out := make([]orderView, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderView(&orders[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	orderID := chi.URLParam(r, "id")
	ctx := r.Context()

	// The generation is read before the store so that a body loaded ahead
	// of a concurrent status update is cached under a generation nobody reads.
	cached := false
	var gen int64
	if h.Cache != nil {
		var err error
		gen, err = h.Cache.OrderGeneration(ctx, orderID)
		cached = err == nil
	}

	// cached bodies still need the ownership check
	if cached {
		if b, ok := h.Cache.CachedOrder(ctx, orderID, gen); ok {
			var v orderView
			if json.Unmarshal(b, &v) == nil && (p.Admin || v.User == p.User.ID) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(b)
				return
			}
		}
	}

	o, err := h.Orders.Get(ctx, orderID, p.User.ID, p.Admin)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	b, err := json.Marshal(toOrderView(o))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	if cached {
		_ = h.Cache.CacheOrder(ctx, orderID, gen, b)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	orderID := chi.URLParam(r, "id")
	o, err := h.Orders.UpdateStatus(r.Context(), orderID, checkout.Status(req.OrderStatus))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	if h.Cache != nil {
		if err := h.Cache.InvalidateOrder(context.WithoutCancel(r.Context()), orderID); err != nil {
			h.log().Warn("invalidate order cache", "order_id", orderID, "error", err)
		}
	}
	h.log().Info("order status updated", "order_id", o.ID, "order_status", o.Status)
	writeJSON(w, http.StatusOK, toOrderView(o))
}
