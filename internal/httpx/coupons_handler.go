package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type CouponsHandler struct {
	Coupons *checkout.Coupons
	Log     *slog.Logger
}

type createCouponReq struct {
	CouponCode        string          `json:"coupon_code"`
	DiscountType      string          `json:"discount_type"`
	DiscountValue     decimal.Decimal `json:"discount_value"`
	MinPurchaseAmount decimal.Decimal `json:"min_purchase_amount"`
	StartDate         string          `json:"start_date"`
	EndDate           string          `json:"end_date"`
	MaxUsage          *int            `json:"max_usage"`
}

// Register mounts the routes on an authenticated router.
func (h *CouponsHandler) Register(r chi.Router) {
	r.Get("/coupons", h.listActive)
	r.With(RequireAdmin).Post("/admin/coupons", h.create)
}

func (h *CouponsHandler) log() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

func (h *CouponsHandler) listActive(w http.ResponseWriter, r *http.Request) {
	cs, err := h.Coupons.Active(r.Context())
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	out := make([]couponView, 0, len(cs))
	for i := range cs {
		out = append(out, toCouponView(&cs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *CouponsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createCouponReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		writeError(w, h.log(), checkout.InvalidInput("start_date must be YYYY-MM-DD"))
		return
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		writeError(w, h.log(), checkout.InvalidInput("end_date must be YYYY-MM-DD"))
		return
	}
	c := &checkout.Coupon{
		Code:        req.CouponCode,
		Kind:        checkout.DiscountKind(req.DiscountType),
		Value:       req.DiscountValue,
		MinPurchase: req.MinPurchaseAmount,
		StartDate:   start,
		EndDate:     end,
		MaxUsage:    req.MaxUsage,
	}
	if err := h.Coupons.Create(r.Context(), c); err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.log().Info("coupon created", "coupon_code", c.Code, "discount_type", c.Kind)
	writeJSON(w, http.StatusCreated, toCouponView(c))
}
