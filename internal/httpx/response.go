package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	"github.com/go-faster/errors"
)

type problem struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorBody struct {
	Error problem `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, errorBody{Error: problem{Kind: kind, Message: msg}})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(k checkout.Kind) int {
	switch k {
	case checkout.KindClientInput, checkout.KindEmptyCart,
		checkout.KindCouponInvalid, checkout.KindCouponInapplicable:
		return http.StatusBadRequest
	case checkout.KindInsufficientInventory, checkout.KindConflict:
		return http.StatusConflict
	case checkout.KindNotFound:
		return http.StatusNotFound
	case checkout.KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Unclassified errors are logged and hidden.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var ce *checkout.Error
	if !errors.As(err, &ce) {
		log.Error("unhandled error", "error", err)
		writeProblem(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	code := statusFor(ce.Kind)
	if ce.Retryable() {
		w.Header().Set("Retry-After", "1")
	}
	if code >= http.StatusInternalServerError {
		log.Error("request failed", "kind", ce.Kind, "error", err)
	}
	writeProblem(w, code, string(ce.Kind), ce.Message)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return checkout.InvalidInput("invalid json")
	}
	return nil
}
