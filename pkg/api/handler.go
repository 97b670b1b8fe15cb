package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mihaimyh/goregistry/pkg/registry"
	"github.com/mihaimyh/goregistry/pkg/webhook/woocommerce"
)

const (
	standingActive   = "active"
	standingExpired  = "expired"
	standingInactive = "inactive"
	standingTrashed  = "trashed"
	maxKeyLen        = 255
)

// Handler provides HTTP endpoints for registration inspection
type Handler struct {
	config Config
}

// GetOrderRegistrations returns every registration stored for an order.
func (h *Handler) GetOrderRegistrations(w http.ResponseWriter, r *http.Request) {
	if !h.config.Authorize(r) {
		h.handleError(w, r, fmt.Errorf("unauthorized"), http.StatusUnauthorized)
		return
	}

	orderID, host, err := h.config.GetOrder(r)
	if err != nil {
		h.handleError(w, r, err, http.StatusBadRequest)
		return
	}
	host = woocommerce.SourceHost(host)

	prefix := woocommerce.TransactionID(orderID, host)
	recs, err := h.config.Registry.FindByTransactionPrefix(r.Context(), prefix)
	if err != nil {
		h.handleError(w, r, fmt.Errorf("failed to find registrations: %w", err), statusFor(err))
		return
	}

	response := OrderResponse{OrderID: orderID, Host: host, Registrations: make([]RegistrationView, 0, len(recs))}
	for _, rec := range recs {
		// 12|host must not match 12|host.example
		if rec.TransactionID != prefix && !strings.HasPrefix(rec.TransactionID, prefix+"|") {
			continue
		}
		response.Registrations = append(response.Registrations, h.view(rec))
	}
	writeJSON(w, http.StatusOK, response)
}

// GetRegistration returns one registration by registry key.
func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	if !h.config.Authorize(r) {
		h.handleError(w, r, fmt.Errorf("unauthorized"), http.StatusUnauthorized)
		return
	}

	key := strings.TrimSpace(h.config.GetKey(r))
	if key == "" || len(key) > maxKeyLen {
		h.handleError(w, r, fmt.Errorf("invalid registry key"), http.StatusBadRequest)
		return
	}

	rec, err := h.config.Registry.Get(r.Context(), key)
	if err != nil {
		h.handleError(w, r, fmt.Errorf("failed to get registration: %w", err), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, h.view(rec))
}

func (h *Handler) view(rec *registry.Record) RegistrationView {
	v := RegistrationView{
		Key:           rec.Key,
		TransactionID: rec.TransactionID,
		Product:       rec.Product,
		Status:        string(rec.Status),
		Standing:      h.standing(rec),
		Effective:     rec.Effective,
		Expires:       rec.Expires,
		NextPay:       rec.NextPay,
		Email:         rec.Email,
		UpdatedAt:     rec.UpdatedAt,
	}
	for _, variation := range rec.Variations {
		v.Variations = append(v.Variations, variation.SKU)
	}
	return v
}

// standing folds status, trash flag and expiration into one answer.
func (h *Handler) standing(rec *registry.Record) string {
	switch {
	case rec.Trashed:
		return standingTrashed
	case rec.Status != registry.StatusActive && rec.Status != registry.StatusTrial &&
		rec.Status != registry.StatusPendingCancel:
		return standingInactive
	case rec.Expires != nil && rec.Expires.Before(h.config.Now()):
		return standingExpired
	default:
		return standingActive
	}
}

func statusFor(err error) int {
	return registry.NewAPIError(err).Code
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}
	writeJSON(w, statusCode, map[string]string{"error": err.Error()})
}
