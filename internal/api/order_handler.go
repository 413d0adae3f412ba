package api

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/metrics"
	"github.com/kkkkikiki/pizzeria/internal/notify"
	"github.com/kkkkikiki/pizzeria/internal/order"
	"github.com/kkkkikiki/pizzeria/internal/payment"
)

const maxWebhookBytes = 64 << 10

// CreateOrder handles POST /pedido: a priced sale awaiting payment.
func (s *Server) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req order.OrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sale, err := s.orders.Place(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSaleView(sale))
}

// GetOrder handles GET /pedido/{ref} by id or order code
func (s *Server) GetOrder(w http.ResponseWriter, r *http.Request) {
	sale, err := s.orders.Get(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSaleView(sale))
}

// CreateCheckoutSession handles POST /checkout-session
func (s *Server) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req payment.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	session, err := s.checkout.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type confirmRequest struct {
	SessionID string `json:"sessionId"`
	OrderCode string `json:"orderCode"`
}

type confirmResponse struct {
	OK            bool            `json:"ok"`
	Replay        bool            `json:"replay"`
	Path          payment.Path    `json:"path"`
	Sale          saleView        `json:"sale"`
	Notifications []notify.Result `json:"notifications,omitempty"`
}

// ConfirmCheckout handles POST /checkout/confirm, the client-initiated
// confirmation path.
func (s *Server) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var (
		out *payment.Outcome
		err error
	)
	switch {
	case req.SessionID != "":
		out, err = s.reconciler.ConfirmSession(r.Context(), req.SessionID)
	case req.OrderCode != "":
		out, err = s.reconciler.ConfirmOrderCode(r.Context(), req.OrderCode)
	default:
		err = apperr.Validation(apperr.BadRequest, "sessionId or orderCode is required")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, confirmResponse{
		OK:            true,
		Replay:        out.Replay,
		Path:          out.Path,
		Sale:          newSaleView(out.Sale),
		Notifications: out.Notifications,
	})
}

// StripeWebhook handles POST /stripe/webhook. Once the signature checks
// out the event is acknowledged whatever the reconciliation outcome, so
// Stripe does not redeliver it.
func (s *Server) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, r, apperr.Validation(apperr.BadRequest, "unreadable body"))
		return
	}

	eventType, sig, err := payment.ParseWebhook(payload, r.Header.Get("Stripe-Signature"), s.webhookSecret)
	if err != nil {
		if errors.Is(err, payment.ErrBadSignature) {
			log.Printf("stage=webhook.verify error: %v", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_signature"})
			return
		}
		log.Printf("stage=webhook.decode type=%s error: %v", eventType, err)
		writeJSON(w, http.StatusOK, map[string]interface{}{"received": true})
		return
	}
	metrics.RecordWebhookEvent(string(eventType))

	if sig != nil {
		// failures are logged by the reconciler; a dropped connection must
		// not abort a half-applied confirmation
		_, _ = s.reconciler.Confirm(context.WithoutCancel(r.Context()), *sig)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"received": true})
}
