package cancel_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-boxoffice/internal/cancellation"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Handler struct {
	Cancellations *cancellation.Service
	Logger        *logger.Logger
}

func NewHandler(service *cancellation.Service, log *logger.Logger) *Handler {
	return &Handler{Cancellations: service, Logger: log}
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// refundRequest carries an optional partial amount; zero means the full
// ticket price.
type refundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

func (h *Handler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")
	customerID := r.Header.Get("X-Customer-ID")
	email := r.Header.Get("X-Customer-Email")

	var req cancelRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	ticket, err := h.Cancellations.CancelTicket(r.Context(), ticketID, customerID, email, req.Reason)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CancelTicket: ticket %s: %v", ticketID, err))
		utils.WriteError(w, err)
		return
	}

	ticket.QRCode = nil
	utils.WriteJSON(w, http.StatusOK, "ticket cancelled", ticket)
}

func (h *Handler) RefundTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")
	customerID := r.Header.Get("X-Customer-ID")
	email := r.Header.Get("X-Customer-Email")

	var req refundRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	ticket, err := h.Cancellations.RefundTicket(r.Context(), ticketID, customerID, email, req.Amount, req.Reason)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("RefundTicket: ticket %s: %v", ticketID, err))
		utils.WriteError(w, err)
		return
	}

	ticket.QRCode = nil
	utils.WriteJSON(w, http.StatusOK, "ticket refunded", ticket)
}

// CancelShow is the venue-side bulk cancellation, normally driven by the
// catalog service rather than a customer.
func (h *Handler) CancelShow(w http.ResponseWriter, r *http.Request) {
	showID := chi.URLParam(r, "showId")

	var req cancelRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	cancelled, err := h.Cancellations.CancelShow(r.Context(), showID, req.Reason)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CancelShow: show %s: %v", showID, err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "show cancelled", map[string]int{"tickets_cancelled": cancelled})
}
