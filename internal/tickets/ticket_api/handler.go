package ticket_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/tickets"
	"ms-boxoffice/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Tickets *tickets.Service
	Logger  *logger.Logger
}

func NewHandler(service *tickets.Service, log *logger.Logger) *Handler {
	return &Handler{Tickets: service, Logger: log}
}

// ValidateTicket is the entry-gate scan endpoint.
func (h *Handler) ValidateTicket(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ValidateTicket: failed to decode request body: %v", err))
		utils.WriteError(w, &models.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}

	ticket, err := h.Tickets.Validate(r.Context(), req)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("ValidateTicket: rejected: %v", err))
		utils.WriteError(w, err)
		return
	}

	// The gate only needs the seat and holder, not the QR image.
	ticket.QRCode = nil
	utils.WriteJSON(w, http.StatusOK, "ticket admitted", ticket)
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")

	ticket, err := h.Tickets.GetTicket(r.Context(), ticketID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetTicket: ticket %s: %v", ticketID, err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "ticket", ticket)
}

func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	customerID := r.Header.Get("X-Customer-ID")
	email := r.Header.Get("X-Customer-Email")
	if customerID == "" && email == "" {
		utils.WriteError(w, &models.ValidationError{Field: "customer", Reason: "X-Customer-ID or X-Customer-Email header required"})
		return
	}

	list, err := h.Tickets.ListTickets(r.Context(), customerID, email)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListTickets: %v", err))
		utils.WriteError(w, err)
		return
	}

	for i := range list {
		list[i].QRCode = nil
	}
	utils.WriteJSON(w, http.StatusOK, "tickets", list)
}

// GetTicketQR serves the PNG for printing or wallet apps.
func (h *Handler) GetTicketQR(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")

	ticket, err := h.Tickets.GetTicket(r.Context(), ticketID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetTicketQR: ticket %s: %v", ticketID, err))
		utils.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(ticket.QRCode)
}
