package order_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/order"
	"ms-boxoffice/internal/payment"
	"ms-boxoffice/internal/utils"

	"github.com/go-chi/chi/v5"
)

type TicketLister interface {
	ListOrderTickets(ctx context.Context, orderID string) ([]models.Ticket, error)
}

type Handler struct {
	Orders    *order.Service
	Processor *payment.Processor
	Tickets   TicketLister
	Logger    *logger.Logger
}

func NewHandler(orders *order.Service, processor *payment.Processor, tickets TicketLister, log *logger.Logger) *Handler {
	return &Handler{
		Orders:    orders,
		Processor: processor,
		Tickets:   tickets,
		Logger:    log,
	}
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateOrder: failed to decode request body: %v", err))
		utils.WriteError(w, &models.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}

	summary, err := h.Orders.CreateOrder(r.Context(), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateOrder: %v", err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, "order created", summary)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	orderData, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetOrder: order %s: %v", orderID, err))
		utils.WriteError(w, err)
		return
	}

	tickets, err := h.Tickets.ListOrderTickets(r.Context(), orderID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetOrder: tickets for order %s: %v", orderID, err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "order", models.OrderWithTickets{Order: *orderData, Tickets: tickets})
}

// ListOrders returns the caller's orders with their issued tickets,
// identified by the gateway-set customer headers.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	customerID := r.Header.Get("X-Customer-ID")
	email := r.Header.Get("X-Customer-Email")
	if customerID == "" && email == "" {
		utils.WriteError(w, &models.ValidationError{Field: "customer", Reason: "X-Customer-ID or X-Customer-Email header required"})
		return
	}

	orders, err := h.Orders.ListOrders(r.Context(), customerID, email)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListOrders: %v", err))
		utils.WriteError(w, err)
		return
	}

	listing := make([]models.OrderWithTickets, 0, len(orders))
	for _, o := range orders {
		tickets, err := h.Tickets.ListOrderTickets(r.Context(), o.ID)
		if err != nil {
			h.Logger.Error("API", fmt.Sprintf("ListOrders: tickets for order %s: %v", o.ID, err))
			utils.WriteError(w, err)
			return
		}
		listing = append(listing, models.OrderWithTickets{Order: o, Tickets: tickets})
	}

	utils.WriteJSON(w, http.StatusOK, "orders", listing)
}

func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	if err := h.Orders.ConfirmOrder(r.Context(), orderID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ConfirmOrder: order %s: %v", orderID, err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "order confirmed", nil)
}

func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var req models.ProcessPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ProcessPayment: failed to decode request body: %v", err))
		utils.WriteError(w, &models.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}

	resp, err := h.Processor.Process(r.Context(), orderID, req.Method)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ProcessPayment: order %s: %v", orderID, err))
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "payment completed", resp)
}
