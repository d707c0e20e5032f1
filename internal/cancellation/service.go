package cancellation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/payment"

	"github.com/shopspring/decimal"
)

type TicketStore interface {
	GetByID(ctx context.Context, id string) (*models.Ticket, error)
	MarkCancelled(ctx context.Context, ticketID, reason string) (bool, error)
	MarkRefunded(ctx context.Context, ticketID, reason string, amount decimal.Decimal) (bool, error)
	CountOpenByOrder(ctx context.Context, orderID string) (int, error)
	ListActiveByShow(ctx context.Context, showInstanceID string) ([]models.Ticket, error)
}

type OrderStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	Transition(ctx context.Context, orderID string, from []models.OrderStatus, to models.OrderStatus, payment models.PaymentState, reason string) (bool, error)
}

type PaymentStore interface {
	ListByOrder(ctx context.Context, orderID string) ([]models.Payment, error)
}

type Inventory interface {
	ReleaseSeats(ctx context.Context, showInstanceID string, seats []int) error
}

type Publisher interface {
	Publish(topic, key string, value []byte) error
}

// Service finalizes tickets after sale: holder-initiated cancellations,
// refunds inside the refund window, and venue-initiated show cancellations.
// Every finalization puts the seat back in the pool.
type Service struct {
	Tickets        TicketStore
	Orders         OrderStore
	Payments       PaymentStore
	Inventory      Inventory
	Gateway        payment.Gateway
	Kafka          Publisher
	Logger         *logger.Logger
	CancelledTopic string
}

func NewService(tickets TicketStore, orders OrderStore, payments PaymentStore, inv Inventory, gateway payment.Gateway, kafka Publisher, log *logger.Logger, cancelledTopic string) *Service {
	return &Service{
		Tickets:        tickets,
		Orders:         orders,
		Payments:       payments,
		Inventory:      inv,
		Gateway:        gateway,
		Kafka:          kafka,
		Logger:         log,
		CancelledTopic: cancelledTopic,
	}
}

// CancelTicket voids one active ticket on the holder's request and releases
// its seat. Other tickets on the same order are untouched; only when the
// last active ticket goes does the order itself flip to cancelled.
func (s *Service) CancelTicket(ctx context.Context, ticketID, customerID, email, reason string) (*models.Ticket, error) {
	ticket, err := s.authorize(ctx, ticketID, customerID, email)
	if err != nil {
		return nil, err
	}
	if time.Now().After(ticket.ShowDate) {
		return nil, fmt.Errorf("show on %s has already occurred: %w", ticket.ShowDate.Format(time.RFC3339), models.ErrEventOccurred)
	}
	if reason == "" {
		reason = "cancelled by customer"
	}

	ok, err := s.Tickets.MarkCancelled(ctx, ticket.ID, reason)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel ticket %s: %w", ticket.ID, err)
	}
	if !ok {
		return nil, fmt.Errorf("ticket %s is %s: %w", ticket.TicketNumber, ticket.Status, models.ErrInvalidState)
	}
	ticket.Status = models.TicketCancelled
	ticket.CancelledAt = time.Now().UTC()
	ticket.CancelReason = reason

	s.releaseSeat(ctx, ticket)
	s.cascadeOrder(ctx, ticket.OrderID, models.OrderCancelled, reason)

	s.Logger.LogTicket("CANCEL", ticket.ID, fmt.Sprintf("ticket %s cancelled: %s", ticket.TicketNumber, reason))
	return ticket, nil
}

// RefundTicket is CancelTicket plus money movement, gated on the refund
// deadline recorded at issue time. A zero amount means the full ticket
// price; anything else must be a positive partial amount within it.
func (s *Service) RefundTicket(ctx context.Context, ticketID, customerID, email string, amount decimal.Decimal, reason string) (*models.Ticket, error) {
	ticket, err := s.authorize(ctx, ticketID, customerID, email)
	if err != nil {
		return nil, err
	}
	if time.Now().After(ticket.ShowDate) {
		return nil, fmt.Errorf("show on %s has already occurred: %w", ticket.ShowDate.Format(time.RFC3339), models.ErrEventOccurred)
	}
	if ticket.Status != models.TicketActive {
		return nil, fmt.Errorf("ticket %s is %s: %w", ticket.TicketNumber, ticket.Status, models.ErrInvalidState)
	}
	if !ticket.IsRefundable || time.Now().After(ticket.RefundDeadline) {
		return nil, fmt.Errorf("refund window for ticket %s closed at %s: %w", ticket.TicketNumber, ticket.RefundDeadline.Format(time.RFC3339), models.ErrNotRefundable)
	}
	if amount.IsZero() {
		amount = ticket.Price
	}
	if amount.IsNegative() {
		return nil, &models.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if amount.GreaterThan(ticket.Price) {
		return nil, &models.ValidationError{Field: "amount", Reason: fmt.Sprintf("exceeds ticket price %s", ticket.Price)}
	}
	if reason == "" {
		reason = "refund requested by customer"
	}

	if err := s.refundCharge(ctx, ticket.OrderID, amount, reason); err != nil {
		return nil, err
	}

	ok, err := s.Tickets.MarkRefunded(ctx, ticket.ID, reason, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to mark ticket %s refunded: %w", ticket.ID, err)
	}
	if !ok {
		return nil, fmt.Errorf("ticket %s is no longer active: %w", ticket.TicketNumber, models.ErrInvalidState)
	}
	ticket.Status = models.TicketRefunded
	ticket.RefundAmount = amount
	ticket.RefundReason = reason
	ticket.RefundDate = time.Now().UTC()

	s.releaseSeat(ctx, ticket)
	s.cascadeOrder(ctx, ticket.OrderID, models.OrderRefunded, reason)

	s.Logger.LogTicket("REFUND", ticket.ID, fmt.Sprintf("ticket %s refunded %s", ticket.TicketNumber, amount))
	return ticket, nil
}

// CancelShow voids every active ticket of a removed show instance.
// Venue-initiated, so no per-holder authorization and no deadline check.
// The ticket always ends cancelled; the monetary refund is attempted per
// ticket and logged on failure so finance can replay it, never blocking
// the cancellation itself.
func (s *Service) CancelShow(ctx context.Context, showInstanceID, reason string) (int, error) {
	if reason == "" {
		reason = "event removed"
	}

	tickets, err := s.Tickets.ListActiveByShow(ctx, showInstanceID)
	if err != nil {
		return 0, fmt.Errorf("failed to list tickets for show %s: %w", showInstanceID, err)
	}

	cancelled := 0
	for i := range tickets {
		ticket := &tickets[i]
		ok, err := s.Tickets.MarkCancelled(ctx, ticket.ID, reason)
		if err != nil {
			s.Logger.Error("CANCEL", fmt.Sprintf("failed to cancel ticket %s of show %s: %v", ticket.ID, showInstanceID, err))
			continue
		}
		if !ok {
			continue
		}
		if err := s.refundCharge(ctx, ticket.OrderID, ticket.Price, reason); err != nil {
			s.Logger.Error("CANCEL", fmt.Sprintf("refund pending for ticket %s of show %s: %v", ticket.ID, showInstanceID, err))
		}
		s.releaseSeat(ctx, ticket)
		s.cascadeOrder(ctx, ticket.OrderID, models.OrderCancelled, reason)
		cancelled++
	}

	s.Logger.Info("CANCEL", fmt.Sprintf("show %s removed, %d/%d tickets cancelled", showInstanceID, cancelled, len(tickets)))
	return cancelled, nil
}

// authorize loads the ticket and checks the caller owns it. A customer id
// match wins; otherwise the email on the ticket must match.
func (s *Service) authorize(ctx context.Context, ticketID, customerID, email string) (*models.Ticket, error) {
	ticket, err := s.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if customerID != "" && ticket.CustomerID == customerID {
		return ticket, nil
	}
	if email != "" && ticket.CustomerEmail == email {
		return ticket, nil
	}
	return nil, models.ErrForbidden
}

// refundCharge reverses (part of) the completed payment behind an order.
func (s *Service) refundCharge(ctx context.Context, orderID string, amount decimal.Decimal, reason string) error {
	payments, err := s.Payments.ListByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load payments for order %s: %w", orderID, err)
	}
	for _, p := range payments {
		if p.Status == models.PaymentCompleted {
			if err := s.Gateway.Refund(ctx, p.TransactionID, amount, reason); err != nil {
				return fmt.Errorf("gateway refund failed for transaction %s: %w", p.TransactionID, err)
			}
			return nil
		}
	}
	return fmt.Errorf("no completed payment found for order %s: %w", orderID, models.ErrInvalidState)
}

func (s *Service) releaseSeat(ctx context.Context, ticket *models.Ticket) {
	if err := s.Inventory.ReleaseSeats(ctx, ticket.ShowInstanceID, []int{ticket.SeatNumber}); err != nil {
		s.Logger.Error("CANCEL", fmt.Sprintf("failed to release seat %d of show %s: %v", ticket.SeatNumber, ticket.ShowInstanceID, err))
	}
}

// cascadeOrder finalizes the order once no ticket on it holds value any
// more. Used tickets count as held value, so an order with an attended
// seat stays paid no matter what happens to its siblings.
func (s *Service) cascadeOrder(ctx context.Context, orderID string, to models.OrderStatus, reason string) {
	remaining, err := s.Tickets.CountOpenByOrder(ctx, orderID)
	if err != nil {
		s.Logger.Error("CANCEL", fmt.Sprintf("failed to count open tickets for order %s: %v", orderID, err))
		return
	}
	if remaining > 0 {
		return
	}

	paymentState := models.PaymentState("")
	if to == models.OrderRefunded {
		paymentState = models.PaymentStateRefunded
	}
	ok, err := s.Orders.Transition(ctx, orderID, []models.OrderStatus{models.OrderPaid}, to, paymentState, reason)
	if err != nil {
		s.Logger.Error("CANCEL", fmt.Sprintf("failed to finalize order %s: %v", orderID, err))
		return
	}
	if ok {
		s.Logger.LogOrder("CANCEL", orderID, fmt.Sprintf("order finalized as %s: no active tickets remain", to))
		s.publishOrder(ctx, orderID)
	}
}

func (s *Service) publishOrder(ctx context.Context, orderID string) {
	if s.Kafka == nil || s.CancelledTopic == "" {
		return
	}
	order, err := s.Orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return
	}
	value, err := json.Marshal(order)
	if err != nil {
		return
	}
	if err := s.Kafka.Publish(s.CancelledTopic, order.ID, value); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("failed to publish order event for %s: %v", order.ID, err))
	}
}
