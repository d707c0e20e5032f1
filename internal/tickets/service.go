package tickets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/monitoring"
	"ms-boxoffice/internal/tickets/qr"
	"ms-boxoffice/internal/utils"

	"github.com/google/uuid"
)

type DBLayer interface {
	CreateTicket(ctx context.Context, ticket *models.Ticket) (*models.Ticket, error)
	GetByID(ctx context.Context, id string) (*models.Ticket, error)
	GetByTicketNumber(ctx context.Context, ticketNumber string) (*models.Ticket, error)
	ListByOrder(ctx context.Context, orderID string) ([]models.Ticket, error)
	ListByCustomer(ctx context.Context, customerID, email string) ([]models.Ticket, error)
	MarkUsed(ctx context.Context, ticketID, validator, location string) (bool, error)
}

type Publisher interface {
	Publish(topic, key string, value []byte) error
}

type Topics struct {
	Issued    string
	Validated string
}

type Service struct {
	DB           DBLayer
	Signer       *qr.Signer
	Kafka        Publisher
	Logger       *logger.Logger
	RefundCutoff time.Duration
	Topics       Topics
}

func NewService(db DBLayer, signer *qr.Signer, kafka Publisher, log *logger.Logger, refundCutoff time.Duration, topics Topics) *Service {
	return &Service{
		DB:           db,
		Signer:       signer,
		Kafka:        kafka,
		Logger:       log,
		RefundCutoff: refundCutoff,
		Topics:       topics,
	}
}

// Issue creates one ticket per seat of a paid order. Issuance is idempotent:
// the (order, seat) unique index turns a retry into a read of the tickets
// already issued, so calling Issue twice never duplicates a ticket.
func (s *Service) Issue(ctx context.Context, order *models.Order) ([]models.Ticket, error) {
	if order.Status != models.OrderPaid {
		return nil, fmt.Errorf("order %s is %s, not paid: %w", order.ID, order.Status, models.ErrInvalidState)
	}

	now := time.Now().UTC()
	issued := make([]models.Ticket, 0, len(order.Items))

	for _, item := range order.Items {
		ticket := models.Ticket{
			ID:             uuid.NewString(),
			TicketNumber:   utils.GenerateTicketNumber(),
			OrderID:        order.ID,
			EventKind:      order.EventKind,
			EventID:        order.EventID,
			ShowInstanceID: order.ShowInstanceID,
			ShowDate:       order.ShowDate,
			Venue:          order.Venue,
			CustomerID:     order.CustomerID,
			CustomerEmail:  order.CustomerEmail,
			SeatNumber:     item.SeatNumber,
			SeatType:       item.SeatType,
			Price:          item.UnitPrice,
			Status:         models.TicketActive,
			IsRefundable:   true,
			RefundDeadline: order.ShowDate.Add(-s.RefundCutoff),
			IssuedAt:       now,
		}

		payload := models.QRTicketPayload{
			TicketID:     ticket.ID,
			TicketNumber: ticket.TicketNumber,
			EventID:      ticket.EventID,
			CustomerRef:  ticket.CustomerEmail,
			Price:        ticket.Price,
			Status:       ticket.Status,
		}
		signed, err := s.Signer.Sign(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to sign qr payload for seat %d: %w", item.SeatNumber, err)
		}
		ticket.QRPayload = signed
		if ticket.QRCode, err = s.Signer.EncodePNG(signed); err != nil {
			return nil, fmt.Errorf("failed to render qr for seat %d: %w", item.SeatNumber, err)
		}

		stored, err := s.DB.CreateTicket(ctx, &ticket)
		if err != nil {
			return nil, fmt.Errorf("failed to store ticket for seat %d of order %s: %w", item.SeatNumber, order.ID, err)
		}
		if stored.ID == ticket.ID {
			monitoring.TicketIssued()
			s.Logger.LogTicket("ISSUE", stored.ID, fmt.Sprintf("ticket %s issued for seat %d", stored.TicketNumber, stored.SeatNumber))
			s.publishTicket(s.Topics.Issued, stored)
		}
		issued = append(issued, *stored)
	}

	return issued, nil
}

// Validate admits a ticket holder exactly once. The QR payload (or ticket
// number) only locates the record; every decision is made against current
// store state, and the used flip is a conditional update so two gates
// scanning the same ticket admit one person.
func (s *Service) Validate(ctx context.Context, req models.ValidateTicketRequest) (*models.Ticket, error) {
	ticket, err := s.lookup(ctx, req)
	if err != nil {
		monitoring.TicketValidation("invalid")
		return nil, err
	}

	switch ticket.Status {
	case models.TicketUsed:
		monitoring.TicketValidation("already_used")
		return nil, fmt.Errorf("ticket %s already used at %s: %w", ticket.TicketNumber, ticket.UsedAt.Format(time.RFC3339), models.ErrAlreadyUsed)
	case models.TicketCancelled, models.TicketRefunded:
		monitoring.TicketValidation("invalid")
		return nil, fmt.Errorf("ticket %s is %s: %w", ticket.TicketNumber, ticket.Status, models.ErrInvalidState)
	}

	ok, err := s.DB.MarkUsed(ctx, ticket.ID, req.Validator, req.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to mark ticket %s used: %w", ticket.ID, err)
	}
	if !ok {
		// Lost the race to another scanner.
		monitoring.TicketValidation("already_used")
		return nil, fmt.Errorf("ticket %s already used: %w", ticket.TicketNumber, models.ErrAlreadyUsed)
	}

	ticket.Status = models.TicketUsed
	ticket.IsUsed = true
	ticket.UsedAt = time.Now().UTC()
	ticket.UsedBy = req.Validator
	ticket.Location = req.Location

	monitoring.TicketValidation("accepted")
	s.Logger.LogTicket("VALIDATE", ticket.ID, fmt.Sprintf("ticket %s admitted by %s at %s", ticket.TicketNumber, req.Validator, req.Location))
	s.publishTicket(s.Topics.Validated, ticket)
	return ticket, nil
}

func (s *Service) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	return s.DB.GetByID(ctx, id)
}

func (s *Service) ListTickets(ctx context.Context, customerID, email string) ([]models.Ticket, error) {
	return s.DB.ListByCustomer(ctx, customerID, email)
}

func (s *Service) ListOrderTickets(ctx context.Context, orderID string) ([]models.Ticket, error) {
	return s.DB.ListByOrder(ctx, orderID)
}

// lookup resolves the request to a stored ticket. A QR payload must carry a
// valid signature before its ticket id is even looked at.
func (s *Service) lookup(ctx context.Context, req models.ValidateTicketRequest) (*models.Ticket, error) {
	if req.QRPayload != "" {
		payload, err := s.Signer.Verify(req.QRPayload)
		if err != nil {
			if errors.Is(err, qr.ErrBadSignature) {
				return nil, fmt.Errorf("qr signature check failed: %w", models.ErrInvalidState)
			}
			return nil, err
		}
		return s.DB.GetByID(ctx, payload.TicketID)
	}
	if req.TicketNumber != "" {
		return s.DB.GetByTicketNumber(ctx, req.TicketNumber)
	}
	return nil, &models.ValidationError{Field: "ticket", Reason: "qr_payload or ticket_number required"}
}

func (s *Service) publishTicket(topic string, ticket *models.Ticket) {
	if s.Kafka == nil || topic == "" {
		return
	}
	// The QR image does not belong on the bus.
	event := *ticket
	event.QRCode = nil
	value, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.Kafka.Publish(topic, ticket.ID, value); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("failed to publish ticket event for %s: %v", ticket.ID, err))
	}
}
