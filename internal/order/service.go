package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/monitoring"
	"ms-boxoffice/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DBLayer interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	ListByCustomer(ctx context.Context, customerID, email string) ([]models.Order, error)
	ExpiredPending(ctx context.Context, now time.Time) ([]models.Order, error)
	Transition(ctx context.Context, orderID string, from []models.OrderStatus, to models.OrderStatus, payment models.PaymentState, reason string) (bool, error)
}

type Inventory interface {
	EnsureSeatMap(ctx context.Context, showInstanceID string, totalSeats int) error
	Hold(ctx context.Context, showInstanceID string, seats []int, ttl time.Duration) (*models.SeatHold, error)
	Release(ctx context.Context, token string) error
}

type Catalog interface {
	GetShow(ctx context.Context, event models.EventRef, showDate time.Time) (*models.ShowInstance, error)
}

type Publisher interface {
	Publish(topic, key string, value []byte) error
}

type Topics struct {
	Created   string
	Cancelled string
}

type Service struct {
	DB        DBLayer
	Inventory Inventory
	Catalog   Catalog
	Kafka     Publisher
	Logger    *logger.Logger
	OrderTTL  time.Duration
	Topics    Topics
}

func NewService(db DBLayer, inv Inventory, cat Catalog, kafka Publisher, log *logger.Logger, orderTTL time.Duration, topics Topics) *Service {
	return &Service{
		DB:        db,
		Inventory: inv,
		Catalog:   cat,
		Kafka:     kafka,
		Logger:    log,
		OrderTTL:  orderTTL,
		Topics:    topics,
	}
}

// CreateOrder validates the request, holds the seats and records a pending
// order that expires unless paid within the TTL.
func (s *Service) CreateOrder(ctx context.Context, req models.CreateOrderRequest) (*models.OrderSummary, error) {
	if !req.Event.Valid() {
		return nil, &models.ValidationError{Field: "event", Reason: "kind must be movie, play or concert with a non-empty id"}
	}
	if len(req.SelectedSeats) == 0 {
		return nil, &models.ValidationError{Field: "selected_seats", Reason: "at least one seat required"}
	}
	if err := req.Customer.Validate(); err != nil {
		return nil, err
	}
	if req.ShowDate.Before(time.Now()) {
		return nil, &models.ValidationError{Field: "show_date", Reason: "show is in the past"}
	}

	show, err := s.Catalog.GetShow(ctx, req.Event, req.ShowDate)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("catalog lookup failed: %w", err)
	}

	if err := s.Inventory.EnsureSeatMap(ctx, show.ID, show.TotalSeats); err != nil {
		return nil, fmt.Errorf("failed to prepare seat map for show %s: %w", show.ID, err)
	}

	items := make(models.LineItems, 0, len(req.SelectedSeats))
	for _, seat := range req.SelectedSeats {
		price, ok := show.PriceFor(seat.SeatType)
		if !ok {
			return nil, &models.ValidationError{Field: "seat_type", Reason: fmt.Sprintf("unknown seat type %q", seat.SeatType)}
		}
		items = append(items, models.LineItem{
			SeatNumber: seat.SeatNumber,
			SeatType:   seat.SeatType,
			UnitPrice:  decimal.NewFromFloat(price),
		})
	}

	hold, err := s.Inventory.Hold(ctx, show.ID, items.SeatNumbers(), s.OrderTTL)
	if err != nil {
		var conflict *models.SeatConflictError
		if errors.As(err, &conflict) {
			monitoring.SeatConflict()
			s.Logger.Info("ORDER", fmt.Sprintf("seat conflict on show %s: %v", show.ID, conflict.Seats))
		}
		return nil, err
	}

	pricing := ComputePricing(items)
	now := time.Now().UTC()

	order := &models.Order{
		ID:             uuid.NewString(),
		OrderNumber:    utils.GenerateOrderNumber(),
		CustomerID:     req.Customer.CustomerID,
		CustomerName:   req.Customer.Name,
		CustomerEmail:  req.Customer.Email,
		CustomerPhone:  req.Customer.Phone,
		EventKind:      req.Event.Kind,
		EventID:        req.Event.ID,
		ShowInstanceID: show.ID,
		ShowDate:       show.ShowDate,
		Venue:          show.Venue,
		Items:          items,
		Subtotal:       pricing.Subtotal,
		ServiceFee:     pricing.ServiceFee,
		Tax:            pricing.Tax,
		Total:          pricing.Total,
		Status:         models.OrderPending,
		PaymentStatus:  models.PaymentStatePending,
		HoldToken:      hold.Token,
		ExpiresAt:      now.Add(s.OrderTTL),
		CreatedAt:      now,
	}

	if err := s.DB.CreateOrder(ctx, order); err != nil {
		s.Logger.Error("ORDER", fmt.Sprintf("failed to create order %s, releasing hold: %v", order.ID, err))
		if relErr := s.Inventory.Release(ctx, hold.Token); relErr != nil {
			s.Logger.Error("ORDER", fmt.Sprintf("failed to release hold %s after create failure: %v", hold.Token, relErr))
		}
		return nil, err
	}

	monitoring.OrderCreated()
	s.Logger.LogOrder("CREATE", order.ID, fmt.Sprintf("order %s for %d seats, total %s", order.OrderNumber, len(items), order.Total))
	s.publishOrder(s.Topics.Created, order)

	return &models.OrderSummary{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Total:       order.Total,
		ExpiresAt:   order.ExpiresAt,
	}, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.DB.GetOrderByID(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, customerID, email string) ([]models.Order, error) {
	return s.DB.ListByCustomer(ctx, customerID, email)
}

// ConfirmOrder marks a pending order as confirmed by the customer. The
// order can still be paid or expire from either state.
func (s *Service) ConfirmOrder(ctx context.Context, id string) error {
	ok, err := s.DB.Transition(ctx, id, []models.OrderStatus{models.OrderPending}, models.OrderConfirmed, "", "")
	if err != nil {
		return err
	}
	if !ok {
		order, err := s.DB.GetOrderByID(ctx, id)
		if err != nil {
			return err
		}
		if order.Status == models.OrderConfirmed {
			return nil
		}
		return models.ErrAlreadyFinalized
	}
	return nil
}

// ExpireOrders cancels every pending order past its deadline and releases
// its held seats. The conditional transition makes the sweep safe against
// a concurrent payment: whoever transitions first wins, the other no-ops.
func (s *Service) ExpireOrders(ctx context.Context) error {
	expired, err := s.DB.ExpiredPending(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to list expired orders: %w", err)
	}

	for _, order := range expired {
		ok, err := s.DB.Transition(ctx, order.ID,
			[]models.OrderStatus{models.OrderPending}, models.OrderCancelled, "", "expired")
		if err != nil {
			s.Logger.Error("EXPIRER", fmt.Sprintf("failed to expire order %s: %v", order.ID, err))
			continue
		}
		if !ok {
			// A payment finished first; leave the order alone.
			continue
		}

		if err := s.Inventory.Release(ctx, order.HoldToken); err != nil {
			s.Logger.Error("EXPIRER", fmt.Sprintf("failed to release seats for expired order %s: %v", order.ID, err))
		}

		monitoring.OrderExpired()
		s.Logger.LogOrder("EXPIRE", order.ID, "pending order expired, seats released")
		order.Status = models.OrderCancelled
		order.CancelReason = "expired"
		s.publishOrder(s.Topics.Cancelled, &order)
	}
	return nil
}

func (s *Service) publishOrder(topic string, order *models.Order) {
	if s.Kafka == nil || topic == "" {
		return
	}
	value, err := json.Marshal(order)
	if err != nil {
		return
	}
	if err := s.Kafka.Publish(topic, order.ID, value); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("failed to publish order event for %s: %v", order.ID, err))
	}
}
