package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/monitoring"
	"ms-boxoffice/internal/utils"

	"github.com/google/uuid"
)

type OrderStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	Transition(ctx context.Context, orderID string, from []models.OrderStatus, to models.OrderStatus, payment models.PaymentState, reason string) (bool, error)
}

type PaymentStore interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	UpdateStatus(ctx context.Context, paymentID string, status models.PaymentStatus, rawResponse string) error
}

type Inventory interface {
	Commit(ctx context.Context, token string) error
	Release(ctx context.Context, token string) error
}

type Issuer interface {
	Issue(ctx context.Context, order *models.Order) ([]models.Ticket, error)
}

type Publisher interface {
	Publish(topic, key string, value []byte) error
}

type Topics struct {
	OrderPaid      string
	OrderCancelled string
}

// Processor drives a charge attempt through the order, inventory and
// ticketing state machines. Every transition is conditional so a retry or
// a concurrent expiry sweep can never double-charge or double-issue.
type Processor struct {
	Orders         OrderStore
	Payments       PaymentStore
	Inventory      Inventory
	Issuer         Issuer
	Gateway        Gateway
	Kafka          Publisher
	Logger         *logger.Logger
	GatewayTimeout time.Duration
	IssueRetries   int
	// RetryInterval spaces out background issuance attempts.
	RetryInterval time.Duration
	// AppCtx is the process lifetime; background issuance stops when it is
	// cancelled so shutdown is not held hostage by retry sleeps.
	AppCtx context.Context
	Topics Topics
}

func NewProcessor(appCtx context.Context, orders OrderStore, payments PaymentStore, inv Inventory, issuer Issuer, gateway Gateway, kafka Publisher, log *logger.Logger, gatewayTimeout time.Duration, issueRetries int, topics Topics) *Processor {
	return &Processor{
		Orders:         orders,
		Payments:       payments,
		Inventory:      inv,
		Issuer:         issuer,
		Gateway:        gateway,
		Kafka:          kafka,
		Logger:         log,
		GatewayTimeout: gatewayTimeout,
		IssueRetries:   issueRetries,
		RetryInterval:  10 * time.Second,
		AppCtx:         appCtx,
		Topics:         topics,
	}
}

func (p *Processor) Process(ctx context.Context, orderID, method string) (*models.ProcessPaymentResponse, error) {
	if method == "" {
		return nil, &models.ValidationError{Field: "method", Reason: "required"}
	}

	order, err := p.Orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Finalized() {
		return nil, models.ErrAlreadyFinalized
	}

	payment := &models.Payment{
		ID:            uuid.NewString(),
		TransactionID: utils.GenerateTransactionID(),
		OrderID:       order.ID,
		Amount:        order.Total,
		Method:        method,
		Status:        models.PaymentPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := p.Payments.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to record payment attempt for order %s: %w", order.ID, err)
	}

	chargeCtx, cancel := context.WithTimeout(ctx, p.GatewayTimeout)
	defer cancel()

	result, err := p.Gateway.Charge(chargeCtx, order.Total, method, payment.TransactionID)
	if err != nil {
		p.Logger.Error("PAYMENT", fmt.Sprintf("gateway error for order %s: %v", order.ID, err))
		p.failOrder(ctx, order, payment, fmt.Sprintf(`{"error":%q}`, err.Error()))
		return nil, models.ErrPaymentFailed
	}
	if !result.Success {
		p.Logger.LogOrder("PAYMENT_DECLINED", order.ID, "gateway declined the charge")
		p.failOrder(ctx, order, payment, result.RawResponse)
		return nil, models.ErrPaymentFailed
	}

	// Charge approved. Move the order to paid before any side effect so a
	// concurrent expiry sweep cannot cancel it underneath us.
	ok, err := p.Orders.Transition(ctx, order.ID,
		[]models.OrderStatus{models.OrderPending, models.OrderConfirmed},
		models.OrderPaid, models.PaymentStateCompleted, "")
	if err != nil {
		return nil, fmt.Errorf("failed to finalize order %s after charge: %w", order.ID, err)
	}
	if !ok {
		// The order left pending while the gateway was running (expiry
		// sweep won the race). The charge must not stand.
		p.Logger.Warn("PAYMENT", fmt.Sprintf("order %s was finalized during charge, voiding transaction %s", order.ID, payment.TransactionID))
		if refundErr := p.Gateway.Refund(ctx, payment.TransactionID, payment.Amount, "order expired during payment"); refundErr != nil {
			p.Logger.Error("PAYMENT", fmt.Sprintf("failed to void charge %s: %v", payment.TransactionID, refundErr))
		}
		_ = p.Payments.UpdateStatus(ctx, payment.ID, models.PaymentRefunded, result.RawResponse)
		monitoring.Payment("voided")
		return nil, models.ErrAlreadyFinalized
	}

	if err := p.Payments.UpdateStatus(ctx, payment.ID, models.PaymentCompleted, result.RawResponse); err != nil {
		p.Logger.Error("PAYMENT", fmt.Sprintf("failed to mark payment %s completed: %v", payment.ID, err))
	}

	if err := p.Inventory.Commit(ctx, order.HoldToken); err != nil {
		// Commit is idempotent; a later issuance retry path will not
		// re-sell the seats, so log loudly and carry on.
		p.Logger.Error("PAYMENT", fmt.Sprintf("failed to commit seats for paid order %s: %v", order.ID, err))
	}

	order.Status = models.OrderPaid
	order.PaymentStatus = models.PaymentStateCompleted
	if err := p.issueWithRetry(ctx, order); err != nil {
		p.Logger.Error("PAYMENT", fmt.Sprintf("ticket issuance still failing for paid order %s, retrying in background: %v", order.ID, err))
		go p.backgroundIssue(order)
	}

	monitoring.Payment("completed")
	p.Logger.LogOrder("PAYMENT", order.ID, fmt.Sprintf("payment %s completed, transaction %s", payment.ID, payment.TransactionID))
	p.publishOrder(p.Topics.OrderPaid, order)

	return &models.ProcessPaymentResponse{
		Success:     true,
		PaymentID:   payment.ID,
		OrderStatus: models.OrderPaid,
	}, nil
}

// failOrder rolls a declined or errored charge back: the payment and the
// order are marked failed and the held seats go back to the pool. No order
// is ever left payment-ambiguous.
func (p *Processor) failOrder(ctx context.Context, order *models.Order, payment *models.Payment, rawResponse string) {
	if err := p.Payments.UpdateStatus(ctx, payment.ID, models.PaymentFailed, rawResponse); err != nil {
		p.Logger.Error("PAYMENT", fmt.Sprintf("failed to mark payment %s failed: %v", payment.ID, err))
	}

	ok, err := p.Orders.Transition(ctx, order.ID,
		[]models.OrderStatus{models.OrderPending, models.OrderConfirmed},
		models.OrderCancelled, models.PaymentStateFailed, "payment failed")
	if err != nil {
		p.Logger.Error("PAYMENT", fmt.Sprintf("failed to cancel order %s after payment failure: %v", order.ID, err))
		return
	}
	if ok {
		if err := p.Inventory.Release(ctx, order.HoldToken); err != nil {
			p.Logger.Error("PAYMENT", fmt.Sprintf("failed to release seats for order %s: %v", order.ID, err))
		}
		order.Status = models.OrderCancelled
		order.PaymentStatus = models.PaymentStateFailed
		p.publishOrder(p.Topics.OrderCancelled, order)
	}
	monitoring.Payment("failed")
}

func (p *Processor) issueWithRetry(ctx context.Context, order *models.Order) error {
	retries := p.IssueRetries
	if retries < 1 {
		retries = 1
	}
	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		if _, err = p.Issuer.Issue(ctx, order); err == nil {
			return nil
		}
		p.Logger.Warn("PAYMENT", fmt.Sprintf("ticket issuance attempt %d/%d failed for order %s: %v", attempt, retries, order.ID, err))
	}
	return err
}

// backgroundIssue keeps retrying issuance for a paid order so a storage
// blip never turns into a lost sale. Issuance is idempotent per seat, so
// overlapping retries are harmless. The loop lives on the application
// context and exits as soon as shutdown cancels it.
func (p *Processor) backgroundIssue(order *models.Order) {
	appCtx := p.AppCtx
	if appCtx == nil {
		appCtx = context.Background()
	}
	interval := p.RetryInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()
	for attempt := 0; attempt < 10; attempt++ {
		select {
		case <-appCtx.Done():
			p.Logger.Warn("PAYMENT", fmt.Sprintf("shutting down, abandoning background issuance for order %s", order.ID))
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(appCtx, 30*time.Second)
		_, err := p.Issuer.Issue(ctx, order)
		cancel()
		if err == nil {
			p.Logger.LogOrder("ISSUE_RECOVERED", order.ID, "tickets issued after background retry")
			return
		}
		timer.Reset(interval)
	}
	p.Logger.Error("PAYMENT", fmt.Sprintf("giving up background issuance for order %s; manual intervention required", order.ID))
}

func (p *Processor) publishOrder(topic string, order *models.Order) {
	if p.Kafka == nil || topic == "" {
		return
	}
	value, err := json.Marshal(order)
	if err != nil {
		return
	}
	if err := p.Kafka.Publish(topic, order.ID, value); err != nil {
		p.Logger.Error("KAFKA", fmt.Sprintf("failed to publish order event for %s: %v", order.ID, err))
	}
}
