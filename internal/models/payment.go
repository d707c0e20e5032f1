package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Payment records one charge attempt against an order. The transaction ID
// doubles as the gateway idempotency key; rows are immutable once terminal
// except for a later refund.
type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	ID            string          `bun:"id,pk" json:"id"`
	TransactionID string          `bun:"transaction_id,unique,notnull" json:"transaction_id"`
	OrderID       string          `bun:"order_id,notnull" json:"order_id"`
	Amount        decimal.Decimal `bun:"amount,notnull" json:"amount"`
	Method        string          `bun:"method,notnull" json:"method"`
	Status        PaymentStatus   `bun:"status,notnull" json:"status"`
	RawResponse   string          `bun:"raw_response,nullzero" json:"-"`
	CreatedAt     time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time       `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

type ProcessPaymentRequest struct {
	Method string `json:"method"`
}

type ProcessPaymentResponse struct {
	Success     bool        `json:"success"`
	PaymentID   string      `json:"payment_id"`
	OrderStatus OrderStatus `json:"order_status"`
}
