package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketActive    TicketStatus = "active"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
	TicketRefunded  TicketStatus = "refunded"
)

// Ticket is one issued, independently verifiable proof of purchase for one
// seat. Issued only after payment succeeds; unique per (order, seat).
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID           string `bun:"id,pk" json:"id"`
	TicketNumber string `bun:"ticket_number,unique,notnull" json:"ticket_number"`
	OrderID      string `bun:"order_id,notnull,unique:order_seat" json:"order_id"`

	EventKind      EventKind `bun:"event_kind,notnull" json:"event_kind"`
	EventID        string    `bun:"event_id,notnull" json:"event_id"`
	ShowInstanceID string    `bun:"show_instance_id,notnull" json:"show_instance_id"`
	ShowDate       time.Time `bun:"show_date,notnull" json:"show_date"`
	Venue          string    `bun:"venue" json:"venue"`

	CustomerID    string `bun:"customer_id" json:"customer_id"`
	CustomerEmail string `bun:"customer_email,notnull" json:"customer_email"`

	SeatNumber int             `bun:"seat_number,notnull,unique:order_seat" json:"seat_number"`
	SeatType   string          `bun:"seat_type" json:"seat_type"`
	Price      decimal.Decimal `bun:"price,notnull" json:"price"`

	Status TicketStatus `bun:"status,notnull" json:"status"`

	// QRPayload is a signed locator, not a source of truth: validation
	// always re-reads this record.
	QRPayload string `bun:"qr_payload" json:"qr_payload"`
	QRCode    []byte `bun:"qr_code" json:"qr_code,omitempty"`

	IsUsed   bool      `bun:"is_used,notnull" json:"is_used"`
	UsedAt   time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	UsedBy   string    `bun:"used_by,nullzero" json:"used_by,omitempty"`
	Location string    `bun:"location,nullzero" json:"location,omitempty"`

	IsRefundable   bool      `bun:"is_refundable,notnull" json:"is_refundable"`
	RefundDeadline time.Time `bun:"refund_deadline,notnull" json:"refund_deadline"`
	// Stored as a plain zero until a refund happens; a NULL here would not
	// scan back into a decimal.
	RefundAmount decimal.Decimal `bun:"refund_amount,notnull" json:"refund_amount"`
	RefundReason string          `bun:"refund_reason,nullzero" json:"refund_reason,omitempty"`
	RefundDate   time.Time       `bun:"refund_date,nullzero" json:"refund_date,omitempty"`

	CancelledAt  time.Time `bun:"cancelled_at,nullzero" json:"cancelled_at,omitempty"`
	CancelReason string    `bun:"cancel_reason,nullzero" json:"cancel_reason,omitempty"`

	IssuedAt time.Time `bun:"issued_at,notnull" json:"issued_at"`
}

// QRTicketPayload is the structured data embedded in the ticket QR code.
type QRTicketPayload struct {
	TicketID     string          `json:"ticket_id"`
	TicketNumber string          `json:"ticket_number"`
	EventID      string          `json:"event_id"`
	CustomerRef  string          `json:"customer_ref"`
	Price        decimal.Decimal `json:"price"`
	Status       TicketStatus    `json:"status"`
}

// ValidateTicketRequest identifies a ticket either by its scanned QR
// payload or by the printed ticket number.
type ValidateTicketRequest struct {
	QRPayload    string `json:"qr_payload,omitempty"`
	TicketNumber string `json:"ticket_number,omitempty"`
	Validator    string `json:"validator"`
	Location     string `json:"location"`
}
