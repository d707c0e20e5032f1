package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
	OrderRefunded  OrderStatus = "refunded"
)

type PaymentState string

const (
	PaymentStatePending    PaymentState = "pending"
	PaymentStateProcessing PaymentState = "processing"
	PaymentStateCompleted  PaymentState = "completed"
	PaymentStateFailed     PaymentState = "failed"
	PaymentStateRefunded   PaymentState = "refunded"
)

type LineItem struct {
	SeatNumber int             `json:"seat_number"`
	SeatType   string          `json:"seat_type"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

// LineItems persists as JSON; orders own their line items exclusively.
type LineItems []LineItem

func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		l = LineItems{}
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *LineItems) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = LineItems{}
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return fmt.Errorf("lineitems: cannot scan %T", src)
}

func (l LineItems) SeatNumbers() []int {
	seats := make([]int, len(l))
	for i, item := range l {
		seats[i] = item.SeatNumber
	}
	return seats
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID          string `bun:"id,pk" json:"id"`
	OrderNumber string `bun:"order_number,unique,notnull" json:"order_number"`

	CustomerID    string `bun:"customer_id" json:"customer_id"`
	CustomerName  string `bun:"customer_name,notnull" json:"customer_name"`
	CustomerEmail string `bun:"customer_email,notnull" json:"customer_email"`
	CustomerPhone string `bun:"customer_phone" json:"customer_phone"`

	EventKind      EventKind `bun:"event_kind,notnull" json:"event_kind"`
	EventID        string    `bun:"event_id,notnull" json:"event_id"`
	ShowInstanceID string    `bun:"show_instance_id,notnull" json:"show_instance_id"`
	ShowDate       time.Time `bun:"show_date,notnull" json:"show_date"`
	Venue          string    `bun:"venue" json:"venue"`

	Items LineItems `bun:"items,type:text" json:"items"`

	Subtotal   decimal.Decimal `bun:"subtotal,notnull" json:"subtotal"`
	ServiceFee decimal.Decimal `bun:"service_fee,notnull" json:"service_fee"`
	Tax        decimal.Decimal `bun:"tax,notnull" json:"tax"`
	Total      decimal.Decimal `bun:"total,notnull" json:"total"`

	Status        OrderStatus  `bun:"status,notnull" json:"status"`
	PaymentStatus PaymentState `bun:"payment_status,notnull" json:"payment_status"`

	HoldToken    string    `bun:"hold_token" json:"-"`
	ExpiresAt    time.Time `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt    time.Time `bun:"created_at,notnull" json:"created_at"`
	CancelledAt  time.Time `bun:"cancelled_at,nullzero" json:"cancelled_at,omitempty"`
	CancelReason string    `bun:"cancel_reason,nullzero" json:"cancel_reason,omitempty"`
}

func (o *Order) Finalized() bool {
	return o.Status != OrderPending && o.Status != OrderConfirmed
}

type SelectedSeat struct {
	SeatNumber int    `json:"seat_number"`
	SeatType   string `json:"seat_type"`
}

type CreateOrderRequest struct {
	Event         EventRef       `json:"event"`
	ShowDate      time.Time      `json:"show_date"`
	SelectedSeats []SelectedSeat `json:"selected_seats"`
	Customer      CustomerInfo   `json:"customer_info"`
}

type OrderSummary struct {
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Total       decimal.Decimal `json:"total"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

type OrderWithTickets struct {
	Order   Order    `json:"order"`
	Tickets []Ticket `json:"tickets"`
}
