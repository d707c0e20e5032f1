package models

import (
	"strings"
	"time"
)

type EventKind string

const (
	EventMovie   EventKind = "movie"
	EventPlay    EventKind = "play"
	EventConcert EventKind = "concert"
)

// EventRef identifies an event in the catalog service. Type-specific
// display data (name, cast, posters) stays in the catalog.
type EventRef struct {
	Kind EventKind `json:"kind"`
	ID   string    `json:"id"`
}

func (r EventRef) Valid() bool {
	switch r.Kind {
	case EventMovie, EventPlay, EventConcert:
		return r.ID != ""
	}
	return false
}

// ShowInstance is one bookable occurrence of an event. It is owned by the
// catalog service; this service only reads it.
type ShowInstance struct {
	ID         string             `json:"id"`
	Event      EventRef           `json:"event"`
	ShowDate   time.Time          `json:"show_date"`
	Venue      string             `json:"venue"`
	TotalSeats int                `json:"total_seats"`
	SeatPrices map[string]float64 `json:"seat_prices"` // seat type -> unit price
}

// PriceFor returns the unit price for a seat type, falling back to the
// "standard" tier when the catalog has no entry for the requested type.
func (s *ShowInstance) PriceFor(seatType string) (float64, bool) {
	if p, ok := s.SeatPrices[seatType]; ok {
		return p, true
	}
	p, ok := s.SeatPrices["standard"]
	return p, ok
}

type CustomerInfo struct {
	CustomerID string `json:"customer_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

func (c CustomerInfo) Validate() error {
	if c.Name == "" {
		return &ValidationError{Field: "customer_info.name", Reason: "required"}
	}
	if c.Email == "" || !strings.Contains(c.Email, "@") {
		return &ValidationError{Field: "customer_info.email", Reason: "valid email required"}
	}
	if c.Phone == "" {
		return &ValidationError{Field: "customer_info.phone", Reason: "required"}
	}
	return nil
}
