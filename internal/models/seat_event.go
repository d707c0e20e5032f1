package models

import "time"

type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "available"
	SeatStatusHeld      SeatStatus = "held"
	SeatStatusTaken     SeatStatus = "taken"
)

// SeatStatusEvent is published whenever seats change state so downstream
// consumers (catalog UI, notifications) can refresh their views.
type SeatStatusEvent struct {
	ShowInstanceID string     `json:"show_instance_id"`
	SeatNumbers    []int      `json:"seat_numbers"`
	Status         SeatStatus `json:"status"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

func NewSeatStatusEvent(showInstanceID string, seats []int, status SeatStatus) SeatStatusEvent {
	return SeatStatusEvent{
		ShowInstanceID: showInstanceID,
		SeatNumbers:    seats,
		Status:         status,
		OccurredAt:     time.Now().UTC(),
	}
}
