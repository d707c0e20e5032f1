package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// SeatSet is a set of seat numbers persisted as a JSON array so the same
// model works on both Postgres and SQLite.
type SeatSet []int

func (s SeatSet) Value() (driver.Value, error) {
	if s == nil {
		s = SeatSet{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *SeatSet) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = SeatSet{}
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	}
	return fmt.Errorf("seatset: cannot scan %T", src)
}

func (s SeatSet) Contains(seat int) bool {
	for _, n := range s {
		if n == seat {
			return true
		}
	}
	return false
}

// Overlap returns the seats of other that are already present in s.
func (s SeatSet) Overlap(other []int) []int {
	var conflicts []int
	for _, n := range other {
		if s.Contains(n) {
			conflicts = append(conflicts, n)
		}
	}
	return conflicts
}

// Add appends seats not already present and reports the resulting set.
func (s SeatSet) Add(seats []int) SeatSet {
	out := s
	for _, n := range seats {
		if !out.Contains(n) {
			out = append(out, n)
		}
	}
	return out
}

// Remove drops the given seats; absent seats are ignored.
func (s SeatSet) Remove(seats []int) SeatSet {
	drop := make(map[int]bool, len(seats))
	for _, n := range seats {
		drop[n] = true
	}
	out := make(SeatSet, 0, len(s))
	for _, n := range s {
		if !drop[n] {
			out = append(out, n)
		}
	}
	return out
}

// SeatMap is the single source of truth for seat occupancy of one show
// instance. Only the inventory service mutates it, always through a
// version-checked conditional update.
type SeatMap struct {
	bun.BaseModel `bun:"table:seat_maps"`

	ShowInstanceID string    `bun:"show_instance_id,pk" json:"show_instance_id"`
	TotalSeats     int       `bun:"total_seats,notnull" json:"total_seats"`
	TakenSeats     SeatSet   `bun:"taken_seats,type:text" json:"taken_seats"`
	HeldSeats      SeatSet   `bun:"held_seats,type:text" json:"held_seats"`
	Version        int64     `bun:"version,notnull" json:"-"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero" json:"-"`
}

// AvailableSeats is always derived, never stored.
func (m *SeatMap) AvailableSeats() int {
	return m.TotalSeats - len(m.TakenSeats) - len(m.HeldSeats)
}

type HoldStatus string

const (
	HoldHeld      HoldStatus = "held"
	HoldCommitted HoldStatus = "committed"
	HoldReleased  HoldStatus = "released"
)

// SeatHold records a transient claim on seats. Its status makes commit and
// release idempotent: replays observe the recorded outcome and no-op.
type SeatHold struct {
	bun.BaseModel `bun:"table:seat_holds"`

	Token          string     `bun:"token,pk" json:"token"`
	ShowInstanceID string     `bun:"show_instance_id,notnull" json:"show_instance_id"`
	Seats          SeatSet    `bun:"seats,type:text" json:"seats"`
	Status         HoldStatus `bun:"status,notnull" json:"status"`
	CreatedAt      time.Time  `bun:"created_at,notnull" json:"created_at"`
	ExpiresAt      time.Time  `bun:"expires_at,notnull" json:"expires_at"`
}

type Availability struct {
	ShowInstanceID string  `json:"show_instance_id"`
	TotalSeats     int     `json:"total_seats"`
	TakenSeats     SeatSet `json:"taken_seats"`
	// UnavailableSeatNumbers is taken plus currently held: everything a
	// new hold would bounce off.
	UnavailableSeatNumbers SeatSet `json:"unavailable_seat_numbers"`
	AvailableSeats         int     `json:"available_seats"`
}
