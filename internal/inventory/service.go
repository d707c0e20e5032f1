package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"

	"github.com/google/uuid"
)

type DBLayer interface {
	EnsureSeatMap(ctx context.Context, showInstanceID string, totalSeats int) error
	GetSeatMap(ctx context.Context, showInstanceID string) (*models.SeatMap, error)
	GetHold(ctx context.Context, token string) (*models.SeatHold, error)
	Hold(ctx context.Context, showInstanceID string, seats []int, token string, ttl time.Duration) (*models.SeatHold, error)
	Commit(ctx context.Context, token string) (*models.SeatHold, error)
	ReleaseHold(ctx context.Context, token string) (*models.SeatHold, error)
	ReleaseTaken(ctx context.Context, showInstanceID string, seats []int) error
}

type Guard interface {
	TryLock(ctx context.Context, showInstanceID string, seats []int, token string, ttl time.Duration) ([]int, error)
	Unlock(ctx context.Context, showInstanceID string, seats []int, token string) error
}

type Publisher interface {
	Publish(topic, key string, value []byte) error
}

// maxCASRetries bounds re-reads when concurrent holders collide on the
// same seat map version without overlapping seats.
const maxCASRetries = 5

// Service owns all mutation of seat occupancy. Holds, commits and releases
// on one show instance are linearizable through the versioned seat map row;
// no other component touches taken or held seats.
type Service struct {
	DB              DBLayer
	Guard           Guard
	Kafka           Publisher
	Logger          *logger.Logger
	SeatStatusTopic string
}

func NewService(db DBLayer, guard Guard, kafka Publisher, log *logger.Logger, seatStatusTopic string) *Service {
	return &Service{DB: db, Guard: guard, Kafka: kafka, Logger: log, SeatStatusTopic: seatStatusTopic}
}

func (s *Service) EnsureSeatMap(ctx context.Context, showInstanceID string, totalSeats int) error {
	if totalSeats <= 0 {
		return &models.ValidationError{Field: "total_seats", Reason: "must be positive"}
	}
	return s.DB.EnsureSeatMap(ctx, showInstanceID, totalSeats)
}

// Hold claims the seats all-or-nothing and returns a token the caller uses
// for the later commit or release. On any overlap nothing is held and the
// conflicting seats are reported.
func (s *Service) Hold(ctx context.Context, showInstanceID string, seats []int, ttl time.Duration) (*models.SeatHold, error) {
	if len(seats) == 0 {
		return nil, &models.ValidationError{Field: "seats", Reason: "at least one seat required"}
	}
	if dup := duplicateSeats(seats); len(dup) > 0 {
		return nil, &models.ValidationError{Field: "seats", Reason: fmt.Sprintf("duplicate seats %v", dup)}
	}

	token := uuid.NewString()

	if s.Guard != nil {
		conflicts, err := s.Guard.TryLock(ctx, showInstanceID, seats, token, ttl)
		if err != nil {
			s.Logger.Warn("INVENTORY", fmt.Sprintf("seat guard unavailable, falling through to store: %v", err))
		} else if len(conflicts) > 0 {
			return nil, &models.SeatConflictError{ShowInstanceID: showInstanceID, Seats: conflicts}
		}
	}

	var hold *models.SeatHold
	var err error
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		hold, err = s.DB.Hold(ctx, showInstanceID, seats, token, ttl)
		if !errors.Is(err, models.ErrVersionConflict) {
			break
		}
	}
	if err != nil {
		if s.Guard != nil {
			_ = s.Guard.Unlock(ctx, showInstanceID, seats, token)
		}
		return nil, err
	}

	s.publishSeatStatus(showInstanceID, seats, models.SeatStatusHeld)
	return hold, nil
}

// Commit makes the hold's seats permanent. Idempotent: a second commit of
// the same token is a no-op.
func (s *Service) Commit(ctx context.Context, token string) error {
	var hold *models.SeatHold
	var err error
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		hold, err = s.DB.Commit(ctx, token)
		if !errors.Is(err, models.ErrVersionConflict) {
			break
		}
	}
	if err != nil {
		return err
	}

	if s.Guard != nil {
		_ = s.Guard.Unlock(ctx, hold.ShowInstanceID, hold.Seats, token)
	}
	s.publishSeatStatus(hold.ShowInstanceID, hold.Seats, models.SeatStatusTaken)
	return nil
}

// Release gives a hold's seats back. Idempotent: releasing twice or
// releasing a committed hold is a no-op.
func (s *Service) Release(ctx context.Context, token string) error {
	var hold *models.SeatHold
	var err error
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		hold, err = s.DB.ReleaseHold(ctx, token)
		if !errors.Is(err, models.ErrVersionConflict) {
			break
		}
	}
	if err != nil {
		return err
	}

	if s.Guard != nil {
		_ = s.Guard.Unlock(ctx, hold.ShowInstanceID, hold.Seats, token)
	}
	if hold.Status == models.HoldReleased {
		s.publishSeatStatus(hold.ShowInstanceID, hold.Seats, models.SeatStatusAvailable)
	}
	return nil
}

// ReleaseSeats returns committed seats to the pool; used by cancellation
// and refunds.
func (s *Service) ReleaseSeats(ctx context.Context, showInstanceID string, seats []int) error {
	var err error
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		err = s.DB.ReleaseTaken(ctx, showInstanceID, seats)
		if !errors.Is(err, models.ErrVersionConflict) {
			break
		}
	}
	if err != nil {
		return err
	}
	s.publishSeatStatus(showInstanceID, seats, models.SeatStatusAvailable)
	return nil
}

// Availability returns a read-only occupancy snapshot.
func (s *Service) Availability(ctx context.Context, showInstanceID string) (*models.Availability, error) {
	seatMap, err := s.DB.GetSeatMap(ctx, showInstanceID)
	if err != nil {
		return nil, err
	}
	unavailable := make(models.SeatSet, 0, len(seatMap.TakenSeats)+len(seatMap.HeldSeats))
	unavailable = append(unavailable, seatMap.TakenSeats...)
	unavailable = append(unavailable, seatMap.HeldSeats...)
	return &models.Availability{
		ShowInstanceID:         showInstanceID,
		TotalSeats:             seatMap.TotalSeats,
		TakenSeats:             seatMap.TakenSeats,
		UnavailableSeatNumbers: unavailable,
		AvailableSeats:         seatMap.AvailableSeats(),
	}, nil
}

func (s *Service) publishSeatStatus(showInstanceID string, seats []int, status models.SeatStatus) {
	if s.Kafka == nil {
		return
	}
	event := models.NewSeatStatusEvent(showInstanceID, seats, status)
	value, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.Kafka.Publish(s.SeatStatusTopic, showInstanceID, value); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("failed to publish seat status for show %s: %v", showInstanceID, err))
	}
}

func duplicateSeats(seats []int) []int {
	seen := make(map[int]bool, len(seats))
	var dup []int
	for _, n := range seats {
		if seen[n] {
			dup = append(dup, n)
		}
		seen[n] = true
	}
	return dup
}
