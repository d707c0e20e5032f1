package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-boxoffice/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// EnsureSeatMap creates the seat map row for a show instance if it does not
// exist yet. Existing rows are left untouched.
func (d *DB) EnsureSeatMap(ctx context.Context, showInstanceID string, totalSeats int) error {
	seatMap := &models.SeatMap{
		ShowInstanceID: showInstanceID,
		TotalSeats:     totalSeats,
		TakenSeats:     models.SeatSet{},
		HeldSeats:      models.SeatSet{},
		Version:        1,
		UpdatedAt:      time.Now().UTC(),
	}
	_, err := d.Bun.NewInsert().
		Model(seatMap).
		On("CONFLICT (show_instance_id) DO NOTHING").
		Exec(ctx)
	return err
}

func (d *DB) GetSeatMap(ctx context.Context, showInstanceID string) (*models.SeatMap, error) {
	var seatMap models.SeatMap
	err := d.Bun.NewSelect().
		Model(&seatMap).
		Where("show_instance_id = ?", showInstanceID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &seatMap, nil
}

func (d *DB) GetHold(ctx context.Context, token string) (*models.SeatHold, error) {
	var hold models.SeatHold
	err := d.Bun.NewSelect().
		Model(&hold).
		Where("token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &hold, nil
}

// casUpdate writes the new taken/held sets only if nobody else touched the
// row since it was read. A zero row count means the caller lost the race
// and must re-read.
func (d *DB) casUpdate(ctx context.Context, idb bun.IDB, seatMap *models.SeatMap, taken, held models.SeatSet) error {
	res, err := idb.NewUpdate().
		Model((*models.SeatMap)(nil)).
		Set("taken_seats = ?", taken).
		Set("held_seats = ?", held).
		Set("version = version + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("show_instance_id = ?", seatMap.ShowInstanceID).
		Where("version = ?", seatMap.Version).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrVersionConflict
	}
	return nil
}

// Hold atomically claims the seats into the held set, all-or-nothing. On
// overlap with taken or held seats it returns SeatConflictError and claims
// nothing.
func (d *DB) Hold(ctx context.Context, showInstanceID string, seats []int, token string, ttl time.Duration) (*models.SeatHold, error) {
	var hold *models.SeatHold
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var seatMap models.SeatMap
		err := tx.NewSelect().
			Model(&seatMap).
			Where("show_instance_id = ?", showInstanceID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrNotFound
			}
			return err
		}

		conflicts := append(seatMap.TakenSeats.Overlap(seats), seatMap.HeldSeats.Overlap(seats)...)
		if len(conflicts) > 0 {
			return &models.SeatConflictError{ShowInstanceID: showInstanceID, Seats: conflicts}
		}
		for _, n := range seats {
			if n < 1 || n > seatMap.TotalSeats {
				return &models.ValidationError{Field: "seat_number", Reason: "outside the seat map"}
			}
		}

		if err := d.casUpdate(ctx, tx, &seatMap, seatMap.TakenSeats, seatMap.HeldSeats.Add(seats)); err != nil {
			return err
		}

		now := time.Now().UTC()
		hold = &models.SeatHold{
			Token:          token,
			ShowInstanceID: showInstanceID,
			Seats:          models.SeatSet(seats),
			Status:         models.HoldHeld,
			CreatedAt:      now,
			ExpiresAt:      now.Add(ttl),
		}
		_, err = tx.NewInsert().Model(hold).Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return hold, nil
}

// Commit moves a hold's seats into the taken set. Committing an already
// committed hold is a no-op; committing a released hold is an error.
func (d *DB) Commit(ctx context.Context, token string) (*models.SeatHold, error) {
	var hold models.SeatHold
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().
			Model(&hold).
			Where("token = ?", token).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrNotFound
			}
			return err
		}

		switch hold.Status {
		case models.HoldCommitted:
			return nil
		case models.HoldReleased:
			return models.ErrInvalidState
		}

		var seatMap models.SeatMap
		err = tx.NewSelect().
			Model(&seatMap).
			Where("show_instance_id = ?", hold.ShowInstanceID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			return err
		}

		taken := seatMap.TakenSeats.Add(hold.Seats)
		held := seatMap.HeldSeats.Remove(hold.Seats)
		if err := d.casUpdate(ctx, tx, &seatMap, taken, held); err != nil {
			return err
		}

		hold.Status = models.HoldCommitted
		_, err = tx.NewUpdate().
			Model(&hold).
			Column("status").
			Where("token = ?", token).
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

// ReleaseHold removes a hold's seats from the held set. Releasing twice, or
// releasing a committed hold, is a no-op.
func (d *DB) ReleaseHold(ctx context.Context, token string) (*models.SeatHold, error) {
	var hold models.SeatHold
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().
			Model(&hold).
			Where("token = ?", token).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrNotFound
			}
			return err
		}

		if hold.Status != models.HoldHeld {
			return nil
		}

		var seatMap models.SeatMap
		err = tx.NewSelect().
			Model(&seatMap).
			Where("show_instance_id = ?", hold.ShowInstanceID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			return err
		}

		if err := d.casUpdate(ctx, tx, &seatMap, seatMap.TakenSeats, seatMap.HeldSeats.Remove(hold.Seats)); err != nil {
			return err
		}

		hold.Status = models.HoldReleased
		_, err = tx.NewUpdate().
			Model(&hold).
			Column("status").
			Where("token = ?", token).
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

// ReleaseTaken returns committed seats to the pool after a cancellation or
// refund. Seats not currently taken are ignored, which keeps the operation
// idempotent.
func (d *DB) ReleaseTaken(ctx context.Context, showInstanceID string, seats []int) error {
	seatMap, err := d.GetSeatMap(ctx, showInstanceID)
	if err != nil {
		return err
	}
	return d.casUpdate(ctx, d.Bun, seatMap, seatMap.TakenSeats.Remove(seats), seatMap.HeldSeats)
}
