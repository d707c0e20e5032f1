package inventory_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"ms-boxoffice/internal/inventory"
	inventorydb "ms-boxoffice/internal/inventory/db"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupService(t *testing.T) *inventory.Service {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	// Serialize access so concurrent CAS tests hit row versioning, not
	// sqlite's single-writer lock errors.
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	ctx := context.Background()
	require.NoError(t, bunDB.ResetModel(ctx, (*models.SeatMap)(nil)))
	require.NoError(t, bunDB.ResetModel(ctx, (*models.SeatHold)(nil)))

	return inventory.NewService(&inventorydb.DB{Bun: bunDB}, nil, nil, logger.NewTestLogger(), "")
}

func TestHoldAndAvailability(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureSeatMap(ctx, "show-1", 10))

	hold, err := svc.Hold(ctx, "show-1", []int{1, 2, 3}, time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, hold.Token)
	assert.Equal(t, models.HoldHeld, hold.Status)

	avail, err := svc.Availability(ctx, "show-1")
	require.NoError(t, err)
	assert.Equal(t, 10, avail.TotalSeats)
	assert.Equal(t, 7, avail.AvailableSeats)
	assert.ElementsMatch(t, []int{1, 2, 3}, avail.UnavailableSeatNumbers)
}

func TestHoldConflictReportsSeats(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureSeatMap(ctx, "show-1", 10))

	_, err := svc.Hold(ctx, "show-1", []int{4, 5}, time.Minute)
	require.NoError(t, err)

	_, err = svc.Hold(ctx, "show-1", []int{5, 6}, time.Minute)
	var conflict *models.SeatConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []int{5}, conflict.Seats)

	// Seat 6 was never taken by the failed hold.
	avail, err := svc.Availability(ctx, "show-1")
	require.NoError(t, err)
	assert.Equal(t, 8, avail.AvailableSeats)
}

func TestHoldRejectsInvalidSeats(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureSeatMap(ctx, "show-1", 10))

	_, err := svc.Hold(ctx, "show-1", []int{11}, time.Minute)
	var invalid *models.ValidationError
	assert.ErrorAs(t, err, &invalid)

	_, err = svc.Hold(ctx, "show-1", []int{2, 2}, time.Minute)
	assert.ErrorAs(t, err, &invalid)

	_, err = svc.Hold(ctx, "show-1", nil, time.Minute)
	assert.ErrorAs(t, err, &invalid)
}

// Forty goroutines race for the same two seats; exactly one may win.
func TestConcurrentHoldsNeverDoubleBook(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureSeatMap(ctx, "show-1", 50))

	const contenders = 40
	var wg sync.WaitGroup
	wins := make(chan string, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hold, err := svc.Hold(ctx, "show-1", []int{7, 8}, time.Minute)
			if err == nil {
				wins <- hold.Token
			}
		}()
	}
	wg.Wait()
	close(wins)

	tokens := make([]string, 0, contenders)
	for token := range wins {
		tokens = append(tokens, token)
	}
	require.Len(t, tokens, 1, "exactly one hold may win the seats")

	avail, err := svc.Availability(ctx, "show-1")
	require.NoError(t, err)
	assert.Equal(t, 48, avail.AvailableSeats)
}

func TestCommitIsIdempotent(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureSeatMap(ctx, "show-1", 10))
	hold, err := svc.Hold(ctx, "show-1", []int{1, 2}, time.Minute)
	require.NoError(t, err)

	require.NoError(t, svc.Commit(ctx, hold.Token))
	require.NoError(t, svc.Commit(ctx, hold.Token), "second commit must be a no-op")

	avail, err := svc.Availability(ctx, "show-1")
	require.NoError(t, err)
	assert.Equal(t, 8, avail.AvailableSeats)
	assert.ElementsMatch(t, []int{1, 2}, avail.UnavailableSeatNumbers)
}

func TestReleaseIsIdempotentAndFreesSeats(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureSeatMap(ctx, "show-1", 10))
	hold, err := svc.Hold(ctx, "show-1", []int{3}, time.Minute)
	require.NoError(t, err)

	require.NoError(t, svc.Release(ctx, hold.Token))
	require.NoError(t, svc.Release(ctx, hold.Token))

	avail, err := svc.Availability(ctx, "show-1")
	require.NoError(t, err)
	assert.Equal(t, 10, avail.AvailableSeats)

	// The seat is immediately holdable again.
	_, err = svc.Hold(ctx, "show-1", []int{3}, time.Minute)
	assert.NoError(t, err)
}

func TestCommitAfterReleaseFails(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureSeatMap(ctx, "show-1", 10))
	hold, err := svc.Hold(ctx, "show-1", []int{4}, time.Minute)
	require.NoError(t, err)

	require.NoError(t, svc.Release(ctx, hold.Token))
	err = svc.Commit(ctx, hold.Token)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestReleaseTakenSeatsAfterCancellation(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureSeatMap(ctx, "show-1", 10))
	hold, err := svc.Hold(ctx, "show-1", []int{5, 6}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, svc.Commit(ctx, hold.Token))

	require.NoError(t, svc.ReleaseSeats(ctx, "show-1", []int{5}))

	avail, err := svc.Availability(ctx, "show-1")
	require.NoError(t, err)
	assert.Equal(t, 9, avail.AvailableSeats)
	assert.ElementsMatch(t, []int{6}, avail.UnavailableSeatNumbers)
}
