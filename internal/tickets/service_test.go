package tickets_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/tickets"
	ticketdb "ms-boxoffice/internal/tickets/db"
	"ms-boxoffice/internal/tickets/qr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTickets(t *testing.T) (*tickets.Service, *ticketdb.DB) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	require.NoError(t, bunDB.ResetModel(context.Background(), (*models.Ticket)(nil)))

	db := &ticketdb.DB{Bun: bunDB}
	svc := tickets.NewService(db, qr.NewSigner("test-secret"), nil,
		logger.NewTestLogger(), 24*time.Hour, tickets.Topics{})
	return svc, db
}

func paidOrder() *models.Order {
	return &models.Order{
		ID:             uuid.NewString(),
		OrderNumber:    "ORD-20260815120000-000001",
		CustomerID:     "cust-1",
		CustomerName:   "Dana Reyes",
		CustomerEmail:  "dana@example.com",
		EventKind:      models.EventConcert,
		EventID:        "concert-9",
		ShowInstanceID: "show-1",
		ShowDate:       time.Now().Add(72 * time.Hour).UTC(),
		Venue:          "Main Hall",
		Items: models.LineItems{
			{SeatNumber: 1, SeatType: "standard", UnitPrice: decimal.NewFromFloat(20.00)},
			{SeatNumber: 2, SeatType: "standard", UnitPrice: decimal.NewFromFloat(20.00)},
		},
		Status:        models.OrderPaid,
		PaymentStatus: models.PaymentStateCompleted,
	}
}

func TestIssueCreatesOneTicketPerSeat(t *testing.T) {
	svc, _ := setupTickets(t)
	ctx := context.Background()
	order := paidOrder()

	issued, err := svc.Issue(ctx, order)
	require.NoError(t, err)
	require.Len(t, issued, 2)

	seats := []int{issued[0].SeatNumber, issued[1].SeatNumber}
	assert.ElementsMatch(t, []int{1, 2}, seats)
	for _, ticket := range issued {
		assert.Equal(t, models.TicketActive, ticket.Status)
		assert.Equal(t, order.ID, ticket.OrderID)
		assert.Contains(t, ticket.TicketNumber, "TKT-")
		assert.NotEmpty(t, ticket.QRPayload)
		assert.NotEmpty(t, ticket.QRCode)
		assert.True(t, ticket.RefundDeadline.Before(order.ShowDate))
	}
}

// A freshly issued ticket must read back cleanly, including the decimal
// columns that have no value yet.
func TestIssuedTicketRoundTripsThroughStore(t *testing.T) {
	svc, db := setupTickets(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, paidOrder())
	require.NoError(t, err)
	require.Len(t, issued, 2)

	stored, err := db.GetByID(ctx, issued[0].ID)
	require.NoError(t, err)
	assert.Equal(t, issued[0].TicketNumber, stored.TicketNumber)
	assert.True(t, stored.Price.Equal(decimal.NewFromFloat(20.00)))
	assert.True(t, stored.RefundAmount.IsZero())
	assert.Empty(t, stored.RefundReason)
}

func TestIssueIsIdempotent(t *testing.T) {
	svc, db := setupTickets(t)
	ctx := context.Background()
	order := paidOrder()

	first, err := svc.Issue(ctx, order)
	require.NoError(t, err)
	second, err := svc.Issue(ctx, order)
	require.NoError(t, err)

	require.Len(t, second, 2)
	assert.Equal(t, first[0].ID, findSeat(t, second, first[0].SeatNumber).ID)
	assert.Equal(t, first[1].ID, findSeat(t, second, first[1].SeatNumber).ID)

	all, err := db.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func findSeat(t *testing.T, list []models.Ticket, seat int) models.Ticket {
	t.Helper()
	for _, ticket := range list {
		if ticket.SeatNumber == seat {
			return ticket
		}
	}
	t.Fatalf("seat %d not found", seat)
	return models.Ticket{}
}

func TestIssueRejectsUnpaidOrder(t *testing.T) {
	svc, _ := setupTickets(t)
	order := paidOrder()
	order.Status = models.OrderPending

	_, err := svc.Issue(context.Background(), order)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestValidateAdmitsOnce(t *testing.T) {
	svc, _ := setupTickets(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, paidOrder())
	require.NoError(t, err)
	ticket := issued[0]

	admitted, err := svc.Validate(ctx, models.ValidateTicketRequest{
		QRPayload: ticket.QRPayload,
		Validator: "gate-3",
		Location:  "north entrance",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TicketUsed, admitted.Status)
	assert.Equal(t, "gate-3", admitted.UsedBy)

	_, err = svc.Validate(ctx, models.ValidateTicketRequest{
		QRPayload: ticket.QRPayload,
		Validator: "gate-4",
	})
	assert.ErrorIs(t, err, models.ErrAlreadyUsed)
}

func TestValidateByTicketNumber(t *testing.T) {
	svc, _ := setupTickets(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, paidOrder())
	require.NoError(t, err)

	admitted, err := svc.Validate(ctx, models.ValidateTicketRequest{
		TicketNumber: issued[1].TicketNumber,
		Validator:    "gate-1",
	})
	require.NoError(t, err)
	assert.Equal(t, issued[1].ID, admitted.ID)
}

func TestValidateRejectsForgedPayload(t *testing.T) {
	svc, _ := setupTickets(t)
	ctx := context.Background()

	_, err := svc.Issue(ctx, paidOrder())
	require.NoError(t, err)

	forged, err := qr.NewSigner("other-secret").Sign(models.QRTicketPayload{TicketID: "x"})
	require.NoError(t, err)

	_, err = svc.Validate(ctx, models.ValidateTicketRequest{QRPayload: forged, Validator: "gate-1"})
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestValidateRejectsCancelledTicket(t *testing.T) {
	svc, db := setupTickets(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, paidOrder())
	require.NoError(t, err)

	ok, err := db.MarkCancelled(ctx, issued[0].ID, "customer cancelled")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.Validate(ctx, models.ValidateTicketRequest{QRPayload: issued[0].QRPayload, Validator: "gate-1"})
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestValidateRequiresIdentifier(t *testing.T) {
	svc, _ := setupTickets(t)

	_, err := svc.Validate(context.Background(), models.ValidateTicketRequest{Validator: "gate-1"})
	var invalid *models.ValidationError
	assert.ErrorAs(t, err, &invalid)
}

// Two gates scan the same ticket at once; exactly one admission.
func TestConcurrentValidationAdmitsOne(t *testing.T) {
	svc, _ := setupTickets(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, paidOrder())
	require.NoError(t, err)
	ticket := issued[0]

	const scanners = 10
	var wg sync.WaitGroup
	admissions := make(chan struct{}, scanners)

	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Validate(ctx, models.ValidateTicketRequest{
				QRPayload: ticket.QRPayload,
				Validator: "gate",
			})
			if err == nil {
				admissions <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admissions)

	assert.Len(t, admissions, 1)
}

func TestListByCustomer(t *testing.T) {
	svc, _ := setupTickets(t)
	ctx := context.Background()

	order := paidOrder()
	_, err := svc.Issue(ctx, order)
	require.NoError(t, err)

	mine, err := svc.ListTickets(ctx, "cust-1", "")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	none, err := svc.ListTickets(ctx, "cust-2", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}
