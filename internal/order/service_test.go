package order_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-boxoffice/internal/inventory"
	inventorydb "ms-boxoffice/internal/inventory/db"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/order"
	orderdb "ms-boxoffice/internal/order/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type stubCatalog struct {
	show *models.ShowInstance
	err  error
}

func (c *stubCatalog) GetShow(ctx context.Context, event models.EventRef, showDate time.Time) (*models.ShowInstance, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.show, nil
}

type fixture struct {
	orders    *order.Service
	inventory *inventory.Service
	catalog   *stubCatalog
	db        *orderdb.DB
}

func setupOrderService(t *testing.T, ttl time.Duration) *fixture {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.SeatMap)(nil), (*models.SeatHold)(nil), (*models.Order)(nil),
	} {
		require.NoError(t, bunDB.ResetModel(ctx, model))
	}

	log := logger.NewTestLogger()
	inv := inventory.NewService(&inventorydb.DB{Bun: bunDB}, nil, nil, log, "")
	catalog := &stubCatalog{show: &models.ShowInstance{
		ID:         "show-1",
		Event:      models.EventRef{Kind: models.EventConcert, ID: "concert-9"},
		ShowDate:   time.Now().Add(72 * time.Hour).UTC(),
		Venue:      "Main Hall",
		TotalSeats: 100,
		SeatPrices: map[string]float64{"standard": 20.00, "vip": 35.00},
	}}

	db := &orderdb.DB{Bun: bunDB}
	return &fixture{
		orders:    order.NewService(db, inv, catalog, nil, log, ttl, order.Topics{}),
		inventory: inv,
		catalog:   catalog,
		db:        db,
	}
}

func validRequest() models.CreateOrderRequest {
	return models.CreateOrderRequest{
		Event:    models.EventRef{Kind: models.EventConcert, ID: "concert-9"},
		ShowDate: time.Now().Add(72 * time.Hour),
		SelectedSeats: []models.SelectedSeat{
			{SeatNumber: 1, SeatType: "standard"},
			{SeatNumber: 2, SeatType: "standard"},
		},
		Customer: models.CustomerInfo{
			CustomerID: "cust-1",
			Name:       "Dana Reyes",
			Email:      "dana@example.com",
			Phone:      "555-0101",
		},
	}
}

func TestCreateOrderComputesTotals(t *testing.T) {
	fx := setupOrderService(t, 15*time.Minute)
	ctx := context.Background()

	summary, err := fx.orders.CreateOrder(ctx, validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, summary.OrderID)
	assert.Contains(t, summary.OrderNumber, "ORD-")
	assert.Equal(t, "45.2", summary.Total.String())

	stored, err := fx.orders.GetOrder(ctx, summary.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, stored.Status)
	assert.Equal(t, models.PaymentStatePending, stored.PaymentStatus)
	assert.Equal(t, "40", stored.Subtotal.String())
	assert.Equal(t, "2", stored.ServiceFee.String())
	assert.Equal(t, "3.2", stored.Tax.String())
	assert.NotEmpty(t, stored.HoldToken)
	assert.True(t, stored.ExpiresAt.After(time.Now()))

	avail, err := fx.inventory.Availability(ctx, "show-1")
	require.NoError(t, err)
	assert.Equal(t, 98, avail.AvailableSeats)
}

func TestCreateOrderValidation(t *testing.T) {
	fx := setupOrderService(t, 15*time.Minute)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*models.CreateOrderRequest)
	}{
		{"bad event kind", func(r *models.CreateOrderRequest) { r.Event.Kind = "opera" }},
		{"empty event id", func(r *models.CreateOrderRequest) { r.Event.ID = "" }},
		{"no seats", func(r *models.CreateOrderRequest) { r.SelectedSeats = nil }},
		{"missing name", func(r *models.CreateOrderRequest) { r.Customer.Name = "" }},
		{"bad email", func(r *models.CreateOrderRequest) { r.Customer.Email = "not-an-email" }},
		{"past show", func(r *models.CreateOrderRequest) { r.ShowDate = time.Now().Add(-time.Hour) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			_, err := fx.orders.CreateOrder(ctx, req)
			var invalid *models.ValidationError
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestCreateOrderUnknownSeatTypeFallsBackToStandard(t *testing.T) {
	fx := setupOrderService(t, 15*time.Minute)
	ctx := context.Background()

	req := validRequest()
	req.SelectedSeats = []models.SelectedSeat{{SeatNumber: 3, SeatType: "balcony"}}

	summary, err := fx.orders.CreateOrder(ctx, req)
	require.NoError(t, err)
	// balcony is not a tier the catalog prices; standard applies.
	assert.Equal(t, "22.6", summary.Total.String())
}

func TestCreateOrderSeatTypeWithoutAnyPriceFails(t *testing.T) {
	fx := setupOrderService(t, 15*time.Minute)
	fx.catalog.show.SeatPrices = map[string]float64{"vip": 35.00}
	ctx := context.Background()

	req := validRequest()
	req.SelectedSeats = []models.SelectedSeat{{SeatNumber: 3, SeatType: "balcony"}}

	_, err := fx.orders.CreateOrder(ctx, req)
	var invalid *models.ValidationError
	assert.ErrorAs(t, err, &invalid)
}

func TestCreateOrderSeatConflict(t *testing.T) {
	fx := setupOrderService(t, 15*time.Minute)
	ctx := context.Background()

	_, err := fx.orders.CreateOrder(ctx, validRequest())
	require.NoError(t, err)

	req := validRequest()
	req.SelectedSeats = []models.SelectedSeat{
		{SeatNumber: 2, SeatType: "standard"},
		{SeatNumber: 3, SeatType: "standard"},
	}
	_, err = fx.orders.CreateOrder(ctx, req)
	var conflict *models.SeatConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []int{2}, conflict.Seats)

	// The losing request must not have consumed seat 3.
	avail, err := fx.inventory.Availability(ctx, "show-1")
	require.NoError(t, err)
	assert.Equal(t, 98, avail.AvailableSeats)
}

func TestConfirmOrderIsIdempotent(t *testing.T) {
	fx := setupOrderService(t, 15*time.Minute)
	ctx := context.Background()

	summary, err := fx.orders.CreateOrder(ctx, validRequest())
	require.NoError(t, err)

	require.NoError(t, fx.orders.ConfirmOrder(ctx, summary.OrderID))
	require.NoError(t, fx.orders.ConfirmOrder(ctx, summary.OrderID))

	stored, err := fx.orders.GetOrder(ctx, summary.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderConfirmed, stored.Status)
}

func TestExpireOrdersReleasesSeats(t *testing.T) {
	// Negative TTL: the order is expired the moment it is created.
	fx := setupOrderService(t, -time.Minute)
	ctx := context.Background()

	summary, err := fx.orders.CreateOrder(ctx, validRequest())
	require.NoError(t, err)

	require.NoError(t, fx.orders.ExpireOrders(ctx))

	stored, err := fx.orders.GetOrder(ctx, summary.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, stored.Status)
	assert.Equal(t, "expired", stored.CancelReason)

	avail, err := fx.inventory.Availability(ctx, "show-1")
	require.NoError(t, err)
	assert.Equal(t, 100, avail.AvailableSeats)
}

func TestExpireOrdersSkipsPaidOrders(t *testing.T) {
	fx := setupOrderService(t, -time.Minute)
	ctx := context.Background()

	summary, err := fx.orders.CreateOrder(ctx, validRequest())
	require.NoError(t, err)

	// Payment lands before the sweep runs.
	ok, err := fx.db.Transition(ctx, summary.OrderID,
		[]models.OrderStatus{models.OrderPending}, models.OrderPaid, models.PaymentStateCompleted, "")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, fx.orders.ExpireOrders(ctx))

	stored, err := fx.orders.GetOrder(ctx, summary.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, stored.Status)
}

func TestListOrdersByCustomer(t *testing.T) {
	fx := setupOrderService(t, 15*time.Minute)
	ctx := context.Background()

	_, err := fx.orders.CreateOrder(ctx, validRequest())
	require.NoError(t, err)

	other := validRequest()
	other.SelectedSeats = []models.SelectedSeat{{SeatNumber: 10, SeatType: "vip"}}
	other.Customer.CustomerID = "cust-2"
	other.Customer.Email = "kim@example.com"
	_, err = fx.orders.CreateOrder(ctx, other)
	require.NoError(t, err)

	mine, err := fx.orders.ListOrders(ctx, "cust-1", "")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "cust-1", mine[0].CustomerID)

	byEmail, err := fx.orders.ListOrders(ctx, "", "KIM@example.com")
	require.NoError(t, err)
	require.Len(t, byEmail, 1)
	assert.Equal(t, "cust-2", byEmail[0].CustomerID)
}
