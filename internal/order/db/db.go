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

func (d *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := d.Bun.NewInsert().Model(order).Exec(ctx)
	return err
}

func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// ListByCustomer returns a customer's orders, newest first. Either the
// opaque customer ID or the contact email selects the customer.
func (d *DB) ListByCustomer(ctx context.Context, customerID, email string) ([]models.Order, error) {
	q := d.Bun.NewSelect().Model((*models.Order)(nil)).Order("created_at DESC")
	switch {
	case customerID != "":
		q = q.Where("customer_id = ?", customerID)
	case email != "":
		q = q.Where("lower(customer_email) = lower(?)", email)
	default:
		return nil, &models.ValidationError{Field: "customer", Reason: "customer_id or email required"}
	}

	var orders []models.Order
	if err := q.Scan(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ExpiredPending returns orders still pending whose hold window has lapsed.
func (d *DB) ExpiredPending(ctx context.Context, now time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("status = ?", models.OrderPending).
		Where("expires_at < ?", now).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// Transition performs the compare-and-transition every state change goes
// through: the row moves to the target status only if it is still in one
// of the expected source states. A false result means a concurrent writer
// got there first; callers treat that as losing the race, not as an error.
func (d *DB) Transition(ctx context.Context, orderID string, from []models.OrderStatus, to models.OrderStatus, payment models.PaymentState, reason string) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", to).
		Where("id = ?", orderID).
		Where("status IN (?)", bun.In(from))

	if payment != "" {
		q = q.Set("payment_status = ?", payment)
	}
	if to == models.OrderCancelled || to == models.OrderRefunded {
		q = q.Set("cancelled_at = ?", time.Now().UTC()).
			Set("cancel_reason = ?", reason)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
