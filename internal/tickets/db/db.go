package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"ms-boxoffice/internal/models"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// CreateTicket inserts a ticket, treating a duplicate (order, seat) row as
// success: the unique index is what makes issuance idempotent under
// concurrent retries. On conflict the existing row is returned.
func (d *DB) CreateTicket(ctx context.Context, ticket *models.Ticket) (*models.Ticket, error) {
	_, err := d.Bun.NewInsert().Model(ticket).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return d.GetByOrderSeat(ctx, ticket.OrderID, ticket.SeatNumber)
		}
		return nil, err
	}
	return ticket, nil
}

func (d *DB) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetByTicketNumber(ctx context.Context, ticketNumber string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("ticket_number = ?", ticketNumber).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetByOrderSeat(ctx context.Context, orderID string, seatNumber int) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("order_id = ?", orderID).
		Where("seat_number = ?", seatNumber).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) ListByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("order_id = ?", orderID).
		Order("seat_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) ListByCustomer(ctx context.Context, customerID, email string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	q := d.Bun.NewSelect().Model(&tickets)
	switch {
	case customerID != "":
		q = q.Where("customer_id = ?", customerID)
	case email != "":
		q = q.Where("customer_email = ?", email)
	default:
		return nil, &models.ValidationError{Field: "customer", Reason: "customer id or email required"}
	}
	if err := q.Order("issued_at DESC").Scan(ctx); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) ListActiveByShow(ctx context.Context, showInstanceID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("show_instance_id = ?", showInstanceID).
		Where("status = ?", models.TicketActive).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// MarkUsed flips an active ticket to used in a single conditional update.
// Returns false when the ticket was already used or no longer active, which
// is exactly the one-shot guarantee entry scanning needs.
func (d *DB) MarkUsed(ctx context.Context, ticketID, validator, location string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketUsed).
		Set("is_used = ?", true).
		Set("used_at = ?", time.Now().UTC()).
		Set("used_by = ?", validator).
		Set("location = ?", location).
		Where("id = ?", ticketID).
		Where("status = ?", models.TicketActive).
		Where("is_used = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkCancelled finalizes an active ticket. Conditional for the same reason
// as MarkUsed: two concurrent cancellations resolve to one winner.
func (d *DB) MarkCancelled(ctx context.Context, ticketID, reason string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketCancelled).
		Set("cancelled_at = ?", time.Now().UTC()).
		Set("cancel_reason = ?", reason).
		Where("id = ?", ticketID).
		Where("status = ?", models.TicketActive).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkRefunded finalizes an active ticket with the refunded amount.
func (d *DB) MarkRefunded(ctx context.Context, ticketID, reason string, amount decimal.Decimal) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketRefunded).
		Set("refund_amount = ?", amount).
		Set("refund_reason = ?", reason).
		Set("refund_date = ?", time.Now().UTC()).
		Where("id = ?", ticketID).
		Where("status = ?", models.TicketActive).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CountOpenByOrder counts tickets that still hold value on an order. A used
// ticket counts: the holder attended, so cancelling the order's other
// tickets must not flip the whole order.
func (d *DB) CountOpenByOrder(ctx context.Context, orderID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("order_id = ?", orderID).
		Where("status NOT IN (?)", bun.In([]models.TicketStatus{models.TicketCancelled, models.TicketRefunded})).
		Count(ctx)
}

// isUniqueViolation matches both Postgres and SQLite duplicate-key errors.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
