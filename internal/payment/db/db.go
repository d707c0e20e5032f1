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

func (d *DB) CreatePayment(ctx context.Context, payment *models.Payment) error {
	_, err := d.Bun.NewInsert().Model(payment).Exec(ctx)
	return err
}

func (d *DB) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	var payment models.Payment
	err := d.Bun.NewSelect().
		Model(&payment).
		Where("transaction_id = ?", transactionID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// UpdateStatus records the attempt's outcome together with the raw
// gateway response for audit.
func (d *DB) UpdateStatus(ctx context.Context, paymentID string, status models.PaymentStatus, rawResponse string) error {
	q := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", paymentID)
	if rawResponse != "" {
		q = q.Set("raw_response = ?", rawResponse)
	}
	_, err := q.Exec(ctx)
	return err
}

func (d *DB) ListByOrder(ctx context.Context, orderID string) ([]models.Payment, error) {
	var payments []models.Payment
	err := d.Bun.NewSelect().
		Model(&payments).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return payments, nil
}
