package database

import (
	"context"
	"fmt"

	"ms-boxoffice/internal/models"

	"github.com/uptrace/bun"
)

// CreateSchema creates every table the service owns. Idempotent, so it
// runs unconditionally at startup; works on both Postgres and SQLite.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{
		(*models.SeatMap)(nil),
		(*models.SeatHold)(nil),
		(*models.Order)(nil),
		(*models.Ticket)(nil),
		(*models.Payment)(nil),
	}
	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}
	return nil
}
