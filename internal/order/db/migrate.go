package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-booking/internal/models"
)

// CreateTables creates the booking tables and their lookup indexes if missing.
// Postgres deployments use the SQL migrations instead; this serves sqlite.
func CreateTables(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{(*models.User)(nil), (*models.Order)(nil), (*models.VendorOrder)(nil)}
	for _, m := range tables {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}

	indexes := []struct {
		model   interface{}
		name    string
		columns []string
	}{
		{(*models.Order)(nil), "orders_organizer_created_idx", []string{"organizer_id", "created_at"}},
		{(*models.Order)(nil), "orders_status_idx", []string{"status", "updated_at"}},
		{(*models.VendorOrder)(nil), "vendor_orders_order_idx", []string{"order_id", "position"}},
		{(*models.VendorOrder)(nil), "vendor_orders_vendor_created_idx", []string{"vendor_id", "created_at"}},
	}
	for _, idx := range indexes {
		if _, err := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// OpenSQLite opens a bun DB over sqlite. A single connection keeps
// shared in-memory databases consistent across goroutines.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}
