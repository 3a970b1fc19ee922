package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-booking/internal/models"
)

// DB handles reporting queries. It never writes order data.
type DB struct {
	bun *bun.DB
}

// NewDB creates a new analytics DB handler
func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// StatusCount is one row of a count-by-status aggregation.
type StatusCount struct {
	Status string `bun:"status"`
	Count  int    `bun:"count"`
}

// ListOrdersByOrganizer returns one page of an organizer's orders, newest
// first, and the total number of matching orders.
func (db *DB) ListOrdersByOrganizer(ctx context.Context, organizerID, status string, limit, skip int) ([]*models.Order, int, error) {
	orders := make([]*models.Order, 0)
	q := db.bun.NewSelect().
		Model(&orders).
		Where("organizer_id = ?", organizerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	total, err := q.Order("created_at DESC", "id ASC").
		Limit(limit).
		Offset(skip).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders of organizer %s: %w", organizerID, err)
	}
	return orders, total, nil
}

// ListOrdersByVendor returns one page of orders that include at least one
// vendor order assigned to vendorID, optionally in the given vendor order status.
func (db *DB) ListOrdersByVendor(ctx context.Context, vendorID, status string, limit, skip int) ([]*models.Order, int, error) {
	sub := db.bun.NewSelect().
		Model((*models.VendorOrder)(nil)).
		Column("order_id").
		Where("vendor_id = ?", vendorID)
	if status != "" {
		sub = sub.Where("status = ?", status)
	}

	orders := make([]*models.Order, 0)
	total, err := db.bun.NewSelect().
		Model(&orders).
		Where("id IN (?)", sub).
		Order("created_at DESC", "id ASC").
		Limit(limit).
		Offset(skip).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders of vendor %s: %w", vendorID, err)
	}
	return orders, total, nil
}

// VendorOrdersForOrders loads the vendor orders of the given orders. A
// non-empty vendorID restricts them to that vendor.
func (db *DB) VendorOrdersForOrders(ctx context.Context, orderIDs []string, vendorID string) ([]*models.VendorOrder, error) {
	vendorOrders := make([]*models.VendorOrder, 0)
	if len(orderIDs) == 0 {
		return vendorOrders, nil
	}

	q := db.bun.NewSelect().
		Model(&vendorOrders).
		Where("order_id IN (?)", bun.In(orderIDs))
	if vendorID != "" {
		q = q.Where("vendor_id = ?", vendorID)
	}
	if err := q.Order("order_id ASC", "position ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("load vendor orders: %w", err)
	}
	return vendorOrders, nil
}

// CountOrdersByStatus groups an organizer's orders by status.
func (db *DB) CountOrdersByStatus(ctx context.Context, organizerID string) ([]StatusCount, error) {
	var rows []StatusCount
	err := db.bun.NewSelect().
		Model((*models.Order)(nil)).
		ColumnExpr("status").
		ColumnExpr("COUNT(*) AS count").
		Where("organizer_id = ?", organizerID).
		GroupExpr("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("count orders of organizer %s: %w", organizerID, err)
	}
	return rows, nil
}

// CountVendorOrdersByStatus groups a vendor's vendor orders by status.
func (db *DB) CountVendorOrdersByStatus(ctx context.Context, vendorID string) ([]StatusCount, error) {
	var rows []StatusCount
	err := db.bun.NewSelect().
		Model((*models.VendorOrder)(nil)).
		ColumnExpr("status").
		ColumnExpr("COUNT(*) AS count").
		Where("vendor_id = ?", vendorID).
		GroupExpr("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("count vendor orders of %s: %w", vendorID, err)
	}
	return rows, nil
}

// VendorOrdersSince returns a vendor's vendor orders created at or after since.
func (db *DB) VendorOrdersSince(ctx context.Context, vendorID string, since time.Time) ([]*models.VendorOrder, error) {
	vendorOrders := make([]*models.VendorOrder, 0)
	err := db.bun.NewSelect().
		Model(&vendorOrders).
		Column("id", "order_id", "vendor_id", "price", "status", "created_at").
		Where("vendor_id = ?", vendorID).
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vendor orders of %s since %s: %w", vendorID, since.Format(time.RFC3339), err)
	}
	return vendorOrders, nil
}

// ---------------- USERS ----------------

// UsersByID returns the display profiles of the given users keyed by id.
// Unknown ids are absent from the map.
func (db *DB) UsersByID(ctx context.Context, ids []string) (map[string]*models.User, error) {
	out := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var users []*models.User
	err := db.bun.NewSelect().
		Model(&users).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// UpsertUser inserts the profile or refreshes its display fields.
func (db *DB) UpsertUser(ctx context.Context, user *models.User) error {
	_, err := db.bun.NewInsert().
		Model(user).
		On("CONFLICT (id) DO UPDATE").
		Set("full_name = EXCLUDED.full_name").
		Set("email = EXCLUDED.email").
		Set("role = EXCLUDED.role").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", user.ID, err)
	}
	return nil
}
