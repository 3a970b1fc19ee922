package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-booking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrConflict) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrDependencyUnavailable, err)
}

// ---------------- ORDERS ----------------

// CreateOrderWithVendorOrders inserts the order and every vendor order in one transaction.
func (d *DB) CreateOrderWithVendorOrders(ctx context.Context, order *models.Order, vendorOrders []*models.VendorOrder) error {
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return err
		}
		if len(vendorOrders) == 0 {
			return nil
		}
		_, err := tx.NewInsert().Model(&vendorOrders).Exec(ctx)
		return err
	})
	return wrapErr("create order", err)
}

// GetOrderByID fetches one order without its vendor orders.
func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get order %s", id), err)
	}
	return &order, nil
}

// GetOrderWithVendorOrders fetches an order with its vendor orders in creation order.
func (d *DB) GetOrderWithVendorOrders(ctx context.Context, id string) (*models.Order, error) {
	order, err := d.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	vendorOrders, err := d.GetVendorOrdersByOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	order.VendorOrders = vendorOrders
	return order, nil
}

// UpdateOrder writes the mutable order fields if the stored version still
// matches order.Version, then advances order.Version.
func (d *DB) UpdateOrder(ctx context.Context, order *models.Order) error {
	expected := order.Version
	order.Version = expected + 1

	res, err := d.Bun.NewUpdate().
		Model(order).
		Column("event_name", "event_date", "event_time", "guests", "status", "version", "updated_at").
		WherePK().
		Where("version = ?", expected).
		Exec(ctx)
	if err != nil {
		order.Version = expected
		return wrapErr(fmt.Sprintf("update order %s", order.ID), err)
	}
	if err := d.checkSwapped(ctx, res, (*models.Order)(nil), order.ID); err != nil {
		order.Version = expected
		return wrapErr(fmt.Sprintf("update order %s", order.ID), err)
	}
	return nil
}

// DeleteOrderCascade removes the order and every vendor order referencing it in one transaction.
func (d *DB) DeleteOrderCascade(ctx context.Context, id string) error {
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.VendorOrder)(nil)).
			Where("order_id = ?", id).
			Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewDelete().
			Model((*models.Order)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return models.ErrNotFound
		}
		return nil
	})
	return wrapErr(fmt.Sprintf("delete order %s", id), err)
}

// ListConfirmableOrderIDs returns up to limit pending orders, oldest first,
// whose vendor orders are all accepted or completed. Orders with no vendor
// orders or with any pending, rejected or cancelled vendor order never match.
func (d *DB) ListConfirmableOrderIDs(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	blocking := []string{
		string(models.VendorOrderPending),
		string(models.VendorOrderRejected),
		string(models.VendorOrderCancelled),
	}

	var ids []string
	err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Column("id").
		Where("?TableAlias.status = ?", models.OrderPending).
		Where("?TableAlias.updated_at <= ?", olderThan).
		Where("EXISTS (SELECT 1 FROM vendor_orders AS vo WHERE vo.order_id = ?TableAlias.id)").
		Where("NOT EXISTS (SELECT 1 FROM vendor_orders AS vo WHERE vo.order_id = ?TableAlias.id AND vo.status IN (?))", bun.In(blocking)).
		OrderExpr("?TableAlias.created_at ASC, ?TableAlias.id ASC").
		Limit(limit).
		Scan(ctx, &ids)
	if err != nil {
		return nil, wrapErr("list confirmable orders", err)
	}
	return ids, nil
}

// ---------------- VENDOR ORDERS ----------------

func (d *DB) GetVendorOrderByID(ctx context.Context, id string) (*models.VendorOrder, error) {
	var vo models.VendorOrder
	err := d.Bun.NewSelect().
		Model(&vo).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get vendor order %s", id), err)
	}
	return &vo, nil
}

func (d *DB) GetVendorOrdersByOrder(ctx context.Context, orderID string) ([]*models.VendorOrder, error) {
	vendorOrders := make([]*models.VendorOrder, 0)
	err := d.Bun.NewSelect().
		Model(&vendorOrders).
		Where("order_id = ?", orderID).
		Order("position ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get vendor orders of %s", orderID), err)
	}
	return vendorOrders, nil
}

// UpdateVendorOrder writes status, message and confirmation time under the
// same compare-and-set rule as UpdateOrder.
func (d *DB) UpdateVendorOrder(ctx context.Context, vo *models.VendorOrder) error {
	expected := vo.Version
	vo.Version = expected + 1

	res, err := d.Bun.NewUpdate().
		Model(vo).
		Column("status", "message", "confirmation_time", "version", "updated_at").
		WherePK().
		Where("version = ?", expected).
		Exec(ctx)
	if err != nil {
		vo.Version = expected
		return wrapErr(fmt.Sprintf("update vendor order %s", vo.ID), err)
	}
	if err := d.checkSwapped(ctx, res, (*models.VendorOrder)(nil), vo.ID); err != nil {
		vo.Version = expected
		return wrapErr(fmt.Sprintf("update vendor order %s", vo.ID), err)
	}
	return nil
}

// checkSwapped turns a zero-row compare-and-set into ErrNotFound or ErrConflict.
func (d *DB) checkSwapped(ctx context.Context, res sql.Result, model interface{}, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	exists, err := d.Bun.NewSelect().Model(model).Where("id = ?", id).Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return models.ErrNotFound
	}
	return models.ErrConflict
}
