package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/models"
)

// ReconcileOrder re-derives one order's status from its vendor orders under
// the order lock and reports whether it moved to confirmed.
func (s *OrderService) ReconcileOrder(ctx context.Context, orderID string) (*models.Order, bool, error) {
	unlock, err := s.Locker.LockOrder(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	order, confirmed, err := s.reevaluate(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	if confirmed {
		s.logger.Info("RECONCILE", fmt.Sprintf("Order %s confirmed by reconciliation", orderID))
		s.orderConfirmed(order)
	}
	return order, confirmed, nil
}

// ReconcilePending re-derives up to batch pending orders whose vendor orders
// all accepted, and returns how many it confirmed. Orders that can never
// confirm are not selected, so they cannot crowd newer orders out of a sweep.
// Orders that are locked or vanish mid-sweep are skipped.
func (s *OrderService) ReconcilePending(ctx context.Context, batch int) (int, error) {
	ids, err := s.Store.ListConfirmableOrderIDs(ctx, s.now(), batch)
	if err != nil {
		return 0, err
	}

	confirmed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return confirmed, err
		}
		_, ok, err := s.ReconcileOrder(ctx, id)
		switch {
		case err == nil:
			if ok {
				confirmed++
			}
		case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrConflict):
			s.logger.Debug("RECONCILE", fmt.Sprintf("Skipping order %s: %v", id, err))
		default:
			s.logger.Warn("RECONCILE", fmt.Sprintf("Failed to reconcile order %s: %v", id, err))
		}
	}
	return confirmed, nil
}

// RunReconciler sweeps pending orders every interval until ctx is cancelled.
func (s *OrderService) RunReconciler(ctx context.Context, interval time.Duration, batch int) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("RECONCILE", fmt.Sprintf("Reconciler started (every %s, batch %d)", interval, batch))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("RECONCILE", "Reconciler stopped")
			return
		case <-ticker.C:
			n, err := s.ReconcilePending(ctx, batch)
			if err != nil && ctx.Err() == nil {
				s.logger.Warn("RECONCILE", fmt.Sprintf("Sweep failed: %v", err))
				continue
			}
			if n > 0 {
				s.logger.Info("RECONCILE", fmt.Sprintf("Sweep confirmed %d orders", n))
			}
		}
	}
}

// HandleVendorOrderEvent reconciles the order named by a vendor order event.
// It matches the kafka consumer handler signature.
func (s *OrderService) HandleVendorOrderEvent(ctx context.Context, key string, value []byte) error {
	var ev models.VendorOrderEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return fmt.Errorf("%w: decode vendor order event %s: %v", models.ErrInvalidInput, key, err)
	}
	if ev.OrderID == "" {
		return fmt.Errorf("%w: vendor order event %s has no order id", models.ErrInvalidInput, key)
	}

	_, _, err := s.ReconcileOrder(ctx, ev.OrderID)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	return err
}
