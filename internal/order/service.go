package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/order/pricing"
)

const (
	dateLayout      = "2006-01-02"
	timeLayout      = "15:04"
	conflictBackoff = 5 * time.Millisecond
)

type Store interface {
	CreateOrderWithVendorOrders(ctx context.Context, order *models.Order, vendorOrders []*models.VendorOrder) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderWithVendorOrders(ctx context.Context, id string) (*models.Order, error)
	UpdateOrder(ctx context.Context, order *models.Order) error
	DeleteOrderCascade(ctx context.Context, id string) error
	ListConfirmableOrderIDs(ctx context.Context, olderThan time.Time, limit int) ([]string, error)
	GetVendorOrderByID(ctx context.Context, id string) (*models.VendorOrder, error)
	GetVendorOrdersByOrder(ctx context.Context, orderID string) ([]*models.VendorOrder, error)
	UpdateVendorOrder(ctx context.Context, vo *models.VendorOrder) error
}

// OrderLocker serialises work on one order. The returned func releases the lease.
type OrderLocker interface {
	LockOrder(ctx context.Context, orderID string) (func(), error)
}

// Notifier is the best-effort side channel. Neither method reports failure.
type Notifier interface {
	Notify(userID, title, body, category string)
	PublishEvent(topic, key string, payload interface{})
}

type Options struct {
	AllowEmpty      bool
	ConflictRetries int
	Topics          config.TopicConfig
	Logger          *logger.Logger
	Now             func() time.Time
}

type OrderService struct {
	Store    Store
	Locker   OrderLocker
	Notifier Notifier
	Pricing  *pricing.Calculator

	allowEmpty bool
	retries    int
	topics     config.TopicConfig
	logger     *logger.Logger
	now        func() time.Time
}

func NewOrderService(store Store, locker OrderLocker, notifier Notifier, calc *pricing.Calculator, opts Options) *OrderService {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.ConflictRetries < 0 {
		opts.ConflictRetries = 0
	}
	return &OrderService{
		Store:      store,
		Locker:     locker,
		Notifier:   notifier,
		Pricing:    calc,
		allowEmpty: opts.AllowEmpty,
		retries:    opts.ConflictRetries,
		topics:     opts.Topics,
		logger:     opts.Logger,
		now:        opts.Now,
	}
}

// retry runs fn again while it reports a lost compare-and-set, up to the
// configured bound. fn must re-read whatever it writes.
func (s *OrderService) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if !errors.Is(err, models.ErrConflict) || attempt >= s.retries {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (gave up: %v)", err, ctx.Err())
		case <-time.After(time.Duration(attempt+1) * conflictBackoff):
		}
	}
}

// ---------------- ORDERS ----------------

// CreateOrder prices the items and writes the order with one pending vendor
// order per item in a single transaction.
func (s *OrderService) CreateOrder(ctx context.Context, req models.CreateOrderRequest) (*models.Order, error) {
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	items := make([]pricing.Item, len(req.Items))
	for i, item := range req.Items {
		items[i] = pricing.Item{Price: item.Price}
	}
	priced, err := s.Pricing.Price(items)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := &models.Order{
		ID:             uuid.NewString(),
		OrganizerID:    req.OrganizerID,
		EventName:      strings.TrimSpace(req.EventName),
		EventDate:      req.EventDate,
		EventTime:      req.EventTime,
		Guests:         req.Guests,
		VendorOrderIDs: make([]string, 0, len(req.Items)),
		TotalAmount:    priced.TotalAmount,
		Discount:       priced.Discount,
		FinalAmount:    priced.FinalAmount,
		Status:         models.OrderPending,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	vendorOrders := make([]*models.VendorOrder, 0, len(req.Items))
	for i, item := range req.Items {
		vo := &models.VendorOrder{
			ID:          uuid.NewString(),
			OrderID:     order.ID,
			VendorID:    item.VendorID,
			Position:    i,
			ServiceName: strings.TrimSpace(item.ServiceName),
			Price:       item.Price,
			Status:      models.VendorOrderPending,
			Version:     1,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		order.VendorOrderIDs = append(order.VendorOrderIDs, vo.ID)
		vendorOrders = append(vendorOrders, vo)
	}

	if err := s.Store.CreateOrderWithVendorOrders(ctx, order, vendorOrders); err != nil {
		return nil, err
	}
	order.VendorOrders = vendorOrders

	s.logger.LogOrder("CREATE", order.ID, fmt.Sprintf("%d vendor orders, final amount %s", len(vendorOrders), order.FinalAmount))
	s.orderCreated(order)
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.Store.GetOrderWithVendorOrders(ctx, orderID)
}

// ConfirmOrderCompletion marks the order completed from pending or confirmed.
// Vendor order states are not consulted.
func (s *OrderService) ConfirmOrderCompletion(ctx context.Context, orderID string) (*models.Order, error) {
	var order *models.Order
	changed := false
	err := s.retry(ctx, func() error {
		var err error
		changed = false
		order, err = s.Store.GetOrderWithVendorOrders(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == models.OrderCompleted {
			return nil
		}
		if !canTransitionOrder(order.Status, models.OrderCompleted) {
			return fmt.Errorf("%w: order %s is %s", models.ErrInvalidTransition, orderID, order.Status)
		}
		order.Status = models.OrderCompleted
		order.UpdatedAt = s.now()
		if err := s.Store.UpdateOrder(ctx, order); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.LogOrder("COMPLETE", orderID, "order marked completed")
		s.orderStatusChanged(order, "Your event booking has been completed")
	}
	return order, nil
}

// CancelOrder writes the cancelled status. Vendor orders are left as they are.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var order *models.Order
	changed := false
	err := s.retry(ctx, func() error {
		var err error
		changed = false
		order, err = s.Store.GetOrderWithVendorOrders(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == models.OrderCancelled {
			return nil
		}
		if !canTransitionOrder(order.Status, models.OrderCancelled) {
			return fmt.Errorf("%w: order %s is %s", models.ErrInvalidTransition, orderID, order.Status)
		}
		order.Status = models.OrderCancelled
		order.UpdatedAt = s.now()
		if err := s.Store.UpdateOrder(ctx, order); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.LogOrder("CANCEL", orderID, "order cancelled")
		s.orderStatusChanged(order, "The event booking has been cancelled by the organizer")
	}
	return order, nil
}

// UpdateOrderDetails changes the organizer-editable fields of a non-terminal order.
func (s *OrderService) UpdateOrderDetails(ctx context.Context, orderID string, req models.UpdateOrderDetailsRequest) (*models.Order, error) {
	if req.EventName == nil && req.EventDate == nil && req.EventTime == nil && req.Guests == nil {
		return nil, fmt.Errorf("%w: no fields to update", models.ErrInvalidInput)
	}
	if req.EventName != nil && strings.TrimSpace(*req.EventName) == "" {
		return nil, fmt.Errorf("%w: event name cannot be empty", models.ErrInvalidInput)
	}
	if req.EventDate != nil {
		if err := validateEventDate(*req.EventDate); err != nil {
			return nil, err
		}
	}
	if req.EventTime != nil {
		if err := validateEventTime(*req.EventTime); err != nil {
			return nil, err
		}
	}
	if req.Guests != nil && *req.Guests < 0 {
		return nil, fmt.Errorf("%w: guests cannot be negative", models.ErrInvalidInput)
	}

	var order *models.Order
	err := s.retry(ctx, func() error {
		var err error
		order, err = s.Store.GetOrderWithVendorOrders(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			return fmt.Errorf("%w: order %s is %s", models.ErrInvalidTransition, orderID, order.Status)
		}
		if req.EventName != nil {
			order.EventName = strings.TrimSpace(*req.EventName)
		}
		if req.EventDate != nil {
			order.EventDate = *req.EventDate
		}
		if req.EventTime != nil {
			order.EventTime = *req.EventTime
		}
		if req.Guests != nil {
			order.Guests = *req.Guests
		}
		order.UpdatedAt = s.now()
		return s.Store.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogOrder("UPDATE", orderID, "event details updated")
	return order, nil
}

// UpdateOrderStatus sets any valid status, bypassing derivation and transition rules.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", models.ErrInvalidInput, status)
	}

	var (
		order    *models.Order
		previous models.OrderStatus
	)
	err := s.retry(ctx, func() error {
		var err error
		order, err = s.Store.GetOrderWithVendorOrders(ctx, orderID)
		if err != nil {
			return err
		}
		previous = order.Status
		if order.Status == status {
			return nil
		}
		order.Status = status
		order.UpdatedAt = s.now()
		return s.Store.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	if previous != status {
		s.logger.LogOrder("SET_STATUS", orderID, fmt.Sprintf("administrative override %s -> %s", previous, status))
		s.orderStatusChanged(order, fmt.Sprintf("Your event booking is now %s", status))
	}
	return order, nil
}

// DeleteOrder removes the order and all of its vendor orders.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID string) error {
	unlock, err := s.Locker.LockOrder(ctx, orderID)
	if err != nil {
		return err
	}
	defer unlock()

	order, err := s.Store.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.Store.DeleteOrderCascade(ctx, orderID); err != nil {
		return err
	}

	s.logger.LogOrder("DELETE", orderID, "order and vendor orders deleted")
	s.Notifier.PublishEvent(s.topics.OrderDeleted, orderID, s.orderEvent("order.deleted", order))
	return nil
}

// ---------------- VENDOR ORDERS ----------------

func (s *OrderService) GetVendorOrder(ctx context.Context, id string) (*models.VendorOrder, error) {
	return s.Store.GetVendorOrderByID(ctx, id)
}

// RecordVendorResponse applies a vendor's accept or reject decision and then
// re-derives the order status, all under the order lock. Repeating the same
// decision is a no-op that still re-derives; reversing a decision is rejected.
func (s *OrderService) RecordVendorResponse(ctx context.Context, vendorOrderID string, req models.VendorResponseRequest) (*models.VendorOrder, error) {
	if req.Status != models.VendorOrderAccepted && req.Status != models.VendorOrderRejected {
		return nil, fmt.Errorf("%w: response status must be accepted or rejected, got %q", models.ErrInvalidInput, req.Status)
	}

	current, err := s.Store.GetVendorOrderByID(ctx, vendorOrderID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.Locker.LockOrder(ctx, current.OrderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var vo *models.VendorOrder
	changed := false
	err = s.retry(ctx, func() error {
		var err error
		changed = false
		vo, err = s.Store.GetVendorOrderByID(ctx, vendorOrderID)
		if err != nil {
			return err
		}
		if vo.Status == req.Status {
			return nil
		}
		if !canTransitionVendorOrder(vo.Status, req.Status) {
			return fmt.Errorf("%w: vendor order %s is already %s", models.ErrInvalidTransition, vendorOrderID, vo.Status)
		}

		now := s.now()
		vo.Status = req.Status
		vo.Message = strings.TrimSpace(req.Message)
		if vo.ConfirmationTime == nil {
			vo.ConfirmationTime = &now
		}
		vo.UpdatedAt = now
		if err := s.Store.UpdateVendorOrder(ctx, vo); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	order, confirmed, err := s.reevaluate(ctx, vo.OrderID)
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.LogOrder("RESPOND", vo.OrderID, fmt.Sprintf("vendor order %s %s by %s", vo.ID, vo.Status, vo.VendorID))
		s.vendorOrderResponded(order, vo)
	} else {
		s.logger.Debug("ORDER", fmt.Sprintf("Duplicate %s response for vendor order %s ignored", req.Status, vo.ID))
	}
	if confirmed {
		s.orderConfirmed(order)
	}
	return vo, nil
}

// CompleteVendorOrder moves an accepted vendor order to completed.
func (s *OrderService) CompleteVendorOrder(ctx context.Context, vendorOrderID string) (*models.VendorOrder, error) {
	var vo *models.VendorOrder
	err := s.retry(ctx, func() error {
		var err error
		vo, err = s.Store.GetVendorOrderByID(ctx, vendorOrderID)
		if err != nil {
			return err
		}
		if vo.Status != models.VendorOrderAccepted {
			return fmt.Errorf("%w: vendor order %s is %s, not accepted", models.ErrInvalidTransition, vendorOrderID, vo.Status)
		}
		vo.Status = models.VendorOrderCompleted
		vo.UpdatedAt = s.now()
		return s.Store.UpdateVendorOrder(ctx, vo)
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogOrder("VENDOR_COMPLETE", vo.OrderID, fmt.Sprintf("vendor order %s completed", vo.ID))
	s.vendorOrderCompleted(vo)
	return vo, nil
}

// CancelVendorOrder cancels a pending or accepted vendor order under the order lock.
func (s *OrderService) CancelVendorOrder(ctx context.Context, vendorOrderID string) (*models.VendorOrder, error) {
	current, err := s.Store.GetVendorOrderByID(ctx, vendorOrderID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.Locker.LockOrder(ctx, current.OrderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var vo *models.VendorOrder
	changed := false
	err = s.retry(ctx, func() error {
		var err error
		changed = false
		vo, err = s.Store.GetVendorOrderByID(ctx, vendorOrderID)
		if err != nil {
			return err
		}
		if vo.Status == models.VendorOrderCancelled {
			return nil
		}
		if !canTransitionVendorOrder(vo.Status, models.VendorOrderCancelled) {
			return fmt.Errorf("%w: vendor order %s is %s", models.ErrInvalidTransition, vendorOrderID, vo.Status)
		}
		vo.Status = models.VendorOrderCancelled
		vo.UpdatedAt = s.now()
		if err := s.Store.UpdateVendorOrder(ctx, vo); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.LogOrder("VENDOR_CANCEL", vo.OrderID, fmt.Sprintf("vendor order %s cancelled", vo.ID))
		s.vendorOrderCancelled(vo)
	}
	return vo, nil
}

// reevaluate re-derives the order status from its vendor orders and writes
// it if it changed. Callers must hold the order lock.
func (s *OrderService) reevaluate(ctx context.Context, orderID string) (*models.Order, bool, error) {
	var order *models.Order
	transitioned := false
	err := s.retry(ctx, func() error {
		var err error
		transitioned = false
		order, err = s.Store.GetOrderWithVendorOrders(ctx, orderID)
		if err != nil {
			return err
		}
		next := deriveOrderStatus(order.Status, childStatuses(order.VendorOrders))
		if next == order.Status {
			return nil
		}
		order.Status = next
		order.UpdatedAt = s.now()
		if err := s.Store.UpdateOrder(ctx, order); err != nil {
			return err
		}
		transitioned = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if transitioned {
		s.logger.LogOrder("CONFIRM", orderID, "all vendor orders accepted")
	}
	return order, transitioned, nil
}

// ---------------- VALIDATION ----------------

func (s *OrderService) validateCreate(req models.CreateOrderRequest) error {
	if strings.TrimSpace(req.OrganizerID) == "" {
		return fmt.Errorf("%w: organizer id is required", models.ErrInvalidInput)
	}
	if strings.TrimSpace(req.EventName) == "" {
		return fmt.Errorf("%w: event name is required", models.ErrInvalidInput)
	}
	if err := validateEventDate(req.EventDate); err != nil {
		return err
	}
	if err := validateEventTime(req.EventTime); err != nil {
		return err
	}
	if req.Guests < 0 {
		return fmt.Errorf("%w: guests cannot be negative", models.ErrInvalidInput)
	}
	if len(req.Items) == 0 && !s.allowEmpty {
		return fmt.Errorf("%w: at least one service is required", models.ErrInvalidInput)
	}
	for i, item := range req.Items {
		if strings.TrimSpace(item.VendorID) == "" {
			return fmt.Errorf("%w: item %d has no vendor", models.ErrInvalidInput, i)
		}
		if strings.TrimSpace(item.ServiceName) == "" {
			return fmt.Errorf("%w: item %d has no service name", models.ErrInvalidInput, i)
		}
		if !item.Price.IsPositive() {
			return fmt.Errorf("%w: item %d price must be positive, got %s", models.ErrInvalidInput, i, item.Price)
		}
	}
	return nil
}

func validateEventDate(date string) error {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return fmt.Errorf("%w: event date %q must be YYYY-MM-DD", models.ErrInvalidInput, date)
	}
	return nil
}

func validateEventTime(t string) error {
	if t == "" {
		return nil
	}
	if _, err := time.Parse(timeLayout, t); err != nil {
		return fmt.Errorf("%w: event time %q must be HH:MM", models.ErrInvalidInput, t)
	}
	return nil
}
