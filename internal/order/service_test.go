package order_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/order"
	"ms-booking/internal/order/db"
	"ms-booking/internal/order/pricing"
	orderredis "ms-booking/internal/order/redis"
)

var testTopics = config.TopicConfig{
	Notifications:        "booking.notifications",
	OrderCreated:         "booking.order.created",
	OrderConfirmed:       "booking.order.confirmed",
	OrderCompleted:       "booking.order.completed",
	OrderCancelled:       "booking.order.cancelled",
	OrderDeleted:         "booking.order.deleted",
	VendorOrderResponded: "booking.vendor_order.responded",
	VendorOrderCompleted: "booking.vendor_order.completed",
	VendorOrderCancelled: "booking.vendor_order.cancelled",
}

type sentNotification struct {
	UserID, Title, Category string
}

type sentEvent struct {
	Topic, Key string
}

// recordingNotifier captures dispatches synchronously so tests can count them.
type recordingNotifier struct {
	mu            sync.Mutex
	notifications []sentNotification
	events        []sentEvent
}

func (n *recordingNotifier) Notify(userID, title, body, category string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, sentNotification{UserID: userID, Title: title, Category: category})
}

func (n *recordingNotifier) PublishEvent(topic, key string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{Topic: topic, Key: key})
}

func (n *recordingNotifier) count(topic, key string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, ev := range n.events {
		if ev.Topic == topic && (key == "" || ev.Key == key) {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) notificationsFor(userID string) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentNotification
	for _, sent := range n.notifications {
		if sent.UserID == userID {
			out = append(out, sent)
		}
	}
	return out
}

type testEnv struct {
	svc      *order.OrderService
	store    *db.DB
	notifier *recordingNotifier
}

func setupService(t *testing.T, allowEmpty bool) *testEnv {
	t.Helper()

	bunDB, err := db.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, db.CreateTables(context.Background(), bunDB))
	store := &db.DB{Bun: bunDB}

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	locker := orderredis.NewRedis(client, 10*time.Second, 10*time.Second, logger.NewNop())

	calc, err := pricing.NewCalculator(pricing.DefaultPolicy())
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	svc := order.NewOrderService(store, locker, notifier, calc, order.Options{
		AllowEmpty:      allowEmpty,
		ConflictRetries: 5,
		Topics:          testTopics,
		Logger:          logger.NewNop(),
	})
	return &testEnv{svc: svc, store: store, notifier: notifier}
}

func createRequest(prices ...int64) models.CreateOrderRequest {
	req := models.CreateOrderRequest{
		OrganizerID: "organizer-1",
		EventName:   "Wedding",
		EventDate:   "2026-12-01",
		EventTime:   "18:30",
		Guests:      150,
	}
	for i, p := range prices {
		req.Items = append(req.Items, models.OrderItemRequest{
			VendorID:    fmt.Sprintf("v%d", i+1),
			ServiceName: fmt.Sprintf("service-%d", i+1),
			Price:       decimal.NewFromInt(p),
		})
	}
	return req
}

func accept() models.VendorResponseRequest {
	return models.VendorResponseRequest{Status: models.VendorOrderAccepted, Message: "see you there"}
}

func reject() models.VendorResponseRequest {
	return models.VendorResponseRequest{Status: models.VendorOrderRejected, Message: "fully booked"}
}

func orderStatus(t *testing.T, env *testEnv, orderID string) models.OrderStatus {
	t.Helper()
	o, err := env.svc.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	return o.Status
}

// ---------------- CREATE ----------------

func TestCreateOrder_PricesAndFansOut(t *testing.T) {
	env := setupService(t, false)
	ctx := context.Background()

	req := models.CreateOrderRequest{
		OrganizerID: "organizer-1",
		EventName:   "Gala",
		EventDate:   "2026-11-20",
		EventTime:   "19:00",
		Guests:      80,
		Items: []models.OrderItemRequest{
			{VendorID: "v1", ServiceName: "DJ", Price: decimal.NewFromInt(5000)},
			{VendorID: "v2", ServiceName: "Catering", Price: decimal.NewFromInt(3000)},
		},
	}

	created, err := env.svc.CreateOrder(ctx, req)
	require.NoError(t, err)

	assert.True(t, created.TotalAmount.Equal(decimal.NewFromInt(8000)))
	assert.True(t, created.Discount.Equal(decimal.NewFromInt(800)))
	assert.True(t, created.FinalAmount.Equal(decimal.NewFromInt(7200)))
	assert.Equal(t, models.OrderPending, created.Status)
	require.Len(t, created.VendorOrderIDs, 2)

	stored, err := env.svc.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, stored.VendorOrders, 2)
	assert.Equal(t, created.VendorOrderIDs, stored.VendorOrderIDs)
	for i, vo := range stored.VendorOrders {
		assert.Equal(t, models.VendorOrderPending, vo.Status)
		assert.Equal(t, created.ID, vo.OrderID)
		assert.Equal(t, created.VendorOrderIDs[i], vo.ID)
		assert.Nil(t, vo.ConfirmationTime)
	}
	assert.Equal(t, "DJ", stored.VendorOrders[0].ServiceName)
	assert.Equal(t, "Catering", stored.VendorOrders[1].ServiceName)

	assert.Equal(t, 1, env.notifier.count(testTopics.OrderCreated, created.ID))
	assert.Len(t, env.notifier.notificationsFor("v1"), 1)
	assert.Len(t, env.notifier.notificationsFor("v2"), 1)
}

func TestCreateOrder_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *models.CreateOrderRequest)
	}{
		{"missing organizer", func(r *models.CreateOrderRequest) { r.OrganizerID = "" }},
		{"missing event name", func(r *models.CreateOrderRequest) { r.EventName = "  " }},
		{"unparseable date", func(r *models.CreateOrderRequest) { r.EventDate = "01/12/2026" }},
		{"unparseable time", func(r *models.CreateOrderRequest) { r.EventTime = "7pm" }},
		{"negative guests", func(r *models.CreateOrderRequest) { r.Guests = -1 }},
		{"empty items", func(r *models.CreateOrderRequest) { r.Items = nil }},
		{"zero price", func(r *models.CreateOrderRequest) { r.Items[0].Price = decimal.Zero }},
		{"negative price", func(r *models.CreateOrderRequest) { r.Items[1].Price = decimal.NewFromInt(-10) }},
		{"missing vendor", func(r *models.CreateOrderRequest) { r.Items[0].VendorID = "" }},
		{"missing service name", func(r *models.CreateOrderRequest) { r.Items[1].ServiceName = "" }},
		{"sub-cent price", func(r *models.CreateOrderRequest) { r.Items[0].Price = decimal.RequireFromString("10.005") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupService(t, false)
			req := createRequest(5000, 3000)
			tt.mutate(&req)

			_, err := env.svc.CreateOrder(context.Background(), req)
			assert.ErrorIs(t, err, models.ErrInvalidInput)

			count, err := env.store.Bun.NewSelect().Model((*models.Order)(nil)).Count(context.Background())
			require.NoError(t, err)
			assert.Zero(t, count, "nothing may be persisted on invalid input")
		})
	}
}

func TestCreateOrder_EmptyItemsPolicy(t *testing.T) {
	t.Run("rejected by default", func(t *testing.T) {
		env := setupService(t, false)
		_, err := env.svc.CreateOrder(context.Background(), createRequest())
		assert.ErrorIs(t, err, models.ErrInvalidInput)
	})

	t.Run("allowed when configured", func(t *testing.T) {
		env := setupService(t, true)
		ctx := context.Background()

		created, err := env.svc.CreateOrder(ctx, createRequest())
		require.NoError(t, err)
		assert.True(t, created.TotalAmount.IsZero())
		assert.True(t, created.FinalAmount.IsZero())
		assert.Empty(t, created.VendorOrderIDs)

		// an order with no vendor orders never confirms
		_, confirmed, err := env.svc.ReconcileOrder(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, confirmed)
		assert.Equal(t, models.OrderPending, orderStatus(t, env, created.ID))
	})
}

// ---------------- VENDOR RESPONSES ----------------

func TestRecordVendorResponse_ConfirmsOnlyWhenAllAccepted(t *testing.T) {
	for _, ordering := range [][]int{{0, 1}, {1, 0}} {
		t.Run(fmt.Sprintf("order %v", ordering), func(t *testing.T) {
			env := setupService(t, false)
			ctx := context.Background()

			created, err := env.svc.CreateOrder(ctx, createRequest(5000, 3000))
			require.NoError(t, err)

			first, err := env.svc.RecordVendorResponse(ctx, created.VendorOrderIDs[ordering[0]], accept())
			require.NoError(t, err)
			assert.Equal(t, models.VendorOrderAccepted, first.Status)
			assert.NotNil(t, first.ConfirmationTime)
			assert.Equal(t, "see you there", first.Message)
			assert.Equal(t, models.OrderPending, orderStatus(t, env, created.ID))

			_, err = env.svc.RecordVendorResponse(ctx, created.VendorOrderIDs[ordering[1]], accept())
			require.NoError(t, err)
			assert.Equal(t, models.OrderConfirmed, orderStatus(t, env, created.ID))

			assert.Equal(t, 1, env.notifier.count(testTopics.OrderConfirmed, created.ID))
			assert.Equal(t, 2, env.notifier.count(testTopics.VendorOrderResponded, created.ID))
		})
	}
}

func TestRecordVendorResponse_RejectionBlocksConfirmation(t *testing.T) {
	env := setupService(t, false)
	ctx := context.Background()

	created, err := env.svc.CreateOrder(ctx, createRequest(5000, 3000))
	require.NoError(t, err)

	_, err = env.svc.RecordVendorResponse(ctx, created.VendorOrderIDs[0], reject())
	require.NoError(t, err)
	_, err = env.svc.RecordVendorResponse(ctx, created.VendorOrderIDs[1], accept())
	require.NoError(t, err)

	assert.Equal(t, models.OrderPending, orderStatus(t, env, created.ID))

	// neither reconciliation path changes it
	_, confirmed, err := env.svc.ReconcileOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, confirmed)
	n, err := env.svc.ReconcilePending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, models.OrderPending, orderStatus(t, env, created.ID))
	assert.Zero(t, env.notifier.count(testTopics.OrderConfirmed, ""))
	assert.Zero(t, env.notifier.count(testTopics.OrderCancelled, ""))
}

func TestRecordVendorResponse_DuplicateIsNoOp(t *testing.T) {
	env := setupService(t, false)
	ctx := context.Background()

	created, err := env.svc.CreateOrder(ctx, createRequest(5000, 3000))
	require.NoError(t, err)
	id := created.VendorOrderIDs[0]

	_, err = env.svc.RecordVendorResponse(ctx, id, accept())
	require.NoError(t, err)
	first, err := env.svc.GetVendorOrder(ctx, id)
	require.NoError(t, err)

	second, err := env.svc.RecordVendorResponse(ctx, id, models.VendorResponseRequest{
		Status:  models.VendorOrderAccepted,
		Message: "a different note",
	})
	require.NoError(t, err)

	assert.Equal(t, models.VendorOrderAccepted, second.Status)
	assert.Equal(t, first.Message, second.Message)
	require.NotNil(t, second.ConfirmationTime)
	assert.True(t, first.ConfirmationTime.Equal(*second.ConfirmationTime), "confirmation time is set once")
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, 1, env.notifier.count(testTopics.VendorOrderResponded, created.ID))
}

func TestRecordVendorResponse_ReversalIsInvalidTransition(t *testing.T) {
	env := setupService(t, false)
	ctx := context.Background()

	created, err := env.svc.CreateOrder(ctx, createRequest(5000))
	require.NoError(t, err)
	id := created.VendorOrderIDs[0]

	_, err = env.svc.RecordVendorResponse(ctx, id, reject())
	require.NoError(t, err)

	_, err = env.svc.RecordVendorResponse(ctx, id, accept())
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	vo, err := env.svc.GetVendorOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.VendorOrderRejected, vo.Status)
	assert.Equal(t, models.OrderPending, orderStatus(t, env, created.ID))
}

func TestRecordVendorResponse_BadInput(t *testing.T) {
	env := setupService(t, false)
	ctx := context.Background()

	created, err := env.svc.CreateOrder(ctx, createRequest(5000))
	require.NoError(t, err)

	_, err = env.svc.RecordVendorResponse(ctx, created.VendorOrderIDs[0], models.VendorResponseRequest{Status: models.VendorOrderCompleted})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = env.svc.RecordVendorResponse(ctx, "missing", accept())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRecordVendorResponse_ConcurrentLastTwoConfirmOnce(t *testing.T) {
	env := setupService(t, false)
	ctx := context.Background()

	for run := 0; run < 15; run++ {
		created, err := env.svc.CreateOrder(ctx, createRequest(1000, 2000, 3000))
		require.NoError(t, err)

		_, err = env.svc.RecordVendorResponse(ctx, created.VendorOrderIDs[0], accept())
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		start := make(chan struct{})
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, errs[i] = env.svc.RecordVendorResponse(ctx, created.VendorOrderIDs[i+1], accept())
			}(i)
		}
		close(start)
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		assert.Equal(t, models.OrderConfirmed, orderStatus(t, env, created.ID), "run %d", run)
		assert.Equal(t, 1, env.notifier.count(testTopics.OrderConfirmed, created.ID), "run %d", run)
	}
}

// ---------------- COMPLETION ----------------

func TestCompleteVendorOrder(t *testing.T) {
	env := setupService(t, false)
	ctx := context.Background()

	created, err := env.svc.CreateOrder(ctx, createRequest(5000, 3000))
	require.NoError(t, err)
	id := created.VendorOrderIDs[0]

	_, err = env.svc.CompleteVendorOrder(ctx, id)
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "pending vendor orders cannot complete")

	_, err = env.svc.RecordVendorResponse(ctx, id, accept())
	require.NoError(t, err)

	vo, err := env.svc.CompleteVendorOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.VendorOrderCompleted, vo.Status)

	_, err = env.svc.CompleteVendorOrder(ctx, id)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = env.svc.CompleteVendorOrder(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	// the order is never completed as a side effect
	assert.Equal(t, models.OrderPending, orderStatus(t, env, created.ID))
	assert.Equal(t, 1, env.notifier.count(testTopics.VendorOrderCompleted, created.ID))
}

func TestConfirmOrderCompletion_IgnoresVendorOrderStates(t *testing.T) {
	env := setupService(t, false)
	ctx := context.Background()

	created, err := env.svc.CreateOrder(ctx, createRequest(5000, 3000))
	require.NoError(t, err)
	_, err = env.svc.RecordVendorResponse(ctx, created.VendorOrderIDs[0], accept())
	require.NoError(t, err)

	completed, err := env.svc.ConfirmOrderCompletion(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, completed.Status)
	assert.Equal(t, models.VendorOrderPending, completed.VendorOrders[1].Status)

	again, err := env.svc.ConfirmOrderCompletion(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, again.Status)
	assert.Equal(t, 1, env.notifier.count(testTopics.OrderCompleted, created.ID))

	// a late acceptance no longer moves a completed order
	_, err = env.svc.RecordVendorResponse(ctx, created.VendorOrderIDs[1], accept())
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, orderStatus(t, env, created.ID))
}

func TestConfirmOrderCompletion_FromConfirmedAndCancelled(t *testing.T) {
	env := setupService(t, false)
	ctx := context.Background()

	confirmedOrder, err := env.svc.CreateOrder(ctx, createRequest(5000))
	require.NoError(t, err)
	_, err = env.svc.RecordVendorResponse(ctx, confirmedOrder.VendorOrderIDs[0], accept())
	require.NoError(t, err)
	completed, err := env.svc.ConfirmOrderCompletion(ctx, confirmedOrder.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, completed.Status)

	cancelledOrder, err := env.svc.CreateOrder(ctx, createRequest(5000))
	require.NoError(t, err)
	_, err = env.svc.CancelOrder(ctx, cancelledOrder.ID)
	require.NoError(t, err)
	_, err = env.svc.ConfirmOrderCompletion(ctx, cancelledOrder.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = env.svc.ConfirmOrderCompletion(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// ---------------- CANCEL / UPDATE ----------------

func TestCancelOrder(t *testing.T) {
	env := setupService(t, false)
	ctx := context.Background()

	created, err := env.svc.CreateOrder(ctx, createRequest(5000, 3000))
	require.NoError(t, err)

	cancelled, err := env.svc.CancelOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)

	_, err = env.svc.CancelOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, env.notifier.count(testTopics.OrderCancelled, created.ID))

	// vendors are told about the cancellation
	assert.Len(t, env.notifier.notificationsFor("v1"), 2)

	completedOrder, err := env.svc.CreateOrder(ctx, createRequest(5000))
	require.NoError(t, err)
	_, err = env.svc.ConfirmOrderCompletion(ctx, completedOrder.ID)
	require.NoError(t, err)
	_, err = env.svc.CancelOrder(ctx, completedOrder.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestCancelVendorOrder(t *testing.T) {
	env := setupService(t, false)
	ctx := context.Background()

	created, err := env.svc.CreateOrder(ctx, createRequest(5000, 3000, 1000))
	require.NoError(t, err)

	_, err = env.svc.RecordVendorResponse(ctx, created.VendorOrderIDs[0], accept())
	require.NoError(t, err)
	vo, err := env.svc.CancelVendorOrder(ctx, created.VendorOrderIDs[0])
	require.NoError(t, err)
	assert.Equal(t, models.VendorOrderCancelled, vo.Status)

	vo, err = env.svc.CancelVendorOrder(ctx, created.VendorOrderIDs[1])
	require.NoError(t, err)
	assert.Equal(t, models.VendorOrderCancelled, vo.Status)

	_, err = env.svc.CancelVendorOrder(ctx, created.VendorOrderIDs[1])
	require.NoError(t, err, "cancelling twice is a no-op")
	assert.Equal(t, 2, env.notifier.count(testTopics.VendorOrderCancelled, created.ID))

	_, err = env.svc.RecordVendorResponse(ctx, created.VendorOrderIDs[2], reject())
	require.NoError(t, err)
	_, err = env.svc.CancelVendorOrder(ctx, created.VendorOrderIDs[2])
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "rejected is terminal")

	_, err = env.svc.RecordVendorResponse(ctx, created.VendorOrderIDs[1], accept())
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "cancelled is terminal")
}

func TestUpdateOrderDetails(t *testing.T) {
	env := setupService(t, false)
	ctx := context.Background()

	created, err := env.svc.CreateOrder(ctx, createRequest(5000))
	require.NoError(t, err)

	name := "Anniversary"
	guests := 40
	updated, err := env.svc.UpdateOrderDetails(ctx, created.ID, models.UpdateOrderDetailsRequest{EventName: &name, Guests: &guests})
	require.NoError(t, err)
	assert.Equal(t, "Anniversary", updated.EventName)
	assert.Equal(t, 40, updated.Guests)
	assert.Equal(t, "2026-12-01", updated.EventDate)

	stored, err := env.svc.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Anniversary", stored.EventName)
	assert.True(t, stored.FinalAmount.Equal(created.FinalAmount), "pricing is fixed at creation")

	_, err = env.svc.UpdateOrderDetails(ctx, created.ID, models.UpdateOrderDetailsRequest{})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	badDate := "2026-13-40"
	_, err = env.svc.UpdateOrderDetails(ctx, created.ID, models.UpdateOrderDetailsRequest{EventDate: &badDate})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = env.svc.CancelOrder(ctx, created.ID)
	require.NoError(t, err)
	_, err = env.svc.UpdateOrderDetails(ctx, created.ID, models.UpdateOrderDetailsRequest{Guests: &guests})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestUpdateOrderStatus_BypassesDerivation(t *testing.T) {
	env := setupService(t, false)
	ctx := context.Background()

	created, err := env.svc.CreateOrder(ctx, createRequest(5000, 3000))
	require.NoError(t, err)

	_, err = env.svc.UpdateOrderStatus(ctx, created.ID, models.OrderStatus("shipped"))
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	updated, err := env.svc.UpdateOrderStatus(ctx, created.ID, models.OrderConfirmed)
	require.NoError(t, err)
	assert.Equal(t, models.OrderConfirmed, updated.Status)

	updated, err = env.svc.UpdateOrderStatus(ctx, created.ID, models.OrderPending)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, updated.Status)

	_, err = env.svc.UpdateOrderStatus(ctx, "missing", models.OrderPending)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// ---------------- DELETE ----------------

func TestDeleteOrder_LeavesNoOrphans(t *testing.T) {
	env := setupService(t, false)
	ctx := context.Background()

	created, err := env.svc.CreateOrder(ctx, createRequest(5000, 3000))
	require.NoError(t, err)
	_, err = env.svc.RecordVendorResponse(ctx, created.VendorOrderIDs[0], accept())
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteOrder(ctx, created.ID))

	_, err = env.svc.GetOrder(ctx, created.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	remaining, err := env.store.GetVendorOrdersByOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	for _, id := range created.VendorOrderIDs {
		_, err := env.svc.GetVendorOrder(ctx, id)
		assert.ErrorIs(t, err, models.ErrNotFound)
	}

	assert.ErrorIs(t, env.svc.DeleteOrder(ctx, created.ID), models.ErrNotFound)
	assert.Equal(t, 1, env.notifier.count(testTopics.OrderDeleted, created.ID))
}

// ---------------- RECONCILIATION ----------------

func TestReconcile_RepairsMissedConfirmation(t *testing.T) {
	env := setupService(t, false)
	ctx := context.Background()

	created, err := env.svc.CreateOrder(ctx, createRequest(5000, 3000))
	require.NoError(t, err)

	// simulate responses written without the aggregate step
	children, err := env.store.GetVendorOrdersByOrder(ctx, created.ID)
	require.NoError(t, err)
	for _, vo := range children {
		vo.Status = models.VendorOrderAccepted
		require.NoError(t, env.store.UpdateVendorOrder(ctx, vo))
	}
	assert.Equal(t, models.OrderPending, orderStatus(t, env, created.ID))

	n, err := env.svc.ReconcilePending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.OrderConfirmed, orderStatus(t, env, created.ID))

	// running again is idempotent
	_, confirmed, err := env.svc.ReconcileOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, confirmed)
	assert.Equal(t, 1, env.notifier.count(testTopics.OrderConfirmed, created.ID))
}

func TestReconcilePending_StuckOrdersDoNotStarveNewerOrders(t *testing.T) {
	env := setupService(t, false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		stuck, err := env.svc.CreateOrder(ctx, createRequest(5000, 3000))
		require.NoError(t, err)
		_, err = env.svc.RecordVendorResponse(ctx, stuck.VendorOrderIDs[0], reject())
		require.NoError(t, err)
	}

	missed, err := env.svc.CreateOrder(ctx, createRequest(5000, 3000))
	require.NoError(t, err)
	children, err := env.store.GetVendorOrdersByOrder(ctx, missed.ID)
	require.NoError(t, err)
	for _, vo := range children {
		vo.Status = models.VendorOrderAccepted
		require.NoError(t, env.store.UpdateVendorOrder(ctx, vo))
	}

	n, err := env.svc.ReconcilePending(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.OrderConfirmed, orderStatus(t, env, missed.ID))
}

func TestHandleVendorOrderEvent(t *testing.T) {
	env := setupService(t, false)
	ctx := context.Background()

	created, err := env.svc.CreateOrder(ctx, createRequest(5000))
	require.NoError(t, err)
	children, err := env.store.GetVendorOrdersByOrder(ctx, created.ID)
	require.NoError(t, err)
	children[0].Status = models.VendorOrderAccepted
	require.NoError(t, env.store.UpdateVendorOrder(ctx, children[0]))

	payload, err := json.Marshal(models.VendorOrderEvent{
		Type:          "vendor_order.responded",
		VendorOrderID: children[0].ID,
		OrderID:       created.ID,
		Status:        models.VendorOrderAccepted,
	})
	require.NoError(t, err)

	require.NoError(t, env.svc.HandleVendorOrderEvent(ctx, created.ID, payload))
	assert.Equal(t, models.OrderConfirmed, orderStatus(t, env, created.ID))

	gone, err := json.Marshal(models.VendorOrderEvent{OrderID: "deleted-order"})
	require.NoError(t, err)
	assert.NoError(t, env.svc.HandleVendorOrderEvent(ctx, "deleted-order", gone))

	assert.ErrorIs(t, env.svc.HandleVendorOrderEvent(ctx, "k", []byte("{not json")), models.ErrInvalidInput)
	assert.ErrorIs(t, env.svc.HandleVendorOrderEvent(ctx, "k", []byte(`{}`)), models.ErrInvalidInput)
}
