package analytics_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-booking/internal/analytics"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/order/db"
)

var fixedNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *analytics.Service
	store *db.DB
}

func setup(t *testing.T) *fixture {
	t.Helper()
	bunDB, err := db.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, db.CreateTables(context.Background(), bunDB))

	svc := analytics.NewService(bunDB, logger.NewNop()).WithClock(func() time.Time { return fixedNow })
	return &fixture{svc: svc, store: &db.DB{Bun: bunDB}}
}

type line struct {
	vendor string
	price  int64
	status models.VendorOrderStatus
}

func (f *fixture) seed(t *testing.T, organizer string, status models.OrderStatus, createdAt time.Time, lines ...line) *models.Order {
	t.Helper()
	total := decimal.Zero
	o := &models.Order{
		ID:          uuid.NewString(),
		OrganizerID: organizer,
		EventName:   "Event",
		EventDate:   "2026-06-01",
		Status:      status,
		Version:     1,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	var vendorOrders []*models.VendorOrder
	for i, l := range lines {
		vo := &models.VendorOrder{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			VendorID:    l.vendor,
			Position:    i,
			ServiceName: fmt.Sprintf("service-%d", i),
			Price:       decimal.NewFromInt(l.price),
			Status:      l.status,
			Version:     1,
			CreatedAt:   createdAt,
			UpdatedAt:   createdAt,
		}
		total = total.Add(vo.Price)
		o.VendorOrderIDs = append(o.VendorOrderIDs, vo.ID)
		vendorOrders = append(vendorOrders, vo)
	}
	o.TotalAmount = total
	o.FinalAmount = total
	require.NoError(t, f.store.CreateOrderWithVendorOrders(context.Background(), o, vendorOrders))
	return o
}

func organizer(id string) models.Actor { return models.Actor{UserID: id, Role: models.RoleOrganizer} }
func vendor(id string) models.Actor    { return models.Actor{UserID: id, Role: models.RoleVendor} }

func TestGetOrders_Organizer(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.svc.UpsertUser(ctx, &models.User{ID: "org-1", FullName: "Olivia Organizer", Email: "olivia@example.com", Role: models.RoleOrganizer}))
	require.NoError(t, f.svc.UpsertUser(ctx, &models.User{ID: "v1", FullName: "DJ Vee", Role: models.RoleVendor}))

	older := f.seed(t, "org-1", models.OrderPending, fixedNow.Add(-48*time.Hour),
		line{"v1", 500, models.VendorOrderPending}, line{"v2", 300, models.VendorOrderAccepted})
	newer := f.seed(t, "org-1", models.OrderConfirmed, fixedNow.Add(-time.Hour),
		line{"v1", 200, models.VendorOrderAccepted})
	f.seed(t, "org-2", models.OrderPending, fixedNow, line{"v1", 100, models.VendorOrderPending})

	page, err := f.svc.GetOrders(ctx, organizer("org-1"), "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, analytics.DefaultPageLimit, page.Limit)
	require.Len(t, page.Items, 2)
	assert.Equal(t, newer.ID, page.Items[0].ID, "newest first")
	assert.Equal(t, older.ID, page.Items[1].ID)

	require.NotNil(t, page.Items[0].Organizer)
	assert.Equal(t, "Olivia Organizer", page.Items[0].Organizer.FullName)
	require.Len(t, page.Items[1].VendorOrders, 2)
	assert.Equal(t, "DJ Vee", page.Items[1].VendorOrders[0].Vendor.FullName)
	assert.Nil(t, page.Items[1].VendorOrders[1].Vendor, "unknown vendors have no profile")

	filtered, err := f.svc.GetOrders(ctx, organizer("org-1"), "pending", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, filtered.Total)
	require.Len(t, filtered.Items, 1)
	assert.Equal(t, older.ID, filtered.Items[0].ID)

	_, err = f.svc.GetOrders(ctx, organizer("org-1"), "accepted", 10, 0)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestGetOrders_VendorSeesOnlyOwnVendorOrders(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	shared := f.seed(t, "org-1", models.OrderPending, fixedNow.Add(-time.Hour),
		line{"v1", 500, models.VendorOrderAccepted}, line{"v2", 300, models.VendorOrderPending})
	f.seed(t, "org-1", models.OrderPending, fixedNow, line{"v2", 100, models.VendorOrderPending})

	page, err := f.svc.GetOrders(ctx, vendor("v1"), "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, shared.ID, page.Items[0].ID)
	require.Len(t, page.Items[0].VendorOrders, 1)
	assert.Equal(t, "v1", page.Items[0].VendorOrders[0].VendorID)

	page, err = f.svc.GetOrders(ctx, vendor("v2"), "pending", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = f.svc.GetOrders(ctx, vendor("v1"), "pending", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Items)
}

func TestGetOrders_Pagination(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.seed(t, "org-1", models.OrderPending, fixedNow.Add(-time.Duration(i)*time.Hour), line{"v1", 100, models.VendorOrderPending})
	}

	page, err := f.svc.GetOrders(ctx, organizer("org-1"), "", 2, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 4, page.Skip)

	limit, skip := analytics.NormalizePage(1000, -3)
	assert.Equal(t, analytics.MaxPageLimit, limit)
	assert.Zero(t, skip)
}

func TestGetOrders_InvalidActor(t *testing.T) {
	f := setup(t)
	_, err := f.svc.GetOrders(context.Background(), models.Actor{UserID: "u", Role: "admin"}, "", 10, 0)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = f.svc.GetOrders(context.Background(), models.Actor{Role: models.RoleVendor}, "", 10, 0)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestGetOrderStats_ZeroFilled(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.seed(t, "org-1", models.OrderPending, fixedNow, line{"v1", 100, models.VendorOrderAccepted})
	f.seed(t, "org-1", models.OrderPending, fixedNow, line{"v1", 100, models.VendorOrderRejected})
	f.seed(t, "org-1", models.OrderCompleted, fixedNow, line{"v2", 100, models.VendorOrderCompleted})

	stats, err := f.svc.GetOrderStats(ctx, organizer("org-1"))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, map[string]int{"pending": 2, "confirmed": 0, "completed": 1, "cancelled": 0}, stats.ByStatus)

	vstats, err := f.svc.GetOrderStats(ctx, vendor("v1"))
	require.NoError(t, err)
	assert.Equal(t, 2, vstats.Total)
	assert.Equal(t, map[string]int{"pending": 0, "accepted": 1, "rejected": 1, "cancelled": 0, "completed": 0}, vstats.ByStatus)

	empty, err := f.svc.GetOrderStats(ctx, organizer("nobody"))
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Len(t, empty.ByStatus, len(models.OrderStatuses))
}

func TestGetOrderStatsForVendor_SixBuckets(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	jan := time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)
	mar := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	aug := time.Date(2025, time.August, 20, 9, 0, 0, 0, time.UTC)

	f.seed(t, "org-1", models.OrderPending, jan, line{"v1", 500, models.VendorOrderAccepted})
	f.seed(t, "org-1", models.OrderPending, jan, line{"v1", 250, models.VendorOrderRejected})
	f.seed(t, "org-1", models.OrderPending, mar, line{"v1", 300, models.VendorOrderCompleted}, line{"v2", 999, models.VendorOrderAccepted})
	f.seed(t, "org-1", models.OrderPending, aug, line{"v1", 700, models.VendorOrderAccepted})

	stats, err := f.svc.GetOrderStatsForVendor(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, stats, analytics.TrendMonths)

	months := make([]string, len(stats))
	for i, s := range stats {
		months[i] = s.Month
	}
	assert.Equal(t, []string{"2025-10", "2025-11", "2025-12", "2026-01", "2026-02", "2026-03"}, months)
	assert.Equal(t, "Oct", stats[0].Label)
	assert.Equal(t, "Mar", stats[5].Label)

	assert.Equal(t, 2, stats[3].Orders)
	assert.Equal(t, 1, stats[3].Accepted)
	assert.True(t, stats[3].Revenue.Equal(decimal.NewFromInt(500)))

	assert.Zero(t, stats[4].Orders, "empty months are present with zero counts")
	assert.True(t, stats[4].Revenue.IsZero())

	assert.Equal(t, 1, stats[5].Orders)
	assert.True(t, stats[5].Revenue.Equal(decimal.NewFromInt(300)))
}

func TestGetOrderStatsForVendor_NoActivity(t *testing.T) {
	f := setup(t)

	stats, err := f.svc.GetOrderStatsForVendor(context.Background(), "idle-vendor")
	require.NoError(t, err)
	require.Len(t, stats, analytics.TrendMonths)
	for _, s := range stats {
		assert.Zero(t, s.Orders)
		assert.Zero(t, s.Accepted)
	}

	_, err = f.svc.GetOrderStatsForVendor(context.Background(), " ")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestUpsertUser(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.svc.UpsertUser(ctx, &models.User{ID: "org-1", FullName: "Old Name", Role: models.RoleOrganizer}))
	require.NoError(t, f.svc.UpsertUser(ctx, &models.User{ID: "org-1", FullName: "New Name", Role: models.RoleOrganizer}))
	f.seed(t, "org-1", models.OrderPending, fixedNow, line{"v1", 100, models.VendorOrderPending})

	page, err := f.svc.GetOrders(ctx, organizer("org-1"), "", 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "New Name", page.Items[0].Organizer.FullName)

	assert.ErrorIs(t, f.svc.UpsertUser(ctx, &models.User{ID: "x"}), models.ErrInvalidInput)
	assert.ErrorIs(t, f.svc.UpsertUser(ctx, &models.User{ID: "x", FullName: "X", Role: "admin"}), models.ErrInvalidInput)
}
