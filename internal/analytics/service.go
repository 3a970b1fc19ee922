package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
	TrendMonths      = 6
)

// Service answers read-only reporting queries over orders and vendor orders.
type Service struct {
	db     *DB
	logger *logger.Logger
	now    func() time.Time
}

// NewService creates a new analytics service
func NewService(db *bun.DB, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		db:     NewDB(db),
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the service clock. Used to pin the trailing month window.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// VendorOrderView is a vendor order joined with its vendor's display profile.
type VendorOrderView struct {
	*models.VendorOrder
	Vendor *models.UserSummary `json:"vendor,omitempty"`
}

// OrderView is an order joined with organizer and vendor display data.
type OrderView struct {
	*models.Order
	Organizer    *models.UserSummary `json:"organizer,omitempty"`
	VendorOrders []VendorOrderView   `json:"vendor_orders"`
}

// OrderPage is one page of getOrders.
type OrderPage struct {
	Items []OrderView `json:"items"`
	Total int         `json:"total"`
	Limit int         `json:"limit"`
	Skip  int         `json:"skip"`
}

// OrderStats counts an actor's orders (organizer) or vendor orders (vendor) per status.
type OrderStats struct {
	Role     models.Role    `json:"role"`
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

// MonthlyStat is one bucket of a vendor's trailing monthly trend.
type MonthlyStat struct {
	Month    string          `json:"month"`
	Label    string          `json:"label"`
	Orders   int             `json:"orders"`
	Accepted int             `json:"accepted"`
	Revenue  decimal.Decimal `json:"revenue"`
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", models.ErrDependencyUnavailable, err)
}

func validateActor(actor models.Actor) error {
	if strings.TrimSpace(actor.UserID) == "" {
		return fmt.Errorf("%w: user id is required", models.ErrInvalidInput)
	}
	if !actor.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", models.ErrInvalidInput, actor.Role)
	}
	return nil
}

// NormalizePage applies the default and maximum page size.
func NormalizePage(limit, skip int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if skip < 0 {
		skip = 0
	}
	return limit, skip
}

// GetOrders lists the actor's orders newest first. Organizers see their own
// orders with every vendor order; vendors see orders they are assigned to with
// only their own vendor orders, and status filters their vendor order status.
func (s *Service) GetOrders(ctx context.Context, actor models.Actor, status string, limit, skip int) (*OrderPage, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	limit, skip = NormalizePage(limit, skip)

	var (
		orders   []*models.Order
		total    int
		err      error
		vendorID string
	)
	switch actor.Role {
	case models.RoleOrganizer:
		if status != "" && !models.OrderStatus(status).Valid() {
			return nil, fmt.Errorf("%w: unknown order status %q", models.ErrInvalidInput, status)
		}
		orders, total, err = s.db.ListOrdersByOrganizer(ctx, actor.UserID, status, limit, skip)
	case models.RoleVendor:
		if status != "" && !models.VendorOrderStatus(status).Valid() {
			return nil, fmt.Errorf("%w: unknown vendor order status %q", models.ErrInvalidInput, status)
		}
		vendorID = actor.UserID
		orders, total, err = s.db.ListOrdersByVendor(ctx, actor.UserID, status, limit, skip)
	}
	if err != nil {
		return nil, unavailable(err)
	}

	orderIDs := make([]string, len(orders))
	for i, o := range orders {
		orderIDs[i] = o.ID
	}
	vendorOrders, err := s.db.VendorOrdersForOrders(ctx, orderIDs, vendorID)
	if err != nil {
		return nil, unavailable(err)
	}

	userIDs := make([]string, 0, len(orders)+len(vendorOrders))
	seen := make(map[string]bool)
	for _, o := range orders {
		if !seen[o.OrganizerID] {
			seen[o.OrganizerID] = true
			userIDs = append(userIDs, o.OrganizerID)
		}
	}
	byOrder := make(map[string][]VendorOrderView, len(orders))
	for _, vo := range vendorOrders {
		if !seen[vo.VendorID] {
			seen[vo.VendorID] = true
			userIDs = append(userIDs, vo.VendorID)
		}
	}
	users, err := s.db.UsersByID(ctx, userIDs)
	if err != nil {
		return nil, unavailable(err)
	}

	for _, vo := range vendorOrders {
		byOrder[vo.OrderID] = append(byOrder[vo.OrderID], VendorOrderView{VendorOrder: vo, Vendor: summary(users[vo.VendorID])})
	}

	page := &OrderPage{Items: make([]OrderView, 0, len(orders)), Total: total, Limit: limit, Skip: skip}
	for _, o := range orders {
		views := byOrder[o.ID]
		if views == nil {
			views = []VendorOrderView{}
		}
		page.Items = append(page.Items, OrderView{
			Order:        o,
			Organizer:    summary(users[o.OrganizerID]),
			VendorOrders: views,
		})
	}

	s.logger.Debug("ANALYTICS", fmt.Sprintf("Listed %d of %d orders for %s %s", len(page.Items), total, actor.Role, actor.UserID))
	return page, nil
}

// GetOrderStats counts the actor's records per status. Every status appears,
// with zero when there are none.
func (s *Service) GetOrderStats(ctx context.Context, actor models.Actor) (*OrderStats, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}

	stats := &OrderStats{Role: actor.Role, ByStatus: make(map[string]int)}
	var (
		rows []StatusCount
		err  error
	)
	switch actor.Role {
	case models.RoleOrganizer:
		for _, st := range models.OrderStatuses {
			stats.ByStatus[string(st)] = 0
		}
		rows, err = s.db.CountOrdersByStatus(ctx, actor.UserID)
	case models.RoleVendor:
		for _, st := range models.VendorOrderStatuses {
			stats.ByStatus[string(st)] = 0
		}
		rows, err = s.db.CountVendorOrdersByStatus(ctx, actor.UserID)
	}
	if err != nil {
		return nil, unavailable(err)
	}

	for _, row := range rows {
		stats.ByStatus[row.Status] += row.Count
		stats.Total += row.Count
	}
	return stats, nil
}

// GetOrderStatsForVendor returns exactly TrendMonths monthly buckets, oldest
// first and ending with the current month. Months without vendor orders are
// present with zero values.
func (s *Service) GetOrderStatsForVendor(ctx context.Context, vendorID string) ([]MonthlyStat, error) {
	if strings.TrimSpace(vendorID) == "" {
		return nil, fmt.Errorf("%w: vendor id is required", models.ErrInvalidInput)
	}

	now := s.now().UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	start := current.AddDate(0, -(TrendMonths - 1), 0)

	buckets := make([]MonthlyStat, TrendMonths)
	index := make(map[string]int, TrendMonths)
	for i := range buckets {
		month := start.AddDate(0, i, 0)
		key := month.Format("2006-01")
		buckets[i] = MonthlyStat{Month: key, Label: month.Format("Jan"), Revenue: decimal.Zero}
		index[key] = i
	}

	vendorOrders, err := s.db.VendorOrdersSince(ctx, vendorID, start)
	if err != nil {
		return nil, unavailable(err)
	}

	for _, vo := range vendorOrders {
		i, ok := index[vo.CreatedAt.UTC().Format("2006-01")]
		if !ok {
			continue
		}
		buckets[i].Orders++
		if vo.Status == models.VendorOrderAccepted || vo.Status == models.VendorOrderCompleted {
			buckets[i].Accepted++
			buckets[i].Revenue = buckets[i].Revenue.Add(vo.Price)
		}
	}
	return buckets, nil
}

// UpsertUser records the display profile used by order listings.
func (s *Service) UpsertUser(ctx context.Context, user *models.User) error {
	if strings.TrimSpace(user.ID) == "" {
		return fmt.Errorf("%w: user id is required", models.ErrInvalidInput)
	}
	if strings.TrimSpace(user.FullName) == "" {
		return fmt.Errorf("%w: full name is required", models.ErrInvalidInput)
	}
	if user.Role != "" && !user.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", models.ErrInvalidInput, user.Role)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	if err := s.db.UpsertUser(ctx, user); err != nil {
		return unavailable(err)
	}
	return nil
}

func summary(u *models.User) *models.UserSummary {
	if u == nil {
		return nil
	}
	return &models.UserSummary{ID: u.ID, FullName: u.FullName, Email: u.Email}
}
