package analytics_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/analytics"
	"ms-booking/internal/auth"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service      *analytics.Service
	Logger       *logger.Logger
	StoreTimeout time.Duration
}

// NewHandler creates a new analytics handler
func NewHandler(service *analytics.Service, log *logger.Logger, storeTimeout time.Duration) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Handler{Service: service, Logger: log, StoreTimeout: storeTimeout}
}

// RegisterRoutes registers the analytics routes on a chi router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/orders", h.GetOrders)
	r.Get("/orders/stats", h.GetOrderStats)
	r.Get("/vendors/{vendorId}/stats/monthly", h.GetVendorMonthlyStats)
	r.Put("/users/me", h.UpsertCurrentUser)
}

func (h *Handler) fail(w http.ResponseWriter, op, message string, err error) {
	status := utils.WriteError(w, message, err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Warn("ANALYTICS", fmt.Sprintf("%s: %v", op, err))
	}
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "no authenticated user"))
	}
	return actor, ok
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", models.ErrInvalidInput, key)
	}
	return n, nil
}

// GetOrders lists the caller's orders. Query: status, limit, skip.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, "GetOrders", "Invalid query", err)
		return
	}
	skip, err := queryInt(r, "skip")
	if err != nil {
		h.fail(w, "GetOrders", "Invalid query", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.StoreTimeout)
	defer cancel()

	page, err := h.Service.GetOrders(ctx, actor, r.URL.Query().Get("status"), limit, skip)
	if err != nil {
		h.fail(w, "GetOrders", "Could not list orders", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Orders retrieved", page))
}

func (h *Handler) GetOrderStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.StoreTimeout)
	defer cancel()

	stats, err := h.Service.GetOrderStats(ctx, actor)
	if err != nil {
		h.fail(w, "GetOrderStats", "Could not load order stats", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order stats retrieved", stats))
}

func (h *Handler) GetVendorMonthlyStats(w http.ResponseWriter, r *http.Request) {
	vendorID := chi.URLParam(r, "vendorId")

	ctx, cancel := context.WithTimeout(r.Context(), h.StoreTimeout)
	defer cancel()

	stats, err := h.Service.GetOrderStatsForVendor(ctx, vendorID)
	if err != nil {
		h.fail(w, "GetVendorMonthlyStats", "Could not load vendor stats", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Vendor stats retrieved", stats))
}

type profileRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// UpsertCurrentUser stores the caller's display profile. Body fields override
// the name and email carried by the token.
func (h *Handler) UpsertCurrentUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "no authenticated user"))
		return
	}

	var req profileRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.fail(w, "UpsertCurrentUser", "Invalid request body", fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
			return
		}
	}
	user := &models.User{ID: identity.UserID, FullName: identity.Name, Email: identity.Email, Role: identity.Role}
	if req.FullName != "" {
		user.FullName = req.FullName
	}
	if req.Email != "" {
		user.Email = req.Email
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.StoreTimeout)
	defer cancel()

	if err := h.Service.UpsertUser(ctx, user); err != nil {
		h.fail(w, "UpsertCurrentUser", "Could not save profile", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Profile saved", user))
}
