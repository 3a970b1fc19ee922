package order_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/auth"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/order"
	"ms-booking/internal/utils"
)

const defaultStoreTimeout = 5 * time.Second

type Handler struct {
	OrderService *order.OrderService
	Logger       *logger.Logger
	StoreTimeout time.Duration
}

func NewHandler(orderService *order.OrderService, log *logger.Logger, storeTimeout time.Duration) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &Handler{OrderService: orderService, Logger: log, StoreTimeout: storeTimeout}
}

// RegisterRoutes mounts the order and vendor order routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/orders", h.CreateOrder)
	r.Get("/orders/{orderId}", h.GetOrder)
	r.Patch("/orders/{orderId}", h.UpdateOrderDetails)
	r.Delete("/orders/{orderId}", h.DeleteOrder)
	r.Put("/orders/{orderId}/status", h.UpdateOrderStatus)
	r.Post("/orders/{orderId}/complete", h.CompleteOrder)
	r.Post("/orders/{orderId}/cancel", h.CancelOrder)

	r.Get("/vendor-orders/{id}", h.GetVendorOrder)
	r.Post("/vendor-orders/{id}/respond", h.RespondToVendorOrder)
	r.Post("/vendor-orders/{id}/complete", h.CompleteVendorOrder)
	r.Post("/vendor-orders/{id}/cancel", h.CancelVendorOrder)
}

func (h *Handler) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.StoreTimeout)
}

func (h *Handler) fail(w http.ResponseWriter, op, message string, err error) {
	status := utils.WriteError(w, message, err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Warn("API", fmt.Sprintf("%s: %v", op, err))
	}
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", models.ErrInvalidInput, err)
	}
	return nil
}

// ---------------- ORDERS ----------------

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, "CreateOrder", "Invalid request body", err)
		return
	}
	// the identity layer supplies the organizer when the body omits it
	if req.OrganizerID == "" {
		req.OrganizerID = auth.UserID(r.Context())
	}
	h.Logger.Debug("API", fmt.Sprintf("CreateOrder: organizer=%s items=%d", req.OrganizerID, len(req.Items)))

	ctx, cancel := h.storeContext(r)
	defer cancel()

	created, err := h.OrderService.CreateOrder(ctx, req)
	if err != nil {
		h.fail(w, "CreateOrder", "Could not create order", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Order created", created))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	ctx, cancel := h.storeContext(r)
	defer cancel()

	o, err := h.OrderService.GetOrder(ctx, orderID)
	if err != nil {
		h.fail(w, "GetOrder", "Order not found", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order retrieved", o))
}

func (h *Handler) UpdateOrderDetails(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	var req models.UpdateOrderDetailsRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, "UpdateOrderDetails", "Invalid request body", err)
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	o, err := h.OrderService.UpdateOrderDetails(ctx, orderID, req)
	if err != nil {
		h.fail(w, "UpdateOrderDetails", "Could not update order", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order updated", o))
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	var req models.UpdateOrderStatusRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, "UpdateOrderStatus", "Invalid request body", err)
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	o, err := h.OrderService.UpdateOrderStatus(ctx, orderID, req.Status)
	if err != nil {
		h.fail(w, "UpdateOrderStatus", "Could not update order status", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order status updated", o))
}

func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	ctx, cancel := h.storeContext(r)
	defer cancel()

	o, err := h.OrderService.ConfirmOrderCompletion(ctx, orderID)
	if err != nil {
		h.fail(w, "CompleteOrder", "Could not complete order", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order completed", o))
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	ctx, cancel := h.storeContext(r)
	defer cancel()

	o, err := h.OrderService.CancelOrder(ctx, orderID)
	if err != nil {
		h.fail(w, "CancelOrder", "Could not cancel order", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order cancelled", o))
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	ctx, cancel := h.storeContext(r)
	defer cancel()

	if err := h.OrderService.DeleteOrder(ctx, orderID); err != nil {
		h.fail(w, "DeleteOrder", "Could not delete order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------- VENDOR ORDERS ----------------

func (h *Handler) GetVendorOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := h.storeContext(r)
	defer cancel()

	vo, err := h.OrderService.GetVendorOrder(ctx, id)
	if err != nil {
		h.fail(w, "GetVendorOrder", "Vendor order not found", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Vendor order retrieved", vo))
}

func (h *Handler) RespondToVendorOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req models.VendorResponseRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, "RespondToVendorOrder", "Invalid request body", err)
		return
	}

	ctx, cancel := h.storeContext(r)
	defer cancel()

	vo, err := h.OrderService.RecordVendorResponse(ctx, id, req)
	if err != nil {
		h.fail(w, "RespondToVendorOrder", "Could not record response", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Response recorded", vo))
}

func (h *Handler) CompleteVendorOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := h.storeContext(r)
	defer cancel()

	vo, err := h.OrderService.CompleteVendorOrder(ctx, id)
	if err != nil {
		h.fail(w, "CompleteVendorOrder", "Could not complete vendor order", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Vendor order completed", vo))
}

func (h *Handler) CancelVendorOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := h.storeContext(r)
	defer cancel()

	vo, err := h.OrderService.CancelVendorOrder(ctx, id)
	if err != nil {
		h.fail(w, "CancelVendorOrder", "Could not cancel vendor order", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Vendor order cancelled", vo))
}
