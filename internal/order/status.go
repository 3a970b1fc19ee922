package order

import "ms-booking/internal/models"

var orderTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPending:   {models.OrderConfirmed, models.OrderCompleted, models.OrderCancelled},
	models.OrderConfirmed: {models.OrderCompleted, models.OrderCancelled},
}

var vendorOrderTransitions = map[models.VendorOrderStatus][]models.VendorOrderStatus{
	models.VendorOrderPending:  {models.VendorOrderAccepted, models.VendorOrderRejected, models.VendorOrderCancelled},
	models.VendorOrderAccepted: {models.VendorOrderCompleted, models.VendorOrderCancelled},
}

func canTransitionOrder(from, to models.OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func canTransitionVendorOrder(from, to models.VendorOrderStatus) bool {
	for _, next := range vendorOrderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// deriveOrderStatus folds the vendor order states into the order state.
// Only a pending order with at least one vendor order, every one of them
// accepted, moves to confirmed. A completed vendor order was accepted first
// and counts as accepted. Every other combination keeps the parent status:
// rejections block confirmation but never cancel the order.
func deriveOrderStatus(parent models.OrderStatus, children []models.VendorOrderStatus) models.OrderStatus {
	if parent != models.OrderPending || len(children) == 0 {
		return parent
	}
	for _, child := range children {
		if child != models.VendorOrderAccepted && child != models.VendorOrderCompleted {
			return parent
		}
	}
	return models.OrderConfirmed
}

func childStatuses(vendorOrders []*models.VendorOrder) []models.VendorOrderStatus {
	out := make([]models.VendorOrderStatus, len(vendorOrders))
	for i, vo := range vendorOrders {
		out[i] = vo.Status
	}
	return out
}
