package order

import (
	"fmt"

	"ms-booking/internal/models"
)

const categoryOrder = "order"

func (s *OrderService) orderEvent(eventType string, order *models.Order) models.OrderEvent {
	return models.OrderEvent{
		Type:        eventType,
		OrderID:     order.ID,
		OrganizerID: order.OrganizerID,
		Status:      order.Status,
		Timestamp:   s.now(),
	}
}

func (s *OrderService) vendorOrderEvent(eventType string, vo *models.VendorOrder) models.VendorOrderEvent {
	return models.VendorOrderEvent{
		Type:          eventType,
		VendorOrderID: vo.ID,
		OrderID:       vo.OrderID,
		VendorID:      vo.VendorID,
		Status:        vo.Status,
		Timestamp:     s.now(),
	}
}

func (s *OrderService) orderCreated(order *models.Order) {
	for _, vo := range order.VendorOrders {
		s.Notifier.Notify(vo.VendorID, "New booking request",
			fmt.Sprintf("You have a new request for %s at %s on %s", vo.ServiceName, order.EventName, order.EventDate),
			categoryOrder)
	}
	s.Notifier.PublishEvent(s.topics.OrderCreated, order.ID, s.orderEvent("order.created", order))
}

func (s *OrderService) orderConfirmed(order *models.Order) {
	s.Notifier.Notify(order.OrganizerID, "Order confirmed",
		fmt.Sprintf("All vendors accepted your booking for %s", order.EventName), categoryOrder)
	s.Notifier.PublishEvent(s.topics.OrderConfirmed, order.ID, s.orderEvent("order.confirmed", order))
}

// orderStatusChanged covers explicit status writes. Pending has no topic.
func (s *OrderService) orderStatusChanged(order *models.Order, body string) {
	var topic string
	switch order.Status {
	case models.OrderConfirmed:
		topic = s.topics.OrderConfirmed
	case models.OrderCompleted:
		topic = s.topics.OrderCompleted
	case models.OrderCancelled:
		topic = s.topics.OrderCancelled
	}

	s.Notifier.Notify(order.OrganizerID, fmt.Sprintf("Order %s", order.Status), body, categoryOrder)
	if order.Status == models.OrderCancelled {
		for _, vo := range order.VendorOrders {
			if vo.Status == models.VendorOrderPending || vo.Status == models.VendorOrderAccepted {
				s.Notifier.Notify(vo.VendorID, "Booking cancelled",
					fmt.Sprintf("The booking for %s at %s was cancelled", vo.ServiceName, order.EventName), categoryOrder)
			}
		}
	}
	if topic != "" {
		s.Notifier.PublishEvent(topic, order.ID, s.orderEvent("order."+string(order.Status), order))
	}
}

func (s *OrderService) vendorOrderResponded(order *models.Order, vo *models.VendorOrder) {
	s.Notifier.Notify(order.OrganizerID, fmt.Sprintf("Vendor %s your booking", vo.Status),
		fmt.Sprintf("%s was %s for %s", vo.ServiceName, vo.Status, order.EventName), categoryOrder)
	s.Notifier.PublishEvent(s.topics.VendorOrderResponded, vo.OrderID, s.vendorOrderEvent("vendor_order.responded", vo))
}

func (s *OrderService) vendorOrderCompleted(vo *models.VendorOrder) {
	s.Notifier.Notify(vo.VendorID, "Service completed",
		fmt.Sprintf("%s has been marked as completed", vo.ServiceName), categoryOrder)
	s.Notifier.PublishEvent(s.topics.VendorOrderCompleted, vo.OrderID, s.vendorOrderEvent("vendor_order.completed", vo))
}

func (s *OrderService) vendorOrderCancelled(vo *models.VendorOrder) {
	s.Notifier.Notify(vo.VendorID, "Booking cancelled",
		fmt.Sprintf("Your booking for %s was cancelled", vo.ServiceName), categoryOrder)
	s.Notifier.PublishEvent(s.topics.VendorOrderCancelled, vo.OrderID, s.vendorOrderEvent("vendor_order.cancelled", vo))
}
