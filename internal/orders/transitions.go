package orders

import (
	"github.com/mfigueroa/bazario-backend/pkg/enums"
)

type transition struct {
	From enums.OrderItemStatus
	To   enums.OrderItemStatus
}

// Vendors walk the happy path one step at a time and never backward.
var vendorTransitions = map[transition]struct{}{
	{enums.OrderItemStatusPending, enums.OrderItemStatusConfirmed}:    {},
	{enums.OrderItemStatusPending, enums.OrderItemStatusProcessing}:   {},
	{enums.OrderItemStatusConfirmed, enums.OrderItemStatusProcessing}: {},
	{enums.OrderItemStatusProcessing, enums.OrderItemStatusShipped}:   {},
	{enums.OrderItemStatusShipped, enums.OrderItemStatusDelivered}:    {},
}

// Admins cancel before fulfillment starts and reverse after delivery.
// Cancelled and refunded are absorbing; nothing leaves them.
var adminTransitions = map[transition]struct{}{
	{enums.OrderItemStatusPending, enums.OrderItemStatusCancelled}:   {},
	{enums.OrderItemStatusConfirmed, enums.OrderItemStatusCancelled}: {},
	{enums.OrderItemStatusDelivered, enums.OrderItemStatusRefunded}:  {},
}

func transitionAllowed(role enums.ActorRole, from, to enums.OrderItemStatus) bool {
	key := transition{From: from, To: to}
	switch role {
	case enums.ActorRoleVendor:
		_, ok := vendorTransitions[key]
		return ok
	case enums.ActorRoleAdmin:
		_, ok := adminTransitions[key]
		return ok
	default:
		return false
	}
}

// buyerCancellable reports whether a whole-order cancel may still proceed.
// One item past confirmed blocks the order-level path.
func buyerCancellable(status enums.OrderItemStatus) bool {
	return status == enums.OrderItemStatusPending || status == enums.OrderItemStatusConfirmed
}

// restocksOnEntry reports whether entering the status returns reserved stock.
func restocksOnEntry(status enums.OrderItemStatus) bool {
	return status == enums.OrderItemStatusCancelled || status == enums.OrderItemStatusRefunded
}
