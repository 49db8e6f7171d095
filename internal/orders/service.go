package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mfigueroa/bazario-backend/internal/products"
	"github.com/mfigueroa/bazario-backend/pkg/db/models"
	"github.com/mfigueroa/bazario-backend/pkg/enums"
	pkgerrors "github.com/mfigueroa/bazario-backend/pkg/errors"
	"github.com/mfigueroa/bazario-backend/pkg/logger"
	"github.com/mfigueroa/bazario-backend/pkg/outbox"
	"github.com/mfigueroa/bazario-backend/pkg/outbox/payloads"
	"github.com/mfigueroa/bazario-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Actor is the authenticated caller of a transition, resolved from token
// claims by the API layer.
type Actor struct {
	UserID   uuid.UUID
	Role     enums.ActorRole
	VendorID *uuid.UUID
}

// TrackingInput is the shipment payload a vendor attaches at the shipped
// transition.
type TrackingInput struct {
	Carrier        string
	TrackingNumber string
	TrackingURL    *string
}

// Service governs the per-item fulfillment state machine and the buyer's
// order-level cancel. Conflicting transitions are rejected, never merged.
type Service interface {
	Transition(ctx context.Context, actor Actor, itemID uuid.UUID, to enums.OrderItemStatus, tracking *TrackingInput) (*models.OrderItem, error)
	CancelOrder(ctx context.Context, buyerID, orderID uuid.UUID) error
	GetBuyerOrder(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	ListVendorItems(ctx context.Context, vendorID uuid.UUID, status *enums.OrderItemStatus, params pagination.Params) ([]models.OrderItem, string, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	catalog products.Repository
	events  eventEmitter
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the order lifecycle service.
func NewService(repo Repository, tx txRunner, catalog products.Repository, events eventEmitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		catalog: catalog,
		events:  events,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Transition(ctx context.Context, actor Actor, itemID uuid.UUID, to enums.OrderItemStatus, tracking *TrackingInput) (*models.OrderItem, error) {
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order item id is required")
	}
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown status %q", to))
	}
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity missing")
	}
	if actor.Role == enums.ActorRoleVendor && (actor.VendorID == nil || *actor.VendorID == uuid.Nil) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor context missing")
	}
	if to == enums.OrderItemStatusShipped {
		if err := validateTracking(tracking); err != nil {
			return nil, err
		}
	}

	var updated *models.OrderItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		item, err := s.repo.GetItemTx(tx, itemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order item")
		}
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		if actor.Role == enums.ActorRoleVendor && item.VendorID != *actor.VendorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order item belongs to another vendor")
		}

		from := item.Status
		if !transitionAllowed(actor.Role, from, to) {
			return stateConflict(from, to)
		}

		now := s.now()
		var deliveredAt *time.Time
		if to == enums.OrderItemStatusDelivered {
			deliveredAt = &now
		}
		ok, err := s.repo.TransitionItemTx(tx, item.ID, from, to, deliveredAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating order item status")
		}
		if !ok {
			// Another actor moved the item between our read and write.
			return stateConflict(from, to)
		}

		trackingLabel := ""
		if to == enums.OrderItemStatusShipped {
			entry := &models.TrackingEntry{
				ID:             uuid.New(),
				OrderItemID:    item.ID,
				Carrier:        strings.TrimSpace(tracking.Carrier),
				TrackingNumber: strings.TrimSpace(tracking.TrackingNumber),
				TrackingURL:    tracking.TrackingURL,
				Status:         enums.TrackingStatusInTransit,
			}
			if err := s.repo.CreateTrackingEntryTx(tx, entry); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording tracking entry")
			}
			trackingLabel = entry.Carrier + " " + entry.TrackingNumber
		}
		if to == enums.OrderItemStatusDelivered {
			if err := s.repo.MarkTrackingDeliveredTx(tx, item.ID, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stamping tracking delivery")
			}
		}

		if restocksOnEntry(to) {
			if err := s.catalog.RestockTx(tx, item.ProductID, item.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restocking product")
			}
		}

		if err := s.refreshOrderRollups(tx, item.OrderID, to, now); err != nil {
			return err
		}

		if err := s.emitTransition(ctx, tx, actor, item, from, to, trackingLabel, now); err != nil {
			return err
		}

		item.Status = to
		item.DeliveredAt = deliveredAt
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_item_id": updated.ID.String(),
			"order_id":      updated.OrderID.String(),
			"to_status":     to,
			"actor_role":    actor.Role,
		})
		s.logg.Info(logCtx, "order item transitioned")
	}
	return updated, nil
}

func (s *service) CancelOrder(ctx context.Context, buyerID, orderID uuid.UUID) error {
	if buyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity missing")
	}
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.GetOrderTx(tx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
		}
		if order == nil || order.BuyerID != buyerID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		for _, item := range order.Items {
			if !buyerCancellable(item.Status) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order has items already in fulfillment").
					WithDetails(map[string]any{
						"order_item_id": item.ID.String(),
						"status":        item.Status,
					})
			}
		}

		now := s.now()
		for _, item := range order.Items {
			ok, err := s.repo.TransitionItemTx(tx, item.ID, item.Status, enums.OrderItemStatusCancelled, nil)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancelling order item")
			}
			if !ok {
				// A vendor advanced the item mid-cancel; abort the whole order.
				return stateConflict(item.Status, enums.OrderItemStatusCancelled)
			}
			if err := s.catalog.RestockTx(tx, item.ProductID, item.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restocking product")
			}
			event := outbox.DomainEvent{
				EventType:     enums.EventOrderItemStateChanged,
				AggregateType: enums.AggregateOrderItem,
				AggregateID:   item.ID,
				Actor:         &outbox.ActorRef{UserID: buyerID, Role: enums.ActorRoleBuyer},
				Version:       1,
				Data: payloads.OrderItemStateChangedEvent{
					OrderItemID: item.ID,
					OrderID:     order.ID,
					VendorID:    item.VendorID,
					FromStatus:  item.Status,
					ToStatus:    enums.OrderItemStatusCancelled,
				},
			}
			if err := s.events.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emitting item cancelled event")
			}
		}

		if order.PaymentStatus == enums.PaymentStatusPaid {
			if err := s.repo.UpdateOrderTx(tx, order.ID, map[string]any{
				"payment_status": enums.PaymentStatusRefunded,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking order refunded")
			}
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: buyerID, Role: enums.ActorRoleBuyer},
			Version:       1,
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				BuyerID:     buyerID,
				CancelledAt: now,
			},
		}
		if err := s.events.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emitting order cancelled event")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": orderID.String()})
		s.logg.Info(logCtx, "order cancelled by buyer")
	}
	return nil
}

func (s *service) GetBuyerOrder(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	if order == nil || order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	orders, next, err := s.repo.ListByBuyer(ctx, buyerID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing orders")
	}
	return orders, next, nil
}

func (s *service) ListVendorItems(ctx context.Context, vendorID uuid.UUID, status *enums.OrderItemStatus, params pagination.Params) ([]models.OrderItem, string, error) {
	if status != nil && !status.IsValid() {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown status %q", *status))
	}
	items, next, err := s.repo.ListItemsByVendor(ctx, vendorID, status, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing vendor items")
	}
	return items, next, nil
}

// refreshOrderRollups maintains the order-level display timestamps. The
// per-item statuses remain authoritative.
func (s *service) refreshOrderRollups(tx *gorm.DB, orderID uuid.UUID, to enums.OrderItemStatus, now time.Time) error {
	switch to {
	case enums.OrderItemStatusShipped:
		err := tx.Model(&models.Order{}).
			Where("id = ? AND shipped_at IS NULL", orderID).
			Update("shipped_at", now).Error
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating order shipped timestamp")
		}
	case enums.OrderItemStatusDelivered:
		remaining, err := s.repo.CountItemsNotInStatusTx(tx, orderID, enums.OrderItemStatusDelivered)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting undelivered items")
		}
		if remaining == 0 {
			if err := s.repo.UpdateOrderTx(tx, orderID, map[string]any{"delivered_at": now}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating order delivered timestamp")
			}
		}
	}
	return nil
}

func (s *service) emitTransition(ctx context.Context, tx *gorm.DB, actor Actor, item *models.OrderItem, from, to enums.OrderItemStatus, trackingLabel string, now time.Time) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderItemStateChanged,
		AggregateType: enums.AggregateOrderItem,
		AggregateID:   item.ID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role},
		Version:       1,
		Data: payloads.OrderItemStateChangedEvent{
			OrderItemID: item.ID,
			OrderID:     item.OrderID,
			VendorID:    item.VendorID,
			FromStatus:  from,
			ToStatus:    to,
			Tracking:    trackingLabel,
		},
	}
	if err := s.events.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emitting state changed event")
	}

	if to != enums.OrderItemStatusDelivered {
		return nil
	}
	delivered := outbox.DomainEvent{
		EventType:     enums.EventOrderItemDelivered,
		AggregateType: enums.AggregateOrderItem,
		AggregateID:   item.ID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role},
		Version:       1,
		Data: payloads.OrderItemDeliveredEvent{
			OrderItemID:   item.ID,
			OrderID:       item.OrderID,
			VendorID:      item.VendorID,
			SubtotalCents: int64(item.SubtotalCents),
			DeliveredAt:   now,
		},
	}
	if err := s.events.Emit(ctx, tx, delivered); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emitting item delivered event")
	}
	return nil
}

func validateTracking(tracking *TrackingInput) error {
	if tracking == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "tracking details are required to mark an item shipped")
	}
	if strings.TrimSpace(tracking.Carrier) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "tracking carrier is required")
	}
	if strings.TrimSpace(tracking.TrackingNumber) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "tracking number is required")
	}
	return nil
}

func stateConflict(from, to enums.OrderItemStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move item from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}
