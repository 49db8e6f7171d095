package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mfigueroa/bazario-backend/api/responses"
	"github.com/mfigueroa/bazario-backend/api/validators"
	orderssvc "github.com/mfigueroa/bazario-backend/internal/orders"
	"github.com/mfigueroa/bazario-backend/pkg/db/models"
	"github.com/mfigueroa/bazario-backend/pkg/logger"
	"github.com/mfigueroa/bazario-backend/pkg/pagination"
	"github.com/mfigueroa/bazario-backend/pkg/types"
)

// OrdersList returns the buyer's orders, newest first.
func OrdersList(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, next, err := svc.ListBuyerOrders(r.Context(), buyerID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]orderResponse, len(records))
		for i := range records {
			items[i] = newOrderResponse(&records[i])
		}
		responses.WriteSuccess(w, listEnvelope[orderResponse]{Items: items, NextCursor: next})
	}
}

// OrdersGet returns one of the buyer's orders with its items and tracking.
func OrdersGet(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.GetBuyerOrder(r.Context(), buyerID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(record))
	}
}

// OrdersCancel voids an entire order while every item is still early enough.
func OrdersCancel(svc orderssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := buyerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.CancelOrder(r.Context(), buyerID, orderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "cancelled"})
	}
}

func paginationParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: validators.ParseQueryString(r, "cursor"),
	}, nil
}

type listEnvelope[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

type orderResponse struct {
	ID              uuid.UUID           `json:"id"`
	OrderNumber     string              `json:"order_number"`
	PaymentStatus   string              `json:"payment_status"`
	SubtotalCents   int                 `json:"subtotal_cents"`
	DiscountCents   int                 `json:"discount_cents"`
	TaxCents        int                 `json:"tax_cents"`
	ShippingCents   int                 `json:"shipping_cents"`
	TotalCents      int                 `json:"total_cents"`
	CouponCode      *string             `json:"coupon_code,omitempty"`
	ShippingAddress types.Address       `json:"shipping_address"`
	BillingAddress  types.Address       `json:"billing_address"`
	Items           []orderItemResponse `json:"items"`
	PaidAt          *time.Time          `json:"paid_at,omitempty"`
	ShippedAt       *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time          `json:"delivered_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

type orderItemResponse struct {
	ID              uuid.UUID          `json:"id"`
	OrderID         uuid.UUID          `json:"order_id"`
	VendorID        uuid.UUID          `json:"vendor_id"`
	ProductID       uuid.UUID          `json:"product_id"`
	VariantID       *uuid.UUID         `json:"variant_id,omitempty"`
	ProductName     string             `json:"product_name"`
	VariantName     *string            `json:"variant_name,omitempty"`
	Quantity        int                `json:"quantity"`
	UnitPriceCents  int                `json:"unit_price_cents"`
	SubtotalCents   int                `json:"subtotal_cents"`
	CommissionCents int                `json:"commission_cents"`
	Status          string             `json:"status"`
	Tracking        []trackingResponse `json:"tracking,omitempty"`
	DeliveredAt     *time.Time         `json:"delivered_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

type trackingResponse struct {
	Carrier        string     `json:"carrier"`
	TrackingNumber string     `json:"tracking_number"`
	TrackingURL    *string    `json:"tracking_url,omitempty"`
	Status         string     `json:"status"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func newOrderResponse(record *models.Order) orderResponse {
	if record == nil {
		return orderResponse{Items: []orderItemResponse{}}
	}
	items := make([]orderItemResponse, len(record.Items))
	for i := range record.Items {
		items[i] = newOrderItemResponse(&record.Items[i])
	}
	return orderResponse{
		ID:              record.ID,
		OrderNumber:     record.OrderNumber,
		PaymentStatus:   record.PaymentStatus.String(),
		SubtotalCents:   record.SubtotalCents,
		DiscountCents:   record.DiscountCents,
		TaxCents:        record.TaxCents,
		ShippingCents:   record.ShippingCents,
		TotalCents:      record.TotalCents,
		CouponCode:      record.CouponCode,
		ShippingAddress: record.ShippingAddress,
		BillingAddress:  record.BillingAddress,
		Items:           items,
		PaidAt:          record.PaidAt,
		ShippedAt:       record.ShippedAt,
		DeliveredAt:     record.DeliveredAt,
		CreatedAt:       record.CreatedAt,
	}
}

func newOrderItemResponse(record *models.OrderItem) orderItemResponse {
	tracking := make([]trackingResponse, len(record.Tracking))
	for i, entry := range record.Tracking {
		tracking[i] = trackingResponse{
			Carrier:        entry.Carrier,
			TrackingNumber: entry.TrackingNumber,
			TrackingURL:    entry.TrackingURL,
			Status:         entry.Status.String(),
			DeliveredAt:    entry.DeliveredAt,
			CreatedAt:      entry.CreatedAt,
		}
	}
	return orderItemResponse{
		ID:              record.ID,
		OrderID:         record.OrderID,
		VendorID:        record.VendorID,
		ProductID:       record.ProductID,
		VariantID:       record.VariantID,
		ProductName:     record.ProductName,
		VariantName:     record.VariantName,
		Quantity:        record.Quantity,
		UnitPriceCents:  record.UnitPriceCents,
		SubtotalCents:   record.SubtotalCents,
		CommissionCents: record.CommissionCents,
		Status:          record.Status.String(),
		Tracking:        tracking,
		DeliveredAt:     record.DeliveredAt,
		CreatedAt:       record.CreatedAt,
	}
}
