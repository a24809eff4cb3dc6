package order

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/evoqwell/evoqsite/internal/common"
	"github.com/evoqwell/evoqsite/internal/money"
	"github.com/evoqwell/evoqsite/internal/store"
)

// orderStore is the persistence surface the order module needs.
type orderStore interface {
	GetOrderByNumber(ctx context.Context, number string) (store.Order, error)
	ListOrders(ctx context.Context, filter store.OrderFilter) ([]store.Order, int64, error)
	UpdateOrderStatus(ctx context.Context, number, from, to string) (store.Order, error)
}

// Totals is the monetary summary of an order, in cents and display form.
type Totals struct {
	SubtotalCents int64  `json:"subtotalCents"`
	DiscountCents int64  `json:"discountCents"`
	ShippingCents int64  `json:"shippingCents"`
	TotalCents    int64  `json:"totalCents"`
	Subtotal      string `json:"subtotal"`
	Discount      string `json:"discount"`
	Shipping      string `json:"shipping"`
	Total         string `json:"total"`
}

// View is the order representation returned by the API.
type View struct {
	OrderNumber string                `json:"orderNumber"`
	Status      string                `json:"status"`
	Customer    store.Customer        `json:"customer"`
	Items       []store.OrderItem     `json:"items"`
	PromoCodes  []string              `json:"promoCodes,omitempty"`
	Discounts   []store.OrderDiscount `json:"discounts,omitempty"`
	Totals      Totals                `json:"totals"`
	VenmoURL    string                `json:"venmoUrl,omitempty"`
	CreatedAt   time.Time             `json:"createdAt"`
}

// ToView converts a stored order for API responses. The Venmo link is only
// rendered while payment is outstanding.
func ToView(o store.Order, venmoUsername string) View {
	view := View{
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		Customer:    o.Customer,
		Items:       o.Items,
		PromoCodes:  o.PromoCodes,
		Discounts:   o.Discounts,
		Totals: Totals{
			SubtotalCents: o.SubtotalCents,
			DiscountCents: o.DiscountCents,
			ShippingCents: o.ShippingCents,
			TotalCents:    o.TotalCents,
			Subtotal:      money.FormatDollars(o.SubtotalCents),
			Discount:      money.FormatDollars(o.DiscountCents),
			Shipping:      money.FormatDollars(o.ShippingCents),
			Total:         money.FormatDollars(o.TotalCents),
		},
		CreatedAt: o.CreatedAt,
	}
	if o.Status == store.OrderStatusPendingPayment && venmoUsername != "" {
		view.VenmoURL = VenmoURL(venmoUsername, o.TotalCents, o.VenmoNote)
	}
	return view
}

// Handler exposes the public order lookup endpoint for confirmation pages.
type Handler struct {
	store         orderStore
	venmoUsername string
}

// NewHandler constructs a Handler.
func NewHandler(store orderStore, venmoUsername string) *Handler {
	return &Handler{store: store, venmoUsername: venmoUsername}
}

// Get handles GET /api/v1/orders/{number}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	number := chi.URLParam(r, "number")
	o, err := h.store.GetOrderByNumber(r.Context(), number)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ToView(o, h.venmoUsername)})
}
