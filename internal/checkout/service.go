// Package checkout prices carts and places orders. Both the preview quote
// and the authoritative order path share one pricing routine so the numbers
// a buyer sees are the numbers they are charged.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/evoqwell/evoqsite/internal/common"
	"github.com/evoqwell/evoqsite/internal/obs"
	"github.com/evoqwell/evoqsite/internal/order"
	"github.com/evoqwell/evoqsite/internal/pricing"
	"github.com/evoqwell/evoqsite/internal/store"
)

// checkoutStore is the persistence surface checkout needs.
type checkoutStore interface {
	GetProductsBySKUs(ctx context.Context, skus []string) (map[string]store.Product, error)
	GetActivePromosByCodes(ctx context.Context, codes []string) (map[string]store.PromoCode, error)
	CreateOrder(ctx context.Context, o store.Order) (store.Order, error)
}

// confirmationEnqueuer schedules the post-checkout confirmation email.
type confirmationEnqueuer interface {
	EnqueueOrderConfirmation(ctx context.Context, orderNumber string) error
}

// ItemInput is one requested cart line.
type ItemInput struct {
	SKU      string `json:"sku" validate:"required,max=64"`
	Quantity int64  `json:"quantity" validate:"min=1,max=100"`
}

// CustomerInput is the buyer contact and shipping block.
type CustomerInput struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Phone   string `json:"phone" validate:"omitempty,max=30"`
	Address string `json:"address" validate:"required,max=500"`
	City    string `json:"city" validate:"required,max=100"`
	State   string `json:"state" validate:"required,max=50"`
	Zip     string `json:"zip" validate:"required,max=20"`
	Notes   string `json:"notes" validate:"omitempty,max=2000"`
}

// QuoteRequest prices a cart without placing an order.
type QuoteRequest struct {
	Items      []ItemInput `json:"items" validate:"required,min=1,max=50,dive"`
	PromoCodes []string    `json:"promoCodes" validate:"omitempty,max=10,dive,required,max=40"`
}

// CreateRequest places an order.
type CreateRequest struct {
	Items      []ItemInput   `json:"items" validate:"required,min=1,max=50,dive"`
	PromoCodes []string      `json:"promoCodes" validate:"omitempty,max=10,dive,required,max=40"`
	Customer   CustomerInput `json:"customer"`
}

// Quote is the response of the preview endpoint.
type Quote struct {
	Items     []store.OrderItem     `json:"items"`
	Discounts []store.OrderDiscount `json:"discounts,omitempty"`
	Totals    order.Totals          `json:"totals"`
}

// Service prices carts and creates orders.
type Service struct {
	store                 checkoutStore
	validate              *validator.Validate
	enqueuer              confirmationEnqueuer
	logger                zerolog.Logger
	shippingFlatRateCents int64
	venmoUsername         string
	now                   func() time.Time
}

// ServiceConfig configures the Service.
type ServiceConfig struct {
	Store                 checkoutStore
	Validate              *validator.Validate
	Enqueuer              confirmationEnqueuer
	Logger                zerolog.Logger
	ShippingFlatRateCents int64
	VenmoUsername         string
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		store:                 cfg.Store,
		validate:              cfg.Validate,
		enqueuer:              cfg.Enqueuer,
		logger:                cfg.Logger,
		shippingFlatRateCents: cfg.ShippingFlatRateCents,
		venmoUsername:         cfg.VenmoUsername,
		now:                   time.Now,
	}
}

// Quote prices the requested cart. The same validation and promo rules
// apply as at order time, so a quote that succeeds will not be refused
// later for pricing reasons.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	if err := s.validate.Struct(req); err != nil {
		return Quote{}, common.BadRequest("invalid quote payload", err)
	}
	resolved, err := s.resolve(ctx, req.Items, req.PromoCodes)
	if err != nil {
		return Quote{}, err
	}
	return s.price(resolved)
}

// Create places an order: it reprices the cart from the catalog, decrements
// stock, persists the order, and schedules the confirmation email. Pricing
// never trusts amounts sent by the client.
func (s *Service) Create(ctx context.Context, req CreateRequest) (order.View, error) {
	if err := s.validate.Struct(req); err != nil {
		s.countOrder("invalid")
		return order.View{}, common.BadRequest("invalid order payload", err)
	}
	if err := s.validate.Struct(req.Customer); err != nil {
		s.countOrder("invalid")
		return order.View{}, common.BadRequest("invalid customer details", err)
	}

	resolved, err := s.resolve(ctx, req.Items, req.PromoCodes)
	if err != nil {
		s.recordRefusal(err)
		return order.View{}, err
	}
	quote, err := s.price(resolved)
	if err != nil {
		s.countOrder("error")
		return order.View{}, err
	}

	o := store.Order{
		ID:     uuid.New(),
		Status: store.OrderStatusPendingPayment,
		Customer: store.Customer{
			Name:    req.Customer.Name,
			Email:   req.Customer.Email,
			Phone:   req.Customer.Phone,
			Address: req.Customer.Address,
			City:    req.Customer.City,
			State:   req.Customer.State,
			Zip:     req.Customer.Zip,
			Notes:   req.Customer.Notes,
		},
		Items:         quote.Items,
		PromoCodes:    resolved.codes,
		Discounts:     quote.Discounts,
		SubtotalCents: quote.Totals.SubtotalCents,
		DiscountCents: quote.Totals.DiscountCents,
		ShippingCents: quote.Totals.ShippingCents,
		TotalCents:    quote.Totals.TotalCents,
	}

	created, err := s.persist(ctx, o)
	if err != nil {
		var stockErr *store.InsufficientStockError
		if errors.As(err, &stockErr) {
			refusal := outOfStockError(stockErr.SKU, resolved.names[stockErr.SKU], stockErr.Available)
			s.recordRefusal(refusal)
			return order.View{}, refusal
		}
		s.countOrder("error")
		return order.View{}, err
	}

	s.countOrder("accepted")
	if obs.OrderValueCents != nil {
		obs.OrderValueCents.Observe(float64(created.TotalCents))
	}
	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueOrderConfirmation(ctx, created.OrderNumber); err != nil {
			s.logger.Warn().Err(err).Str("order_number", created.OrderNumber).
				Msg("enqueue confirmation email failed")
		}
	}
	return order.ToView(created, s.venmoUsername), nil
}

// persist inserts the order, regenerating the order number on the rare
// collision of the random suffix.
func (s *Service) persist(ctx context.Context, o store.Order) (store.Order, error) {
	for attempt := 0; attempt < 3; attempt++ {
		number, err := order.GenerateNumber(s.now())
		if err != nil {
			return store.Order{}, err
		}
		o.OrderNumber = number
		o.VenmoNote = number

		created, err := s.store.CreateOrder(ctx, o)
		if err == nil {
			return created, nil
		}
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		return store.Order{}, err
	}
	return store.Order{}, fmt.Errorf("order number collision persisted across retries")
}

// resolvedCart is the catalog-checked cart ready for pricing.
type resolvedCart struct {
	lines  []pricing.Line
	promos []pricing.Promo
	codes  []string
	names  map[string]string
}

// resolve turns the request into priced lines and promos, refusing the whole
// order on the first violation. Quantities for repeated SKUs are merged.
func (s *Service) resolve(ctx context.Context, items []ItemInput, rawCodes []string) (resolvedCart, error) {
	quantities := map[string]int64{}
	skus := make([]string, 0, len(items))
	for _, item := range items {
		if _, seen := quantities[item.SKU]; !seen {
			skus = append(skus, item.SKU)
		}
		quantities[item.SKU] += item.Quantity
	}

	products, err := s.store.GetProductsBySKUs(ctx, skus)
	if err != nil {
		return resolvedCart{}, err
	}

	cart := resolvedCart{names: make(map[string]string, len(skus))}
	for _, sku := range skus {
		product, ok := products[sku]
		if !ok || !product.Purchasable() {
			name := sku
			if ok {
				name = product.Name
			}
			return resolvedCart{}, &common.AppError{
				Code:       "PRODUCT_UNAVAILABLE",
				Message:    fmt.Sprintf("%s is not available for purchase", name),
				HTTPStatus: http.StatusUnprocessableEntity,
				Details:    map[string]any{"product": sku},
			}
		}
		qty := quantities[sku]
		if !product.InStock(qty) {
			available := int64(0)
			if product.Stock != nil {
				available = *product.Stock
			}
			return resolvedCart{}, outOfStockError(sku, product.Name, available)
		}
		cart.names[sku] = product.Name
		cart.lines = append(cart.lines, pricing.Line{
			SKU:            sku,
			Name:           product.Name,
			UnitPriceCents: product.PriceCents,
			Quantity:       qty,
		})
	}

	promos, codes, err := s.resolvePromos(ctx, rawCodes)
	if err != nil {
		return resolvedCart{}, err
	}
	cart.promos = promos
	cart.codes = codes
	return cart, nil
}

// resolvePromos normalizes, deduplicates, and validates promo codes as a
// batch. All unknown or inactive codes are reported together.
func (s *Service) resolvePromos(ctx context.Context, rawCodes []string) ([]pricing.Promo, []string, error) {
	if len(rawCodes) == 0 {
		return nil, nil, nil
	}
	seen := map[string]bool{}
	codes := make([]string, 0, len(rawCodes))
	for _, raw := range rawCodes {
		code := store.NormalizePromoCode(raw)
		if seen[code] {
			return nil, nil, &common.AppError{
				Code:       "DUPLICATE_PROMO_CODE",
				Message:    fmt.Sprintf("promo code %s was applied more than once", code),
				HTTPStatus: http.StatusUnprocessableEntity,
				Details:    map[string]any{"code": code},
			}
		}
		seen[code] = true
		codes = append(codes, code)
	}

	active, err := s.store.GetActivePromosByCodes(ctx, codes)
	if err != nil {
		return nil, nil, err
	}

	var invalid []string
	promos := make([]pricing.Promo, 0, len(codes))
	for _, code := range codes {
		row, ok := active[code]
		if !ok {
			invalid = append(invalid, code)
			continue
		}
		promos = append(promos, pricing.Promo{
			Code:        row.Code,
			Kind:        pricing.Kind(row.Kind),
			PercentBps:  row.PercentBps,
			AmountCents: row.AmountCents,
		})
	}
	if len(invalid) > 0 {
		return nil, nil, &common.AppError{
			Code:       "INVALID_PROMO_CODE",
			Message:    "one or more promo codes are not valid",
			HTTPStatus: http.StatusUnprocessableEntity,
			Details:    map[string]any{"codes": invalid},
		}
	}
	return promos, codes, nil
}

func (s *Service) price(cart resolvedCart) (Quote, error) {
	totals, err := pricing.Compute(cart.lines, s.shippingFlatRateCents, cart.promos)
	if err != nil {
		return Quote{}, err
	}

	items := make([]store.OrderItem, 0, len(cart.lines))
	for _, line := range cart.lines {
		items = append(items, store.OrderItem{
			SKU:            line.SKU,
			Name:           line.Name,
			UnitPriceCents: line.UnitPriceCents,
			Quantity:       line.Quantity,
			LineTotalCents: line.UnitPriceCents * line.Quantity,
		})
	}
	discounts := make([]store.OrderDiscount, 0, len(totals.Discounts))
	for _, d := range totals.Discounts {
		discounts = append(discounts, store.OrderDiscount{
			Code:        d.Code,
			Kind:        string(d.Kind),
			AmountCents: d.AmountCents,
		})
	}
	display := totals.ToDisplay()
	return Quote{
		Items:     items,
		Discounts: discounts,
		Totals: order.Totals{
			SubtotalCents: totals.SubtotalCents,
			DiscountCents: totals.DiscountCents,
			ShippingCents: totals.ShippingCents,
			TotalCents:    totals.TotalCents,
			Subtotal:      display.Subtotal,
			Discount:      display.Discount,
			Shipping:      display.Shipping,
			Total:         display.Total,
		},
	}, nil
}

func outOfStockError(sku, name string, available int64) *common.AppError {
	if name == "" {
		name = sku
	}
	message := fmt.Sprintf("%s is out of stock", name)
	if available > 0 {
		message = fmt.Sprintf("only %d of %s left in stock", available, name)
	}
	return &common.AppError{
		Code:       "OUT_OF_STOCK",
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"product": sku, "available": available},
	}
}

func (s *Service) countOrder(result string) {
	if obs.OrdersCreatedTotal != nil {
		obs.OrdersCreatedTotal.WithLabelValues(result).Inc()
	}
}

func (s *Service) recordRefusal(err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		s.countOrder("refused")
		if obs.OrderRefusalsTotal != nil {
			obs.OrderRefusalsTotal.WithLabelValues(appErr.Code).Inc()
		}
		return
	}
	s.countOrder("error")
}
