package catalog

import (
	"context"
	"errors"

	validator "github.com/go-playground/validator/v10"

	"github.com/evoqwell/evoqsite/internal/common"
	"github.com/evoqwell/evoqsite/internal/money"
	"github.com/evoqwell/evoqsite/internal/store"
)

const productsCacheKey = "catalog:products"

// productStore is the persistence surface the catalog needs.
type productStore interface {
	ListProducts(ctx context.Context, includeInactive bool) ([]store.Product, error)
	GetProduct(ctx context.Context, sku string) (store.Product, error)
	CreateProduct(ctx context.Context, input store.ProductInput) (store.Product, error)
	UpdateProduct(ctx context.Context, sku string, input store.ProductInput) (store.Product, error)
	DeleteProduct(ctx context.Context, sku string) error
}

// Product is the public catalog representation. Exact stock counts stay
// private; buyers only see whether an item can be ordered.
type Product struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PriceCents  int64  `json:"priceCents"`
	Price       string `json:"price"`
	Image       string `json:"image,omitempty"`
	Category    string `json:"category,omitempty"`
	COAURL      string `json:"coaUrl,omitempty"`
	Status      string `json:"status"`
	InStock     bool   `json:"inStock"`
}

// Meta carries storefront constants the client needs to render totals.
type Meta struct {
	ShippingFlatRateCents int64  `json:"shippingFlatRateCents"`
	ShippingFlatRate      string `json:"shippingFlatRate"`
	Currency              string `json:"currency"`
}

// Listing is the public product list with its meta block.
type Listing struct {
	Items []Product `json:"items"`
	Meta  Meta      `json:"meta"`
}

// AdminProduct is the admin representation including raw stock.
type AdminProduct struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"priceCents"`
	Image       string `json:"image"`
	Category    string `json:"category"`
	COAURL      string `json:"coaUrl"`
	Stock       *int64 `json:"stock"`
	Status      string `json:"status"`
}

// ProductPayload is the admin create/update request body. A null stock
// means the product does not track inventory.
type ProductPayload struct {
	SKU         string `json:"sku" validate:"required,max=64"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	PriceCents  int64  `json:"priceCents" validate:"min=0"`
	Image       string `json:"image" validate:"omitempty,max=500"`
	Category    string `json:"category" validate:"omitempty,max=100"`
	COAURL      string `json:"coaUrl" validate:"omitempty,max=500"`
	Stock       *int64 `json:"stock" validate:"omitempty,min=0"`
	Status      string `json:"status" validate:"required,oneof=active coming_soon inactive"`
}

// Service serves the catalog for both the public storefront and the admin API.
type Service struct {
	store                 productStore
	cache                 *Cache
	validate              *validator.Validate
	shippingFlatRateCents int64
	currencyCode          string
}

// ServiceConfig configures the Service.
type ServiceConfig struct {
	Store                 productStore
	Cache                 *Cache
	Validate              *validator.Validate
	ShippingFlatRateCents int64
	CurrencyCode          string
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		store:                 cfg.Store,
		cache:                 cfg.Cache,
		validate:              cfg.Validate,
		shippingFlatRateCents: cfg.ShippingFlatRateCents,
		currencyCode:          cfg.CurrencyCode,
	}
}

// List returns the public catalog, served from cache when warm.
func (s *Service) List(ctx context.Context) (Listing, error) {
	var cached Listing
	if hit, err := s.cache.GetJSON(ctx, productsCacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	rows, err := s.store.ListProducts(ctx, false)
	if err != nil {
		return Listing{}, err
	}
	listing := Listing{
		Items: make([]Product, 0, len(rows)),
		Meta: Meta{
			ShippingFlatRateCents: s.shippingFlatRateCents,
			ShippingFlatRate:      money.FormatDollars(s.shippingFlatRateCents),
			Currency:              s.currencyCode,
		},
	}
	for _, row := range rows {
		listing.Items = append(listing.Items, toPublicProduct(row))
	}
	_ = s.cache.SetJSON(ctx, productsCacheKey, listing)
	return listing, nil
}

// Get returns a single publicly visible product.
func (s *Service) Get(ctx context.Context, sku string) (Product, error) {
	row, err := s.store.GetProduct(ctx, sku)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Product{}, common.NotFound("product not found")
		}
		return Product{}, err
	}
	if row.Status == store.ProductStatusInactive {
		return Product{}, common.NotFound("product not found")
	}
	return toPublicProduct(row), nil
}

// AdminList returns every product including inactive ones.
func (s *Service) AdminList(ctx context.Context) ([]AdminProduct, error) {
	rows, err := s.store.ListProducts(ctx, true)
	if err != nil {
		return nil, err
	}
	products := make([]AdminProduct, 0, len(rows))
	for _, row := range rows {
		products = append(products, toAdminProduct(row))
	}
	return products, nil
}

// AdminCreate inserts a product and invalidates the public cache.
func (s *Service) AdminCreate(ctx context.Context, payload ProductPayload) (AdminProduct, error) {
	if err := s.validate.Struct(payload); err != nil {
		return AdminProduct{}, common.BadRequest("invalid product payload", err)
	}
	created, err := s.store.CreateProduct(ctx, toInput(payload))
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return AdminProduct{}, common.Conflict("sku already exists")
		}
		return AdminProduct{}, err
	}
	_ = s.cache.Delete(ctx, productsCacheKey)
	return toAdminProduct(created), nil
}

// AdminUpdate replaces a product's fields and invalidates the public cache.
func (s *Service) AdminUpdate(ctx context.Context, sku string, payload ProductPayload) (AdminProduct, error) {
	payload.SKU = sku
	if err := s.validate.Struct(payload); err != nil {
		return AdminProduct{}, common.BadRequest("invalid product payload", err)
	}
	updated, err := s.store.UpdateProduct(ctx, sku, toInput(payload))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AdminProduct{}, common.NotFound("product not found")
		}
		return AdminProduct{}, err
	}
	_ = s.cache.Delete(ctx, productsCacheKey)
	return toAdminProduct(updated), nil
}

// AdminDelete removes a product and invalidates the public cache.
func (s *Service) AdminDelete(ctx context.Context, sku string) error {
	if err := s.store.DeleteProduct(ctx, sku); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return common.NotFound("product not found")
		}
		return err
	}
	_ = s.cache.Delete(ctx, productsCacheKey)
	return nil
}

func toPublicProduct(row store.Product) Product {
	return Product{
		SKU:         row.SKU,
		Name:        row.Name,
		Description: row.Description,
		PriceCents:  row.PriceCents,
		Price:       money.FormatDollars(row.PriceCents),
		Image:       row.ImageURL,
		Category:    row.Category,
		COAURL:      row.COAURL,
		Status:      row.Status,
		InStock:     row.Status == store.ProductStatusActive && row.InStock(1),
	}
}

func toAdminProduct(row store.Product) AdminProduct {
	return AdminProduct{
		SKU:         row.SKU,
		Name:        row.Name,
		Description: row.Description,
		PriceCents:  row.PriceCents,
		Image:       row.ImageURL,
		Category:    row.Category,
		COAURL:      row.COAURL,
		Stock:       row.Stock,
		Status:      row.Status,
	}
}

func toInput(payload ProductPayload) store.ProductInput {
	return store.ProductInput{
		SKU:         payload.SKU,
		Name:        payload.Name,
		Description: payload.Description,
		PriceCents:  payload.PriceCents,
		ImageURL:    payload.Image,
		Category:    payload.Category,
		COAURL:      payload.COAURL,
		Stock:       payload.Stock,
		Status:      payload.Status,
	}
}
