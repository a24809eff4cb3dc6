package catalog_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/evoqwell/evoqsite/internal/catalog"
	"github.com/evoqwell/evoqsite/internal/store"
)

type fakeProductStore struct {
	products map[string]store.Product
}

func newFakeProductStore(products ...store.Product) *fakeProductStore {
	f := &fakeProductStore{products: map[string]store.Product{}}
	for _, p := range products {
		f.products[p.SKU] = p
	}
	return f
}

func (f *fakeProductStore) ListProducts(_ context.Context, includeInactive bool) ([]store.Product, error) {
	var out []store.Product
	for _, p := range f.products {
		if !includeInactive && p.Status == store.ProductStatusInactive {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeProductStore) GetProduct(_ context.Context, sku string) (store.Product, error) {
	p, ok := f.products[sku]
	if !ok {
		return store.Product{}, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeProductStore) CreateProduct(_ context.Context, input store.ProductInput) (store.Product, error) {
	if _, ok := f.products[input.SKU]; ok {
		return store.Product{}, store.ErrDuplicate
	}
	p := productFromInput(input)
	f.products[input.SKU] = p
	return p, nil
}

func (f *fakeProductStore) UpdateProduct(_ context.Context, sku string, input store.ProductInput) (store.Product, error) {
	if _, ok := f.products[sku]; !ok {
		return store.Product{}, store.ErrNotFound
	}
	input.SKU = sku
	p := productFromInput(input)
	f.products[sku] = p
	return p, nil
}

func (f *fakeProductStore) DeleteProduct(_ context.Context, sku string) error {
	if _, ok := f.products[sku]; !ok {
		return store.ErrNotFound
	}
	delete(f.products, sku)
	return nil
}

func productFromInput(input store.ProductInput) store.Product {
	return store.Product{
		SKU:         input.SKU,
		Name:        input.Name,
		Description: input.Description,
		PriceCents:  input.PriceCents,
		ImageURL:    input.ImageURL,
		Category:    input.Category,
		COAURL:      input.COAURL,
		Stock:       input.Stock,
		Status:      input.Status,
	}
}

func newRouter(service *catalog.Service) http.Handler {
	handler := catalog.NewHandler(service)
	admin := catalog.NewAdminHandler(service)
	r := chi.NewRouter()
	r.Get("/api/v1/products", handler.List)
	r.Get("/api/v1/products/{sku}", handler.Detail)
	r.Get("/api/v1/admin/products", admin.List)
	r.Post("/api/v1/admin/products", admin.Create)
	r.Put("/api/v1/admin/products/{sku}", admin.Update)
	r.Delete("/api/v1/admin/products/{sku}", admin.Delete)
	return r
}

func newTestService(fake *fakeProductStore, cache *catalog.Cache) *catalog.Service {
	return catalog.NewService(catalog.ServiceConfig{
		Store:                 fake,
		Cache:                 cache,
		Validate:              validator.New(),
		ShippingFlatRateCents: 1000,
		CurrencyCode:          "USD",
	})
}

func stockOf(n int64) *int64 { return &n }

func testProducts() []store.Product {
	return []store.Product{
		{SKU: "oil-30", Name: "Recovery Oil", PriceCents: 2999, Status: store.ProductStatusActive, Stock: stockOf(5)},
		{SKU: "balm-50", Name: "Relief Balm", PriceCents: 4500, Status: store.ProductStatusActive},
		{SKU: "old-oil", Name: "Retired Oil", PriceCents: 1999, Status: store.ProductStatusInactive},
		{SKU: "new-caps", Name: "Sleep Capsules", PriceCents: 3500, Status: store.ProductStatusComingSoon},
	}
}

func TestListProductsExcludesInactive(t *testing.T) {
	service := newTestService(newFakeProductStore(testProducts()...), catalog.NewCache(nil, 0))
	rr := httptest.NewRecorder()
	newRouter(service).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data []catalog.Product `json:"data"`
		Meta catalog.Meta      `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 3)
	for _, p := range body.Data {
		require.NotEqual(t, store.ProductStatusInactive, p.Status)
	}
	require.Equal(t, int64(1000), body.Meta.ShippingFlatRateCents)
	require.Equal(t, "10.00", body.Meta.ShippingFlatRate)
	require.Equal(t, "USD", body.Meta.Currency)
}

func TestListProductsFormatsPricesAndStock(t *testing.T) {
	service := newTestService(newFakeProductStore(testProducts()...), catalog.NewCache(nil, 0))
	listing, err := service.List(context.Background())
	require.NoError(t, err)

	byCode := map[string]catalog.Product{}
	for _, p := range listing.Items {
		byCode[p.SKU] = p
	}
	require.Equal(t, "29.99", byCode["oil-30"].Price)
	require.True(t, byCode["oil-30"].InStock)
	// Untracked stock counts as available.
	require.True(t, byCode["balm-50"].InStock)
	// Coming soon items are visible but not orderable.
	require.False(t, byCode["new-caps"].InStock)
}

func TestListProductsServedFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	fake := newFakeProductStore(testProducts()...)
	service := newTestService(fake, catalog.NewCache(client, time.Minute))

	first, err := service.List(context.Background())
	require.NoError(t, err)

	// Mutating the backing store without invalidation must not be visible.
	delete(fake.products, "oil-30")
	second, err := service.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestAdminWritesInvalidateCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	fake := newFakeProductStore(testProducts()...)
	service := newTestService(fake, catalog.NewCache(client, time.Minute))

	_, err := service.List(context.Background())
	require.NoError(t, err)

	require.NoError(t, service.AdminDelete(context.Background(), "oil-30"))

	listing, err := service.List(context.Background())
	require.NoError(t, err)
	for _, p := range listing.Items {
		require.NotEqual(t, "oil-30", p.SKU)
	}
}

func TestProductDetail(t *testing.T) {
	service := newTestService(newFakeProductStore(testProducts()...), catalog.NewCache(nil, 0))
	router := newRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products/oil-30", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	// Inactive products are hidden from the public surface.
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products/old-oil", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products/nope", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAdminListIncludesInactive(t *testing.T) {
	service := newTestService(newFakeProductStore(testProducts()...), catalog.NewCache(nil, 0))
	products, err := service.AdminList(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 4)
}

func TestAdminCreateProduct(t *testing.T) {
	service := newTestService(newFakeProductStore(), catalog.NewCache(nil, 0))
	router := newRouter(service)

	payload := catalog.ProductPayload{
		SKU: "oil-30", Name: "Recovery Oil", PriceCents: 2999, Status: "active",
	}
	body, _ := json.Marshal(payload)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/admin/products", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code)

	// Duplicate SKU conflicts.
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/admin/products", bytes.NewReader(body)))
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestAdminCreateProductValidation(t *testing.T) {
	service := newTestService(newFakeProductStore(), catalog.NewCache(nil, 0))
	router := newRouter(service)

	body, _ := json.Marshal(catalog.ProductPayload{SKU: "x", PriceCents: 100, Status: "active"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/admin/products", bytes.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	body, _ = json.Marshal(catalog.ProductPayload{SKU: "x", Name: "X", PriceCents: 100, Status: "bogus"})
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/admin/products", bytes.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdminUpdateProductNotFound(t *testing.T) {
	service := newTestService(newFakeProductStore(), catalog.NewCache(nil, 0))
	router := newRouter(service)

	body, _ := json.Marshal(catalog.ProductPayload{Name: "X", PriceCents: 100, Status: "active"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/v1/admin/products/ghost", bytes.NewReader(body)))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
