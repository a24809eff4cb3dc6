package checkout_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/evoqwell/evoqsite/internal/checkout"
	"github.com/evoqwell/evoqsite/internal/common"
	"github.com/evoqwell/evoqsite/internal/store"
)

type fakeCheckoutStore struct {
	products      map[string]store.Product
	promos        map[string]store.PromoCode
	created       []store.Order
	duplicateHits int
	stockErr      *store.InsufficientStockError
}

func (f *fakeCheckoutStore) GetProductsBySKUs(_ context.Context, skus []string) (map[string]store.Product, error) {
	out := map[string]store.Product{}
	for _, sku := range skus {
		if p, ok := f.products[sku]; ok {
			out[sku] = p
		}
	}
	return out, nil
}

func (f *fakeCheckoutStore) GetActivePromosByCodes(_ context.Context, codes []string) (map[string]store.PromoCode, error) {
	out := map[string]store.PromoCode{}
	for _, code := range codes {
		if p, ok := f.promos[code]; ok && p.IsActive {
			out[code] = p
		}
	}
	return out, nil
}

func (f *fakeCheckoutStore) CreateOrder(_ context.Context, o store.Order) (store.Order, error) {
	if f.duplicateHits > 0 {
		f.duplicateHits--
		return store.Order{}, store.ErrDuplicate
	}
	if f.stockErr != nil {
		return store.Order{}, f.stockErr
	}
	for _, item := range o.Items {
		p, ok := f.products[item.SKU]
		if !ok {
			return store.Order{}, store.ErrNotFound
		}
		if p.Stock != nil && *p.Stock < item.Quantity {
			return store.Order{}, &store.InsufficientStockError{SKU: item.SKU, Available: *p.Stock}
		}
	}
	f.created = append(f.created, o)
	return o, nil
}

type fakeEnqueuer struct {
	orders []string
	err    error
}

func (f *fakeEnqueuer) EnqueueOrderConfirmation(_ context.Context, orderNumber string) error {
	if f.err != nil {
		return f.err
	}
	f.orders = append(f.orders, orderNumber)
	return nil
}

func stockOf(n int64) *int64 { return &n }

func newFixture() (*fakeCheckoutStore, *fakeEnqueuer, *checkout.Service) {
	fake := &fakeCheckoutStore{
		products: map[string]store.Product{
			"oil-30":   {SKU: "oil-30", Name: "Recovery Oil", PriceCents: 2999, Status: store.ProductStatusActive, Stock: stockOf(10)},
			"balm-50":  {SKU: "balm-50", Name: "Relief Balm", PriceCents: 4500, Status: store.ProductStatusActive},
			"new-caps": {SKU: "new-caps", Name: "Sleep Capsules", PriceCents: 3500, Status: store.ProductStatusComingSoon},
			"sold-out": {SKU: "sold-out", Name: "Focus Drops", PriceCents: 2500, Status: store.ProductStatusActive, Stock: stockOf(0)},
		},
		promos: map[string]store.PromoCode{
			"SAVE20": {Code: "SAVE20", Kind: store.PromoKindPercentage, PercentBps: 2000, IsActive: true},
			"TAKE15": {Code: "TAKE15", Kind: store.PromoKindFixed, AmountCents: 1500, IsActive: true},
			"OLD":    {Code: "OLD", Kind: store.PromoKindFixed, AmountCents: 500, IsActive: false},
		},
	}
	enqueuer := &fakeEnqueuer{}
	service := checkout.NewService(checkout.ServiceConfig{
		Store:                 fake,
		Validate:              validator.New(),
		Enqueuer:              enqueuer,
		Logger:                zerolog.Nop(),
		ShippingFlatRateCents: 1000,
		VenmoUsername:         "EVOQWELL",
	})
	return fake, enqueuer, service
}

func validCustomer() checkout.CustomerInput {
	return checkout.CustomerInput{
		Name:    "Jess Doe",
		Email:   "jess@example.com",
		Address: "1 Main St",
		City:    "Austin",
		State:   "TX",
		Zip:     "78701",
	}
}

func appErrCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

func TestQuotePricesCart(t *testing.T) {
	_, _, service := newFixture()
	quote, err := service.Quote(context.Background(), checkout.QuoteRequest{
		Items:      []checkout.ItemInput{{SKU: "oil-30", Quantity: 2}, {SKU: "balm-50", Quantity: 1}},
		PromoCodes: []string{"save20", "TAKE15"},
	})
	require.NoError(t, err)

	require.Equal(t, int64(10498), quote.Totals.SubtotalCents)
	// 20% of 104.98 rounds to 21.00, plus the fixed 15.00.
	require.Equal(t, int64(2100+1500), quote.Totals.DiscountCents)
	require.Equal(t, int64(1000), quote.Totals.ShippingCents)
	require.Equal(t, quote.Totals.SubtotalCents-quote.Totals.DiscountCents+1000, quote.Totals.TotalCents)
	require.Len(t, quote.Discounts, 2)
	require.Equal(t, "SAVE20", quote.Discounts[0].Code)
	require.Equal(t, "104.98", quote.Totals.Subtotal)
}

func TestQuoteRejectsEmptyCart(t *testing.T) {
	_, _, service := newFixture()
	_, err := service.Quote(context.Background(), checkout.QuoteRequest{})
	require.Equal(t, "BAD_REQUEST", appErrCode(t, err))
}

func TestQuoteUnknownProduct(t *testing.T) {
	_, _, service := newFixture()
	_, err := service.Quote(context.Background(), checkout.QuoteRequest{
		Items: []checkout.ItemInput{{SKU: "ghost", Quantity: 1}},
	})
	require.Equal(t, "PRODUCT_UNAVAILABLE", appErrCode(t, err))
}

func TestQuoteComingSoonProductNotPurchasable(t *testing.T) {
	_, _, service := newFixture()
	_, err := service.Quote(context.Background(), checkout.QuoteRequest{
		Items: []checkout.ItemInput{{SKU: "new-caps", Quantity: 1}},
	})
	require.Equal(t, "PRODUCT_UNAVAILABLE", appErrCode(t, err))
}

func TestQuoteOutOfStock(t *testing.T) {
	_, _, service := newFixture()

	_, err := service.Quote(context.Background(), checkout.QuoteRequest{
		Items: []checkout.ItemInput{{SKU: "sold-out", Quantity: 1}},
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "OUT_OF_STOCK", appErr.Code)
	require.Contains(t, appErr.Message, "out of stock")

	_, err = service.Quote(context.Background(), checkout.QuoteRequest{
		Items: []checkout.ItemInput{{SKU: "oil-30", Quantity: 11}},
	})
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "OUT_OF_STOCK", appErr.Code)
	require.Contains(t, appErr.Message, "only 10")
}

func TestQuoteDuplicatePromoCode(t *testing.T) {
	_, _, service := newFixture()
	_, err := service.Quote(context.Background(), checkout.QuoteRequest{
		Items:      []checkout.ItemInput{{SKU: "oil-30", Quantity: 1}},
		PromoCodes: []string{"SAVE20", "save20"},
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "DUPLICATE_PROMO_CODE", appErr.Code)
	require.Equal(t, map[string]any{"code": "SAVE20"}, appErr.Details)
}

func TestQuoteReportsAllInvalidPromoCodes(t *testing.T) {
	_, _, service := newFixture()
	_, err := service.Quote(context.Background(), checkout.QuoteRequest{
		Items:      []checkout.ItemInput{{SKU: "oil-30", Quantity: 1}},
		PromoCodes: []string{"SAVE20", "OLD", "GHOST"},
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INVALID_PROMO_CODE", appErr.Code)
	require.Equal(t, map[string]any{"codes": []string{"OLD", "GHOST"}}, appErr.Details)
}

func TestCreateOrder(t *testing.T) {
	fake, enqueuer, service := newFixture()
	view, err := service.Create(context.Background(), checkout.CreateRequest{
		Items:      []checkout.ItemInput{{SKU: "oil-30", Quantity: 2}},
		PromoCodes: []string{"take15"},
		Customer:   validCustomer(),
	})
	require.NoError(t, err)

	require.Regexp(t, regexp.MustCompile(`^EVOQ-\d{8}-[0-9A-F]{8}$`), view.OrderNumber)
	require.Equal(t, store.OrderStatusPendingPayment, view.Status)
	require.Equal(t, int64(2999*2-1500+1000), view.Totals.TotalCents)
	require.Contains(t, view.VenmoURL, "venmo.com/EVOQWELL")
	require.Contains(t, view.VenmoURL, "note="+view.OrderNumber)

	require.Len(t, fake.created, 1)
	require.Equal(t, []string{"TAKE15"}, fake.created[0].PromoCodes)
	require.Equal(t, view.OrderNumber, fake.created[0].VenmoNote)
	require.Equal(t, []string{view.OrderNumber}, enqueuer.orders)
}

func TestCreateMergesRepeatedSKUs(t *testing.T) {
	fake, _, service := newFixture()
	_, err := service.Create(context.Background(), checkout.CreateRequest{
		Items:    []checkout.ItemInput{{SKU: "oil-30", Quantity: 2}, {SKU: "oil-30", Quantity: 3}},
		Customer: validCustomer(),
	})
	require.NoError(t, err)
	require.Len(t, fake.created, 1)
	require.Len(t, fake.created[0].Items, 1)
	require.Equal(t, int64(5), fake.created[0].Items[0].Quantity)
}

func TestCreateRefusedWhenStockRaceLost(t *testing.T) {
	fake, enqueuer, service := newFixture()
	fake.stockErr = &store.InsufficientStockError{SKU: "oil-30", Available: 1}

	_, err := service.Create(context.Background(), checkout.CreateRequest{
		Items:    []checkout.ItemInput{{SKU: "oil-30", Quantity: 2}},
		Customer: validCustomer(),
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "OUT_OF_STOCK", appErr.Code)
	require.Empty(t, enqueuer.orders)
}

func TestCreateRetriesOrderNumberCollision(t *testing.T) {
	fake, _, service := newFixture()
	fake.duplicateHits = 2

	view, err := service.Create(context.Background(), checkout.CreateRequest{
		Items:    []checkout.ItemInput{{SKU: "oil-30", Quantity: 1}},
		Customer: validCustomer(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, view.OrderNumber)
	require.Len(t, fake.created, 1)
}

func TestCreateRequiresCustomer(t *testing.T) {
	_, _, service := newFixture()
	_, err := service.Create(context.Background(), checkout.CreateRequest{
		Items: []checkout.ItemInput{{SKU: "oil-30", Quantity: 1}},
	})
	require.Equal(t, "BAD_REQUEST", appErrCode(t, err))
}

func TestCreateSurvivesEmailFailure(t *testing.T) {
	fake, enqueuer, service := newFixture()
	enqueuer.err = errors.New("queue down")

	view, err := service.Create(context.Background(), checkout.CreateRequest{
		Items:    []checkout.ItemInput{{SKU: "oil-30", Quantity: 1}},
		Customer: validCustomer(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, view.OrderNumber)
	require.Len(t, fake.created, 1)
}
