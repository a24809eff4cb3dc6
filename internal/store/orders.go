package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Order statuses.
const (
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusPaid           = "paid"
	OrderStatusFulfilled      = "fulfilled"
	OrderStatusCancelled      = "cancelled"
)

// Customer holds the buyer details captured at checkout.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Notes   string `json:"notes,omitempty"`
}

// OrderItem is a priced line snapshot taken when the order was placed.
type OrderItem struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	Quantity       int64  `json:"quantity"`
	LineTotalCents int64  `json:"lineTotalCents"`
}

// OrderDiscount is a per-code discount snapshot.
type OrderDiscount struct {
	Code        string `json:"code"`
	Kind        string `json:"kind"`
	AmountCents int64  `json:"amountCents"`
}

// Order is a placed order with its totals frozen at checkout time.
type Order struct {
	ID            uuid.UUID
	OrderNumber   string
	Status        string
	Customer      Customer
	Items         []OrderItem
	PromoCodes    []string
	Discounts     []OrderDiscount
	SubtotalCents int64
	DiscountCents int64
	ShippingCents int64
	TotalCents    int64
	VenmoNote     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InsufficientStockError reports a conditional stock decrement that failed.
type InsufficientStockError struct {
	SKU       string
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: %d available", e.SKU, e.Available)
}

const orderColumns = `id, order_number, status, customer, items, promo_codes, discounts,
	subtotal_cents, discount_cents, shipping_cents, total_cents, venmo_note, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.Status, &o.Customer, &o.Items,
		&o.PromoCodes, &o.Discounts, &o.SubtotalCents, &o.DiscountCents,
		&o.ShippingCents, &o.TotalCents, &o.VenmoNote, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

// CreateOrder atomically decrements stock for every finite-stock line and
// inserts the order. When any line cannot be covered the transaction rolls
// back and an InsufficientStockError identifies the first offending SKU.
func (s *Store) CreateOrder(ctx context.Context, order Order) (Order, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, item := range order.Items {
		tag, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = now()
			WHERE sku = $1 AND stock IS NOT NULL AND stock >= $2`,
			item.SKU, item.Quantity)
		if err != nil {
			return Order{}, err
		}
		if tag.RowsAffected() > 0 {
			continue
		}
		// Either the product tracks no stock (NULL means unlimited) or the
		// decrement would go negative. Distinguish the two.
		var stock *int64
		err = tx.QueryRow(ctx, `SELECT stock FROM products WHERE sku = $1`, item.SKU).Scan(&stock)
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		if err != nil {
			return Order{}, err
		}
		if stock == nil {
			continue
		}
		return Order{}, &InsufficientStockError{SKU: item.SKU, Available: *stock}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO orders (id, order_number, status, customer, items, promo_codes, discounts,
			subtotal_cents, discount_cents, shipping_cents, total_cents, venmo_note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+orderColumns,
		order.ID, order.OrderNumber, order.Status, order.Customer, order.Items,
		order.PromoCodes, order.Discounts, order.SubtotalCents, order.DiscountCents,
		order.ShippingCents, order.TotalCents, order.VenmoNote)
	created, err := scanOrder(row)
	if err != nil {
		return Order{}, mapPGError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return created, nil
}

// GetOrderByNumber fetches an order by its public order number.
func (s *Store) GetOrderByNumber(ctx context.Context, number string) (Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, number)
	return scanOrder(row)
}

// OrderFilter narrows and pages ListOrders results.
type OrderFilter struct {
	Status string
	Limit  int32
	Offset int32
}

// ListOrders returns orders newest first, optionally filtered by status,
// along with the total count matching the filter.
func (s *Store) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, int64, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	var (
		rows pgx.Rows
		err  error
	)
	if filter.Status != "" {
		rows, err = s.pool.Query(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE status = $1
			 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			filter.Status, limit, filter.Offset)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+orderColumns+` FROM orders
			 ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, filter.Offset)
	}
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if filter.Status != "" {
		err = s.pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE status = $1`, filter.Status).Scan(&total)
	} else {
		err = s.pool.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&total)
	}
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateOrderStatus moves an order from one status to another. The update is
// conditional on the current status so two concurrent transitions cannot both
// succeed; when the order has already moved on (or does not exist) the result
// is ErrNotFound.
func (s *Store) UpdateOrderStatus(ctx context.Context, number, from, to string) (Order, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE orders SET status = $3, updated_at = now()
		WHERE order_number = $1 AND status = $2
		RETURNING `+orderColumns, number, from, to)
	return scanOrder(row)
}
