package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Promo kinds.
const (
	PromoKindPercentage = "percentage"
	PromoKindFixed      = "fixed"
)

// PromoCode is a stackable discount code. Codes are stored upper-cased.
type PromoCode struct {
	Code        string
	Kind        string
	PercentBps  int32
	AmountCents int64
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const promoColumns = `code, kind, percent_bps, amount_cents, description, is_active, created_at, updated_at`

func scanPromo(row pgx.Row) (PromoCode, error) {
	var p PromoCode
	err := row.Scan(&p.Code, &p.Kind, &p.PercentBps, &p.AmountCents,
		&p.Description, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PromoCode{}, ErrNotFound
	}
	return p, err
}

// NormalizePromoCode canonicalizes a code for lookup and storage.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GetPromo fetches a single code regardless of active state.
func (s *Store) GetPromo(ctx context.Context, code string) (PromoCode, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+promoColumns+` FROM promo_codes WHERE code = $1`,
		NormalizePromoCode(code))
	return scanPromo(row)
}

// GetActivePromosByCodes fetches the active subset of the given codes in one
// round trip, keyed by code.
func (s *Store) GetActivePromosByCodes(ctx context.Context, codes []string) (map[string]PromoCode, error) {
	if len(codes) == 0 {
		return map[string]PromoCode{}, nil
	}
	normalized := make([]string, 0, len(codes))
	for _, code := range codes {
		normalized = append(normalized, NormalizePromoCode(code))
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+promoColumns+` FROM promo_codes WHERE code = ANY($1) AND is_active`,
		normalized)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]PromoCode, len(codes))
	for rows.Next() {
		p, err := scanPromo(rows)
		if err != nil {
			return nil, err
		}
		result[p.Code] = p
	}
	return result, rows.Err()
}

// ListPromos returns every promo code ordered by creation time, newest first.
func (s *Store) ListPromos(ctx context.Context) ([]PromoCode, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+promoColumns+` FROM promo_codes ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var promos []PromoCode
	for rows.Next() {
		p, err := scanPromo(rows)
		if err != nil {
			return nil, err
		}
		promos = append(promos, p)
	}
	return promos, rows.Err()
}

// PromoInput carries the admin-editable promo fields.
type PromoInput struct {
	Code        string
	Kind        string
	PercentBps  int32
	AmountCents int64
	Description string
	IsActive    bool
}

// CreatePromo inserts a promo code.
func (s *Store) CreatePromo(ctx context.Context, input PromoInput) (PromoCode, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO promo_codes (code, kind, percent_bps, amount_cents, description, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+promoColumns,
		NormalizePromoCode(input.Code), input.Kind, input.PercentBps,
		input.AmountCents, input.Description, input.IsActive)
	p, err := scanPromo(row)
	if err != nil {
		return PromoCode{}, mapPGError(err)
	}
	return p, nil
}

// UpdatePromo replaces the editable fields of an existing promo code.
func (s *Store) UpdatePromo(ctx context.Context, code string, input PromoInput) (PromoCode, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE promo_codes
		SET kind = $2, percent_bps = $3, amount_cents = $4, description = $5,
		    is_active = $6, updated_at = now()
		WHERE code = $1
		RETURNING `+promoColumns,
		NormalizePromoCode(code), input.Kind, input.PercentBps,
		input.AmountCents, input.Description, input.IsActive)
	return scanPromo(row)
}

// DeletePromo removes a promo code.
func (s *Store) DeletePromo(ctx context.Context, code string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM promo_codes WHERE code = $1`, NormalizePromoCode(code))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
