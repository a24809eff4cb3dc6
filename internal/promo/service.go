// Package promo manages stackable discount codes.
package promo

import (
	"context"
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"

	"github.com/evoqwell/evoqsite/internal/common"
	"github.com/evoqwell/evoqsite/internal/money"
	"github.com/evoqwell/evoqsite/internal/store"
)

// promoStore is the persistence surface the promo module needs.
type promoStore interface {
	GetPromo(ctx context.Context, code string) (store.PromoCode, error)
	ListPromos(ctx context.Context) ([]store.PromoCode, error)
	CreatePromo(ctx context.Context, input store.PromoInput) (store.PromoCode, error)
	UpdatePromo(ctx context.Context, code string, input store.PromoInput) (store.PromoCode, error)
	DeletePromo(ctx context.Context, code string) error
}

// Promo is the public representation of a discount code.
type Promo struct {
	Code        string  `json:"code"`
	Kind        string  `json:"kind"`
	Percent     float64 `json:"percent,omitempty"`
	AmountCents int64   `json:"amountCents,omitempty"`
	Amount      string  `json:"amount,omitempty"`
	Description string  `json:"description,omitempty"`
}

// AdminPromo extends the public shape with the active flag.
type AdminPromo struct {
	Promo
	IsActive bool `json:"isActive"`
}

// Payload is the admin create/update request body. Percent is expressed in
// whole percent (e.g. 12.5); it is stored as basis points.
type Payload struct {
	Code        string  `json:"code" validate:"required,max=40"`
	Kind        string  `json:"kind" validate:"required,oneof=percentage fixed"`
	Percent     float64 `json:"percent" validate:"min=0,max=100"`
	AmountCents int64   `json:"amountCents" validate:"min=0"`
	Description string  `json:"description" validate:"max=500"`
	IsActive    bool    `json:"isActive"`
}

// Service serves promo codes for the storefront and the admin API.
type Service struct {
	store    promoStore
	validate *validator.Validate
}

// NewService constructs a Service.
func NewService(store promoStore, validate *validator.Validate) *Service {
	return &Service{store: store, validate: validate}
}

// Get returns an active promo code for the public lookup endpoint. Unknown
// and deactivated codes are indistinguishable to the caller.
func (s *Service) Get(ctx context.Context, code string) (Promo, error) {
	row, err := s.store.GetPromo(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Promo{}, common.NewAppError("INVALID_PROMO_CODE", "invalid promo code", http.StatusNotFound, nil)
		}
		return Promo{}, err
	}
	if !row.IsActive {
		return Promo{}, common.NewAppError("INVALID_PROMO_CODE", "invalid promo code", http.StatusNotFound, nil)
	}
	return toPublic(row), nil
}

// AdminList returns every promo code including inactive ones.
func (s *Service) AdminList(ctx context.Context) ([]AdminPromo, error) {
	rows, err := s.store.ListPromos(ctx)
	if err != nil {
		return nil, err
	}
	promos := make([]AdminPromo, 0, len(rows))
	for _, row := range rows {
		promos = append(promos, toAdmin(row))
	}
	return promos, nil
}

// AdminCreate inserts a promo code.
func (s *Service) AdminCreate(ctx context.Context, payload Payload) (AdminPromo, error) {
	input, err := s.toInput(payload)
	if err != nil {
		return AdminPromo{}, err
	}
	created, err := s.store.CreatePromo(ctx, input)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return AdminPromo{}, common.Conflict("promo code already exists")
		}
		return AdminPromo{}, err
	}
	return toAdmin(created), nil
}

// AdminUpdate replaces the fields of an existing promo code.
func (s *Service) AdminUpdate(ctx context.Context, code string, payload Payload) (AdminPromo, error) {
	payload.Code = store.NormalizePromoCode(code)
	input, err := s.toInput(payload)
	if err != nil {
		return AdminPromo{}, err
	}
	updated, err := s.store.UpdatePromo(ctx, code, input)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AdminPromo{}, common.NotFound("promo code not found")
		}
		return AdminPromo{}, err
	}
	return toAdmin(updated), nil
}

// AdminDelete removes a promo code.
func (s *Service) AdminDelete(ctx context.Context, code string) error {
	if err := s.store.DeletePromo(ctx, code); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return common.NotFound("promo code not found")
		}
		return err
	}
	return nil
}

func (s *Service) toInput(payload Payload) (store.PromoInput, error) {
	if err := s.validate.Struct(payload); err != nil {
		return store.PromoInput{}, common.BadRequest("invalid promo payload", err)
	}
	input := store.PromoInput{
		Code:        store.NormalizePromoCode(payload.Code),
		Kind:        payload.Kind,
		Description: payload.Description,
		IsActive:    payload.IsActive,
	}
	switch payload.Kind {
	case store.PromoKindPercentage:
		if payload.Percent <= 0 {
			return store.PromoInput{}, common.BadRequest("percent must be greater than zero", nil)
		}
		bps, err := money.PercentToBps(payload.Percent)
		if err != nil {
			return store.PromoInput{}, common.BadRequest("invalid percent", err)
		}
		input.PercentBps = bps
	case store.PromoKindFixed:
		if payload.AmountCents <= 0 {
			return store.PromoInput{}, common.BadRequest("amountCents must be greater than zero", nil)
		}
		input.AmountCents = payload.AmountCents
	}
	return input, nil
}

func toPublic(row store.PromoCode) Promo {
	p := Promo{
		Code:        row.Code,
		Kind:        row.Kind,
		Description: row.Description,
	}
	switch row.Kind {
	case store.PromoKindPercentage:
		p.Percent = money.BpsToPercent(row.PercentBps)
	case store.PromoKindFixed:
		p.AmountCents = row.AmountCents
		p.Amount = money.FormatDollars(row.AmountCents)
	}
	return p
}

func toAdmin(row store.PromoCode) AdminPromo {
	return AdminPromo{Promo: toPublic(row), IsActive: row.IsActive}
}
