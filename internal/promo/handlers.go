package promo

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/evoqwell/evoqsite/internal/common"
	"github.com/evoqwell/evoqsite/internal/obs"
)

// Handler exposes the public promo lookup endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Get handles GET /api/v1/promo-codes/{code}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promo service not configured", nil)
		return
	}
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		recordLookup(err)
		common.WriteError(w, err)
		return
	}
	recordLookup(nil)
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

func recordLookup(err error) {
	if obs.PromoLookupsTotal == nil {
		return
	}
	result := "hit"
	if err != nil {
		result = "error"
		var appErr *common.AppError
		if errors.As(err, &appErr) && appErr.Code == "INVALID_PROMO_CODE" {
			result = "miss"
		}
	}
	obs.PromoLookupsTotal.WithLabelValues(result).Inc()
}
