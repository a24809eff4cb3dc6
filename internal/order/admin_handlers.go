package order

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/evoqwell/evoqsite/internal/common"
	"github.com/evoqwell/evoqsite/internal/store"
)

// AdminHandler provides administrative order management endpoints.
type AdminHandler struct {
	store         orderStore
	venmoUsername string
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(store orderStore, venmoUsername string) *AdminHandler {
	return &AdminHandler{store: store, venmoUsername: venmoUsername}
}

// List handles GET /api/v1/admin/orders with optional status filter and paging.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	status := r.URL.Query().Get("status")
	if status != "" && !ValidStatus(status) {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown order status", nil)
		return
	}
	page := parsePositiveInt(r.URL.Query().Get("page"), 1)
	perPage := parsePositiveInt(r.URL.Query().Get("perPage"), 20)
	if perPage > 100 {
		perPage = 100
	}

	orders, total, err := h.store.ListOrders(r.Context(), store.OrderFilter{
		Status: status,
		Limit:  int32(perPage),
		Offset: int32((page - 1) * perPage),
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	views := make([]View, 0, len(orders))
	for _, o := range orders {
		views = append(views, ToView(o, h.venmoUsername))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": views,
		"pagination": map[string]any{
			"page":       page,
			"perPage":    perPage,
			"totalItems": total,
		},
	})
}

// Get handles GET /api/v1/admin/orders/{number}.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	o, err := h.store.GetOrderByNumber(r.Context(), chi.URLParam(r, "number"))
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

type patchStatusRequest struct {
	Status string `json:"status"`
}

// PatchStatus handles PATCH /api/v1/admin/orders/{number}/status with
// state-machine validation.
func (h *AdminHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	var req patchStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if !ValidStatus(req.Status) {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown order status", nil)
		return
	}

	number := chi.URLParam(r, "number")
	current, err := h.store.GetOrderByNumber(r.Context(), number)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.WriteError(w, err)
		return
	}
	if !CanTransition(current.Status, req.Status) {
		common.JSONError(w, http.StatusConflict, "INVALID_STATE",
			"cannot transition from "+current.Status+" to "+req.Status, nil)
		return
	}

	updated, err := h.store.UpdateOrderStatus(r.Context(), number, current.Status, req.Status)
	if err != nil {
		// The conditional update matches nothing when another request moved
		// the order between our read and this write.
		if errors.Is(err, store.ErrNotFound) {
			common.JSONError(w, http.StatusConflict, "INVALID_STATE",
				"order status changed concurrently", nil)
			return
		}
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ToView(updated, h.venmoUsername)})
}

func parsePositiveInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
