package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/homequest/internal/auth"
	"github.com/dukerupert/homequest/internal/engine"
)

type ShopHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewShopHandler(e *engine.Engine, logger *slog.Logger) *ShopHandler {
	return &ShopHandler{engine: e, logger: logger}
}

type shopItemRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	CostPoints   int    `json:"cost_points"`
	LimitPerUser *int   `json:"limit_per_user"`
}

func (h *ShopHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	groupID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var req shopItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	item, err := h.engine.CreateShopItem(r.Context(), auth.AccountID(r.Context()), groupID, engine.ShopItemInput{
		Name:         req.Name,
		Description:  req.Description,
		CostPoints:   req.CostPoints,
		LimitPerUser: req.LimitPerUser,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *ShopHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	groupID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	items, err := h.engine.ListShopItems(r.Context(), auth.AccountID(r.Context()), groupID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ShopHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if err := h.engine.DeleteShopItem(r.Context(), auth.AccountID(r.Context()), id); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ShopHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	res, err := h.engine.Purchase(r.Context(), auth.AccountID(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *ShopHandler) GroupPurchases(w http.ResponseWriter, r *http.Request) {
	groupID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	out, err := h.engine.PurchaseHistory(r.Context(), auth.AccountID(r.Context()), groupID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
