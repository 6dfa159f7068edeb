package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/homequest/internal/auth"
	"github.com/dukerupert/homequest/internal/engine"
	"github.com/dukerupert/homequest/internal/model"
)

type AccountHandler struct {
	engine *engine.Engine
	hasher *auth.Hasher
	tokens *auth.Issuer
	logger *slog.Logger
}

func NewAccountHandler(e *engine.Engine, hasher *auth.Hasher, tokens *auth.Issuer, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{engine: e, hasher: hasher, tokens: tokens, logger: logger}
}

type registerRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

const minPasswordLength = 8

func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, h.logger, r, model.InvalidInput("password must be at least 8 characters"))
		return
	}
	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	a, err := h.engine.CreateAccount(r.Context(), req.Name, hash)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

type tokenRequest struct {
	AccountID int64  `json:"account_id"`
	Password  string `json:"password"`
}

// Token exchanges credentials for an access token. Unknown accounts and
// wrong passwords are indistinguishable to the caller.
func (h *AccountHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	a, err := h.engine.Account(r.Context(), req.AccountID)
	if err != nil && !errors.Is(err, model.ErrAccountNotFound) {
		writeError(w, h.logger, r, err)
		return
	}
	if a == nil || !h.hasher.Verify(a.PasswordHash, req.Password) {
		h.logger.Info("login failed", "account_id", req.AccountID, "remote", r.RemoteAddr)
		writeError(w, h.logger, r, model.ErrInvalidCredentials)
		return
	}
	tok, err := h.tokens.Issue(a.ID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	a, err := h.engine.Account(r.Context(), auth.AccountID(r.Context()))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *AccountHandler) MyGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.engine.ListGroups(r.Context(), auth.AccountID(r.Context()))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *AccountHandler) MyPurchases(w http.ResponseWriter, r *http.Request) {
	out, err := h.engine.MyPurchases(r.Context(), auth.AccountID(r.Context()))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
