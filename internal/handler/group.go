package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/homequest/internal/auth"
	"github.com/dukerupert/homequest/internal/engine"
	"github.com/dukerupert/homequest/internal/websocket"
)

type GroupHandler struct {
	engine *engine.Engine
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewGroupHandler(e *engine.Engine, hub *websocket.Hub, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{engine: e, hub: hub, logger: logger}
}

type groupRequest struct {
	Name string `json:"name"`
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	g, err := h.engine.CreateGroup(r.Context(), auth.AccountID(r.Context()), req.Name)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	d, err := h.engine.GroupDetail(r.Context(), auth.AccountID(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if err := h.engine.DeleteGroup(r.Context(), auth.AccountID(r.Context()), id); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type inviteCodeResponse struct {
	InviteCode string `json:"invite_code"`
}

func (h *GroupHandler) InviteCode(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	code, err := h.engine.GetOrCreateInviteCode(r.Context(), auth.AccountID(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inviteCodeResponse{InviteCode: code})
}

func (h *GroupHandler) ResetInviteCode(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	code, err := h.engine.RegenerateInviteCode(r.Context(), auth.AccountID(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inviteCodeResponse{InviteCode: code})
}

type joinRequest struct {
	InviteCode string `json:"invite_code"`
}

func (h *GroupHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	res, err := h.engine.JoinByCode(r.Context(), auth.AccountID(r.Context()), req.InviteCode)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	status := http.StatusCreated
	if res.AlreadyMember {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

type roleRequest struct {
	IsHost bool `json:"is_host"`
}

func (h *GroupHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	groupID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	targetID, err := parseIDParam(r, "account_id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	m, err := h.engine.SetHost(r.Context(), auth.AccountID(r.Context()), groupID, targetID, req.IsHost)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	groupID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	targetID, err := parseIDParam(r, "account_id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if err := h.engine.RemoveMember(r.Context(), auth.AccountID(r.Context()), groupID, targetID); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) Leave(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if err := h.engine.Leave(r.Context(), auth.AccountID(r.Context()), id); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stream upgrades to a websocket carrying the group's events. Members only.
func (h *GroupHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	accountID := auth.AccountID(r.Context())
	if _, err := h.engine.Membership(r.Context(), id, accountID); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.hub.Serve(w, r, id, accountID)
}
