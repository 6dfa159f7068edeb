package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/homequest/internal/auth"
	"github.com/dukerupert/homequest/internal/engine"
	"github.com/dukerupert/homequest/internal/model"
)

type QuestHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewQuestHandler(e *engine.Engine, logger *slog.Logger) *QuestHandler {
	return &QuestHandler{engine: e, logger: logger}
}

type questRequest struct {
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	RewardPoints *int       `json:"reward_points"`
	StartTime    *time.Time `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
}

func (h *QuestHandler) Create(w http.ResponseWriter, r *http.Request) {
	groupID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var req questRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	q, err := h.engine.CreateQuest(r.Context(), auth.AccountID(r.Context()), groupID, engine.QuestInput{
		Name:         req.Name,
		Description:  req.Description,
		RewardPoints: req.RewardPoints,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// List returns the group's quests. ?active=true limits the result to
// quests open right now.
func (h *QuestHandler) List(w http.ResponseWriter, r *http.Request) {
	groupID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var active bool
	if v := r.URL.Query().Get("active"); v != "" {
		if active, err = strconv.ParseBool(v); err != nil {
			writeError(w, h.logger, r, model.InvalidInput("active must be true or false"))
			return
		}
	}
	quests, err := h.engine.ListQuests(r.Context(), auth.AccountID(r.Context()), groupID, active)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quests)
}

func (h *QuestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if err := h.engine.DeleteQuest(r.Context(), auth.AccountID(r.Context()), id); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
