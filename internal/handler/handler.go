// Package handler exposes the engine over JSON HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/homequest/internal/model"
)

// maxJSONBody caps request bodies for the JSON endpoints.
const maxJSONBody = 1 << 20

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

// writeError maps domain errors to their status. Anything unrecognized is
// logged and reported as an internal error without detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	var me *model.Error
	if errors.As(err, &me) {
		if me.Code == model.CodeTransient {
			logger.Warn("transient failure", "path", r.URL.Path, "error", err)
			// Report the sentinel message; the wrapped cause stays in the log.
			me = model.ErrTransient
		}
		writeErrorCode(w, me.Status, string(me.Code), me.Message)
		return
	}
	logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeErrorCode(w, http.StatusInternalServerError, "internal", "internal server error")
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.InvalidInput(fmt.Sprintf("invalid %s", name))
	}
	return id, nil
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return model.InvalidInput("invalid JSON: " + err.Error())
	}
	return nil
}
