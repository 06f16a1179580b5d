package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"daylife/internal/llm"
	appLog "daylife/internal/log"
	"daylife/internal/model"
	"daylife/internal/planner"
)

// errorBody is the JSON error shape shared by every endpoint.
type errorBody struct {
	Kind     string          `json:"kind"`
	Field    string          `json:"field,omitempty"`
	Value    string          `json:"value,omitempty"`
	Message  string          `json:"message"`
	Warnings []model.Warning `json:"warnings,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// errBadRequest marks a body that could not be decoded or validated.
var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	writeJSON(w, status, errorResponse{Error: body})
}

// writeFailure maps err to a status code and error body.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		appLog.Error("request failed", err, "path", r.URL.Path, "status", status)
	} else {
		appLog.Info("request rejected", "path", r.URL.Path, "status", status, "kind", body.Kind, "reason", body.Message)
	}
	writeError(w, status, body)
}

func classify(err error) (int, errorBody) {
	var me *model.Error
	switch {
	case errors.As(err, &me):
		return http.StatusUnprocessableEntity, errorBody{
			Kind:     string(me.Kind),
			Field:    me.Field,
			Value:    me.Value,
			Message:  me.Message,
			Warnings: me.Warnings,
		}
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, errorBody{Kind: "BadRequest", Message: err.Error()}
	case errors.Is(err, planner.ErrRemoteImportDisabled):
		return http.StatusForbidden, errorBody{Kind: "RemoteImportDisabled", Field: "url", Message: err.Error()}
	case errors.Is(err, planner.ErrNoCalendarSource), errors.Is(err, planner.ErrInvalidCalendar),
		errors.Is(err, planner.ErrUnknownSource):
		return http.StatusBadRequest, errorBody{Kind: "InvalidCalendar", Message: err.Error()}
	case errors.Is(err, llm.ErrUpstreamRejected):
		return http.StatusBadRequest, errorBody{Kind: "UpstreamRejected", Message: err.Error()}
	case errors.Is(err, llm.ErrUpstreamUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway, errorBody{Kind: "UpstreamUnavailable", Message: err.Error()}
	case errors.Is(err, llm.ErrMissingAPIKey):
		return http.StatusInternalServerError, errorBody{Kind: "Configuration", Message: "API key not configured"}
	default:
		return http.StatusInternalServerError, errorBody{Kind: "Internal", Message: "internal server error"}
	}
}
