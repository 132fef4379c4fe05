// Package api provides HTTP handlers for the rolesim API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/rolesim/internal/dialogue"
	"github.com/ashureev/rolesim/internal/domain"
	"github.com/ashureev/rolesim/internal/learning"
	"github.com/ashureev/rolesim/internal/session"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// SessionService is the conversation API the handlers drive.
type SessionService interface {
	Start(ctx context.Context, traineeID string) (*domain.Session, error)
	Get(ctx context.Context, traineeID, sessionID string) (*domain.Session, error)
	Submit(ctx context.Context, traineeID, sessionID, message string) (domain.ScoredResponse, error)
	Skip(ctx context.Context, traineeID, sessionID string, target domain.Phase) (*domain.Session, error)
	Close(ctx context.Context, traineeID, sessionID string) (*domain.Session, error)
}

// LearningService exposes the learning summary and reset.
type LearningService interface {
	Summarize(ctx context.Context) (domain.LearningSummary, error)
	Reset(ctx context.Context, confirm learning.Confirmation) error
}

// Evaluator runs a single stateless dialogue cycle.
type Evaluator interface {
	Evaluate(ctx context.Context, in dialogue.TurnInput) (domain.ScoredResponse, error)
}

// Handler provides the dialogue endpoints.
type Handler struct {
	sessions SessionService
	learning LearningService
	engine   Evaluator
	catalog  *dialogue.Catalog
}

// NewHandler creates a new Handler.
func NewHandler(sessions SessionService, learning LearningService, engine Evaluator, catalog *dialogue.Catalog) *Handler {
	return &Handler{
		sessions: sessions,
		learning: learning,
		engine:   engine,
		catalog:  catalog,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// ErrorResponse is the body written by WriteError.
type ErrorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// StatusFor maps a service error to an HTTP status and whether the client may retry.
func StatusFor(err error) (int, bool) {
	var invalid *dialogue.InvalidInputError
	var config *dialogue.ConfigurationError
	var persist *learning.PersistenceError
	switch {
	case errors.As(err, &invalid), errors.Is(err, learning.ErrResetNotConfirmed), errors.Is(err, learning.ErrEmptyTopic):
		return http.StatusBadRequest, false
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, false
	case errors.Is(err, session.ErrSessionClosed):
		return http.StatusConflict, false
	case errors.As(err, &config):
		return http.StatusInternalServerError, false
	case errors.As(err, &persist), errors.Is(err, session.ErrStorage):
		return http.StatusServiceUnavailable, true
	default:
		return http.StatusInternalServerError, false
	}
}

// WriteError writes err with the status from StatusFor. Server-side failures
// are logged and their details hidden from the client.
func WriteError(w http.ResponseWriter, err error) {
	status, retryable := StatusFor(err)
	resp := ErrorResponse{Error: err.Error(), Retryable: retryable}

	var invalid *dialogue.InvalidInputError
	if errors.As(err, &invalid) {
		resp.Field = invalid.Field
	}
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "status", status, "error", err)
		switch status {
		case http.StatusServiceUnavailable:
			resp.Error = "storage temporarily unavailable"
		default:
			resp.Error = "internal error"
		}
	}
	JSON(w, status, resp)
}

// decodeJSON reads a single JSON object into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &dialogue.InvalidInputError{Field: "body", Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return nil
}
