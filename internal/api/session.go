package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/rolesim/internal/dialogue"
	"github.com/ashureev/rolesim/internal/domain"
	"github.com/ashureev/rolesim/internal/identity"
)

// SessionView is the session representation returned by the API.
type SessionView struct {
	*domain.Session
	TotalScore int `json:"totalScore"`
}

func viewOf(s *domain.Session) SessionView {
	return SessionView{Session: s, TotalScore: s.TotalScore()}
}

type turnRequest struct {
	Message string `json:"message"`
}

type phaseRequest struct {
	Phase *domain.Phase `json:"phase"`
}

// GetMe returns the current trainee's identity.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	traineeID := identity.TraineeIDFromContext(r.Context())
	if traineeID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"trainee_id":   traineeID,
		"display_name": identity.DisplayNameFromContext(r.Context()),
	})
}

// StartSession opens a new conversation.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	traineeID := identity.TraineeIDFromContext(r.Context())
	sess, err := h.sessions.Start(r.Context(), traineeID)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusCreated, viewOf(sess))
}

// GetSession returns one of the trainee's sessions.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	traineeID := identity.TraineeIDFromContext(r.Context())
	sess, err := h.sessions.Get(r.Context(), traineeID, chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, viewOf(sess))
}

// SubmitTurn evaluates a trainee message within a session.
func (h *Handler) SubmitTurn(w http.ResponseWriter, r *http.Request) {
	traineeID := identity.TraineeIDFromContext(r.Context())
	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	resp, err := h.sessions.Submit(r.Context(), traineeID, chi.URLParam(r, "id"), req.Message)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, resp)
}

// SkipPhase applies an explicit phase trigger.
func (h *Handler) SkipPhase(w http.ResponseWriter, r *http.Request) {
	traineeID := identity.TraineeIDFromContext(r.Context())
	var req phaseRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.Phase == nil {
		WriteError(w, &dialogue.InvalidInputError{Field: "phase", Reason: "is required"})
		return
	}
	sess, err := h.sessions.Skip(r.Context(), traineeID, chi.URLParam(r, "id"), *req.Phase)
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, viewOf(sess))
}

// CloseSession ends a conversation.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	traineeID := identity.TraineeIDFromContext(r.Context())
	sess, err := h.sessions.Close(r.Context(), traineeID, chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	slog.Debug("Session closed via API", "trainee_id", traineeID, "session_id", sess.ID)
	JSON(w, http.StatusOK, viewOf(sess))
}
