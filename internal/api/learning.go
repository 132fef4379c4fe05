package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/rolesim/internal/domain"
	"github.com/ashureev/rolesim/internal/identity"
	"github.com/ashureev/rolesim/internal/learning"
)

// SummaryView adds derived figures to the learning summary.
type SummaryView struct {
	domain.LearningSummary
	SuccessRate int                 `json:"successRate"`
	Level       domain.LearnerLevel `json:"level"`
}

type resetRequest struct {
	Confirm string `json:"confirm"`
}

// LearningSummary returns the aggregated learning state.
func (h *Handler) LearningSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.learning.Summarize(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, SummaryView{
		LearningSummary: sum,
		SuccessRate:     sum.SuccessRate(),
		Level:           sum.Level(),
	})
}

// ResetLearning wipes all learning records. The body must carry the
// confirmation token.
func (h *Handler) ResetLearning(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := h.learning.Reset(r.Context(), learning.Confirmation(req.Confirm)); err != nil {
		WriteError(w, err)
		return
	}
	slog.Warn("Learning data reset via API", "trainee_id", identity.TraineeIDFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}
