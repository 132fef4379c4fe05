package api

import (
	"net/http"

	"github.com/ashureev/rolesim/internal/dialogue"
	"github.com/ashureev/rolesim/internal/domain"
)

type phaseView struct {
	Phase      string   `json:"phase"`
	Candidates int      `json:"candidates"`
	Rubric     []string `json:"rubric"`
}

type catalogView struct {
	Phases  []phaseView `json:"phases"`
	Topics  []string    `json:"topics"`
	Buckets []string    `json:"buckets"`
}

// GetCatalog describes the phases and rubric the engine uses.
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, describeCatalog(h.catalog))
}

func describeCatalog(c *dialogue.Catalog) catalogView {
	var v catalogView
	for i, entry := range c.Phases {
		v.Phases = append(v.Phases, phaseView{
			Phase:      domain.Phase(i).String(),
			Candidates: len(entry.Candidates),
			Rubric:     entry.Rubric,
		})
	}
	for _, rule := range c.Topics {
		v.Topics = append(v.Topics, rule.Name)
	}
	for _, name := range []string{dialogue.BucketConcession, dialogue.BucketEvidence} {
		if _, ok := c.Buckets[name]; ok {
			v.Buckets = append(v.Buckets, name)
		}
	}
	return v
}

// evaluateRequest mirrors dialogue.TurnInput with a required phase.
type evaluateRequest struct {
	Phase          *domain.Phase `json:"phase"`
	TraineeMessage string        `json:"traineeMessage"`
	History        []domain.Turn `json:"history"`
}

// Evaluate runs one stateless cycle over a caller-supplied history.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.Phase == nil {
		WriteError(w, &dialogue.InvalidInputError{Field: "phase", Reason: "is required"})
		return
	}
	resp, err := h.engine.Evaluate(r.Context(), dialogue.TurnInput{
		Phase:          *req.Phase,
		TraineeMessage: req.TraineeMessage,
		History:        req.History,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	JSON(w, http.StatusOK, resp)
}
