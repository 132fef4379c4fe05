package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/rolesim/internal/domain"
)

// DefaultSuccessThreshold is the minimum score that counts as a handled objection.
const DefaultSuccessThreshold = 7

// Learner is the learning store as seen by the engine.
type Learner interface {
	RecordOutcome(ctx context.Context, topic string, successful bool) error
	Record(ctx context.Context, topic string) (*domain.ObjectionLearningRecord, error)
}

// TurnInput is one trainee turn submitted for evaluation.
type TurnInput struct {
	Phase          domain.Phase  `json:"phase"`
	TraineeMessage string        `json:"traineeMessage"`
	History        []domain.Turn `json:"history"`
}

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	Catalog          *Catalog
	Learner          Learner
	Selector         SelectorConfig
	LengthThreshold  int
	SuccessThreshold int
	Logger           *slog.Logger
}

// Engine runs one evaluation cycle per trainee turn: score, record the
// outcome, then pick the reply with the updated learning state.
type Engine struct {
	catalog          *Catalog
	scorer           *Scorer
	selector         *Selector
	learner          Learner
	successThreshold int
	logger           *slog.Logger
}

// NewEngine validates the catalog and builds the scorer and selector.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Catalog == nil {
		return nil, &ConfigurationError{Phase: -1, Reason: "catalog is required"}
	}
	if cfg.Learner == nil {
		return nil, fmt.Errorf("engine: learner is required")
	}
	if err := cfg.Catalog.Validate(); err != nil {
		return nil, err
	}
	selector, err := NewSelector(cfg.Catalog, cfg.Selector)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	threshold := cfg.SuccessThreshold
	if threshold <= 0 {
		threshold = DefaultSuccessThreshold
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		catalog:          cfg.Catalog,
		scorer:           NewScorer(cfg.Catalog, cfg.LengthThreshold),
		selector:         selector,
		learner:          cfg.Learner,
		successThreshold: threshold,
		logger:           logger,
	}, nil
}

// Catalog returns the catalog the engine serves.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Scorer returns the engine's scorer.
func (e *Engine) Scorer() *Scorer { return e.scorer }

// Evaluate scores in.TraineeMessage, selects the counterpart reply against the
// learning state including this turn, then records the outcome for
// objection-like phases. On error nothing is returned
// that could be shown as a reply.
func (e *Engine) Evaluate(ctx context.Context, in TurnInput) (domain.ScoredResponse, error) {
	if err := ValidateInput(in); err != nil {
		return domain.ScoredResponse{}, err
	}

	score := e.scorer.Score(in.Phase, in.TraineeMessage)
	successful := score >= e.successThreshold
	topic := e.catalog.TopicFor(in.TraineeMessage, in.History)

	learns := recordsLearning(in.Phase)
	var view LearningView
	if learns {
		rec, err := e.learner.Record(ctx, topic)
		if err != nil {
			return domain.ScoredResponse{}, err
		}
		view = Snapshot{topic: withOutcome(rec, topic, successful)}
	}

	reply, err := e.selector.SelectReply(in.Phase, in.TraineeMessage, in.History, view)
	if err != nil {
		return domain.ScoredResponse{}, err
	}

	// The outcome is written last so a failed turn never counts it.
	if learns {
		if err := e.learner.RecordOutcome(ctx, topic, successful); err != nil {
			return domain.ScoredResponse{}, err
		}
	}

	e.logger.Debug("Turn evaluated",
		"phase", in.Phase.String(),
		"score", score,
		"topic", topic,
		"successful", successful,
		"difficulty", reply.Difficulty,
	)

	return domain.ScoredResponse{
		CounterpartReply: reply.Text,
		Score:            score,
		Phase:            in.Phase,
		Topic:            topic,
		Successful:       successful,
		Difficulty:       reply.Difficulty,
		TurnIndex:        countTrainee(in.History),
	}, nil
}

// withOutcome returns rec as it will be once this turn's outcome is recorded.
func withOutcome(rec *domain.ObjectionLearningRecord, topic string, successful bool) domain.ObjectionLearningRecord {
	next := domain.ObjectionLearningRecord{Topic: topic}
	if rec != nil {
		next = *rec
	}
	if successful {
		next.SuccessfulCount++
	} else {
		next.UnsuccessfulCount++
	}
	return next
}

// ValidateInput rejects turns the engine cannot evaluate.
func ValidateInput(in TurnInput) error {
	if !in.Phase.Valid() {
		return invalidInput("phase", "%d is not a conversation phase", int(in.Phase))
	}
	if strings.TrimSpace(in.TraineeMessage) == "" {
		return invalidInput("traineeMessage", "must not be empty")
	}
	for i, t := range in.History {
		if !t.Role.Valid() {
			return invalidInput("history", "turn %d has unknown role %q", i, t.Role)
		}
	}
	return nil
}

// recordsLearning reports whether a phase's turns answer objections.
func recordsLearning(p domain.Phase) bool {
	return p == domain.Objections || p == domain.Closing
}

func countTrainee(history []domain.Turn) int {
	n := 0
	for _, t := range history {
		if t.Role == domain.RoleTrainee {
			n++
		}
	}
	return n
}
