// Package session runs practice conversations: it owns phase progression per
// session, feeds each trainee turn to the dialogue engine and persists the
// results.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/rolesim/internal/dialogue"
	"github.com/ashureev/rolesim/internal/domain"
)

var (
	// ErrSessionNotFound is returned for unknown sessions and for sessions
	// that belong to another trainee.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed is returned when a turn targets a closed session.
	ErrSessionClosed = errors.New("session is closed")
	// ErrStorage marks session persistence failures.
	ErrStorage = errors.New("session storage failure")
)

// Repository is the session persistence the service needs.
type Repository interface {
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	SaveSession(ctx context.Context, session *domain.Session) error
	ListIdleSessions(ctx context.Context, before time.Time) ([]*domain.Session, error)
	DeleteClosedSessions(ctx context.Context, before time.Time) ([]string, error)
}

// Evaluator runs one dialogue cycle.
type Evaluator interface {
	Evaluate(ctx context.Context, in dialogue.TurnInput) (domain.ScoredResponse, error)
}

// Recorder receives conversation events, e.g. for transcripts.
type Recorder interface {
	TraineeMessage(traineeID, sessionID string, phase domain.Phase, message string)
	CounterpartReply(traineeID, sessionID string, resp domain.ScoredResponse)
}

// Observer receives lifecycle events, e.g. for metrics.
type Observer interface {
	SessionStarted()
	SessionClosed(reason string)
	TurnEvaluated(resp domain.ScoredResponse, elapsed time.Duration)
	TurnFailed(err error)
}

// Config wires a Service.
type Config struct {
	Repo       Repository
	Engine     Evaluator
	Controller *dialogue.Controller
	Recorder   Recorder
	Observer   Observer
	Logger     *slog.Logger
	Now        func() time.Time
	NewID      func() string
	// OnClose runs after a session is closed, e.g. to drop its live channel.
	OnClose func(traineeID, sessionID string)
}

// Service is safe for concurrent use. Turns of one session are serialized.
type Service struct {
	repo       Repository
	engine     Evaluator
	controller *dialogue.Controller
	recorder   Recorder
	observer   Observer
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
	onClose    func(traineeID, sessionID string)

	// locks holds one *sync.Mutex per session ID.
	locks sync.Map
}

// NewService creates a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Repo == nil {
		return nil, fmt.Errorf("session: repository is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("session: engine is required")
	}
	s := &Service{
		repo:       cfg.Repo,
		engine:     cfg.Engine,
		controller: cfg.Controller,
		recorder:   cfg.Recorder,
		observer:   cfg.Observer,
		logger:     cfg.Logger,
		now:        cfg.Now,
		newID:      cfg.NewID,
		onClose:    cfg.OnClose,
	}
	if s.controller == nil {
		s.controller = dialogue.NewController(dialogue.DefaultTurnsPerPhase)
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

func (s *Service) lockFor(sessionID string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Start opens a new session at the greeting phase.
func (s *Service) Start(ctx context.Context, traineeID string) (*domain.Session, error) {
	if traineeID == "" {
		return nil, fmt.Errorf("session: trainee id is required")
	}
	sess := domain.NewSession(s.newID(), traineeID, s.now().UTC())
	if err := s.repo.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: create session: %w", ErrStorage, err)
	}
	s.observer.SessionStarted()
	s.logger.Info("Session started", "trainee_id", traineeID, "session_id", sess.ID)
	return sess, nil
}

// Get returns a copy of the session if it belongs to traineeID.
func (s *Service) Get(ctx context.Context, traineeID, sessionID string) (*domain.Session, error) {
	return s.load(ctx, traineeID, sessionID)
}

func (s *Service) load(ctx context.Context, traineeID, sessionID string) (*domain.Session, error) {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: load session: %w", ErrStorage, err)
	}
	if sess == nil || sess.TraineeID != traineeID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Submit evaluates one trainee message. The session is only changed when the
// whole cycle, persistence included, succeeds.
func (s *Service) Submit(ctx context.Context, traineeID, sessionID, message string) (domain.ScoredResponse, error) {
	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.load(ctx, traineeID, sessionID)
	if err != nil {
		return domain.ScoredResponse{}, err
	}
	if sess.Closed {
		return domain.ScoredResponse{}, ErrSessionClosed
	}

	phase, err := s.controller.Advance(sess.Phase, sess.TurnsInPhase, nil)
	if err != nil {
		return domain.ScoredResponse{}, err
	}
	staged := sess.Clone()
	staged.MoveTo(phase)

	now := s.now().UTC()
	message = strings.TrimSpace(message)
	history := append(staged.History[:len(staged.History):len(staged.History)],
		domain.Turn{Role: domain.RoleTrainee, Content: message, Timestamp: &now})

	started := time.Now()
	resp, err := s.engine.Evaluate(ctx, dialogue.TurnInput{
		Phase:          staged.Phase,
		TraineeMessage: message,
		History:        history,
	})
	if err != nil {
		s.observer.TurnFailed(err)
		s.logger.Warn("Turn evaluation failed",
			"trainee_id", traineeID,
			"session_id", sessionID,
			"phase", staged.Phase.String(),
			"error", err)
		return domain.ScoredResponse{}, err
	}
	resp.TurnIndex = staged.TurnIndex
	staged.RecordExchange(message, resp, now)

	if err := s.repo.SaveSession(ctx, staged); err != nil {
		err = fmt.Errorf("%w: save session: %w", ErrStorage, err)
		s.observer.TurnFailed(err)
		return domain.ScoredResponse{}, err
	}

	s.observer.TurnEvaluated(resp, time.Since(started))
	s.recorder.TraineeMessage(traineeID, sessionID, resp.Phase, message)
	s.recorder.CounterpartReply(traineeID, sessionID, resp)
	s.logger.Info("Turn recorded",
		"trainee_id", traineeID,
		"session_id", sessionID,
		"phase", resp.Phase.String(),
		"score", resp.Score,
		"topic", resp.Topic,
		"turn_index", resp.TurnIndex)
	return resp, nil
}

// Skip moves the session to target explicitly. Moving backwards is a no-op.
func (s *Service) Skip(ctx context.Context, traineeID, sessionID string, target domain.Phase) (*domain.Session, error) {
	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.load(ctx, traineeID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Closed {
		return nil, ErrSessionClosed
	}

	phase, err := s.controller.Advance(sess.Phase, sess.TurnsInPhase, &target)
	if err != nil {
		return nil, err
	}
	if phase == sess.Phase {
		return sess, nil
	}

	staged := sess.Clone()
	staged.MoveTo(phase)
	staged.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveSession(ctx, staged); err != nil {
		return nil, fmt.Errorf("%w: save session: %w", ErrStorage, err)
	}
	s.logger.Info("Session phase skipped",
		"trainee_id", traineeID,
		"session_id", sessionID,
		"from", sess.Phase.String(),
		"to", phase.String())
	return staged, nil
}

// Close ends the session. Closing a closed session returns it unchanged.
func (s *Service) Close(ctx context.Context, traineeID, sessionID string) (*domain.Session, error) {
	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.load(ctx, traineeID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Closed {
		return sess, nil
	}
	if err := s.closeLocked(ctx, sess, "trainee"); err != nil {
		return nil, err
	}
	return sess, nil
}

// closeLocked must be called with the session lock held.
func (s *Service) closeLocked(ctx context.Context, sess *domain.Session, reason string) error {
	staged := sess.Clone()
	staged.Closed = true
	staged.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveSession(ctx, staged); err != nil {
		return fmt.Errorf("%w: close session: %w", ErrStorage, err)
	}
	*sess = *staged
	s.observer.SessionClosed(reason)
	if s.onClose != nil {
		s.onClose(sess.TraineeID, sess.ID)
	}
	s.logger.Info("Session closed",
		"trainee_id", sess.TraineeID,
		"session_id", sess.ID,
		"reason", reason,
		"turns", sess.TurnIndex,
		"total_score", sess.TotalScore())
	return nil
}

type nopRecorder struct{}

func (nopRecorder) TraineeMessage(string, string, domain.Phase, string)   {}
func (nopRecorder) CounterpartReply(string, string, domain.ScoredResponse) {}

type nopObserver struct{}

func (nopObserver) SessionStarted()                                    {}
func (nopObserver) SessionClosed(string)                               {}
func (nopObserver) TurnEvaluated(domain.ScoredResponse, time.Duration) {}
func (nopObserver) TurnFailed(error)                                   {}
