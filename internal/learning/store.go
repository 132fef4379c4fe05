// Package learning keeps the per-topic record of trainee outcomes that makes
// the simulated counterpart progressively harder.
package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ashureev/rolesim/internal/domain"
)

// Backend is the persistence collaborator behind a Store. Load returns
// (nil, nil) when the topic has no record. Save must be atomic per record.
type Backend interface {
	Load(ctx context.Context, topic string) (*domain.ObjectionLearningRecord, error)
	Save(ctx context.Context, rec domain.ObjectionLearningRecord) error
	LoadAll(ctx context.Context) ([]domain.ObjectionLearningRecord, error)
	Clear(ctx context.Context) error
}

// Confirmation must equal ConfirmReset for Reset to run.
type Confirmation string

// ConfirmReset is the token a caller passes after the user agreed to wipe all learning data.
const ConfirmReset Confirmation = "RESET"

// ErrResetNotConfirmed is returned by Reset without the confirmation token.
var ErrResetNotConfirmed = errors.New("learning reset requires explicit confirmation")

// ErrEmptyTopic is returned when an outcome has no topic.
var ErrEmptyTopic = errors.New("learning topic must not be empty")

// PersistenceError wraps a failed backend read or write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("learning store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

const summaryKey = "summary"

// Store is the only writer of learning records.
type Store struct {
	backend Backend
	now     func() time.Time
	logger  *slog.Logger

	// topicLocks serializes read-modify-write per topic.
	topicLocks sync.Map
	// resetMu excludes outcome writes while Clear runs.
	resetMu sync.RWMutex
	// summaries collapses concurrent Summarize calls into one LoadAll.
	summaries singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore wraps backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeTopic trims and lowercases a topic key.
func NormalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

func (s *Store) lockFor(topic string) *sync.Mutex {
	lock, _ := s.topicLocks.LoadOrStore(topic, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// RecordOutcome adds one successful or unsuccessful answer to topic's record,
// creating it if needed. The record is saved whole or not at all.
func (s *Store) RecordOutcome(ctx context.Context, topic string, successful bool) error {
	topic = NormalizeTopic(topic)
	if topic == "" {
		return ErrEmptyTopic
	}

	s.resetMu.RLock()
	defer s.resetMu.RUnlock()

	mu := s.lockFor(topic)
	mu.Lock()
	defer mu.Unlock()

	current, err := s.backend.Load(ctx, topic)
	if err != nil {
		return &PersistenceError{Op: "load", Err: err}
	}
	rec := domain.ObjectionLearningRecord{Topic: topic}
	if current != nil {
		rec = *current
		rec.Topic = topic
	}
	if successful {
		rec.SuccessfulCount++
	} else {
		rec.UnsuccessfulCount++
	}
	rec.LastUpdated = s.now().UTC()

	if err := s.backend.Save(ctx, rec); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}

	s.logger.Debug("Learning outcome recorded",
		"topic", topic,
		"successful", successful,
		"successful_count", rec.SuccessfulCount,
		"unsuccessful_count", rec.UnsuccessfulCount,
	)
	return nil
}

// Record returns the current record for topic, or nil when none exists.
func (s *Store) Record(ctx context.Context, topic string) (*domain.ObjectionLearningRecord, error) {
	rec, err := s.backend.Load(ctx, NormalizeTopic(topic))
	if err != nil {
		return nil, &PersistenceError{Op: "load", Err: err}
	}
	return rec, nil
}

// Records returns every stored record.
func (s *Store) Records(ctx context.Context) ([]domain.ObjectionLearningRecord, error) {
	recs, err := s.backend.LoadAll(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "load all", Err: err}
	}
	return recs, nil
}

// Summarize projects all records into a LearningSummary. Concurrent calls
// share one LoadAll; a call made after Reset returns never sees pre-reset data.
func (s *Store) Summarize(ctx context.Context) (domain.LearningSummary, error) {
	s.resetMu.RLock()
	defer s.resetMu.RUnlock()

	// The shared load must not fail for every joined caller when the first
	// caller goes away.
	shared := context.WithoutCancel(ctx)
	ch := s.summaries.DoChan(summaryKey, func() (any, error) {
		recs, err := s.Records(shared)
		if err != nil {
			return nil, err
		}
		return Summarize(recs), nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.LearningSummary{}, res.Err
		}
		return res.Val.(domain.LearningSummary), nil
	case <-ctx.Done():
		return domain.LearningSummary{}, ctx.Err()
	}
}

// Reset deletes every record. It refuses to run unless confirm is ConfirmReset.
func (s *Store) Reset(ctx context.Context, confirm Confirmation) error {
	if confirm != ConfirmReset {
		return ErrResetNotConfirmed
	}

	s.resetMu.Lock()
	defer s.resetMu.Unlock()

	if err := s.backend.Clear(ctx); err != nil {
		return &PersistenceError{Op: "clear", Err: err}
	}
	s.summaries.Forget(summaryKey)
	s.logger.Warn("Learning data reset")
	return nil
}
