package learning

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/rolesim/internal/domain"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore() *Store {
	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewStore(NewMemoryBackend(), WithClock(clock.Now))
}

func TestRecordOutcomeCreatesAndIncrements(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	require.NoError(t, s.RecordOutcome(ctx, "cost", true))
	require.NoError(t, s.RecordOutcome(ctx, " Cost ", false))
	require.NoError(t, s.RecordOutcome(ctx, "cost", true))

	rec, err := s.Record(ctx, "cost")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "cost", rec.Topic)
	assert.Equal(t, 2, rec.SuccessfulCount)
	assert.Equal(t, 1, rec.UnsuccessfulCount)
	assert.False(t, rec.LastUpdated.IsZero())
}

func TestRecordMissingTopic(t *testing.T) {
	rec, err := newTestStore().Record(context.Background(), "time")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRecordOutcomeEmptyTopic(t *testing.T) {
	err := newTestStore().RecordOutcome(context.Background(), "  ", true)
	assert.ErrorIs(t, err, ErrEmptyTopic)
}

func TestSummaryAfterSuccesses(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	const n = 5
	for range n {
		require.NoError(t, s.RecordOutcome(ctx, "safety", true))
	}
	require.NoError(t, s.RecordOutcome(ctx, "time", false))

	sum, err := s.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalObjections)
	assert.Equal(t, n, sum.TotalSuccessful)
	assert.Equal(t, 1, sum.TotalUnsuccessful)
	assert.Equal(t, "safety", sum.MostLearnedObjection)
	assert.GreaterOrEqual(t, sum.MaxLearningCount, n)
}

func TestResetRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.RecordOutcome(ctx, "cost", true))

	err := s.Reset(ctx, "yes")
	require.ErrorIs(t, err, ErrResetNotConfirmed)

	sum, err := s.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TotalObjections)
}

func TestResetClearsEverything(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.RecordOutcome(ctx, "cost", true))
	require.NoError(t, s.RecordOutcome(ctx, "time", false))

	require.NoError(t, s.Reset(ctx, ConfirmReset))

	sum, err := s.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.LearningSummary{}, sum)
}

func TestConcurrentOutcomesLoseNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	const workers = 16
	const perWorker = 25
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for range perWorker {
				_ = s.RecordOutcome(ctx, "cost", w%2 == 0)
			}
		}(w)
	}
	wg.Wait()

	rec, err := s.Record(ctx, "cost")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, workers*perWorker, rec.Total())
	assert.Equal(t, workers/2*perWorker, rec.SuccessfulCount)
}

type failingBackend struct {
	*MemoryBackend
	saveErr error
}

func (f *failingBackend) Save(ctx context.Context, rec domain.ObjectionLearningRecord) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryBackend.Save(ctx, rec)
}

func TestRecordOutcomeSaveFailure(t *testing.T) {
	boom := errors.New("disk full")
	s := NewStore(&failingBackend{MemoryBackend: NewMemoryBackend(), saveErr: boom})

	err := s.RecordOutcome(context.Background(), "cost", true)
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "save", pe.Op)
	assert.ErrorIs(t, err, boom)

	rec, err := s.Record(context.Background(), "cost")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

// gatedBackend takes its LoadAll snapshot, then waits for release.
type gatedBackend struct {
	*MemoryBackend
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedBackend() *gatedBackend {
	return &gatedBackend{
		MemoryBackend: NewMemoryBackend(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
}

func (g *gatedBackend) LoadAll(ctx context.Context) ([]domain.ObjectionLearningRecord, error) {
	recs, err := g.MemoryBackend.LoadAll(ctx)
	first := false
	g.once.Do(func() { first = true })
	if !first {
		return recs, err
	}
	close(g.entered)
	select {
	case <-g.release:
		return recs, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSummarizeAfterResetSeesEmptyStore(t *testing.T) {
	ctx := context.Background()
	backend := newGatedBackend()
	s := NewStore(backend)
	for range 3 {
		require.NoError(t, s.RecordOutcome(ctx, "cost", true))
	}

	inFlight := make(chan domain.LearningSummary, 1)
	go func() {
		sum, err := s.Summarize(ctx)
		assert.NoError(t, err)
		inFlight <- sum
	}()
	<-backend.entered

	resetDone := make(chan error, 1)
	go func() { resetDone <- s.Reset(ctx, ConfirmReset) }()

	select {
	case <-resetDone:
		t.Fatal("Reset returned while a summary load was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(backend.release)
	assert.Equal(t, 3, (<-inFlight).TotalSuccessful)
	require.NoError(t, <-resetDone)

	sum, err := s.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.LearningSummary{}, sum)
}

func TestSummarizeSurvivesFirstCallerCancel(t *testing.T) {
	backend := newGatedBackend()
	s := NewStore(backend)
	require.NoError(t, s.RecordOutcome(context.Background(), "time", true))

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Summarize(first)
		firstErr <- err
	}()
	<-backend.entered

	joined := make(chan domain.LearningSummary, 1)
	joinedErr := make(chan error, 1)
	go func() {
		sum, err := s.Summarize(context.Background())
		joinedErr <- err
		joined <- sum
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(backend.release)
	require.NoError(t, <-joinedErr)
	assert.Equal(t, 1, (<-joined).TotalSuccessful)
}
