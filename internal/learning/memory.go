package learning

import (
	"context"
	"sort"
	"sync"

	"github.com/ashureev/rolesim/internal/domain"
)

// MemoryBackend is a thread-safe in-memory Backend. Data is lost on restart.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]domain.ObjectionLearningRecord
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]domain.ObjectionLearningRecord)}
}

func (m *MemoryBackend) Load(_ context.Context, topic string) (*domain.ObjectionLearningRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[topic]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryBackend) Save(_ context.Context, rec domain.ObjectionLearningRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Topic] = rec
	return nil
}

func (m *MemoryBackend) LoadAll(_ context.Context) ([]domain.ObjectionLearningRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ObjectionLearningRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out, nil
}

func (m *MemoryBackend) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]domain.ObjectionLearningRecord)
	return nil
}

var _ Backend = (*MemoryBackend)(nil)
