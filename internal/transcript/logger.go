// Package transcript writes conversation events as newline-delimited JSON,
// one file per trainee session plus an optional global file.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/ashureev/rolesim/internal/domain"
)

// Event types.
const (
	EventTraineeMessage   = "trainee_message"
	EventCounterpartReply = "counterpart_reply"
)

// Event is one NDJSON line.
type Event struct {
	Timestamp  time.Time `json:"ts"`
	TraineeID  string    `json:"trainee_id"`
	SessionID  string    `json:"session_id"`
	EventType  string    `json:"event_type"`
	Phase      string    `json:"phase"`
	Content    string    `json:"content"`
	ContentRaw string    `json:"content_raw"`
	Score      *int      `json:"score,omitempty"`
	Topic      string    `json:"topic,omitempty"`
	Difficulty string    `json:"difficulty,omitempty"`
	Successful *bool     `json:"successful,omitempty"`
}

// Config controls the logger.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

const defaultQueueSize = 256

// Logger queues events and writes them from a single goroutine. When the
// queue is full new events are dropped with a warning.
type Logger struct {
	cfg    Config
	logger *slog.Logger
	queue  chan Event
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
	global    *os.File
}

var (
	safeName = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	ansiSeq  = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
)

// New creates a Logger. A disabled config returns a Logger whose methods are no-ops.
func New(cfg Config, logger *slog.Logger) (*Logger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Logger{cfg: cfg, logger: logger, done: make(chan struct{})}
	if !cfg.Enabled {
		close(l.done)
		return l, nil
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("transcript: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	if cfg.GlobalEnabled && cfg.GlobalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0755); err != nil {
			return nil, fmt.Errorf("create global transcript dir: %w", err)
		}
		f, err := os.OpenFile(cfg.GlobalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open global transcript: %w", err)
		}
		l.global = f
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	l.queue = make(chan Event, size)
	go l.run()
	return l, nil
}

// Log enqueues ev without blocking.
func (l *Logger) Log(ev Event) {
	if !l.cfg.Enabled {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	ev.Content = Clean(ev.ContentRaw)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- ev:
	default:
		l.logger.Warn("Transcript queue full, dropping event",
			"trainee_id", ev.TraineeID,
			"session_id", ev.SessionID,
			"event_type", ev.EventType)
	}
}

// TraineeMessage records a trainee utterance.
func (l *Logger) TraineeMessage(traineeID, sessionID string, phase domain.Phase, message string) {
	l.Log(Event{
		TraineeID:  traineeID,
		SessionID:  sessionID,
		EventType:  EventTraineeMessage,
		Phase:      phase.String(),
		ContentRaw: message,
	})
}

// CounterpartReply records the simulated reply together with the score.
func (l *Logger) CounterpartReply(traineeID, sessionID string, resp domain.ScoredResponse) {
	score := resp.Score
	successful := resp.Successful
	l.Log(Event{
		TraineeID:  traineeID,
		SessionID:  sessionID,
		EventType:  EventCounterpartReply,
		Phase:      resp.Phase.String(),
		ContentRaw: resp.CounterpartReply,
		Score:      &score,
		Topic:      resp.Topic,
		Difficulty: string(resp.Difficulty),
		Successful: &successful,
	})
}

// Close drains the queue and closes open files.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if !l.cfg.Enabled {
			return
		}
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
		<-l.done
		if l.global != nil {
			err = l.global.Close()
		}
	})
	return err
}

func (l *Logger) run() {
	defer close(l.done)
	for ev := range l.queue {
		line, err := json.Marshal(ev)
		if err != nil {
			l.logger.Warn("Transcript encode failed", "error", err)
			continue
		}
		line = append(line, '\n')
		if err := l.appendSession(ev, line); err != nil {
			l.logger.Warn("Transcript write failed",
				"trainee_id", ev.TraineeID,
				"session_id", ev.SessionID,
				"error", err)
		}
		if l.global != nil {
			if _, err := l.global.Write(line); err != nil {
				l.logger.Warn("Global transcript write failed", "error", err)
			}
		}
	}
}

func (l *Logger) appendSession(ev Event, line []byte) error {
	dir := filepath.Join(l.cfg.Dir, sanitize(ev.TraineeID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, sanitize(ev.SessionID)+".ndjson"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func sanitize(name string) string {
	name = safeName.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." {
		return "unknown"
	}
	return name
}

// Clean strips ANSI sequences and control characters and collapses whitespace runs.
func Clean(raw string) string {
	raw = ansiSeq.ReplaceAllString(raw, "")
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(' ')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
