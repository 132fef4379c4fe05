package dialogue

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/ashureev/rolesim/internal/domain"
)

// Randomizer picks an index in [0, n). *rand.Rand satisfies it.
type Randomizer interface {
	IntN(n int) int
}

type globalRandom struct{}

func (globalRandom) IntN(n int) int { return rand.IntN(n) }

// lockedRandom makes a seeded generator safe for concurrent sessions.
type lockedRandom struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRandom) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// NewSeededRandom returns a reproducible Randomizer.
func NewSeededRandom(seed uint64) Randomizer {
	return &lockedRandom{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// LearningView exposes the learning records the selector may consult.
type LearningView interface {
	Lookup(topic string) (domain.ObjectionLearningRecord, bool)
}

// Snapshot is a LearningView over a fixed set of records.
type Snapshot map[string]domain.ObjectionLearningRecord

// Lookup implements LearningView.
func (s Snapshot) Lookup(topic string) (domain.ObjectionLearningRecord, bool) {
	r, ok := s[topic]
	return r, ok
}

// Escalation holds the successful-answer counts at which the counterpart
// switches to harder objections for a topic.
type Escalation struct {
	Hard   int
	Expert int
}

// DefaultEscalation is used when SelectorConfig leaves Escalation zero.
var DefaultEscalation = Escalation{Hard: 3, Expert: 7}

// DefaultBucketPriority is the objection classification order.
var DefaultBucketPriority = []string{BucketConcession, BucketEvidence}

// SelectorConfig tunes reply selection.
type SelectorConfig struct {
	Random         Randomizer
	BucketPriority []string
	Escalation     Escalation
}

// Reply is a selected counterpart utterance.
type Reply struct {
	Text       string
	Topic      string
	Bucket     string
	Difficulty domain.Difficulty
}

// Selector chooses the counterpart's next utterance.
type Selector struct {
	catalog    *Catalog
	random     Randomizer
	priority   []string
	escalation Escalation
}

// NewSelector validates cfg against the catalog.
func NewSelector(c *Catalog, cfg SelectorConfig) (*Selector, error) {
	s := &Selector{
		catalog:    c,
		random:     cfg.Random,
		priority:   cfg.BucketPriority,
		escalation: cfg.Escalation,
	}
	if s.random == nil {
		s.random = globalRandom{}
	}
	if len(s.priority) == 0 {
		s.priority = DefaultBucketPriority
	}
	if s.escalation == (Escalation{}) {
		s.escalation = DefaultEscalation
	}
	if s.escalation.Hard < 1 || s.escalation.Expert < s.escalation.Hard {
		return nil, fmt.Errorf("escalation thresholds must satisfy 1 <= hard <= expert, got %d/%d",
			s.escalation.Hard, s.escalation.Expert)
	}
	for _, name := range s.priority {
		if _, ok := c.Buckets[name]; !ok {
			return nil, configErr(domain.Objections, "bucket priority names unknown bucket %q", name)
		}
	}
	return s, nil
}

// SelectReply picks the counterpart reply for a trainee message.
func (s *Selector) SelectReply(phase domain.Phase, message string, history []domain.Turn, learning LearningView) (Reply, error) {
	entry, err := s.catalog.Entry(phase)
	if err != nil {
		return Reply{}, err
	}

	switch phase {
	case domain.Closing:
		return s.closingReply(history)
	case domain.Objections:
		return s.objectionReply(entry, message, history, learning)
	default:
		if len(entry.Candidates) == 0 {
			return Reply{}, configErr(phase, "no candidate utterances")
		}
		text := entry.Candidates[s.random.IntN(len(entry.Candidates))]
		return Reply{Text: text, Difficulty: domain.DifficultyBasic}, nil
	}
}

func (s *Selector) closingReply(history []domain.Turn) (Reply, error) {
	lines := s.catalog.Closing
	if lines.Affirmative == "" || lines.Deferral == "" {
		return Reply{}, configErr(domain.Closing, "affirmative and deferral lines are required")
	}
	for _, t := range history {
		if t.Role == domain.RoleTrainee && containsAny(strings.ToLower(t.Content), lines.StrongMarkers) {
			return Reply{Text: lines.Affirmative, Bucket: "affirmative", Difficulty: domain.DifficultyBasic}, nil
		}
	}
	return Reply{Text: lines.Deferral, Bucket: "deferral", Difficulty: domain.DifficultyBasic}, nil
}

func (s *Selector) objectionReply(entry PhaseEntry, message string, history []domain.Turn, learning LearningView) (Reply, error) {
	if len(entry.Candidates) == 0 {
		return Reply{}, configErr(domain.Objections, "no candidate utterances")
	}
	lower := strings.ToLower(message)
	topic := s.catalog.TopicFor(message, history)

	for _, name := range s.priority {
		b := s.catalog.Buckets[name]
		if containsAny(lower, b.Markers) {
			return Reply{Text: b.Reply, Topic: topic, Bucket: name, Difficulty: domain.DifficultyBasic}, nil
		}
	}

	reply := Reply{Text: entry.Candidates[0], Topic: topic, Bucket: "generic", Difficulty: domain.DifficultyBasic}
	difficulty := s.difficulty(topic, learning)
	if difficulty == domain.DifficultyBasic {
		return reply, nil
	}
	if text, d := s.escalatedLine(topic, difficulty); text != "" {
		reply.Text = text
		reply.Difficulty = d
	}
	return reply, nil
}

// Difficulty reports how hard the counterpart should push on topic.
func (s *Selector) difficulty(topic string, learning LearningView) domain.Difficulty {
	if learning == nil {
		return domain.DifficultyBasic
	}
	rec, ok := learning.Lookup(topic)
	if !ok {
		return domain.DifficultyBasic
	}
	switch {
	case rec.SuccessfulCount >= s.escalation.Expert:
		return domain.DifficultyExpert
	case rec.SuccessfulCount >= s.escalation.Hard:
		return domain.DifficultyHard
	default:
		return domain.DifficultyBasic
	}
}

// escalatedLine falls back to the general topic and from expert to hard.
func (s *Selector) escalatedLine(topic string, d domain.Difficulty) (string, domain.Difficulty) {
	replies, ok := s.catalog.Escalation[topic]
	if !ok {
		replies = s.catalog.Escalation[GeneralTopic]
	}
	if d == domain.DifficultyExpert && replies.Expert != "" {
		return replies.Expert, domain.DifficultyExpert
	}
	return replies.Hard, domain.DifficultyHard
}
