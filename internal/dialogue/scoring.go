package dialogue

import (
	"strings"
	"unicode/utf8"

	"github.com/ashureev/rolesim/internal/domain"
)

// Score bounds and weights.
const (
	MinScore  = 1
	MaxScore  = 10
	BaseScore = 5

	keywordPoints  = 1
	questionPoints = 2
	lengthPoints   = 1

	// DefaultLengthThreshold is the message length, in characters, above
	// which a reply counts as elaborated.
	DefaultLengthThreshold = 100
)

// Scorer rates trainee messages against per-phase rubrics. It holds no
// mutable state; Score is a pure function of its arguments.
type Scorer struct {
	rubric          [domain.PhaseCount][]string
	lengthThreshold int
}

// NewScorer builds a scorer from the catalog rubrics. A non-positive
// lengthThreshold selects DefaultLengthThreshold.
func NewScorer(c *Catalog, lengthThreshold int) *Scorer {
	if lengthThreshold <= 0 {
		lengthThreshold = DefaultLengthThreshold
	}
	s := &Scorer{lengthThreshold: lengthThreshold}
	for p := range c.Phases {
		s.rubric[p] = dedupe(lowerAll(c.Phases[p].Rubric))
	}
	return s
}

// Score returns the quality score of message for phase, clamped to [1, 10].
func (s *Scorer) Score(phase domain.Phase, message string) int {
	score := BaseScore
	if phase.Valid() {
		score += keywordPoints * len(s.Matches(phase, message))
	}
	if strings.Contains(message, "?") {
		score += questionPoints
	}
	if utf8.RuneCountInString(message) > s.lengthThreshold {
		score += lengthPoints
	}
	return clamp(score)
}

// Matches lists the rubric keywords found in message, each at most once.
func (s *Scorer) Matches(phase domain.Phase, message string) []string {
	if !phase.Valid() {
		return nil
	}
	lower := strings.ToLower(message)
	var hits []string
	for _, kw := range s.rubric[phase] {
		if strings.Contains(lower, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

// LengthThreshold returns the elaboration threshold in characters.
func (s *Scorer) LengthThreshold() int {
	return s.lengthThreshold
}

func clamp(score int) int {
	return max(MinScore, min(MaxScore, score))
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
