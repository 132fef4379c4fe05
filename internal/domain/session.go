package domain

import (
	"time"
)

// Session holds the state of one practice conversation.
type Session struct {
	ID           string          `json:"id"`
	TraineeID    string          `json:"traineeId"`
	Phase        Phase           `json:"phase"`
	TurnsInPhase int             `json:"turnsInPhase"`
	TurnIndex    int             `json:"turnIndex"`
	History      []Turn          `json:"history"`
	PhaseScores  map[Phase][]int `json:"phaseScores"`
	Closed       bool            `json:"closed"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// NewSession creates an empty session starting at Greeting.
func NewSession(id, traineeID string, now time.Time) *Session {
	return &Session{
		ID:          id,
		TraineeID:   traineeID,
		Phase:       Greeting,
		PhaseScores: make(map[Phase][]int),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy so callers can stage changes and discard them on failure.
func (s *Session) Clone() *Session {
	c := *s
	c.History = append([]Turn(nil), s.History...)
	c.PhaseScores = make(map[Phase][]int, len(s.PhaseScores))
	for p, scores := range s.PhaseScores {
		c.PhaseScores[p] = append([]int(nil), scores...)
	}
	return &c
}

// MoveTo switches the session to phase p. Moves backwards are ignored.
func (s *Session) MoveTo(p Phase) {
	if p == s.Phase || p.Before(s.Phase) {
		return
	}
	s.Phase = p
	s.TurnsInPhase = 0
}

// RecordExchange appends a trainee turn and the counterpart reply and tallies the score.
func (s *Session) RecordExchange(message string, resp ScoredResponse, at time.Time) {
	ts := at
	s.History = append(s.History,
		Turn{Role: RoleTrainee, Content: message, Timestamp: &ts},
		Turn{Role: RoleCounterpart, Content: resp.CounterpartReply, Timestamp: &ts},
	)
	if s.PhaseScores == nil {
		s.PhaseScores = make(map[Phase][]int)
	}
	s.PhaseScores[resp.Phase] = append(s.PhaseScores[resp.Phase], resp.Score)
	s.TurnIndex++
	s.TurnsInPhase++
	s.UpdatedAt = at
}

// PhaseAverage returns the mean score for phase p, or 0 when it has no turns.
func (s *Session) PhaseAverage(p Phase) float64 {
	scores := s.PhaseScores[p]
	if len(scores) == 0 {
		return 0
	}
	sum := 0
	for _, v := range scores {
		sum += v
	}
	return float64(sum) / float64(len(scores))
}

// TotalScore sums the best score reached in each phase.
func (s *Session) TotalScore() int {
	total := 0
	for _, scores := range s.PhaseScores {
		best := 0
		for _, v := range scores {
			if v > best {
				best = v
			}
		}
		total += best
	}
	return total
}

// IdleFor returns how long the session has gone without a turn.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.UpdatedAt)
}
