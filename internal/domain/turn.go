package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleTrainee     Role = "trainee"
	RoleCounterpart Role = "counterpart"
)

// ParseRole accepts the canonical role names plus the aliases used by the
// training front end ("manager"/"admin" for the trainee, "client"/"patient"
// for the simulated counterpart).
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trainee", "manager", "admin", "user":
		return RoleTrainee, nil
	case "counterpart", "client", "patient", "assistant":
		return RoleCounterpart, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// UnmarshalText normalizes role aliases.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleTrainee || r == RoleCounterpart
}

// Turn is one message in a conversation history.
type Turn struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ScoredResponse is the result of evaluating one trainee turn.
type ScoredResponse struct {
	CounterpartReply string     `json:"counterpartReply"`
	Score            int        `json:"score"`
	Phase            Phase      `json:"phase"`
	Topic            string     `json:"topic,omitempty"`
	Successful       bool       `json:"successful"`
	Difficulty       Difficulty `json:"difficulty"`
	TurnIndex        int        `json:"turnIndex"`
}

// Difficulty is how hard the counterpart pushes back on a topic.
type Difficulty string

const (
	DifficultyBasic  Difficulty = "basic"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)
