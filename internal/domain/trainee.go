package domain

import (
	"time"
)

// Trainee is an anonymous learner identified by a per-device ID.
type Trainee struct {
	TraineeID   string    `json:"trainee_id"`
	DisplayName string    `json:"display_name"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ActiveWithin reports whether the trainee was seen within d of now.
func (t *Trainee) ActiveWithin(d time.Duration, now time.Time) bool {
	return now.Sub(t.LastSeenAt) <= d
}
