package dialogue

import (
	"github.com/ashureev/rolesim/internal/domain"
)

// DefaultTurnsPerPhase is how many trainee turns a phase lasts by default.
const DefaultTurnsPerPhase = 2

// Controller decides when the conversation moves to the next phase.
type Controller struct {
	turnsPerPhase int
}

// NewController returns a controller that advances after turnsPerPhase
// trainee turns. Values below 1 select DefaultTurnsPerPhase.
func NewController(turnsPerPhase int) *Controller {
	if turnsPerPhase < 1 {
		turnsPerPhase = DefaultTurnsPerPhase
	}
	return &Controller{turnsPerPhase: turnsPerPhase}
}

// TurnsPerPhase returns the configured phase length.
func (c *Controller) TurnsPerPhase() int {
	return c.turnsPerPhase
}

// Advance returns the phase for the next trainee turn. turnIndex counts the
// trainee turns already taken in current. An explicit trigger overrides the
// turn rule but can never move the conversation backwards; Closing is terminal.
func (c *Controller) Advance(current domain.Phase, turnIndex int, trigger *domain.Phase) (domain.Phase, error) {
	if !current.Valid() {
		return current, invalidInput("phase", "%d is not a conversation phase", int(current))
	}
	if turnIndex < 0 {
		return current, invalidInput("turnIndex", "must not be negative, got %d", turnIndex)
	}
	if current.Terminal() {
		return domain.Closing, nil
	}
	if trigger != nil {
		if !trigger.Valid() {
			return current, invalidInput("trigger", "%d is not a conversation phase", int(*trigger))
		}
		if trigger.Before(current) {
			return current, nil
		}
		return *trigger, nil
	}
	if turnIndex > 0 && turnIndex%c.turnsPerPhase == 0 {
		return current.Next(), nil
	}
	return current, nil
}
