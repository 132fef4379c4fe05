// Package domain contains core domain types for the role-play simulator.
package domain

import (
	"fmt"
	"strings"
)

// Phase is a stage of the simulated conversation. The zero value is Greeting;
// declaration order is the only allowed direction of travel.
type Phase int

const (
	Greeting Phase = iota
	Needs
	Presentation
	Objections
	Closing

	phaseCount
)

// PhaseCount is the number of phases in the fixed enumeration.
const PhaseCount = int(phaseCount)

var phaseNames = [phaseCount]string{
	Greeting:     "greeting",
	Needs:        "needs",
	Presentation: "presentation",
	Objections:   "objections",
	Closing:      "closing",
}

// AllPhases returns every phase in conversation order.
func AllPhases() []Phase {
	return []Phase{Greeting, Needs, Presentation, Objections, Closing}
}

// ParsePhase resolves a phase name. Matching ignores case and surrounding space.
func ParsePhase(s string) (Phase, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range phaseNames {
		if n == name {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

// Valid reports whether p belongs to the fixed enumeration.
func (p Phase) Valid() bool {
	return p >= Greeting && p < phaseCount
}

// Terminal reports whether no further phase follows p.
func (p Phase) Terminal() bool {
	return p == Closing
}

// Next returns the phase after p. Closing is returned unchanged.
func (p Phase) Next() Phase {
	if p >= Closing {
		return Closing
	}
	return p + 1
}

// Before reports whether p comes earlier in the conversation than other.
func (p Phase) Before(other Phase) bool {
	return p < other
}

func (p Phase) String() string {
	if !p.Valid() {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid phase %d", int(p))
	}
	return []byte(phaseNames[p]), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
