package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParsePhaseRoundTrip(t *testing.T) {
	for _, p := range AllPhases() {
		got, err := ParsePhase(p.String())
		if err != nil {
			t.Fatalf("ParsePhase(%q): %v", p, err)
		}
		if got != p {
			t.Errorf("ParsePhase(%q) = %v", p, got)
		}
	}
	if _, err := ParsePhase("smalltalk"); err == nil {
		t.Error("expected error for unknown phase")
	}
}

func TestPhaseNextStopsAtClosing(t *testing.T) {
	if Closing.Next() != Closing {
		t.Errorf("Closing.Next() = %v", Closing.Next())
	}
	if Greeting.Next() != Needs {
		t.Errorf("Greeting.Next() = %v", Greeting.Next())
	}
	if Phase(42).Valid() {
		t.Error("Phase(42) should be invalid")
	}
}

func TestTurnRoleAliases(t *testing.T) {
	var turns []Turn
	raw := `[{"role":"manager","content":"hi"},{"role":"patient","content":"hello"}]`
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if turns[0].Role != RoleTrainee || turns[1].Role != RoleCounterpart {
		t.Errorf("unexpected roles: %v %v", turns[0].Role, turns[1].Role)
	}
	if err := json.Unmarshal([]byte(`[{"role":"robot","content":"x"}]`), &turns); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestSessionMoveToNeverRegresses(t *testing.T) {
	s := NewSession("s1", "t1", time.Now())
	s.MoveTo(Objections)
	s.MoveTo(Needs)
	if s.Phase != Objections {
		t.Errorf("phase = %v, want objections", s.Phase)
	}
}

func TestSessionCloneIsIndependent(t *testing.T) {
	s := NewSession("s1", "t1", time.Now())
	s.RecordExchange("Добрый день", ScoredResponse{CounterpartReply: "Слушаю", Score: 6, Phase: Greeting}, time.Now())

	c := s.Clone()
	c.RecordExchange("Ещё", ScoredResponse{CounterpartReply: "Да", Score: 8, Phase: Greeting}, time.Now())

	if len(s.History) != 2 || len(s.PhaseScores[Greeting]) != 1 {
		t.Fatalf("original mutated: history=%d scores=%v", len(s.History), s.PhaseScores)
	}
	if c.PhaseAverage(Greeting) != 7 {
		t.Errorf("PhaseAverage = %v, want 7", c.PhaseAverage(Greeting))
	}
	if c.TotalScore() != 8 {
		t.Errorf("TotalScore = %d, want 8", c.TotalScore())
	}
}

func TestLearningSummaryLevels(t *testing.T) {
	cases := []struct {
		ok, fail int
		want     LearnerLevel
	}{
		{0, 0, LevelNovice},
		{3, 2, LevelApprentice},
		{20, 5, LevelPractitioner},
		{40, 5, LevelSpecialist},
		{50, 0, LevelExpert},
	}
	for _, tc := range cases {
		s := LearningSummary{TotalSuccessful: tc.ok, TotalUnsuccessful: tc.fail}
		if got := s.Level(); got != tc.want {
			t.Errorf("Level(%d,%d) = %v, want %v", tc.ok, tc.fail, got, tc.want)
		}
	}
	if rate := (LearningSummary{TotalSuccessful: 2, TotalUnsuccessful: 1}).SuccessRate(); rate != 67 {
		t.Errorf("SuccessRate = %d, want 67", rate)
	}
}
