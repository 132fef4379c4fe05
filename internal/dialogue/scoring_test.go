package dialogue

import (
	"strings"
	"testing"

	"github.com/ashureev/rolesim/internal/domain"
)

func TestScoreGreetingKeywords(t *testing.T) {
	s := NewScorer(mustCatalog(t), 0)

	// добрый день, меня зовут, клиника
	got := s.Score(domain.Greeting, "Добрый день, меня зовут Иван, это клиника")
	if got != 8 {
		t.Errorf("Score = %d, want 8", got)
	}
}

func TestScoreBaseline(t *testing.T) {
	s := NewScorer(mustCatalog(t), 0)
	if got := s.Score(domain.Needs, "ок"); got != BaseScore {
		t.Errorf("Score = %d, want %d", got, BaseScore)
	}
}

func TestScoreKeywordCountsOnce(t *testing.T) {
	s := NewScorer(mustCatalog(t), 0)
	once := s.Score(domain.Closing, "запись")
	twice := s.Score(domain.Closing, "запись, запись, ЗАПИСЬ")
	if once != twice || once != 6 {
		t.Errorf("once=%d twice=%d, want both 6", once, twice)
	}
}

func TestScoreQuestionAndLength(t *testing.T) {
	s := NewScorer(mustCatalog(t), 0)
	if got := s.Score(domain.Needs, "Да?"); got != 7 {
		t.Errorf("question score = %d, want 7", got)
	}
	long := strings.Repeat("а", 101)
	if got := s.Score(domain.Needs, long); got != 6 {
		t.Errorf("long score = %d, want 6", got)
	}
	exact := strings.Repeat("я", 100)
	if got := s.Score(domain.Needs, exact); got != 5 {
		t.Errorf("threshold is exclusive: score = %d, want 5", got)
	}
}

func TestScoreCustomLengthThreshold(t *testing.T) {
	s := NewScorer(mustCatalog(t), 10)
	if got := s.Score(domain.Needs, "достаточно длинно"); got != 6 {
		t.Errorf("score = %d, want 6", got)
	}
}

func TestScoreClampsToCeiling(t *testing.T) {
	s := NewScorer(mustCatalog(t), 0)
	msg := "Понимаю. У нас есть рассрочка, гарантия результата, пациенты оставляют отзыв. " +
		"Хотите, расскажу подробнее, как это работает у наших специалистов?"
	if got := s.Score(domain.Objections, msg); got != MaxScore {
		t.Errorf("Score = %d, want %d", got, MaxScore)
	}
}

func TestScoreProperties(t *testing.T) {
	s := NewScorer(mustCatalog(t), 0)
	messages := []string{
		"",
		"?",
		"Здравствуйте",
		"Добрый день, клиника «Здоровье», меня зовут Анна",
		"Понимаю ваши сомнения, у нас есть рассрочка",
		strings.Repeat("результат метод опыт ", 20),
		"Когда вам удобно записаться на время встречи",
	}
	for _, p := range domain.AllPhases() {
		for _, m := range messages {
			got := s.Score(p, m)
			if got < MinScore || got > MaxScore {
				t.Errorf("Score(%s, %q) = %d out of range", p, m, got)
			}
			if again := s.Score(p, m); again != got {
				t.Errorf("Score(%s, %q) not deterministic: %d then %d", p, m, got, again)
			}
			if withQ := s.Score(p, m+"?"); withQ < got {
				t.Errorf("adding '?' lowered Score(%s, %q): %d -> %d", p, m, got, withQ)
			}
		}
	}
}

func TestMatchesListsDistinctHits(t *testing.T) {
	s := NewScorer(mustCatalog(t), 0)
	hits := s.Matches(domain.Presentation, "Опыт, наши специалисты и оборудование, опыт")
	if len(hits) != 3 {
		t.Errorf("hits = %v, want 3 distinct", hits)
	}
	if s.Matches(domain.Phase(99), "опыт") != nil {
		t.Error("invalid phase should match nothing")
	}
}
