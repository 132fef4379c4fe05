package dialogue

import (
	"strings"

	"github.com/ashureev/rolesim/internal/domain"
)

// DetectTopic returns the first topic whose keywords occur in message.
func (c *Catalog) DetectTopic(message string) string {
	lower := strings.ToLower(message)
	for _, rule := range c.Topics {
		if containsAny(lower, rule.Keywords) {
			return rule.Name
		}
	}
	return GeneralTopic
}

// TopicFor resolves the objection topic of a trainee turn. A message with no
// topic of its own inherits the topic of the counterpart line it answers.
func (c *Catalog) TopicFor(message string, history []domain.Turn) string {
	if topic := c.DetectTopic(message); topic != GeneralTopic {
		return topic
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleCounterpart {
			return c.DetectTopic(history[i].Content)
		}
	}
	return GeneralTopic
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// containsAny expects lower to be lowercased already.
func containsAny(lower string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}
