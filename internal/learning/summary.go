package learning

import (
	"github.com/ashureev/rolesim/internal/domain"
)

// Summarize computes the summary of recs. The most learned objection is the
// topic with the most successful answers; ties go to the most recently
// updated record, then to the lexically smaller topic.
func Summarize(recs []domain.ObjectionLearningRecord) domain.LearningSummary {
	var sum domain.LearningSummary
	var best *domain.ObjectionLearningRecord

	for i := range recs {
		r := &recs[i]
		sum.TotalObjections++
		sum.TotalSuccessful += r.SuccessfulCount
		sum.TotalUnsuccessful += r.UnsuccessfulCount

		if r.SuccessfulCount == 0 {
			continue
		}
		if best == nil || beats(r, best) {
			best = r
		}
	}

	if best != nil {
		sum.MostLearnedObjection = best.Topic
		sum.MaxLearningCount = best.SuccessfulCount
	}
	return sum
}

func beats(a, b *domain.ObjectionLearningRecord) bool {
	if a.SuccessfulCount != b.SuccessfulCount {
		return a.SuccessfulCount > b.SuccessfulCount
	}
	if !a.LastUpdated.Equal(b.LastUpdated) {
		return a.LastUpdated.After(b.LastUpdated)
	}
	return a.Topic < b.Topic
}
