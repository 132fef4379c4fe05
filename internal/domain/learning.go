package domain

import "time"

// ObjectionLearningRecord aggregates trainee outcomes for one objection topic.
type ObjectionLearningRecord struct {
	Topic             string    `json:"topic"`
	SuccessfulCount   int       `json:"successfulCount"`
	UnsuccessfulCount int       `json:"unsuccessfulCount"`
	LastUpdated       time.Time `json:"lastUpdated"`
}

// Total returns the number of outcomes recorded for the topic.
func (r ObjectionLearningRecord) Total() int {
	return r.SuccessfulCount + r.UnsuccessfulCount
}

// LearningSummary is a projection over all learning records. It is never stored.
type LearningSummary struct {
	TotalObjections      int    `json:"totalObjections"`
	TotalSuccessful      int    `json:"totalSuccessful"`
	TotalUnsuccessful    int    `json:"totalUnsuccessful"`
	MostLearnedObjection string `json:"mostLearnedObjection"`
	MaxLearningCount     int    `json:"maxLearningCount"`
}

// SuccessRate returns the rounded percentage of successful outcomes.
func (s LearningSummary) SuccessRate() int {
	total := s.TotalSuccessful + s.TotalUnsuccessful
	if total == 0 {
		return 0
	}
	return (s.TotalSuccessful*100 + total/2) / total
}

// LearnerLevel is a coarse experience tier derived from the outcome count.
type LearnerLevel string

const (
	LevelNovice       LearnerLevel = "novice"
	LevelApprentice   LearnerLevel = "apprentice"
	LevelPractitioner LearnerLevel = "practitioner"
	LevelSpecialist   LearnerLevel = "specialist"
	LevelExpert       LearnerLevel = "expert"
)

// Level maps the number of recorded interactions to a tier.
func (s LearningSummary) Level() LearnerLevel {
	total := s.TotalSuccessful + s.TotalUnsuccessful
	switch {
	case total == 0:
		return LevelNovice
	case total < 10:
		return LevelApprentice
	case total < 30:
		return LevelPractitioner
	case total < 50:
		return LevelSpecialist
	default:
		return LevelExpert
	}
}
