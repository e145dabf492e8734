package models

import "time"

// GradingScale enumerates how an exercise is graded.
type GradingScale string

const (
	ScaleNumeric    GradingScale = "NUMERIC"
	ScaleLetter     GradingScale = "LETTER"
	ScaleCompetency GradingScale = "COMPETENCY"
	ScalePassFail   GradingScale = "PASS_FAIL"
)

// CompetencyLevel is the ordered competency tier for COMPETENCY-scale grades.
type CompetencyLevel string

const (
	CompetencyUnsatisfactory CompetencyLevel = "UNSATISFACTORY"
	CompetencyMarginal       CompetencyLevel = "MARGINAL"
	CompetencySatisfactory   CompetencyLevel = "SATISFACTORY"
	CompetencyProficient     CompetencyLevel = "PROFICIENT"
	CompetencyExemplary      CompetencyLevel = "EXEMPLARY"
)

var competencyRank = map[CompetencyLevel]int{
	CompetencyUnsatisfactory: 0,
	CompetencyMarginal:       1,
	CompetencySatisfactory:   2,
	CompetencyProficient:     3,
	CompetencyExemplary:      4,
}

// AtLeast reports whether the level meets or exceeds the given tier.
func (l CompetencyLevel) AtLeast(tier CompetencyLevel) bool {
	return competencyRank[l] >= competencyRank[tier]
}

// Exercise is a gradable sub-item of a lesson. Weight drives the lesson's
// aggregate grade; MinGrade and MinDemonstrations gate the pass evaluation.
type Exercise struct {
	ID                string       `db:"id" json:"id"`
	LessonID          string       `db:"lesson_id" json:"lesson_id"`
	Code              string       `db:"code" json:"code"`
	Title             string       `db:"title" json:"title"`
	Scale             GradingScale `db:"grading_scale" json:"grading_scale"`
	MinGrade          *float64     `db:"min_grade" json:"min_grade,omitempty"`
	MinDemonstrations int          `db:"min_demonstrations" json:"min_demonstrations"`
	Weight            float64      `db:"weight" json:"weight"`
	SortOrder         int          `db:"sort_order" json:"sort_order"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updated_at"`
}

// WeightedLessonGrade computes the weighted average over the graded subset of
// a lesson's exercises. Ungraded exercises are ignored; nil is returned when
// no exercise has been graded or the graded weights sum to zero.
func WeightedLessonGrade(exercises []Exercise, grades []ExerciseGrade) *float64 {
	weightByExercise := make(map[string]float64, len(exercises))
	for _, ex := range exercises {
		weightByExercise[ex.ID] = ex.Weight
	}
	totalWeight := 0.0
	sum := 0.0
	for _, grade := range grades {
		if grade.Grade == nil {
			continue
		}
		weight, ok := weightByExercise[grade.ExerciseID]
		if !ok || weight <= 0 {
			continue
		}
		totalWeight += weight
		sum += *grade.Grade * weight
	}
	if totalWeight == 0 {
		return nil
	}
	result := sum / totalWeight
	return &result
}
