package models

import "time"

// LessonType categorises curriculum units.
type LessonType string

const (
	LessonTypeGround     LessonType = "GROUND"
	LessonTypeFlight     LessonType = "FLIGHT"
	LessonTypeSimulator  LessonType = "SIMULATOR"
	LessonTypeBriefing   LessonType = "BRIEFING"
	LessonTypeExam       LessonType = "EXAM"
	LessonTypeStageCheck LessonType = "STAGE_CHECK"
)

// Lesson is a curriculum unit within a program, optionally assigned to a
// stage, gated by prerequisite lessons and a minimum cumulative-hours
// threshold.
type Lesson struct {
	ID              string     `db:"id" json:"id"`
	ProgramID       string     `db:"program_id" json:"program_id"`
	StageID         *string    `db:"stage_id" json:"stage_id,omitempty"`
	Code            string     `db:"code" json:"code"`
	Title           string     `db:"title" json:"title"`
	Type            LessonType `db:"lesson_type" json:"lesson_type"`
	SortOrder       int        `db:"sort_order" json:"sort_order"`
	MinHoursBefore  *float64   `db:"min_hours_before" json:"min_hours_before,omitempty"`
	MinPassingGrade *float64   `db:"min_passing_grade" json:"min_passing_grade,omitempty"`
	MaxAttempts     *int       `db:"max_attempts" json:"max_attempts,omitempty"`
	Active          bool       `db:"active" json:"active"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`

	PrerequisiteIDs []string   `db:"-" json:"prerequisite_ids,omitempty"`
	Exercises       []Exercise `db:"-" json:"exercises,omitempty"`
}

// PrerequisiteCheck is the outcome of evaluating a lesson's gates against a
// completion set and cumulative hours. Missing lessons and hour figures are
// reported so callers can render actionable feedback.
type PrerequisiteCheck struct {
	Met              bool     `json:"met"`
	MissingLessonIDs []string `json:"missing_lesson_ids,omitempty"`
	HoursRequired    float64  `json:"hours_required"`
	HoursCurrent     float64  `json:"hours_current"`
}

// LessonFilter narrows lesson listings.
type LessonFilter struct {
	ProgramID string
	StageID   string
	Type      LessonType
	Active    *bool
}
