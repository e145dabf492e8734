package models

import "time"

// CompletionStatus is the lesson attempt state machine state.
type CompletionStatus string

const (
	CompletionStatusScheduled  CompletionStatus = "SCHEDULED"
	CompletionStatusInProgress CompletionStatus = "IN_PROGRESS"
	CompletionStatusCompleted  CompletionStatus = "COMPLETED"
	CompletionStatusIncomplete CompletionStatus = "INCOMPLETE"
	CompletionStatusCancelled  CompletionStatus = "CANCELLED"
	CompletionStatusNoShow     CompletionStatus = "NO_SHOW"
)

// Open reports whether the attempt still blocks creation of a new one.
func (s CompletionStatus) Open() bool {
	return s == CompletionStatusScheduled || s == CompletionStatusInProgress
}

// CompletionResult is the graded outcome of an attempt.
type CompletionResult string

const (
	ResultPass           CompletionResult = "PASS"
	ResultFail           CompletionResult = "FAIL"
	ResultSatisfactory   CompletionResult = "SATISFACTORY"
	ResultUnsatisfactory CompletionResult = "UNSATISFACTORY"
	ResultIncomplete     CompletionResult = "INCOMPLETE"
)

// Passing reports whether the result counts as a pass.
func (r CompletionResult) Passing() bool {
	return r == ResultPass || r == ResultSatisfactory
}

// TimeBreakdown carries the per-category time logged on one attempt.
type TimeBreakdown struct {
	Flight       float64 `db:"time_flight" json:"time_flight"`
	Ground       float64 `db:"time_ground" json:"time_ground"`
	Simulator    float64 `db:"time_simulator" json:"time_simulator"`
	Dual         float64 `db:"time_dual" json:"time_dual"`
	Solo         float64 `db:"time_solo" json:"time_solo"`
	PIC          float64 `db:"time_pic" json:"time_pic"`
	CrossCountry float64 `db:"time_cross_country" json:"time_cross_country"`
	Night        float64 `db:"time_night" json:"time_night"`
	Instrument   float64 `db:"time_instrument" json:"time_instrument"`
}

// LessonCompletion is one attempt at a lesson for an enrollment. At most one
// attempt per (enrollment, lesson) may be open at a time; AttemptNumber is
// dense over the slot-consuming attempts for the pair.
type LessonCompletion struct {
	ID            string  `db:"id" json:"id"`
	EnrollmentID  string  `db:"enrollment_id" json:"enrollment_id"`
	LessonID      string  `db:"lesson_id" json:"lesson_id"`
	AttemptNumber int     `db:"attempt_number" json:"attempt_number"`
	InstructorID  *string `db:"instructor_id" json:"instructor_id,omitempty"`

	ScheduledAt *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	Status       CompletionStatus  `db:"status" json:"status"`
	Result       *CompletionResult `db:"result" json:"result,omitempty"`
	OverallGrade *float64          `db:"overall_grade" json:"overall_grade,omitempty"`

	TimeBreakdown
	LandingsCount int `db:"landings_count" json:"landings_count"`

	InstructorSigned bool    `db:"instructor_signed" json:"instructor_signed"`
	StudentSigned    bool    `db:"student_signed" json:"student_signed"`
	Comments         *string `db:"comments" json:"comments,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	ExerciseGrades []ExerciseGrade `db:"-" json:"exercise_grades,omitempty"`
}

// IsPassed derives the pass state: explicit result first, then grade against
// the lesson threshold, then the bare completed flag.
func (c *LessonCompletion) IsPassed(minPassingGrade *float64) bool {
	if c.Result != nil {
		return c.Result.Passing()
	}
	if c.OverallGrade != nil && minPassingGrade != nil {
		return *c.OverallGrade >= *minPassingGrade
	}
	return c.Status == CompletionStatusCompleted
}

// ConsumesAttemptSlot reports whether the attempt counts against the lesson's
// max_attempts budget. Cancellations before start release the slot; no-shows
// and every started attempt consume it.
func (c *LessonCompletion) ConsumesAttemptSlot() bool {
	return c.Status != CompletionStatusCancelled
}

// ExerciseGrade records one exercise's grading within a completion.
type ExerciseGrade struct {
	ID           string `db:"id" json:"id"`
	CompletionID string `db:"completion_id" json:"completion_id"`
	ExerciseID   string `db:"exercise_id" json:"exercise_id"`

	Grade                    *float64         `db:"grade" json:"grade,omitempty"`
	CompetencyLevel          *CompetencyLevel `db:"competency_level" json:"competency_level,omitempty"`
	SuccessfulDemonstrations int              `db:"successful_demonstrations" json:"successful_demonstrations"`
	TotalDemonstrations      int              `db:"total_demonstrations" json:"total_demonstrations"`
	Deviations               *string          `db:"deviations" json:"deviations,omitempty"`
	IsPassed                 bool             `db:"is_passed" json:"is_passed"`
	Comments                 *string          `db:"comments" json:"comments,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EvaluatePass computes IsPassed from three independent gates, all of which
// must hold; a gate without a defined threshold is trivially satisfied.
func (g *ExerciseGrade) EvaluatePass(exercise *Exercise) {
	passed := true
	if exercise.MinGrade != nil {
		passed = g.Grade != nil && *g.Grade >= *exercise.MinGrade
	}
	if passed && exercise.MinDemonstrations > 0 {
		passed = g.SuccessfulDemonstrations >= exercise.MinDemonstrations
	}
	if passed && g.CompetencyLevel != nil {
		passed = g.CompetencyLevel.AtLeast(CompetencySatisfactory)
	}
	g.IsPassed = passed
}

// CompletionFilter narrows attempt listings.
type CompletionFilter struct {
	EnrollmentID string
	LessonID     string
	Status       CompletionStatus
	Page         int
	PageSize     int
}
