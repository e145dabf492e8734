package models

import "time"

// StageCheckStatus is the milestone assessment state machine state.
type StageCheckStatus string

const (
	StageCheckStatusScheduled  StageCheckStatus = "SCHEDULED"
	StageCheckStatusInProgress StageCheckStatus = "IN_PROGRESS"
	StageCheckStatusCompleted  StageCheckStatus = "COMPLETED"
	StageCheckStatusCancelled  StageCheckStatus = "CANCELLED"
	StageCheckStatusDeferred   StageCheckStatus = "DEFERRED"
)

// Open reports whether the check still blocks creation of a new one.
func (s StageCheckStatus) Open() bool {
	return s == StageCheckStatusScheduled || s == StageCheckStatusInProgress
}

// Terminal reports whether no further transitions are allowed.
func (s StageCheckStatus) Terminal() bool {
	switch s {
	case StageCheckStatusCompleted, StageCheckStatusCancelled:
		return true
	}
	return false
}

// StageCheck is one milestone assessment attempt for an (enrollment, stage)
// pair. IsPassed may only become true while status is COMPLETED with a
// passing result; rechecks chain through PreviousAttemptID.
type StageCheck struct {
	ID           string `db:"id" json:"id"`
	EnrollmentID string `db:"enrollment_id" json:"enrollment_id"`
	StageID      string `db:"stage_id" json:"stage_id"`
	CheckType    string `db:"check_type" json:"check_type"`

	AttemptNumber int     `db:"attempt_number" json:"attempt_number"`
	MaxAttempts   int     `db:"max_attempts" json:"max_attempts"`
	ExaminerID    *string `db:"examiner_id" json:"examiner_id,omitempty"`

	ScheduledAt *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	Status   StageCheckStatus  `db:"status" json:"status"`
	Result   *CompletionResult `db:"result" json:"result,omitempty"`
	IsPassed bool              `db:"is_passed" json:"is_passed"`

	OralGrade       *float64 `db:"oral_grade" json:"oral_grade,omitempty"`
	FlightGrade     *float64 `db:"flight_grade" json:"flight_grade,omitempty"`
	OverallGrade    *float64 `db:"overall_grade" json:"overall_grade,omitempty"`
	MinPassingGrade float64  `db:"min_passing_grade" json:"min_passing_grade"`

	PrerequisitesVerified   bool       `db:"prerequisites_verified" json:"prerequisites_verified"`
	PrerequisitesVerifiedAt *time.Time `db:"prerequisites_verified_at" json:"prerequisites_verified_at,omitempty"`

	PreviousAttemptID *string `db:"previous_attempt_id" json:"previous_attempt_id,omitempty"`
	FailureReasons    *string `db:"failure_reasons" json:"failure_reasons,omitempty"`
	RecheckItems      *string `db:"recheck_items" json:"recheck_items,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CanRetry reports whether a recheck may be created from this attempt.
func (sc *StageCheck) CanRetry() bool {
	return !sc.IsPassed && sc.AttemptNumber < sc.MaxAttempts
}

// StageCheckPrerequisiteResult reports whether the stage lessons backing a
// check all carry a passing attempt, and which lesson codes are still
// outstanding.
type StageCheckPrerequisiteResult struct {
	CheckID        string   `json:"check_id"`
	Verified       bool     `json:"verified"`
	MissingLessons []string `json:"missing_lessons,omitempty"`
}

// StageCheckFilter narrows stage check listings.
type StageCheckFilter struct {
	EnrollmentID string
	StageID      string
	Status       StageCheckStatus
	Page         int
	PageSize     int
}
