package models

import "time"

// EnrollmentStatus represents the lifecycle of a student enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPending   EnrollmentStatus = "PENDING"
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusOnHold    EnrollmentStatus = "ON_HOLD"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusWithdrawn EnrollmentStatus = "WITHDRAWN"
	EnrollmentStatusExpired   EnrollmentStatus = "EXPIRED"
	EnrollmentStatusSuspended EnrollmentStatus = "SUSPENDED"
)

// OpenEnrollmentStatuses are the statuses counted by the one-open-enrollment
// per (student, program) invariant.
var OpenEnrollmentStatuses = []EnrollmentStatus{
	EnrollmentStatusPending,
	EnrollmentStatusActive,
	EnrollmentStatusOnHold,
}

// Terminal reports whether the status permits no further transitions.
func (s EnrollmentStatus) Terminal() bool {
	switch s {
	case EnrollmentStatusCompleted, EnrollmentStatusWithdrawn, EnrollmentStatusExpired:
		return true
	}
	return false
}

// HourTotals holds cumulative flight time by category. Categories are a
// fixed, explicitly enumerated set; accumulation goes through Add only.
type HourTotals struct {
	Total        float64 `db:"hours_total" json:"hours_total"`
	Dual         float64 `db:"hours_dual" json:"hours_dual"`
	Solo         float64 `db:"hours_solo" json:"hours_solo"`
	PIC          float64 `db:"hours_pic" json:"hours_pic"`
	CrossCountry float64 `db:"hours_cross_country" json:"hours_cross_country"`
	Night        float64 `db:"hours_night" json:"hours_night"`
	Instrument   float64 `db:"hours_instrument" json:"hours_instrument"`
	Simulator    float64 `db:"hours_simulator" json:"hours_simulator"`
	Ground       float64 `db:"hours_ground" json:"hours_ground"`
}

// Add accumulates a completion's time breakdown into the totals. Total grows
// by flight time only; simulator and ground hours are tracked separately.
func (h *HourTotals) Add(t TimeBreakdown) {
	h.Total += t.Flight
	h.Dual += t.Dual
	h.Solo += t.Solo
	h.PIC += t.PIC
	h.CrossCountry += t.CrossCountry
	h.Night += t.Night
	h.Instrument += t.Instrument
	h.Simulator += t.Simulator
	h.Ground += t.Ground
}

// StudentEnrollment binds one student to one program and tracks their
// position and cumulative progress through it. Version backs the optimistic
// per-enrollment write lock.
type StudentEnrollment struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	ProgramID string           `db:"program_id" json:"program_id"`
	Status    EnrollmentStatus `db:"status" json:"status"`

	EnrolledAt  time.Time  `db:"enrolled_at" json:"enrolled_at"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	CurrentStageID  *string `db:"current_stage_id" json:"current_stage_id,omitempty"`
	CurrentLessonID *string `db:"current_lesson_id" json:"current_lesson_id,omitempty"`

	HourTotals
	LandingsTotal int `db:"landings_total" json:"landings_total"`

	LessonsCompleted     int      `db:"lessons_completed" json:"lessons_completed"`
	LessonsTotal         int      `db:"lessons_total" json:"lessons_total"`
	CompletionPercentage float64  `db:"completion_percentage" json:"completion_percentage"`
	AverageGrade         *float64 `db:"average_grade" json:"average_grade,omitempty"`
	StageChecksPassed    int      `db:"stage_checks_passed" json:"stage_checks_passed"`
	StageChecksFailed    int      `db:"stage_checks_failed" json:"stage_checks_failed"`

	Version   int       `db:"version" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	ProgramID string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
