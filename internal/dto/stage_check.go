package dto

import "time"

// CreateStageCheckRequest payload for scheduling a stage check.
type CreateStageCheckRequest struct {
	EnrollmentID string     `json:"enrollmentId" validate:"required"`
	StageID      string     `json:"stageId" validate:"required"`
	CheckType    string     `json:"checkType"`
	ExaminerID   string     `json:"examinerId"`
	ScheduledAt  *time.Time `json:"scheduledAt"`
}

// PassStageCheckRequest payload for recording a passed check.
type PassStageCheckRequest struct {
	OralGrade    *float64 `json:"oralGrade" validate:"omitempty,min=0,max=100"`
	FlightGrade  *float64 `json:"flightGrade" validate:"omitempty,min=0,max=100"`
	OverallGrade *float64 `json:"overallGrade" validate:"omitempty,min=0,max=100"`
}

// FailStageCheckRequest payload for recording a failed check.
type FailStageCheckRequest struct {
	OralGrade      *float64 `json:"oralGrade" validate:"omitempty,min=0,max=100"`
	FlightGrade    *float64 `json:"flightGrade" validate:"omitempty,min=0,max=100"`
	OverallGrade   *float64 `json:"overallGrade" validate:"omitempty,min=0,max=100"`
	FailureReasons string   `json:"failureReasons" validate:"required"`
	RecheckItems   string   `json:"recheckItems"`
}

// CreateRecheckRequest payload for scheduling a recheck after a failure.
type CreateRecheckRequest struct {
	ExaminerID  string     `json:"examinerId"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}
