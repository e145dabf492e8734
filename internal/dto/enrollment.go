package dto

import "time"

// CreateEnrollmentRequest payload for enrolling a student in a program.
type CreateEnrollmentRequest struct {
	StudentID string     `json:"studentId" validate:"required"`
	ProgramID string     `json:"programId" validate:"required"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// EnrollmentStatusRequest carries the optional reason for hold, resume,
// withdraw and suspend transitions.
type EnrollmentStatusRequest struct {
	Reason string `json:"reason"`
}
