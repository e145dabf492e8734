package models

import "time"

// ProgressionEventType enumerates outbound progression notifications.
type ProgressionEventType string

const (
	EventLessonCompleted     ProgressionEventType = "LESSON_COMPLETED"
	EventStageCheckPassed    ProgressionEventType = "STAGE_CHECK_PASSED"
	EventStageCheckFailed    ProgressionEventType = "STAGE_CHECK_FAILED"
	EventEnrollmentActivated ProgressionEventType = "ENROLLMENT_ACTIVATED"
	EventEnrollmentCompleted ProgressionEventType = "ENROLLMENT_COMPLETED"
)

// ProgressionEvent is emitted after a progression mutation commits. Delivery
// is asynchronous and best-effort; the engine does not depend on it.
type ProgressionEvent struct {
	Type         ProgressionEventType `json:"type"`
	EnrollmentID string               `json:"enrollment_id"`
	StudentID    string               `json:"student_id"`
	EntityID     string               `json:"entity_id,omitempty"`
	OccurredAt   time.Time            `json:"occurred_at"`
}
