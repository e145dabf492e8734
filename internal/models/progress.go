package models

// LessonAvailability is the projected state of a lesson for an enrollment.
type LessonAvailability string

const (
	LessonLocked     LessonAvailability = "LOCKED"
	LessonAvailable  LessonAvailability = "AVAILABLE"
	LessonScheduled  LessonAvailability = "SCHEDULED"
	LessonInProgress LessonAvailability = "IN_PROGRESS"
	LessonCompleted  LessonAvailability = "COMPLETED"
	LessonFailed     LessonAvailability = "FAILED"
)

// LessonProgress is the derived availability of one lesson for an enrollment.
type LessonProgress struct {
	LessonID             string             `json:"lesson_id"`
	LessonCode           string             `json:"lesson_code"`
	Title                string             `json:"title"`
	StageID              *string            `json:"stage_id,omitempty"`
	Status               LessonAvailability `json:"status"`
	Attempts             int                `json:"attempts"`
	BestGrade            *float64           `json:"best_grade,omitempty"`
	MissingPrerequisites []string           `json:"missing_prerequisites,omitempty"`
	HoursRequired        float64            `json:"hours_required,omitempty"`
	HoursCurrent         float64            `json:"hours_current,omitempty"`
}

// StageProgress summarises one stage of a program for an enrollment.
type StageProgress struct {
	StageID          string            `json:"stage_id"`
	Name             string            `json:"name"`
	Order            int               `json:"order"`
	Current          bool              `json:"current"`
	LessonsTotal     int               `json:"lessons_total"`
	LessonsCompleted int               `json:"lessons_completed"`
	Percentage       float64           `json:"percentage"`
	CheckStatus      *StageCheckStatus `json:"check_status,omitempty"`
	CheckPassed      bool              `json:"check_passed"`
}

// EnrollmentProgress is the full derived projection for an enrollment. It is
// computed on demand and cached; it is never the source of truth.
type EnrollmentProgress struct {
	EnrollmentID         string           `json:"enrollment_id"`
	CompletionPercentage float64          `json:"completion_percentage"`
	Lessons              []LessonProgress `json:"lessons"`
	Stages               []StageProgress  `json:"stages"`
}
