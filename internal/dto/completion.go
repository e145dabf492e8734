package dto

import "time"

// CreateCompletionRequest payload for scheduling a lesson attempt.
type CreateCompletionRequest struct {
	EnrollmentID string     `json:"enrollmentId" validate:"required"`
	LessonID     string     `json:"lessonId" validate:"required"`
	InstructorID string     `json:"instructorId"`
	ScheduledAt  *time.Time `json:"scheduledAt"`
}

// TimeBreakdownRequest carries the per-category time logged on an attempt.
type TimeBreakdownRequest struct {
	Flight       float64 `json:"timeFlight" validate:"min=0"`
	Ground       float64 `json:"timeGround" validate:"min=0"`
	Simulator    float64 `json:"timeSimulator" validate:"min=0"`
	Dual         float64 `json:"timeDual" validate:"min=0"`
	Solo         float64 `json:"timeSolo" validate:"min=0"`
	PIC          float64 `json:"timePic" validate:"min=0"`
	CrossCountry float64 `json:"timeCrossCountry" validate:"min=0"`
	Night        float64 `json:"timeNight" validate:"min=0"`
	Instrument   float64 `json:"timeInstrument" validate:"min=0"`
}

// CompleteLessonRequest payload for finalising an attempt.
type CompleteLessonRequest struct {
	Result        string               `json:"result" validate:"omitempty,oneof=PASS FAIL SATISFACTORY UNSATISFACTORY INCOMPLETE"`
	OverallGrade  *float64             `json:"overallGrade" validate:"omitempty,min=0,max=100"`
	Times         TimeBreakdownRequest `json:"times"`
	LandingsCount int                  `json:"landingsCount" validate:"min=0"`
	Comments      string               `json:"comments"`
}

// GradeExerciseRequest payload for grading one exercise within an attempt.
type GradeExerciseRequest struct {
	ExerciseID               string   `json:"exerciseId" validate:"required"`
	Grade                    *float64 `json:"grade" validate:"omitempty,min=0,max=100"`
	CompetencyLevel          string   `json:"competencyLevel" validate:"omitempty,oneof=UNSATISFACTORY MARGINAL SATISFACTORY PROFICIENT EXEMPLARY"`
	SuccessfulDemonstrations int      `json:"successfulDemonstrations" validate:"min=0"`
	TotalDemonstrations      int      `json:"totalDemonstrations" validate:"min=0"`
	Deviations               string   `json:"deviations"`
	Comments                 string   `json:"comments"`
}
