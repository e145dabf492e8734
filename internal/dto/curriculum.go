package dto

// CreateProgramRequest payload for defining a training program.
type CreateProgramRequest struct {
	Code        string `json:"code" validate:"required"`
	Name        string `json:"name" validate:"required"`
	ProgramType string `json:"programType" validate:"required"`

	MinTotalHours        *float64 `json:"minTotalHours" validate:"omitempty,min=0"`
	MinDualHours         *float64 `json:"minDualHours" validate:"omitempty,min=0"`
	MinSoloHours         *float64 `json:"minSoloHours" validate:"omitempty,min=0"`
	MinPICHours          *float64 `json:"minPicHours" validate:"omitempty,min=0"`
	MinCrossCountryHours *float64 `json:"minCrossCountryHours" validate:"omitempty,min=0"`
	MinNightHours        *float64 `json:"minNightHours" validate:"omitempty,min=0"`
	MinInstrumentHours   *float64 `json:"minInstrumentHours" validate:"omitempty,min=0"`
	MinSimulatorHours    *float64 `json:"minSimulatorHours" validate:"omitempty,min=0"`
	MinGroundHours       *float64 `json:"minGroundHours" validate:"omitempty,min=0"`
}

// CreateStageRequest payload for appending a stage to a program.
type CreateStageRequest struct {
	Name  string `json:"name" validate:"required"`
	Order int    `json:"order" validate:"required,min=1"`
}

// CreateLessonRequest payload for adding a lesson to a program.
type CreateLessonRequest struct {
	StageID         string   `json:"stageId"`
	Code            string   `json:"code" validate:"required"`
	Title           string   `json:"title" validate:"required"`
	Type            string   `json:"type" validate:"required,oneof=GROUND FLIGHT SIMULATOR BRIEFING EXAM STAGE_CHECK"`
	SortOrder       int      `json:"sortOrder" validate:"min=0"`
	MinHoursBefore  *float64 `json:"minHoursBefore" validate:"omitempty,min=0"`
	MinPassingGrade *float64 `json:"minPassingGrade" validate:"omitempty,min=0,max=100"`
	MaxAttempts     *int     `json:"maxAttempts" validate:"omitempty,min=1"`
}

// CreateExerciseRequest payload for adding an exercise to a lesson.
type CreateExerciseRequest struct {
	Code              string   `json:"code" validate:"required"`
	Title             string   `json:"title" validate:"required"`
	GradingScale      string   `json:"gradingScale" validate:"required,oneof=NUMERIC LETTER COMPETENCY PASS_FAIL"`
	MinGrade          *float64 `json:"minGrade" validate:"omitempty,min=0"`
	MinDemonstrations int      `json:"minDemonstrations" validate:"min=0"`
	Weight            float64  `json:"weight" validate:"min=0"`
	SortOrder         int      `json:"sortOrder" validate:"min=0"`
}

// AddPrerequisiteRequest links a prerequisite lesson to a dependent lesson.
type AddPrerequisiteRequest struct {
	PrerequisiteID string `json:"prerequisiteId" validate:"required"`
}
