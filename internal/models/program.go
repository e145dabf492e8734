package models

import "time"

// ProgramStatus tracks the curriculum authoring lifecycle.
type ProgramStatus string

const (
	ProgramStatusDraft     ProgramStatus = "DRAFT"
	ProgramStatusPublished ProgramStatus = "PUBLISHED"
)

// Program identifies a training curriculum (a license or rating course).
// Minimum cumulative hour requirements are optional per category; a nil
// value means the category is not gated.
type Program struct {
	ID          string        `db:"id" json:"id"`
	Code        string        `db:"code" json:"code"`
	Name        string        `db:"name" json:"name"`
	ProgramType string        `db:"program_type" json:"program_type"`
	Status      ProgramStatus `db:"status" json:"status"`

	MinTotalHours        *float64 `db:"min_total_hours" json:"min_total_hours,omitempty"`
	MinDualHours         *float64 `db:"min_dual_hours" json:"min_dual_hours,omitempty"`
	MinSoloHours         *float64 `db:"min_solo_hours" json:"min_solo_hours,omitempty"`
	MinPICHours          *float64 `db:"min_pic_hours" json:"min_pic_hours,omitempty"`
	MinCrossCountryHours *float64 `db:"min_cross_country_hours" json:"min_cross_country_hours,omitempty"`
	MinNightHours        *float64 `db:"min_night_hours" json:"min_night_hours,omitempty"`
	MinInstrumentHours   *float64 `db:"min_instrument_hours" json:"min_instrument_hours,omitempty"`
	MinSimulatorHours    *float64 `db:"min_simulator_hours" json:"min_simulator_hours,omitempty"`
	MinGroundHours       *float64 `db:"min_ground_hours" json:"min_ground_hours,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Stages []Stage `db:"-" json:"stages,omitempty"`
}

// Stage is an ordered phase of a program, unlocked sequentially via passed
// stage checks. Order values are unique within a program.
type Stage struct {
	ID        string    `db:"id" json:"id"`
	ProgramID string    `db:"program_id" json:"program_id"`
	Name      string    `db:"name" json:"name"`
	Order     int       `db:"stage_order" json:"order"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// HourRequirementCheck reports one hour category against its program minimum.
type HourRequirementCheck struct {
	Category  string  `json:"category"`
	Current   float64 `json:"current"`
	Required  float64 `json:"required"`
	Remaining float64 `json:"remaining"`
	Met       bool    `json:"met"`
}

// HourRequirementsResult aggregates all defined category checks; Met is the
// conjunction of every defined check.
type HourRequirementsResult struct {
	Met        bool                   `json:"met"`
	Categories []HourRequirementCheck `json:"categories"`
}

// ProgramFilter narrows program listings.
type ProgramFilter struct {
	Status      ProgramStatus
	ProgramType string
	Search      string
	Page        int
	PageSize    int
}
