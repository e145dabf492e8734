package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Okan-wqm/avinor-sub001/internal/dto"
	"github.com/Okan-wqm/avinor-sub001/internal/models"
	"github.com/Okan-wqm/avinor-sub001/internal/repository"
	appErrors "github.com/Okan-wqm/avinor-sub001/pkg/errors"
)

// saveRetries bounds reload-and-reapply cycles after a lost optimistic lock.
const saveRetries = 3

type enrollmentStore interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.StudentEnrollment, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentEnrollment, error)
	ExistsOpen(ctx context.Context, studentID, programID string) (bool, error)
	Create(ctx context.Context, enrollment *models.StudentEnrollment) error
	Save(ctx context.Context, enrollment *models.StudentEnrollment) error
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[models.EnrollmentStatus]int, error)
}

type enrollmentProgramStore interface {
	FindByID(ctx context.Context, id string) (*models.Program, error)
	ListStages(ctx context.Context, programID string) ([]models.Stage, error)
}

type enrollmentUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type enrollmentLessonStore interface {
	CountActiveByProgram(ctx context.Context, programID string) (int, error)
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	FirstActiveLesson(ctx context.Context, stageID string) (*models.Lesson, error)
}

type enrollmentCompletionStore interface {
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.LessonCompletion, error)
}

type progressionNotifier interface {
	Publish(event models.ProgressionEvent)
}

type progressInvalidator interface {
	Invalidate(ctx context.Context, enrollmentID string)
}

// EnrollmentService drives the enrollment lifecycle state machine and the
// cumulative progress counters hanging off each enrollment row.
type EnrollmentService struct {
	enrollments enrollmentStore
	programs    enrollmentProgramStore
	users       enrollmentUserStore
	lessons     enrollmentLessonStore
	completions enrollmentCompletionStore
	notifier    progressionNotifier
	progress    progressInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs the service. Notifier and invalidator are
// optional.
func NewEnrollmentService(
	enrollments enrollmentStore,
	programs enrollmentProgramStore,
	users enrollmentUserStore,
	lessons enrollmentLessonStore,
	completions enrollmentCompletionStore,
	notifier progressionNotifier,
	progress progressInvalidator,
	validate *validator.Validate,
	logger *zap.Logger,
) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &EnrollmentService{
		enrollments: enrollments,
		programs:    programs,
		users:       users,
		lessons:     lessons,
		completions: completions,
		notifier:    notifier,
		progress:    progress,
		validator:   validate,
		logger:      logger,
	}
}

// List returns enrollments matching the filter.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.StudentEnrollment, int, error) {
	enrollments, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, total, nil
}

// Get returns a single enrollment.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.StudentEnrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// Enroll registers a student in a published program. At most one open
// enrollment may exist per (student, program) pair.
func (s *EnrollmentService) Enroll(ctx context.Context, req dto.CreateEnrollmentRequest) (*models.StudentEnrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a student")
	}

	program, err := s.programs.FindByID(ctx, req.ProgramID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	if program.Status != models.ProgramStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrValidation, "program is not published")
	}

	open, err := s.enrollments.ExistsOpen(ctx, req.StudentID, req.ProgramID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollments")
	}
	if open {
		return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
	}

	enrollment := &models.StudentEnrollment{
		StudentID: req.StudentID,
		ProgramID: req.ProgramID,
		Status:    models.EnrollmentStatusPending,
		ExpiresAt: req.ExpiresAt,
	}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	return enrollment, nil
}

// Activate moves a pending enrollment to ACTIVE, pins the position pointers
// to the first stage and its first lesson, and snapshots the lesson total.
func (s *EnrollmentService) Activate(ctx context.Context, id string) (*models.StudentEnrollment, error) {
	enrollment, err := s.updateWithRetry(ctx, id, func(e *models.StudentEnrollment) error {
		if e.Status != models.EnrollmentStatusPending {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot activate enrollment in status %s", e.Status))
		}
		stages, err := s.programs.ListStages(ctx, e.ProgramID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stages")
		}
		if len(stages) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "program has no stages")
		}
		total, err := s.lessons.CountActiveByProgram(ctx, e.ProgramID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count lessons")
		}

		now := time.Now().UTC()
		e.Status = models.EnrollmentStatusActive
		e.StartedAt = &now
		e.CurrentStageID = &stages[0].ID
		e.LessonsTotal = total

		first, err := s.lessons.FirstActiveLesson(ctx, stages[0].ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve first lesson")
		}
		if first != nil {
			e.CurrentLessonID = &first.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(models.ProgressionEvent{
		Type:         models.EventEnrollmentActivated,
		EnrollmentID: enrollment.ID,
		StudentID:    enrollment.StudentID,
	})
	s.invalidate(ctx, enrollment.ID)
	return enrollment, nil
}

// Hold pauses an active enrollment.
func (s *EnrollmentService) Hold(ctx context.Context, id string) (*models.StudentEnrollment, error) {
	return s.transition(ctx, id, models.EnrollmentStatusOnHold, models.EnrollmentStatusActive)
}

// Resume reactivates an enrollment that is on hold or suspended.
func (s *EnrollmentService) Resume(ctx context.Context, id string) (*models.StudentEnrollment, error) {
	return s.transition(ctx, id, models.EnrollmentStatusActive, models.EnrollmentStatusOnHold, models.EnrollmentStatusSuspended)
}

// Suspend marks an active or pending enrollment suspended for disciplinary
// or administrative reasons.
func (s *EnrollmentService) Suspend(ctx context.Context, id string) (*models.StudentEnrollment, error) {
	return s.transition(ctx, id, models.EnrollmentStatusSuspended, models.EnrollmentStatusPending, models.EnrollmentStatusActive)
}

// Withdraw terminates an enrollment at the student's request. Allowed from
// any non-terminal status.
func (s *EnrollmentService) Withdraw(ctx context.Context, id string) (*models.StudentEnrollment, error) {
	return s.transition(ctx, id, models.EnrollmentStatusWithdrawn,
		models.EnrollmentStatusPending, models.EnrollmentStatusActive,
		models.EnrollmentStatusOnHold, models.EnrollmentStatusSuspended)
}

// CheckHourRequirements compares the enrollment's cumulative hours against
// every minimum the program defines.
func (s *EnrollmentService) CheckHourRequirements(ctx context.Context, id string) (*models.HourRequirementsResult, error) {
	enrollment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	program, err := s.programs.FindByID(ctx, enrollment.ProgramID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	return hourRequirements(program, &enrollment.HourTotals), nil
}

// Complete finishes an active enrollment once every active lesson is passed
// and all hour minima are met.
func (s *EnrollmentService) Complete(ctx context.Context, id string) (*models.StudentEnrollment, error) {
	enrollment, err := s.updateWithRetry(ctx, id, func(e *models.StudentEnrollment) error {
		if e.Status != models.EnrollmentStatusActive {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot complete enrollment in status %s", e.Status))
		}
		if e.LessonsTotal == 0 || e.LessonsCompleted < e.LessonsTotal {
			return appErrors.Clone(appErrors.ErrRequirementsNotMet,
				fmt.Sprintf("%d of %d lessons completed", e.LessonsCompleted, e.LessonsTotal))
		}
		program, err := s.programs.FindByID(ctx, e.ProgramID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
		}
		if result := hourRequirements(program, &e.HourTotals); !result.Met {
			return appErrors.Clone(appErrors.ErrRequirementsNotMet, "minimum hour requirements not met")
		}
		now := time.Now().UTC()
		e.Status = models.EnrollmentStatusCompleted
		e.CompletedAt = &now
		e.CompletionPercentage = 100
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(models.ProgressionEvent{
		Type:         models.EventEnrollmentCompleted,
		EnrollmentID: enrollment.ID,
		StudentID:    enrollment.StudentID,
	})
	s.invalidate(ctx, enrollment.ID)
	return enrollment, nil
}

// Reconcile recomputes every cumulative counter from the attempt ledger and
// rewrites the enrollment row. Repair operation for drifted counters.
func (s *EnrollmentService) Reconcile(ctx context.Context, id string) (*models.StudentEnrollment, error) {
	enrollment, err := s.updateWithRetry(ctx, id, func(e *models.StudentEnrollment) error {
		completions, err := s.completions.ListByEnrollment(ctx, e.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completions")
		}
		total, err := s.lessons.CountActiveByProgram(ctx, e.ProgramID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count lessons")
		}

		e.HourTotals = models.HourTotals{}
		e.LandingsTotal = 0
		e.LessonsTotal = total

		passedLessons := make(map[string]bool)
		gradeSum := 0.0
		gradeCount := 0
		for i := range completions {
			c := &completions[i]
			if c.Status != models.CompletionStatusCompleted {
				continue
			}
			e.HourTotals.Add(c.TimeBreakdown)
			e.LandingsTotal += c.LandingsCount
			if c.OverallGrade != nil {
				gradeSum += *c.OverallGrade
				gradeCount++
			}
			lesson, err := s.lessons.FindByID(ctx, c.LessonID)
			if err != nil {
				continue
			}
			if c.IsPassed(lesson.MinPassingGrade) {
				passedLessons[c.LessonID] = true
			}
		}
		e.LessonsCompleted = len(passedLessons)
		if e.LessonsTotal > 0 {
			e.CompletionPercentage = float64(e.LessonsCompleted) / float64(e.LessonsTotal) * 100
		} else {
			e.CompletionPercentage = 0
		}
		if gradeCount > 0 {
			avg := gradeSum / float64(gradeCount)
			e.AverageGrade = &avg
		} else {
			e.AverageGrade = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, enrollment.ID)
	return enrollment, nil
}

// ExpireOverdue batch-expires open enrollments past their expiry date.
func (s *EnrollmentService) ExpireOverdue(ctx context.Context) (int64, error) {
	affected, err := s.enrollments.ExpireOverdue(ctx, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire enrollments")
	}
	if affected > 0 {
		s.logger.Info("expired overdue enrollments", zap.Int64("count", affected))
	}
	return affected, nil
}

// CountByStatus returns enrollment counts per status for reporting.
func (s *EnrollmentService) CountByStatus(ctx context.Context) (map[models.EnrollmentStatus]int, error) {
	counts, err := s.enrollments.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	return counts, nil
}

func (s *EnrollmentService) transition(ctx context.Context, id string, to models.EnrollmentStatus, from ...models.EnrollmentStatus) (*models.StudentEnrollment, error) {
	enrollment, err := s.updateWithRetry(ctx, id, func(e *models.StudentEnrollment) error {
		allowed := false
		for _, status := range from {
			if e.Status == status {
				allowed = true
				break
			}
		}
		if !allowed {
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("cannot move enrollment from %s to %s", e.Status, to))
		}
		e.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, enrollment.ID)
	return enrollment, nil
}

// ApplyProgress applies a mutation to an enrollment under the optimistic
// lock. Progression services funnel counter and pointer updates through here
// so retry behaviour stays in one place.
func (s *EnrollmentService) ApplyProgress(ctx context.Context, id string, mutate func(*models.StudentEnrollment) error) (*models.StudentEnrollment, error) {
	enrollment, err := s.updateWithRetry(ctx, id, mutate)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, enrollment.ID)
	return enrollment, nil
}

// updateWithRetry loads the enrollment, applies mutate and saves it under the
// optimistic lock, reloading and reapplying on version conflicts.
func (s *EnrollmentService) updateWithRetry(ctx context.Context, id string, mutate func(*models.StudentEnrollment) error) (*models.StudentEnrollment, error) {
	for attempt := 0; attempt < saveRetries; attempt++ {
		enrollment, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := mutate(enrollment); err != nil {
			return nil, err
		}
		err = s.enrollments.Save(ctx, enrollment)
		if err == nil {
			return enrollment, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save enrollment")
		}
		s.logger.Debug("enrollment version conflict, retrying", zap.String("enrollment_id", id), zap.Int("attempt", attempt+1))
	}
	return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment was modified concurrently, retry the operation")
}

func (s *EnrollmentService) emit(event models.ProgressionEvent) {
	if s.notifier == nil {
		return
	}
	event.OccurredAt = time.Now().UTC()
	s.notifier.Publish(event)
}

func (s *EnrollmentService) invalidate(ctx context.Context, enrollmentID string) {
	if s.progress == nil {
		return
	}
	s.progress.Invalidate(ctx, enrollmentID)
}

// hourRequirements evaluates every defined program minimum against the
// accumulated totals.
func hourRequirements(program *models.Program, totals *models.HourTotals) *models.HourRequirementsResult {
	type category struct {
		name     string
		required *float64
		current  float64
	}
	categories := []category{
		{"total", program.MinTotalHours, totals.Total},
		{"dual", program.MinDualHours, totals.Dual},
		{"solo", program.MinSoloHours, totals.Solo},
		{"pic", program.MinPICHours, totals.PIC},
		{"cross_country", program.MinCrossCountryHours, totals.CrossCountry},
		{"night", program.MinNightHours, totals.Night},
		{"instrument", program.MinInstrumentHours, totals.Instrument},
		{"simulator", program.MinSimulatorHours, totals.Simulator},
		{"ground", program.MinGroundHours, totals.Ground},
	}

	result := &models.HourRequirementsResult{Met: true}
	for _, c := range categories {
		if c.required == nil {
			continue
		}
		remaining := *c.required - c.current
		if remaining < 0 {
			remaining = 0
		}
		check := models.HourRequirementCheck{
			Category:  c.name,
			Current:   c.current,
			Required:  *c.required,
			Remaining: remaining,
			Met:       c.current >= *c.required,
		}
		if !check.Met {
			result.Met = false
		}
		result.Categories = append(result.Categories, check)
	}
	return result
}
