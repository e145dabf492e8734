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
	appErrors "github.com/Okan-wqm/avinor-sub001/pkg/errors"
)

type stageCheckStore interface {
	FindByID(ctx context.Context, id string) (*models.StageCheck, error)
	List(ctx context.Context, filter models.StageCheckFilter) ([]models.StageCheck, int, error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.StageCheck, error)
	ExistsOpen(ctx context.Context, enrollmentID, stageID string) (bool, error)
	CountAttempts(ctx context.Context, enrollmentID, stageID string) (int, error)
	Create(ctx context.Context, check *models.StageCheck) error
	Update(ctx context.Context, check *models.StageCheck) error
}

type stageCheckProgramStore interface {
	FindStageByID(ctx context.Context, id string) (*models.Stage, error)
	ListStages(ctx context.Context, programID string) ([]models.Stage, error)
}

type stageCheckLessonStore interface {
	List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error)
	FirstActiveLesson(ctx context.Context, stageID string) (*models.Lesson, error)
}

type stageCheckCompletionStore interface {
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.LessonCompletion, error)
}

// StageCheckDefaults carries curriculum-wide fallbacks applied when a check
// is created without explicit limits.
type StageCheckDefaults struct {
	MaxAttempts     int
	MinPassingGrade float64
}

// StageCheckService runs the milestone assessment workflow: bounded attempts
// per (enrollment, stage), an explicit prerequisite verification step, and
// stage advancement on a pass.
type StageCheckService struct {
	checks      stageCheckStore
	programs    stageCheckProgramStore
	lessons     stageCheckLessonStore
	completions stageCheckCompletionStore
	enrollments enrollmentApplier
	notifier    progressionNotifier
	metrics     *MetricsService
	defaults    StageCheckDefaults
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewStageCheckService constructs the service.
func NewStageCheckService(
	checks stageCheckStore,
	programs stageCheckProgramStore,
	lessons stageCheckLessonStore,
	completions stageCheckCompletionStore,
	enrollments enrollmentApplier,
	notifier progressionNotifier,
	metrics *MetricsService,
	defaults StageCheckDefaults,
	validate *validator.Validate,
	logger *zap.Logger,
) *StageCheckService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if defaults.MaxAttempts <= 0 {
		defaults.MaxAttempts = 3
	}
	if defaults.MinPassingGrade <= 0 {
		defaults.MinPassingGrade = 70
	}
	return &StageCheckService{
		checks:      checks,
		programs:    programs,
		lessons:     lessons,
		completions: completions,
		enrollments: enrollments,
		notifier:    notifier,
		metrics:     metrics,
		defaults:    defaults,
		validator:   validate,
		logger:      logger,
	}
}

// List returns stage checks matching the filter.
func (s *StageCheckService) List(ctx context.Context, filter models.StageCheckFilter) ([]models.StageCheck, int, error) {
	checks, total, err := s.checks.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list stage checks")
	}
	return checks, total, nil
}

// Get returns a single stage check.
func (s *StageCheckService) Get(ctx context.Context, id string) (*models.StageCheck, error) {
	check, err := s.checks.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "stage check not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stage check")
	}
	return check, nil
}

// Create schedules the first check for an (enrollment, stage) pair. Rechecks
// after a failure go through CreateRecheck instead.
func (s *StageCheckService) Create(ctx context.Context, req dto.CreateStageCheckRequest) (*models.StageCheck, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid stage check payload")
	}

	enrollment, err := s.enrollments.Get(ctx, req.EnrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("enrollment is %s, stage checks require ACTIVE", enrollment.Status))
	}

	stage, err := s.programs.FindStageByID(ctx, req.StageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "stage not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stage")
	}
	if stage.ProgramID != enrollment.ProgramID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "stage belongs to a different program")
	}

	open, err := s.checks.ExistsOpen(ctx, enrollment.ID, stage.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open stage checks")
	}
	if open {
		return nil, appErrors.Clone(appErrors.ErrDuplicateActiveCheck, "")
	}

	used, err := s.checks.CountAttempts(ctx, enrollment.ID, stage.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count stage check attempts")
	}
	if used >= s.defaults.MaxAttempts {
		return nil, appErrors.Clone(appErrors.ErrRetryExhausted,
			fmt.Sprintf("stage allows %d check attempts, %d used", s.defaults.MaxAttempts, used))
	}

	checkType := req.CheckType
	if checkType == "" {
		checkType = "STAGE_CHECK"
	}
	check := &models.StageCheck{
		EnrollmentID:    enrollment.ID,
		StageID:         stage.ID,
		CheckType:       checkType,
		AttemptNumber:   used + 1,
		MaxAttempts:     s.defaults.MaxAttempts,
		MinPassingGrade: s.defaults.MinPassingGrade,
		Status:          models.StageCheckStatusScheduled,
		ScheduledAt:     req.ScheduledAt,
	}
	if req.ExaminerID != "" {
		check.ExaminerID = &req.ExaminerID
	}
	if err := s.checks.Create(ctx, check); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create stage check")
	}
	return check, nil
}

// VerifyPrerequisites checks that every active lesson of the stage has a
// passing attempt for the enrollment. A clean result stamps the check so it
// can be started; otherwise the unpassed lesson codes are reported and the
// check is left untouched.
func (s *StageCheckService) VerifyPrerequisites(ctx context.Context, id string) (*models.StageCheckPrerequisiteResult, error) {
	check, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !check.Status.Open() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot verify prerequisites of a %s check", check.Status))
	}

	missing, err := s.unpassedStageLessons(ctx, check.EnrollmentID, check.StageID)
	if err != nil {
		return nil, err
	}
	result := &models.StageCheckPrerequisiteResult{CheckID: check.ID, MissingLessons: missing}
	if len(missing) > 0 {
		return result, nil
	}

	now := time.Now().UTC()
	check.PrerequisitesVerified = true
	check.PrerequisitesVerifiedAt = &now
	if err := s.checks.Update(ctx, check); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update stage check")
	}
	result.Verified = true
	return result, nil
}

// Start moves a scheduled check into IN_PROGRESS. Requires verified
// prerequisites.
func (s *StageCheckService) Start(ctx context.Context, id string) (*models.StageCheck, error) {
	check, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if check.Status != models.StageCheckStatusScheduled {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot start check in status %s", check.Status))
	}
	if !check.PrerequisitesVerified {
		return nil, appErrors.Clone(appErrors.ErrPrerequisitesNotVerified, "")
	}
	now := time.Now().UTC()
	check.Status = models.StageCheckStatusInProgress
	check.StartedAt = &now
	if err := s.checks.Update(ctx, check); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start stage check")
	}
	return check, nil
}

// Pass records a passing result and advances the enrollment to the next
// stage, pointing it at that stage's first lesson. On the final stage the
// pointers clear.
func (s *StageCheckService) Pass(ctx context.Context, id string, req dto.PassStageCheckRequest) (*models.StageCheck, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pass payload")
	}

	check, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if check.Status != models.StageCheckStatusInProgress {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot pass check in status %s", check.Status))
	}
	if req.OverallGrade != nil && *req.OverallGrade < check.MinPassingGrade {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("overall grade %.1f is below the passing threshold %.1f", *req.OverallGrade, check.MinPassingGrade))
	}

	stage, err := s.programs.FindStageByID(ctx, check.StageID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stage")
	}

	now := time.Now().UTC()
	result := models.ResultPass
	check.Status = models.StageCheckStatusCompleted
	check.CompletedAt = &now
	check.Result = &result
	check.IsPassed = true
	check.OralGrade = req.OralGrade
	check.FlightGrade = req.FlightGrade
	check.OverallGrade = req.OverallGrade
	if err := s.checks.Update(ctx, check); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalise stage check")
	}

	enrollment, err := s.enrollments.ApplyProgress(ctx, check.EnrollmentID, func(e *models.StudentEnrollment) error {
		e.StageChecksPassed++
		return s.advanceStage(ctx, e, stage)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordStageCheck("passed")
	}
	s.emit(models.ProgressionEvent{
		Type:         models.EventStageCheckPassed,
		EnrollmentID: enrollment.ID,
		StudentID:    enrollment.StudentID,
		EntityID:     check.ID,
	})
	return check, nil
}

// Fail records a failed result. The enrollment stays on the current stage;
// a recheck can be scheduled while attempts remain.
func (s *StageCheckService) Fail(ctx context.Context, id string, req dto.FailStageCheckRequest) (*models.StageCheck, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fail payload")
	}

	check, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if check.Status != models.StageCheckStatusInProgress {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot fail check in status %s", check.Status))
	}

	now := time.Now().UTC()
	result := models.ResultFail
	check.Status = models.StageCheckStatusCompleted
	check.CompletedAt = &now
	check.Result = &result
	check.IsPassed = false
	check.OralGrade = req.OralGrade
	check.FlightGrade = req.FlightGrade
	check.OverallGrade = req.OverallGrade
	check.FailureReasons = &req.FailureReasons
	if req.RecheckItems != "" {
		check.RecheckItems = &req.RecheckItems
	}
	if err := s.checks.Update(ctx, check); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalise stage check")
	}

	enrollment, err := s.enrollments.ApplyProgress(ctx, check.EnrollmentID, func(e *models.StudentEnrollment) error {
		e.StageChecksFailed++
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordStageCheck("failed")
	}
	s.emit(models.ProgressionEvent{
		Type:         models.EventStageCheckFailed,
		EnrollmentID: enrollment.ID,
		StudentID:    enrollment.StudentID,
		EntityID:     check.ID,
	})
	return check, nil
}

// Defer postpones a scheduled or in-progress check without consuming the
// attempt. A deferred check returns to the schedule via Reschedule and must
// be started again; its prerequisite verification is retained.
func (s *StageCheckService) Defer(ctx context.Context, id string) (*models.StageCheck, error) {
	return s.move(ctx, id, models.StageCheckStatusDeferred,
		models.StageCheckStatusScheduled, models.StageCheckStatusInProgress)
}

// Reschedule returns a deferred check to the schedule.
func (s *StageCheckService) Reschedule(ctx context.Context, id string, at *time.Time) (*models.StageCheck, error) {
	check, err := s.move(ctx, id, models.StageCheckStatusScheduled, models.StageCheckStatusDeferred)
	if err != nil {
		return nil, err
	}
	if at != nil {
		check.ScheduledAt = at
		if err := s.checks.Update(ctx, check); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update stage check")
		}
	}
	return check, nil
}

// Cancel drops a check from any non-terminal state. Cancelled checks release
// their attempt slot.
func (s *StageCheckService) Cancel(ctx context.Context, id string) (*models.StageCheck, error) {
	return s.move(ctx, id, models.StageCheckStatusCancelled,
		models.StageCheckStatusScheduled, models.StageCheckStatusInProgress, models.StageCheckStatusDeferred)
}

// CreateRecheck schedules a follow-up attempt chained to a failed check.
// The attempt ceiling is enforced against the failed check's counter.
func (s *StageCheckService) CreateRecheck(ctx context.Context, previousID string, req dto.CreateRecheckRequest) (*models.StageCheck, error) {
	previous, err := s.Get(ctx, previousID)
	if err != nil {
		return nil, err
	}
	if previous.Status != models.StageCheckStatusCompleted || previous.IsPassed {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "rechecks require a completed failed check")
	}
	if !previous.CanRetry() {
		return nil, appErrors.Clone(appErrors.ErrRetryExhausted,
			fmt.Sprintf("all %d check attempts used", previous.MaxAttempts))
	}

	open, err := s.checks.ExistsOpen(ctx, previous.EnrollmentID, previous.StageID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open stage checks")
	}
	if open {
		return nil, appErrors.Clone(appErrors.ErrDuplicateActiveCheck, "")
	}

	recheck := &models.StageCheck{
		EnrollmentID:      previous.EnrollmentID,
		StageID:           previous.StageID,
		CheckType:         previous.CheckType,
		AttemptNumber:     previous.AttemptNumber + 1,
		MaxAttempts:       previous.MaxAttempts,
		MinPassingGrade:   previous.MinPassingGrade,
		Status:            models.StageCheckStatusScheduled,
		ScheduledAt:       req.ScheduledAt,
		PreviousAttemptID: &previous.ID,
		RecheckItems:      previous.RecheckItems,
	}
	if req.ExaminerID != "" {
		recheck.ExaminerID = &req.ExaminerID
	}
	if err := s.checks.Create(ctx, recheck); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create recheck")
	}
	return recheck, nil
}

func (s *StageCheckService) move(ctx context.Context, id string, to models.StageCheckStatus, from ...models.StageCheckStatus) (*models.StageCheck, error) {
	check, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, status := range from {
		if check.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot move check from %s to %s", check.Status, to))
	}
	check.Status = to
	if err := s.checks.Update(ctx, check); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update stage check")
	}
	return check, nil
}

// unpassedStageLessons returns the codes of active stage lessons without a
// passing attempt.
func (s *StageCheckService) unpassedStageLessons(ctx context.Context, enrollmentID, stageID string) ([]string, error) {
	active := true
	lessons, err := s.lessons.List(ctx, models.LessonFilter{StageID: stageID, Active: &active})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list stage lessons")
	}
	history, err := s.completions.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attempt history")
	}

	passed := make(map[string]bool)
	for i := range history {
		c := &history[i]
		if c.Status != models.CompletionStatusCompleted {
			continue
		}
		for j := range lessons {
			if lessons[j].ID == c.LessonID && c.IsPassed(lessons[j].MinPassingGrade) {
				passed[c.LessonID] = true
			}
		}
	}

	var missing []string
	for i := range lessons {
		if lessons[i].Type == models.LessonTypeStageCheck {
			continue
		}
		if !passed[lessons[i].ID] {
			missing = append(missing, lessons[i].Code)
		}
	}
	return missing, nil
}

// advanceStage moves the enrollment pointers past the passed stage.
func (s *StageCheckService) advanceStage(ctx context.Context, e *models.StudentEnrollment, stage *models.Stage) error {
	stages, err := s.programs.ListStages(ctx, stage.ProgramID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stages")
	}
	var next *models.Stage
	for i := range stages {
		if stages[i].ID == stage.ID && i+1 < len(stages) {
			next = &stages[i+1]
			break
		}
	}
	if next == nil {
		e.CurrentStageID = nil
		e.CurrentLessonID = nil
		return nil
	}
	e.CurrentStageID = &next.ID
	first, err := s.lessons.FirstActiveLesson(ctx, next.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve first lesson")
	}
	if first != nil {
		e.CurrentLessonID = &first.ID
	} else {
		e.CurrentLessonID = nil
	}
	return nil
}

func (s *StageCheckService) emit(event models.ProgressionEvent) {
	if s.notifier == nil {
		return
	}
	event.OccurredAt = time.Now().UTC()
	s.notifier.Publish(event)
}
