package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Okan-wqm/avinor-sub001/internal/dto"
	"github.com/Okan-wqm/avinor-sub001/internal/models"
	appErrors "github.com/Okan-wqm/avinor-sub001/pkg/errors"
)

type completionStore interface {
	FindByID(ctx context.Context, id string) (*models.LessonCompletion, error)
	List(ctx context.Context, filter models.CompletionFilter) ([]models.LessonCompletion, int, error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.LessonCompletion, error)
	ExistsOpen(ctx context.Context, enrollmentID, lessonID string) (bool, error)
	CountSlotConsuming(ctx context.Context, enrollmentID, lessonID string) (int, error)
	Create(ctx context.Context, completion *models.LessonCompletion) error
	Update(ctx context.Context, completion *models.LessonCompletion) error
	UpsertExerciseGrade(ctx context.Context, grade *models.ExerciseGrade) error
	ListExerciseGrades(ctx context.Context, completionID string) ([]models.ExerciseGrade, error)
}

type completionLessonStore interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error)
	FindExerciseByID(ctx context.Context, id string) (*models.Exercise, error)
	ListExercises(ctx context.Context, lessonID string) ([]models.Exercise, error)
}

type enrollmentApplier interface {
	Get(ctx context.Context, id string) (*models.StudentEnrollment, error)
	ApplyProgress(ctx context.Context, id string, mutate func(*models.StudentEnrollment) error) (*models.StudentEnrollment, error)
}

type prerequisiteChecker interface {
	CheckPrerequisites(ctx context.Context, lesson *models.Lesson, enrollment *models.StudentEnrollment, completions []models.LessonCompletion) (*models.PrerequisiteCheck, error)
}

// CompletionService runs the lesson attempt workflow: scheduling gated by
// prerequisites and attempt budgets, grading, and finalisation feeding the
// enrollment's cumulative counters.
type CompletionService struct {
	completions completionStore
	lessons     completionLessonStore
	enrollments enrollmentApplier
	curriculum  prerequisiteChecker
	notifier    progressionNotifier
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCompletionService constructs the service. Notifier and metrics are
// optional.
func NewCompletionService(
	completions completionStore,
	lessons completionLessonStore,
	enrollments enrollmentApplier,
	curriculum prerequisiteChecker,
	notifier progressionNotifier,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *CompletionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CompletionService{
		completions: completions,
		lessons:     lessons,
		enrollments: enrollments,
		curriculum:  curriculum,
		notifier:    notifier,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// List returns attempts matching the filter.
func (s *CompletionService) List(ctx context.Context, filter models.CompletionFilter) ([]models.LessonCompletion, int, error) {
	completions, total, err := s.completions.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attempts")
	}
	return completions, total, nil
}

// Get returns one attempt with its exercise grades.
func (s *CompletionService) Get(ctx context.Context, id string) (*models.LessonCompletion, error) {
	completion, err := s.completions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attempt not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attempt")
	}
	grades, err := s.completions.ListExerciseGrades(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exercise grades")
	}
	completion.ExerciseGrades = grades
	return completion, nil
}

// Create schedules a new attempt. The enrollment must be active, the lesson's
// prerequisite gates must hold, no other attempt for the pair may be open
// and the attempt budget must not be spent.
func (s *CompletionService) Create(ctx context.Context, req dto.CreateCompletionRequest) (*models.LessonCompletion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attempt payload")
	}

	enrollment, err := s.enrollments.Get(ctx, req.EnrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("enrollment is %s, attempts require ACTIVE", enrollment.Status))
	}

	lesson, err := s.lessons.FindByID(ctx, req.LessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	if lesson.ProgramID != enrollment.ProgramID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "lesson belongs to a different program")
	}
	if !lesson.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "lesson is inactive")
	}

	history, err := s.completions.ListByEnrollment(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attempt history")
	}
	check, err := s.curriculum.CheckPrerequisites(ctx, lesson, enrollment, history)
	if err != nil {
		return nil, err
	}
	if !check.Met {
		return nil, appErrors.Clone(appErrors.ErrPrerequisitesNotMet,
			fmt.Sprintf("missing %d prerequisite lessons, %.1f of %.1f required hours",
				len(check.MissingLessonIDs), check.HoursCurrent, check.HoursRequired))
	}

	open, err := s.completions.ExistsOpen(ctx, enrollment.ID, lesson.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open attempts")
	}
	if open {
		return nil, appErrors.Clone(appErrors.ErrDuplicateActiveAttempt, "")
	}

	used, err := s.completions.CountSlotConsuming(ctx, enrollment.ID, lesson.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count attempts")
	}
	if lesson.MaxAttempts != nil && used >= *lesson.MaxAttempts {
		return nil, appErrors.Clone(appErrors.ErrAttemptLimit,
			fmt.Sprintf("lesson allows %d attempts, %d used", *lesson.MaxAttempts, used))
	}

	completion := &models.LessonCompletion{
		EnrollmentID:  enrollment.ID,
		LessonID:      lesson.ID,
		AttemptNumber: used + 1,
		Status:        models.CompletionStatusScheduled,
		ScheduledAt:   req.ScheduledAt,
	}
	if req.InstructorID != "" {
		completion.InstructorID = &req.InstructorID
	}
	if err := s.completions.Create(ctx, completion); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create attempt")
	}
	return completion, nil
}

// Start moves a scheduled attempt into IN_PROGRESS.
func (s *CompletionService) Start(ctx context.Context, id string) (*models.LessonCompletion, error) {
	completion, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if completion.Status != models.CompletionStatusScheduled {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot start attempt in status %s", completion.Status))
	}
	now := time.Now().UTC()
	completion.Status = models.CompletionStatusInProgress
	completion.StartedAt = &now
	if err := s.completions.Update(ctx, completion); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start attempt")
	}
	return completion, nil
}

// GradeExercise records the grade for one exercise of an in-progress attempt.
// The pass flag is derived from the exercise's thresholds, never supplied.
func (s *CompletionService) GradeExercise(ctx context.Context, completionID string, req dto.GradeExerciseRequest) (*models.ExerciseGrade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	completion, err := s.Get(ctx, completionID)
	if err != nil {
		return nil, err
	}
	if completion.Status != models.CompletionStatusInProgress {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot grade attempt in status %s", completion.Status))
	}

	exercise, err := s.lessons.FindExerciseByID(ctx, req.ExerciseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exercise not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exercise")
	}
	if exercise.LessonID != completion.LessonID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exercise belongs to a different lesson")
	}
	if req.SuccessfulDemonstrations > req.TotalDemonstrations {
		return nil, appErrors.Clone(appErrors.ErrValidation, "successful demonstrations exceed total")
	}

	grade := &models.ExerciseGrade{
		CompletionID:             completion.ID,
		ExerciseID:               exercise.ID,
		Grade:                    req.Grade,
		SuccessfulDemonstrations: req.SuccessfulDemonstrations,
		TotalDemonstrations:      req.TotalDemonstrations,
	}
	if req.CompetencyLevel != "" {
		level := models.CompetencyLevel(req.CompetencyLevel)
		grade.CompetencyLevel = &level
	}
	if req.Deviations != "" {
		grade.Deviations = &req.Deviations
	}
	if req.Comments != "" {
		grade.Comments = &req.Comments
	}
	grade.EvaluatePass(exercise)

	if err := s.completions.UpsertExerciseGrade(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store exercise grade")
	}
	return grade, nil
}

// Complete finalises an in-progress attempt. The overall grade falls back to
// the weighted aggregate of exercise grades, the result falls back to the
// grade versus the lesson threshold, and passing attempts feed the
// enrollment's counters and advance its lesson pointer.
func (s *CompletionService) Complete(ctx context.Context, id string, req dto.CompleteLessonRequest) (*models.LessonCompletion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid completion payload")
	}

	completion, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if completion.Status != models.CompletionStatusInProgress {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot complete attempt in status %s", completion.Status))
	}

	lesson, err := s.lessons.FindByID(ctx, completion.LessonID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}

	now := time.Now().UTC()
	completion.Status = models.CompletionStatusCompleted
	completion.CompletedAt = &now
	completion.TimeBreakdown = models.TimeBreakdown{
		Flight:       req.Times.Flight,
		Ground:       req.Times.Ground,
		Simulator:    req.Times.Simulator,
		Dual:         req.Times.Dual,
		Solo:         req.Times.Solo,
		PIC:          req.Times.PIC,
		CrossCountry: req.Times.CrossCountry,
		Night:        req.Times.Night,
		Instrument:   req.Times.Instrument,
	}
	completion.LandingsCount = req.LandingsCount
	if req.Comments != "" {
		completion.Comments = &req.Comments
	}

	completion.OverallGrade = req.OverallGrade
	if completion.OverallGrade == nil {
		exercises, err := s.lessons.ListExercises(ctx, lesson.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exercises")
		}
		completion.OverallGrade = models.WeightedLessonGrade(exercises, completion.ExerciseGrades)
	}

	if req.Result != "" {
		result := models.CompletionResult(req.Result)
		completion.Result = &result
	} else if completion.OverallGrade != nil && lesson.MinPassingGrade != nil {
		result := models.ResultFail
		if *completion.OverallGrade >= *lesson.MinPassingGrade {
			result = models.ResultPass
		}
		completion.Result = &result
	}

	if err := s.completions.Update(ctx, completion); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalise attempt")
	}

	passed := completion.IsPassed(lesson.MinPassingGrade)
	enrollment, err := s.enrollments.ApplyProgress(ctx, completion.EnrollmentID, func(e *models.StudentEnrollment) error {
		return s.applyCompletion(ctx, e, completion, lesson, passed)
	})
	if err != nil {
		// The attempt record is final; counter drift is repaired by Reconcile.
		s.logger.Error("attempt finalised but enrollment update failed",
			zap.String("completion_id", completion.ID), zap.Error(err))
		return nil, err
	}

	outcome := "failed"
	if passed {
		outcome = "passed"
	}
	if s.metrics != nil {
		s.metrics.RecordLessonAttempt(outcome)
	}
	s.emit(models.ProgressionEvent{
		Type:         models.EventLessonCompleted,
		EnrollmentID: enrollment.ID,
		StudentID:    enrollment.StudentID,
		EntityID:     completion.ID,
	})
	return completion, nil
}

// MarkIncomplete closes an in-progress attempt that could not be finished.
// The attempt slot stays consumed.
func (s *CompletionService) MarkIncomplete(ctx context.Context, id string, comments string) (*models.LessonCompletion, error) {
	return s.close(ctx, id, models.CompletionStatusIncomplete, comments, models.CompletionStatusInProgress)
}

// Cancel releases a scheduled attempt before it starts. Cancelled attempts
// do not count against the lesson's attempt budget.
func (s *CompletionService) Cancel(ctx context.Context, id string, comments string) (*models.LessonCompletion, error) {
	return s.close(ctx, id, models.CompletionStatusCancelled, comments, models.CompletionStatusScheduled)
}

// NoShow records that the student did not appear. The attempt slot is
// consumed.
func (s *CompletionService) NoShow(ctx context.Context, id string, comments string) (*models.LessonCompletion, error) {
	return s.close(ctx, id, models.CompletionStatusNoShow, comments, models.CompletionStatusScheduled)
}

func (s *CompletionService) close(ctx context.Context, id string, to models.CompletionStatus, comments string, from ...models.CompletionStatus) (*models.LessonCompletion, error) {
	completion, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, status := range from {
		if completion.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot move attempt from %s to %s", completion.Status, to))
	}
	completion.Status = to
	if comments != "" {
		completion.Comments = &comments
	}
	if err := s.completions.Update(ctx, completion); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attempt")
	}
	return completion, nil
}

// applyCompletion folds a finalised attempt into the enrollment: hour and
// landing accumulation always, lesson counters and pointer advance only on a
// first-time pass.
func (s *CompletionService) applyCompletion(ctx context.Context, e *models.StudentEnrollment, completion *models.LessonCompletion, lesson *models.Lesson, passed bool) error {
	e.HourTotals.Add(completion.TimeBreakdown)
	e.LandingsTotal += completion.LandingsCount

	history, err := s.completions.ListByEnrollment(ctx, e.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attempt history")
	}

	gradeSum := 0.0
	gradeCount := 0
	previouslyPassed := false
	for i := range history {
		c := &history[i]
		if c.Status != models.CompletionStatusCompleted {
			continue
		}
		if c.OverallGrade != nil {
			gradeSum += *c.OverallGrade
			gradeCount++
		}
		if c.ID != completion.ID && c.LessonID == lesson.ID && c.IsPassed(lesson.MinPassingGrade) {
			previouslyPassed = true
		}
	}
	if gradeCount > 0 {
		avg := gradeSum / float64(gradeCount)
		e.AverageGrade = &avg
	}

	if passed && !previouslyPassed {
		e.LessonsCompleted++
		if e.LessonsTotal > 0 {
			e.CompletionPercentage = float64(e.LessonsCompleted) / float64(e.LessonsTotal) * 100
		}
		if e.CurrentLessonID != nil && *e.CurrentLessonID == lesson.ID {
			next, err := s.nextLesson(ctx, lesson)
			if err != nil {
				return err
			}
			e.CurrentLessonID = next
		}
	}
	return nil
}

// nextLesson resolves the lesson following the given one within its stage by
// sort order, nil when it is the last.
func (s *CompletionService) nextLesson(ctx context.Context, lesson *models.Lesson) (*string, error) {
	if lesson.StageID == nil {
		return nil, nil
	}
	active := true
	siblings, err := s.lessons.List(ctx, models.LessonFilter{
		ProgramID: lesson.ProgramID,
		StageID:   *lesson.StageID,
		Active:    &active,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list stage lessons")
	}
	sort.Slice(siblings, func(i, j int) bool { return siblings[i].SortOrder < siblings[j].SortOrder })
	for i := range siblings {
		if siblings[i].ID == lesson.ID && i+1 < len(siblings) {
			return &siblings[i+1].ID, nil
		}
	}
	return nil, nil
}

func (s *CompletionService) emit(event models.ProgressionEvent) {
	if s.notifier == nil {
		return
	}
	event.OccurredAt = time.Now().UTC()
	s.notifier.Publish(event)
}
