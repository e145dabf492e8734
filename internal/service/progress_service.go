package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Okan-wqm/avinor-sub001/internal/models"
	appErrors "github.com/Okan-wqm/avinor-sub001/pkg/errors"
)

type progressCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type progressLessonStore interface {
	List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error)
	ListPrerequisites(ctx context.Context, lessonID string) ([]string, error)
}

type progressStageCheckStore interface {
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.StageCheck, error)
}

type progressEnrollmentStore interface {
	FindByID(ctx context.Context, id string) (*models.StudentEnrollment, error)
}

type progressProgramStore interface {
	ListStages(ctx context.Context, programID string) ([]models.Stage, error)
}

// ProgressService derives the read-only progress projection for an
// enrollment. The projection is computed from the attempt and check ledgers
// and cached; it never feeds back into stored state.
type ProgressService struct {
	enrollments progressEnrollmentStore
	programs    progressProgramStore
	lessons     progressLessonStore
	completions enrollmentCompletionStore
	checks      progressStageCheckStore
	cache       progressCache
	ttl         time.Duration
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewProgressService constructs the service. Cache and metrics are optional.
func NewProgressService(
	enrollments progressEnrollmentStore,
	programs progressProgramStore,
	lessons progressLessonStore,
	completions enrollmentCompletionStore,
	checks progressStageCheckStore,
	cache progressCache,
	ttl time.Duration,
	metrics *MetricsService,
	logger *zap.Logger,
) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ProgressService{
		enrollments: enrollments,
		programs:    programs,
		lessons:     lessons,
		completions: completions,
		checks:      checks,
		cache:       cache,
		ttl:         ttl,
		metrics:     metrics,
		logger:      logger,
	}
}

func progressCacheKey(enrollmentID string) string {
	return fmt.Sprintf("progress:enrollment:%s", enrollmentID)
}

// Get returns the projection for an enrollment, from cache when possible.
func (s *ProgressService) Get(ctx context.Context, enrollmentID string) (*models.EnrollmentProgress, error) {
	if s.cache != nil {
		var cached models.EnrollmentProgress
		err := s.cache.Get(ctx, progressCacheKey(enrollmentID), &cached)
		if err == nil {
			if s.metrics != nil {
				s.metrics.RecordCacheLookup(true)
			}
			return &cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("progress cache read failed", zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.RecordCacheLookup(false)
		}
	}

	progress, err := s.compute(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, progressCacheKey(enrollmentID), progress, s.ttl); err != nil {
			s.logger.Warn("progress cache write failed", zap.Error(err))
		}
	}
	return progress, nil
}

// Invalidate drops the cached projection for an enrollment. Called after
// every progression mutation.
func (s *ProgressService) Invalidate(ctx context.Context, enrollmentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, progressCacheKey(enrollmentID)); err != nil {
		s.logger.Warn("progress cache invalidation failed", zap.String("enrollment_id", enrollmentID), zap.Error(err))
	}
}

func (s *ProgressService) compute(ctx context.Context, enrollmentID string) (*models.EnrollmentProgress, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	active := true
	lessons, err := s.lessons.List(ctx, models.LessonFilter{ProgramID: enrollment.ProgramID, Active: &active})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	history, err := s.completions.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attempt history")
	}
	checks, err := s.checks.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stage checks")
	}
	stages, err := s.programs.ListStages(ctx, enrollment.ProgramID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stages")
	}

	byLesson := make(map[string][]*models.LessonCompletion)
	for i := range history {
		c := &history[i]
		byLesson[c.LessonID] = append(byLesson[c.LessonID], c)
	}
	passed := make(map[string]bool)
	for i := range lessons {
		l := &lessons[i]
		for _, c := range byLesson[l.ID] {
			if c.Status == models.CompletionStatusCompleted && c.IsPassed(l.MinPassingGrade) {
				passed[l.ID] = true
				break
			}
		}
	}

	projection := &models.EnrollmentProgress{
		EnrollmentID:         enrollment.ID,
		CompletionPercentage: enrollment.CompletionPercentage,
	}

	for i := range lessons {
		l := &lessons[i]
		lp := models.LessonProgress{
			LessonID:   l.ID,
			LessonCode: l.Code,
			Title:      l.Title,
			StageID:    l.StageID,
		}
		var best *float64
		open := models.CompletionStatus("")
		failedAttempt := false
		for _, c := range byLesson[l.ID] {
			if c.ConsumesAttemptSlot() {
				lp.Attempts++
			}
			if c.Status.Open() {
				open = c.Status
			}
			if c.Status == models.CompletionStatusCompleted {
				if c.OverallGrade != nil && (best == nil || *c.OverallGrade > *best) {
					best = c.OverallGrade
				}
				if !c.IsPassed(l.MinPassingGrade) {
					failedAttempt = true
				}
			}
		}
		lp.BestGrade = best

		switch {
		case passed[l.ID]:
			lp.Status = models.LessonCompleted
		case open == models.CompletionStatusInProgress:
			lp.Status = models.LessonInProgress
		case open == models.CompletionStatusScheduled:
			lp.Status = models.LessonScheduled
		case failedAttempt && l.MaxAttempts != nil && lp.Attempts >= *l.MaxAttempts:
			lp.Status = models.LessonFailed
		default:
			lp.Status = s.availability(ctx, l, enrollment, passed, &lp)
		}
		projection.Lessons = append(projection.Lessons, lp)
	}

	latestCheck := make(map[string]*models.StageCheck)
	for i := range checks {
		c := &checks[i]
		cur, ok := latestCheck[c.StageID]
		if !ok || c.AttemptNumber > cur.AttemptNumber {
			latestCheck[c.StageID] = c
		}
	}

	for i := range stages {
		st := &stages[i]
		sp := models.StageProgress{
			StageID: st.ID,
			Name:    st.Name,
			Order:   st.Order,
			Current: enrollment.CurrentStageID != nil && *enrollment.CurrentStageID == st.ID,
		}
		for j := range projection.Lessons {
			lp := &projection.Lessons[j]
			if lp.StageID == nil || *lp.StageID != st.ID {
				continue
			}
			sp.LessonsTotal++
			if lp.Status == models.LessonCompleted {
				sp.LessonsCompleted++
			}
		}
		if sp.LessonsTotal > 0 {
			sp.Percentage = float64(sp.LessonsCompleted) / float64(sp.LessonsTotal) * 100
		}
		if check, ok := latestCheck[st.ID]; ok {
			status := check.Status
			sp.CheckStatus = &status
			sp.CheckPassed = check.IsPassed
		}
		projection.Stages = append(projection.Stages, sp)
	}
	sort.Slice(projection.Stages, func(i, j int) bool {
		return projection.Stages[i].Order < projection.Stages[j].Order
	})

	return projection, nil
}

// availability resolves LOCKED versus AVAILABLE from the lesson's gates.
func (s *ProgressService) availability(ctx context.Context, lesson *models.Lesson, enrollment *models.StudentEnrollment, passed map[string]bool, lp *models.LessonProgress) models.LessonAvailability {
	prereqs, err := s.lessons.ListPrerequisites(ctx, lesson.ID)
	if err != nil {
		s.logger.Warn("failed to load prerequisites for projection", zap.String("lesson_id", lesson.ID), zap.Error(err))
		return models.LessonLocked
	}
	locked := false
	for _, id := range prereqs {
		if !passed[id] {
			locked = true
			lp.MissingPrerequisites = append(lp.MissingPrerequisites, id)
		}
	}
	if lesson.MinHoursBefore != nil {
		lp.HoursRequired = *lesson.MinHoursBefore
		lp.HoursCurrent = enrollment.Total
		if enrollment.Total < *lesson.MinHoursBefore {
			locked = true
		}
	}
	if locked {
		return models.LessonLocked
	}
	return models.LessonAvailable
}
