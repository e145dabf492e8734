package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Okan-wqm/avinor-sub001/internal/models"
	appErrors "github.com/Okan-wqm/avinor-sub001/pkg/errors"
)

type progressFixture struct {
	svc         *ProgressService
	cache       *memCache
	enrollments *memEnrollmentStore
	completions *memCompletionStore
	checks      *memStageCheckStore
	lessons     *memLessonStore
}

// newProgressFixture builds a one-stage program with three lessons: l1
// standalone, l2 gated on l1, l3 gated on a five hour floor.
func newProgressFixture(t *testing.T) *progressFixture {
	t.Helper()
	f := &progressFixture{
		cache:       newMemCache(),
		enrollments: newMemEnrollmentStore(),
		completions: newMemCompletionStore(),
		checks:      newMemStageCheckStore(),
		lessons:     newMemLessonStore(),
	}
	programs := newMemProgramStore()
	programs.stages["s1"] = &models.Stage{ID: "s1", ProgramID: "p1", Name: "Stage 1", Order: 1}

	stage1 := "s1"
	minHours := 5.0
	f.lessons.lessons["l1"] = &models.Lesson{ID: "l1", ProgramID: "p1", StageID: &stage1, Code: "L1", Title: "Basics", Type: models.LessonTypeFlight, SortOrder: 1, Active: true}
	f.lessons.lessons["l2"] = &models.Lesson{ID: "l2", ProgramID: "p1", StageID: &stage1, Code: "L2", Title: "Circuits", Type: models.LessonTypeFlight, SortOrder: 2, Active: true}
	f.lessons.lessons["l3"] = &models.Lesson{ID: "l3", ProgramID: "p1", StageID: &stage1, Code: "L3", Title: "Solo", Type: models.LessonTypeFlight, SortOrder: 3, MinHoursBefore: &minHours, Active: true}
	f.lessons.edges["l2"] = []string{"l1"}

	stageID := "s1"
	f.enrollments.enrollments["e1"] = &models.StudentEnrollment{
		ID: "e1", StudentID: "student-1", ProgramID: "p1",
		Status:         models.EnrollmentStatusActive,
		CurrentStageID: &stageID,
		Version:        1,
	}

	f.svc = NewProgressService(f.enrollments, programs, f.lessons, f.completions, f.checks, f.cache, time.Minute, nil, nil)
	return f
}

func TestProgressProjectsLessonAvailability(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()

	progress, err := f.svc.Get(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, progress.Lessons, 3)

	byID := make(map[string]models.LessonProgress, len(progress.Lessons))
	for _, lp := range progress.Lessons {
		byID[lp.LessonID] = lp
	}

	require.Equal(t, models.LessonAvailable, byID["l1"].Status)
	require.Equal(t, models.LessonLocked, byID["l2"].Status)
	require.Equal(t, []string{"l1"}, byID["l2"].MissingPrerequisites)
	require.Equal(t, models.LessonLocked, byID["l3"].Status)
	require.Equal(t, 5.0, byID["l3"].HoursRequired)
	require.Equal(t, 0.0, byID["l3"].HoursCurrent)

	require.Len(t, progress.Stages, 1)
	require.True(t, progress.Stages[0].Current)
	require.Equal(t, 3, progress.Stages[0].LessonsTotal)
	require.Zero(t, progress.Stages[0].LessonsCompleted)
}

func TestProgressUnlocksAfterPass(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()

	pass := models.ResultPass
	grade := 88.0
	require.NoError(t, f.completions.Create(ctx, &models.LessonCompletion{
		EnrollmentID: "e1", LessonID: "l1", AttemptNumber: 1,
		Status: models.CompletionStatusCompleted, Result: &pass, OverallGrade: &grade,
	}))
	f.enrollments.enrollments["e1"].Total = 6.0

	progress, err := f.svc.Get(ctx, "e1")
	require.NoError(t, err)

	byID := make(map[string]models.LessonProgress, len(progress.Lessons))
	for _, lp := range progress.Lessons {
		byID[lp.LessonID] = lp
	}

	require.Equal(t, models.LessonCompleted, byID["l1"].Status)
	require.NotNil(t, byID["l1"].BestGrade)
	require.Equal(t, 88.0, *byID["l1"].BestGrade)
	require.Equal(t, 1, byID["l1"].Attempts)
	require.Equal(t, models.LessonAvailable, byID["l2"].Status)
	require.Equal(t, models.LessonAvailable, byID["l3"].Status)
	require.Equal(t, 1, progress.Stages[0].LessonsCompleted)
}

func TestProgressMarksExhaustedLessonFailed(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()

	maxAttempts := 2
	passing := 70.0
	f.lessons.lessons["l1"].MaxAttempts = &maxAttempts
	f.lessons.lessons["l1"].MinPassingGrade = &passing

	fail := models.ResultFail
	for attempt := 1; attempt <= 2; attempt++ {
		require.NoError(t, f.completions.Create(ctx, &models.LessonCompletion{
			EnrollmentID: "e1", LessonID: "l1", AttemptNumber: attempt,
			Status: models.CompletionStatusCompleted, Result: &fail,
		}))
	}

	progress, err := f.svc.Get(ctx, "e1")
	require.NoError(t, err)
	for _, lp := range progress.Lessons {
		if lp.LessonID == "l1" {
			require.Equal(t, models.LessonFailed, lp.Status)
			require.Equal(t, 2, lp.Attempts)
		}
	}
}

func TestProgressReflectsLatestStageCheck(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()

	require.NoError(t, f.checks.Create(ctx, &models.StageCheck{
		EnrollmentID: "e1", StageID: "s1", AttemptNumber: 1, MaxAttempts: 3,
		Status: models.StageCheckStatusCompleted, IsPassed: false,
	}))
	require.NoError(t, f.checks.Create(ctx, &models.StageCheck{
		EnrollmentID: "e1", StageID: "s1", AttemptNumber: 2, MaxAttempts: 3,
		Status: models.StageCheckStatusCompleted, IsPassed: true,
	}))

	progress, err := f.svc.Get(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, progress.Stages, 1)
	require.NotNil(t, progress.Stages[0].CheckStatus)
	require.Equal(t, models.StageCheckStatusCompleted, *progress.Stages[0].CheckStatus)
	require.True(t, progress.Stages[0].CheckPassed)
}

func TestProgressCachesProjection(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, 1, f.cache.misses)
	require.Zero(t, f.cache.hits)

	cached, err := f.svc.Get(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, 1, f.cache.hits)
	require.Equal(t, "e1", cached.EnrollmentID)

	f.svc.Invalidate(ctx, "e1")
	require.Equal(t, 1, f.cache.deletes)

	_, err = f.svc.Get(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, 2, f.cache.misses)
}

// failingEnrollmentStore simulates an unreachable backing store.
type failingEnrollmentStore struct{}

func (failingEnrollmentStore) FindByID(ctx context.Context, id string) (*models.StudentEnrollment, error) {
	return nil, errors.New("connection reset by peer")
}

func TestProgressDistinguishesMissingEnrollmentFromStoreFailure(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, "no-such-enrollment")
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	broken := NewProgressService(failingEnrollmentStore{}, newMemProgramStore(), f.lessons,
		f.completions, f.checks, nil, time.Minute, nil, nil)
	_, err = broken.Get(ctx, "e1")
	require.True(t, appErrors.Is(err, appErrors.ErrInternal))
	require.False(t, appErrors.Is(err, appErrors.ErrNotFound))
}
