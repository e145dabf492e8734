package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Okan-wqm/avinor-sub001/internal/dto"
	"github.com/Okan-wqm/avinor-sub001/internal/models"
	appErrors "github.com/Okan-wqm/avinor-sub001/pkg/errors"
)

type stageCheckFixture struct {
	svc         *StageCheckService
	enrollSvc   *EnrollmentService
	checks      *memStageCheckStore
	completions *memCompletionStore
	lessons     *memLessonStore
	notifier    *captureNotifier
	enrollment  *models.StudentEnrollment
}

// newStageCheckFixture wires a two-stage program with one flight lesson per
// stage and an active enrollment positioned on stage s1.
func newStageCheckFixture(t *testing.T) *stageCheckFixture {
	t.Helper()
	f := &stageCheckFixture{
		checks:      newMemStageCheckStore(),
		completions: newMemCompletionStore(),
		lessons:     newMemLessonStore(),
		notifier:    &captureNotifier{},
	}
	programs := newMemProgramStore()
	users := newMemUserStore()
	enrollments := newMemEnrollmentStore()

	users.users["student-1"] = &models.User{ID: "student-1", Role: models.RoleStudent, Active: true}
	programs.programs["p1"] = &models.Program{ID: "p1", Code: "PPL", Name: "Private Pilot", Status: models.ProgramStatusPublished}
	programs.stages["s1"] = &models.Stage{ID: "s1", ProgramID: "p1", Name: "Stage 1", Order: 1}
	programs.stages["s2"] = &models.Stage{ID: "s2", ProgramID: "p1", Name: "Stage 2", Order: 2}

	stage1, stage2 := "s1", "s2"
	f.lessons.lessons["l1"] = &models.Lesson{ID: "l1", ProgramID: "p1", StageID: &stage1, Code: "L1", Type: models.LessonTypeFlight, SortOrder: 1, Active: true}
	f.lessons.lessons["l2"] = &models.Lesson{ID: "l2", ProgramID: "p1", StageID: &stage2, Code: "L2", Type: models.LessonTypeFlight, SortOrder: 1, Active: true}

	f.enrollSvc = NewEnrollmentService(enrollments, programs, users, f.lessons, f.completions, nil, nil, nil, nil)
	f.svc = NewStageCheckService(f.checks, programs, f.lessons, f.completions, f.enrollSvc, f.notifier, nil,
		StageCheckDefaults{MaxAttempts: 3, MinPassingGrade: 70}, nil, nil)

	ctx := context.Background()
	enrollment, err := f.enrollSvc.Enroll(ctx, dto.CreateEnrollmentRequest{StudentID: "student-1", ProgramID: "p1"})
	require.NoError(t, err)
	f.enrollment, err = f.enrollSvc.Activate(ctx, enrollment.ID)
	require.NoError(t, err)
	return f
}

// passStageLessons records a passing attempt for every lesson of the stage so
// prerequisite verification succeeds.
func (f *stageCheckFixture) passStageLessons(t *testing.T, stageID string) {
	t.Helper()
	pass := models.ResultPass
	for _, lesson := range f.lessons.lessons {
		if lesson.StageID == nil || *lesson.StageID != stageID {
			continue
		}
		require.NoError(t, f.completions.Create(context.Background(), &models.LessonCompletion{
			EnrollmentID: f.enrollment.ID,
			LessonID:     lesson.ID,
			Status:       models.CompletionStatusCompleted,
			Result:       &pass,
		}))
	}
}

func (f *stageCheckFixture) readyCheck(t *testing.T, stageID string) *models.StageCheck {
	t.Helper()
	ctx := context.Background()
	f.passStageLessons(t, stageID)
	check, err := f.svc.Create(ctx, dto.CreateStageCheckRequest{EnrollmentID: f.enrollment.ID, StageID: stageID})
	require.NoError(t, err)
	verified, err := f.svc.VerifyPrerequisites(ctx, check.ID)
	require.NoError(t, err)
	require.True(t, verified.Verified)
	check, err = f.svc.Start(ctx, check.ID)
	require.NoError(t, err)
	return check
}

func TestCreateStageCheckDefaults(t *testing.T) {
	f := newStageCheckFixture(t)

	check, err := f.svc.Create(context.Background(), dto.CreateStageCheckRequest{
		EnrollmentID: f.enrollment.ID,
		StageID:      "s1",
	})
	require.NoError(t, err)
	require.Equal(t, 1, check.AttemptNumber)
	require.Equal(t, 3, check.MaxAttempts)
	require.Equal(t, 70.0, check.MinPassingGrade)
	require.Equal(t, "STAGE_CHECK", check.CheckType)
	require.Equal(t, models.StageCheckStatusScheduled, check.Status)
}

func TestCreateRejectsSecondOpenCheck(t *testing.T) {
	f := newStageCheckFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, dto.CreateStageCheckRequest{EnrollmentID: f.enrollment.ID, StageID: "s1"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, dto.CreateStageCheckRequest{EnrollmentID: f.enrollment.ID, StageID: "s1"})
	require.True(t, appErrors.Is(err, appErrors.ErrDuplicateActiveCheck))
}

func TestStartRequiresVerifiedPrerequisites(t *testing.T) {
	f := newStageCheckFixture(t)
	ctx := context.Background()

	check, err := f.svc.Create(ctx, dto.CreateStageCheckRequest{EnrollmentID: f.enrollment.ID, StageID: "s1"})
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, check.ID)
	require.True(t, appErrors.Is(err, appErrors.ErrPrerequisitesNotVerified))
}

func TestVerifyPrerequisitesReportsUnpassedLessons(t *testing.T) {
	f := newStageCheckFixture(t)
	ctx := context.Background()

	check, err := f.svc.Create(ctx, dto.CreateStageCheckRequest{EnrollmentID: f.enrollment.ID, StageID: "s1"})
	require.NoError(t, err)

	result, err := f.svc.VerifyPrerequisites(ctx, check.ID)
	require.NoError(t, err)
	require.False(t, result.Verified)
	require.Equal(t, []string{"L1"}, result.MissingLessons)

	// The check itself stays unverified and cannot be started.
	got, err := f.svc.Get(ctx, check.ID)
	require.NoError(t, err)
	require.False(t, got.PrerequisitesVerified)
	_, err = f.svc.Start(ctx, check.ID)
	require.True(t, appErrors.Is(err, appErrors.ErrPrerequisitesNotVerified))
}

func TestVerifyPrerequisitesStampsCleanCheck(t *testing.T) {
	f := newStageCheckFixture(t)
	ctx := context.Background()

	f.passStageLessons(t, "s1")
	check, err := f.svc.Create(ctx, dto.CreateStageCheckRequest{EnrollmentID: f.enrollment.ID, StageID: "s1"})
	require.NoError(t, err)

	result, err := f.svc.VerifyPrerequisites(ctx, check.ID)
	require.NoError(t, err)
	require.True(t, result.Verified)
	require.Empty(t, result.MissingLessons)

	got, err := f.svc.Get(ctx, check.ID)
	require.NoError(t, err)
	require.True(t, got.PrerequisitesVerified)
	require.NotNil(t, got.PrerequisitesVerifiedAt)
}

func TestPassAdvancesEnrollmentStage(t *testing.T) {
	f := newStageCheckFixture(t)
	ctx := context.Background()

	check := f.readyCheck(t, "s1")
	grade := 85.0
	passed, err := f.svc.Pass(ctx, check.ID, dto.PassStageCheckRequest{OverallGrade: &grade})
	require.NoError(t, err)
	require.True(t, passed.IsPassed)
	require.Equal(t, models.StageCheckStatusCompleted, passed.Status)

	enrollment, err := f.enrollSvc.Get(ctx, f.enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, 1, enrollment.StageChecksPassed)
	require.NotNil(t, enrollment.CurrentStageID)
	require.Equal(t, "s2", *enrollment.CurrentStageID)
	require.NotNil(t, enrollment.CurrentLessonID)
	require.Equal(t, "l2", *enrollment.CurrentLessonID)

	require.Len(t, f.notifier.events, 1)
	require.Equal(t, models.EventStageCheckPassed, f.notifier.events[0].Type)
}

func TestPassFinalStageClearsPointers(t *testing.T) {
	f := newStageCheckFixture(t)
	ctx := context.Background()

	first := f.readyCheck(t, "s1")
	_, err := f.svc.Pass(ctx, first.ID, dto.PassStageCheckRequest{})
	require.NoError(t, err)

	second := f.readyCheck(t, "s2")
	_, err = f.svc.Pass(ctx, second.ID, dto.PassStageCheckRequest{})
	require.NoError(t, err)

	enrollment, err := f.enrollSvc.Get(ctx, f.enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, 2, enrollment.StageChecksPassed)
	require.Nil(t, enrollment.CurrentStageID)
	require.Nil(t, enrollment.CurrentLessonID)
}

func TestPassRejectsGradeBelowThreshold(t *testing.T) {
	f := newStageCheckFixture(t)

	check := f.readyCheck(t, "s1")
	grade := 65.0
	_, err := f.svc.Pass(context.Background(), check.ID, dto.PassStageCheckRequest{OverallGrade: &grade})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestFailKeepsEnrollmentStage(t *testing.T) {
	f := newStageCheckFixture(t)
	ctx := context.Background()

	check := f.readyCheck(t, "s1")
	failed, err := f.svc.Fail(ctx, check.ID, dto.FailStageCheckRequest{FailureReasons: "steep turns below standard"})
	require.NoError(t, err)
	require.False(t, failed.IsPassed)
	require.Equal(t, models.StageCheckStatusCompleted, failed.Status)

	enrollment, err := f.enrollSvc.Get(ctx, f.enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, 1, enrollment.StageChecksFailed)
	require.Zero(t, enrollment.StageChecksPassed)
	require.NotNil(t, enrollment.CurrentStageID)
	require.Equal(t, "s1", *enrollment.CurrentStageID)

	// A completed check cannot be passed afterwards.
	_, err = f.svc.Pass(ctx, check.ID, dto.PassStageCheckRequest{})
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestCreateRecheckChainsAttempts(t *testing.T) {
	f := newStageCheckFixture(t)
	ctx := context.Background()

	check := f.readyCheck(t, "s1")
	_, err := f.svc.Fail(ctx, check.ID, dto.FailStageCheckRequest{
		FailureReasons: "oral exam incomplete",
		RecheckItems:   "airspace, weather minima",
	})
	require.NoError(t, err)

	recheck, err := f.svc.CreateRecheck(ctx, check.ID, dto.CreateRecheckRequest{})
	require.NoError(t, err)
	require.Equal(t, 2, recheck.AttemptNumber)
	require.Equal(t, 3, recheck.MaxAttempts)
	require.NotNil(t, recheck.PreviousAttemptID)
	require.Equal(t, check.ID, *recheck.PreviousAttemptID)
	require.NotNil(t, recheck.RecheckItems)
	require.Equal(t, "airspace, weather minima", *recheck.RecheckItems)
}

func TestCreateRecheckExhaustsBudget(t *testing.T) {
	f := newStageCheckFixture(t)
	ctx := context.Background()
	f.passStageLessons(t, "s1")

	// Walk the full budget: three failed attempts.
	var last *models.StageCheck
	for attempt := 1; attempt <= 3; attempt++ {
		var check *models.StageCheck
		var err error
		if last == nil {
			check, err = f.svc.Create(ctx, dto.CreateStageCheckRequest{EnrollmentID: f.enrollment.ID, StageID: "s1"})
		} else {
			check, err = f.svc.CreateRecheck(ctx, last.ID, dto.CreateRecheckRequest{})
		}
		require.NoError(t, err)
		require.Equal(t, attempt, check.AttemptNumber)

		_, err = f.svc.VerifyPrerequisites(ctx, check.ID)
		require.NoError(t, err)
		_, err = f.svc.Start(ctx, check.ID)
		require.NoError(t, err)
		last, err = f.svc.Fail(ctx, check.ID, dto.FailStageCheckRequest{FailureReasons: "below standard"})
		require.NoError(t, err)
	}

	_, err := f.svc.CreateRecheck(ctx, last.ID, dto.CreateRecheckRequest{})
	require.True(t, appErrors.Is(err, appErrors.ErrRetryExhausted))

	// The budget also blocks a fresh first check for the pair.
	_, err = f.svc.Create(ctx, dto.CreateStageCheckRequest{EnrollmentID: f.enrollment.ID, StageID: "s1"})
	require.True(t, appErrors.Is(err, appErrors.ErrRetryExhausted))
}

func TestCancelReleasesAttemptSlot(t *testing.T) {
	f := newStageCheckFixture(t)
	ctx := context.Background()

	check, err := f.svc.Create(ctx, dto.CreateStageCheckRequest{EnrollmentID: f.enrollment.ID, StageID: "s1"})
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, check.ID)
	require.NoError(t, err)

	next, err := f.svc.Create(ctx, dto.CreateStageCheckRequest{EnrollmentID: f.enrollment.ID, StageID: "s1"})
	require.NoError(t, err)
	require.Equal(t, 1, next.AttemptNumber)
}

func TestDeferAndReschedule(t *testing.T) {
	f := newStageCheckFixture(t)
	ctx := context.Background()

	check, err := f.svc.Create(ctx, dto.CreateStageCheckRequest{EnrollmentID: f.enrollment.ID, StageID: "s1"})
	require.NoError(t, err)

	deferred, err := f.svc.Defer(ctx, check.ID)
	require.NoError(t, err)
	require.Equal(t, models.StageCheckStatusDeferred, deferred.Status)

	rescheduled, err := f.svc.Reschedule(ctx, check.ID, nil)
	require.NoError(t, err)
	require.Equal(t, models.StageCheckStatusScheduled, rescheduled.Status)
	// Deferrals do not consume attempts; still attempt one of the pair.
	require.Equal(t, 1, rescheduled.AttemptNumber)
}

func TestDeferInProgressCheckResumesViaReschedule(t *testing.T) {
	f := newStageCheckFixture(t)
	ctx := context.Background()

	check := f.readyCheck(t, "s1")
	require.Equal(t, models.StageCheckStatusInProgress, check.Status)

	deferred, err := f.svc.Defer(ctx, check.ID)
	require.NoError(t, err)
	require.Equal(t, models.StageCheckStatusDeferred, deferred.Status)

	// Verification survives the deferral, so the check restarts directly.
	rescheduled, err := f.svc.Reschedule(ctx, check.ID, nil)
	require.NoError(t, err)
	require.True(t, rescheduled.PrerequisitesVerified)
	restarted, err := f.svc.Start(ctx, check.ID)
	require.NoError(t, err)
	require.Equal(t, models.StageCheckStatusInProgress, restarted.Status)
	require.Equal(t, 1, restarted.AttemptNumber)
}

func TestCancelInProgressReleasesAttemptSlot(t *testing.T) {
	f := newStageCheckFixture(t)
	ctx := context.Background()

	check := f.readyCheck(t, "s1")
	cancelled, err := f.svc.Cancel(ctx, check.ID)
	require.NoError(t, err)
	require.Equal(t, models.StageCheckStatusCancelled, cancelled.Status)

	next, err := f.svc.Create(ctx, dto.CreateStageCheckRequest{EnrollmentID: f.enrollment.ID, StageID: "s1"})
	require.NoError(t, err)
	require.Equal(t, 1, next.AttemptNumber)
}
