package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Okan-wqm/avinor-sub001/internal/dto"
	"github.com/Okan-wqm/avinor-sub001/internal/models"
	appErrors "github.com/Okan-wqm/avinor-sub001/pkg/errors"
)

func seedLesson(t *testing.T, store *memLessonStore, id, programID, code string, sortOrder int) *models.Lesson {
	t.Helper()
	lesson := &models.Lesson{
		ID:        id,
		ProgramID: programID,
		Code:      code,
		Title:     code,
		Type:      models.LessonTypeFlight,
		SortOrder: sortOrder,
		Active:    true,
	}
	require.NoError(t, store.Create(context.Background(), lesson))
	return lesson
}

func TestAddPrerequisiteRejectsSelfEdge(t *testing.T) {
	lessons := newMemLessonStore()
	svc := NewCurriculumService(newMemProgramStore(), lessons, nil, nil)
	seedLesson(t, lessons, "l1", "p1", "L1", 1)

	err := svc.AddPrerequisite(context.Background(), "l1", dto.AddPrerequisiteRequest{PrerequisiteID: "l1"})
	require.True(t, appErrors.Is(err, appErrors.ErrCycle))
}

func TestAddPrerequisiteRejectsCycle(t *testing.T) {
	lessons := newMemLessonStore()
	svc := NewCurriculumService(newMemProgramStore(), lessons, nil, nil)
	ctx := context.Background()

	seedLesson(t, lessons, "l1", "p1", "L1", 1)
	seedLesson(t, lessons, "l2", "p1", "L2", 2)
	seedLesson(t, lessons, "l3", "p1", "L3", 3)

	require.NoError(t, svc.AddPrerequisite(ctx, "l2", dto.AddPrerequisiteRequest{PrerequisiteID: "l1"}))
	require.NoError(t, svc.AddPrerequisite(ctx, "l3", dto.AddPrerequisiteRequest{PrerequisiteID: "l2"}))

	// l1 <- l2 <- l3, so l3 as prerequisite of l1 would close the loop.
	err := svc.AddPrerequisite(ctx, "l1", dto.AddPrerequisiteRequest{PrerequisiteID: "l3"})
	require.True(t, appErrors.Is(err, appErrors.ErrCycle))

	// The rejected edge must not have been persisted.
	prereqs, listErr := lessons.ListPrerequisites(ctx, "l1")
	require.NoError(t, listErr)
	require.Empty(t, prereqs)

	cycle, auditErr := svc.AuditGraph(ctx, "p1")
	require.NoError(t, auditErr)
	require.Empty(t, cycle)
}

func TestAddPrerequisiteRejectsCrossProgram(t *testing.T) {
	lessons := newMemLessonStore()
	svc := NewCurriculumService(newMemProgramStore(), lessons, nil, nil)

	seedLesson(t, lessons, "l1", "p1", "L1", 1)
	seedLesson(t, lessons, "x1", "p2", "X1", 1)

	err := svc.AddPrerequisite(context.Background(), "l1", dto.AddPrerequisiteRequest{PrerequisiteID: "x1"})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAuditGraphReportsCycle(t *testing.T) {
	lessons := newMemLessonStore()
	svc := NewCurriculumService(newMemProgramStore(), lessons, nil, nil)
	ctx := context.Background()

	seedLesson(t, lessons, "l1", "p1", "L1", 1)
	seedLesson(t, lessons, "l2", "p1", "L2", 2)
	lessons.edges["l1"] = []string{"l2"}
	lessons.edges["l2"] = []string{"l1"}

	cycle, err := svc.AuditGraph(ctx, "p1")
	require.NoError(t, err)
	require.NotEmpty(t, cycle)
}

func TestCheckPrerequisitesGates(t *testing.T) {
	lessons := newMemLessonStore()
	svc := NewCurriculumService(newMemProgramStore(), lessons, nil, nil)
	ctx := context.Background()

	seedLesson(t, lessons, "l1", "p1", "L1", 1)
	minHours := 5.0
	l2 := seedLesson(t, lessons, "l2", "p1", "L2", 2)
	l2.MinHoursBefore = &minHours
	require.NoError(t, svc.AddPrerequisite(ctx, "l2", dto.AddPrerequisiteRequest{PrerequisiteID: "l1"}))

	enrollment := &models.StudentEnrollment{ID: "e1", ProgramID: "p1"}

	check, err := svc.CheckPrerequisites(ctx, l2, enrollment, nil)
	require.NoError(t, err)
	require.False(t, check.Met)
	require.Equal(t, []string{"l1"}, check.MissingLessonIDs)
	require.Equal(t, 5.0, check.HoursRequired)
	require.Equal(t, 0.0, check.HoursCurrent)

	result := models.ResultPass
	history := []models.LessonCompletion{{
		ID:           "c1",
		EnrollmentID: "e1",
		LessonID:     "l1",
		Status:       models.CompletionStatusCompleted,
		Result:       &result,
	}}
	enrollment.Total = 6.0

	check, err = svc.CheckPrerequisites(ctx, l2, enrollment, history)
	require.NoError(t, err)
	require.True(t, check.Met)
	require.Empty(t, check.MissingLessonIDs)
	require.Equal(t, 6.0, check.HoursCurrent)
}

func TestCheckPrerequisitesIgnoresFailedAttempts(t *testing.T) {
	lessons := newMemLessonStore()
	svc := NewCurriculumService(newMemProgramStore(), lessons, nil, nil)
	ctx := context.Background()

	seedLesson(t, lessons, "l1", "p1", "L1", 1)
	l2 := seedLesson(t, lessons, "l2", "p1", "L2", 2)
	require.NoError(t, svc.AddPrerequisite(ctx, "l2", dto.AddPrerequisiteRequest{PrerequisiteID: "l1"}))

	result := models.ResultFail
	history := []models.LessonCompletion{{
		ID:           "c1",
		EnrollmentID: "e1",
		LessonID:     "l1",
		Status:       models.CompletionStatusCompleted,
		Result:       &result,
	}}

	check, err := svc.CheckPrerequisites(ctx, l2, &models.StudentEnrollment{ID: "e1", ProgramID: "p1"}, history)
	require.NoError(t, err)
	require.False(t, check.Met)
	require.Equal(t, []string{"l1"}, check.MissingLessonIDs)
}

func TestPublishProgramRequiresSoundGraph(t *testing.T) {
	programs := newMemProgramStore()
	lessons := newMemLessonStore()
	svc := NewCurriculumService(programs, lessons, nil, nil)
	ctx := context.Background()

	program := &models.Program{ID: "p1", Code: "PPL", Name: "Private Pilot", Status: models.ProgramStatusDraft}
	require.NoError(t, programs.Create(ctx, program))
	require.NoError(t, programs.CreateStage(ctx, &models.Stage{ID: "s1", ProgramID: "p1", Name: "Stage 1", Order: 1}))
	seedLesson(t, lessons, "l1", "p1", "L1", 1)
	seedLesson(t, lessons, "l2", "p1", "L2", 2)
	lessons.edges["l1"] = []string{"l2"}
	lessons.edges["l2"] = []string{"l1"}

	_, err := svc.PublishProgram(ctx, "p1")
	require.True(t, appErrors.Is(err, appErrors.ErrCycle))

	lessons.edges = map[string][]string{"l2": {"l1"}}
	published, err := svc.PublishProgram(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, models.ProgramStatusPublished, published.Status)
}

func TestCreateStageRejectsDuplicateOrder(t *testing.T) {
	programs := newMemProgramStore()
	svc := NewCurriculumService(programs, newMemLessonStore(), nil, nil)
	ctx := context.Background()

	require.NoError(t, programs.Create(ctx, &models.Program{ID: "p1", Code: "PPL", Name: "Private Pilot"}))
	_, err := svc.CreateStage(ctx, "p1", dto.CreateStageRequest{Name: "Stage 1", Order: 1})
	require.NoError(t, err)

	_, err = svc.CreateStage(ctx, "p1", dto.CreateStageRequest{Name: "Another", Order: 1})
	require.True(t, appErrors.Is(err, appErrors.ErrConflict))
}
