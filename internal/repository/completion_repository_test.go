package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/Okan-wqm/avinor-sub001/internal/models"
)

func TestCompletionRepositoryCountSlotConsuming(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCompletionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM lesson_completions WHERE enrollment_id = $1 AND lesson_id = $2 AND status <> $3")).
		WithArgs("enr-1", "les-1", models.CompletionStatusCancelled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountSlotConsuming(context.Background(), "enr-1", "les-1")
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletionRepositoryExistsOpen(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCompletionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM lesson_completions WHERE enrollment_id = $1 AND lesson_id = $2 AND status IN ($3, $4) LIMIT 1")).
		WithArgs("enr-1", "les-1", models.CompletionStatusScheduled, models.CompletionStatusInProgress).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsOpen(context.Background(), "enr-1", "les-1")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletionRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCompletionRepository(db)

	mock.ExpectExec("INSERT INTO lesson_completions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	completion := &models.LessonCompletion{
		EnrollmentID:  "enr-1",
		LessonID:      "les-1",
		AttemptNumber: 1,
	}
	require.NoError(t, repo.Create(context.Background(), completion))
	require.NotEmpty(t, completion.ID)
	require.Equal(t, models.CompletionStatusScheduled, completion.Status)
	require.False(t, completion.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletionRepositoryUpsertExerciseGrade(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCompletionRepository(db)

	mock.ExpectExec("INSERT INTO exercise_grades").
		WillReturnResult(sqlmock.NewResult(0, 1))

	grade := 82.0
	g := &models.ExerciseGrade{
		CompletionID: "comp-1",
		ExerciseID:   "ex-1",
		Grade:        &grade,
		IsPassed:     true,
	}
	require.NoError(t, repo.UpsertExerciseGrade(context.Background(), g))
	require.NotEmpty(t, g.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
