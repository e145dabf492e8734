package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/Okan-wqm/avinor-sub001/internal/models"
)

func TestStageCheckRepositoryCountAttempts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStageCheckRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM stage_checks WHERE enrollment_id = $1 AND stage_id = $2 AND status <> $3")).
		WithArgs("enr-1", "stg-1", models.StageCheckStatusCancelled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	count, err := repo.CountAttempts(context.Background(), "enr-1", "stg-1")
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStageCheckRepositoryExistsOpenNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStageCheckRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM stage_checks")).
		WithArgs("enr-1", "stg-1", models.StageCheckStatusScheduled, models.StageCheckStatusInProgress).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.ExistsOpen(context.Background(), "enr-1", "stg-1")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStageCheckRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStageCheckRepository(db)

	mock.ExpectExec("INSERT INTO stage_checks").
		WillReturnResult(sqlmock.NewResult(0, 1))

	check := &models.StageCheck{
		EnrollmentID:    "enr-1",
		StageID:         "stg-1",
		CheckType:       "STAGE_CHECK",
		AttemptNumber:   1,
		MaxAttempts:     3,
		MinPassingGrade: 70,
	}
	require.NoError(t, repo.Create(context.Background(), check))
	require.NotEmpty(t, check.ID)
	require.Equal(t, models.StageCheckStatusScheduled, check.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
