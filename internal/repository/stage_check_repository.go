package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Okan-wqm/avinor-sub001/internal/models"
)

const stageCheckColumns = `id, enrollment_id, stage_id, check_type, attempt_number, max_attempts,
        examiner_id, scheduled_at, started_at, completed_at, status, result, is_passed,
        oral_grade, flight_grade, overall_grade, min_passing_grade,
        prerequisites_verified, prerequisites_verified_at, previous_attempt_id,
        failure_reasons, recheck_items, created_at, updated_at`

// StageCheckRepository handles persistence of stage check attempts.
type StageCheckRepository struct {
	db *sqlx.DB
}

// NewStageCheckRepository constructs the repository.
func NewStageCheckRepository(db *sqlx.DB) *StageCheckRepository {
	return &StageCheckRepository{db: db}
}

// FindByID returns a stage check by its ID.
func (r *StageCheckRepository) FindByID(ctx context.Context, id string) (*models.StageCheck, error) {
	query := fmt.Sprintf(`SELECT %s FROM stage_checks WHERE id = $1`, stageCheckColumns)
	var check models.StageCheck
	if err := r.db.GetContext(ctx, &check, query, id); err != nil {
		return nil, err
	}
	return &check, nil
}

// List returns stage checks filtered by the provided criteria.
func (r *StageCheckRepository) List(ctx context.Context, filter models.StageCheckFilter) ([]models.StageCheck, int, error) {
	var conditions []string
	var args []interface{}

	if filter.EnrollmentID != "" {
		conditions = append(conditions, fmt.Sprintf("enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.StageID != "" {
		conditions = append(conditions, fmt.Sprintf("stage_id = $%d", len(args)+1))
		args = append(args, filter.StageID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM stage_checks%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		stageCheckColumns, clause, size, offset)

	var checks []models.StageCheck
	if err := r.db.SelectContext(ctx, &checks, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list stage checks: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM stage_checks" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count stage checks: %w", err)
	}
	return checks, total, nil
}

// ListByEnrollment returns every stage check for an enrollment.
func (r *StageCheckRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.StageCheck, error) {
	query := fmt.Sprintf(`SELECT %s FROM stage_checks WHERE enrollment_id = $1 ORDER BY created_at ASC`, stageCheckColumns)
	var checks []models.StageCheck
	if err := r.db.SelectContext(ctx, &checks, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment stage checks: %w", err)
	}
	return checks, nil
}

// ExistsOpen checks whether a scheduled or in-progress check exists for the
// (enrollment, stage) pair.
func (r *StageCheckRepository) ExistsOpen(ctx context.Context, enrollmentID, stageID string) (bool, error) {
	const query = `SELECT 1 FROM stage_checks WHERE enrollment_id = $1 AND stage_id = $2 AND status IN ($3, $4) LIMIT 1`
	var exists int
	err := r.db.GetContext(ctx, &exists, query, enrollmentID, stageID,
		models.StageCheckStatusScheduled, models.StageCheckStatusInProgress)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check open stage check: %w", err)
	}
	return true, nil
}

// CountAttempts returns the number of non-cancelled checks for the
// (enrollment, stage) pair.
func (r *StageCheckRepository) CountAttempts(ctx context.Context, enrollmentID, stageID string) (int, error) {
	const query = `SELECT COUNT(*) FROM stage_checks WHERE enrollment_id = $1 AND stage_id = $2 AND status <> $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, enrollmentID, stageID, models.StageCheckStatusCancelled); err != nil {
		return 0, fmt.Errorf("count stage check attempts: %w", err)
	}
	return count, nil
}

// Create persists a new stage check attempt.
func (r *StageCheckRepository) Create(ctx context.Context, check *models.StageCheck) error {
	if check.ID == "" {
		check.ID = uuid.NewString()
	}
	if check.Status == "" {
		check.Status = models.StageCheckStatusScheduled
	}
	now := time.Now().UTC()
	check.CreatedAt = now
	check.UpdatedAt = now
	const query = `INSERT INTO stage_checks (id, enrollment_id, stage_id, check_type, attempt_number, max_attempts,
        examiner_id, scheduled_at, started_at, completed_at, status, result, is_passed,
        oral_grade, flight_grade, overall_grade, min_passing_grade,
        prerequisites_verified, prerequisites_verified_at, previous_attempt_id,
        failure_reasons, recheck_items, created_at, updated_at)
        VALUES (:id, :enrollment_id, :stage_id, :check_type, :attempt_number, :max_attempts,
        :examiner_id, :scheduled_at, :started_at, :completed_at, :status, :result, :is_passed,
        :oral_grade, :flight_grade, :overall_grade, :min_passing_grade,
        :prerequisites_verified, :prerequisites_verified_at, :previous_attempt_id,
        :failure_reasons, :recheck_items, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, check); err != nil {
		return fmt.Errorf("create stage check: %w", err)
	}
	return nil
}

// Update writes the mutable state of a stage check.
func (r *StageCheckRepository) Update(ctx context.Context, check *models.StageCheck) error {
	check.UpdatedAt = time.Now().UTC()
	const query = `UPDATE stage_checks SET
        examiner_id = :examiner_id, scheduled_at = :scheduled_at, started_at = :started_at,
        completed_at = :completed_at, status = :status, result = :result, is_passed = :is_passed,
        oral_grade = :oral_grade, flight_grade = :flight_grade, overall_grade = :overall_grade,
        prerequisites_verified = :prerequisites_verified, prerequisites_verified_at = :prerequisites_verified_at,
        failure_reasons = :failure_reasons, recheck_items = :recheck_items, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, check); err != nil {
		return fmt.Errorf("update stage check: %w", err)
	}
	return nil
}
