package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Okan-wqm/avinor-sub001/internal/models"
)

// ErrVersionConflict signals a lost optimistic-lock race on an enrollment
// row; callers reload and retry.
var ErrVersionConflict = errors.New("enrollment version conflict")

const enrollmentColumns = `id, student_id, program_id, status, enrolled_at, started_at, expires_at,
        completed_at, current_stage_id, current_lesson_id,
        hours_total, hours_dual, hours_solo, hours_pic, hours_cross_country,
        hours_night, hours_instrument, hours_simulator, hours_ground, landings_total,
        lessons_completed, lessons_total, completion_percentage, average_grade,
        stage_checks_passed, stage_checks_failed, version, created_at, updated_at`

// EnrollmentRepository handles persistence of student enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.StudentEnrollment, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ProgramID != "" {
		conditions = append(conditions, fmt.Sprintf("program_id = $%d", len(args)+1))
		args = append(args, filter.ProgramID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":           "enrolled_at",
		"completion_percentage": "completion_percentage",
		"status":                "status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT %s FROM enrollments%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		enrollmentColumns, clause, orderBy, order, size, offset)

	var enrollments []models.StudentEnrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM enrollments" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.StudentEnrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.StudentEnrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ExistsOpen checks if a pending/active/on-hold enrollment exists for the
// (student, program) pair.
func (r *EnrollmentRepository) ExistsOpen(ctx context.Context, studentID, programID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND program_id = $2 AND status IN ($3, $4, $5) LIMIT 1`
	var exists int
	err := r.db.GetContext(ctx, &exists, query, studentID, programID,
		models.EnrollmentStatusPending, models.EnrollmentStatusActive, models.EnrollmentStatusOnHold)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check open enrollment: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.StudentEnrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusPending
	}
	enrollment.Version = 1
	now := time.Now().UTC()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, student_id, program_id, status, enrolled_at, started_at, expires_at,
        completed_at, current_stage_id, current_lesson_id,
        hours_total, hours_dual, hours_solo, hours_pic, hours_cross_country,
        hours_night, hours_instrument, hours_simulator, hours_ground, landings_total,
        lessons_completed, lessons_total, completion_percentage, average_grade,
        stage_checks_passed, stage_checks_failed, version, created_at, updated_at)
        VALUES (:id, :student_id, :program_id, :status, :enrolled_at, :started_at, :expires_at,
        :completed_at, :current_stage_id, :current_lesson_id,
        :hours_total, :hours_dual, :hours_solo, :hours_pic, :hours_cross_country,
        :hours_night, :hours_instrument, :hours_simulator, :hours_ground, :landings_total,
        :lessons_completed, :lessons_total, :completion_percentage, :average_grade,
        :stage_checks_passed, :stage_checks_failed, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Save writes the full mutable state of an enrollment guarded by the version
// column. On success the in-memory version is bumped; ErrVersionConflict is
// returned when another writer won the race.
func (r *EnrollmentRepository) Save(ctx context.Context, enrollment *models.StudentEnrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollments SET
        status = :status, started_at = :started_at, expires_at = :expires_at, completed_at = :completed_at,
        current_stage_id = :current_stage_id, current_lesson_id = :current_lesson_id,
        hours_total = :hours_total, hours_dual = :hours_dual, hours_solo = :hours_solo,
        hours_pic = :hours_pic, hours_cross_country = :hours_cross_country, hours_night = :hours_night,
        hours_instrument = :hours_instrument, hours_simulator = :hours_simulator, hours_ground = :hours_ground,
        landings_total = :landings_total, lessons_completed = :lessons_completed, lessons_total = :lessons_total,
        completion_percentage = :completion_percentage, average_grade = :average_grade,
        stage_checks_passed = :stage_checks_passed, stage_checks_failed = :stage_checks_failed,
        version = version + 1, updated_at = :updated_at
        WHERE id = :id AND version = :version`
	result, err := r.db.NamedExecContext(ctx, query, enrollment)
	if err != nil {
		return fmt.Errorf("save enrollment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save enrollment rows: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	enrollment.Version++
	return nil
}

// ExpireOverdue moves open enrollments whose expiry date passed into the
// EXPIRED status, returning the affected count. Triggered by an explicit
// administrative batch call, never by an internal timer.
func (r *EnrollmentRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE enrollments SET status = $1, version = version + 1, updated_at = $2
        WHERE expires_at IS NOT NULL AND expires_at < $2 AND status IN ($3, $4, $5)`
	result, err := r.db.ExecContext(ctx, query, models.EnrollmentStatusExpired, now,
		models.EnrollmentStatusPending, models.EnrollmentStatusActive, models.EnrollmentStatusOnHold)
	if err != nil {
		return 0, fmt.Errorf("expire enrollments: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire enrollments rows: %w", err)
	}
	return affected, nil
}

// CountByStatus returns enrollment counts grouped by status.
func (r *EnrollmentRepository) CountByStatus(ctx context.Context) (map[models.EnrollmentStatus]int, error) {
	const query = `SELECT status, COUNT(*) FROM enrollments GROUP BY status`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count enrollments by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.EnrollmentStatus]int)
	for rows.Next() {
		var status models.EnrollmentStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan enrollment count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollment counts: %w", err)
	}
	return counts, nil
}
