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

const completionColumns = `id, enrollment_id, lesson_id, attempt_number, instructor_id,
        scheduled_at, started_at, completed_at, status, result, overall_grade,
        time_flight, time_ground, time_simulator, time_dual, time_solo, time_pic,
        time_cross_country, time_night, time_instrument, landings_count,
        instructor_signed, student_signed, comments, created_at, updated_at`

// CompletionRepository handles persistence of lesson attempts and their
// exercise grades.
type CompletionRepository struct {
	db *sqlx.DB
}

// NewCompletionRepository constructs the repository.
func NewCompletionRepository(db *sqlx.DB) *CompletionRepository {
	return &CompletionRepository{db: db}
}

// FindByID returns a completion by its ID.
func (r *CompletionRepository) FindByID(ctx context.Context, id string) (*models.LessonCompletion, error) {
	query := fmt.Sprintf(`SELECT %s FROM lesson_completions WHERE id = $1`, completionColumns)
	var completion models.LessonCompletion
	if err := r.db.GetContext(ctx, &completion, query, id); err != nil {
		return nil, err
	}
	return &completion, nil
}

// List returns completions filtered by the provided criteria.
func (r *CompletionRepository) List(ctx context.Context, filter models.CompletionFilter) ([]models.LessonCompletion, int, error) {
	var conditions []string
	var args []interface{}

	if filter.EnrollmentID != "" {
		conditions = append(conditions, fmt.Sprintf("enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.LessonID != "" {
		conditions = append(conditions, fmt.Sprintf("lesson_id = $%d", len(args)+1))
		args = append(args, filter.LessonID)
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

	query := fmt.Sprintf(`SELECT %s FROM lesson_completions%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		completionColumns, clause, size, offset)

	var completions []models.LessonCompletion
	if err := r.db.SelectContext(ctx, &completions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list completions: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM lesson_completions" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count completions: %w", err)
	}
	return completions, total, nil
}

// ListByEnrollment returns every completion for an enrollment.
func (r *CompletionRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.LessonCompletion, error) {
	query := fmt.Sprintf(`SELECT %s FROM lesson_completions WHERE enrollment_id = $1 ORDER BY created_at ASC`, completionColumns)
	var completions []models.LessonCompletion
	if err := r.db.SelectContext(ctx, &completions, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment completions: %w", err)
	}
	return completions, nil
}

// ExistsOpen checks whether a scheduled or in-progress attempt exists for
// the (enrollment, lesson) pair.
func (r *CompletionRepository) ExistsOpen(ctx context.Context, enrollmentID, lessonID string) (bool, error) {
	const query = `SELECT 1 FROM lesson_completions WHERE enrollment_id = $1 AND lesson_id = $2 AND status IN ($3, $4) LIMIT 1`
	var exists int
	err := r.db.GetContext(ctx, &exists, query, enrollmentID, lessonID,
		models.CompletionStatusScheduled, models.CompletionStatusInProgress)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check open attempt: %w", err)
	}
	return true, nil
}

// CountSlotConsuming returns the number of prior attempts that count against
// the lesson's attempt budget (everything except cancellations).
func (r *CompletionRepository) CountSlotConsuming(ctx context.Context, enrollmentID, lessonID string) (int, error) {
	const query = `SELECT COUNT(*) FROM lesson_completions WHERE enrollment_id = $1 AND lesson_id = $2 AND status <> $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, enrollmentID, lessonID, models.CompletionStatusCancelled); err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return count, nil
}

// Create persists a new attempt record.
func (r *CompletionRepository) Create(ctx context.Context, completion *models.LessonCompletion) error {
	if completion.ID == "" {
		completion.ID = uuid.NewString()
	}
	if completion.Status == "" {
		completion.Status = models.CompletionStatusScheduled
	}
	now := time.Now().UTC()
	completion.CreatedAt = now
	completion.UpdatedAt = now
	const query = `INSERT INTO lesson_completions (id, enrollment_id, lesson_id, attempt_number, instructor_id,
        scheduled_at, started_at, completed_at, status, result, overall_grade,
        time_flight, time_ground, time_simulator, time_dual, time_solo, time_pic,
        time_cross_country, time_night, time_instrument, landings_count,
        instructor_signed, student_signed, comments, created_at, updated_at)
        VALUES (:id, :enrollment_id, :lesson_id, :attempt_number, :instructor_id,
        :scheduled_at, :started_at, :completed_at, :status, :result, :overall_grade,
        :time_flight, :time_ground, :time_simulator, :time_dual, :time_solo, :time_pic,
        :time_cross_country, :time_night, :time_instrument, :landings_count,
        :instructor_signed, :student_signed, :comments, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, completion); err != nil {
		return fmt.Errorf("create completion: %w", err)
	}
	return nil
}

// Update writes the mutable state of an attempt.
func (r *CompletionRepository) Update(ctx context.Context, completion *models.LessonCompletion) error {
	completion.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lesson_completions SET
        instructor_id = :instructor_id, scheduled_at = :scheduled_at, started_at = :started_at,
        completed_at = :completed_at, status = :status, result = :result, overall_grade = :overall_grade,
        time_flight = :time_flight, time_ground = :time_ground, time_simulator = :time_simulator,
        time_dual = :time_dual, time_solo = :time_solo, time_pic = :time_pic,
        time_cross_country = :time_cross_country, time_night = :time_night, time_instrument = :time_instrument,
        landings_count = :landings_count, instructor_signed = :instructor_signed,
        student_signed = :student_signed, comments = :comments, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, completion); err != nil {
		return fmt.Errorf("update completion: %w", err)
	}
	return nil
}

// UpsertExerciseGrade inserts or replaces the grade for one exercise within
// a completion.
func (r *CompletionRepository) UpsertExerciseGrade(ctx context.Context, grade *models.ExerciseGrade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	grade.CreatedAt = now
	grade.UpdatedAt = now
	const query = `INSERT INTO exercise_grades (id, completion_id, exercise_id, grade, competency_level,
        successful_demonstrations, total_demonstrations, deviations, is_passed, comments, created_at, updated_at)
        VALUES (:id, :completion_id, :exercise_id, :grade, :competency_level,
        :successful_demonstrations, :total_demonstrations, :deviations, :is_passed, :comments, :created_at, :updated_at)
        ON CONFLICT (completion_id, exercise_id) DO UPDATE SET
        grade = EXCLUDED.grade, competency_level = EXCLUDED.competency_level,
        successful_demonstrations = EXCLUDED.successful_demonstrations,
        total_demonstrations = EXCLUDED.total_demonstrations, deviations = EXCLUDED.deviations,
        is_passed = EXCLUDED.is_passed, comments = EXCLUDED.comments, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("upsert exercise grade: %w", err)
	}
	return nil
}

// ListExerciseGrades returns the exercise grades of a completion.
func (r *CompletionRepository) ListExerciseGrades(ctx context.Context, completionID string) ([]models.ExerciseGrade, error) {
	const query = `SELECT id, completion_id, exercise_id, grade, competency_level,
        successful_demonstrations, total_demonstrations, deviations, is_passed, comments, created_at, updated_at
        FROM exercise_grades WHERE completion_id = $1`
	var grades []models.ExerciseGrade
	if err := r.db.SelectContext(ctx, &grades, query, completionID); err != nil {
		return nil, fmt.Errorf("list exercise grades: %w", err)
	}
	return grades, nil
}
