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

const lessonColumns = `id, program_id, stage_id, code, title, lesson_type, sort_order,
        min_hours_before, min_passing_grade, max_attempts, active, created_at, updated_at`

// LessonRepository handles persistence of lessons, prerequisite edges and
// exercises.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// FindByID returns a lesson by its ID.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	query := fmt.Sprintf(`SELECT %s FROM lessons WHERE id = $1`, lessonColumns)
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// List returns lessons filtered by the provided criteria, ordered by stage
// and sort order.
func (r *LessonRepository) List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error) {
	var conditions []string
	var args []interface{}

	if filter.ProgramID != "" {
		conditions = append(conditions, fmt.Sprintf("program_id = $%d", len(args)+1))
		args = append(args, filter.ProgramID)
	}
	if filter.StageID != "" {
		conditions = append(conditions, fmt.Sprintf("stage_id = $%d", len(args)+1))
		args = append(args, filter.StageID)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("lesson_type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`SELECT %s FROM lessons%s ORDER BY sort_order ASC, code ASC`, lessonColumns, clause)
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, args...); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

// Create persists a new lesson.
func (r *LessonRepository) Create(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	lesson.CreatedAt = now
	lesson.UpdatedAt = now
	const query = `INSERT INTO lessons (id, program_id, stage_id, code, title, lesson_type, sort_order,
        min_hours_before, min_passing_grade, max_attempts, active, created_at, updated_at)
        VALUES (:id, :program_id, :stage_id, :code, :title, :lesson_type, :sort_order,
        :min_hours_before, :min_passing_grade, :max_attempts, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	return nil
}

// CountActiveByProgram returns the number of active lessons in a program.
func (r *LessonRepository) CountActiveByProgram(ctx context.Context, programID string) (int, error) {
	const query = `SELECT COUNT(*) FROM lessons WHERE program_id = $1 AND active = TRUE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, programID); err != nil {
		return 0, fmt.Errorf("count active lessons: %w", err)
	}
	return count, nil
}

// AddPrerequisite inserts a prerequisite edge.
func (r *LessonRepository) AddPrerequisite(ctx context.Context, lessonID, prerequisiteID string) error {
	const query = `INSERT INTO lesson_prerequisites (lesson_id, prerequisite_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, lessonID, prerequisiteID); err != nil {
		return fmt.Errorf("add prerequisite: %w", err)
	}
	return nil
}

// RemovePrerequisite deletes a prerequisite edge.
func (r *LessonRepository) RemovePrerequisite(ctx context.Context, lessonID, prerequisiteID string) error {
	const query = `DELETE FROM lesson_prerequisites WHERE lesson_id = $1 AND prerequisite_id = $2`
	if _, err := r.db.ExecContext(ctx, query, lessonID, prerequisiteID); err != nil {
		return fmt.Errorf("remove prerequisite: %w", err)
	}
	return nil
}

// ListPrerequisiteEdges returns the full prerequisite edge set for a program
// keyed by lesson, so graph walks run against one consistent snapshot.
func (r *LessonRepository) ListPrerequisiteEdges(ctx context.Context, programID string) (map[string][]string, error) {
	const query = `SELECT p.lesson_id, p.prerequisite_id FROM lesson_prerequisites p
        JOIN lessons l ON l.id = p.lesson_id
        WHERE l.program_id = $1`
	rows, err := r.db.QueryxContext(ctx, query, programID)
	if err != nil {
		return nil, fmt.Errorf("list prerequisite edges: %w", err)
	}
	defer rows.Close()

	edges := make(map[string][]string)
	for rows.Next() {
		var lessonID, prerequisiteID string
		if err := rows.Scan(&lessonID, &prerequisiteID); err != nil {
			return nil, fmt.Errorf("scan prerequisite edge: %w", err)
		}
		edges[lessonID] = append(edges[lessonID], prerequisiteID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prerequisite edges: %w", err)
	}
	return edges, nil
}

// ListPrerequisites returns the prerequisite lesson IDs for one lesson.
func (r *LessonRepository) ListPrerequisites(ctx context.Context, lessonID string) ([]string, error) {
	const query = `SELECT prerequisite_id FROM lesson_prerequisites WHERE lesson_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, lessonID); err != nil {
		return nil, fmt.Errorf("list prerequisites: %w", err)
	}
	return ids, nil
}

// CreateExercise persists a new exercise for a lesson.
func (r *LessonRepository) CreateExercise(ctx context.Context, exercise *models.Exercise) error {
	if exercise.ID == "" {
		exercise.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	exercise.CreatedAt = now
	exercise.UpdatedAt = now
	const query = `INSERT INTO exercises (id, lesson_id, code, title, grading_scale, min_grade,
        min_demonstrations, weight, sort_order, created_at, updated_at)
        VALUES (:id, :lesson_id, :code, :title, :grading_scale, :min_grade,
        :min_demonstrations, :weight, :sort_order, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, exercise); err != nil {
		return fmt.Errorf("create exercise: %w", err)
	}
	return nil
}

// FindExerciseByID returns an exercise by its ID.
func (r *LessonRepository) FindExerciseByID(ctx context.Context, id string) (*models.Exercise, error) {
	const query = `SELECT id, lesson_id, code, title, grading_scale, min_grade,
        min_demonstrations, weight, sort_order, created_at, updated_at FROM exercises WHERE id = $1`
	var exercise models.Exercise
	if err := r.db.GetContext(ctx, &exercise, query, id); err != nil {
		return nil, err
	}
	return &exercise, nil
}

// ListExercises returns a lesson's exercises ordered by sort order.
func (r *LessonRepository) ListExercises(ctx context.Context, lessonID string) ([]models.Exercise, error) {
	const query = `SELECT id, lesson_id, code, title, grading_scale, min_grade,
        min_demonstrations, weight, sort_order, created_at, updated_at
        FROM exercises WHERE lesson_id = $1 ORDER BY sort_order ASC`
	var exercises []models.Exercise
	if err := r.db.SelectContext(ctx, &exercises, query, lessonID); err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	return exercises, nil
}

// FirstActiveLesson returns the lowest sort-order active lesson of a stage,
// or nil when the stage has none.
func (r *LessonRepository) FirstActiveLesson(ctx context.Context, stageID string) (*models.Lesson, error) {
	query := fmt.Sprintf(`SELECT %s FROM lessons WHERE stage_id = $1 AND active = TRUE ORDER BY sort_order ASC LIMIT 1`, lessonColumns)
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, stageID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("first active lesson: %w", err)
	}
	return &lesson, nil
}
