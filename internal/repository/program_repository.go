package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Okan-wqm/avinor-sub001/internal/models"
)

const programColumns = `id, code, name, program_type, status,
        min_total_hours, min_dual_hours, min_solo_hours, min_pic_hours,
        min_cross_country_hours, min_night_hours, min_instrument_hours,
        min_simulator_hours, min_ground_hours, created_at, updated_at`

// ProgramRepository handles persistence of programs and their stages.
type ProgramRepository struct {
	db *sqlx.DB
}

// NewProgramRepository constructs the repository.
func NewProgramRepository(db *sqlx.DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

// List returns programs filtered by the provided criteria.
func (r *ProgramRepository) List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.ProgramType != "" {
		conditions = append(conditions, fmt.Sprintf("program_type = $%d", len(args)+1))
		args = append(args, filter.ProgramType)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
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

	query := fmt.Sprintf(`SELECT %s FROM programs%s ORDER BY code ASC LIMIT %d OFFSET %d`, programColumns, clause, size, offset)

	var programs []models.Program
	if err := r.db.SelectContext(ctx, &programs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list programs: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM programs" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count programs: %w", err)
	}
	return programs, total, nil
}

// FindByID returns a program by its ID.
func (r *ProgramRepository) FindByID(ctx context.Context, id string) (*models.Program, error) {
	query := fmt.Sprintf(`SELECT %s FROM programs WHERE id = $1`, programColumns)
	var program models.Program
	if err := r.db.GetContext(ctx, &program, query, id); err != nil {
		return nil, err
	}
	return &program, nil
}

// Create persists a new program in draft status.
func (r *ProgramRepository) Create(ctx context.Context, program *models.Program) error {
	if program.ID == "" {
		program.ID = uuid.NewString()
	}
	if program.Status == "" {
		program.Status = models.ProgramStatusDraft
	}
	now := time.Now().UTC()
	program.CreatedAt = now
	program.UpdatedAt = now
	const query = `INSERT INTO programs (id, code, name, program_type, status,
        min_total_hours, min_dual_hours, min_solo_hours, min_pic_hours,
        min_cross_country_hours, min_night_hours, min_instrument_hours,
        min_simulator_hours, min_ground_hours, created_at, updated_at)
        VALUES (:id, :code, :name, :program_type, :status,
        :min_total_hours, :min_dual_hours, :min_solo_hours, :min_pic_hours,
        :min_cross_country_hours, :min_night_hours, :min_instrument_hours,
        :min_simulator_hours, :min_ground_hours, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, program); err != nil {
		return fmt.Errorf("create program: %w", err)
	}
	return nil
}

// UpdateStatus moves a program between authoring statuses.
func (r *ProgramRepository) UpdateStatus(ctx context.Context, id string, status models.ProgramStatus) error {
	const query = `UPDATE programs SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update program status: %w", err)
	}
	return nil
}

// CreateStage persists a stage; uniqueness of (program_id, stage_order) is
// enforced by the database.
func (r *ProgramRepository) CreateStage(ctx context.Context, stage *models.Stage) error {
	if stage.ID == "" {
		stage.ID = uuid.NewString()
	}
	stage.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO stages (id, program_id, name, stage_order, created_at)
        VALUES (:id, :program_id, :name, :stage_order, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, stage); err != nil {
		return fmt.Errorf("create stage: %w", err)
	}
	return nil
}

// FindStageByID returns a stage by its ID.
func (r *ProgramRepository) FindStageByID(ctx context.Context, id string) (*models.Stage, error) {
	const query = `SELECT id, program_id, name, stage_order, created_at FROM stages WHERE id = $1`
	var stage models.Stage
	if err := r.db.GetContext(ctx, &stage, query, id); err != nil {
		return nil, err
	}
	return &stage, nil
}

// ListStages returns a program's stages ordered by stage_order.
func (r *ProgramRepository) ListStages(ctx context.Context, programID string) ([]models.Stage, error) {
	const query = `SELECT id, program_id, name, stage_order, created_at FROM stages WHERE program_id = $1 ORDER BY stage_order ASC`
	var stages []models.Stage
	if err := r.db.SelectContext(ctx, &stages, query, programID); err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	return stages, nil
}

// ExistsStageOrder checks whether a stage order is already taken in a program.
func (r *ProgramRepository) ExistsStageOrder(ctx context.Context, programID string, order int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM stages WHERE program_id = $1 AND stage_order = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, programID, order); err != nil {
		return false, fmt.Errorf("check stage order: %w", err)
	}
	return exists, nil
}
