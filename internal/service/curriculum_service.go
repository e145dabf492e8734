package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Okan-wqm/avinor-sub001/internal/dto"
	"github.com/Okan-wqm/avinor-sub001/internal/models"
	appErrors "github.com/Okan-wqm/avinor-sub001/pkg/errors"
)

type curriculumProgramStore interface {
	List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error)
	FindByID(ctx context.Context, id string) (*models.Program, error)
	Create(ctx context.Context, program *models.Program) error
	UpdateStatus(ctx context.Context, id string, status models.ProgramStatus) error
	CreateStage(ctx context.Context, stage *models.Stage) error
	FindStageByID(ctx context.Context, id string) (*models.Stage, error)
	ListStages(ctx context.Context, programID string) ([]models.Stage, error)
	ExistsStageOrder(ctx context.Context, programID string, order int) (bool, error)
}

type curriculumLessonStore interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error)
	Create(ctx context.Context, lesson *models.Lesson) error
	AddPrerequisite(ctx context.Context, lessonID, prerequisiteID string) error
	RemovePrerequisite(ctx context.Context, lessonID, prerequisiteID string) error
	ListPrerequisiteEdges(ctx context.Context, programID string) (map[string][]string, error)
	ListPrerequisites(ctx context.Context, lessonID string) ([]string, error)
	CreateExercise(ctx context.Context, exercise *models.Exercise) error
	ListExercises(ctx context.Context, lessonID string) ([]models.Exercise, error)
	FirstActiveLesson(ctx context.Context, stageID string) (*models.Lesson, error)
}

// CurriculumService manages programs, stages, lessons, exercises and the
// prerequisite graph. Edge insertion is serialised per program so that two
// concurrent inserts cannot slip a cycle past the acyclicity check.
type CurriculumService struct {
	programs  curriculumProgramStore
	lessons   curriculumLessonStore
	validator *validator.Validate
	logger    *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCurriculumService constructs the service.
func NewCurriculumService(programs curriculumProgramStore, lessons curriculumLessonStore, validate *validator.Validate, logger *zap.Logger) *CurriculumService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CurriculumService{
		programs:  programs,
		lessons:   lessons,
		validator: validate,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *CurriculumService) programLock(programID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[programID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[programID] = lock
	}
	return lock
}

// ListPrograms returns programs matching the filter.
func (s *CurriculumService) ListPrograms(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error) {
	programs, total, err := s.programs.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list programs")
	}
	return programs, total, nil
}

// GetProgram returns a program with its ordered stages.
func (s *CurriculumService) GetProgram(ctx context.Context, id string) (*models.Program, error) {
	program, err := s.programs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	stages, err := s.programs.ListStages(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stages")
	}
	program.Stages = stages
	return program, nil
}

// CreateProgram registers a new program in DRAFT status.
func (s *CurriculumService) CreateProgram(ctx context.Context, req dto.CreateProgramRequest) (*models.Program, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid program payload")
	}
	program := &models.Program{
		Code:                 req.Code,
		Name:                 req.Name,
		ProgramType:          req.ProgramType,
		Status:               models.ProgramStatusDraft,
		MinTotalHours:        req.MinTotalHours,
		MinDualHours:         req.MinDualHours,
		MinSoloHours:         req.MinSoloHours,
		MinPICHours:          req.MinPICHours,
		MinCrossCountryHours: req.MinCrossCountryHours,
		MinNightHours:        req.MinNightHours,
		MinInstrumentHours:   req.MinInstrumentHours,
		MinSimulatorHours:    req.MinSimulatorHours,
		MinGroundHours:       req.MinGroundHours,
	}
	if err := s.programs.Create(ctx, program); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create program")
	}
	return program, nil
}

// PublishProgram moves a draft program to PUBLISHED after validating that it
// has at least one stage, at least one active lesson and an acyclic
// prerequisite graph.
func (s *CurriculumService) PublishProgram(ctx context.Context, id string) (*models.Program, error) {
	program, err := s.GetProgram(ctx, id)
	if err != nil {
		return nil, err
	}
	if program.Status == models.ProgramStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "program is already published")
	}
	if len(program.Stages) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "program has no stages")
	}
	active := true
	lessons, err := s.lessons.List(ctx, models.LessonFilter{ProgramID: id, Active: &active})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	if len(lessons) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "program has no active lessons")
	}
	if cycle, err := s.AuditGraph(ctx, id); err != nil {
		return nil, err
	} else if len(cycle) > 0 {
		return nil, appErrors.Clone(appErrors.ErrCycle, fmt.Sprintf("prerequisite graph contains a cycle through %s", cycle[0]))
	}
	if err := s.programs.UpdateStatus(ctx, id, models.ProgramStatusPublished); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish program")
	}
	program.Status = models.ProgramStatusPublished
	return program, nil
}

// CreateStage appends a stage to a program. Stage orders are unique within
// the program.
func (s *CurriculumService) CreateStage(ctx context.Context, programID string, req dto.CreateStageRequest) (*models.Stage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid stage payload")
	}
	if _, err := s.GetProgram(ctx, programID); err != nil {
		return nil, err
	}
	taken, err := s.programs.ExistsStageOrder(ctx, programID, req.Order)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check stage order")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("stage order %d is already used", req.Order))
	}
	stage := &models.Stage{
		ProgramID: programID,
		Name:      req.Name,
		Order:     req.Order,
	}
	if err := s.programs.CreateStage(ctx, stage); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create stage")
	}
	return stage, nil
}

// CreateLesson adds a lesson to a program, optionally bound to a stage.
func (s *CurriculumService) CreateLesson(ctx context.Context, programID string, req dto.CreateLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	if _, err := s.GetProgram(ctx, programID); err != nil {
		return nil, err
	}
	var stageID *string
	if req.StageID != "" {
		stage, err := s.programs.FindStageByID(ctx, req.StageID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "stage not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stage")
		}
		if stage.ProgramID != programID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "stage belongs to a different program")
		}
		stageID = &stage.ID
	}
	lesson := &models.Lesson{
		ProgramID:       programID,
		StageID:         stageID,
		Code:            req.Code,
		Title:           req.Title,
		Type:            models.LessonType(req.Type),
		SortOrder:       req.SortOrder,
		MinHoursBefore:  req.MinHoursBefore,
		MinPassingGrade: req.MinPassingGrade,
		MaxAttempts:     req.MaxAttempts,
		Active:          true,
	}
	if err := s.lessons.Create(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}
	return lesson, nil
}

// GetLesson returns a lesson with its prerequisites and exercises.
func (s *CurriculumService) GetLesson(ctx context.Context, id string) (*models.Lesson, error) {
	lesson, err := s.lessons.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	prereqs, err := s.lessons.ListPrerequisites(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisites")
	}
	lesson.PrerequisiteIDs = prereqs
	exercises, err := s.lessons.ListExercises(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exercises")
	}
	lesson.Exercises = exercises
	return lesson, nil
}

// CreateExercise adds an exercise to a lesson.
func (s *CurriculumService) CreateExercise(ctx context.Context, lessonID string, req dto.CreateExerciseRequest) (*models.Exercise, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exercise payload")
	}
	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	exercise := &models.Exercise{
		LessonID:          lesson.ID,
		Code:              req.Code,
		Title:             req.Title,
		Scale:             models.GradingScale(req.GradingScale),
		MinGrade:          req.MinGrade,
		MinDemonstrations: req.MinDemonstrations,
		Weight:            req.Weight,
		SortOrder:         req.SortOrder,
	}
	if err := s.lessons.CreateExercise(ctx, exercise); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exercise")
	}
	return exercise, nil
}

// AddPrerequisite inserts a prerequisite edge after proving the graph stays
// acyclic with the candidate edge in place. Self edges are rejected outright.
func (s *CurriculumService) AddPrerequisite(ctx context.Context, lessonID string, req dto.AddPrerequisiteRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid prerequisite payload")
	}
	if lessonID == req.PrerequisiteID {
		return appErrors.Clone(appErrors.ErrCycle, "a lesson cannot be its own prerequisite")
	}
	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	prereq, err := s.lessons.FindByID(ctx, req.PrerequisiteID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "prerequisite lesson not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite lesson")
	}
	if lesson.ProgramID != prereq.ProgramID {
		return appErrors.Clone(appErrors.ErrValidation, "prerequisite must belong to the same program")
	}

	lock := s.programLock(lesson.ProgramID)
	lock.Lock()
	defer lock.Unlock()

	edges, err := s.lessons.ListPrerequisiteEdges(ctx, lesson.ProgramID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite graph")
	}
	edges[lessonID] = append(edges[lessonID], req.PrerequisiteID)
	if reachesTarget(edges, req.PrerequisiteID, lessonID) {
		return appErrors.Clone(appErrors.ErrCycle, fmt.Sprintf("adding %s as prerequisite of %s creates a cycle", req.PrerequisiteID, lessonID))
	}

	if err := s.lessons.AddPrerequisite(ctx, lessonID, req.PrerequisiteID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add prerequisite")
	}
	return nil
}

// RemovePrerequisite deletes a prerequisite edge. Removal can never create a
// cycle so no graph check runs.
func (s *CurriculumService) RemovePrerequisite(ctx context.Context, lessonID, prerequisiteID string) error {
	if err := s.lessons.RemovePrerequisite(ctx, lessonID, prerequisiteID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove prerequisite")
	}
	return nil
}

// AuditGraph walks the whole prerequisite graph of a program and returns the
// lessons involved in a cycle, empty when the graph is sound.
func (s *CurriculumService) AuditGraph(ctx context.Context, programID string) ([]string, error) {
	edges, err := s.lessons.ListPrerequisiteEdges(ctx, programID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite graph")
	}

	const (
		white = 0
		grey  = 1
		black = 2
	)
	colors := make(map[string]int, len(edges))
	var cycle []string

	var visit func(node string) bool
	visit = func(node string) bool {
		colors[node] = grey
		for _, next := range edges[node] {
			switch colors[next] {
			case grey:
				cycle = append(cycle, next)
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		colors[node] = black
		return false
	}

	for node := range edges {
		if colors[node] == white {
			if visit(node) {
				break
			}
		}
	}
	return cycle, nil
}

// CheckPrerequisites evaluates a lesson's gates for an enrollment: every
// prerequisite lesson passed at least once, and the cumulative hours floor.
func (s *CurriculumService) CheckPrerequisites(ctx context.Context, lesson *models.Lesson, enrollment *models.StudentEnrollment, completions []models.LessonCompletion) (*models.PrerequisiteCheck, error) {
	prereqs, err := s.lessons.ListPrerequisites(ctx, lesson.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisites")
	}

	passed := make(map[string]bool, len(completions))
	for i := range completions {
		c := &completions[i]
		if c.Status != models.CompletionStatusCompleted {
			continue
		}
		target, err := s.lessons.FindByID(ctx, c.LessonID)
		if err != nil {
			continue
		}
		if c.IsPassed(target.MinPassingGrade) {
			passed[c.LessonID] = true
		}
	}

	check := &models.PrerequisiteCheck{Met: true}
	for _, id := range prereqs {
		if !passed[id] {
			check.Met = false
			check.MissingLessonIDs = append(check.MissingLessonIDs, id)
		}
	}
	if lesson.MinHoursBefore != nil {
		check.HoursRequired = *lesson.MinHoursBefore
		check.HoursCurrent = enrollment.Total
		if enrollment.Total < *lesson.MinHoursBefore {
			check.Met = false
		}
	}
	return check, nil
}

// NextStage returns the stage following the given one in program order, nil
// when the stage is the last.
func (s *CurriculumService) NextStage(ctx context.Context, stage *models.Stage) (*models.Stage, error) {
	stages, err := s.programs.ListStages(ctx, stage.ProgramID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stages")
	}
	for i := range stages {
		if stages[i].ID == stage.ID && i+1 < len(stages) {
			return &stages[i+1], nil
		}
	}
	return nil, nil
}

// FirstLessonOfStage resolves the entry lesson of a stage, nil when the stage
// has no active lessons.
func (s *CurriculumService) FirstLessonOfStage(ctx context.Context, stageID string) (*models.Lesson, error) {
	lesson, err := s.lessons.FirstActiveLesson(ctx, stageID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve first lesson")
	}
	return lesson, nil
}

// reachesTarget reports whether target is reachable from start over the edge
// map. Used to prove a candidate edge keeps the graph acyclic.
func reachesTarget(edges map[string][]string, start, target string) bool {
	seen := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node == target {
			return true
		}
		for _, next := range edges[node] {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}
