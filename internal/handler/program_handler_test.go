package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Okan-wqm/avinor-sub001/internal/middleware"
	"github.com/Okan-wqm/avinor-sub001/internal/models"
	"github.com/Okan-wqm/avinor-sub001/internal/service"
)

type stubProgramStore struct {
	programs map[string]*models.Program
	stages   map[string]*models.Stage
}

func (s *stubProgramStore) List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error) {
	var out []models.Program
	for _, p := range s.programs {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (s *stubProgramStore) FindByID(ctx context.Context, id string) (*models.Program, error) {
	p, ok := s.programs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *p
	return &clone, nil
}

func (s *stubProgramStore) Create(ctx context.Context, program *models.Program) error {
	if program.ID == "" {
		program.ID = "prog-1"
	}
	s.programs[program.ID] = program
	return nil
}

func (s *stubProgramStore) UpdateStatus(ctx context.Context, id string, status models.ProgramStatus) error {
	p, ok := s.programs[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Status = status
	return nil
}

func (s *stubProgramStore) CreateStage(ctx context.Context, stage *models.Stage) error {
	s.stages[stage.ID] = stage
	return nil
}

func (s *stubProgramStore) FindStageByID(ctx context.Context, id string) (*models.Stage, error) {
	st, ok := s.stages[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return st, nil
}

func (s *stubProgramStore) ListStages(ctx context.Context, programID string) ([]models.Stage, error) {
	var out []models.Stage
	for _, st := range s.stages {
		if st.ProgramID == programID {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (s *stubProgramStore) ExistsStageOrder(ctx context.Context, programID string, order int) (bool, error) {
	return false, nil
}

type stubLessonStore struct {
	lessons map[string]*models.Lesson
	edges   map[string][]string
}

func (s *stubLessonStore) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	l, ok := s.lessons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *l
	return &clone, nil
}

func (s *stubLessonStore) List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error) {
	var out []models.Lesson
	for _, l := range s.lessons {
		if filter.ProgramID != "" && l.ProgramID != filter.ProgramID {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}

func (s *stubLessonStore) Create(ctx context.Context, lesson *models.Lesson) error {
	s.lessons[lesson.ID] = lesson
	return nil
}

func (s *stubLessonStore) AddPrerequisite(ctx context.Context, lessonID, prerequisiteID string) error {
	s.edges[lessonID] = append(s.edges[lessonID], prerequisiteID)
	return nil
}

func (s *stubLessonStore) RemovePrerequisite(ctx context.Context, lessonID, prerequisiteID string) error {
	return nil
}

func (s *stubLessonStore) ListPrerequisiteEdges(ctx context.Context, programID string) (map[string][]string, error) {
	out := make(map[string][]string, len(s.edges))
	for k, v := range s.edges {
		out[k] = append([]string(nil), v...)
	}
	return out, nil
}

func (s *stubLessonStore) ListPrerequisites(ctx context.Context, lessonID string) ([]string, error) {
	return append([]string(nil), s.edges[lessonID]...), nil
}

func (s *stubLessonStore) CreateExercise(ctx context.Context, exercise *models.Exercise) error {
	return nil
}

func (s *stubLessonStore) ListExercises(ctx context.Context, lessonID string) ([]models.Exercise, error) {
	return nil, nil
}

func (s *stubLessonStore) FirstActiveLesson(ctx context.Context, stageID string) (*models.Lesson, error) {
	return nil, sql.ErrNoRows
}

func buildProgramRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	programs := &stubProgramStore{programs: map[string]*models.Program{}, stages: map[string]*models.Stage{}}
	lessons := &stubLessonStore{
		lessons: map[string]*models.Lesson{
			"l1": {ID: "l1", ProgramID: "p1"},
			"l2": {ID: "l2", ProgramID: "p1"},
		},
		edges: map[string][]string{"l2": {"l1"}},
	}
	h := NewProgramHandler(service.NewCurriculumService(programs, lessons, nil, nil))

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "test-user", Role: models.UserRole(role)})
		}
		c.Next()
	})

	admin := middleware.RequireRoles(models.RoleAdmin)
	router.GET("/programs", h.List)
	router.GET("/programs/:id", h.Get)
	router.POST("/programs", admin, h.Create)
	router.POST("/lessons/:id/prerequisites", admin, h.AddPrerequisite)
	return router
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestProgramRoutes(t *testing.T) {
	router := buildProgramRouter(t)

	t.Run("create requires admin role", func(t *testing.T) {
		body := bytes.NewBufferString(`{"code":"PPL","name":"Private Pilot","programType":"PPL"}`)
		req, _ := http.NewRequest(http.MethodPost, "/programs", body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("create rejects unauthenticated", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/programs", bytes.NewBufferString(`{}`))
		req.Header.Set("Content-Type", "application/json")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("create success", func(t *testing.T) {
		body := bytes.NewBufferString(`{"code":"PPL","name":"Private Pilot","programType":"PPL"}`)
		req, _ := http.NewRequest(http.MethodPost, "/programs", body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusCreated, resp.Code)
		require.Contains(t, resp.Body.String(), `"code":"PPL"`)
	})

	t.Run("create validation error", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/programs", bytes.NewBufferString(`{"code":"PPL"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusBadRequest, resp.Code)
		require.Contains(t, resp.Body.String(), "VALIDATION_ERROR")
	})

	t.Run("get unknown program", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/programs/nope", nil)
		req.Header.Set("X-Test-Role", string(models.RoleInstructor))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusNotFound, resp.Code)
		require.Contains(t, resp.Body.String(), "NOT_FOUND")
	})

	t.Run("prerequisite cycle maps to conflict", func(t *testing.T) {
		body := bytes.NewBufferString(`{"prerequisiteId":"l2"}`)
		req, _ := http.NewRequest(http.MethodPost, "/lessons/l1/prerequisites", body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusConflict, resp.Code)
		require.Contains(t, resp.Body.String(), "CYCLE")
	})
}
