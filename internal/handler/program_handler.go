package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Okan-wqm/avinor-sub001/internal/dto"
	"github.com/Okan-wqm/avinor-sub001/internal/models"
	"github.com/Okan-wqm/avinor-sub001/internal/service"
	appErrors "github.com/Okan-wqm/avinor-sub001/pkg/errors"
	"github.com/Okan-wqm/avinor-sub001/pkg/response"
)

// ProgramHandler exposes curriculum management endpoints.
type ProgramHandler struct {
	curriculum *service.CurriculumService
}

// NewProgramHandler constructs ProgramHandler.
func NewProgramHandler(curriculum *service.CurriculumService) *ProgramHandler {
	return &ProgramHandler{curriculum: curriculum}
}

// List godoc
// @Summary List training programs
// @Tags Programs
// @Produce json
// @Param status query string false "Filter by status"
// @Param type query string false "Filter by program type"
// @Param search query string false "Search by name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /programs [get]
func (h *ProgramHandler) List(c *gin.Context) {
	var filter models.ProgramFilter
	filter.Status = models.ProgramStatus(strings.ToUpper(c.Query("status")))
	filter.ProgramType = c.Query("type")
	filter.Search = c.Query("search")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	programs, total, err := h.curriculum.ListPrograms(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, programs, pagination)
}

// Get godoc
// @Summary Get program with stages
// @Tags Programs
// @Produce json
// @Param id path string true "Program ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /programs/{id} [get]
func (h *ProgramHandler) Get(c *gin.Context) {
	program, err := h.curriculum.GetProgram(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, program, nil)
}

// Create godoc
// @Summary Create a draft program
// @Tags Programs
// @Accept json
// @Produce json
// @Param payload body dto.CreateProgramRequest true "Program payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /programs [post]
func (h *ProgramHandler) Create(c *gin.Context) {
	var req dto.CreateProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	program, err := h.curriculum.CreateProgram(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, program)
}

// Publish godoc
// @Summary Publish a draft program
// @Description Audit the prerequisite graph and move the program to PUBLISHED
// @Tags Programs
// @Produce json
// @Param id path string true "Program ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /programs/{id}/publish [post]
func (h *ProgramHandler) Publish(c *gin.Context) {
	program, err := h.curriculum.PublishProgram(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, program, nil)
}

// CreateStage godoc
// @Summary Add a stage to a program
// @Tags Programs
// @Accept json
// @Produce json
// @Param id path string true "Program ID"
// @Param payload body dto.CreateStageRequest true "Stage payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /programs/{id}/stages [post]
func (h *ProgramHandler) CreateStage(c *gin.Context) {
	var req dto.CreateStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	stage, err := h.curriculum.CreateStage(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, stage)
}

// CreateLesson godoc
// @Summary Add a lesson to a program stage
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Program ID"
// @Param payload body dto.CreateLessonRequest true "Lesson payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /programs/{id}/lessons [post]
func (h *ProgramHandler) CreateLesson(c *gin.Context) {
	var req dto.CreateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lesson, err := h.curriculum.CreateLesson(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// GetLesson godoc
// @Summary Get a lesson with exercises and prerequisites
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id} [get]
func (h *ProgramHandler) GetLesson(c *gin.Context) {
	lesson, err := h.curriculum.GetLesson(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// CreateExercise godoc
// @Summary Add an exercise to a lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body dto.CreateExerciseRequest true "Exercise payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /lessons/{id}/exercises [post]
func (h *ProgramHandler) CreateExercise(c *gin.Context) {
	var req dto.CreateExerciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	exercise, err := h.curriculum.CreateExercise(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, exercise)
}

// AddPrerequisite godoc
// @Summary Add a prerequisite edge to a lesson
// @Description Rejected when the edge would introduce a cycle
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body dto.AddPrerequisiteRequest true "Prerequisite payload"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /lessons/{id}/prerequisites [post]
func (h *ProgramHandler) AddPrerequisite(c *gin.Context) {
	var req dto.AddPrerequisiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.curriculum.AddPrerequisite(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemovePrerequisite godoc
// @Summary Remove a prerequisite edge from a lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Param prerequisiteId path string true "Prerequisite lesson ID"
// @Success 204 {object} response.Envelope
// @Router /lessons/{id}/prerequisites/{prerequisiteId} [delete]
func (h *ProgramHandler) RemovePrerequisite(c *gin.Context) {
	if err := h.curriculum.RemovePrerequisite(c.Request.Context(), c.Param("id"), c.Param("prerequisiteId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AuditGraph godoc
// @Summary Audit the prerequisite graph of a program
// @Description Returns the lessons involved in cycles, empty when the graph is sound
// @Tags Programs
// @Produce json
// @Param id path string true "Program ID"
// @Success 200 {object} response.Envelope
// @Router /programs/{id}/graph/audit [get]
func (h *ProgramHandler) AuditGraph(c *gin.Context) {
	cyclic, err := h.curriculum.AuditGraph(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"sound": len(cyclic) == 0, "cyclic_lessons": cyclic}, nil)
}
