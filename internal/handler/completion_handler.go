package handler

import (
	"context"
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

// CompletionHandler exposes lesson attempt endpoints.
type CompletionHandler struct {
	completions *service.CompletionService
}

// NewCompletionHandler constructs CompletionHandler.
func NewCompletionHandler(completions *service.CompletionService) *CompletionHandler {
	return &CompletionHandler{completions: completions}
}

// closeRequest is the optional payload for the terminal attempt transitions.
type closeRequest struct {
	Comments string `json:"comments"`
}

// List godoc
// @Summary List lesson attempts
// @Tags Completions
// @Produce json
// @Param enrollmentId query string false "Filter by enrollment"
// @Param lessonId query string false "Filter by lesson"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /completions [get]
func (h *CompletionHandler) List(c *gin.Context) {
	var filter models.CompletionFilter
	filter.EnrollmentID = c.Query("enrollmentId")
	filter.LessonID = c.Query("lessonId")
	filter.Status = models.CompletionStatus(strings.ToUpper(c.Query("status")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	completions, total, err := h.completions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, completions, pagination)
}

// Get godoc
// @Summary Get a lesson attempt with exercise grades
// @Tags Completions
// @Produce json
// @Param id path string true "Completion ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /completions/{id} [get]
func (h *CompletionHandler) Get(c *gin.Context) {
	completion, err := h.completions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, completion, nil)
}

// Create godoc
// @Summary Schedule a lesson attempt
// @Description Enforces prerequisites, the single open attempt rule and the attempt limit
// @Tags Completions
// @Accept json
// @Produce json
// @Param payload body dto.CreateCompletionRequest true "Attempt payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /completions [post]
func (h *CompletionHandler) Create(c *gin.Context) {
	var req dto.CreateCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	completion, err := h.completions.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, completion)
}

// Start godoc
// @Summary Start a scheduled attempt
// @Tags Completions
// @Produce json
// @Param id path string true "Completion ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /completions/{id}/start [post]
func (h *CompletionHandler) Start(c *gin.Context) {
	completion, err := h.completions.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, completion, nil)
}

// GradeExercise godoc
// @Summary Grade an exercise within an attempt
// @Tags Completions
// @Accept json
// @Produce json
// @Param id path string true "Completion ID"
// @Param payload body dto.GradeExerciseRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /completions/{id}/grades [put]
func (h *CompletionHandler) GradeExercise(c *gin.Context) {
	var req dto.GradeExerciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.completions.GradeExercise(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Complete godoc
// @Summary Finalise an attempt
// @Description Aggregates exercise grades, logs hours and advances the enrollment on a pass
// @Tags Completions
// @Accept json
// @Produce json
// @Param id path string true "Completion ID"
// @Param payload body dto.CompleteLessonRequest true "Completion payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /completions/{id}/complete [post]
func (h *CompletionHandler) Complete(c *gin.Context) {
	var req dto.CompleteLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	completion, err := h.completions.Complete(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, completion, nil)
}

// MarkIncomplete godoc
// @Summary Mark an attempt incomplete
// @Tags Completions
// @Accept json
// @Produce json
// @Param id path string true "Completion ID"
// @Success 200 {object} response.Envelope
// @Router /completions/{id}/incomplete [post]
func (h *CompletionHandler) MarkIncomplete(c *gin.Context) {
	h.close(c, h.completions.MarkIncomplete)
}

// Cancel godoc
// @Summary Cancel a scheduled attempt
// @Description Cancelled attempts release their attempt slot
// @Tags Completions
// @Accept json
// @Produce json
// @Param id path string true "Completion ID"
// @Success 200 {object} response.Envelope
// @Router /completions/{id}/cancel [post]
func (h *CompletionHandler) Cancel(c *gin.Context) {
	h.close(c, h.completions.Cancel)
}

// NoShow godoc
// @Summary Record a no-show for a scheduled attempt
// @Tags Completions
// @Accept json
// @Produce json
// @Param id path string true "Completion ID"
// @Success 200 {object} response.Envelope
// @Router /completions/{id}/no-show [post]
func (h *CompletionHandler) NoShow(c *gin.Context) {
	h.close(c, h.completions.NoShow)
}

func (h *CompletionHandler) close(c *gin.Context, op func(ctx context.Context, id, comments string) (*models.LessonCompletion, error)) {
	var req closeRequest
	_ = c.ShouldBindJSON(&req)

	completion, err := op(c.Request.Context(), c.Param("id"), req.Comments)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, completion, nil)
}
