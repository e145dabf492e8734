package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Okan-wqm/avinor-sub001/internal/dto"
	"github.com/Okan-wqm/avinor-sub001/internal/models"
	"github.com/Okan-wqm/avinor-sub001/internal/service"
	appErrors "github.com/Okan-wqm/avinor-sub001/pkg/errors"
	"github.com/Okan-wqm/avinor-sub001/pkg/response"
)

// StageCheckHandler exposes stage check endpoints.
type StageCheckHandler struct {
	checks *service.StageCheckService
}

// NewStageCheckHandler constructs StageCheckHandler.
func NewStageCheckHandler(checks *service.StageCheckService) *StageCheckHandler {
	return &StageCheckHandler{checks: checks}
}

// List godoc
// @Summary List stage checks
// @Tags StageChecks
// @Produce json
// @Param enrollmentId query string false "Filter by enrollment"
// @Param stageId query string false "Filter by stage"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /stage-checks [get]
func (h *StageCheckHandler) List(c *gin.Context) {
	var filter models.StageCheckFilter
	filter.EnrollmentID = c.Query("enrollmentId")
	filter.StageID = c.Query("stageId")
	filter.Status = models.StageCheckStatus(strings.ToUpper(c.Query("status")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	checks, total, err := h.checks.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, checks, pagination)
}

// Get godoc
// @Summary Get a stage check
// @Tags StageChecks
// @Produce json
// @Param id path string true "Stage check ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /stage-checks/{id} [get]
func (h *StageCheckHandler) Get(c *gin.Context) {
	check, err := h.checks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, check, nil)
}

// Create godoc
// @Summary Schedule a stage check
// @Description Enforces the single open check rule and the attempt budget
// @Tags StageChecks
// @Accept json
// @Produce json
// @Param payload body dto.CreateStageCheckRequest true "Stage check payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /stage-checks [post]
func (h *StageCheckHandler) Create(c *gin.Context) {
	var req dto.CreateStageCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	check, err := h.checks.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, check)
}

// VerifyPrerequisites godoc
// @Summary Verify stage lessons are passed before the check
// @Description Reports the outstanding lesson codes when verification fails
// @Tags StageChecks
// @Produce json
// @Param id path string true "Stage check ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /stage-checks/{id}/verify-prerequisites [post]
func (h *StageCheckHandler) VerifyPrerequisites(c *gin.Context) {
	result, err := h.checks.VerifyPrerequisites(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Start godoc
// @Summary Start a stage check
// @Description Rejected until prerequisites were verified
// @Tags StageChecks
// @Produce json
// @Param id path string true "Stage check ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /stage-checks/{id}/start [post]
func (h *StageCheckHandler) Start(c *gin.Context) {
	check, err := h.checks.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, check, nil)
}

// Pass godoc
// @Summary Record a passed stage check
// @Description Advances the enrollment to the next stage, clears pointers on the final one
// @Tags StageChecks
// @Accept json
// @Produce json
// @Param id path string true "Stage check ID"
// @Param payload body dto.PassStageCheckRequest true "Grades payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /stage-checks/{id}/pass [post]
func (h *StageCheckHandler) Pass(c *gin.Context) {
	var req dto.PassStageCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	check, err := h.checks.Pass(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, check, nil)
}

// Fail godoc
// @Summary Record a failed stage check
// @Tags StageChecks
// @Accept json
// @Produce json
// @Param id path string true "Stage check ID"
// @Param payload body dto.FailStageCheckRequest true "Failure payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /stage-checks/{id}/fail [post]
func (h *StageCheckHandler) Fail(c *gin.Context) {
	var req dto.FailStageCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	check, err := h.checks.Fail(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, check, nil)
}

// Defer godoc
// @Summary Defer a scheduled stage check
// @Tags StageChecks
// @Produce json
// @Param id path string true "Stage check ID"
// @Success 200 {object} response.Envelope
// @Router /stage-checks/{id}/defer [post]
func (h *StageCheckHandler) Defer(c *gin.Context) {
	check, err := h.checks.Defer(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, check, nil)
}

// Reschedule godoc
// @Summary Reschedule a deferred stage check
// @Tags StageChecks
// @Accept json
// @Produce json
// @Param id path string true "Stage check ID"
// @Success 200 {object} response.Envelope
// @Router /stage-checks/{id}/reschedule [post]
func (h *StageCheckHandler) Reschedule(c *gin.Context) {
	var req struct {
		ScheduledAt *time.Time `json:"scheduledAt"`
	}
	_ = c.ShouldBindJSON(&req)

	check, err := h.checks.Reschedule(c.Request.Context(), c.Param("id"), req.ScheduledAt)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, check, nil)
}

// Cancel godoc
// @Summary Cancel a stage check
// @Description Cancelled checks release their attempt slot
// @Tags StageChecks
// @Produce json
// @Param id path string true "Stage check ID"
// @Success 200 {object} response.Envelope
// @Router /stage-checks/{id}/cancel [post]
func (h *StageCheckHandler) Cancel(c *gin.Context) {
	check, err := h.checks.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, check, nil)
}

// CreateRecheck godoc
// @Summary Schedule a recheck after a failed stage check
// @Description Chains to the failed attempt and carries its recheck items forward
// @Tags StageChecks
// @Accept json
// @Produce json
// @Param id path string true "Failed stage check ID"
// @Param payload body dto.CreateRecheckRequest true "Recheck payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /stage-checks/{id}/recheck [post]
func (h *StageCheckHandler) CreateRecheck(c *gin.Context) {
	var req dto.CreateRecheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	check, err := h.checks.CreateRecheck(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, check)
}
