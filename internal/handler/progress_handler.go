package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Okan-wqm/avinor-sub001/internal/service"
	"github.com/Okan-wqm/avinor-sub001/pkg/response"
)

// ProgressHandler exposes the progress projection endpoint.
type ProgressHandler struct {
	progress *service.ProgressService
}

// NewProgressHandler constructs ProgressHandler.
func NewProgressHandler(progress *service.ProgressService) *ProgressHandler {
	return &ProgressHandler{progress: progress}
}

// Get godoc
// @Summary Full progress projection for an enrollment
// @Description Stages, per-lesson availability, stage check state and hour totals
// @Tags Progress
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id}/progress [get]
func (h *ProgressHandler) Get(c *gin.Context) {
	progress, err := h.progress.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// Invalidate godoc
// @Summary Drop the cached projection for an enrollment
// @Tags Progress
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 204 {object} response.Envelope
// @Router /enrollments/{id}/progress/cache [delete]
func (h *ProgressHandler) Invalidate(c *gin.Context) {
	h.progress.Invalidate(c.Request.Context(), c.Param("id"))
	response.NoContent(c)
}
