package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Okan-wqm/avinor-sub001/internal/service"
	"github.com/Okan-wqm/avinor-sub001/pkg/response"
)

// RecordHandler exposes training record exports.
type RecordHandler struct {
	records *service.RecordService
}

// NewRecordHandler constructs RecordHandler.
func NewRecordHandler(records *service.RecordService) *RecordHandler {
	return &RecordHandler{records: records}
}

// Export godoc
// @Summary Export the training record of an enrollment
// @Description Renders the full attempt and stage check history as CSV or PDF
// @Tags Records
// @Produce octet-stream
// @Param id path string true "Enrollment ID"
// @Param format query string false "Export format (csv or pdf)" default(csv)
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id}/record [get]
func (h *RecordHandler) Export(c *gin.Context) {
	format := service.RecordFormat(strings.ToLower(c.DefaultQuery("format", "csv")))

	data, contentType, filename, err := h.records.Export(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}
