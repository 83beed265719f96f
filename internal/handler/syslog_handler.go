package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sis-registration-api/internal/models"
	"github.com/noah-isme/sis-registration-api/internal/service"
	appErrors "github.com/noah-isme/sis-registration-api/pkg/errors"
	"github.com/noah-isme/sis-registration-api/pkg/response"
)

// SystemLogHandler exposes the read side of the activity log.
type SystemLogHandler struct {
	service *service.AuditService
	exports *service.ExportService
}

// NewSystemLogHandler constructs a system log handler.
func NewSystemLogHandler(svc *service.AuditService, exports *service.ExportService) *SystemLogHandler {
	return &SystemLogHandler{service: svc, exports: exports}
}

// List godoc
// @Summary List system logs
// @Description List activity log entries with filters
// @Tags SystemLogs
// @Produce json
// @Param category query string false "Filter by category"
// @Param status query string false "Filter by status"
// @Param severity query string false "Filter by severity"
// @Param userId query string false "Filter by acting user"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /system-logs [get]
func (h *SystemLogHandler) List(c *gin.Context) {
	filter := systemLogFilterFromQuery(c)

	logs, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}

// Export godoc
// @Summary Export system logs
// @Description Download activity log entries matching the filter as CSV
// @Tags SystemLogs
// @Produce text/csv
// @Success 200 {file} file
// @Router /system-logs/export [get]
func (h *SystemLogHandler) Export(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	filter := systemLogFilterFromQuery(c)

	file, err := h.exports.AuditLogExtract(c.Request.Context(), filter, actorFromContext(c), requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, file)
}

func systemLogFilterFromQuery(c *gin.Context) models.SystemLogFilter {
	var filter models.SystemLogFilter
	if category := c.Query("category"); category != "" {
		filter.Category = models.LogCategory(category)
	}
	if status := c.Query("status"); status != "" {
		filter.Status = models.LogStatus(status)
	}
	if severity := c.Query("severity"); severity != "" {
		filter.Severity = models.LogSeverity(severity)
	}
	filter.UserID = c.Query("userId")
	if from := c.Query("from"); from != "" {
		if ts, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = &ts
		}
	}
	if to := c.Query("to"); to != "" {
		if ts, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = &ts
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}
	filter.SortOrder = c.Query("order")
	return filter
}
