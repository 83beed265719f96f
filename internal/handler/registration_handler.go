package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sis-registration-api/internal/models"
	"github.com/noah-isme/sis-registration-api/internal/service"
	appErrors "github.com/noah-isme/sis-registration-api/pkg/errors"
	"github.com/noah-isme/sis-registration-api/pkg/response"
)

// RegistrationHandler exposes registration intake and console endpoints.
type RegistrationHandler struct {
	service *service.RegistrationService
	exports *service.ExportService
}

// NewRegistrationHandler constructs a registration handler.
func NewRegistrationHandler(svc *service.RegistrationService, exports *service.ExportService) *RegistrationHandler {
	return &RegistrationHandler{service: svc, exports: exports}
}

// Submit godoc
// @Summary Submit a registration
// @Description Redeem a registration code and file an enrollment application
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body service.SubmitRegistrationRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /registrations [post]
func (h *RegistrationHandler) Submit(c *gin.Context) {
	var req service.SubmitRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}

	detail, err := h.service.Submit(c.Request.Context(), req, requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// List godoc
// @Summary List registrations
// @Description List registrations with filters
// @Tags Registrations
// @Produce json
// @Param status query string false "Filter by status"
// @Param termId query string false "Filter by academic term"
// @Param yearLevelId query string false "Filter by year level"
// @Param search query string false "Search by name or student number"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /registrations [get]
func (h *RegistrationHandler) List(c *gin.Context) {
	filter := registrationFilterFromQuery(c)

	rows, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// Get godoc
// @Summary Get registration detail
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /registrations/{id} [get]
func (h *RegistrationHandler) Get(c *gin.Context) {
	detail, err := h.service.Detail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Approve godoc
// @Summary Approve a registration
// @Description Approve a pending registration and mint its application code
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id}/approve [post]
func (h *RegistrationHandler) Approve(c *gin.Context) {
	code, err := h.service.Approve(c.Request.Context(), c.Param("id"), actorFromContext(c), requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, code, nil)
}

// Reject godoc
// @Summary Reject a registration
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id}/reject [post]
func (h *RegistrationHandler) Reject(c *gin.Context) {
	if err := h.service.Reject(c.Request.Context(), c.Param("id"), actorFromContext(c), requestContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Soft-delete a registration
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /registrations/{id} [delete]
func (h *RegistrationHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), actorFromContext(c), requestContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ExportRoster godoc
// @Summary Export registration roster
// @Description Download registrations matching the filter as CSV or PDF
// @Tags Registrations
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param status query string false "Filter by status"
// @Success 200 {file} file
// @Router /registrations/export [get]
func (h *RegistrationHandler) ExportRoster(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	filter := registrationFilterFromQuery(c)
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))

	file, err := h.exports.RegistrationRoster(c.Request.Context(), filter, format, actorFromContext(c), requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, file)
}

// ExportSheet godoc
// @Summary Export registration sheet
// @Description Download a printable per-registration enrollment sheet
// @Tags Registrations
// @Produce application/pdf
// @Param id path string true "Registration ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /registrations/{id}/sheet [get]
func (h *RegistrationHandler) ExportSheet(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	file, err := h.exports.RegistrationSheet(c.Request.Context(), c.Param("id"), actorFromContext(c), requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, file)
}

func registrationFilterFromQuery(c *gin.Context) models.RegistrationFilter {
	var filter models.RegistrationFilter
	if status := c.Query("status"); status != "" {
		filter.Status = models.RegistrationStatus(status)
	}
	filter.AcademicTermID = c.Query("termId")
	filter.YearLevelID = c.Query("yearLevelId")
	filter.Search = c.Query("search")
	if includeDeleted, err := strconv.ParseBool(c.DefaultQuery("includeDeleted", "false")); err == nil {
		filter.IncludeDeleted = includeDeleted
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")
	return filter
}

func serveExport(c *gin.Context, file *service.ExportFile) {
	c.Header("Content-Disposition", "attachment; filename=\""+file.Filename+"\"")
	c.Data(http.StatusOK, file.ContentType, file.Payload)
}
