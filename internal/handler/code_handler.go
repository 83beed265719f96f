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

// CodeHandler exposes registration-code endpoints.
type CodeHandler struct {
	service *service.CodeService
}

// NewCodeHandler constructs a code handler.
func NewCodeHandler(svc *service.CodeService) *CodeHandler {
	return &CodeHandler{service: svc}
}

// Generate godoc
// @Summary Generate a registration code
// @Description Mint a standalone registration code for walk-in applicants
// @Tags Codes
// @Produce json
// @Success 201 {object} response.Envelope
// @Router /codes [post]
func (h *CodeHandler) Generate(c *gin.Context) {
	code, err := h.service.GenerateStandalone(c.Request.Context(), actorFromContext(c), requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, code)
}

// Check godoc
// @Summary Check a registration code
// @Description Non-mutating validity check for the public intake form
// @Tags Codes
// @Produce json
// @Param code path string true "Registration code"
// @Success 200 {object} response.Envelope
// @Router /codes/{code}/check [get]
func (h *CodeHandler) Check(c *gin.Context) {
	result, err := h.service.Check(c.Request.Context(), c.Param("code"), requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List registration codes
// @Tags Codes
// @Produce json
// @Param status query string false "Filter by status"
// @Param prefix query string false "Filter by prefix"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /codes [get]
func (h *CodeHandler) List(c *gin.Context) {
	var filter models.CodeFilter
	if status := c.Query("status"); status != "" {
		filter.Status = models.CodeStatus(status)
	}
	filter.Prefix = c.Query("prefix")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	codes, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, codes, pagination)
}

// ListByRegistration godoc
// @Summary List codes for a registration
// @Tags Codes
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id}/codes [get]
func (h *CodeHandler) ListByRegistration(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "registration id is required"))
		return
	}
	codes, err := h.service.ListByRegistration(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, codes, nil)
}
