package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sis-registration-api/internal/service"
	appErrors "github.com/noah-isme/sis-registration-api/pkg/errors"
	"github.com/noah-isme/sis-registration-api/pkg/response"
)

// YearLevelHandler exposes year level endpoints.
type YearLevelHandler struct {
	service *service.YearLevelService
}

// NewYearLevelHandler constructs a year level handler.
func NewYearLevelHandler(svc *service.YearLevelService) *YearLevelHandler {
	return &YearLevelHandler{service: svc}
}

// List godoc
// @Summary List year levels
// @Tags YearLevels
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /year-levels [get]
func (h *YearLevelHandler) List(c *gin.Context) {
	levels, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, levels, nil)
}

// Get godoc
// @Summary Get year level by ID
// @Tags YearLevels
// @Produce json
// @Param id path string true "Year level ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /year-levels/{id} [get]
func (h *YearLevelHandler) Get(c *gin.Context) {
	level, err := h.service.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, level, nil)
}

// Create godoc
// @Summary Create year level
// @Tags YearLevels
// @Accept json
// @Produce json
// @Param payload body service.YearLevelRequest true "Year level payload"
// @Success 201 {object} response.Envelope
// @Router /year-levels [post]
func (h *YearLevelHandler) Create(c *gin.Context) {
	var req service.YearLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	level, err := h.service.Create(c.Request.Context(), req, actorFromContext(c), requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, level)
}

// Update godoc
// @Summary Update year level
// @Tags YearLevels
// @Accept json
// @Produce json
// @Param id path string true "Year level ID"
// @Param payload body service.YearLevelRequest true "Year level payload"
// @Success 200 {object} response.Envelope
// @Router /year-levels/{id} [put]
func (h *YearLevelHandler) Update(c *gin.Context) {
	var req service.YearLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	level, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actorFromContext(c), requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, level, nil)
}
