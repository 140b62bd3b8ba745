package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-credit-api/internal/models"
	"github.com/noah-isme/activity-credit-api/internal/service"
	appErrors "github.com/noah-isme/activity-credit-api/pkg/errors"
	"github.com/noah-isme/activity-credit-api/pkg/response"
)

// RegistrationHandler exposes registration endpoints.
type RegistrationHandler struct {
	registrations *service.RegistrationService
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(registrations *service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registrations: registrations}
}

// Register godoc
// @Summary Register for an activity
// @Tags Registrations
// @Produce json
// @Param id path string true "Activity ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /activities/{id}/registrations [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	reg, err := h.registrations.Register(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reg)
}

// Cancel godoc
// @Summary Cancel a registration
// @Tags Registrations
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /activities/{id}/registrations [delete]
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Reason *string `json:"reason"`
	}
	// The body is optional; a bare DELETE cancels without a reason.
	_ = c.ShouldBindJSON(&payload)

	if err := h.registrations.Cancel(c.Request.Context(), claims.UserID, c.Param("id"), payload.Reason); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// List godoc
// @Summary List my registrations with derived states
// @Tags Registrations
// @Produce json
// @Param status query string false "Filter by registration status"
// @Param feedbackStatus query string false "Filter by feedback moderation status"
// @Success 200 {object} response.Envelope
// @Router /registrations [get]
func (h *RegistrationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.RegistrationFilter
	filter.Status = models.RegistrationStatus(strings.ToUpper(c.Query("status")))
	if filter.Status != "" && !filter.Status.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown registration status"))
		return
	}
	filter.FeedbackStatus = models.FeedbackStatus(strings.ToUpper(c.Query("feedbackStatus")))
	if filter.FeedbackStatus != "" && !filter.FeedbackStatus.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown feedback status"))
		return
	}

	views, err := h.registrations.List(c.Request.Context(), claims.UserID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, nil)
}
