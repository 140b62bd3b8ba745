package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-credit-api/internal/service"
	appErrors "github.com/noah-isme/activity-credit-api/pkg/errors"
	"github.com/noah-isme/activity-credit-api/pkg/response"
)

// FaceProfileHandler exposes biometric enrollment endpoints.
type FaceProfileHandler struct {
	profiles *service.FaceProfileService
}

// NewFaceProfileHandler constructs FaceProfileHandler.
func NewFaceProfileHandler(profiles *service.FaceProfileService) *FaceProfileHandler {
	return &FaceProfileHandler{profiles: profiles}
}

// Enroll godoc
// @Summary Enroll or replace my face profile
// @Tags FaceProfile
// @Accept json
// @Produce json
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /face-profile [put]
func (h *FaceProfileHandler) Enroll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}

	summary, err := h.profiles.Enroll(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Summary godoc
// @Summary Get my enrollment status
// @Tags FaceProfile
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /face-profile [get]
func (h *FaceProfileHandler) Summary(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	summary, err := h.profiles.Summary(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
