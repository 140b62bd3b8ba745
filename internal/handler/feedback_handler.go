package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-credit-api/internal/service"
	appErrors "github.com/noah-isme/activity-credit-api/pkg/errors"
	"github.com/noah-isme/activity-credit-api/pkg/response"
)

// FeedbackHandler exposes feedback submission and moderation endpoints.
type FeedbackHandler struct {
	feedbacks *service.FeedbackService
}

// NewFeedbackHandler constructs FeedbackHandler.
func NewFeedbackHandler(feedbacks *service.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedbacks: feedbacks}
}

// Submit godoc
// @Summary Submit feedback for an attended registration
// @Tags Feedback
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body service.SubmitFeedbackRequest true "Feedback payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /registrations/{id}/feedback [post]
func (h *FeedbackHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SubmitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid feedback payload"))
		return
	}

	fb, err := h.feedbacks.Submit(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, fb)
}

// Moderate godoc
// @Summary Approve or reject a pending feedback
// @Tags Feedback
// @Accept json
// @Produce json
// @Param id path string true "Feedback ID"
// @Param payload body service.ModerateFeedbackRequest true "Moderation payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /feedback/{id} [put]
func (h *FeedbackHandler) Moderate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ModerateFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid moderation payload"))
		return
	}

	fb, err := h.feedbacks.Moderate(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fb, nil)
}
