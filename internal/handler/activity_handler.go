package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-credit-api/internal/models"
	"github.com/noah-isme/activity-credit-api/internal/service"
	"github.com/noah-isme/activity-credit-api/pkg/response"
)

// ActivityHandler exposes the published activity catalogue.
type ActivityHandler struct {
	activities *service.ActivityService
}

// NewActivityHandler constructs ActivityHandler.
func NewActivityHandler(activities *service.ActivityService) *ActivityHandler {
	return &ActivityHandler{activities: activities}
}

// List godoc
// @Summary List published activities
// @Tags Activities
// @Produce json
// @Param method query string false "Attendance method (qr|photo)"
// @Param from query string false "Window start lower bound (RFC3339)"
// @Param to query string false "Window start upper bound (RFC3339)"
// @Param search query string false "Title search"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /activities [get]
func (h *ActivityHandler) List(c *gin.Context) {
	var filter models.ActivityFilter
	filter.Method = models.AttendanceMethod(strings.ToLower(c.Query("method")))
	filter.Search = c.Query("search")
	if from, err := time.Parse(time.RFC3339, c.Query("from")); err == nil {
		filter.From = &from
	}
	if to, err := time.Parse(time.RFC3339, c.Query("to")); err == nil {
		filter.To = &to
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	callerID := ""
	if claims := claimsFromContext(c); claims != nil {
		callerID = claims.UserID
	}

	result, err := h.activities.List(c.Request.Context(), callerID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result.Items, &models.Pagination{
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalCount: result.Total,
	})
}

// Get godoc
// @Summary Get one activity
// @Tags Activities
// @Produce json
// @Param id path string true "Activity ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /activities/{id} [get]
func (h *ActivityHandler) Get(c *gin.Context) {
	callerID := ""
	if claims := claimsFromContext(c); claims != nil {
		callerID = claims.UserID
	}

	view, err := h.activities.Get(c.Request.Context(), callerID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}
