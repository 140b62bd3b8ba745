package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-credit-api/internal/models"
	"github.com/noah-isme/activity-credit-api/internal/service"
	appErrors "github.com/noah-isme/activity-credit-api/pkg/errors"
	"github.com/noah-isme/activity-credit-api/pkg/response"
	"github.com/noah-isme/activity-credit-api/pkg/storage"
)

// AttendanceHandler exposes the check-in/check-out endpoints and the
// review queue.
type AttendanceHandler struct {
	attendance *service.AttendanceService
	signer     *storage.SignedURLSigner
	store      *storage.LocalStorage
	apiPrefix  string
}

// NewAttendanceHandler constructs AttendanceHandler. apiPrefix is the
// route prefix the evidence download endpoint is mounted under.
func NewAttendanceHandler(attendance *service.AttendanceService, signer *storage.SignedURLSigner, store *storage.LocalStorage, apiPrefix string) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, signer: signer, store: store, apiPrefix: apiPrefix}
}

// Record godoc
// @Summary Record check-in or check-out
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param payload body service.RecordAttendanceRequest true "Attendance payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /activities/{id}/attendance [post]
func (h *AttendanceHandler) Record(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.RecordAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendance payload"))
		return
	}

	result, err := h.attendance.Record(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result, nil)
}

// History godoc
// @Summary List my attendance entries for an activity
// @Tags Attendance
// @Produce json
// @Param id path string true "Activity ID"
// @Success 200 {object} response.Envelope
// @Router /activities/{id}/attendance [get]
func (h *AttendanceHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	entries, err := h.attendance.History(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// ReviewQueue godoc
// @Summary List attendance entries awaiting manual review
// @Tags Attendance
// @Produce json
// @Param activityId query string false "Filter by activity"
// @Param verdict query string false "Verdict filter (REVIEW|REJECTED)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance/review [get]
func (h *AttendanceHandler) ReviewQueue(c *gin.Context) {
	var filter models.AttendanceEntryFilter
	filter.ActivityID = c.Query("activityId")
	filter.Verdict = models.MatchVerdict(strings.ToUpper(c.Query("verdict")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	entries, err := h.attendance.ReviewQueue(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Resolve godoc
// @Summary Resolve a flagged attendance entry
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body object true "Resolution payload"
// @Success 204 {object} response.Envelope
// @Router /attendance/review/{id} [put]
func (h *AttendanceHandler) Resolve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Approve bool `json:"approve"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid resolution payload"))
		return
	}

	if err := h.attendance.ResolveEntry(c.Request.Context(), claims.UserID, c.Param("id"), payload.Approve); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// EvidenceLink godoc
// @Summary Mint a signed evidence download link
// @Tags Attendance
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attendance/{id}/evidence-link [get]
func (h *AttendanceHandler) EvidenceLink(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	token, expiresAt, err := h.attendance.EvidenceLink(c.Request.Context(), h.signer, claims.UserID, claims.Role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"url":        h.apiPrefix + "/evidence/" + token,
		"expires_at": expiresAt,
	}, nil)
}

// Evidence godoc
// @Summary Download evidence via signed token
// @Tags Attendance
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /evidence/{token} [get]
func (h *AttendanceHandler) Evidence(c *gin.Context) {
	_, relPath, _, err := h.signer.Parse(c.Param("token"), false)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, http.StatusUnauthorized, "invalid evidence token"))
		return
	}

	data, err := h.store.Open(c.Request.Context(), h.store.Bucket(), relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "evidence not found"))
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}
