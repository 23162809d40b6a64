package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"school-approval-service/internal/services"
)

// DelegationHandler handles HTTP requests for delegation notices
type DelegationHandler struct {
	service *services.DelegationService
	logger  *logrus.Logger
}

// NewDelegationHandler creates a new DelegationHandler
func NewDelegationHandler(service *services.DelegationService, logger *logrus.Logger) *DelegationHandler {
	return &DelegationHandler{service: service, logger: logger}
}

func (h *DelegationHandler) writeServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNoticeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrPartyNotFound),
		errors.Is(err, services.ErrInvalidNoticeState),
		errors.Is(err, services.ErrSelfDelegation),
		errors.Is(err, services.ErrInvalidDelegationDates):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrInsufficientAuthority),
		errors.Is(err, services.ErrNotNotificationOwner):
		status = http.StatusForbidden
	}

	if status == http.StatusInternalServerError {
		h.logger.WithError(err).Error("delegation request failed")
		c.JSON(status, gin.H{"error": "An internal error occurred"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// CreateNotice creates a delegation of authority notice in draft
// @Summary Create delegation notice
// @Tags Delegations
// @Accept json
// @Produce json
// @Param request body services.CreateNoticeInput true "Delegation notice"
// @Success 201 {object} models.DelegationNotice
// @Router /api/v1/delegations [post]
func (h *DelegationHandler) CreateNotice(c *gin.Context) {
	userID, role, ok := callerIdentity(c)
	if !ok {
		return
	}

	var input services.CreateNoticeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	notice, err := h.service.Create(c.Request.Context(), userID, role, input)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, notice)
}

// GetNotice retrieves a delegation notice
// @Summary Get delegation notice
// @Tags Delegations
// @Produce json
// @Param id path string true "Notice ID"
// @Success 200 {object} models.DelegationNotice
// @Router /api/v1/delegations/{id} [get]
func (h *DelegationHandler) GetNotice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notice id"})
		return
	}

	userID, role, ok := callerIdentity(c)
	if !ok {
		return
	}

	notice, err := h.service.Get(c.Request.Context(), id, userID, role)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, notice)
}

// ListNotices lists notices the caller is a party to or created
// @Summary List my delegation notices
// @Tags Delegations
// @Produce json
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/delegations [get]
func (h *DelegationHandler) ListNotices(c *gin.Context) {
	h.listNotices(c, false)
}

// ListPendingNotices lists the pending approval queue
// @Summary List pending delegation notices
// @Tags Delegations
// @Produce json
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/delegations/pending [get]
func (h *DelegationHandler) ListPendingNotices(c *gin.Context) {
	h.listNotices(c, true)
}

func (h *DelegationHandler) listNotices(c *gin.Context, pendingOnly bool) {
	userID, role, ok := callerIdentity(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	notices, total, err := h.service.List(c.Request.Context(), userID, role, pendingOnly, limit, offset)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   notices,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// SubmitNotice submits a draft notice for approval
// @Summary Submit delegation notice
// @Tags Delegations
// @Produce json
// @Param id path string true "Notice ID"
// @Success 200 {object} models.DelegationNotice
// @Router /api/v1/delegations/{id}/submit [put]
func (h *DelegationHandler) SubmitNotice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notice id"})
		return
	}

	userID, _, ok := callerIdentity(c)
	if !ok {
		return
	}

	notice, err := h.service.Submit(c.Request.Context(), id, userID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, notice)
}

type noticeDecisionBody struct {
	Comments string `json:"comments"`
}

// ApproveNotice activates a pending notice
// @Summary Approve delegation notice
// @Tags Delegations
// @Accept json
// @Produce json
// @Param id path string true "Notice ID"
// @Param request body noticeDecisionBody false "Decision"
// @Success 200 {object} models.DelegationNotice
// @Router /api/v1/delegations/{id}/approve [put]
func (h *DelegationHandler) ApproveNotice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notice id"})
		return
	}

	userID, role, ok := callerIdentity(c)
	if !ok {
		return
	}

	var body noticeDecisionBody
	_ = c.ShouldBindJSON(&body)

	notice, err := h.service.Approve(c.Request.Context(), id, userID, role, body.Comments)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, notice)
}

// RejectNotice declines a pending notice
// @Summary Reject delegation notice
// @Tags Delegations
// @Accept json
// @Produce json
// @Param id path string true "Notice ID"
// @Param request body noticeDecisionBody true "Decision"
// @Success 200 {object} models.DelegationNotice
// @Router /api/v1/delegations/{id}/reject [put]
func (h *DelegationHandler) RejectNotice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notice id"})
		return
	}

	userID, role, ok := callerIdentity(c)
	if !ok {
		return
	}

	var body struct {
		Comments string `json:"comments" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comments are required when rejecting"})
		return
	}

	notice, err := h.service.Reject(c.Request.Context(), id, userID, role, body.Comments)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, notice)
}

// RevokeNotice withdraws an active notice
// @Summary Revoke delegation notice
// @Tags Delegations
// @Accept json
// @Produce json
// @Param id path string true "Notice ID"
// @Param request body noticeDecisionBody false "Decision"
// @Success 200 {object} models.DelegationNotice
// @Router /api/v1/delegations/{id}/revoke [put]
func (h *DelegationHandler) RevokeNotice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notice id"})
		return
	}

	userID, role, ok := callerIdentity(c)
	if !ok {
		return
	}

	var body struct {
		Comments string `json:"comments"`
		// reason is accepted as a legacy alias for comments.
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)
	if body.Comments == "" {
		body.Comments = body.Reason
	}

	notice, err := h.service.Revoke(c.Request.Context(), id, userID, role, body.Comments)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, notice)
}

// ListNotifications lists the caller's delegation notifications
// @Summary List delegation notifications
// @Tags Delegations
// @Produce json
// @Param unread query bool false "Only unread notifications"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/delegations/notifications [get]
func (h *DelegationHandler) ListNotifications(c *gin.Context) {
	userID, _, ok := callerIdentity(c)
	if !ok {
		return
	}

	unreadOnly := c.Query("unread") == "true"

	notifications, err := h.service.Notifications(c.Request.Context(), userID, unreadOnly)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": notifications})
}

// MarkNotificationRead marks a notification as read
// @Summary Mark delegation notification read
// @Tags Delegations
// @Produce json
// @Param noticeId path string true "Notice ID"
// @Param notificationId path string true "Notification ID"
// @Success 204
// @Router /api/v1/delegations/notifications/{noticeId}/{notificationId}/read [put]
func (h *DelegationHandler) MarkNotificationRead(c *gin.Context) {
	noticeID, err := uuid.Parse(c.Param("noticeId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notice id"})
		return
	}
	notificationID, err := uuid.Parse(c.Param("notificationId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	userID, _, ok := callerIdentity(c)
	if !ok {
		return
	}

	if err := h.service.MarkNotificationRead(c.Request.Context(), noticeID, notificationID, userID); err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
