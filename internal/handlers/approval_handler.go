package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"school-approval-service/internal/models"
	"school-approval-service/internal/repository"
	"school-approval-service/internal/services"
)

// ApprovalHandler handles HTTP requests for approval workflows
type ApprovalHandler struct {
	service *services.ApprovalService
	logger  *logrus.Logger
}

// NewApprovalHandler creates a new ApprovalHandler
func NewApprovalHandler(service *services.ApprovalService, logger *logrus.Logger) *ApprovalHandler {
	return &ApprovalHandler{service: service, logger: logger}
}

// callerIdentity reads the authenticated staff identity set by the
// auth middleware.
func callerIdentity(c *gin.Context) (uuid.UUID, models.StaffRole, bool) {
	userID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user identity"})
		return uuid.Nil, "", false
	}
	role := models.StaffRole(c.GetString("user_role"))
	if !role.Valid() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user role"})
		return uuid.Nil, "", false
	}
	return userID, role, true
}

func (h *ApprovalHandler) writeServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrRequestNotFound),
		errors.Is(err, services.ErrStaffNotFound),
		errors.Is(err, services.ErrDepartmentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrRequestAlreadyDecided),
		errors.Is(err, services.ErrInvalidRequestType),
		errors.Is(err, services.ErrNoApproverForRole),
		errors.Is(err, services.ErrSelfApprovalNotAllowed):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrRoleMismatch),
		errors.Is(err, services.ErrOutOfScope):
		status = http.StatusForbidden
	}

	if status == http.StatusInternalServerError {
		h.logger.WithError(err).Error("approval request failed")
		c.JSON(status, gin.H{"error": "An internal error occurred"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// CreateRequest creates a new approval request
// @Summary Submit an approval request
// @Tags Approvals
// @Accept json
// @Produce json
// @Param request body services.CreateRequestInput true "Approval request"
// @Success 201 {object} models.ApprovalRequest
// @Router /api/v1/approvals [post]
func (h *ApprovalHandler) CreateRequest(c *gin.Context) {
	userID, _, ok := callerIdentity(c)
	if !ok {
		return
	}

	var input services.CreateRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	request, err := h.service.Create(c.Request.Context(), userID, input)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, request)
}

// GetRequest retrieves an approval request
// @Summary Get approval request
// @Tags Approvals
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} models.ApprovalRequest
// @Router /api/v1/approvals/{id} [get]
func (h *ApprovalHandler) GetRequest(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	userID, role, ok := callerIdentity(c)
	if !ok {
		return
	}

	request, err := h.service.GetRequest(c.Request.Context(), id, userID, role)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// GetHistory retrieves the decision history of a request
// @Summary Get approval history
// @Tags Approvals
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/approvals/{id}/history [get]
func (h *ApprovalHandler) GetHistory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	userID, role, ok := callerIdentity(c)
	if !ok {
		return
	}

	request, err := h.service.GetHistory(c.Request.Context(), id, userID, role)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"requestId":       request.ID,
		"requester":       request.RequesterName,
		"status":          request.Status,
		"currentApprover": request.CurrentApprover,
		"approvalHistory": request.History,
	})
}

// ListRequests lists approval requests visible to the caller
// @Summary List approval requests
// @Tags Approvals
// @Produce json
// @Param status query string false "Status filter (pending, forwarded, approved, rejected)"
// @Param type query string false "Request type filter"
// @Param from query string false "Created-after filter (RFC3339)"
// @Param to query string false "Created-before filter (RFC3339)"
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/approvals [get]
func (h *ApprovalHandler) ListRequests(c *gin.Context) {
	userID, role, ok := callerIdentity(c)
	if !ok {
		return
	}

	filter := repository.RequestFilter{
		Status:      c.Query("status"),
		RequestType: models.RequestType(c.Query("type")),
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return
		}
		filter.From = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
			return
		}
		filter.To = &t
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	filter.Limit = limit
	filter.Offset = offset

	requests, total, err := h.service.List(c.Request.Context(), userID, role, filter)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   requests,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

type decisionBody struct {
	Comments      string `json:"comments"`
	ForwardToNext bool   `json:"forwardToNext"`
	// Older clients send forwardToVP; either flag requests forwarding.
	ForwardToVP bool `json:"forwardToVP"`
}

func (b decisionBody) forward() bool {
	return b.ForwardToNext || b.ForwardToVP
}

// ApproveRequest records an approval decision
// @Summary Approve an approval request
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param request body decisionBody false "Decision"
// @Success 200 {object} models.ApprovalRequest
// @Router /api/v1/approvals/{id}/approve [put]
func (h *ApprovalHandler) ApproveRequest(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	userID, role, ok := callerIdentity(c)
	if !ok {
		return
	}

	var body decisionBody
	_ = c.ShouldBindJSON(&body)

	request, err := h.service.Approve(c.Request.Context(), id, userID, role, body.Comments, body.forward())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// RejectRequest records a rejection decision
// @Summary Reject an approval request
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param request body decisionBody true "Decision"
// @Success 200 {object} models.ApprovalRequest
// @Router /api/v1/approvals/{id}/reject [put]
func (h *ApprovalHandler) RejectRequest(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
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

	request, err := h.service.Reject(c.Request.Context(), id, userID, role, body.Comments)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}
