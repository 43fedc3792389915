package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bangunpro/rab-approval/internal/domain/approval"
	"github.com/bangunpro/rab-approval/internal/domain/entity"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// statusFromError maps domain errors onto HTTP status codes
func statusFromError(err error) int {
	switch {
	case errors.Is(err, approval.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, approval.ErrNoActiveWorkflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, approval.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, approval.ErrAlreadyTerminal), errors.Is(err, approval.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, approval.ErrInvalidDecision):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *gin.Context, err error, op string) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "op", op, "error", err)
		c.JSON(status, Response{Success: false, Error: "internal error"})
		return
	}
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// SubmitApprovalRequest is the body for POST /api/v1/approvals
type SubmitApprovalRequest struct {
	EntityType  string `json:"entity_type" binding:"required"`
	EntityID    string `json:"entity_id" binding:"required"`
	SubmitterID string `json:"submitter_id" binding:"required"`
}

// SubmitApproval handles POST /api/v1/approvals
func (h *Handlers) SubmitApproval(c *gin.Context) {
	var req SubmitApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	result, err := h.services.Approval.Submit(c.Request.Context(), req.EntityType, req.EntityID, req.SubmitterID)
	if err != nil {
		h.fail(c, err, "submit approval")
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: result})
}

// DecideRequest is the body for POST /api/v1/approvals/:id/decisions
type DecideRequest struct {
	StepID     string `json:"step_id" binding:"required"`
	Decision   string `json:"decision" binding:"required"`
	Comments   string `json:"comments"`
	Conditions string `json:"conditions"`
	ApproverID string `json:"approver_id" binding:"required"`
}

// Decide handles POST /api/v1/approvals/:id/decisions
func (h *Handlers) Decide(c *gin.Context) {
	var req DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	result, err := h.services.Approval.Decide(c.Request.Context(),
		c.Param("id"), req.StepID, req.Decision, req.Comments, req.Conditions, req.ApproverID)
	if err != nil {
		h.fail(c, err, "decide")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// GetApprovalStatus handles GET /api/v1/approvals/:id
func (h *Handlers) GetApprovalStatus(c *gin.Context) {
	status, err := h.services.Approval.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "get approval status")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: status})
}

// ListQuery holds shared pagination query parameters
type ListQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// ListApprovals handles GET /api/v1/approvals
func (h *Handlers) ListApprovals(c *gin.Context) {
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}

	instances, err := h.services.Query.ListInstances(c.Request.Context(), q.Status, q.Limit, q.Offset)
	if err != nil {
		h.fail(c, err, "list approvals")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: instances})
}

// PendingApprovals handles GET /api/v1/pending-approvals
func (h *Handlers) PendingApprovals(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "user_id is required"})
		return
	}

	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}

	views, err := h.services.Query.PendingApprovals(c.Request.Context(),
		userID, c.Query("entity_type"), q.Limit, q.Offset)
	if err != nil {
		h.fail(c, err, "pending approvals")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: views})
}

// WorkflowRequest is the body for workflow create and update
type WorkflowRequest struct {
	EntityType  string                `json:"entity_type"`
	Name        string                `json:"name" binding:"required"`
	StepSLADays int                   `json:"step_sla_days"`
	Steps       []entity.StepTemplate `json:"steps" binding:"required"`
}

// CreateWorkflow handles POST /api/v1/workflows
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	var req WorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	def := &entity.WorkflowDefinition{
		EntityType:  req.EntityType,
		Name:        req.Name,
		StepSLADays: req.StepSLADays,
		Steps:       req.Steps,
	}
	if err := h.services.Workflow.CreateDefinition(c.Request.Context(), def); err != nil {
		if statusFromError(err) == http.StatusInternalServerError {
			// Validation failures come back as plain errors
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
			return
		}
		h.fail(c, err, "create workflow")
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: def})
}

// UpdateWorkflow handles PUT /api/v1/workflows/:id
func (h *Handlers) UpdateWorkflow(c *gin.Context) {
	var req WorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	def := &entity.WorkflowDefinition{
		ID:          c.Param("id"),
		Name:        req.Name,
		StepSLADays: req.StepSLADays,
		Steps:       req.Steps,
	}
	if err := h.services.Workflow.UpdateDefinition(c.Request.Context(), def); err != nil {
		h.fail(c, err, "update workflow")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// ActivateWorkflow handles POST /api/v1/workflows/:id/activate
func (h *Handlers) ActivateWorkflow(c *gin.Context) {
	if err := h.services.Workflow.ActivateDefinition(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err, "activate workflow")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// GetWorkflow handles GET /api/v1/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	def, err := h.services.Workflow.GetDefinition(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "get workflow")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// ListWorkflows handles GET /api/v1/workflows
func (h *Handlers) ListWorkflows(c *gin.Context) {
	defs, err := h.services.Workflow.ListDefinitions(c.Request.Context(), c.Query("entity_type"))
	if err != nil {
		h.fail(c, err, "list workflows")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: defs})
}

// ListNotifications handles GET /api/v1/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	recipientID := c.Query("recipient_id")
	if recipientID == "" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "recipient_id is required"})
		return
	}

	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}

	notifications, err := h.services.Notification.ListForRecipient(c.Request.Context(), recipientID, q.Limit, q.Offset)
	if err != nil {
		h.fail(c, err, "list notifications")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: notifications})
}

// MarkReadRequest is the body for POST /api/v1/notifications/:id/read
type MarkReadRequest struct {
	RecipientID string `json:"recipient_id" binding:"required"`
}

// MarkNotificationRead handles POST /api/v1/notifications/:id/read
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	if err := h.services.Notification.MarkRead(c.Request.Context(), c.Param("id"), req.RecipientID); err != nil {
		h.fail(c, err, "mark notification read")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// CreateBudgetItem handles POST /api/v1/budget-items
func (h *Handlers) CreateBudgetItem(c *gin.Context) {
	var item entity.BudgetItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	if err := h.services.Budget.CreateItem(c.Request.Context(), &item); err != nil {
		if statusFromError(err) == http.StatusInternalServerError {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
			return
		}
		h.fail(c, err, "create budget item")
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: item})
}

// GetBudgetItem handles GET /api/v1/budget-items/:id
func (h *Handlers) GetBudgetItem(c *gin.Context) {
	item, err := h.services.Budget.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "get budget item")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: item})
}

// ListProjectBudgetItems handles GET /api/v1/projects/:project_id/budget-items
func (h *Handlers) ListProjectBudgetItems(c *gin.Context) {
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}

	items, err := h.services.Budget.ListByProject(c.Request.Context(), c.Param("project_id"), q.Limit, q.Offset)
	if err != nil {
		h.fail(c, err, "list budget items")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: items})
}

// CreateUser handles POST /api/v1/users
func (h *Handlers) CreateUser(c *gin.Context) {
	var user entity.User
	if err := c.ShouldBindJSON(&user); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	if err := h.services.User.CreateUser(c.Request.Context(), &user); err != nil {
		if statusFromError(err) == http.StatusInternalServerError {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
			return
		}
		h.fail(c, err, "create user")
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: user})
}

// GetUser handles GET /api/v1/users/:id
func (h *Handlers) GetUser(c *gin.Context) {
	user, err := h.services.User.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "get user")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: user})
}

// DownloadApprovalRegister handles GET /api/v1/reports/approval-register
func (h *Handlers) DownloadApprovalRegister(c *gin.Context) {
	file, err := h.services.Report.BuildApprovalRegister(c.Request.Context(), c.Query("status"))
	if err != nil {
		h.fail(c, err, "build approval register")
		return
	}
	defer file.Close()

	filename := fmt.Sprintf("approval-register-%s.xlsx", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	if _, err := file.WriteTo(c.Writer); err != nil {
		h.logger.Error("Failed to stream report", "error", err)
	}
}
