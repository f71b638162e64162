package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/approvalflow/internal/application/definition"
	"github.com/garyjia/approvalflow/internal/application/workflow"
	"github.com/garyjia/approvalflow/internal/domain/entity"
	domainwf "github.com/garyjia/approvalflow/internal/domain/workflow"
	"github.com/garyjia/approvalflow/internal/infrastructure/export"
	"github.com/garyjia/approvalflow/pkg/utils"
)

// UserHeader carries the caller's user id. Authentication happens upstream.
const UserHeader = "X-User-ID"

const (
	actorKey         = "actor"
	defaultPageLimit = 50
	maxPageLimit     = 200
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps   Deps
	logger Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Deps, logger Logger) *Handlers {
	return &Handlers{deps: deps, logger: logger}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Database  string `json:"database"`
}

// InstanceResponse is an instance with its status presentation
type InstanceResponse struct {
	*entity.ApprovalInstance
	StatusDisplay entity.Presentation `json:"status_display"`
}

// ActionResponse is an action with its type presentation
type ActionResponse struct {
	*entity.ApprovalAction
	ActionDisplay entity.Presentation `json:"action_display"`
}

// CreateWorkflowRequest is the body of POST /workflows
type CreateWorkflowRequest struct {
	Name        string `json:"name" binding:"required"`
	ModelType   string `json:"model_type" binding:"required"`
	Description string `json:"description"`
}

// CreateVersionRequest is the body of POST /workflows/:id/versions
type CreateVersionRequest struct {
	Steps         []definition.StepInput `json:"steps" binding:"required"`
	Configuration map[string]interface{} `json:"configuration"`
}

// InitializeRequest is the body of POST /instances
type InitializeRequest struct {
	WorkflowID int64          `json:"workflow_id" binding:"required"`
	Approvable entity.Subject `json:"approvable"`
}

// ResubmitRequest is the body of POST /instances/:id/resubmit.
// Approvable is optional; when present it replaces the stored snapshot.
type ResubmitRequest struct {
	Approvable *entity.Subject `json:"approvable"`
}

// ActionBody is the body of POST /instances/:id/actions
type ActionBody struct {
	StepID   int64                  `json:"step_id" binding:"required"`
	Type     string                 `json:"action_type" binding:"required"`
	Comments string                 `json:"comments"`
	Metadata map[string]interface{} `json:"metadata"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Database:  "ok",
	}
	code := http.StatusOK

	if h.deps.DB != nil {
		if err := h.deps.DB.PingContext(c.Request.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Database = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	c.JSON(code, Response{Success: code == http.StatusOK, Data: resp})
}

// identify resolves the caller from UserHeader through the directory
func (h *Handlers) identify(c *gin.Context) {
	userID := c.GetHeader(UserHeader)
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
			Success: false,
			Error:   "missing " + UserHeader + " header",
		})
		return
	}

	actor := entity.Actor{ID: userID}
	if h.deps.Directory != nil {
		found, err := h.deps.Directory.Lookup(c.Request.Context(), userID)
		if err != nil {
			h.logger.Error("Failed to resolve caller", "user_id", userID, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, Response{
				Success: false,
				Error:   "failed to resolve caller",
			})
			return
		}
		if found != nil {
			actor = *found
		}
	}

	c.Set(actorKey, actor)
	c.Next()
}

func caller(c *gin.Context) entity.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(entity.Actor); ok {
			return actor
		}
	}
	return entity.Actor{}
}

// CreateWorkflow handles POST /api/v1/workflows
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	var req CreateWorkflowRequest
	if !h.bind(c, &req) {
		return
	}

	wf, err := h.deps.Store.CreateWorkflow(c.Request.Context(), req.Name, req.ModelType, req.Description)
	if err != nil {
		h.fail(c, "Failed to create workflow", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: wf})
}

// ListWorkflows handles GET /api/v1/workflows
func (h *Handlers) ListWorkflows(c *gin.Context) {
	workflows, err := h.deps.Store.ListWorkflows(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list workflows", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: workflows})
}

// GetWorkflow handles GET /api/v1/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	wf, err := h.deps.Store.GetWorkflow(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get workflow", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: wf})
}

// DeactivateWorkflow handles POST /api/v1/workflows/:id/deactivate
func (h *Handlers) DeactivateWorkflow(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	if err := h.deps.Store.DeactivateWorkflow(c.Request.Context(), id); err != nil {
		h.fail(c, "Failed to deactivate workflow", err)
		return
	}

	h.logger.Info("Workflow deactivated", "workflow_id", id, "by", caller(c).ID)
	c.JSON(http.StatusOK, Response{Success: true})
}

// CreateVersion handles POST /api/v1/workflows/:id/versions
func (h *Handlers) CreateVersion(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req CreateVersionRequest
	if !h.bind(c, &req) {
		return
	}

	version, err := h.deps.Store.CreateVersion(c.Request.Context(), id, req.Steps, req.Configuration)
	if err != nil {
		h.fail(c, "Failed to create version", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: version})
}

// ListVersions handles GET /api/v1/workflows/:id/versions
func (h *Handlers) ListVersions(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	versions, err := h.deps.Store.ListVersions(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to list versions", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: versions})
}

// CurrentVersion handles GET /api/v1/workflows/:id/current-version
func (h *Handlers) CurrentVersion(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	version, err := h.deps.Store.CurrentVersion(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get current version", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: version})
}

// GetVersion handles GET /api/v1/versions/:id
func (h *Handlers) GetVersion(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	version, err := h.deps.Store.GetVersion(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get version", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: version})
}

// ActivateVersion handles POST /api/v1/versions/:id/activate
func (h *Handlers) ActivateVersion(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	if err := h.deps.Store.ActivateVersion(c.Request.Context(), id); err != nil {
		h.fail(c, "Failed to activate version", err)
		return
	}

	h.logger.Info("Workflow version activated", "version_id", id, "by", caller(c).ID)
	c.JSON(http.StatusOK, Response{Success: true})
}

// InitializeInstance handles POST /api/v1/instances
func (h *Handlers) InitializeInstance(c *gin.Context) {
	var req InitializeRequest
	if !h.bind(c, &req) {
		return
	}

	subject := req.Approvable
	instance, err := h.deps.Engine.InitializeWorkflow(c.Request.Context(), &subject, req.WorkflowID, caller(c).ID)
	if err != nil {
		h.fail(c, "Failed to initialize instance", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: toInstanceResponse(instance)})
}

// GetInstance handles GET /api/v1/instances/:id
func (h *Handlers) GetInstance(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	instance, err := h.deps.Engine.GetInstance(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get instance", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toInstanceResponse(instance)})
}

// SubmitInstance handles POST /api/v1/instances/:id/submit
func (h *Handlers) SubmitInstance(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	applied, err := h.deps.Engine.SubmitForApproval(c.Request.Context(), id, caller(c))
	h.respondOutcome(c, id, "submit", applied, err)
}

// ResubmitInstance handles POST /api/v1/instances/:id/resubmit
func (h *Handlers) ResubmitInstance(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req ResubmitRequest
	if c.Request.ContentLength != 0 {
		if !h.bind(c, &req) {
			return
		}
	}

	var subject entity.Approvable
	if req.Approvable != nil {
		subject = req.Approvable
	}

	applied, err := h.deps.Engine.Resubmit(c.Request.Context(), id, subject, caller(c))
	h.respondOutcome(c, id, "resubmit", applied, err)
}

// ProcessAction handles POST /api/v1/instances/:id/actions
func (h *Handlers) ProcessAction(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var body ActionBody
	if !h.bind(c, &body) {
		return
	}

	applied, err := h.deps.Engine.ProcessAction(c.Request.Context(), workflow.ActionRequest{
		InstanceID: id,
		StepID:     body.StepID,
		Type:       entity.ActionType(body.Type),
		Actor:      caller(c),
		Comments:   utils.SanitizeComment(body.Comments),
		Metadata:   body.Metadata,
	})
	h.respondOutcome(c, id, "action", applied, err)
}

// CancelInstance handles POST /api/v1/instances/:id/cancel
func (h *Handlers) CancelInstance(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	applied, err := h.deps.Engine.CancelApproval(c.Request.Context(), id, caller(c))
	h.respondOutcome(c, id, "cancel", applied, err)
}

// ListActions handles GET /api/v1/instances/:id/actions
func (h *Handlers) ListActions(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	actions, err := h.deps.Engine.ListActions(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to list actions", err)
		return
	}

	out := make([]ActionResponse, 0, len(actions))
	for _, a := range actions {
		out = append(out, ActionResponse{ApprovalAction: a, ActionDisplay: entity.ActionPresentation(a.ActionType)})
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: out})
}

// ListProgress handles GET /api/v1/instances/:id/progress
func (h *Handlers) ListProgress(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	progress, err := h.deps.Engine.ListProgress(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to list progress", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: progress})
}

// AvailableActions handles GET /api/v1/instances/:id/available-actions
func (h *Handlers) AvailableActions(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	types, err := h.deps.Engine.AvailableActions(c.Request.Context(), id, caller(c))
	if err != nil {
		h.fail(c, "Failed to list available actions", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: types})
}

// ExportInstance handles GET /api/v1/instances/:id/export
func (h *Handlers) ExportInstance(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	instance, err := h.deps.Engine.GetInstance(ctx, id)
	if err != nil {
		h.fail(c, "Failed to load instance for export", err)
		return
	}
	version, err := h.deps.Store.GetVersion(ctx, instance.WorkflowVersionID)
	if err != nil {
		h.fail(c, "Failed to load version for export", err)
		return
	}
	actions, err := h.deps.Engine.ListActions(ctx, id)
	if err != nil {
		h.fail(c, "Failed to load actions for export", err)
		return
	}
	progress, err := h.deps.Engine.ListProgress(ctx, id)
	if err != nil {
		h.fail(c, "Failed to load progress for export", err)
		return
	}

	var buf bytes.Buffer
	if err := h.deps.Ledger.Write(&buf, export.Ledger{
		Instance: instance,
		Version:  version,
		Actions:  actions,
		Progress: progress,
	}); err != nil {
		h.fail(c, "Failed to render ledger", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="approval-%d.xlsx"`, id))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// Pending handles GET /api/v1/pending
func (h *Handlers) Pending(c *gin.Context) {
	limit := defaultPageLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid limit"})
			return
		}
		if n > maxPageLimit {
			n = maxPageLimit
		}
		limit = n
	}

	instances, err := h.deps.Engine.PendingFor(c.Request.Context(), caller(c), limit)
	if err != nil {
		h.fail(c, "Failed to list pending instances", err)
		return
	}

	out := make([]InstanceResponse, 0, len(instances))
	for _, inst := range instances {
		out = append(out, toInstanceResponse(inst))
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: out})
}

// respondOutcome answers an engine operation that reports refusal as false
func (h *Handlers) respondOutcome(c *gin.Context, id int64, op string, applied bool, err error) {
	if err != nil {
		h.fail(c, "Failed to "+op+" instance", err)
		return
	}

	instance, err := h.deps.Engine.GetInstance(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to reload instance", err)
		return
	}

	if !applied {
		c.JSON(http.StatusConflict, Response{
			Success: false,
			Data:    toInstanceResponse(instance),
			Error:   fmt.Sprintf("%s not allowed for instance in status %s", op, instance.Status),
		})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toInstanceResponse(instance)})
}

func (h *Handlers) bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body: " + err.Error(),
		})
		return false
	}
	return true
}

func (h *Handlers) pathID(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid id: " + raw,
		})
		return 0, false
	}
	return id, true
}

// fail maps application errors to HTTP status codes
func (h *Handlers) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "path", c.Request.URL.Path, "error", err)
		c.JSON(status, Response{Success: false, Error: "internal error"})
		return
	}

	c.JSON(status, Response{Success: false, Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case entity.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrNoActiveVersion), errors.Is(err, entity.ErrWorkflowInactive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entity.ErrConcurrentModification),
		errors.Is(err, domainwf.ErrInvalidTransition),
		errors.Is(err, domainwf.ErrTerminalState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func toInstanceResponse(instance *entity.ApprovalInstance) InstanceResponse {
	return InstanceResponse{
		ApprovalInstance: instance,
		StatusDisplay:    entity.StatusPresentation(instance.Status),
	}
}
