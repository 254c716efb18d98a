package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aescanero/stepchain/internal/application/orchestrator"
	"github.com/aescanero/stepchain/pkg/domain"
)

// ExecuteRequest runs a stored workflow
type ExecuteRequest struct {
	Input string `json:"input"`
	Async bool   `json:"async"`
}

// InlineExecuteRequest runs a workflow sent with the request
type InlineExecuteRequest struct {
	Workflow *domain.WorkflowConfig `json:"workflow" binding:"required"`
	Input    string                 `json:"input"`
	Async    bool                   `json:"async"`
}

// SubmitResponse is returned for background executions
type SubmitResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
	SubmittedAt string `json:"submitted_at"`
}

// RunResponse is the result of a synchronous execution
type RunResponse struct {
	ExecutionID string `json:"execution_id"`
	*domain.WorkflowExecutionResult
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	checks := gin.H{"orchestrator": "ok"}
	status, code := "healthy", http.StatusOK

	if s.health != nil {
		if s.health.GetStatus().Healthy {
			checks["workers"] = "ok"
		} else {
			checks["workers"] = "unhealthy"
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleCreateWorkflow validates and stores a workflow
func (s *Server) handleCreateWorkflow(c *gin.Context) {
	var cfg domain.WorkflowConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		s.badRequest(c, err)
		return
	}

	saved, err := s.orchestrator.SaveWorkflow(c.Request.Context(), &cfg)
	if err != nil {
		s.writeError(c, "failed to save workflow", err)
		return
	}

	c.JSON(http.StatusCreated, saved)
}

// handleListWorkflows lists stored workflows
func (s *Server) handleListWorkflows(c *gin.Context) {
	workflows, err := s.orchestrator.ListWorkflows(c.Request.Context())
	if err != nil {
		s.writeError(c, "failed to list workflows", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workflows": workflows,
		"total":     len(workflows),
	})
}

// handleGetWorkflow retrieves a stored workflow
func (s *Server) handleGetWorkflow(c *gin.Context) {
	cfg, err := s.orchestrator.GetWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, "failed to get workflow", err)
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// handleDeleteWorkflow removes a stored workflow
func (s *Server) handleDeleteWorkflow(c *gin.Context) {
	if err := s.orchestrator.DeleteWorkflow(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, "failed to delete workflow", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// handleExecuteWorkflow runs a stored workflow
func (s *Server) handleExecuteWorkflow(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	workflowID := c.Param("id")
	ctx := c.Request.Context()

	if req.Async {
		id, err := s.orchestrator.SubmitWorkflow(ctx, workflowID, req.Input)
		s.respondSubmitted(c, id, err)
		return
	}

	rec, err := s.orchestrator.RunWorkflow(ctx, workflowID, req.Input)
	s.respondRun(c, rec, err)
}

// handleExecuteInline runs a workflow carried in the request body
func (s *Server) handleExecuteInline(c *gin.Context) {
	var req InlineExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	ctx := c.Request.Context()

	if req.Async {
		id, err := s.orchestrator.Submit(ctx, *req.Workflow, req.Input)
		s.respondSubmitted(c, id, err)
		return
	}

	rec, err := s.orchestrator.Run(ctx, *req.Workflow, req.Input)
	s.respondRun(c, rec, err)
}

// handleListExecutions lists stored execution ids
func (s *Server) handleListExecutions(c *gin.Context) {
	ids, err := s.orchestrator.ListExecutions(c.Request.Context())
	if err != nil {
		s.writeError(c, "failed to list executions", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"executions": ids,
		"total":      len(ids),
		"active":     s.orchestrator.ActiveExecutions(),
	})
}

// handleGetExecution retrieves an execution record
func (s *Server) handleGetExecution(c *gin.Context) {
	rec, err := s.orchestrator.GetExecution(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, "failed to get execution", err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// handleCancelExecution cancels a background execution
func (s *Server) handleCancelExecution(c *gin.Context) {
	id := c.Param("id")

	if err := s.orchestrator.CancelExecution(c.Request.Context(), id); err != nil {
		s.writeError(c, "failed to cancel execution", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"execution_id": id,
		"status":       "cancelling",
	})
}

// handleGetWorkerPool reports worker pool status
func (s *Server) handleGetWorkerPool(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: ErrorDetail{
				Code:    "SERVICE_UNAVAILABLE",
				Message: "worker pool not configured",
			},
		})
		return
	}

	c.JSON(http.StatusOK, s.health.GetStatus())
}

func (s *Server) respondSubmitted(c *gin.Context, id string, err error) {
	if err != nil {
		s.writeError(c, "failed to submit execution", err)
		return
	}

	c.JSON(http.StatusAccepted, SubmitResponse{
		ExecutionID: id,
		Status:      string(domain.ExecutionStatusSubmitted),
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) respondRun(c *gin.Context, rec *domain.ExecutionRecord, err error) {
	if err != nil {
		s.writeError(c, "failed to run workflow", err)
		return
	}

	code := http.StatusOK
	if rec.Result == nil || !rec.Result.Success {
		code = http.StatusUnprocessableEntity
	}

	c.JSON(code, RunResponse{
		ExecutionID:             rec.ID,
		WorkflowExecutionResult: rec.Result,
	})
}

func (s *Server) badRequest(c *gin.Context, err error) {
	s.logger.Debug("invalid request", zap.Error(err))
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		},
	})
}

// writeError maps orchestrator and domain errors to status codes
func (s *Server) writeError(c *gin.Context, msg string, err error) {
	code, detail := http.StatusInternalServerError, ErrorDetail{Code: "INTERNAL_ERROR"}

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		code, detail = http.StatusBadRequest, ErrorDetail{Code: "VALIDATION_FAILED", Details: verr.Violations}
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrConfig):
		code, detail = http.StatusBadRequest, ErrorDetail{Code: "INVALID_WORKFLOW"}
	case errors.Is(err, domain.ErrNotFound):
		code, detail = http.StatusNotFound, ErrorDetail{Code: "NOT_FOUND"}
	case errors.Is(err, orchestrator.ErrExecutionFinished):
		code, detail = http.StatusConflict, ErrorDetail{Code: "EXECUTION_FINISHED"}
	case errors.Is(err, orchestrator.ErrShuttingDown):
		code, detail = http.StatusServiceUnavailable, ErrorDetail{Code: "SHUTTING_DOWN"}
	}
	detail.Message = err.Error()

	if code >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}

	c.JSON(code, ErrorResponse{Error: detail})
}
