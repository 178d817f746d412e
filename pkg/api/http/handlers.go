package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pentaflow/pentaflow/pkg/domain"
)

// SubmitRequest is the body of POST /api/v1/executions.
type SubmitRequest struct {
	Graph  *domain.Graph          `json:"graph" binding:"required"`
	Inputs map[string]interface{} `json:"inputs"`
}

// SubmitResponse is the synchronous answer to a submission; the run
// proceeds in the background.
type SubmitResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
	Path        string `json:"path"`
	SubmittedAt string `json:"submitted_at"`
}

// ErrorResponse wraps an API error.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the typed error code and message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	NodeID  string `json:"node_id,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSubmitExecution(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{Code: "INVALID_REQUEST", Message: err.Error()},
		})
		return
	}

	handle, err := s.engine.Submit(c.Request.Context(), req.Graph, userID(c), req.Inputs)
	if err != nil {
		s.logger.Warn("submission rejected", zap.Error(err))
		s.respondError(c, err, http.StatusUnprocessableEntity)
		return
	}

	c.JSON(http.StatusAccepted, SubmitResponse{
		ExecutionID: handle.ExecutionID,
		Status:      string(handle.Status),
		Path:        string(handle.Path),
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListExecutions(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	records, err := s.engine.List(c.Request.Context(), userID(c), offset, limit)
	if err != nil {
		s.respondError(c, err, http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*domain.ExecutionRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"executions": records,
		"offset":     offset,
		"limit":      limit,
	})
}

func (s *Server) handleGetExecution(c *gin.Context) {
	record, err := s.engine.Status(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		s.respondError(c, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleGetHistory(c *gin.Context) {
	events, err := s.engine.History(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		s.respondError(c, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"execution_id": c.Param("id"),
		"history":      events,
	})
}

func (s *Server) handleGetResult(c *gin.Context) {
	record, err := s.engine.Status(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		s.respondError(c, err, http.StatusInternalServerError)
		return
	}
	if !record.Status.Terminal() {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: ErrorDetail{Code: "NOT_COMPLETED", Message: "execution not yet finished"},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"execution_id":           record.ExecutionID,
		"status":                 record.Status,
		"output_data":            record.OutputData,
		"error_message":          record.ErrorMessage,
		"execution_time_seconds": record.ExecutionTimeSeconds,
		"completed_at":           record.CompletedAt,
	})
}

func (s *Server) handleCancelExecution(c *gin.Context) {
	executionID := c.Param("id")
	if err := s.engine.Cancel(c.Request.Context(), executionID, userID(c)); err != nil {
		s.respondError(c, err, http.StatusConflict)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"execution_id": executionID,
		"status":       "cancelling",
	})
}

func (s *Server) handleExecutionStats(c *gin.Context) {
	stats, err := s.engine.Stats(c.Request.Context(), userID(c))
	if err != nil {
		s.respondError(c, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// respondError maps typed engine errors onto HTTP statuses; fallback
// is used for untyped errors.
func (s *Server) respondError(c *gin.Context, err error, fallback int) {
	detail := ErrorDetail{Code: "INTERNAL_ERROR", Message: err.Error()}
	status := fallback

	if code := domain.ErrorCodeOf(err); code != "" {
		detail.Code = string(code)
		switch code {
		case domain.ErrCodeNotFound:
			status = http.StatusNotFound
		case domain.ErrCodeInvalidConfig, domain.ErrCodeUnregisteredPrimitive, domain.ErrCodeCycleDetected:
			status = http.StatusUnprocessableEntity
		case domain.ErrCodeCancelled:
			status = http.StatusConflict
		}
	}
	c.JSON(status, ErrorResponse{Error: detail})
}
