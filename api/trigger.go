package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"

	"github.com/stacksats/dca/internal/tasks"
	"github.com/stacksats/dca/internal/types"
)

type batchResponse struct {
	Executed        int                     `json:"executed"`
	Failed          int                     `json:"failed"`
	Results         []types.ExecutionResult `json:"results"`
	Stats           *types.Stats            `json:"stats,omitempty"`
	ExecutionTimeMs int64                   `json:"execution_time_ms"`
}

// TriggerBatch runs one eligibility sweep. It is the endpoint the external
// cron hits and requires the shared bearer secret.
func (s *Server) TriggerBatch(c echo.Context) error {
	if !s.cronAuthorized(c) {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized"))
	}
	return s.runBatch(c)
}

// TriggerBatchManual runs the same sweep without cron auth, for operator use.
func (s *Server) TriggerBatchManual(c echo.Context) error {
	return s.runBatch(c)
}

func (s *Server) runBatch(c echo.Context) error {
	start := time.Now()
	ctx := c.Request().Context()

	summary, err := s.dca.RunEligible(ctx)
	if err != nil {
		s.logger.WithError(err).Error("batch run failed")
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("batch run failed"))
	}

	resp := batchResponse{
		Executed:        summary.Executed,
		Failed:          summary.Failed,
		Results:         summary.Results,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}

	if stats, err := s.db.Stats(ctx); err != nil {
		s.logger.WithError(err).Warn("failed to collect stats")
	} else {
		resp.Stats = stats
	}

	return c.JSON(http.StatusOK, resp)
}

// TriggerBatchAsync enqueues the batch task for the worker instead of
// running it inline, and returns the task ID for polling.
func (s *Server) TriggerBatchAsync(c echo.Context) error {
	if !s.cronAuthorized(c) {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized"))
	}

	payload := tasks.BatchTriggerPayload{
		TriggerID: uuid.New().String(),
		Source:    "api",
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("fail to marshal trigger payload"))
	}

	ti, err := s.client.Enqueue(
		asynq.NewTask(tasks.TypeDCABatch, buf),
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(time.Hour),
		asynq.Queue(tasks.QUEUE_NAME),
	)
	if err != nil {
		s.logger.WithError(err).Error("failed to enqueue batch task")
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("fail to enqueue batch task"))
	}

	return c.JSON(http.StatusAccepted, map[string]string{"task_id": ti.ID})
}

// GetBatchResult returns the stored summary of a finished asynchronous batch.
func (s *Server) GetBatchResult(c echo.Context) error {
	taskID := c.Param("taskId")
	if taskID == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("task id is required"))
	}

	result, err := tasks.GetTaskResult(s.inspector, taskID)
	if err != nil {
		if err.Error() == "task is still in progress" {
			return c.JSON(http.StatusAccepted, NewErrorResponse("task is still in progress"))
		}
		return c.JSON(http.StatusNotFound, NewErrorResponse(err.Error()))
	}

	var summary types.BatchSummary
	if err := json.Unmarshal(result, &summary); err != nil {
		return c.JSON(http.StatusInternalServerError, NewErrorResponse("fail to decode batch result"))
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) cronAuthorized(c echo.Context) bool {
	secret := s.cfg.Server.CronSecret
	if secret == "" {
		return false
	}
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}
