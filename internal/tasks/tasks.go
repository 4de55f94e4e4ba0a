package tasks

import (
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	QUEUE_NAME = "dca_queue"

	TypeDCABatch = "dca:batch"
)

// BatchTriggerPayload identifies one trigger invocation so overlapping
// triggers can be deduplicated.
type BatchTriggerPayload struct {
	TriggerID string `json:"trigger_id"`
	Source    string `json:"source"`
}

// GetTaskResult returns the stored result of a finished task, or an error
// while it is still in flight.
func GetTaskResult(inspector *asynq.Inspector, taskID string) ([]byte, error) {
	task, err := inspector.GetTaskInfo(QUEUE_NAME, taskID)
	if err != nil {
		return nil, fmt.Errorf("fail to get task info: %w", err)
	}

	switch task.State {
	case asynq.TaskStateCompleted:
		return task.Result, nil
	case asynq.TaskStateArchived:
		return nil, fmt.Errorf("task archived: %s", task.LastErr)
	default:
		return nil, fmt.Errorf("task is still in progress")
	}
}
