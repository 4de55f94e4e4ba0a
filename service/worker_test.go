package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacksats/dca/internal/tasks"
)

func TestNewWorkerRequiresService(t *testing.T) {
	_, err := NewWorker(nil, nil, logrus.New())
	require.Error(t, err)
}

func TestHandleDCABatchRejectsMalformedPayload(t *testing.T) {
	db := newFakeDB()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	dca, err := NewDCAService(db, &fakeWallets{}, &fakeExecutor{}, nil, time.Millisecond, time.Minute, logger)
	require.NoError(t, err)
	worker, err := NewWorker(dca, nil, logger)
	require.NoError(t, err)

	task := asynq.NewTask(tasks.TypeDCABatch, []byte("{not json"))
	err = worker.HandleDCABatch(context.Background(), task)

	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry), "malformed payloads must not be retried")
}
