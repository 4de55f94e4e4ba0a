package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/stacksats/dca/internal/tasks"
)

// WorkerService consumes queued batch triggers and drives the DCA service.
type WorkerService struct {
	dca      *DCAService
	sdClient *statsd.Client
	logger   *logrus.Logger
}

func NewWorker(dca *DCAService, sdClient *statsd.Client, logger *logrus.Logger) (*WorkerService, error) {
	if dca == nil {
		return nil, fmt.Errorf("dca service cannot be nil")
	}
	return &WorkerService{
		dca:      dca,
		sdClient: sdClient,
		logger:   logger,
	}, nil
}

func (s *WorkerService) incCounter(name string, value int64, tags []string) {
	if s.sdClient == nil {
		return
	}
	if err := s.sdClient.Count(name, value, tags, 1); err != nil {
		s.logger.Errorf("fail to count metric, err: %v", err)
	}
}

func (s *WorkerService) measureTime(name string, start time.Time, tags []string) {
	if s.sdClient == nil {
		return
	}
	if err := s.sdClient.Timing(name, time.Since(start), tags, 1); err != nil {
		s.logger.Errorf("fail to measure time metric, err: %v", err)
	}
}

// HandleDCABatch runs one batch over every eligible config and writes the
// aggregate summary as the task result.
func (s *WorkerService) HandleDCABatch(ctx context.Context, t *asynq.Task) error {
	var payload tasks.BatchTriggerPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	defer s.measureTime("worker.dca.batch.latency", time.Now(), []string{})
	s.incCounter("worker.dca.batch", 1, []string{})

	s.logger.WithFields(logrus.Fields{
		"trigger_id": payload.TriggerID,
		"source":     payload.Source,
	}).Info("DCA batch trigger received")

	summary, err := s.dca.RunEligible(ctx)
	if err != nil {
		s.logger.Errorf("batch run failed: %v", err)
		return fmt.Errorf("batch run failed: %v: %w", err, asynq.SkipRetry)
	}

	s.incCounter("worker.dca.executed", int64(summary.Executed), []string{})
	s.incCounter("worker.dca.failed", int64(summary.Failed), []string{})

	s.logger.WithFields(logrus.Fields{
		"executed": summary.Executed,
		"failed":   summary.Failed,
	}).Info("DCA batch completed")

	resultBytes, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("json.Marshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if _, err := t.ResultWriter().Write(resultBytes); err != nil {
		return fmt.Errorf("t.ResultWriter.Write failed: %v: %w", err, asynq.SkipRetry)
	}

	return nil
}
