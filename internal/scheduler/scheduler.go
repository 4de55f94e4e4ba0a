package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/stacksats/dca/internal/tasks"
	"github.com/stacksats/dca/storage"
)

// SchedulerService enqueues the DCA batch task on a cron schedule. Duplicate
// triggers within the dedup window are dropped via a redis session key, so a
// restarted scheduler does not double-fire.
type SchedulerService struct {
	schedule string
	client   *asynq.Client
	redis    *storage.RedisStorage
	logger   *logrus.Logger
	cron     *cron.Cron
}

const triggerDedupWindow = 30 * time.Second

func NewSchedulerService(schedule string, client *asynq.Client, redis *storage.RedisStorage, logger *logrus.Logger) *SchedulerService {
	return &SchedulerService{
		schedule: schedule,
		client:   client,
		redis:    redis,
		logger:   logger,
		cron:     cron.New(),
	}
}

func (s *SchedulerService) Start() error {
	_, err := s.cron.AddFunc(s.schedule, s.fire)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.WithField("schedule", s.schedule).Info("DCA scheduler started")
	return nil
}

func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *SchedulerService) fire() {
	ctx := context.Background()

	sessionKey := "dca:trigger:" + time.Now().UTC().Format("2006-01-02T15:04")
	result, err := s.redis.Get(ctx, sessionKey)
	if err == nil && result != "" {
		s.logger.Debug("trigger already fired in this window, skipping")
		return
	}
	if err := s.redis.Set(ctx, sessionKey, sessionKey, triggerDedupWindow); err != nil {
		s.logger.Errorf("fail to set trigger session, err: %v", err)
	}

	payload := tasks.BatchTriggerPayload{
		TriggerID: uuid.New().String(),
		Source:    "cron",
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		s.logger.Errorf("fail to marshal trigger payload, err: %v", err)
		return
	}

	ti, err := s.client.Enqueue(
		asynq.NewTask(tasks.TypeDCABatch, buf),
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(time.Hour),
		asynq.Queue(tasks.QUEUE_NAME),
	)
	if err != nil {
		s.logger.Errorf("fail to enqueue batch task, err: %v", err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"task_id":    ti.ID,
		"trigger_id": payload.TriggerID,
	}).Info("enqueued DCA batch")
}
