package main

import (
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/stacksats/dca/config"
	"github.com/stacksats/dca/internal/chain"
	"github.com/stacksats/dca/internal/scheduler"
	"github.com/stacksats/dca/internal/tasks"
	"github.com/stacksats/dca/internal/wallet"
	"github.com/stacksats/dca/service"
	"github.com/stacksats/dca/storage"
	"github.com/stacksats/dca/storage/postgres"
)

func main() {
	cfg, err := config.GetConfigure()
	if err != nil {
		panic(err)
	}

	logger := logrus.StandardLogger()

	sdClient, err := statsd.New(cfg.Datadog.Host + ":" + cfg.Datadog.Port)
	if err != nil {
		panic(err)
	}

	redisStorage, err := storage.NewRedisStorage(cfg.Redis)
	if err != nil {
		panic(err)
	}

	db, err := postgres.NewPostgresBackend(cfg.Server.Database.DSN)
	if err != nil {
		panic(fmt.Errorf("failed to connect to database: %w", err))
	}

	walletClient := wallet.NewClient(cfg.Wallet.ServiceURL, cfg.Wallet.APIKey, logger)

	chainClient, err := chain.NewClient(cfg.Chain.RpcURL, cfg.Chain.DCAContract, walletClient, logger)
	if err != nil {
		panic(fmt.Errorf("failed to connect to chain: %w", err))
	}

	dcaService, err := service.NewDCAService(
		db,
		walletClient,
		chainClient,
		redisStorage,
		time.Duration(cfg.DCA.PacingSeconds)*time.Second,
		time.Duration(cfg.DCA.ClaimTTLSeconds)*time.Second,
		logger,
	)
	if err != nil {
		panic(fmt.Errorf("failed to create DCA service: %w", err))
	}

	worker, err := service.NewWorker(dcaService, sdClient, logger)
	if err != nil {
		panic(fmt.Errorf("failed to create worker: %w", err))
	}

	redisOptions := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	client := asynq.NewClient(redisOptions)
	defer func() {
		if err := client.Close(); err != nil {
			logger.Errorf("fail to close asynq client: %v", err)
		}
	}()

	sched := scheduler.NewSchedulerService(cfg.DCA.Schedule, client, redisStorage, logger)
	if err := sched.Start(); err != nil {
		panic(fmt.Errorf("failed to start scheduler: %w", err))
	}
	defer sched.Stop()

	srv := asynq.NewServer(
		redisOptions,
		asynq.Config{
			Logger:      logger,
			Concurrency: 1,
			Queues: map[string]int{
				tasks.QUEUE_NAME: 10,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeDCABatch, worker.HandleDCABatch)
	if err := srv.Run(mux); err != nil {
		panic(fmt.Errorf("could not run server: %w", err))
	}
}
