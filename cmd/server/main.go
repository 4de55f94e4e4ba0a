package main

import (
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/stacksats/dca/api"
	"github.com/stacksats/dca/config"
	"github.com/stacksats/dca/internal/chain"
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

	logger := logrus.New()

	sdClient, err := statsd.New(fmt.Sprintf("%s:%s", cfg.Datadog.Host, cfg.Datadog.Port))
	if err != nil {
		panic(err)
	}

	redisStorage, err := storage.NewRedisStorage(cfg.Redis)
	if err != nil {
		panic(err)
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
	inspector := asynq.NewInspector(redisOptions)

	db, err := postgres.NewPostgresBackend(cfg.Server.Database.DSN)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	walletClient := wallet.NewClient(cfg.Wallet.ServiceURL, cfg.Wallet.APIKey, logger)

	chainClient, err := chain.NewClient(cfg.Chain.RpcURL, cfg.Chain.DCAContract, walletClient, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to chain: %v", err)
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
		logger.Fatalf("Failed to create DCA service: %v", err)
	}

	configService, err := service.NewConfigService(db, logger)
	if err != nil {
		logger.Fatalf("Failed to create config service: %v", err)
	}

	walletService, err := service.NewWalletService(db, walletClient, logger)
	if err != nil {
		logger.Fatalf("Failed to create wallet service: %v", err)
	}

	server := api.NewServer(
		cfg,
		db,
		configService,
		walletService,
		dcaService,
		client,
		inspector,
		sdClient,
		logger,
	)
	if err := server.StartServer(); err != nil {
		panic(err)
	}
}
