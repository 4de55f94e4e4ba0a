package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/sirupsen/logrus"

	"github.com/stacksats/dca/config"
	"github.com/stacksats/dca/service"
	"github.com/stacksats/dca/storage"
)

type Server struct {
	cfg       *config.Config
	db        storage.DatabaseStorage
	configs   service.Configs
	wallets   *service.WalletService
	dca       *service.DCAService
	client    *asynq.Client
	inspector *asynq.Inspector
	sdClient  *statsd.Client
	logger    *logrus.Logger
}

// NewServer returns a new server.
func NewServer(
	cfg *config.Config,
	db storage.DatabaseStorage,
	configs service.Configs,
	wallets *service.WalletService,
	dca *service.DCAService,
	client *asynq.Client,
	inspector *asynq.Inspector,
	sdClient *statsd.Client,
	logger *logrus.Logger,
) *Server {
	return &Server{
		cfg:       cfg,
		db:        db,
		configs:   configs,
		wallets:   wallets,
		dca:       dca,
		client:    client,
		inspector: inspector,
		sdClient:  sdClient,
		logger:    logger,
	}
}

func (s *Server) StartServer() error {
	e := echo.New()
	e.Logger.SetLevel(log.INFO)
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(s.statsdMiddleware)
	e.Use(middleware.CORS())
	limiterStore := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{Rate: 5, Burst: 30, ExpiresIn: 5 * time.Minute},
	)
	e.Use(middleware.RateLimiter(limiterStore))

	e.Validator = &requestValidator{validator: validator.New()}

	e.GET("/ping", s.Ping)

	api := e.Group("/api")

	api.POST("/wallet", s.EnsureWallet)
	api.GET("/wallet", s.GetWallet)

	api.POST("/spend-permission", s.GrantSpendPermission)
	api.GET("/spend-permission", s.GetSpendPermission)

	api.GET("/dca", s.ListDCAConfigs)
	api.POST("/dca", s.CreateDCAConfig)
	api.GET("/dca/:id", s.GetDCAConfig)
	api.PUT("/dca/:id", s.UpdateDCAConfig)
	api.DELETE("/dca/:id", s.DeleteDCAConfig)

	api.POST("/cron/dca", s.TriggerBatch)
	api.GET("/cron/dca", s.TriggerBatchManual)
	api.POST("/cron/dca/async", s.TriggerBatchAsync)
	api.GET("/batch/:taskId", s.GetBatchResult)

	return e.Start(fmt.Sprintf(":%d", s.cfg.Server.Port))
}

func (s *Server) Ping(c echo.Context) error {
	return c.String(http.StatusOK, "DCA server is running")
}

type requestValidator struct {
	validator *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	if err := v.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
