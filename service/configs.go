package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/stacksats/dca/internal/types"
	"github.com/stacksats/dca/storage"
)

// ErrUnauthorized is returned when a user touches a config they do not own.
var ErrUnauthorized = errors.New("config does not belong to user")

// CreateConfigParams are the user-supplied fields of a new config.
type CreateConfigParams struct {
	TargetToken string          `json:"target_token" validate:"required"`
	AmountUSD   decimal.Decimal `json:"amount_usd" validate:"required"`
	Frequency   types.Frequency `json:"frequency" validate:"required"`
}

// Configs manages the lifecycle of DCA configurations. Every read and
// mutation path verifies ownership before touching the record.
type Configs interface {
	Create(ctx context.Context, userAddress string, params CreateConfigParams) (*types.DCAConfig, error)
	Get(ctx context.Context, userAddress, id string) (*types.DCAConfig, error)
	List(ctx context.Context, userAddress, sort string) ([]types.DCAConfig, error)
	Update(ctx context.Context, userAddress, id string, patch types.DCAConfigPatch) (*types.DCAConfig, error)
	Delete(ctx context.Context, userAddress, id string) error
}

var _ Configs = (*ConfigService)(nil)

type ConfigService struct {
	db     storage.DatabaseStorage
	logger *logrus.Logger
}

func NewConfigService(db storage.DatabaseStorage, logger *logrus.Logger) (*ConfigService, error) {
	if db == nil {
		return nil, fmt.Errorf("database storage cannot be nil")
	}
	return &ConfigService{db: db, logger: logger}, nil
}

// Create validates the parameters and persists a new active config with
// zeroed accounting fields. The user must exist and have a server wallet
// provisioned.
func (s *ConfigService) Create(ctx context.Context, userAddress string, params CreateConfigParams) (*types.DCAConfig, error) {
	user, err := s.db.GetUser(ctx, userAddress)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("user %s not found", userAddress)
		}
		return nil, fmt.Errorf("fail to load user: %w", err)
	}
	if !user.HasServerWallet() {
		return nil, fmt.Errorf("user %s does not have a server wallet", userAddress)
	}

	config := types.DCAConfig{
		ID:                  uuid.New().String(),
		UserAddress:         userAddress,
		ServerWalletAddress: user.ServerWalletAddress,
		SmartAccountAddress: user.SmartAccountAddress,
		TargetToken:         params.TargetToken,
		AmountUSD:           params.AmountUSD,
		Frequency:           params.Frequency,
		Active:              true,
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	created, err := s.db.CreateDCAConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("fail to create config: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"config_id": created.ID,
		"user":      userAddress,
		"amount":    created.AmountUSD,
		"frequency": created.Frequency,
	}).Info("created DCA config")

	return created, nil
}

func (s *ConfigService) Get(ctx context.Context, userAddress, id string) (*types.DCAConfig, error) {
	return s.owned(ctx, userAddress, id)
}

func (s *ConfigService) List(ctx context.Context, userAddress, sort string) ([]types.DCAConfig, error) {
	configs, err := s.db.GetUserDCAConfigs(ctx, userAddress, sort)
	if err != nil {
		return nil, fmt.Errorf("fail to list configs: %w", err)
	}
	return configs, nil
}

func (s *ConfigService) Update(ctx context.Context, userAddress, id string, patch types.DCAConfigPatch) (*types.DCAConfig, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, userAddress, id); err != nil {
		return nil, err
	}

	updated, err := s.db.UpdateDCAConfig(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("fail to update config: %w", err)
	}
	return updated, nil
}

func (s *ConfigService) Delete(ctx context.Context, userAddress, id string) error {
	if _, err := s.owned(ctx, userAddress, id); err != nil {
		return err
	}

	deleted, err := s.db.DeleteDCAConfig(ctx, id)
	if err != nil {
		return fmt.Errorf("fail to delete config: %w", err)
	}
	if !deleted {
		return storage.ErrNotFound
	}

	s.logger.WithFields(logrus.Fields{
		"config_id": id,
		"user":      userAddress,
	}).Info("deleted DCA config")

	return nil
}

// owned fetches the config and enforces the ownership invariant.
func (s *ConfigService) owned(ctx context.Context, userAddress, id string) (*types.DCAConfig, error) {
	config, err := s.db.GetDCAConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	if config.UserAddress != userAddress {
		return nil, ErrUnauthorized
	}
	return config, nil
}
