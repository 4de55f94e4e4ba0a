package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/stacksats/dca/internal/chain"
	"github.com/stacksats/dca/internal/types"
	"github.com/stacksats/dca/internal/wallet"
	"github.com/stacksats/dca/storage"
)

// WalletResolver resolves the custodial funding wallet for a user.
type WalletResolver interface {
	GetServerWallet(ctx context.Context, userAddress string) (*wallet.Wallet, error)
}

// Executor performs the on-chain legs of a purchase. Satisfied by
// chain.Client.
type Executor interface {
	USDCBalance(ctx context.Context, account common.Address) (*big.Int, error)
	Deposit(ctx context.Context, smartAccount string, amount *big.Int) (string, error)
	BuyBTC(ctx context.Context, smartAccount string, amount *big.Int, target chain.Asset) (string, error)
}

// Claimer guards a config against double execution by overlapping batch
// invocations. Satisfied by storage.RedisStorage.
type Claimer interface {
	ClaimExecution(ctx context.Context, configID string, ttl time.Duration) (bool, error)
	ReleaseExecution(ctx context.Context, configID string) error
}

// DCAService decides which configs are due, executes each exactly once per
// due cycle and records the outcome against the store.
type DCAService struct {
	db       storage.DatabaseStorage
	wallets  WalletResolver
	executor Executor
	claims   Claimer
	logger   *logrus.Logger

	pacing   time.Duration
	claimTTL time.Duration
	now      func() time.Time
}

func NewDCAService(
	db storage.DatabaseStorage,
	wallets WalletResolver,
	executor Executor,
	claims Claimer,
	pacing time.Duration,
	claimTTL time.Duration,
	logger *logrus.Logger,
) (*DCAService, error) {
	if db == nil {
		return nil, fmt.Errorf("database storage cannot be nil")
	}
	if pacing <= 0 {
		pacing = time.Second
	}
	if claimTTL <= 0 {
		claimTTL = 5 * time.Minute
	}
	return &DCAService{
		db:       db,
		wallets:  wallets,
		executor: executor,
		claims:   claims,
		logger:   logger,
		pacing:   pacing,
		claimTTL: claimTTL,
		now:      time.Now,
	}, nil
}

// IsDue reports whether the config should execute at instant now. A config
// that never executed is always due; otherwise the elapsed time since the
// last execution must meet the frequency threshold. Unknown frequencies are
// never due.
func IsDue(config *types.DCAConfig, now time.Time) bool {
	if !config.Active {
		return false
	}
	if config.LastExecutedAt == nil {
		return true
	}
	interval, ok := config.Frequency.Interval()
	if !ok {
		return false
	}
	return now.Sub(*config.LastExecutedAt) >= interval
}

// Execute performs one purchase attempt for the config. Every failure is
// captured and returned as a failed result; nothing escapes this boundary.
// Accounting state mutates exactly once, and only on success.
func (s *DCAService) Execute(ctx context.Context, config *types.DCAConfig) types.ExecutionResult {
	log := s.logger.WithFields(logrus.Fields{
		"config_id": config.ID,
		"user":      config.UserAddress,
	})
	log.Info("executing DCA purchase")

	w, err := s.wallets.GetServerWallet(ctx, config.UserAddress)
	if err != nil {
		if errors.Is(err, wallet.ErrNoWallet) {
			return types.Failed(config.ID, types.FailureAccountNotFound,
				fmt.Errorf("no server wallet found for user %s", config.UserAddress))
		}
		return types.Failed(config.ID, types.FailureAccountNotFound,
			fmt.Errorf("fail to resolve server wallet: %w", err))
	}
	if w.SmartAccountAddress == "" {
		return types.Failed(config.ID, types.FailureAccountNotFound,
			fmt.Errorf("user %s has no smart account", config.UserAddress))
	}

	required, err := chain.ToMinorUnits(config.AmountUSD, chain.USDC.Decimals)
	if err != nil {
		return types.Failed(config.ID, types.FailureInvalidAmount, err)
	}

	target, ok := chain.AssetBySymbol(config.TargetToken)
	if !ok {
		return types.Failed(config.ID, types.FailureInvalidAmount,
			fmt.Errorf("unknown target token %q", config.TargetToken))
	}

	account := common.HexToAddress(w.SmartAccountAddress)
	balance, err := s.executor.USDCBalance(ctx, account)
	if err != nil {
		return types.Failed(config.ID, types.FailureBalanceCheck,
			fmt.Errorf("fail to query USDC balance: %w", err))
	}
	if balance.Cmp(required) < 0 {
		return types.Failed(config.ID, types.FailureInsufficientFunds,
			fmt.Errorf("insufficient USDC balance: required %s, available %s", required, balance))
	}

	depositTx, err := s.executor.Deposit(ctx, w.SmartAccountAddress, required)
	if err != nil {
		return types.Failed(config.ID, types.FailureTransferFailed, err)
	}
	log.WithField("tx_hash", depositTx).Info("deposit confirmed")

	buyTx, err := s.executor.BuyBTC(ctx, w.SmartAccountAddress, required, target)
	if err != nil {
		return types.Failed(config.ID, types.FailureSwapFailed, err)
	}
	log.WithField("tx_hash", buyTx).Info("buy confirmed")

	executedAt := s.now()
	if err := s.db.RecordExecution(ctx, config.ID, config.AmountUSD, executedAt); err != nil {
		// The purchase settled on-chain but the store did not persist it.
		// There is no automatic reconciliation; flag loudly for manual
		// intervention.
		log.WithError(err).WithFields(logrus.Fields{
			"deposit_tx": depositTx,
			"buy_tx":     buyTx,
		}).Error("accounting update failed after successful on-chain execution, manual reconciliation required")
		result := types.Failed(config.ID, types.FailureAccountingUpdateFailed,
			fmt.Errorf("accounting update failed after swap %s: %w", buyTx, err))
		result.TxHash = buyTx
		return result
	}

	return types.ExecutionResult{
		ConfigID:        config.ID,
		Success:         true,
		TxHash:          buyTx,
		AmountDeposited: required,
		AmountSpent:     required,
	}
}

// RunEligible loads every active config, filters by IsDue and executes the
// eligible ones strictly sequentially with a fixed minimum interval between
// executions. Failures are isolated per config; the batch always runs to the
// end of its eligible set.
func (s *DCAService) RunEligible(ctx context.Context) (*types.BatchSummary, error) {
	active, err := s.db.GetAllActiveDCAConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("fail to load active configs: %w", err)
	}

	now := s.now()
	var eligible []types.DCAConfig
	for _, config := range active {
		if IsDue(&config, now) {
			eligible = append(eligible, config)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"active":   len(active),
		"eligible": len(eligible),
	}).Info("starting DCA batch")

	summary := &types.BatchSummary{Results: make([]types.ExecutionResult, 0, len(eligible))}

	// Single-worker pacing: one token per interval, no burst, so every
	// execution after the first waits out the full interval.
	limiter := rate.NewLimiter(rate.Every(s.pacing), 1)

	for i := range eligible {
		config := &eligible[i]

		if err := limiter.Wait(ctx); err != nil {
			return summary, fmt.Errorf("batch interrupted: %w", err)
		}

		if !s.claim(ctx, config.ID) {
			continue
		}

		result := s.Execute(ctx, config)
		s.release(ctx, config.ID)

		summary.Results = append(summary.Results, result)
		if result.Success {
			summary.Executed++
		} else {
			summary.Failed++
			s.logger.WithFields(logrus.Fields{
				"config_id": config.ID,
				"kind":      result.FailureKind,
			}).Warnf("DCA execution failed: %s", result.Error)
		}
	}

	return summary, nil
}

// claim takes the per-config execution lock. A config whose claim is held by
// another invocation is skipped, counted neither executed nor failed.
func (s *DCAService) claim(ctx context.Context, configID string) bool {
	if s.claims == nil {
		return true
	}
	ok, err := s.claims.ClaimExecution(ctx, configID, s.claimTTL)
	if err != nil {
		s.logger.WithError(err).WithField("config_id", configID).
			Warn("fail to claim execution, skipping config")
		return false
	}
	if !ok {
		s.logger.WithField("config_id", configID).
			Info("config already claimed by another invocation, skipping")
	}
	return ok
}

func (s *DCAService) release(ctx context.Context, configID string) {
	if s.claims == nil {
		return
	}
	if err := s.claims.ReleaseExecution(ctx, configID); err != nil {
		s.logger.WithError(err).WithField("config_id", configID).
			Warn("fail to release execution claim")
	}
}
