package service

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacksats/dca/internal/chain"
	"github.com/stacksats/dca/internal/types"
	"github.com/stacksats/dca/internal/wallet"
	"github.com/stacksats/dca/storage"
)

type recordedExecution struct {
	configID   string
	amount     decimal.Decimal
	executedAt time.Time
}

type fakeDB struct {
	users     map[string]*types.User
	configs   map[string]*types.DCAConfig
	active    []types.DCAConfig
	activeErr error

	recorded  []recordedExecution
	recordErr error
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users:   make(map[string]*types.User),
		configs: make(map[string]*types.DCAConfig),
	}
}

func (f *fakeDB) Close() error { return nil }

// UpsertUser merges with the stored row the way the postgres backend does:
// empty addresses and a nil grant keep the existing values.
func (f *fakeDB) UpsertUser(_ context.Context, user types.User) (*types.User, error) {
	if existing, ok := f.users[user.Address]; ok {
		if user.ServerWalletAddress == "" {
			user.ServerWalletAddress = existing.ServerWalletAddress
		}
		if user.SmartAccountAddress == "" {
			user.SmartAccountAddress = existing.SmartAccountAddress
		}
		if user.SpendPermission == nil {
			user.SpendPermission = existing.SpendPermission
		}
		user.CreatedAt = existing.CreatedAt
	}
	f.users[user.Address] = &user
	return &user, nil
}

func (f *fakeDB) GetUser(_ context.Context, address string) (*types.User, error) {
	user, ok := f.users[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return user, nil
}

func (f *fakeDB) CreateDCAConfig(_ context.Context, config types.DCAConfig) (*types.DCAConfig, error) {
	config.CreatedAt = time.Now()
	config.UpdatedAt = config.CreatedAt
	f.configs[config.ID] = &config
	return &config, nil
}

func (f *fakeDB) GetDCAConfig(_ context.Context, id string) (*types.DCAConfig, error) {
	config, ok := f.configs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return config, nil
}

func (f *fakeDB) GetUserDCAConfigs(_ context.Context, userAddress, _ string) ([]types.DCAConfig, error) {
	var out []types.DCAConfig
	for _, config := range f.configs {
		if config.UserAddress == userAddress {
			out = append(out, *config)
		}
	}
	return out, nil
}

func (f *fakeDB) GetAllActiveDCAConfigs(_ context.Context) ([]types.DCAConfig, error) {
	if f.activeErr != nil {
		return nil, f.activeErr
	}
	return f.active, nil
}

func (f *fakeDB) UpdateDCAConfig(_ context.Context, id string, patch types.DCAConfigPatch) (*types.DCAConfig, error) {
	config, ok := f.configs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if patch.TargetToken != nil {
		config.TargetToken = *patch.TargetToken
	}
	if patch.AmountUSD != nil {
		config.AmountUSD = *patch.AmountUSD
	}
	if patch.Frequency != nil {
		config.Frequency = *patch.Frequency
	}
	if patch.Active != nil {
		config.Active = *patch.Active
	}
	return config, nil
}

func (f *fakeDB) DeleteDCAConfig(_ context.Context, id string) (bool, error) {
	if _, ok := f.configs[id]; !ok {
		return false, nil
	}
	delete(f.configs, id)
	return true, nil
}

func (f *fakeDB) RecordExecution(_ context.Context, id string, amount decimal.Decimal, executedAt time.Time) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, recordedExecution{configID: id, amount: amount, executedAt: executedAt})
	if config, ok := f.configs[id]; ok {
		config.TotalExecutions++
		config.TotalAmountSpent = config.TotalAmountSpent.Add(amount)
		at := executedAt
		config.LastExecutedAt = &at
	}
	return nil
}

func (f *fakeDB) Stats(_ context.Context) (*types.Stats, error) {
	return &types.Stats{}, nil
}

type fakeWallets struct {
	wallets map[string]*wallet.Wallet
	err     error
}

func (f *fakeWallets) GetServerWallet(_ context.Context, userAddress string) (*wallet.Wallet, error) {
	if f.err != nil {
		return nil, f.err
	}
	w, ok := f.wallets[userAddress]
	if !ok {
		return nil, wallet.ErrNoWallet
	}
	return w, nil
}

type fakeExecutor struct {
	balances   map[string]*big.Int
	balanceErr error
	depositErr error
	buyErr     error

	deposits []string
	buys     []string
}

func (f *fakeExecutor) USDCBalance(_ context.Context, account ethcommon.Address) (*big.Int, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	if balance, ok := f.balances[account.Hex()]; ok {
		return balance, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeExecutor) Deposit(_ context.Context, smartAccount string, _ *big.Int) (string, error) {
	if f.depositErr != nil {
		return "", f.depositErr
	}
	f.deposits = append(f.deposits, smartAccount)
	return fmt.Sprintf("0xdeposit%d", len(f.deposits)), nil
}

func (f *fakeExecutor) BuyBTC(_ context.Context, smartAccount string, _ *big.Int, _ chain.Asset) (string, error) {
	if f.buyErr != nil {
		return "", f.buyErr
	}
	f.buys = append(f.buys, smartAccount)
	return fmt.Sprintf("0xbuy%d", len(f.buys)), nil
}

type fakeClaims struct {
	held     map[string]bool
	claimErr error
	claimed  []string
	released []string
}

func (f *fakeClaims) ClaimExecution(_ context.Context, configID string, _ time.Duration) (bool, error) {
	if f.claimErr != nil {
		return false, f.claimErr
	}
	if f.held[configID] {
		return false, nil
	}
	f.claimed = append(f.claimed, configID)
	return true, nil
}

func (f *fakeClaims) ReleaseExecution(_ context.Context, configID string) error {
	f.released = append(f.released, configID)
	return nil
}

const (
	testUser         = "0x1111111111111111111111111111111111111111"
	testSmartAccount = "0x2222222222222222222222222222222222222222"
	testServerWallet = "0x3333333333333333333333333333333333333333"
)

func testConfig(id string, frequency types.Frequency, lastExecutedAt *time.Time) types.DCAConfig {
	return types.DCAConfig{
		ID:                  id,
		UserAddress:         testUser,
		ServerWalletAddress: testServerWallet,
		SmartAccountAddress: testSmartAccount,
		TargetToken:         "cbBTC",
		AmountUSD:           decimal.NewFromInt(50),
		Frequency:           frequency,
		Active:              true,
		LastExecutedAt:      lastExecutedAt,
	}
}

func testService(t *testing.T, db *fakeDB, wallets *fakeWallets, executor *fakeExecutor, claims Claimer) *DCAService {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	svc, err := NewDCAService(db, wallets, executor, claims, time.Millisecond, time.Minute, logger)
	require.NoError(t, err)
	return svc
}

func fundedSetup(t *testing.T, usdcBalance int64) (*fakeDB, *fakeWallets, *fakeExecutor) {
	t.Helper()
	db := newFakeDB()
	wallets := &fakeWallets{wallets: map[string]*wallet.Wallet{
		testUser: {Address: testServerWallet, SmartAccountAddress: testSmartAccount},
	}}
	executor := &fakeExecutor{balances: map[string]*big.Int{
		ethcommon.HexToAddress(testSmartAccount).Hex(): big.NewInt(usdcBalance),
	}}
	return db, wallets, executor
}

func TestIsDue(t *testing.T) {
	now := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	past := func(d time.Duration) *time.Time {
		at := now.Add(-d)
		return &at
	}

	tests := []struct {
		name   string
		config types.DCAConfig
		due    bool
	}{
		{"never executed is due", testConfig("a", types.FrequencyDaily, nil), true},
		{"daily just under threshold", testConfig("a", types.FrequencyDaily, past(24*time.Hour-time.Minute)), false},
		{"daily at threshold", testConfig("a", types.FrequencyDaily, past(24*time.Hour)), true},
		{"daily past threshold", testConfig("a", types.FrequencyDaily, past(25*time.Hour)), true},
		{"weekly just under threshold", testConfig("a", types.FrequencyWeekly, past(7*24*time.Hour-time.Second)), false},
		{"weekly at threshold", testConfig("a", types.FrequencyWeekly, past(7*24*time.Hour)), true},
		{"monthly just under threshold", testConfig("a", types.FrequencyMonthly, past(30*24*time.Hour-time.Second)), false},
		{"monthly at threshold", testConfig("a", types.FrequencyMonthly, past(30*24*time.Hour)), true},
		{"unknown frequency never due", testConfig("a", "yearly", nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.due, IsDue(&tt.config, now))
		})
	}

	t.Run("inactive config is not due", func(t *testing.T) {
		config := testConfig("a", types.FrequencyDaily, nil)
		config.Active = false
		assert.False(t, IsDue(&config, now))
	})
}

func TestExecuteSuccess(t *testing.T) {
	db, wallets, executor := fundedSetup(t, 100_000_000)
	config := testConfig("cfg-1", types.FrequencyDaily, nil)
	db.configs[config.ID] = &config

	svc := testService(t, db, wallets, executor, nil)
	executedAt := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return executedAt }

	result := svc.Execute(context.Background(), &config)

	require.True(t, result.Success, "execution failed: %s", result.Error)
	assert.Equal(t, "0xbuy1", result.TxHash)
	assert.Equal(t, big.NewInt(50_000_000), result.AmountDeposited)
	assert.Equal(t, big.NewInt(50_000_000), result.AmountSpent)

	require.Len(t, db.recorded, 1)
	assert.Equal(t, "cfg-1", db.recorded[0].configID)
	assert.True(t, db.recorded[0].amount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, executedAt, db.recorded[0].executedAt)
}

func TestExecuteNoServerWallet(t *testing.T) {
	db := newFakeDB()
	wallets := &fakeWallets{wallets: map[string]*wallet.Wallet{}}
	config := testConfig("cfg-1", types.FrequencyDaily, nil)

	svc := testService(t, db, wallets, &fakeExecutor{}, nil)
	result := svc.Execute(context.Background(), &config)

	assert.False(t, result.Success)
	assert.Equal(t, types.FailureAccountNotFound, result.FailureKind)
	assert.Empty(t, db.recorded)
}

func TestExecuteUnknownTargetToken(t *testing.T) {
	db, wallets, executor := fundedSetup(t, 100_000_000)
	config := testConfig("cfg-1", types.FrequencyDaily, nil)
	config.TargetToken = "DOGE"

	svc := testService(t, db, wallets, executor, nil)
	result := svc.Execute(context.Background(), &config)

	assert.False(t, result.Success)
	assert.Equal(t, types.FailureInvalidAmount, result.FailureKind)
	assert.Empty(t, db.recorded)
}

func TestExecuteBalanceQueryFails(t *testing.T) {
	db, wallets, executor := fundedSetup(t, 100_000_000)
	executor.balanceErr = fmt.Errorf("rpc unavailable")
	config := testConfig("cfg-1", types.FrequencyDaily, nil)

	svc := testService(t, db, wallets, executor, nil)
	result := svc.Execute(context.Background(), &config)

	assert.False(t, result.Success)
	assert.Equal(t, types.FailureBalanceCheck, result.FailureKind)
	assert.Empty(t, db.recorded)
}

func TestExecuteInsufficientFunds(t *testing.T) {
	// 50 USD requires 50_000_000 minor units, the account holds less.
	db, wallets, executor := fundedSetup(t, 49_999_999)
	config := testConfig("cfg-1", types.FrequencyDaily, nil)

	svc := testService(t, db, wallets, executor, nil)
	result := svc.Execute(context.Background(), &config)

	assert.False(t, result.Success)
	assert.Equal(t, types.FailureInsufficientFunds, result.FailureKind)
	assert.Empty(t, executor.deposits)
	assert.Empty(t, db.recorded)
}

func TestExecuteDepositFails(t *testing.T) {
	db, wallets, executor := fundedSetup(t, 100_000_000)
	executor.depositErr = fmt.Errorf("userop reverted")
	config := testConfig("cfg-1", types.FrequencyDaily, nil)

	svc := testService(t, db, wallets, executor, nil)
	result := svc.Execute(context.Background(), &config)

	assert.False(t, result.Success)
	assert.Equal(t, types.FailureTransferFailed, result.FailureKind)
	assert.Empty(t, executor.buys)
	assert.Empty(t, db.recorded)
}

func TestExecuteSwapFails(t *testing.T) {
	db, wallets, executor := fundedSetup(t, 100_000_000)
	executor.buyErr = fmt.Errorf("slippage exceeded")
	config := testConfig("cfg-1", types.FrequencyDaily, nil)

	svc := testService(t, db, wallets, executor, nil)
	result := svc.Execute(context.Background(), &config)

	assert.False(t, result.Success)
	assert.Equal(t, types.FailureSwapFailed, result.FailureKind)
	assert.Len(t, executor.deposits, 1)
	assert.Empty(t, db.recorded)
}

func TestExecuteAccountingUpdateFails(t *testing.T) {
	db, wallets, executor := fundedSetup(t, 100_000_000)
	db.recordErr = fmt.Errorf("connection reset")
	config := testConfig("cfg-1", types.FrequencyDaily, nil)

	svc := testService(t, db, wallets, executor, nil)
	result := svc.Execute(context.Background(), &config)

	assert.False(t, result.Success)
	assert.Equal(t, types.FailureAccountingUpdateFailed, result.FailureKind)
	// The swap went through; the result must carry the hash so an operator
	// can reconcile by hand.
	assert.Equal(t, "0xbuy1", result.TxHash)
}

func TestRunEligibleFailureIsolation(t *testing.T) {
	db, wallets, executor := fundedSetup(t, 100_000_000)

	good1 := testConfig("cfg-1", types.FrequencyDaily, nil)
	bad := testConfig("cfg-2", types.FrequencyDaily, nil)
	bad.TargetToken = "DOGE"
	good2 := testConfig("cfg-3", types.FrequencyDaily, nil)

	for _, c := range []types.DCAConfig{good1, bad, good2} {
		config := c
		db.configs[config.ID] = &config
		db.active = append(db.active, config)
	}

	svc := testService(t, db, wallets, executor, nil)
	summary, err := svc.RunEligible(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Executed)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Results, 3)
	assert.Equal(t, "cfg-1", summary.Results[0].ConfigID)
	assert.True(t, summary.Results[0].Success)
	assert.Equal(t, types.FailureInvalidAmount, summary.Results[1].FailureKind)
	assert.True(t, summary.Results[2].Success)

	// Accounting moved only for the successes.
	require.Len(t, db.recorded, 2)
	assert.Equal(t, int64(1), db.configs["cfg-1"].TotalExecutions)
	assert.Equal(t, int64(0), db.configs["cfg-2"].TotalExecutions)
	assert.Equal(t, int64(1), db.configs["cfg-3"].TotalExecutions)
}

func TestRunEligibleFiltersNotDue(t *testing.T) {
	db, wallets, executor := fundedSetup(t, 100_000_000)

	now := time.Now()
	recent := now.Add(-time.Hour)
	due := testConfig("cfg-due", types.FrequencyDaily, nil)
	notDue := testConfig("cfg-recent", types.FrequencyDaily, &recent)

	db.configs[due.ID] = &due
	db.active = []types.DCAConfig{due, notDue}

	svc := testService(t, db, wallets, executor, nil)
	summary, err := svc.RunEligible(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Executed)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, "cfg-due", summary.Results[0].ConfigID)
}

func TestRunEligibleSkipsHeldClaims(t *testing.T) {
	db, wallets, executor := fundedSetup(t, 100_000_000)

	first := testConfig("cfg-1", types.FrequencyDaily, nil)
	second := testConfig("cfg-2", types.FrequencyDaily, nil)
	db.configs[first.ID] = &first
	db.configs[second.ID] = &second
	db.active = []types.DCAConfig{first, second}

	claims := &fakeClaims{held: map[string]bool{"cfg-1": true}}
	svc := testService(t, db, wallets, executor, claims)
	summary, err := svc.RunEligible(context.Background())

	require.NoError(t, err)
	// The held config is neither executed nor failed.
	assert.Equal(t, 1, summary.Executed)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, "cfg-2", summary.Results[0].ConfigID)
	assert.Equal(t, []string{"cfg-2"}, claims.claimed)
	assert.Equal(t, []string{"cfg-2"}, claims.released)
}

func TestRunEligibleSecondSweepNotDue(t *testing.T) {
	db, wallets, executor := fundedSetup(t, 100_000_000)

	config := testConfig("cfg-1", types.FrequencyDaily, nil)
	db.configs[config.ID] = &config
	db.active = []types.DCAConfig{config}

	svc := testService(t, db, wallets, executor, nil)
	first, err := svc.RunEligible(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Executed)

	// Reload the mutated config the way a fresh sweep would.
	db.active = []types.DCAConfig{*db.configs["cfg-1"]}
	second, err := svc.RunEligible(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Executed)
	assert.Empty(t, second.Results)
	require.Len(t, db.recorded, 1)
}

func TestRunEligiblePacing(t *testing.T) {
	db, wallets, executor := fundedSetup(t, 100_000_000)

	for i := 0; i < 3; i++ {
		config := testConfig(fmt.Sprintf("cfg-%d", i), types.FrequencyDaily, nil)
		db.configs[config.ID] = &config
		db.active = append(db.active, config)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	pacing := 30 * time.Millisecond
	svc, err := NewDCAService(db, wallets, executor, nil, pacing, time.Minute, logger)
	require.NoError(t, err)

	start := time.Now()
	summary, err := svc.RunEligible(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Equal(t, 3, summary.Executed)
	assert.GreaterOrEqual(t, elapsed, 2*pacing)
}
