package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stacksats/dca/internal/types"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
)

// DatabaseStorage is the persistence contract consumed by the API server,
// the DCA service and the batch worker. The lifecycle of the underlying
// connection is owned by the process entry point.
type DatabaseStorage interface {
	Close() error

	UpsertUser(ctx context.Context, user types.User) (*types.User, error)
	GetUser(ctx context.Context, address string) (*types.User, error)

	CreateDCAConfig(ctx context.Context, config types.DCAConfig) (*types.DCAConfig, error)
	GetDCAConfig(ctx context.Context, id string) (*types.DCAConfig, error)
	GetUserDCAConfigs(ctx context.Context, userAddress, sort string) ([]types.DCAConfig, error)
	GetAllActiveDCAConfigs(ctx context.Context) ([]types.DCAConfig, error)
	UpdateDCAConfig(ctx context.Context, id string, patch types.DCAConfigPatch) (*types.DCAConfig, error)
	DeleteDCAConfig(ctx context.Context, id string) (bool, error)

	// RecordExecution applies the accounting mutation for one successful
	// execution: totalExecutions+1, totalAmountSpent+amount,
	// lastExecutedAt=executedAt. Exactly one call per success.
	RecordExecution(ctx context.Context, id string, amount decimal.Decimal, executedAt time.Time) error

	Stats(ctx context.Context) (*types.Stats, error)
}
