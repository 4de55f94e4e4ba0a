package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/stacksats/dca/common"
	"github.com/stacksats/dca/internal/types"
	"github.com/stacksats/dca/storage"
)

const dcaConfigColumns = `id, user_address, server_wallet_address, smart_account_address,
	target_token, amount_usd, frequency, is_active, last_executed_at,
	total_executions, total_amount_spent, created_at, updated_at`

func (p *PostgresBackend) CreateDCAConfig(ctx context.Context, config types.DCAConfig) (*types.DCAConfig, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("database pool is nil")
	}

	query := `
		INSERT INTO dca_configs (
			id, user_address, server_wallet_address, smart_account_address,
			target_token, amount_usd, frequency, is_active,
			total_executions, total_amount_spent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, 0)
		RETURNING ` + dcaConfigColumns

	created, err := scanDCAConfig(p.pool.QueryRow(ctx, query,
		config.ID,
		config.UserAddress,
		config.ServerWalletAddress,
		config.SmartAccountAddress,
		config.TargetToken,
		config.AmountUSD,
		config.Frequency,
		config.Active,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert config: %w", err)
	}
	return created, nil
}

func (p *PostgresBackend) GetDCAConfig(ctx context.Context, id string) (*types.DCAConfig, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("database pool is nil")
	}

	query := `SELECT ` + dcaConfigColumns + ` FROM dca_configs WHERE id = $1`

	config, err := scanDCAConfig(p.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	return config, nil
}

func (p *PostgresBackend) GetUserDCAConfigs(ctx context.Context, userAddress, sort string) ([]types.DCAConfig, error) {
	orderBy, orderDirection := common.GetSortingCondition(sort)

	query := fmt.Sprintf(`SELECT %s
		FROM dca_configs
		WHERE user_address = $1
		ORDER BY %s %s`, dcaConfigColumns, orderBy, orderDirection)

	return p.queryConfigs(ctx, query, userAddress)
}

func (p *PostgresBackend) GetAllActiveDCAConfigs(ctx context.Context) ([]types.DCAConfig, error) {
	query := `SELECT ` + dcaConfigColumns + `
		FROM dca_configs
		WHERE is_active = TRUE
		ORDER BY created_at DESC`

	return p.queryConfigs(ctx, query)
}

// UpdateDCAConfig applies a partial update: nil patch fields keep the stored
// value, last-write-wins per field.
func (p *PostgresBackend) UpdateDCAConfig(ctx context.Context, id string, patch types.DCAConfigPatch) (*types.DCAConfig, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("database pool is nil")
	}

	query := `
		UPDATE dca_configs SET
			target_token = COALESCE($2, target_token),
			amount_usd = COALESCE($3, amount_usd),
			frequency = COALESCE($4, frequency),
			is_active = COALESCE($5, is_active),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + dcaConfigColumns

	updated, err := scanDCAConfig(p.pool.QueryRow(ctx, query,
		id,
		patch.TargetToken,
		patch.AmountUSD,
		patch.Frequency,
		patch.Active,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update config: %w", err)
	}
	return updated, nil
}

func (p *PostgresBackend) DeleteDCAConfig(ctx context.Context, id string) (bool, error) {
	if p.pool == nil {
		return false, fmt.Errorf("database pool is nil")
	}

	tag, err := p.pool.Exec(ctx, `DELETE FROM dca_configs WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete config: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *PostgresBackend) RecordExecution(ctx context.Context, id string, amount decimal.Decimal, executedAt time.Time) error {
	if p.pool == nil {
		return fmt.Errorf("database pool is nil")
	}

	query := `
		UPDATE dca_configs SET
			total_executions = total_executions + 1,
			total_amount_spent = total_amount_spent + $2,
			last_executed_at = $3,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := p.pool.Exec(ctx, query, id, amount, executedAt)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (p *PostgresBackend) Stats(ctx context.Context) (*types.Stats, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("database pool is nil")
	}

	query := `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM dca_configs),
			(SELECT COUNT(*) FROM dca_configs WHERE is_active = TRUE)`

	var stats types.Stats
	err := p.pool.QueryRow(ctx, query).Scan(&stats.TotalUsers, &stats.TotalConfigs, &stats.ActiveConfigs)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &stats, nil
}

func (p *PostgresBackend) queryConfigs(ctx context.Context, query string, args ...any) ([]types.DCAConfig, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("database pool is nil")
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []types.DCAConfig
	for rows.Next() {
		config, err := scanDCAConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *config)
	}
	return configs, rows.Err()
}

func scanDCAConfig(row pgx.Row) (*types.DCAConfig, error) {
	var config types.DCAConfig
	err := row.Scan(
		&config.ID,
		&config.UserAddress,
		&config.ServerWalletAddress,
		&config.SmartAccountAddress,
		&config.TargetToken,
		&config.AmountUSD,
		&config.Frequency,
		&config.Active,
		&config.LastExecutedAt,
		&config.TotalExecutions,
		&config.TotalAmountSpent,
		&config.CreatedAt,
		&config.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &config, nil
}
