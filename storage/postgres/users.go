package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stacksats/dca/internal/types"
	"github.com/stacksats/dca/storage"
)

func (p *PostgresBackend) UpsertUser(ctx context.Context, user types.User) (*types.User, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("database pool is nil")
	}

	var token, allowance *string
	var periodDays *int
	var grantedAt *time.Time
	if user.SpendPermission != nil {
		token = &user.SpendPermission.Token
		allowance = &user.SpendPermission.Allowance
		periodDays = &user.SpendPermission.PeriodInDays
		grantedAt = &user.SpendPermission.GrantedAt
	}

	query := `
		INSERT INTO users (
			address, server_wallet_address, smart_account_address,
			spend_permission_token, spend_permission_allowance,
			spend_permission_period_days, spend_permission_granted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO UPDATE SET
			server_wallet_address = COALESCE(NULLIF(EXCLUDED.server_wallet_address, ''), users.server_wallet_address),
			smart_account_address = COALESCE(NULLIF(EXCLUDED.smart_account_address, ''), users.smart_account_address),
			spend_permission_token = COALESCE(EXCLUDED.spend_permission_token, users.spend_permission_token),
			spend_permission_allowance = COALESCE(EXCLUDED.spend_permission_allowance, users.spend_permission_allowance),
			spend_permission_period_days = COALESCE(EXCLUDED.spend_permission_period_days, users.spend_permission_period_days),
			spend_permission_granted_at = COALESCE(EXCLUDED.spend_permission_granted_at, users.spend_permission_granted_at)
		RETURNING address, server_wallet_address, smart_account_address,
			spend_permission_token, spend_permission_allowance,
			spend_permission_period_days, spend_permission_granted_at, created_at`

	row := p.pool.QueryRow(ctx, query,
		user.Address,
		user.ServerWalletAddress,
		user.SmartAccountAddress,
		token,
		allowance,
		periodDays,
		grantedAt,
	)

	return scanUser(row)
}

func (p *PostgresBackend) GetUser(ctx context.Context, address string) (*types.User, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("database pool is nil")
	}

	query := `
		SELECT address, server_wallet_address, smart_account_address,
			spend_permission_token, spend_permission_allowance,
			spend_permission_period_days, spend_permission_granted_at, created_at
		FROM users
		WHERE address = $1`

	user, err := scanUser(p.pool.QueryRow(ctx, query, address))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*types.User, error) {
	var user types.User
	var token, allowance *string
	var periodDays *int
	var grantedAt *time.Time

	err := row.Scan(
		&user.Address,
		&user.ServerWalletAddress,
		&user.SmartAccountAddress,
		&token,
		&allowance,
		&periodDays,
		&grantedAt,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if token != nil && allowance != nil && periodDays != nil && grantedAt != nil {
		user.SpendPermission = &types.SpendPermission{
			Token:        *token,
			Allowance:    *allowance,
			PeriodInDays: *periodDays,
			GrantedAt:    *grantedAt,
		}
	}

	return &user, nil
}
