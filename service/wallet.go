package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stacksats/dca/internal/types"
	"github.com/stacksats/dca/internal/wallet"
	"github.com/stacksats/dca/storage"
)

// Provisioner is the wallet service surface needed for get-or-create.
// Satisfied by wallet.Client.
type Provisioner interface {
	GetServerWallet(ctx context.Context, userAddress string) (*wallet.Wallet, error)
	CreateServerWallet(ctx context.Context, userAddress string) (*wallet.Wallet, error)
}

// WalletService provisions funding wallets and keeps the user record in sync
// with the wallet service.
type WalletService struct {
	db      storage.DatabaseStorage
	wallets Provisioner
	logger  *logrus.Logger
}

func NewWalletService(db storage.DatabaseStorage, wallets Provisioner, logger *logrus.Logger) (*WalletService, error) {
	if db == nil {
		return nil, fmt.Errorf("database storage cannot be nil")
	}
	return &WalletService{db: db, wallets: wallets, logger: logger}, nil
}

// Ensure returns the user's server wallet, provisioning one if absent, and
// upserts the user record with the wallet addresses.
func (s *WalletService) Ensure(ctx context.Context, userAddress string) (*types.User, error) {
	w, err := s.wallets.GetServerWallet(ctx, userAddress)
	if errors.Is(err, wallet.ErrNoWallet) {
		w, err = s.wallets.CreateServerWallet(ctx, userAddress)
		if err == nil {
			s.logger.WithFields(logrus.Fields{
				"user":          userAddress,
				"server_wallet": w.Address,
			}).Info("provisioned server wallet")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("fail to provision server wallet: %w", err)
	}

	user, err := s.db.UpsertUser(ctx, types.User{
		Address:             userAddress,
		ServerWalletAddress: w.Address,
		SmartAccountAddress: w.SmartAccountAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("fail to upsert user: %w", err)
	}
	return user, nil
}

// Lookup returns the stored user without provisioning.
func (s *WalletService) Lookup(ctx context.Context, userAddress string) (*types.User, error) {
	return s.db.GetUser(ctx, userAddress)
}

// GrantSpendPermission stores the allowance the user delegated to the server
// wallet. The grant timestamp is set here, not taken from the caller.
func (s *WalletService) GrantSpendPermission(ctx context.Context, userAddress string, grant types.SpendPermission) (*types.User, error) {
	grant.GrantedAt = time.Now().UTC()
	if err := grant.Validate(); err != nil {
		return nil, err
	}

	user, err := s.db.UpsertUser(ctx, types.User{
		Address:         userAddress,
		SpendPermission: &grant,
	})
	if err != nil {
		return nil, fmt.Errorf("fail to store spend permission: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user":      userAddress,
		"token":     grant.Token,
		"allowance": grant.Allowance,
		"period":    grant.PeriodInDays,
	}).Info("stored spend permission")

	return user, nil
}

// SpendPermission returns the user's stored grant, nil when the user exists
// but never granted one.
func (s *WalletService) SpendPermission(ctx context.Context, userAddress string) (*types.SpendPermission, error) {
	user, err := s.db.GetUser(ctx, userAddress)
	if err != nil {
		return nil, err
	}
	return user.SpendPermission, nil
}
