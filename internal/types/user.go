package types

import (
	"fmt"
	"math/big"
	"time"
)

// SpendPermission records the delegated allowance a user granted to the
// server wallet. Allowance is kept in USDC minor units as a string to avoid
// float rounding on the wire.
type SpendPermission struct {
	Token        string    `json:"token"`
	Allowance    string    `json:"allowance"`
	PeriodInDays int       `json:"period_in_days"`
	GrantedAt    time.Time `json:"granted_at"`
}

func (p *SpendPermission) Validate() error {
	if p.Token == "" {
		return fmt.Errorf("token is required")
	}
	allowance, ok := new(big.Int).SetString(p.Allowance, 10)
	if !ok {
		return fmt.Errorf("allowance %q is not a base-10 integer", p.Allowance)
	}
	if allowance.Sign() <= 0 {
		return fmt.Errorf("allowance must be positive, got %s", p.Allowance)
	}
	if p.PeriodInDays <= 0 {
		return fmt.Errorf("period must be positive, got %d days", p.PeriodInDays)
	}
	return nil
}

// User links a wallet address to its provisioned custodial accounts.
type User struct {
	Address             string           `json:"address"`
	ServerWalletAddress string           `json:"server_wallet_address"`
	SmartAccountAddress string           `json:"smart_account_address"`
	SpendPermission     *SpendPermission `json:"spend_permission,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
}

// HasServerWallet reports whether the user can fund DCA executions.
func (u *User) HasServerWallet() bool {
	return u.ServerWalletAddress != "" && u.SmartAccountAddress != ""
}
