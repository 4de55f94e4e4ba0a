package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is the cadence at which a DCA config executes.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Interval returns the minimum elapsed time between two executions.
// Months are fixed at 30 days, not calendar-aware.
func (f Frequency) Interval() (time.Duration, bool) {
	switch f {
	case FrequencyDaily:
		return 24 * time.Hour, true
	case FrequencyWeekly:
		return 7 * 24 * time.Hour, true
	case FrequencyMonthly:
		return 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

func (f Frequency) IsValid() bool {
	_, ok := f.Interval()
	return ok
}

// MaxAmountUSD is the per-execution purchase ceiling.
var MaxAmountUSD = decimal.NewFromInt(1000)

// DCAConfig is a recurring purchase instruction owned by a single user.
type DCAConfig struct {
	ID                  string          `json:"id"`
	UserAddress         string          `json:"user_address"`
	ServerWalletAddress string          `json:"server_wallet_address"`
	SmartAccountAddress string          `json:"smart_account_address"`
	TargetToken         string          `json:"target_token"`
	AmountUSD           decimal.Decimal `json:"amount_usd"`
	Frequency           Frequency       `json:"frequency"`
	Active              bool            `json:"is_active"`
	LastExecutedAt      *time.Time      `json:"last_executed_at,omitempty"`
	TotalExecutions     int64           `json:"total_executions"`
	TotalAmountSpent    decimal.Decimal `json:"total_amount_spent"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Validate checks the creation/update invariants: positive bounded amount
// and a recognized frequency.
func (c *DCAConfig) Validate() error {
	if !c.AmountUSD.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", c.AmountUSD)
	}
	if c.AmountUSD.GreaterThan(MaxAmountUSD) {
		return fmt.Errorf("amount %s exceeds maximum of %s USD", c.AmountUSD, MaxAmountUSD)
	}
	if !c.Frequency.IsValid() {
		return fmt.Errorf("invalid frequency %q, must be daily, weekly or monthly", c.Frequency)
	}
	if c.TargetToken == "" {
		return fmt.Errorf("target token is required")
	}
	return nil
}

// DCAConfigPatch carries a partial update. Nil fields are left untouched,
// last-write-wins per field.
type DCAConfigPatch struct {
	TargetToken *string          `json:"target_token,omitempty"`
	AmountUSD   *decimal.Decimal `json:"amount_usd,omitempty"`
	Frequency   *Frequency       `json:"frequency,omitempty"`
	Active      *bool            `json:"is_active,omitempty"`
}

func (p *DCAConfigPatch) Validate() error {
	if p.AmountUSD != nil {
		if !p.AmountUSD.IsPositive() {
			return fmt.Errorf("amount must be positive, got %s", p.AmountUSD)
		}
		if p.AmountUSD.GreaterThan(MaxAmountUSD) {
			return fmt.Errorf("amount %s exceeds maximum of %s USD", p.AmountUSD, MaxAmountUSD)
		}
	}
	if p.Frequency != nil && !p.Frequency.IsValid() {
		return fmt.Errorf("invalid frequency %q, must be daily, weekly or monthly", *p.Frequency)
	}
	if p.TargetToken != nil && *p.TargetToken == "" {
		return fmt.Errorf("target token cannot be empty")
	}
	return nil
}
