package types

import "math/big"

// FailureKind classifies why an execution attempt failed. Every kind aborts
// the attempt without touching accounting state, except AccountingUpdateFailed
// which marks the one place where on-chain effect and persisted state can
// diverge.
type FailureKind string

const (
	FailureAccountNotFound        FailureKind = "account_not_found"
	FailureInvalidAmount          FailureKind = "invalid_amount"
	FailureBalanceCheck           FailureKind = "balance_check_failed"
	FailureInsufficientFunds      FailureKind = "insufficient_funds"
	FailureTransferFailed         FailureKind = "transfer_failed"
	FailureSwapFailed             FailureKind = "swap_failed"
	FailureAccountingUpdateFailed FailureKind = "accounting_update_failed"
)

// ExecutionResult is the outcome of one execution attempt. It is returned to
// the batch runner and never persisted as its own record; success folds into
// the config's accounting fields.
type ExecutionResult struct {
	ConfigID        string      `json:"config_id"`
	Success         bool        `json:"success"`
	TxHash          string      `json:"transaction_hash,omitempty"`
	FailureKind     FailureKind `json:"failure_kind,omitempty"`
	Error           string      `json:"error,omitempty"`
	AmountDeposited *big.Int    `json:"amount_deposited,omitempty"`
	AmountSpent     *big.Int    `json:"amount_spent,omitempty"`
}

// Failed builds a failure result for the given config.
func Failed(configID string, kind FailureKind, err error) ExecutionResult {
	return ExecutionResult{
		ConfigID:    configID,
		FailureKind: kind,
		Error:       err.Error(),
	}
}

// BatchSummary aggregates one batch runner invocation.
type BatchSummary struct {
	Executed int               `json:"executed"`
	Failed   int               `json:"failed"`
	Results  []ExecutionResult `json:"results"`
}

// Stats are the store-level counts exposed by the trigger surface.
type Stats struct {
	TotalUsers    int64 `json:"total_users"`
	TotalConfigs  int64 `json:"total_dca_configs"`
	ActiveConfigs int64 `json:"active_dca_configs"`
}
