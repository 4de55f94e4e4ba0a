package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Base mainnet token addresses.
const (
	USDCAddress  = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	CBBTCAddress = "0xcbB7C0000aB88B473b1f5aFd9ef808440eed33bf"
)

// Asset is a token the engine can hold or purchase.
type Asset struct {
	Symbol   string
	Address  common.Address
	Decimals int32
}

var assets = map[string]Asset{
	"USDC":  {Symbol: "USDC", Address: common.HexToAddress(USDCAddress), Decimals: 6},
	"CBBTC": {Symbol: "CBBTC", Address: common.HexToAddress(CBBTCAddress), Decimals: 8},
}

// USDC is the funding asset for every DCA purchase.
var USDC = assets["USDC"]

// AssetBySymbol resolves a target-token symbol, case-insensitive.
func AssetBySymbol(symbol string) (Asset, bool) {
	asset, ok := assets[strings.ToUpper(symbol)]
	return asset, ok
}

// ToMinorUnits converts a decimal amount into the asset's integer minor-unit
// representation. The conversion truncates beyond the asset's precision and
// rejects results that are not positive.
func ToMinorUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	units := amount.Shift(decimals).Truncate(0)
	if !units.IsPositive() {
		return nil, fmt.Errorf("amount %s converts to non-positive minor units", amount)
	}
	return units.BigInt(), nil
}

// FromMinorUnits is the inverse of ToMinorUnits, used for display and logs.
func FromMinorUnits(units *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(units, 0).Shift(-decimals)
}
