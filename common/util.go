package common

import (
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// ValidAddress reports whether s is a well-formed 0x-prefixed EVM address.
func ValidAddress(s string) bool {
	return ethcommon.IsHexAddress(s)
}

// NormalizeAddress lowercases a hex address so ownership comparisons are
// not case-sensitive on the checksum casing.
func NormalizeAddress(s string) string {
	return strings.ToLower(s)
}

func GetSortingCondition(sort string) (string, string) {
	// Default sorting column
	orderBy := "created_at"
	orderDirection := "DESC"

	isDescending := strings.HasPrefix(sort, "-")
	columnName := strings.TrimPrefix(sort, "-")

	// Ensure orderBy is a valid column name (prevent SQL injection)
	allowedColumns := map[string]bool{"updated_at": true, "created_at": true, "amount_usd": true}
	if allowedColumns[columnName] {
		orderBy = columnName
		orderDirection = "ASC"
	}

	if isDescending {
		orderDirection = "DESC"
	}

	return orderBy, orderDirection
}
