package providers

import (
	"github.com/shopspring/decimal"

	"github.com/fintrackhq/fintrack/types"
)

// NormalizeValue applies the canonical sign convention at the adapter
// boundary: liabilities are stored non-positive regardless of how the
// provider reports them.
func NormalizeValue(accountType types.AccountType, value decimal.Decimal) decimal.Decimal {
	if accountType == types.AccountTypeLiability && value.IsPositive() {
		return value.Neg()
	}
	return value
}
