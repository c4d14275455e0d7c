package providers

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/fintrackhq/fintrack/types"
)

func TestNormalizeValue(t *testing.T) {
	// positive liability balances flip to the canonical non-positive sign
	got := NormalizeValue(types.AccountTypeLiability, decimal.NewFromFloat(1250.40))
	assert.True(t, got.Equal(decimal.NewFromFloat(-1250.40)))

	// already-negative liabilities pass through
	got = NormalizeValue(types.AccountTypeLiability, decimal.NewFromFloat(-300))
	assert.True(t, got.Equal(decimal.NewFromFloat(-300)))

	// zero stays zero
	got = NormalizeValue(types.AccountTypeLiability, decimal.Zero)
	assert.True(t, got.IsZero())

	// assets keep their sign in both directions
	got = NormalizeValue(types.AccountTypeAsset, decimal.NewFromFloat(99.99))
	assert.True(t, got.Equal(decimal.NewFromFloat(99.99)))
	got = NormalizeValue(types.AccountTypeAsset, decimal.NewFromFloat(-42))
	assert.True(t, got.Equal(decimal.NewFromFloat(-42)))
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Get("snaptrade")
	assert.ErrorIs(t, err, ErrUnimplementedProvider)
}
