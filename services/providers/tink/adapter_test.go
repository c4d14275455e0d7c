package tink

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/fintrackhq/fintrack/types"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		unscaled string
		scale    string
		want     string
	}{
		{"1250", "2", "12.5"},
		{"-4999", "2", "-49.99"},
		{"7", "0", "7"},
		{"42", "3", "0.042"},
	}

	for _, tc := range cases {
		got, err := parseAmount(Amount{Value: AmountValue{UnscaledValue: tc.unscaled, Scale: tc.scale}})
		assert.NoError(t, err)
		assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "got %s want %s", got, tc.want)
	}

	_, err := parseAmount(Amount{Value: AmountValue{UnscaledValue: "abc", Scale: "2"}})
	assert.Error(t, err)

	_, err = parseAmount(Amount{Value: AmountValue{UnscaledValue: "100", Scale: ""}})
	assert.Error(t, err)
}

func TestNormalizeAccount(t *testing.T) {
	acct := Account{ID: "acc-1", Name: "Platinum Card", Type: "CREDIT_CARD"}
	acct.Balances.Booked.Amount = Amount{
		Value:        AmountValue{UnscaledValue: "125000", Scale: "2"},
		CurrencyCode: "GBP",
	}

	got, err := normalizeAccount(acct)
	assert.NoError(t, err)
	assert.Equal(t, types.AccountTypeLiability, got.Type)
	assert.Equal(t, "credit_card", got.Subtype)
	// liabilities are stored non-positive even when reported positive
	assert.True(t, got.Value.Equal(decimal.RequireFromString("-1250")))
	assert.Equal(t, "GBP", got.Currency)

	checking := Account{ID: "acc-2", Name: "Current Account", Type: "CHECKING"}
	checking.Balances.Booked.Amount = Amount{
		Value:        AmountValue{UnscaledValue: "50000", Scale: "2"},
		CurrencyCode: "GBP",
	}

	got, err = normalizeAccount(checking)
	assert.NoError(t, err)
	assert.Equal(t, types.AccountTypeAsset, got.Type)
	assert.True(t, got.Value.Equal(decimal.RequireFromString("500")))
}
