package snaptrade

import (
	"context"
	"fmt"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/services/providers"
	"github.com/fintrackhq/fintrack/types"
	"github.com/fintrackhq/fintrack/utils"
	cryptoUtils "github.com/fintrackhq/fintrack/utils/crypto"
)

func holdingsBody(holdingsSynced, transactionsSynced bool) string {
	return fmt.Sprintf(`{
		"account": {
			"id": "acct-1",
			"brokerage_authorization": "auth-1",
			"name": "TFSA",
			"number": "123",
			"institution_name": "Questrade",
			"balance": {"total": {"amount": 1500.25, "currency": "CAD"}},
			"sync_status": {
				"holdings": {"initial_sync_completed": %t},
				"transactions": {"initial_sync_completed": %t}
			}
		},
		"positions": []
	}`, holdingsSynced, transactionsSynced)
}

func TestGetAccountsInitialSyncGate(t *testing.T) {
	httpmock.ActivateNonDefault(utils.GetHTTPClient())
	defer httpmock.DeactivateAndReset()

	adapter := NewAdapter(nil, &config.SnapTradeConfiguration{
		BaseURL:     "https://api.snaptrade.example/api/v1",
		ClientID:    "client-1",
		ConsumerKey: "consumer-key",
	})

	secret, err := cryptoUtils.EncryptSecret("user-secret")
	assert.NoError(t, err)
	params := providers.AccountParams{
		Connection:        &types.ProviderConnection{ProviderUserID: "user-1", Secret: secret},
		ConnectionID:      "auth-1",
		ProviderAccountID: "acct-1",
	}

	ctx := context.Background()
	holdingsURL := "https://api.snaptrade.example/api/v1/accounts/acct-1/holdings"

	t.Run("HoldingsStillSyncing", func(t *testing.T) {
		httpmock.RegisterResponder("GET", holdingsURL,
			httpmock.NewStringResponder(200, holdingsBody(false, true)))

		accounts, err := adapter.GetAccounts(ctx, params)
		assert.ErrorIs(t, err, providers.ErrInitialSyncIncomplete)
		assert.Nil(t, accounts)
	})

	t.Run("TransactionsStillSyncing", func(t *testing.T) {
		httpmock.RegisterResponder("GET", holdingsURL,
			httpmock.NewStringResponder(200, holdingsBody(true, false)))

		accounts, err := adapter.GetAccounts(ctx, params)
		assert.ErrorIs(t, err, providers.ErrInitialSyncIncomplete)
		assert.Nil(t, accounts)
	})

	t.Run("SyncedAccountIsReturned", func(t *testing.T) {
		httpmock.RegisterResponder("GET", holdingsURL,
			httpmock.NewStringResponder(200, holdingsBody(true, true)))

		accounts, err := adapter.GetAccounts(ctx, params)
		assert.NoError(t, err)
		assert.Len(t, accounts, 1)
		assert.Equal(t, "acct-1", accounts[0].ProviderAccountID)
	})
}
