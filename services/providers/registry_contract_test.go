package providers_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/services/providers"
	"github.com/fintrackhq/fintrack/services/providers/enablebanking"
	"github.com/fintrackhq/fintrack/services/providers/saltedge"
	"github.com/fintrackhq/fintrack/services/providers/snaptrade"
	"github.com/fintrackhq/fintrack/services/providers/tink"
	"github.com/fintrackhq/fintrack/storage"
	"github.com/fintrackhq/fintrack/types"
	"github.com/fintrackhq/fintrack/utils"
	cryptoUtils "github.com/fintrackhq/fintrack/utils/crypto"
	"github.com/fintrackhq/fintrack/utils/test"
)

func rsaKeyPEM(t *testing.T) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	assert.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
}

// TestProviderContract runs the shared adapter contract once against every
// registered provider: names resolve back through the registry, an
// unregistered user can never reach the upstream API, and account
// snapshots obey the canonical liability sign regardless of how the
// provider reports balances.
func TestProviderContract(t *testing.T) {
	httpmock.Activate()
	httpmock.ActivateNonDefault(utils.GetHTTPClient())
	defer httpmock.DeactivateAndReset()

	conn := test.OpenTestDB(t)
	ctx := context.Background()

	tokens := storage.NewMemoryTokenCache(time.Now)
	secret, err := cryptoUtils.EncryptSecret("user-secret")
	assert.NoError(t, err)

	registry := providers.NewRegistry()
	registry.Register(snaptrade.NewAdapter(conn, &config.SnapTradeConfiguration{
		BaseURL:     "https://api.snaptrade.example/api/v1",
		ClientID:    "client-1",
		ConsumerKey: "consumer-key",
	}))
	registry.Register(saltedge.NewAdapter(conn, &config.SaltEdgeConfiguration{
		BaseURL: "https://saltedge.example/api/v5",
		AppID:   "app-1",
		Secret:  "se-secret",
	}))
	registry.Register(enablebanking.NewAdapter(conn, &config.EnableBankingConfiguration{
		BaseURL:       "https://eb.example",
		ApplicationID: "app-1",
		PrivateKey:    rsaKeyPEM(t),
	}, tokens))
	registry.Register(tink.NewAdapter(conn, &config.TinkConfiguration{
		BaseURL:      "https://tink.example",
		ClientID:     "client-1",
		ClientSecret: "tink-secret",
	}, tokens))

	for _, name := range []string{providers.SnapTrade, providers.SaltEdge, providers.EnableBanking, providers.Tink} {
		_, err := test.CreateTestProvider(conn, map[string]interface{}{"name": name})
		assert.NoError(t, err)
	}
	assert.Len(t, registry.All(), 4)

	cases := []struct {
		name    string
		install func()
		params  providers.AccountParams
	}{
		{
			name: providers.SnapTrade,
			install: func() {
				httpmock.RegisterResponder("GET", "https://api.snaptrade.example/api/v1/accounts",
					httpmock.NewStringResponder(200,
						`[{"id": "acct-st", "brokerage_authorization": "auth-1", "name": "TFSA", "balance": {"total": {"amount": 1500.25, "currency": "CAD"}}}]`))
			},
			params: providers.AccountParams{
				Connection:   &types.ProviderConnection{ProviderUserID: "ext-user", Secret: secret},
				ConnectionID: "auth-1",
			},
		},
		{
			name: providers.SaltEdge,
			install: func() {
				httpmock.RegisterResponder("GET", "https://saltedge.example/api/v5/accounts",
					httpmock.NewStringResponder(200,
						`{"data": [{"id": "acct-se", "name": "Visa", "nature": "credit_card", "balance": 820.55, "currency_code": "EUR"}], "meta": {}}`))
			},
			params: providers.AccountParams{
				Connection:   &types.ProviderConnection{ProviderUserID: "customer-1", Secret: secret},
				ConnectionID: "conn-1",
			},
		},
		{
			name: providers.EnableBanking,
			install: func() {
				httpmock.RegisterResponder("GET", "https://eb.example/sessions/sess-1",
					httpmock.NewStringResponder(200,
						`{"session_id": "sess-1", "status": "AUTHORIZED", "accounts": ["uid-1"]}`))
				httpmock.RegisterResponder("GET", "https://eb.example/accounts/uid-1/details",
					httpmock.NewStringResponder(200,
						`{"uid": "uid-1", "name": "Credit Card", "currency": "EUR", "cash_account_type": "CARD"}`))
				httpmock.RegisterResponder("GET", "https://eb.example/accounts/uid-1/balances",
					httpmock.NewStringResponder(200,
						`{"balances": [{"name": "available", "balance_type": "interimAvailable", "balance_amount": {"amount": "250.00", "currency": "EUR"}}]}`))
			},
			params: providers.AccountParams{
				Connection:   &types.ProviderConnection{ProviderUserID: "eb-user", Secret: secret},
				ConnectionID: "sess-1",
			},
		},
		{
			name: providers.Tink,
			install: func() {
				httpmock.RegisterResponder("POST", "https://tink.example/api/v1/oauth/token",
					httpmock.NewStringResponder(200,
						`{"access_token": "tok-1", "token_type": "bearer", "expires_in": 3600}`))
				httpmock.RegisterResponder("POST", "https://tink.example/api/v1/oauth/authorization-grant",
					httpmock.NewStringResponder(200, `{"code": "grant-code"}`))
				httpmock.RegisterResponder("GET", "https://tink.example/data/v2/accounts",
					httpmock.NewStringResponder(200,
						`{"accounts": [{"id": "acct-tn", "name": "Credit Card", "type": "CREDIT_CARD", "balances": {"booked": {"amount": {"value": {"unscaledValue": "125000", "scale": "2"}, "currencyCode": "GBP"}}}}]}`))
			},
			params: providers.AccountParams{
				Connection: &types.ProviderConnection{ProviderUserID: "tink-user-1", Secret: secret},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			adapter, err := registry.Get(tc.name)
			assert.NoError(t, err)
			assert.Equal(t, tc.name, adapter.Name())

			// a user with no registration never reaches the upstream API
			err = adapter.RefreshConnection(ctx, uuid.New(), "conn-1")
			if !errors.Is(err, providers.ErrNotSupported) {
				assert.True(t, storage.IsNotFound(err), "unexpected refresh error: %v", err)
			}

			tc.install()
			accounts, err := adapter.GetAccounts(ctx, tc.params)
			assert.NoError(t, err)
			assert.NotEmpty(t, accounts)
			for _, account := range accounts {
				assert.NotEmpty(t, account.ProviderAccountID)
				if account.Type == types.AccountTypeLiability {
					assert.False(t, account.Value.IsPositive(),
						"liability %s reported positive: %s", account.ProviderAccountID, account.Value)
				}
			}
		})
	}
}
