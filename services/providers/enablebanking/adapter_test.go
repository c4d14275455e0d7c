package enablebanking

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/services/providers"
	"github.com/fintrackhq/fintrack/storage"
	"github.com/fintrackhq/fintrack/utils/test"
)

func TestInstitutionIDRoundTrip(t *testing.T) {
	id := EncodeInstitutionID("FI", "Nordea")
	assert.Equal(t, "FI:Nordea", id)

	country, name, err := DecodeInstitutionID(id)
	assert.NoError(t, err)
	assert.Equal(t, "FI", country)
	assert.Equal(t, "Nordea", name)

	// bank names may themselves contain colons
	country, name, err = DecodeInstitutionID("SE:Handelsbanken: Private")
	assert.NoError(t, err)
	assert.Equal(t, "SE", country)
	assert.Equal(t, "Handelsbanken: Private", name)

	for _, malformed := range []string{"", "Nordea", ":Nordea", "FI:"} {
		_, _, err := DecodeInstitutionID(malformed)
		assert.Error(t, err, malformed)
	}
}

func TestPickBalance(t *testing.T) {
	interim := Balance{BalanceType: "interimAvailable", BalanceAmount: Amount{Amount: "100.00", Currency: "EUR"}}
	closing := Balance{BalanceType: "closingBooked", BalanceAmount: Amount{Amount: "90.00", Currency: "EUR"}}
	other := Balance{BalanceType: "expected", BalanceAmount: Amount{Amount: "80.00", Currency: "EUR"}}

	got, ok := pickBalance([]Balance{other, closing, interim})
	assert.True(t, ok)
	assert.Equal(t, "interimAvailable", got.BalanceType)

	got, ok = pickBalance([]Balance{other, closing})
	assert.True(t, ok)
	assert.Equal(t, "closingBooked", got.BalanceType)

	got, ok = pickBalance([]Balance{other})
	assert.True(t, ok)
	assert.Equal(t, "expected", got.BalanceType)

	_, ok = pickBalance(nil)
	assert.False(t, ok)
}

func testPrivateKeyPEM(t *testing.T) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	assert.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
}

func TestCompleteConnect(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	conn := test.OpenTestDB(t)
	ctx := context.Background()

	provider, err := test.CreateTestProvider(conn, map[string]interface{}{"name": providers.EnableBanking})
	assert.NoError(t, err)
	inst, err := test.CreateTestInstitution(conn, provider, map[string]interface{}{
		"provider_institution_id": "FI:Nordea",
		"name":                    "Nordea",
		"country":                 "FI",
	})
	assert.NoError(t, err)
	pc, err := test.CreateTestProviderConnection(conn, provider, nil)
	assert.NoError(t, err)

	adapter := NewAdapter(conn, &config.EnableBankingConfiguration{
		BaseURL:       "https://eb.example",
		ApplicationID: "app-1",
		PrivateKey:    testPrivateKeyPEM(t),
	}, storage.NewMemoryTokenCache(time.Now))

	icRepo := storage.NewInstitutionConnectionRepository(conn)

	t.Run("ExchangesCodeAndLinksInstitution", func(t *testing.T) {
		httpmock.RegisterResponder("POST", "https://eb.example/sessions",
			httpmock.NewStringResponder(200,
				`{"session_id": "sess-1", "status": "AUTHORIZED", "accounts": ["acct-uid-1"], "aspsp": {"name": "Nordea", "country": "FI"}}`))

		link, err := adapter.CompleteConnect(ctx, pc.UserID, "code-1")
		assert.NoError(t, err)
		assert.Equal(t, "sess-1", link.ConnectionID)
		assert.Equal(t, inst.ID, link.InstitutionID)
		assert.Equal(t, pc.ID, link.ProviderConnectionID)
	})

	t.Run("ReplayedRedirectKeepsSingleLink", func(t *testing.T) {
		again, err := adapter.CompleteConnect(ctx, pc.UserID, "code-1")
		assert.NoError(t, err)
		assert.Equal(t, "sess-1", again.ConnectionID)

		links, err := icRepo.ListByProviderConnection(ctx, pc.ID)
		assert.NoError(t, err)
		assert.Len(t, links, 1)
	})

	t.Run("UnknownBankWritesNothing", func(t *testing.T) {
		httpmock.RegisterResponder("POST", "https://eb.example/sessions",
			httpmock.NewStringResponder(200,
				`{"session_id": "sess-2", "status": "AUTHORIZED", "accounts": [], "aspsp": {"name": "Mystery Bank", "country": "SE"}}`))

		_, err := adapter.CompleteConnect(ctx, pc.UserID, "code-2")
		assert.Error(t, err)
		assert.True(t, storage.IsNotFound(err))

		links, err := icRepo.ListByProviderConnection(ctx, pc.ID)
		assert.NoError(t, err)
		assert.Len(t, links, 1)
	})

	t.Run("UnregisteredUserIsNotFound", func(t *testing.T) {
		_, err := adapter.CompleteConnect(ctx, uuid.New(), "code-3")
		assert.Error(t, err)
		assert.True(t, storage.IsNotFound(err))
	})
}
