package webhooks_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/controllers/webhooks"
	"github.com/fintrackhq/fintrack/services/providers"
	"github.com/fintrackhq/fintrack/services/providers/snaptrade"
	"github.com/fintrackhq/fintrack/services/reconciler"
	"github.com/fintrackhq/fintrack/storage"
	"github.com/fintrackhq/fintrack/types"
	"github.com/fintrackhq/fintrack/utils"
	cryptoUtils "github.com/fintrackhq/fintrack/utils/crypto"
	"github.com/fintrackhq/fintrack/utils/test"
)

func TestSnapTradeWebhook(t *testing.T) {
	gin.SetMode(gin.TestMode)

	conn := test.OpenTestDB(t)
	ctx := context.Background()

	provider, err := test.CreateTestProvider(conn, map[string]interface{}{"name": providers.SnapTrade})
	assert.NoError(t, err)
	inst, err := test.CreateTestInstitution(conn, provider, nil)
	assert.NoError(t, err)
	pc, err := test.CreateTestProviderConnection(conn, provider, nil)
	assert.NoError(t, err)

	conf := &config.SnapTradeConfiguration{WebhookSecret: "s3cret"}
	service := reconciler.NewService(conn, providers.NewRegistry(), nil, nil)

	router := gin.New()
	router.POST("/callback/providers/snaptrade", webhooks.NewSnapTradeController(service, conf).Handle)

	post := func(payload map[string]interface{}) *httptest.ResponseRecorder {
		body, err := json.Marshal(payload)
		assert.NoError(t, err)

		req := httptest.NewRequest("POST", "/callback/providers/snaptrade", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		res := httptest.NewRecorder()
		router.ServeHTTP(res, req)
		return res
	}

	icRepo := storage.NewInstitutionConnectionRepository(conn)

	t.Run("InvalidSecretWritesNothing", func(t *testing.T) {
		res := post(map[string]interface{}{
			"userId":                   pc.ProviderUserID,
			"eventType":                "CONNECTION_ADDED",
			"webhookSecret":            "wrong",
			"brokerageId":              inst.ProviderInstitutionID,
			"brokerageAuthorizationId": "auth-1",
		})
		assert.Equal(t, http.StatusUnauthorized, res.Code)

		links, err := icRepo.ListByProviderConnection(ctx, pc.ID)
		assert.NoError(t, err)
		assert.Empty(t, links)
	})

	t.Run("MalformedPayload", func(t *testing.T) {
		res := post(map[string]interface{}{"eventType": "CONNECTION_ADDED"})
		assert.Equal(t, http.StatusBadRequest, res.Code)

		var body types.WebhookResponse
		assert.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
		assert.False(t, body.Success)
	})

	t.Run("ConnectionAdded", func(t *testing.T) {
		res := post(map[string]interface{}{
			"userId":                   pc.ProviderUserID,
			"eventType":                "CONNECTION_ADDED",
			"webhookSecret":            "s3cret",
			"brokerageId":              inst.ProviderInstitutionID,
			"brokerageAuthorizationId": "auth-1",
		})
		assert.Equal(t, http.StatusOK, res.Code)

		ic, err := icRepo.GetByConnectionID(ctx, pc.ID, "auth-1")
		assert.NoError(t, err)
		assert.Equal(t, inst.ID, ic.InstitutionID)
	})

	t.Run("UnknownUserIs404", func(t *testing.T) {
		res := post(map[string]interface{}{
			"userId":                   "nobody",
			"eventType":                "CONNECTION_ADDED",
			"webhookSecret":            "s3cret",
			"brokerageId":              inst.ProviderInstitutionID,
			"brokerageAuthorizationId": "auth-2",
		})
		assert.Equal(t, http.StatusNotFound, res.Code)
	})

	t.Run("ConnectionBrokenAndFixed", func(t *testing.T) {
		res := post(map[string]interface{}{
			"userId":                   pc.ProviderUserID,
			"eventType":                "CONNECTION_BROKEN",
			"webhookSecret":            "s3cret",
			"brokerageAuthorizationId": "auth-1",
		})
		assert.Equal(t, http.StatusOK, res.Code)

		ic, err := icRepo.GetByConnectionID(ctx, pc.ID, "auth-1")
		assert.NoError(t, err)
		assert.True(t, ic.Broken)

		res = post(map[string]interface{}{
			"userId":                   pc.ProviderUserID,
			"eventType":                "CONNECTION_FIXED",
			"webhookSecret":            "s3cret",
			"brokerageAuthorizationId": "auth-1",
		})
		assert.Equal(t, http.StatusOK, res.Code)

		ic, err = icRepo.GetByConnectionID(ctx, pc.ID, "auth-1")
		assert.NoError(t, err)
		assert.False(t, ic.Broken)
	})

	t.Run("UserRegisteredOnlyAcks", func(t *testing.T) {
		res := post(map[string]interface{}{
			"userId":        pc.ProviderUserID,
			"eventType":     "USER_REGISTERED",
			"webhookSecret": "s3cret",
		})
		assert.Equal(t, http.StatusOK, res.Code)

		var body types.WebhookResponse
		assert.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
		assert.True(t, body.Success)
	})

	t.Run("ConnectionDeleted", func(t *testing.T) {
		res := post(map[string]interface{}{
			"userId":                   pc.ProviderUserID,
			"eventType":                "CONNECTION_DELETED",
			"webhookSecret":            "s3cret",
			"brokerageAuthorizationId": "auth-1",
		})
		assert.Equal(t, http.StatusOK, res.Code)

		_, err := icRepo.GetByConnectionID(ctx, pc.ID, "auth-1")
		assert.True(t, storage.IsNotFound(err))
	})
}

func TestSnapTradeWebhookInitialSyncGate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	httpmock.ActivateNonDefault(utils.GetHTTPClient())
	defer httpmock.DeactivateAndReset()

	conn := test.OpenTestDB(t)
	ctx := context.Background()

	provider, err := test.CreateTestProvider(conn, map[string]interface{}{"name": providers.SnapTrade})
	assert.NoError(t, err)
	inst, err := test.CreateTestInstitution(conn, provider, nil)
	assert.NoError(t, err)

	secret, err := cryptoUtils.EncryptSecret("user-secret")
	assert.NoError(t, err)
	pc, err := test.CreateTestProviderConnection(conn, provider, map[string]interface{}{"secret": secret})
	assert.NoError(t, err)
	_, err = test.CreateTestInstitutionConnection(conn, inst, pc, map[string]interface{}{"connection_id": "auth-1"})
	assert.NoError(t, err)

	conf := &config.SnapTradeConfiguration{
		BaseURL:       "https://api.snaptrade.example/api/v1",
		ClientID:      "client-1",
		ConsumerKey:   "consumer-key",
		WebhookSecret: "s3cret",
	}
	registry := providers.NewRegistry()
	registry.Register(snaptrade.NewAdapter(conn, conf))
	service := reconciler.NewService(conn, registry, nil, nil)

	router := gin.New()
	router.POST("/callback/providers/snaptrade", webhooks.NewSnapTradeController(service, conf).Handle)

	// the account is still running its first sync upstream
	httpmock.RegisterResponder("GET", "https://api.snaptrade.example/api/v1/accounts/acct-1/holdings",
		httpmock.NewStringResponder(200, `{
			"account": {
				"id": "acct-1",
				"brokerage_authorization": "auth-1",
				"name": "TFSA",
				"balance": {"total": {"amount": 1500.25, "currency": "CAD"}},
				"sync_status": {
					"holdings": {"initial_sync_completed": false},
					"transactions": {"initial_sync_completed": false}
				}
			},
			"positions": []
		}`))

	body, err := json.Marshal(map[string]interface{}{
		"userId":                   pc.ProviderUserID,
		"eventType":                "ACCOUNT_HOLDINGS_UPDATED",
		"webhookSecret":            "s3cret",
		"brokerageId":              inst.ProviderInstitutionID,
		"brokerageAuthorizationId": "auth-1",
		"accountId":                "acct-1",
	})
	assert.NoError(t, err)

	req := httptest.NewRequest("POST", "/callback/providers/snaptrade", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	// 500 keeps the event on the provider's redelivery schedule
	assert.Equal(t, http.StatusInternalServerError, res.Code)

	var envelope types.WebhookResponse
	assert.NoError(t, json.Unmarshal(res.Body.Bytes(), &envelope))
	assert.False(t, envelope.Success)
	assert.Equal(t, "initial sync incomplete", envelope.Error)

	accounts, err := storage.NewAccountRepository(conn).ListByUser(ctx, pc.UserID)
	assert.NoError(t, err)
	assert.Empty(t, accounts)
}
