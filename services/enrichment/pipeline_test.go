package enrichment_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/services/enrichment"
	"github.com/fintrackhq/fintrack/storage"
	"github.com/fintrackhq/fintrack/utils/test"
)

func TestEnrichTransaction(t *testing.T) {
	conn := test.OpenTestDB(t)
	ctx := context.Background()

	provider, err := test.CreateTestProvider(conn, nil)
	assert.NoError(t, err)
	inst, err := test.CreateTestInstitution(conn, provider, nil)
	assert.NoError(t, err)
	pc, err := test.CreateTestProviderConnection(conn, provider, nil)
	assert.NoError(t, err)
	ic, err := test.CreateTestInstitutionConnection(conn, inst, pc, nil)
	assert.NoError(t, err)
	account, err := test.CreateTestAccount(conn, ic, pc.UserID, nil)
	assert.NoError(t, err)

	txID, err := test.CreateTestTransaction(conn, account, nil)
	assert.NoError(t, err)

	categoryID, err := test.CreateTestCategory(conn, "Coffee & Tea")
	assert.NoError(t, err)

	conf := &config.EnrichmentConfiguration{
		BaseURL:          "https://enrich.example",
		APIKey:           "test-api-key",
		CategoryCacheTTL: time.Minute,
	}
	pipeline := enrichment.NewPipeline(conn, conf, storage.NewMemoryTokenCache(time.Now))

	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	// account holder does not exist yet; the pipeline must create it
	holderURL := "https://enrich.example/account_holders/" + pc.UserID.String()
	probes := 0
	httpmock.RegisterResponder("GET", holderURL,
		func(r *http.Request) (*http.Response, error) {
			probes++
			if probes == 1 {
				return httpmock.NewJsonResponse(404, map[string]interface{}{"error": "not found"})
			}
			return httpmock.NewJsonResponse(200, map[string]interface{}{"id": pc.UserID.String()})
		},
	)
	httpmock.RegisterResponder("POST", "https://enrich.example/account_holders",
		func(r *http.Request) (*http.Response, error) {
			return httpmock.NewJsonResponse(201, map[string]interface{}{"id": pc.UserID.String()})
		},
	)

	category := "Coffee & Tea"
	httpmock.RegisterResponder("POST", "https://enrich.example/transactions",
		func(r *http.Request) (*http.Response, error) {
			return httpmock.NewJsonResponse(200, map[string]interface{}{
				"id": txID.String(),
				"entities": map[string]interface{}{
					"counterparty": map[string]interface{}{"name": "Blue Bottle Coffee"},
				},
				"categories": map[string]interface{}{"general": category},
			})
		},
	)

	repo := storage.NewTransactionRepository(conn)

	t.Run("AppliesCounterpartyAndCategory", func(t *testing.T) {
		err := pipeline.EnrichTransaction(ctx, pc.UserID, txID)
		assert.NoError(t, err)

		got, err := repo.GetByID(ctx, txID)
		assert.NoError(t, err)
		assert.Equal(t, "Blue Bottle Coffee", got.Description)
		assert.NotNil(t, got.CategoryID)
		assert.Equal(t, categoryID, *got.CategoryID)

		assert.Equal(t, 1, httpmock.GetCallCountInfo()["POST https://enrich.example/account_holders"])
	})

	t.Run("UnmatchedCategoryLeavesStoredOneUntouched", func(t *testing.T) {
		category = "Some Upstream Label"

		err := pipeline.EnrichTransaction(ctx, pc.UserID, txID)
		assert.NoError(t, err)

		got, err := repo.GetByID(ctx, txID)
		assert.NoError(t, err)
		assert.NotNil(t, got.CategoryID)
		assert.Equal(t, categoryID, *got.CategoryID)
	})

	t.Run("ExistingHolderIsNotRecreated", func(t *testing.T) {
		category = "Coffee & Tea"

		err := pipeline.EnrichTransaction(ctx, pc.UserID, txID)
		assert.NoError(t, err)

		assert.Equal(t, 1, httpmock.GetCallCountInfo()["POST https://enrich.example/account_holders"])
	})
}
