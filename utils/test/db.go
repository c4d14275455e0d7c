package test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	db "github.com/fintrackhq/fintrack/storage"
	"github.com/fintrackhq/fintrack/types"
)

// OpenTestDB opens an in-memory sqlite database with the full schema
// applied. The database is private to the calling test and closed on
// cleanup.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", name))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	conn.SetMaxOpenConns(1)

	if err := db.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// CreateTestProvider creates a test provider with default or custom values
func CreateTestProvider(conn *sql.DB, overrides map[string]interface{}) (*types.Provider, error) {

	// Default payload
	payload := map[string]interface{}{
		"name":     "snaptrade",
		"logo_url": "https://assets.example.com/snaptrade.png",
	}

	// Apply overrides
	for key, value := range overrides {
		payload[key] = value
	}

	provider := types.Provider{
		ID:      uuid.New(),
		Name:    payload["name"].(string),
		LogoURL: payload["logo_url"].(string),
	}

	id, err := db.NewProviderRepository(conn).Upsert(context.Background(), provider)
	if err != nil {
		return nil, err
	}
	provider.ID = id

	return &provider, nil
}

// CreateTestInstitution creates a test institution with default or custom values
func CreateTestInstitution(conn *sql.DB, provider *types.Provider, overrides map[string]interface{}) (*types.Institution, error) {

	// Default payload
	payload := map[string]interface{}{
		"provider_institution_id": "QUESTRADE",
		"name":                    "Questrade",
		"logo_url":                "https://assets.example.com/questrade.png",
		"country":                 "CA",
		"enabled":                 true,
	}

	// Apply overrides
	for key, value := range overrides {
		payload[key] = value
	}

	inst := types.Institution{
		ID:                    uuid.New(),
		ProviderID:            provider.ID,
		ProviderInstitutionID: payload["provider_institution_id"].(string),
		Name:                  payload["name"].(string),
		LogoURL:               payload["logo_url"].(string),
		Country:               payload["country"].(string),
		Enabled:               payload["enabled"].(bool),
	}

	id, err := db.NewInstitutionRepository(conn).Upsert(context.Background(), inst)
	if err != nil {
		return nil, err
	}
	inst.ID = id

	return &inst, nil
}

// CreateTestProviderConnection creates a test provider connection with
// default or custom values
func CreateTestProviderConnection(conn *sql.DB, provider *types.Provider, overrides map[string]interface{}) (*types.ProviderConnection, error) {

	// Default payload
	payload := map[string]interface{}{
		"user_id":          uuid.New(),
		"provider_user_id": "customer-123",
		"secret":           "encrypted-secret",
	}

	// Apply overrides
	for key, value := range overrides {
		payload[key] = value
	}

	pc := types.ProviderConnection{
		ID:             uuid.New(),
		UserID:         payload["user_id"].(uuid.UUID),
		ProviderID:     provider.ID,
		ProviderUserID: payload["provider_user_id"].(string),
		Secret:         payload["secret"].(string),
	}

	if err := db.NewProviderConnectionRepository(conn).Create(context.Background(), pc); err != nil {
		return nil, err
	}

	return &pc, nil
}

// CreateTestInstitutionConnection links a provider connection to an
// institution with default or custom values
func CreateTestInstitutionConnection(conn *sql.DB, inst *types.Institution, pc *types.ProviderConnection, overrides map[string]interface{}) (*types.InstitutionConnection, error) {

	// Default payload
	payload := map[string]interface{}{
		"connection_id": "connection-abc",
		"broken":        false,
	}

	// Apply overrides
	for key, value := range overrides {
		payload[key] = value
	}

	ic := types.InstitutionConnection{
		ID:                   uuid.New(),
		InstitutionID:        inst.ID,
		ProviderConnectionID: pc.ID,
		ConnectionID:         payload["connection_id"].(string),
		Broken:               payload["broken"].(bool),
	}

	id, err := db.NewInstitutionConnectionRepository(conn).Upsert(context.Background(), ic)
	if err != nil {
		return nil, err
	}
	ic.ID = id

	return &ic, nil
}

// CreateTestAccount creates a provider-sourced test account with default
// or custom values
func CreateTestAccount(conn *sql.DB, ic *types.InstitutionConnection, userID uuid.UUID, overrides map[string]interface{}) (*types.Account, error) {

	// Default payload
	payload := map[string]interface{}{
		"type":                "asset",
		"subtype":             "checking",
		"name":                "Everyday Chequing",
		"value":               1500.25,
		"currency":            "CAD",
		"provider_account_id": "account-1",
		"image":               "",
	}

	// Apply overrides
	for key, value := range overrides {
		payload[key] = value
	}

	acct := types.Account{
		ID:                uuid.New(),
		Type:              types.AccountType(payload["type"].(string)),
		Subtype:           payload["subtype"].(string),
		UserID:            userID,
		Name:              payload["name"].(string),
		Value:             decimal.NewFromFloat(payload["value"].(float64)),
		Currency:          payload["currency"].(string),
		ProviderAccountID: payload["provider_account_id"].(string),
		Image:             payload["image"].(string),
	}
	if ic != nil {
		acct.InstitutionConnectionID = &ic.ID
	}

	id, err := db.NewAccountRepository(conn).UpsertProviderAccount(context.Background(), acct)
	if err != nil {
		return nil, err
	}
	acct.ID = id

	return &acct, nil
}

// CreateTestTransaction creates a provider-sourced test transaction with
// default or custom values
func CreateTestTransaction(conn *sql.DB, account *types.Account, overrides map[string]interface{}) (uuid.UUID, error) {

	// Default payload
	payload := map[string]interface{}{
		"date":                    time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC),
		"amount":                  -42.50,
		"currency":                "CAD",
		"description":             "COFFEE SHOP 0042",
		"provider_transaction_id": "txn-1",
	}

	// Apply overrides
	for key, value := range overrides {
		payload[key] = value
	}

	insert := types.TransactionInsert{
		AccountID:             account.ID,
		Date:                  payload["date"].(time.Time),
		Amount:                decimal.NewFromFloat(payload["amount"].(float64)),
		Currency:              payload["currency"].(string),
		Description:           payload["description"].(string),
		ProviderTransactionID: payload["provider_transaction_id"].(string),
	}

	return db.NewTransactionRepository(conn).UpsertProviderTransaction(context.Background(), insert)
}

// CreateTestCategory creates a category row and returns its id.
func CreateTestCategory(conn *sql.DB, name string) (uuid.UUID, error) {
	return db.NewCategoryRepository(conn).Upsert(context.Background(), types.Category{ID: uuid.New(), Name: name})
}
