package reconciler_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/fintrackhq/fintrack/services/providers"
	"github.com/fintrackhq/fintrack/services/reconciler"
	"github.com/fintrackhq/fintrack/storage"
	"github.com/fintrackhq/fintrack/types"
	"github.com/fintrackhq/fintrack/utils/test"
)

// fakeAdapter satisfies the provider contract with canned data so the
// reconciler can be exercised without network calls.
type fakeAdapter struct {
	name         string
	accounts     []types.ProviderAccount
	transactions []types.TransactionInsert
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) GetInstitutions(ctx context.Context) ([]types.ProviderInstitution, error) {
	return nil, nil
}

func (f *fakeAdapter) RegisterUser(ctx context.Context, userID uuid.UUID) (*types.RegisterResult, error) {
	return nil, providers.ErrNotSupported
}

func (f *fakeAdapter) DeregisterUser(ctx context.Context, userID uuid.UUID) error {
	return providers.ErrNotSupported
}

func (f *fakeAdapter) Connect(ctx context.Context, params providers.ConnectParams) (*types.ConnectResult, error) {
	return nil, providers.ErrNotSupported
}

func (f *fakeAdapter) Reconnect(ctx context.Context, params providers.ConnectParams) (*types.ConnectResult, error) {
	return nil, providers.ErrNotSupported
}

func (f *fakeAdapter) RefreshConnection(ctx context.Context, userID uuid.UUID, connectionID string) error {
	return providers.ErrNotSupported
}

func (f *fakeAdapter) GetAccounts(ctx context.Context, params providers.AccountParams) ([]types.ProviderAccount, error) {
	return f.accounts, nil
}

func (f *fakeAdapter) GetTransactions(ctx context.Context, params providers.TransactionParams) ([]types.TransactionInsert, error) {
	inserts := make([]types.TransactionInsert, len(f.transactions))
	copy(inserts, f.transactions)
	for i := range inserts {
		inserts[i].AccountID = params.AccountID
	}
	return inserts, nil
}

type fakeNotifier struct {
	userIDs       []uuid.UUID
	connectionIDs []string
}

func (n *fakeNotifier) NotifyConnectionBroken(ctx context.Context, userID uuid.UUID, connectionID string) {
	n.userIDs = append(n.userIDs, userID)
	n.connectionIDs = append(n.connectionIDs, connectionID)
}

type fakeEnricher struct {
	userID uuid.UUID
	ids    []uuid.UUID
}

func (e *fakeEnricher) EnrichBatch(ctx context.Context, userID uuid.UUID, transactionIDs []uuid.UUID) error {
	e.userID = userID
	e.ids = append(e.ids, transactionIDs...)
	return nil
}

func TestConnectionLifecycle(t *testing.T) {
	conn := test.OpenTestDB(t)
	ctx := context.Background()

	provider, err := test.CreateTestProvider(conn, nil)
	assert.NoError(t, err)
	inst, err := test.CreateTestInstitution(conn, provider, nil)
	assert.NoError(t, err)
	pc, err := test.CreateTestProviderConnection(conn, provider, nil)
	assert.NoError(t, err)

	registry := providers.NewRegistry()
	registry.Register(&fakeAdapter{name: provider.Name})
	notifier := &fakeNotifier{}
	service := reconciler.NewService(conn, registry, notifier, nil)

	icRepo := storage.NewInstitutionConnectionRepository(conn)

	t.Run("ConnectionAdded", func(t *testing.T) {
		err := service.ConnectionAdded(ctx, provider.Name, pc.ProviderUserID, inst.ProviderInstitutionID, "conn-1")
		assert.NoError(t, err)

		ic, err := icRepo.GetByConnectionID(ctx, pc.ID, "conn-1")
		assert.NoError(t, err)
		assert.Equal(t, inst.ID, ic.InstitutionID)
		assert.False(t, ic.Broken)

		// redelivery lands on the same row
		err = service.ConnectionAdded(ctx, provider.Name, pc.ProviderUserID, inst.ProviderInstitutionID, "conn-1")
		assert.NoError(t, err)

		links, err := icRepo.ListByProviderConnection(ctx, pc.ID)
		assert.NoError(t, err)
		assert.Len(t, links, 1)
	})

	t.Run("UnknownInstitutionWritesNothing", func(t *testing.T) {
		err := service.ConnectionAdded(ctx, provider.Name, pc.ProviderUserID, "UNKNOWN", "conn-2")
		assert.True(t, storage.IsNotFound(err))

		_, err = icRepo.GetByConnectionID(ctx, pc.ID, "conn-2")
		assert.True(t, storage.IsNotFound(err))
	})

	t.Run("BrokenNotifiesAndFixedClears", func(t *testing.T) {
		err := service.ConnectionBrokenChanged(ctx, provider.Name, pc.ProviderUserID, "conn-1", true)
		assert.NoError(t, err)

		ic, err := icRepo.GetByConnectionID(ctx, pc.ID, "conn-1")
		assert.NoError(t, err)
		assert.True(t, ic.Broken)
		assert.Equal(t, []uuid.UUID{pc.UserID}, notifier.userIDs)
		assert.Equal(t, []string{"conn-1"}, notifier.connectionIDs)

		err = service.ConnectionBrokenChanged(ctx, provider.Name, pc.ProviderUserID, "conn-1", false)
		assert.NoError(t, err)

		ic, err = icRepo.GetByConnectionID(ctx, pc.ID, "conn-1")
		assert.NoError(t, err)
		assert.False(t, ic.Broken)
		// no notification on repair
		assert.Len(t, notifier.userIDs, 1)
	})

	t.Run("ConnectionRemoved", func(t *testing.T) {
		err := service.ConnectionRemoved(ctx, provider.Name, pc.ProviderUserID, "conn-1")
		assert.NoError(t, err)

		_, err = icRepo.GetByConnectionID(ctx, pc.ID, "conn-1")
		assert.True(t, storage.IsNotFound(err))

		// redelivered destroys succeed
		assert.NoError(t, service.ConnectionRemoved(ctx, provider.Name, pc.ProviderUserID, "conn-1"))
	})
}

func TestProviderStatusChanged(t *testing.T) {
	conn := test.OpenTestDB(t)
	ctx := context.Background()

	provider, err := test.CreateTestProvider(conn, nil)
	assert.NoError(t, err)
	inst, err := test.CreateTestInstitution(conn, provider, nil)
	assert.NoError(t, err)

	service := reconciler.NewService(conn, providers.NewRegistry(), nil, nil)

	err = service.ProviderStatusChanged(ctx, provider.Name, inst.ProviderInstitutionID, false)
	assert.NoError(t, err)

	got, err := storage.NewInstitutionRepository(conn).GetByID(ctx, inst.ID)
	assert.NoError(t, err)
	assert.False(t, got.Enabled)
}

func TestAccountData(t *testing.T) {
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

	adapter := &fakeAdapter{
		name: provider.Name,
		accounts: []types.ProviderAccount{{
			ProviderAccountID: "account-1",
			Name:              "TFSA",
			Type:              types.AccountTypeAsset,
			Subtype:           "investment",
			Value:             decimal.NewFromFloat(250),
			Currency:          "CAD",
			Holdings: []types.ProviderHolding{
				{
					Name:                 "Apple Inc",
					Ticker:               "AAPL",
					Units:                decimal.NewFromInt(10),
					Value:                decimal.NewFromFloat(150),
					Currency:             "CAD",
					AveragePurchasePrice: decimal.NullDecimal{Decimal: decimal.NewFromInt(5), Valid: true},
				},
				{
					Name:     "Shopify",
					Ticker:   "SHOP",
					Units:    decimal.NewFromInt(2),
					Value:    decimal.NewFromFloat(100),
					Currency: "CAD",
				},
			},
		}},
	}
	registry := providers.NewRegistry()
	registry.Register(adapter)
	service := reconciler.NewService(conn, registry, nil, nil)

	err = service.AccountData(ctx, provider.Name, pc.ProviderUserID, ic.ConnectionID, "")
	assert.NoError(t, err)

	repo := storage.NewAccountRepository(conn)
	account, err := repo.GetByProviderAccountID(ctx, ic.ID, "account-1")
	assert.NoError(t, err)
	assert.Equal(t, pc.UserID, account.UserID)
	assert.True(t, account.Value.Equal(decimal.NewFromFloat(250)))

	children, err := repo.ListChildren(ctx, account.ID)
	assert.NoError(t, err)
	assert.Len(t, children, 2)

	t.Run("DroppedHoldingsArePruned", func(t *testing.T) {
		adapter.accounts[0].Holdings = adapter.accounts[0].Holdings[:1]

		err := service.AccountData(ctx, provider.Name, pc.ProviderUserID, ic.ConnectionID, "")
		assert.NoError(t, err)

		children, err := repo.ListChildren(ctx, account.ID)
		assert.NoError(t, err)
		assert.Len(t, children, 1)
		assert.Equal(t, "Apple Inc", children[0].Name)
	})

	t.Run("MissingSecretRefusesToPull", func(t *testing.T) {
		err := storage.NewProviderConnectionRepository(conn).UpdateSecret(ctx, pc.ID, "")
		assert.NoError(t, err)

		err = service.AccountData(ctx, provider.Name, pc.ProviderUserID, ic.ConnectionID, "")
		assert.Error(t, err)
		assert.False(t, storage.IsNotFound(err))
	})
}

func TestTransactionData(t *testing.T) {
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

	adapter := &fakeAdapter{
		name: provider.Name,
		transactions: []types.TransactionInsert{
			{
				Date:                  time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC),
				Amount:                decimal.NewFromFloat(-12.75),
				Currency:              "CAD",
				Description:           "COFFEE SHOP 0042",
				ProviderTransactionID: "txn-1",
			},
			{
				Date:                  time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC),
				Amount:                decimal.NewFromFloat(1800),
				Currency:              "CAD",
				Description:           "PAYROLL DEPOSIT",
				ProviderTransactionID: "txn-2",
			},
		},
	}
	registry := providers.NewRegistry()
	registry.Register(adapter)
	enricher := &fakeEnricher{}
	service := reconciler.NewService(conn, registry, nil, enricher)

	err = service.TransactionData(ctx, provider.Name, pc.ProviderUserID, ic.ConnectionID, account.ProviderAccountID)
	assert.NoError(t, err)

	repo := storage.NewTransactionRepository(conn)
	for _, providerTxID := range []string{"txn-1", "txn-2"} {
		count, err := repo.CountProviderTransactions(ctx, account.ID, providerTxID)
		assert.NoError(t, err)
		assert.Equal(t, 1, count)
	}

	assert.Equal(t, pc.UserID, enricher.userID)
	assert.Len(t, enricher.ids, 2)

	// redelivery upserts in place and re-enriches without duplicating rows
	err = service.TransactionData(ctx, provider.Name, pc.ProviderUserID, ic.ConnectionID, account.ProviderAccountID)
	assert.NoError(t, err)

	count, err := repo.CountProviderTransactions(ctx, account.ID, "txn-1")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAccountRemoved(t *testing.T) {
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

	service := reconciler.NewService(conn, providers.NewRegistry(), nil, nil)

	err = service.AccountRemoved(ctx, provider.Name, pc.ProviderUserID, ic.ConnectionID, account.ProviderAccountID)
	assert.NoError(t, err)

	_, err = storage.NewAccountRepository(conn).GetByProviderAccountID(ctx, ic.ID, account.ProviderAccountID)
	assert.True(t, storage.IsNotFound(err))
}

func TestDeriveCost(t *testing.T) {
	t.Run("SumsHoldingCostBases", func(t *testing.T) {
		pa := types.ProviderAccount{
			Holdings: []types.ProviderHolding{
				{Units: decimal.NewFromInt(10), AveragePurchasePrice: decimal.NullDecimal{Decimal: decimal.NewFromInt(5), Valid: true}},
				{Units: decimal.NewFromInt(2), AveragePurchasePrice: decimal.NullDecimal{Decimal: decimal.NewFromInt(100), Valid: true}},
				{Units: decimal.NewFromInt(7)}, // no purchase price, skipped
			},
		}

		cost := reconciler.DeriveCost(pa)
		assert.True(t, cost.Valid)
		assert.True(t, cost.Decimal.Equal(decimal.NewFromInt(250)))
	})

	t.Run("FallsBackToProviderCost", func(t *testing.T) {
		pa := types.ProviderAccount{
			Cost:     decimal.NullDecimal{Decimal: decimal.NewFromInt(99), Valid: true},
			Holdings: []types.ProviderHolding{{Units: decimal.NewFromInt(3)}},
		}

		cost := reconciler.DeriveCost(pa)
		assert.True(t, cost.Valid)
		assert.True(t, cost.Decimal.Equal(decimal.NewFromInt(99)))
	})

	t.Run("NullWhenNothingKnown", func(t *testing.T) {
		assert.False(t, reconciler.DeriveCost(types.ProviderAccount{}).Valid)
	})
}
