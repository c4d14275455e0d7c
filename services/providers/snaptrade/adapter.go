package snaptrade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/services/providers"
	"github.com/fintrackhq/fintrack/storage"
	"github.com/fintrackhq/fintrack/types"
	cryptoUtils "github.com/fintrackhq/fintrack/utils/crypto"
)

// Adapter implements the provider contract over the SnapTrade client.
// SnapTrade connects to brokerages, so every account it reports is an
// asset with optional holding lines.
type Adapter struct {
	db     *sql.DB
	client *Client
}

var _ providers.Provider = (*Adapter)(nil)

// NewAdapter creates the SnapTrade adapter
func NewAdapter(db *sql.DB, conf *config.SnapTradeConfiguration) *Adapter {
	return &Adapter{db: db, client: NewClient(conf)}
}

// Name returns the canonical provider name
func (a *Adapter) Name() string {
	return providers.SnapTrade
}

// GetInstitutions lists SnapTrade brokerages with complete metadata that
// are enabled and not in maintenance.
func (a *Adapter) GetInstitutions(ctx context.Context) ([]types.ProviderInstitution, error) {
	brokerages, err := a.client.ListBrokerages(ctx)
	if err != nil {
		return nil, err
	}

	institutions := make([]types.ProviderInstitution, 0, len(brokerages))
	for _, b := range brokerages {
		if b.Slug == "" || b.Name == "" || b.AwsS3LogoURL == "" {
			continue
		}
		institutions = append(institutions, types.ProviderInstitution{
			ProviderInstitutionID: b.Slug,
			Name:                  b.Name,
			LogoURL:               b.AwsS3LogoURL,
			Enabled:               b.Enabled && !b.MaintenanceMode,
		})
	}
	return institutions, nil
}

// RegisterUser registers the user with SnapTrade, returning the existing
// registration untouched when one exists.
func (a *Adapter) RegisterUser(ctx context.Context, userID uuid.UUID) (*types.RegisterResult, error) {
	provider, err := storage.NewProviderRepository(a.db).GetByName(ctx, a.Name())
	if err != nil {
		return nil, err
	}

	repo := storage.NewProviderConnectionRepository(a.db)
	existing, err := repo.GetByUserAndProvider(ctx, userID, provider.ID)
	if err == nil {
		return &types.RegisterResult{Connection: existing, Created: false}, nil
	}
	if !errors.Is(err, storage.ErrProviderConnectionNotFound) {
		return nil, err
	}

	registered, err := a.client.RegisterUser(ctx, userID.String())
	if err != nil {
		return nil, err
	}

	secret, err := cryptoUtils.EncryptSecret(registered.UserSecret)
	if err != nil {
		return nil, fmt.Errorf("snaptrade: encrypt secret: %w", err)
	}

	pc := types.ProviderConnection{
		ID:             uuid.New(),
		UserID:         userID,
		ProviderID:     provider.ID,
		ProviderUserID: registered.UserID,
		Secret:         secret,
	}
	if err := repo.Create(ctx, pc); err != nil {
		return nil, err
	}
	return &types.RegisterResult{Connection: &pc, Created: true}, nil
}

// DeregisterUser deletes the SnapTrade user upstream, then the local
// registration. Institution connections cascade with the registration.
func (a *Adapter) DeregisterUser(ctx context.Context, userID uuid.UUID) error {
	pc, err := a.connection(ctx, userID)
	if err != nil {
		return err
	}

	if err := a.client.DeleteUser(ctx, pc.ProviderUserID); err != nil {
		return err
	}
	return storage.NewProviderConnectionRepository(a.db).Delete(ctx, pc.ID)
}

// Connect opens a connection portal session scoped to the chosen brokerage
func (a *Adapter) Connect(ctx context.Context, params providers.ConnectParams) (*types.ConnectResult, error) {
	pc, err := a.connection(ctx, params.UserID)
	if err != nil {
		return nil, err
	}

	userSecret, err := cryptoUtils.DecryptSecret(pc.Secret)
	if err != nil {
		return nil, fmt.Errorf("snaptrade: decrypt secret: %w", err)
	}

	var brokerSlug string
	if params.InstitutionID != uuid.Nil {
		institution, err := storage.NewInstitutionRepository(a.db).GetByID(ctx, params.InstitutionID)
		if err != nil {
			return nil, err
		}
		brokerSlug = institution.ProviderInstitutionID
	}

	login, err := a.client.LoginUser(ctx, pc.ProviderUserID, userSecret, brokerSlug, params.ConnectionID)
	if err != nil {
		return nil, err
	}
	return &types.ConnectResult{RedirectURI: login.RedirectURI}, nil
}

// Reconnect repairs an existing brokerage authorization
func (a *Adapter) Reconnect(ctx context.Context, params providers.ConnectParams) (*types.ConnectResult, error) {
	if params.ConnectionID == "" {
		return nil, fmt.Errorf("snaptrade: reconnect requires a connection id")
	}
	return a.Connect(ctx, params)
}

// RefreshConnection triggers an on-demand holdings refresh
func (a *Adapter) RefreshConnection(ctx context.Context, userID uuid.UUID, connectionID string) error {
	pc, err := a.connection(ctx, userID)
	if err != nil {
		return err
	}

	userSecret, err := cryptoUtils.DecryptSecret(pc.Secret)
	if err != nil {
		return fmt.Errorf("snaptrade: decrypt secret: %w", err)
	}
	return a.client.RefreshAuthorization(ctx, pc.ProviderUserID, userSecret, connectionID)
}

// GetAccounts pulls account snapshots. With a ProviderAccountID set, one
// account's full holdings are pulled and the initial-sync gate applies;
// otherwise every account under the connection is listed.
func (a *Adapter) GetAccounts(ctx context.Context, params providers.AccountParams) ([]types.ProviderAccount, error) {
	userSecret, err := cryptoUtils.DecryptSecret(params.Connection.Secret)
	if err != nil {
		return nil, fmt.Errorf("snaptrade: decrypt secret: %w", err)
	}
	providerUserID := params.Connection.ProviderUserID

	if params.ProviderAccountID != "" {
		holdings, err := a.client.GetHoldings(ctx, providerUserID, userSecret, params.ProviderAccountID)
		if err != nil {
			return nil, err
		}
		if !holdings.Account.SyncStatus.Holdings.InitialSyncCompleted ||
			!holdings.Account.SyncStatus.Transactions.InitialSyncCompleted {
			return nil, providers.ErrInitialSyncIncomplete
		}
		return []types.ProviderAccount{normalizeHoldings(holdings)}, nil
	}

	accounts, err := a.client.ListAccounts(ctx, providerUserID, userSecret)
	if err != nil {
		return nil, err
	}

	out := make([]types.ProviderAccount, 0, len(accounts))
	for _, acct := range accounts {
		if acct.BrokerageAuthorization != params.ConnectionID {
			continue
		}
		out = append(out, normalizeAccount(acct))
	}
	return out, nil
}

// GetTransactions pulls account activities since the given date
func (a *Adapter) GetTransactions(ctx context.Context, params providers.TransactionParams) ([]types.TransactionInsert, error) {
	userSecret, err := cryptoUtils.DecryptSecret(params.Connection.Secret)
	if err != nil {
		return nil, fmt.Errorf("snaptrade: decrypt secret: %w", err)
	}

	activities, err := a.client.ListActivities(ctx, params.Connection.ProviderUserID, userSecret, params.ProviderAccountID, params.Since)
	if err != nil {
		return nil, err
	}

	inserts := make([]types.TransactionInsert, 0, len(activities))
	for _, act := range activities {
		if act.ID == "" {
			continue
		}

		date, err := time.Parse("2006-01-02", act.TradeDate)
		if err != nil {
			date, err = time.Parse(time.RFC3339, act.TradeDate)
			if err != nil {
				continue
			}
		}

		amount := decimal.Zero
		if act.Amount != nil {
			amount = decimal.NewFromFloat(*act.Amount)
		}

		inserts = append(inserts, types.TransactionInsert{
			AccountID:             params.AccountID,
			Date:                  date,
			Amount:                amount,
			Currency:              act.Currency.Code,
			Description:           act.Description,
			ProviderTransactionID: act.ID,
		})
	}
	return inserts, nil
}

func (a *Adapter) connection(ctx context.Context, userID uuid.UUID) (*types.ProviderConnection, error) {
	provider, err := storage.NewProviderRepository(a.db).GetByName(ctx, a.Name())
	if err != nil {
		return nil, err
	}
	return storage.NewProviderConnectionRepository(a.db).GetByUserAndProvider(ctx, userID, provider.ID)
}

// normalizeAccount maps a listed SnapTrade account without holdings detail
func normalizeAccount(acct Account) types.ProviderAccount {
	pa := types.ProviderAccount{
		ProviderAccountID: acct.ID,
		Name:              acct.Name,
		Type:              types.AccountTypeAsset,
		Subtype:           "brokerage",
	}
	if acct.Balance.Total != nil {
		if acct.Balance.Total.Amount != nil {
			pa.Value = providers.NormalizeValue(pa.Type, decimal.NewFromFloat(*acct.Balance.Total.Amount))
		}
		pa.Currency = acct.Balance.Total.Currency
	}
	return pa
}

// normalizeHoldings maps a full holdings snapshot, positions included
func normalizeHoldings(h *HoldingsResponse) types.ProviderAccount {
	pa := normalizeAccount(h.Account)

	if h.TotalValue != nil {
		if h.TotalValue.Value != nil {
			pa.Value = providers.NormalizeValue(pa.Type, decimal.NewFromFloat(*h.TotalValue.Value))
		}
		if h.TotalValue.Currency != "" {
			pa.Currency = h.TotalValue.Currency
		}
	}

	for _, pos := range h.Positions {
		name := pos.Symbol.Symbol.Description
		if name == "" {
			name = pos.Symbol.Symbol.Symbol
		}
		if name == "" {
			continue
		}

		units := decimal.NewFromFloat(pos.Units)
		value := decimal.Zero
		if pos.Price != nil {
			value = decimal.NewFromFloat(*pos.Price).Mul(units)
		}

		var avgPrice decimal.NullDecimal
		if pos.AveragePurchasePrice != nil {
			avgPrice = decimal.NullDecimal{Decimal: decimal.NewFromFloat(*pos.AveragePurchasePrice), Valid: true}
		}

		pa.Holdings = append(pa.Holdings, types.ProviderHolding{
			Name:                 name,
			Ticker:               pos.Symbol.Symbol.Symbol,
			Units:                units,
			Value:                value,
			Currency:             pa.Currency,
			AveragePurchasePrice: avgPrice,
			Image:                pos.Symbol.Symbol.LogoURL,
		})
	}
	return pa
}
