package saltedge

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

// liabilityNatures are the Salt Edge account natures that map to the
// liability side of the ledger.
var liabilityNatures = map[string]bool{
	"credit_card": true,
	"loan":        true,
	"mortgage":    true,
	"credit":      true,
}

// Adapter implements the provider contract over the Salt Edge client.
// Salt Edge connects to banks, so accounts carry no holding lines.
type Adapter struct {
	db     *sql.DB
	client *Client
}

var _ providers.Provider = (*Adapter)(nil)

// NewAdapter creates the Salt Edge adapter
func NewAdapter(db *sql.DB, conf *config.SaltEdgeConfiguration) *Adapter {
	return &Adapter{db: db, client: NewClient(conf)}
}

// Name returns the canonical provider name
func (a *Adapter) Name() string {
	return providers.SaltEdge
}

// GetInstitutions lists Salt Edge's bank catalog filtered to active
// entries with complete metadata.
func (a *Adapter) GetInstitutions(ctx context.Context) ([]types.ProviderInstitution, error) {
	catalog, err := a.client.ListProviders(ctx)
	if err != nil {
		return nil, err
	}

	institutions := make([]types.ProviderInstitution, 0, len(catalog))
	for _, p := range catalog {
		if p.Code == "" || p.Name == "" || p.LogoURL == "" {
			continue
		}
		institutions = append(institutions, types.ProviderInstitution{
			ProviderInstitutionID: p.Code,
			Name:                  p.Name,
			LogoURL:               p.LogoURL,
			Country:               p.CountryCode,
			Enabled:               p.Status == "active",
		})
	}
	return institutions, nil
}

// RegisterUser creates a Salt Edge customer for the user, returning the
// existing registration untouched when one exists. The customer id is
// the credential every later call needs, so it doubles as the secret.
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

	customer, err := a.client.CreateCustomer(ctx, userID.String())
	if err != nil {
		return nil, err
	}

	secret, err := cryptoUtils.EncryptSecret(customer.ID)
	if err != nil {
		return nil, fmt.Errorf("saltedge: encrypt secret: %w", err)
	}

	pc := types.ProviderConnection{
		ID:             uuid.New(),
		UserID:         userID,
		ProviderID:     provider.ID,
		ProviderUserID: customer.ID,
		Secret:         secret,
	}
	if err := repo.Create(ctx, pc); err != nil {
		return nil, err
	}
	return &types.RegisterResult{Connection: &pc, Created: true}, nil
}

// DeregisterUser removes every bank connection upstream, deletes the Salt
// Edge customer, then the local registration.
func (a *Adapter) DeregisterUser(ctx context.Context, userID uuid.UUID) error {
	pc, err := a.connection(ctx, userID)
	if err != nil {
		return err
	}

	links, err := storage.NewInstitutionConnectionRepository(a.db).ListByProviderConnection(ctx, pc.ID)
	if err != nil {
		return err
	}
	for _, link := range links {
		if err := a.client.RemoveConnection(ctx, link.ConnectionID); err != nil {
			return err
		}
	}

	if err := a.client.RemoveCustomer(ctx, pc.ProviderUserID); err != nil {
		return err
	}
	return storage.NewProviderConnectionRepository(a.db).Delete(ctx, pc.ID)
}

// Connect opens a consent session, scoped to the chosen bank when an
// institution id is given.
func (a *Adapter) Connect(ctx context.Context, params providers.ConnectParams) (*types.ConnectResult, error) {
	pc, err := a.connection(ctx, params.UserID)
	if err != nil {
		return nil, err
	}

	var providerCode string
	if params.InstitutionID != uuid.Nil {
		institution, err := storage.NewInstitutionRepository(a.db).GetByID(ctx, params.InstitutionID)
		if err != nil {
			return nil, err
		}
		providerCode = institution.ProviderInstitutionID
	}

	session, err := a.client.CreateConnectSession(ctx, pc.ProviderUserID, providerCode)
	if err != nil {
		return nil, err
	}
	return &types.ConnectResult{RedirectURI: session.ConnectURL}, nil
}

// Reconnect opens a consent session repairing an existing connection
func (a *Adapter) Reconnect(ctx context.Context, params providers.ConnectParams) (*types.ConnectResult, error) {
	if params.ConnectionID == "" {
		return nil, fmt.Errorf("saltedge: reconnect requires a connection id")
	}

	session, err := a.client.CreateReconnectSession(ctx, params.ConnectionID)
	if err != nil {
		return nil, err
	}
	return &types.ConnectResult{RedirectURI: session.ConnectURL}, nil
}

// RefreshConnection requests an on-demand refresh of the connection
func (a *Adapter) RefreshConnection(ctx context.Context, userID uuid.UUID, connectionID string) error {
	if _, err := a.connection(ctx, userID); err != nil {
		return err
	}
	return a.client.RefreshConnection(ctx, connectionID)
}

// GetAccounts pulls the account snapshots under a connection, filtered to
// one account when a ProviderAccountID is given.
func (a *Adapter) GetAccounts(ctx context.Context, params providers.AccountParams) ([]types.ProviderAccount, error) {
	accounts, err := a.client.ListAccounts(ctx, params.ConnectionID)
	if err != nil {
		return nil, err
	}

	out := make([]types.ProviderAccount, 0, len(accounts))
	for _, acct := range accounts {
		if params.ProviderAccountID != "" && acct.ID != params.ProviderAccountID {
			continue
		}
		out = append(out, normalizeAccount(acct))
	}
	return out, nil
}

// GetTransactions pulls the transactions of one account
func (a *Adapter) GetTransactions(ctx context.Context, params providers.TransactionParams) ([]types.TransactionInsert, error) {
	transactions, err := a.client.ListTransactions(ctx, params.ConnectionID, params.ProviderAccountID)
	if err != nil {
		return nil, err
	}

	inserts := make([]types.TransactionInsert, 0, len(transactions))
	for _, tx := range transactions {
		if tx.ID == "" {
			continue
		}

		date, err := time.Parse("2006-01-02", tx.MadeOn)
		if err != nil {
			continue
		}
		if !params.Since.IsZero() && date.Before(params.Since) {
			continue
		}

		inserts = append(inserts, types.TransactionInsert{
			AccountID:             params.AccountID,
			Date:                  date,
			Amount:                decimal.NewFromFloat(tx.Amount),
			Currency:              tx.CurrencyCode,
			Description:           tx.Description,
			ProviderTransactionID: tx.ID,
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

// normalizeAccount maps a Salt Edge account onto the canonical shape,
// classifying by nature and normalizing the liability sign.
func normalizeAccount(acct Account) types.ProviderAccount {
	accountType := types.AccountTypeAsset
	if liabilityNatures[acct.Nature] {
		accountType = types.AccountTypeLiability
	}

	return types.ProviderAccount{
		ProviderAccountID: acct.ID,
		Name:              acct.Name,
		Type:              accountType,
		Subtype:           acct.Nature,
		Value:             providers.NormalizeValue(accountType, decimal.NewFromFloat(acct.Balance)),
		Currency:          acct.CurrencyCode,
	}
}
