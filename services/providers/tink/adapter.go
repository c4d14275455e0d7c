package tink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/services/providers"
	"github.com/fintrackhq/fintrack/storage"
	"github.com/fintrackhq/fintrack/types"
	cryptoUtils "github.com/fintrackhq/fintrack/utils/crypto"
)

// liabilityAccountTypes are Tink account types on the liability side.
var liabilityAccountTypes = map[string]bool{
	"CREDIT_CARD": true,
	"LOAN":        true,
	"MORTGAGE":    true,
}

// Adapter implements the provider contract over the Tink client. Bank
// connections map onto Tink credentials ids; consent flows run through
// Tink Link.
type Adapter struct {
	db     *sql.DB
	client *Client
}

var _ providers.Provider = (*Adapter)(nil)

// NewAdapter creates the Tink adapter
func NewAdapter(db *sql.DB, conf *config.TinkConfiguration, tokens storage.TokenCache) *Adapter {
	return &Adapter{db: db, client: NewClient(conf, tokens)}
}

// Name returns the canonical provider name
func (a *Adapter) Name() string {
	return providers.Tink
}

// GetInstitutions lists Tink's bank catalog for the configured market,
// filtered to enabled entries with complete metadata.
func (a *Adapter) GetInstitutions(ctx context.Context) ([]types.ProviderInstitution, error) {
	catalog, err := a.client.ListProviders(ctx)
	if err != nil {
		return nil, err
	}

	institutions := make([]types.ProviderInstitution, 0, len(catalog))
	for _, p := range catalog {
		if p.Name == "" || p.DisplayName == "" || p.Images.Icon == "" {
			continue
		}
		institutions = append(institutions, types.ProviderInstitution{
			ProviderInstitutionID: p.Name,
			Name:                  p.DisplayName,
			LogoURL:               p.Images.Icon,
			Country:               p.Market,
			Enabled:               p.Status == "ENABLED",
		})
	}
	return institutions, nil
}

// RegisterUser creates a Tink user for the user, returning the existing
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

	user, err := a.client.CreateUser(ctx, userID.String())
	if err != nil {
		return nil, err
	}

	secret, err := cryptoUtils.EncryptSecret(user.UserID)
	if err != nil {
		return nil, fmt.Errorf("tink: encrypt secret: %w", err)
	}

	pc := types.ProviderConnection{
		ID:             uuid.New(),
		UserID:         userID,
		ProviderID:     provider.ID,
		ProviderUserID: user.UserID,
		Secret:         secret,
	}
	if err := repo.Create(ctx, pc); err != nil {
		return nil, err
	}
	return &types.RegisterResult{Connection: &pc, Created: true}, nil
}

// DeregisterUser deletes the Tink user upstream, which removes its
// credentials with it, then deletes the local registration.
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

// Connect builds a Tink Link URL for the chosen bank
func (a *Adapter) Connect(ctx context.Context, params providers.ConnectParams) (*types.ConnectResult, error) {
	pc, err := a.connection(ctx, params.UserID)
	if err != nil {
		return nil, err
	}

	var providerName string
	if params.InstitutionID != uuid.Nil {
		institution, err := storage.NewInstitutionRepository(a.db).GetByID(ctx, params.InstitutionID)
		if err != nil {
			return nil, err
		}
		providerName = institution.ProviderInstitutionID
	}

	code, err := a.client.DelegateAuthorizationCode(ctx, pc.ProviderUserID, providerName, params.ConnectionID)
	if err != nil {
		return nil, err
	}
	return &types.ConnectResult{RedirectURI: a.client.LinkURL(code, providerName, params.ConnectionID)}, nil
}

// Reconnect builds a Tink Link URL repairing an existing connection
func (a *Adapter) Reconnect(ctx context.Context, params providers.ConnectParams) (*types.ConnectResult, error) {
	if params.ConnectionID == "" {
		return nil, fmt.Errorf("tink: reconnect requires a connection id")
	}
	return a.Connect(ctx, params)
}

// RefreshConnection triggers an on-demand refresh of the connection
func (a *Adapter) RefreshConnection(ctx context.Context, userID uuid.UUID, connectionID string) error {
	pc, err := a.connection(ctx, userID)
	if err != nil {
		return err
	}
	return a.client.RefreshCredentials(ctx, pc.ProviderUserID, connectionID)
}

// GetAccounts pulls the user's account snapshots, filtered to one
// account when a ProviderAccountID is given.
func (a *Adapter) GetAccounts(ctx context.Context, params providers.AccountParams) ([]types.ProviderAccount, error) {
	accounts, err := a.client.ListAccounts(ctx, params.Connection.ProviderUserID)
	if err != nil {
		return nil, err
	}

	out := make([]types.ProviderAccount, 0, len(accounts))
	for _, acct := range accounts {
		if params.ProviderAccountID != "" && acct.ID != params.ProviderAccountID {
			continue
		}

		account, err := normalizeAccount(acct)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, nil
}

// GetTransactions pulls one account's booked transactions
func (a *Adapter) GetTransactions(ctx context.Context, params providers.TransactionParams) ([]types.TransactionInsert, error) {
	transactions, err := a.client.ListTransactions(ctx, params.Connection.ProviderUserID, params.ProviderAccountID, params.Since)
	if err != nil {
		return nil, err
	}

	inserts := make([]types.TransactionInsert, 0, len(transactions))
	for _, tx := range transactions {
		if tx.ID == "" {
			continue
		}

		date, err := time.Parse("2006-01-02", tx.Dates.Booked)
		if err != nil {
			continue
		}

		amount, err := parseAmount(tx.Amount)
		if err != nil {
			continue
		}

		description := tx.Descriptions.Display
		if description == "" {
			description = tx.Descriptions.Original
		}

		inserts = append(inserts, types.TransactionInsert{
			AccountID:             params.AccountID,
			Date:                  date,
			Amount:                amount,
			Currency:              tx.Amount.CurrencyCode,
			Description:           description,
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

// normalizeAccount maps a Tink account onto the canonical shape
func normalizeAccount(acct Account) (types.ProviderAccount, error) {
	accountType := types.AccountTypeAsset
	if liabilityAccountTypes[acct.Type] {
		accountType = types.AccountTypeLiability
	}

	value, err := parseAmount(acct.Balances.Booked.Amount)
	if err != nil {
		return types.ProviderAccount{}, fmt.Errorf("tink: account %s balance: %w", acct.ID, err)
	}

	return types.ProviderAccount{
		ProviderAccountID: acct.ID,
		Name:              acct.Name,
		Type:              accountType,
		Subtype:           strings.ToLower(acct.Type),
		Value:             providers.NormalizeValue(accountType, value),
		Currency:          acct.Balances.Booked.Amount.CurrencyCode,
	}, nil
}

// parseAmount converts Tink's unscaled-value/scale encoding
func parseAmount(a Amount) (decimal.Decimal, error) {
	unscaled, err := strconv.ParseInt(a.Value.UnscaledValue, 10, 64)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed unscaled value %q", a.Value.UnscaledValue)
	}
	scale, err := strconv.ParseInt(a.Value.Scale, 10, 32)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed scale %q", a.Value.Scale)
	}
	return decimal.NewFromInt(unscaled).Shift(int32(-scale)), nil
}
