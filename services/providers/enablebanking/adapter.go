package enablebanking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

// Adapter implements the provider contract over the Enable Banking
// client. Enable Banking identifies banks by (country, name), so the
// catalog identifier is encoded as "COUNTRY:Name". Sessions map onto
// connection ids.
type Adapter struct {
	db     *sql.DB
	client *Client
}

var (
	_ providers.Provider         = (*Adapter)(nil)
	_ providers.SessionCompleter = (*Adapter)(nil)
)

// NewAdapter creates the Enable Banking adapter
func NewAdapter(db *sql.DB, conf *config.EnableBankingConfiguration, tokens storage.TokenCache) *Adapter {
	return &Adapter{db: db, client: NewClient(conf, tokens)}
}

// Name returns the canonical provider name
func (a *Adapter) Name() string {
	return providers.EnableBanking
}

// GetInstitutions lists Enable Banking's bank catalog, excluding beta
// entries and entries with incomplete metadata.
func (a *Adapter) GetInstitutions(ctx context.Context) ([]types.ProviderInstitution, error) {
	aspsps, err := a.client.ListASPSPs(ctx)
	if err != nil {
		return nil, err
	}

	institutions := make([]types.ProviderInstitution, 0, len(aspsps))
	for _, aspsp := range aspsps {
		if aspsp.Name == "" || aspsp.Country == "" || aspsp.Logo == "" {
			continue
		}
		institutions = append(institutions, types.ProviderInstitution{
			ProviderInstitutionID: EncodeInstitutionID(aspsp.Country, aspsp.Name),
			Name:                  aspsp.Name,
			LogoURL:               aspsp.Logo,
			Country:               aspsp.Country,
			Enabled:               !aspsp.Beta,
		})
	}
	return institutions, nil
}

// RegisterUser records the registration locally. Enable Banking has no
// customer concept upstream; consent is established per session, so the
// user id itself is the credential all later calls key on.
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

	secret, err := cryptoUtils.EncryptSecret(userID.String())
	if err != nil {
		return nil, fmt.Errorf("enablebanking: encrypt secret: %w", err)
	}

	pc := types.ProviderConnection{
		ID:             uuid.New(),
		UserID:         userID,
		ProviderID:     provider.ID,
		ProviderUserID: userID.String(),
		Secret:         secret,
	}
	if err := repo.Create(ctx, pc); err != nil {
		return nil, err
	}
	return &types.RegisterResult{Connection: &pc, Created: true}, nil
}

// DeregisterUser revokes every session upstream, then deletes the local
// registration. Institution connections cascade with it.
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
		if err := a.client.DeleteSession(ctx, link.ConnectionID); err != nil {
			return err
		}
	}

	return storage.NewProviderConnectionRepository(a.db).Delete(ctx, pc.ID)
}

// Connect starts a bank authorization flow for the chosen institution
func (a *Adapter) Connect(ctx context.Context, params providers.ConnectParams) (*types.ConnectResult, error) {
	pc, err := a.connection(ctx, params.UserID)
	if err != nil {
		return nil, err
	}

	if params.InstitutionID == uuid.Nil {
		return nil, fmt.Errorf("enablebanking: connect requires an institution")
	}
	institution, err := storage.NewInstitutionRepository(a.db).GetByID(ctx, params.InstitutionID)
	if err != nil {
		return nil, err
	}

	country, name, err := DecodeInstitutionID(institution.ProviderInstitutionID)
	if err != nil {
		return nil, err
	}

	auth, err := a.client.StartAuthorization(ctx, name, country, pc.ProviderUserID, pc.ID.String())
	if err != nil {
		return nil, err
	}
	return &types.ConnectResult{RedirectURI: auth.URL}, nil
}

// Reconnect starts a fresh authorization flow; Enable Banking has no
// distinct repair flow, a new consent replaces the expired one.
func (a *Adapter) Reconnect(ctx context.Context, params providers.ConnectParams) (*types.ConnectResult, error) {
	return a.Connect(ctx, params)
}

// RefreshConnection is not offered by Enable Banking; data is pulled
// fresh on every read.
func (a *Adapter) RefreshConnection(ctx context.Context, userID uuid.UUID, connectionID string) error {
	return providers.ErrNotSupported
}

// CompleteConnect exchanges the consent redirect code for a session and
// links the session's bank to the user. Enable Banking hands the code
// back on the redirect, so there is no connection-added callback; this
// is the only path that creates the link.
func (a *Adapter) CompleteConnect(ctx context.Context, userID uuid.UUID, code string) (*types.InstitutionConnection, error) {
	provider, err := storage.NewProviderRepository(a.db).GetByName(ctx, a.Name())
	if err != nil {
		return nil, err
	}
	pc, err := storage.NewProviderConnectionRepository(a.db).GetByUserAndProvider(ctx, userID, provider.ID)
	if err != nil {
		return nil, err
	}

	session, err := a.client.CreateSession(ctx, code)
	if err != nil {
		return nil, err
	}

	institution, err := storage.NewInstitutionRepository(a.db).GetByProviderInstitutionID(
		ctx, provider.ID, EncodeInstitutionID(session.ASPSP.Country, session.ASPSP.Name))
	if err != nil {
		return nil, err
	}

	ic := types.InstitutionConnection{
		ID:                   uuid.New(),
		InstitutionID:        institution.ID,
		ProviderConnectionID: pc.ID,
		ConnectionID:         session.SessionID,
		Broken:               false,
	}
	id, err := storage.NewInstitutionConnectionRepository(a.db).Upsert(ctx, ic)
	if err != nil {
		return nil, err
	}
	ic.ID = id
	return &ic, nil
}

// GetAccounts pulls the accounts under a session, filtered to one
// account when a ProviderAccountID is given.
func (a *Adapter) GetAccounts(ctx context.Context, params providers.AccountParams) ([]types.ProviderAccount, error) {
	session, err := a.client.GetSession(ctx, params.ConnectionID)
	if err != nil {
		return nil, err
	}

	out := make([]types.ProviderAccount, 0, len(session.Accounts))
	for _, uid := range session.Accounts {
		if params.ProviderAccountID != "" && uid != params.ProviderAccountID {
			continue
		}

		details, err := a.client.GetAccountDetails(ctx, uid)
		if err != nil {
			return nil, err
		}
		balances, err := a.client.GetAccountBalances(ctx, uid)
		if err != nil {
			return nil, err
		}

		account, err := normalizeAccount(details, balances)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, nil
}

// GetTransactions pulls one account's transactions since the given date
func (a *Adapter) GetTransactions(ctx context.Context, params providers.TransactionParams) ([]types.TransactionInsert, error) {
	transactions, err := a.client.GetAccountTransactions(ctx, params.ProviderAccountID, params.Since)
	if err != nil {
		return nil, err
	}

	inserts := make([]types.TransactionInsert, 0, len(transactions))
	for _, tx := range transactions {
		if tx.EntryReference == "" {
			continue
		}

		date, err := time.Parse("2006-01-02", tx.BookingDate)
		if err != nil {
			continue
		}

		amount, err := decimal.NewFromString(tx.TransactionAmount.Amount)
		if err != nil {
			continue
		}
		if tx.CreditDebitIndicator == "DBIT" {
			amount = amount.Neg()
		}

		inserts = append(inserts, types.TransactionInsert{
			AccountID:             params.AccountID,
			Date:                  date,
			Amount:                amount,
			Currency:              tx.TransactionAmount.Currency,
			Description:           strings.Join(tx.RemittanceInformation, " "),
			ProviderTransactionID: tx.EntryReference,
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

// EncodeInstitutionID packs (country, name) into the catalog identifier.
// Country codes never contain a colon, so the first colon splits.
func EncodeInstitutionID(country, name string) string {
	return country + ":" + name
}

func DecodeInstitutionID(id string) (country, name string, err error) {
	country, name, found := strings.Cut(id, ":")
	if !found || country == "" || name == "" {
		return "", "", fmt.Errorf("enablebanking: malformed institution id %q", id)
	}
	return country, name, nil
}

// liabilityAccountTypes are cash account types on the liability side.
var liabilityAccountTypes = map[string]bool{
	"CARD": true,
	"LOAN": true,
}

// normalizeAccount maps account details plus the preferred balance
// figure onto the canonical shape.
func normalizeAccount(details *AccountDetails, balances []Balance) (types.ProviderAccount, error) {
	accountType := types.AccountTypeAsset
	if liabilityAccountTypes[details.CashAccountType] {
		accountType = types.AccountTypeLiability
	}

	name := details.Name
	if name == "" {
		name = details.Product
	}

	pa := types.ProviderAccount{
		ProviderAccountID: details.UID,
		Name:              name,
		Type:              accountType,
		Subtype:           strings.ToLower(details.CashAccountType),
		Currency:          details.Currency,
	}

	if balance, ok := pickBalance(balances); ok {
		amount, err := decimal.NewFromString(balance.BalanceAmount.Amount)
		if err != nil {
			return pa, fmt.Errorf("enablebanking: malformed balance amount %q: %w", balance.BalanceAmount.Amount, err)
		}
		pa.Value = providers.NormalizeValue(accountType, amount)
		if balance.BalanceAmount.Currency != "" {
			pa.Currency = balance.BalanceAmount.Currency
		}
	}
	return pa, nil
}

// pickBalance prefers the available balance, then the booked one, then
// whatever is reported first.
func pickBalance(balances []Balance) (Balance, bool) {
	for _, preferred := range []string{"interimAvailable", "closingBooked"} {
		for _, b := range balances {
			if b.BalanceType == preferred {
				return b, true
			}
		}
	}
	if len(balances) > 0 {
		return balances[0], true
	}
	return Balance{}, false
}
