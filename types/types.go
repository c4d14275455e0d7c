package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType classifies an account as an asset or a liability.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
)

// Provider is a catalog entry for a supported data aggregation service.
type Provider struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	LogoURL string    `json:"logoUrl"`
}

// Institution is a bank or brokerage as catalogued by a specific provider.
// (ProviderID, ProviderInstitutionID) is the natural key.
type Institution struct {
	ID                    uuid.UUID `json:"id"`
	ProviderID            uuid.UUID `json:"providerId"`
	ProviderInstitutionID string    `json:"providerInstitutionId"`
	Name                  string    `json:"name"`
	LogoURL               string    `json:"logoUrl"`
	Country               string    `json:"country"`
	Enabled               bool      `json:"enabled"`
}

// ProviderConnection records that a user is registered with a provider.
// Secret is the provider-issued user token, stored encrypted at rest.
// ProviderUserID is the provider-native customer identifier, kept in the
// clear because webhook payloads reference it. (UserID, ProviderID) is
// unique.
type ProviderConnection struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"userId"`
	ProviderID     uuid.UUID `json:"providerId"`
	ProviderUserID string    `json:"-"`
	Secret         string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// InstitutionConnection records a user's authorized link to an institution
// through a provider connection. ConnectionID is the provider's own
// session/connection identifier. Broken marks a revoked or expired
// authorization that needs user re-auth.
type InstitutionConnection struct {
	ID                   uuid.UUID `json:"id"`
	InstitutionID        uuid.UUID `json:"institutionId"`
	ProviderConnectionID uuid.UUID `json:"providerConnectionId"`
	ConnectionID         string    `json:"connectionId"`
	Broken               bool      `json:"broken"`
}

// Account is a financial account or a holding line under a brokerage
// account. Parent allows one level of hierarchy: a brokerage Account owns
// child stock-holding Accounts. (InstitutionConnectionID, ProviderAccountID)
// is the upsert key for provider-sourced rows; manually created accounts
// have a nil InstitutionConnectionID.
type Account struct {
	ID                      uuid.UUID           `json:"id"`
	Type                    AccountType         `json:"type"`
	Subtype                 string              `json:"subtype"`
	UserID                  uuid.UUID           `json:"userId"`
	Name                    string              `json:"name"`
	Value                   decimal.Decimal     `json:"value"`
	Currency                string              `json:"currency"`
	Cost                    decimal.NullDecimal `json:"cost"`
	Units                   decimal.NullDecimal `json:"units"`
	Ticker                  string              `json:"ticker"`
	ParentID                *uuid.UUID          `json:"parent"`
	InstitutionConnectionID *uuid.UUID          `json:"institutionConnectionId"`
	ProviderAccountID       string              `json:"providerAccountId"`
	Image                   string              `json:"image"`
}

// Transaction is a single account movement. Provider-sourced rows carry a
// ProviderTransactionID and are read-only from the UI's perspective;
// manually created rows have an empty one and remain mutable.
type Transaction struct {
	ID                    uuid.UUID       `json:"id"`
	AccountID             uuid.UUID       `json:"accountId"`
	Date                  time.Time       `json:"date"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Description           string          `json:"description"`
	CategoryID            *uuid.UUID      `json:"category"`
	ProviderTransactionID string          `json:"providerTransactionId"`
}

// Category is a local transaction category that enrichment results are
// mapped onto by exact name match.
type Category struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ProviderInstitution is an institution as reported by a provider's own
// catalog listing, before it is upserted into the local Institution table.
type ProviderInstitution struct {
	ProviderInstitutionID string
	Name                  string
	LogoURL               string
	Country               string
	Enabled               bool
}

// ProviderAccount is a point-in-time account snapshot pulled from a
// provider, already normalized to the canonical sign convention
// (liabilities non-positive) but not yet persisted. Holdings carries the
// sub-positions of a brokerage account.
type ProviderAccount struct {
	ProviderAccountID string
	Name              string
	Type              AccountType
	Subtype           string
	Value             decimal.Decimal
	Currency          string
	Cost              decimal.NullDecimal
	Image             string
	Holdings          []ProviderHolding
}

// ProviderHolding is a single position inside a brokerage account.
type ProviderHolding struct {
	Name                 string
	Ticker               string
	Units                decimal.Decimal
	Value                decimal.Decimal
	Currency             string
	AveragePurchasePrice decimal.NullDecimal
	Image                string
}

// TransactionInsert is a provider-sourced transaction ready for upsert on
// (AccountID, ProviderTransactionID).
type TransactionInsert struct {
	AccountID             uuid.UUID
	Date                  time.Time
	Amount                decimal.Decimal
	Currency              string
	Description           string
	ProviderTransactionID string
}

// RegisterResult is the outcome of registering a user with a provider.
type RegisterResult struct {
	Connection *ProviderConnection
	Created    bool
}

// ConnectResult carries the redirect URI the client must follow to
// complete consent with the institution.
type ConnectResult struct {
	RedirectURI string `json:"redirectURI"`
}

// ConnectPayload is the request body for initiating or refreshing an
// institution authorization.
type ConnectPayload struct {
	ProviderID    string `json:"provider_id" binding:"required"`
	InstitutionID string `json:"institution_id"`
	ConnectionID  string `json:"connection_id"`
	// Code is the authorization code the provider appends to the consent
	// redirect; only connect-completion requests carry it.
	Code string `json:"code"`
}

// WebhookResponse is the machine-to-machine envelope returned by every
// provider callback endpoint.
type WebhookResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SendEmailPayload is the content of one outbound email.
type SendEmailPayload struct {
	FromAddress string
	ToAddress   string
	Subject     string
	Body        string
	HTMLBody    string
}

// SendEmailResponse carries the mail provider's message id.
type SendEmailResponse struct {
	Id       string `json:"id"`
	Response string `json:"response"`
}

// EnrichmentResult is the categorization outcome for one transaction.
type EnrichmentResult struct {
	TransactionID uuid.UUID
	Counterparty  string
	CategoryName  string
}
