package providers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fintrackhq/fintrack/types"
)

// Canonical provider names, matching the providers catalog seed.
const (
	SnapTrade     = "snaptrade"
	SaltEdge      = "saltedge"
	EnableBanking = "enablebanking"
	Tink          = "tink"
)

var (
	// ErrUnimplementedProvider is returned by the registry for unknown names.
	ErrUnimplementedProvider = errors.New("unimplemented provider")
	// ErrNotSupported is returned by lifecycle operations a provider has no
	// equivalent for, e.g. on-demand refresh.
	ErrNotSupported = errors.New("not supported by provider")
)

// ConnectParams carries what an adapter needs to initiate or repair an
// institution authorization.
type ConnectParams struct {
	UserID        uuid.UUID
	InstitutionID uuid.UUID
	// ConnectionID is the provider's connection identifier; set for
	// reconnect flows, empty for first-time connects.
	ConnectionID string
}

// AccountParams identifies an authorized connection to pull an account
// snapshot from.
type AccountParams struct {
	Connection        *types.ProviderConnection
	ConnectionID      string
	ProviderAccountID string
}

// TransactionParams identifies the account to pull transactions for.
// AccountID is the local account rows will attach to.
type TransactionParams struct {
	Connection        *types.ProviderConnection
	ConnectionID      string
	AccountID         uuid.UUID
	ProviderAccountID string
	Since             time.Time
}

// Provider is the single polymorphism boundary between route/webhook
// handlers and the concrete integrations. Every call site depends on this
// interface; new providers register in the registry without touching
// existing call sites.
type Provider interface {
	Name() string

	// GetInstitutions lists the institutions the provider supports,
	// filtered to those with complete metadata and marked enabled.
	GetInstitutions(ctx context.Context) ([]types.ProviderInstitution, error)

	// RegisterUser is idempotent: an existing registration is returned
	// without calling the provider again.
	RegisterUser(ctx context.Context, userID uuid.UUID) (*types.RegisterResult, error)

	// DeregisterUser deletes the upstream user/customer and local state,
	// tearing down provider sessions first where the provider requires it.
	DeregisterUser(ctx context.Context, userID uuid.UUID) error

	// Connect initiates an authorization flow and returns the redirect URI
	// the client completes consent at.
	Connect(ctx context.Context, params ConnectParams) (*types.ConnectResult, error)

	// Reconnect repairs a broken or expired authorization. Providers
	// without a distinct flow alias Connect.
	Reconnect(ctx context.Context, params ConnectParams) (*types.ConnectResult, error)

	// RefreshConnection triggers an on-demand data refresh; may return
	// ErrNotSupported.
	RefreshConnection(ctx context.Context, userID uuid.UUID, connectionID string) error

	// GetAccounts pulls a current-state account snapshot, normalized to
	// the canonical sign convention (liabilities non-positive).
	GetAccounts(ctx context.Context, params AccountParams) ([]types.ProviderAccount, error)

	// GetTransactions pulls provider transactions ready for upsert.
	GetTransactions(ctx context.Context, params TransactionParams) ([]types.TransactionInsert, error)
}

// SessionCompleter is implemented by providers whose consent flow hands an
// authorization code back on the client redirect instead of announcing the
// new connection over a callback. CompleteConnect exchanges the code and
// links the resulting connection to the user.
type SessionCompleter interface {
	CompleteConnect(ctx context.Context, userID uuid.UUID, code string) (*types.InstitutionConnection, error)
}
