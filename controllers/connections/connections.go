package connections

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fintrackhq/fintrack/services/providers"
	"github.com/fintrackhq/fintrack/storage"
	"github.com/fintrackhq/fintrack/types"
	u "github.com/fintrackhq/fintrack/utils"
	"github.com/fintrackhq/fintrack/utils/logger"
)

// ConnectionController handles the provider connection lifecycle for the
// authenticated user: register, connect, reconnect, refresh, deregister,
// plus reads over the aggregated accounts and transactions.
type ConnectionController struct {
	db       *sql.DB
	registry *providers.Registry
}

// NewConnectionController creates a new instance of ConnectionController
func NewConnectionController(db *sql.DB, registry *providers.Registry) *ConnectionController {
	return &ConnectionController{db: db, registry: registry}
}

// Register controller registers the user with a provider. Registering
// twice returns the existing registration.
func (ctrl *ConnectionController) Register(ctx *gin.Context) {
	userID, ok := authenticatedUser(ctx)
	if !ok {
		return
	}

	adapter, _, ok := ctrl.bindProvider(ctx)
	if !ok {
		return
	}

	result, err := adapter.RegisterUser(ctx, userID)
	if err != nil {
		logger.Errorf("Failed to register user with %s: %v", adapter.Name(), err)
		u.APIResponse(ctx, http.StatusInternalServerError, "error",
			"Failed to register with provider", fmt.Sprintf("%v", err))
		return
	}

	u.APIResponse(ctx, http.StatusOK, "success", "Registered successfully", gin.H{
		"created": result.Created,
	})
}

// Connect controller initiates an institution authorization flow and
// returns the redirect URI the client completes consent at.
func (ctrl *ConnectionController) Connect(ctx *gin.Context) {
	ctrl.connectFlow(ctx, false)
}

// Reconnect controller repairs a broken institution authorization
func (ctrl *ConnectionController) Reconnect(ctx *gin.Context) {
	ctrl.connectFlow(ctx, true)
}

func (ctrl *ConnectionController) connectFlow(ctx *gin.Context, reconnect bool) {
	userID, ok := authenticatedUser(ctx)
	if !ok {
		return
	}

	adapter, payload, ok := ctrl.bindProvider(ctx)
	if !ok {
		return
	}

	params := providers.ConnectParams{
		UserID:       userID,
		ConnectionID: payload.ConnectionID,
	}
	if payload.InstitutionID != "" {
		institutionID, err := uuid.Parse(payload.InstitutionID)
		if err != nil {
			u.APIResponse(ctx, http.StatusBadRequest, "error", "Invalid institution_id", nil)
			return
		}
		params.InstitutionID = institutionID
	}

	var (
		result *types.ConnectResult
		err    error
	)
	if reconnect {
		result, err = adapter.Reconnect(ctx, params)
	} else {
		result, err = adapter.Connect(ctx, params)
	}
	if err != nil {
		logger.Errorf("Failed to start %s authorization flow: %v", adapter.Name(), err)
		u.APIResponse(ctx, http.StatusInternalServerError, "error",
			"Failed to start authorization flow", fmt.Sprintf("%v", err))
		return
	}

	u.APIResponse(ctx, http.StatusOK, "success", "Authorization flow created", result)
}

// Complete controller finishes a redirect-based consent flow by
// exchanging the authorization code for a provider session and linking
// the institution. Providers that announce new connections over their
// callback instead have nothing to complete here.
func (ctrl *ConnectionController) Complete(ctx *gin.Context) {
	userID, ok := authenticatedUser(ctx)
	if !ok {
		return
	}

	adapter, payload, ok := ctrl.bindProvider(ctx)
	if !ok {
		return
	}

	completer, ok := adapter.(providers.SessionCompleter)
	if !ok {
		u.APIResponse(ctx, http.StatusBadRequest, "error",
			fmt.Sprintf("%s completes connections via callback", adapter.Name()), nil)
		return
	}
	if payload.Code == "" {
		u.APIResponse(ctx, http.StatusBadRequest, "error", "code is required", nil)
		return
	}

	link, err := completer.CompleteConnect(ctx, userID, payload.Code)
	if err != nil {
		if storage.IsNotFound(err) {
			u.APIResponse(ctx, http.StatusNotFound, "error", err.Error(), nil)
			return
		}
		logger.Errorf("Failed to complete %s authorization flow: %v", adapter.Name(), err)
		u.APIResponse(ctx, http.StatusInternalServerError, "error",
			"Failed to complete authorization flow", fmt.Sprintf("%v", err))
		return
	}

	u.APIResponse(ctx, http.StatusOK, "success", "Connection established", gin.H{
		"connection_id": link.ConnectionID,
	})
}

// Refresh controller triggers an on-demand data refresh for a connection
func (ctrl *ConnectionController) Refresh(ctx *gin.Context) {
	userID, ok := authenticatedUser(ctx)
	if !ok {
		return
	}

	adapter, payload, ok := ctrl.bindProvider(ctx)
	if !ok {
		return
	}
	if payload.ConnectionID == "" {
		u.APIResponse(ctx, http.StatusBadRequest, "error", "connection_id is required", nil)
		return
	}

	err := adapter.RefreshConnection(ctx, userID, payload.ConnectionID)
	if errors.Is(err, providers.ErrNotSupported) {
		u.APIResponse(ctx, http.StatusBadRequest, "error",
			fmt.Sprintf("%s does not support on-demand refresh", adapter.Name()), nil)
		return
	}
	if err != nil {
		logger.Errorf("Failed to refresh %s connection: %v", adapter.Name(), err)
		u.APIResponse(ctx, http.StatusInternalServerError, "error",
			"Failed to refresh connection", fmt.Sprintf("%v", err))
		return
	}

	u.APIResponse(ctx, http.StatusOK, "success", "Refresh requested", nil)
}

// Deregister controller removes the user's registration with a provider
// along with its upstream counterpart.
func (ctrl *ConnectionController) Deregister(ctx *gin.Context) {
	userID, ok := authenticatedUser(ctx)
	if !ok {
		return
	}

	adapter, _, ok := ctrl.bindProvider(ctx)
	if !ok {
		return
	}

	if err := adapter.DeregisterUser(ctx, userID); err != nil {
		if storage.IsNotFound(err) {
			u.APIResponse(ctx, http.StatusNotFound, "error", "No registration found", nil)
			return
		}
		logger.Errorf("Failed to deregister user from %s: %v", adapter.Name(), err)
		u.APIResponse(ctx, http.StatusInternalServerError, "error",
			"Failed to deregister from provider", fmt.Sprintf("%v", err))
		return
	}

	u.APIResponse(ctx, http.StatusOK, "success", "Deregistered successfully", nil)
}

// GetAccounts controller lists the user's aggregated accounts
func (ctrl *ConnectionController) GetAccounts(ctx *gin.Context) {
	userID, ok := authenticatedUser(ctx)
	if !ok {
		return
	}

	accounts, err := storage.NewAccountRepository(ctrl.db).ListByUser(ctx, userID)
	if err != nil {
		logger.Errorf("Failed to fetch accounts: %v", err)
		u.APIResponse(ctx, http.StatusInternalServerError, "error",
			"Failed to fetch accounts", fmt.Sprintf("%v", err))
		return
	}

	u.APIResponse(ctx, http.StatusOK, "success", "Accounts retrieved successfully", accounts)
}

// GetAccountTransactions controller lists one account's transactions,
// newest first, paginated.
func (ctrl *ConnectionController) GetAccountTransactions(ctx *gin.Context) {
	userID, ok := authenticatedUser(ctx)
	if !ok {
		return
	}

	accountID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		u.APIResponse(ctx, http.StatusBadRequest, "error", "Invalid account id", nil)
		return
	}

	repo := storage.NewAccountRepository(ctrl.db)
	account, err := repo.GetByID(ctx, accountID)
	if err != nil {
		if storage.IsNotFound(err) {
			u.APIResponse(ctx, http.StatusNotFound, "error", "Account not found", nil)
			return
		}
		logger.Errorf("Failed to fetch account: %v", err)
		u.APIResponse(ctx, http.StatusInternalServerError, "error",
			"Failed to fetch account", fmt.Sprintf("%v", err))
		return
	}
	if account.UserID != userID {
		u.APIResponse(ctx, http.StatusNotFound, "error", "Account not found", nil)
		return
	}

	_, offset, pageSize := u.Paginate(ctx)
	transactions, err := storage.NewTransactionRepository(ctrl.db).ListByAccount(ctx, accountID, pageSize, offset)
	if err != nil {
		logger.Errorf("Failed to fetch transactions: %v", err)
		u.APIResponse(ctx, http.StatusInternalServerError, "error",
			"Failed to fetch transactions", fmt.Sprintf("%v", err))
		return
	}

	u.APIResponse(ctx, http.StatusOK, "success", "Transactions retrieved successfully", transactions)
}

// bindProvider parses the request body and resolves the adapter for the
// named provider.
func (ctrl *ConnectionController) bindProvider(ctx *gin.Context) (providers.Provider, *types.ConnectPayload, bool) {
	var payload types.ConnectPayload
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		u.APIResponse(ctx, http.StatusBadRequest, "error",
			"Failed to validate payload", fmt.Sprintf("%v", err))
		return nil, nil, false
	}

	adapter, err := ctrl.registry.Get(payload.ProviderID)
	if err != nil {
		u.APIResponse(ctx, http.StatusBadRequest, "error",
			fmt.Sprintf("Unknown provider %q", payload.ProviderID), nil)
		return nil, nil, false
	}
	return adapter, &payload, true
}

// authenticatedUser pulls the authenticated user id the auth middleware
// stored on the request context.
func authenticatedUser(ctx *gin.Context) (uuid.UUID, bool) {
	value, exists := ctx.Get("user_id")
	if !exists {
		u.APIResponse(ctx, http.StatusUnauthorized, "error", "Authentication required", nil)
		return uuid.Nil, false
	}

	userID, ok := value.(uuid.UUID)
	if !ok {
		u.APIResponse(ctx, http.StatusUnauthorized, "error", "Authentication required", nil)
		return uuid.Nil, false
	}
	return userID, true
}
