package webhooks

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/services/providers"
	"github.com/fintrackhq/fintrack/services/providers/tink"
	"github.com/fintrackhq/fintrack/services/reconciler"
)

// TinkController handles Tink callbacks. The sender authenticates with
// a shared secret header.
type TinkController struct {
	service *reconciler.Service
	conf    *config.TinkConfiguration
}

// NewTinkController creates the Tink webhook controller
func NewTinkController(service *reconciler.Service, conf *config.TinkConfiguration) *TinkController {
	return &TinkController{service: service, conf: conf}
}

// Handle processes one Tink callback
func (ctrl *TinkController) Handle(ctx *gin.Context) {
	body, err := ctx.GetRawData()
	if err != nil {
		reject(ctx, http.StatusBadRequest, "failed to read payload")
		return
	}

	if err := tink.Authenticate(ctrl.conf.WebhookSecret, ctx.GetHeader(tink.WebhookSecretHeader)); err != nil {
		reject(ctx, http.StatusUnauthorized, err.Error())
		return
	}

	payload, err := tink.DecodePayload(body)
	if err != nil {
		reject(ctx, http.StatusBadRequest, err.Error())
		return
	}

	if err := ctrl.dispatch(ctx, payload); err != nil {
		rejectError(ctx, providers.Tink, err)
		return
	}
	ack(ctx)
}

func (ctrl *TinkController) dispatch(ctx *gin.Context, p tink.WebhookPayload) error {
	provider := providers.Tink
	userID := p.Context.UserID

	switch tink.Classify(p) {
	case reconciler.EventConnectionAdded:
		return ctrl.service.ConnectionAdded(ctx, provider, userID, p.Content.ProviderName, p.Content.CredentialsID)
	case reconciler.EventConnectionRemoved:
		return ctrl.service.ConnectionRemoved(ctx, provider, userID, p.Content.CredentialsID)
	case reconciler.EventConnectionBroken:
		return ctrl.service.ConnectionBrokenChanged(ctx, provider, userID, p.Content.CredentialsID, true)
	case reconciler.EventConnectionFixed:
		return ctrl.service.ConnectionBrokenChanged(ctx, provider, userID, p.Content.CredentialsID, false)
	case reconciler.EventNewAccount, reconciler.EventAccountUpdated:
		return ctrl.service.AccountData(ctx, provider, userID, p.Content.CredentialsID, p.Content.AccountID)
	case reconciler.EventTransactionsUpdated:
		return ctrl.service.TransactionData(ctx, provider, userID, p.Content.CredentialsID, p.Content.AccountID)
	case reconciler.EventAccountRemoved:
		return ctrl.service.AccountRemoved(ctx, provider, userID, p.Content.CredentialsID, p.Content.AccountID)
	case reconciler.EventFailure:
		ctrl.service.Failure(ctx, provider, p.Content.ErrorMessage)
		return nil
	default:
		return nil
	}
}
