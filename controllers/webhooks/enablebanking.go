package webhooks

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/services/providers"
	"github.com/fintrackhq/fintrack/services/providers/enablebanking"
	"github.com/fintrackhq/fintrack/services/reconciler"
)

// EnableBankingController handles Enable Banking callbacks. The sender
// authenticates with a shared secret header.
type EnableBankingController struct {
	service *reconciler.Service
	conf    *config.EnableBankingConfiguration
}

// NewEnableBankingController creates the Enable Banking webhook controller
func NewEnableBankingController(service *reconciler.Service, conf *config.EnableBankingConfiguration) *EnableBankingController {
	return &EnableBankingController{service: service, conf: conf}
}

// Handle processes one Enable Banking callback
func (ctrl *EnableBankingController) Handle(ctx *gin.Context) {
	body, err := ctx.GetRawData()
	if err != nil {
		reject(ctx, http.StatusBadRequest, "failed to read payload")
		return
	}

	if err := enablebanking.Authenticate(ctrl.conf.WebhookSecret, ctx.GetHeader(enablebanking.WebhookSecretHeader)); err != nil {
		reject(ctx, http.StatusUnauthorized, err.Error())
		return
	}

	payload, err := enablebanking.DecodePayload(body)
	if err != nil {
		reject(ctx, http.StatusBadRequest, err.Error())
		return
	}

	if err := ctrl.dispatch(ctx, payload); err != nil {
		rejectError(ctx, providers.EnableBanking, err)
		return
	}
	ack(ctx)
}

func (ctrl *EnableBankingController) dispatch(ctx *gin.Context, p enablebanking.WebhookPayload) error {
	provider := providers.EnableBanking

	switch enablebanking.Classify(p) {
	case reconciler.EventConnectionAdded:
		institutionID := enablebanking.EncodeInstitutionID(p.ASPSP.Country, p.ASPSP.Name)
		return ctrl.service.ConnectionAdded(ctx, provider, p.UserID, institutionID, p.SessionID)
	case reconciler.EventConnectionRemoved:
		return ctrl.service.ConnectionRemoved(ctx, provider, p.UserID, p.SessionID)
	case reconciler.EventConnectionBroken:
		return ctrl.service.ConnectionBrokenChanged(ctx, provider, p.UserID, p.SessionID, true)
	case reconciler.EventConnectionFixed:
		return ctrl.service.ConnectionBrokenChanged(ctx, provider, p.UserID, p.SessionID, false)
	case reconciler.EventNewAccount, reconciler.EventAccountUpdated:
		return ctrl.service.AccountData(ctx, provider, p.UserID, p.SessionID, p.AccountUID)
	case reconciler.EventTransactionsUpdated:
		return ctrl.service.TransactionData(ctx, provider, p.UserID, p.SessionID, p.AccountUID)
	case reconciler.EventAccountRemoved:
		return ctrl.service.AccountRemoved(ctx, provider, p.UserID, p.SessionID, p.AccountUID)
	case reconciler.EventFailure:
		ctrl.service.Failure(ctx, provider, p.Detail)
		return nil
	default:
		return nil
	}
}
