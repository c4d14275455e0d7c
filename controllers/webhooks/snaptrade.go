package webhooks

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/services/providers"
	"github.com/fintrackhq/fintrack/services/providers/snaptrade"
	"github.com/fintrackhq/fintrack/services/reconciler"
	cryptoUtils "github.com/fintrackhq/fintrack/utils/crypto"
)

// SnapTradeController handles SnapTrade webhook callbacks. The sender
// authenticates with a shared secret carried in the payload body.
type SnapTradeController struct {
	service *reconciler.Service
	conf    *config.SnapTradeConfiguration
}

// NewSnapTradeController creates the SnapTrade webhook controller
func NewSnapTradeController(service *reconciler.Service, conf *config.SnapTradeConfiguration) *SnapTradeController {
	return &SnapTradeController{service: service, conf: conf}
}

// Handle processes one SnapTrade callback
func (ctrl *SnapTradeController) Handle(ctx *gin.Context) {
	body, err := ctx.GetRawData()
	if err != nil {
		reject(ctx, http.StatusBadRequest, "failed to read payload")
		return
	}
	if err := snaptrade.ValidatePayload(body); err != nil {
		reject(ctx, http.StatusBadRequest, err.Error())
		return
	}

	var payload snaptrade.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		reject(ctx, http.StatusBadRequest, "malformed payload")
		return
	}

	if !cryptoUtils.ConstantTimeEquals(payload.WebhookSecret, ctrl.conf.WebhookSecret) {
		reject(ctx, http.StatusUnauthorized, "invalid webhook secret")
		return
	}

	if err := ctrl.dispatch(ctx, payload); err != nil {
		rejectError(ctx, providers.SnapTrade, err)
		return
	}
	ack(ctx)
}

func (ctrl *SnapTradeController) dispatch(ctx *gin.Context, p snaptrade.WebhookPayload) error {
	provider := providers.SnapTrade

	switch snaptrade.Classify(p) {
	case reconciler.EventConnectionAdded:
		return ctrl.service.ConnectionAdded(ctx, provider, p.UserID, p.BrokerageID, p.BrokerageAuthorizationID)
	case reconciler.EventConnectionRemoved:
		return ctrl.service.ConnectionRemoved(ctx, provider, p.UserID, p.BrokerageAuthorizationID)
	case reconciler.EventConnectionBroken:
		return ctrl.service.ConnectionBrokenChanged(ctx, provider, p.UserID, p.BrokerageAuthorizationID, true)
	case reconciler.EventConnectionFixed:
		return ctrl.service.ConnectionBrokenChanged(ctx, provider, p.UserID, p.BrokerageAuthorizationID, false)
	case reconciler.EventNewAccount, reconciler.EventAccountUpdated:
		return ctrl.service.AccountData(ctx, provider, p.UserID, p.BrokerageAuthorizationID, p.AccountID)
	case reconciler.EventTransactionsUpdated:
		return ctrl.service.TransactionData(ctx, provider, p.UserID, p.BrokerageAuthorizationID, p.AccountID)
	case reconciler.EventAccountRemoved:
		return ctrl.service.AccountRemoved(ctx, provider, p.UserID, p.BrokerageAuthorizationID, p.AccountID)
	case reconciler.EventFailure:
		ctrl.service.Failure(ctx, provider, p.EventType)
		return nil
	default:
		return nil
	}
}
