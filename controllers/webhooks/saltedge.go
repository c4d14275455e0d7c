package webhooks

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/services/providers"
	"github.com/fintrackhq/fintrack/services/providers/saltedge"
	"github.com/fintrackhq/fintrack/services/reconciler"
)

// SaltEdgeController handles Salt Edge callbacks. The sender
// authenticates with HTTP Basic credentials plus an RSA signature over
// the callback URL and body.
type SaltEdgeController struct {
	service    *reconciler.Service
	conf       *config.SaltEdgeConfiguration
	serverConf *config.ServerConfiguration
}

// NewSaltEdgeController creates the Salt Edge webhook controller
func NewSaltEdgeController(service *reconciler.Service, conf *config.SaltEdgeConfiguration, serverConf *config.ServerConfiguration) *SaltEdgeController {
	return &SaltEdgeController{service: service, conf: conf, serverConf: serverConf}
}

// Handle processes one Salt Edge callback
func (ctrl *SaltEdgeController) Handle(ctx *gin.Context) {
	body, err := ctx.GetRawData()
	if err != nil {
		reject(ctx, http.StatusBadRequest, "failed to read payload")
		return
	}

	callbackURL := ctrl.serverConf.CallbackBaseURL + ctx.Request.URL.Path
	if err := saltedge.Authenticate(
		ctrl.conf,
		ctx.GetHeader("Authorization"),
		ctx.GetHeader("Signature"),
		callbackURL,
		body,
	); err != nil {
		reject(ctx, http.StatusUnauthorized, err.Error())
		return
	}

	payload, err := saltedge.DecodePayload(body)
	if err != nil {
		reject(ctx, http.StatusBadRequest, err.Error())
		return
	}

	if err := ctrl.dispatch(ctx, payload); err != nil {
		rejectError(ctx, providers.SaltEdge, err)
		return
	}
	ack(ctx)
}

func (ctrl *SaltEdgeController) dispatch(ctx *gin.Context, p saltedge.WebhookPayload) error {
	provider := providers.SaltEdge
	data := p.Data

	switch saltedge.Classify(p) {
	case reconciler.EventProviderStatusChanged:
		return ctrl.service.ProviderStatusChanged(ctx, provider, data.ProviderCode, *data.ProviderStatus == "active")
	case reconciler.EventConnectionRemoved:
		return ctrl.service.ConnectionRemoved(ctx, provider, data.CustomerID, data.ConnectionID)
	case reconciler.EventFailure:
		ctrl.service.Failure(ctx, provider, data.ErrorMessage)
		return nil
	case reconciler.EventConnectionAdded:
		// A finished stage both links the connection and signals the
		// first full snapshot is ready to pull.
		if err := ctrl.service.ConnectionAdded(ctx, provider, data.CustomerID, data.ProviderCode, data.ConnectionID); err != nil {
			return err
		}
		return ctrl.service.AccountData(ctx, provider, data.CustomerID, data.ConnectionID, "")
	default:
		return nil
	}
}
