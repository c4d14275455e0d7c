package saltedge

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/services/reconciler"
	cryptoUtils "github.com/fintrackhq/fintrack/utils/crypto"
)

// WebhookPayload is Salt Edge's callback body. Salt Edge has no single
// event-type discriminant; classification is structural over which
// fields are present.
type WebhookPayload struct {
	Data WebhookData `json:"data"`
}

// WebhookData carries the callback fields. Stage, ErrorClass and
// ProviderStatus are pointers because their presence, not just their
// value, decides the event category.
type WebhookData struct {
	ConnectionID   string  `json:"connection_id"`
	CustomerID     string  `json:"customer_id"`
	ProviderCode   string  `json:"provider_code"`
	Stage          *string `json:"stage"`
	ErrorClass     *string `json:"error_class"`
	ErrorMessage   string  `json:"error_message"`
	ProviderStatus *string `json:"provider_status"`
}

// DecodePayload parses the raw callback body
func DecodePayload(raw []byte) (WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("saltedge: malformed payload: %w", err)
	}
	return p, nil
}

// Classify determines the event category from the payload's shape:
// a provider_status field marks an institution status change; a payload
// with neither stage nor error_class is a destroy notice; an error_class
// marks a failed attempt; stage "finish" marks a completed authorization
// with data ready; any other stage is progress to acknowledge only.
func Classify(p WebhookPayload) reconciler.EventKind {
	switch {
	case p.Data.ProviderStatus != nil:
		return reconciler.EventProviderStatusChanged
	case p.Data.Stage == nil && p.Data.ErrorClass == nil:
		return reconciler.EventConnectionRemoved
	case p.Data.ErrorClass != nil:
		return reconciler.EventFailure
	case *p.Data.Stage == "finish":
		return reconciler.EventConnectionAdded
	default:
		return reconciler.EventAck
	}
}

// Authenticate verifies a Salt Edge callback: HTTP Basic credentials
// plus an RSA-SHA256 signature over "callbackURL|rawBody" checked
// against Salt Edge's published public key.
func Authenticate(conf *config.SaltEdgeConfiguration, authorization, signature, callbackURL string, body []byte) error {
	if err := checkBasicAuth(conf, authorization); err != nil {
		return err
	}

	if signature == "" {
		return fmt.Errorf("saltedge: missing callback signature")
	}
	pub, err := cryptoUtils.ParseRSAPublicKey(conf.CallbackPublicKey)
	if err != nil {
		return fmt.Errorf("saltedge: parse callback public key: %w", err)
	}

	message := []byte(callbackURL + "|" + string(body))
	if err := cryptoUtils.VerifyRSASignature(pub, message, signature); err != nil {
		return fmt.Errorf("saltedge: invalid callback signature: %w", err)
	}
	return nil
}

func checkBasicAuth(conf *config.SaltEdgeConfiguration, authorization string) error {
	const prefix = "Basic "
	if !strings.HasPrefix(authorization, prefix) {
		return fmt.Errorf("saltedge: missing basic auth")
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(authorization, prefix))
	if err != nil {
		return fmt.Errorf("saltedge: malformed basic auth")
	}

	user, password, found := strings.Cut(string(decoded), ":")
	if !found ||
		!cryptoUtils.ConstantTimeEquals(user, conf.CallbackUser) ||
		!cryptoUtils.ConstantTimeEquals(password, conf.CallbackPassword) {
		return fmt.Errorf("saltedge: invalid basic auth credentials")
	}
	return nil
}
