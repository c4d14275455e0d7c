package enablebanking

import (
	"encoding/json"
	"fmt"

	"github.com/fintrackhq/fintrack/services/reconciler"
	cryptoUtils "github.com/fintrackhq/fintrack/utils/crypto"
)

// WebhookSecretHeader carries the shared secret on callbacks.
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookPayload is the Enable Banking callback body. Type is the
// discriminant; SessionID names the affected session and AccountUID the
// affected account where applicable.
type WebhookPayload struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	UserID     string `json:"psu_id"`
	AccountUID string `json:"account_uid"`
	ASPSP      struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"aspsp"`
	Detail string `json:"detail"`
}

// DecodePayload parses the raw callback body
func DecodePayload(raw []byte) (WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("enablebanking: malformed payload: %w", err)
	}
	if p.Type == "" {
		return p, fmt.Errorf("enablebanking: malformed payload: missing type")
	}
	return p, nil
}

// Classify maps the callback type onto the provider-agnostic categories
func Classify(p WebhookPayload) reconciler.EventKind {
	switch p.Type {
	case "session_created":
		return reconciler.EventConnectionAdded
	case "session_closed":
		return reconciler.EventConnectionRemoved
	case "session_expired", "session_invalid":
		return reconciler.EventConnectionBroken
	case "session_renewed":
		return reconciler.EventConnectionFixed
	case "account_available":
		return reconciler.EventNewAccount
	case "balances_updated":
		return reconciler.EventAccountUpdated
	case "transactions_updated":
		return reconciler.EventTransactionsUpdated
	case "account_removed":
		return reconciler.EventAccountRemoved
	case "authorization_failed":
		return reconciler.EventFailure
	default:
		return reconciler.EventAck
	}
}

// Authenticate compares the shared-secret header in constant time
func Authenticate(secret, header string) error {
	if secret == "" || !cryptoUtils.ConstantTimeEquals(header, secret) {
		return fmt.Errorf("enablebanking: invalid webhook secret")
	}
	return nil
}
