package tink

import (
	"encoding/json"
	"fmt"

	"github.com/fintrackhq/fintrack/services/reconciler"
	cryptoUtils "github.com/fintrackhq/fintrack/utils/crypto"
)

// WebhookSecretHeader carries the shared secret on callbacks.
const WebhookSecretHeader = "X-Tink-Webhook-Secret"

// WebhookPayload is Tink's callback body. The event name discriminates;
// context carries the affected user and content the event-specific ids.
type WebhookPayload struct {
	Event   string `json:"event"`
	Context struct {
		UserID         string `json:"userId"`
		ExternalUserID string `json:"externalUserId"`
	} `json:"context"`
	Content struct {
		CredentialsID string `json:"credentialsId"`
		ProviderName  string `json:"providerName"`
		AccountID     string `json:"accountId"`
		Status        string `json:"status"`
		ErrorMessage  string `json:"errorMessage"`
	} `json:"content"`
}

// DecodePayload parses the raw callback body
func DecodePayload(raw []byte) (WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("tink: malformed payload: %w", err)
	}
	if p.Event == "" {
		return p, fmt.Errorf("tink: malformed payload: missing event")
	}
	return p, nil
}

// Classify maps Tink's event names onto the provider-agnostic
// categories. Credentials status updates split on the reported status.
func Classify(p WebhookPayload) reconciler.EventKind {
	switch p.Event {
	case "credentials:created":
		return reconciler.EventConnectionAdded
	case "credentials:deleted":
		return reconciler.EventConnectionRemoved
	case "credentials:refresh:failed":
		return reconciler.EventFailure
	case "credentials:status:updated":
		switch p.Content.Status {
		case "AUTHENTICATION_ERROR", "SESSION_EXPIRED":
			return reconciler.EventConnectionBroken
		case "UPDATED":
			return reconciler.EventConnectionFixed
		default:
			return reconciler.EventAck
		}
	case "account:created":
		return reconciler.EventNewAccount
	case "account:updated", "account-booked-balance:modified":
		return reconciler.EventAccountUpdated
	case "account:deleted":
		return reconciler.EventAccountRemoved
	case "account-transactions:modified":
		return reconciler.EventTransactionsUpdated
	default:
		return reconciler.EventAck
	}
}

// Authenticate compares the shared-secret header in constant time
func Authenticate(secret, header string) error {
	if secret == "" || !cryptoUtils.ConstantTimeEquals(header, secret) {
		return fmt.Errorf("tink: invalid webhook secret")
	}
	return nil
}
