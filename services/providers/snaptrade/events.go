package snaptrade

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/fintrackhq/fintrack/services/reconciler"
)

// WebhookPayload is SnapTrade's webhook body. SnapTrade carries an explicit
// eventType discriminant plus a shared webhookSecret used to authenticate
// the sender.
type WebhookPayload struct {
	WebhookID                string `json:"webhookId"`
	ClientID                 string `json:"clientId"`
	EventTimestamp           string `json:"eventTimestamp"`
	UserID                   string `json:"userId"`
	EventType                string `json:"eventType"`
	BrokerageID              string `json:"brokerageId"`
	BrokerageAuthorizationID string `json:"brokerageAuthorizationId"`
	AccountID                string `json:"accountId"`
	WebhookSecret            string `json:"webhookSecret"`
}

// payloadSchema validates the fields every SnapTrade webhook must carry.
var payloadSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"required": ["userId", "eventType", "webhookSecret"],
	"properties": {
		"userId": {"type": "string", "minLength": 1},
		"eventType": {"type": "string", "minLength": 1},
		"webhookSecret": {"type": "string", "minLength": 1}
	}
}`)

// ValidatePayload checks the raw webhook body against the published shape
func ValidatePayload(raw []byte) error {
	result, err := gojsonschema.Validate(payloadSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("snaptrade: validate payload: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("snaptrade: malformed payload: %s", result.Errors()[0].String())
	}
	return nil
}

// Classify maps SnapTrade's eventType onto the provider-agnostic event
// categories the reconciler dispatches on.
func Classify(p WebhookPayload) reconciler.EventKind {
	switch p.EventType {
	case "CONNECTION_ADDED":
		return reconciler.EventConnectionAdded
	case "CONNECTION_DELETED":
		return reconciler.EventConnectionRemoved
	case "CONNECTION_BROKEN":
		return reconciler.EventConnectionBroken
	case "CONNECTION_FIXED":
		return reconciler.EventConnectionFixed
	case "CONNECTION_FAILED", "CONNECTION_ATTEMPTED":
		return reconciler.EventFailure
	case "NEW_ACCOUNT_AVAILABLE":
		return reconciler.EventNewAccount
	case "ACCOUNT_HOLDINGS_UPDATED":
		return reconciler.EventAccountUpdated
	case "ACCOUNT_TRANSACTIONS_UPDATED":
		return reconciler.EventTransactionsUpdated
	case "ACCOUNT_REMOVED":
		return reconciler.EventAccountRemoved
	default:
		// USER_REGISTERED and anything unrecognized needs no state change.
		return reconciler.EventAck
	}
}
