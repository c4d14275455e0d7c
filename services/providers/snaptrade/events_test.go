package snaptrade

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fintrackhq/fintrack/services/reconciler"
)

func TestValidatePayload(t *testing.T) {
	valid := []byte(`{"userId": "user-1", "eventType": "CONNECTION_ADDED", "webhookSecret": "s3cret"}`)
	assert.NoError(t, ValidatePayload(valid))

	cases := map[string][]byte{
		"missing userId":        []byte(`{"eventType": "CONNECTION_ADDED", "webhookSecret": "s3cret"}`),
		"missing eventType":     []byte(`{"userId": "user-1", "webhookSecret": "s3cret"}`),
		"missing webhookSecret": []byte(`{"userId": "user-1", "eventType": "CONNECTION_ADDED"}`),
		"empty eventType":       []byte(`{"userId": "user-1", "eventType": "", "webhookSecret": "s3cret"}`),
		"not an object":         []byte(`["CONNECTION_ADDED"]`),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, ValidatePayload(raw))
		})
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		eventType string
		want      reconciler.EventKind
	}{
		{"CONNECTION_ADDED", reconciler.EventConnectionAdded},
		{"CONNECTION_DELETED", reconciler.EventConnectionRemoved},
		{"CONNECTION_BROKEN", reconciler.EventConnectionBroken},
		{"CONNECTION_FIXED", reconciler.EventConnectionFixed},
		{"CONNECTION_FAILED", reconciler.EventFailure},
		{"CONNECTION_ATTEMPTED", reconciler.EventFailure},
		{"NEW_ACCOUNT_AVAILABLE", reconciler.EventNewAccount},
		{"ACCOUNT_HOLDINGS_UPDATED", reconciler.EventAccountUpdated},
		{"ACCOUNT_TRANSACTIONS_UPDATED", reconciler.EventTransactionsUpdated},
		{"ACCOUNT_REMOVED", reconciler.EventAccountRemoved},
		{"USER_REGISTERED", reconciler.EventAck},
		{"SOMETHING_NEW", reconciler.EventAck},
	}

	for _, tc := range cases {
		t.Run(tc.eventType, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(WebhookPayload{EventType: tc.eventType}))
		})
	}
}
