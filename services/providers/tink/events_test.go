package tink

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fintrackhq/fintrack/services/reconciler"
)

func TestDecodePayload(t *testing.T) {
	raw := []byte(`{
		"event": "account-transactions:modified",
		"context": {"userId": "tink-user-1", "externalUserId": "8e66744c-5b2c-4c1e-b0ab-0f2e5d63e582"},
		"content": {"account": {}, "credentialsId": "cred-1", "accountId": "acc-1"}
	}`)

	p, err := DecodePayload(raw)
	assert.NoError(t, err)
	assert.Equal(t, "account-transactions:modified", p.Event)
	assert.Equal(t, "tink-user-1", p.Context.UserID)
	assert.Equal(t, "acc-1", p.Content.AccountID)

	_, err = DecodePayload([]byte(`{"context": {}}`))
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		payload WebhookPayload
		want    reconciler.EventKind
	}{
		{"credentials created", WebhookPayload{Event: "credentials:created"}, reconciler.EventConnectionAdded},
		{"credentials deleted", WebhookPayload{Event: "credentials:deleted"}, reconciler.EventConnectionRemoved},
		{"refresh failed", WebhookPayload{Event: "credentials:refresh:failed"}, reconciler.EventFailure},
		{"account created", WebhookPayload{Event: "account:created"}, reconciler.EventNewAccount},
		{"account updated", WebhookPayload{Event: "account:updated"}, reconciler.EventAccountUpdated},
		{"balance modified", WebhookPayload{Event: "account-booked-balance:modified"}, reconciler.EventAccountUpdated},
		{"account deleted", WebhookPayload{Event: "account:deleted"}, reconciler.EventAccountRemoved},
		{"transactions modified", WebhookPayload{Event: "account-transactions:modified"}, reconciler.EventTransactionsUpdated},
		{"unknown event", WebhookPayload{Event: "ping"}, reconciler.EventAck},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.payload))
		})
	}
}

func TestClassifyCredentialsStatus(t *testing.T) {
	payload := func(status string) WebhookPayload {
		p := WebhookPayload{Event: "credentials:status:updated"}
		p.Content.Status = status
		return p
	}

	assert.Equal(t, reconciler.EventConnectionBroken, Classify(payload("AUTHENTICATION_ERROR")))
	assert.Equal(t, reconciler.EventConnectionBroken, Classify(payload("SESSION_EXPIRED")))
	assert.Equal(t, reconciler.EventConnectionFixed, Classify(payload("UPDATED")))
	assert.Equal(t, reconciler.EventAck, Classify(payload("UPDATING")))
}
