package saltedge

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/services/reconciler"
)

func strptr(s string) *string { return &s }

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		data WebhookData
		want reconciler.EventKind
	}{
		{
			name: "provider status change wins over everything",
			data: WebhookData{ProviderStatus: strptr("inactive"), Stage: strptr("finish")},
			want: reconciler.EventProviderStatusChanged,
		},
		{
			name: "no stage and no error class is a destroy notice",
			data: WebhookData{ConnectionID: "conn-1"},
			want: reconciler.EventConnectionRemoved,
		},
		{
			name: "error class marks a failed attempt",
			data: WebhookData{ErrorClass: strptr("InvalidCredentials"), ErrorMessage: "wrong password"},
			want: reconciler.EventFailure,
		},
		{
			name: "error class with a stage still fails",
			data: WebhookData{Stage: strptr("fetch_accounts"), ErrorClass: strptr("FetchingError")},
			want: reconciler.EventFailure,
		},
		{
			name: "finish stage completes the authorization",
			data: WebhookData{Stage: strptr("finish")},
			want: reconciler.EventConnectionAdded,
		},
		{
			name: "intermediate stage only acknowledges",
			data: WebhookData{Stage: strptr("fetch_accounts")},
			want: reconciler.EventAck,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(WebhookPayload{Data: tc.data}))
		})
	}
}

func TestDecodePayload(t *testing.T) {
	p, err := DecodePayload([]byte(`{"data": {"connection_id": "conn-1", "customer_id": "cust-1", "stage": "finish"}}`))
	assert.NoError(t, err)
	assert.Equal(t, "conn-1", p.Data.ConnectionID)
	assert.NotNil(t, p.Data.Stage)
	assert.Equal(t, "finish", *p.Data.Stage)
	assert.Nil(t, p.Data.ErrorClass)

	_, err = DecodePayload([]byte(`not json`))
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	assert.NoError(t, err)

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	assert.NoError(t, err)
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))

	conf := &config.SaltEdgeConfiguration{
		CallbackUser:      "callback-user",
		CallbackPassword:  "callback-password",
		CallbackPublicKey: pubPEM,
	}

	callbackURL := "https://api.fintrack.local/v1/callback/providers/saltedge/success"
	body := []byte(`{"data": {"connection_id": "conn-1", "stage": "finish"}}`)

	sign := func(url string, body []byte) string {
		digest := sha256.Sum256([]byte(url + "|" + string(body)))
		sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
		assert.NoError(t, err)
		return base64.StdEncoding.EncodeToString(sig)
	}

	basic := "Basic " + base64.StdEncoding.EncodeToString([]byte("callback-user:callback-password"))

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, Authenticate(conf, basic, sign(callbackURL, body), callbackURL, body))
	})

	t.Run("missing basic auth", func(t *testing.T) {
		assert.Error(t, Authenticate(conf, "", sign(callbackURL, body), callbackURL, body))
	})

	t.Run("wrong credentials", func(t *testing.T) {
		bad := "Basic " + base64.StdEncoding.EncodeToString([]byte("callback-user:oops"))
		assert.Error(t, Authenticate(conf, bad, sign(callbackURL, body), callbackURL, body))
	})

	t.Run("missing signature", func(t *testing.T) {
		assert.Error(t, Authenticate(conf, basic, "", callbackURL, body))
	})

	t.Run("signature over a different body", func(t *testing.T) {
		assert.Error(t, Authenticate(conf, basic, sign(callbackURL, []byte(`{}`)), callbackURL, body))
	})

	t.Run("signature over a different url", func(t *testing.T) {
		assert.Error(t, Authenticate(conf, basic, sign("https://evil.example/cb", body), callbackURL, body))
	})
}
