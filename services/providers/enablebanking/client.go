package enablebanking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	fastshot "github.com/opus-domini/fast-shot"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/services/providers"
	"github.com/fintrackhq/fintrack/storage"
	cryptoUtils "github.com/fintrackhq/fintrack/utils/crypto"
)

const (
	// tokenValidity is how long each request JWT is minted for.
	tokenValidity = time.Hour
	// tokenExpiryMargin keeps a token out of use once it is this close
	// to expiry.
	tokenExpiryMargin = 5 * time.Minute
)

// Client wraps the Enable Banking REST API. Every request is
// authenticated with an RS256-signed JWT minted from the application's
// private key and cached until near expiry.
type Client struct {
	conf   *config.EnableBankingConfiguration
	tokens storage.TokenCache
	now    func() time.Time
}

// NewClient creates an Enable Banking API client
func NewClient(conf *config.EnableBankingConfiguration, tokens storage.TokenCache) *Client {
	return &Client{conf: conf, tokens: tokens, now: time.Now}
}

// ASPSP is one bank in Enable Banking's catalog.
type ASPSP struct {
	Name    string `json:"name"`
	Country string `json:"country"`
	Logo    string `json:"logo"`
	Beta    bool   `json:"beta"`
}

// AuthorizationResponse starts a consent flow; URL is where the user
// authenticates with their bank.
type AuthorizationResponse struct {
	URL             string `json:"url"`
	AuthorizationID string `json:"authorization_id"`
}

// Session is an authorized link to one bank covering its account uids.
type Session struct {
	SessionID string   `json:"session_id"`
	Accounts  []string `json:"accounts"`
	Status    string   `json:"status"`
	ASPSP     ASPSP    `json:"aspsp"`
}

// AccountDetails is the identification of one account under a session.
type AccountDetails struct {
	UID             string `json:"uid"`
	Name            string `json:"name"`
	Currency        string `json:"currency"`
	CashAccountType string `json:"cash_account_type"`
	Product         string `json:"product"`
}

// Balance is one balance figure reported for an account.
type Balance struct {
	Name          string `json:"name"`
	BalanceType   string `json:"balance_type"`
	BalanceAmount Amount `json:"balance_amount"`
}

// Amount is Enable Banking's amount shape; the value is a string.
type Amount struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// AccountTransaction is Enable Banking's native transaction shape.
type AccountTransaction struct {
	EntryReference        string   `json:"entry_reference"`
	BookingDate           string   `json:"booking_date"`
	TransactionAmount     Amount   `json:"transaction_amount"`
	CreditDebitIndicator  string   `json:"credit_debit_indicator"`
	RemittanceInformation []string `json:"remittance_information"`
}

// token returns a valid request JWT, minting and caching a fresh one
// when the cache has none.
func (c *Client) token(ctx context.Context) (string, error) {
	cacheKey := providers.EnableBanking + ":" + c.conf.ApplicationID
	if cached, ok := c.tokens.Get(ctx, cacheKey); ok {
		return cached, nil
	}

	key, err := cryptoUtils.ParseRSAPrivateKey(c.conf.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("enablebanking: parse private key: %w", err)
	}

	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": "enablebanking.com",
		"aud": "api.enablebanking.com",
		"iat": now.Unix(),
		"exp": now.Add(tokenValidity).Unix(),
	})
	token.Header["kid"] = c.conf.ApplicationID

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("enablebanking: sign request token: %w", err)
	}

	c.tokens.Set(ctx, cacheKey, signed, tokenValidity-tokenExpiryMargin)
	return signed, nil
}

// http builds a request client carrying the bearer JWT
func (c *Client) http(ctx context.Context) (fastshot.ClientHttpMethods, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	return fastshot.NewClient(c.conf.BaseURL).
		Config().SetTimeout(30 * time.Second).
		Auth().BearerToken(token).
		Header().Add("Content-Type", "application/json").
		Build(), nil
}

func (c *Client) decode(res fastshot.Response, v interface{}) error {
	bodyReader := res.RawBody()
	defer bodyReader.Close()

	body, err := io.ReadAll(bodyReader)
	if err != nil {
		return fmt.Errorf("enablebanking: read response body: %w", err)
	}

	if res.StatusCode() >= 300 {
		return &providers.TransportError{
			Provider: providers.EnableBanking,
			Status:   res.StatusCode(),
			Body:     string(body),
		}
	}

	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("enablebanking: decode response: %w", err)
	}
	return nil
}

// ListASPSPs lists the bank catalog
func (c *Client) ListASPSPs(ctx context.Context) ([]ASPSP, error) {
	client, err := c.http(ctx)
	if err != nil {
		return nil, err
	}

	res, err := client.GET("/aspsps").Send()
	if err != nil {
		return nil, fmt.Errorf("enablebanking: list aspsps: %w", err)
	}

	var payload struct {
		ASPSPs []ASPSP `json:"aspsps"`
	}
	if err := c.decode(res, &payload); err != nil {
		return nil, err
	}
	return payload.ASPSPs, nil
}

// StartAuthorization opens a consent flow against one bank. state is
// echoed back on the redirect so the callback can be correlated.
func (c *Client) StartAuthorization(ctx context.Context, aspspName, aspspCountry, userID, state string) (*AuthorizationResponse, error) {
	client, err := c.http(ctx)
	if err != nil {
		return nil, err
	}

	res, err := client.POST("/auth").
		Body().AsJSON(map[string]interface{}{
		"access": map[string]interface{}{
			"valid_until": c.now().AddDate(0, 0, 90).Format(time.RFC3339),
		},
		"aspsp": map[string]string{
			"name":    aspspName,
			"country": aspspCountry,
		},
		"psu_type":     "personal",
		"psu_id":       userID,
		"state":        state,
		"redirect_url": c.conf.RedirectURL,
	}).Send()
	if err != nil {
		return nil, fmt.Errorf("enablebanking: start authorization: %w", err)
	}

	var payload AuthorizationResponse
	if err := c.decode(res, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// CreateSession exchanges the redirect code for a session
func (c *Client) CreateSession(ctx context.Context, code string) (*Session, error) {
	client, err := c.http(ctx)
	if err != nil {
		return nil, err
	}

	res, err := client.POST("/sessions").
		Body().AsJSON(map[string]string{"code": code}).Send()
	if err != nil {
		return nil, fmt.Errorf("enablebanking: create session: %w", err)
	}

	var payload Session
	if err := c.decode(res, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// GetSession fetches a session's status and account uids
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	client, err := c.http(ctx)
	if err != nil {
		return nil, err
	}

	res, err := client.GET("/sessions/" + sessionID).Send()
	if err != nil {
		return nil, fmt.Errorf("enablebanking: get session: %w", err)
	}

	var payload Session
	if err := c.decode(res, &payload); err != nil {
		return nil, err
	}
	if payload.SessionID == "" {
		payload.SessionID = sessionID
	}
	return &payload, nil
}

// DeleteSession revokes a session and its consent
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	client, err := c.http(ctx)
	if err != nil {
		return err
	}

	res, err := client.DELETE("/sessions/" + sessionID).Send()
	if err != nil {
		return fmt.Errorf("enablebanking: delete session: %w", err)
	}
	return c.decode(res, nil)
}

// GetAccountDetails fetches one account's identification
func (c *Client) GetAccountDetails(ctx context.Context, accountUID string) (*AccountDetails, error) {
	client, err := c.http(ctx)
	if err != nil {
		return nil, err
	}

	res, err := client.GET("/accounts/" + accountUID + "/details").Send()
	if err != nil {
		return nil, fmt.Errorf("enablebanking: get account details: %w", err)
	}

	var payload AccountDetails
	if err := c.decode(res, &payload); err != nil {
		return nil, err
	}
	if payload.UID == "" {
		payload.UID = accountUID
	}
	return &payload, nil
}

// GetAccountBalances fetches the balance figures of one account
func (c *Client) GetAccountBalances(ctx context.Context, accountUID string) ([]Balance, error) {
	client, err := c.http(ctx)
	if err != nil {
		return nil, err
	}

	res, err := client.GET("/accounts/" + accountUID + "/balances").Send()
	if err != nil {
		return nil, fmt.Errorf("enablebanking: get account balances: %w", err)
	}

	var payload struct {
		Balances []Balance `json:"balances"`
	}
	if err := c.decode(res, &payload); err != nil {
		return nil, err
	}
	return payload.Balances, nil
}

// GetAccountTransactions fetches an account's transactions since the
// given date, following continuation keys until exhausted.
func (c *Client) GetAccountTransactions(ctx context.Context, accountUID string, since time.Time) ([]AccountTransaction, error) {
	client, err := c.http(ctx)
	if err != nil {
		return nil, err
	}

	var all []AccountTransaction
	continuationKey := ""

	for {
		params := map[string]string{}
		if !since.IsZero() {
			params["date_from"] = since.Format("2006-01-02")
		}
		if continuationKey != "" {
			params["continuation_key"] = continuationKey
		}

		res, err := client.GET("/accounts/" + accountUID + "/transactions").
			Query().AddParams(params).Send()
		if err != nil {
			return nil, fmt.Errorf("enablebanking: get account transactions: %w", err)
		}

		var payload struct {
			Transactions    []AccountTransaction `json:"transactions"`
			ContinuationKey string               `json:"continuation_key"`
		}
		if err := c.decode(res, &payload); err != nil {
			return nil, err
		}

		all = append(all, payload.Transactions...)
		if payload.ContinuationKey == "" {
			break
		}
		continuationKey = payload.ContinuationKey
	}
	return all, nil
}
