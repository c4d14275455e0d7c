package tink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"

	fastshot "github.com/opus-domini/fast-shot"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/services/providers"
	"github.com/fintrackhq/fintrack/storage"
)

// tokenExpiryMargin keeps a token out of use once it is this close to
// expiry.
const tokenExpiryMargin = 5 * time.Minute

// scopes requested for client and user tokens.
const (
	clientScope = "user:create,user:delete,authorization:grant,providers:read"
	userScope   = "accounts:read,balances:read,transactions:read,credentials:read,credentials:refresh,credentials:write"
)

// Client wraps the Tink REST API. Client-credential and per-user access
// tokens are both cached until near expiry.
type Client struct {
	conf   *config.TinkConfiguration
	tokens storage.TokenCache
}

// NewClient creates a Tink API client
func NewClient(conf *config.TinkConfiguration, tokens storage.TokenCache) *Client {
	return &Client{conf: conf, tokens: tokens}
}

// TokenResponse is Tink's OAuth token grant response.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	TokenType   string `json:"token_type"`
}

// CatalogProvider is one bank in Tink's provider listing.
type CatalogProvider struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Market      string `json:"market"`
	Status      string `json:"status"`
	Images      struct {
		Icon string `json:"icon"`
	} `json:"images"`
}

// User is a Tink user created under this client.
type User struct {
	UserID         string `json:"user_id"`
	ExternalUserID string `json:"external_user_id"`
}

// AmountValue is Tink's scaled decimal encoding.
type AmountValue struct {
	UnscaledValue string `json:"unscaledValue"`
	Scale         string `json:"scale"`
}

// Amount is a currency amount.
type Amount struct {
	Value        AmountValue `json:"value"`
	CurrencyCode string      `json:"currencyCode"`
}

// Account is Tink's native account shape.
type Account struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Balances struct {
		Booked struct {
			Amount Amount `json:"amount"`
		} `json:"booked"`
	} `json:"balances"`
	Identifiers struct {
		FinancialInstitution struct {
			AccountNumber string `json:"accountNumber"`
		} `json:"financialInstitution"`
	} `json:"identifiers"`
}

// Transaction is Tink's native transaction shape.
type Transaction struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
	Amount    Amount `json:"amount"`
	Status    string `json:"status"`
	Dates     struct {
		Booked string `json:"booked"`
	} `json:"dates"`
	Descriptions struct {
		Display  string `json:"display"`
		Original string `json:"original"`
	} `json:"descriptions"`
}

func (c *Client) http() fastshot.ClientHttpMethods {
	return fastshot.NewClient(c.conf.BaseURL).
		Config().SetTimeout(30 * time.Second).
		Build()
}

func (c *Client) httpBearer(token string) fastshot.ClientHttpMethods {
	return fastshot.NewClient(c.conf.BaseURL).
		Config().SetTimeout(30 * time.Second).
		Auth().BearerToken(token).
		Header().Add("Content-Type", "application/json").
		Build()
}

func (c *Client) decode(res fastshot.Response, v interface{}) error {
	bodyReader := res.RawBody()
	defer bodyReader.Close()

	body, err := io.ReadAll(bodyReader)
	if err != nil {
		return fmt.Errorf("tink: read response body: %w", err)
	}

	if res.StatusCode() >= 300 {
		return &providers.TransportError{
			Provider: providers.Tink,
			Status:   res.StatusCode(),
			Body:     string(body),
		}
	}

	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("tink: decode response: %w", err)
	}
	return nil
}

// grantToken exchanges grant parameters for an access token
func (c *Client) grantToken(ctx context.Context, form url.Values) (*TokenResponse, error) {
	res, err := c.http().POST("/api/v1/oauth/token").
		Header().Add("Content-Type", "application/x-www-form-urlencoded").
		Body().AsString(form.Encode()).Send()
	if err != nil {
		return nil, fmt.Errorf("tink: token grant: %w", err)
	}

	var payload TokenResponse
	if err := c.decode(res, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// clientToken returns a client-credentials access token, minting and
// caching a fresh one when the cache has none.
func (c *Client) clientToken(ctx context.Context) (string, error) {
	cacheKey := providers.Tink + ":client:" + c.conf.ClientID
	if cached, ok := c.tokens.Get(ctx, cacheKey); ok {
		return cached, nil
	}

	token, err := c.grantToken(ctx, url.Values{
		"client_id":     {c.conf.ClientID},
		"client_secret": {c.conf.ClientSecret},
		"grant_type":    {"client_credentials"},
		"scope":         {clientScope},
	})
	if err != nil {
		return "", err
	}

	c.cacheToken(ctx, cacheKey, token)
	return token.AccessToken, nil
}

// userToken returns an access token acting as the given Tink user,
// minting one through an authorization grant when the cache has none.
func (c *Client) userToken(ctx context.Context, tinkUserID string) (string, error) {
	cacheKey := providers.Tink + ":user:" + tinkUserID
	if cached, ok := c.tokens.Get(ctx, cacheKey); ok {
		return cached, nil
	}

	clientToken, err := c.clientToken(ctx)
	if err != nil {
		return "", err
	}

	res, err := c.httpBearer(clientToken).POST("/api/v1/oauth/authorization-grant").
		Header().Add("Content-Type", "application/x-www-form-urlencoded").
		Body().AsString(url.Values{
		"user_id": {tinkUserID},
		"scope":   {userScope},
	}.Encode()).Send()
	if err != nil {
		return "", fmt.Errorf("tink: authorization grant: %w", err)
	}

	var grant struct {
		Code string `json:"code"`
	}
	if err := c.decode(res, &grant); err != nil {
		return "", err
	}

	token, err := c.grantToken(ctx, url.Values{
		"client_id":     {c.conf.ClientID},
		"client_secret": {c.conf.ClientSecret},
		"grant_type":    {"authorization_code"},
		"code":          {grant.Code},
	})
	if err != nil {
		return "", err
	}

	c.cacheToken(ctx, cacheKey, token)
	return token.AccessToken, nil
}

func (c *Client) cacheToken(ctx context.Context, key string, token *TokenResponse) {
	ttl := time.Duration(token.ExpiresIn)*time.Second - tokenExpiryMargin
	if ttl <= 0 {
		return
	}
	c.tokens.Set(ctx, key, token.AccessToken, ttl)
}

// ListProviders lists the bank catalog for the configured market
func (c *Client) ListProviders(ctx context.Context) ([]CatalogProvider, error) {
	token, err := c.clientToken(ctx)
	if err != nil {
		return nil, err
	}

	res, err := c.httpBearer(token).GET("/api/v1/providers/" + c.conf.Market).Send()
	if err != nil {
		return nil, fmt.Errorf("tink: list providers: %w", err)
	}

	var payload struct {
		Providers []CatalogProvider `json:"providers"`
	}
	if err := c.decode(res, &payload); err != nil {
		return nil, err
	}
	return payload.Providers, nil
}

// CreateUser creates a Tink user keyed on the external user id
func (c *Client) CreateUser(ctx context.Context, externalUserID string) (*User, error) {
	token, err := c.clientToken(ctx)
	if err != nil {
		return nil, err
	}

	res, err := c.httpBearer(token).POST("/api/v1/user/create").
		Body().AsJSON(map[string]string{
		"external_user_id": externalUserID,
		"market":           c.conf.Market,
		"locale":           "en_US",
	}).Send()
	if err != nil {
		return nil, fmt.Errorf("tink: create user: %w", err)
	}

	var payload User
	if err := c.decode(res, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// DeleteUser deletes the Tink user and everything under it
func (c *Client) DeleteUser(ctx context.Context, tinkUserID string) error {
	token, err := c.userToken(ctx, tinkUserID)
	if err != nil {
		return err
	}

	res, err := c.httpBearer(token).POST("/api/v1/user/delete").Send()
	if err != nil {
		return fmt.Errorf("tink: delete user: %w", err)
	}
	return c.decode(res, nil)
}

// DelegateAuthorizationCode issues a short-lived code letting Tink Link
// act for the user. providerName scopes the flow to one bank when
// non-empty; credentialsID scopes it to repairing one connection.
func (c *Client) DelegateAuthorizationCode(ctx context.Context, tinkUserID, providerName, credentialsID string) (string, error) {
	clientToken, err := c.clientToken(ctx)
	if err != nil {
		return "", err
	}

	form := url.Values{
		"user_id":         {tinkUserID},
		"id_hint":         {tinkUserID},
		"actor_client_id": {"df05e4b379934cd09963197cc855bfe9"},
		"scope":           {"authorization:read,authorization:grant,credentials:read,credentials:write,credentials:refresh,providers:read,user:read"},
	}
	if providerName != "" {
		form.Set("provider_name", providerName)
	}
	if credentialsID != "" {
		form.Set("credentials_id", credentialsID)
	}

	res, err := c.httpBearer(clientToken).POST("/api/v1/oauth/authorization-grant/delegate").
		Header().Add("Content-Type", "application/x-www-form-urlencoded").
		Body().AsString(form.Encode()).Send()
	if err != nil {
		return "", fmt.Errorf("tink: delegate authorization: %w", err)
	}

	var payload struct {
		Code string `json:"code"`
	}
	if err := c.decode(res, &payload); err != nil {
		return "", err
	}
	return payload.Code, nil
}

// LinkURL builds the Tink Link URL the user is redirected to.
// credentialsID switches the flow into repair mode for that connection.
func (c *Client) LinkURL(authorizationCode, providerName, credentialsID string) string {
	params := url.Values{
		"client_id":          {c.conf.ClientID},
		"authorization_code": {authorizationCode},
		"redirect_uri":       {c.conf.RedirectURI},
		"market":             {c.conf.Market},
	}
	if providerName != "" {
		params.Set("input_provider", providerName)
	}
	if credentialsID != "" {
		params.Set("credentials_id", credentialsID)
	}
	return c.conf.LinkBaseURL + "/1.0/transactions/connect-accounts?" + params.Encode()
}

// RefreshCredentials triggers an on-demand refresh of one connection
func (c *Client) RefreshCredentials(ctx context.Context, tinkUserID, credentialsID string) error {
	token, err := c.userToken(ctx, tinkUserID)
	if err != nil {
		return err
	}

	res, err := c.httpBearer(token).POST("/api/v1/credentials/" + credentialsID + "/refresh").Send()
	if err != nil {
		return fmt.Errorf("tink: refresh credentials: %w", err)
	}
	return c.decode(res, nil)
}

// DeleteCredentials removes one bank connection
func (c *Client) DeleteCredentials(ctx context.Context, tinkUserID, credentialsID string) error {
	token, err := c.userToken(ctx, tinkUserID)
	if err != nil {
		return err
	}

	res, err := c.httpBearer(token).DELETE("/api/v1/credentials/" + credentialsID).Send()
	if err != nil {
		return fmt.Errorf("tink: delete credentials: %w", err)
	}
	return c.decode(res, nil)
}

// ListAccounts lists the user's accounts
func (c *Client) ListAccounts(ctx context.Context, tinkUserID string) ([]Account, error) {
	token, err := c.userToken(ctx, tinkUserID)
	if err != nil {
		return nil, err
	}

	res, err := c.httpBearer(token).GET("/data/v2/accounts").Send()
	if err != nil {
		return nil, fmt.Errorf("tink: list accounts: %w", err)
	}

	var payload struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.decode(res, &payload); err != nil {
		return nil, err
	}
	return payload.Accounts, nil
}

// ListTransactions lists one account's booked transactions, following
// page tokens until exhausted.
func (c *Client) ListTransactions(ctx context.Context, tinkUserID, accountID string, since time.Time) ([]Transaction, error) {
	token, err := c.userToken(ctx, tinkUserID)
	if err != nil {
		return nil, err
	}
	client := c.httpBearer(token)

	var all []Transaction
	pageToken := ""

	for {
		params := map[string]string{
			"accountIdIn": accountID,
			"statusIn":    "BOOKED",
		}
		if !since.IsZero() {
			params["bookedDateGte"] = since.Format("2006-01-02")
		}
		if pageToken != "" {
			params["pageToken"] = pageToken
		}

		res, err := client.GET("/data/v2/transactions").
			Query().AddParams(params).Send()
		if err != nil {
			return nil, fmt.Errorf("tink: list transactions: %w", err)
		}

		var payload struct {
			Transactions  []Transaction `json:"transactions"`
			NextPageToken string        `json:"nextPageToken"`
		}
		if err := c.decode(res, &payload); err != nil {
			return nil, err
		}

		all = append(all, payload.Transactions...)
		if payload.NextPageToken == "" {
			break
		}
		pageToken = payload.NextPageToken
	}
	return all, nil
}
