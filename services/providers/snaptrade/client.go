package snaptrade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/services/providers"
	"github.com/fintrackhq/fintrack/utils"
	cryptoUtils "github.com/fintrackhq/fintrack/utils/crypto"
)

// Client is a thin transport to the SnapTrade REST API. Every request is
// signed with HMAC-SHA256 over {content, path, query} using the consumer
// key, which is why this client builds requests by hand instead of using
// the fluent client.
type Client struct {
	baseURL     string
	clientID    string
	consumerKey string
	httpClient  *http.Client
	now         func() time.Time
}

// NewClient creates a SnapTrade client from configuration
func NewClient(conf *config.SnapTradeConfiguration) *Client {
	return &Client{
		baseURL:     conf.BaseURL,
		clientID:    conf.ClientID,
		consumerKey: conf.ConsumerKey,
		httpClient:  utils.GetHTTPClient(),
		now:         time.Now,
	}
}

// RegisterUserResponse is SnapTrade's user registration result
type RegisterUserResponse struct {
	UserID     string `json:"userId"`
	UserSecret string `json:"userSecret"`
}

// LoginResponse carries the connection portal redirect
type LoginResponse struct {
	RedirectURI string `json:"redirectURI"`
}

// Brokerage is a SnapTrade-supported institution
type Brokerage struct {
	ID              string `json:"id"`
	Slug            string `json:"slug"`
	Name            string `json:"name"`
	AwsS3LogoURL    string `json:"aws_s3_logo_url"`
	Enabled         bool   `json:"enabled"`
	MaintenanceMode bool   `json:"maintenance_mode"`
}

// Balance is a reported account balance
type Balance struct {
	Total *struct {
		Amount   *float64 `json:"amount"`
		Currency string   `json:"currency"`
	} `json:"total"`
}

// SyncStatus reports the progress of SnapTrade's initial data sync
type SyncStatus struct {
	Holdings struct {
		InitialSyncCompleted bool `json:"initial_sync_completed"`
	} `json:"holdings"`
	Transactions struct {
		InitialSyncCompleted bool `json:"initial_sync_completed"`
	} `json:"transactions"`
}

// Account is a SnapTrade brokerage account
type Account struct {
	ID                     string     `json:"id"`
	BrokerageAuthorization string     `json:"brokerage_authorization"`
	Name                   string     `json:"name"`
	Number                 string     `json:"number"`
	InstitutionName        string     `json:"institution_name"`
	Balance                Balance    `json:"balance"`
	SyncStatus             SyncStatus `json:"sync_status"`
	RawType                *struct {
		Type string `json:"type"`
	} `json:"meta,omitempty"`
}

// Position is a single holding inside an account
type Position struct {
	Symbol struct {
		Symbol struct {
			Symbol      string `json:"symbol"`
			Description string `json:"description"`
			LogoURL     string `json:"logo_url"`
		} `json:"symbol"`
	} `json:"symbol"`
	Units                float64  `json:"units"`
	Price                *float64 `json:"price"`
	AveragePurchasePrice *float64 `json:"average_purchase_price"`
}

// HoldingsResponse is the full holdings snapshot of one account
type HoldingsResponse struct {
	Account    Account    `json:"account"`
	Positions  []Position `json:"positions"`
	TotalValue *struct {
		Value    *float64 `json:"value"`
		Currency string   `json:"currency"`
	} `json:"total_value"`
}

// Activity is a single account transaction
type Activity struct {
	ID      string `json:"id"`
	Account struct {
		ID string `json:"id"`
	} `json:"account"`
	Amount   *float64 `json:"amount"`
	Currency struct {
		Code string `json:"code"`
	} `json:"currency"`
	Description string `json:"description"`
	TradeDate   string `json:"trade_date"`
	Type        string `json:"type"`
}

// RegisterUser creates a SnapTrade user and returns the user secret
func (c *Client) RegisterUser(ctx context.Context, userID string) (*RegisterUserResponse, error) {
	var out RegisterUserResponse
	err := c.do(ctx, http.MethodPost, "/snapTrade/registerUser", nil, map[string]string{"userId": userID}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteUser removes the SnapTrade user and all its connections upstream
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	query := url.Values{}
	query.Set("userId", userID)
	return c.do(ctx, http.MethodDelete, "/snapTrade/deleteUser", query, nil, nil)
}

// LoginUser opens a connection portal session. A non-empty
// reconnectAuthorizationID repairs an existing connection instead of
// creating a new one.
func (c *Client) LoginUser(ctx context.Context, userID, userSecret, brokerSlug, reconnectAuthorizationID string) (*LoginResponse, error) {
	query := url.Values{}
	query.Set("userId", userID)
	query.Set("userSecret", userSecret)

	body := map[string]interface{}{
		"immediateRedirect": true,
	}
	if brokerSlug != "" {
		body["broker"] = brokerSlug
	}
	if reconnectAuthorizationID != "" {
		body["reconnect"] = reconnectAuthorizationID
	}

	var out LoginResponse
	if err := c.do(ctx, http.MethodPost, "/snapTrade/login", query, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBrokerages lists every institution SnapTrade can connect to
func (c *Client) ListBrokerages(ctx context.Context) ([]Brokerage, error) {
	var out []Brokerage
	if err := c.do(ctx, http.MethodGet, "/brokerages", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAccounts lists the user's connected accounts
func (c *Client) ListAccounts(ctx context.Context, userID, userSecret string) ([]Account, error) {
	query := url.Values{}
	query.Set("userId", userID)
	query.Set("userSecret", userSecret)

	var out []Account
	if err := c.do(ctx, http.MethodGet, "/accounts", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetHoldings pulls the holdings snapshot of one account
func (c *Client) GetHoldings(ctx context.Context, userID, userSecret, accountID string) (*HoldingsResponse, error) {
	query := url.Values{}
	query.Set("userId", userID)
	query.Set("userSecret", userSecret)

	var out HoldingsResponse
	if err := c.do(ctx, http.MethodGet, "/accounts/"+accountID+"/holdings", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListActivities pulls account transactions
func (c *Client) ListActivities(ctx context.Context, userID, userSecret, accountID string, since time.Time) ([]Activity, error) {
	query := url.Values{}
	query.Set("userId", userID)
	query.Set("userSecret", userSecret)
	query.Set("accounts", accountID)
	if !since.IsZero() {
		query.Set("startDate", since.Format("2006-01-02"))
	}

	var out []Activity
	if err := c.do(ctx, http.MethodGet, "/activities", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RefreshAuthorization triggers an on-demand holdings refresh
func (c *Client) RefreshAuthorization(ctx context.Context, userID, userSecret, authorizationID string) error {
	query := url.Values{}
	query.Set("userId", userID)
	query.Set("userSecret", userSecret)

	return c.do(ctx, http.MethodPost, "/authorizations/"+authorizationID+"/refresh", query, nil, nil)
}

// do signs and executes one request. The signature covers the request
// content, path and encoded query exactly as sent.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("clientId", c.clientID)
	query.Set("timestamp", strconv.FormatInt(c.now().Unix(), 10))
	encodedQuery := query.Encode()

	signed := map[string]interface{}{
		"content": body,
		"path":    "/api/v1" + path,
		"query":   encodedQuery,
	}
	signedBytes, err := json.Marshal(signed)
	if err != nil {
		return fmt.Errorf("snaptrade: marshal signature content: %w", err)
	}
	signature := cryptoUtils.GenerateHMACSignature(signedBytes, c.consumerKey)

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("snaptrade: marshal body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+encodedQuery, reqBody)
	if err != nil {
		return fmt.Errorf("snaptrade: build request: %w", err)
	}
	req.Header.Set("Signature", signature)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("snaptrade: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("snaptrade: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &providers.TransportError{Provider: "snaptrade", Status: resp.StatusCode, Body: string(raw)}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("snaptrade: decode response: %w", err)
		}
	}
	return nil
}
