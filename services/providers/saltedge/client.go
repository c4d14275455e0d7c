package saltedge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	fastshot "github.com/opus-domini/fast-shot"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/services/providers"
)

// Client wraps the Salt Edge REST API. Every request carries the App-id
// and Secret headers; Salt Edge has no per-request signing on the
// outbound side.
type Client struct {
	conf *config.SaltEdgeConfiguration
}

// NewClient creates a Salt Edge API client
func NewClient(conf *config.SaltEdgeConfiguration) *Client {
	return &Client{conf: conf}
}

// Customer is Salt Edge's registration of an end user.
type Customer struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
}

// ConnectSession is an authorization session; ConnectURL is where the
// user completes consent with their bank.
type ConnectSession struct {
	ExpiresAt  string `json:"expires_at"`
	ConnectURL string `json:"connect_url"`
}

// CatalogProvider is one bank in Salt Edge's provider catalog.
type CatalogProvider struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	LogoURL     string `json:"logo_url"`
	CountryCode string `json:"country_code"`
	Status      string `json:"status"`
}

// Account is Salt Edge's native account shape.
type Account struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Nature       string  `json:"nature"`
	Balance      float64 `json:"balance"`
	CurrencyCode string  `json:"currency_code"`
}

// Transaction is Salt Edge's native transaction shape.
type Transaction struct {
	ID           string  `json:"id"`
	AccountID    string  `json:"account_id"`
	MadeOn       string  `json:"made_on"`
	Amount       float64 `json:"amount"`
	CurrencyCode string  `json:"currency_code"`
	Description  string  `json:"description"`
}

type pagingMeta struct {
	NextID string `json:"next_id"`
}

// http builds a request client with the static auth headers applied
func (c *Client) http() fastshot.ClientHttpMethods {
	return fastshot.NewClient(c.conf.BaseURL).
		Config().SetTimeout(30 * time.Second).
		Header().AddAll(map[string]string{
		"App-id":       c.conf.AppID,
		"Secret":       c.conf.Secret,
		"Accept":       "application/json",
		"Content-Type": "application/json",
	}).Build()
}

// decode reads the response, surfacing non-2xx statuses as transport
// errors carrying the body, and unmarshals the body into v when given.
func (c *Client) decode(res fastshot.Response, v interface{}) error {
	bodyReader := res.RawBody()
	defer bodyReader.Close()

	body, err := io.ReadAll(bodyReader)
	if err != nil {
		return fmt.Errorf("saltedge: read response body: %w", err)
	}

	if res.StatusCode() >= 300 {
		return &providers.TransportError{
			Provider: providers.SaltEdge,
			Status:   res.StatusCode(),
			Body:     string(body),
		}
	}

	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("saltedge: decode response: %w", err)
	}
	return nil
}

// CreateCustomer registers an end user with Salt Edge
func (c *Client) CreateCustomer(ctx context.Context, identifier string) (*Customer, error) {
	res, err := c.http().POST("/customers").
		Body().AsJSON(map[string]interface{}{
		"data": map[string]string{"identifier": identifier},
	}).Send()
	if err != nil {
		return nil, fmt.Errorf("saltedge: create customer: %w", err)
	}

	var payload struct {
		Data Customer `json:"data"`
	}
	if err := c.decode(res, &payload); err != nil {
		return nil, err
	}
	return &payload.Data, nil
}

// RemoveCustomer deletes the Salt Edge customer and all its connections
func (c *Client) RemoveCustomer(ctx context.Context, customerID string) error {
	res, err := c.http().DELETE("/customers/" + customerID).Send()
	if err != nil {
		return fmt.Errorf("saltedge: remove customer: %w", err)
	}
	return c.decode(res, nil)
}

// CreateConnectSession opens a consent session for linking a bank.
// providerCode scopes the session to one bank when non-empty.
func (c *Client) CreateConnectSession(ctx context.Context, customerID, providerCode string) (*ConnectSession, error) {
	data := map[string]interface{}{
		"customer_id": customerID,
		"consent": map[string]interface{}{
			"scopes": []string{"account_details", "transactions_details"},
		},
		"attempt": map[string]interface{}{
			"return_to": c.conf.ReturnURL,
		},
	}
	if providerCode != "" {
		data["provider_code"] = providerCode
	}

	res, err := c.http().POST("/connect_sessions/create").
		Body().AsJSON(map[string]interface{}{"data": data}).Send()
	if err != nil {
		return nil, fmt.Errorf("saltedge: create connect session: %w", err)
	}

	var payload struct {
		Data ConnectSession `json:"data"`
	}
	if err := c.decode(res, &payload); err != nil {
		return nil, err
	}
	return &payload.Data, nil
}

// CreateReconnectSession opens a consent session repairing an existing
// connection's expired or revoked authorization.
func (c *Client) CreateReconnectSession(ctx context.Context, connectionID string) (*ConnectSession, error) {
	res, err := c.http().POST("/connect_sessions/reconnect").
		Body().AsJSON(map[string]interface{}{
		"data": map[string]interface{}{
			"connection_id": connectionID,
			"consent": map[string]interface{}{
				"scopes": []string{"account_details", "transactions_details"},
			},
			"attempt": map[string]interface{}{
				"return_to": c.conf.ReturnURL,
			},
		},
	}).Send()
	if err != nil {
		return nil, fmt.Errorf("saltedge: create reconnect session: %w", err)
	}

	var payload struct {
		Data ConnectSession `json:"data"`
	}
	if err := c.decode(res, &payload); err != nil {
		return nil, err
	}
	return &payload.Data, nil
}

// ListProviders walks the full provider catalog, following next_id
// pagination until exhausted.
func (c *Client) ListProviders(ctx context.Context) ([]CatalogProvider, error) {
	var all []CatalogProvider
	fromID := ""

	for {
		params := map[string]string{"per_page": "1000"}
		if fromID != "" {
			params["from_id"] = fromID
		}

		res, err := c.http().GET("/providers").
			Query().AddParams(params).Send()
		if err != nil {
			return nil, fmt.Errorf("saltedge: list providers: %w", err)
		}

		var payload struct {
			Data []CatalogProvider `json:"data"`
			Meta pagingMeta        `json:"meta"`
		}
		if err := c.decode(res, &payload); err != nil {
			return nil, err
		}

		all = append(all, payload.Data...)
		if payload.Meta.NextID == "" {
			break
		}
		fromID = payload.Meta.NextID
	}
	return all, nil
}

// RemoveConnection deletes a bank connection and its consent
func (c *Client) RemoveConnection(ctx context.Context, connectionID string) error {
	res, err := c.http().DELETE("/connections/" + connectionID).Send()
	if err != nil {
		return fmt.Errorf("saltedge: remove connection: %w", err)
	}
	return c.decode(res, nil)
}

// RefreshConnection requests an on-demand data refresh for a connection
func (c *Client) RefreshConnection(ctx context.Context, connectionID string) error {
	res, err := c.http().PUT("/connections/"+connectionID+"/refresh").
		Body().AsJSON(map[string]interface{}{
		"data": map[string]interface{}{
			"attempt": map[string]interface{}{
				"return_to": c.conf.ReturnURL,
			},
		},
	}).Send()
	if err != nil {
		return fmt.Errorf("saltedge: refresh connection: %w", err)
	}
	return c.decode(res, nil)
}

// ListAccounts lists the accounts under one connection
func (c *Client) ListAccounts(ctx context.Context, connectionID string) ([]Account, error) {
	var all []Account
	fromID := ""

	for {
		params := map[string]string{"connection_id": connectionID}
		if fromID != "" {
			params["from_id"] = fromID
		}

		res, err := c.http().GET("/accounts").
			Query().AddParams(params).Send()
		if err != nil {
			return nil, fmt.Errorf("saltedge: list accounts: %w", err)
		}

		var payload struct {
			Data []Account  `json:"data"`
			Meta pagingMeta `json:"meta"`
		}
		if err := c.decode(res, &payload); err != nil {
			return nil, err
		}

		all = append(all, payload.Data...)
		if payload.Meta.NextID == "" {
			break
		}
		fromID = payload.Meta.NextID
	}
	return all, nil
}

// ListTransactions lists the transactions of one account under a
// connection, following pagination until exhausted.
func (c *Client) ListTransactions(ctx context.Context, connectionID, accountID string) ([]Transaction, error) {
	var all []Transaction
	fromID := ""

	for {
		params := map[string]string{
			"connection_id": connectionID,
			"account_id":    accountID,
		}
		if fromID != "" {
			params["from_id"] = fromID
		}

		res, err := c.http().GET("/transactions").
			Query().AddParams(params).Send()
		if err != nil {
			return nil, fmt.Errorf("saltedge: list transactions: %w", err)
		}

		var payload struct {
			Data []Transaction `json:"data"`
			Meta pagingMeta    `json:"meta"`
		}
		if err := c.decode(res, &payload); err != nil {
			return nil, err
		}

		all = append(all, payload.Data...)
		if payload.Meta.NextID == "" {
			break
		}
		fromID = payload.Meta.NextID
	}
	return all, nil
}
