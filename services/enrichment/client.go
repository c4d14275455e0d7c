package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	fastshot "github.com/opus-domini/fast-shot"

	"github.com/fintrackhq/fintrack/config"
)

// ErrAccountHolderNotFound marks the expected miss when probing for an
// account holder that has not been created yet.
var ErrAccountHolderNotFound = errors.New("enrichment: account holder not found")

// Client wraps the transaction enrichment API.
type Client struct {
	conf *config.EnrichmentConfiguration
}

// NewClient creates an enrichment API client
func NewClient(conf *config.EnrichmentConfiguration) *Client {
	return &Client{conf: conf}
}

// EnrichRequest is one transaction submitted for categorization. Amount
// is non-negative; the sign travels in EntryType.
type EnrichRequest struct {
	ID              string `json:"id"`
	Description     string `json:"description"`
	Date            string `json:"date"`
	Amount          string `json:"amount"`
	EntryType       string `json:"entry_type"`
	Currency        string `json:"iso_currency_code"`
	AccountHolderID string `json:"account_holder_id"`
}

// EnrichResponse is the categorization outcome for one transaction.
type EnrichResponse struct {
	ID         string   `json:"id"`
	Entities   Entities `json:"entities"`
	Categories struct {
		General string `json:"general"`
	} `json:"categories"`
}

// Entities carries the resolved counterparty.
type Entities struct {
	Counterparty struct {
		Name    string `json:"name"`
		Website string `json:"website"`
		LogoURL string `json:"logo"`
	} `json:"counterparty"`
}

func (c *Client) http() fastshot.ClientHttpMethods {
	return fastshot.NewClient(c.conf.BaseURL).
		Config().SetTimeout(30 * time.Second).
		Header().AddAll(map[string]string{
		"X-API-KEY":    c.conf.APIKey,
		"Accept":       "application/json",
		"Content-Type": "application/json",
	}).Build()
}

func (c *Client) decode(res fastshot.Response, v interface{}) error {
	bodyReader := res.RawBody()
	defer bodyReader.Close()

	body, err := io.ReadAll(bodyReader)
	if err != nil {
		return fmt.Errorf("enrichment: read response body: %w", err)
	}

	if res.StatusCode() >= 300 {
		return fmt.Errorf("enrichment: unexpected status %d: %s", res.StatusCode(), string(body))
	}

	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("enrichment: decode response: %w", err)
	}
	return nil
}

// GetAccountHolder probes for an account holder, returning
// ErrAccountHolderNotFound on a miss.
func (c *Client) GetAccountHolder(ctx context.Context, holderID string) error {
	res, err := c.http().GET("/account_holders/" + holderID).Send()
	if err != nil {
		return fmt.Errorf("enrichment: get account holder: %w", err)
	}
	if res.StatusCode() == 404 {
		io.Copy(io.Discard, res.RawBody())
		res.RawBody().Close()
		return ErrAccountHolderNotFound
	}
	return c.decode(res, nil)
}

// CreateAccountHolder registers an account holder for categorization
func (c *Client) CreateAccountHolder(ctx context.Context, holderID string) error {
	res, err := c.http().POST("/account_holders").
		Body().AsJSON(map[string]string{
		"id":   holderID,
		"type": "consumer",
	}).Send()
	if err != nil {
		return fmt.Errorf("enrichment: create account holder: %w", err)
	}
	return c.decode(res, nil)
}

// EnrichTransaction submits one transaction for categorization
func (c *Client) EnrichTransaction(ctx context.Context, req EnrichRequest) (*EnrichResponse, error) {
	res, err := c.http().POST("/transactions").
		Body().AsJSON(req).Send()
	if err != nil {
		return nil, fmt.Errorf("enrichment: enrich transaction: %w", err)
	}

	var payload EnrichResponse
	if err := c.decode(res, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
