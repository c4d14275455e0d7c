package enrichment

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fintrackhq/fintrack/config"
	"github.com/fintrackhq/fintrack/storage"
	"github.com/fintrackhq/fintrack/types"
)

// Pipeline categorizes stored transactions through the enrichment API
// and merges the results back. Category names map onto local category
// ids by exact name match; unmatched names leave the transaction's
// category untouched.
type Pipeline struct {
	db         *sql.DB
	client     *Client
	categories storage.TokenCache
	cacheTTL   time.Duration
}

// NewPipeline creates the enrichment pipeline. categories caches
// category name to id lookups.
func NewPipeline(db *sql.DB, conf *config.EnrichmentConfiguration, categories storage.TokenCache) *Pipeline {
	return &Pipeline{
		db:         db,
		client:     NewClient(conf),
		categories: categories,
		cacheTTL:   conf.CategoryCacheTTL,
	}
}

// EnrichTransaction categorizes one stored transaction and applies the
// result: the resolved counterparty replaces the description, and the
// category maps by exact name.
func (p *Pipeline) EnrichTransaction(ctx context.Context, userID uuid.UUID, transactionID uuid.UUID) error {
	repo := storage.NewTransactionRepository(p.db)
	tx, err := repo.GetByID(ctx, transactionID)
	if err != nil {
		return err
	}

	if err := p.ensureAccountHolder(ctx, userID); err != nil {
		return err
	}

	result, err := p.client.EnrichTransaction(ctx, buildRequest(tx, userID))
	if err != nil {
		return err
	}

	description := tx.Description
	if result.Entities.Counterparty.Name != "" {
		description = result.Entities.Counterparty.Name
	}

	categoryID, err := p.resolveCategory(ctx, result.Categories.General)
	if err != nil {
		return err
	}

	return repo.ApplyEnrichment(ctx, tx.ID, description, categoryID)
}

// EnrichBatch categorizes a set of transactions concurrently and waits
// for all to settle. Individual failures are surfaced, not swallowed.
func (p *Pipeline) EnrichBatch(ctx context.Context, userID uuid.UUID, transactionIDs []uuid.UUID) error {
	var wg sync.WaitGroup
	errs := make([]error, len(transactionIDs))

	for i, id := range transactionIDs {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			errs[i] = p.EnrichTransaction(ctx, userID, id)
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ensureAccountHolder creates the upstream account holder when the
// probe reports it absent.
func (p *Pipeline) ensureAccountHolder(ctx context.Context, userID uuid.UUID) error {
	err := p.client.GetAccountHolder(ctx, userID.String())
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrAccountHolderNotFound) {
		return err
	}
	return p.client.CreateAccountHolder(ctx, userID.String())
}

// resolveCategory maps the upstream category label to a local category
// id by exact name match, caching hits. A nil result leaves the stored
// category untouched.
func (p *Pipeline) resolveCategory(ctx context.Context, name string) (*uuid.UUID, error) {
	if name == "" {
		return nil, nil
	}

	cacheKey := "category:" + name
	if cached, ok := p.categories.Get(ctx, cacheKey); ok {
		id, err := uuid.Parse(cached)
		if err == nil {
			return &id, nil
		}
	}

	category, err := storage.NewCategoryRepository(p.db).GetByName(ctx, name)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	p.categories.Set(ctx, cacheKey, category.ID.String(), p.cacheTTL)
	id := category.ID
	return &id, nil
}

// buildRequest maps a stored transaction onto the enrichment request
// shape: the amount travels unsigned with the sign in entry_type.
func buildRequest(tx *types.Transaction, userID uuid.UUID) EnrichRequest {
	entryType := "incoming"
	if tx.Amount.IsNegative() {
		entryType = "outgoing"
	}

	return EnrichRequest{
		ID:              tx.ID.String(),
		Description:     tx.Description,
		Date:            tx.Date.Format("2006-01-02"),
		Amount:          tx.Amount.Abs().String(),
		EntryType:       entryType,
		Currency:        tx.Currency,
		AccountHolderID: userID.String(),
	}
}
