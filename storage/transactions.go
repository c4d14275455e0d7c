package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/fintrackhq/fintrack/types"
)

// TransactionRepository persists account transactions
type TransactionRepository struct {
	q Querier
}

// NewTransactionRepository creates a transaction repository over q
func NewTransactionRepository(q Querier) *TransactionRepository {
	return &TransactionRepository{q: q}
}

// UpsertProviderTransaction inserts or refreshes a provider-sourced row
// keyed on (account_id, provider_transaction_id).
func (r *TransactionRepository) UpsertProviderTransaction(ctx context.Context, tx types.TransactionInsert) (uuid.UUID, error) {
	if tx.ProviderTransactionID == "" {
		return uuid.Nil, fmt.Errorf("provider transaction requires a provider transaction id")
	}

	query := `
		INSERT INTO transactions (id, account_id, date, amount, currency, description, provider_transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id, provider_transaction_id) WHERE provider_transaction_id <> '' DO UPDATE SET
			date = excluded.date,
			amount = excluded.amount,
			currency = excluded.currency,
			description = excluded.description
		RETURNING id
	`

	var id uuid.UUID
	err := r.q.QueryRowContext(
		ctx, query,
		uuid.New(), tx.AccountID, tx.Date, tx.Amount, tx.Currency, tx.Description, tx.ProviderTransactionID,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert transaction: %w", err)
	}
	return id, nil
}

// GetByID retrieves a transaction by id
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*types.Transaction, error) {
	query := `
		SELECT id, account_id, date, amount, currency, description, category_id, provider_transaction_id
		FROM transactions
		WHERE id = $1
	`

	var tx types.Transaction
	err := scanTransaction(r.q.QueryRowContext(ctx, query, id), &tx)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

// ListByAccount returns transactions of an account, newest first
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]types.Transaction, error) {
	query := `
		SELECT id, account_id, date, amount, currency, description, category_id, provider_transaction_id
		FROM transactions
		WHERE account_id = $1
		ORDER BY date DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.q.QueryContext(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []types.Transaction
	for rows.Next() {
		var tx types.Transaction
		if err := scanTransaction(rows, &tx); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// ApplyEnrichment merges an enrichment result onto a transaction. A nil
// categoryID leaves the stored category untouched.
func (r *TransactionRepository) ApplyEnrichment(ctx context.Context, id uuid.UUID, description string, categoryID *uuid.UUID) error {
	query := `
		UPDATE transactions
		SET description = $1, category_id = COALESCE($2, category_id)
		WHERE id = $3
	`

	var category uuid.NullUUID
	if categoryID != nil {
		category = uuid.NullUUID{UUID: *categoryID, Valid: true}
	}

	if _, err := r.q.ExecContext(ctx, query, description, category, id); err != nil {
		return fmt.Errorf("failed to apply enrichment: %w", err)
	}
	return nil
}

// CountProviderTransactions counts rows for an upsert key, used by tests
// asserting idempotence.
func (r *TransactionRepository) CountProviderTransactions(ctx context.Context, accountID uuid.UUID, providerTransactionID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM transactions
		WHERE account_id = $1 AND provider_transaction_id = $2
	`

	var count int
	if err := r.q.QueryRowContext(ctx, query, accountID, providerTransactionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func scanTransaction(row rowScanner, tx *types.Transaction) error {
	var categoryID uuid.NullUUID
	err := row.Scan(
		&tx.ID, &tx.AccountID, &tx.Date, &tx.Amount, &tx.Currency,
		&tx.Description, &categoryID, &tx.ProviderTransactionID,
	)
	if err != nil {
		return err
	}
	if categoryID.Valid {
		tx.CategoryID = &categoryID.UUID
	}
	return nil
}

// CategoryRepository persists the local category catalog
type CategoryRepository struct {
	q Querier
}

// NewCategoryRepository creates a category repository over q
func NewCategoryRepository(q Querier) *CategoryRepository {
	return &CategoryRepository{q: q}
}

// Upsert inserts a category if absent, keyed on name
func (r *CategoryRepository) Upsert(ctx context.Context, c types.Category) (uuid.UUID, error) {
	query := `
		INSERT INTO categories (id, name)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = excluded.name
		RETURNING id
	`

	var id uuid.UUID
	if err := r.q.QueryRowContext(ctx, query, c.ID, c.Name).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert category: %w", err)
	}
	return id, nil
}

// GetByName retrieves a category by exact name match
func (r *CategoryRepository) GetByName(ctx context.Context, name string) (*types.Category, error) {
	query := `SELECT id, name FROM categories WHERE name = $1`

	var c types.Category
	err := r.q.QueryRowContext(ctx, query, name).Scan(&c.ID, &c.Name)
	if err == sql.ErrNoRows {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

// List returns every category
func (r *CategoryRepository) List(ctx context.Context) ([]types.Category, error) {
	query := `SELECT id, name FROM categories ORDER BY name`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []types.Category
	for rows.Next() {
		var c types.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
