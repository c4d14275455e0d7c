package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fintrackhq/fintrack/types"
)

// AccountRepository persists accounts and brokerage holding lines
type AccountRepository struct {
	q Querier
}

// NewAccountRepository creates an account repository over q
func NewAccountRepository(q Querier) *AccountRepository {
	return &AccountRepository{q: q}
}

// UpsertProviderAccount inserts or refreshes a provider-sourced account
// keyed on (institution_connection_id, provider_account_id).
func (r *AccountRepository) UpsertProviderAccount(ctx context.Context, acct types.Account) (uuid.UUID, error) {
	if acct.InstitutionConnectionID == nil {
		return uuid.Nil, fmt.Errorf("provider account requires an institution connection")
	}

	query := `
		INSERT INTO accounts (id, type, subtype, user_id, name, value, currency, cost, units, ticker, parent_id, institution_connection_id, provider_account_id, image)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (institution_connection_id, provider_account_id) WHERE institution_connection_id IS NOT NULL DO UPDATE SET
			type = excluded.type,
			subtype = excluded.subtype,
			name = excluded.name,
			value = excluded.value,
			currency = excluded.currency,
			cost = excluded.cost,
			image = excluded.image
		RETURNING id
	`

	var id uuid.UUID
	err := r.q.QueryRowContext(
		ctx, query,
		acct.ID, acct.Type, acct.Subtype, acct.UserID, acct.Name, acct.Value, acct.Currency,
		acct.Cost, acct.Units, acct.Ticker, acct.ParentID, acct.InstitutionConnectionID,
		acct.ProviderAccountID, acct.Image,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert account: %w", err)
	}
	return id, nil
}

// UpsertHolding inserts or refreshes a child holding line keyed on
// (parent_id, name), inheriting the parent's institution connection.
func (r *AccountRepository) UpsertHolding(ctx context.Context, holding types.Account) (uuid.UUID, error) {
	if holding.ParentID == nil {
		return uuid.Nil, fmt.Errorf("holding requires a parent account")
	}

	query := `
		INSERT INTO accounts (id, type, subtype, user_id, name, value, currency, cost, units, ticker, parent_id, institution_connection_id, provider_account_id, image)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (parent_id, name) WHERE parent_id IS NOT NULL DO UPDATE SET
			value = excluded.value,
			currency = excluded.currency,
			cost = excluded.cost,
			units = excluded.units,
			ticker = excluded.ticker,
			image = excluded.image
		RETURNING id
	`

	var id uuid.UUID
	err := r.q.QueryRowContext(
		ctx, query,
		holding.ID, holding.Type, holding.Subtype, holding.UserID, holding.Name, holding.Value,
		holding.Currency, holding.Cost, holding.Units, holding.Ticker, holding.ParentID,
		holding.InstitutionConnectionID, holding.ProviderAccountID, holding.Image,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert holding: %w", err)
	}
	return id, nil
}

// DeleteHoldingsExcept removes holding lines under parent whose names are
// no longer reported by the provider.
func (r *AccountRepository) DeleteHoldingsExcept(ctx context.Context, parentID uuid.UUID, names []string) error {
	if len(names) == 0 {
		if _, err := r.q.ExecContext(ctx, `DELETE FROM accounts WHERE parent_id = $1`, parentID); err != nil {
			return fmt.Errorf("failed to delete holdings: %w", err)
		}
		return nil
	}

	placeholders := make([]string, len(names))
	args := make([]interface{}, 0, len(names)+1)
	args = append(args, parentID)
	for i, name := range names {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, name)
	}

	query := fmt.Sprintf(
		`DELETE FROM accounts WHERE parent_id = $1 AND name NOT IN (%s)`,
		strings.Join(placeholders, ", "),
	)

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete holdings: %w", err)
	}
	return nil
}

// DeleteByProviderAccountID removes the account matching the provider's
// account id. Deleting an already-absent row is a no-op.
func (r *AccountRepository) DeleteByProviderAccountID(ctx context.Context, institutionConnectionID uuid.UUID, providerAccountID string) error {
	query := `
		DELETE FROM accounts
		WHERE institution_connection_id = $1 AND provider_account_id = $2
	`

	if _, err := r.q.ExecContext(ctx, query, institutionConnectionID, providerAccountID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

// GetByID retrieves an account by id
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*types.Account, error) {
	query := selectAccounts + ` WHERE id = $1`

	var acct types.Account
	err := scanAccount(r.q.QueryRowContext(ctx, query, id), &acct)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acct, nil
}

// GetByProviderAccountID retrieves a provider-sourced account by its upsert key
func (r *AccountRepository) GetByProviderAccountID(ctx context.Context, institutionConnectionID uuid.UUID, providerAccountID string) (*types.Account, error) {
	query := selectAccounts + ` WHERE institution_connection_id = $1 AND provider_account_id = $2`

	var acct types.Account
	err := scanAccount(r.q.QueryRowContext(ctx, query, institutionConnectionID, providerAccountID), &acct)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acct, nil
}

// ListByUser returns every account owned by the user, parents before children
func (r *AccountRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]types.Account, error) {
	query := selectAccounts + ` WHERE user_id = $1 ORDER BY parent_id NULLS FIRST, name`

	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []types.Account
	for rows.Next() {
		var acct types.Account
		if err := scanAccount(rows, &acct); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// ListChildren returns the holding lines under a brokerage account
func (r *AccountRepository) ListChildren(ctx context.Context, parentID uuid.UUID) ([]types.Account, error) {
	query := selectAccounts + ` WHERE parent_id = $1 ORDER BY name`

	rows, err := r.q.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}
	defer rows.Close()

	var accounts []types.Account
	for rows.Next() {
		var acct types.Account
		if err := scanAccount(rows, &acct); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// CountProviderAccounts counts rows under an institution connection,
// used by tests asserting upsert idempotence.
func (r *AccountRepository) CountProviderAccounts(ctx context.Context, institutionConnectionID uuid.UUID, providerAccountID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM accounts
		WHERE institution_connection_id = $1 AND provider_account_id = $2
	`

	var count int
	if err := r.q.QueryRowContext(ctx, query, institutionConnectionID, providerAccountID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return count, nil
}

const selectAccounts = `
	SELECT id, type, subtype, user_id, name, value, currency, cost, units, ticker, parent_id, institution_connection_id, provider_account_id, image
	FROM accounts`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner, acct *types.Account) error {
	var parentID, connectionID uuid.NullUUID
	err := row.Scan(
		&acct.ID, &acct.Type, &acct.Subtype, &acct.UserID, &acct.Name, &acct.Value,
		&acct.Currency, &acct.Cost, &acct.Units, &acct.Ticker, &parentID,
		&connectionID, &acct.ProviderAccountID, &acct.Image,
	)
	if err != nil {
		return err
	}
	if parentID.Valid {
		acct.ParentID = &parentID.UUID
	}
	if connectionID.Valid {
		acct.InstitutionConnectionID = &connectionID.UUID
	}
	return nil
}
