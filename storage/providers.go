package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/fintrackhq/fintrack/types"
)

// ProviderRepository persists the static provider catalog
type ProviderRepository struct {
	q Querier
}

// NewProviderRepository creates a provider repository over q
func NewProviderRepository(q Querier) *ProviderRepository {
	return &ProviderRepository{q: q}
}

// Upsert inserts the provider or refreshes its logo, keyed on name
func (r *ProviderRepository) Upsert(ctx context.Context, p types.Provider) (uuid.UUID, error) {
	query := `
		INSERT INTO providers (id, name, logo_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET logo_url = excluded.logo_url
		RETURNING id
	`

	var id uuid.UUID
	err := r.q.QueryRowContext(ctx, query, p.ID, p.Name, p.LogoURL).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert provider: %w", err)
	}
	return id, nil
}

// GetByName retrieves a provider by its catalog name
func (r *ProviderRepository) GetByName(ctx context.Context, name string) (*types.Provider, error) {
	query := `SELECT id, name, logo_url FROM providers WHERE name = $1`

	var p types.Provider
	err := r.q.QueryRowContext(ctx, query, name).Scan(&p.ID, &p.Name, &p.LogoURL)
	if err == sql.ErrNoRows {
		return nil, ErrProviderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return &p, nil
}

// GetByID retrieves a provider by id
func (r *ProviderRepository) GetByID(ctx context.Context, id uuid.UUID) (*types.Provider, error) {
	query := `SELECT id, name, logo_url FROM providers WHERE id = $1`

	var p types.Provider
	err := r.q.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.LogoURL)
	if err == sql.ErrNoRows {
		return nil, ErrProviderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return &p, nil
}

// List returns every catalogued provider
func (r *ProviderRepository) List(ctx context.Context) ([]types.Provider, error) {
	query := `SELECT id, name, logo_url FROM providers ORDER BY name`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var providers []types.Provider
	for rows.Next() {
		var p types.Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.LogoURL); err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}
