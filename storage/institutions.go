package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fintrackhq/fintrack/types"
)

// InstitutionRepository persists the per-provider institution catalog
type InstitutionRepository struct {
	q Querier
}

// NewInstitutionRepository creates an institution repository over q
func NewInstitutionRepository(q Querier) *InstitutionRepository {
	return &InstitutionRepository{q: q}
}

// Upsert inserts or refreshes an institution keyed on
// (provider_id, provider_institution_id)
func (r *InstitutionRepository) Upsert(ctx context.Context, inst types.Institution) (uuid.UUID, error) {
	query := `
		INSERT INTO institutions (id, provider_id, provider_institution_id, name, logo_url, country, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider_id, provider_institution_id) DO UPDATE SET
			name = excluded.name,
			logo_url = excluded.logo_url,
			country = excluded.country,
			enabled = excluded.enabled
		RETURNING id
	`

	var id uuid.UUID
	err := r.q.QueryRowContext(
		ctx, query,
		inst.ID, inst.ProviderID, inst.ProviderInstitutionID, inst.Name, inst.LogoURL, inst.Country, inst.Enabled,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert institution: %w", err)
	}
	return id, nil
}

// GetByProviderInstitutionID retrieves an institution by its provider-native id
func (r *InstitutionRepository) GetByProviderInstitutionID(ctx context.Context, providerID uuid.UUID, providerInstitutionID string) (*types.Institution, error) {
	query := `
		SELECT id, provider_id, provider_institution_id, name, logo_url, country, enabled
		FROM institutions
		WHERE provider_id = $1 AND provider_institution_id = $2
	`

	var inst types.Institution
	err := r.q.QueryRowContext(ctx, query, providerID, providerInstitutionID).Scan(
		&inst.ID, &inst.ProviderID, &inst.ProviderInstitutionID,
		&inst.Name, &inst.LogoURL, &inst.Country, &inst.Enabled,
	)
	if err == sql.ErrNoRows {
		return nil, ErrInstitutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get institution: %w", err)
	}
	return &inst, nil
}

// GetByID retrieves an institution by its local id
func (r *InstitutionRepository) GetByID(ctx context.Context, id uuid.UUID) (*types.Institution, error) {
	query := `
		SELECT id, provider_id, provider_institution_id, name, logo_url, country, enabled
		FROM institutions
		WHERE id = $1
	`

	var inst types.Institution
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&inst.ID, &inst.ProviderID, &inst.ProviderInstitutionID,
		&inst.Name, &inst.LogoURL, &inst.Country, &inst.Enabled,
	)
	if err == sql.ErrNoRows {
		return nil, ErrInstitutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get institution: %w", err)
	}
	return &inst, nil
}

// ListByProvider returns the enabled institutions for a provider
func (r *InstitutionRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]types.Institution, error) {
	query := `
		SELECT id, provider_id, provider_institution_id, name, logo_url, country, enabled
		FROM institutions
		WHERE provider_id = $1 AND enabled = TRUE
		ORDER BY name
	`

	rows, err := r.q.QueryContext(ctx, query, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list institutions: %w", err)
	}
	defer rows.Close()

	var institutions []types.Institution
	for rows.Next() {
		var inst types.Institution
		if err := rows.Scan(
			&inst.ID, &inst.ProviderID, &inst.ProviderInstitutionID,
			&inst.Name, &inst.LogoURL, &inst.Country, &inst.Enabled,
		); err != nil {
			return nil, fmt.Errorf("failed to scan institution: %w", err)
		}
		institutions = append(institutions, inst)
	}
	return institutions, rows.Err()
}

// SetEnabled toggles the real-time support flag reported by the provider
func (r *InstitutionRepository) SetEnabled(ctx context.Context, providerID uuid.UUID, providerInstitutionID string, enabled bool) error {
	query := `
		UPDATE institutions SET enabled = $1
		WHERE provider_id = $2 AND provider_institution_id = $3
	`

	res, err := r.q.ExecContext(ctx, query, enabled, providerID, providerInstitutionID)
	if err != nil {
		return fmt.Errorf("failed to update institution: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrInstitutionNotFound
	}
	return nil
}

// DisableMissing disables every institution of the provider whose
// provider-native id is not in keep. Used by the periodic catalog sync.
func (r *InstitutionRepository) DisableMissing(ctx context.Context, providerID uuid.UUID, keep []string) error {
	if len(keep) == 0 {
		_, err := r.q.ExecContext(ctx, `UPDATE institutions SET enabled = FALSE WHERE provider_id = $1`, providerID)
		if err != nil {
			return fmt.Errorf("failed to disable institutions: %w", err)
		}
		return nil
	}

	placeholders := make([]string, len(keep))
	args := make([]interface{}, 0, len(keep)+1)
	args = append(args, providerID)
	for i, id := range keep {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	query := fmt.Sprintf(
		`UPDATE institutions SET enabled = FALSE WHERE provider_id = $1 AND provider_institution_id NOT IN (%s)`,
		strings.Join(placeholders, ", "),
	)

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to disable institutions: %w", err)
	}
	return nil
}
