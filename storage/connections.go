package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/fintrackhq/fintrack/types"
)

// ProviderConnectionRepository persists user registrations with providers
type ProviderConnectionRepository struct {
	q Querier
}

// NewProviderConnectionRepository creates a provider connection repository over q
func NewProviderConnectionRepository(q Querier) *ProviderConnectionRepository {
	return &ProviderConnectionRepository{q: q}
}

// Create inserts a new provider connection
func (r *ProviderConnectionRepository) Create(ctx context.Context, pc types.ProviderConnection) error {
	query := `
		INSERT INTO provider_connections (id, user_id, provider_id, provider_user_id, secret)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.q.ExecContext(ctx, query, pc.ID, pc.UserID, pc.ProviderID, pc.ProviderUserID, pc.Secret)
	if err != nil {
		return fmt.Errorf("failed to create provider connection: %w", err)
	}
	return nil
}

// GetByUserAndProvider retrieves the connection for (user, provider)
func (r *ProviderConnectionRepository) GetByUserAndProvider(ctx context.Context, userID, providerID uuid.UUID) (*types.ProviderConnection, error) {
	query := `
		SELECT id, user_id, provider_id, provider_user_id, secret, created_at, updated_at
		FROM provider_connections
		WHERE user_id = $1 AND provider_id = $2
	`
	return r.scanOne(r.q.QueryRowContext(ctx, query, userID, providerID))
}

// GetByProviderUserID retrieves the connection matching a provider-native
// customer identifier, used when resolving webhook payloads.
func (r *ProviderConnectionRepository) GetByProviderUserID(ctx context.Context, providerID uuid.UUID, providerUserID string) (*types.ProviderConnection, error) {
	query := `
		SELECT id, user_id, provider_id, provider_user_id, secret, created_at, updated_at
		FROM provider_connections
		WHERE provider_id = $1 AND provider_user_id = $2
	`
	return r.scanOne(r.q.QueryRowContext(ctx, query, providerID, providerUserID))
}

// ListByProvider returns every registration with the given provider
func (r *ProviderConnectionRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]types.ProviderConnection, error) {
	query := `
		SELECT id, user_id, provider_id, provider_user_id, secret, created_at, updated_at
		FROM provider_connections
		WHERE provider_id = $1
	`

	rows, err := r.q.QueryContext(ctx, query, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider connections: %w", err)
	}
	defer rows.Close()

	var connections []types.ProviderConnection
	for rows.Next() {
		var pc types.ProviderConnection
		if err := rows.Scan(&pc.ID, &pc.UserID, &pc.ProviderID, &pc.ProviderUserID, &pc.Secret, &pc.CreatedAt, &pc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan provider connection: %w", err)
		}
		connections = append(connections, pc)
	}
	return connections, rows.Err()
}

// UpdateSecret replaces the stored provider secret
func (r *ProviderConnectionRepository) UpdateSecret(ctx context.Context, id uuid.UUID, secret string) error {
	query := `
		UPDATE provider_connections SET secret = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
	`

	if _, err := r.q.ExecContext(ctx, query, secret, id); err != nil {
		return fmt.Errorf("failed to update provider connection: %w", err)
	}
	return nil
}

// Delete removes a provider connection; institution connections cascade
func (r *ProviderConnectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM provider_connections WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete provider connection: %w", err)
	}
	return nil
}

func (r *ProviderConnectionRepository) scanOne(row *sql.Row) (*types.ProviderConnection, error) {
	var pc types.ProviderConnection
	err := row.Scan(&pc.ID, &pc.UserID, &pc.ProviderID, &pc.ProviderUserID, &pc.Secret, &pc.CreatedAt, &pc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrProviderConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider connection: %w", err)
	}
	return &pc, nil
}

// InstitutionConnectionRepository persists authorized institution links
type InstitutionConnectionRepository struct {
	q Querier
}

// NewInstitutionConnectionRepository creates an institution connection repository over q
func NewInstitutionConnectionRepository(q Querier) *InstitutionConnectionRepository {
	return &InstitutionConnectionRepository{q: q}
}

// Upsert links a provider connection to an institution under the provider's
// connection id; redelivered connect callbacks update in place and clear
// the broken flag.
func (r *InstitutionConnectionRepository) Upsert(ctx context.Context, ic types.InstitutionConnection) (uuid.UUID, error) {
	query := `
		INSERT INTO institution_connections (id, institution_id, provider_connection_id, connection_id, broken)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider_connection_id, connection_id) DO UPDATE SET
			institution_id = excluded.institution_id,
			broken = excluded.broken
		RETURNING id
	`

	var id uuid.UUID
	err := r.q.QueryRowContext(
		ctx, query,
		ic.ID, ic.InstitutionID, ic.ProviderConnectionID, ic.ConnectionID, ic.Broken,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert institution connection: %w", err)
	}
	return id, nil
}

// GetByConnectionID retrieves the link matching the provider's connection id
func (r *InstitutionConnectionRepository) GetByConnectionID(ctx context.Context, providerConnectionID uuid.UUID, connectionID string) (*types.InstitutionConnection, error) {
	query := `
		SELECT id, institution_id, provider_connection_id, connection_id, broken
		FROM institution_connections
		WHERE provider_connection_id = $1 AND connection_id = $2
	`

	var ic types.InstitutionConnection
	err := r.q.QueryRowContext(ctx, query, providerConnectionID, connectionID).Scan(
		&ic.ID, &ic.InstitutionID, &ic.ProviderConnectionID, &ic.ConnectionID, &ic.Broken,
	)
	if err == sql.ErrNoRows {
		return nil, ErrInstitutionConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get institution connection: %w", err)
	}
	return &ic, nil
}

// ListByProviderConnection returns every institution link under a registration
func (r *InstitutionConnectionRepository) ListByProviderConnection(ctx context.Context, providerConnectionID uuid.UUID) ([]types.InstitutionConnection, error) {
	query := `
		SELECT id, institution_id, provider_connection_id, connection_id, broken
		FROM institution_connections
		WHERE provider_connection_id = $1
	`

	rows, err := r.q.QueryContext(ctx, query, providerConnectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list institution connections: %w", err)
	}
	defer rows.Close()

	var connections []types.InstitutionConnection
	for rows.Next() {
		var ic types.InstitutionConnection
		if err := rows.Scan(&ic.ID, &ic.InstitutionID, &ic.ProviderConnectionID, &ic.ConnectionID, &ic.Broken); err != nil {
			return nil, fmt.Errorf("failed to scan institution connection: %w", err)
		}
		connections = append(connections, ic)
	}
	return connections, rows.Err()
}

// ListBrokenByUser returns every broken link owned by a user, used to
// prompt re-authorization.
func (r *InstitutionConnectionRepository) ListBrokenByUser(ctx context.Context, userID uuid.UUID) ([]types.InstitutionConnection, error) {
	query := `
		SELECT ic.id, ic.institution_id, ic.provider_connection_id, ic.connection_id, ic.broken
		FROM institution_connections ic
		JOIN provider_connections pc ON pc.id = ic.provider_connection_id
		WHERE pc.user_id = $1 AND ic.broken = TRUE
	`

	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list broken connections: %w", err)
	}
	defer rows.Close()

	var connections []types.InstitutionConnection
	for rows.Next() {
		var ic types.InstitutionConnection
		if err := rows.Scan(&ic.ID, &ic.InstitutionID, &ic.ProviderConnectionID, &ic.ConnectionID, &ic.Broken); err != nil {
			return nil, fmt.Errorf("failed to scan institution connection: %w", err)
		}
		connections = append(connections, ic)
	}
	return connections, rows.Err()
}

// SetBroken flips the broken flag on the link matching the provider's
// connection id. Matching an absent row is not an error: broken/fixed
// callbacks may be redelivered after a destroy.
func (r *InstitutionConnectionRepository) SetBroken(ctx context.Context, providerConnectionID uuid.UUID, connectionID string, broken bool) error {
	query := `
		UPDATE institution_connections SET broken = $1
		WHERE provider_connection_id = $2 AND connection_id = $3
	`

	if _, err := r.q.ExecContext(ctx, query, broken, providerConnectionID, connectionID); err != nil {
		return fmt.Errorf("failed to update institution connection: %w", err)
	}
	return nil
}

// DeleteByConnectionID removes the link for the provider's connection id.
// Deleting an already-absent row is a no-op.
func (r *InstitutionConnectionRepository) DeleteByConnectionID(ctx context.Context, providerConnectionID uuid.UUID, connectionID string) error {
	query := `
		DELETE FROM institution_connections
		WHERE provider_connection_id = $1 AND connection_id = $2
	`

	if _, err := r.q.ExecContext(ctx, query, providerConnectionID, connectionID); err != nil {
		return fmt.Errorf("failed to delete institution connection: %w", err)
	}
	return nil
}
