package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the postgres DDL for the canonical entities. Natural keys carry
// unique constraints so provider-sourced upserts have explicit conflict
// targets.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS providers (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		logo_url TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS institutions (
		id UUID PRIMARY KEY,
		provider_id UUID NOT NULL REFERENCES providers (id),
		provider_institution_id TEXT NOT NULL,
		name TEXT NOT NULL,
		logo_url TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		UNIQUE (provider_id, provider_institution_id)
	)`,
	`CREATE TABLE IF NOT EXISTS provider_connections (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		provider_id UUID NOT NULL REFERENCES providers (id),
		provider_user_id TEXT NOT NULL DEFAULT '',
		secret TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (user_id, provider_id)
	)`,
	`CREATE INDEX IF NOT EXISTS provider_connections_provider_user
		ON provider_connections (provider_id, provider_user_id)`,
	`CREATE TABLE IF NOT EXISTS institution_connections (
		id UUID PRIMARY KEY,
		institution_id UUID NOT NULL REFERENCES institutions (id),
		provider_connection_id UUID NOT NULL REFERENCES provider_connections (id) ON DELETE CASCADE,
		connection_id TEXT NOT NULL,
		broken BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE (provider_connection_id, connection_id)
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY,
		type TEXT NOT NULL,
		subtype TEXT NOT NULL DEFAULT '',
		user_id UUID NOT NULL,
		name TEXT NOT NULL,
		value NUMERIC NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT '',
		cost NUMERIC,
		units NUMERIC,
		ticker TEXT NOT NULL DEFAULT '',
		parent_id UUID REFERENCES accounts (id) ON DELETE CASCADE,
		institution_connection_id UUID REFERENCES institution_connections (id) ON DELETE CASCADE,
		provider_account_id TEXT NOT NULL DEFAULT '',
		image TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS accounts_provider_key
		ON accounts (institution_connection_id, provider_account_id)
		WHERE institution_connection_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS accounts_holding_key
		ON accounts (parent_id, name)
		WHERE parent_id IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS categories (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id UUID PRIMARY KEY,
		account_id UUID NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
		date TIMESTAMP NOT NULL,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		category_id UUID REFERENCES categories (id),
		provider_transaction_id TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS transactions_provider_key
		ON transactions (account_id, provider_transaction_id)
		WHERE provider_transaction_id <> ''`,
}

// Migrate applies the schema statements in order.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
