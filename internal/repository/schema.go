package repository

import "context"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT,
		role TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS admin_profiles (
		account_id UUID PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
		designation TEXT NOT NULL,
		research_area TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS student_profiles (
		account_id UUID PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
		department TEXT NOT NULL,
		year INT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS servers (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		location TEXT NOT NULL,
		status TEXT NOT NULL,
		cpu_cores INT NOT NULL,
		memory_gb INT NOT NULL,
		storage_gb INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS requests (
		id UUID PRIMARY KEY,
		account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		description TEXT NOT NULL,
		priority TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS issues (
		id UUID PRIMARY KEY,
		account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		server_id UUID REFERENCES servers(id) ON DELETE SET NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		priority TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS allocations (
		id UUID PRIMARY KEY,
		account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		server_id UUID NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
		resource_type TEXT NOT NULL,
		starts_at TIMESTAMPTZ NOT NULL,
		ends_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL
	)`,
}

// EnsureSchema creates the tables idempotently so a fresh database serves
// requests without a separate migration step.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
