package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const defaultMirrorTable = "oauth_token_mirror"

// PostgresMirrorConfig captures configuration required to initialize a Postgres-backed mirror.
type PostgresMirrorConfig struct {
	DSN    string
	Schema string
	Table  string
}

// PostgresMirror keeps token cache copies in a single JSONB table.
type PostgresMirror struct {
	db  *sql.DB
	cfg PostgresMirrorConfig
}

// NewPostgresMirror connects to PostgreSQL and creates the mirror table when missing.
func NewPostgresMirror(ctx context.Context, cfg PostgresMirrorConfig) (*PostgresMirror, error) {
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres store: DSN is required")
	}
	if strings.TrimSpace(cfg.Table) == "" {
		cfg.Table = defaultMirrorTable
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open database connection: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres store: ping database: %w", err)
	}

	m := &PostgresMirror{db: db, cfg: cfg}
	if err = m.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func (m *PostgresMirror) Name() string { return "postgres" }

// Close releases the underlying database connection.
func (m *PostgresMirror) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

// EnsureSchema creates the mirror table (and schema when provided).
func (m *PostgresMirror) EnsureSchema(ctx context.Context) error {
	if schema := strings.TrimSpace(m.cfg.Schema); schema != "" {
		query := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoteIdentifier(schema))
		if _, err := m.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("postgres store: create schema: %w", err)
		}
	}
	if _, err := m.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, m.tableName())); err != nil {
		return fmt.Errorf("postgres store: create mirror table: %w", err)
	}
	return nil
}

// Push upserts the payload for key.
func (m *PostgresMirror) Push(ctx context.Context, key string, payload []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (id)
		DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()
	`, m.tableName())
	if _, err := m.db.ExecContext(ctx, query, key, json.RawMessage(payload)); err != nil {
		return fmt.Errorf("postgres store: upsert token record: %w", err)
	}
	return nil
}

// Pull reads the payload for key.
func (m *PostgresMirror) Pull(ctx context.Context, key string) ([]byte, error) {
	query := fmt.Sprintf("SELECT content FROM %s WHERE id = $1", m.tableName())
	var content string
	if err := m.db.QueryRowContext(ctx, query, key).Scan(&content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres store: read token record: %w", err)
	}
	return []byte(content), nil
}

// Delete removes the record for key.
func (m *PostgresMirror) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", m.tableName())
	if _, err := m.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("postgres store: delete token record: %w", err)
	}
	return nil
}

func (m *PostgresMirror) tableName() string {
	return fullTableName(m.cfg.Schema, m.cfg.Table)
}

func fullTableName(schema, name string) string {
	if strings.TrimSpace(schema) == "" {
		return quoteIdentifier(name)
	}
	return quoteIdentifier(schema) + "." + quoteIdentifier(name)
}

func quoteIdentifier(identifier string) string {
	replaced := strings.ReplaceAll(identifier, "\"", "\"\"")
	return "\"" + replaced + "\""
}
