package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore keeps every namespace in a single documents table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    PRAGMA journal_mode = WAL;
    PRAGMA busy_timeout = 5000;

    CREATE TABLE IF NOT EXISTS documents (
        namespace TEXT NOT NULL,
        key TEXT NOT NULL,
        body TEXT NOT NULL, -- whole JSON document
        updated_at DATETIME NOT NULL,
        PRIMARY KEY (namespace, key)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Put upserts in one statement, so readers never observe a partial document.
func (s *SQLiteStore) Put(ctx context.Context, ns Namespace, key string, doc any) error {
	if err := validateNamespace(ns); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", ns, key, err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO documents (namespace, key, body, updated_at) VALUES (?, ?, ?, ?)
        ON CONFLICT (namespace, key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		string(ns), key, string(body), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store document %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, ns Namespace, key string, out any) error {
	if err := validateNamespace(ns); err != nil {
		return err
	}
	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body FROM documents WHERE namespace = ? AND key = ?", string(ns), key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{Namespace: ns, Key: key}
	}
	if err != nil {
		return fmt.Errorf("failed to read document %s/%s: %w", ns, key, err)
	}
	return Entry{Key: key, Document: json.RawMessage(body)}.Decode(out)
}

func (s *SQLiteStore) List(ctx context.Context, ns Namespace) ([]Entry, error) {
	if err := validateNamespace(ns); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT key, body FROM documents WHERE namespace = ? ORDER BY key ASC", string(ns))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", ns, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var key, body string
		if err := rows.Scan(&key, &body); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		entries = append(entries, Entry{Key: key, Document: json.RawMessage(body)})
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) FindByField(ctx context.Context, ns Namespace, field, value string) (*Entry, error) {
	entries, err := s.List(ctx, ns)
	if err != nil {
		return nil, err
	}
	return findByField(entries, field, value), nil
}
