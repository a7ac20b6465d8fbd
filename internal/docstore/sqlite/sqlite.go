// Package sqlite is the single-node docstore: the documents table from the
// Postgres schema, with JSON kept as TEXT.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	key        TEXT NOT NULL,
	data       TEXT NOT NULL DEFAULT '{}',
	version    INTEGER NOT NULL DEFAULT 1,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (collection, key)
);`

// Open opens (or creates) a SQLite database at the given path and enables WAL journal mode.
func Open(path string) (*sql.DB, error) {
	// ensure parent directory exists to avoid SQLITE_CANTOPEN errors
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; SQLite would otherwise answer concurrent writers with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates the documents table if needed.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return docstore.Unavailable("ping", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, path string) (*docstore.Document, error) {
	coll, key, err := docstore.Split(path)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT collection, key, data, version, updated_at FROM documents WHERE collection = ? AND key = ?`,
		coll, key)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, path)
	}
	if err != nil {
		return nil, docstore.Unavailable("get "+path, err)
	}
	return doc, nil
}

func (s *Store) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	coll, key, err := docstore.Split(path)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return docstore.Unavailable("set "+path, err)
	}
	defer tx.Rollback()

	fields := data
	if merge {
		var stored string
		err := tx.QueryRowContext(ctx,
			`SELECT data FROM documents WHERE collection = ? AND key = ?`, coll, key).Scan(&stored)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return docstore.Unavailable("set "+path, err)
		default:
			current := map[string]any{}
			if err := json.Unmarshal([]byte(stored), &current); err != nil {
				return fmt.Errorf("sqlite: corrupt document %s: %w", path, err)
			}
			for k, v := range data {
				current[k] = v
			}
			fields = current
		}
	}

	raw, err := encode(path, fields)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (collection, key, data, version, updated_at) VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT (collection, key) DO UPDATE SET
			data = excluded.data,
			version = documents.version + 1,
			updated_at = excluded.updated_at`,
		coll, key, raw, s.timestamp())
	if err != nil {
		return docstore.Unavailable("set "+path, err)
	}
	if err := tx.Commit(); err != nil {
		return docstore.Unavailable("set "+path, err)
	}
	return nil
}

func (s *Store) SetIfVersion(ctx context.Context, path string, data map[string]any, version int64) (int64, error) {
	coll, key, err := docstore.Split(path)
	if err != nil {
		return 0, err
	}
	raw, err := encode(path, data)
	if err != nil {
		return 0, err
	}

	var res sql.Result
	if version == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO documents (collection, key, data, version, updated_at) VALUES (?, ?, ?, 1, ?)
			 ON CONFLICT (collection, key) DO NOTHING`,
			coll, key, raw, s.timestamp())
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE documents SET data = ?, version = version + 1, updated_at = ?
			 WHERE collection = ? AND key = ? AND version = ?`,
			raw, s.timestamp(), coll, key, version)
	}
	if err != nil {
		return 0, docstore.Unavailable("set if version "+path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, docstore.Unavailable("set if version "+path, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %s changed since version %d", model.ErrConcurrencyConflict, path, version)
	}
	return version + 1, nil
}

func (s *Store) Query(ctx context.Context, collection string, q docstore.Query) ([]*docstore.Document, error) {
	if err := docstore.ValidateQuery(q); err != nil {
		return nil, err
	}
	var sb strings.Builder
	sb.WriteString(`SELECT collection, key, data, version, updated_at FROM documents WHERE collection = ?`)
	args := []any{collection}
	for _, f := range q.Filters {
		fmt.Fprintf(&sb, " AND %s %s ?", column(f.Field), sqlOp(f.Op))
		args = append(args, f.Value)
	}

	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = docstore.KeyField
	}
	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	fmt.Fprintf(&sb, " ORDER BY %s %s, key %s", column(orderBy), dir, dir)
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, docstore.Unavailable("query "+collection, err)
	}
	defer rows.Close()

	out := []*docstore.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, docstore.Unavailable("query "+collection, err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, docstore.Unavailable("query "+collection, err)
	}
	return out, nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*docstore.Document, error) {
	var (
		doc       docstore.Document
		raw       string
		updatedAt string
	)
	if err := row.Scan(&doc.Collection, &doc.Key, &raw, &doc.Version, &updatedAt); err != nil {
		return nil, err
	}
	doc.Data = map[string]any{}
	if err := json.Unmarshal([]byte(raw), &doc.Data); err != nil {
		return nil, fmt.Errorf("corrupt document %s: %w", doc.Path(), err)
	}
	if doc.Data == nil {
		doc.Data = map[string]any{}
	}
	t, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("bad updated_at on %s: %w", doc.Path(), err)
	}
	doc.UpdatedAt = t
	return &doc, nil
}

func encode(path string, data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode %s: %w", path, err)
	}
	return string(raw), nil
}

// column maps a field that already passed docstore.ValidateQuery onto SQL.
func column(field string) string {
	if field == docstore.KeyField {
		return "key"
	}
	return "CAST(json_extract(data, '$." + field + "') AS TEXT)"
}

func sqlOp(op docstore.Op) string {
	if op == docstore.OpEq {
		return "="
	}
	return string(op)
}
