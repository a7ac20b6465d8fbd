// Package postgres stores documents in a single JSONB table (see
// db/2026-10-19-001-create-documents.sql).
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/model"
)

// documentRow is the shape of a documents row for RowToStructByName.
type documentRow struct {
	Collection string         `db:"collection"`
	Key        string         `db:"key"`
	Data       map[string]any `db:"data"`
	Version    int64          `db:"version"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (r documentRow) document() *docstore.Document {
	data := r.Data
	if data == nil {
		data = map[string]any{}
	}
	return &docstore.Document{
		Collection: r.Collection,
		Key:        r.Key,
		Data:       data,
		Version:    r.Version,
		UpdatedAt:  r.UpdatedAt,
	}
}

const selectColumns = `collection, key, data, version, updated_at`

// Store implements docstore.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Open creates a connection pool. We use a pool (not a single conn) because
// Neon closes idle connections after ~5 minutes.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DB URL: %w", err)
	}
	// Use simple query protocol to avoid "cached plan must not change result type"
	// errors from Neon's server-side prepared statement cache after schema changes.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

func New(pool *pgxpool.Pool, log zerolog.Logger) *Store {
	return &Store{pool: pool, log: log.With().Str("component", "docstore.postgres").Logger()}
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return docstore.Unavailable("ping", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, path string) (*docstore.Document, error) {
	coll, key, err := docstore.Split(path)
	if err != nil {
		return nil, err
	}
	row, err := queryOne[documentRow](ctx, s,
		`SELECT `+selectColumns+` FROM documents WHERE collection = @collection AND key = @key`,
		pgx.NamedArgs{"collection": coll, "key": key})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, path)
	}
	if err != nil {
		return nil, docstore.Unavailable("get "+path, err)
	}
	return row.document(), nil
}

func (s *Store) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	coll, key, err := docstore.Split(path)
	if err != nil {
		return err
	}
	raw, err := encode(path, data)
	if err != nil {
		return err
	}
	update := "EXCLUDED.data"
	if merge {
		update = "documents.data || EXCLUDED.data"
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (collection, key, data, version)
		 VALUES (@collection, @key, @data::jsonb, 1)
		 ON CONFLICT (collection, key) DO UPDATE SET
			data = `+update+`,
			version = documents.version + 1,
			updated_at = now()`,
		pgx.NamedArgs{"collection": coll, "key": key, "data": raw})
	if err != nil {
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
	args := pgx.NamedArgs{"collection": coll, "key": key, "data": raw, "version": version}

	// version 0 means the caller saw no document: insert, and lose the race if
	// someone else created it first.
	sql := `UPDATE documents SET data = @data::jsonb, version = version + 1, updated_at = now()
		 WHERE collection = @collection AND key = @key AND version = @version
		 RETURNING version`
	if version == 0 {
		sql = `INSERT INTO documents (collection, key, data, version)
		 VALUES (@collection, @key, @data::jsonb, 1)
		 ON CONFLICT (collection, key) DO NOTHING
		 RETURNING version`
	}

	var next int64
	err = s.pool.QueryRow(ctx, sql, args).Scan(&next)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s changed since version %d", model.ErrConcurrencyConflict, path, version)
	}
	if err != nil {
		return 0, docstore.Unavailable("set if version "+path, err)
	}
	return next, nil
}

func (s *Store) Query(ctx context.Context, collection string, q docstore.Query) ([]*docstore.Document, error) {
	if err := docstore.ValidateQuery(q); err != nil {
		return nil, err
	}
	var sb strings.Builder
	sb.WriteString(`SELECT ` + selectColumns + ` FROM documents WHERE collection = @collection`)
	args := pgx.NamedArgs{"collection": collection}
	for i, f := range q.Filters {
		name := fmt.Sprintf("f%d", i)
		fmt.Fprintf(&sb, " AND %s %s @%s", column(f.Field), sqlOp(f.Op), name)
		args[name] = f.Value
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
		sb.WriteString(" LIMIT @limit")
		args["limit"] = q.Limit
	}

	rows, err := queryMany[documentRow](ctx, s, sb.String(), args)
	if err != nil {
		return nil, docstore.Unavailable("query "+collection, err)
	}
	out := make([]*docstore.Document, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.document())
	}
	return out, nil
}

func encode(path string, data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("postgres: encode %s: %w", path, err)
	}
	return string(raw), nil
}

// column maps a validated field name onto SQL. Field names have already passed
// docstore.ValidateQuery, so interpolating them is safe.
func column(field string) string {
	if field == docstore.KeyField {
		return "key"
	}
	return "(data->>'" + field + `') COLLATE "C"`
}

func sqlOp(op docstore.Op) string {
	if op == docstore.OpEq {
		return "="
	}
	return string(op)
}

/* ─── Query helpers ───────────────────────────────────────────────────── */

// queryOne runs a query and scans the first row into T using RowToStructByName.
// Logs scan errors other than "no rows" for debugging (e.g. struct/column mismatches).
func queryOne[T any](ctx context.Context, s *Store, sql string, args pgx.NamedArgs) (T, error) {
	rows, err := s.pool.Query(ctx, sql, args)
	if err != nil {
		s.log.Error().Err(err).Msg("queryOne: query error")
		var zero T
		return zero, err
	}
	result, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		s.log.Error().Err(err).Msg("queryOne: scan error")
	}
	return result, err
}

// queryMany runs a query and scans all rows into []T using RowToStructByName.
func queryMany[T any](ctx context.Context, s *Store, sql string, args pgx.NamedArgs) ([]T, error) {
	rows, err := s.pool.Query(ctx, sql, args)
	if err != nil {
		s.log.Error().Err(err).Msg("queryMany: query error")
		return nil, err
	}
	results, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		s.log.Error().Err(err).Msg("queryMany: scan error")
	}
	return results, err
}
