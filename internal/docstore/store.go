// Package docstore is the key-addressed document store the engine persists
// through. Paths alternate collection and key segments ("users/u1/meals/2026-01-02"),
// documents carry a version that every write bumps, and SetIfVersion gives the
// conditional write the ledger's read-modify-write cycle depends on.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"lg/nutrition-tracker-api/internal/model"
)

// KeyField addresses the document key in filters and ordering.
const KeyField = "__key__"

// Document is one stored record.
type Document struct {
	Collection string
	Key        string
	Data       map[string]any
	Version    int64
	UpdatedAt  time.Time
}

// Path returns the full path of the document.
func (d *Document) Path() string {
	return d.Collection + "/" + d.Key
}

// Op is a filter comparison.
type Op string

const (
	OpEq  Op = "=="
	OpGT  Op = ">"
	OpGTE Op = ">="
	OpLT  Op = "<"
	OpLTE Op = "<="
)

// Filter compares a top-level field (or KeyField) against a value. Values are
// compared as strings, which is what date keys need.
type Filter struct {
	Field string
	Op    Op
	Value string
}

// Query narrows a collection listing.
type Query struct {
	Filters    []Filter
	OrderBy    string // defaults to KeyField
	Descending bool
	Limit      int // 0 means no limit
}

// Store is implemented by the memory, postgres and sqlite adapters.
type Store interface {
	// Get returns model.ErrNotFound when the document is absent.
	Get(ctx context.Context, path string) (*Document, error)
	// Set writes data at path. With merge, top-level fields in data replace
	// the stored ones and the rest are kept; without merge the document is
	// replaced. Either way the document is created when absent.
	Set(ctx context.Context, path string, data map[string]any, merge bool) error
	// SetIfVersion replaces the document only if its stored version still
	// equals version (0 meaning "absent") and returns the new version.
	// A lost race returns model.ErrConcurrencyConflict.
	SetIfVersion(ctx context.Context, path string, data map[string]any, version int64) (int64, error)
	// Query lists the direct children of a collection.
	Query(ctx context.Context, collection string, q Query) ([]*Document, error)
	Ping(ctx context.Context) error
}

var fieldRx = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ValidateQuery rejects field names and operators adapters cannot safely
// translate.
func ValidateQuery(q Query) error {
	for _, f := range q.Filters {
		if err := validateField(f.Field); err != nil {
			return err
		}
		switch f.Op {
		case OpEq, OpGT, OpGTE, OpLT, OpLTE:
		default:
			return fmt.Errorf("docstore: unsupported operator %q", f.Op)
		}
	}
	if q.OrderBy != "" {
		if err := validateField(q.OrderBy); err != nil {
			return err
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("docstore: negative limit %d", q.Limit)
	}
	return nil
}

func validateField(f string) error {
	if f == KeyField || fieldRx.MatchString(f) {
		return nil
	}
	return fmt.Errorf("docstore: invalid field name %q", f)
}

// Split separates a document path into its collection and key.
func Split(path string) (collection, key string, err error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || len(parts)%2 != 0 {
		return "", "", fmt.Errorf("docstore: %q is not a document path", path)
	}
	for _, p := range parts {
		if p == "" {
			return "", "", fmt.Errorf("docstore: empty segment in %q", path)
		}
	}
	return strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1], nil
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Encode converts a JSON-tagged struct into document fields.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	return m, nil
}

// Decode fills v from document fields.
func Decode(data map[string]any, v any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("docstore: decode: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("docstore: decode: %w", err)
	}
	return nil
}

// Unavailable wraps a driver error so callers can match model.ErrStoreUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", model.ErrStoreUnavailable, op, err)
}
