// Package memory is an in-process docstore used by tests and by the server
// when no database is configured.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/model"
)

type record struct {
	data      []byte
	version   int64
	updatedAt time.Time
}

// Store keeps documents as JSON blobs so callers never share maps with it.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]*record
	now         func() time.Time
}

func New() *Store {
	return &Store{collections: make(map[string]map[string]*record), now: time.Now}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Get(ctx context.Context, path string) (*docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, docstore.Unavailable("get", err)
	}
	coll, key, err := docstore.Split(path)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.collections[coll][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, path)
	}
	return toDocument(coll, key, rec)
}

func (s *Store) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	if err := ctx.Err(); err != nil {
		return docstore.Unavailable("set", err)
	}
	coll, key, err := docstore.Split(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.collections[coll][key]
	fields := data
	var version int64
	if rec != nil {
		version = rec.version
		if merge {
			var stored map[string]any
			if err := json.Unmarshal(rec.data, &stored); err != nil {
				return fmt.Errorf("memory: corrupt document %s: %w", path, err)
			}
			if stored == nil {
				stored = make(map[string]any, len(data))
			}
			for k, v := range data {
				stored[k] = v
			}
			fields = stored
		}
	}
	return s.put(coll, key, fields, version+1)
}

func (s *Store) SetIfVersion(ctx context.Context, path string, data map[string]any, version int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, docstore.Unavailable("set if version", err)
	}
	coll, key, err := docstore.Split(path)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if rec := s.collections[coll][key]; rec != nil {
		current = rec.version
	}
	if current != version {
		return 0, fmt.Errorf("%w: %s at version %d, expected %d", model.ErrConcurrencyConflict, path, current, version)
	}
	if err := s.put(coll, key, data, version+1); err != nil {
		return 0, err
	}
	return version + 1, nil
}

func (s *Store) Query(ctx context.Context, collection string, q docstore.Query) ([]*docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, docstore.Unavailable("query", err)
	}
	if err := docstore.ValidateQuery(q); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*docstore.Document
	for key, rec := range s.collections[collection] {
		doc, err := toDocument(collection, key, rec)
		if err != nil {
			return nil, err
		}
		if matches(doc, q.Filters) {
			out = append(out, doc)
		}
	}

	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = docstore.KeyField
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := fieldString(out[i], orderBy), fieldString(out[j], orderBy)
		if a == b {
			a, b = out[i].Key, out[j].Key
		}
		if q.Descending {
			return a > b
		}
		return a < b
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	if out == nil {
		out = []*docstore.Document{}
	}
	return out, nil
}

func (s *Store) put(coll, key string, fields map[string]any, version int64) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("memory: encode %s/%s: %w", coll, key, err)
	}
	if s.collections[coll] == nil {
		s.collections[coll] = make(map[string]*record)
	}
	s.collections[coll][key] = &record{data: raw, version: version, updatedAt: s.now()}
	return nil
}

func toDocument(coll, key string, rec *record) (*docstore.Document, error) {
	var data map[string]any
	if err := json.Unmarshal(rec.data, &data); err != nil {
		return nil, fmt.Errorf("memory: corrupt document %s/%s: %w", coll, key, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return &docstore.Document{
		Collection: coll,
		Key:        key,
		Data:       data,
		Version:    rec.version,
		UpdatedAt:  rec.updatedAt,
	}, nil
}

func matches(doc *docstore.Document, filters []docstore.Filter) bool {
	for _, f := range filters {
		v := fieldString(doc, f.Field)
		var ok bool
		switch f.Op {
		case docstore.OpEq:
			ok = v == f.Value
		case docstore.OpGT:
			ok = v > f.Value
		case docstore.OpGTE:
			ok = v >= f.Value
		case docstore.OpLT:
			ok = v < f.Value
		case docstore.OpLTE:
			ok = v <= f.Value
		}
		if !ok {
			return false
		}
	}
	return true
}

func fieldString(doc *docstore.Document, field string) string {
	if field == docstore.KeyField {
		return doc.Key
	}
	v, ok := doc.Data[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
