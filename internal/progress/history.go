package progress

import (
	"context"
	"fmt"

	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/model"
)

// DefaultWindowDays is the dashboard's rolling window.
const DefaultWindowDays = 30

// History is a read-only view over a user's snapshots.
type History struct {
	store docstore.Store
}

func NewHistory(store docstore.Store) *History {
	return &History{store: store}
}

// WindowStart returns the first date of a window reaching days back from today.
func WindowStart(today string, days int) (string, error) {
	if days < 0 {
		return "", fmt.Errorf("%w: window of %d days", model.ErrInvalidDate, days)
	}
	return model.AddDays(today, -days)
}

// Window returns every snapshot dated on or after since, newest first. An
// empty range yields an empty slice.
func (h *History) Window(ctx context.Context, uid, since string) ([]model.Snapshot, error) {
	if err := model.ValidateDate(since); err != nil {
		return nil, err
	}
	docs, err := h.store.Query(ctx, Collection(uid), docstore.Query{
		Filters:    []docstore.Filter{{Field: docstore.KeyField, Op: docstore.OpGTE, Value: since}},
		Descending: true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.Snapshot, 0, len(docs))
	for _, doc := range docs {
		s, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Latest returns the most recent snapshot, or nil when the user has none.
func (h *History) Latest(ctx context.Context, uid string) (*model.Snapshot, error) {
	docs, err := h.store.Query(ctx, Collection(uid), docstore.Query{Descending: true, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	s, err := decode(docs[0])
	if err != nil {
		return nil, err
	}
	return &s, nil
}
