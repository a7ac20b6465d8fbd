// Package progress maintains the per-date snapshots at
// users/{uid}/progress/{date}: nutrient totals written by the Aggregator,
// metrics written by Metrics, and rolling-window reads through History.
package progress

import (
	"context"
	"fmt"

	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/model"
)

// Snapshot fields written by the aggregator. Metric writers never touch them.
const (
	fieldDate             = "date"
	fieldCaloriesConsumed = "calories_consumed"
	fieldNutrients        = "nutrients"
	fieldLedgerVersion    = "ledger_version"
	fieldUpdatedAt        = "updated_at"
)

// Path returns the snapshot document path for (uid, date).
func Path(uid, date string) string {
	return docstore.Join("users", uid, "progress", date)
}

// Collection returns the collection holding a user's snapshots.
func Collection(uid string) string {
	return docstore.Join("users", uid, "progress")
}

// Get returns the snapshot for (uid, date) or model.ErrNotFound.
func Get(ctx context.Context, store docstore.Store, uid, date string) (model.Snapshot, error) {
	if err := model.ValidateDate(date); err != nil {
		return model.Snapshot{}, err
	}
	doc, err := store.Get(ctx, Path(uid, date))
	if err != nil {
		return model.Snapshot{}, err
	}
	return decode(doc)
}

func decode(doc *docstore.Document) (model.Snapshot, error) {
	var s model.Snapshot
	if err := docstore.Decode(doc.Data, &s); err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot %s: %w", doc.Path(), err)
	}
	s.Date = doc.Key
	return s, nil
}
