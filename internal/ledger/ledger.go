// Package ledger owns each user's per-day meal entries. A day's entries live in
// one document (users/{uid}/meals/{date}), so every append or remove is a
// versioned read-modify-write of that document.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/model"
)

var mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "nutrition",
	Subsystem: "ledger",
	Name:      "mutations_total",
	Help:      "Meal ledger mutations by operation and result.",
}, []string{"op", "result"})

// Path returns the document path of the ledger for (uid, date).
func Path(uid, date string) string {
	return docstore.Join("users", uid, "meals", date)
}

// Collection returns the collection holding all of a user's ledgers.
func Collection(uid string) string {
	return docstore.Join("users", uid, "meals")
}

// Ledger reads and writes the per-date meal documents.
type Ledger struct {
	store docstore.Store
	retry docstore.RetryPolicy
	now   func() time.Time
	newID func() (string, error)
	log   zerolog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithRetryPolicy(p docstore.RetryPolicy) Option {
	return func(l *Ledger) { l.retry = p }
}

func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithIDGenerator replaces the UUIDv7 generator.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(l *Ledger) { l.newID = fn }
}

// New returns a Ledger over store.
func New(store docstore.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		retry: docstore.DefaultRetryPolicy(),
		now:   time.Now,
		newID: newUUIDv7,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With().Str("component", "ledger").Logger()
	return l
}

func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Get returns the ledger for (uid, date), or an empty one with every slot
// present when nothing has been logged yet.
func (l *Ledger) Get(ctx context.Context, uid, date string) (model.DailyLedger, error) {
	if err := model.ValidateDate(date); err != nil {
		return model.DailyLedger{}, err
	}
	doc, err := l.store.Get(ctx, Path(uid, date))
	if errors.Is(err, model.ErrNotFound) {
		return model.NewDailyLedger(date), nil
	}
	if err != nil {
		return model.DailyLedger{}, err
	}
	return Decode(date, doc)
}

// Append validates in, stores it at the end of slot's sequence and returns the
// stored entry. The entry id and timestamp are fixed before the first attempt,
// so a retried write stores the same entry.
func (l *Ledger) Append(ctx context.Context, uid, date string, slot model.Slot, in model.MealInput) (model.MealEntry, error) {
	if err := validateKey(uid, date); err != nil {
		return model.MealEntry{}, err
	}
	entry, err := normalize(slot, in)
	if err != nil {
		return model.MealEntry{}, err
	}
	if entry.ID, err = l.newID(); err != nil {
		return model.MealEntry{}, fmt.Errorf("ledger: generate entry id: %w", err)
	}
	entry.CreatedAt = l.now().UTC()

	err = docstore.Update(ctx, l.store, Path(uid, date), l.retry, func(current *docstore.Document) (map[string]any, error) {
		day := model.NewDailyLedger(date)
		if current != nil {
			var err error
			if day, err = Decode(date, current); err != nil {
				return nil, err
			}
		}
		day.Meals[slot] = append(day.Meals[slot], entry)
		return docstore.Encode(day)
	})
	if err != nil {
		mutationsTotal.WithLabelValues("append", "error").Inc()
		return model.MealEntry{}, err
	}
	mutationsTotal.WithLabelValues("append", "ok").Inc()
	l.log.Debug().Str("user_id", uid).Str("date", date).Str("slot", string(slot)).Str("entry_id", entry.ID).Msg("meal appended")
	return entry, nil
}

// Remove deletes entry id from slot. Removing an id (or from a ledger) that
// does not exist succeeds without writing.
func (l *Ledger) Remove(ctx context.Context, uid, date string, slot model.Slot, id string) error {
	if err := validateKey(uid, date); err != nil {
		return err
	}
	if !slot.Valid() {
		return fmt.Errorf("%w: unknown slot %q", model.ErrInvalidMealEntry, slot)
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: entry id is required", model.ErrInvalidMealEntry)
	}

	err := docstore.Update(ctx, l.store, Path(uid, date), l.retry, func(current *docstore.Document) (map[string]any, error) {
		if current == nil {
			return nil, docstore.ErrNoChange
		}
		day, err := Decode(date, current)
		if err != nil {
			return nil, err
		}
		entries := day.Meals[slot]
		kept := make([]model.MealEntry, 0, len(entries))
		for _, e := range entries {
			if e.ID != id {
				kept = append(kept, e)
			}
		}
		if len(kept) == len(entries) {
			return nil, docstore.ErrNoChange
		}
		day.Meals[slot] = kept
		return docstore.Encode(day)
	})
	if err != nil {
		mutationsTotal.WithLabelValues("remove", "error").Inc()
		return err
	}
	mutationsTotal.WithLabelValues("remove", "ok").Inc()
	return nil
}

// Decode turns a stored ledger document into a DailyLedger with all four slots
// present. Entries stored under a slot always carry that slot.
func Decode(date string, doc *docstore.Document) (model.DailyLedger, error) {
	var stored model.DailyLedger
	if err := docstore.Decode(doc.Data, &stored); err != nil {
		return model.DailyLedger{}, fmt.Errorf("ledger %s: %w", doc.Path(), err)
	}
	day := model.NewDailyLedger(date)
	day.Version = doc.Version
	for slot, entries := range stored.Meals {
		if !slot.Valid() {
			continue
		}
		for i := range entries {
			entries[i].Slot = slot
		}
		day.Meals[slot] = append(day.Meals[slot], entries...)
	}
	return day, nil
}

func validateKey(uid, date string) error {
	if uid == "" {
		return fmt.Errorf("%w: user id is required", model.ErrInvalidMealEntry)
	}
	return model.ValidateDate(date)
}

func normalize(slot model.Slot, in model.MealInput) (model.MealEntry, error) {
	if !slot.Valid() {
		return model.MealEntry{}, fmt.Errorf("%w: unknown slot %q", model.ErrInvalidMealEntry, slot)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.MealEntry{}, fmt.Errorf("%w: name is required", model.ErrInvalidMealEntry)
	}
	if in.Calories == nil {
		return model.MealEntry{}, fmt.Errorf("%w: calories is required", model.ErrInvalidMealEntry)
	}
	entry := model.MealEntry{Name: name, Slot: slot}
	fields := []struct {
		name string
		in   *float64
		out  *float64
	}{
		{"calories", in.Calories, &entry.Calories},
		{"protein_g", in.ProteinG, &entry.ProteinG},
		{"carbs_g", in.CarbsG, &entry.CarbsG},
		{"fat_g", in.FatG, &entry.FatG},
	}
	for _, f := range fields {
		if f.in == nil {
			continue
		}
		v := *f.in
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return model.MealEntry{}, fmt.Errorf("%w: %s must be a non-negative number", model.ErrInvalidMealEntry, f.name)
		}
		*f.out = v
	}
	return entry, nil
}
