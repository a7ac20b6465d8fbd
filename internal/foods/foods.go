// Package foods is the shared food bank users pick meals from.
package foods

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/model"
)

const collection = "foods"

type Bank struct {
	store docstore.Store
}

func New(store docstore.Store) *Bank {
	return &Bank{store: store}
}

// List returns every food sorted by name.
func (b *Bank) List(ctx context.Context) ([]model.Food, error) {
	docs, err := b.store.Query(ctx, collection, docstore.Query{})
	if err != nil {
		return nil, err
	}
	out := make([]model.Food, 0, len(docs))
	for _, doc := range docs {
		var f model.Food
		if err := docstore.Decode(doc.Data, &f); err != nil {
			return nil, fmt.Errorf("food %s: %w", doc.Key, err)
		}
		f.ID = doc.Key
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Search returns the foods whose name contains term, ignoring case. An empty
// term matches everything.
func (b *Bank) Search(ctx context.Context, term string) ([]model.Food, error) {
	all, err := b.List(ctx)
	if err != nil {
		return nil, err
	}
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return all, nil
	}
	out := make([]model.Food, 0)
	for _, f := range all {
		if strings.Contains(strings.ToLower(f.Name), term) {
			out = append(out, f)
		}
	}
	return out, nil
}

// Seed writes foods, replacing any with the same id. Foods without an id get
// one derived from their name. Returns the number written.
func (b *Bank) Seed(ctx context.Context, foods []model.Food) (int, error) {
	for i, f := range foods {
		if strings.TrimSpace(f.Name) == "" {
			return i, fmt.Errorf("%w: food %d has no name", model.ErrInvalidInput, i)
		}
		if f.ID == "" {
			f.ID = Slug(f.Name)
		}
		data, err := docstore.Encode(f)
		if err != nil {
			return i, err
		}
		if err := b.store.Set(ctx, docstore.Join(collection, f.ID), data, false); err != nil {
			return i, err
		}
	}
	return len(foods), nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases name and joins its words with dashes.
func Slug(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// Defaults is the starter food bank; values are per serving.
func Defaults() []model.Food {
	return []model.Food{
		{Name: "Oatmeal", ServingG: 40, Calories: 150, ProteinG: 5, CarbsG: 27, FatG: 3},
		{Name: "Egg", ServingG: 50, Calories: 72, ProteinG: 6.3, CarbsG: 0.4, FatG: 4.8},
		{Name: "Chicken breast", ServingG: 100, Calories: 165, ProteinG: 31, CarbsG: 0, FatG: 3.6},
		{Name: "White rice (cooked)", ServingG: 150, Calories: 195, ProteinG: 4, CarbsG: 42, FatG: 0.4},
		{Name: "Brown rice (cooked)", ServingG: 150, Calories: 168, ProteinG: 3.9, CarbsG: 35, FatG: 1.3},
		{Name: "Banana", ServingG: 118, Calories: 105, ProteinG: 1.3, CarbsG: 27, FatG: 0.4},
		{Name: "Apple", ServingG: 182, Calories: 95, ProteinG: 0.5, CarbsG: 25, FatG: 0.3},
		{Name: "Greek yogurt", ServingG: 170, Calories: 100, ProteinG: 17, CarbsG: 6, FatG: 0.7},
		{Name: "Almonds", ServingG: 28, Calories: 164, ProteinG: 6, CarbsG: 6, FatG: 14},
		{Name: "Salmon", ServingG: 100, Calories: 208, ProteinG: 20, CarbsG: 0, FatG: 13},
		{Name: "Black beans (cooked)", ServingG: 130, Calories: 170, ProteinG: 11, CarbsG: 30, FatG: 0.7},
		{Name: "Avocado", ServingG: 100, Calories: 160, ProteinG: 2, CarbsG: 8.5, FatG: 14.7},
		{Name: "Whole wheat bread", ServingG: 32, Calories: 80, ProteinG: 4, CarbsG: 14, FatG: 1},
		{Name: "Broccoli", ServingG: 91, Calories: 31, ProteinG: 2.5, CarbsG: 6, FatG: 0.3},
		{Name: "Milk (2%)", ServingG: 244, Calories: 122, ProteinG: 8, CarbsG: 12, FatG: 4.8},
	}
}
