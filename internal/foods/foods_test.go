package foods

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lg/nutrition-tracker-api/internal/docstore/memory"
	"lg/nutrition-tracker-api/internal/model"
)

func seeded(t *testing.T) *Bank {
	t.Helper()
	b := New(memory.New())
	n, err := b.Seed(context.Background(), Defaults())
	require.NoError(t, err)
	require.Equal(t, len(Defaults()), n)
	return b
}

func TestListSortedByName(t *testing.T) {
	all, err := seeded(t).List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, len(Defaults()))
	assert.Equal(t, "Almonds", all[0].Name)
	assert.Equal(t, "almonds", all[0].ID)
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].Name, all[i].Name)
	}
}

func TestSearchIgnoresCase(t *testing.T) {
	b := seeded(t)
	got, err := b.Search(context.Background(), "RICE")
	require.NoError(t, err)
	names := []string{}
	for _, f := range got {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"Brown rice (cooked)", "White rice (cooked)"}, names)

	got, err = b.Search(context.Background(), "durian")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = b.Search(context.Background(), "  ")
	require.NoError(t, err)
	assert.Len(t, got, len(Defaults()))
}

func TestSeedReplacesByID(t *testing.T) {
	ctx := context.Background()
	b := seeded(t)
	_, err := b.Seed(ctx, []model.Food{{Name: "Banana", Calories: 90}})
	require.NoError(t, err)
	got, err := b.Search(ctx, "banana")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 90.0, got[0].Calories)

	_, err = b.Seed(ctx, []model.Food{{Calories: 1}})
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "white-rice-cooked", Slug("White rice (cooked)"))
	assert.Equal(t, "milk-2", Slug("Milk (2%)"))
}
