package profile

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/docstore/memory"
	"lg/nutrition-tracker-api/internal/model"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	s := New(store, docstore.DefaultRetryPolicy(), func() time.Time { return fixedNow }, zerolog.Nop())
	_, err := s.Create(context.Background(), "u1", "lyle")
	require.NoError(t, err)
	return s, store
}

func maleIntermediate() OnboardingInput {
	return OnboardingInput{
		Biometrics:     model.Biometrics{WeightKG: 70, HeightCM: 175, Age: 30, Sex: model.SexMale},
		Tier:           model.TierIntermediate,
		Goal:           "lose_fat",
		DaysPerWeek:    4,
		SessionMinutes: 45,
	}
}

func TestCreate(t *testing.T) {
	s, _ := newService(t)
	p, err := s.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "lyle", p.Username)
	assert.Nil(t, p.Targets)
	assert.False(t, p.Onboarded())

	_, err = s.Create(context.Background(), "u1", "someone")
	require.ErrorIs(t, err, model.ErrAlreadyExists)

	_, err = s.Create(context.Background(), "u2", "  ")
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestGetMissing(t *testing.T) {
	s, _ := newService(t)
	_, err := s.Get(context.Background(), "nobody")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestApplyOnboarding(t *testing.T) {
	s, _ := newService(t)
	p, err := s.ApplyOnboarding(context.Background(), "u1", maleIntermediate(), "2026-03-01")
	require.NoError(t, err)

	require.NotNil(t, p.Targets)
	assert.Equal(t, 2629, p.Targets.Calories)
	assert.Equal(t, 112, p.Targets.ProteinG)
	assert.Equal(t, 73, p.Targets.FatG)
	assert.Equal(t, 381, p.Targets.CarbsG)
	require.NotNil(t, p.BMI)
	assert.Equal(t, 22.9, *p.BMI)
	assert.Equal(t, "normal", p.BMICategory)
	require.NotNil(t, p.Challenge)
	assert.Equal(t, ChallengeLengthDays, p.Challenge.LengthDays)
	assert.Equal(t, "2026-03-01", p.Challenge.StartDate)
	assert.Equal(t, model.ChallengeInProgress, p.Challenge.Status)
	require.NotNil(t, p.OnboardedAt)
	assert.True(t, fixedNow.Equal(*p.OnboardedAt))

	stored, err := s.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, *p.Targets, *stored.Targets)
	assert.Equal(t, "lyle", stored.Username)
}

func TestApplyOnboardingRejectsBeforeWriting(t *testing.T) {
	tests := []struct {
		name string
		edit func(in *OnboardingInput)
	}{
		{"zero weight", func(in *OnboardingInput) { in.Biometrics.WeightKG = 0 }},
		{"negative height", func(in *OnboardingInput) { in.Biometrics.HeightCM = -170 }},
		{"zero age", func(in *OnboardingInput) { in.Biometrics.Age = 0 }},
		{"eight days a week", func(in *OnboardingInput) { in.DaysPerWeek = 8 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store := newService(t)
			before, err := store.Get(context.Background(), Path("u1"))
			require.NoError(t, err)

			in := maleIntermediate()
			tt.edit(&in)
			_, err = s.ApplyOnboarding(context.Background(), "u1", in, "2026-03-01")
			require.ErrorIs(t, err, model.ErrInvalidBiometrics)

			after, err := store.Get(context.Background(), Path("u1"))
			require.NoError(t, err)
			assert.Equal(t, before.Version, after.Version)
		})
	}
}

func TestApplyOnboardingUnknownUser(t *testing.T) {
	s, _ := newService(t)
	_, err := s.ApplyOnboarding(context.Background(), "ghost", maleIntermediate(), "2026-03-01")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestReonboardingKeepsRunningChallenge(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	_, err := s.ApplyOnboarding(ctx, "u1", maleIntermediate(), "2026-03-01")
	require.NoError(t, err)

	in := maleIntermediate()
	in.Tier = model.TierAdvanced
	p, err := s.ApplyOnboarding(ctx, "u1", in, "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, 2968, p.Targets.Calories)
	assert.Equal(t, "2026-03-01", p.Challenge.StartDate)
}

func TestUpdateBiometricsRecomputesTargets(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	_, err := s.RecordWeight(ctx, "u1", 72)
	require.ErrorIs(t, err, model.ErrNotOnboarded)

	_, err = s.ApplyOnboarding(ctx, "u1", maleIntermediate(), "2026-03-01")
	require.NoError(t, err)

	tier := model.TierBeginner
	p, err := s.UpdateBiometrics(ctx, "u1", BiometricsPatch{Tier: &tier})
	require.NoError(t, err)
	assert.Equal(t, 2035, p.Targets.Calories)
	assert.Equal(t, 70.0, p.Biometrics.WeightKG)

	p, err = s.RecordWeight(ctx, "u1", 80)
	require.NoError(t, err)
	assert.Equal(t, 80.0, p.Biometrics.WeightKG)
	assert.Equal(t, 128, p.Targets.ProteinG)
	assert.Equal(t, 26.1, *p.BMI)
	assert.Equal(t, "overweight", p.BMICategory)

	_, err = s.RecordWeight(ctx, "u1", -3)
	require.ErrorIs(t, err, model.ErrInvalidBiometrics)
	stored, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 80.0, stored.Biometrics.WeightKG)
}

func TestCompleteChallengeDay(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	_, err := s.CompleteChallengeDay(ctx, "u1", "2026-03-01")
	require.ErrorIs(t, err, model.ErrNotOnboarded)

	_, err = s.ApplyOnboarding(ctx, "u1", maleIntermediate(), "2026-03-01")
	require.NoError(t, err)

	c, err := s.CompleteChallengeDay(ctx, "u1", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03-01"}, c.CompletedDays)
	assert.Equal(t, 2, c.CurrentDay)

	c, err = s.CompleteChallengeDay(ctx, "u1", "2026-03-01")
	require.NoError(t, err)
	assert.Len(t, c.CompletedDays, 1, "completing a day twice is a no-op")

	for d := 2; d <= ChallengeLengthDays; d++ {
		date, err := model.AddDays("2026-03-01", d-1)
		require.NoError(t, err)
		c, err = s.CompleteChallengeDay(ctx, "u1", date)
		require.NoError(t, err)
	}
	assert.Equal(t, model.ChallengeCompleted, c.Status)
	assert.Equal(t, ChallengeLengthDays, c.CurrentDay)
}
