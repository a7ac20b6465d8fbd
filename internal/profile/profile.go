// Package profile stores user profiles at users/{uid} and keeps their derived
// fields (targets, BMI, challenge) consistent with the biometrics.
package profile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/model"
	"lg/nutrition-tracker-api/internal/nutrition"
)

// ChallengeLengthDays is the length of the training challenge started at onboarding.
const ChallengeLengthDays = 45

// Path returns the profile document path.
func Path(uid string) string {
	return docstore.Join("users", uid)
}

// OnboardingInput is the questionnaire submitted once after registration.
type OnboardingInput struct {
	Biometrics     model.Biometrics   `json:"biometrics"`
	Tier           model.ActivityTier `json:"tier"`
	Goal           string             `json:"goal"`
	DaysPerWeek    int                `json:"days_per_week"`
	SessionMinutes int                `json:"session_minutes"`
}

// BiometricsPatch updates a subset of an onboarded profile. Nil fields are
// left unchanged.
type BiometricsPatch struct {
	WeightKG *float64            `json:"weight_kg"`
	HeightCM *float64            `json:"height_cm"`
	Age      *int                `json:"age"`
	Sex      *model.Sex          `json:"sex"`
	Tier     *model.ActivityTier `json:"tier"`
	Goal     *string             `json:"goal"`
}

type Service struct {
	store docstore.Store
	retry docstore.RetryPolicy
	now   func() time.Time
	log   zerolog.Logger
}

func New(store docstore.Store, retry docstore.RetryPolicy, now func() time.Time, log zerolog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store: store,
		retry: retry,
		now:   now,
		log:   log.With().Str("component", "profile").Logger(),
	}
}

// Create registers an empty profile with nil targets. It fails with
// model.ErrAlreadyExists if uid is taken.
func (s *Service) Create(ctx context.Context, uid, username string) (model.Profile, error) {
	username = strings.TrimSpace(username)
	if uid == "" || username == "" {
		return model.Profile{}, fmt.Errorf("%w: user id and username are required", model.ErrInvalidInput)
	}
	now := s.now().UTC()
	p := model.Profile{UserID: uid, Username: username, CreatedAt: &now, UpdatedAt: &now}
	data, err := docstore.Encode(p)
	if err != nil {
		return model.Profile{}, err
	}
	if _, err := s.store.SetIfVersion(ctx, Path(uid), data, 0); err != nil {
		if errors.Is(err, model.ErrConcurrencyConflict) {
			return model.Profile{}, fmt.Errorf("%w: user %s", model.ErrAlreadyExists, uid)
		}
		return model.Profile{}, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, uid string) (model.Profile, error) {
	doc, err := s.store.Get(ctx, Path(uid))
	if err != nil {
		return model.Profile{}, err
	}
	return decode(doc)
}

// ApplyOnboarding derives targets and BMI from in and starts the challenge on
// today. Invalid biometrics are rejected before anything is written.
// Re-running onboarding recomputes targets but keeps a running challenge.
func (s *Service) ApplyOnboarding(ctx context.Context, uid string, in OnboardingInput, today string) (model.Profile, error) {
	if err := model.ValidateDate(today); err != nil {
		return model.Profile{}, err
	}
	if in.DaysPerWeek < 0 || in.DaysPerWeek > 7 || in.SessionMinutes < 0 {
		return model.Profile{}, fmt.Errorf("%w: days_per_week must be 0..7 and session_minutes >= 0", model.ErrInvalidBiometrics)
	}
	targets, err := nutrition.ComputeTargets(in.Biometrics, in.Tier)
	if err != nil {
		return model.Profile{}, err
	}
	bmi, err := nutrition.BMI(in.Biometrics.WeightKG, in.Biometrics.HeightCM)
	if err != nil {
		return model.Profile{}, err
	}

	return s.update(ctx, uid, func(p *model.Profile) error {
		now := s.now().UTC()
		b := in.Biometrics
		p.Biometrics = &b
		p.Tier = in.Tier
		p.Goal = in.Goal
		p.DaysPerWeek = in.DaysPerWeek
		p.SessionMinutes = in.SessionMinutes
		p.Targets = &targets
		p.BMI = &bmi
		p.BMICategory = nutrition.BMICategory(bmi)
		p.OnboardedAt = &now
		if p.Challenge == nil || p.Challenge.Status != model.ChallengeInProgress {
			p.Challenge = &model.Challenge{
				LengthDays:    ChallengeLengthDays,
				StartDate:     today,
				CurrentDay:    1,
				CompletedDays: []string{},
				Status:        model.ChallengeInProgress,
			}
		}
		if targets.CarbDeficit() {
			s.log.Warn().Str("user_id", uid).Int("carbs_g", targets.CarbsG).Msg("protein and fat exceed the calorie target")
		}
		return nil
	})
}

// UpdateBiometrics applies patch and recomputes targets and BMI.
func (s *Service) UpdateBiometrics(ctx context.Context, uid string, patch BiometricsPatch) (model.Profile, error) {
	return s.update(ctx, uid, func(p *model.Profile) error {
		if p.Biometrics == nil {
			return fmt.Errorf("%w: user %s", model.ErrNotOnboarded, uid)
		}
		b := *p.Biometrics
		if patch.WeightKG != nil {
			b.WeightKG = *patch.WeightKG
		}
		if patch.HeightCM != nil {
			b.HeightCM = *patch.HeightCM
		}
		if patch.Age != nil {
			b.Age = *patch.Age
		}
		if patch.Sex != nil {
			b.Sex = *patch.Sex
		}
		tier := p.Tier
		if patch.Tier != nil {
			tier = *patch.Tier
		}
		targets, err := nutrition.ComputeTargets(b, tier)
		if err != nil {
			return err
		}
		bmi, err := nutrition.BMI(b.WeightKG, b.HeightCM)
		if err != nil {
			return err
		}
		p.Biometrics = &b
		p.Tier = tier
		if patch.Goal != nil {
			p.Goal = *patch.Goal
		}
		p.Targets = &targets
		p.BMI = &bmi
		p.BMICategory = nutrition.BMICategory(bmi)
		return nil
	})
}

// RecordWeight updates the profile weight, which also moves BMI and targets.
func (s *Service) RecordWeight(ctx context.Context, uid string, weightKG float64) (model.Profile, error) {
	return s.UpdateBiometrics(ctx, uid, BiometricsPatch{WeightKG: &weightKG})
}

// CompleteChallengeDay marks date as done. Completing the same date twice is
// a no-op; the challenge closes once every day is completed.
func (s *Service) CompleteChallengeDay(ctx context.Context, uid, date string) (model.Challenge, error) {
	if err := model.ValidateDate(date); err != nil {
		return model.Challenge{}, err
	}
	p, err := s.update(ctx, uid, func(p *model.Profile) error {
		c := p.Challenge
		if c == nil {
			return fmt.Errorf("%w: no challenge for user %s", model.ErrNotOnboarded, uid)
		}
		if c.Status == model.ChallengeCompleted || slices.Contains(c.CompletedDays, date) {
			return docstore.ErrNoChange
		}
		c.CompletedDays = append(c.CompletedDays, date)
		slices.Sort(c.CompletedDays)
		c.CurrentDay = min(len(c.CompletedDays)+1, c.LengthDays)
		if len(c.CompletedDays) >= c.LengthDays {
			c.Status = model.ChallengeCompleted
		}
		return nil
	})
	if err != nil {
		return model.Challenge{}, err
	}
	return *p.Challenge, nil
}

// update runs fn against the stored profile inside docstore.Update and
// returns what was stored. fn may return docstore.ErrNoChange.
func (s *Service) update(ctx context.Context, uid string, fn func(p *model.Profile) error) (model.Profile, error) {
	var result model.Profile
	err := docstore.Update(ctx, s.store, Path(uid), s.retry, func(current *docstore.Document) (map[string]any, error) {
		if current == nil {
			return nil, fmt.Errorf("%w: user %s", model.ErrNotFound, uid)
		}
		p, err := decode(current)
		if err != nil {
			return nil, err
		}
		result = p
		if err := fn(&p); err != nil {
			return nil, err
		}
		now := s.now().UTC()
		p.UpdatedAt = &now
		result = p
		return docstore.Encode(p)
	})
	if err != nil {
		return model.Profile{}, err
	}
	return result, nil
}

func decode(doc *docstore.Document) (model.Profile, error) {
	var p model.Profile
	if err := docstore.Decode(doc.Data, &p); err != nil {
		return model.Profile{}, fmt.Errorf("profile %s: %w", doc.Path(), err)
	}
	if p.UserID == "" {
		p.UserID = doc.Key
	}
	return p, nil
}
