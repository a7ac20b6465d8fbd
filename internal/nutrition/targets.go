// Package nutrition derives daily calorie and macro targets from biometrics.
// Everything here is pure: no I/O, no clock.
package nutrition

import (
	"fmt"
	"math"

	"lg/nutrition-tracker-api/internal/model"
)

// activityMultipliers maps activity tiers to their BMR multiplier. This is the
// single source of truth for valid tiers, also used for input validation in
// the profile handlers.
var activityMultipliers = map[model.ActivityTier]float64{
	model.TierBeginner:     1.2,
	model.TierIntermediate: 1.55,
	model.TierAdvanced:     1.75,
}

// defaultMultiplier applies when the tier is missing or unrecognised.
const defaultMultiplier = 1.5

const (
	proteinPerKG   = 1.6
	fatShare       = 0.25
	kcalPerGramFat = 9
	kcalPerGramPC  = 4
	waterLPerKG    = 0.03
)

// ValidTier reports whether tier has a dedicated multiplier.
func ValidTier(tier model.ActivityTier) bool {
	_, ok := activityMultipliers[tier]
	return ok
}

// ActivityFactor returns the multiplier for tier, falling back to 1.5.
func ActivityFactor(tier model.ActivityTier) float64 {
	if m, ok := activityMultipliers[tier]; ok {
		return m
	}
	return defaultMultiplier
}

// Validate rejects biometrics the formulas cannot use.
func Validate(b model.Biometrics) error {
	if !positive(b.WeightKG) {
		return fmt.Errorf("%w: weight must be greater than 0", model.ErrInvalidBiometrics)
	}
	if !positive(b.HeightCM) {
		return fmt.Errorf("%w: height must be greater than 0", model.ErrInvalidBiometrics)
	}
	if b.Age <= 0 {
		return fmt.Errorf("%w: age must be a positive integer", model.ErrInvalidBiometrics)
	}
	return nil
}

// BMR returns the Harris-Benedict basal metabolic rate rounded to the nearest
// kcal. Sex other than male uses the female constants.
func BMR(b model.Biometrics) int {
	w, h, a := b.WeightKG, b.HeightCM, float64(b.Age)
	var bmr float64
	if b.Sex == model.SexMale {
		bmr = 88.362 + 13.397*w + 4.799*h - 5.677*a
	} else {
		bmr = 447.593 + 9.247*w + 3.098*h - 4.330*a
	}
	return Round(bmr)
}

// ComputeTargets derives the daily targets. The carbohydrate target is the
// calorie remainder after protein and fat and is not clamped: when protein
// and fat exceed the budget it comes out negative (see Targets.CarbDeficit).
func ComputeTargets(b model.Biometrics, tier model.ActivityTier) (model.Targets, error) {
	if err := Validate(b); err != nil {
		return model.Targets{}, err
	}

	calories := Round(float64(BMR(b)) * ActivityFactor(tier))
	protein := Round(b.WeightKG * proteinPerKG)
	fat := Round(fatShare * float64(calories) / kcalPerGramFat)
	carbs := Round(float64(calories-(protein*kcalPerGramPC+fat*kcalPerGramFat)) / kcalPerGramPC)

	return model.Targets{
		Calories: calories,
		ProteinG: protein,
		CarbsG:   carbs,
		FatG:     fat,
		WaterL:   b.WeightKG * waterLPerKG,
	}, nil
}

// MacroCalories returns the energy implied by the macro targets.
func MacroCalories(t model.Targets) int {
	return t.ProteinG*kcalPerGramPC + t.CarbsG*kcalPerGramPC + t.FatG*kcalPerGramFat
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Round sends halves toward +Inf so a negative carb remainder of -2.5 becomes
// -2, the same as the targets stored by earlier clients.
func Round(v float64) int {
	return int(math.Floor(v + 0.5))
}
