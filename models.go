package main

import (
	"lg/nutrition-tracker-api/internal/model"
	"lg/nutrition-tracker-api/internal/profile"
)

/* ─── Request bodies ─────────────────────────────────────────────────── */

// onboardingRequest is the request body for POST /api/onboarding. Date is the
// user's local "today" and defaults to the server date.
type onboardingRequest struct {
	profile.OnboardingInput
	Date string `json:"date"`
}

// createMealRequest is the request body for POST /api/meals. Nutrient fields
// are pointers so a missing value is rejected rather than read as zero.
type createMealRequest struct {
	Date     string     `json:"date"`
	Slot     model.Slot `json:"slot"`
	Name     string     `json:"name"`
	Calories *float64   `json:"calories"`
	ProteinG *float64   `json:"protein_g"`
	CarbsG   *float64   `json:"carbs_g"`
	FatG     *float64   `json:"fat_g"`
}

func (r createMealRequest) input() model.MealInput {
	return model.MealInput{Name: r.Name, Calories: r.Calories, ProteinG: r.ProteinG, CarbsG: r.CarbsG, FatG: r.FatG}
}

// weightRequest is the request body for POST /api/weight.
type weightRequest struct {
	Date     string  `json:"date"`
	WeightKG float64 `json:"weight_kg"`
}

// challengeRequest is the request body for POST /api/challenge/complete.
type challengeRequest struct {
	Date string `json:"date"`
}

/* ─── Responses ──────────────────────────────────────────────────────── */

// mealResponse is returned by meal mutations. Stale is true when the meal was
// stored but the day's totals could not be refreshed; Totals is then null.
type mealResponse struct {
	Entry  *model.MealEntry `json:"entry,omitempty"`
	Totals *model.DayTotals `json:"totals"`
	Stale  bool             `json:"stale"`
}

// historyResponse is the response shape for GET /api/progress/history.
type historyResponse struct {
	Since     string           `json:"since"`
	Snapshots []model.Snapshot `json:"snapshots"`
}

// foodsResponse is the response shape for GET /api/foods.
type foodsResponse struct {
	Query string       `json:"query"`
	Foods []model.Food `json:"foods"`
}
