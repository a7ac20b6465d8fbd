// Package model holds the domain types shared by the engine packages.
package model

import "time"

// Sex selects the BMR formula branch. Anything other than SexMale uses the
// female constants.
type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
)

// ActivityTier is the self-reported training experience captured at onboarding.
type ActivityTier string

const (
	TierBeginner     ActivityTier = "beginner"
	TierIntermediate ActivityTier = "intermediate"
	TierAdvanced     ActivityTier = "advanced"
)

// Slot is one of the four meal-time categories a ledger is grouped by.
type Slot string

const (
	SlotBreakfast Slot = "breakfast"
	SlotLunch     Slot = "lunch"
	SlotSnack     Slot = "snack"
	SlotDinner    Slot = "dinner"
)

// Slots lists every slot in display order.
var Slots = []Slot{SlotBreakfast, SlotLunch, SlotSnack, SlotDinner}

// Valid reports whether s is a recognised slot.
func (s Slot) Valid() bool {
	switch s {
	case SlotBreakfast, SlotLunch, SlotSnack, SlotDinner:
		return true
	}
	return false
}

// Biometrics are the body measurements targets are computed from.
type Biometrics struct {
	WeightKG float64 `json:"weight_kg"`
	HeightCM float64 `json:"height_cm"`
	Age      int     `json:"age"`
	Sex      Sex     `json:"sex"`
}

// Targets are the daily nutrition goals derived from biometrics.
type Targets struct {
	Calories int     `json:"calories"`
	ProteinG int     `json:"protein_g"`
	CarbsG   int     `json:"carbs_g"`
	FatG     int     `json:"fat_g"`
	WaterL   float64 `json:"water_l"`
}

// CarbDeficit reports whether protein and fat alone exceed the calorie budget,
// which leaves a negative carbohydrate target.
func (t Targets) CarbDeficit() bool {
	return t.CarbsG < 0
}

// Challenge tracks the fixed-length training challenge started at onboarding.
type Challenge struct {
	LengthDays    int      `json:"length_days"`
	StartDate     string   `json:"start_date"`
	CurrentDay    int      `json:"current_day"`
	CompletedDays []string `json:"completed_days"`
	Status        string   `json:"status"`
}

const (
	ChallengeInProgress = "in_progress"
	ChallengeCompleted  = "completed"
)

// Profile is stored at users/{uid}. Targets stay nil until onboarding completes.
type Profile struct {
	UserID         string       `json:"user_id"`
	Username       string       `json:"username"`
	Goal           string       `json:"goal,omitempty"`
	Tier           ActivityTier `json:"tier,omitempty"`
	DaysPerWeek    int          `json:"days_per_week,omitempty"`
	SessionMinutes int          `json:"session_minutes,omitempty"`
	Biometrics     *Biometrics  `json:"biometrics"`
	BMI            *float64     `json:"bmi"`
	BMICategory    string       `json:"bmi_category,omitempty"`
	Targets        *Targets     `json:"targets"`
	Challenge      *Challenge   `json:"challenge,omitempty"`
	CreatedAt      *time.Time   `json:"created_at,omitempty"`
	OnboardedAt    *time.Time   `json:"onboarded_at,omitempty"`
	UpdatedAt      *time.Time   `json:"updated_at,omitempty"`
}

// Onboarded reports whether targets have been derived for this profile.
func (p Profile) Onboarded() bool {
	return p.Targets != nil
}

// MealInput is what a caller submits to the ledger. Pointers distinguish
// "not provided" from zero.
type MealInput struct {
	Name     string   `json:"name"`
	Calories *float64 `json:"calories"`
	ProteinG *float64 `json:"protein_g"`
	CarbsG   *float64 `json:"carbs_g"`
	FatG     *float64 `json:"fat_g"`
}

// MealEntry is one logged food item with its resolved macros.
type MealEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Calories  float64   `json:"calories"`
	ProteinG  float64   `json:"protein_g"`
	CarbsG    float64   `json:"carbs_g"`
	FatG      float64   `json:"fat_g"`
	Slot      Slot      `json:"slot"`
	CreatedAt time.Time `json:"created_at"`
}

// DailyLedger is every meal entry for one user on one date, grouped by slot in
// insertion order. Version is the store version of the ledger document it was read from, 0 when
// nothing has been logged.
type DailyLedger struct {
	Date    string               `json:"date"`
	Meals   map[Slot][]MealEntry `json:"meals"`
	Version int64                `json:"-"`
}

// NewDailyLedger returns an empty ledger with all four slots present.
func NewDailyLedger(date string) DailyLedger {
	l := DailyLedger{Date: date, Meals: make(map[Slot][]MealEntry, len(Slots))}
	for _, s := range Slots {
		l.Meals[s] = []MealEntry{}
	}
	return l
}

// EntryCount returns the number of entries across all slots.
func (l DailyLedger) EntryCount() int {
	n := 0
	for _, entries := range l.Meals {
		n += len(entries)
	}
	return n
}

// DayTotals are the rounded nutrient sums of one day's ledger.
type DayTotals struct {
	Calories int `json:"calories"`
	ProteinG int `json:"protein_g"`
	CarbsG   int `json:"carbs_g"`
	FatG     int `json:"fat_g"`
}

// Nutrients are the rounded macro totals stored on a snapshot.
type Nutrients struct {
	ProteinG int `json:"protein_g"`
	CarbsG   int `json:"carbs_g"`
	FatG     int `json:"fat_g"`
}

// Snapshot is the per-date progress record at users/{uid}/progress/{date}.
type Snapshot struct {
	Date               string     `json:"date"`
	CaloriesConsumed   int        `json:"calories_consumed"`
	Nutrients          Nutrients  `json:"nutrients"`
	WaterL             float64    `json:"water_l"`
	TrainingMinutes    int        `json:"training_minutes"`
	SleepHours         float64    `json:"sleep_hours"`
	WeightKG           *float64   `json:"weight_kg"`
	CaloriesBurned     int        `json:"calories_burned"`
	ExercisesCompleted int        `json:"exercises_completed"`
	Energy             int        `json:"energy"`
	LedgerVersion      int64      `json:"ledger_version,omitempty"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

// Totals returns the nutrition portion of the snapshot in DayTotals form.
func (s Snapshot) Totals() DayTotals {
	return DayTotals{
		Calories: s.CaloriesConsumed,
		ProteinG: s.Nutrients.ProteinG,
		CarbsG:   s.Nutrients.CarbsG,
		FatG:     s.Nutrients.FatG,
	}
}

// Food is one item of the shared food bank.
type Food struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ServingG float64 `json:"serving_g"`
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}
