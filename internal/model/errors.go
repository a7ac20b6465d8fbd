package model

import "errors"

var (
	ErrInvalidBiometrics   = errors.New("invalid biometrics")
	ErrInvalidMealEntry    = errors.New("invalid meal entry")
	ErrInvalidDate         = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidMetric       = errors.New("invalid metric")
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrNotOnboarded        = errors.New("onboarding not completed")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// IsValidation reports whether err is caused by bad caller input and should be
// reported back to the user rather than retried.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidBiometrics) ||
		errors.Is(err, ErrInvalidMealEntry) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidMetric) ||
		errors.Is(err, ErrInvalidInput)
}
