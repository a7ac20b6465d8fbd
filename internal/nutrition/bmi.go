package nutrition

import (
	"fmt"
	"math"

	"lg/nutrition-tracker-api/internal/model"
)

// BMI expects height in centimeters and weight in kilograms and returns the
// index rounded to one decimal.
func BMI(weightKG, heightCM float64) (float64, error) {
	if !positive(weightKG) || !positive(heightCM) {
		return 0, fmt.Errorf("%w: height and weight must be positive", model.ErrInvalidBiometrics)
	}
	h := heightCM / 100.0
	return math.Round(weightKG/(h*h)*10) / 10, nil
}

func BMICategory(bmi float64) string {
	switch {
	case bmi < 18.5:
		return "underweight"
	case bmi < 25.0:
		return "normal"
	case bmi < 30.0:
		return "overweight"
	case bmi < 35.0:
		return "obesity_1"
	case bmi < 40.0:
		return "obesity_2"
	default:
		return "obesity_3"
	}
}
