// Package risk scores risk assessments on a 5x5 probability x impact matrix.
package risk

import (
	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/models"
)

const (
	MinRating = 1
	MaxRating = 5
)

// Score returns probability x impact and its category. Both inputs must be
// within [1, 5].
func Score(probability, impact int) (int, models.RiskCategory, error) {
	if probability < MinRating || probability > MaxRating {
		return 0, "", api.Errorf(api.EINVALID, "probability must be between %d and %d, got %d", MinRating, MaxRating, probability)
	}
	if impact < MinRating || impact > MaxRating {
		return 0, "", api.Errorf(api.EINVALID, "impact must be between %d and %d, got %d", MinRating, MaxRating, impact)
	}

	level := probability * impact
	return level, Category(level), nil
}

// Category buckets a risk level, boundaries inclusive.
func Category(level int) models.RiskCategory {
	switch {
	case level <= 5:
		return models.RiskCategoryVeryLow
	case level <= 10:
		return models.RiskCategoryLow
	case level <= 15:
		return models.RiskCategoryMedium
	case level <= 20:
		return models.RiskCategoryHigh
	default:
		return models.RiskCategoryCritical
	}
}

func RequiresManagementReview(category models.RiskCategory) bool {
	switch category {
	case models.RiskCategoryHigh, models.RiskCategoryCritical:
		return true
	}
	return false
}

// MatrixPosition returns the 1 based cell of the assessment in a matrix
// with impact rows and probability columns.
func MatrixPosition(a models.RiskAssessment) (row, col int) {
	return a.Impact, a.Probability
}

func DisplayName(category models.RiskCategory) string {
	switch category {
	case models.RiskCategoryVeryLow:
		return "Very Low Risk"
	case models.RiskCategoryLow:
		return "Low Risk"
	case models.RiskCategoryMedium:
		return "Medium Risk"
	case models.RiskCategoryHigh:
		return "High Risk"
	case models.RiskCategoryCritical:
		return "Critical Risk"
	}
	return "Unknown"
}
