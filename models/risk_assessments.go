package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type RiskCategory string

const (
	RiskCategoryVeryLow  RiskCategory = "VERY_LOW"
	RiskCategoryLow      RiskCategory = "LOW"
	RiskCategoryMedium   RiskCategory = "MEDIUM"
	RiskCategoryHigh     RiskCategory = "HIGH"
	RiskCategoryCritical RiskCategory = "CRITICAL"
)

// RiskAssessment is keyed by the incident it assesses.
// RiskLevel and RiskCategory are generated columns and are never written from here.
type RiskAssessment struct {
	IncidentID          uuid.UUID    `json:"incident_id" gorm:"primaryKey"`
	Probability         int          `json:"probability"`
	Impact              int          `json:"impact"`
	RiskLevel           int          `json:"risk_level" gorm:"->"`
	RiskCategory        RiskCategory `json:"risk_category" gorm:"->"`
	ExistingControls    string       `json:"existing_controls,omitempty"`
	RecommendedControls string       `json:"recommended_controls,omitempty"`
	AssessmentNotes     string       `json:"assessment_notes,omitempty"`
	AssessedBy          *uuid.UUID   `json:"assessed_by,omitempty"`
	AssessedDate        time.Time    `json:"assessed_date"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

func (r RiskAssessment) TableName() string {
	return "risk_assessments"
}

func (r RiskAssessment) Link() string {
	return fmt.Sprintf("/incidents/%s/risk-assessment", r.IncidentID)
}
