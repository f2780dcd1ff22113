package risk

import (
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm/clause"

	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/models"
	"github.com/flanksource/hse/notifications"
)

type Input struct {
	Probability         int    `json:"probability"`
	Impact              int    `json:"impact"`
	ExistingControls    string `json:"existing_controls,omitempty"`
	RecommendedControls string `json:"recommended_controls,omitempty"`
	AssessmentNotes     string `json:"assessment_notes,omitempty"`
}

// Upsert creates or replaces the risk assessment of an incident. HIGH and
// CRITICAL results notify the incident owner once committed.
func Upsert(ctx context.Context, incidentID uuid.UUID, input Input, actor uuid.UUID) (*models.RiskAssessment, error) {
	level, category, err := Score(input.Probability, input.Impact)
	if err != nil {
		ctx.RecordTransition("risk_assessment", "upsert", "error")
		return nil, err
	}

	var (
		incident   models.Incident
		assessment models.RiskAssessment
	)
	err = ctx.Transaction(func(ctx context.Context, span trace.Span) error {
		tx := ctx.DB().Clauses(clause.Locking{Strength: "SHARE"}).Where("id = ?", incidentID).Limit(1).Find(&incident)
		if tx.Error != nil {
			return tx.Error
		} else if tx.RowsAffected == 0 {
			return api.Errorf(api.ENOTFOUND, "incident %s not found", incidentID)
		}

		now := ctx.Now()
		row := models.RiskAssessment{
			IncidentID:          incidentID,
			Probability:         input.Probability,
			Impact:              input.Impact,
			ExistingControls:    input.ExistingControls,
			RecommendedControls: input.RecommendedControls,
			AssessmentNotes:     input.AssessmentNotes,
			AssessedBy:          &actor,
			AssessedDate:        now,
			UpdatedAt:           now,
		}
		if err := ctx.DB().Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "incident_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"probability", "impact", "existing_controls", "recommended_controls",
				"assessment_notes", "assessed_by", "assessed_date", "updated_at",
			}),
		}).Create(&row).Error; err != nil {
			return err
		}

		// risk_level and risk_category are computed by postgres
		if err := ctx.DB().Where("incident_id = ?", incidentID).First(&assessment).Error; err != nil {
			return err
		}
		if assessment.RiskLevel != level || assessment.RiskCategory != category {
			return api.Errorf(api.EINTERNAL, "stored risk %d/%s does not match computed %d/%s",
				assessment.RiskLevel, assessment.RiskCategory, level, category)
		}
		return nil
	})
	ctx.RecordTransition("risk_assessment", "upsert", context.TransitionResult(err))
	if err != nil {
		return nil, err
	}

	ctx.Debugf("assessed %s: %d (%s)", incident.Reference, level, category)
	if RequiresManagementReview(category) {
		notifications.Publish(ctx, riskEvent(incident, assessment, actor))
	}
	return &assessment, nil
}

func riskEvent(incident models.Incident, a models.RiskAssessment, actor uuid.UUID) models.DomainEvent {
	typ := models.NotificationRiskHigh
	if a.RiskCategory == models.RiskCategoryCritical {
		typ = models.NotificationRiskCritical
	}
	owner := incident.Owner()
	return models.DomainEvent{
		Type:        typ,
		EntityID:    incident.ID,
		Reference:   incident.Reference,
		Title:       incident.Title,
		RecipientID: &owner,
		ActorID:     &actor,
		Severity:    string(incident.Severity),
		RiskLevel:   a.RiskLevel,
	}
}

func Get(ctx context.Context, incidentID uuid.UUID) (*models.RiskAssessment, error) {
	var assessment models.RiskAssessment
	tx := ctx.DB().Where("incident_id = ?", incidentID).Limit(1).Find(&assessment)
	if tx.Error != nil {
		return nil, tx.Error
	} else if tx.RowsAffected == 0 {
		return nil, api.Errorf(api.ENOTFOUND, "risk assessment for incident %s not found", incidentID)
	}
	return &assessment, nil
}

// ListHighRisk returns HIGH and CRITICAL assessments, highest first.
func ListHighRisk(ctx context.Context) ([]models.RiskAssessment, error) {
	var assessments []models.RiskAssessment
	err := ctx.DB().
		Where("risk_category IN ?", []models.RiskCategory{models.RiskCategoryHigh, models.RiskCategoryCritical}).
		Order("risk_level DESC, assessed_date DESC").
		Find(&assessments).Error
	return assessments, err
}
