// Package incidents implements the incident lifecycle:
// DRAFT -> SUBMITTED -> UNDER_INVESTIGATION -> VALIDATED -> CLOSED.
package incidents

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm/clause"

	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/evidence"
	"github.com/flanksource/hse/models"
	"github.com/flanksource/hse/notifications"
	"github.com/flanksource/hse/sequence"
)

const MinTitleLength = 10

type CreateInput struct {
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	Type           models.IncidentType   `json:"type"`
	Severity       models.Severity       `json:"severity,omitempty"`
	Status         models.IncidentStatus `json:"status,omitempty"`
	IncidentDate   time.Time             `json:"incident_date"`
	Location       string                `json:"location,omitempty"`
	Department     string                `json:"department,omitempty"`
	AssignedTo     *uuid.UUID            `json:"assigned_to,omitempty"`
	Injuries       *string               `json:"injuries,omitempty"`
	PropertyDamage *string               `json:"property_damage,omitempty"`
	WorkHoursLost  int                   `json:"work_hours_lost,omitempty"`
	DaysLost       int                   `json:"days_lost,omitempty"`
}

// Validate checks the input and fills in the defaults (LOW severity, DRAFT status).
func (in *CreateInput) Validate(now time.Time) error {
	in.Title = strings.TrimSpace(in.Title)
	if len([]rune(in.Title)) < MinTitleLength {
		return api.Errorf(api.EINVALID, "title must be at least %d characters long", MinTitleLength)
	}
	if strings.TrimSpace(in.Description) == "" {
		return api.Errorf(api.EINVALID, "description is required")
	}
	if !in.Type.Valid() {
		return api.Errorf(api.EINVALID, "invalid incident type %q", in.Type)
	}

	if in.Severity == "" {
		in.Severity = models.SeverityLow
	} else if !in.Severity.Valid() {
		return api.Errorf(api.EINVALID, "invalid severity %q", in.Severity)
	}

	switch in.Status {
	case "":
		in.Status = models.IncidentStatusDraft
	case models.IncidentStatusDraft, models.IncidentStatusSubmitted:
	default:
		return api.Errorf(api.EINVALID, "incidents can only be created as %s or %s, not %q",
			models.IncidentStatusDraft, models.IncidentStatusSubmitted, in.Status)
	}

	if in.IncidentDate.IsZero() {
		return api.Errorf(api.EINVALID, "incident date is required")
	}
	if in.IncidentDate.After(now) {
		return api.Errorf(api.EINVALID, "incident date cannot be in the future")
	}
	if in.WorkHoursLost < 0 {
		return api.Errorf(api.EINVALID, "work hours lost cannot be negative")
	}
	if in.DaysLost < 0 {
		return api.Errorf(api.EINVALID, "days lost cannot be negative")
	}
	if in.DaysLost > 0 && strings.TrimSpace(lo.FromPtr(in.Injuries)) == "" {
		return api.Errorf(api.EINVALID, "please describe injuries if days were lost")
	}
	return nil
}

func event(typ models.NotificationType, i models.Incident, recipient uuid.UUID, actor *uuid.UUID) models.DomainEvent {
	return models.DomainEvent{
		Type:        typ,
		EntityID:    i.ID,
		Reference:   i.Reference,
		Title:       i.Title,
		RecipientID: &recipient,
		ActorID:     actor,
		Severity:    string(i.Severity),
	}
}

// Create records a new incident with the next INC reference of the year.
func Create(ctx context.Context, input CreateInput, reporter uuid.UUID) (*models.Incident, error) {
	if reporter == uuid.Nil {
		return nil, api.Errorf(api.EINVALID, "reporter is required")
	}
	if err := input.Validate(ctx.Now()); err != nil {
		ctx.RecordTransition("incident", "create", "error")
		return nil, err
	}

	var incident models.Incident
	err := sequence.WithReference(ctx, sequence.PrefixIncident, func(ctx context.Context, ref string) error {
		now := ctx.Now()
		incident = models.Incident{
			Reference:      ref,
			Title:          input.Title,
			Description:    input.Description,
			Type:           input.Type,
			Severity:       input.Severity,
			Status:         input.Status,
			IncidentDate:   input.IncidentDate.UTC(),
			ReportedDate:   now,
			Location:       input.Location,
			Department:     input.Department,
			ReporterID:     reporter,
			AssignedTo:     input.AssignedTo,
			Injuries:       input.Injuries,
			PropertyDamage: input.PropertyDamage,
			WorkHoursLost:  input.WorkHoursLost,
			DaysLost:       input.DaysLost,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return ctx.DB().Create(&incident).Error
	})
	ctx.RecordTransition("incident", "create", context.TransitionResult(err))
	if err != nil {
		return nil, err
	}

	ctx.Infof("incident %s reported by %s", incident.Reference, reporter)

	events := []models.DomainEvent{event(models.NotificationIncidentCreated, incident, reporter, &reporter)}
	if incident.AssignedTo != nil && *incident.AssignedTo != reporter {
		events = append(events, event(models.NotificationIncidentAssigned, incident, *incident.AssignedTo, &reporter))
	}
	notifications.Publish(ctx, events...)
	return &incident, nil
}

func Get(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	var incident models.Incident
	tx := ctx.DB().Where("id = ?", id).Limit(1).Find(&incident)
	if tx.Error != nil {
		return nil, tx.Error
	} else if tx.RowsAffected == 0 {
		return nil, api.Errorf(api.ENOTFOUND, "incident %s not found", id)
	}
	return &incident, nil
}

func GetByReference(ctx context.Context, ref string) (*models.Incident, error) {
	var incident models.Incident
	tx := ctx.DB().Where("reference = ?", strings.ToUpper(strings.TrimSpace(ref))).Limit(1).Find(&incident)
	if tx.Error != nil {
		return nil, tx.Error
	} else if tx.RowsAffected == 0 {
		return nil, api.Errorf(api.ENOTFOUND, "incident %s not found", ref)
	}
	return &incident, nil
}

func lock(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	var incident models.Incident
	tx := ctx.DB().Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Limit(1).Find(&incident)
	if tx.Error != nil {
		return nil, tx.Error
	} else if tx.RowsAffected == 0 {
		return nil, api.Errorf(api.ENOTFOUND, "incident %s not found", id)
	}
	return &incident, nil
}

// transition locks the incident, applies fn and saves status and assignee
// in one transaction. Events are published once it commits.
func transition(ctx context.Context, name string, id uuid.UUID, fn func(*models.Incident) ([]models.DomainEvent, error)) (*models.Incident, error) {
	var (
		incident *models.Incident
		events   []models.DomainEvent
	)

	err := ctx.Transaction(func(ctx context.Context, span trace.Span) error {
		var err error
		if incident, err = lock(ctx, id); err != nil {
			return err
		}

		from := incident.Status
		if events, err = fn(incident); err != nil {
			return err
		}

		incident.UpdatedAt = ctx.Now()
		if err := ctx.DB().Model(incident).Updates(map[string]any{
			"status":      incident.Status,
			"assigned_to": incident.AssignedTo,
			"updated_at":  incident.UpdatedAt,
		}).Error; err != nil {
			return err
		}

		ctx.Debugf("incident %s: %s %s -> %s", incident.Reference, name, from, incident.Status)
		return nil
	})
	ctx.RecordTransition("incident", name, context.TransitionResult(err))
	if err != nil {
		return nil, err
	}

	notifications.Publish(ctx, events...)
	return incident, nil
}

// ValidateIncident validates the incident and assigns it to the validator.
func ValidateIncident(ctx context.Context, id, actor uuid.UUID) (*models.Incident, error) {
	return transition(ctx, "validate", id, func(i *models.Incident) ([]models.DomainEvent, error) {
		if err := Validate(i, actor); err != nil {
			return nil, err
		}
		return []models.DomainEvent{
			event(models.NotificationIncidentValidated, *i, i.ReporterID, &actor),
			event(models.NotificationIncidentAssigned, *i, actor, &actor),
		}, nil
	})
}

func CloseIncident(ctx context.Context, id, actor uuid.UUID) (*models.Incident, error) {
	return transition(ctx, "close", id, func(i *models.Incident) ([]models.DomainEvent, error) {
		if err := Close(i); err != nil {
			return nil, err
		}
		return []models.DomainEvent{event(models.NotificationIncidentClosed, *i, i.ReporterID, &actor)}, nil
	})
}

func SubmitIncident(ctx context.Context, id, actor uuid.UUID) (*models.Incident, error) {
	return transition(ctx, "submit", id, func(i *models.Incident) ([]models.DomainEvent, error) {
		return nil, Submit(i)
	})
}

func StartIncidentInvestigation(ctx context.Context, id, actor uuid.UUID) (*models.Incident, error) {
	return transition(ctx, "start_investigation", id, func(i *models.Incident) ([]models.DomainEvent, error) {
		if err := StartInvestigation(i); err != nil {
			return nil, err
		}
		if i.AssignedTo == nil {
			i.AssignedTo = &actor
		}
		return nil, nil
	})
}

func AssignIncident(ctx context.Context, id, assignee, actor uuid.UUID) (*models.Incident, error) {
	return transition(ctx, "assign", id, func(i *models.Incident) ([]models.DomainEvent, error) {
		if err := Assign(i, assignee); err != nil {
			return nil, err
		}
		return []models.DomainEvent{event(models.NotificationIncidentAssigned, *i, assignee, &actor)}, nil
	})
}

// Delete removes the incident with its CAPAs and risk assessment, and the
// evidence attached to any of them.
func Delete(ctx context.Context, id uuid.UUID) error {
	err := ctx.Transaction(func(ctx context.Context, span trace.Span) error {
		incident, err := lock(ctx, id)
		if err != nil {
			return err
		}

		var capaIDs []uuid.UUID
		if err := ctx.DB().Model(&models.CAPA{}).Where("incident_id = ?", id).Pluck("id", &capaIDs).Error; err != nil {
			return err
		}

		targets := []models.EvidenceTarget{models.IncidentTarget(id), models.RiskAssessmentTarget(id)}
		for _, capaID := range capaIDs {
			targets = append(targets, models.CAPATarget(capaID))
		}

		var removed int
		for _, target := range targets {
			paths, err := evidence.DeleteForTarget(ctx, target)
			if err != nil {
				return err
			}
			removed += len(paths)
		}

		if err := ctx.DB().Delete(incident).Error; err != nil {
			return err
		}
		ctx.Infof("deleted incident %s with %d capas and %d evidence files", incident.Reference, len(capaIDs), removed)
		return nil
	})
	ctx.RecordTransition("incident", "delete", context.TransitionResult(err))
	return err
}
