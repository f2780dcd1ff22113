// Package capas implements corrective and preventive actions:
// OPEN -> IN_PROGRESS -> COMPLETED -> VERIFIED -> CLOSED, or CANCELLED.
package capas

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm/clause"

	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/models"
	"github.com/flanksource/hse/notifications"
	"github.com/flanksource/hse/sequence"
)

type CreateInput struct {
	ActionType          models.ActionType `json:"action_type"`
	Title               string            `json:"title"`
	Description         string            `json:"description"`
	RootCause           string            `json:"root_cause,omitempty"`
	ResponsiblePersonID *uuid.UUID        `json:"responsible_person_id,omitempty"`
	DueDate             time.Time         `json:"due_date"`
	Priority            models.Priority   `json:"priority,omitempty"`
}

// Validate checks the input and defaults the priority to medium.
func (in *CreateInput) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return api.Errorf(api.EINVALID, "title is required")
	}
	if !in.ActionType.Valid() {
		return api.Errorf(api.EINVALID, "invalid action type %q", in.ActionType)
	}
	if in.Priority == 0 {
		in.Priority = models.PriorityMedium
	} else if !in.Priority.Valid() {
		return api.Errorf(api.EINVALID, "priority must be between %d and %d, got %d", models.PriorityLow, models.PriorityCritical, in.Priority)
	}
	if in.DueDate.IsZero() {
		return api.Errorf(api.EINVALID, "due date is required")
	}
	return nil
}

// Event builds the notification event for c, carrying its due date.
func Event(typ models.NotificationType, c models.CAPA, recipient *uuid.UUID, actor *uuid.UUID) models.DomainEvent {
	due := c.DueDate
	return models.DomainEvent{
		Type:        typ,
		EntityID:    c.ID,
		Reference:   c.Reference,
		Title:       c.Title,
		RecipientID: recipient,
		ActorID:     actor,
		DueDate:     &due,
	}
}

// Create raises a CAPA against an existing incident with the next CAPA reference.
func Create(ctx context.Context, incidentID uuid.UUID, input CreateInput, actor uuid.UUID) (*models.CAPA, error) {
	if err := input.Validate(); err != nil {
		ctx.RecordTransition("capa", "create", "error")
		return nil, err
	}

	var capa models.CAPA
	err := sequence.WithReference(ctx, sequence.PrefixCAPA, func(ctx context.Context, ref string) error {
		var count int64
		if err := ctx.DB().Model(&models.Incident{}).Where("id = ?", incidentID).Count(&count).Error; err != nil {
			return err
		} else if count == 0 {
			return api.Errorf(api.ENOTFOUND, "incident %s not found", incidentID)
		}

		now := ctx.Now()
		capa = models.CAPA{
			IncidentID:          incidentID,
			Reference:           ref,
			ActionType:          input.ActionType,
			Title:               input.Title,
			Description:         input.Description,
			RootCause:           input.RootCause,
			ResponsiblePersonID: input.ResponsiblePersonID,
			DueDate:             date(input.DueDate),
			Priority:            input.Priority,
			Status:              models.CAPAStatusOpen,
			CreatedBy:           &actor,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		return ctx.DB().Create(&capa).Error
	})
	ctx.RecordTransition("capa", "create", context.TransitionResult(err))
	if err != nil {
		return nil, err
	}

	ctx.Infof("capa %s raised for incident %s", capa.Reference, incidentID)
	if capa.ResponsiblePersonID != nil {
		notifications.Publish(ctx,
			Event(models.NotificationCAPACreated, capa, capa.ResponsiblePersonID, &actor),
			Event(models.NotificationCAPAAssigned, capa, capa.ResponsiblePersonID, &actor),
		)
	}
	return &capa, nil
}

func Get(ctx context.Context, id uuid.UUID) (*models.CAPA, error) {
	var capa models.CAPA
	tx := ctx.DB().Where("id = ?", id).Limit(1).Find(&capa)
	if tx.Error != nil {
		return nil, tx.Error
	} else if tx.RowsAffected == 0 {
		return nil, api.Errorf(api.ENOTFOUND, "capa %s not found", id)
	}
	return &capa, nil
}

func lock(ctx context.Context, id uuid.UUID) (*models.CAPA, error) {
	var capa models.CAPA
	tx := ctx.DB().Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Limit(1).Find(&capa)
	if tx.Error != nil {
		return nil, tx.Error
	} else if tx.RowsAffected == 0 {
		return nil, api.Errorf(api.ENOTFOUND, "capa %s not found", id)
	}
	return &capa, nil
}

// transition locks the CAPA and applies fn; fn returns false for a no-op.
// The CAPA is saved and events published only when something changed.
func transition(ctx context.Context, name string, id uuid.UUID, fn func(*models.CAPA) (bool, []models.DomainEvent, error)) (*models.CAPA, bool, error) {
	var (
		capa    *models.CAPA
		changed bool
		events  []models.DomainEvent
	)

	err := ctx.Transaction(func(ctx context.Context, span trace.Span) error {
		var err error
		if capa, err = lock(ctx, id); err != nil {
			return err
		}

		from := capa.Status
		if changed, events, err = fn(capa); err != nil || !changed {
			return err
		}

		capa.UpdatedAt = ctx.Now()
		if err := ctx.DB().Model(capa).Updates(map[string]any{
			"status":             capa.Status,
			"completion_date":    capa.CompletionDate,
			"verification_date":  capa.VerificationDate,
			"verification_notes": capa.VerificationNotes,
			"updated_at":         capa.UpdatedAt,
		}).Error; err != nil {
			return err
		}

		ctx.Debugf("capa %s: %s %s -> %s", capa.Reference, name, from, capa.Status)
		return nil
	})

	result := context.TransitionResult(err)
	if err == nil && !changed {
		result = "noop"
	}
	ctx.RecordTransition("capa", name, result)
	if err != nil {
		return nil, false, err
	}

	notifications.Publish(ctx, events...)
	return capa, changed, nil
}

// CompleteCAPA returns false without changing anything when the CAPA is
// not open or in progress.
func CompleteCAPA(ctx context.Context, id, actor uuid.UUID) (bool, error) {
	_, changed, err := transition(ctx, "complete", id, func(c *models.CAPA) (bool, []models.DomainEvent, error) {
		if !Complete(c, actor, ctx.Now()) {
			return false, nil, nil
		}
		if c.CreatedBy == nil {
			return true, nil, nil
		}
		return true, []models.DomainEvent{Event(models.NotificationCAPACompleted, *c, c.CreatedBy, &actor)}, nil
	})
	return changed, err
}

func VerifyCAPA(ctx context.Context, id, actor uuid.UUID, notes string) (*models.CAPA, error) {
	capa, _, err := transition(ctx, "verify", id, func(c *models.CAPA) (bool, []models.DomainEvent, error) {
		return true, nil, Verify(c, actor, notes, ctx.Now())
	})
	return capa, err
}

func StartCAPA(ctx context.Context, id, actor uuid.UUID) (*models.CAPA, error) {
	capa, _, err := transition(ctx, "start", id, func(c *models.CAPA) (bool, []models.DomainEvent, error) {
		return true, nil, Start(c)
	})
	return capa, err
}

func CloseCAPA(ctx context.Context, id, actor uuid.UUID) (*models.CAPA, error) {
	capa, _, err := transition(ctx, "close", id, func(c *models.CAPA) (bool, []models.DomainEvent, error) {
		return true, nil, Close(c)
	})
	return capa, err
}

func CancelCAPA(ctx context.Context, id, actor uuid.UUID) (*models.CAPA, error) {
	capa, _, err := transition(ctx, "cancel", id, func(c *models.CAPA) (bool, []models.DomainEvent, error) {
		return true, nil, Cancel(c)
	})
	return capa, err
}
