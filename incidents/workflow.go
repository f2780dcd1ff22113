package incidents

import (
	"time"

	"github.com/google/uuid"

	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/models"
)

const (
	SubmittedDeadline     = 48 * time.Hour
	InvestigationDeadline = 7 * 24 * time.Hour
)

// Submit moves a draft into the queue for review.
func Submit(i *models.Incident) error {
	if i.Status != models.IncidentStatusDraft {
		return api.InvalidTransition("submit", i.Status, models.IncidentStatusDraft)
	}
	i.Status = models.IncidentStatusSubmitted
	return nil
}

func StartInvestigation(i *models.Incident) error {
	if i.Status != models.IncidentStatusSubmitted {
		return api.InvalidTransition("start investigation", i.Status, models.IncidentStatusSubmitted)
	}
	i.Status = models.IncidentStatusUnderInvestigation
	return nil
}

// Validate confirms the incident and makes the validator its assignee.
func Validate(i *models.Incident, actor uuid.UUID) error {
	switch i.Status {
	case models.IncidentStatusSubmitted, models.IncidentStatusUnderInvestigation:
		i.Status = models.IncidentStatusValidated
		i.AssignedTo = &actor
		return nil
	}
	return api.InvalidTransition("validate", i.Status, models.IncidentStatusSubmitted, models.IncidentStatusUnderInvestigation)
}

func Close(i *models.Incident) error {
	switch i.Status {
	case models.IncidentStatusValidated:
		i.Status = models.IncidentStatusClosed
		return nil
	case models.IncidentStatusClosed:
		return api.Errorf(api.EINVALIDTRANSITION, "incident %s is already closed", i.Reference).
			WithData(api.TransitionDetails{Current: string(i.Status), Allowed: []string{string(models.IncidentStatusValidated)}})
	}
	return api.InvalidTransition("close", i.Status, models.IncidentStatusValidated)
}

// Assign hands the incident to assignee, any time before it is closed.
func Assign(i *models.Incident, assignee uuid.UUID) error {
	if assignee == uuid.Nil {
		return api.Errorf(api.EINVALID, "assignee is required")
	}
	if i.Status == models.IncidentStatusClosed {
		return api.InvalidTransition("assign", i.Status,
			models.IncidentStatusDraft, models.IncidentStatusSubmitted,
			models.IncidentStatusUnderInvestigation, models.IncidentStatusValidated)
	}
	i.AssignedTo = &assignee
	return nil
}

// IsOverdue is true for submitted incidents reported more than 48h ago and
// investigations reported more than 7 days ago.
func IsOverdue(i models.Incident, now time.Time) bool {
	open := now.Sub(i.ReportedDate)
	switch i.Status {
	case models.IncidentStatusSubmitted:
		return open > SubmittedDeadline
	case models.IncidentStatusUnderInvestigation:
		return open > InvestigationDeadline
	}
	return false
}
