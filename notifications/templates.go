package notifications

import (
	"fmt"
	"strconv"

	"github.com/flanksource/gomplate/v3"
	"github.com/google/uuid"

	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/models"
)

type notificationTemplate struct {
	Title   string
	Message string
}

var templates = map[models.NotificationType]notificationTemplate{
	models.NotificationIncidentCreated: {
		Title:   "Incident {{.reference}} Reported",
		Message: `Your report "{{.title}}" has been recorded as {{.reference}}.`,
	},
	models.NotificationIncidentAssigned: {
		Title:   "Incident {{.reference}} Assigned to You",
		Message: "You have been assigned to investigate incident: {{.title}}",
	},
	models.NotificationIncidentValidated: {
		Title:   "Incident {{.reference}} Validated",
		Message: `Incident "{{.title}}" has been validated and is ready for corrective action.`,
	},
	models.NotificationIncidentClosed: {
		Title:   "Incident {{.reference}} Closed",
		Message: `Incident "{{.title}}" has been closed.`,
	},
	models.NotificationCAPACreated: {
		Title:   "CAPA {{.reference}} Created",
		Message: "A new action was raised: {{.title}}. Due: {{.due_date}}",
	},
	models.NotificationCAPAAssigned: {
		Title:   "CAPA {{.reference}} Assigned to You",
		Message: "You are responsible for: {{.title}}. Due: {{.due_date}}",
	},
	models.NotificationCAPADueSoon: {
		Title:   "CAPA {{.reference}} is Due Soon",
		Message: "Action due on {{.due_date}}: {{.title}}",
	},
	models.NotificationCAPAOverdue: {
		Title:   "CAPA {{.reference}} is Overdue!",
		Message: "Action overdue: {{.title}}. Was due: {{.due_date}}",
	},
	models.NotificationCAPACompleted: {
		Title:   "CAPA {{.reference}} Completed",
		Message: "Action completed and awaiting verification: {{.title}}",
	},
	models.NotificationRiskHigh: {
		Title:   "High Risk: Incident {{.reference}}",
		Message: "Risk level {{.risk_level}} (HIGH) assessed for: {{.title}}. Management review required.",
	},
	models.NotificationRiskCritical: {
		Title:   "Critical Risk: Incident {{.reference}}",
		Message: "Risk level {{.risk_level}} (CRITICAL) assessed for: {{.title}}. Immediate action required.",
	},
	models.NotificationSystem: {
		Title:   "{{if .reference}}{{.reference}}: {{end}}{{.title}}",
		Message: "{{.message}}",
	},
}

func env(event models.DomainEvent) map[string]any {
	e := map[string]any{
		"entity_id":  event.EntityID.String(),
		"reference":  event.Reference,
		"title":      event.Title,
		"severity":   event.Severity,
		"message":    event.Message,
		"due_date":   "",
		"risk_level": "",
	}
	if event.DueDate != nil {
		e["due_date"] = event.DueDate.Format("2006-01-02")
	}
	if event.RiskLevel > 0 {
		e["risk_level"] = strconv.Itoa(event.RiskLevel)
	}
	e["link"] = link(event)
	return e
}

func link(event models.DomainEvent) string {
	if event.EntityID == uuid.Nil {
		return ""
	}
	switch event.Type {
	case models.NotificationCAPACreated, models.NotificationCAPAAssigned, models.NotificationCAPADueSoon,
		models.NotificationCAPAOverdue, models.NotificationCAPACompleted:
		return models.CAPA{ID: event.EntityID}.Link()
	case models.NotificationRiskHigh, models.NotificationRiskCritical:
		return models.RiskAssessment{IncidentID: event.EntityID}.Link()
	}
	// incident events, and system notifications raised for an incident
	return models.Incident{ID: event.EntityID}.Link()
}

// Render maps a domain event onto the notification its recipient receives.
// It returns nil when the event has nobody to notify, e.g. an overdue CAPA
// without a responsible person.
func Render(event models.DomainEvent) (*models.Notification, error) {
	if !event.HasRecipient() {
		return nil, nil
	}

	tpl, ok := templates[event.Type]
	if !ok {
		return nil, api.Errorf(api.EINVALID, "unsupported notification type %q", event.Type)
	}

	vars := env(event)
	title, err := gomplate.RunTemplate(vars, gomplate.Template{Template: tpl.Title})
	if err != nil {
		return nil, fmt.Errorf("failed to render %s title: %w", event.Type, err)
	}
	message, err := gomplate.RunTemplate(vars, gomplate.Template{Template: tpl.Message})
	if err != nil {
		return nil, fmt.Errorf("failed to render %s message: %w", event.Type, err)
	}
	return &models.Notification{
		RecipientID: *event.RecipientID,
		Type:        event.Type,
		Title:       title,
		Message:     message,
		Link:        vars["link"].(string),
	}, nil
}
