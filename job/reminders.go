package job

import (
	"fmt"
	"time"

	"github.com/flanksource/hse/capas"
	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/incidents"
	"github.com/flanksource/hse/models"
	"github.com/flanksource/hse/notifications"
)

const (
	DefaultCAPADueSoon        = 72 * time.Hour
	DefaultCriticalEscalation = 4 * time.Hour
)

// CAPAOverdueReminders raises CAPA_OVERDUE to the person responsible for
// each overdue CAPA. CAPAs nobody is responsible for are skipped.
func CAPAOverdueReminders(ctx JobRuntime) error {
	overdue, err := capas.ListOverdue(ctx.Context)
	if err != nil {
		return err
	}

	var events []models.DomainEvent
	for _, c := range overdue {
		if c.ResponsiblePersonID == nil {
			ctx.Logger.WithValues(models.ErrorContext(c)...).Debugf("overdue CAPA has no responsible person")
			continue
		}
		events = append(events, capas.Event(models.NotificationCAPAOverdue, c, c.ResponsiblePersonID, nil))
		ctx.History.IncrSuccess()
	}

	notifications.Publish(ctx.Context, events...)
	return nil
}

// CAPADueSoonReminders raises CAPA_DUE_SOON for open CAPAs due within the
// capa.due_soon window.
func CAPADueSoonReminders(ctx JobRuntime) error {
	within := ctx.Properties().Duration(context.PropertyCAPADueSoon, DefaultCAPADueSoon)
	soon, err := capas.ListDueSoon(ctx.Context, within)
	if err != nil {
		return err
	}

	var events []models.DomainEvent
	for _, c := range soon {
		if c.ResponsiblePersonID == nil {
			continue
		}
		events = append(events, capas.Event(models.NotificationCAPADueSoon, c, c.ResponsiblePersonID, nil))
		ctx.History.IncrSuccess()
	}

	notifications.Publish(ctx.Context, events...)
	return nil
}

// IncidentEscalation notifies the assignee of every CRITICAL incident that
// has been SUBMITTED for longer than incident.escalation.critical.
// Open critical incidents that are still unassigned, whatever their status,
// have nobody to escalate to and are counted as errors.
func IncidentEscalation(ctx JobRuntime) error {
	after := ctx.Properties().Duration(context.PropertyCriticalEscalation, DefaultCriticalEscalation)
	now := ctx.Now()

	var stale []models.Incident
	if err := ctx.DB().
		Where("severity = ? AND status <> ?", models.SeverityCritical, models.IncidentStatusClosed).
		Where("(status = ? OR assigned_to IS NULL)", models.IncidentStatusSubmitted).
		Where("reported_date < ?", now.Add(-after)).
		Order("reported_date ASC").
		Find(&stale).Error; err != nil {
		return err
	}

	var events []models.DomainEvent
	for _, i := range stale {
		if i.AssignedTo == nil {
			ctx.Logger.WithValues(models.ErrorContext(i)...).Warnf("critical incident has nobody to escalate to")
			ctx.History.AddError(fmt.Sprintf("%s is critical, %s and unassigned", i.Reference, i.Status))
			continue
		}
		waiting := now.Sub(i.ReportedDate).Truncate(time.Minute)
		events = append(events, models.DomainEvent{
			Type:        models.NotificationSystem,
			EntityID:    i.ID,
			Reference:   i.Reference,
			Title:       "Critical incident awaiting investigation",
			RecipientID: i.AssignedTo,
			Severity:    string(i.Severity),
			Message:     fmt.Sprintf("%s has been submitted for %s without an investigation: %s", i.Reference, waiting, i.Title),
		})
		ctx.History.IncrSuccess()
	}

	if len(stale) > 0 {
		ctx.Warnf("escalating %d critical incidents", len(events))
	}
	notifications.Publish(ctx.Context, events...)
	return nil
}

// IncidentOverdueReminders reminds assignees of incidents past their
// submission or investigation deadline.
func IncidentOverdueReminders(ctx JobRuntime) error {
	overdue, err := incidents.ListOverdue(ctx.Context)
	if err != nil {
		return err
	}

	var events []models.DomainEvent
	for _, i := range overdue {
		if i.AssignedTo == nil {
			continue
		}
		events = append(events, models.DomainEvent{
			Type:        models.NotificationSystem,
			EntityID:    i.ID,
			Reference:   i.Reference,
			Title:       "Incident overdue",
			RecipientID: i.AssignedTo,
			Severity:    string(i.Severity),
			Message:     fmt.Sprintf("%s is still %s: %s", i.Reference, i.Status, i.Title),
		})
		ctx.History.IncrSuccess()
	}

	notifications.Publish(ctx.Context, events...)
	return nil
}
