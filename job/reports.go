package job

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/incidents"
	"github.com/flanksource/hse/models"
	"github.com/flanksource/hse/notifications"
	"github.com/flanksource/hse/types"
)

// DefaultReportWorkHours is the number of hours worked per month LTIFR is
// computed against, unless reports.work_hours is set.
const DefaultReportWorkHours = 200_000

const reportDateFormat = "2006-01-02"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func admins(ctx context.Context) ([]models.Person, error) {
	var people []models.Person
	err := ctx.DB().Where("is_admin").Order("name").Find(&people).Error
	return people, err
}

// deliver records report in the run's details and sends it as a SYSTEM
// notification to every admin.
func deliver(ctx JobRuntime, title, message string, report any) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return err
	}
	var details types.JSONMap
	if err := json.Unmarshal(raw, &details); err != nil {
		return err
	}
	ctx.History.Details = details

	recipients, err := admins(ctx.Context)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		ctx.Warnf("nobody to send %q to", title)
		return nil
	}

	var events []models.DomainEvent
	for _, person := range recipients {
		events = append(events, models.DomainEvent{
			Type:        models.NotificationSystem,
			EntityID:    uuid.Nil,
			Title:       title,
			RecipientID: &person.ID,
			Message:     message,
		})
		ctx.History.IncrSuccess()
	}
	notifications.Publish(ctx.Context, events...)
	return nil
}

func breakdown(counts map[string]int64, keys ...string) string {
	var lines []string
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("  %s: %d", key, counts[key]))
	}
	return strings.Join(lines, "\n")
}

// DailyIncidentReport summarises the incidents reported in the last 24 hours
// for the admins.
func DailyIncidentReport(ctx JobRuntime) error {
	now := ctx.Now()
	report, err := incidents.GetDailyReport(ctx.Context, now.Add(-24*time.Hour), now)
	if err != nil {
		return err
	}

	message := fmt.Sprintf("New incidents: %d\n  High severity: %d\n  Critical severity: %d\nOverdue incidents: %d",
		report.New, report.High, report.Critical, report.Overdue)
	if len(report.Recent) > 0 {
		message += "\nRecent: " + strings.Join(report.Recent, ", ")
	}
	return deliver(ctx, "Daily incident report "+now.Format(reportDateFormat), message, report)
}

// WeeklySummary breaks down the incidents reported in the last 7 days by
// severity and status for the admins.
func WeeklySummary(ctx JobRuntime) error {
	now := ctx.Now()
	from := now.AddDate(0, 0, -7)
	summary, err := incidents.GetWeeklySummary(ctx.Context, from, now)
	if err != nil {
		return err
	}

	severities := []string{
		string(models.SeverityCritical), string(models.SeverityHigh),
		string(models.SeverityMedium), string(models.SeverityLow),
	}
	var statuses []string
	for status := range summary.ByStatus {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)

	message := fmt.Sprintf("Total incidents: %d\nBy severity:\n%s\nBy status:\n%s",
		summary.Total, breakdown(summary.BySeverity, severities...), breakdown(summary.ByStatus, statuses...))
	title := fmt.Sprintf("Weekly incident summary %s to %s", from.Format(reportDateFormat), now.Format(reportDateFormat))
	return deliver(ctx, title, message, summary)
}

// previousMonth returns the calendar month before now as [from, to).
func previousMonth(now time.Time) (time.Time, time.Time) {
	to := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return to.AddDate(0, -1, 0), to
}

// SafetyMetrics computes last month's safety KPIs for the admins.
func SafetyMetrics(ctx JobRuntime) error {
	from, to := previousMonth(ctx.Now())
	workHours := ctx.Properties().Int(context.PropertyReportWorkHours, DefaultReportWorkHours)

	metrics, err := incidents.GetSafetyMetrics(ctx.Context, from, to, workHours)
	if err != nil {
		return err
	}

	message := fmt.Sprintf("Incidents: %d\nInjuries: %d\nDays lost: %d\nHours lost: %d\nLTIFR: %.2f",
		metrics.Incidents, metrics.Injuries, metrics.DaysLost, metrics.HoursLost, metrics.LTIFR)
	return deliver(ctx, "Safety metrics "+from.Format("January 2006"), message, metrics)
}
