package incidents

import (
	"time"

	"gorm.io/gorm"

	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/models"
)

func reportedBetween(from, to time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("reported_date >= ? AND reported_date < ?", from, to)
	}
}

type DailyReport struct {
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	New      int64     `json:"new"`
	High     int64     `json:"high"`
	Critical int64     `json:"critical"`
	Overdue  int       `json:"overdue"`

	// Recent are the references of the newest incidents in the window, at most 10.
	Recent []string `json:"recent,omitempty"`
}

// GetDailyReport counts the incidents reported in [from, to) and the
// incidents overdue at ctx.Now().
func GetDailyReport(ctx context.Context, from, to time.Time) (*DailyReport, error) {
	var counts struct {
		NewIncidents int64
		High         int64
		Critical     int64
	}
	if err := ctx.DB().Model(&models.Incident{}).Scopes(reportedBetween(from, to)).
		Select(`count(*) AS new_incidents,
			count(*) FILTER (WHERE severity = ?) AS high,
			count(*) FILTER (WHERE severity = ?) AS critical`,
			models.SeverityHigh, models.SeverityCritical).
		Scan(&counts).Error; err != nil {
		return nil, ctx.Oops().Wrapf(err, "failed to count new incidents")
	}
	report := DailyReport{From: from, To: to, New: counts.NewIncidents, High: counts.High, Critical: counts.Critical}

	if err := ctx.DB().Model(&models.Incident{}).Scopes(reportedBetween(from, to)).
		Order("reported_date DESC").Limit(10).
		Pluck("reference", &report.Recent).Error; err != nil {
		return nil, err
	}

	overdue, err := ListOverdue(ctx)
	if err != nil {
		return nil, err
	}
	report.Overdue = len(overdue)
	return &report, nil
}

type WeeklySummary struct {
	From       time.Time        `json:"from"`
	To         time.Time        `json:"to"`
	Total      int64            `json:"total"`
	BySeverity map[string]int64 `json:"by_severity"`
	ByStatus   map[string]int64 `json:"by_status"`
}

// GetWeeklySummary breaks down the incidents reported in [from, to) by
// severity and status.
func GetWeeklySummary(ctx context.Context, from, to time.Time) (*WeeklySummary, error) {
	summary := WeeklySummary{From: from, To: to}
	if err := ctx.DB().Model(&models.Incident{}).Scopes(reportedBetween(from, to)).Count(&summary.Total).Error; err != nil {
		return nil, err
	}

	var err error
	if summary.BySeverity, err = countBy(ctx, "severity", reportedBetween(from, to)); err != nil {
		return nil, err
	}
	if summary.ByStatus, err = countBy(ctx, "status", reportedBetween(from, to)); err != nil {
		return nil, err
	}
	return &summary, nil
}

type SafetyMetrics struct {
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Incidents int64     `json:"incidents"`
	Injuries  int64     `json:"injuries"`
	DaysLost  int64     `json:"days_lost"`
	HoursLost int64     `json:"hours_lost"`
	WorkHours int       `json:"work_hours"`

	// LTIFR is the lost time injury frequency rate: injuries per million hours worked.
	LTIFR float64 `json:"ltifr"`
}

// GetSafetyMetrics computes the KPIs of incidents that happened in [from, to).
// An incident with a non empty injuries description counts as one injury.
func GetSafetyMetrics(ctx context.Context, from, to time.Time, workHours int) (*SafetyMetrics, error) {
	var sums struct {
		Incidents int64
		Injuries  int64
		DaysLost  int64
		HoursLost int64
	}
	if err := ctx.DB().Model(&models.Incident{}).
		Where("incident_date >= ? AND incident_date < ?", from, to).
		Select(`count(*) AS incidents,
			count(*) FILTER (WHERE COALESCE(injuries, '') <> '') AS injuries,
			COALESCE(sum(days_lost), 0) AS days_lost,
			COALESCE(sum(work_hours_lost), 0) AS hours_lost`).
		Scan(&sums).Error; err != nil {
		return nil, ctx.Oops().Wrapf(err, "failed to compute safety metrics")
	}

	metrics := SafetyMetrics{
		From:      from,
		To:        to,
		Incidents: sums.Incidents,
		Injuries:  sums.Injuries,
		DaysLost:  sums.DaysLost,
		HoursLost: sums.HoursLost,
		WorkHours: workHours,
	}
	if workHours > 0 {
		metrics.LTIFR = float64(metrics.Injuries) * 1_000_000 / float64(workHours)
	}
	return &metrics, nil
}
