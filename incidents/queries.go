package incidents

import (
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/models"
)

// ListOverdue returns the open incidents that are past their deadline at ctx.Now().
func ListOverdue(ctx context.Context) ([]models.Incident, error) {
	now := ctx.Now()

	// the deadlines are applied in go so that IsOverdue stays the only rule
	var candidates []models.Incident
	if err := ctx.DB().
		Where("status IN ?", []models.IncidentStatus{models.IncidentStatusSubmitted, models.IncidentStatusUnderInvestigation}).
		Where("reported_date < ?", now.Add(-SubmittedDeadline)).
		Order("reported_date ASC").
		Find(&candidates).Error; err != nil {
		return nil, err
	}

	return lo.Filter(candidates, func(i models.Incident, _ int) bool {
		return IsOverdue(i, now)
	}), nil
}

// ListForUser returns the incidents a user reported or is assigned to.
func ListForUser(ctx context.Context, user uuid.UUID) ([]models.Incident, error) {
	var incidents []models.Incident
	err := ctx.DB().Where("reporter_id = ? OR assigned_to = ?", user, user).
		Order("reported_date DESC").Find(&incidents).Error
	return incidents, err
}

type Statistics struct {
	Total        int64            `json:"total"`
	ByStatus     map[string]int64 `json:"by_status"`
	BySeverity   map[string]int64 `json:"by_severity"`
	ByType       map[string]int64 `json:"by_type"`
	ByDepartment map[string]int64 `json:"by_department"`
}

func countBy(ctx context.Context, column string, scopes ...func(*gorm.DB) *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		Key   string
		Count int64
	}
	if err := ctx.DB().Model(&models.Incident{}).Scopes(scopes...).
		Select("COALESCE(" + column + ", '') AS key, count(*) AS count").
		Group(column).Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Key] = row.Count
	}
	return counts, nil
}

// GetStatistics counts incidents by status, severity, type and department.
func GetStatistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{}
	if err := ctx.DB().Model(&models.Incident{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	var err error
	if stats.ByStatus, err = countBy(ctx, "status"); err != nil {
		return nil, err
	}
	if stats.BySeverity, err = countBy(ctx, "severity"); err != nil {
		return nil, err
	}
	if stats.ByType, err = countBy(ctx, "type"); err != nil {
		return nil, err
	}
	if stats.ByDepartment, err = countBy(ctx, "department"); err != nil {
		return nil, err
	}
	return stats, nil
}

// Summaries reads the incident_summary view, most recently updated first.
func Summaries(ctx context.Context, statuses ...models.IncidentStatus) ([]models.IncidentSummary, error) {
	q := ctx.DB().Order("updated_at DESC")
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}

	var summaries []models.IncidentSummary
	return summaries, q.Find(&summaries).Error
}
