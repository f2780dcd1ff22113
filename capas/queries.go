package capas

import (
	"time"

	"github.com/WinterYukky/gorm-extra-clause-plugin/exclause"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/models"
)

var openStatuses = []models.CAPAStatus{models.CAPAStatusOpen, models.CAPAStatusInProgress}

// ListOverdue returns open CAPAs whose due date is before today, oldest first.
func ListOverdue(ctx context.Context) ([]models.CAPA, error) {
	today := ctx.Today()

	var candidates []models.CAPA
	if err := ctx.DB().
		Where("status IN ?", openStatuses).
		Where("due_date < ?", today).
		Order("due_date ASC, priority DESC").
		Find(&candidates).Error; err != nil {
		return nil, err
	}

	return lo.Filter(candidates, func(c models.CAPA, _ int) bool {
		return IsOverdue(c, today)
	}), nil
}

// ListDueSoon returns open CAPAs due between today and today+within, inclusive.
func ListDueSoon(ctx context.Context, within time.Duration) ([]models.CAPA, error) {
	today := ctx.Today()

	var capas []models.CAPA
	err := ctx.DB().
		Where("status IN ?", openStatuses).
		Where("due_date >= ? AND due_date <= ?", today, today.Add(within)).
		Order("due_date ASC, priority DESC").
		Find(&capas).Error
	return capas, err
}

func ListForIncident(ctx context.Context, incidentID uuid.UUID) ([]models.CAPA, error) {
	var capas []models.CAPA
	err := ctx.DB().Where("incident_id = ?", incidentID).Order("reference ASC").Find(&capas).Error
	return capas, err
}

// ListForUser returns the CAPAs a user is responsible for.
func ListForUser(ctx context.Context, user uuid.UUID) ([]models.CAPA, error) {
	var capas []models.CAPA
	err := ctx.DB().Where("responsible_person_id = ?", user).Order("due_date ASC").Find(&capas).Error
	return capas, err
}

type Statistics struct {
	Total     int64 `json:"total"`
	Open      int64 `json:"open"`
	Overdue   int64 `json:"overdue"`
	DueSoon   int64 `json:"due_soon"`
	Completed int64 `json:"completed"`
	Verified  int64 `json:"verified"`
}

// GetStatistics counts the CAPA backlog at ctx.Today(). DueSoon uses the same
// window as ListDueSoon.
func GetStatistics(ctx context.Context, within time.Duration) (*Statistics, error) {
	today := ctx.Today()

	backlog := exclause.NewWith("backlog", ctx.DB().Model(&models.CAPA{}).
		Select("status, due_date, status IN ? AS is_open", openStatuses))

	var stats Statistics
	err := ctx.DB().Clauses(backlog).Table("backlog").Select(`count(*) AS total,
		count(*) FILTER (WHERE is_open) AS open,
		count(*) FILTER (WHERE is_open AND due_date < ?) AS overdue,
		count(*) FILTER (WHERE is_open AND due_date >= ? AND due_date <= ?) AS due_soon,
		count(*) FILTER (WHERE status = ?) AS completed,
		count(*) FILTER (WHERE status IN ?) AS verified`,
		today, today, today.Add(within), models.CAPAStatusCompleted,
		[]models.CAPAStatus{models.CAPAStatusVerified, models.CAPAStatusClosed},
	).Scan(&stats).Error
	if err != nil {
		return nil, ctx.Oops().Wrapf(err, "failed to count capas")
	}
	return &stats, nil
}
