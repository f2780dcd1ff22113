package job

import (
	"time"

	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/models"
)

// CleanupStaleHistory deletes job runs older than age, for one job or all when name is empty.
func CleanupStaleHistory(ctx context.Context, age time.Duration, name string) error {
	query := ctx.DB().Where("time_start <= ?", time.Now().Add(-age))
	if name != "" {
		query = query.Where("name = ?", name)
	}
	res := query.Delete(&models.JobHistory{})
	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected > 0 {
		ctx.Debugf("cleaned up %d stale job history rows", res.RowsAffected)
	}
	return nil
}

// LatestHistory returns the most recent recorded run of each job.
func LatestHistory(ctx context.Context) ([]models.JobHistory, error) {
	var rows []models.JobHistory
	err := ctx.DB().Raw(`SELECT DISTINCT ON (name) * FROM job_history ORDER BY name, time_start DESC`).Scan(&rows).Error
	return rows, err
}
