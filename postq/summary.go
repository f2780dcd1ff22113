package postq

import (
	"time"

	"github.com/flanksource/hse/context"
)

type QueueSummary struct {
	Name          string     `json:"name"`
	Pending       int64      `json:"pending"`
	Failed        int64      `json:"failed"`
	OldestPending *time.Time `json:"oldest_pending,omitempty"`
	LastFailure   *time.Time `json:"last_failure,omitempty"`
}

// Summary counts the queued events per name. Failed events are the ones
// waiting for a retry.
func Summary(ctx context.Context) ([]QueueSummary, error) {
	var rows []QueueSummary
	err := ctx.DB().Raw(`
		SELECT
			name,
			COUNT(*) FILTER (WHERE attempts = 0) AS pending,
			COUNT(*) FILTER (WHERE attempts > 0) AS failed,
			MIN(created_at) FILTER (WHERE attempts = 0) AS oldest_pending,
			MAX(last_attempt) FILTER (WHERE attempts > 0) AS last_failure
		FROM event_queue
		GROUP BY name
		ORDER BY name`).Scan(&rows).Error
	return rows, err
}
