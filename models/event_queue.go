package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/flanksource/hse/types"
)

// Event is a pending task in event_queue. Name selects the consumer,
// Properties carry the payload.
type Event struct {
	ID          uuid.UUID           `gorm:"default:gen_random_uuid()"`
	Name        string              `json:"name"`
	CreatedAt   time.Time           `json:"created_at"`
	Properties  types.JSONStringMap `json:"properties"`
	Delay       *time.Duration      `json:"delay,omitempty"`
	Error       *string             `json:"error,omitempty"`
	Attempts    int                 `json:"attempts"`
	LastAttempt *time.Time          `json:"last_attempt"`
	Priority    int                 `json:"priority"`
}

func (Event) TableName() string {
	return "event_queue"
}

func (t *Event) SetError(err string) {
	t.Error = &err
}

type Events []Event

// Recreate puts failed events back on the queue with one more attempt.
func (events Events) Recreate(ctx context.Context, tx *gorm.DB) error {
	if len(events) == 0 {
		return nil
	}

	now := time.Now()
	var batch Events
	for _, event := range events {
		batch = append(batch, Event{
			Name:        event.Name,
			Properties:  event.Properties,
			Error:       event.Error,
			Attempts:    event.Attempts + 1,
			LastAttempt: &now,
			Priority:    event.Priority - 1,
		})
	}

	// an identical event published in the meantime already covers the retry
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: EventQueueUniqueConstraint(), DoNothing: true}).
		CreateInBatches(batch, 100).Error
}

func (events Events) Contains(id uuid.UUID) bool {
	for _, e := range events {
		if e.ID == id {
			return true
		}
	}
	return false
}

func EventQueueUniqueConstraint() []clause.Column {
	return []clause.Column{
		{Name: "name"},
		{Name: "md5(properties::text)", Raw: true},
	}
}

type EventQueueSummary struct {
	Name          string     `json:"name"`
	Pending       int64      `json:"pending"`
	Failed        int64      `json:"failed"`
	AvgAttempts   int64      `json:"average_attempts"`
	FirstFailure  *time.Time `json:"first_failure,omitempty"`
	LastFailure   *time.Time `json:"last_failure,omitempty"`
	MostCommonErr string     `json:"most_common_error,omitempty"`
}

func (t *EventQueueSummary) TableName() string {
	return "event_queue_summary"
}
