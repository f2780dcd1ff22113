// Package postq is a small task queue on top of the event_queue table.
// Producers Enqueue rows; consumers claim them with DELETE ... FOR UPDATE
// SKIP LOCKED and are woken by pg_notify('event_queue_updates', name).
package postq

import (
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/samber/oops"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/models"
	"github.com/flanksource/hse/types"
)

// NotifyChannel is the postgres channel the event_queue insert trigger notifies on.
const NotifyChannel = "event_queue_updates"

type EventFetcherOption struct {
	// MaxAttempts is the number of times an event is attempted to process
	// default: 3
	MaxAttempts int

	// BaseDelay is the base delay between retries
	// default: 60 seconds
	BaseDelay int

	// Exponent is the exponent of the base delay
	// default: 5 (along with baseDelay = 60, the retries are 1, 32 (in minutes))
	Exponent int
}

// Enqueue inserts a task and returns its id. An identical task (same name
// and payload) that is still pending is reused instead of duplicated.
func Enqueue(ctx context.Context, name string, payload map[string]string) (uuid.UUID, error) {
	event := models.Event{
		Name:       name,
		Properties: types.JSONStringMap(payload),
	}

	tx := ctx.DB().Clauses(clause.OnConflict{
		Columns:   models.EventQueueUniqueConstraint(),
		DoNothing: true,
	}).Create(&event)
	if tx.Error != nil {
		return uuid.Nil, ctx.Oops().Wrapf(tx.Error, "failed to enqueue %s", name)
	}

	if tx.RowsAffected == 0 {
		var existing models.Event
		if err := ctx.DB().
			Where("name = ? AND md5(properties::text) = md5(?::jsonb::text)", name, event.Properties).
			First(&existing).Error; err != nil {
			return uuid.Nil, ctx.Oops().Wrapf(err, "failed to find pending %s", name)
		}
		return existing.ID, nil
	}

	return event.ID, nil
}

// fetchEvents claims up to batchSize events from the `event_queue` table.
func fetchEvents(ctx context.Context, tx *gorm.DB, watchEvents []string, batchSize int, opts *EventFetcherOption) ([]models.Event, error) {
	if batchSize == 0 {
		batchSize = 1
	}

	const selectEventsQuery = `
		WITH to_delete AS (
			SELECT id FROM event_queue
			WHERE
				(delay IS NULL OR created_at + (delay * INTERVAL '1 second' / 1000000000) <= NOW()) AND
				attempts < @MaxAttempts AND
				name = ANY(@Events) AND
				(last_attempt IS NULL OR last_attempt <= NOW() - INTERVAL '1 SECOND' * @BaseDelay * POWER(attempts, @Exponent))
			ORDER BY priority DESC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT @BatchSize
		)
		DELETE FROM event_queue
		WHERE id IN (SELECT id FROM to_delete)
		RETURNING *
	`

	type EventArgs struct {
		Events      pq.StringArray
		BatchSize   int
		MaxAttempts int
		BaseDelay   int
		Exponent    int
	}

	args := EventArgs{
		Events:      watchEvents,
		BatchSize:   batchSize,
		MaxAttempts: 3,
		BaseDelay:   60,
		Exponent:    5,
	}

	if opts != nil {
		if opts.MaxAttempts > 0 {
			args.MaxAttempts = opts.MaxAttempts
		}
		if opts.BaseDelay > 0 {
			args.BaseDelay = opts.BaseDelay
		}
		if opts.Exponent > 0 {
			args.Exponent = opts.Exponent
		}
	}

	var events []models.Event
	if err := tx.Raw(selectEventsQuery, args).Scan(&events).Error; err != nil {
		return nil, oops.Tags("db").Wrap(err)
	}

	if len(events) > 0 {
		ctx.Tracef("queue=%s fetched=%d", strings.Join(watchEvents, ","), len(events))
	}

	return events, nil
}
