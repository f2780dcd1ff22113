package postq

import (
	"container/ring"
	gocontext "context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/models"
)

// AsyncEventHandlerFunc processes a batch of events and returns the failed ones.
type AsyncEventHandlerFunc func(context.Context, models.Events) models.Events

// AsyncEventConsumer is meant for handlers that talk to the outside world
// (SMTP, brokers). The claim is committed together with the failed events
// being re-queued, handler side effects are not part of the transaction.
type AsyncEventConsumer struct {
	eventLog *ring.Ring

	// Name of the events in the push queue to watch for.
	WatchEvents []string

	// Number of events to be fetched and processed at a time.
	BatchSize int

	// An async event handler that consumes events.
	Consumer AsyncEventHandlerFunc

	// ConsumerOption is the configuration for the PGConsumer.
	ConsumerOption *ConsumerOption

	// EventFetcherOption contains configuration on how the events should be fetched.
	EventFetcherOption *EventFetcherOption
}

// RecordEvents keeps the last size fetched events for inspection.
func (t *AsyncEventConsumer) RecordEvents(size int) {
	t.eventLog = ring.New(size)
}

func (t AsyncEventConsumer) GetRecords() ([]models.Event, error) {
	if t.eventLog == nil {
		return nil, fmt.Errorf("event log is not initialized")
	}
	return getRecords(t.eventLog), nil
}

func (t *AsyncEventConsumer) Handle(ctx context.Context) (int, error) {
	ctx = ctx.WithName("postq")
	start := time.Now()

	var fetched int
	err := ctx.DB().Transaction(func(tx *gorm.DB) error {
		events, err := fetchEvents(ctx, tx, t.WatchEvents, t.BatchSize, t.EventFetcherOption)
		if err != nil {
			return fmt.Errorf("error fetching events: %w", err)
		}
		fetched = len(events)
		if fetched == 0 {
			return nil
		}
		t.eventLog = record(t.eventLog, events...)

		failed := t.Consumer(ctx.Wrap(gocontext.Background()), events)
		for _, e := range events {
			result := "success"
			if failed.Contains(e.ID) {
				result = "error"
			}
			ctx.Histogram("hse_event_queue_handled", context.LatencyBuckets, "event", e.Name, "result", result).Since(start)
		}

		if err := failed.Recreate(ctx, tx); err != nil {
			ctx.Errorf("error re-queueing %d failed events: %v", len(failed), err)
		}
		return nil
	})

	return fetched, err
}

func (t *AsyncEventConsumer) EventConsumer() (*PGConsumer, error) {
	return NewPGConsumer(t.Handle, t.ConsumerOption)
}
