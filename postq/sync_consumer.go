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

// SyncEventHandlerFunc processes a single event and ONLY makes db changes.
type SyncEventHandlerFunc func(context.Context, models.Event) error

type SyncEventConsumer struct {
	eventLog *ring.Ring

	// Name of the events in the push queue to watch for.
	WatchEvents []string

	// Handlers run one after another; all must succeed or the event is
	// marked as failed and retried later.
	Consumers []SyncEventHandlerFunc

	// ConsumerOption is the configuration for the PGConsumer.
	ConsumerOption *ConsumerOption

	// EventFetcherOption contains configuration on how the events should be fetched.
	EventFetchOption *EventFetcherOption
}

// RecordEvents keeps the last size fetched events for inspection.
func (t *SyncEventConsumer) RecordEvents(size int) {
	t.eventLog = ring.New(size)
}

func (t SyncEventConsumer) GetRecords() ([]models.Event, error) {
	if t.eventLog == nil {
		return nil, fmt.Errorf("event log is not initialized")
	}
	return getRecords(t.eventLog), nil
}

func (t *SyncEventConsumer) EventConsumer() (*PGConsumer, error) {
	return NewPGConsumer(t.Handle, t.ConsumerOption)
}

func (t *SyncEventConsumer) Handle(ctx context.Context) (int, error) {
	start := time.Now()
	event, err := t.consumeEvent(ctx)
	if event == nil {
		return 0, err
	}

	result := "success"
	if err != nil {
		result = "error"
		event.Attempts++
		event.SetError(err.Error())
		const query = `UPDATE event_queue SET error=$1, attempts=$2, last_attempt=NOW() WHERE id=$3`
		if _, err := ctx.Pool().Exec(ctx, query, event.Error, event.Attempts, event.ID); err != nil {
			ctx.Debugf("error saving event attempt updates to event_queue: %v", err)
		}
	}

	ctx.Histogram("hse_event_queue_handled", context.LatencyBuckets, "event", event.Name, "result", result).Since(start)
	return 1, err
}

// consumeEvent claims a single event and runs every handler inside the
// claiming transaction, so a failure leaves the event on the queue.
func (t *SyncEventConsumer) consumeEvent(ctx context.Context) (*models.Event, error) {
	ctx = ctx.WithName("postq")

	var event *models.Event
	err := ctx.DB().Transaction(func(tx *gorm.DB) error {
		events, err := fetchEvents(ctx, tx, t.WatchEvents, 1, t.EventFetchOption)
		if err != nil {
			return fmt.Errorf("error fetching events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		event = &events[0]
		t.eventLog = record(t.eventLog, *event)

		txCtx := ctx.Wrap(gocontext.Background()).WithValue("db", tx)
		for _, handler := range t.Consumers {
			if err := handler(txCtx, *event); err != nil {
				return err
			}
		}
		return nil
	})

	return event, err
}

// SyncHandlers converts the given user defined handlers into sync event handlers.
func SyncHandlers(fn ...func(ctx context.Context, e models.Event) error) []SyncEventHandlerFunc {
	var syncHandlers []SyncEventHandlerFunc
	for i := range fn {
		syncHandlers = append(syncHandlers, fn[i])
	}
	return syncHandlers
}
