package postq

import (
	"container/ring"

	"github.com/flanksource/hse/models"
)

// getRecords returns the events recorded in the ring, oldest first.
func getRecords(ringBuffer *ring.Ring) []models.Event {
	events := make([]models.Event, 0, ringBuffer.Len())
	ringBuffer.Do(func(v any) {
		if e, ok := v.(models.Event); ok {
			events = append(events, e)
		}
	})
	return events
}

func record(ringBuffer *ring.Ring, events ...models.Event) *ring.Ring {
	if ringBuffer == nil {
		return nil
	}
	for _, e := range events {
		ringBuffer.Value = e
		ringBuffer = ringBuffer.Next()
	}
	return ringBuffer
}
