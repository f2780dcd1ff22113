package postq

import (
	"errors"
	"time"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/onsi/gomega/gstruct"

	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/models"
)

func pending(name string) []models.Event {
	var events []models.Event
	Expect(DefaultContext.DB().Where("name = ?", name).Find(&events).Error).To(Succeed())
	return events
}

var noRetry = &ConsumerOption{ErrorHandler: func(ctx context.Context, e error) bool { return false }}

var _ = ginkgo.Describe("Enqueue", func() {
	ginkgo.It("reuses a pending task with the same payload", func() {
		first, err := Enqueue(DefaultContext, "test.enqueue", map[string]string{"id": "1"})
		Expect(err).ToNot(HaveOccurred())

		second, err := Enqueue(DefaultContext, "test.enqueue", map[string]string{"id": "1"})
		Expect(err).ToNot(HaveOccurred())
		Expect(second).To(Equal(first))

		third, err := Enqueue(DefaultContext, "test.enqueue", map[string]string{"id": "2"})
		Expect(err).ToNot(HaveOccurred())
		Expect(third).ToNot(Equal(first))

		Expect(pending("test.enqueue")).To(HaveLen(2))
	})
})

var _ = ginkgo.Describe("SyncEventConsumer", ginkgo.Ordered, func() {
	var handled []string
	var fail bool

	consumer := &SyncEventConsumer{
		WatchEvents: []string{"test.sync"},
		Consumers: SyncHandlers(func(ctx context.Context, e models.Event) error {
			if fail {
				return errors.New("smtp unreachable")
			}
			handled = append(handled, e.Properties["id"])
			return nil
		}),
		ConsumerOption: noRetry,
	}
	consumer.RecordEvents(5)

	ginkgo.It("consumes and removes events", func() {
		for _, id := range []string{"a", "b"} {
			_, err := Enqueue(DefaultContext, "test.sync", map[string]string{"id": id})
			Expect(err).ToNot(HaveOccurred())
		}

		c, err := consumer.EventConsumer()
		Expect(err).ToNot(HaveOccurred())
		c.ConsumeUntilEmpty(DefaultContext)

		Expect(handled).To(ConsistOf("a", "b"))
		Expect(pending("test.sync")).To(BeEmpty())

		records, err := consumer.GetRecords()
		Expect(err).ToNot(HaveOccurred())
		Expect(records).To(HaveLen(2))
	})

	ginkgo.It("keeps failed events with the error and attempt count", func() {
		fail = true
		_, err := Enqueue(DefaultContext, "test.sync", map[string]string{"id": "c"})
		Expect(err).ToNot(HaveOccurred())

		count, err := consumer.Handle(DefaultContext)
		Expect(count).To(Equal(1))
		Expect(err).To(MatchError("smtp unreachable"))

		events := pending("test.sync")
		Expect(events).To(HaveLen(1))
		Expect(events[0].Attempts).To(Equal(1))
		Expect(*events[0].Error).To(Equal("smtp unreachable"))
		Expect(events[0].LastAttempt).ToNot(BeNil())
	})

	ginkgo.It("waits for the backoff before retrying", func() {
		count, err := consumer.Handle(DefaultContext)
		Expect(err).ToNot(HaveOccurred())
		Expect(count).To(BeZero())
	})

	ginkgo.It("gives up after the maximum attempts", func() {
		fail = false
		Expect(DefaultContext.DB().Exec("UPDATE event_queue SET attempts = 3, last_attempt = NOW() - INTERVAL '1 day' WHERE name = 'test.sync'").Error).To(Succeed())

		count, err := consumer.Handle(DefaultContext)
		Expect(err).ToNot(HaveOccurred())
		Expect(count).To(BeZero())

		Expect(DefaultContext.DB().Exec("UPDATE event_queue SET attempts = 2 WHERE name = 'test.sync'").Error).To(Succeed())
		count, err = consumer.Handle(DefaultContext)
		Expect(err).ToNot(HaveOccurred())
		Expect(count).To(Equal(1))
		Expect(handled).To(ContainElement("c"))
	})
})

var _ = ginkgo.Describe("AsyncEventConsumer", func() {
	ginkgo.It("re-queues only the failed events", func() {
		for _, id := range []string{"ok", "bad"} {
			_, err := Enqueue(DefaultContext, "test.async", map[string]string{"id": id})
			Expect(err).ToNot(HaveOccurred())
		}

		consumer := &AsyncEventConsumer{
			WatchEvents: []string{"test.async"},
			BatchSize:   10,
			Consumer: func(ctx context.Context, events models.Events) models.Events {
				var failed models.Events
				for _, e := range events {
					if e.Properties["id"] == "bad" {
						e.SetError("rejected")
						failed = append(failed, e)
					}
				}
				return failed
			},
		}

		count, err := consumer.Handle(DefaultContext)
		Expect(err).ToNot(HaveOccurred())
		Expect(count).To(Equal(2))

		events := pending("test.async")
		Expect(events).To(HaveLen(1))
		Expect(events[0].Properties["id"]).To(Equal("bad"))
		Expect(events[0].Attempts).To(Equal(1))
		Expect(events[0].LastAttempt).To(PointTo(BeTemporally("~", time.Now(), time.Minute)))
	})
})

var _ = ginkgo.Describe("Summary", func() {
	ginkgo.It("counts pending and failed events per name", func() {
		_, err := Enqueue(DefaultContext, "test.summary", map[string]string{"id": "1"})
		Expect(err).ToNot(HaveOccurred())
		_, err = Enqueue(DefaultContext, "test.summary", map[string]string{"id": "2"})
		Expect(err).ToNot(HaveOccurred())
		Expect(DefaultContext.DB().Model(&models.Event{}).
			Where("name = ? AND properties->>'id' = ?", "test.summary", "2").
			Updates(map[string]any{"attempts": 1, "last_attempt": time.Now()}).Error).To(Succeed())

		summary, err := Summary(DefaultContext)
		Expect(err).ToNot(HaveOccurred())

		var found *QueueSummary
		for i := range summary {
			if summary[i].Name == "test.summary" {
				found = &summary[i]
			}
		}
		Expect(found).ToNot(BeNil())
		Expect(found.Pending).To(Equal(int64(1)))
		Expect(found.Failed).To(Equal(int64(1)))
		Expect(found.OldestPending).ToNot(BeNil())
		Expect(found.LastFailure).ToNot(BeNil())
	})
})
