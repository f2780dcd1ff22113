package notifications

import (
	gocontext "context"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/models"
	"github.com/flanksource/hse/postq"
	"github.com/flanksource/hse/shutdown"
)

type pendingEvent struct {
	ctx   context.Context
	event models.DomainEvent
}

// Publisher hands domain events to the task queue without blocking the
// caller. Enqueue failures are logged and never returned.
type Publisher struct {
	queue   chan pendingEvent
	pending sync.WaitGroup
	retries uint64

	// mu orders pending.Add against Wait; closed is set once Close starts.
	mu     sync.RWMutex
	closed bool
}

func NewPublisher(size int) *Publisher {
	if size <= 0 {
		size = 1
	}
	p := &Publisher{
		queue:   make(chan pendingEvent, size),
		retries: 3,
	}
	go p.run()
	return p
}

func (p *Publisher) run() {
	for item := range p.queue {
		p.enqueue(item)
		p.pending.Done()
	}
}

// Publish must only be called once the transaction that produced the
// events has committed. After Close the events are enqueued inline.
func (p *Publisher) Publish(ctx context.Context, events ...models.DomainEvent) {
	// detach from the request so a cancelled caller does not drop events
	detached := ctx.Wrap(gocontext.Background())

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		for _, event := range events {
			p.enqueue(pendingEvent{ctx: detached, event: event})
		}
		return
	}
	defer p.mu.RUnlock()

	for _, event := range events {
		p.pending.Add(1)
		item := pendingEvent{ctx: detached, event: event}
		select {
		case p.queue <- item:
		default:
			ctx.Debugf("publisher buffer full, enqueueing %s inline", event.Type)
			go func() {
				defer p.pending.Done()
				p.enqueue(item)
			}()
		}
	}
}

func (p *Publisher) enqueue(item pendingEvent) {
	name := item.event.Type.EventName()
	backoff := retry.WithMaxRetries(p.retries, retry.NewExponential(50*time.Millisecond))
	err := retry.Do(item.ctx, backoff, func(_ gocontext.Context) error {
		if _, err := postq.Enqueue(item.ctx, name, item.event.Properties()); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		item.ctx.Errorf("failed to enqueue %s for %s: %v", name, item.event.EntityID, err)
	}
}

// Flush blocks until every published event has been enqueued or dropped.
// Publish calls wait for Flush to return.
func (p *Publisher) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending.Wait()
}

// Close drains the buffer and stops the background worker.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.pending.Wait()
	close(p.queue)
}

var (
	defaultPublisher *Publisher
	publisherOnce    sync.Once
)

func getPublisher(ctx context.Context) *Publisher {
	publisherOnce.Do(func() {
		defaultPublisher = NewPublisher(ctx.Properties().Int(context.PropertyPublisherBuffer, 1000))
		shutdown.AddHookWithPriority("notification publisher", shutdown.PriorityJobs, defaultPublisher.Close)
	})
	return defaultPublisher
}

// Publish queues events on the process wide publisher.
func Publish(ctx context.Context, events ...models.DomainEvent) {
	if len(events) == 0 {
		return
	}
	getPublisher(ctx).Publish(ctx, events...)
}

// Flush waits for the process wide publisher to drain.
func Flush() {
	if defaultPublisher != nil {
		defaultPublisher.Flush()
	}
}
