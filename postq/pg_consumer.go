package postq

import (
	"fmt"
	"time"

	"github.com/flanksource/hse/context"
)

type ConsumerFunc func(ctx context.Context) (count int, err error)

// PGConsumer runs a ConsumerFunc whenever postgres notifies about new
// events, and on a timer as a fallback for missed notifications.
type PGConsumer struct {
	numConsumers    int
	pgNotifyTimeout time.Duration
	consumerFunc    ConsumerFunc
	errorHandler    func(ctx context.Context, e error) bool
}

type ConsumerOption struct {
	// Number of concurrent consumers.
	// 	default: 1
	NumConsumers int

	// Timeout is the timeout to call the consumer func in case no pg notification is received.
	// 	default: 1 minute
	Timeout time.Duration

	// ErrorHandler returns whether to keep consuming after an error.
	// 	default: sleep for 1s and retry.
	ErrorHandler func(ctx context.Context, e error) bool
}

func NewPGConsumer(consumerFunc ConsumerFunc, opt *ConsumerOption) (*PGConsumer, error) {
	if consumerFunc == nil {
		return nil, fmt.Errorf("consumer func cannot be nil")
	}

	ec := &PGConsumer{
		numConsumers:    1,
		consumerFunc:    consumerFunc,
		pgNotifyTimeout: time.Minute,
		errorHandler:    defaultErrorHandler,
	}

	if opt != nil {
		if opt.Timeout != 0 {
			ec.pgNotifyTimeout = opt.Timeout
		}
		if opt.NumConsumers > 0 {
			ec.numConsumers = opt.NumConsumers
		}
		if opt.ErrorHandler != nil {
			ec.errorHandler = opt.ErrorHandler
		}
	}

	return ec, nil
}

// ConsumeUntilEmpty consumes events in a loop until the event queue is empty.
func (t *PGConsumer) ConsumeUntilEmpty(ctx context.Context) {
	for ctx.Err() == nil {
		count, err := t.consumerFunc(ctx)
		if err != nil {
			if !t.errorHandler(ctx, err) {
				return
			}
		} else if count == 0 {
			return
		}
	}
}

// Listen starts the consumers in the background until ctx is cancelled.
func (t *PGConsumer) Listen(ctx context.Context, pgNotify <-chan string) {
	for i := 0; i < t.numConsumers; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-pgNotify:
					t.ConsumeUntilEmpty(ctx)
				case <-time.After(t.pgNotifyTimeout):
					t.ConsumeUntilEmpty(ctx)
				}
			}
		}()
	}
}

func defaultErrorHandler(ctx context.Context, e error) bool {
	ctx.Debugf("consumer error: %v", e)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(time.Second):
		return true
	}
}
