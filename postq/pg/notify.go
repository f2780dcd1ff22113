package pg

import (
	gocontext "context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/flanksource/hse/context"
)

var (
	DBReconnectMaxDuration         = time.Minute * 5
	DBReconnectBackoffBaseDuration = time.Second
)

// Listen forwards every NOTIFY payload on channel to listener over a
// dedicated pool connection, reconnecting with exponential backoff.
// It blocks until ctx is cancelled.
func Listen(ctx context.Context, channel string, listener chan<- string) error {
	ctx = ctx.WithName("Listen")

	backoff := retry.WithMaxDuration(DBReconnectMaxDuration, retry.NewExponential(DBReconnectBackoffBaseDuration))
	return retry.Do(ctx, backoff, func(_ gocontext.Context) error {
		if err := listenLoop(ctx, channel, listener); err != nil {
			ctx.Debugf("listen loop failed, retrying: %v", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

func listenLoop(ctx context.Context, channel string, listener chan<- string) error {
	conn, err := ctx.Pool().Acquire(ctx)
	if err != nil {
		return fmt.Errorf("error acquiring database connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, fmt.Sprintf("LISTEN %s", channel)); err != nil {
		return fmt.Errorf("error listening to channel %s: %w", channel, err)
	}
	ctx.Debugf("listening on %s", channel)

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("error waiting for notification: %w", err)
		}

		select {
		case listener <- notification.Payload:
		case <-ctx.Done():
			return nil
		}
	}
}
