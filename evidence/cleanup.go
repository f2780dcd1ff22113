package evidence

import (
	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/models"
	"github.com/flanksource/hse/postq"
)

// EventBlobDelete is queued for every blob whose evidence row was deleted.
const EventBlobDelete = "evidence.delete"

// queueBlobDeletes must run in the transaction that deletes the rows, so
// the blobs are only removed once that transaction commits.
func queueBlobDeletes(ctx context.Context, paths ...string) error {
	for _, path := range paths {
		if _, err := postq.Enqueue(ctx, EventBlobDelete, map[string]string{"path": path}); err != nil {
			return err
		}
	}
	return nil
}

// NewBlobCleanup consumes evidence.delete events. A failed delete leaves the
// event on the queue to be retried.
func NewBlobCleanup() *postq.SyncEventConsumer {
	return &postq.SyncEventConsumer{
		WatchEvents: []string{EventBlobDelete},
		Consumers:   postq.SyncHandlers(deleteQueuedBlob),
	}
}

func deleteQueuedBlob(ctx context.Context, e models.Event) error {
	path := e.Properties["path"]
	if path == "" {
		return api.Errorf(api.EINVALID, "%s event %s has no path", e.Name, e.ID)
	}

	bucket, err := Bucket(ctx)
	if err != nil {
		return err
	}
	if err := deleteBlob(ctx, bucket, path); err != nil {
		return err
	}
	ctx.Debugf("deleted blob %s", path)
	return nil
}
