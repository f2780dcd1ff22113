package notifications

import (
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm/clause"

	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/models"
)

// Dispatch renders the event and persists the resulting notification.
// Events are not deduplicated: dispatching the same event twice creates two
// notifications.
func Dispatch(ctx context.Context, event models.DomainEvent) (*models.Notification, error) {
	notification, err := Render(event)
	if err != nil {
		return nil, err
	} else if notification == nil {
		ctx.Tracef("skipping %s for %s: no recipient", event.Type, event.EntityID)
		return nil, nil
	}

	notification.CreatedAt = ctx.Now()
	if err := ctx.DB().Create(notification).Error; err != nil {
		return nil, ctx.Oops().With("type", event.Type, "entity_id", event.EntityID).Wrap(err)
	}

	ctx.Debugf("notified %s: %s", notification.RecipientID, notification.Title)
	return notification, nil
}

func getForRecipient(ctx context.Context, id, recipient uuid.UUID) (*models.Notification, error) {
	var notification models.Notification
	tx := ctx.DB().Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND recipient_id = ?", id, recipient).
		Limit(1).Find(&notification)
	if tx.Error != nil {
		return nil, tx.Error
	} else if tx.RowsAffected == 0 {
		return nil, api.Errorf(api.ENOTFOUND, "notification %s not found", id)
	}
	return &notification, nil
}

// MarkRead marks a recipient's notification as read. It returns false when
// the notification was already read.
func MarkRead(ctx context.Context, id, recipient uuid.UUID) (bool, error) {
	var changed bool
	err := ctx.Transaction(func(ctx context.Context, _ trace.Span) error {
		notification, err := getForRecipient(ctx, id, recipient)
		if err != nil {
			return err
		}

		if changed = notification.MarkAsRead(ctx.Now()); !changed {
			return nil
		}
		return ctx.DB().Model(notification).
			Updates(map[string]any{"is_read": true, "read_at": notification.ReadAt}).Error
	})
	return changed, err
}

// MarkUnread is the inverse of MarkRead and clears read_at.
func MarkUnread(ctx context.Context, id, recipient uuid.UUID) (bool, error) {
	var changed bool
	err := ctx.Transaction(func(ctx context.Context, _ trace.Span) error {
		notification, err := getForRecipient(ctx, id, recipient)
		if err != nil {
			return err
		}

		if changed = notification.MarkAsUnread(); !changed {
			return nil
		}
		return ctx.DB().Model(notification).
			Updates(map[string]any{"is_read": false, "read_at": nil}).Error
	})
	return changed, err
}

// MarkAllRead returns the number of notifications that changed.
func MarkAllRead(ctx context.Context, recipient uuid.UUID) (int64, error) {
	tx := ctx.DB().Model(&models.Notification{}).
		Where("recipient_id = ? AND NOT is_read", recipient).
		Updates(map[string]any{"is_read": true, "read_at": ctx.Now()})
	return tx.RowsAffected, tx.Error
}

func UnreadCount(ctx context.Context, recipient uuid.UUID) (int64, error) {
	var count int64
	err := ctx.DB().Model(&models.Notification{}).
		Where("recipient_id = ? AND NOT is_read", recipient).
		Count(&count).Error
	return count, err
}

type ListOptions struct {
	UnreadOnly bool
	Limit      int
}

// List returns the recipient's notifications, newest first.
func List(ctx context.Context, recipient uuid.UUID, opts ListOptions) ([]models.Notification, error) {
	q := ctx.DB().Where("recipient_id = ?", recipient).Order("created_at DESC")
	if opts.UnreadOnly {
		q = q.Where("NOT is_read")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}

	var notifications []models.Notification
	return notifications, q.Find(&notifications).Error
}
