package notifications

import (
	"time"

	"github.com/google/uuid"

	"github.com/flanksource/hse/cache"
	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/models"
)

var recipients = cache.NewCache[models.Person]("recipients", 5*time.Minute)

// recipient returns the person a notification is addressed to, or nil when
// the id is unknown. Unknown ids are not cached.
func recipient(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	if person, err := recipients.Get(ctx, id.String()); err == nil {
		return &person, nil
	}

	var person models.Person
	tx := ctx.DB().Where("id = ?", id).Limit(1).Find(&person)
	if tx.Error != nil {
		return nil, tx.Error
	} else if tx.RowsAffected == 0 {
		return nil, nil
	}

	if err := recipients.Set(ctx, id.String(), person); err != nil {
		ctx.Warnf("failed to cache recipient %s: %v", id, err)
	}
	return &person, nil
}
