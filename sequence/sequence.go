// Package sequence mints the year scoped references (INC-2026-00042) carried
// by incidents and CAPAs.
package sequence

import (
	gocontext "context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/db"
	"github.com/flanksource/hse/models"
)

const (
	PrefixIncident = "INC"
	PrefixCAPA     = "CAPA"

	// MaxValue is the largest number that fits the 5 digit format.
	// A year that runs past it fails instead of truncating.
	MaxValue = 99999
)

var referencePattern = regexp.MustCompile(`^([A-Z]+)-(\d{4})-(\d{5})$`)

// Format renders "{prefix}-{year}-{n:05d}".
func Format(prefix string, year, n int) (string, error) {
	if n < 1 {
		return "", api.Errorf(api.EINVALID, "sequence number must be positive, got %d", n)
	}
	if n > MaxValue {
		return "", api.Errorf(api.EINTERNAL, "sequence exhausted for %s-%d: %d exceeds %d", prefix, year, n, MaxValue)
	}
	return fmt.Sprintf("%s-%d-%05d", prefix, year, n), nil
}

// Parse splits a reference into its prefix, year and number.
func Parse(ref string) (prefix string, year, n int, err error) {
	match := referencePattern.FindStringSubmatch(strings.TrimSpace(ref))
	if match == nil {
		return "", 0, 0, api.Errorf(api.EINVALID, "invalid reference %q", ref)
	}
	year, _ = strconv.Atoi(match[2])
	n, _ = strconv.Atoi(match[3])
	return match[1], year, n, nil
}

// NextReference atomically increments the (prefix, year) counter and formats
// the result. The counter row stays locked until the caller's transaction
// ends, so concurrent callers queue behind each other.
func NextReference(ctx context.Context, prefix string, year int) (string, error) {
	counter := models.ReferenceSequence{Prefix: prefix, Year: year, Value: 1}
	err := ctx.DB().Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "prefix"}, {Name: "year"}},
			DoUpdates: clause.Assignments(map[string]any{"value": gorm.Expr("reference_sequences.value + 1")}),
		},
		clause.Returning{Columns: []clause.Column{{Name: "value"}}},
	).Create(&counter).Error
	if err != nil {
		return "", ctx.Oops().Wrapf(err, "failed to increment %s-%d", prefix, year)
	}

	return Format(prefix, year, counter.Value)
}

// skip burns the number that collided so the next attempt moves past it.
func skip(ctx context.Context, prefix string, year int) error {
	return ctx.DB().Model(&models.ReferenceSequence{}).
		Where("prefix = ? AND year = ?", prefix, year).
		Update("value", gorm.Expr("value + 1")).Error
}

// WithReference mints a reference for the current year and runs create with
// it in one transaction. If the insert collides with an existing reference
// the transaction is rolled back, the number is skipped and the whole unit is
// retried up to sequence.retries times before failing with ECONFLICT.
func WithReference(ctx context.Context, prefix string, create func(ctx context.Context, ref string) error) error {
	ctx = ctx.WithName("sequence")
	year := ctx.Now().Year()
	retries := ctx.Properties().Int(context.PropertySequenceRetries, 3)

	backoff := retry.WithMaxRetries(uint64(retries), retry.NewExponential(10*time.Millisecond))
	err := retry.Do(ctx, backoff, func(_ gocontext.Context) error {
		err := ctx.Transaction(func(txCtx context.Context, span trace.Span) error {
			ref, err := NextReference(txCtx, prefix, year)
			if err != nil {
				return err
			}
			return create(txCtx, ref)
		})
		if !isReferenceConflict(err) {
			return err
		}

		ctx.Counter("hse_sequence_conflicts_total", "prefix", prefix).Add(1)
		ctx.Warnf("reference collision for %s-%d, retrying: %v", prefix, year, err)
		if skipErr := skip(ctx, prefix, year); skipErr != nil {
			return skipErr
		}
		return retry.RetryableError(err)
	})

	if isReferenceConflict(err) {
		return api.Errorf(api.ECONFLICT, "could not allocate a unique %s reference after %d retries", prefix, retries).
			WithDebugInfo("%v", err)
	}
	return err
}

func isReferenceConflict(err error) bool {
	return err != nil && db.IsUniqueViolation(err) && strings.HasSuffix(db.ConstraintName(err), "_reference_key")
}
