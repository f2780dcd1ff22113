// Package evidence stores files attached to incidents, CAPAs and risk
// assessments in a gocloud.dev bucket, with their metadata in postgres.
package evidence

import (
	"fmt"

	cmap "github.com/orcaman/concurrent-map/v2"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/context"
)

const PropertyBucket = "evidence.bucket"

var buckets = cmap.New[*blob.Bucket]()

// Bucket opens (once per url) the bucket evidence is written to. The
// evidence.bucket property overrides the configured url.
func Bucket(ctx context.Context) (*blob.Bucket, error) {
	url := ctx.Properties().String(PropertyBucket, api.DefaultConfig.Evidence.BucketURL)
	if url == "" {
		return nil, api.Errorf(api.EINTERNAL, "no evidence bucket configured")
	}

	if b, ok := buckets.Get(url); ok {
		return b, nil
	}

	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open evidence bucket %s: %w", url, err)
	}

	if !buckets.SetIfAbsent(url, b) {
		_ = b.Close()
		b, _ = buckets.Get(url)
	}
	ctx.Debugf("opened evidence bucket %s", url)
	return b, nil
}

// CloseBuckets closes every opened bucket.
func CloseBuckets() {
	for url, b := range buckets.Items() {
		_ = b.Close()
		buckets.Remove(url)
	}
}
