// Package functions holds the plpgsql triggers and helpers: updated_at
// maintenance, event_queue notifications and reference counter sync.
package functions

import (
	"embed"

	"github.com/flanksource/hse/schema"
)

//go:embed *.sql
var scripts embed.FS

func GetFunctions() (map[string]string, error) {
	return schema.ReadSQL(scripts)
}
