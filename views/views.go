// Package views holds the reporting views, applied after functions.
package views

import (
	"embed"

	"github.com/flanksource/hse/schema"
)

//go:embed *.sql
var scripts embed.FS

func GetViews() (map[string]string, error) {
	return schema.ReadSQL(scripts)
}
