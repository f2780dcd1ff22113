package models

import (
	"github.com/flanksource/commons/logger"
	"github.com/google/uuid"
)

func init() {
	logger.SkipFrameContains = append(logger.SkipFrameContains, "hse/models")
}

type Contextable interface {
	Context() map[string]any
}

// ErrorContext flattens the context of the given items into key/value pairs for oops/logger.
func ErrorContext(items ...Contextable) []any {
	merged := make(map[string]any)

	for _, item := range items {
		if item == nil {
			continue
		}
		for k, v := range item.Context() {
			merged[k] = v
		}
	}
	var args []any

	for k, v := range merged {
		if v == nil || v == uuid.Nil.String() {
			continue
		}
		args = append(args, k, v)
	}
	return args
}
