package db

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
	"gorm.io/gorm"

	"github.com/flanksource/hse/api"
)

// oopsPlugin wraps every gorm error with oops, tags it "db" and
// assigns an application error code derived from the postgres error.
type oopsPlugin struct{}

func NewOopsPlugin() gorm.Plugin {
	return &oopsPlugin{}
}

func (p oopsPlugin) Name() string {
	return "hse-oops"
}

type gormRegister interface {
	Register(name string, fn func(*gorm.DB)) error
}

func (p oopsPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := map[string]gormRegister{
		"create": cb.Create().After("gorm:create"),
		"query":  cb.Query().After("gorm:query"),
		"delete": cb.Delete().After("gorm:delete"),
		"update": cb.Update().After("gorm:update"),
		"row":    cb.Row().After("gorm:row"),
		"raw":    cb.Raw().After("gorm:raw"),
	}

	var errs []error
	for name, h := range hooks {
		if err := h.Register("oops:after:"+name, wrapError); err != nil {
			errs = append(errs, fmt.Errorf("callback register %s failed: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func wrapError(tx *gorm.DB) {
	if tx.Error == nil || IsDBError(tx.Error) {
		return
	}
	tx.Error = oops.Tags("db").Code(ErrorCode(tx.Error)).Wrap(ErrorDetails(tx.Error))
}

// ErrorCode maps a database error onto an application error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return api.ENOTFOUND
	case IsUniqueViolation(err):
		return api.ECONFLICT
	case IsForeignKeyError(err):
		return api.ENOTFOUND
	case IsCheckViolation(err):
		return api.EINVALID
	}
	return api.EINTERNAL
}
