package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AppProperty is a runtime tunable stored in the properties table.
type AppProperty struct {
	Name      string    `json:"name,omitempty" gorm:"primaryKey"`
	Value     string    `json:"value,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

func (p AppProperty) TableName() string {
	return "properties"
}

// SetProperties upserts the given properties by name.
func SetProperties(db *gorm.DB, props []AppProperty) error {
	if len(props) == 0 {
		return nil
	}

	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&props).Error
}
