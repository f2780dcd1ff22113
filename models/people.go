package models

import (
	"github.com/google/uuid"
)

// Person is the opaque user reference supplied by the auth layer.
// Only the email is used, for notification delivery.
type Person struct {
	ID    uuid.UUID `json:"id" gorm:"default:gen_random_uuid()"`
	Name  string    `json:"name,omitempty"`
	Email string    `json:"email,omitempty"`

	// Admin people receive the scheduled incident reports.
	Admin bool `json:"admin,omitempty" gorm:"column:is_admin"`
}

func (person Person) TableName() string {
	return "people"
}
