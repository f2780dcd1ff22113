package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ActionType string

const (
	ActionTypeCorrective ActionType = "CORRECTIVE"
	ActionTypePreventive ActionType = "PREVENTIVE"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionTypeCorrective, ActionTypePreventive:
		return true
	}
	return false
}

type CAPAStatus string

const (
	CAPAStatusOpen       CAPAStatus = "OPEN"
	CAPAStatusInProgress CAPAStatus = "IN_PROGRESS"
	CAPAStatusCompleted  CAPAStatus = "COMPLETED"
	CAPAStatusVerified   CAPAStatus = "VERIFIED"
	CAPAStatusClosed     CAPAStatus = "CLOSED"
	CAPAStatusCancelled  CAPAStatus = "CANCELLED"
)

func (s CAPAStatus) Valid() bool {
	switch s {
	case CAPAStatusOpen, CAPAStatusInProgress, CAPAStatusCompleted,
		CAPAStatusVerified, CAPAStatusClosed, CAPAStatusCancelled:
		return true
	}
	return false
}

type Priority int

const (
	PriorityLow      Priority = 1
	PriorityMedium   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityMedium:
		return "Medium"
	case PriorityHigh:
		return "High"
	case PriorityCritical:
		return "Critical"
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

// CAPA is a corrective or preventive action raised against an incident.
type CAPA struct {
	ID                  uuid.UUID  `json:"id" gorm:"default:gen_random_uuid()"`
	IncidentID          uuid.UUID  `json:"incident_id"`
	Reference           string     `json:"reference" gorm:"<-:create"`
	ActionType          ActionType `json:"action_type"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	RootCause           string     `json:"root_cause,omitempty"`
	ResponsiblePersonID *uuid.UUID `json:"responsible_person_id,omitempty"`
	DueDate             time.Time  `json:"due_date" gorm:"type:date"`
	Priority            Priority   `json:"priority"`
	Status              CAPAStatus `json:"status"`
	CompletionDate      *time.Time `json:"completion_date,omitempty"`
	VerificationDate    *time.Time `json:"verification_date,omitempty"`
	VerificationNotes   string     `json:"verification_notes,omitempty"`
	CreatedBy           *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt           time.Time  `json:"created_at" gorm:"<-:create"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (c CAPA) TableName() string {
	return "capas"
}

func (c CAPA) Context() map[string]any {
	return map[string]any{
		"capa_id":     c.ID.String(),
		"reference":   c.Reference,
		"status":      string(c.Status),
		"incident_id": c.IncidentID.String(),
	}
}

func (c CAPA) Link() string {
	return fmt.Sprintf("/capas/%s", c.ID)
}
