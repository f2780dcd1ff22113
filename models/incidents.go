package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type IncidentType string

const (
	IncidentTypeAccident        IncidentType = "ACCIDENT"
	IncidentTypeNearMiss        IncidentType = "NEAR_MISS"
	IncidentTypeUnsafeCondition IncidentType = "UNSAFE_CONDITION"
	IncidentTypeEnvironmental   IncidentType = "ENVIRONMENTAL"
)

func (t IncidentType) Valid() bool {
	switch t {
	case IncidentTypeAccident, IncidentTypeNearMiss, IncidentTypeUnsafeCondition, IncidentTypeEnvironmental:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type IncidentStatus string

const (
	IncidentStatusDraft              IncidentStatus = "DRAFT"
	IncidentStatusSubmitted          IncidentStatus = "SUBMITTED"
	IncidentStatusUnderInvestigation IncidentStatus = "UNDER_INVESTIGATION"
	IncidentStatusValidated          IncidentStatus = "VALIDATED"
	IncidentStatusClosed             IncidentStatus = "CLOSED"
)

var IncidentStatuses = []IncidentStatus{
	IncidentStatusDraft,
	IncidentStatusSubmitted,
	IncidentStatusUnderInvestigation,
	IncidentStatusValidated,
	IncidentStatusClosed,
}

func (s IncidentStatus) Valid() bool {
	switch s {
	case IncidentStatusDraft, IncidentStatusSubmitted, IncidentStatusUnderInvestigation,
		IncidentStatusValidated, IncidentStatusClosed:
		return true
	}
	return false
}

type Incident struct {
	ID uuid.UUID `json:"id" gorm:"default:gen_random_uuid()"`

	// Reference is minted once on create and never written again.
	Reference string `json:"reference" gorm:"<-:create"`

	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Type           IncidentType   `json:"type"`
	Severity       Severity       `json:"severity"`
	Status         IncidentStatus `json:"status"`
	IncidentDate   time.Time      `json:"incident_date"`
	ReportedDate   time.Time      `json:"reported_date" gorm:"<-:create"`
	Location       string         `json:"location,omitempty"`
	Department     string         `json:"department,omitempty"`
	ReporterID     uuid.UUID      `json:"reporter_id"`
	AssignedTo     *uuid.UUID     `json:"assigned_to,omitempty"`
	Injuries       *string        `json:"injuries,omitempty"`
	PropertyDamage *string        `json:"property_damage,omitempty"`
	WorkHoursLost  int            `json:"work_hours_lost"`
	DaysLost       int            `json:"days_lost"`
	CreatedAt      time.Time      `json:"created_at" gorm:"<-:create"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (i Incident) TableName() string {
	return "incidents"
}

func (i Incident) Context() map[string]any {
	return map[string]any{
		"incident_id": i.ID.String(),
		"reference":   i.Reference,
		"status":      string(i.Status),
	}
}

func (i Incident) Link() string {
	return fmt.Sprintf("/incidents/%s", i.ID)
}

// Owner returns the user who should hear about changes to the incident:
// the assignee when there is one, otherwise the reporter.
func (i Incident) Owner() uuid.UUID {
	if i.AssignedTo != nil && *i.AssignedTo != uuid.Nil {
		return *i.AssignedTo
	}
	return i.ReporterID
}

// IncidentSummary represents the incident_summary view.
type IncidentSummary struct {
	ID           uuid.UUID      `json:"id"`
	Reference    string         `json:"reference"`
	Title        string         `json:"title"`
	Type         IncidentType   `json:"type"`
	Severity     Severity       `json:"severity"`
	Status       IncidentStatus `json:"status"`
	Department   string         `json:"department,omitempty"`
	IncidentDate time.Time      `json:"incident_date"`
	ReportedDate time.Time      `json:"reported_date"`
	ReporterID   uuid.UUID      `json:"reporter_id"`
	AssignedTo   *uuid.UUID     `json:"assigned_to,omitempty"`
	RiskLevel    *int           `json:"risk_level,omitempty"`
	RiskCategory *RiskCategory  `json:"risk_category,omitempty"`
	CapasTotal   int            `json:"capas_total"`
	CapasOpen    int            `json:"capas_open"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (IncidentSummary) TableName() string {
	return "incident_summary"
}
