package dummy

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/flanksource/hse/models"
)

// DummyNow is the clock the test suites run at.
var DummyNow = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

var ForkliftNearMiss = models.Incident{
	ID:           uuid.MustParse("7c05a739-8a1c-4999-85f7-d93d03f32044"),
	Reference:    "INC-2026-00001",
	Title:        "Forklift reversed into walkway",
	Description:  "Forklift reversed without a spotter, pedestrian stepped aside",
	Type:         models.IncidentTypeNearMiss,
	Severity:     models.SeverityMedium,
	Status:       models.IncidentStatusSubmitted,
	IncidentDate: DummyNow.Add(-50 * time.Hour),
	ReportedDate: DummyNow.Add(-49 * time.Hour),
	Location:     "Warehouse B",
	Department:   "Logistics",
	ReporterID:   JohnDoe.ID,
}

var ChemicalSpill = models.Incident{
	ID:           uuid.MustParse("0c00b8a6-5bf8-42a4-98fe-2d39ddcb67cb"),
	Reference:    "INC-2026-00002",
	Title:        "Solvent drum leaked in storage bay",
	Type:         models.IncidentTypeEnvironmental,
	Severity:     models.SeverityHigh,
	Status:       models.IncidentStatusUnderInvestigation,
	IncidentDate: DummyNow.Add(-8 * 24 * time.Hour),
	ReportedDate: DummyNow.Add(-8 * 24 * time.Hour),
	Location:     "Storage bay 3",
	Department:   "Production",
	ReporterID:   JohnDoe.ID,
	AssignedTo:   &JohnWick.ID,
}

var ScaffoldFall = models.Incident{
	ID:            uuid.MustParse("b6f5c8b2-3c1d-4b7e-9a1f-6e2d4c8a0b13"),
	Reference:     "INC-2026-00003",
	Title:         "Worker fell from scaffold platform",
	Type:          models.IncidentTypeAccident,
	Severity:      models.SeverityCritical,
	Status:        models.IncidentStatusValidated,
	IncidentDate:  DummyNow.Add(-10 * 24 * time.Hour),
	ReportedDate:  DummyNow.Add(-10 * 24 * time.Hour),
	Location:      "Site A, east wing",
	Department:    "Construction",
	ReporterID:    JohnWick.ID,
	AssignedTo:    &SafetyManager.ID,
	Injuries:      lo.ToPtr("Fractured wrist"),
	WorkHoursLost: 40,
	DaysLost:      5,
}

var BlockedExit = models.Incident{
	ID:           uuid.MustParse("d3a1e2f4-7b6c-4d5e-8f90-a1b2c3d4e5f6"),
	Reference:    "INC-2025-00007",
	Title:        "Fire exit blocked by pallets",
	Type:         models.IncidentTypeUnsafeCondition,
	Severity:     models.SeverityLow,
	Status:       models.IncidentStatusClosed,
	IncidentDate: time.Date(2025, time.November, 2, 8, 0, 0, 0, time.UTC),
	ReportedDate: time.Date(2025, time.November, 2, 9, 0, 0, 0, time.UTC),
	Department:   "Logistics",
	ReporterID:   JohnWick.ID,
	AssignedTo:   &SafetyManager.ID,
}

var AllDummyIncidents = []models.Incident{ForkliftNearMiss, ChemicalSpill, ScaffoldFall, BlockedExit}

var GuardRailCAPA = models.CAPA{
	ID:                  uuid.MustParse("5e1c7a9b-2d4f-4a6e-8b1c-3f5d7e9a1b2c"),
	IncidentID:          ScaffoldFall.ID,
	Reference:           "CAPA-2026-00001",
	ActionType:          models.ActionTypeCorrective,
	Title:               "Install guard rails on all platforms",
	RootCause:           "Missing edge protection",
	ResponsiblePersonID: &JohnWick.ID,
	DueDate:             DummyNow.Truncate(24*time.Hour).AddDate(0, 0, -2),
	Priority:            models.PriorityCritical,
	Status:              models.CAPAStatusOpen,
	CreatedBy:           &SafetyManager.ID,
}

var SpillKitCAPA = models.CAPA{
	ID:                  uuid.MustParse("8a2b4c6d-1e3f-4a5b-9c7d-0e2f4a6b8c1d"),
	IncidentID:          ChemicalSpill.ID,
	Reference:           "CAPA-2026-00002",
	ActionType:          models.ActionTypePreventive,
	Title:               "Place spill kits in every storage bay",
	ResponsiblePersonID: &JohnDoe.ID,
	DueDate:             DummyNow.Truncate(24*time.Hour).AddDate(0, 0, 2),
	Priority:            models.PriorityHigh,
	Status:              models.CAPAStatusInProgress,
	CreatedBy:           &JohnWick.ID,
}

var TrainingCAPA = models.CAPA{
	ID:             uuid.MustParse("c4d6e8f0-2a4b-4c6d-8e0f-1a3b5c7d9e2f"),
	IncidentID:     ScaffoldFall.ID,
	Reference:      "CAPA-2026-00003",
	ActionType:     models.ActionTypePreventive,
	Title:          "Working at height refresher training",
	DueDate:        DummyNow.Truncate(24*time.Hour).AddDate(0, 0, -5),
	Priority:       models.PriorityMedium,
	Status:         models.CAPAStatusCompleted,
	CompletionDate: lo.ToPtr(DummyNow.Add(-6 * 24 * time.Hour)),
	CreatedBy:      &SafetyManager.ID,
}

// UnassignedCAPA is overdue but has nobody to remind.
var UnassignedCAPA = models.CAPA{
	ID:         uuid.MustParse("e1f2a3b4-c5d6-4e7f-8a9b-0c1d2e3f4a5b"),
	IncidentID: ScaffoldFall.ID,
	Reference:  "CAPA-2026-00004",
	ActionType: models.ActionTypeCorrective,
	Title:      "Replace damaged scaffold boards",
	DueDate:    DummyNow.Truncate(24*time.Hour).AddDate(0, 0, -1),
	Priority:   models.PriorityHigh,
	Status:     models.CAPAStatusOpen,
}

var AllDummyCAPAs = []models.CAPA{GuardRailCAPA, SpillKitCAPA, TrainingCAPA, UnassignedCAPA}

var ScaffoldFallRisk = models.RiskAssessment{
	IncidentID:       ScaffoldFall.ID,
	Probability:      4,
	Impact:           5,
	ExistingControls: "Harness required above 2m",
	AssessedBy:       &SafetyManager.ID,
	AssessedDate:     DummyNow.Add(-9 * 24 * time.Hour),
}

var ChemicalSpillRisk = models.RiskAssessment{
	IncidentID:   ChemicalSpill.ID,
	Probability:  3,
	Impact:       3,
	AssessedBy:   &JohnWick.ID,
	AssessedDate: DummyNow.Add(-7 * 24 * time.Hour),
}

var AllDummyRiskAssessments = []models.RiskAssessment{ScaffoldFallRisk, ChemicalSpillRisk}
