package dummy

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/flanksource/hse/functions"
	"github.com/flanksource/hse/models"
)

type DummyData struct {
	People          []models.Person
	Incidents       []models.Incident
	CAPAs           []models.CAPA
	RiskAssessments []models.RiskAssessment
}

// GetStaticDummyData returns copies of the fixtures, so suites can mutate them.
func GetStaticDummyData() DummyData {
	return DummyData{
		People:          append([]models.Person{}, AllDummyPeople...),
		Incidents:       append([]models.Incident{}, AllDummyIncidents...),
		CAPAs:           append([]models.CAPA{}, AllDummyCAPAs...),
		RiskAssessments: append([]models.RiskAssessment{}, AllDummyRiskAssessments...),
	}
}

func (t *DummyData) Populate(gormDB *gorm.DB) error {
	if err := gormDB.CreateInBatches(t.People, 100).Error; err != nil {
		if !strings.Contains(err.Error(), "duplicate key value") {
			return err
		}
		if err := t.Delete(gormDB); err != nil {
			return err
		}
		if err := gormDB.CreateInBatches(t.People, 100).Error; err != nil {
			return err
		}
	}

	for i := range t.Incidents {
		t.Incidents[i].CreatedAt = t.Incidents[i].ReportedDate
		t.Incidents[i].UpdatedAt = t.Incidents[i].ReportedDate
	}
	if err := gormDB.CreateInBatches(t.Incidents, 100).Error; err != nil {
		return err
	}

	for i := range t.CAPAs {
		t.CAPAs[i].CreatedAt = DummyNow.AddDate(0, 0, -9)
		t.CAPAs[i].UpdatedAt = DummyNow.AddDate(0, 0, -9)
	}
	if err := gormDB.CreateInBatches(t.CAPAs, 100).Error; err != nil {
		return err
	}

	if err := gormDB.CreateInBatches(t.RiskAssessments, 100).Error; err != nil {
		return err
	}

	return syncSequences(gormDB)
}

// syncSequences advances the reference counters past the fixture references.
func syncSequences(gormDB *gorm.DB) error {
	funcs, err := functions.GetFunctions()
	if err != nil {
		return err
	}

	script, ok := funcs["reference_sequences.sql"]
	if !ok {
		return fmt.Errorf("reference_sequences.sql not found")
	}
	return gormDB.Exec(script).Error
}

func (t *DummyData) Delete(gormDB *gorm.DB) error {
	incidentIDs := lo.Map(t.Incidents, func(i models.Incident, _ int) string { return i.ID.String() })
	if len(incidentIDs) > 0 {
		// capas and risk assessments cascade
		if err := gormDB.Exec("DELETE FROM incidents WHERE id IN ?", incidentIDs).Error; err != nil {
			return err
		}
	}

	peopleIDs := lo.Map(t.People, func(p models.Person, _ int) string { return p.ID.String() })
	if len(peopleIDs) > 0 {
		if err := gormDB.Exec("DELETE FROM people WHERE id IN ?", peopleIDs).Error; err != nil {
			return err
		}
	}
	return nil
}
