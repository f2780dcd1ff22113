package incidents

import (
	"bytes"
	"sync"
	"time"

	"github.com/google/uuid"
	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"

	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/evidence"
	"github.com/flanksource/hse/models"
	"github.com/flanksource/hse/notifications"
	"github.com/flanksource/hse/sequence"
	"github.com/flanksource/hse/tests/fixtures/dummy"
)

func queued(name string, entity uuid.UUID) []models.Event {
	notifications.Flush()
	var events []models.Event
	Expect(DefaultContext.DB().
		Where("name = ? AND properties->>'entity_id' = ?", name, entity.String()).
		Find(&events).Error).To(Succeed())
	return events
}

func spillInput(title string) CreateInput {
	return CreateInput{
		Title:        title,
		Description:  "Hydraulic oil leaked from a press",
		Type:         models.IncidentTypeEnvironmental,
		Severity:     models.SeverityMedium,
		Status:       models.IncidentStatusSubmitted,
		IncidentDate: dummy.DummyNow.Add(-2 * time.Hour),
		Department:   "Production",
	}
}

var _ = ginkgo.Describe("Incident lifecycle", ginkgo.Ordered, func() {
	var incident *models.Incident

	ginkgo.It("creates with the next reference", func() {
		var err error
		incident, err = Create(DefaultContext, spillInput("Hydraulic oil on shop floor"), dummy.JohnDoe.ID)
		Expect(err).ToNot(HaveOccurred())

		// fixtures hold INC-2026-00001..3
		prefix, year, n, err := sequence.Parse(incident.Reference)
		Expect(err).ToNot(HaveOccurred())
		Expect(prefix).To(Equal(sequence.PrefixIncident))
		Expect(year).To(Equal(2026))
		Expect(n).To(BeNumerically(">", 3))
		Expect(incident.Status).To(Equal(models.IncidentStatusSubmitted))
		Expect(incident.ReportedDate).To(BeTemporally("==", dummy.DummyNow))
		Expect(incident.ReporterID).To(Equal(dummy.JohnDoe.ID))

		events := queued("notification.incident.created", incident.ID)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Properties).To(HaveKeyWithValue("recipient_id", dummy.JohnDoe.ID.String()))
	})

	ginkgo.It("validates and assigns to the validator", func() {
		validated, err := ValidateIncident(DefaultContext, incident.ID, dummy.SafetyManager.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(validated.Status).To(Equal(models.IncidentStatusValidated))
		Expect(*validated.AssignedTo).To(Equal(dummy.SafetyManager.ID))

		saved, err := Get(DefaultContext, incident.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(saved.Status).To(Equal(models.IncidentStatusValidated))

		Expect(queued("notification.incident.validated", incident.ID)).To(HaveLen(1))
		assigned := queued("notification.incident.assigned", incident.ID)
		Expect(assigned).To(HaveLen(1))
		Expect(assigned[0].Properties).To(HaveKeyWithValue("recipient_id", dummy.SafetyManager.ID.String()))
	})

	ginkgo.It("cannot be validated twice", func() {
		_, err := ValidateIncident(DefaultContext, incident.ID, dummy.JohnWick.ID)
		Expect(api.ErrorCode(err)).To(Equal(api.EINVALIDTRANSITION))

		saved, err := Get(DefaultContext, incident.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(*saved.AssignedTo).To(Equal(dummy.SafetyManager.ID))
	})

	ginkgo.It("closes", func() {
		closed, err := CloseIncident(DefaultContext, incident.ID, dummy.SafetyManager.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(closed.Status).To(Equal(models.IncidentStatusClosed))
		Expect(queued("notification.incident.closed", incident.ID)).To(HaveLen(1))
	})

	ginkgo.It("fails to close again", func() {
		_, err := CloseIncident(DefaultContext, incident.ID, dummy.SafetyManager.ID)
		Expect(api.ErrorCode(err)).To(Equal(api.EINVALIDTRANSITION))
		Expect(api.ErrorMessage(err)).To(ContainSubstring("already closed"))

		saved, err := GetByReference(DefaultContext, incident.Reference)
		Expect(err).ToNot(HaveOccurred())
		Expect(saved.Status).To(Equal(models.IncidentStatusClosed))
	})
})

var _ = ginkgo.Describe("Create", func() {
	ginkgo.It("rejects invalid input without consuming a reference", func() {
		_, err := Create(DefaultContext, spillInput("Too short"), dummy.JohnDoe.ID)
		Expect(api.ErrorCode(err)).To(Equal(api.EINVALID))

		_, err = Create(DefaultContext, spillInput("A perfectly fine title"), uuid.Nil)
		Expect(api.ErrorCode(err)).To(Equal(api.EINVALID))
	})

	ginkgo.It("mints distinct references concurrently", func() {
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			refs []string
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer ginkgo.GinkgoRecover()
				defer wg.Done()
				incident, err := Create(DefaultContext, spillInput("Concurrent spill report"), dummy.JohnWick.ID)
				Expect(err).ToNot(HaveOccurred())
				mu.Lock()
				refs = append(refs, incident.Reference)
				mu.Unlock()
			}()
		}
		wg.Wait()

		Expect(refs).To(HaveLen(10))
		Expect(lo.Uniq(refs)).To(HaveLen(10))
	})

	ginkgo.It("notifies an initial assignee", func() {
		in := spillInput("Pre-assigned spill report")
		in.AssignedTo = &dummy.JohnWick.ID
		incident, err := Create(DefaultContext, in, dummy.JohnDoe.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(queued("notification.incident.assigned", incident.ID)).To(HaveLen(1))
	})
})

var _ = ginkgo.Describe("Assignment and investigation", func() {
	ginkgo.It("moves a draft through investigation", func() {
		in := spillInput("Draft that gets investigated")
		in.Status = models.IncidentStatusDraft
		incident, err := Create(DefaultContext, in, dummy.JohnDoe.ID)
		Expect(err).ToNot(HaveOccurred())

		_, err = StartIncidentInvestigation(DefaultContext, incident.ID, dummy.JohnWick.ID)
		Expect(api.ErrorCode(err)).To(Equal(api.EINVALIDTRANSITION))

		_, err = SubmitIncident(DefaultContext, incident.ID, dummy.JohnDoe.ID)
		Expect(err).ToNot(HaveOccurred())

		investigating, err := StartIncidentInvestigation(DefaultContext, incident.ID, dummy.JohnWick.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(investigating.Status).To(Equal(models.IncidentStatusUnderInvestigation))
		Expect(*investigating.AssignedTo).To(Equal(dummy.JohnWick.ID))

		reassigned, err := AssignIncident(DefaultContext, incident.ID, dummy.SafetyManager.ID, dummy.JohnWick.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(*reassigned.AssignedTo).To(Equal(dummy.SafetyManager.ID))
		Expect(queued("notification.incident.assigned", incident.ID)).To(HaveLen(1))
	})

	ginkgo.It("returns not found for unknown incidents", func() {
		_, err := ValidateIncident(DefaultContext, uuid.New(), dummy.SafetyManager.ID)
		Expect(api.ErrorCode(err)).To(Equal(api.ENOTFOUND))
	})
})

var _ = ginkgo.Describe("Queries", func() {
	ginkgo.It("lists overdue incidents", func() {
		overdue, err := ListOverdue(DefaultContext)
		Expect(err).ToNot(HaveOccurred())

		ids := lo.Map(overdue, func(i models.Incident, _ int) uuid.UUID { return i.ID })
		// submitted 49h ago and investigating for 8 days
		Expect(ids).To(ContainElements(dummy.ForkliftNearMiss.ID, dummy.ChemicalSpill.ID))
		Expect(ids).ToNot(ContainElement(dummy.ScaffoldFall.ID))
		Expect(ids).ToNot(ContainElement(dummy.BlockedExit.ID))
	})

	ginkgo.It("lists a user's incidents", func() {
		mine, err := ListForUser(DefaultContext, dummy.SafetyManager.ID)
		Expect(err).ToNot(HaveOccurred())
		ids := lo.Map(mine, func(i models.Incident, _ int) uuid.UUID { return i.ID })
		Expect(ids).To(ContainElements(dummy.ScaffoldFall.ID, dummy.BlockedExit.ID))
	})

	ginkgo.It("counts incidents", func() {
		stats, err := GetStatistics(DefaultContext)
		Expect(err).ToNot(HaveOccurred())
		Expect(stats.Total).To(BeNumerically(">=", 4))
		Expect(stats.ByStatus).To(HaveKey("CLOSED"))
		Expect(stats.BySeverity["CRITICAL"]).To(BeNumerically(">=", 1))
		Expect(stats.ByType).To(HaveKey("NEAR_MISS"))
		Expect(stats.ByDepartment).To(HaveKey("Logistics"))

		var sum int64
		for _, n := range stats.ByStatus {
			sum += n
		}
		Expect(sum).To(Equal(stats.Total))
	})

	ginkgo.It("summarises incidents with risk and capas", func() {
		summaries, err := Summaries(DefaultContext, models.IncidentStatusValidated)
		Expect(err).ToNot(HaveOccurred())

		scaffold, ok := lo.Find(summaries, func(s models.IncidentSummary) bool { return s.ID == dummy.ScaffoldFall.ID })
		Expect(ok).To(BeTrue())
		Expect(*scaffold.RiskLevel).To(Equal(20))
		Expect(*scaffold.RiskCategory).To(Equal(models.RiskCategoryHigh))
		for _, s := range summaries {
			Expect(s.Status).To(Equal(models.IncidentStatusValidated))
		}
	})
})

var _ = ginkgo.Describe("Delete", func() {
	ginkgo.It("removes the incident, its capas and evidence", func() {
		incident, err := Create(DefaultContext, spillInput("Incident that gets deleted"), dummy.JohnDoe.ID)
		Expect(err).ToNot(HaveOccurred())

		capa := models.CAPA{
			IncidentID:  incident.ID,
			Reference:   "CAPA-2026-09999",
			ActionType:  models.ActionTypeCorrective,
			Title:       "Clean up",
			Description: "Absorb the oil",
			DueDate:     dummy.DummyNow,
			Priority:    models.PriorityMedium,
			Status:      models.CAPAStatusOpen,
		}
		Expect(DefaultContext.DB().Create(&capa).Error).To(Succeed())

		incidentPhoto, err := evidence.Attach(DefaultContext, models.IncidentTarget(incident.ID), evidence.Upload{
			Filename: "floor.txt", Content: bytes.NewBufferString("oil"),
		}, dummy.JohnDoe.ID)
		Expect(err).ToNot(HaveOccurred())
		capaPhoto, err := evidence.Attach(DefaultContext, models.CAPATarget(capa.ID), evidence.Upload{
			Filename: "absorbent.txt", Content: bytes.NewBufferString("sand"),
		}, dummy.JohnDoe.ID)
		Expect(err).ToNot(HaveOccurred())

		Expect(Delete(DefaultContext, incident.ID)).To(Succeed())

		_, err = Get(DefaultContext, incident.ID)
		Expect(api.ErrorCode(err)).To(Equal(api.ENOTFOUND))

		var capas int64
		Expect(DefaultContext.DB().Model(&models.CAPA{}).Where("id = ?", capa.ID).Count(&capas).Error).To(Succeed())
		Expect(capas).To(BeZero())

		for _, id := range []uuid.UUID{incidentPhoto.ID, capaPhoto.ID} {
			_, _, err := evidence.Open(DefaultContext, id)
			Expect(api.ErrorCode(err)).To(Equal(api.ENOTFOUND))
		}

		var pending []string
		Expect(DefaultContext.DB().Model(&models.Event{}).Where("name = ?", evidence.EventBlobDelete).
			Pluck("properties->>'path'", &pending).Error).To(Succeed())
		Expect(pending).To(ContainElements(incidentPhoto.Path, capaPhoto.Path))

		cleanup := evidence.NewBlobCleanup()
		for {
			count, err := cleanup.Handle(DefaultContext)
			Expect(err).ToNot(HaveOccurred())
			if count == 0 {
				break
			}
		}
		bucket, err := evidence.Bucket(DefaultContext)
		Expect(err).ToNot(HaveOccurred())
		for _, path := range []string{incidentPhoto.Path, capaPhoto.Path} {
			exists, err := bucket.Exists(DefaultContext, path)
			Expect(err).ToNot(HaveOccurred())
			Expect(exists).To(BeFalse())
		}

		Expect(api.ErrorCode(Delete(DefaultContext, incident.ID))).To(Equal(api.ENOTFOUND))
	})
})
