package capas

import (
	"time"

	"github.com/google/uuid"
	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/models"
	"github.com/flanksource/hse/notifications"
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

func rails(responsible *uuid.UUID) CreateInput {
	return CreateInput{
		ActionType:          models.ActionTypeCorrective,
		Title:               "Fit toe boards to scaffold",
		RootCause:           "No edge protection",
		ResponsiblePersonID: responsible,
		DueDate:             dummy.DummyNow.AddDate(0, 0, 14),
	}
}

var _ = ginkgo.Describe("CAPA lifecycle", ginkgo.Ordered, func() {
	var capa *models.CAPA

	ginkgo.It("raises a CAPA against an incident", func() {
		var err error
		capa, err = Create(DefaultContext, dummy.ScaffoldFall.ID, rails(&dummy.JohnWick.ID), dummy.SafetyManager.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(capa.Reference).To(HavePrefix("CAPA-2026-"))
		Expect(capa.Status).To(Equal(models.CAPAStatusOpen))
		Expect(capa.Priority).To(Equal(models.PriorityMedium))
		Expect(*capa.CreatedBy).To(Equal(dummy.SafetyManager.ID))

		for _, name := range []string{"notification.capa.created", "notification.capa.assigned"} {
			events := queued(name, capa.ID)
			Expect(events).To(HaveLen(1), name)
			Expect(events[0].Properties["recipient_id"]).To(Equal(dummy.JohnWick.ID.String()))
		}
	})

	ginkgo.It("starts work", func() {
		started, err := StartCAPA(DefaultContext, capa.ID, dummy.JohnWick.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(started.Status).To(Equal(models.CAPAStatusInProgress))
	})

	ginkgo.It("cannot be verified before completion", func() {
		_, err := VerifyCAPA(DefaultContext, capa.ID, dummy.SafetyManager.ID, "too early")
		Expect(api.ErrorCode(err)).To(Equal(api.EINVALIDTRANSITION))
	})

	ginkgo.It("completes exactly once under concurrency", func() {
		results := make([]bool, 5)
		var g errgroup.Group
		for i := range results {
			g.Go(func() error {
				ok, err := CompleteCAPA(DefaultContext, capa.ID, dummy.JohnWick.ID)
				results[i] = ok
				return err
			})
		}
		Expect(g.Wait()).To(Succeed())
		Expect(lo.Count(results, true)).To(Equal(1))

		stored, err := Get(DefaultContext, capa.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(stored.Status).To(Equal(models.CAPAStatusCompleted))
		Expect(*stored.CompletionDate).To(BeTemporally("==", dummy.DummyNow))

		events := queued("notification.capa.completed", capa.ID)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Properties["recipient_id"]).To(Equal(dummy.SafetyManager.ID.String()))
	})

	ginkgo.It("returns false when completed again", func() {
		ok, err := CompleteCAPA(DefaultContext, capa.ID, dummy.JohnWick.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	ginkgo.It("verifies and closes", func() {
		verified, err := VerifyCAPA(DefaultContext, capa.ID, dummy.SafetyManager.ID, "Toe boards inspected")
		Expect(err).ToNot(HaveOccurred())
		Expect(verified.Status).To(Equal(models.CAPAStatusVerified))
		Expect(verified.VerificationNotes).To(Equal("Toe boards inspected"))
		Expect(*verified.VerificationDate).To(BeTemporally("==", dummy.DummyNow))

		closed, err := CloseCAPA(DefaultContext, capa.ID, dummy.SafetyManager.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(closed.Status).To(Equal(models.CAPAStatusClosed))
	})
})

var _ = ginkgo.Describe("Create", func() {
	ginkgo.It("rejects an unknown incident", func() {
		_, err := Create(DefaultContext, uuid.New(), rails(nil), dummy.SafetyManager.ID)
		Expect(api.ErrorCode(err)).To(Equal(api.ENOTFOUND))
	})

	ginkgo.It("rejects invalid input", func() {
		input := rails(nil)
		input.Priority = 9
		_, err := Create(DefaultContext, dummy.ScaffoldFall.ID, input, dummy.SafetyManager.ID)
		Expect(api.ErrorCode(err)).To(Equal(api.EINVALID))
	})

	ginkgo.It("does not notify without a responsible person", func() {
		capa, err := Create(DefaultContext, dummy.ChemicalSpill.ID, rails(nil), dummy.JohnWick.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(queued("notification.capa.created", capa.ID)).To(BeEmpty())
		Expect(queued("notification.capa.assigned", capa.ID)).To(BeEmpty())
	})

	ginkgo.It("cancels an open CAPA", func() {
		capa, err := Create(DefaultContext, dummy.ChemicalSpill.ID, rails(nil), dummy.JohnWick.ID)
		Expect(err).ToNot(HaveOccurred())

		cancelled, err := CancelCAPA(DefaultContext, capa.ID, dummy.JohnWick.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(cancelled.Status).To(Equal(models.CAPAStatusCancelled))

		_, err = StartCAPA(DefaultContext, capa.ID, dummy.JohnWick.ID)
		Expect(api.ErrorCode(err)).To(Equal(api.EINVALIDTRANSITION))
	})
})

var _ = ginkgo.Describe("Queries", func() {
	ginkgo.It("lists overdue CAPAs", func() {
		overdue, err := ListOverdue(DefaultContext)
		Expect(err).ToNot(HaveOccurred())

		refs := lo.Map(overdue, func(c models.CAPA, _ int) string { return c.Reference })
		Expect(refs).To(ContainElements(dummy.GuardRailCAPA.Reference, dummy.UnassignedCAPA.Reference))
		Expect(refs).ToNot(ContainElement(dummy.TrainingCAPA.Reference))
		Expect(refs).ToNot(ContainElement(dummy.SpillKitCAPA.Reference))
	})

	ginkgo.It("lists CAPAs due soon", func() {
		soon, err := ListDueSoon(DefaultContext, 72*time.Hour)
		Expect(err).ToNot(HaveOccurred())

		refs := lo.Map(soon, func(c models.CAPA, _ int) string { return c.Reference })
		Expect(refs).To(ContainElement(dummy.SpillKitCAPA.Reference))
		Expect(refs).ToNot(ContainElement(dummy.GuardRailCAPA.Reference))
	})

	ginkgo.It("lists CAPAs for an incident and a user", func() {
		forIncident, err := ListForIncident(DefaultContext, dummy.ScaffoldFall.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(lo.Map(forIncident, func(c models.CAPA, _ int) uuid.UUID { return c.ID })).
			To(ContainElements(dummy.GuardRailCAPA.ID, dummy.TrainingCAPA.ID, dummy.UnassignedCAPA.ID))

		forUser, err := ListForUser(DefaultContext, dummy.JohnDoe.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(lo.Map(forUser, func(c models.CAPA, _ int) uuid.UUID { return c.ID })).To(ContainElement(dummy.SpillKitCAPA.ID))
	})

	ginkgo.It("counts the backlog", func() {
		stats, err := GetStatistics(DefaultContext, 72*time.Hour)
		Expect(err).ToNot(HaveOccurred())

		var total int64
		Expect(DefaultContext.DB().Model(&models.CAPA{}).Count(&total).Error).To(Succeed())
		Expect(stats.Total).To(Equal(total))

		overdue, err := ListOverdue(DefaultContext)
		Expect(err).ToNot(HaveOccurred())
		Expect(stats.Overdue).To(BeEquivalentTo(len(overdue)))

		soon, err := ListDueSoon(DefaultContext, 72*time.Hour)
		Expect(err).ToNot(HaveOccurred())
		Expect(stats.DueSoon).To(BeEquivalentTo(len(soon)))

		Expect(stats.Open).To(BeNumerically(">=", stats.Overdue+stats.DueSoon))
		Expect(stats.Completed + stats.Verified).To(BeNumerically(">=", 1))
	})

	ginkgo.It("returns not found for an unknown CAPA", func() {
		_, err := Get(DefaultContext, uuid.New())
		Expect(api.ErrorCode(err)).To(Equal(api.ENOTFOUND))
	})
})
