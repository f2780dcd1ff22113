package job

import (
	"errors"
	"time"

	"github.com/google/uuid"
	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/robfig/cron/v3"
	"github.com/samber/lo"

	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/incidents"
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

var _ = ginkgo.Describe("Job", func() {
	ginkgo.It("records successful runs", func() {
		j := NewJob(DefaultContext, "test-success", "@every 1h", func(ctx JobRuntime) error {
			ctx.History.IncrSuccess()
			ctx.History.IncrSuccess()
			return nil
		})

		history, err := j.Exec()
		Expect(err).ToNot(HaveOccurred())
		Expect(history.Status).To(Equal(models.StatusSuccess))
		Expect(history.SuccessCount).To(Equal(2))
		Expect(j.LastRun()).To(Equal(history))

		var stored models.JobHistory
		Expect(DefaultContext.DB().Where("id = ?", history.ID).First(&stored).Error).To(Succeed())
		Expect(stored.Name).To(Equal("test-success"))
		Expect(stored.Status).To(Equal(models.StatusSuccess))
	})

	ginkgo.It("records failed runs", func() {
		j := NewJob(DefaultContext, "test-failure", "@every 1h", func(ctx JobRuntime) error {
			return errors.New("sweep failed")
		})

		history, err := j.Exec()
		Expect(err).To(MatchError("sweep failed"))
		Expect(history.Status).To(Equal(models.StatusFailed))
		Expect(history.Details["errors"]).To(ConsistOf("sweep failed"))
	})

	ginkgo.It("removes stale history", func() {
		old := models.JobHistory{Name: "test-cleanup", Status: models.StatusSuccess, TimeStart: time.Now().Add(-48 * time.Hour)}
		Expect(DefaultContext.DB().Create(&old).Error).To(Succeed())

		j := NewJob(DefaultContext, "test-cleanup", "@every 1h", func(ctx JobRuntime) error { return nil }).
			SetRetention(24 * time.Hour)
		_, err := j.Exec()
		Expect(err).ToNot(HaveOccurred())

		var ids []uuid.UUID
		Expect(DefaultContext.DB().Model(&models.JobHistory{}).Where("name = ?", "test-cleanup").Pluck("id", &ids).Error).To(Succeed())
		Expect(ids).To(HaveLen(1))
		Expect(ids).ToNot(ContainElement(old.ID))
	})

	ginkgo.It("is registered with the cron runner", func() {
		s := NewScheduler(NewJob(DefaultContext, "test-cron", "@every 1h", func(ctx JobRuntime) error { return nil }))
		Expect(s.Jobs[0].AddToScheduler(s.cron)).To(Succeed())

		entries := s.Entries()
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Name).To(Equal("test-cron"))
		Expect(entries[0].Schedule).To(Equal("@every 1h"))

		s.Jobs[0].RemoveFromScheduler(s.cron)
		Expect(s.cron.Entries()).To(BeEmpty())
	})

	ginkgo.It("rejects an invalid schedule", func() {
		j := NewJob(DefaultContext, "test-invalid", "every hour", func(ctx JobRuntime) error { return nil })
		Expect(j.AddToScheduler(cron.New())).ToNot(Succeed())
	})
})

var _ = ginkgo.Describe("CAPA reminders", func() {
	ginkgo.It("reminds the responsible person of overdue CAPAs", func() {
		history, err := NewJob(DefaultContext, "CAPAOverdueReminders", "", CAPAOverdueReminders).Exec()
		Expect(err).ToNot(HaveOccurred())
		Expect(history.SuccessCount).To(BeNumerically(">=", 1))

		events := queued("notification.capa.overdue", dummy.GuardRailCAPA.ID)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Properties["recipient_id"]).To(Equal(dummy.JohnWick.ID.String()))

		Expect(queued("notification.capa.overdue", dummy.UnassignedCAPA.ID)).To(BeEmpty())
		Expect(queued("notification.capa.overdue", dummy.TrainingCAPA.ID)).To(BeEmpty())
		Expect(queued("notification.capa.overdue", dummy.SpillKitCAPA.ID)).To(BeEmpty())
	})

	ginkgo.It("reminds the responsible person of CAPAs due soon", func() {
		_, err := NewJob(DefaultContext, "CAPADueSoonReminders", "", CAPADueSoonReminders).Exec()
		Expect(err).ToNot(HaveOccurred())

		events := queued("notification.capa.due_soon", dummy.SpillKitCAPA.ID)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Properties["recipient_id"]).To(Equal(dummy.JohnDoe.ID.String()))
		Expect(queued("notification.capa.due_soon", dummy.GuardRailCAPA.ID)).To(BeEmpty())
	})
})

var _ = ginkgo.Describe("Incident escalation", ginkgo.Ordered, func() {
	var assigned, unassigned, investigating *models.Incident

	ginkgo.BeforeAll(func() {
		earlier := DefaultContext.WithClock(func() time.Time { return dummy.DummyNow.Add(-5 * time.Hour) })
		input := func(title string, assignee *uuid.UUID) incidents.CreateInput {
			return incidents.CreateInput{
				Title:        title,
				Description:  "Crane load dropped near workers",
				Type:         models.IncidentTypeAccident,
				Severity:     models.SeverityCritical,
				Status:       models.IncidentStatusSubmitted,
				IncidentDate: dummy.DummyNow.Add(-6 * time.Hour),
				AssignedTo:   assignee,
			}
		}

		var err error
		assigned, err = incidents.Create(earlier, input("Crane dropped a steel beam", &dummy.JohnWick.ID), dummy.JohnDoe.ID)
		Expect(err).ToNot(HaveOccurred())
		unassigned, err = incidents.Create(earlier, input("Crane dropped a pallet of bricks", nil), dummy.JohnDoe.ID)
		Expect(err).ToNot(HaveOccurred())

		investigating, err = incidents.Create(earlier, input("Crane outrigger sank into the trench", nil), dummy.JohnDoe.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(DefaultContext.DB().Model(&models.Incident{}).Where("id = ?", investigating.ID).
			Update("status", models.IncidentStatusUnderInvestigation).Error).To(Succeed())
	})

	ginkgo.It("escalates stale critical incidents to the assignee", func() {
		history, err := NewJob(DefaultContext, "IncidentEscalation", "", IncidentEscalation).Exec()
		Expect(err).ToNot(HaveOccurred())
		Expect(history.Status).To(Equal(models.StatusWarning))
		Expect(history.Errors).To(ContainElement(ContainSubstring(unassigned.Reference)))

		events := queued("notification.system", assigned.ID)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Properties["recipient_id"]).To(Equal(dummy.JohnWick.ID.String()))
		Expect(events[0].Properties["message"]).To(ContainSubstring("5h0m0s"))

		Expect(queued("notification.system", unassigned.ID)).To(BeEmpty())
	})

	ginkgo.It("flags unassigned critical incidents past submission", func() {
		history, err := NewJob(DefaultContext, "IncidentEscalation", "", IncidentEscalation).Exec()
		Expect(err).ToNot(HaveOccurred())
		Expect(history.Errors).To(ContainElement(And(
			ContainSubstring(investigating.Reference),
			ContainSubstring(string(models.IncidentStatusUnderInvestigation)),
		)))
		Expect(history.Errors).ToNot(ContainElement(ContainSubstring(dummy.ScaffoldFall.Reference)))
		Expect(queued("notification.system", investigating.ID)).To(BeEmpty())
	})

	ginkgo.It("waits for the escalation threshold", func() {
		Expect(context.UpdateProperty(DefaultContext, context.PropertyCriticalEscalation, "6h")).To(Succeed())
		defer func() {
			Expect(DefaultContext.DB().Where("name = ?", context.PropertyCriticalEscalation).Delete(&models.AppProperty{}).Error).To(Succeed())
			DefaultContext.ClearCache()
		}()

		history, err := NewJob(DefaultContext, "IncidentEscalation", "", IncidentEscalation).Exec()
		Expect(err).ToNot(HaveOccurred())
		Expect(history.SuccessCount).To(Equal(0))
		Expect(history.ErrorCount).To(Equal(0))
	})
})

var _ = ginkgo.Describe("Incident overdue reminders", func() {
	ginkgo.It("reminds the assignee of investigations past their deadline", func() {
		_, err := NewJob(DefaultContext, "IncidentOverdueReminders", "", IncidentOverdueReminders).Exec()
		Expect(err).ToNot(HaveOccurred())

		events := queued("notification.system", dummy.ChemicalSpill.ID)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Properties["recipient_id"]).To(Equal(dummy.JohnWick.ID.String()))

		// overdue but unassigned
		Expect(queued("notification.system", dummy.ForkliftNearMiss.ID)).To(BeEmpty())
	})
})

func reports(title string) []models.Event {
	return lo.Filter(queued("notification.system", uuid.Nil), func(e models.Event, _ int) bool {
		return e.Properties["title"] == title
	})
}

var _ = ginkgo.Describe("Reports", func() {
	ginkgo.It("sends the daily incident report to admins", func() {
		earlier := DefaultContext.WithClock(func() time.Time { return dummy.DummyNow.Add(-2 * time.Hour) })
		created, err := incidents.Create(earlier, incidents.CreateInput{
			Title:        "Forklift clipped a racking upright",
			Description:  "Upright bent, no load dropped",
			Type:         models.IncidentTypeUnsafeCondition,
			Severity:     models.SeverityHigh,
			Status:       models.IncidentStatusSubmitted,
			IncidentDate: dummy.DummyNow.Add(-3 * time.Hour),
		}, dummy.JohnDoe.ID)
		Expect(err).ToNot(HaveOccurred())

		history, err := NewJob(DefaultContext, "DailyIncidentReport", "", DailyIncidentReport).Exec()
		Expect(err).ToNot(HaveOccurred())
		Expect(history.Status).To(Equal(models.StatusSuccess))
		Expect(history.SuccessCount).To(Equal(1))

		Expect(history.Details["new"]).To(BeNumerically(">=", 1))
		Expect(history.Details["high"]).To(BeNumerically(">=", 1))
		Expect(history.Details["recent"]).To(ContainElement(created.Reference))
		// ForkliftNearMiss is still submitted, ChemicalSpill still under investigation
		Expect(history.Details["overdue"]).To(BeNumerically(">=", 2))

		var stored models.JobHistory
		Expect(DefaultContext.DB().Where("id = ?", history.ID).First(&stored).Error).To(Succeed())
		Expect(stored.Details).To(HaveKey("overdue"))

		events := reports("Daily incident report 2026-03-15")
		Expect(events).ToNot(BeEmpty())
		for _, e := range events {
			Expect(e.Properties["recipient_id"]).To(Equal(dummy.SafetyManager.ID.String()))
		}
		Expect(events).To(ContainElement(HaveField("Properties", HaveKeyWithValue("message", ContainSubstring(created.Reference)))))
	})

	ginkgo.It("summarises the last week by severity and status", func() {
		history, err := NewJob(DefaultContext, "WeeklySummary", "", WeeklySummary).Exec()
		Expect(err).ToNot(HaveOccurred())
		Expect(history.SuccessCount).To(Equal(1))

		bySeverity, ok := history.Details["by_severity"].(map[string]any)
		Expect(ok).To(BeTrue())
		byStatus, ok := history.Details["by_status"].(map[string]any)
		Expect(ok).To(BeTrue())

		sum := func(counts map[string]any) float64 {
			var total float64
			for _, v := range counts {
				total += v.(float64)
			}
			return total
		}
		Expect(history.Details["total"]).To(BeNumerically(">=", 1))
		Expect(sum(bySeverity)).To(BeNumerically("==", history.Details["total"]))
		Expect(sum(byStatus)).To(BeNumerically("==", history.Details["total"]))

		// ForkliftNearMiss is in the window, ChemicalSpill was reported 8 days ago
		Expect(bySeverity).To(HaveKey(string(models.SeverityMedium)))
		Expect(reports("Weekly incident summary 2026-03-08 to 2026-03-15")).ToNot(BeEmpty())
	})

	ginkgo.It("computes last month's safety metrics", func() {
		april := DefaultContext.WithClock(func() time.Time { return time.Date(2026, 4, 2, 6, 0, 0, 0, time.UTC) })
		history, err := NewJob(april, "SafetyMetrics", "", SafetyMetrics).Exec()
		Expect(err).ToNot(HaveOccurred())
		Expect(history.SuccessCount).To(Equal(1))

		// ScaffoldFall happened in March with an injury, 5 days and 40 hours lost
		injuries := history.Details["injuries"]
		Expect(injuries).To(BeNumerically(">=", 1))
		Expect(history.Details["incidents"]).To(BeNumerically(">=", 3))
		Expect(history.Details["days_lost"]).To(BeNumerically(">=", 5))
		Expect(history.Details["hours_lost"]).To(BeNumerically(">=", 40))
		Expect(history.Details["work_hours"]).To(BeNumerically("==", DefaultReportWorkHours))
		Expect(history.Details["ltifr"]).To(BeNumerically("~", injuries.(float64)*1_000_000/DefaultReportWorkHours, 0.001))
		Expect(reports("Safety metrics March 2026")).To(HaveLen(1))
	})

	ginkgo.It("reports no injuries for a month without incidents", func() {
		history, err := NewJob(DefaultContext, "SafetyMetrics", "", SafetyMetrics).Exec()
		Expect(err).ToNot(HaveOccurred())
		Expect(history.Details["incidents"]).To(BeNumerically("==", 0))
		Expect(history.Details["ltifr"]).To(BeNumerically("==", 0))
	})
})

var _ = ginkgo.Describe("Scheduler", func() {
	ginkgo.It("runs every default job once", func() {
		s := NewScheduler(DefaultJobs(DefaultContext)...)
		Expect(s.RunAll()).To(Succeed())
		for _, j := range s.Jobs {
			Expect(j.LastRun()).ToNot(BeNil(), j.Name)
		}
	})
})
