package evidence

import (
	"bytes"
	"io"
	"strings"

	"github.com/google/uuid"
	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gocloud.dev/blob"

	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/models"
	"github.com/flanksource/hse/tests/fixtures/dummy"
)

func blobExists(path string) bool {
	bucket, err := Bucket(DefaultContext)
	Expect(err).ToNot(HaveOccurred())
	exists, err := bucket.Exists(DefaultContext, path)
	Expect(err).ToNot(HaveOccurred())
	return exists
}

func photo(name string) Upload {
	return Upload{Filename: name, Title: "Scene", Content: bytes.NewReader(pngHeader)}
}

var _ = ginkgo.Describe("Attach", func() {
	target := models.IncidentTarget(dummy.ForkliftNearMiss.ID)

	ginkgo.It("stores the blob and the metadata", func() {
		ev, err := Attach(DefaultContext, target, photo("walkway.png"), dummy.JohnDoe.ID)
		Expect(err).ToNot(HaveOccurred())

		Expect(ev.FileType).To(Equal(models.FileTypePhoto))
		Expect(ev.FileSize).To(BeEquivalentTo(len(pngHeader)))
		Expect(ev.Path).To(HavePrefix("evidence/incident/2026/03/"))
		Expect(ev.Path).To(HaveSuffix("-walkway.png"))
		Expect(ev.UploadedAt).To(BeTemporally("==", dummy.DummyNow))
		Expect(blobExists(ev.Path)).To(BeTrue())

		saved, r, err := Open(DefaultContext, ev.ID)
		Expect(err).ToNot(HaveOccurred())
		defer r.Close()
		content, err := io.ReadAll(r)
		Expect(err).ToNot(HaveOccurred())
		Expect(content).To(Equal(pngHeader))
		Expect(saved.Target).To(Equal(target))
	})

	ginkgo.It("attaches to CAPAs and risk assessments", func() {
		_, err := Attach(DefaultContext, models.CAPATarget(dummy.GuardRailCAPA.ID), Upload{
			Filename: "quote.pdf",
			Content:  strings.NewReader("%PDF-1.7\n"),
		}, dummy.JohnWick.ID)
		Expect(err).ToNot(HaveOccurred())

		_, err = Attach(DefaultContext, models.RiskAssessmentTarget(dummy.ScaffoldFall.ID), photo("platform.png"), dummy.SafetyManager.ID)
		Expect(err).ToNot(HaveOccurred())

		// ForkliftNearMiss has no risk assessment
		_, err = Attach(DefaultContext, models.RiskAssessmentTarget(dummy.ForkliftNearMiss.ID), photo("none.png"), dummy.SafetyManager.ID)
		Expect(api.ErrorCode(err)).To(Equal(api.ENOTFOUND))
	})

	ginkgo.It("rejects disallowed extensions", func() {
		_, err := Attach(DefaultContext, target, Upload{Filename: "payload.exe", Content: strings.NewReader("MZ")}, dummy.JohnDoe.ID)
		Expect(api.ErrorCode(err)).To(Equal(api.EINVALID))
		Expect(api.ErrorMessage(err)).To(ContainSubstring(".exe"))
	})

	ginkgo.It("rejects executables with an allowed extension", func() {
		elf := append([]byte("\x7fELF\x02\x01\x01"), make([]byte, 57)...)
		_, err := Attach(DefaultContext, target, Upload{Filename: "notes.txt", Content: bytes.NewReader(elf)}, dummy.JohnDoe.ID)
		Expect(api.ErrorCode(err)).To(Equal(api.EINVALID))
	})

	ginkgo.It("rejects unknown targets", func() {
		_, err := Attach(DefaultContext, models.IncidentTarget(uuid.New()), photo("ghost.png"), dummy.JohnDoe.ID)
		Expect(api.ErrorCode(err)).To(Equal(api.ENOTFOUND))

		_, err = Attach(DefaultContext, models.EvidenceTarget{Kind: "PERSON", ID: dummy.JohnDoe.ID}, photo("me.png"), dummy.JohnDoe.ID)
		Expect(api.ErrorCode(err)).To(Equal(api.EINVALID))
	})

	ginkgo.Context("with a size limit", ginkgo.Ordered, func() {
		ginkgo.BeforeAll(func() {
			Expect(context.UpdateProperty(DefaultContext, context.PropertyEvidenceMaxSize, "8")).To(Succeed())
		})
		ginkgo.AfterAll(func() {
			Expect(DefaultContext.DB().Delete(&models.AppProperty{Name: context.PropertyEvidenceMaxSize}).Error).To(Succeed())
			DefaultContext.ClearCache()
		})

		ginkgo.It("rejects files over the limit", func() {
			_, err := Attach(DefaultContext, target, photo("big.png"), dummy.JohnDoe.ID)
			Expect(api.ErrorCode(err)).To(Equal(api.EINVALID))
			Expect(api.ErrorMessage(err)).To(ContainSubstring("exceeds maximum allowed size"))
		})

		ginkgo.It("accepts files at the limit", func() {
			_, err := Attach(DefaultContext, target, Upload{Filename: "small.txt", Content: strings.NewReader("12345678")}, dummy.JohnDoe.ID)
			Expect(err).ToNot(HaveOccurred())
		})
	})
})

func drainBlobCleanup() {
	consumer := NewBlobCleanup()
	for {
		count, err := consumer.Handle(DefaultContext)
		Expect(err).ToNot(HaveOccurred())
		if count == 0 {
			return
		}
	}
}

func queuedBlobDeletes(path string) []models.Event {
	var events []models.Event
	Expect(DefaultContext.DB().Where("name = ? AND properties->>'path' = ?", EventBlobDelete, path).
		Find(&events).Error).To(Succeed())
	return events
}

var _ = ginkgo.Describe("Delete", func() {
	ginkgo.It("removes the row and queues the blob", func() {
		ev, err := Attach(DefaultContext, models.IncidentTarget(dummy.ChemicalSpill.ID), photo("drum.png"), dummy.JohnWick.ID)
		Expect(err).ToNot(HaveOccurred())

		Expect(Delete(DefaultContext, ev.ID)).To(Succeed())
		Expect(queuedBlobDeletes(ev.Path)).To(HaveLen(1))
		Expect(blobExists(ev.Path)).To(BeTrue())

		drainBlobCleanup()
		Expect(blobExists(ev.Path)).To(BeFalse())
		Expect(queuedBlobDeletes(ev.Path)).To(BeEmpty())

		err = Delete(DefaultContext, ev.ID)
		Expect(api.ErrorCode(err)).To(Equal(api.ENOTFOUND))
	})

	ginkgo.It("tolerates a missing blob", func() {
		ev, err := Attach(DefaultContext, models.IncidentTarget(dummy.ChemicalSpill.ID), photo("gone.png"), dummy.JohnWick.ID)
		Expect(err).ToNot(HaveOccurred())

		bucket, err := Bucket(DefaultContext)
		Expect(err).ToNot(HaveOccurred())
		Expect(bucket.Delete(DefaultContext, ev.Path)).To(Succeed())

		Expect(Delete(DefaultContext, ev.ID)).To(Succeed())
		drainBlobCleanup()
		Expect(queuedBlobDeletes(ev.Path)).To(BeEmpty())
	})

	ginkgo.It("removes everything attached to a target", func() {
		target := models.IncidentTarget(dummy.BlockedExit.ID)
		var paths []string
		for _, name := range []string{"exit-1.png", "exit-2.png"} {
			ev, err := Attach(DefaultContext, target, photo(name), dummy.JohnWick.ID)
			Expect(err).ToNot(HaveOccurred())
			paths = append(paths, ev.Path)
		}

		listed, err := List(DefaultContext, target)
		Expect(err).ToNot(HaveOccurred())
		Expect(listed).To(HaveLen(2))

		deleted, err := DeleteForTarget(DefaultContext, target)
		Expect(err).ToNot(HaveOccurred())
		Expect(deleted).To(ConsistOf(paths))

		listed, err = List(DefaultContext, target)
		Expect(err).ToNot(HaveOccurred())
		Expect(listed).To(BeEmpty())

		drainBlobCleanup()
		for _, p := range paths {
			Expect(blobExists(p)).To(BeFalse())
		}
	})

	ginkgo.Context("when the bucket rejects deletes", ginkgo.Ordered, func() {
		const failingURL = "mem://evidence-failing"
		var ev *models.Evidence

		ginkgo.BeforeAll(func() {
			var err error
			ev, err = Attach(DefaultContext, models.IncidentTarget(dummy.ChemicalSpill.ID), photo("valve.png"), dummy.JohnWick.ID)
			Expect(err).ToNot(HaveOccurred())
			drainBlobCleanup()

			// a closed bucket fails every operation
			failing, err := blob.OpenBucket(DefaultContext, failingURL)
			Expect(err).ToNot(HaveOccurred())
			Expect(failing.Close()).To(Succeed())
			buckets.Set(failingURL, failing)
			Expect(context.UpdateProperty(DefaultContext, PropertyBucket, failingURL)).To(Succeed())
		})

		ginkgo.AfterAll(func() {
			Expect(DefaultContext.DB().Delete(&models.AppProperty{Name: PropertyBucket}).Error).To(Succeed())
			DefaultContext.ClearCache()
			buckets.Remove(failingURL)
			Expect(DefaultContext.DB().Where("name = ?", EventBlobDelete).Delete(&models.Event{}).Error).To(Succeed())
		})

		ginkgo.It("keeps the blob queued for another attempt", func() {
			Expect(Delete(DefaultContext, ev.ID)).To(Succeed())

			count, err := NewBlobCleanup().Handle(DefaultContext)
			Expect(count).To(Equal(1))
			Expect(err).To(HaveOccurred())

			pending := queuedBlobDeletes(ev.Path)
			Expect(pending).To(HaveLen(1))
			Expect(pending[0].Attempts).To(Equal(1))
			Expect(pending[0].Error).ToNot(BeNil())

			_, _, err = Open(DefaultContext, ev.ID)
			Expect(api.ErrorCode(err)).To(Equal(api.ENOTFOUND))
		})
	})
})
