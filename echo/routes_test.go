package echo

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/google/uuid"
	echov4 "github.com/labstack/echo/v4"
	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/models"
	"github.com/flanksource/hse/notifications"
	"github.com/flanksource/hse/tests/fixtures/dummy"
)

func newServer() *echov4.Echo {
	e := echov4.New()
	RegisterRoutes(DefaultContext, e, HeaderActorResolver)
	return e
}

func call(e *echov4.Echo, method, path string, body any, actor *uuid.UUID) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).ToNot(HaveOccurred())
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echov4.HeaderContentType, echov4.MIMEApplicationJSON)
	if actor != nil {
		req.Header.Set(HeaderActor, actor.String())
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](rec *httptest.ResponseRecorder) T {
	var v T
	Expect(json.Unmarshal(rec.Body.Bytes(), &v)).To(Succeed(), rec.Body.String())
	return v
}

var _ = ginkgo.Describe("Incident and CAPA routes", ginkgo.Ordered, func() {
	var (
		e        *echov4.Echo
		incident models.Incident
		capa     models.CAPA
	)

	ginkgo.BeforeAll(func() {
		e = newServer()
	})

	ginkgo.It("creates an incident", func() {
		rec := call(e, http.MethodPost, "/incidents", map[string]any{
			"title":         "Ladder slipped on wet floor",
			"description":   "Ladder base slid while changing a light",
			"type":          models.IncidentTypeAccident,
			"severity":      models.SeverityHigh,
			"status":        models.IncidentStatusSubmitted,
			"incident_date": dummy.DummyNow.Add(-time.Hour),
		}, &dummy.JohnDoe.ID)
		Expect(rec.Code).To(Equal(http.StatusCreated), rec.Body.String())

		incident = decode[models.Incident](rec)
		Expect(incident.Reference).To(HavePrefix("INC-2026-"))
		Expect(incident.ReporterID).To(Equal(dummy.JohnDoe.ID))
	})

	ginkgo.It("validates it once", func() {
		rec := call(e, http.MethodPost, "/incidents/"+incident.ID.String()+"/validate", nil, &dummy.SafetyManager.ID)
		Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())
		Expect(decode[models.Incident](rec).Status).To(Equal(models.IncidentStatusValidated))

		rec = call(e, http.MethodPost, "/incidents/"+incident.ID.String()+"/validate", nil, &dummy.SafetyManager.ID)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(decode[api.HTTPError](rec).Err).To(Equal(api.EINVALIDTRANSITION))
	})

	ginkgo.It("assesses the risk", func() {
		rec := call(e, http.MethodPut, "/incidents/"+incident.ID.String()+"/risk-assessment",
			map[string]any{"probability": 5, "impact": 4}, &dummy.SafetyManager.ID)
		Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())

		assessment := decode[models.RiskAssessment](rec)
		Expect(assessment.RiskLevel).To(Equal(20))
		Expect(assessment.RiskCategory).To(Equal(models.RiskCategoryHigh))

		rec = call(e, http.MethodPut, "/incidents/"+incident.ID.String()+"/risk-assessment",
			map[string]any{"probability": 6, "impact": 4}, &dummy.SafetyManager.ID)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	ginkgo.It("raises a CAPA", func() {
		rec := call(e, http.MethodPost, "/incidents/"+incident.ID.String()+"/capas", map[string]any{
			"action_type":           models.ActionTypeCorrective,
			"title":                 "Fit anti-slip feet to ladders",
			"responsible_person_id": dummy.JohnWick.ID,
			"due_date":              dummy.DummyNow.AddDate(0, 0, 7),
		}, &dummy.SafetyManager.ID)
		Expect(rec.Code).To(Equal(http.StatusCreated), rec.Body.String())

		capa = decode[models.CAPA](rec)
		Expect(capa.Reference).To(HavePrefix("CAPA-2026-"))
	})

	ginkgo.It("completes the CAPA once", func() {
		rec := call(e, http.MethodPost, "/capas/"+capa.ID.String()+"/complete", nil, &dummy.JohnWick.ID)
		Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())
		res := decode[CompleteResponse](rec)
		Expect(res.Completed).To(BeTrue())
		Expect(res.CAPA.Status).To(Equal(models.CAPAStatusCompleted))

		rec = call(e, http.MethodPost, "/capas/"+capa.ID.String()+"/complete", nil, &dummy.JohnWick.ID)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(decode[CompleteResponse](rec).Completed).To(BeFalse())
	})

	ginkgo.It("verifies the CAPA", func() {
		rec := call(e, http.MethodPost, "/capas/"+capa.ID.String()+"/verify", VerifyRequest{Notes: "Checked all ladders"}, &dummy.SafetyManager.ID)
		Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())

		verified := decode[models.CAPA](rec)
		Expect(verified.Status).To(Equal(models.CAPAStatusVerified))
		Expect(verified.VerificationNotes).To(Equal("Checked all ladders"))
	})

	ginkgo.It("closes the incident", func() {
		rec := call(e, http.MethodPost, "/incidents/"+incident.ID.String()+"/close", nil, &dummy.SafetyManager.ID)
		Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())
		Expect(decode[models.Incident](rec).Status).To(Equal(models.IncidentStatusClosed))
	})

	ginkgo.It("attaches evidence", func() {
		var body bytes.Buffer
		form := multipart.NewWriter(&body)
		part, err := form.CreateFormFile("file", "ladder.jpg")
		Expect(err).ToNot(HaveOccurred())
		_, err = part.Write([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'})
		Expect(err).ToNot(HaveOccurred())
		Expect(form.WriteField("title", "Ladder feet")).To(Succeed())
		Expect(form.Close()).To(Succeed())

		req := httptest.NewRequest(http.MethodPost, "/capas/"+capa.ID.String()+"/evidence", &body)
		req.Header.Set(echov4.HeaderContentType, form.FormDataContentType())
		req.Header.Set(HeaderActor, dummy.JohnWick.ID.String())
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusCreated), rec.Body.String())

		ev := decode[models.Evidence](rec)
		Expect(ev.Filename).To(Equal("ladder.jpg"))
		Expect(ev.FileType).To(Equal(models.FileTypePhoto))
		Expect(ev.Target).To(Equal(models.CAPATarget(capa.ID)))
	})
})

var _ = ginkgo.Describe("Overdue route", func() {
	ginkgo.It("lists overdue CAPAs", func() {
		rec := call(newServer(), http.MethodGet, "/overdue/capas", nil, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))

		overdue := decode[[]models.CAPA](rec)
		Expect(overdue).To(ContainElement(HaveField("ID", dummy.GuardRailCAPA.ID)))
	})

	ginkgo.It("lists overdue incidents", func() {
		rec := call(newServer(), http.MethodGet, "/overdue/incidents", nil, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(decode[[]models.Incident](rec)).To(ContainElement(HaveField("ID", dummy.ForkliftNearMiss.ID)))
	})

	ginkgo.It("rejects an unknown kind", func() {
		rec := call(newServer(), http.MethodGet, "/overdue/risks", nil, nil)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})
})

var _ = ginkgo.Describe("Reporting routes", func() {
	ginkgo.It("lists incident summaries by status", func() {
		rec := call(newServer(), http.MethodGet, "/incidents?status=closed", nil, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))

		summaries := decode[[]models.IncidentSummary](rec)
		Expect(summaries).To(ContainElement(HaveField("ID", dummy.BlockedExit.ID)))
		Expect(summaries).To(HaveEach(HaveField("Status", models.IncidentStatusClosed)))
	})

	ginkgo.It("rejects an unknown status", func() {
		rec := call(newServer(), http.MethodGet, "/incidents?status=archived", nil, nil)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	ginkgo.It("returns incident and CAPA statistics", func() {
		rec := call(newServer(), http.MethodGet, "/statistics", nil, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))

		stats := decode[StatisticsResponse](rec)
		Expect(stats.Incidents.Total).To(BeNumerically(">=", len(dummy.AllDummyIncidents)))
		Expect(stats.Incidents.BySeverity).To(HaveKey(string(models.SeverityCritical)))
		Expect(stats.CAPAs.Total).To(BeNumerically(">=", len(dummy.AllDummyCAPAs)))
		Expect(stats.CAPAs.Overdue).To(BeNumerically(">=", 1))
	})
})

var _ = ginkgo.Describe("Errors", func() {
	ginkgo.It("requires an actor", func() {
		rec := call(newServer(), http.MethodPost, "/incidents/"+dummy.ForkliftNearMiss.ID.String()+"/validate", nil, nil)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	ginkgo.It("returns not found for unknown ids", func() {
		rec := call(newServer(), http.MethodGet, "/capas/"+uuid.NewString(), nil, nil)
		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(decode[api.HTTPError](rec).Err).To(Equal(api.ENOTFOUND))
	})

	ginkgo.It("rejects malformed ids", func() {
		rec := call(newServer(), http.MethodGet, "/incidents/not-a-uuid", nil, nil)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})
})

var _ = ginkgo.Describe("Notification routes", ginkgo.Ordered, func() {
	var notification *models.Notification

	ginkgo.BeforeAll(func() {
		var err error
		notification, err = notifications.Dispatch(DefaultContext, models.DomainEvent{
			Type:        models.NotificationSystem,
			Title:       "Quarterly audit scheduled",
			Message:     "The site audit starts on Monday",
			RecipientID: &dummy.JohnDoe.ID,
		})
		Expect(err).ToNot(HaveOccurred())
	})

	ginkgo.It("lists unread notifications", func() {
		rec := call(newServer(), http.MethodGet, "/notifications?unread=true", nil, &dummy.JohnDoe.ID)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(decode[[]models.Notification](rec)).To(ContainElement(HaveField("ID", notification.ID)))
	})

	ginkgo.It("marks a notification read once", func() {
		path := "/notifications/" + notification.ID.String() + "/read"

		rec := call(newServer(), http.MethodPost, path, nil, &dummy.JohnDoe.ID)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(decode[ReadResponse](rec).Changed).To(BeTrue())

		rec = call(newServer(), http.MethodPost, path, nil, &dummy.JohnDoe.ID)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(decode[ReadResponse](rec).Changed).To(BeFalse())
	})

	ginkgo.It("hides notifications of other users", func() {
		rec := call(newServer(), http.MethodPost, "/notifications/"+notification.ID.String()+"/read", nil, &dummy.JohnWick.ID)
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})
})

var _ = ginkgo.Describe("Debug routes", func() {
	ginkgo.It("summarises the event queue", func() {
		e := echov4.New()
		AddDebugHandlers(DefaultContext, e, nil)

		req := httptest.NewRequest(http.MethodGet, "/debug/event-queue", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())
	})

	ginkgo.It("stores properties", func() {
		e := echov4.New()
		AddDebugHandlers(DefaultContext, e, nil)

		req := httptest.NewRequest(http.MethodPost, "/debug/properties?name=test.debug&value=on", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())
		Expect(DefaultContext.Properties().On(false, "test.debug")).To(BeTrue())

		req = httptest.NewRequest(http.MethodGet, "/debug/properties", nil)
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("test.debug"))

		req = httptest.NewRequest(http.MethodPost, "/debug/properties", strings.NewReader(`{"test.batch.a":"1","test.batch.b":"off"}`))
		req.Header.Set(echov4.HeaderContentType, echov4.MIMEApplicationJSON)
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())
		Expect(DefaultContext.Properties().Int("test.batch.a", 0)).To(Equal(1))
		Expect(DefaultContext.Properties().On(true, "test.batch.b")).To(BeFalse())
	})
})
