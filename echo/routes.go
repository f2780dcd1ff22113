// Package echo exposes the HSE operations over HTTP. Authentication is left
// to the embedding service, which supplies the acting user through an
// ActorResolver.
package echo

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/capas"
	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/evidence"
	"github.com/flanksource/hse/incidents"
	"github.com/flanksource/hse/job"
	"github.com/flanksource/hse/models"
	"github.com/flanksource/hse/notifications"
	"github.com/flanksource/hse/risk"
)

const HeaderActor = "X-HSE-User"

// ActorResolver returns the user performing the request.
type ActorResolver func(c echo.Context) (uuid.UUID, error)

// HeaderActorResolver trusts the user id in the X-HSE-User header. Only use
// it behind a proxy that sets the header.
func HeaderActorResolver(c echo.Context) (uuid.UUID, error) {
	raw := c.Request().Header.Get(HeaderActor)
	if raw == "" {
		return uuid.Nil, api.Errorf(api.EUNAUTHORIZED, "missing %s header", HeaderActor)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, api.Errorf(api.EUNAUTHORIZED, "invalid %s header", HeaderActor)
	}
	return id, nil
}

// WithContext makes ctx, bound to the request, available to handlers.
func WithContext(ctx context.Context) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(ctx.Wrap(c.Request().Context())))
			return next(c)
		}
	}
}

func writeError(c echo.Context, err error) error {
	return api.WriteError(c, err)
}

type handlers struct {
	actor ActorResolver
}

// request returns the request context and the acting user.
func (h handlers) request(c echo.Context) (context.Context, uuid.UUID, error) {
	ctx := c.Request().Context().(context.Context)
	actor, err := h.actor(c)
	if err != nil {
		return ctx, uuid.Nil, err
	}
	return ctx.WithActor(actor), actor, nil
}

func pathID(c echo.Context, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return uuid.Nil, api.Errorf(api.EINVALID, "invalid %s: %q", param, c.Param(param))
	}
	return id, nil
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return api.Errorf(api.EINVALID, "invalid request body").WithDebugInfo("%v", err)
	}
	return nil
}

func RegisterRoutes(ctx context.Context, e *echo.Echo, actor ActorResolver) {
	h := handlers{actor: actor}
	g := e.Group("", WithContext(ctx))

	g.POST("/incidents", h.createIncident)
	g.GET("/incidents", h.listIncidents)
	g.GET("/incidents/:id", h.getIncident)
	g.POST("/incidents/:id/validate", h.validateIncident)
	g.POST("/incidents/:id/close", h.closeIncident)
	g.PUT("/incidents/:id/risk-assessment", h.upsertRiskAssessment)
	g.POST("/incidents/:id/capas", h.createCAPA)
	g.POST("/incidents/:id/evidence", h.attachEvidence(models.EvidenceTargetIncident))

	g.GET("/capas/:id", h.getCAPA)
	g.POST("/capas/:id/complete", h.completeCAPA)
	g.POST("/capas/:id/verify", h.verifyCAPA)
	g.POST("/capas/:id/evidence", h.attachEvidence(models.EvidenceTargetCAPA))

	g.GET("/overdue/:kind", h.listOverdue)
	g.GET("/statistics", h.statistics)

	g.GET("/notifications", h.listNotifications)
	g.POST("/notifications/:id/read", h.markNotificationRead)
}

func (h handlers) createIncident(c echo.Context) error {
	ctx, actor, err := h.request(c)
	if err != nil {
		return writeError(c, err)
	}

	var input incidents.CreateInput
	if err := bind(c, &input); err != nil {
		return writeError(c, err)
	}

	incident, err := incidents.Create(ctx, input, actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, incident)
}

func (h handlers) getIncident(c echo.Context) error {
	ctx := c.Request().Context().(context.Context)
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	incident, err := incidents.Get(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, incident)
}

func (h handlers) incidentTransition(fn func(context.Context, uuid.UUID, uuid.UUID) (*models.Incident, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, actor, err := h.request(c)
		if err != nil {
			return writeError(c, err)
		}
		id, err := pathID(c, "id")
		if err != nil {
			return writeError(c, err)
		}

		incident, err := fn(ctx, id, actor)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, incident)
	}
}

func (h handlers) validateIncident(c echo.Context) error {
	return h.incidentTransition(incidents.ValidateIncident)(c)
}

func (h handlers) closeIncident(c echo.Context) error {
	return h.incidentTransition(incidents.CloseIncident)(c)
}

func (h handlers) upsertRiskAssessment(c echo.Context) error {
	ctx, actor, err := h.request(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	var input risk.Input
	if err := bind(c, &input); err != nil {
		return writeError(c, err)
	}

	assessment, err := risk.Upsert(ctx, id, input, actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, assessment)
}

func (h handlers) createCAPA(c echo.Context) error {
	ctx, actor, err := h.request(c)
	if err != nil {
		return writeError(c, err)
	}
	incidentID, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	var input capas.CreateInput
	if err := bind(c, &input); err != nil {
		return writeError(c, err)
	}

	capa, err := capas.Create(ctx, incidentID, input, actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, capa)
}

func (h handlers) getCAPA(c echo.Context) error {
	ctx := c.Request().Context().(context.Context)
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	capa, err := capas.Get(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, capa)
}

type CompleteResponse struct {
	Completed bool         `json:"completed"`
	CAPA      *models.CAPA `json:"capa"`
}

func (h handlers) completeCAPA(c echo.Context) error {
	ctx, actor, err := h.request(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	completed, err := capas.CompleteCAPA(ctx, id, actor)
	if err != nil {
		return writeError(c, err)
	}
	capa, err := capas.Get(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, CompleteResponse{Completed: completed, CAPA: capa})
}

type VerifyRequest struct {
	Notes string `json:"notes"`
}

func (h handlers) verifyCAPA(c echo.Context) error {
	ctx, actor, err := h.request(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	var req VerifyRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}

	capa, err := capas.VerifyCAPA(ctx, id, actor, req.Notes)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, capa)
}

func (h handlers) listOverdue(c echo.Context) error {
	ctx := c.Request().Context().(context.Context)

	switch strings.ToLower(c.Param("kind")) {
	case "incidents":
		overdue, err := incidents.ListOverdue(ctx)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, overdue)
	case "capas":
		overdue, err := capas.ListOverdue(ctx)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, overdue)
	}
	return writeError(c, api.Errorf(api.EINVALID, "unknown kind %q, expected incidents or capas", c.Param("kind")))
}

// listIncidents returns incident summaries, optionally filtered by
// ?status=SUBMITTED,UNDER_INVESTIGATION.
func (h handlers) listIncidents(c echo.Context) error {
	ctx := c.Request().Context().(context.Context)

	var statuses []models.IncidentStatus
	for _, s := range strings.Split(c.QueryParam("status"), ",") {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		status := models.IncidentStatus(strings.ToUpper(s))
		if !status.Valid() {
			return writeError(c, api.Errorf(api.EINVALID, "invalid status %q", s))
		}
		statuses = append(statuses, status)
	}

	summaries, err := incidents.Summaries(ctx, statuses...)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, summaries)
}

type StatisticsResponse struct {
	Incidents *incidents.Statistics `json:"incidents"`
	CAPAs     *capas.Statistics     `json:"capas"`
}

func (h handlers) statistics(c echo.Context) error {
	ctx := c.Request().Context().(context.Context)

	incidentStats, err := incidents.GetStatistics(ctx)
	if err != nil {
		return writeError(c, err)
	}
	capaStats, err := capas.GetStatistics(ctx, ctx.Properties().Duration(context.PropertyCAPADueSoon, job.DefaultCAPADueSoon))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, StatisticsResponse{Incidents: incidentStats, CAPAs: capaStats})
}

func (h handlers) listNotifications(c echo.Context) error {
	ctx, actor, err := h.request(c)
	if err != nil {
		return writeError(c, err)
	}

	list, err := notifications.List(ctx, actor, notifications.ListOptions{UnreadOnly: c.QueryParam("unread") == "true"})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

type ReadResponse struct {
	Changed bool `json:"changed"`
}

func (h handlers) markNotificationRead(c echo.Context) error {
	ctx, actor, err := h.request(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	changed, err := notifications.MarkRead(ctx, id, actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ReadResponse{Changed: changed})
}

func (h handlers) attachEvidence(kind models.EvidenceTargetKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, actor, err := h.request(c)
		if err != nil {
			return writeError(c, err)
		}
		id, err := pathID(c, "id")
		if err != nil {
			return writeError(c, err)
		}

		header, err := c.FormFile("file")
		if err != nil {
			return writeError(c, api.Errorf(api.EINVALID, "file is required"))
		}
		file, err := header.Open()
		if err != nil {
			return writeError(c, err)
		}
		defer file.Close()

		ev, err := evidence.Attach(ctx, models.EvidenceTarget{Kind: kind, ID: id}, evidence.Upload{
			Filename:    header.Filename,
			Title:       c.FormValue("title"),
			Description: c.FormValue("description"),
			Content:     file,
		}, actor)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, ev)
	}
}
