package agenda

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medeasy/medeasy/internal/platform/cqrs"
	"github.com/medeasy/medeasy/internal/platform/rest"
	"github.com/medeasy/medeasy/internal/platform/search"
	"github.com/medeasy/medeasy/pkg/pagination"
)

type Handler struct {
	svc   *Service
	pages pagination.Config
}

func NewHandler(svc *Service, pages pagination.Config) *Handler {
	return &Handler{svc: svc, pages: pages}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	a := e.Group("/agenda/appointments")
	a.GET("", h.ListAppointments)
	a.HEAD("", h.ListAppointments)
	a.GET("/search", h.SearchAppointments)
	a.HEAD("/search", h.SearchAppointments)
	a.GET("/:id", h.GetAppointment)
	a.HEAD("/:id", h.GetAppointment)
	a.POST("", h.CreateAppointment)
	a.PATCH("/:id", h.PatchAppointment)
	a.DELETE("/:id", h.DeleteAppointment)
	a.DELETE("/:id/participants/:participantId", h.RemoveParticipant)

	p := e.Group("/agenda/participants")
	p.GET("", h.ListParticipants)
	p.HEAD("", h.ListParticipants)
	p.GET("/search", h.SearchParticipants)
	p.HEAD("/search", h.SearchParticipants)
	p.GET("/:id", h.GetParticipant)
	p.HEAD("/:id", h.GetParticipant)
	p.GET("/:id/appointments", h.AppointmentsOf)
	p.HEAD("/:id/appointments", h.AppointmentsOf)
}

func appointmentLocation(a *Appointment) string {
	return "/agenda/appointments/" + a.ID.String()
}

func participantLocation(p *Participant) string {
	return "/agenda/participants/" + p.ID.String()
}

func browsableAppointment(a *Appointment) rest.Browsable[*Appointment] {
	href := appointmentLocation(a)
	links := []rest.Link{
		{Relation: rest.RelSelf, Method: http.MethodGet, Href: href},
		{Relation: rest.RelDelete, Method: http.MethodDelete, Href: href},
	}
	for _, p := range a.Participants {
		links = append(links, rest.Link{
			Relation: "get-participant-" + p.ID.String(),
			Method:   http.MethodGet,
			Href:     participantLocation(p),
		})
	}
	return rest.NewBrowsable(a, links...)
}

func browsableAppointments(items []*Appointment) []rest.Browsable[*Appointment] {
	out := make([]rest.Browsable[*Appointment], 0, len(items))
	for _, a := range items {
		out = append(out, browsableAppointment(a))
	}
	return out
}

func browsableParticipant(p *Participant) rest.Browsable[*Participant] {
	href := participantLocation(p)
	return rest.NewBrowsable(p,
		rest.Link{Relation: rest.RelSelf, Method: http.MethodGet, Href: href},
		rest.Link{Relation: "appointments", Method: http.MethodGet, Href: href + "/appointments"},
	)
}

func browsableParticipants(items []*Participant) []rest.Browsable[*Participant] {
	out := make([]rest.Browsable[*Participant], 0, len(items))
	for _, p := range items {
		out = append(out, browsableParticipant(p))
	}
	return out
}

func (h *Handler) ListAppointments(c echo.Context) error {
	p, err := pagination.FromContext(c, h.pages)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListAppointments(c.Request().Context(), search.ParseSort(c.QueryParam("sort")), p.Limit(), p.Offset())
	if err != nil {
		return err
	}
	return rest.Paged(c, pagination.NewPage(browsableAppointments(items), total, p.PageSize), p)
}

func (h *Handler) SearchAppointments(c echo.Context) error {
	p, err := pagination.FromContext(c, h.pages)
	if err != nil {
		return err
	}
	var q SearchAppointmentInfo
	if err := rest.BindQuery(c, &q); err != nil {
		return err
	}
	f, err := q.Filter()
	if err != nil {
		return err
	}
	participant, err := q.ParticipantFilter()
	if err != nil {
		return err
	}
	items, total, err := h.svc.SearchAppointments(c.Request().Context(), f, participant, search.ParseSort(q.Sort), p.Limit(), p.Offset())
	if err != nil {
		return err
	}
	return rest.Paged(c, pagination.NewPage(browsableAppointments(items), total, p.PageSize), p)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := rest.ParamID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return err
	}
	rest.SetVersion(c, a.Version)
	return rest.Render(c, http.StatusOK, browsableAppointment(a))
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var info NewAppointmentInfo
	if err := c.Bind(&info); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment").SetInternal(err)
	}
	a, warnings, err := h.svc.CreateAppointment(c.Request().Context(), info)
	if err != nil {
		return err
	}
	rest.Warn(c, warnings)
	rest.SetVersion(c, a.Version)
	return rest.Created(c, appointmentLocation(a), browsableAppointment(a))
}

func (h *Handler) PatchAppointment(c echo.Context) error {
	id, err := rest.ParamID(c, "id")
	if err != nil {
		return err
	}
	version, ok, err := rest.IfMatch(c)
	if err != nil {
		return err
	}
	var expected *int
	if ok {
		expected = &version
	}
	ops, err := rest.BindPatch(c)
	if err != nil {
		return err
	}

	a, warnings, result, err := h.svc.PatchAppointment(c.Request().Context(), id, ops, expected)
	if err != nil {
		return err
	}
	if result != cqrs.ModifyDone {
		return echo.NewHTTPError(result.Status())
	}
	rest.Warn(c, warnings)
	rest.SetVersion(c, a.Version)
	return rest.Render(c, http.StatusOK, browsableAppointment(a))
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := rest.ParamID(c, "id")
	if err != nil {
		return err
	}
	result, err := h.svc.DeleteAppointment(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if result != cqrs.DeleteDone {
		return echo.NewHTTPError(result.Status())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RemoveParticipant(c echo.Context) error {
	id, err := rest.ParamID(c, "id")
	if err != nil {
		return err
	}
	participantID, err := rest.ParamID(c, "participantId")
	if err != nil {
		return err
	}
	result, err := h.svc.RemoveParticipant(c.Request().Context(), id, participantID)
	if err != nil {
		return err
	}
	if result != cqrs.DeleteDone {
		return echo.NewHTTPError(result.Status())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListParticipants(c echo.Context) error {
	p, err := pagination.FromContext(c, h.pages)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListParticipants(c.Request().Context(), search.ParseSort(c.QueryParam("sort")), p.Limit(), p.Offset())
	if err != nil {
		return err
	}
	return rest.Paged(c, pagination.NewPage(browsableParticipants(items), total, p.PageSize), p)
}

func (h *Handler) SearchParticipants(c echo.Context) error {
	p, err := pagination.FromContext(c, h.pages)
	if err != nil {
		return err
	}
	var q SearchParticipantInfo
	if err := rest.BindQuery(c, &q); err != nil {
		return err
	}
	f, err := q.Filter()
	if err != nil {
		return err
	}
	items, total, err := h.svc.SearchParticipants(c.Request().Context(), f, search.ParseSort(q.Sort), p.Limit(), p.Offset())
	if err != nil {
		return err
	}
	return rest.Paged(c, pagination.NewPage(browsableParticipants(items), total, p.PageSize), p)
}

func (h *Handler) GetParticipant(c echo.Context) error {
	id, err := rest.ParamID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.GetParticipant(c.Request().Context(), id)
	if err != nil {
		return err
	}
	rest.SetVersion(c, p.Version)
	return rest.Render(c, http.StatusOK, browsableParticipant(p))
}

func (h *Handler) AppointmentsOf(c echo.Context) error {
	id, err := rest.ParamID(c, "id")
	if err != nil {
		return err
	}
	p, err := pagination.FromContext(c, h.pages)
	if err != nil {
		return err
	}
	items, total, err := h.svc.AppointmentsOf(c.Request().Context(), id, p.Limit(), p.Offset())
	if err != nil {
		return err
	}
	return rest.Paged(c, pagination.NewPage(browsableAppointments(items), total, p.PageSize), p)
}
