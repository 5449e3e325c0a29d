package patients

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
	g := e.Group("/patients")
	g.GET("", h.List)
	g.HEAD("", h.List)
	g.GET("/search", h.Search)
	g.HEAD("/search", h.Search)
	g.GET("/:id", h.Get)
	g.HEAD("/:id", h.Get)
	g.POST("", h.Create)
	g.PATCH("/:id", h.Patch)
	g.DELETE("/:id", h.Delete)
}

func location(p *Patient) string {
	return "/patients/" + p.ID.String()
}

func browsable(p *Patient) rest.Browsable[*Patient] {
	href := location(p)
	return rest.NewBrowsable(p,
		rest.Link{Relation: rest.RelSelf, Method: http.MethodGet, Href: href},
		rest.Link{Relation: rest.RelDelete, Method: http.MethodDelete, Href: href},
	)
}

func browsables(items []*Patient) []rest.Browsable[*Patient] {
	out := make([]rest.Browsable[*Patient], 0, len(items))
	for _, p := range items {
		out = append(out, browsable(p))
	}
	return out
}

func (h *Handler) List(c echo.Context) error {
	p, err := pagination.FromContext(c, h.pages)
	if err != nil {
		return err
	}
	items, total, err := h.svc.List(c.Request().Context(), search.ParseSort(c.QueryParam("sort")), p.Limit(), p.Offset())
	if err != nil {
		return err
	}
	return rest.Paged(c, pagination.NewPage(browsables(items), total, p.PageSize), p)
}

func (h *Handler) Search(c echo.Context) error {
	p, err := pagination.FromContext(c, h.pages)
	if err != nil {
		return err
	}
	var q SearchInfo
	if err := rest.BindQuery(c, &q); err != nil {
		return err
	}
	f, err := q.Filter()
	if err != nil {
		return err
	}
	items, total, err := h.svc.Search(c.Request().Context(), f, search.ParseSort(q.Sort), p.Limit(), p.Offset())
	if err != nil {
		return err
	}
	return rest.Paged(c, pagination.NewPage(browsables(items), total, p.PageSize), p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := rest.ParamID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	rest.SetVersion(c, p.Version)
	return rest.Render(c, http.StatusOK, browsable(p))
}

func (h *Handler) Create(c echo.Context) error {
	var info Info
	if err := c.Bind(&info); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient").SetInternal(err)
	}
	p, warnings, err := h.svc.Create(c.Request().Context(), info)
	if err != nil {
		return err
	}
	rest.Warn(c, warnings)
	rest.SetVersion(c, p.Version)
	return rest.Created(c, location(p), browsable(p))
}

func (h *Handler) Patch(c echo.Context) error {
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

	p, warnings, result, err := h.svc.Patch(c.Request().Context(), id, ops, expected)
	if err != nil {
		return err
	}
	if result != cqrs.ModifyDone {
		return echo.NewHTTPError(result.Status())
	}
	rest.Warn(c, warnings)
	rest.SetVersion(c, p.Version)
	return rest.Render(c, http.StatusOK, browsable(p))
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := rest.ParamID(c, "id")
	if err != nil {
		return err
	}
	result, err := h.svc.Delete(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if result != cqrs.DeleteDone {
		return echo.NewHTTPError(result.Status())
	}
	return c.NoContent(http.StatusNoContent)
}
