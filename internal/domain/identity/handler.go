package identity

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medeasy/medeasy/internal/platform/auth"
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
	g := e.Group("/identity/accounts")
	// the account directory is for administrators only
	admin := auth.RequireRole(auth.RoleAdmin)
	g.GET("", h.List, admin)
	g.HEAD("", h.List, admin)
	g.GET("/search", h.Search, admin)
	g.HEAD("/search", h.Search, admin)
	g.GET("/:id", h.Get)
	g.HEAD("/:id", h.Get)
	g.POST("", h.Create)
	g.PATCH("/:id", h.Patch)
	g.DELETE("/:id", h.Delete)

	t := e.Group("/auth/token")
	t.POST("", h.Login)
	t.PUT("/:username", h.Refresh)
	t.DELETE("/:username", h.Invalidate)
}

func location(a *Account) string {
	return "/identity/accounts/" + a.ID.String()
}

func browsable(a *Account) rest.Browsable[*Account] {
	href := location(a)
	return rest.NewBrowsable(a,
		rest.Link{Relation: rest.RelSelf, Method: http.MethodGet, Href: href},
		rest.Link{Relation: rest.RelDelete, Method: http.MethodDelete, Href: href},
		rest.Link{Relation: "invalidate-tokens", Method: http.MethodDelete, Href: "/auth/token/" + a.Username},
	)
}

func browsables(items []*Account) []rest.Browsable[*Account] {
	out := make([]rest.Browsable[*Account], 0, len(items))
	for _, a := range items {
		out = append(out, browsable(a))
	}
	return out
}

func (h *Handler) List(c echo.Context) error {
	p, err := pagination.FromContext(c, h.pages)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListAccounts(c.Request().Context(), search.ParseSort(c.QueryParam("sort")), p.Limit(), p.Offset())
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
	items, total, err := h.svc.SearchAccounts(c.Request().Context(), f, search.ParseSort(q.Sort), p.Limit(), p.Offset())
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
	a, err := h.svc.GetAccount(c.Request().Context(), id)
	if err != nil {
		return err
	}
	rest.SetVersion(c, a.Version)
	return rest.Render(c, http.StatusOK, browsable(a))
}

func (h *Handler) Create(c echo.Context) error {
	var info NewAccountInfo
	if err := c.Bind(&info); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid account").SetInternal(err)
	}
	a, warnings, err := h.svc.CreateAccount(c.Request().Context(), info)
	if err != nil {
		return err
	}
	rest.Warn(c, warnings)
	rest.SetVersion(c, a.Version)
	return rest.Created(c, location(a), browsable(a))
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

	a, warnings, result, err := h.svc.PatchAccount(c.Request().Context(), id, ops, expected)
	if err != nil {
		return err
	}
	if result != cqrs.ModifyDone {
		return echo.NewHTTPError(result.Status())
	}
	rest.Warn(c, warnings)
	rest.SetVersion(c, a.Version)
	return rest.Render(c, http.StatusOK, browsable(a))
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := rest.ParamID(c, "id")
	if err != nil {
		return err
	}
	result, err := h.svc.DeleteAccount(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if result != cqrs.DeleteDone {
		return echo.NewHTTPError(result.Status())
	}
	return c.NoContent(http.StatusNoContent)
}

func unauthorized(err error) error {
	if errors.Is(err, ErrInvalidCredentials) {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error()).SetInternal(err)
	}
	return err
}

// Login exchanges credentials for an access and refresh token pair.
func (h *Handler) Login(c echo.Context) error {
	var info LoginInfo
	if err := c.Bind(&info); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid credentials payload").SetInternal(err)
	}
	pair, err := h.svc.Login(c.Request().Context(), info)
	if err != nil {
		return unauthorized(err)
	}
	return rest.Render(c, http.StatusOK, pair)
}

func (h *Handler) Refresh(c echo.Context) error {
	var info RefreshInfo
	if err := c.Bind(&info); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid refresh payload").SetInternal(err)
	}
	token, err := h.svc.Refresh(c.Request().Context(), c.Param("username"), info.RefreshToken)
	if err != nil {
		return unauthorized(err)
	}
	return rest.Render(c, http.StatusOK, token)
}

func (h *Handler) Invalidate(c echo.Context) error {
	result, err := h.svc.Invalidate(c.Request().Context(), c.Param("username"))
	if err != nil {
		return err
	}
	if result != cqrs.InvalidateDone {
		return echo.NewHTTPError(result.Status())
	}
	return c.NoContent(http.StatusNoContent)
}
