package measures

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/medeasy/medeasy/internal/platform/cqrs"
	"github.com/medeasy/medeasy/internal/platform/rest"
	"github.com/medeasy/medeasy/internal/platform/search"
	"github.com/medeasy/medeasy/pkg/pagination"
)

type Handler struct {
	svc            *Service
	bloodPressures *measureHandler[*BloodPressure, BloodPressureInfo]
	bodyWeights    *measureHandler[*BodyWeight, BodyWeightInfo]
	temperatures   *measureHandler[*Temperature, TemperatureInfo]
	pages          pagination.Config
}

func NewHandler(
	svc *Service,
	bloodPressures *MeasureService[*BloodPressure, BloodPressureInfo],
	bodyWeights *MeasureService[*BodyWeight, BodyWeightInfo],
	temperatures *MeasureService[*Temperature, TemperatureInfo],
	pages pagination.Config,
) *Handler {
	return &Handler{
		svc:            svc,
		bloodPressures: &measureHandler[*BloodPressure, BloodPressureInfo]{svc: bloodPressures, pages: pages},
		bodyWeights:    &measureHandler[*BodyWeight, BodyWeightInfo]{svc: bodyWeights, pages: pages},
		temperatures:   &measureHandler[*Temperature, TemperatureInfo]{svc: temperatures, pages: pages},
		pages:          pages,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	p := e.Group("/measures/patients")
	p.GET("", h.SearchPatients)
	p.HEAD("", h.SearchPatients)
	p.GET("/search", h.SearchPatients)
	p.HEAD("/search", h.SearchPatients)
	p.GET("/:id", h.GetPatient)
	p.HEAD("/:id", h.GetPatient)
	p.POST("", h.CreatePatient)
	p.DELETE("/:id", h.DeletePatient)

	h.bloodPressures.register(e, p)
	h.bodyWeights.register(e, p)
	h.temperatures.register(e, p)

	p.GET("/:id/:form", h.GenericMeasures)
	p.HEAD("/:id/:form", h.GenericMeasures)
	p.POST("/:id/:form", h.CreateGenericMeasure)

	f := e.Group("/measures/forms")
	f.GET("", h.SearchForms)
	f.HEAD("", h.SearchForms)
	f.GET("/search", h.SearchForms)
	f.HEAD("/search", h.SearchForms)
	f.GET("/:id", h.GetForm)
	f.HEAD("/:id", h.GetForm)
	f.POST("", h.CreateForm)
	f.DELETE("/:id", h.DeleteForm)
}

// latest reads the page of a nested measure list. "count" asks for the n
// most recent measures and takes precedence over page and pageSize.
func latest(c echo.Context, cfg pagination.Config) (pagination.Params, error) {
	raw := c.QueryParam("count")
	if raw == "" {
		return pagination.FromContext(c, cfg)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return pagination.Params{}, echo.NewHTTPError(http.StatusBadRequest, "count must be a positive number")
	}
	if cfg.MaxPageSize > 0 && n > cfg.MaxPageSize {
		n = cfg.MaxPageSize
	}
	return pagination.Params{Page: 1, PageSize: n}, nil
}

// =========== Patients ===========

func patientLocation(p *Patient) string {
	return "/measures/patients/" + p.ID.String()
}

func browsablePatient(p *Patient) rest.Browsable[*Patient] {
	href := patientLocation(p)
	return rest.NewBrowsable(p,
		rest.Link{Relation: rest.RelSelf, Method: http.MethodGet, Href: href},
		rest.Link{Relation: rest.RelDelete, Method: http.MethodDelete, Href: href},
		rest.Link{Relation: BloodPressures.Name, Method: http.MethodGet, Href: href + "/" + BloodPressures.Name},
		rest.Link{Relation: BodyWeights.Name, Method: http.MethodGet, Href: href + "/" + BodyWeights.Name},
		rest.Link{Relation: Temperatures.Name, Method: http.MethodGet, Href: href + "/" + Temperatures.Name},
	)
}

func (h *Handler) SearchPatients(c echo.Context) error {
	p, err := pagination.FromContext(c, h.pages)
	if err != nil {
		return err
	}
	var q SearchPatientInfo
	if err := rest.BindQuery(c, &q); err != nil {
		return err
	}
	f, err := q.Filter()
	if err != nil {
		return err
	}
	items, total, err := h.svc.SearchPatients(c.Request().Context(), f, search.ParseSort(q.Sort), p.Limit(), p.Offset())
	if err != nil {
		return err
	}
	out := make([]rest.Browsable[*Patient], 0, len(items))
	for _, item := range items {
		out = append(out, browsablePatient(item))
	}
	return rest.Paged(c, pagination.NewPage(out, total, p.PageSize), p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := rest.ParamID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	rest.SetVersion(c, p.Version)
	return rest.Render(c, http.StatusOK, browsablePatient(p))
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var info PatientInfo
	if err := c.Bind(&info); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient").SetInternal(err)
	}
	p, warnings, err := h.svc.CreatePatient(c.Request().Context(), info)
	if err != nil {
		return err
	}
	rest.Warn(c, warnings)
	rest.SetVersion(c, p.Version)
	return rest.Created(c, patientLocation(p), browsablePatient(p))
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := rest.ParamID(c, "id")
	if err != nil {
		return err
	}
	result, err := h.svc.DeletePatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if result != cqrs.DeleteDone {
		return echo.NewHTTPError(result.Status())
	}
	return c.NoContent(http.StatusNoContent)
}

// =========== Forms and generic measures ===========

func formLocation(f *MeasureForm) string {
	return "/measures/forms/" + f.ID.String()
}

func browsableForm(f *MeasureForm) rest.Browsable[*MeasureForm] {
	href := formLocation(f)
	return rest.NewBrowsable(f,
		rest.Link{Relation: rest.RelSelf, Method: http.MethodGet, Href: href},
		rest.Link{Relation: rest.RelDelete, Method: http.MethodDelete, Href: href},
	)
}

func (h *Handler) SearchForms(c echo.Context) error {
	p, err := pagination.FromContext(c, h.pages)
	if err != nil {
		return err
	}
	var q SearchFormInfo
	if err := rest.BindQuery(c, &q); err != nil {
		return err
	}
	f, err := q.Filter()
	if err != nil {
		return err
	}
	items, total, err := h.svc.SearchForms(c.Request().Context(), f, search.ParseSort(q.Sort), p.Limit(), p.Offset())
	if err != nil {
		return err
	}
	out := make([]rest.Browsable[*MeasureForm], 0, len(items))
	for _, item := range items {
		out = append(out, browsableForm(item))
	}
	return rest.Paged(c, pagination.NewPage(out, total, p.PageSize), p)
}

func (h *Handler) GetForm(c echo.Context) error {
	id, err := rest.ParamID(c, "id")
	if err != nil {
		return err
	}
	f, err := h.svc.GetForm(c.Request().Context(), id)
	if err != nil {
		return err
	}
	rest.SetVersion(c, f.Version)
	return rest.Render(c, http.StatusOK, browsableForm(f))
}

func (h *Handler) CreateForm(c echo.Context) error {
	var info FormInfo
	if err := c.Bind(&info); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form").SetInternal(err)
	}
	f, warnings, err := h.svc.CreateForm(c.Request().Context(), info)
	if err != nil {
		return err
	}
	rest.Warn(c, warnings)
	rest.SetVersion(c, f.Version)
	return rest.Created(c, formLocation(f), browsableForm(f))
}

func (h *Handler) DeleteForm(c echo.Context) error {
	id, err := rest.ParamID(c, "id")
	if err != nil {
		return err
	}
	result, err := h.svc.DeleteForm(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if result != cqrs.DeleteDone {
		return echo.NewHTTPError(result.Status())
	}
	return c.NoContent(http.StatusNoContent)
}

func genericLinks(m *GenericMeasure, form string) rest.Browsable[*GenericMeasure] {
	return rest.NewBrowsable(m,
		rest.Link{Relation: "patient", Method: http.MethodGet, Href: "/measures/patients/" + m.PatientID.String()},
		rest.Link{Relation: rest.RelCollection, Method: http.MethodGet, Href: "/measures/patients/" + m.PatientID.String() + "/" + form},
		rest.Link{Relation: "form", Method: http.MethodGet, Href: "/measures/forms/" + m.FormID.String()},
	)
}

func (h *Handler) GenericMeasures(c echo.Context) error {
	id, err := rest.ParamID(c, "id")
	if err != nil {
		return err
	}
	p, err := latest(c, h.pages)
	if err != nil {
		return err
	}
	form := c.Param("form")
	items, total, err := h.svc.GenericMeasures(c.Request().Context(), id, form, p.Limit(), p.Offset())
	if err != nil {
		return err
	}
	out := make([]rest.Browsable[*GenericMeasure], 0, len(items))
	for _, item := range items {
		out = append(out, genericLinks(item, form))
	}
	return rest.Paged(c, pagination.NewPage(out, total, p.PageSize), p)
}

func (h *Handler) CreateGenericMeasure(c echo.Context) error {
	id, err := rest.ParamID(c, "id")
	if err != nil {
		return err
	}
	var info GenericMeasureInfo
	if err := c.Bind(&info); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid measure").SetInternal(err)
	}
	form := c.Param("form")
	m, result, err := h.svc.CreateGenericMeasure(c.Request().Context(), id, form, info)
	if err != nil {
		return err
	}
	if result != cqrs.CreateDone {
		return echo.NewHTTPError(result.Status())
	}
	rest.SetVersion(c, m.Version)
	return rest.Created(c, "/measures/patients/"+id.String()+"/"+form, genericLinks(m, form))
}

// =========== Physical measures ===========

type measureHandler[M Measure, I any] struct {
	svc   *MeasureService[M, I]
	pages pagination.Config
}

func (h *measureHandler[M, I]) register(e *echo.Echo, patients *echo.Group) {
	name := h.svc.kind.Name
	g := e.Group("/measures/" + name)
	g.GET("", h.Search)
	g.HEAD("", h.Search)
	g.GET("/search", h.Search)
	g.HEAD("/search", h.Search)
	g.GET("/:id", h.Get)
	g.HEAD("/:id", h.Get)
	g.POST("", h.Create)
	g.PATCH("/:id", h.Patch)
	g.DELETE("/:id", h.Delete)

	patients.GET("/:id/"+name, h.OfPatient)
	patients.HEAD("/:id/"+name, h.OfPatient)
}

func (h *measureHandler[M, I]) location(m M) string {
	return "/measures/" + h.svc.kind.Name + "/" + m.sample().ID.String()
}

func (h *measureHandler[M, I]) browsable(m M) rest.Browsable[M] {
	href := h.location(m)
	return rest.NewBrowsable(m,
		rest.Link{Relation: rest.RelSelf, Method: http.MethodGet, Href: href},
		rest.Link{Relation: rest.RelDelete, Method: http.MethodDelete, Href: href},
		rest.Link{Relation: "patient", Method: http.MethodGet, Href: "/measures/patients/" + m.sample().PatientID.String()},
	)
}

func (h *measureHandler[M, I]) page(c echo.Context, items []M, total int, p pagination.Params) error {
	out := make([]rest.Browsable[M], 0, len(items))
	for _, m := range items {
		out = append(out, h.browsable(m))
	}
	return rest.Paged(c, pagination.NewPage(out, total, p.PageSize), p)
}

func (h *measureHandler[M, I]) Search(c echo.Context) error {
	p, err := pagination.FromContext(c, h.pages)
	if err != nil {
		return err
	}
	var q SearchMeasureInfo
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
	return h.page(c, items, total, p)
}

func (h *measureHandler[M, I]) OfPatient(c echo.Context) error {
	id, err := rest.ParamID(c, "id")
	if err != nil {
		return err
	}
	p, err := latest(c, h.pages)
	if err != nil {
		return err
	}
	items, total, err := h.svc.OfPatient(c.Request().Context(), id, p.Limit(), p.Offset())
	if err != nil {
		return err
	}
	return h.page(c, items, total, p)
}

func (h *measureHandler[M, I]) Get(c echo.Context) error {
	id, err := rest.ParamID(c, "id")
	if err != nil {
		return err
	}
	m, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	rest.SetVersion(c, m.sample().Version)
	return rest.Render(c, http.StatusOK, h.browsable(m))
}

func (h *measureHandler[M, I]) Create(c echo.Context) error {
	var info I
	if err := c.Bind(&info); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid measure").SetInternal(err)
	}
	m, warnings, err := h.svc.Create(c.Request().Context(), info)
	if err != nil {
		return err
	}
	rest.Warn(c, warnings)
	rest.SetVersion(c, m.sample().Version)
	return rest.Created(c, h.location(m), h.browsable(m))
}

func (h *measureHandler[M, I]) Patch(c echo.Context) error {
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

	m, warnings, result, err := h.svc.Patch(c.Request().Context(), id, ops, expected)
	if err != nil {
		return err
	}
	if result != cqrs.ModifyDone {
		return echo.NewHTTPError(result.Status())
	}
	rest.Warn(c, warnings)
	rest.SetVersion(c, m.sample().Version)
	return rest.Render(c, http.StatusOK, h.browsable(m))
}

func (h *measureHandler[M, I]) Delete(c echo.Context) error {
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
