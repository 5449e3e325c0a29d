package documents

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/medeasy/medeasy/internal/platform/blobstore"
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
	g := e.Group("/documents")
	g.GET("", h.List)
	g.HEAD("", h.List)
	g.GET("/search", h.Search)
	g.HEAD("/search", h.Search)
	g.GET("/patients/:patientId", h.OfPatient)
	g.HEAD("/patients/:patientId", h.OfPatient)
	g.GET("/:id", h.Get)
	g.HEAD("/:id", h.Get)
	g.GET("/:id/file", h.File)
	g.HEAD("/:id/file", h.File)
	g.POST("", h.Create, middleware.BodyLimit("64M"))
	g.PATCH("/:id", h.Patch)
	g.DELETE("/:id", h.Delete)
}

func location(d *Document) string {
	return "/documents/" + d.ID.String()
}

func browsable(d *Document) rest.Browsable[*Document] {
	href := location(d)
	links := []rest.Link{
		{Relation: rest.RelSelf, Method: http.MethodGet, Href: href},
		{Relation: "file", Method: http.MethodGet, Href: href + "/file"},
		{Relation: rest.RelDelete, Method: http.MethodDelete, Href: href},
	}
	if d.PatientID != nil {
		links = append(links, rest.Link{Relation: "patient-documents", Method: http.MethodGet, Href: "/documents/patients/" + d.PatientID.String()})
	}
	return rest.NewBrowsable(d, links...)
}

func browsables(items []*Document) []rest.Browsable[*Document] {
	out := make([]rest.Browsable[*Document], 0, len(items))
	for _, d := range items {
		out = append(out, browsable(d))
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

func (h *Handler) OfPatient(c echo.Context) error {
	patientID, err := rest.ParamID(c, "patientId")
	if err != nil {
		return err
	}
	p, err := pagination.FromContext(c, h.pages)
	if err != nil {
		return err
	}
	items, total, err := h.svc.OfPatient(c.Request().Context(), patientID, p.Limit(), p.Offset())
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
	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	rest.SetVersion(c, d.Version)
	return rest.Render(c, http.StatusOK, browsable(d))
}

// File streams the content of a document with its mime type.
func (h *Handler) File(c echo.Context) error {
	id, err := rest.ParamID(c, "id")
	if err != nil {
		return err
	}
	d, data, err := h.svc.Content(c.Request().Context(), id)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="`+strings.ReplaceAll(d.Name, `"`, "")+`"`)
	c.Response().Header().Set(rest.HeaderETag, `"`+d.Hash+`"`)
	if c.Request().Method == http.MethodHead {
		c.Response().Header().Set(echo.HeaderContentType, d.MimeType)
		return c.NoContent(http.StatusOK)
	}
	return c.Blob(http.StatusOK, d.MimeType, data)
}

// Create accepts a JSON document with base64 content or a multipart form
// with a "file" part.
func (h *Handler) Create(c echo.Context) error {
	var info NewDocumentInfo
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		var err error
		if info, err = fromMultipart(c); err != nil {
			return err
		}
	} else if err := c.Bind(&info); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document").SetInternal(err)
	}

	d, warnings, err := h.svc.Create(c.Request().Context(), info)
	if err != nil {
		return err
	}
	rest.Warn(c, warnings)
	rest.SetVersion(c, d.Version)
	return rest.Created(c, location(d), browsable(d))
}

func fromMultipart(c echo.Context) (NewDocumentInfo, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return NewDocumentInfo{}, echo.NewHTTPError(http.StatusBadRequest, "file is required").SetInternal(err)
	}
	src, err := file.Open()
	if err != nil {
		return NewDocumentInfo{}, err
	}
	defer src.Close()

	data, err := blobstore.ReadAll(src)
	if err != nil {
		return NewDocumentInfo{}, echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error()).SetInternal(err)
	}

	info := NewDocumentInfo{
		Name:     c.FormValue("name"),
		MimeType: c.FormValue("mimeType"),
		Content:  data,
	}
	if info.Name == "" {
		info.Name = file.Filename
	}
	if info.MimeType == "" {
		info.MimeType = file.Header.Get(echo.HeaderContentType)
	}
	if raw := c.FormValue("patientId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return NewDocumentInfo{}, echo.NewHTTPError(http.StatusBadRequest, "patientId: "+err.Error())
		}
		info.PatientID = &id
	}
	return info, nil
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

	d, warnings, result, err := h.svc.Patch(c.Request().Context(), id, ops, expected)
	if err != nil {
		return err
	}
	if result != cqrs.ModifyDone {
		return echo.NewHTTPError(result.Status())
	}
	rest.Warn(c, warnings)
	rest.SetVersion(c, d.Version)
	return rest.Render(c, http.StatusOK, browsable(d))
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
