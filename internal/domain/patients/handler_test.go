package patients

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medeasy/medeasy/internal/platform/jsonpatch"
	"github.com/medeasy/medeasy/internal/platform/rest"
	"github.com/medeasy/medeasy/pkg/pagination"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _, _ := newTestService()
	h := NewHandler(svc, pagination.DefaultConfig())
	e := echo.New()
	e.HTTPErrorHandler = rest.ErrorHandler(zerolog.Nop())
	h.RegisterRoutes(e)
	return h, e
}

func serve(e *echo.Echo, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

var jsonHeaders = map[string]string{echo.HeaderContentType: echo.MIMEApplicationJSON}

func TestHandler_Create(t *testing.T) {
	_, e := newTestHandler()
	rec := serve(e, http.MethodPost, "/patients", `{"firstname":"Bruce","lastname":"Wayne","birthDate":"1970-02-19T00:00:00Z"}`, jsonHeaders)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var body rest.Browsable[Patient]
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if got := rec.Header().Get(echo.HeaderLocation); got != "/patients/"+body.Resource.ID.String() {
		t.Errorf("unexpected Location %q", got)
	}
	if rec.Header().Get(rest.HeaderETag) != `"1"` {
		t.Errorf("expected ETag \"1\", got %q", rec.Header().Get(rest.HeaderETag))
	}
	if len(body.Links) != 2 || body.Links[0].Relation != rest.RelSelf {
		t.Errorf("unexpected links %+v", body.Links)
	}
}

func TestHandler_Create_XML(t *testing.T) {
	_, e := newTestHandler()
	rec := serve(e, http.MethodPost, "/patients?format=xml", `{"firstname":"Bruce","lastname":"Wayne"}`, jsonHeaders)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, echo.MIMEApplicationXML) {
		t.Errorf("expected XML content type, got %q", ct)
	}
	var body rest.Browsable[Patient]
	if err := xml.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid XML %q: %v", rec.Body.String(), err)
	}
	if body.Resource.Lastname != "Wayne" || body.Resource.ID == uuid.Nil {
		t.Errorf("unexpected resource %+v", body.Resource)
	}
	if len(body.Links) == 0 || body.Links[0].Relation != rest.RelSelf {
		t.Errorf("unexpected links %+v", body.Links)
	}
}

func TestHandler_List_XML(t *testing.T) {
	h, e := newTestHandler()
	h.svc.Create(context.Background(), Info{Firstname: "Bruce", Lastname: "Wayne"})

	rec := serve(e, http.MethodGet, "/patients", "", map[string]string{echo.HeaderAccept: echo.MIMEApplicationXML})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body rest.GenericPagedGetResponse[Patient]
	if err := xml.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid XML %q: %v", rec.Body.String(), err)
	}
	if body.Total != 1 || len(body.Items) != 1 || body.Items[0].Firstname != "Bruce" {
		t.Errorf("unexpected page %+v", body)
	}
}

func TestHandler_Create_Warning(t *testing.T) {
	_, e := newTestHandler()
	rec := serve(e, http.MethodPost, "/patients", `{"lastname":"Wayne"}`, jsonHeaders)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Warning"), "firstname") {
		t.Errorf("expected a firstname warning, got %q", rec.Header().Get("Warning"))
	}
}

func TestHandler_Create_Unprocessable(t *testing.T) {
	_, e := newTestHandler()
	rec := serve(e, http.MethodPost, "/patients", `{"firstname":"Bruce"}`, jsonHeaders)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var p rest.ProblemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if _, ok := p.Errors["lastname"]; !ok {
		t.Errorf("expected lastname error, got %v", p.Errors)
	}
}

func TestHandler_Get(t *testing.T) {
	h, e := newTestHandler()
	p, _, _ := h.svc.Create(context.Background(), Info{Firstname: "Bruce", Lastname: "Wayne"})

	rec := serve(e, http.MethodGet, "/patients/"+p.ID.String(), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"lastname":"Wayne"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	rec = serve(e, http.MethodHead, "/patients/"+p.ID.String(), "", nil)
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("expected 200 without body for HEAD, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestHandler_Get_Errors(t *testing.T) {
	_, e := newTestHandler()
	if rec := serve(e, http.MethodGet, "/patients/"+uuid.NewString(), "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodGet, "/patients/"+uuid.Nil.String(), "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty id, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodGet, "/patients/not-an-id", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed id, got %d", rec.Code)
	}
}

func TestHandler_List(t *testing.T) {
	h, e := newTestHandler()
	for i := 0; i < 5; i++ {
		h.svc.Create(context.Background(), Info{Firstname: "Bruce", Lastname: "Wayne"})
	}

	rec := serve(e, http.MethodGet, "/patients?page=2&pageSize=2", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(rest.HeaderTotalCount) != "5" || rec.Header().Get(rest.HeaderCount) != "2" {
		t.Errorf("unexpected count headers %v", rec.Header())
	}
	var body rest.GenericPagedGetResponse[rest.Browsable[Patient]]
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Links.Previous == nil || body.Links.Next == nil {
		t.Error("expected previous and next links on the middle page")
	}
	if !strings.Contains(body.Links.Last.Href, "page=3") {
		t.Errorf("expected last page 3, got %s", body.Links.Last.Href)
	}
}

func TestHandler_List_BadPage(t *testing.T) {
	_, e := newTestHandler()
	if rec := serve(e, http.MethodGet, "/patients?page=0", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_Search(t *testing.T) {
	h, e := newTestHandler()
	ctx := context.Background()
	h.svc.Create(ctx, Info{Firstname: "Bruce", Lastname: "Wayne"})
	h.svc.Create(ctx, Info{Firstname: "Dick", Lastname: "Grayson"})

	rec := serve(e, http.MethodGet, "/patients/search?lastname=*ay*&firstname=Br*&pageSize=10", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body rest.GenericPagedGetResponse[rest.Browsable[Patient]]
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 1 || body.Items[0].Resource.Firstname != "Bruce" {
		t.Errorf("expected only Bruce, got %+v", body)
	}
	if !strings.Contains(body.Links.First.Href, "firstname=Br%2A") {
		t.Errorf("expected criteria in links, got %s", body.Links.First.Href)
	}
}

func TestHandler_Search_UnknownSort(t *testing.T) {
	_, e := newTestHandler()
	if rec := serve(e, http.MethodGet, "/patients/search?sort=secret", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_Patch(t *testing.T) {
	h, e := newTestHandler()
	p, _, _ := h.svc.Create(context.Background(), Info{Firstname: "Bruce", Lastname: "Wayne"})
	body := `[{"op":"replace","path":"/firstname","value":"Thomas"}]`
	headers := map[string]string{echo.HeaderContentType: jsonpatch.MIMEType, rest.HeaderIfMatch: `"1"`}

	rec := serve(e, http.MethodPatch, "/patients/"+p.ID.String(), body, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(rest.HeaderETag) != `"2"` {
		t.Errorf("expected ETag \"2\", got %q", rec.Header().Get(rest.HeaderETag))
	}

	// same If-Match again is now stale
	rec = serve(e, http.MethodPatch, "/patients/"+p.ID.String(), body, headers)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for stale version, got %d", rec.Code)
	}
}

func TestHandler_Patch_Warning(t *testing.T) {
	h, e := newTestHandler()
	p, _, _ := h.svc.Create(context.Background(), Info{Firstname: "Bruce", Lastname: "Wayne"})
	headers := map[string]string{echo.HeaderContentType: jsonpatch.MIMEType}

	rec := serve(e, http.MethodPatch, "/patients/"+p.ID.String(), `[{"op":"remove","path":"/firstname"}]`, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Warning"), "firstname") {
		t.Errorf("expected a firstname warning, got %q", rec.Header().Get("Warning"))
	}
}

func TestHandler_Patch_BadDocument(t *testing.T) {
	h, e := newTestHandler()
	p, _, _ := h.svc.Create(context.Background(), Info{Firstname: "Bruce", Lastname: "Wayne"})
	headers := map[string]string{echo.HeaderContentType: jsonpatch.MIMEType}

	if rec := serve(e, http.MethodPatch, "/patients/"+p.ID.String(), `{"op":"replace"}`, headers); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodPatch, "/patients/"+uuid.NewString(), `[{"op":"remove","path":"/firstname"}]`, headers); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_Delete(t *testing.T) {
	h, e := newTestHandler()
	p, _, _ := h.svc.Create(context.Background(), Info{Firstname: "Bruce", Lastname: "Wayne"})

	if rec := serve(e, http.MethodDelete, "/patients/"+p.ID.String(), "", nil); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodDelete, "/patients/"+p.ID.String(), "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_ServiceErrorIsInternal(t *testing.T) {
	_, e := newTestHandler()
	e.GET("/boom", func(echo.Context) error { return errors.New("database is down") })
	rec := serve(e, http.MethodGet, "/boom", "", nil)
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "database") {
		t.Errorf("expected opaque 500, got %d %s", rec.Code, rec.Body.String())
	}
}
