package pagination

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext_Defaults(t *testing.T) {
	p, err := FromContext(newContext("/"), DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Page != 1 || p.PageSize != DefaultPageSize {
		t.Errorf("expected page 1 of %d, got %+v", DefaultPageSize, p)
	}
	if p.Offset() != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset())
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p, err := FromContext(newContext("/?page=3&pageSize=20"), DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Page != 3 || p.PageSize != 20 {
		t.Errorf("unexpected params %+v", p)
	}
	if p.Offset() != 40 || p.Limit() != 20 {
		t.Errorf("expected offset 40 limit 20, got %d %d", p.Offset(), p.Limit())
	}
}

func TestFromContext_MaxPageSize(t *testing.T) {
	p, err := FromContext(newContext("/?pageSize=500"), Config{DefaultPageSize: 10, MaxPageSize: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.PageSize != 50 {
		t.Errorf("expected page size capped at 50, got %d", p.PageSize)
	}
}

func TestFromContext_Invalid(t *testing.T) {
	for _, target := range []string{"/?page=0", "/?page=-1", "/?pageSize=0", "/?page=abc", "/?pageSize=1.5"} {
		t.Run(target, func(t *testing.T) {
			_, err := FromContext(newContext(target), DefaultConfig())
			var he *echo.HTTPError
			if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %v", err)
			}
		})
	}
}

func TestFromContext_PageOutOfRange(t *testing.T) {
	_, err := FromContext(newContext(fmt.Sprintf("/?page=%d&pageSize=100", math.MaxInt)), DefaultConfig())
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}

	p, err := FromContext(newContext(fmt.Sprintf("/?page=%d&pageSize=1", math.MaxInt)), DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Offset() != math.MaxInt-1 {
		t.Errorf("expected offset %d, got %d", math.MaxInt-1, p.Offset())
	}
}

func TestPageCount(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{0, 30, 1},
		{1, 30, 1},
		{30, 30, 1},
		{31, 30, 2},
		{400, 30, 14},
		{10, 0, 1},
	}
	for _, tt := range tests {
		if got := PageCount(tt.total, tt.size); got != tt.want {
			t.Errorf("PageCount(%d, %d) = %d, want %d", tt.total, tt.size, got, tt.want)
		}
	}

	page := NewPage[string](nil, 0, 30)
	if page.Entries == nil || page.Count() != 1 {
		t.Errorf("expected empty non-nil page with 1 page, got %+v", page)
	}
}

func pageOf(t *testing.T, href string) string {
	t.Helper()
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		t.Fatalf("invalid link %q: %v", href, err)
	}
	return u.Query().Get("page")
}

func TestBuildLinks(t *testing.T) {
	count := PageCount(400, 30)

	first := BuildLinks("/patients", nil, Params{Page: 1, PageSize: 30}, count)
	if first.Previous != "" {
		t.Errorf("page 1 must not have a previous link, got %s", first.Previous)
	}
	if pageOf(t, first.Next) != "2" || pageOf(t, first.Last) != "14" {
		t.Errorf("unexpected links %+v", first)
	}

	last := BuildLinks("/patients", nil, Params{Page: 14, PageSize: 30}, count)
	if last.Next != "" {
		t.Errorf("last page must not have a next link, got %s", last.Next)
	}
	if pageOf(t, last.Previous) != "13" {
		t.Errorf("expected previous page 13, got %s", last.Previous)
	}

	empty := BuildLinks("/patients", nil, Params{Page: 1, PageSize: 30}, PageCount(0, 30))
	if pageOf(t, empty.First) != "1" || pageOf(t, empty.Last) != "1" {
		t.Errorf("expected first = last = 1, got %+v", empty)
	}
	if empty.Previous != "" || empty.Next != "" {
		t.Errorf("empty result must only have first and last, got %+v", empty)
	}
}

func TestBuildLinks_KeepsCriteria(t *testing.T) {
	query := url.Values{"firstname": {"Br*"}, "page": {"2"}, "sort": {"-lastname"}}
	links := BuildLinks("/patients/search", query, Params{Page: 2, PageSize: 10}, 5)

	for _, href := range []string{links.First, links.Previous, links.Next, links.Last} {
		if !strings.HasPrefix(href, "/patients/search?") {
			t.Errorf("unexpected path in %s", href)
		}
		u, _ := url.Parse(href)
		q := u.Query()
		if q.Get("firstname") != "Br*" || q.Get("sort") != "-lastname" || q.Get("pageSize") != "10" {
			t.Errorf("criteria lost in %s", href)
		}
	}
	if query.Get("page") != "2" {
		t.Error("BuildLinks must not modify the caller's query")
	}
}
