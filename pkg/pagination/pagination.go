package pagination

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPageSize = 30
	MaxPageSize     = 100
)

// Config holds the page size bounds of a service.
type Config struct {
	DefaultPageSize int
	MaxPageSize     int
}

func DefaultConfig() Config {
	return Config{DefaultPageSize: DefaultPageSize, MaxPageSize: MaxPageSize}
}

// Params holds the 1-based page requested by a client.
type Params struct {
	Page     int
	PageSize int
}

// FromContext reads "page" and "pageSize" from the query string. Missing
// values fall back to page 1 and the default size, oversized pages are
// capped. Values that are not positive integers, or a page whose offset
// does not fit an int, yield a 400.
func FromContext(c echo.Context, cfg Config) (Params, error) {
	if cfg.DefaultPageSize <= 0 {
		cfg = DefaultConfig()
	}
	p := Params{Page: 1, PageSize: cfg.DefaultPageSize}

	var err error
	if p.Page, err = positive(c.QueryParam("page"), 1); err != nil {
		return Params{}, echo.NewHTTPError(http.StatusBadRequest, "page: "+err.Error())
	}
	if p.PageSize, err = positive(c.QueryParam("pageSize"), cfg.DefaultPageSize); err != nil {
		return Params{}, echo.NewHTTPError(http.StatusBadRequest, "pageSize: "+err.Error())
	}
	if cfg.MaxPageSize > 0 && p.PageSize > cfg.MaxPageSize {
		p.PageSize = cfg.MaxPageSize
	}
	if p.Page-1 > math.MaxInt/p.PageSize {
		return Params{}, echo.NewHTTPError(http.StatusBadRequest, "page: out of range")
	}
	return p, nil
}

func positive(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	if n < 1 {
		return 0, fmt.Errorf("must be greater than or equal to 1")
	}
	return n, nil
}

// Offset returns the number of entries before the page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Limit returns the maximum number of entries of the page.
func (p Params) Limit() int {
	return p.PageSize
}

// Page is one page of a larger result.
type Page[T any] struct {
	Entries []T
	Total   int
	Size    int
}

func NewPage[T any](entries []T, total, size int) Page[T] {
	if entries == nil {
		entries = []T{}
	}
	return Page[T]{Entries: entries, Total: total, Size: size}
}

// Count returns the number of pages, at least 1.
func (p Page[T]) Count() int {
	return PageCount(p.Total, p.Size)
}

// PageCount returns ceil(total/size), at least 1.
func PageCount(total, size int) int {
	if size <= 0 || total <= 0 {
		return 1
	}
	return (total + size - 1) / size
}

// Links holds the navigation hrefs of a page. Previous and Next are empty
// when there is no such page.
type Links struct {
	First    string
	Previous string
	Next     string
	Last     string
}

// BuildLinks computes the navigation links of page p out of count pages.
// Every link keeps the other parameters of query.
func BuildLinks(path string, query url.Values, p Params, count int) Links {
	if count < 1 {
		count = 1
	}
	href := func(page int) string {
		q := url.Values{}
		for k, v := range query {
			q[k] = append([]string(nil), v...)
		}
		q.Set("page", strconv.Itoa(page))
		q.Set("pageSize", strconv.Itoa(p.PageSize))
		return path + "?" + q.Encode()
	}

	links := Links{First: href(1), Last: href(count)}
	if p.Page > 1 && count > 1 {
		prev := p.Page - 1
		if prev > count {
			prev = count
		}
		links.Previous = href(prev)
	}
	if p.Page < count {
		links.Next = href(p.Page + 1)
	}
	return links
}
