package rest

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/medeasy/medeasy/internal/platform/validation"
	"github.com/medeasy/medeasy/pkg/pagination"
)

const (
	HeaderTotalCount = "X-Total-Count"
	HeaderCount      = "X-Count"
	HeaderETag       = "ETag"
	HeaderIfMatch    = "If-Match"
)

// WantsXML reports whether the client asked for XML, through ?format=xml or
// an Accept header listing an XML type before any JSON one.
func WantsXML(c echo.Context) bool {
	switch strings.ToLower(c.QueryParam("format")) {
	case "xml":
		return true
	case "json":
		return false
	}
	for _, part := range strings.Split(c.Request().Header.Get(echo.HeaderAccept), ",") {
		mediaType, _, _ := strings.Cut(part, ";")
		switch strings.ToLower(strings.TrimSpace(mediaType)) {
		case echo.MIMEApplicationXML, echo.MIMETextXML:
			return true
		case echo.MIMEApplicationJSON, "application/problem+json", "*/*":
			return false
		}
	}
	return false
}

// Render writes v in the negotiated format. HEAD requests get the headers
// only.
func Render(c echo.Context, status int, v interface{}) error {
	if c.Request().Method == http.MethodHead {
		return c.NoContent(status)
	}
	if WantsXML(c) {
		return c.XML(status, v)
	}
	return c.JSON(status, v)
}

// Paged renders one page of a collection with its count headers.
func Paged[T any](c echo.Context, page pagination.Page[T], p pagination.Params) error {
	h := c.Response().Header()
	h.Set(HeaderTotalCount, strconv.Itoa(page.Total))
	h.Set(HeaderCount, strconv.Itoa(len(page.Entries)))
	return Render(c, http.StatusOK, NewPagedResponse(c, page, p))
}

// Created renders a 201 pointing at location.
func Created(c echo.Context, location string, v interface{}) error {
	c.Response().Header().Set(echo.HeaderLocation, location)
	return Render(c, http.StatusCreated, v)
}

// SetVersion exposes the concurrency token of a resource as its ETag.
func SetVersion(c echo.Context, version int) {
	c.Response().Header().Set(HeaderETag, fmt.Sprintf(`"%d"`, version))
}

// IfMatch returns the version sent in If-Match. ok is false when the header
// is absent or "*".
func IfMatch(c echo.Context) (version int, ok bool, err error) {
	raw := strings.TrimSpace(c.Request().Header.Get(HeaderIfMatch))
	if raw == "" || raw == "*" {
		return 0, false, nil
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	version, err = strconv.Atoi(raw)
	if err != nil {
		return 0, false, echo.NewHTTPError(http.StatusBadRequest, "If-Match must hold a resource version")
	}
	return version, true, nil
}

// Warn reports non blocking validation failures as Warning headers
// (code 199, miscellaneous warning).
func Warn(c echo.Context, warnings []validation.Failure) {
	for _, w := range warnings {
		c.Response().Header().Add("Warning", fmt.Sprintf(`199 medeasy "%s: %s"`, w.Field, w.Message))
	}
}
