package rest

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medeasy/medeasy/internal/platform/db"
	"github.com/medeasy/medeasy/internal/platform/jsonpatch"
	"github.com/medeasy/medeasy/internal/platform/search"
	"github.com/medeasy/medeasy/internal/platform/validation"
)

const MIMEProblemJSON = "application/problem+json"

// ProblemDetails is the error body of every failed request (RFC 7807).
type ProblemDetails struct {
	XMLName  xml.Name             `json:"-" xml:"problem"`
	Type     string               `json:"type" xml:"type"`
	Title    string               `json:"title" xml:"title"`
	Status   int                  `json:"status" xml:"status"`
	Detail   string               `json:"detail,omitempty" xml:"detail,omitempty"`
	Errors   map[string][]string  `json:"errors,omitempty" xml:"-"`
	Failures []validation.Failure `json:"-" xml:"errors>error,omitempty"`
}

func newProblem(status int, detail string) ProblemDetails {
	return ProblemDetails{Type: "about:blank", Title: http.StatusText(status), Status: status, Detail: detail}
}

// Problem converts err to problem details. Validation failures become 422,
// malformed search criteria 400, unknown errors 500 without detail.
func Problem(err error) ProblemDetails {
	var fe *validation.FailedError
	var he *echo.HTTPError
	switch {
	case errors.As(err, &fe):
		p := newProblem(http.StatusUnprocessableEntity, "one or more validation errors occurred")
		p.Errors = fe.Fields()
		p.Failures = fe.Failures
		return p
	case errors.Is(err, search.ErrUnknownField),
		errors.Is(err, search.ErrInvalidCriterion),
		errors.Is(err, search.ErrUnsupportedOperator):
		return newProblem(http.StatusBadRequest, err.Error())
	case errors.Is(err, db.ErrNotFound):
		return newProblem(http.StatusNotFound, err.Error())
	case errors.Is(err, db.ErrConflict), errors.Is(err, db.ErrVersionMismatch):
		return newProblem(http.StatusConflict, err.Error())
	case errors.Is(err, jsonpatch.ErrTestFailed):
		return newProblem(http.StatusConflict, err.Error())
	case errors.Is(err, jsonpatch.ErrInvalidPatch):
		return newProblem(http.StatusBadRequest, err.Error())
	case errors.As(err, &he):
		if inner := he.Internal; inner != nil && errors.As(inner, &fe) {
			return Problem(inner)
		}
		detail := fmt.Sprint(he.Message)
		if detail == http.StatusText(he.Code) {
			detail = ""
		}
		return newProblem(he.Code, detail)
	}
	return newProblem(http.StatusInternalServerError, "")
}

// ErrorHandler renders every error returned by a handler as problem details
// and logs server errors.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		p := Problem(err)
		if p.Status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var werr error
		switch {
		case c.Request().Method == http.MethodHead:
			werr = c.NoContent(p.Status)
		case WantsXML(c):
			werr = c.XML(p.Status, p)
		default:
			c.Response().Header().Set(echo.HeaderContentType, MIMEProblemJSON)
			werr = c.JSON(p.Status, p)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}
