package rest

import (
	"io"
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medeasy/medeasy/internal/platform/jsonpatch"
)

// maxPatchSize bounds the body of a PATCH request.
const maxPatchSize = 1 << 20

// BindPatch reads a JSON Patch document from the request body. Plain JSON
// content types are accepted as well.
func BindPatch(c echo.Context) ([]jsonpatch.Operation, error) {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || (mediaType != jsonpatch.MIMEType && mediaType != echo.MIMEApplicationJSON) {
			return nil, echo.NewHTTPError(http.StatusUnsupportedMediaType, "expected "+jsonpatch.MIMEType)
		}
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPatchSize))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "cannot read patch").SetInternal(err)
	}
	ops, err := jsonpatch.Parse(body)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return ops, nil
}
