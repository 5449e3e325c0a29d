package rest

import (
	"net/http"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/schema"
	"github.com/labstack/echo/v4"
)

var queryDecoder = newQueryDecoder()

func newQueryDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	d.RegisterConverter(time.Time{}, func(s string) reflect.Value {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return reflect.ValueOf(t)
			}
		}
		return reflect.Value{}
	})
	d.RegisterConverter(uuid.UUID{}, func(s string) reflect.Value {
		id, err := uuid.Parse(s)
		if err != nil {
			return reflect.Value{}
		}
		return reflect.ValueOf(id)
	})
	return d
}

// BindQuery decodes the query string into dst using its `schema` tags.
// Unknown keys such as page and pageSize are ignored.
func BindQuery(c echo.Context, dst interface{}) error {
	if err := queryDecoder.Decode(dst, c.QueryParams()); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// ParamID parses a path parameter as a non-empty identifier.
func ParamID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, name+" must be an identifier")
	}
	if id == uuid.Nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, name+" must not be empty")
	}
	return id, nil
}
