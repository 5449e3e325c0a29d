package rest

import (
	"encoding/xml"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/labstack/echo/v4"
)

// Field describes one input of a form.
type Field struct {
	Name        string   `json:"name" xml:"name,attr"`
	Type        string   `json:"type" xml:"type,attr"`
	Description string   `json:"description,omitempty" xml:"description,attr,omitempty"`
	Required    bool     `json:"required,omitempty" xml:"required,attr,omitempty"`
	Min         *float64 `json:"min,omitempty" xml:"min,attr,omitempty"`
	Max         *float64 `json:"max,omitempty" xml:"max,attr,omitempty"`
	Enum        []string `json:"enum,omitempty" xml:"enum>value,omitempty"`
}

// Form is a template the client fills to search or create a resource.
type Form struct {
	Meta  Link    `json:"meta" xml:"meta"`
	Items []Field `json:"items" xml:"items>field"`
}

type Endpoint struct {
	Name  string `json:"name" xml:"name,attr"`
	Link  Link   `json:"link" xml:"link"`
	Forms []Form `json:"forms,omitempty" xml:"forms>form,omitempty"`
}

type endpointList struct {
	XMLName   xml.Name   `xml:"endpoints"`
	Endpoints []Endpoint `xml:"endpoint"`
}

// Resource is the metadata of a collection: where it lives and the fields
// of its create and search forms.
type Resource struct {
	Name   string
	Path   string
	Create []Field
	Search []Field
}

// Endpoint describes r for the root endpoint.
func (r Resource) Endpoint(pageSize int) Endpoint {
	ep := Endpoint{
		Name: KebabCase(r.Name),
		Link: Link{
			Relation: RelCollection,
			Method:   http.MethodGet,
			Href:     r.Path + "?page=1&pageSize=" + strconv.Itoa(pageSize),
		},
	}
	if len(r.Search) > 0 {
		ep.Forms = append(ep.Forms, Form{
			Meta:  Link{Relation: RelSearch, Method: http.MethodGet, Href: r.Path + "/search", Template: true},
			Items: r.Search,
		})
	}
	if len(r.Create) > 0 {
		ep.Forms = append(ep.Forms, Form{
			Meta:  Link{Relation: RelCreateForm, Method: http.MethodPost, Href: r.Path},
			Items: r.Create,
		})
	}
	return ep
}

// Endpoints returns the description of every resource, sorted by name.
func Endpoints(resources []Resource, pageSize int) []Endpoint {
	out := make([]Endpoint, 0, len(resources))
	for _, r := range resources {
		out = append(out, r.Endpoint(pageSize))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Root serves the endpoint listing of a service.
func Root(resources []Resource, pageSize int) echo.HandlerFunc {
	endpoints := Endpoints(resources, pageSize)
	return func(c echo.Context) error {
		if WantsXML(c) && c.Request().Method != http.MethodHead {
			return c.XML(http.StatusOK, endpointList{Endpoints: endpoints})
		}
		return Render(c, http.StatusOK, endpoints)
	}
}

// KebabCase turns "BloodPressures" into "blood-pressures".
func KebabCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if r == ' ' || r == '_' {
			b.WriteByte('-')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Float returns a pointer to v, for Field bounds.
func Float(v float64) *float64 {
	return &v
}
