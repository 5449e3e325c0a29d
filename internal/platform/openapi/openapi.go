// Package openapi generates the OpenAPI 3 document of a service from the
// routes registered on its echo instance.
package openapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/medeasy/medeasy/internal/platform/rest"
)

type Generator struct {
	title     string
	version   string
	resources []rest.Resource
}

func NewGenerator(title, version string, resources []rest.Resource) *Generator {
	return &Generator{title: title, version: version, resources: resources}
}

// GenerateSpec builds the document for routes.
func (g *Generator) GenerateSpec(routes []*echo.Route) map[string]interface{} {
	paths := make(map[string]map[string]interface{})
	for _, r := range routes {
		if r.Method == echo.RouteNotFound || r.Method == "" || strings.HasSuffix(r.Path, "*") {
			continue
		}
		path, params := convertPath(r.Path)
		if paths[path] == nil {
			paths[path] = make(map[string]interface{})
		}
		paths[path][strings.ToLower(r.Method)] = g.operation(r, path, params)
	}

	out := make(map[string]interface{}, len(paths))
	for p, ops := range paths {
		out[p] = ops
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":   g.title,
			"version": g.version,
		},
		"paths": out,
		"components": map[string]interface{}{
			"schemas": g.schemas(),
			"securitySchemes": map[string]interface{}{
				"bearer": map[string]interface{}{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
		},
		"security": []map[string][]string{{"bearer": {}}},
	}
}

// convertPath turns "/patients/:id" into "/patients/{id}".
func convertPath(p string) (string, []string) {
	segments := strings.Split(p, "/")
	var params []string
	for i, s := range segments {
		if strings.HasPrefix(s, ":") {
			params = append(params, s[1:])
			segments[i] = "{" + s[1:] + "}"
		}
	}
	return strings.Join(segments, "/"), params
}

// resourceFor returns the resource owning path, the longest matching prefix.
func (g *Generator) resourceFor(path string) (rest.Resource, bool) {
	var best rest.Resource
	found := false
	for _, r := range g.resources {
		if (path == r.Path || strings.HasPrefix(path, r.Path+"/")) && len(r.Path) > len(best.Path) {
			best, found = r, true
		}
	}
	return best, found
}

func operationID(r *echo.Route) string {
	name := strings.TrimSuffix(r.Name, "-fm")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if r.Method == http.MethodHead {
		name = "head" + name
	}
	return name
}

func (g *Generator) operation(r *echo.Route, path string, params []string) map[string]interface{} {
	op := map[string]interface{}{
		"summary":     r.Method + " " + path,
		"operationId": operationID(r),
		"responses":   responses(r.Method),
	}

	res, ok := g.resourceFor(path)
	if ok {
		op["tags"] = []string{rest.KebabCase(res.Name)}
	}

	var parameters []map[string]interface{}
	for _, p := range params {
		parameters = append(parameters, map[string]interface{}{
			"name":     p,
			"in":       "path",
			"required": true,
			"schema":   map[string]interface{}{"type": "string", "format": "uuid"},
		})
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		if len(params) == 0 && ok {
			parameters = append(parameters, pageParameters()...)
			if strings.HasSuffix(path, "/search") {
				for _, f := range res.Search {
					parameters = append(parameters, map[string]interface{}{
						"name":        f.Name,
						"in":          "query",
						"description": f.Description,
						"schema":      fieldSchema(f),
					})
				}
			}
		}
	case http.MethodPost:
		if ok && path == res.Path && len(res.Create) > 0 {
			op["requestBody"] = map[string]interface{}{
				"required": true,
				"content": map[string]interface{}{
					echo.MIMEApplicationJSON: map[string]interface{}{
						"schema": map[string]string{"$ref": "#/components/schemas/" + schemaName(res)},
					},
				},
			}
		}
	case http.MethodPatch:
		op["requestBody"] = map[string]interface{}{
			"required": true,
			"content": map[string]interface{}{
				"application/json-patch+json": map[string]interface{}{
					"schema": map[string]interface{}{
						"type":  "array",
						"items": map[string]string{"$ref": "#/components/schemas/PatchOperation"},
					},
				},
			},
		}
	}
	if len(parameters) > 0 {
		op["parameters"] = parameters
	}
	return op
}

func pageParameters() []map[string]interface{} {
	return []map[string]interface{}{
		{"name": "page", "in": "query", "schema": map[string]interface{}{"type": "integer", "minimum": 1}},
		{"name": "pageSize", "in": "query", "schema": map[string]interface{}{"type": "integer", "minimum": 1}},
		{"name": "sort", "in": "query", "description": "comma separated fields, prefix with - for descending", "schema": map[string]string{"type": "string"}},
	}
}

func problem(description string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/problem+json": map[string]interface{}{
				"schema": map[string]string{"$ref": "#/components/schemas/ProblemDetails"},
			},
		},
	}
}

func responses(method string) map[string]interface{} {
	out := map[string]interface{}{
		"400": problem("Bad Request"),
		"401": problem("Unauthorized"),
	}
	switch method {
	case http.MethodPost:
		out["201"] = map[string]string{"description": "Created"}
		out["409"] = problem("Conflict")
		out["422"] = problem("Unprocessable Entity")
	case http.MethodPatch:
		out["200"] = map[string]string{"description": "OK"}
		out["404"] = problem("Not Found")
		out["409"] = problem("Conflict")
		out["422"] = problem("Unprocessable Entity")
	case http.MethodDelete:
		out["204"] = map[string]string{"description": "No Content"}
		out["404"] = problem("Not Found")
		out["409"] = problem("Conflict")
	default:
		out["200"] = map[string]string{"description": "OK"}
		out["404"] = problem("Not Found")
	}
	return out
}

func schemaName(r rest.Resource) string {
	var b strings.Builder
	for _, part := range strings.Split(rest.KebabCase(r.Name), "-") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	b.WriteString("Create")
	return b.String()
}

func fieldSchema(f rest.Field) map[string]interface{} {
	s := map[string]interface{}{}
	switch f.Type {
	case "date":
		s["type"], s["format"] = "string", "date-time"
	case "uuid", "email", "password":
		s["type"], s["format"] = "string", f.Type
	case "number", "integer", "boolean", "object", "array":
		s["type"] = f.Type
	default:
		s["type"] = "string"
	}
	if f.Description != "" {
		s["description"] = f.Description
	}
	if f.Min != nil {
		s["minimum"] = *f.Min
	}
	if f.Max != nil {
		s["maximum"] = *f.Max
	}
	if len(f.Enum) > 0 {
		s["enum"] = f.Enum
	}
	return s
}

func (g *Generator) schemas() map[string]interface{} {
	schemas := map[string]interface{}{
		"ProblemDetails": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"type":   map[string]string{"type": "string"},
				"title":  map[string]string{"type": "string"},
				"status": map[string]string{"type": "integer"},
				"detail": map[string]string{"type": "string"},
				"errors": map[string]interface{}{
					"type":                 "object",
					"additionalProperties": map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
				},
			},
		},
		"PatchOperation": map[string]interface{}{
			"type":     "object",
			"required": []string{"op", "path"},
			"properties": map[string]interface{}{
				"op":    map[string]interface{}{"type": "string", "enum": []string{"add", "remove", "replace", "move", "copy", "test"}},
				"path":  map[string]string{"type": "string"},
				"from":  map[string]string{"type": "string"},
				"value": map[string]interface{}{},
			},
		},
		"Link": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"relation": map[string]string{"type": "string"},
				"method":   map[string]string{"type": "string"},
				"href":     map[string]string{"type": "string"},
				"title":    map[string]string{"type": "string"},
				"template": map[string]string{"type": "boolean"},
			},
		},
	}

	for _, r := range g.resources {
		if len(r.Create) == 0 {
			continue
		}
		props := make(map[string]interface{}, len(r.Create))
		var required []string
		for _, f := range r.Create {
			props[f.Name] = fieldSchema(f)
			if f.Required {
				required = append(required, f.Name)
			}
		}
		sort.Strings(required)
		s := map[string]interface{}{"type": "object", "properties": props}
		if len(required) > 0 {
			s["required"] = required
		}
		schemas[schemaName(r)] = s
	}
	return schemas
}

// RegisterRoutes serves GET /openapi.json, generated from the routes present
// at request time.
func (g *Generator) RegisterRoutes(e *echo.Echo) {
	e.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec(e.Routes()))
	})
}
