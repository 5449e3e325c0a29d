package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		roles   []string
		allowed bool
	}{
		{"matching role", []string{"doctor"}, true},
		{"admin bypass", []string{RoleAdmin}, true},
		{"other role", []string{"secretary"}, false},
		{"anonymous", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodDelete, "/patients/1", nil)
			req = req.WithContext(WithPrincipal(req.Context(), "1", "bruce", tt.roles))
			c := e.NewContext(req, httptest.NewRecorder())

			err := RequireRole("doctor", "nurse")(func(c echo.Context) error {
				return c.NoContent(http.StatusNoContent)
			})(c)
			if tt.allowed && err != nil {
				t.Fatalf("expected access, got %v", err)
			}
			if !tt.allowed {
				expectStatus(t, err, http.StatusForbidden)
			}
		})
	}
}

func TestAuthSkipper(t *testing.T) {
	e := echo.New()
	tests := []struct {
		method string
		route  string
		public bool
	}{
		{http.MethodGet, "/", true},
		{http.MethodGet, "/health", true},
		{http.MethodGet, "/metrics", true},
		{http.MethodGet, "/openapi.json", true},
		{http.MethodPost, "/auth/token", true},
		{http.MethodPut, "/auth/token/:username", true},
		{http.MethodDelete, "/auth/token/:username", false},
		{http.MethodPost, "/identity/accounts", true},
		{http.MethodGet, "/identity/accounts", false},
		{http.MethodGet, "/patients", false},
		{http.MethodPost, "/", false},
	}
	for _, tt := range tests {
		c := e.NewContext(httptest.NewRequest(tt.method, "/", nil), httptest.NewRecorder())
		c.SetPath(tt.route)
		if got := AuthSkipper(c); got != tt.public {
			t.Errorf("%s %s: AuthSkipper() = %v, want %v", tt.method, tt.route, got, tt.public)
		}
	}

	if !IsPublicPath("/health/db") || IsPublicPath("/patients") {
		t.Error("IsPublicPath misclassified a path")
	}
}
