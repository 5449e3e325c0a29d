package identity

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medeasy/medeasy/internal/platform/auth"
	"github.com/medeasy/medeasy/internal/platform/db"
	"github.com/medeasy/medeasy/internal/platform/rest"
	"github.com/medeasy/medeasy/pkg/pagination"
)

func newTestHandler(t *testing.T) (*echo.Echo, *mockRepo) {
	t.Helper()
	repo := newMockRepo()
	revocations := auth.NewMemoryRevocationStore(time.Hour)
	t.Cleanup(revocations.Close)
	svc := NewService(repo, db.NopUnitOfWork{}, newIssuer(), revocations, zerolog.Nop())

	e := echo.New()
	e.HTTPErrorHandler = rest.ErrorHandler(zerolog.Nop())
	e.Use(auth.JWTMiddleware(auth.JWTConfig{
		Issuer:      "medeasy",
		SigningKey:  signingKey,
		Revocations: revocations,
		Skipper:     auth.AuthSkipper,
		Logger:      zerolog.Nop(),
	}))
	NewHandler(svc, pagination.DefaultConfig()).RegisterRoutes(e)
	return e, repo
}

func serve(e *echo.Echo, method, target, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const bruceJSON = `{"username":"bruce","name":"Bruce Wayne","email":"bruce@wayne.com","password":"batman!","confirmPassword":"batman!"}`

func register(t *testing.T, e *echo.Echo, body string) Account {
	t.Helper()
	rec := serve(e, http.MethodPost, "/identity/accounts", body, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var out rest.Browsable[Account]
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	return out.Resource
}

func login(t *testing.T, e *echo.Echo, username, password string) auth.TokenPair {
	t.Helper()
	rec := serve(e, http.MethodPost, "/auth/token", `{"username":"`+username+`","password":"`+password+`"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var pair auth.TokenPair
	if err := json.Unmarshal(rec.Body.Bytes(), &pair); err != nil {
		t.Fatal(err)
	}
	return pair
}

func TestHandler_Register(t *testing.T) {
	e, _ := newTestHandler(t)
	a := register(t, e, bruceJSON)
	if a.Username != "bruce" || !a.IsActive {
		t.Errorf("unexpected account %+v", a)
	}

	rec := serve(e, http.MethodPost, "/identity/accounts", bruceJSON, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on taken username, got %d", rec.Code)
	}
	rec = serve(e, http.MethodPost, "/identity/accounts", `{"username":"robin","email":"robin@wayne.com","password":"abc","confirmPassword":"abc"}`, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
}

func TestHandler_Accounts_RequireToken(t *testing.T) {
	e, _ := newTestHandler(t)
	a := register(t, e, bruceJSON)

	if rec := serve(e, http.MethodGet, "/identity/accounts/"+a.ID.String(), "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	pair := login(t, e, "bruce", "batman!")
	rec := serve(e, http.MethodGet, "/identity/accounts/"+a.ID.String(), "", pair.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "passwordHash") || strings.Contains(rec.Body.String(), pair.RefreshToken) {
		t.Error("secrets must not be rendered")
	}

	if rec := serve(e, http.MethodGet, "/identity/accounts/search?username=br*", "", pair.AccessToken); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a non administrator, got %d", rec.Code)
	}
}

func TestHandler_Directory_Admin(t *testing.T) {
	e, repo := newTestHandler(t)
	a := register(t, e, bruceJSON)
	register(t, e, `{"username":"dick","email":"dick@wayne.com","password":"robin!","confirmPassword":"robin!"}`)
	repo.accounts[a.ID].Roles = []string{auth.RoleAdmin}
	pair := login(t, e, "bruce", "batman!")

	rec := serve(e, http.MethodGet, "/identity/accounts/search?username=br*", "", pair.AccessToken)
	if rec.Code != http.StatusOK || rec.Header().Get(rest.HeaderTotalCount) != "1" {
		t.Errorf("unexpected search answer %d %q", rec.Code, rec.Header().Get(rest.HeaderTotalCount))
	}
	rec = serve(e, http.MethodGet, "/identity/accounts", "", pair.AccessToken)
	if rec.Code != http.StatusOK || rec.Header().Get(rest.HeaderTotalCount) != "2" {
		t.Errorf("unexpected list answer %d %q", rec.Code, rec.Header().Get(rest.HeaderTotalCount))
	}
}

func TestHandler_Login_Unauthorized(t *testing.T) {
	e, _ := newTestHandler(t)
	register(t, e, bruceJSON)

	for _, body := range []string{
		`{"username":"bruce","password":"robin!"}`,
		`{"username":"joker","password":"batman!"}`,
	} {
		if rec := serve(e, http.MethodPost, "/auth/token", body, ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", body, rec.Code)
		}
	}
}

func TestHandler_Refresh(t *testing.T) {
	e, _ := newTestHandler(t)
	register(t, e, bruceJSON)
	pair := login(t, e, "bruce", "batman!")

	rec := serve(e, http.MethodPut, "/auth/token/bruce", `{"refreshToken":"`+pair.RefreshToken+`"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var token BearerToken
	if err := json.Unmarshal(rec.Body.Bytes(), &token); err != nil {
		t.Fatal(err)
	}
	if token.AccessToken == "" {
		t.Error("expected an access token")
	}

	if rec := serve(e, http.MethodPut, "/auth/token/bruce", `{"refreshToken":"forged"}`, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestHandler_Invalidate(t *testing.T) {
	e, repo := newTestHandler(t)
	register(t, e, bruceJSON)
	register(t, e, `{"username":"joker","email":"joker@arkham.org","password":"hahaha","confirmPassword":"hahaha"}`)
	bruce := login(t, e, "bruce", "batman!")
	joker := login(t, e, "joker", "hahaha")

	if rec := serve(e, http.MethodDelete, "/auth/token/bruce", "", joker.AccessToken); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for another account, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodDelete, "/auth/token/thejoker", "", joker.AccessToken); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown account, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodDelete, "/auth/token/bruce", "", bruce.AccessToken); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	if rec := serve(e, http.MethodGet, "/identity/accounts", "", bruce.AccessToken); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected revoked access token to be rejected, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodPut, "/auth/token/bruce", `{"refreshToken":"`+bruce.RefreshToken+`"}`, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected cleared refresh token to be rejected, got %d", rec.Code)
	}
	for _, a := range repo.accounts {
		if a.Username == "bruce" && a.RefreshToken != "" {
			t.Error("expected the refresh token to be cleared")
		}
	}
}

func TestHandler_Patch_Privileged(t *testing.T) {
	e, _ := newTestHandler(t)
	a := register(t, e, bruceJSON)
	pair := login(t, e, "bruce", "batman!")

	req := httptest.NewRequest(http.MethodPatch, "/identity/accounts/"+a.ID.String(), strings.NewReader(`[{"op":"replace","path":"/locked","value":false},{"op":"add","path":"/roles/-","value":"admin"}]`))
	req.Header.Set(echo.HeaderContentType, "application/json-patch+json")
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 on self promotion, got %d", rec.Code)
	}
}
