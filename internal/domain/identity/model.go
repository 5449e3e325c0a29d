package identity

import (
	"encoding/xml"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medeasy/medeasy/internal/platform/auth"
	"github.com/medeasy/medeasy/internal/platform/db"
	"github.com/medeasy/medeasy/internal/platform/rest"
	"github.com/medeasy/medeasy/internal/platform/search"
	"github.com/medeasy/medeasy/internal/platform/validation"
)

const MinPasswordLength = 6

// Account is a user of the platform. PasswordHash and RefreshToken never
// leave the service.
type Account struct {
	ID             uuid.UUID      `json:"id" xml:"id"`
	Username       string         `json:"username" xml:"username"`
	Name           string         `json:"name,omitempty" xml:"name,omitempty"`
	Email          string         `json:"email" xml:"email"`
	PasswordHash   string         `json:"-" xml:"-"`
	IsActive       bool           `json:"isActive" xml:"isActive"`
	Locked         bool           `json:"locked" xml:"locked"`
	EmailConfirmed bool           `json:"emailConfirmed" xml:"emailConfirmed"`
	RefreshToken   string         `json:"-" xml:"-"`
	TenantID       *uuid.UUID     `json:"tenantId,omitempty" xml:"tenantId,omitempty"`
	Roles          []string       `json:"roles" xml:"roles>role"`
	Claims         []AccountClaim `json:"claims" xml:"claims>claim"`
	db.Audit
}

// AccountClaim is a claim granted to an account for a period of time. A nil
// End never expires.
type AccountClaim struct {
	Type  string     `json:"type" xml:"type,attr"`
	Value string     `json:"value" xml:"value,attr"`
	Start time.Time  `json:"start" xml:"start,attr"`
	End   *time.Time `json:"end,omitempty" xml:"end,attr,omitempty"`
}

func (c AccountClaim) ActiveAt(t time.Time) bool {
	return !c.Start.After(t) && (c.End == nil || c.End.After(t))
}

// NewAccountInfo is the payload of POST /identity/accounts.
type NewAccountInfo struct {
	Username        string     `json:"username"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Password        string     `json:"password"`
	ConfirmPassword string     `json:"confirmPassword"`
	TenantID        *uuid.UUID `json:"tenantId,omitempty"`
}

var newAccountValidator = validation.New[NewAccountInfo]().
	Error("username", validation.Required("username"), func(i NewAccountInfo) bool { return validation.NotBlank(i.Username) }).
	Error("email", validation.Required("email"), func(i NewAccountInfo) bool { return validation.NotBlank(i.Email) }).
	Error("email", "email is not a valid address", func(i NewAccountInfo) bool {
		return !validation.NotBlank(i.Email) || validation.IsEmail(i.Email)
	}).
	Error("password", "password must be at least 6 characters", func(i NewAccountInfo) bool {
		return len(i.Password) >= MinPasswordLength
	}).
	Error("confirmPassword", "confirmPassword does not match password", func(i NewAccountInfo) bool {
		return i.Password == i.ConfirmPassword
	}).
	Warning("name", "name is empty", func(i NewAccountInfo) bool { return validation.NotBlank(i.Name) })

// Info is the patchable part of an account. Only administrators may change
// the privileged fields.
type Info struct {
	Name     string         `json:"name"`
	Email    string         `json:"email"`
	TenantID *uuid.UUID     `json:"tenantId"`
	IsActive bool           `json:"isActive"`
	Locked   bool           `json:"locked"`
	Roles    []string       `json:"roles"`
	Claims   []AccountClaim `json:"claims"`
}

var (
	patchable  = []string{"name", "email", "tenantId", "isActive", "locked", "roles", "claims"}
	privileged = map[string]bool{"tenantId": true, "isActive": true, "locked": true, "roles": true, "claims": true}
)

func (a *Account) Info() Info {
	return Info{
		Name:     a.Name,
		Email:    a.Email,
		TenantID: a.TenantID,
		IsActive: a.IsActive,
		Locked:   a.Locked,
		Roles:    append([]string{}, a.Roles...),
		Claims:   append([]AccountClaim{}, a.Claims...),
	}
}

func (a *Account) apply(info Info) {
	a.Name = info.Name
	a.Email = info.Email
	a.TenantID = info.TenantID
	a.IsActive = info.IsActive
	a.Locked = info.Locked
	a.Roles = normalizeRoles(info.Roles)
	a.Claims = info.Claims
	if a.Claims == nil {
		a.Claims = []AccountClaim{}
	}
}

func normalizeRoles(roles []string) []string {
	seen := make(map[string]bool, len(roles))
	out := []string{}
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

var infoValidator = validation.New[Info]().
	Error("email", "email is not a valid address", func(i Info) bool { return validation.IsEmail(i.Email) }).
	Error("claims", "claim type and value are required", func(i Info) bool {
		for _, c := range i.Claims {
			if !validation.NotBlank(c.Type) || !validation.NotBlank(c.Value) {
				return false
			}
		}
		return true
	}).
	Error("claims", "claim end must be after its start", func(i Info) bool {
		for _, c := range i.Claims {
			if c.End != nil && !c.End.After(c.Start) {
				return false
			}
		}
		return true
	})

// CanLogin reports whether the account may obtain tokens.
func (a *Account) CanLogin() bool {
	return a.IsActive && !a.Locked
}

func (a *Account) subject() auth.Subject {
	s := auth.Subject{ID: a.ID.String(), Username: a.Username, Email: a.Email, Roles: a.Roles}
	if a.TenantID != nil {
		s.TenantID = a.TenantID.String()
	}
	return s
}

// LoginInfo is the payload of POST /auth/token.
type LoginInfo struct {
	Username string `json:"username" xml:"username"`
	Password string `json:"password" xml:"password"`
}

// RefreshInfo is the payload of PUT /auth/token/:username.
type RefreshInfo struct {
	RefreshToken string `json:"refreshToken" xml:"refreshToken"`
}

// BearerToken is the answer to a refresh.
type BearerToken struct {
	XMLName     xml.Name  `json:"-" xml:"token"`
	AccessToken string    `json:"accessToken" xml:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt" xml:"expiresAt"`
}

// SearchInfo holds the criteria of GET /identity/accounts/search.
type SearchInfo struct {
	Username string `schema:"username"`
	Email    string `schema:"email"`
	Name     string `schema:"name"`
	Sort     string `schema:"sort"`
}

func (s SearchInfo) Filter() (search.Filter, error) {
	return search.NewBuilder().
		Text("username", s.Username).
		Text("email", s.Email).
		Text("name", s.Name).
		Build()
}

var columns = search.Columns{
	"id":          {Name: "id", Kind: search.UUID},
	"username":    {Name: "username", Kind: search.Text},
	"name":        {Name: "name", Kind: search.Text},
	"email":       {Name: "email", Kind: search.Text},
	"isActive":    {Name: "is_active", Kind: search.Bool},
	"locked":      {Name: "locked", Kind: search.Bool},
	"tenantId":    {Name: "tenant_id", Kind: search.UUID},
	"createdDate": {Name: "created_date", Kind: search.Time},
	"updatedDate": {Name: "updated_date", Kind: search.Time},
}

func (a *Account) getter() search.Getter {
	return func(field string) (interface{}, bool) {
		switch field {
		case "id":
			return a.ID, true
		case "username":
			return a.Username, true
		case "name":
			if a.Name == "" {
				return nil, true
			}
			return a.Name, true
		case "email":
			return a.Email, true
		case "isActive":
			return a.IsActive, true
		case "locked":
			return a.Locked, true
		case "tenantId":
			return a.TenantID, true
		case "createdDate":
			return a.CreatedDate, true
		case "updatedDate":
			return a.UpdatedDate, true
		}
		return nil, false
	}
}

func Resource() rest.Resource {
	return rest.Resource{
		Name: "accounts",
		Path: "/identity/accounts",
		Create: []rest.Field{
			{Name: "username", Type: "string", Required: true},
			{Name: "name", Type: "string"},
			{Name: "email", Type: "string", Required: true},
			{Name: "password", Type: "string", Required: true},
			{Name: "confirmPassword", Type: "string", Required: true},
			{Name: "tenantId", Type: "uuid"},
		},
		Search: []rest.Field{
			{Name: "username", Type: "string"},
			{Name: "email", Type: "string"},
			{Name: "name", Type: "string"},
			{Name: "sort", Type: "string"},
		},
	}
}
