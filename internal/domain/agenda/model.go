package agenda

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medeasy/medeasy/internal/platform/db"
	"github.com/medeasy/medeasy/internal/platform/rest"
	"github.com/medeasy/medeasy/internal/platform/search"
	"github.com/medeasy/medeasy/internal/platform/validation"
)

const (
	StatusPlanned   = "planned"
	StatusCancelled = "cancelled"
	StatusDone      = "done"
)

var statuses = map[string]bool{StatusPlanned: true, StatusCancelled: true, StatusDone: true}

type Participant struct {
	ID          uuid.UUID `json:"id" xml:"id"`
	Name        string    `json:"name" xml:"name"`
	Email       string    `json:"email,omitempty" xml:"email,omitempty"`
	PhoneNumber string    `json:"phoneNumber,omitempty" xml:"phoneNumber,omitempty"`
	db.Audit
}

type Appointment struct {
	ID           uuid.UUID      `json:"id" xml:"id"`
	Subject      string         `json:"subject" xml:"subject"`
	Location     string         `json:"location" xml:"location"`
	StartDate    time.Time      `json:"startDate" xml:"startDate"`
	EndDate      time.Time      `json:"endDate" xml:"endDate"`
	Status       string         `json:"status" xml:"status"`
	Participants []*Participant `json:"participants" xml:"participants>participant"`
	db.Audit
}

// HasParticipant reports whether id attends a.
func (a *Appointment) HasParticipant(id uuid.UUID) bool {
	for _, p := range a.Participants {
		if p.ID == id {
			return true
		}
	}
	return false
}

type ParticipantInfo struct {
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// NewAppointmentInfo is the payload of POST /agenda/appointments.
type NewAppointmentInfo struct {
	Subject      string            `json:"subject"`
	Location     string            `json:"location"`
	StartDate    time.Time         `json:"startDate"`
	EndDate      time.Time         `json:"endDate"`
	Status       string            `json:"status,omitempty"`
	Participants []ParticipantInfo `json:"participants"`
}

// AppointmentInfo is the patchable part of an appointment.
type AppointmentInfo struct {
	Subject   string    `json:"subject"`
	Location  string    `json:"location"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Status    string    `json:"status"`
}

var appointmentPatchable = []string{"subject", "location", "startDate", "endDate", "status"}

func (a *Appointment) Info() AppointmentInfo {
	return AppointmentInfo{Subject: a.Subject, Location: a.Location, StartDate: a.StartDate, EndDate: a.EndDate, Status: a.Status}
}

func (a *Appointment) apply(info AppointmentInfo) {
	a.Subject = info.Subject
	a.Location = info.Location
	a.StartDate = info.StartDate.UTC()
	a.EndDate = info.EndDate.UTC()
	a.Status = info.Status
}

var appointmentValidator = validation.New[AppointmentInfo]().
	Error("subject", validation.Required("subject"), func(a AppointmentInfo) bool { return validation.NotBlank(a.Subject) }).
	Error("location", validation.Required("location"), func(a AppointmentInfo) bool { return validation.NotBlank(a.Location) }).
	Error("startDate", validation.Required("startDate"), func(a AppointmentInfo) bool { return !a.StartDate.IsZero() }).
	Error("endDate", "endDate must be after startDate", func(a AppointmentInfo) bool { return a.EndDate.After(a.StartDate) }).
	Error("status", "status must be planned, cancelled or done", func(a AppointmentInfo) bool { return statuses[a.Status] })

func validateNew(info NewAppointmentInfo) validation.Result {
	r := appointmentValidator.Validate(AppointmentInfo{
		Subject: info.Subject, Location: info.Location, StartDate: info.StartDate, EndDate: info.EndDate, Status: info.Status,
	})
	if len(info.Participants) == 0 {
		r.AddError("participants", "at least one participant is required")
	}
	for _, p := range info.Participants {
		if !validation.NotBlank(p.Name) {
			r.AddError("participants", "participant name is required")
		}
		if email := strings.TrimSpace(p.Email); email != "" && !validation.IsEmail(email) {
			r.AddError("participants", p.Email+" is not a valid email")
		}
		if p.Email == "" && p.PhoneNumber == "" {
			r.AddWarning("participants", p.Name+" cannot be contacted")
		}
	}
	return r
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SearchAppointmentInfo holds the criteria of GET /agenda/appointments/search.
// From and To select the appointments overlapping the window.
type SearchAppointmentInfo struct {
	From        time.Time `schema:"from"`
	To          time.Time `schema:"to"`
	Location    string    `schema:"location"`
	Subject     string    `schema:"subject"`
	Participant string    `schema:"participant"`
	Status      string    `schema:"status"`
	Sort        string    `schema:"sort"`
}

func (s SearchAppointmentInfo) Filter() (search.Filter, error) {
	b := search.NewBuilder().
		Text("location", s.Location).
		Text("subject", s.Subject).
		Text("status", s.Status)
	if !s.From.IsZero() {
		b.Compare("endDate", search.GreaterThanOrEqual, s.From)
	}
	if !s.To.IsZero() {
		b.Compare("startDate", search.LessThanOrEqual, s.To)
	}
	return b.Build()
}

// ParticipantFilter is matched against any participant of an appointment.
func (s SearchAppointmentInfo) ParticipantFilter() (search.Filter, error) {
	return search.Parse("participant", s.Participant)
}

type SearchParticipantInfo struct {
	Name  string `schema:"name"`
	Email string `schema:"email"`
	Sort  string `schema:"sort"`
}

func (s SearchParticipantInfo) Filter() (search.Filter, error) {
	return search.NewBuilder().Text("name", s.Name).Text("email", s.Email).Build()
}

var appointmentColumns = search.Columns{
	"id":          {Name: "a.id", Kind: search.UUID},
	"subject":     {Name: "a.subject", Kind: search.Text},
	"location":    {Name: "a.location", Kind: search.Text},
	"startDate":   {Name: "a.start_date", Kind: search.Time},
	"endDate":     {Name: "a.end_date", Kind: search.Time},
	"status":      {Name: "a.status", Kind: search.Text},
	"createdDate": {Name: "a.created_date", Kind: search.Time},
	"updatedDate": {Name: "a.updated_date", Kind: search.Time},
}

var attendeeColumns = search.Columns{
	"participant": {Name: "p.name", Kind: search.Text},
}

var participantColumns = search.Columns{
	"id":          {Name: "id", Kind: search.UUID},
	"name":        {Name: "name", Kind: search.Text},
	"email":       {Name: "email", Kind: search.Text},
	"phoneNumber": {Name: "phone_number", Kind: search.Text},
	"createdDate": {Name: "created_date", Kind: search.Time},
	"updatedDate": {Name: "updated_date", Kind: search.Time},
}

func (a *Appointment) getter() search.Getter {
	return func(field string) (interface{}, bool) {
		switch field {
		case "id":
			return a.ID, true
		case "subject":
			return a.Subject, true
		case "location":
			return a.Location, true
		case "startDate":
			return a.StartDate, true
		case "endDate":
			return a.EndDate, true
		case "status":
			return a.Status, true
		case "createdDate":
			return a.CreatedDate, true
		case "updatedDate":
			return a.UpdatedDate, true
		}
		return nil, false
	}
}

func (p *Participant) getter() search.Getter {
	return func(field string) (interface{}, bool) {
		switch field {
		case "id":
			return p.ID, true
		case "name", "participant":
			return p.Name, true
		case "email":
			if p.Email == "" {
				return nil, true
			}
			return p.Email, true
		case "phoneNumber":
			if p.PhoneNumber == "" {
				return nil, true
			}
			return p.PhoneNumber, true
		case "createdDate":
			return p.CreatedDate, true
		case "updatedDate":
			return p.UpdatedDate, true
		}
		return nil, false
	}
}

func Resources() []rest.Resource {
	return []rest.Resource{
		{
			Name: "appointments",
			Path: "/agenda/appointments",
			Create: []rest.Field{
				{Name: "subject", Type: "string", Required: true},
				{Name: "location", Type: "string", Required: true},
				{Name: "startDate", Type: "date", Required: true},
				{Name: "endDate", Type: "date", Required: true},
				{Name: "status", Type: "string", Enum: []string{StatusPlanned, StatusCancelled, StatusDone}},
				{Name: "participants", Type: "array", Required: true, Description: "name, email and phoneNumber of each attendee"},
			},
			Search: []rest.Field{
				{Name: "from", Type: "date"},
				{Name: "to", Type: "date"},
				{Name: "location", Type: "string"},
				{Name: "subject", Type: "string"},
				{Name: "participant", Type: "string"},
				{Name: "status", Type: "string"},
				{Name: "sort", Type: "string"},
			},
		},
		{
			Name: "participants",
			Path: "/agenda/participants",
			Search: []rest.Field{
				{Name: "name", Type: "string"},
				{Name: "email", Type: "string"},
				{Name: "sort", Type: "string"},
			},
		},
	}
}
