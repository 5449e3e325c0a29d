package patients

import (
	"time"

	"github.com/google/uuid"

	"github.com/medeasy/medeasy/internal/platform/db"
	"github.com/medeasy/medeasy/internal/platform/events"
	"github.com/medeasy/medeasy/internal/platform/rest"
	"github.com/medeasy/medeasy/internal/platform/search"
	"github.com/medeasy/medeasy/internal/platform/validation"
)

type Patient struct {
	ID           uuid.UUID  `json:"id" xml:"id"`
	Firstname    string     `json:"firstname,omitempty" xml:"firstname,omitempty"`
	Lastname     string     `json:"lastname" xml:"lastname"`
	BirthDate    *time.Time `json:"birthDate,omitempty" xml:"birthDate,omitempty"`
	BirthPlace   string     `json:"birthPlace,omitempty" xml:"birthPlace,omitempty"`
	MainDoctorID *uuid.UUID `json:"mainDoctorId,omitempty" xml:"mainDoctorId,omitempty"`
	db.Audit
}

// Info is the client editable part of a patient, used on create and patch.
type Info struct {
	Firstname    string     `json:"firstname,omitempty"`
	Lastname     string     `json:"lastname"`
	BirthDate    *time.Time `json:"birthDate,omitempty"`
	BirthPlace   string     `json:"birthPlace,omitempty"`
	MainDoctorID *uuid.UUID `json:"mainDoctorId,omitempty"`
}

func (p *Patient) Info() Info {
	return Info{
		Firstname:    p.Firstname,
		Lastname:     p.Lastname,
		BirthDate:    p.BirthDate,
		BirthPlace:   p.BirthPlace,
		MainDoctorID: p.MainDoctorID,
	}
}

func (p *Patient) apply(info Info) {
	p.Firstname = info.Firstname
	p.Lastname = info.Lastname
	p.BirthDate = info.BirthDate
	p.BirthPlace = info.BirthPlace
	p.MainDoctorID = info.MainDoctorID
}

// patchable lists the properties a JSON Patch may touch.
var patchable = []string{"firstname", "lastname", "birthDate", "birthPlace", "mainDoctorId"}

// Case returns the integration event payload describing p.
func (p *Patient) Case() events.PatientCase {
	return events.PatientCase{ID: p.ID, Firstname: p.Firstname, Lastname: p.Lastname, BirthDate: p.BirthDate}
}

func newInfoValidator(now func() time.Time) *validation.Validator[Info] {
	return validation.New[Info]().
		Error("lastname", validation.Required("lastname"), func(i Info) bool {
			return validation.NotBlank(i.Lastname)
		}).
		Warning("firstname", "firstname is empty", func(i Info) bool {
			return validation.NotBlank(i.Firstname)
		}).
		Error("birthDate", "birthDate cannot be in the future", func(i Info) bool {
			return i.BirthDate == nil || !i.BirthDate.After(now())
		})
}

// SearchInfo holds the criteria of GET /patients/search.
type SearchInfo struct {
	Firstname string    `schema:"firstname"`
	Lastname  string    `schema:"lastname"`
	BirthDate time.Time `schema:"birthDate"`
	Sort      string    `schema:"sort"`
}

func (s SearchInfo) Filter() (search.Filter, error) {
	b := search.NewBuilder().
		Text("firstname", s.Firstname).
		Text("lastname", s.Lastname)
	if !s.BirthDate.IsZero() {
		b.Compare("birthDate", search.EqualTo, s.BirthDate)
	}
	return b.Build()
}

var columns = search.Columns{
	"id":           {Name: "id", Kind: search.UUID},
	"firstname":    {Name: "firstname", Kind: search.Text},
	"lastname":     {Name: "lastname", Kind: search.Text},
	"birthDate":    {Name: "birth_date", Kind: search.Time},
	"birthPlace":   {Name: "birth_place", Kind: search.Text},
	"mainDoctorId": {Name: "main_doctor_id", Kind: search.UUID},
	"createdDate":  {Name: "created_date", Kind: search.Time},
	"updatedDate":  {Name: "updated_date", Kind: search.Time},
}

// getter exposes p to in-memory criteria evaluation.
func (p *Patient) getter() search.Getter {
	return func(field string) (interface{}, bool) {
		switch field {
		case "id":
			return p.ID, true
		case "firstname":
			if p.Firstname == "" {
				return nil, true
			}
			return p.Firstname, true
		case "lastname":
			return p.Lastname, true
		case "birthDate":
			return p.BirthDate, true
		case "birthPlace":
			return p.BirthPlace, true
		case "mainDoctorId":
			return p.MainDoctorID, true
		case "createdDate":
			return p.CreatedDate, true
		case "updatedDate":
			return p.UpdatedDate, true
		}
		return nil, false
	}
}

// Resource describes the patients endpoint for the root and OpenAPI documents.
func Resource() rest.Resource {
	return rest.Resource{
		Name: "patients",
		Path: "/patients",
		Create: []rest.Field{
			{Name: "firstname", Type: "string"},
			{Name: "lastname", Type: "string", Required: true},
			{Name: "birthDate", Type: "date"},
			{Name: "birthPlace", Type: "string"},
			{Name: "mainDoctorId", Type: "uuid"},
		},
		Search: []rest.Field{
			{Name: "firstname", Type: "string"},
			{Name: "lastname", Type: "string"},
			{Name: "birthDate", Type: "date"},
			{Name: "sort", Type: "string"},
		},
	}
}
