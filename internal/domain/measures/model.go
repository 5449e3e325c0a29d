package measures

import (
	"time"

	"github.com/google/uuid"

	"github.com/medeasy/medeasy/internal/platform/db"
	"github.com/medeasy/medeasy/internal/platform/events"
	"github.com/medeasy/medeasy/internal/platform/rest"
	"github.com/medeasy/medeasy/internal/platform/search"
	"github.com/medeasy/medeasy/internal/platform/validation"
)

// Patient is the local copy of a patient case, kept in sync through the
// PatientCaseCreated and PatientCaseDeleted events.
type Patient struct {
	ID        uuid.UUID  `json:"id" xml:"id"`
	Name      string     `json:"name" xml:"name"`
	BirthDate *time.Time `json:"birthDate,omitempty" xml:"birthDate,omitempty"`
	db.Audit
}

type PatientInfo struct {
	ID        uuid.UUID  `json:"id,omitempty"`
	Name      string     `json:"name"`
	BirthDate *time.Time `json:"birthDate,omitempty"`
}

var patientValidator = validation.New[PatientInfo]().
	Error("name", validation.Required("name"), func(p PatientInfo) bool { return validation.NotBlank(p.Name) })

func patientFromCase(c events.PatientCase) PatientInfo {
	return PatientInfo{ID: c.ID, Name: c.Name(), BirthDate: c.BirthDate}
}

type SearchPatientInfo struct {
	Name      string    `schema:"name"`
	BirthDate time.Time `schema:"birthDate"`
	Sort      string    `schema:"sort"`
}

func (s SearchPatientInfo) Filter() (search.Filter, error) {
	b := search.NewBuilder().Text("name", s.Name)
	if !s.BirthDate.IsZero() {
		b.Compare("birthDate", search.EqualTo, s.BirthDate)
	}
	return b.Build()
}

var patientColumns = search.Columns{
	"id":          {Name: "id", Kind: search.UUID},
	"name":        {Name: "name", Kind: search.Text},
	"birthDate":   {Name: "birth_date", Kind: search.Time},
	"createdDate": {Name: "created_date", Kind: search.Time},
	"updatedDate": {Name: "updated_date", Kind: search.Time},
}

func (p *Patient) getter() search.Getter {
	return func(field string) (interface{}, bool) {
		switch field {
		case "id":
			return p.ID, true
		case "name":
			return p.Name, true
		case "birthDate":
			return p.BirthDate, true
		case "createdDate":
			return p.CreatedDate, true
		case "updatedDate":
			return p.UpdatedDate, true
		}
		return nil, false
	}
}

// Sample holds what every physical measure has in common.
type Sample struct {
	ID            uuid.UUID `json:"id" xml:"id"`
	PatientID     uuid.UUID `json:"patientId" xml:"patientId"`
	DateOfMeasure time.Time `json:"dateOfMeasure" xml:"dateOfMeasure"`
	db.Audit
}

func (s *Sample) sample() *Sample { return s }

func (s *Sample) field(name string) (interface{}, bool) {
	switch name {
	case "id":
		return s.ID, true
	case "patientId":
		return s.PatientID, true
	case "dateOfMeasure":
		return s.DateOfMeasure, true
	case "createdDate":
		return s.CreatedDate, true
	case "updatedDate":
		return s.UpdatedDate, true
	}
	return nil, false
}

// Measure is implemented by the physical measure types.
type Measure interface {
	sample() *Sample
	// values returns pointers to the measure specific columns, in table order.
	values() []interface{}
	getter() search.Getter
}

type BloodPressure struct {
	Sample
	SystolicPressure  float64 `json:"systolicPressure" xml:"systolicPressure"`
	DiastolicPressure float64 `json:"diastolicPressure" xml:"diastolicPressure"`
}

func (b *BloodPressure) values() []interface{} {
	return []interface{}{&b.SystolicPressure, &b.DiastolicPressure}
}

func (b *BloodPressure) getter() search.Getter {
	return func(field string) (interface{}, bool) {
		switch field {
		case "systolicPressure":
			return b.SystolicPressure, true
		case "diastolicPressure":
			return b.DiastolicPressure, true
		}
		return b.field(field)
	}
}

type BloodPressureInfo struct {
	PatientID         uuid.UUID `json:"patientId"`
	DateOfMeasure     time.Time `json:"dateOfMeasure"`
	SystolicPressure  float64   `json:"systolicPressure"`
	DiastolicPressure float64   `json:"diastolicPressure"`
}

type BodyWeight struct {
	Sample
	Value float64 `json:"value" xml:"value"`
}

func (b *BodyWeight) values() []interface{} { return []interface{}{&b.Value} }

func (b *BodyWeight) getter() search.Getter {
	return func(field string) (interface{}, bool) {
		if field == "value" {
			return b.Value, true
		}
		return b.field(field)
	}
}

type BodyWeightInfo struct {
	PatientID     uuid.UUID `json:"patientId"`
	DateOfMeasure time.Time `json:"dateOfMeasure"`
	Value         float64   `json:"value"`
}

type Temperature struct {
	Sample
	Value float64 `json:"value" xml:"value"`
}

func (t *Temperature) values() []interface{} { return []interface{}{&t.Value} }

func (t *Temperature) getter() search.Getter {
	return func(field string) (interface{}, bool) {
		if field == "value" {
			return t.Value, true
		}
		return t.field(field)
	}
}

type TemperatureInfo struct {
	PatientID     uuid.UUID `json:"patientId"`
	DateOfMeasure time.Time `json:"dateOfMeasure"`
	Value         float64   `json:"value"`
}

// Kind describes how one physical measure is stored, validated and announced.
type Kind[M Measure, I any] struct {
	Name      string
	table     string
	valueCols []string
	columns   search.Columns
	patchable []string
	validator *validation.Validator[I]
	created   string
	updated   string
	deleted   string
	fresh     func() M
	info      func(M) I
	apply     func(M, I)
}

func sampleColumns(extra search.Columns) search.Columns {
	cols := search.Columns{
		"id":            {Name: "id", Kind: search.UUID},
		"patientId":     {Name: "patient_id", Kind: search.UUID},
		"dateOfMeasure": {Name: "date_of_measure", Kind: search.Time},
		"createdDate":   {Name: "created_date", Kind: search.Time},
		"updatedDate":   {Name: "updated_date", Kind: search.Time},
	}
	for k, v := range extra {
		cols[k] = v
	}
	return cols
}

func requirePatient[I any](v *validation.Validator[I], patient func(I) uuid.UUID, date func(I) time.Time) *validation.Validator[I] {
	return v.
		Error("patientId", validation.Required("patientId"), func(i I) bool { return patient(i) != uuid.Nil }).
		Error("dateOfMeasure", validation.Required("dateOfMeasure"), func(i I) bool { return !date(i).IsZero() })
}

var BloodPressures = &Kind[*BloodPressure, BloodPressureInfo]{
	Name:      "bloodpressures",
	table:     "blood_pressure",
	valueCols: []string{"systolic_pressure", "diastolic_pressure"},
	columns: sampleColumns(search.Columns{
		"systolicPressure":  {Name: "systolic_pressure", Kind: search.Number},
		"diastolicPressure": {Name: "diastolic_pressure", Kind: search.Number},
	}),
	patchable: []string{"dateOfMeasure", "systolicPressure", "diastolicPressure"},
	validator: requirePatient(validation.New[BloodPressureInfo](),
		func(i BloodPressureInfo) uuid.UUID { return i.PatientID },
		func(i BloodPressureInfo) time.Time { return i.DateOfMeasure }).
		Warning("systolicPressure", "systolicPressure should be positive", func(i BloodPressureInfo) bool { return i.SystolicPressure > 0 }).
		Warning("diastolicPressure", "diastolicPressure should be positive", func(i BloodPressureInfo) bool { return i.DiastolicPressure > 0 }).
		Error("diastolicPressure", "diastolicPressure must be lower than systolicPressure", func(i BloodPressureInfo) bool {
			return i.DiastolicPressure < i.SystolicPressure
		}),
	created: events.BloodPressureCreated,
	updated: events.BloodPressureUpdated,
	deleted: events.BloodPressureDeleted,
	fresh:   func() *BloodPressure { return &BloodPressure{} },
	info: func(b *BloodPressure) BloodPressureInfo {
		return BloodPressureInfo{PatientID: b.PatientID, DateOfMeasure: b.DateOfMeasure, SystolicPressure: b.SystolicPressure, DiastolicPressure: b.DiastolicPressure}
	},
	apply: func(b *BloodPressure, i BloodPressureInfo) {
		b.PatientID, b.DateOfMeasure = i.PatientID, i.DateOfMeasure.UTC()
		b.SystolicPressure, b.DiastolicPressure = i.SystolicPressure, i.DiastolicPressure
	},
}

var BodyWeights = &Kind[*BodyWeight, BodyWeightInfo]{
	Name:      "bodyweights",
	table:     "body_weight",
	valueCols: []string{"value"},
	columns:   sampleColumns(search.Columns{"value": {Name: "value", Kind: search.Number}}),
	patchable: []string{"dateOfMeasure", "value"},
	validator: requirePatient(validation.New[BodyWeightInfo](),
		func(i BodyWeightInfo) uuid.UUID { return i.PatientID },
		func(i BodyWeightInfo) time.Time { return i.DateOfMeasure }).
		Error("value", "value must be positive", func(i BodyWeightInfo) bool { return i.Value > 0 }),
	created: events.BodyWeightCreated,
	updated: events.BodyWeightUpdated,
	deleted: events.BodyWeightDeleted,
	fresh:   func() *BodyWeight { return &BodyWeight{} },
	info: func(b *BodyWeight) BodyWeightInfo {
		return BodyWeightInfo{PatientID: b.PatientID, DateOfMeasure: b.DateOfMeasure, Value: b.Value}
	},
	apply: func(b *BodyWeight, i BodyWeightInfo) {
		b.PatientID, b.DateOfMeasure, b.Value = i.PatientID, i.DateOfMeasure.UTC(), i.Value
	},
}

const (
	MinTemperature = 25.0
	MaxTemperature = 45.0
)

var Temperatures = &Kind[*Temperature, TemperatureInfo]{
	Name:      "temperatures",
	table:     "temperature",
	valueCols: []string{"value"},
	columns:   sampleColumns(search.Columns{"value": {Name: "value", Kind: search.Number}}),
	patchable: []string{"dateOfMeasure", "value"},
	validator: requirePatient(validation.New[TemperatureInfo](),
		func(i TemperatureInfo) uuid.UUID { return i.PatientID },
		func(i TemperatureInfo) time.Time { return i.DateOfMeasure }).
		Error("value", "value must be between 25 and 45", func(i TemperatureInfo) bool {
			return i.Value >= MinTemperature && i.Value <= MaxTemperature
		}),
	created: events.TemperatureCreated,
	updated: events.TemperatureUpdated,
	deleted: events.TemperatureDeleted,
	fresh:   func() *Temperature { return &Temperature{} },
	info: func(t *Temperature) TemperatureInfo {
		return TemperatureInfo{PatientID: t.PatientID, DateOfMeasure: t.DateOfMeasure, Value: t.Value}
	},
	apply: func(t *Temperature, i TemperatureInfo) {
		t.PatientID, t.DateOfMeasure, t.Value = i.PatientID, i.DateOfMeasure.UTC(), i.Value
	},
}

// SearchMeasureInfo holds the criteria shared by every measure search.
type SearchMeasureInfo struct {
	From      time.Time `schema:"from"`
	To        time.Time `schema:"to"`
	PatientID uuid.UUID `schema:"patientId"`
	Sort      string    `schema:"sort"`
}

func (s SearchMeasureInfo) Filter() (search.Filter, error) {
	b := search.NewBuilder()
	if !s.From.IsZero() {
		b.Compare("dateOfMeasure", search.GreaterThanOrEqual, s.From)
	}
	if !s.To.IsZero() {
		b.Compare("dateOfMeasure", search.LessThanOrEqual, s.To)
	}
	if s.PatientID != uuid.Nil {
		b.Compare("patientId", search.EqualTo, s.PatientID)
	}
	return b.Build()
}

func measureFields(values ...rest.Field) []rest.Field {
	return append([]rest.Field{
		{Name: "patientId", Type: "uuid", Required: true},
		{Name: "dateOfMeasure", Type: "date", Required: true},
	}, values...)
}

var measureSearch = []rest.Field{
	{Name: "from", Type: "date"},
	{Name: "to", Type: "date"},
	{Name: "patientId", Type: "uuid"},
	{Name: "sort", Type: "string"},
}

func Resources() []rest.Resource {
	return []rest.Resource{
		{
			Name:   "patients",
			Path:   "/measures/patients",
			Create: []rest.Field{{Name: "id", Type: "uuid"}, {Name: "name", Type: "string", Required: true}, {Name: "birthDate", Type: "date"}},
			Search: []rest.Field{{Name: "name", Type: "string"}, {Name: "birthDate", Type: "date"}, {Name: "sort", Type: "string"}},
		},
		{
			Name: "bloodpressures",
			Path: "/measures/bloodpressures",
			Create: measureFields(
				rest.Field{Name: "systolicPressure", Type: "number", Required: true},
				rest.Field{Name: "diastolicPressure", Type: "number", Required: true},
			),
			Search: measureSearch,
		},
		{
			Name:   "bodyweights",
			Path:   "/measures/bodyweights",
			Create: measureFields(rest.Field{Name: "value", Type: "number", Required: true, Description: "kilograms"}),
			Search: measureSearch,
		},
		{
			Name:   "temperatures",
			Path:   "/measures/temperatures",
			Create: measureFields(rest.Field{Name: "value", Type: "number", Required: true, Min: floatPtr(MinTemperature), Max: floatPtr(MaxTemperature)}),
			Search: measureSearch,
		},
		{
			Name: "forms",
			Path: "/measures/forms",
			Create: []rest.Field{
				{Name: "name", Type: "string", Required: true},
				{Name: "fields", Type: "array", Required: true, Description: "name, type, min, max, required and description of each field"},
			},
			Search: []rest.Field{{Name: "name", Type: "string"}, {Name: "sort", Type: "string"}},
		},
	}
}

func floatPtr(f float64) *float64 { return &f }
