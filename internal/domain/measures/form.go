package measures

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medeasy/medeasy/internal/platform/db"
	"github.com/medeasy/medeasy/internal/platform/search"
	"github.com/medeasy/medeasy/internal/platform/validation"
)

const (
	FieldNumber  = "number"
	FieldString  = "string"
	FieldDate    = "date"
	FieldBoolean = "boolean"
)

var fieldTypes = map[string]bool{FieldNumber: true, FieldString: true, FieldDate: true, FieldBoolean: true}

type FormField struct {
	Name        string   `json:"name" xml:"name,attr"`
	Type        string   `json:"type" xml:"type,attr"`
	Min         *float64 `json:"min,omitempty" xml:"min,attr,omitempty"`
	Max         *float64 `json:"max,omitempty" xml:"max,attr,omitempty"`
	Required    bool     `json:"required,omitempty" xml:"required,attr,omitempty"`
	Description string   `json:"description,omitempty" xml:"description,attr,omitempty"`
}

// MeasureForm describes the data of a generic measure.
type MeasureForm struct {
	ID     uuid.UUID   `json:"id" xml:"id"`
	Name   string      `json:"name" xml:"name"`
	Fields []FormField `json:"fields" xml:"fields>field"`
	db.Audit
}

type FormInfo struct {
	Name   string      `json:"name"`
	Fields []FormField `json:"fields"`
}

func validateForm(info FormInfo) validation.Result {
	var r validation.Result
	if !validation.NotBlank(info.Name) {
		r.AddError("name", validation.Required("name"))
	}
	if strings.ContainsAny(info.Name, "/?#") {
		r.AddError("name", "name cannot contain /, ? or #")
	}
	if len(info.Fields) == 0 {
		r.AddError("fields", "at least one field is required")
	}
	seen := make(map[string]bool, len(info.Fields))
	for _, f := range info.Fields {
		switch {
		case !validation.NotBlank(f.Name):
			r.AddError("fields", "field name is required")
		case seen[f.Name]:
			r.AddError("fields", "duplicate field "+f.Name)
		case !fieldTypes[f.Type]:
			r.AddError("fields", fmt.Sprintf("%s: unknown type %q", f.Name, f.Type))
		case f.Min != nil && f.Max != nil && *f.Min > *f.Max:
			r.AddError("fields", f.Name+": min is greater than max")
		}
		seen[f.Name] = true
		if f.Description == "" {
			r.AddWarning("fields", f.Name+" has no description")
		}
	}
	return r
}

// Check validates data against the form fields.
func (f *MeasureForm) Check(data map[string]interface{}) validation.Result {
	var r validation.Result
	known := make(map[string]bool, len(f.Fields))
	for _, field := range f.Fields {
		known[field.Name] = true
		v, ok := data[field.Name]
		if !ok || v == nil {
			if field.Required {
				r.AddError(field.Name, validation.Required(field.Name))
			}
			continue
		}
		if msg := field.check(v); msg != "" {
			r.AddError(field.Name, msg)
		}
	}
	for name := range data {
		if !known[name] {
			r.AddError(name, name+" is not a field of "+f.Name)
		}
	}
	return r
}

func (field FormField) check(v interface{}) string {
	switch field.Type {
	case FieldNumber:
		n, ok := v.(float64)
		if !ok {
			return field.Name + " must be a number"
		}
		if field.Min != nil && n < *field.Min {
			return fmt.Sprintf("%s must be at least %g", field.Name, *field.Min)
		}
		if field.Max != nil && n > *field.Max {
			return fmt.Sprintf("%s must be at most %g", field.Name, *field.Max)
		}
	case FieldString:
		if _, ok := v.(string); !ok {
			return field.Name + " must be a string"
		}
	case FieldBoolean:
		if _, ok := v.(bool); !ok {
			return field.Name + " must be a boolean"
		}
	case FieldDate:
		s, ok := v.(string)
		if !ok {
			return field.Name + " must be a date"
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return field.Name + " must be an RFC 3339 date"
		}
	}
	return ""
}

// GenericMeasure is a measure whose data is described by a MeasureForm.
type GenericMeasure struct {
	ID            uuid.UUID              `json:"id" xml:"id"`
	PatientID     uuid.UUID              `json:"patientId" xml:"patientId"`
	FormID        uuid.UUID              `json:"formId" xml:"formId"`
	DateOfMeasure time.Time              `json:"dateOfMeasure" xml:"dateOfMeasure"`
	Data          map[string]interface{} `json:"data" xml:"-"`
	db.Audit
}

type dataEntry struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// MarshalXML renders Data as <data><entry name="...">value</entry></data>,
// entries sorted by name.
func (m GenericMeasure) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	type plain GenericMeasure
	names := make([]string, 0, len(m.Data))
	for name := range m.Data {
		names = append(names, name)
	}
	sort.Strings(names)
	entries := make([]dataEntry, 0, len(names))
	for _, name := range names {
		v := m.Data[name]
		if v == nil {
			continue
		}
		entries = append(entries, dataEntry{Name: name, Value: fmt.Sprint(v)})
	}
	return e.EncodeElement(struct {
		plain
		Data []dataEntry `xml:"data>entry"`
	}{plain: plain(m), Data: entries}, start)
}

type GenericMeasureInfo struct {
	DateOfMeasure time.Time              `json:"dateOfMeasure"`
	Data          map[string]interface{} `json:"data"`
}

type SearchFormInfo struct {
	Name string `schema:"name"`
	Sort string `schema:"sort"`
}

func (s SearchFormInfo) Filter() (search.Filter, error) {
	return search.Parse("name", s.Name)
}

var formColumns = search.Columns{
	"id":          {Name: "id", Kind: search.UUID},
	"name":        {Name: "name", Kind: search.Text},
	"createdDate": {Name: "created_date", Kind: search.Time},
	"updatedDate": {Name: "updated_date", Kind: search.Time},
}

func (f *MeasureForm) getter() search.Getter {
	return func(field string) (interface{}, bool) {
		switch field {
		case "id":
			return f.ID, true
		case "name":
			return f.Name, true
		case "createdDate":
			return f.CreatedDate, true
		case "updatedDate":
			return f.UpdatedDate, true
		}
		return nil, false
	}
}
