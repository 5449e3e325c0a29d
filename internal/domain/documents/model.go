package documents

import (
	"github.com/google/uuid"

	"github.com/medeasy/medeasy/internal/platform/blobstore"
	"github.com/medeasy/medeasy/internal/platform/db"
	"github.com/medeasy/medeasy/internal/platform/rest"
	"github.com/medeasy/medeasy/internal/platform/search"
	"github.com/medeasy/medeasy/internal/platform/validation"
)

const DefaultMimeType = "application/octet-stream"

// Document is the metadata of a stored file. The content itself lives in
// the blob store under the document id.
type Document struct {
	ID        uuid.UUID  `json:"id" xml:"id"`
	PatientID *uuid.UUID `json:"patientId,omitempty" xml:"patientId,omitempty"`
	Name      string     `json:"name" xml:"name"`
	MimeType  string     `json:"mimeType" xml:"mimeType"`
	Size      int64      `json:"size" xml:"size"`
	Hash      string     `json:"hash" xml:"hash"`
	db.Audit
}

func (d *Document) key() string {
	return d.ID.String()
}

// NewDocumentInfo is the payload of POST /documents. Content is base64 in
// JSON.
type NewDocumentInfo struct {
	Name      string     `json:"name"`
	MimeType  string     `json:"mimeType"`
	PatientID *uuid.UUID `json:"patientId,omitempty"`
	Content   []byte     `json:"content"`
}

// Info is the patchable part of a document.
type Info struct {
	Name      string     `json:"name"`
	MimeType  string     `json:"mimeType"`
	PatientID *uuid.UUID `json:"patientId"`
}

var patchable = []string{"name", "mimeType", "patientId"}

func (d *Document) Info() Info {
	return Info{Name: d.Name, MimeType: d.MimeType, PatientID: d.PatientID}
}

func (d *Document) apply(info Info) {
	d.Name = info.Name
	d.MimeType = info.MimeType
	d.PatientID = info.PatientID
	if d.PatientID != nil && *d.PatientID == uuid.Nil {
		d.PatientID = nil
	}
}

var infoValidator = validation.New[Info]().
	Error("name", validation.Required("name"), func(i Info) bool { return validation.NotBlank(i.Name) }).
	Error("mimeType", validation.Required("mimeType"), func(i Info) bool { return validation.NotBlank(i.MimeType) })

func validateNew(info NewDocumentInfo) validation.Result {
	r := infoValidator.Validate(Info{Name: info.Name, MimeType: info.MimeType, PatientID: info.PatientID})
	if len(info.Content) == 0 {
		r.AddError("content", validation.Required("content"))
	}
	if len(info.Content) > blobstore.MaxFileSize {
		r.AddError("content", blobstore.ErrFileTooLarge.Error())
	}
	if info.PatientID == nil {
		r.AddWarning("patientId", "document is not attached to a patient")
	}
	return r
}

type SearchInfo struct {
	Name      string    `schema:"name"`
	MimeType  string    `schema:"mimeType"`
	PatientID uuid.UUID `schema:"patientId"`
	Sort      string    `schema:"sort"`
}

func (s SearchInfo) Filter() (search.Filter, error) {
	b := search.NewBuilder().
		Text("name", s.Name).
		Text("mimeType", s.MimeType)
	if s.PatientID != uuid.Nil {
		b.Compare("patientId", search.EqualTo, s.PatientID)
	}
	return b.Build()
}

var columns = search.Columns{
	"id":          {Name: "id", Kind: search.UUID},
	"patientId":   {Name: "patient_id", Kind: search.UUID},
	"name":        {Name: "name", Kind: search.Text},
	"mimeType":    {Name: "mime_type", Kind: search.Text},
	"size":        {Name: "size", Kind: search.Number},
	"hash":        {Name: "hash", Kind: search.Text},
	"createdDate": {Name: "created_date", Kind: search.Time},
	"updatedDate": {Name: "updated_date", Kind: search.Time},
}

func (d *Document) getter() search.Getter {
	return func(field string) (interface{}, bool) {
		switch field {
		case "id":
			return d.ID, true
		case "patientId":
			return d.PatientID, true
		case "name":
			return d.Name, true
		case "mimeType":
			return d.MimeType, true
		case "size":
			return d.Size, true
		case "hash":
			return d.Hash, true
		case "createdDate":
			return d.CreatedDate, true
		case "updatedDate":
			return d.UpdatedDate, true
		}
		return nil, false
	}
}

func Resource() rest.Resource {
	return rest.Resource{
		Name: "documents",
		Path: "/documents",
		Create: []rest.Field{
			{Name: "name", Type: "string", Required: true},
			{Name: "mimeType", Type: "string", Required: true},
			{Name: "patientId", Type: "uuid"},
			{Name: "content", Type: "string", Required: true, Description: "base64 encoded content"},
		},
		Search: []rest.Field{
			{Name: "name", Type: "string"},
			{Name: "mimeType", Type: "string"},
			{Name: "patientId", Type: "uuid"},
			{Name: "sort", Type: "string"},
		},
	}
}
