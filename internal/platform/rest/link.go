// Package rest holds the hypermedia representations shared by every service
// and the helpers rendering them as JSON or XML.
package rest

import (
	"encoding/xml"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medeasy/medeasy/pkg/pagination"
)

const (
	RelSelf       = "self"
	RelCollection = "collection"
	RelFirst      = "first"
	RelPrevious   = "previous"
	RelNext       = "next"
	RelLast       = "last"
	RelSearch     = "search"
	RelCreateForm = "create-form"
	RelDelete     = "delete"
)

// Link describes a related or actionable URI.
type Link struct {
	Relation string `json:"relation" xml:"relation,attr"`
	Method   string `json:"method,omitempty" xml:"method,attr,omitempty"`
	Href     string `json:"href" xml:"href,attr"`
	Title    string `json:"title,omitempty" xml:"title,attr,omitempty"`
	Template bool   `json:"template,omitempty" xml:"template,attr,omitempty"`
}

// Browsable wraps a single resource with its links.
type Browsable[T any] struct {
	XMLName  xml.Name `json:"-" xml:"browsable"`
	Links    []Link   `json:"links" xml:"links>link"`
	Resource T        `json:"resource" xml:"resource"`
}

func NewBrowsable[T any](resource T, links ...Link) Browsable[T] {
	if links == nil {
		links = []Link{}
	}
	return Browsable[T]{Links: links, Resource: resource}
}

type PageLinks struct {
	First    *Link `json:"first,omitempty" xml:"first,omitempty"`
	Previous *Link `json:"previous,omitempty" xml:"previous,omitempty"`
	Next     *Link `json:"next,omitempty" xml:"next,omitempty"`
	Last     *Link `json:"last,omitempty" xml:"last,omitempty"`
}

// GenericPagedGetResponse is one page of a collection.
type GenericPagedGetResponse[T any] struct {
	XMLName xml.Name  `json:"-" xml:"page"`
	Items   []T       `json:"items" xml:"items>item"`
	Links   PageLinks `json:"links" xml:"links"`
	Total   int       `json:"total" xml:"total,attr"`
}

// NewPagedResponse builds the page response of the current request. The
// navigation links keep the request's query string.
func NewPagedResponse[T any](c echo.Context, page pagination.Page[T], p pagination.Params) GenericPagedGetResponse[T] {
	u := c.Request().URL
	hrefs := pagination.BuildLinks(u.Path, u.Query(), p, page.Count())

	link := func(rel, href string) *Link {
		if href == "" {
			return nil
		}
		return &Link{Relation: rel, Method: http.MethodGet, Href: href}
	}

	items := page.Entries
	if items == nil {
		items = []T{}
	}
	return GenericPagedGetResponse[T]{
		Items: items,
		Links: PageLinks{
			First:    link(RelFirst, hrefs.First),
			Previous: link(RelPrevious, hrefs.Previous),
			Next:     link(RelNext, hrefs.Next),
			Last:     link(RelLast, hrefs.Last),
		},
		Total: page.Total,
	}
}
