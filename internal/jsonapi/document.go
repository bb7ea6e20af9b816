// Package jsonapi defines the JSON:API 1.0 document model used on the wire:
// resource objects, relationship linkage, top-level documents, error
// documents, and the atomic operations extension types.
//
// Schemas in this project are declared at runtime, so documents are built
// from dynamic records rather than struct tags.
package jsonapi

import (
	"encoding/json"
	"fmt"
)

const (
	// MediaType is the official JSON:API media type
	MediaType = "application/vnd.api+json"

	// Version is the implemented JSON:API version
	Version = "1.0"
)

// VersionObject is the top-level `jsonapi` member
type VersionObject struct {
	Version string `json:"version"`
}

// NewVersionObject returns the implemented version member
func NewVersionObject() *VersionObject {
	return &VersionObject{Version: Version}
}

// Links holds the subset of JSON:API link members this server produces
type Links struct {
	Self    string `json:"self,omitempty"`
	Related string `json:"related,omitempty"`
	First   string `json:"first,omitempty"`
	Prev    string `json:"prev,omitempty"`
	Next    string `json:"next,omitempty"`
	Last    string `json:"last,omitempty"`
}

// ResourceIdentifier identifies one resource by type and id
type ResourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Relationship is a relationship object inside a resource object
type Relationship struct {
	Links *Links   `json:"links,omitempty"`
	Data  *Linkage `json:"data,omitempty"`
}

// Resource is a JSON:API resource object
type Resource struct {
	Type          string                   `json:"type"`
	ID            string                   `json:"id"`
	Attributes    map[string]any           `json:"attributes,omitempty"`
	Relationships map[string]*Relationship `json:"relationships,omitempty"`
	Links         *Links                   `json:"links,omitempty"`
}

// Document is a JSON:API top-level document. Data holds either a *Resource,
// a []*Resource, a linkage value, or nil.
type Document struct {
	Data     any            `json:"data"`
	Included []*Resource    `json:"included,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
	Links    *Links         `json:"links,omitempty"`
	JSONAPI  *VersionObject `json:"jsonapi,omitempty"`
}

// Linkage is the `data` member of a relationship object. It distinguishes
// to-one linkage (a single identifier or null) from to-many linkage (an
// array, possibly empty) because the two serialize differently.
type Linkage struct {
	Many bool
	One  *IdentifierRef
	List []IdentifierRef
}

// IdentifierRef is a resource identifier that may carry a local id (lid)
// instead of a persistent id, per the atomic operations extension
type IdentifierRef struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Lid  string `json:"lid,omitempty"`
}

// ToOneLinkage builds a singular linkage; ref may be nil for null linkage
func ToOneLinkage(ref *IdentifierRef) *Linkage {
	return &Linkage{One: ref}
}

// ToManyLinkage builds a plural linkage
func ToManyLinkage(refs []IdentifierRef) *Linkage {
	if refs == nil {
		refs = []IdentifierRef{}
	}
	return &Linkage{Many: true, List: refs}
}

// MarshalJSON emits null / an object for to-one, an array for to-many
func (l *Linkage) MarshalJSON() ([]byte, error) {
	if l.Many {
		return json.Marshal(l.List)
	}
	if l.One == nil {
		return []byte("null"), nil
	}
	return json.Marshal(l.One)
}

// UnmarshalJSON accepts null, a single identifier object, or an array
func (l *Linkage) UnmarshalJSON(data []byte) error {
	trimmed := trimLeadingSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("relationship linkage is empty")
	}

	switch trimmed[0] {
	case 'n':
		l.Many = false
		l.One = nil
		l.List = nil
		return nil
	case '[':
		l.Many = true
		l.One = nil
		return json.Unmarshal(data, &l.List)
	case '{':
		l.Many = false
		l.List = nil
		l.One = &IdentifierRef{}
		return json.Unmarshal(data, l.One)
	default:
		return fmt.Errorf("relationship linkage must be null, an object, or an array")
	}
}

func trimLeadingSpace(data []byte) []byte {
	for i, c := range data {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return data[i:]
		}
	}
	return nil
}
