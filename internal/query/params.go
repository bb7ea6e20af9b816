// Package query parses JSON:API query strings (filter, sort, include,
// page, fields) into a validated, request-scoped Params value. Parsing
// happens once per request; the result is read-only afterwards.
package query

import (
	"github.com/keel-api/keel/internal/filter"
)

// SortField is one sort clause; later entries break ties of earlier ones
type SortField struct {
	Field string
	Desc  bool
}

// Page is the validated pagination window. Size 0 means pagination is
// disabled, which is only representable when the configuration allows it.
type Page struct {
	Number int
	Size   int
}

// Offset returns the row offset for the window
func (p Page) Offset() int {
	if p.Size == 0 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// Limits carries the configuration the parser validates against
type Limits struct {
	PageSize               int
	MaxPageSize            int
	MaxIncludeDepth        int
	AllowDisablePagination bool
}

// Params is the parsed representation of one request's query string
type Params struct {
	// Filter is the combined filter tree: the filter= JSON array merged
	// (AND) with any filter[field]=value shorthand entries. Nil when the
	// request has no filters.
	Filter *filter.Node

	// Sort clauses in left-to-right priority
	Sort []SortField

	// Include paths, each pre-split into relationship segments
	Include [][]string

	// Page is the pagination window
	Page Page

	// Fields maps resource type to its sparse fieldset allowlist. A type
	// absent from the map has no restriction.
	Fields map[string][]string
}

// Fieldset returns the sparse fieldset for a type, and whether one was requested
func (p *Params) Fieldset(resourceType string) ([]string, bool) {
	fields, ok := p.Fields[resourceType]
	return fields, ok
}
