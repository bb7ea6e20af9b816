package view

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"

	"github.com/keel-api/keel/internal/datalayer"
	"github.com/keel-api/keel/internal/jsonapi"
	"github.com/keel-api/keel/internal/query"
	"github.com/keel-api/keel/internal/schema"
)

// SerializeResource renders a stored record as a JSON:API resource object,
// honoring the sparse fieldset requested for its type
func (v *Views) SerializeResource(resource *schema.ResourceSchema, record datalayer.Record, fields map[string][]string) *jsonapi.Resource {
	id := recordIDString(resource, record)

	allowed := fieldAllowlist(resource, fields)

	attributes := make(map[string]any)
	for _, name := range resource.FieldOrder {
		if allowed != nil && !allowed[name] {
			continue
		}
		if value, ok := record[name]; ok {
			attributes[name] = value
		}
	}

	relationships := make(map[string]*jsonapi.Relationship)
	relNames := make([]string, 0, len(resource.Relationships))
	for name := range resource.Relationships {
		relNames = append(relNames, name)
	}
	sort.Strings(relNames)

	for _, name := range relNames {
		if allowed != nil && !allowed[name] {
			continue
		}
		rel := resource.Relationships[name]
		relObj := &jsonapi.Relationship{
			Links: &jsonapi.Links{
				Self:    fmt.Sprintf("/%s/%s/relationships/%s", resource.Type, id, name),
				Related: fmt.Sprintf("/%s/%s/%s", resource.Type, id, name),
			},
		}
		// To-one linkage is already present on the record as its foreign
		// key; to-many linkage would need an extra query per resource, so
		// only the links are exposed there.
		if rel.Kind == schema.ToOne {
			if fk, ok := record[rel.ForeignKey]; ok {
				if fk == nil {
					relObj.Data = jsonapi.ToOneLinkage(nil)
				} else {
					relObj.Data = jsonapi.ToOneLinkage(&jsonapi.IdentifierRef{
						Type: rel.Target,
						ID:   valueString(fk),
					})
				}
			}
		}
		relationships[name] = relObj
	}

	out := &jsonapi.Resource{
		Type:       resource.Type,
		ID:         id,
		Attributes: attributes,
		Links: &jsonapi.Links{
			Self: fmt.Sprintf("/%s/%s", resource.Type, id),
		},
	}
	if len(relationships) > 0 {
		out.Relationships = relationships
	}
	return out
}

// serializeIncluded renders an IncludedSet in its deduplicated insertion order
func (v *Views) serializeIncluded(included *datalayer.IncludedSet, fields map[string][]string) []*jsonapi.Resource {
	if included.Len() == 0 {
		return nil
	}

	out := make([]*jsonapi.Resource, 0, included.Len())
	included.Each(func(resourceType string, record datalayer.Record) {
		resource, err := v.registry.Resolve(resourceType)
		if err != nil {
			return
		}
		out = append(out, v.SerializeResource(resource, record, fields))
	})
	return out
}

// fieldAllowlist returns the requested fieldset as a set, or nil when the
// type has no restriction
func fieldAllowlist(resource *schema.ResourceSchema, fields map[string][]string) map[string]bool {
	requested, ok := fields[resource.Type]
	if !ok {
		return nil
	}
	allowed := make(map[string]bool, len(requested))
	for _, name := range requested {
		allowed[name] = true
	}
	return allowed
}

// collectionMeta builds the count/totalPages meta member
func collectionMeta(total int, page query.Page) map[string]any {
	return map[string]any{
		"count":      total,
		"totalPages": totalPages(total, page),
	}
}

func totalPages(total int, page query.Page) int {
	if total == 0 {
		return 0
	}
	if page.Size == 0 {
		return 1
	}
	return int(math.Ceil(float64(total) / float64(page.Size)))
}

// collectionLinks builds self plus first/prev/next/last pagination links
// from the request URL
func collectionLinks(requestURL *url.URL, total int, page query.Page) *jsonapi.Links {
	links := &jsonapi.Links{Self: requestURL.RequestURI()}
	if page.Size == 0 {
		return links
	}

	pages := totalPages(total, page)
	if pages == 0 {
		pages = 1
	}

	links.First = pageURL(requestURL, 1, page.Size)
	links.Last = pageURL(requestURL, pages, page.Size)
	if page.Number > 1 {
		links.Prev = pageURL(requestURL, page.Number-1, page.Size)
	}
	if page.Number < pages {
		links.Next = pageURL(requestURL, page.Number+1, page.Size)
	}
	return links
}

func pageURL(requestURL *url.URL, number, size int) string {
	u := *requestURL
	values := u.Query()
	values.Set("page[number]", strconv.Itoa(number))
	values.Set("page[size]", strconv.Itoa(size))
	u.RawQuery = values.Encode()
	return u.RequestURI()
}

func recordIDString(resource *schema.ResourceSchema, record datalayer.Record) string {
	return valueString(record[resource.IDField])
}

func valueString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
