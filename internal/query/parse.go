package query

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/keel-api/keel/internal/apierror"
	"github.com/keel-api/keel/internal/filter"
	"github.com/keel-api/keel/internal/schema"
)

// fieldsPattern matches query parameters like fields[typename]
var fieldsPattern = regexp.MustCompile(`^fields\[([^\]]+)\]$`)

// filterPattern matches simple-filter parameters like filter[key]
var filterPattern = regexp.MustCompile(`^filter\[([^\]]+)\]$`)

// pagePattern matches page parameters like page[number]
var pagePattern = regexp.MustCompile(`^page\[([^\]]+)\]$`)

// Parse validates the raw query string against the resource schema, the
// registry, and the configured limits. Every failure is an *apierror.Error
// carrying the offending parameter name.
func Parse(values url.Values, limits Limits, registry *schema.Registry, resource *schema.ResourceSchema) (*Params, error) {
	params := &Params{
		Fields: make(map[string][]string),
	}

	if err := parseFilters(values, params); err != nil {
		return nil, err
	}
	if err := parseSort(values, resource, params); err != nil {
		return nil, err
	}
	if err := parseInclude(values, limits, registry, resource, params); err != nil {
		return nil, err
	}
	if err := parsePage(values, limits, params); err != nil {
		return nil, err
	}
	if err := parseFields(values, registry, params); err != nil {
		return nil, err
	}

	return params, nil
}

// parseFilters merges the filter= JSON array with filter[field]=value
// shorthand entries into one AND tree
func parseFilters(values url.Values, params *Params) error {
	var nodes []*filter.Node

	if raw := values.Get("filter"); raw != "" {
		node, err := filter.Parse(raw)
		if err != nil {
			return apierror.InvalidFilters(err.Error()).WithCause(err)
		}
		nodes = append(nodes, node)
	}

	// Shorthand entries, sorted by parameter name for determinism
	type simpleFilter struct{ field, value string }
	var simple []simpleFilter
	for key, keyValues := range values {
		matches := filterPattern.FindStringSubmatch(key)
		if len(matches) != 2 {
			continue
		}
		if len(keyValues) == 0 || keyValues[0] == "" {
			return apierror.InvalidParameter(key, "simple filter requires a value")
		}
		simple = append(simple, simpleFilter{field: matches[1], value: keyValues[0]})
	}
	sort.Slice(simple, func(i, j int) bool { return simple[i].field < simple[j].field })
	for _, sf := range simple {
		nodes = append(nodes, filter.Condition(sf.field, filter.OpEq, sf.value))
	}

	if len(nodes) > 0 {
		params.Filter = filter.And(nodes...)
	}
	return nil
}

func parseSort(values url.Values, resource *schema.ResourceSchema, params *Params) error {
	raw := values.Get("sort")
	if raw == "" {
		return nil
	}

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		clause := SortField{Field: part}
		if strings.HasPrefix(part, "-") {
			clause.Field = part[1:]
			clause.Desc = true
		}

		if _, isRel := resource.Relationships[clause.Field]; isRel {
			return apierror.InvalidParameter("sort",
				fmt.Sprintf("you can't sort by relationship field %q on %q", clause.Field, resource.Type))
		}
		if !resource.IsColumn(clause.Field) {
			return apierror.InvalidParameter("sort",
				fmt.Sprintf("%s has no attribute %q", resource.Type, clause.Field))
		}

		params.Sort = append(params.Sort, clause)
	}
	return nil
}

func parseInclude(values url.Values, limits Limits, registry *schema.Registry, resource *schema.ResourceSchema, params *Params) error {
	raw := values.Get("include")
	if raw == "" {
		return nil
	}

	for _, path := range strings.Split(raw, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}

		segments := strings.Split(path, ".")
		if len(segments) > limits.MaxIncludeDepth {
			return apierror.InvalidParameter("include",
				fmt.Sprintf("you can't use include through more than %d relationships", limits.MaxIncludeDepth))
		}

		// Walk the path to confirm every segment is a registered relationship
		current := resource
		for _, segment := range segments {
			rel, ok := current.Relationships[segment]
			if !ok {
				return apierror.InvalidParameter("include",
					fmt.Sprintf("%s has no relationship %q", current.Type, segment))
			}
			target, err := registry.Resolve(rel.Target)
			if err != nil {
				return apierror.InvalidParameter("include", err.Error()).WithCause(err)
			}
			current = target
		}

		params.Include = append(params.Include, segments)
	}
	return nil
}

func parsePage(values url.Values, limits Limits, params *Params) error {
	params.Page = Page{Number: 1, Size: limits.PageSize}

	for key, keyValues := range values {
		matches := pagePattern.FindStringSubmatch(key)
		if len(matches) != 2 {
			continue
		}
		if len(keyValues) == 0 {
			continue
		}

		value, err := strconv.Atoi(keyValues[0])
		if err != nil {
			return apierror.InvalidParameter(key, fmt.Sprintf("%q is not an integer", keyValues[0]))
		}

		switch matches[1] {
		case "number":
			if value < 1 {
				return apierror.InvalidParameter(key, "page number must be 1 or greater")
			}
			params.Page.Number = value
		case "size":
			if value < 0 {
				return apierror.InvalidParameter(key, "page size must not be negative")
			}
			if value == 0 && !limits.AllowDisablePagination {
				return apierror.InvalidParameter(key, "pagination cannot be disabled")
			}
			if value > limits.MaxPageSize {
				return apierror.InvalidParameter(key,
					fmt.Sprintf("you can't use a page size greater than %d", limits.MaxPageSize))
			}
			params.Page.Size = value
		default:
			return apierror.InvalidParameter(key, "unsupported pagination parameter")
		}
	}
	return nil
}

func parseFields(values url.Values, registry *schema.Registry, params *Params) error {
	for key, keyValues := range values {
		matches := fieldsPattern.FindStringSubmatch(key)
		if len(matches) != 2 {
			continue
		}

		typeName := matches[1]
		target, err := registry.Resolve(typeName)
		if err != nil {
			return apierror.InvalidParameter(key, err.Error()).WithCause(err)
		}

		fieldList := make([]string, 0)
		if len(keyValues) > 0 && keyValues[0] != "" {
			for _, field := range strings.Split(keyValues[0], ",") {
				field = strings.TrimSpace(field)
				if field == "" {
					continue
				}
				_, isRel := target.Relationships[field]
				if !target.HasField(field) && !isRel {
					return apierror.InvalidParameter(key,
						fmt.Sprintf("%s has no field %q", typeName, field))
				}
				fieldList = append(fieldList, field)
			}
		}
		params.Fields[typeName] = fieldList
	}
	return nil
}
