package view

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keel-api/keel/internal/apierror"
	"github.com/keel-api/keel/internal/datalayer"
	"github.com/keel-api/keel/internal/jsonapi"
	"github.com/keel-api/keel/internal/schema"
)

// LidResolver maps a local id (lid) produced earlier in an atomic batch to
// the real id it was persisted under. Outside atomic batches no resolver
// exists and any lid reference is an error.
type LidResolver func(lid string) (string, error)

// validateAttributes checks inbound attributes against the schema and
// returns the column values to store. Unknown attributes, type mismatches,
// and null values on non-nullable fields fail with 422 pointer errors.
func validateAttributes(resource *schema.ResourceSchema, attrs map[string]any) (datalayer.Record, error) {
	record := make(datalayer.Record, len(attrs))

	for name, raw := range attrs {
		pointer := "/data/attributes/" + name

		field, ok := resource.Fields[name]
		if !ok {
			return nil, apierror.ValidationFailed(pointer,
				fmt.Sprintf("%s has no attribute %q", resource.Type, name))
		}

		if raw == nil {
			if !field.Nullable {
				return nil, apierror.ValidationFailed(pointer,
					fmt.Sprintf("attribute %q may not be null", name))
			}
			record[name] = nil
			continue
		}

		value, err := coerceValue(field.Type, raw)
		if err != nil {
			return nil, apierror.ValidationFailed(pointer, err.Error())
		}
		record[name] = value
	}

	return record, nil
}

// coerceValue converts one decoded JSON value into the storage value for
// the declared field type
func coerceValue(t schema.FieldType, raw any) (any, error) {
	switch t {
	case schema.TypeString, schema.TypeText:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", raw)
		}
		return s, nil

	case schema.TypeInt, schema.TypeBigInt:
		switch v := raw.(type) {
		case float64:
			if v != float64(int64(v)) {
				return nil, fmt.Errorf("expected an integer, got %v", v)
			}
			return int64(v), nil
		case int64:
			return v, nil
		default:
			return nil, fmt.Errorf("expected an integer, got %T", raw)
		}

	case schema.TypeFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		default:
			return nil, fmt.Errorf("expected a number, got %T", raw)
		}

	case schema.TypeBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected a boolean, got %T", raw)
		}
		return b, nil

	case schema.TypeTimestamp:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected an RFC 3339 timestamp string, got %T", raw)
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("%q is not an RFC 3339 timestamp", s)
		}
		return parsed, nil

	case schema.TypeDate:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected a date string, got %T", raw)
		}
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, fmt.Errorf("%q is not a date in YYYY-MM-DD form", s)
		}
		return parsed, nil

	case schema.TypeUUID:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected a UUID string, got %T", raw)
		}
		if _, err := uuid.Parse(s); err != nil {
			return nil, fmt.Errorf("%q is not a valid UUID", s)
		}
		return s, nil

	case schema.TypeJSON:
		return raw, nil

	default:
		return nil, fmt.Errorf("unsupported field type %s", t)
	}
}

// resolveRelationships converts inbound relationship members into data
// layer linkage, resolving lids through the given resolver
func resolveRelationships(
	resource *schema.ResourceSchema,
	rels map[string]jsonapi.RelationshipIn,
	resolve LidResolver,
) (map[string]datalayer.Linkage, error) {
	if len(rels) == 0 {
		return nil, nil
	}

	out := make(map[string]datalayer.Linkage, len(rels))
	for name, relIn := range rels {
		pointer := "/data/relationships/" + name

		rel, ok := resource.Relationships[name]
		if !ok {
			return nil, apierror.ValidationFailed(pointer,
				fmt.Sprintf("%s has no relationship %q", resource.Type, name))
		}

		linkage, err := convertLinkage(rel, relIn.Data, pointer, resolve)
		if err != nil {
			return nil, err
		}
		out[name] = linkage
	}
	return out, nil
}

func convertLinkage(rel *schema.Relationship, data jsonapi.Linkage, pointer string, resolve LidResolver) (datalayer.Linkage, error) {
	if data.Many {
		if rel.Kind != schema.ToMany {
			return datalayer.Linkage{}, apierror.ValidationFailed(pointer,
				fmt.Sprintf("relationship %q is to-one but linkage is an array", rel.Name))
		}
		list := make([]datalayer.Identifier, 0, len(data.List))
		for i, ref := range data.List {
			id, err := resolveIdentifier(rel, ref, fmt.Sprintf("%s/data/%d", pointer, i), resolve)
			if err != nil {
				return datalayer.Linkage{}, err
			}
			list = append(list, datalayer.Identifier{Type: rel.Target, ID: id})
		}
		return datalayer.Linkage{Many: true, List: list}, nil
	}

	if rel.Kind != schema.ToOne {
		return datalayer.Linkage{}, apierror.ValidationFailed(pointer,
			fmt.Sprintf("relationship %q is to-many but linkage is not an array", rel.Name))
	}
	if data.One == nil {
		return datalayer.Linkage{}, nil
	}
	id, err := resolveIdentifier(rel, *data.One, pointer+"/data", resolve)
	if err != nil {
		return datalayer.Linkage{}, err
	}
	return datalayer.Linkage{One: &datalayer.Identifier{Type: rel.Target, ID: id}}, nil
}

func resolveIdentifier(rel *schema.Relationship, ref jsonapi.IdentifierRef, pointer string, resolve LidResolver) (string, error) {
	if ref.Type != rel.Target {
		return "", apierror.ValidationFailed(pointer,
			fmt.Sprintf("relationship %q expects type %q, got %q", rel.Name, rel.Target, ref.Type))
	}

	switch {
	case ref.ID != "" && ref.Lid != "":
		return "", apierror.ValidationFailed(pointer, "identifier must not carry both id and lid")
	case ref.ID != "":
		return ref.ID, nil
	case ref.Lid != "":
		if resolve == nil {
			return "", apierror.ValidationFailed(pointer,
				"local ids are only valid inside atomic operation batches")
		}
		id, err := resolve(ref.Lid)
		if err != nil {
			return "", apierror.BadRequest(err.Error()).WithCause(err)
		}
		return id, nil
	default:
		return "", apierror.ValidationFailed(pointer, "identifier requires an id or lid")
	}
}
