// Package schema provides type definitions and the process-wide registry for
// JSON:API resource schemas. A resource schema declares the attribute set,
// the storage table binding, and the relationships of one resource type.
package schema

import (
	"fmt"
	"sort"
)

// FieldType represents the declared type of a resource attribute
type FieldType int

const (
	// Text types
	TypeString FieldType = iota
	TypeText

	// Numeric types
	TypeInt
	TypeBigInt
	TypeFloat

	// Boolean
	TypeBool

	// Time types
	TypeTimestamp
	TypeDate

	// Unique identifiers
	TypeUUID

	// JSON document columns
	TypeJSON
)

// String returns the string representation of the field type
func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeText:
		return "text"
	case TypeInt:
		return "int"
	case TypeBigInt:
		return "bigint"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeTimestamp:
		return "timestamp"
	case TypeDate:
		return "date"
	case TypeUUID:
		return "uuid"
	case TypeJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParseFieldType converts a string to a FieldType
func ParseFieldType(s string) (FieldType, error) {
	switch s {
	case "string":
		return TypeString, nil
	case "text":
		return TypeText, nil
	case "int":
		return TypeInt, nil
	case "bigint":
		return TypeBigInt, nil
	case "float":
		return TypeFloat, nil
	case "bool":
		return TypeBool, nil
	case "timestamp":
		return TypeTimestamp, nil
	case "date":
		return TypeDate, nil
	case "uuid":
		return TypeUUID, nil
	case "json":
		return TypeJSON, nil
	default:
		return TypeString, fmt.Errorf("unknown field type: %s", s)
	}
}

// IsNumeric reports whether the field type holds numeric values
func (t FieldType) IsNumeric() bool {
	return t == TypeInt || t == TypeBigInt || t == TypeFloat
}

// IsTextual reports whether the field type holds text values
func (t FieldType) IsTextual() bool {
	return t == TypeString || t == TypeText || t == TypeUUID
}

// IsTemporal reports whether the field type holds date/time values
func (t FieldType) IsTemporal() bool {
	return t == TypeTimestamp || t == TypeDate
}

// Field describes one declared attribute of a resource
type Field struct {
	Type     FieldType
	Nullable bool
}

// RelationshipKind distinguishes to-one from to-many relationships
type RelationshipKind int

const (
	// ToOne is a singular relationship, stored as a foreign key column on
	// the owning resource's table
	ToOne RelationshipKind = iota
	// ToMany is a plural relationship, stored either as a foreign key on
	// the target's table or as rows in a join table
	ToMany
)

// String returns the JSON:API cardinality name
func (k RelationshipKind) String() string {
	switch k {
	case ToOne:
		return "to-one"
	case ToMany:
		return "to-many"
	default:
		return "unknown"
	}
}

// Relationship describes one relationship field of a resource schema
type Relationship struct {
	// Name is the relationship field name as it appears on the wire
	Name string

	// Target is the resource type this relationship points at
	Target string

	// Kind is the cardinality
	Kind RelationshipKind

	// ForeignKey is the join column. For ToOne it lives on the owning
	// table; for ToMany without a join table it lives on the target table.
	ForeignKey string

	// JoinTable, LocalKey and TargetKey describe a many-to-many link.
	// When JoinTable is set, ForeignKey is ignored.
	JoinTable string
	LocalKey  string
	TargetKey string

	// Nullable marks a to-one relationship that may be cleared
	Nullable bool
}

// ManyToMany reports whether the relationship is stored in a join table
func (r *Relationship) ManyToMany() bool {
	return r.JoinTable != ""
}

// ResourceSchema is the immutable definition of one JSON:API resource type.
// Instances are built at startup, registered once, and never mutated.
type ResourceSchema struct {
	// Type is the JSON:API resource type name, e.g. "user"
	Type string

	// Table is the backing storage table
	Table string

	// IDField is the identifier column, "id" unless overridden
	IDField string

	// ClientID marks the schema as accepting client-generated ids on create
	ClientID bool

	// Fields maps attribute name to its declaration. The id column is not
	// part of Fields; it is addressed through IDField.
	Fields map[string]Field

	// FieldOrder preserves declaration order for serialization
	FieldOrder []string

	// Relationships maps relationship name to its declaration
	Relationships map[string]*Relationship
}

// Columns returns the full column list of the backing table in a stable
// order: the id column first, then attributes in declaration order, then
// to-one foreign keys sorted by relationship name.
func (s *ResourceSchema) Columns() []string {
	cols := make([]string, 0, len(s.FieldOrder)+len(s.Relationships)+1)
	cols = append(cols, s.IDField)
	cols = append(cols, s.FieldOrder...)
	for _, name := range s.relationshipOrder() {
		rel := s.Relationships[name]
		if rel.Kind == ToOne {
			cols = append(cols, rel.ForeignKey)
		}
	}
	return cols
}

// HasField reports whether name is a declared attribute
func (s *ResourceSchema) HasField(name string) bool {
	_, ok := s.Fields[name]
	return ok
}

// IsColumn reports whether name resolves to an actual table column: the id,
// a declared attribute, or a to-one foreign key
func (s *ResourceSchema) IsColumn(name string) bool {
	if name == s.IDField {
		return true
	}
	if s.HasField(name) {
		return true
	}
	for _, rel := range s.Relationships {
		if rel.Kind == ToOne && rel.ForeignKey == name {
			return true
		}
	}
	return false
}

func (s *ResourceSchema) relationshipOrder() []string {
	names := make([]string, 0, len(s.Relationships))
	for name := range s.Relationships {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
