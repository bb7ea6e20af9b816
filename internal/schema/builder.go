package schema

import "fmt"

// Builder provides a fluent API for declaring resource schemas at startup.
//
//	user := schema.NewResource("user", "users").
//		Attr("name", schema.TypeString).
//		NullableAttr("email", schema.TypeString).
//		ToMany("computers", "computer", "user_id").
//		MustBuild()
type Builder struct {
	schema *ResourceSchema
	errs   []error
}

// NewResource starts a schema declaration for the given resource type and table
func NewResource(resourceType, table string) *Builder {
	return &Builder{
		schema: &ResourceSchema{
			Type:          resourceType,
			Table:         table,
			IDField:       "id",
			Fields:        make(map[string]Field),
			Relationships: make(map[string]*Relationship),
		},
	}
}

// IDField overrides the identifier column name
func (b *Builder) IDField(name string) *Builder {
	b.schema.IDField = name
	return b
}

// ClientID marks the resource as accepting client-generated ids on create
func (b *Builder) ClientID() *Builder {
	b.schema.ClientID = true
	return b
}

// Attr declares a non-nullable attribute
func (b *Builder) Attr(name string, t FieldType) *Builder {
	return b.addField(name, Field{Type: t})
}

// NullableAttr declares a nullable attribute
func (b *Builder) NullableAttr(name string, t FieldType) *Builder {
	return b.addField(name, Field{Type: t, Nullable: true})
}

func (b *Builder) addField(name string, f Field) *Builder {
	if _, exists := b.schema.Fields[name]; exists {
		b.errs = append(b.errs, fmt.Errorf("attribute %s declared twice on %s", name, b.schema.Type))
		return b
	}
	b.schema.Fields[name] = f
	b.schema.FieldOrder = append(b.schema.FieldOrder, name)
	return b
}

// ToOne declares a singular relationship stored as a foreign key column on
// this resource's table
func (b *Builder) ToOne(name, target, foreignKey string) *Builder {
	return b.addRelationship(&Relationship{
		Name:       name,
		Target:     target,
		Kind:       ToOne,
		ForeignKey: foreignKey,
	})
}

// NullableToOne declares a to-one relationship that may be cleared
func (b *Builder) NullableToOne(name, target, foreignKey string) *Builder {
	return b.addRelationship(&Relationship{
		Name:       name,
		Target:     target,
		Kind:       ToOne,
		ForeignKey: foreignKey,
		Nullable:   true,
	})
}

// ToMany declares a plural relationship stored as a foreign key on the
// target resource's table
func (b *Builder) ToMany(name, target, targetForeignKey string) *Builder {
	return b.addRelationship(&Relationship{
		Name:       name,
		Target:     target,
		Kind:       ToMany,
		ForeignKey: targetForeignKey,
	})
}

// ManyToMany declares a plural relationship stored in a join table
func (b *Builder) ManyToMany(name, target, joinTable, localKey, targetKey string) *Builder {
	return b.addRelationship(&Relationship{
		Name:      name,
		Target:    target,
		Kind:      ToMany,
		JoinTable: joinTable,
		LocalKey:  localKey,
		TargetKey: targetKey,
	})
}

func (b *Builder) addRelationship(rel *Relationship) *Builder {
	if _, exists := b.schema.Relationships[rel.Name]; exists {
		b.errs = append(b.errs, fmt.Errorf("relationship %s declared twice on %s", rel.Name, b.schema.Type))
		return b
	}
	b.schema.Relationships[rel.Name] = rel
	return b
}

// Build finalizes the declaration, returning the first accumulated error if any
func (b *Builder) Build() (*ResourceSchema, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if err := validateStructural(b.schema); err != nil {
		return nil, err
	}
	return b.schema, nil
}

// MustBuild finalizes the declaration and panics on error
func (b *Builder) MustBuild() *ResourceSchema {
	schema, err := b.Build()
	if err != nil {
		panic(err)
	}
	return schema
}
