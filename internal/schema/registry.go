package schema

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownResourceType is returned when a resource type is not registered
	ErrUnknownResourceType = errors.New("unknown resource type")

	// ErrUnknownRelationship is returned when a relationship name does not
	// exist on a registered resource
	ErrUnknownRelationship = errors.New("unknown relationship")

	// ErrDuplicateResource is returned when a resource type is registered twice
	ErrDuplicateResource = errors.New("resource type already registered")
)

// Registry holds all resource schemas of the application. It is populated by
// explicit Register calls during startup and is read-only afterwards;
// concurrent reads from request handlers are safe.
type Registry struct {
	schemas map[string]*ResourceSchema
	mu      sync.RWMutex
}

// NewRegistry creates an empty schema registry
func NewRegistry() *Registry {
	return &Registry{
		schemas: make(map[string]*ResourceSchema),
	}
}

// Register adds a resource schema to the registry. It fails if the type is
// already registered or the schema is structurally invalid.
func (r *Registry) Register(schema *ResourceSchema) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[schema.Type]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateResource, schema.Type)
	}

	// Store first so structural validation can see the schema itself;
	// cross-resource relationship targets are checked in ValidateAll to
	// allow forward references during startup.
	r.schemas[schema.Type] = schema

	if err := validateStructural(schema); err != nil {
		delete(r.schemas, schema.Type)
		return fmt.Errorf("schema validation failed for %s: %w", schema.Type, err)
	}

	return nil
}

// MustRegister registers a schema and panics on failure. Intended for
// startup wiring where a bad declaration is a programming error.
func (r *Registry) MustRegister(schema *ResourceSchema) {
	if err := r.Register(schema); err != nil {
		panic(err)
	}
}

// Resolve retrieves a resource schema by type name
func (r *Registry) Resolve(resourceType string) (*ResourceSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schema, exists := r.schemas[resourceType]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResourceType, resourceType)
	}
	return schema, nil
}

// ResolveRelationship retrieves relationship metadata by resource type and
// relationship name
func (r *Registry) ResolveRelationship(resourceType, relationship string) (*Relationship, error) {
	schema, err := r.Resolve(resourceType)
	if err != nil {
		return nil, err
	}

	rel, exists := schema.Relationships[relationship]
	if !exists {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnknownRelationship, relationship, resourceType)
	}
	return rel, nil
}

// Types returns all registered resource type names, sorted
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered schemas
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.schemas)
}

// Clear removes all registered schemas (useful for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.schemas = make(map[string]*ResourceSchema)
}

// ValidateAll checks cross-resource consistency: every relationship target
// must resolve to a registered schema and join columns must be declared.
// Call once after all Register calls, before serving requests.
func (r *Registry) ValidateAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, schema := range r.schemas {
		for name, rel := range schema.Relationships {
			target, exists := r.schemas[rel.Target]
			if !exists {
				return fmt.Errorf("%w: relationship %s on %s targets unregistered type %s",
					ErrUnknownResourceType, name, schema.Type, rel.Target)
			}

			switch rel.Kind {
			case ToOne:
				if rel.ForeignKey == "" {
					return fmt.Errorf("relationship %s on %s: to-one requires a foreign key", name, schema.Type)
				}
			case ToMany:
				if rel.ManyToMany() {
					if rel.LocalKey == "" || rel.TargetKey == "" {
						return fmt.Errorf("relationship %s on %s: join table requires local and target keys", name, schema.Type)
					}
				} else if rel.ForeignKey == "" {
					return fmt.Errorf("relationship %s on %s: to-many requires a foreign key on %s", name, schema.Type, target.Type)
				}
			}
		}
	}
	return nil
}

// validateStructural checks a single schema in isolation
func validateStructural(s *ResourceSchema) error {
	if s.Type == "" {
		return errors.New("resource type name is required")
	}
	if s.Table == "" {
		return errors.New("table name is required")
	}
	if s.IDField == "" {
		return errors.New("id field is required")
	}
	if len(s.FieldOrder) != len(s.Fields) {
		return errors.New("field order does not match declared fields")
	}
	for _, name := range s.FieldOrder {
		if _, ok := s.Fields[name]; !ok {
			return fmt.Errorf("field %s appears in order but is not declared", name)
		}
	}
	if _, ok := s.Fields[s.IDField]; ok {
		return fmt.Errorf("id field %s must not be declared as an attribute", s.IDField)
	}
	for name, rel := range s.Relationships {
		if rel.Name != name {
			return fmt.Errorf("relationship %s declared under key %s", rel.Name, name)
		}
		if _, ok := s.Fields[name]; ok {
			return fmt.Errorf("relationship %s collides with an attribute of the same name", name)
		}
		if rel.Target == "" {
			return fmt.Errorf("relationship %s has no target type", name)
		}
	}
	return nil
}
