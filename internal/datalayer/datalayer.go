// Package datalayer executes CRUD and relationship operations against a
// storage backend using compiled filter predicates, sort clauses,
// pagination, and include directives. The DataLayer interface is the
// backend seam; SQLDataLayer is the relational implementation.
package datalayer

import (
	"context"

	"github.com/keel-api/keel/internal/filter"
	"github.com/keel-api/keel/internal/query"
	"github.com/keel-api/keel/internal/schema"
)

// Record is one stored object, keyed by column name
type Record map[string]any

// Identifier names one stored object by resource type and id
type Identifier struct {
	Type string
	ID   string
}

// Linkage is the value of one relationship: a single optional identifier
// for to-one, a list for to-many. Many distinguishes an empty to-many set
// from a cleared to-one.
type Linkage struct {
	Many bool
	One  *Identifier
	List []Identifier
}

// DataLayer is the backend-agnostic storage interface. Any storage
// technology able to filter, sort, and traverse relationships can satisfy
// it; only transactional backends may serve atomic operation batches.
type DataLayer interface {
	// GetCollection returns the total count matching the predicate
	// (independent of pagination) and one page of records, plus included
	// resources resolved for the requested paths.
	GetCollection(ctx context.Context, resource *schema.ResourceSchema, predicate *filter.Predicate,
		sorts []query.SortField, page query.Page, includes [][]string) (int, []Record, *IncludedSet, error)

	// GetDetail returns one record by id, with included resources
	GetDetail(ctx context.Context, resource *schema.ResourceSchema, id string, includes [][]string) (Record, *IncludedSet, error)

	// Create persists a new record. attrs may carry the id column when the
	// schema accepts client-generated ids; otherwise the engine generates
	// one. Relationship linkage is applied atomically with the insert.
	Create(ctx context.Context, resource *schema.ResourceSchema, attrs Record, rels map[string]Linkage) (Record, error)

	// Update applies a partial update: only supplied attributes and
	// relationships change. Returns the post-mutation record.
	Update(ctx context.Context, resource *schema.ResourceSchema, id string, attrs Record, rels map[string]Linkage) (Record, error)

	// Delete removes a record, failing with ErrNotFound when absent
	Delete(ctx context.Context, resource *schema.ResourceSchema, id string) error

	// GetRelationship reads the current linkage of one relationship
	GetRelationship(ctx context.Context, resource *schema.ResourceSchema, id, relationship string) (Linkage, error)

	// GetRelated loads the full records related to one record through a
	// relationship, for the related-resource endpoint
	GetRelated(ctx context.Context, resource *schema.ResourceSchema, id, relationship string) ([]Record, error)

	// UpdateRelationship replaces the linkage of one relationship. For
	// to-many it reconciles the stored set against the new one: missing
	// links are added, stale links removed.
	UpdateRelationship(ctx context.Context, resource *schema.ResourceSchema, id, relationship string, linkage Linkage) error

	// SupportsTransactions reports whether WithTransaction provides
	// all-or-nothing semantics. The atomic operations coordinator refuses
	// backends that return false.
	SupportsTransactions() bool

	// WithTransaction runs fn against a transaction-bound view of the
	// layer, committing on nil and rolling back on error or panic. A
	// layer already bound to a transaction reuses it.
	WithTransaction(ctx context.Context, fn func(DataLayer) error) error
}

// IncludedSet accumulates resources gathered while resolving include
// paths, deduplicated by (type, id). Insertion order is preserved so
// responses are stable.
type IncludedSet struct {
	order []Identifier
	items map[Identifier]Record
}

// NewIncludedSet creates an empty set
func NewIncludedSet() *IncludedSet {
	return &IncludedSet{
		items: make(map[Identifier]Record),
	}
}

// Add inserts a record unless the (type, id) pair is already present.
// It reports whether the record was added.
func (s *IncludedSet) Add(resourceType, id string, record Record) bool {
	key := Identifier{Type: resourceType, ID: id}
	if _, exists := s.items[key]; exists {
		return false
	}
	s.order = append(s.order, key)
	s.items[key] = record
	return true
}

// Len returns the number of distinct included resources
func (s *IncludedSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Each visits entries in insertion order
func (s *IncludedSet) Each(fn func(resourceType string, record Record)) {
	if s == nil {
		return
	}
	for _, key := range s.order {
		fn(key.Type, s.items[key])
	}
}

// Has reports whether a (type, id) pair is present
func (s *IncludedSet) Has(resourceType, id string) bool {
	if s == nil {
		return false
	}
	_, exists := s.items[Identifier{Type: resourceType, ID: id}]
	return exists
}
