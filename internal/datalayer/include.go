package datalayer

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/keel-api/keel/internal/schema"
)

// resolveIncludes walks each include path, loading one batched query per
// path segment, and gathers results into an IncludedSet deduplicated by
// (type, id). Paths are pre-validated by the query parser, so depth is
// already bounded.
func (l *SQLDataLayer) resolveIncludes(
	ctx context.Context,
	resource *schema.ResourceSchema,
	records []Record,
	includes [][]string,
) (*IncludedSet, error) {
	set := NewIncludedSet()
	if len(includes) == 0 || len(records) == 0 {
		return set, nil
	}

	for _, path := range includes {
		current := records
		currentResource := resource

		for _, segment := range path {
			rel, ok := currentResource.Relationships[segment]
			if !ok {
				return nil, fmt.Errorf("%w: %s on %s", schema.ErrUnknownRelationship, segment, currentResource.Type)
			}
			target, err := l.registry.Resolve(rel.Target)
			if err != nil {
				return nil, err
			}

			loaded, err := l.loadRelated(ctx, currentResource, target, rel, current)
			if err != nil {
				return nil, fmt.Errorf("failed to load include %s: %w", segment, err)
			}

			for _, record := range loaded {
				set.Add(target.Type, recordID(target, record), record)
			}

			current = loaded
			currentResource = target
			if len(current) == 0 {
				break
			}
		}
	}

	return set, nil
}

// loadRelated loads all records related to the given parents through one
// relationship, in a single batched query
func (l *SQLDataLayer) loadRelated(
	ctx context.Context,
	resource *schema.ResourceSchema,
	target *schema.ResourceSchema,
	rel *schema.Relationship,
	parents []Record,
) ([]Record, error) {
	switch {
	case rel.Kind == schema.ToOne:
		// Collect distinct foreign keys from the parents
		seen := make(map[string]bool)
		var ids []string
		for _, parent := range parents {
			fk := parent[rel.ForeignKey]
			if fk == nil {
				continue
			}
			id := valueToString(fk)
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return nil, nil
		}
		loadQuery := fmt.Sprintf("SELECT %s FROM %s WHERE %s.%s = ANY($1) ORDER BY %s.%s",
			selectColumns(target),
			pq.QuoteIdentifier(target.Table),
			pq.QuoteIdentifier(target.Table), pq.QuoteIdentifier(target.IDField),
			pq.QuoteIdentifier(target.Table), pq.QuoteIdentifier(target.IDField),
		)
		return l.queryRecords(ctx, loadQuery, pq.Array(ids))

	case rel.ManyToMany():
		parentIDs := distinctIDs(resource, parents)
		if len(parentIDs) == 0 {
			return nil, nil
		}
		loadQuery := fmt.Sprintf("SELECT %s FROM %s WHERE %s.%s IN (SELECT %s FROM %s WHERE %s = ANY($1)) ORDER BY %s.%s",
			selectColumns(target),
			pq.QuoteIdentifier(target.Table),
			pq.QuoteIdentifier(target.Table), pq.QuoteIdentifier(target.IDField),
			pq.QuoteIdentifier(rel.TargetKey),
			pq.QuoteIdentifier(rel.JoinTable),
			pq.QuoteIdentifier(rel.LocalKey),
			pq.QuoteIdentifier(target.Table), pq.QuoteIdentifier(target.IDField),
		)
		return l.queryRecords(ctx, loadQuery, pq.Array(parentIDs))

	default: // to-many via a foreign key on the target table
		parentIDs := distinctIDs(resource, parents)
		if len(parentIDs) == 0 {
			return nil, nil
		}
		loadQuery := fmt.Sprintf("SELECT %s FROM %s WHERE %s.%s = ANY($1) ORDER BY %s.%s",
			selectColumns(target),
			pq.QuoteIdentifier(target.Table),
			pq.QuoteIdentifier(target.Table), pq.QuoteIdentifier(rel.ForeignKey),
			pq.QuoteIdentifier(target.Table), pq.QuoteIdentifier(target.IDField),
		)
		return l.queryRecords(ctx, loadQuery, pq.Array(parentIDs))
	}
}

func (l *SQLDataLayer) queryRecords(ctx context.Context, loadQuery string, args ...any) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, loadQuery, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func distinctIDs(resource *schema.ResourceSchema, records []Record) []string {
	seen := make(map[string]bool, len(records))
	var ids []string
	for _, record := range records {
		id := recordID(resource, record)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
