package datalayer

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/keel-api/keel/internal/schema"
)

// GetRelationship reads the current linkage of one relationship. The
// owning record must exist; to-many linkage is ordered by target id so
// responses are stable.
func (l *SQLDataLayer) GetRelationship(
	ctx context.Context,
	resource *schema.ResourceSchema,
	id, relationship string,
) (Linkage, error) {
	rel, ok := resource.Relationships[relationship]
	if !ok {
		return Linkage{}, fmt.Errorf("%w: %s on %s", schema.ErrUnknownRelationship, relationship, resource.Type)
	}

	record, err := l.fetchByID(ctx, resource, id)
	if err != nil {
		return Linkage{}, err
	}

	if rel.Kind == schema.ToOne {
		fk := record[rel.ForeignKey]
		if fk == nil {
			return Linkage{}, nil
		}
		return Linkage{One: &Identifier{Type: rel.Target, ID: valueToString(fk)}}, nil
	}

	ids, err := l.relatedIDs(ctx, resource, rel, id)
	if err != nil {
		return Linkage{}, err
	}

	list := make([]Identifier, len(ids))
	for i, targetID := range ids {
		list[i] = Identifier{Type: rel.Target, ID: targetID}
	}
	return Linkage{Many: true, List: list}, nil
}

// relatedIDs returns the current target id set of a to-many relationship
func (l *SQLDataLayer) relatedIDs(ctx context.Context, resource *schema.ResourceSchema, rel *schema.Relationship, id string) ([]string, error) {
	var idQuery string
	if rel.ManyToMany() {
		idQuery = fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 ORDER BY %s",
			pq.QuoteIdentifier(rel.TargetKey),
			pq.QuoteIdentifier(rel.JoinTable),
			pq.QuoteIdentifier(rel.LocalKey),
			pq.QuoteIdentifier(rel.TargetKey),
		)
	} else {
		target, err := l.registry.Resolve(rel.Target)
		if err != nil {
			return nil, err
		}
		idQuery = fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 ORDER BY %s",
			pq.QuoteIdentifier(target.IDField),
			pq.QuoteIdentifier(target.Table),
			pq.QuoteIdentifier(rel.ForeignKey),
			pq.QuoteIdentifier(target.IDField),
		)
	}

	rows, err := l.db.QueryContext(ctx, idQuery, id)
	if err != nil {
		return nil, fmt.Errorf("relationship query failed: %w", ConvertDBError(err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var value any
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan relationship row: %w", err)
		}
		ids = append(ids, valueToString(value))
	}
	return ids, rows.Err()
}

// GetRelated loads the records on the far side of one relationship
func (l *SQLDataLayer) GetRelated(
	ctx context.Context,
	resource *schema.ResourceSchema,
	id, relationship string,
) ([]Record, error) {
	rel, ok := resource.Relationships[relationship]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", schema.ErrUnknownRelationship, relationship, resource.Type)
	}
	target, err := l.registry.Resolve(rel.Target)
	if err != nil {
		return nil, err
	}

	record, err := l.fetchByID(ctx, resource, id)
	if err != nil {
		return nil, err
	}

	return l.loadRelated(ctx, resource, target, rel, []Record{record})
}

// UpdateRelationship replaces the linkage of one relationship
func (l *SQLDataLayer) UpdateRelationship(
	ctx context.Context,
	resource *schema.ResourceSchema,
	id, relationship string,
	linkage Linkage,
) error {
	rel, ok := resource.Relationships[relationship]
	if !ok {
		return fmt.Errorf("%w: %s on %s", schema.ErrUnknownRelationship, relationship, resource.Type)
	}

	return l.WithTransaction(ctx, func(dl DataLayer) error {
		txl := dl.(*SQLDataLayer)

		if rel.Kind == schema.ToOne {
			if linkage.Many {
				return fmt.Errorf("%w: %s is to-one", ErrLinkageCardinality, relationship)
			}
			return txl.writeToOne(ctx, resource, rel, id, linkage.One)
		}

		if !linkage.Many {
			return fmt.Errorf("%w: %s is to-many", ErrLinkageCardinality, relationship)
		}
		if _, err := txl.fetchByID(ctx, resource, id); err != nil {
			return err
		}
		return txl.writeToMany(ctx, resource, rel, id, linkage.List)
	})
}

func (l *SQLDataLayer) writeToOne(ctx context.Context, resource *schema.ResourceSchema, rel *schema.Relationship, id string, ref *Identifier) error {
	var value any
	if ref == nil {
		if !rel.Nullable {
			return fmt.Errorf("%w: %s", ErrRelationshipNotNullable, rel.Name)
		}
		value = nil
	} else {
		value = ref.ID
	}

	updateQuery := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s = $2",
		pq.QuoteIdentifier(resource.Table),
		pq.QuoteIdentifier(rel.ForeignKey),
		pq.QuoteIdentifier(resource.IDField),
	)

	result, err := l.db.ExecContext(ctx, updateQuery, value, id)
	if err != nil {
		return fmt.Errorf("relationship update failed: %w", ConvertDBError(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// writeToMany reconciles a to-many relationship against a desired id set:
// links not yet stored are added, stored links absent from the set are
// removed. Runs inside the caller's transaction.
func (l *SQLDataLayer) writeToMany(ctx context.Context, resource *schema.ResourceSchema, rel *schema.Relationship, id string, refs []Identifier) error {
	desired := make(map[string]bool, len(refs))
	ordered := make([]string, 0, len(refs))
	for _, ref := range refs {
		if !desired[ref.ID] {
			desired[ref.ID] = true
			ordered = append(ordered, ref.ID)
		}
	}

	current, err := l.relatedIDs(ctx, resource, rel, id)
	if err != nil {
		return err
	}
	currentSet := make(map[string]bool, len(current))
	for _, targetID := range current {
		currentSet[targetID] = true
	}

	var toAdd, toRemove []string
	for _, targetID := range ordered {
		if !currentSet[targetID] {
			toAdd = append(toAdd, targetID)
		}
	}
	for _, targetID := range current {
		if !desired[targetID] {
			toRemove = append(toRemove, targetID)
		}
	}

	if rel.ManyToMany() {
		return l.reconcileJoinTable(ctx, rel, id, toAdd, toRemove)
	}
	return l.reconcileForeignKey(ctx, rel, id, toAdd, toRemove)
}

func (l *SQLDataLayer) reconcileJoinTable(ctx context.Context, rel *schema.Relationship, id string, toAdd, toRemove []string) error {
	if len(toRemove) > 0 {
		deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE %s = $1 AND %s = ANY($2)",
			pq.QuoteIdentifier(rel.JoinTable),
			pq.QuoteIdentifier(rel.LocalKey),
			pq.QuoteIdentifier(rel.TargetKey),
		)
		if _, err := l.db.ExecContext(ctx, deleteQuery, id, pq.Array(toRemove)); err != nil {
			return fmt.Errorf("relationship unlink failed: %w", ConvertDBError(err))
		}
	}

	for _, targetID := range toAdd {
		insertQuery := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES ($1, $2)",
			pq.QuoteIdentifier(rel.JoinTable),
			pq.QuoteIdentifier(rel.LocalKey),
			pq.QuoteIdentifier(rel.TargetKey),
		)
		if _, err := l.db.ExecContext(ctx, insertQuery, id, targetID); err != nil {
			return fmt.Errorf("relationship link failed: %w", ConvertDBError(err))
		}
	}
	return nil
}

func (l *SQLDataLayer) reconcileForeignKey(ctx context.Context, rel *schema.Relationship, id string, toAdd, toRemove []string) error {
	target, err := l.registry.Resolve(rel.Target)
	if err != nil {
		return err
	}

	if len(toRemove) > 0 {
		clearQuery := fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s = $1 AND %s = ANY($2)",
			pq.QuoteIdentifier(target.Table),
			pq.QuoteIdentifier(rel.ForeignKey),
			pq.QuoteIdentifier(rel.ForeignKey),
			pq.QuoteIdentifier(target.IDField),
		)
		if _, err := l.db.ExecContext(ctx, clearQuery, id, pq.Array(toRemove)); err != nil {
			return fmt.Errorf("relationship unlink failed: %w", ConvertDBError(err))
		}
	}

	if len(toAdd) > 0 {
		claimQuery := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s = ANY($2)",
			pq.QuoteIdentifier(target.Table),
			pq.QuoteIdentifier(rel.ForeignKey),
			pq.QuoteIdentifier(target.IDField),
		)
		result, err := l.db.ExecContext(ctx, claimQuery, id, pq.Array(toAdd))
		if err != nil {
			return fmt.Errorf("relationship link failed: %w", ConvertDBError(err))
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected != int64(len(toAdd)) {
			return fmt.Errorf("%w: one or more %s records do not exist", ErrForeignKeyViolation, rel.Target)
		}
	}
	return nil
}
