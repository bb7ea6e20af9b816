package datalayer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/keel-api/keel/internal/schema"
)

// Create persists a new record. To-one linkage becomes foreign key columns
// of the insert; to-many linkage is reconciled after the insert inside the
// same transaction.
func (l *SQLDataLayer) Create(
	ctx context.Context,
	resource *schema.ResourceSchema,
	attrs Record,
	rels map[string]Linkage,
) (Record, error) {
	var result Record
	err := l.WithTransaction(ctx, func(dl DataLayer) error {
		txl := dl.(*SQLDataLayer)
		record, err := txl.createInTx(ctx, resource, attrs, rels)
		if err != nil {
			return err
		}
		result = record
		return nil
	})
	return result, err
}

func (l *SQLDataLayer) createInTx(
	ctx context.Context,
	resource *schema.ResourceSchema,
	attrs Record,
	rels map[string]Linkage,
) (Record, error) {
	// Copy to avoid mutating the caller's map
	record := make(Record, len(attrs)+len(rels)+1)
	for k, v := range attrs {
		record[k] = v
	}

	if valueToString(record[resource.IDField]) == "" {
		record[resource.IDField] = uuid.NewString()
	}

	toMany := make(map[string]Linkage)
	for name, linkage := range rels {
		rel, ok := resource.Relationships[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s on %s", schema.ErrUnknownRelationship, name, resource.Type)
		}
		switch {
		case rel.Kind == schema.ToOne:
			if linkage.Many {
				return nil, fmt.Errorf("%w: %s is to-one", ErrLinkageCardinality, name)
			}
			if linkage.One == nil {
				if !rel.Nullable {
					return nil, fmt.Errorf("%w: %s", ErrRelationshipNotNullable, name)
				}
				record[rel.ForeignKey] = nil
			} else {
				record[rel.ForeignKey] = linkage.One.ID
			}
		default:
			if !linkage.Many {
				return nil, fmt.Errorf("%w: %s is to-many", ErrLinkageCardinality, name)
			}
			toMany[name] = linkage
		}
	}

	inserted, err := l.insertRecord(ctx, resource, record)
	if err != nil {
		return nil, err
	}

	id := recordID(resource, inserted)
	for name, linkage := range toMany {
		if err := l.writeToMany(ctx, resource, resource.Relationships[name], id, linkage.List); err != nil {
			return nil, err
		}
	}

	return inserted, nil
}

func (l *SQLDataLayer) insertRecord(ctx context.Context, resource *schema.ResourceSchema, record Record) (Record, error) {
	var columns []string
	var placeholders []string
	var values []any
	counter := 1

	for _, col := range resource.Columns() {
		value, ok := record[col]
		if !ok {
			continue
		}
		columns = append(columns, pq.QuoteIdentifier(col))
		placeholders = append(placeholders, fmt.Sprintf("$%d", counter))
		values = append(values, value)
		counter++
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("no columns to insert for %s", resource.Type)
	}

	insertQuery := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		pq.QuoteIdentifier(resource.Table),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		returningColumns(resource),
	)

	rows, err := l.db.QueryContext(ctx, insertQuery, values...)
	if err != nil {
		return nil, fmt.Errorf("insert failed: %w", ConvertDBError(err))
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("insert returned no row for %s", resource.Type)
	}
	return records[0], nil
}

// Update applies a partial update and returns the post-mutation record
func (l *SQLDataLayer) Update(
	ctx context.Context,
	resource *schema.ResourceSchema,
	id string,
	attrs Record,
	rels map[string]Linkage,
) (Record, error) {
	var result Record
	err := l.WithTransaction(ctx, func(dl DataLayer) error {
		txl := dl.(*SQLDataLayer)
		record, err := txl.updateInTx(ctx, resource, id, attrs, rels)
		if err != nil {
			return err
		}
		result = record
		return nil
	})
	return result, err
}

func (l *SQLDataLayer) updateInTx(
	ctx context.Context,
	resource *schema.ResourceSchema,
	id string,
	attrs Record,
	rels map[string]Linkage,
) (Record, error) {
	changes := make(Record, len(attrs)+len(rels))
	for k, v := range attrs {
		changes[k] = v
	}

	toMany := make(map[string]Linkage)
	for name, linkage := range rels {
		rel, ok := resource.Relationships[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s on %s", schema.ErrUnknownRelationship, name, resource.Type)
		}
		switch {
		case rel.Kind == schema.ToOne:
			if linkage.Many {
				return nil, fmt.Errorf("%w: %s is to-one", ErrLinkageCardinality, name)
			}
			if linkage.One == nil {
				if !rel.Nullable {
					return nil, fmt.Errorf("%w: %s", ErrRelationshipNotNullable, name)
				}
				changes[rel.ForeignKey] = nil
			} else {
				changes[rel.ForeignKey] = linkage.One.ID
			}
		default:
			if !linkage.Many {
				return nil, fmt.Errorf("%w: %s is to-many", ErrLinkageCardinality, name)
			}
			toMany[name] = linkage
		}
	}

	var record Record
	if len(changes) > 0 {
		updated, err := l.updateRecord(ctx, resource, id, changes)
		if err != nil {
			return nil, err
		}
		record = updated
	} else {
		// Relationship-only update; the row itself does not change but
		// must exist
		existing, err := l.fetchByID(ctx, resource, id)
		if err != nil {
			return nil, err
		}
		record = existing
	}

	for name, linkage := range toMany {
		if err := l.writeToMany(ctx, resource, resource.Relationships[name], id, linkage.List); err != nil {
			return nil, err
		}
	}

	return record, nil
}

func (l *SQLDataLayer) updateRecord(ctx context.Context, resource *schema.ResourceSchema, id string, changes Record) (Record, error) {
	// Deterministic SET order
	columns := make([]string, 0, len(changes))
	for col := range changes {
		if !resource.IsColumn(col) || col == resource.IDField {
			return nil, fmt.Errorf("cannot update column %q on %s", col, resource.Type)
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)

	setClauses := make([]string, len(columns))
	values := make([]any, 0, len(columns)+1)
	counter := 1
	for i, col := range columns {
		setClauses[i] = fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(col), counter)
		values = append(values, changes[col])
		counter++
	}
	values = append(values, id)

	updateQuery := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d RETURNING %s",
		pq.QuoteIdentifier(resource.Table),
		strings.Join(setClauses, ", "),
		pq.QuoteIdentifier(resource.IDField),
		counter,
		returningColumns(resource),
	)

	rows, err := l.db.QueryContext(ctx, updateQuery, values...)
	if err != nil {
		return nil, fmt.Errorf("update failed: %w", ConvertDBError(err))
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// Delete removes a record by id
func (l *SQLDataLayer) Delete(ctx context.Context, resource *schema.ResourceSchema, id string) error {
	deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		pq.QuoteIdentifier(resource.Table),
		pq.QuoteIdentifier(resource.IDField),
	)

	result, err := l.db.ExecContext(ctx, deleteQuery, id)
	if err != nil {
		return fmt.Errorf("delete failed: %w", ConvertDBError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// returningColumns renders the RETURNING list in sorted order so results
// scan deterministically
func returningColumns(resource *schema.ResourceSchema) string {
	cols := resource.Columns()
	sorted := make([]string, len(cols))
	copy(sorted, cols)
	sort.Strings(sorted)
	for i, col := range sorted {
		sorted[i] = pq.QuoteIdentifier(col)
	}
	return strings.Join(sorted, ", ")
}
