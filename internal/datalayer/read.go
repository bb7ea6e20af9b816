package datalayer

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/keel-api/keel/internal/filter"
	"github.com/keel-api/keel/internal/query"
	"github.com/keel-api/keel/internal/schema"
)

// GetCollection runs the compiled query: one SELECT for the page, one
// COUNT with the same predicate so the total is independent of pagination.
func (l *SQLDataLayer) GetCollection(
	ctx context.Context,
	resource *schema.ResourceSchema,
	predicate *filter.Predicate,
	sorts []query.SortField,
	page query.Page,
	includes [][]string,
) (int, []Record, *IncludedSet, error) {
	where, args := whereClause(predicate)

	total, err := l.countCollection(ctx, resource, where, args, predicate == nil)
	if err != nil {
		return 0, nil, nil, err
	}

	selectQuery := fmt.Sprintf("SELECT %s FROM %s%s%s%s",
		selectColumns(resource),
		pq.QuoteIdentifier(resource.Table),
		where,
		orderByClause(resource, sorts),
		limitClause(page),
	)

	rows, err := l.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("collection query failed: %w", ConvertDBError(err))
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return 0, nil, nil, err
	}

	included, err := l.resolveIncludes(ctx, resource, records, includes)
	if err != nil {
		return 0, nil, nil, err
	}

	return total, records, included, nil
}

// countCollection returns the total matching the predicate. Unfiltered
// totals go through the count cache when one is configured; cache errors
// degrade to a miss.
func (l *SQLDataLayer) countCollection(
	ctx context.Context,
	resource *schema.ResourceSchema,
	where string,
	args []any,
	cacheable bool,
) (int, error) {
	useCache := cacheable && l.counts != nil
	if useCache {
		total, ok, err := l.counts.Get(ctx, resource.Type)
		if err != nil {
			l.logger.Warn("count cache read failed", zap.String("resource", resource.Type), zap.Error(err))
		} else if ok {
			return total, nil
		}
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", pq.QuoteIdentifier(resource.Table), where)
	var total int
	if err := l.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count query failed: %w", ConvertDBError(err))
	}

	if useCache {
		if err := l.counts.Set(ctx, resource.Type, total); err != nil {
			l.logger.Warn("count cache write failed", zap.String("resource", resource.Type), zap.Error(err))
		}
	}
	return total, nil
}

// GetDetail loads one record by id
func (l *SQLDataLayer) GetDetail(
	ctx context.Context,
	resource *schema.ResourceSchema,
	id string,
	includes [][]string,
) (Record, *IncludedSet, error) {
	record, err := l.fetchByID(ctx, resource, id)
	if err != nil {
		return nil, nil, err
	}

	included, err := l.resolveIncludes(ctx, resource, []Record{record}, includes)
	if err != nil {
		return nil, nil, err
	}
	return record, included, nil
}

func (l *SQLDataLayer) fetchByID(ctx context.Context, resource *schema.ResourceSchema, id string) (Record, error) {
	selectQuery := fmt.Sprintf("SELECT %s FROM %s WHERE %s.%s = $1",
		selectColumns(resource),
		pq.QuoteIdentifier(resource.Table),
		pq.QuoteIdentifier(resource.Table),
		pq.QuoteIdentifier(resource.IDField),
	)

	rows, err := l.db.QueryContext(ctx, selectQuery, id)
	if err != nil {
		return nil, fmt.Errorf("detail query failed: %w", ConvertDBError(err))
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

func whereClause(predicate *filter.Predicate) (string, []any) {
	if predicate == nil || predicate.SQL == "" {
		return "", nil
	}
	return " WHERE " + predicate.SQL, predicate.Args
}

func orderByClause(resource *schema.ResourceSchema, sorts []query.SortField) string {
	if len(sorts) == 0 {
		return ""
	}

	clauses := make([]string, len(sorts))
	for i, clause := range sorts {
		direction := "ASC"
		if clause.Desc {
			direction = "DESC"
		}
		clauses[i] = fmt.Sprintf("%s.%s %s",
			pq.QuoteIdentifier(resource.Table), pq.QuoteIdentifier(clause.Field), direction)
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}

func limitClause(page query.Page) string {
	if page.Size == 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", page.Size, page.Offset())
}
