package datalayer

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/keel-api/keel/internal/schema"
)

// selectColumns renders the full qualified column list of a schema in its
// stable declaration order
func selectColumns(resource *schema.ResourceSchema) string {
	cols := resource.Columns()
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = fmt.Sprintf("%s.%s", pq.QuoteIdentifier(resource.Table), pq.QuoteIdentifier(col))
	}
	return strings.Join(quoted, ", ")
}

// scanRows reads all rows into records keyed by column name
func scanRows(rows *sql.Rows) ([]Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var records []Record
	for rows.Next() {
		record, err := scanRowWithColumns(rows, columns)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return records, nil
}

func scanRowWithColumns(rows *sql.Rows, columns []string) (Record, error) {
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	if err := rows.Scan(pointers...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	record := make(Record, len(columns))
	for i, col := range columns {
		record[col] = normalizeScanned(values[i])
	}
	return record, nil
}

// normalizeScanned converts driver byte slices to strings so records
// compare and serialize predictably
func normalizeScanned(value any) any {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}

// recordID extracts the id column of a record as a string
func recordID(resource *schema.ResourceSchema, record Record) string {
	return valueToString(record[resource.IDField])
}

func valueToString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
