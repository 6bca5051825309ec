package storage

import (
	"database/sql"
	"strings"

	"github.com/pkg/errors"
)

// serializeRows converts database rows to a slice of maps
func serializeRows(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get columns")
	}

	results := []map[string]any{}
	for rows.Next() {
		rowValues := make([]any, len(columns))
		rowPointers := make([]any, len(columns))
		for i := range rowValues {
			rowPointers[i] = &rowValues[i]
		}

		if err := rows.Scan(rowPointers...); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}

		rowData := make(map[string]any, len(columns))
		for i, colName := range columns {
			// Byte slices (blobs, structs) are kept readable in JSON.
			if b, ok := rowValues[i].([]byte); ok {
				rowData[colName] = string(b)
			} else {
				rowData[colName] = rowValues[i]
			}
		}
		results = append(results, rowData)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}
	return results, nil
}

// quote escapes s for use inside a single-quoted SQL string literal.
func quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// expandPlaceholder points a user query at the replicas table.
func expandPlaceholder(query string) string {
	return strings.ReplaceAll(query, TablePlaceholder, "replicas")
}
