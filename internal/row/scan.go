package row

import (
	"database/sql"
	"fmt"
)

// ScanAll consumes every row of a result set and closes it.
//
// Column order is preserved. []byte values are converted to string because
// drivers hand text columns back as raw bytes; a BLOB column therefore also
// arrives as a string, which is acceptable for a row copier.
//
// Returns an empty (non-nil) slice when the result set has no rows.
func ScanAll(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	out := []Row{}
	for rows.Next() {
		r, err := Scan(rows, cols)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Scan reads the current row of rows. cols must be rows.Columns().
// The caller has already advanced rows with Next.
func Scan(rows *sql.Rows, cols []string) (Row, error) {
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	r := make(Row, len(cols))
	for i, c := range cols {
		r[i] = Field{Name: c, Value: normalize(vals[i])}
	}
	return r, nil
}

// normalize converts driver-specific scan results into row values.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
