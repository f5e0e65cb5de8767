package store

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/roach88/rowsync/internal/ident"
	"github.com/roach88/rowsync/internal/tmpl"
)

//go:embed cursor_table.sql
var cursorTableDDL string

// CursorTable names the table that holds one watermark per synced table.
type CursorTable struct {
	Table          string
	ValueField     string
	TableNameField string

	// ValueType overrides the SQL type of the watermark column.
	// Empty selects a timestamp type suited to the dialect.
	ValueType string
}

// DefaultCursorTable returns the conventional cursor table layout.
func DefaultCursorTable() CursorTable {
	return CursorTable{
		Table:          "lastSync",
		ValueField:     "lastSync",
		TableNameField: "tableName",
	}
}

// EnsureCursorTable creates the cursor table if it does not exist.
// The statement is idempotent.
func (s *Store) EnsureCursorTable(ctx context.Context, ct CursorTable) error {
	for _, name := range []string{ct.Table, ct.ValueField, ct.TableNameField} {
		if err := ident.Validate(name); err != nil {
			return fmt.Errorf("cursor table: %w", err)
		}
	}

	keyType, valueType := cursorColumnTypes(s.dialect)
	if ct.ValueType != "" {
		valueType = ct.ValueType
	}

	ddl, err := tmpl.Render(cursorTableDDL, map[string]string{
		"table":          s.dialect.QuoteQualified(ct.Table),
		"tableNameField": s.dialect.Quote(ct.TableNameField),
		"valueField":     s.dialect.Quote(ct.ValueField),
		"keyType":        keyType,
		"valueType":      valueType,
	})
	if err != nil {
		return fmt.Errorf("render cursor table ddl: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create cursor table %s: %w", ct.Table, err)
	}
	return nil
}

func cursorColumnTypes(d ident.Dialect) (key, value string) {
	switch d {
	case ident.Postgres:
		return "TEXT", "TIMESTAMPTZ"
	case ident.MySQL:
		return "VARCHAR(255)", "DATETIME(6)"
	default:
		return "TEXT", "DATETIME"
	}
}
