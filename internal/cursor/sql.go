package cursor

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/rowsync/internal/ident"
	"github.com/roach88/rowsync/internal/store"
	"github.com/roach88/rowsync/internal/tmpl"
)

// Default statement templates. Placeholders {{table}}, {{valueField}} and
// {{tableNameField}} receive quoted identifiers.
//
// Parameter order is fixed: select binds the table name; update and insert
// bind the watermark value, then the table name.
const (
	DefaultSelectTemplate = "select {{valueField}} from {{table}} where {{tableNameField}} = ?"
	DefaultUpdateTemplate = "update {{table}} set {{valueField}} = ? where {{tableNameField}} = ?"
	DefaultInsertTemplate = "insert into {{table}} ({{valueField}}, {{tableNameField}}) values (?, ?)"
)

// Templates holds the three cursor statement templates.
type Templates struct {
	Select string `yaml:"select,omitempty" json:"select,omitempty"`
	Update string `yaml:"update,omitempty" json:"update,omitempty"`
	Insert string `yaml:"insert,omitempty" json:"insert,omitempty"`
}

// SQLConfig names the cursor table and its columns.
// Empty fields take the defaults from DefaultSQLConfig.
type SQLConfig struct {
	Table          string
	ValueField     string
	TableNameField string
	Templates      Templates
}

// DefaultSQLConfig returns the conventional lastSync layout.
func DefaultSQLConfig() SQLConfig {
	ct := store.DefaultCursorTable()
	return SQLConfig{
		Table:          ct.Table,
		ValueField:     ct.ValueField,
		TableNameField: ct.TableNameField,
		Templates: Templates{
			Select: DefaultSelectTemplate,
			Update: DefaultUpdateTemplate,
			Insert: DefaultInsertTemplate,
		},
	}
}

// withDefaults fills empty fields from DefaultSQLConfig.
func (c SQLConfig) withDefaults() SQLConfig {
	d := DefaultSQLConfig()
	if c.Table == "" {
		c.Table = d.Table
	}
	if c.ValueField == "" {
		c.ValueField = d.ValueField
	}
	if c.TableNameField == "" {
		c.TableNameField = d.TableNameField
	}
	if c.Templates.Select == "" {
		c.Templates.Select = d.Templates.Select
	}
	if c.Templates.Update == "" {
		c.Templates.Update = d.Templates.Update
	}
	if c.Templates.Insert == "" {
		c.Templates.Insert = d.Templates.Insert
	}
	return c
}

// SQLStore keeps watermarks in a relational cursor table.
type SQLStore struct {
	q         store.Querier
	selectSQL string
	updateSQL string
	insertSQL string
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore renders the statement templates once and returns a store
// bound to q. The cursor table must already exist (see
// store.EnsureCursorTable).
func NewSQLStore(q store.Querier, dialect ident.Dialect, cfg SQLConfig) (*SQLStore, error) {
	cfg = cfg.withDefaults()
	for _, name := range []string{cfg.Table, cfg.ValueField, cfg.TableNameField} {
		if err := ident.Validate(name); err != nil {
			return nil, fmt.Errorf("cursor config: %w", err)
		}
	}

	ctx := map[string]string{
		"table":          dialect.QuoteQualified(cfg.Table),
		"valueField":     dialect.Quote(cfg.ValueField),
		"tableNameField": dialect.Quote(cfg.TableNameField),
	}

	s := &SQLStore{q: q}
	for _, t := range []struct {
		name string
		text string
		dst  *string
	}{
		{"select", cfg.Templates.Select, &s.selectSQL},
		{"update", cfg.Templates.Update, &s.updateSQL},
		{"insert", cfg.Templates.Insert, &s.insertSQL},
	} {
		rendered, err := tmpl.Render(t.text, ctx)
		if err != nil {
			return nil, fmt.Errorf("cursor %s template: %w", t.name, err)
		}
		*t.dst = dialect.Rebind(rendered)
	}
	return s, nil
}

// Get returns the watermark recorded for table.
// A missing row and a NULL value both report ok=false.
func (s *SQLStore) Get(ctx context.Context, table string) (Watermark, bool, error) {
	v, found, err := s.lookup(ctx, table)
	if err != nil || !found || v == nil {
		return Watermark{}, false, err
	}
	return New(v), true, nil
}

// Set records wm for table, updating the existing row or inserting one.
func (s *SQLStore) Set(ctx context.Context, table string, wm Watermark) error {
	if wm.IsZero() {
		return errors.New("set cursor: empty watermark")
	}

	_, found, err := s.lookup(ctx, table)
	if err != nil {
		return err
	}

	stmt := s.insertSQL
	if found {
		stmt = s.updateSQL
	}
	if _, err := s.q.ExecContext(ctx, stmt, wm.Value(), table); err != nil {
		return fmt.Errorf("set cursor for %s: %w", table, err)
	}
	return nil
}

// lookup reads the first value column of the select template.
func (s *SQLStore) lookup(ctx context.Context, table string) (any, bool, error) {
	rows, err := s.q.QueryContext(ctx, s.selectSQL, table)
	if err != nil {
		return nil, false, fmt.Errorf("get cursor for %s: %w", table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, false, fmt.Errorf("get cursor for %s: %w", table, err)
		}
		return nil, false, nil
	}

	var v any
	if err := rows.Scan(&v); err != nil {
		return nil, false, fmt.Errorf("get cursor for %s: %w", table, err)
	}
	return v, true, nil
}
