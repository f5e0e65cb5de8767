// Package config loads sync job definitions.
//
// A job file names a source table, a destination table, where the cursor
// lives and the field mapping between them. Files may be YAML (.yaml,
// .yml, .json) or CUE (.cue, or a directory of .cue files). Every job,
// whatever its format, is checked against the embedded CUE schema.
//
// DSNs and the Badger path may reference environment variables as ${VAR}.
// Variables come from the process environment, then from the job's
// env_file (loaded with godotenv; the process environment wins).
package config

import (
	"fmt"

	"github.com/roach88/rowsync/internal/cursor"
	"github.com/roach88/rowsync/internal/ident"
	"github.com/roach88/rowsync/internal/mapping"
	"github.com/roach88/rowsync/internal/source"
	"github.com/roach88/rowsync/internal/store"
)

// Cursor backends.
const (
	BackendSQL    = "sql"
	BackendBadger = "badger"
)

// Job is one source table synced into one destination table.
type Job struct {
	Name        string          `yaml:"name" json:"name"`
	EnvFile     string          `yaml:"env_file,omitempty" json:"env_file,omitempty"`
	Source      Source          `yaml:"source" json:"source"`
	Destination Destination     `yaml:"destination" json:"destination"`
	Cursor      Cursor          `yaml:"cursor" json:"cursor"`
	Mapping     []mapping.Entry `yaml:"mapping" json:"mapping"`
}

// Source describes the table rows are read from.
type Source struct {
	Driver         string `yaml:"driver" json:"driver"`
	DSN            string `yaml:"dsn" json:"dsn"`
	Table          string `yaml:"table" json:"table"`
	PrimaryKey     string `yaml:"primary_key,omitempty" json:"primary_key,omitempty"`
	LastUpdated    string `yaml:"last_updated" json:"last_updated"`
	MinLastUpdated string `yaml:"min_last_updated,omitempty" json:"min_last_updated,omitempty"`
	SelectTemplate string `yaml:"select_template,omitempty" json:"select_template,omitempty"`
}

// Destination describes the table rows are written to.
type Destination struct {
	Driver     string `yaml:"driver" json:"driver"`
	DSN        string `yaml:"dsn" json:"dsn"`
	Table      string `yaml:"table" json:"table"`
	PrimaryKey string `yaml:"primary_key,omitempty" json:"primary_key,omitempty"`
}

// Cursor describes where watermarks are kept.
//
// With the sql backend, Driver and DSN default to the source database.
type Cursor struct {
	Backend        string           `yaml:"backend,omitempty" json:"backend,omitempty"`
	Driver         string           `yaml:"driver,omitempty" json:"driver,omitempty"`
	DSN            string           `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	Table          string           `yaml:"table,omitempty" json:"table,omitempty"`
	ValueField     string           `yaml:"value_field,omitempty" json:"value_field,omitempty"`
	TableNameField string           `yaml:"table_name_field,omitempty" json:"table_name_field,omitempty"`
	ValueType      string           `yaml:"value_type,omitempty" json:"value_type,omitempty"`
	Path           string           `yaml:"path,omitempty" json:"path,omitempty"`
	Templates      cursor.Templates `yaml:"templates,omitempty" json:"templates,omitempty"`
}

// ApplyDefaults fills unset optional fields.
func (j *Job) ApplyDefaults() {
	if j.Source.SelectTemplate == "" {
		j.Source.SelectTemplate = source.DefaultSelectTemplate
	}
	if j.Cursor.Backend == "" {
		j.Cursor.Backend = BackendSQL
	}
	if j.Cursor.Backend != BackendSQL {
		return
	}
	if j.Cursor.Driver == "" && j.Cursor.DSN == "" {
		j.Cursor.Driver = j.Source.Driver
		j.Cursor.DSN = j.Source.DSN
	}
	def := cursor.DefaultSQLConfig()
	if j.Cursor.Table == "" {
		j.Cursor.Table = def.Table
	}
	if j.Cursor.ValueField == "" {
		j.Cursor.ValueField = def.ValueField
	}
	if j.Cursor.TableNameField == "" {
		j.Cursor.TableNameField = def.TableNameField
	}
	if j.Cursor.Templates.Select == "" {
		j.Cursor.Templates.Select = def.Templates.Select
	}
	if j.Cursor.Templates.Update == "" {
		j.Cursor.Templates.Update = def.Templates.Update
	}
	if j.Cursor.Templates.Insert == "" {
		j.Cursor.Templates.Insert = def.Templates.Insert
	}
}

// Check runs the semantic checks the schema cannot express.
// It assumes ApplyDefaults has run.
func (j *Job) Check() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if _, err := ident.ParseDialect(j.Source.Driver); err != nil {
		add("source.driver: %v", err)
	}
	if _, err := ident.ParseDialect(j.Destination.Driver); err != nil {
		add("destination.driver: %v", err)
	}
	if _, err := mapping.New(j.Mapping); err != nil {
		add("mapping: %v", err)
	}

	switch j.Cursor.Backend {
	case BackendSQL:
		if j.Cursor.Driver == "" || j.Cursor.DSN == "" {
			add("cursor: driver and dsn must be set together")
		} else if _, err := ident.ParseDialect(j.Cursor.Driver); err != nil {
			add("cursor.driver: %v", err)
		}
	case BackendBadger:
		if j.Cursor.Driver != "" || j.Cursor.DSN != "" {
			add("cursor: driver and dsn do not apply to the badger backend")
		}
	default:
		add("cursor.backend: unknown backend %q", j.Cursor.Backend)
	}

	if len(problems) > 0 {
		return &ValidationError{Code: ErrCodeInvalid, Problems: problems}
	}
	return nil
}

// SourceOptions returns the store options for the source database.
func (j *Job) SourceOptions() store.Options {
	return store.Options{Driver: j.Source.Driver, DSN: j.Source.DSN}
}

// DestinationOptions returns the store options for the destination database.
func (j *Job) DestinationOptions() store.Options {
	return store.Options{Driver: j.Destination.Driver, DSN: j.Destination.DSN}
}

// CursorOptions returns the store options for the SQL cursor database.
func (j *Job) CursorOptions() store.Options {
	return store.Options{Driver: j.Cursor.Driver, DSN: j.Cursor.DSN}
}

// CursorSharesSource reports whether the SQL cursor lives in the source
// database.
func (j *Job) CursorSharesSource() bool {
	return j.Cursor.Backend == BackendSQL &&
		j.Cursor.Driver == j.Source.Driver &&
		j.Cursor.DSN == j.Source.DSN
}

// SourceConfig returns the row source configuration.
func (j *Job) SourceConfig() source.Config {
	cfg := source.Config{
		Table:          j.Source.Table,
		PrimaryKey:     j.Source.PrimaryKey,
		LastUpdated:    j.Source.LastUpdated,
		SelectTemplate: j.Source.SelectTemplate,
	}
	if j.Source.MinLastUpdated != "" {
		cfg.MinLastUpdated = cursor.ParseLiteral(j.Source.MinLastUpdated)
	}
	return cfg
}

// CursorTable returns the SQL cursor table layout.
func (j *Job) CursorTable() store.CursorTable {
	return store.CursorTable{
		Table:          j.Cursor.Table,
		ValueField:     j.Cursor.ValueField,
		TableNameField: j.Cursor.TableNameField,
		ValueType:      j.Cursor.ValueType,
	}
}

// CursorSQLConfig returns the SQL cursor store configuration.
func (j *Job) CursorSQLConfig() cursor.SQLConfig {
	return cursor.SQLConfig{
		Table:          j.Cursor.Table,
		ValueField:     j.Cursor.ValueField,
		TableNameField: j.Cursor.TableNameField,
		Templates:      j.Cursor.Templates,
	}
}
