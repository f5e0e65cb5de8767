// Package ident handles SQL identifiers: validation, qualified-name
// splitting and per-dialect quoting.
//
// Only static configuration (table and column names) ever passes through
// this package. Row data is always bound as statement parameters.
package ident

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// Validate rejects identifiers that cannot be safely quoted.
// Empty names and names containing control characters are refused.
func Validate(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("identifier is empty")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("identifier %q contains control character %U", name, r)
		}
	}
	return nil
}

// SplitQualified splits a potentially schema-qualified identifier into its parts.
// Dots inside double quotes do not split.
func SplitQualified(ident string) []string {
	ident = strings.TrimSpace(ident)
	if ident == "" {
		return nil
	}
	var parts []string
	var buf strings.Builder
	inQuotes := false
	runes := []rune(ident)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				buf.WriteRune('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case '.':
			if inQuotes {
				buf.WriteRune(r)
				continue
			}
			parts = append(parts, strings.TrimSpace(buf.String()))
			buf.Reset()
		default:
			buf.WriteRune(r)
		}
	}
	parts = append(parts, strings.TrimSpace(buf.String()))
	return parts
}

// BaseTableName returns the last segment of a qualified identifier.
func BaseTableName(ident string) string {
	parts := SplitQualified(ident)
	if len(parts) == 0 {
		return strings.TrimSpace(ident)
	}
	return parts[len(parts)-1]
}

// GuessPrimaryKey picks a primary key column from a table's column list.
// Heuristics: "id" first, then "<singular table>_id". Matching is
// case-insensitive; the returned name keeps the column's own spelling.
// Returns "" when neither candidate exists.
func GuessPrimaryKey(table string, columns []string) string {
	singular := inflection.Singular(BaseTableName(table))
	for _, candidate := range []string{"id", singular + "_id"} {
		idx := slices.IndexFunc(columns, func(c string) bool {
			return strings.EqualFold(c, candidate)
		})
		if idx >= 0 {
			return columns[idx]
		}
	}
	return ""
}
