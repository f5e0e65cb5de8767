// Package tmpl renders SQL statement templates from static configuration.
//
// Templates use handlebars-style placeholders such as {{table}}; the dotted
// text/template form {{.table}} is accepted too. Every placeholder must be
// present in the context: an unknown name is an error, never an empty
// string, so a typo cannot silently produce "select  from".
package tmpl

import (
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reserved holds text/template builtin functions and keywords. A context
// key with one of these names would shadow the builtin or never resolve.
var reserved = map[string]bool{
	"and": true, "call": true, "eq": true, "ge": true, "gt": true,
	"html": true, "index": true, "js": true, "le": true, "len": true,
	"lt": true, "ne": true, "not": true, "or": true, "print": true,
	"printf": true, "println": true, "slice": true, "urlquery": true,
	"block": true, "break": true, "continue": true, "define": true,
	"else": true, "end": true, "if": true, "nil": true, "range": true,
	"template": true, "with": true, "true": true, "false": true,
}

// Render substitutes the named placeholders in text with values from ctx.
//
// Context keys must be plain identifiers (letters, digits, underscore)
// and must not be a text/template builtin or keyword such as len or if.
// Context values are inserted verbatim; callers pass identifiers from
// configuration only.
func Render(text string, ctx map[string]string) (string, error) {
	funcs := template.FuncMap{}
	data := make(map[string]string, len(ctx))
	for k, v := range ctx {
		if !validName.MatchString(k) {
			return "", fmt.Errorf("render template: invalid context key %q", k)
		}
		if reserved[k] {
			return "", fmt.Errorf("render template: context key %q is reserved", k)
		}
		funcs[k] = constant(v)
		data[k] = v
	}

	t, err := template.New("sql").
		Option("missingkey=error").
		Funcs(funcs).
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}

	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return b.String(), nil
}

func constant(v string) func() string {
	return func() string { return v }
}
