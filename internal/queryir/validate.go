package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/rowsync/internal/ident"
)

// ValidationError lists every structural problem found in a statement.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid statement: " + strings.Join(e.Problems, "; ")
}

// Validate checks structural rules before compilation.
//
// Rules:
//  1. Table names and column names are valid identifiers
//  2. Insert has as many values as columns, and at least one column
//  3. Update has at least one assignment and a filter
//  4. And has at least one predicate
//  5. Limit is not negative
//
// Validate is a pure function with no side effects. Returns nil when the
// statement is valid, otherwise a *ValidationError.
func Validate(stmt Statement) error {
	v := &validator{}
	v.validateStatement(stmt)
	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) checkIdent(kind, name string) {
	if err := ident.Validate(name); err != nil {
		v.addProblem("%s: %v", kind, err)
	}
}

func (v *validator) validateStatement(stmt Statement) {
	switch s := stmt.(type) {
	case nil:
		v.addProblem("nil statement")
	case Select:
		v.validateSelect(s)
	case *Select:
		v.validateSelect(*s)
	case Update:
		v.validateUpdate(s)
	case *Update:
		v.validateUpdate(*s)
	case Insert:
		v.validateInsert(s)
	case *Insert:
		v.validateInsert(*s)
	default:
		v.addProblem("unknown statement type %T", stmt)
	}
}

func (v *validator) validateSelect(s Select) {
	v.checkIdent("select table", s.From)
	if len(s.Columns) == 0 {
		v.addProblem("select has no columns")
	}
	for _, c := range s.Columns {
		v.checkIdent("select column", c)
	}
	if s.Limit < 0 {
		v.addProblem("negative limit %d", s.Limit)
	}
	if s.Filter != nil {
		v.validatePredicate(s.Filter)
	}
}

func (v *validator) validateUpdate(u Update) {
	v.checkIdent("update table", u.Table)
	if len(u.Set) == 0 {
		v.addProblem("update has no assignments")
	}
	for _, a := range u.Set {
		v.checkIdent("update column", a.Column)
	}
	if u.Filter == nil {
		v.addProblem("update has no filter")
		return
	}
	v.validatePredicate(u.Filter)
}

func (v *validator) validateInsert(i Insert) {
	v.checkIdent("insert table", i.Table)
	if len(i.Columns) == 0 {
		v.addProblem("insert has no columns")
	}
	if len(i.Columns) != len(i.Values) {
		v.addProblem("insert has %d columns but %d values", len(i.Columns), len(i.Values))
	}
	for _, c := range i.Columns {
		v.checkIdent("insert column", c)
	}
	if i.Returning != "" {
		v.checkIdent("insert returning", i.Returning)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case Equals:
		v.checkIdent("predicate column", pred.Column)
	case *Equals:
		v.checkIdent("predicate column", pred.Column)
	case And:
		v.validateAnd(pred)
	case *And:
		v.validateAnd(*pred)
	default:
		v.addProblem("unknown predicate type %T", p)
	}
}

func (v *validator) validateAnd(a And) {
	if len(a.Predicates) == 0 {
		v.addProblem("empty AND")
	}
	for _, p := range a.Predicates {
		v.validatePredicate(p)
	}
}
