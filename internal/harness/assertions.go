package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/roach88/rowsync/internal/config"
	"github.com/roach88/rowsync/internal/cursor"
	"github.com/roach88/rowsync/internal/queryir"
	"github.com/roach88/rowsync/internal/querysql"
	"github.com/roach88/rowsync/internal/row"
	"github.com/roach88/rowsync/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", i+1, event.Type, describeEvent(event))
		}
	}

	return buf.String()
}

func describeEvent(e TraceEvent) string {
	switch e.Type {
	case EventExec:
		return fmt.Sprintf("%s affected=%d", e.DB, e.Affected)
	case EventRow:
		return fmt.Sprintf("%s #%d %s key=%v %s", e.PassID, e.Index, e.Outcome, e.Key, e.Row)
	case EventPass:
		return fmt.Sprintf("%s %s rows=%d", e.PassID, e.State, e.Rows)
	default:
		return e.Watermark
	}
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ctx     context.Context
	Source  *store.Store
	Dest    *store.Store
	Cursors cursor.Store
	Config  *config.Job
}

// assertTraceCount checks if the event appears exactly the specified number of times.
func assertTraceCount(result *Result, assertion Assertion) error {
	count := result.Count(assertion.Event, assertion.Outcome)
	if count != assertion.Count {
		what := assertion.Event
		if assertion.Outcome != "" {
			what += " (" + assertion.Outcome + ")"
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, what),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertDestCount checks the number of rows in the destination table.
func assertDestCount(actx *AssertionContext, assertion Assertion) error {
	st, err := actx.storeFor("dest")
	if err != nil {
		return err
	}
	table := actx.Config.Destination.Table
	var n int
	query := "SELECT COUNT(*) FROM " + st.Dialect().QuoteQualified(table)
	if err := st.QueryRowContext(actx.Ctx, query).Scan(&n); err != nil {
		return fmt.Errorf("count %s: %w", table, err)
	}
	if n != assertion.Count {
		return &AssertionError{
			Type:     AssertDestCount,
			Expected: fmt.Sprintf("%d rows in %s", assertion.Count, table),
			Actual:   fmt.Sprintf("%d rows", n),
		}
	}
	return nil
}

// assertFinalState checks that exactly one row matches Where and that it
// holds the expected values. Values are always bound, never interpolated.
func assertFinalState(actx *AssertionContext, assertion Assertion) error {
	st, err := actx.storeFor(assertion.DB)
	if err != nil {
		return err
	}

	columns := sortedKeys(assertion.Expect)
	whereCols := sortedKeys(assertion.Where)
	stmt := queryir.Select{From: assertion.Table, Columns: columns, Limit: 2}
	if len(whereCols) > 0 {
		whereVals := make([]any, len(whereCols))
		for i, c := range whereCols {
			whereVals[i] = assertion.Where[c]
		}
		stmt.Filter = queryir.AllEqual(whereCols, whereVals)
	}

	query, params, err := querysql.New(st.Dialect()).Compile(stmt)
	if err != nil {
		return err
	}
	rows, err := st.QueryContext(actx.Ctx, query, params...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	matches, err := row.ScanAll(rows)
	if err != nil {
		return fmt.Errorf("scan %s: %w", assertion.Table, err)
	}

	whereDesc := formatWhereClause(assertion.Where)
	switch len(matches) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, whereDesc),
			Actual:   "row not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, whereDesc),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actual := matches[0]
	for _, key := range columns {
		expectedValue := assertion.Expect[key]
		actualValue, _ := actual.Get(key)
		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}
	return nil
}

// assertWatermark checks the watermark stored for the source table.
func assertWatermark(actx *AssertionContext, assertion Assertion) error {
	if actx.Cursors == nil {
		return errNoStore
	}
	table := actx.Config.Source.Table
	wm, ok, err := actx.Cursors.Get(actx.Ctx, table)
	if err != nil {
		return fmt.Errorf("read watermark: %w", err)
	}

	if assertion.Absent {
		if ok {
			return &AssertionError{
				Type:     AssertWatermark,
				Expected: fmt.Sprintf("no watermark for %s", table),
				Actual:   wm.String(),
			}
		}
		return nil
	}

	want := cursor.ParseLiteral(assertion.Value)
	if !ok {
		return &AssertionError{
			Type:     AssertWatermark,
			Expected: want.String(),
			Actual:   "no watermark",
		}
	}
	c, err := want.Compare(wm)
	if err != nil || c != 0 {
		return &AssertionError{
			Type:     AssertWatermark,
			Expected: want.String(),
			Actual:   wm.String(),
		}
	}
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]interface{}) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares a YAML-parsed expected value with a scanned
// column value. SQLite returns int64 for integers and time.Time for
// DATETIME columns; expected times are written as literals.
func stateValuesEqual(expected, actual interface{}) bool {
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}

	switch exp := expected.(type) {
	case string:
		switch act := actual.(type) {
		case string:
			return exp == act
		case time.Time:
			c, err := cursor.ParseLiteral(exp).Compare(cursor.New(act))
			return err == nil && c == 0
		}
		return false
	case int:
		return stateValuesEqual(int64(exp), actual)
	case int64:
		switch act := actual.(type) {
		case int64:
			return exp == act
		case int:
			return exp == int64(act)
		case float64:
			return float64(exp) == act
		}
		return false
	case float64:
		switch act := actual.(type) {
		case float64:
			return exp == act
		case int64:
			return exp == float64(act)
		}
		return false
	case bool:
		switch act := actual.(type) {
		case bool:
			return exp == act
		case int64:
			// SQLite stores booleans as integers
			return exp == (act != 0)
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceCount:
			err = assertTraceCount(result, assertion)
		case AssertDestCount, AssertFinalState, AssertWatermark:
			if actx == nil || actx.Config == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertDestCount:
				err = assertDestCount(actx, assertion)
			case AssertFinalState:
				err = assertFinalState(actx, assertion)
			default:
				err = assertWatermark(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
