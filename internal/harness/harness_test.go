package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const danInsert = `INSERT INTO tbl1 (id, data_1, data_2, data_3, lastUpdated)
VALUES (1, 'Dan', '1', '2', '2024-03-01 12:00:00')`

func intp(n int) *int { return &n }

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "Minimal test scenario",
		Setup:       []ExecStep{{Source: danInsert}},
		Flow: []FlowStep{
			{Pass: &PassStep{}},
		},
		Assertions: []Assertion{
			{Type: AssertDestCount, Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)

	// One row event followed by the pass event
	require.Len(t, result.Trace, 2)
	assert.Equal(t, EventRow, result.Trace[0].Type)
	assert.Equal(t, "inserted", result.Trace[0].Outcome)
	assert.Equal(t, int64(1), result.Trace[0].Key)
	assert.Equal(t, EventPass, result.Trace[1].Type)
	assert.Equal(t, "pass-1", result.Trace[1].PassID)

	require.Len(t, result.Passes, 1)
	assert.Equal(t, "finished", result.Passes[0].State)
}

func TestRun_ExpectMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "Expectation that does not hold",
		Setup:       []ExecStep{{Source: danInsert}},
		Flow: []FlowStep{
			{Pass: &PassStep{}, Expect: &ExpectClause{State: "failed", Inserted: intp(2), Error: "boom"}},
		},
		Assertions: []Assertion{{Type: AssertDestCount, Count: 1}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "state = finished, want failed")
	assert.Contains(t, result.Errors[0], "inserted = 1, want 2")
	assert.Contains(t, result.Errors[0], `error = nil, want "boom"`)
}

func TestRun_UnexpectedFailure(t *testing.T) {
	scenario := &Scenario{
		Name:        "unexpected_failure",
		Description: "Pass fails without an expect clause",
		Setup: []ExecStep{
			{Source: danInsert},
			{Dest: "INSERT INTO tbl2 (dasData) VALUES ('Dan'), ('Dan')"},
		},
		Flow: []FlowStep{
			{Pass: &PassStep{Commit: true}},
		},
		Assertions: []Assertion{{Type: AssertWatermark, Absent: true}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "flow[0]: pass failed")
	assert.Equal(t, 0, result.Count(EventCommit, ""), "failed passes are not committed")
}

func TestRun_AssertionFailures(t *testing.T) {
	scenario := &Scenario{
		Name:        "assertion_failures",
		Description: "Every assertion type failing",
		Setup:       []ExecStep{{Source: danInsert}},
		Flow: []FlowStep{
			{Pass: &PassStep{Commit: true}},
		},
		Assertions: []Assertion{
			{Type: AssertDestCount, Count: 5},
			{Type: AssertTraceCount, Event: EventRow, Outcome: "updated", Count: 1},
			{Type: AssertFinalState, Table: "tbl2", Where: map[string]interface{}{"dasData": "Nobody"}, Expect: map[string]interface{}{"dasData1": "1"}},
			{Type: AssertFinalState, Table: "tbl2", Where: map[string]interface{}{"dasData": "Dan"}, Expect: map[string]interface{}{"dasData1": "wrong"}},
			{Type: AssertWatermark, Value: "2030-01-01 00:00:00"},
			{Type: AssertWatermark, Absent: true},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 6)
	assert.Contains(t, result.Errors[0], "Assertion failed: dest_count")
	assert.Contains(t, result.Errors[0], "5 rows in tbl2")
	assert.Contains(t, result.Errors[1], "1 occurrences of row (updated)")
	assert.Contains(t, result.Errors[1], "Full trace:")
	assert.Contains(t, result.Errors[2], "row not found")
	assert.Contains(t, result.Errors[3], `field "dasData1" = wrong`)
	assert.Contains(t, result.Errors[4], "Expected: 2030-01-01T00:00:00Z")
	assert.Contains(t, result.Errors[5], "no watermark for tbl1")
}

func TestRun_FinalStateOnSource(t *testing.T) {
	scenario := &Scenario{
		Name:        "source_state",
		Description: "final_state against the source database",
		Setup:       []ExecStep{{Source: danInsert}},
		Flow: []FlowStep{
			{ExecStep: ExecStep{Source: "UPDATE tbl1 SET data_2 = '7' WHERE id = 1"}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, DB: "source", Table: "tbl1", Where: map[string]interface{}{"id": 1}, Expect: map[string]interface{}{
				"data_2":      "7",
				"lastUpdated": "2024-03-01 12:00:00",
			}},
			{Type: AssertTraceCount, Event: EventExec, Count: 1},
			{Type: AssertWatermark, Absent: true},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, "source", result.Trace[0].DB)
	assert.Equal(t, int64(1), result.Trace[0].Affected)
}

func TestRun_AmbiguousFinalState(t *testing.T) {
	scenario := &Scenario{
		Name:        "ambiguous_state",
		Description: "final_state matching two rows",
		Setup:       []ExecStep{{Dest: "INSERT INTO tbl2 (dasData, dasData1) VALUES ('Dan', '1'), ('Dan', '1')"}},
		Flow:        []FlowStep{{Pass: &PassStep{}}},
		Assertions: []Assertion{
			{Type: AssertFinalState, Table: "tbl2", Where: map[string]interface{}{"dasData": "Dan"}, Expect: map[string]interface{}{"dasData1": "1"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "multiple rows matched")
}

func TestRun_CustomSchemaIntegerWatermark(t *testing.T) {
	scenario := &Scenario{
		Name:        "versions",
		Description: "Integer change indicator with a custom schema",
		Schema: Schema{
			Source: []string{"CREATE TABLE items (item_id INTEGER PRIMARY KEY, sku TEXT, qty INTEGER, version INTEGER)"},
			Dest:   []string{"CREATE TABLE stock (stock_id INTEGER PRIMARY KEY, sku TEXT, quantity INTEGER)"},
		},
		Source:      SourceTable{Table: "items", PrimaryKey: "item_id", LastUpdated: "version", MinLastUpdated: "2"},
		Destination: DestTable{Table: "stock", PrimaryKey: "stock_id"},
		Mapping: []mappingEntry{
			{Dest: "sku", Src: "sku", NaturalKey: true},
			{Dest: "quantity", Src: "qty"},
		},
		Setup: []ExecStep{{Source: "INSERT INTO items VALUES (1, 'A', 5, 1), (2, 'B', 6, 2), (3, 'A', 7, 3)"}},
		Flow: []FlowStep{
			{Pass: &PassStep{}, Expect: &ExpectClause{State: "finished", Rows: intp(2), Inserted: intp(2)}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, Table: "stock", Where: map[string]interface{}{"sku": "A"}, Expect: map[string]interface{}{"quantity": 7}},
			{Type: AssertTraceCount, Event: EventRow, Count: 2},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_SetupErrors(t *testing.T) {
	base := Scenario{
		Name:        "broken",
		Description: "setup that cannot run",
		Flow:        []FlowStep{{Pass: &PassStep{}}},
		Assertions:  []Assertion{{Type: AssertDestCount}},
	}

	bad := base
	bad.Setup = []ExecStep{{Source: "INSERT INTO nope VALUES (1)"}}
	_, err := Run(&bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup step 0")

	badSchema := base
	badSchema.Schema = Schema{Source: []string{"CREATE TABLE"}}
	_, err = Run(&badSchema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source schema")

	noKey := base
	noKey.Mapping = []mappingEntry{{Dest: "dasData", Src: "data_1"}}
	_, err = Run(&noKey)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "natural key"), err.Error())
}

func TestRunFile(t *testing.T) {
	result, err := RunFile("testdata/scenarios/round_trip.yaml")
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	_, err = RunFile("testdata/scenarios/missing.yaml")
	assert.Error(t, err)
}
