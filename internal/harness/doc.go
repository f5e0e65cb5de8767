// Package harness provides conformance testing for sync jobs.
//
// The harness creates fresh SQLite source and destination databases, runs
// the real engine against them, and validates the results as executable
// contract tests.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	setup:
//	  - source: "INSERT INTO tbl1 VALUES (1, 'Dan', '1', '2', '2024-03-01 12:00:00')"
//	flow:
//	  - pass: { commit: true }
//	    expect: { state: finished, rows: 1, inserted: 1 }
//	  - source: "UPDATE tbl1 SET data_2 = '9', lastUpdated = '2024-03-02 12:00:00'"
//	  - pass: { commit: true }
//	    expect: { state: finished, updated: 1 }
//	assertions:
//	  - type: dest_count
//	    count: 1
//	  - type: final_state
//	    table: tbl2
//	    where: { dasData: Dan }
//	    expect: { dasData1: "9" }
//	  - type: watermark
//	    value: "2024-03-02 12:00:00"
//
// The optional schema, source, destination and mapping sections override
// the standard tbl1 -> tbl2 fixture.
//
// DATETIME literals in scenario SQL use the "2006-01-02 15:04:05" layout.
// SQLite compares them as text against the bound watermark, which the
// driver writes in the same leading layout.
//
// # Assertion Types
//
//   - trace_count: Verifies an event (optionally with an outcome) appears exactly N times
//   - dest_count: Verifies the destination table's row count
//   - final_state: Queries a table and verifies expected values
//   - watermark: Verifies the stored watermark, or its absence
//
// # Deterministic Testing
//
// Pass IDs are pass-1, pass-2, ... in flow order and pass times come from
// testutil.DeterministicClock, so identical scenarios produce identical
// traces for golden file comparison.
package harness
