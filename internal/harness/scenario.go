package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rowsync/internal/ident"
	"github.com/roach88/rowsync/internal/mapping"
)

// Scenario defines a sync conformance scenario.
// A scenario seeds a source and destination table, runs passes, and asserts
// on the resulting trace and table contents.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema holds the DDL for both databases. Empty lists use the
	// standard tbl1/tbl2 fixture tables.
	Schema Schema `yaml:"schema,omitempty"`

	// Source and Destination override the fixture table settings.
	Source      SourceTable `yaml:"source,omitempty"`
	Destination DestTable   `yaml:"destination,omitempty"`

	// Mapping overrides the fixture mapping (data_1 -> dasData as the
	// natural key, data_2 -> dasData1, data_3 -> dasData2).
	Mapping []mapping.Entry `yaml:"mapping,omitempty"`

	// Setup statements run before the flow and are not traced.
	Setup []ExecStep `yaml:"setup,omitempty"`

	// Flow is the traced sequence of statements and passes.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: trace_count, dest_count, final_state, watermark
	Assertions []Assertion `yaml:"assertions"`
}

// Schema lists DDL statements per database.
type Schema struct {
	Source []string `yaml:"source,omitempty"`
	Dest   []string `yaml:"dest,omitempty"`
}

// SourceTable overrides the source table settings.
type SourceTable struct {
	Table          string `yaml:"table,omitempty"`
	PrimaryKey     string `yaml:"primary_key,omitempty"`
	LastUpdated    string `yaml:"last_updated,omitempty"`
	MinLastUpdated string `yaml:"min_last_updated,omitempty"`
	SelectTemplate string `yaml:"select_template,omitempty"`
}

// DestTable overrides the destination table settings.
type DestTable struct {
	Table      string `yaml:"table,omitempty"`
	PrimaryKey string `yaml:"primary_key,omitempty"`
}

// ExecStep runs one SQL statement against the source or the destination.
// Exactly one of Source and Dest is set.
type ExecStep struct {
	Source string `yaml:"source,omitempty"`
	Dest   string `yaml:"dest,omitempty"`
}

// FlowStep is one traced step: a statement, a pass, or a forced
// watermark.
type FlowStep struct {
	ExecStep `yaml:",inline"`

	// Pass runs one sync pass.
	Pass *PassStep `yaml:"pass,omitempty"`

	// SetWatermark overwrites the source table's watermark.
	SetWatermark string `yaml:"set_watermark,omitempty"`

	// Expect validates the pass outcome. Only valid on pass steps.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// PassStep configures a pass.
type PassStep struct {
	// Commit advances the watermark when the pass finishes.
	Commit bool `yaml:"commit"`
}

// ExpectClause specifies the expected pass outcome.
// Unset counters are not checked.
type ExpectClause struct {
	// State is "finished" or "failed".
	State string `yaml:"state"`

	Rows     *int `yaml:"rows,omitempty"`
	Inserted *int `yaml:"inserted,omitempty"`
	Updated  *int `yaml:"updated,omitempty"`

	// Error is a substring of the pass error.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_count": Check an event appears exactly N times
	// - "dest_count": Check the destination table's row count
	// - "final_state": Query a table and verify expected values
	// - "watermark": Check the stored watermark
	Type string `yaml:"type"`

	// Event and Outcome select trace events (used by trace_count).
	Event   string `yaml:"event,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	// DB is "source" or "dest" (used by final_state, default dest).
	DB string `yaml:"db,omitempty"`

	// Table is the table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Count is the expected number (used by trace_count and dest_count).
	Count int `yaml:"count,omitempty"`

	// Value is the expected watermark literal; Absent expects none
	// (used by watermark).
	Value  string `yaml:"value,omitempty"`
	Absent bool   `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceCount = "trace_count"
	AssertDestCount  = "dest_count"
	AssertFinalState = "final_state"
	AssertWatermark  = "watermark"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateExec(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}

	for i, step := range s.Flow {
		if err := validateFlowStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateExec(step ExecStep) error {
	switch {
	case step.Source != "" && step.Dest != "":
		return fmt.Errorf("only one of source and dest may be set")
	case step.Source == "" && step.Dest == "":
		return fmt.Errorf("one of source and dest is required")
	}
	return nil
}

func validateFlowStep(step FlowStep) error {
	kinds := 0
	if step.Source != "" || step.Dest != "" {
		kinds++
		if err := validateExec(step.ExecStep); err != nil {
			return err
		}
	}
	if step.Pass != nil {
		kinds++
	}
	if step.SetWatermark != "" {
		kinds++
	}
	if kinds != 1 {
		return fmt.Errorf("exactly one of source, dest, pass and set_watermark is required")
	}

	if step.Expect != nil {
		if step.Pass == nil {
			return fmt.Errorf("expect is only valid on pass steps")
		}
		switch step.Expect.State {
		case "finished", "failed":
		default:
			return fmt.Errorf("expect.state must be finished or failed, got %q", step.Expect.State)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertDestCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for dest_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if err := ident.Validate(a.Table); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		switch a.DB {
		case "", "source", "dest":
		default:
			return fmt.Errorf("assertions[%d]: db must be source or dest, got %q", index, a.DB)
		}
	case AssertWatermark:
		if (a.Value == "") == !a.Absent {
			return fmt.Errorf("assertions[%d]: exactly one of value and absent is required for watermark", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
