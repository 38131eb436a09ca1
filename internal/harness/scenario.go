package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sidecar/internal/config"
	"github.com/roach88/sidecar/internal/control"
	"github.com/roach88/sidecar/internal/radar"
)

// Scenario defines a pipeline test scenario.
// Scenarios feed messages and control requests to one pipeline and assert
// on what it emits, its counters and what it recorded.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the clock reading before the first step. Defaults to
	// DefaultStart.
	Start time.Time `yaml:"start,omitempty"`

	// InitialState is requested before the first step. Defaults to Run.
	InitialState string `yaml:"initial_state,omitempty"`

	// Radar overrides fields of the default radar configuration.
	Radar radar.Config `yaml:"radar,omitempty"`

	// Pipeline is the pipeline under test, in the runner configuration
	// format.
	Pipeline config.Pipeline `yaml:"pipeline"`

	// Steps are applied in order; the pipeline drains after each one.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace, counters and recordings.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scenario action. Exactly one field is set.
type Step struct {
	// Message is an envelope in text form, encoded and ingested.
	Message string `yaml:"message,omitempty"`

	// Frame is a legacy transducer frame in hex, ingested as is.
	Frame string `yaml:"frame,omitempty"`

	// State requests a processing state change.
	State string `yaml:"state,omitempty"`

	// Parameters requests a parameter change on one stage.
	Parameters *ParameterStep `yaml:"parameters,omitempty"`

	// ClearStats resets every stage's counters.
	ClearStats bool `yaml:"clear_stats,omitempty"`

	// Record starts a recording to this path.
	Record string `yaml:"record,omitempty"`

	// StopRecording ends the active recording.
	StopRecording bool `yaml:"stop_recording,omitempty"`

	// Advance moves the scenario clock forward.
	Advance time.Duration `yaml:"advance,omitempty"`
}

// ParameterStep targets one stage by index.
type ParameterStep struct {
	Stage   int            `yaml:"stage"`
	Changes map[string]any `yaml:"changes"`
}

// Assertion validates the trace, counters or recordings.
type Assertion struct {
	// Type specifies the assertion type:
	// - "output_contains": an emitted message's payload matches Fields
	// - "output_order": channels first emit in the order listed
	// - "output_count": exactly Count messages were emitted
	// - "counter": a stage counter holds Value
	// - "final_state": the pipeline ends in State
	// - "recorded_count": exactly Count messages were recorded
	Type string `yaml:"type"`

	// Channel restricts output and recording assertions to one channel.
	Channel string `yaml:"channel,omitempty"`

	// Fields is a subset of the payload text form (used by output_contains).
	Fields map[string]any `yaml:"fields,omitempty"`

	// Channels is the expected first-emission order (used by output_order).
	Channels []string `yaml:"channels,omitempty"`

	// Count is the expected number of messages (used by output_count and
	// recorded_count).
	Count int `yaml:"count,omitempty"`

	// Stage and Counter name the counter checked by counter assertions.
	Stage   string `yaml:"stage,omitempty"`
	Counter string `yaml:"counter,omitempty"`
	Value   uint64 `yaml:"value,omitempty"`

	// State is the expected processing state (used by final_state).
	State string `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertOutputContains = "output_contains"
	AssertOutputOrder    = "output_order"
	AssertOutputCount    = "output_count"
	AssertCounter        = "counter"
	AssertFinalState     = "final_state"
	AssertRecordedCount  = "recorded_count"
)

// DefaultStart is the scenario clock reading when none is given.
var DefaultStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

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

// ParseScenario parses a scenario document and fills in defaults.
func ParseScenario(data []byte) (*Scenario, error) {
	// Omitted radar fields keep their defaults.
	scenario := Scenario{Radar: radar.Default()}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Start.IsZero() {
		scenario.Start = DefaultStart
	}
	if scenario.InitialState == "" {
		scenario.InitialState = config.DefaultInitialState
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

	if s.Pipeline.Name == "" || len(s.Pipeline.Stages) == 0 {
		return fmt.Errorf("pipeline with a name and at least one stage is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if err := s.Radar.Validate(); err != nil {
		return fmt.Errorf("radar: %w", err)
	}

	if _, err := control.ParseProcessingState(s.InitialState); err != nil {
		return fmt.Errorf("initial_state: %w", err)
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks that exactly one action is set.
func validateStep(index int, st Step) error {
	set := 0
	for _, on := range []bool{
		st.Message != "",
		st.Frame != "",
		st.State != "",
		st.Parameters != nil,
		st.ClearStats,
		st.Record != "",
		st.StopRecording,
		st.Advance != 0,
	} {
		if on {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, found %d", index, set)
	}

	if st.State != "" {
		if _, err := control.ParseProcessingState(st.State); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	}
	if st.Parameters != nil && len(st.Parameters.Changes) == 0 {
		return fmt.Errorf("steps[%d].parameters: changes is required", index)
	}
	if st.Advance < 0 {
		return fmt.Errorf("steps[%d]: advance must be positive", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOutputContains:
		if len(a.Fields) == 0 {
			return fmt.Errorf("assertions[%d]: fields is required for output_contains", index)
		}
	case AssertOutputOrder:
		if len(a.Channels) == 0 {
			return fmt.Errorf("assertions[%d]: channels list is required for output_order", index)
		}
	case AssertOutputCount, AssertRecordedCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertCounter:
		if a.Stage == "" || a.Counter == "" {
			return fmt.Errorf("assertions[%d]: stage and counter are required for counter", index)
		}
	case AssertFinalState:
		if _, err := control.ParseProcessingState(a.State); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
