// Package harness runs scenario tests against a single pipeline.
//
// A scenario names one pipeline in the runner configuration format, a list
// of steps that feed it messages and control requests, and assertions on
// what it emitted. The harness drives the stream synchronously on a manual
// clock, so the same scenario always produces the same trace.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	initial_state: Run            # optional, defaults to Run
//	radar: { range_max: 150 }     # optional overrides
//	pipeline:
//	  name: east
//	  stages:
//	    - name: threshold
//	      kind: extract
//	      inputs: [{name: video, type: Video}]
//	      outputs: [{name: plots, type: Extractions}]
//	steps:
//	  - message: |
//	      type: Video
//	      producer: riu
//	      sequence: 1
//	      payload: { riu: { range_min: 1, range_factor: 0.5 }, samples: [10, 120] }
//	  - parameters: { stage: 0, changes: { threshold: 150 } }
//	  - frame: "01 1201 ..."
//	  - advance: 1s
//	assertions:
//	  - type: output_count
//	    channel: plots
//	    count: 1
//	  - type: counter
//	    stage: threshold
//	    counter: received
//	    value: 1
//
// Each step sets exactly one of message, frame, state, parameters,
// clear_stats, record, stop_recording or advance.
//
// # Assertion Types
//
//   - output_contains: Some emitted payload contains the given fields
//   - output_order: Channels first emit in the listed order
//   - output_count: Exactly N messages were emitted (optionally per channel)
//   - counter: A stage counter holds the given value
//   - final_state: The pipeline ends in the given processing state
//   - recorded_count: Exactly N messages were written to recordings
//
// # Deterministic Testing
//
// The harness uses:
//   - A manual clock (testutil.Clock) that only moves on advance steps
//   - Stream.Drain after every step instead of the stream goroutine
//   - An in-memory SQLite recordings database (isolated per run)
//
// This ensures identical traces across runs for golden file comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/threshold.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
