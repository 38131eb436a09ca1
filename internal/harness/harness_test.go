package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plotsMessage = `
      type: Extractions
      producer: plots
      sequence: 1
      payload:
        tag: east
        records:
          - {when: 1.5, range: 10, azimuth: 90, elevation: 0, correlated: false, correlations: 0}`

func relayScenario(steps, assertions string) string {
	return `
name: relay
description: "extractions pass through unchanged"
pipeline:
  name: east
  stages:
    - name: relay
      kind: passthrough
      inputs: [{name: in, type: Extractions}]
      outputs: [{name: out, type: Extractions}]
steps:
` + steps + `
assertions:
` + assertions
}

func TestRunThresholdExtract(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/threshold_extract.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, "threshold/4/1", result.Trace[0].GUID)
	assert.Equal(t, 0, result.Trace[0].Step)
	assert.Equal(t, 2, result.Trace[1].Step)
	assert.Equal(t, "plots", result.Trace[1].Channel)
	assert.Equal(t, "Extractions", result.Trace[1].Type)

	assert.Equal(t, "Stop", result.State)
	assert.Equal(t, uint64(2), result.Counters["threshold"]["emitted"])
	assert.Equal(t, uint64(1), result.Counters["threshold"]["discarded"])
}

func TestRunIsDeterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/threshold_extract.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := MarshalTrace(s.Name, first)
	require.NoError(t, err)
	b, err := MarshalTrace(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRunFrames(t *testing.T) {
	doc := `
name: frames
description: "legacy frames become TSPI reports"
pipeline:
  name: tracks
  stages:
    - name: frames
      kind: tspi-frame
      outputs: [{name: tracks, type: TSPI}]
steps:
  - frame: "01 1201 000a 00271000 00000000 00000000 01 0000"
  - frame: "02"
  - frame: "01 1201 0014 00271000 00000000 00000000 00 0000"
assertions:
  - type: output_count
    channel: tracks
    count: 2
  - type: output_contains
    channel: tracks
    fields: {tag: RFA, when: 10}
  - type: counter
    stage: frames
    counter: dropped
    value: 1
  - type: counter
    stage: frames
    counter: received
    value: 3
`
	s, err := ParseScenario([]byte(doc))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, "TSPI", result.Trace[0].Type)
	assert.Equal(t, "frames/7/1", result.Trace[0].GUID)
	assert.Equal(t, "frames/7/2", result.Trace[1].GUID)
}

func TestRunRecording(t *testing.T) {
	steps := `
  - record: east.rec
  - message: |` + plotsMessage + `
  - message: |` + plotsMessage + `
  - stop_recording: true
  - message: |` + plotsMessage
	assertions := `
  - {type: output_count, channel: out, count: 3}
  - {type: recorded_count, channel: out, count: 2}
  - {type: recorded_count, channel: other, count: 0}
`
	s, err := ParseScenario([]byte(relayScenario(steps, assertions)))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunClearStats(t *testing.T) {
	steps := `
  - message: |` + plotsMessage + `
  - clear_stats: true
  - message: |` + plotsMessage
	assertions := `
  - {type: counter, stage: relay, counter: received, value: 1}
  - {type: counter, stage: relay, counter: sent.out, value: 1}
  - {type: output_count, count: 2}
`
	s, err := ParseScenario([]byte(relayScenario(steps, assertions)))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	// Sequence numbering restarts with the counters.
	require.Len(t, result.Trace, 2)
	assert.Equal(t, "plots/4/1", result.Trace[0].GUID)
	assert.Equal(t, "plots/4/1", result.Trace[1].GUID)
}

func TestRunPayloadUsesTextForm(t *testing.T) {
	steps := `
  - message: |` + plotsMessage
	assertions := `
  - type: output_contains
    channel: out
    fields:
      tag: east
      records:
        - {range: 10, azimuth: 90, correlated: false}
`
	s, err := ParseScenario([]byte(relayScenario(steps, assertions)))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 1)
	records, ok := result.Trace[0].Payload["records"].([]any)
	require.True(t, ok)
	assert.Len(t, records, 1)
}

func TestRunReportsFailedAssertions(t *testing.T) {
	steps := `
  - message: |` + plotsMessage
	assertions := `
  - {type: output_count, count: 5}
  - {type: final_state, state: Calibrate}
`
	s, err := ParseScenario([]byte(relayScenario(steps, assertions)))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "output_count")
	assert.Contains(t, result.Errors[1], "final_state")
}

func TestRunStoppedPipelineDiscards(t *testing.T) {
	doc := relayScenario(`
  - message: |`+plotsMessage+`
  - state: Run
  - message: |`+plotsMessage, `
  - {type: output_count, count: 1}
  - {type: counter, stage: relay, counter: discarded, value: 1}
  - {type: final_state, state: Run}
`)
	doc = "initial_state: Stop\n" + doc

	s, err := ParseScenario([]byte(doc))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, 2, result.Trace[0].Step)
}

func TestRunRejectsUnknownStageKind(t *testing.T) {
	doc := `
name: broken
description: "no such stage kind"
pipeline:
  name: p
  stages:
    - {name: s, kind: teleport, inputs: [{name: in, type: TSPI}], outputs: [{name: out, type: TSPI}]}
steps:
  - state: Run
assertions:
  - {type: output_count, count: 0}
`
	s, err := ParseScenario([]byte(doc))
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build pipeline")
}

func TestRunRejectsUnparsableMessage(t *testing.T) {
	steps := `
  - message: "type: Nonsense"`
	s, err := ParseScenario([]byte(relayScenario(steps, "  - {type: output_count, count: 0}\n")))
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0")
}
