package harness

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sidecar/internal/control"
	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/payload"
	"github.com/roach88/sidecar/internal/runner"
	"github.com/roach88/sidecar/internal/store"
	"github.com/roach88/sidecar/internal/testutil"
)

// recorderName is the runner name stamped on scenario recordings.
const recorderName = "harness"

// Harness is the test execution engine.
// It drives one stream synchronously: each step queues its message or
// control request and the stream drains before the next step, so traces
// are identical across runs.
type Harness struct {
	stream *runner.Stream
	codec  *msg.Codec
	clock  *testutil.Clock
	result *Result
	step   int
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh in-memory recordings database.
//
// Execution flow:
// 1. Build the codec and the pipeline on a manual clock
// 2. Request the initial state
// 3. Apply each step and drain the pipeline
// 4. Capture the final state and counters
// 5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewClock(scenario.Start)
	codec, err := payload.NewCodec(scenario.Radar, msg.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to build codec: %w", err)
	}

	h := &Harness{
		codec:  codec,
		clock:  clock,
		result: NewResult(),
		step:   -1,
	}
	h.stream, err = runner.NewStream(scenario.Pipeline, scenario.Radar, codec,
		runner.WithSinks(h),
		runner.WithRecorder(runner.NewRecorder(st, recorderName, clock.Now)),
		runner.WithStreamLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), // Suppress logs in tests
		runner.WithStreamClock(clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	initial, err := control.ParseProcessingState(scenario.InitialState)
	if err != nil {
		return nil, err
	}
	if err := h.put(control.NewStateChange(initial)); err != nil {
		return nil, err
	}
	h.stream.Drain()

	for i, step := range scenario.Steps {
		h.step = i
		if err := h.execute(step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		h.stream.Drain()
	}

	ps := control.PipelineStatus{Name: h.stream.Name()}
	h.stream.FillStatus(&ps)
	h.result.State = ps.State
	for _, stage := range ps.Stages {
		h.result.Counters[stage.Name] = stage.Counters
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   context.Background(),
	}
	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(errMsg)
	}

	return h.result, nil
}

// execute queues one step's message or control request.
func (h *Harness) execute(step Step) error {
	switch {
	case step.Message != "":
		m, err := h.codec.DecodeText([]byte(step.Message))
		if err != nil {
			return fmt.Errorf("parse message: %w", err)
		}
		b, err := h.codec.Encode(m)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		return h.stream.Ingest(b)

	case step.Frame != "":
		b, err := hex.DecodeString(strings.Join(strings.Fields(step.Frame), ""))
		if err != nil {
			return fmt.Errorf("parse frame: %w", err)
		}
		return h.stream.Ingest(b)

	case step.State != "":
		st, err := control.ParseProcessingState(step.State)
		if err != nil {
			return err
		}
		return h.put(control.NewStateChange(st))

	case step.Parameters != nil:
		m, err := control.NewParametersChange(step.Parameters.Stage, step.Parameters.Changes)
		if err != nil {
			return err
		}
		return h.put(m)

	case step.ClearStats:
		return h.put(control.NewClearStats())

	case step.Record != "":
		return h.put(control.NewRecordingChange(step.Record))

	case step.StopRecording:
		return h.put(control.NewRecordingChange(""))

	case step.Advance > 0:
		h.clock.Advance(step.Advance)
		return nil
	}
	return fmt.Errorf("step has no action")
}

// put queues m, releasing it when the stream refuses it.
func (h *Harness) put(m control.ControlMessage) error {
	if err := h.stream.Put(m); err != nil {
		m.Release()
		return err
	}
	return nil
}

// Publish implements runner.Sink by appending m to the trace.
func (h *Harness) Publish(pipeline, channel string, m msg.Message, _ []byte) error {
	event := TraceEvent{
		Step:     h.step,
		Pipeline: pipeline,
		Channel:  channel,
		Type:     m.TypeKey().String(),
		GUID:     m.Header().GUID.String(),
	}
	p, err := h.payloadOf(m)
	if err != nil {
		return err
	}
	event.Payload = p
	h.result.AddOutput(event)
	return nil
}

// payloadOf returns the payload section of m's text form as plain values.
func (h *Harness) payloadOf(m msg.Message) (map[string]any, error) {
	text, err := h.codec.EncodeText(m)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Payload map[string]any `yaml:"payload"`
	}
	if err := yaml.Unmarshal(text, &doc); err != nil {
		return nil, fmt.Errorf("read text form: %w", err)
	}
	return doc.Payload, nil
}
