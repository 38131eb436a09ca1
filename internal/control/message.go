package control

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sidecar/internal/msg"
)

// Kind identifies a control message.
type Kind int

const (
	KindProcessingStateChange Kind = iota + 1
	KindClearStats
	KindRecordingStateChange
	KindParametersChange
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindProcessingStateChange:
		return "ProcessingStateChange"
	case KindClearStats:
		return "ClearStats"
	case KindRecordingStateChange:
		return "RecordingStateChange"
	case KindParametersChange:
		return "ParametersChange"
	case KindShutdown:
		return "Shutdown"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// ProcessingState is the operating mode requested of every pipeline.
type ProcessingState int

const (
	StateInvalid ProcessingState = iota
	StateInitialize
	StateAutoDiagnostic
	StateCalibrate
	StateRun
	StateStop
	StateFailure
	numStates
)

var stateNames = [...]string{
	StateInvalid:        "Invalid",
	StateInitialize:     "Initialize",
	StateAutoDiagnostic: "AutoDiagnostic",
	StateCalibrate:      "Calibrate",
	StateRun:            "Run",
	StateStop:           "Stop",
	StateFailure:        "Failure",
}

func (s ProcessingState) String() string {
	if s >= 0 && s < numStates {
		return stateNames[s]
	}
	return "ProcessingState(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s can be requested. Invalid is not requestable.
func (s ProcessingState) Valid() bool {
	return s > StateInvalid && s < numStates
}

// ParseProcessingState resolves a state name such as "Run".
func ParseProcessingState(name string) (ProcessingState, error) {
	for i, n := range stateNames {
		if n == name {
			return ProcessingState(i), nil
		}
	}
	return StateInvalid, fmt.Errorf("unknown processing state %q", name)
}

// ControlMessage is one control request. Payload is shared between every
// pipeline that receives the message.
type ControlMessage struct {
	Kind    Kind
	Payload *Buffer
}

// Release releases the payload handle.
func (m ControlMessage) Release() {
	if m.Payload != nil {
		m.Payload.Release()
	}
}

// Clone returns a message with a new handle on the same payload.
func (m ControlMessage) Clone() ControlMessage {
	return ControlMessage{Kind: m.Kind, Payload: m.Payload.Clone()}
}

func newControl(kind Kind, w *msg.Writer) ControlMessage {
	var b []byte
	if w != nil {
		b = w.Bytes()
	}
	return ControlMessage{Kind: kind, Payload: NewBuffer(b, nil)}
}

// NewStateChange requests a processing state change.
func NewStateChange(s ProcessingState) ControlMessage {
	w := msg.NewWriter(4)
	w.Int32(int32(s))
	return newControl(KindProcessingStateChange, w)
}

// NewClearStats requests that every stage reset its counters.
func NewClearStats() ControlMessage { return newControl(KindClearStats, nil) }

// NewRecordingChange starts recording to path, or stops recording when
// path is empty.
func NewRecordingChange(path string) ControlMessage {
	w := msg.NewWriter(4 + len(path))
	w.String(path)
	return newControl(KindRecordingStateChange, w)
}

// NewShutdown asks every pipeline to stop.
func NewShutdown() ControlMessage { return newControl(KindShutdown, nil) }

// ParameterChange carries new values for one stage.
type ParameterChange struct {
	Stage   int            `yaml:"stage"`
	Changes map[string]any `yaml:"changes"`
}

// NewParametersChange requests new parameter values on one stage.
func NewParametersChange(stage int, changes map[string]any) (ControlMessage, error) {
	b, err := yaml.Marshal(ParameterChange{Stage: stage, Changes: changes})
	if err != nil {
		return ControlMessage{}, fmt.Errorf("encode parameter change: %w", err)
	}
	return ControlMessage{Kind: KindParametersChange, Payload: NewBuffer(b, nil)}, nil
}

// State decodes a ProcessingStateChange payload.
func (m ControlMessage) State() (ProcessingState, error) {
	if m.Kind != KindProcessingStateChange {
		return StateInvalid, fmt.Errorf("%s carries no state", m.Kind)
	}
	r := msg.NewReader(m.Payload.Bytes())
	s := ProcessingState(r.Int32())
	if err := r.Err(); err != nil {
		return StateInvalid, fmt.Errorf("decode state: %w", err)
	}
	return s, nil
}

// RecordingPath decodes a RecordingStateChange payload.
func (m ControlMessage) RecordingPath() (string, error) {
	if m.Kind != KindRecordingStateChange {
		return "", fmt.Errorf("%s carries no recording path", m.Kind)
	}
	r := msg.NewReader(m.Payload.Bytes())
	path := r.String()
	if err := r.Err(); err != nil {
		return "", fmt.Errorf("decode recording path: %w", err)
	}
	return path, nil
}

// ParameterChange decodes a ParametersChange payload.
func (m ControlMessage) ParameterChange() (ParameterChange, error) {
	var pc ParameterChange
	if m.Kind != KindParametersChange {
		return pc, fmt.Errorf("%s carries no parameters", m.Kind)
	}
	if err := yaml.Unmarshal(m.Payload.Bytes(), &pc); err != nil {
		return pc, fmt.Errorf("decode parameter change: %w", err)
	}
	return pc, nil
}
