package dispatch

import (
	"fmt"

	"github.com/roach88/sidecar/internal/msg"
)

// Channel is one configured input or output slot of a stage.
type Channel struct {
	Name string
	Type msg.TypeKey
}

// Processor is the stage logic bound to one input channel.
type Processor interface {
	// Type is the message kind the processor accepts.
	Type() msg.TypeKey

	// Process handles one message and reports whether it was consumed.
	Process(m msg.Message) bool
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc struct {
	Key msg.TypeKey
	Fn  func(m msg.Message) bool
}

func (p ProcessorFunc) Type() msg.TypeKey          { return p.Key }
func (p ProcessorFunc) Process(m msg.Message) bool { return p.Fn(m) }

// Output receives messages that a stage sends. The pipeline owns the
// implementation; it usually hands the message to the next stage or to
// the configured sinks.
type Output interface {
	Deliver(m msg.Message, channel int) bool
}

// OutputFunc adapts a function to Output.
type OutputFunc func(m msg.Message, channel int) bool

func (f OutputFunc) Deliver(m msg.Message, channel int) bool { return f(m, channel) }

// Table is the per-stage routing table.
type Table struct {
	inputs  []Channel
	outputs []Channel
	out     Output

	slots    []Processor
	counters []uint32
	active   int
}

// NewTable creates a table for a stage with the given channels. A stage
// with no inputs still has one implicit slot.
func NewTable(inputs, outputs []Channel, out Output) *Table {
	n := len(inputs)
	if n == 0 {
		n = 1
	}
	return &Table{
		inputs:  append([]Channel(nil), inputs...),
		outputs: append([]Channel(nil), outputs...),
		out:     out,
		slots:   make([]Processor, n),
		active:  -1,
	}
}

// Inputs returns the configured input channels.
func (t *Table) Inputs() []Channel { return t.inputs }

// Outputs returns the configured output channels.
func (t *Table) Outputs() []Channel { return t.outputs }

// Active returns the input index most recently dispatched, or -1.
func (t *Table) Active() int { return t.active }

// Processor returns the processor installed at index, if any.
func (t *Table) Processor(index int) (Processor, bool) {
	if index < 0 || index >= len(t.slots) || t.slots[index] == nil {
		return nil, false
	}
	return t.slots[index], true
}

// Register installs p on the input channel at index.
func (t *Table) Register(index int, p Processor) error {
	if len(t.inputs) == 0 {
		if index != 0 {
			return &Error{Code: ErrCodeNoMatchingChannel, Message: "stage has no input channels", Index: index}
		}
		return t.install(0, "", p)
	}
	if index < 0 || index >= len(t.inputs) {
		return &Error{
			Code:    ErrCodeNoMatchingChannel,
			Message: fmt.Sprintf("index out of range [0,%d)", len(t.inputs)),
			Index:   index,
		}
	}
	ch := t.inputs[index]
	if ch.Type != p.Type() {
		return &Error{
			Code:    ErrCodeTypeMismatch,
			Message: fmt.Sprintf("channel carries %s, processor expects %s", ch.Type, p.Type()),
			Channel: ch.Name,
			Index:   index,
		}
	}
	return t.install(index, ch.Name, p)
}

// RegisterName installs p on the input channel named name.
func (t *Table) RegisterName(name string, p Processor) error {
	for i, ch := range t.inputs {
		if ch.Name == name {
			return t.Register(i, p)
		}
	}
	return &Error{Code: ErrCodeNoMatchingChannel, Message: "no input channel with that name", Channel: name, Index: -1}
}

// RegisterType installs p on the first input channel whose type matches.
// With no configured inputs it installs on the implicit slot 0.
func (t *Table) RegisterType(p Processor) error {
	if len(t.inputs) == 0 {
		return t.install(0, "", p)
	}
	for i, ch := range t.inputs {
		if ch.Type == p.Type() {
			return t.install(i, ch.Name, p)
		}
	}
	return &Error{
		Code:    ErrCodeNoMatchingChannel,
		Message: fmt.Sprintf("no input channel carries %s", p.Type()),
		Index:   -1,
	}
}

func (t *Table) install(index int, name string, p Processor) error {
	if t.slots[index] != nil {
		return &Error{Code: ErrCodeDuplicateProcessor, Message: "slot already has a processor", Channel: name, Index: index}
	}
	t.slots[index] = p
	return nil
}

// Dispatch hands m to the processor at index and returns its outcome.
func (t *Table) Dispatch(m msg.Message, index int) (bool, error) {
	p, ok := t.Processor(index)
	if !ok {
		return false, &Error{Code: ErrCodeUnroutedChannel, Message: "no processor registered", Index: index}
	}
	t.active = index
	return p.Process(m), nil
}

// Send stamps the next sequence number for channel index on m and hands
// it to the output.
func (t *Table) Send(m msg.Message, index int) (bool, error) {
	if index < 0 {
		return false, &Error{Code: ErrCodeUnroutedChannel, Message: "negative output index", Index: index}
	}
	if index != 0 && index == len(t.outputs) {
		return true, nil
	}
	if index >= len(t.counters) {
		grown := make([]uint32, index+1)
		copy(grown, t.counters)
		t.counters = grown
	}
	t.counters[index]++
	m.Header().SetSequence(t.counters[index])
	if t.out == nil {
		return true, nil
	}
	return t.out.Deliver(m, index), nil
}

// Sent returns the number of messages sent on output index.
func (t *Table) Sent(index int) uint32 {
	if index < 0 || index >= len(t.counters) {
		return 0
	}
	return t.counters[index]
}

// ResetCounters clears every output sequence counter.
func (t *Table) ResetCounters() {
	clear(t.counters)
}
