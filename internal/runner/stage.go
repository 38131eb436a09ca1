package runner

import (
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/roach88/sidecar/internal/config"
	"github.com/roach88/sidecar/internal/dispatch"
	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/payload"
	"github.com/roach88/sidecar/internal/radar"
)

// Stage kinds accepted in configuration.
const (
	KindPassthrough = "passthrough"
	KindTSPIFrame   = "tspi-frame"
	KindExtract     = "extract"
)

// Stage counters reported in status documents.
const (
	CounterReceived = "received"
	CounterEmitted  = "emitted"
	CounterDropped  = "dropped"
)

// Stage is one configured processing step of a stream.
type Stage struct {
	name   string
	kind   string
	table  *dispatch.Table
	origin *radar.Origin
	now    func() time.Time
	logger *slog.Logger

	defaults map[string]any
	params   map[string]any

	// feed accepts raw bytes for stages that read a device format instead
	// of encoded envelopes.
	feed func(b []byte) bool

	// fail reports a routing fault to the owning stream.
	fail func(error)

	received uint64
	emitted  uint64
	dropped  uint64
}

// stageEnv carries what every stage kind needs from its stream.
type stageEnv struct {
	origin *radar.Origin
	now    func() time.Time
	logger *slog.Logger
	fail   func(error)
}

type stageBuilder struct {
	defaults func(name string) map[string]any
	install  func(st *Stage) error
}

var stageKinds = map[string]stageBuilder{
	KindPassthrough: {defaults: noParameters, install: installPassthrough},
	KindTSPIFrame:   {defaults: frameParameters, install: installFrame},
	KindExtract:     {defaults: extractParameters, install: installExtract},
}

func channels(cs []config.Channel) []dispatch.Channel {
	out := make([]dispatch.Channel, len(cs))
	for i, c := range cs {
		out[i] = dispatch.Channel{Name: c.Name, Type: c.TypeKey()}
	}
	return out
}

// newStage builds a stage and installs its processors. out receives
// everything the stage sends.
func newStage(sc config.Stage, env stageEnv, out dispatch.Output) (*Stage, error) {
	b, ok := stageKinds[sc.Kind]
	if !ok {
		return nil, fmt.Errorf("stage %s: unknown kind %q", sc.Name, sc.Kind)
	}

	st := &Stage{
		name:     sc.Name,
		kind:     sc.Kind,
		table:    dispatch.NewTable(channels(sc.Inputs), channels(sc.Outputs), out),
		origin:   env.origin,
		now:      env.now,
		logger:   env.logger.With("stage", sc.Name),
		defaults: b.defaults(sc.Name),
		fail:     env.fail,
	}
	if st.fail == nil {
		st.fail = func(error) {}
	}
	st.params = maps.Clone(st.defaults)
	if err := st.apply(sc.Parameters); err != nil {
		return nil, fmt.Errorf("stage %s: %w", sc.Name, err)
	}
	if err := b.install(st); err != nil {
		return nil, fmt.Errorf("stage %s: %w", sc.Name, err)
	}
	return st, nil
}

// Name returns the configured stage name.
func (st *Stage) Name() string { return st.name }

// Kind returns the configured stage kind.
func (st *Stage) Kind() string { return st.kind }

// Table returns the stage's routing table.
func (st *Stage) Table() *dispatch.Table { return st.table }

// inputFor returns the input index that accepts key, or -1.
func (st *Stage) inputFor(key msg.TypeKey) int {
	inputs := st.table.Inputs()
	if len(inputs) == 0 {
		return 0
	}
	for i, ch := range inputs {
		if ch.Type == key {
			return i
		}
	}
	return -1
}

// accept dispatches m on the input channel carrying its kind.
func (st *Stage) accept(m msg.Message) bool {
	return st.dispatch(m, st.inputFor(m.TypeKey()))
}

// acceptChannel dispatches m on the named input channel. A stage without
// inputs accepts everything on its implicit slot.
func (st *Stage) acceptChannel(m msg.Message, name string) bool {
	inputs := st.table.Inputs()
	if len(inputs) == 0 {
		return st.accept(m)
	}
	index := -1
	for i, ch := range inputs {
		if ch.Name == name {
			index = i
			break
		}
	}
	return st.dispatch(m, index)
}

// dispatch hands m to the processor at index. A message with nowhere to go
// is a configuration fault, not a drop: the stream is told and stops
// processing data.
func (st *Stage) dispatch(m msg.Message, index int) bool {
	st.received++
	ok, err := st.table.Dispatch(m, index)
	if err != nil {
		st.dropped++
		st.fail(fmt.Errorf("stage %s: %w", st.name, err))
		return false
	}
	if !ok {
		st.dropped++
	}
	return ok
}

func (st *Stage) send(m msg.Message, index int) bool {
	ok, err := st.table.Send(m, index)
	if err != nil {
		st.logger.Error("send failed", "index", index, "error", err)
		return false
	}
	// The one-past-last index is accepted but goes nowhere.
	if index != 0 && index == len(st.table.Outputs()) {
		return ok
	}
	st.emitted++
	return ok
}

func (st *Stage) resetCounters() {
	st.received, st.emitted, st.dropped = 0, 0, 0
	st.table.ResetCounters()
}

// counters returns a snapshot for the status document. Output channels
// report their sequence counters as "sent.<channel>".
func (st *Stage) counters() map[string]uint64 {
	c := map[string]uint64{
		CounterReceived: st.received,
		CounterEmitted:  st.emitted,
		CounterDropped:  st.dropped,
	}
	for i, ch := range st.table.Outputs() {
		c["sent."+ch.Name] = uint64(st.table.Sent(i))
	}
	return c
}

// Parameters

func noParameters(string) map[string]any { return map[string]any{} }

func frameParameters(string) map[string]any {
	// 0 accepts every transducer.
	return map[string]any{"system_id": float64(0)}
}

func extractParameters(name string) map[string]any {
	return map[string]any{
		"threshold": float64(100),
		"tag":       name,
	}
}

// normalizeParameter folds the numeric kinds that YAML and JSON decoders
// produce into float64.
func normalizeParameter(v any) (any, error) {
	switch x := v.(type) {
	case bool, string, float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	default:
		return nil, fmt.Errorf("unsupported parameter type %T", v)
	}
}

// apply validates every change against the known parameters and then
// installs all of them. A rejected change leaves the parameters untouched.
func (st *Stage) apply(changes map[string]any) error {
	next := make(map[string]any, len(changes))
	for k, v := range changes {
		cur, ok := st.params[k]
		if !ok {
			return fmt.Errorf("unknown parameter %q", k)
		}
		nv, err := normalizeParameter(v)
		if err != nil {
			return fmt.Errorf("parameter %q: %w", k, err)
		}
		if fmt.Sprintf("%T", nv) != fmt.Sprintf("%T", cur) {
			return fmt.Errorf("parameter %q: want %T, got %T", k, cur, v)
		}
		next[k] = nv
	}
	maps.Copy(st.params, next)
	return nil
}

// parameters returns a copy of the current values.
func (st *Stage) parameters() map[string]any { return maps.Clone(st.params) }

// changed returns the parameters whose values differ from the defaults.
func (st *Stage) changed() map[string]any {
	out := make(map[string]any)
	for k, v := range st.params {
		if st.defaults[k] != v {
			out[k] = v
		}
	}
	return out
}

func (st *Stage) float(name string) float64 {
	f, _ := st.params[name].(float64)
	return f
}

func (st *Stage) text(name string) string {
	s, _ := st.params[name].(string)
	return s
}

// Kinds

func requireOutput(st *Stage, key msg.TypeKey) error {
	outs := st.table.Outputs()
	if len(outs) == 0 {
		return fmt.Errorf("%s stage needs an output channel", st.kind)
	}
	if key != msg.TypeInvalid && outs[0].Type != key {
		return fmt.Errorf("%s stage output %s carries %s, want %s", st.kind, outs[0].Name, outs[0].Type, key)
	}
	return nil
}

// installPassthrough forwards every input unchanged on output 0.
func installPassthrough(st *Stage) error {
	if err := requireOutput(st, msg.TypeInvalid); err != nil {
		return err
	}
	forward := func(m msg.Message) bool { return st.send(m, 0) }

	inputs := st.table.Inputs()
	if len(inputs) == 0 {
		return st.table.Register(0, dispatch.ProcessorFunc{Key: msg.TypeInvalid, Fn: forward})
	}
	for i, ch := range inputs {
		if err := st.table.Register(i, dispatch.ProcessorFunc{Key: ch.Type, Fn: forward}); err != nil {
			return err
		}
	}
	return nil
}

// installFrame turns raw legacy transducer frames into TSPI reports.
// Frames are fed directly, so the stage takes no input channels.
func installFrame(st *Stage) error {
	if len(st.table.Inputs()) != 0 {
		return fmt.Errorf("%s stage reads raw frames and takes no inputs", st.kind)
	}
	if err := requireOutput(st, msg.TypeTSPI); err != nil {
		return err
	}
	st.feed = func(b []byte) bool {
		st.received++
		h := msg.NewHeader(msg.NewGUID(st.name, msg.TypeTSPI, 0), st.now(), nil)
		t, ok := payload.DecodeFrame(h, st.origin, b)
		if !ok {
			st.dropped++
			st.logger.Debug("malformed frame", "size", len(b))
			return false
		}
		if want := uint16(st.float("system_id")); want != 0 && t.Attributes["system_id"] != fmt.Sprintf("0x%04X", want) {
			st.dropped++
			return false
		}
		return st.send(t, 0)
	}
	return nil
}

// installExtract thresholds Video samples into plot extractions. Every gate
// at or above the threshold becomes one record at the pulse azimuth.
func installExtract(st *Stage) error {
	if err := requireOutput(st, msg.TypeExtractions); err != nil {
		return err
	}
	proc := dispatch.ProcessorFunc{Key: msg.TypeVideo, Fn: func(m msg.Message) bool {
		v, ok := m.(*payload.Video)
		if !ok {
			return false
		}
		threshold := st.float("threshold")
		h := msg.NewHeader(msg.NewGUID(st.name, msg.TypeExtractions, 0), st.now(), v)
		x := payload.NewExtractions(h, st.text("tag"))
		az := v.AzimuthStart()
		for gate, sample := range v.Samples {
			if float64(sample) >= threshold {
				x.Append(payload.NewExtraction(v.RIU.IRIGTime, v.RangeAt(gate), az, 0))
			}
		}
		if x.Len() == 0 {
			return true
		}
		return st.send(x, 0)
	}}
	return st.table.RegisterType(proc)
}
