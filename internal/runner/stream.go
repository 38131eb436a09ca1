package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/sidecar/internal/config"
	"github.com/roach88/sidecar/internal/control"
	"github.com/roach88/sidecar/internal/dispatch"
	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/radar"
)

// dataQueueCapacity bounds inbound data waiting for the stream goroutine.
const dataQueueCapacity = 4096

// ErrNoStages is returned for a pipeline configured without stages.
var ErrNoStages = errors.New("pipeline has no stages")

// Stream is one running pipeline.
type Stream struct {
	name     string
	codec    *msg.Codec
	stages   []*Stage
	inbox    *control.Queue[control.ControlMessage]
	data     *control.Queue[[]byte]
	sinks    []Sink
	recorder *Recorder
	metrics  *control.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	state     control.ProcessingState
	discarded uint64
	session   *Session
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithSinks adds output sinks.
func WithSinks(sinks ...Sink) StreamOption {
	return func(s *Stream) { s.sinks = append(s.sinks, sinks...) }
}

// WithRecorder enables RecordingStateChange handling.
func WithRecorder(r *Recorder) StreamOption {
	return func(s *Stream) { s.recorder = r }
}

// WithStreamMetrics counts sent messages and decode errors.
func WithStreamMetrics(m *control.Metrics) StreamOption {
	return func(s *Stream) { s.metrics = m }
}

// WithStreamLogger sets the stream logger.
func WithStreamLogger(l *slog.Logger) StreamOption {
	return func(s *Stream) { s.logger = l }
}

// WithStreamClock sets the time source used to stamp new messages.
func WithStreamClock(now func() time.Time) StreamOption {
	return func(s *Stream) { s.now = now }
}

// NewStream builds a pipeline from its configuration. Stage i's output
// channels feed the input channels of stage i+1 with the same name; the
// last stage's outputs go to the sinks.
func NewStream(pc config.Pipeline, cfg radar.Config, codec *msg.Codec, opts ...StreamOption) (*Stream, error) {
	if len(pc.Stages) == 0 {
		return nil, fmt.Errorf("pipeline %s: %w", pc.Name, ErrNoStages)
	}

	s := &Stream{
		name:   pc.Name,
		codec:  codec,
		inbox:  control.NewQueue[control.ControlMessage](pc.InboxCapacity),
		data:   control.NewQueue[[]byte](dataQueueCapacity),
		logger: slog.Default(),
		now:    time.Now,
		state:  control.StateInitialize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("pipeline", pc.Name)

	env := stageEnv{origin: cfg.Origin(), now: s.now, logger: s.logger, fail: s.fault}
	s.stages = make([]*Stage, len(pc.Stages))
	for i, sc := range pc.Stages {
		st, err := newStage(sc, env, s.outputOf(i))
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", pc.Name, err)
		}
		s.stages[i] = st
	}
	if err := linkStages(s.stages); err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", pc.Name, err)
	}
	return s, nil
}

// linkStages checks that every output of a stage names an input of the
// next one. Frame stages read raw bytes and only fit at the head.
func linkStages(stages []*Stage) error {
	for i := 1; i < len(stages); i++ {
		prev, next := stages[i-1], stages[i]
		if next.feed != nil {
			return fmt.Errorf("stage %s: %s stage must be first in its pipeline", next.name, next.kind)
		}
		inputs := next.table.Inputs()
		if len(inputs) == 0 {
			continue
		}
		for j, out := range prev.table.Outputs() {
			if !slices.ContainsFunc(inputs, func(in dispatch.Channel) bool { return in.Name == out.Name }) {
				return &dispatch.Error{
					Code:    dispatch.ErrCodeNoMatchingChannel,
					Message: fmt.Sprintf("stage %s output has no input on stage %s", prev.name, next.name),
					Channel: out.Name,
					Index:   j,
				}
			}
		}
	}
	return nil
}

// fault moves the stream to Failure after a message could not be routed.
// Called with s.mu held.
func (s *Stream) fault(err error) {
	s.logger.Error("pipeline failed", "error", err)
	s.state = control.StateFailure
}

// outputOf returns the Output for stage i. It resolves the next stage
// lazily because later stages do not exist yet while stage i is built.
func (s *Stream) outputOf(i int) dispatch.Output {
	return dispatch.OutputFunc(func(m msg.Message, channel int) bool {
		outs := s.stages[i].table.Outputs()
		name := ""
		if channel < len(outs) {
			name = outs[channel].Name
		}
		if i+1 < len(s.stages) {
			return s.stages[i+1].acceptChannel(m, name)
		}
		return s.emit(name, m)
	})
}

// Name returns the pipeline name.
func (s *Stream) Name() string { return s.name }

// Stages returns the pipeline's stages in order.
func (s *Stream) Stages() []*Stage { return s.stages }

// State returns the current processing state.
func (s *Stream) State() control.ProcessingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Put queues a control message.
func (s *Stream) Put(m control.ControlMessage) error {
	return s.inbox.Enqueue(m)
}

// PutHead queues a control message ahead of everything already waiting.
func (s *Stream) PutHead(m control.ControlMessage) error {
	return s.inbox.EnqueueHead(m)
}

// Ingest queues inbound bytes for the first stage: a raw device frame when
// the first stage reads frames, an encoded envelope otherwise.
func (s *Stream) Ingest(b []byte) error {
	return s.data.Enqueue(b)
}

// Run processes control messages and data until a Shutdown message
// arrives or ctx is cancelled.
func (s *Stream) Run(ctx context.Context) error {
	s.logger.Info("pipeline started", "stages", len(s.stages))
	defer s.close()

	for {
		took, stop := s.step()
		if stop {
			return nil
		}
		if took {
			continue
		}
		if s.inbox.Closed() {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.inbox.Wait():
		case <-s.data.Wait():
		}
	}
}

// Drain handles everything already queued without blocking and reports
// whether a Shutdown message was among it. It is for driving a stream
// synchronously and must not be called while Run is active.
func (s *Stream) Drain() bool {
	for {
		took, stop := s.step()
		if stop {
			return true
		}
		if !took {
			return false
		}
	}
}

// step takes one control message, or one data payload when no control is
// waiting.
func (s *Stream) step() (took, stop bool) {
	if m, ok := s.inbox.TryDequeue(); ok {
		stop = s.handle(m)
		m.Release()
		return true, stop
	}
	if b, ok := s.data.TryDequeue(); ok {
		s.process(b)
		return true, false
	}
	return false, false
}

func (s *Stream) close() {
	s.inbox.Close()
	s.data.Close()
	for {
		m, ok := s.inbox.TryDequeue()
		if !ok {
			break
		}
		m.Release()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopRecording()
	s.logger.Info("pipeline stopped")
}

// handle applies one control message and reports whether the stream
// should stop.
func (s *Stream) handle(m control.ControlMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m.Kind {
	case control.KindProcessingStateChange:
		st, err := m.State()
		if err != nil || !st.Valid() {
			s.logger.Warn("ignoring state change", "error", err, "state", st)
			return false
		}
		if st != s.state {
			s.logger.Info("state change", "from", s.state, "to", st)
			s.state = st
		}

	case control.KindClearStats:
		for _, st := range s.stages {
			st.resetCounters()
		}
		s.discarded = 0

	case control.KindRecordingStateChange:
		path, err := m.RecordingPath()
		if err != nil {
			s.logger.Warn("ignoring recording change", "error", err)
			return false
		}
		s.changeRecording(path)

	case control.KindParametersChange:
		pc, err := m.ParameterChange()
		if err != nil {
			s.logger.Warn("ignoring parameter change", "error", err)
			return false
		}
		if pc.Stage < 0 || pc.Stage >= len(s.stages) {
			s.logger.Warn("parameter change for unknown stage", "stage", pc.Stage)
			return false
		}
		st := s.stages[pc.Stage]
		if err := st.apply(pc.Changes); err != nil {
			s.logger.Warn("rejected parameter change", "stage", st.name, "error", err)
			return false
		}
		s.logger.Info("parameters changed", "stage", st.name, "count", len(pc.Changes))

	case control.KindShutdown:
		return true
	}
	return false
}

// changeRecording starts a new session for path, or stops recording when
// path is empty. Called with s.mu held.
func (s *Stream) changeRecording(path string) {
	s.stopRecording()
	if path == "" {
		return
	}
	if s.recorder == nil {
		s.logger.Warn("recording requested but no recordings database is configured", "path", path)
		return
	}
	sess, err := s.recorder.Start(context.Background(), path)
	if err != nil {
		s.logger.Error("failed to start recording", "path", path, "error", err)
		return
	}
	s.session = sess
	s.logger.Info("recording started", "path", path, "recording", sess.ID())
}

func (s *Stream) stopRecording() {
	if s.session == nil {
		return
	}
	if err := s.session.Stop(context.Background()); err != nil {
		s.logger.Error("failed to stop recording", "recording", s.session.ID(), "error", err)
	} else {
		s.logger.Info("recording stopped", "recording", s.session.ID(), "messages", s.session.Written())
	}
	s.session = nil
}

// process runs one inbound payload through the first stage.
func (s *Stream) process(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != control.StateRun {
		s.discarded++
		return
	}

	first := s.stages[0]
	if first.feed != nil {
		first.feed(b)
		return
	}

	m, err := s.codec.Decode(b)
	if err != nil {
		key, _ := msg.PeekTypeKey(b)
		if s.metrics != nil {
			s.metrics.DecodeErrors.WithLabelValues(key.String()).Inc()
		}
		first.received++
		first.dropped++
		s.logger.Warn("dropping undecodable message", "type", key, "error", err)
		return
	}
	first.accept(m)
}

// emit encodes m once and hands it to every sink and the active
// recording. Called with s.mu held.
func (s *Stream) emit(channel string, m msg.Message) bool {
	b, err := s.codec.Encode(m)
	if err != nil {
		s.logger.Error("encode failed", "channel", channel, "type", m.TypeKey(), "error", err)
		return false
	}
	if s.metrics != nil {
		s.metrics.MessagesSent.WithLabelValues(s.name, channel).Inc()
	}

	for _, sink := range s.sinks {
		if err := sink.Publish(s.name, channel, m, b); err != nil {
			s.logger.Warn("sink publish failed", "channel", channel, "error", err)
		}
	}
	if s.session != nil {
		if err := s.session.Write(context.Background(), s.name, channel, m, b); err != nil {
			s.logger.Error("recording write failed", "recording", s.session.ID(), "error", err)
		}
	}
	return true
}

// Recording returns the active recording id, or "".
func (s *Stream) Recording() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return s.session.ID()
}

// FillStatus reports the state and per-stage counters.
func (s *Stream) FillStatus(ps *control.PipelineStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps.State = s.state.String()
	ps.Stages = make([]control.StageStatus, len(s.stages))
	for i, st := range s.stages {
		ps.Stages[i] = control.StageStatus{Name: st.name, Counters: st.counters()}
	}
	if s.discarded > 0 {
		ps.Stages[0].Counters["discarded"] = s.discarded
	}
}

// Parameters returns the current parameters of one stage.
func (s *Stream) Parameters(stage int) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stage < 0 || stage >= len(s.stages) {
		return nil, fmt.Errorf("pipeline %s stage %d: %w", s.name, stage, control.ErrNoSuchStage)
	}
	return s.stages[stage].parameters(), nil
}

// ChangedParameters returns, per stage name, the parameters that differ
// from their defaults. Stages without changes are omitted.
func (s *Stream) ChangedParameters() map[string]map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[string]any)
	for _, st := range s.stages {
		if c := st.changed(); len(c) > 0 {
			out[st.name] = c
		}
	}
	return out
}
