package control

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrNoSuchPipeline is returned for a pipeline index out of range.
	ErrNoSuchPipeline = errors.New("no such pipeline")

	// ErrNoSuchStage is returned for a stage index out of range.
	ErrNoSuchStage = errors.New("no such stage")

	// ErrInvalidState is returned for a processing state that cannot be
	// requested.
	ErrInvalidState = errors.New("invalid processing state")
)

// Pipeline is the view of a pipeline the RPC surface needs.
type Pipeline interface {
	Target

	// PutHead queues m ahead of everything already waiting.
	PutHead(m ControlMessage) error

	// Parameters returns the current parameter values of one stage.
	Parameters(stage int) (map[string]any, error)

	// ChangedParameters returns, per stage name, the parameters whose
	// values differ from their configured defaults.
	ChangedParameters() map[string]map[string]any
}

// Service implements the control RPC methods.
type Service struct {
	pipelines   []Pipeline
	broadcaster *Broadcaster
	logger      *slog.Logger

	// onRecording runs after a recording change is broadcast, so a fresh
	// status document reflects it.
	onRecording func()
	shutdown    func()
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger for RPC calls.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithRecordingHook sets a function run after every recording change.
func WithRecordingHook(fn func()) ServiceOption {
	return func(s *Service) { s.onRecording = fn }
}

// WithShutdown sets the function that stops the process.
func WithShutdown(fn func()) ServiceOption {
	return func(s *Service) { s.shutdown = fn }
}

// NewService creates the RPC surface over pipelines.
func NewService(pipelines []Pipeline, b *Broadcaster, opts ...ServiceOption) *Service {
	s := &Service{
		pipelines:   append([]Pipeline(nil), pipelines...),
		broadcaster: b,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StateChange requests a processing state on every pipeline.
func (s *Service) StateChange(state int) error {
	ps := ProcessingState(state)
	if !ps.Valid() {
		return fmt.Errorf("state %d: %w", state, ErrInvalidState)
	}
	s.logger.Info("stateChange", "state", ps)
	s.broadcaster.Broadcast(NewStateChange(ps))
	return nil
}

// ClearStats asks every pipeline to reset its counters.
func (s *Service) ClearStats() {
	s.logger.Info("clearStats")
	s.broadcaster.Broadcast(NewClearStats())
}

// RecordingChange starts recording into path, or stops when path is empty.
func (s *Service) RecordingChange(path string) {
	s.logger.Info("recordingChange", "path", path)
	s.broadcaster.Broadcast(NewRecordingChange(path))
	if s.onRecording != nil {
		s.onRecording()
	}
}

// Shutdown stops every pipeline and then the process.
func (s *Service) Shutdown() {
	s.logger.Warn("shutdown requested")
	s.broadcaster.Broadcast(NewShutdown())
	if s.shutdown != nil {
		s.shutdown()
	}
}

func (s *Service) pipeline(index int) (Pipeline, error) {
	if index < 0 || index >= len(s.pipelines) {
		return nil, fmt.Errorf("pipeline %d: %w", index, ErrNoSuchPipeline)
	}
	return s.pipelines[index], nil
}

// GetParameters returns the current parameters of one stage.
func (s *Service) GetParameters(pipeline, stage int) (map[string]any, error) {
	p, err := s.pipeline(pipeline)
	if err != nil {
		return nil, err
	}
	return p.Parameters(stage)
}

// SetParameters queues a parameter change at the head of the pipeline's
// inbox. The change is validated and applied by the pipeline.
func (s *Service) SetParameters(pipeline, stage int, changes map[string]any) error {
	p, err := s.pipeline(pipeline)
	if err != nil {
		return err
	}
	if _, err := p.Parameters(stage); err != nil {
		return err
	}
	s.logger.Info("setParameters", "pipeline", p.Name(), "stage", stage, "count", len(changes))

	m, err := NewParametersChange(stage, changes)
	if err != nil {
		return err
	}
	if err := p.PutHead(m); err != nil {
		m.Release()
		return fmt.Errorf("queue parameter change for %s: %w", p.Name(), err)
	}
	return nil
}

// GetChangedParameters returns one entry per pipeline, in pipeline order.
func (s *Service) GetChangedParameters() []map[string]map[string]any {
	out := make([]map[string]map[string]any, len(s.pipelines))
	for i, p := range s.pipelines {
		out[i] = p.ChangedParameters()
	}
	return out
}
