package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/sidecar/internal/config"
	"github.com/roach88/sidecar/internal/control"
	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/payload"
	"github.com/roach88/sidecar/internal/store"
)

// shutdownGrace bounds how long the HTTP server may take to drain.
const shutdownGrace = 5 * time.Second

// App is one runner process.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	ring     *control.LogRing
	registry *prometheus.Registry
	metrics  *control.Metrics
	codec    *msg.Codec
	now      func() time.Time

	streams     []*Stream
	broadcaster *control.Broadcaster
	aggregator  *control.Aggregator
	service     *control.Service
	emitter     *StatusEmitter
	server      *Server

	store *store.Store
	nats  *NATSSink
	sinks []Sink

	mu     sync.Mutex
	cancel context.CancelFunc
}

// AppOption configures an App.
type AppOption func(*App)

// WithLogger sets the base logger. The App adds the status log ring as a
// second handler.
func WithLogger(l *slog.Logger) AppOption {
	return func(a *App) { a.logger = l }
}

// WithRegistry sets the Prometheus registry metrics are registered on.
func WithRegistry(r *prometheus.Registry) AppOption {
	return func(a *App) { a.registry = r }
}

// WithClock sets the time source for messages, status and recordings.
func WithClock(now func() time.Time) AppOption {
	return func(a *App) { a.now = now }
}

// WithAppSinks adds sinks every stream publishes to.
func WithAppSinks(sinks ...Sink) AppOption {
	return func(a *App) { a.sinks = append(a.sinks, sinks...) }
}

// NewApp builds every stream and the control plane from cfg. It opens the
// recordings database and the NATS connection when they are configured.
func NewApp(cfg *config.Config, opts ...AppOption) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
	}

	metrics, err := control.NewMetrics(a.registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	a.metrics = metrics
	a.ring = control.NewLogRing(cfg.LogRingSize, control.WithDropHook(metrics.LogRecordsDropped.Inc))
	a.logger = slog.New(control.Fanout(a.logger.Handler(), a.ring)).With("runner", cfg.Name)

	a.codec, err = payload.NewCodec(cfg.Radar, msg.WithClock(a.now))
	if err != nil {
		return nil, fmt.Errorf("build codec: %w", err)
	}

	if err := a.openOutputs(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildStreams(); err != nil {
		a.Close()
		return nil, err
	}

	targets := make([]control.Target, len(a.streams))
	pipelines := make([]control.Pipeline, len(a.streams))
	sources := make([]control.StatusSource, len(a.streams))
	for i, s := range a.streams {
		targets[i], pipelines[i], sources[i] = s, s, s
	}

	a.broadcaster = control.NewBroadcaster(targets, control.WithLogger(a.logger), control.WithMetrics(metrics))
	a.aggregator = control.NewAggregator(cfg.Name, sources, a.ring, control.WithStatusClock(a.now))
	a.emitter = NewStatusEmitter(a.aggregator.Collect, cfg.StatusInterval, a.logger)
	a.service = control.NewService(pipelines, a.broadcaster,
		control.WithServiceLogger(a.logger),
		control.WithRecordingHook(a.emitter.Emit),
		control.WithShutdown(a.stop),
	)
	a.server = NewServer(a.service, a.emitter, a.store, a.registry, a.logger)
	return a, nil
}

func (a *App) openOutputs() error {
	if a.cfg.RecordingsDB != "" {
		st, err := store.Open(a.cfg.RecordingsDB)
		if err != nil {
			return fmt.Errorf("open recordings: %w", err)
		}
		a.store = st
	}
	if a.cfg.NATSURL != "" {
		ns, err := ConnectNATS(a.cfg.NATSURL, a.cfg.NATSPrefix, a.cfg.Name, a.logger)
		if err != nil {
			return err
		}
		a.nats = ns
		a.sinks = append(a.sinks, ns)
	}
	return nil
}

func (a *App) buildStreams() error {
	opts := []StreamOption{
		WithSinks(a.sinks...),
		WithStreamMetrics(a.metrics),
		WithStreamLogger(a.logger),
		WithStreamClock(a.now),
	}
	if a.store != nil {
		opts = append(opts, WithRecorder(NewRecorder(a.store, a.cfg.Name, a.now)))
	}

	a.streams = make([]*Stream, 0, len(a.cfg.Pipelines))
	for _, pc := range a.cfg.Pipelines {
		s, err := NewStream(pc, a.cfg.Radar, a.codec, opts...)
		if err != nil {
			return err
		}
		a.streams = append(a.streams, s)
	}
	return nil
}

// Logger returns the process logger, which also feeds status documents.
func (a *App) Logger() *slog.Logger { return a.logger }

// Streams returns the pipelines in configuration order.
func (a *App) Streams() []*Stream { return a.streams }

// Service returns the control RPC surface.
func (a *App) Service() *control.Service { return a.service }

// Emitter returns the status emitter.
func (a *App) Emitter() *StatusEmitter { return a.emitter }

// Handler returns the HTTP control surface.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Codec returns the codec streams encode and decode with.
func (a *App) Codec() *msg.Codec { return a.codec }

// Stream returns the pipeline with the given name.
func (a *App) Stream(name string) (*Stream, bool) {
	for _, s := range a.streams {
		if s.name == name {
			return s, true
		}
	}
	return nil, false
}

// Run starts every stream, the status emitter, the NATS ingest
// subscriptions and the HTTP surface, then requests the configured initial
// state. It returns after a Shutdown RPC or when ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range a.streams {
		g.Go(func() error { return s.Run(gctx) })
	}
	g.Go(func() error { return a.emitter.Run(gctx) })

	if a.nats != nil {
		subs, err := a.subscribe()
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		defer func() {
			for _, sub := range subs {
				_ = sub.Unsubscribe()
			}
		}()
	}

	if addr := a.cfg.ControlAddress; addr != "" {
		srv := &http.Server{Addr: addr, Handler: a.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			a.logger.Info("control surface listening", "address", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("control surface: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	initial, err := control.ParseProcessingState(a.cfg.InitialState)
	if err != nil {
		initial = control.StateRun
	}
	a.broadcaster.Broadcast(control.NewStateChange(initial))

	err = g.Wait()
	a.logger.Info("runner stopped")
	return err
}

func (a *App) subscribe() ([]*nats.Subscription, error) {
	subs := make([]*nats.Subscription, 0, len(a.streams))
	for _, s := range a.streams {
		sub, err := a.nats.Subscribe(s.name, func(b []byte) {
			if err := s.Ingest(b); err != nil {
				s.logger.Warn("ingest rejected", "error", err)
			}
		})
		if err != nil {
			for _, prev := range subs {
				_ = prev.Unsubscribe()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// stop cancels Run. It is the Shutdown RPC's final step.
func (a *App) stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// Close releases the NATS connection and the recordings database. Call it
// after Run returns.
func (a *App) Close() error {
	var errs []error
	if a.nats != nil {
		errs = append(errs, a.nats.Close())
		a.nats = nil
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	return errors.Join(errs...)
}
