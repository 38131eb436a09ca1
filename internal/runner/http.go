package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/sidecar/internal/control"
	"github.com/roach88/sidecar/internal/store"
)

// maxRPCBody bounds the JSON body of an RPC request.
const maxRPCBody = 1 << 20

// rpcResponse is the body of every /rpc reply.
type rpcResponse struct {
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// rpcRequest holds the union of every method's arguments.
type rpcRequest struct {
	State    json.RawMessage `json:"state"`
	Path     string          `json:"path"`
	Pipeline int             `json:"pipeline"`
	Stage    int             `json:"stage"`
	Changes  map[string]any  `json:"changes"`
}

type rpcMethod func(req rpcRequest) (any, error)

// errBadRequest marks RPC argument errors.
var errBadRequest = errors.New("bad request")

// Server is the HTTP control surface.
type Server struct {
	service  *control.Service
	emitter  *StatusEmitter
	store    *store.Store
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	methods  map[string]rpcMethod
}

// NewServer creates the control surface. st may be nil when recording is
// not configured.
func NewServer(svc *control.Service, e *StatusEmitter, st *store.Store, g prometheus.Gatherer, logger *slog.Logger) *Server {
	s := &Server{service: svc, emitter: e, store: st, gatherer: g, logger: logger}
	s.methods = map[string]rpcMethod{
		"stateChange":          s.stateChange,
		"clearStats":           s.clearStats,
		"recordingChange":      s.recordingChange,
		"shutdown":             s.shutdown,
		"getParameters":        s.getParameters,
		"setParameters":        s.setParameters,
		"getChangedParameters": s.getChangedParameters,
	}
	return s
}

// Handler returns the routes:
//
//	GET  /status       latest status document
//	GET  /status/ws    status document stream
//	POST /rpc/{method} control RPC
//	GET  /recordings   recordings in the store
//	GET  /metrics      Prometheus metrics
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /status/ws", s.emitter.ServeWS)
	mux.HandleFunc("POST /rpc/{method}", s.handleRPC)
	mux.HandleFunc("GET /recordings", s.handleRecordings)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.emitter.Latest())
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, rpcResponse{Error: "no recordings database configured"})
		return
	}
	recs, err := s.store.ListRecordings(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, rpcResponse{Error: err.Error()})
		return
	}
	if recs == nil {
		recs = []store.Recording{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	resp := rpcResponse{ID: requestID()}
	name := r.PathValue("method")

	method, ok := s.methods[name]
	if !ok {
		resp.Error = fmt.Sprintf("unknown method %q", name)
		writeJSON(w, http.StatusNotFound, resp)
		return
	}

	var req rpcRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRPCBody))
	if err == nil && len(body) > 0 {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		resp.Error = "decode request: " + err.Error()
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	s.logger.Debug("rpc", "id", resp.ID, "method", name)
	result, err := method(req)
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, rpcStatus(err), resp)
		return
	}
	resp.Result = result
	writeJSON(w, http.StatusOK, resp)
}

func requestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func rpcStatus(err error) int {
	switch {
	case errors.Is(err, control.ErrNoSuchPipeline), errors.Is(err, control.ErrNoSuchStage):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest), errors.Is(err, control.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, control.ErrQueueFull), errors.Is(err, control.ErrQueueClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// parseState accepts a state as its number or its name.
func parseState(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w: state is required", errBadRequest)
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return 0, fmt.Errorf("%w: state must be a number or a name", errBadRequest)
	}
	st, err := control.ParseProcessingState(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return int(st), nil
}

func (s *Server) stateChange(req rpcRequest) (any, error) {
	n, err := parseState(req.State)
	if err != nil {
		return nil, err
	}
	if err := s.service.StateChange(n); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *Server) clearStats(rpcRequest) (any, error) {
	s.service.ClearStats()
	return true, nil
}

func (s *Server) recordingChange(req rpcRequest) (any, error) {
	s.service.RecordingChange(req.Path)
	return true, nil
}

func (s *Server) shutdown(rpcRequest) (any, error) {
	s.service.Shutdown()
	return true, nil
}

func (s *Server) getParameters(req rpcRequest) (any, error) {
	return s.service.GetParameters(req.Pipeline, req.Stage)
}

func (s *Server) setParameters(req rpcRequest) (any, error) {
	if len(req.Changes) == 0 {
		return nil, fmt.Errorf("%w: changes are required", errBadRequest)
	}
	if err := s.service.SetParameters(req.Pipeline, req.Stage, req.Changes); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *Server) getChangedParameters(rpcRequest) (any, error) {
	return s.service.GetChangedParameters(), nil
}
