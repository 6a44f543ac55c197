package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/loqalabs/loqa-interview/internal/bus"
	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/loqalabs/loqa-interview/internal/evaluate"
	"github.com/loqalabs/loqa-interview/internal/eventstore"
	"github.com/loqalabs/loqa-interview/internal/graph"
	"github.com/loqalabs/loqa-interview/internal/interview"
	"github.com/loqalabs/loqa-interview/internal/llm"
	"github.com/loqalabs/loqa-interview/internal/natsserver"
	"github.com/loqalabs/loqa-interview/internal/session"
	"github.com/loqalabs/loqa-interview/internal/stt"
	"github.com/loqalabs/loqa-interview/internal/tts"
)

const prunePeriod = time.Hour

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer    *http.Server
	router        chi.Router
	metrics       http.Handler
	telemetryStop func(context.Context) error

	graph     *graph.Graph
	sessions  *session.Store
	events    *eventstore.Store
	nats      *natsserver.EmbeddedServer
	bus       *bus.Client
	analyzer  *evaluate.Analyzer
	websocket *interview.WebSocketHandler

	interviews context.CancelFunc
	ready      atomic.Bool
	wg         sync.WaitGroup
	// pruned is closed once the archive pruner has returned.
	pruned chan struct{}
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start wires every component, serves HTTP and blocks until ctx is done.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := r.setup(ctx); err != nil {
		cancel()
		r.wg.Wait()
		r.teardown(context.Background())
		return err
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
			serveErr <- err
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr), slog.String("graph", r.graph.Name()))

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}
	r.ready.Store(false)
	cancel()
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if shutdownErr := r.httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		r.logger.Error("http shutdown error", slog.String("error", shutdownErr.Error()))
	}
	r.wg.Wait()
	r.teardown(shutdownCtx)
	return err
}

func (r *Runtime) setup(ctx context.Context) error {
	stopTelemetry, metrics, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetryStop = stopTelemetry
	r.metrics = metrics

	r.graph, err = graph.LoadOrDefault(r.cfg.Interview.GraphPath)
	if err != nil {
		return fmt.Errorf("load interview graph: %w", err)
	}

	r.events, err = eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	r.pruned = make(chan struct{})
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(r.pruned)
		r.events.RunPruner(ctx, prunePeriod)
	}()

	if r.cfg.Bus.Enabled {
		busCfg := r.cfg.Bus
		r.nats, err = natsserver.Start(busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("start embedded nats: %w", err)
		}
		if r.nats != nil {
			busCfg.Servers = []string{r.nats.ClientURL()}
		}
		r.bus, err = bus.Connect(ctx, r.cfg.RuntimeName, busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("connect bus: %w", err)
		}
	}

	recognizer, err := stt.New(r.cfg.STT)
	if err != nil {
		return fmt.Errorf("build recognizer: %w", err)
	}
	generator, err := llm.New(r.cfg.LLM)
	if err != nil {
		return fmt.Errorf("build generator: %w", err)
	}
	synth, err := tts.New(r.cfg.TTS)
	if err != nil {
		return fmt.Errorf("build synthesizer: %w", err)
	}
	speaker := tts.NewSpeaker(synth, r.cfg.TTS.Voice, r.cfg.TTS.SampleRate, r.cfg.TTS.Channels,
		time.Duration(r.cfg.TTS.TimeoutMS)*time.Millisecond, r.logger)

	r.sessions = session.NewStore(r.graph.Start(), r.logger)
	if err := r.sessions.RegisterMetrics(); err != nil {
		r.logger.Warn("session metrics unavailable", slog.String("error", err.Error()))
	}

	sink := &eventSink{bus: r.bus, store: r.events, graph: r.graph.Name()}
	// Analyses outlive the connections that produced them, so the pool
	// runs on its own context and is drained on shutdown.
	r.analyzer = evaluate.NewAnalyzer(context.WithoutCancel(ctx), generator, r.cfg.LLM,
		r.cfg.Interview.AnalysisWorkers, r.cfg.Interview.AnalysisQueue, r.logger, sink)

	orch, err := interview.New(interview.Options{
		Graph:        r.graph,
		Store:        r.sessions,
		Recognizer:   recognizer,
		Triager:      evaluate.NewTriager(generator, r.cfg.LLM, r.logger),
		Analyzer:     r.analyzer,
		Speaker:      speaker,
		Events:       sink,
		Logger:       r.logger,
		STT:          r.cfg.STT,
		RepromptText: r.cfg.Interview.RepromptText,
	})
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	interviewCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.interviews = cancel
	r.websocket = interview.NewWebSocketHandler(interviewCtx, orch, r.cfg.Interview.MaxAudioBytes, r.logger)
	r.router = r.routes()
	return nil
}

// teardown stops components in reverse dependency order. It tolerates a
// partially completed setup.
func (r *Runtime) teardown(ctx context.Context) {
	if r.interviews != nil {
		r.interviews()
	}
	if r.websocket != nil {
		r.websocket.Wait()
	}
	if r.analyzer != nil {
		if err := r.analyzer.Close(ctx); err != nil {
			r.logger.Warn("deep analysis did not drain", slog.String("error", err.Error()))
		}
	}
	r.bus.Close()
	r.nats.Shutdown()
	if err := r.events.Close(); err != nil {
		r.logger.Error("event store close error", slog.String("error", err.Error()))
	}
	if r.telemetryStop != nil {
		if err := r.telemetryStop(ctx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) routes() chi.Router {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)

	mux.Get("/healthz", r.handleHealth)
	mux.Get("/readyz", r.handleReady)
	if r.metrics != nil {
		mux.Handle(r.cfg.Telemetry.PrometheusPath, r.metrics)
	}
	mux.Get("/graph", r.handleGraph)
	mux.Get("/graph.mmd", r.handleGraphMermaid)
	mux.Get("/sessions/{sessionID}", r.handleSession)
	mux.Get("/sessions/{sessionID}/events", r.handleSessionEvents)
	mux.Get("/interview/{sessionID}", func(w http.ResponseWriter, req *http.Request) {
		r.websocket.Serve(w, req, chi.URLParam(req, "sessionID"))
	})
	if dir := r.cfg.HTTP.StaticDir; dir != "" {
		mux.Handle("/*", http.FileServer(http.Dir(dir)))
	}
	return mux
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && (!r.cfg.Bus.Enabled || r.bus.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

type graphView struct {
	Name     string       `json:"name"`
	Start    string       `json:"start_node"`
	Terminal string       `json:"end_node"`
	Nodes    []graph.Node `json:"nodes"`
	Sessions int          `json:"active_sessions"`
}

func (r *Runtime) handleGraph(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, graphView{
		Name:     r.graph.Name(),
		Start:    r.graph.Start(),
		Terminal: r.graph.Terminal(),
		Nodes:    r.graph.Nodes(),
		Sessions: r.sessions.Len(),
	})
}

func (r *Runtime) handleGraphMermaid(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(graph.Mermaid(r.graph)))
}

type sessionView struct {
	SessionID     string              `json:"session_id"`
	Live          bool                `json:"live"`
	CurrentNodeID string              `json:"current_node_id,omitempty"`
	Turns         int                 `json:"turns"`
	Archive       *eventstore.Session `json:"archive,omitempty"`
}

func (r *Runtime) handleSession(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "sessionID")
	view := sessionView{SessionID: id}
	if st, ok := r.sessions.Get(id); ok {
		view.Live = true
		view.CurrentNodeID = st.CurrentNodeID()
		view.Turns = st.Turns()
	}
	archived, ok, err := r.events.GetSession(req.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if ok {
		view.Archive = &archived
		if !view.Live {
			view.Turns = archived.Turns
		}
	}
	if !view.Live && !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (r *Runtime) handleSessionEvents(w http.ResponseWriter, req *http.Request) {
	limit := 100
	if raw := req.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	events, err := r.events.ListSessionEvents(req.Context(), chi.URLParam(req, "sessionID"), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if events == nil {
		events = []eventstore.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
