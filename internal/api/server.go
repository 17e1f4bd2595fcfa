// Package api serves the session, the simulator and the fair-draw tools over
// a loopback HTTP API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MJE43/lotto-desk/internal/archive"
	"github.com/MJE43/lotto-desk/internal/draw"
	"github.com/MJE43/lotto-desk/internal/fair"
	"github.com/MJE43/lotto-desk/internal/history"
	"github.com/MJE43/lotto-desk/internal/metrics"
	"github.com/MJE43/lotto-desk/internal/reveal"
	"github.com/MJE43/lotto-desk/internal/scripting"
	"github.com/MJE43/lotto-desk/internal/session"
)

// ArchiveReader lists archived entries.
type ArchiveReader interface {
	List(ctx context.Context, f history.Filter, limit, offset int) ([]archive.Record, error)
	Count(ctx context.Context, f history.Filter) (int, error)
}

// ScriptLogs exposes the messages a script predictor wrote with log().
type ScriptLogs interface {
	Logs() []scripting.LogEntry
}

// Deps are the services the API exposes. Dealer, Archive and Script may be
// nil.
type Deps struct {
	Session     *session.Session
	Scheduler   *reveal.Scheduler
	Sampler     draw.Sampler
	Dealer      *fair.Dealer
	Archive     ArchiveReader
	Script      ScriptLogs
	Logger      *slog.Logger
	CORSOrigins []string
}

type Server struct {
	deps       Deps
	logger     *slog.Logger
	startTime  time.Time
	httpServer *http.Server
}

func NewServer(deps Deps) *Server {
	if deps.Sampler == nil {
		deps.Sampler = draw.SourceSampler{Source: draw.NewMathSource()}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{
		deps:      deps,
		logger:    deps.Logger.With("component", "api"),
		startTime: time.Now(),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequest)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins(),
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Error-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(metrics.InstrumentHandler)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/matrices", s.handleMatrices)
		r.Post("/draws", s.handleDraw)
		r.Post("/predictions", s.handlePredict)
		r.Get("/predictor/logs", s.handlePredictorLogs)

		r.Get("/history", s.handleHistory)
		r.Delete("/history", s.handleClearHistory)
		r.Delete("/history/{id}", s.handleDeleteEntry)
		r.Post("/history/{id}/restore", s.handleRestore)
		r.Get("/history/export", s.handleExport)
		r.Post("/history/import", s.handleImport)
		r.Get("/archive", s.handleArchive)

		r.Get("/current", s.handleCurrent)
		r.Get("/stats", s.handleStats)

		r.Get("/simulation", s.handleSimulationState)
		r.Post("/simulation", s.handleSimulationStart)
		r.Post("/simulation/reset", s.handleSimulationReset)

		r.Get("/fair/commitment", s.handleCommitment)
		r.Post("/fair/verify", s.handleVerify)
	})
	return r
}

// Start listens on addr and serves in the background. It returns once the
// socket is bound.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 70 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Info("api listening", "addr", ln.Addr().String())
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api server stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) corsOrigins() []string {
	if len(s.deps.CORSOrigins) == 0 {
		return []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	return s.deps.CORSOrigins
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return validationError("body", "invalid JSON: "+err.Error())
	}
	return nil
}

func qInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
