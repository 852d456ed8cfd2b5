// Package api exposes the ledger over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"PickLedger/internal/closer"
	"PickLedger/internal/ledger"
	"PickLedger/internal/performance"
	"PickLedger/internal/recorder"
	"PickLedger/internal/scheduler"
	"PickLedger/internal/strategy"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// CycleRunner runs a refresh cycle on demand.
type CycleRunner interface {
	RunRefreshNow(ctx context.Context) (scheduler.Cycle, error)
}

// Deps are the components the handlers call into.
type Deps struct {
	Store      ledger.Store
	Recorder   *recorder.Recorder
	Calculator *performance.Calculator
	Closer     *closer.Closer
	Stops      *strategy.Manager
	AutoCloser *strategy.AutoCloser
	Cycles     CycleRunner
	Now        func() time.Time
}

// Server is the HTTP front end.
type Server struct {
	router *mux.Router
	server *http.Server
	deps   Deps
}

type ctxKey struct{}

// NewServer builds the router. Call Start to listen on addr.
func NewServer(addr string, deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{router: mux.NewRouter(), deps: deps}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/health", s.health).Methods(http.MethodGet)

	bt := api.PathPrefix("/backtest").Subrouter()
	bt.HandleFunc("/records", s.recordBatch).Methods(http.MethodPost)
	bt.HandleFunc("/records", s.listRecords).Methods(http.MethodGet)
	bt.HandleFunc("/summary", s.summary).Methods(http.MethodGet)
	bt.HandleFunc("/performance", s.performanceCurve).Methods(http.MethodGet)
	bt.HandleFunc("/close/{id:[0-9]+}", s.closePosition).Methods(http.MethodPost)
	bt.HandleFunc("/stop-config", s.getStopConfig).Methods(http.MethodGet)
	bt.HandleFunc("/stop-config", s.updateStopConfig).Methods(http.MethodPost)
	bt.HandleFunc("/check-auto-close", s.checkAutoClose).Methods(http.MethodPost)
	bt.HandleFunc("/refresh", s.refresh).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found", RequestID: requestID(r)})
	})
}

// requestIDMiddleware adds unique request ID to each request
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()[:8]
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		log.Info().
			Str("request_id", requestID(r)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

// Start listens until Shutdown is called. It returns http.ErrServerClosed
// after a clean shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down http server")
	return s.server.Shutdown(ctx)
}

// responseWrapper captures HTTP status codes for logging
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
