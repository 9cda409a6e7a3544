// Package api exposes the history store and the comparison/analytics
// engine over HTTP for the dashboard, plus a websocket feed of run
// lifecycle events and Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/evaldash/engine/analysis"
	"github.com/evaldash/engine/comparator"
	"github.com/evaldash/engine/schema"
	"github.com/evaldash/engine/storage"
)

// Server provides the HTTP API for dashboard data access.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

type server struct {
	addr       string
	store      storage.HistoryStore
	comparator *comparator.Comparator
	aggregator *analysis.Aggregator
	validator  *schema.Validator
	hub        *WSHub
	upgrader   websocket.Upgrader
	log        logrus.FieldLogger
	httpServer *http.Server
	cancelHub  context.CancelFunc
}

// NewServer creates an API server around the given collaborators.
func NewServer(
	addr string,
	store storage.HistoryStore,
	comp *comparator.Comparator,
	aggregator *analysis.Aggregator,
	validator *schema.Validator,
	log logrus.FieldLogger,
) Server {
	return &server{
		addr:       addr,
		store:      store,
		comparator: comp,
		aggregator: aggregator,
		validator:  validator,
		hub:        NewWSHub(log),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Dashboard origin is not fixed.
			},
		},
		log: log.WithField("component", "api-server"),
	}
}

// Start begins serving in the background.
func (s *server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	hubCtx, cancel := context.WithCancel(ctx)
	s.cancelHub = cancel
	go s.hub.Run(hubCtx)

	go func() {
		s.log.WithField("addr", s.addr).Info("API server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("API server failed")
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *server) Stop() error {
	s.log.Info("Stopping API server")
	if s.cancelHub != nil {
		s.cancelHub()
	}
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(metricsMiddleware)

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs", s.handleSaveRun).Methods(http.MethodPost)
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleDeleteRun).Methods(http.MethodDelete)

	api.HandleFunc("/compare", s.handleCompare).Methods(http.MethodPost)
	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/projects", s.handleProjects).Methods(http.MethodGet)
	api.HandleFunc("/regressions", s.handleRegressions).Methods(http.MethodGet)
	api.HandleFunc("/failing-tests", s.handleFailingTests).Methods(http.MethodGet)

	// Websocket and metrics bypass the instrumentation middleware: the
	// upgrade needs the raw ResponseWriter.
	router.HandleFunc("/api/v1/ws", s.handleWebSocket)
	router.Handle("/metrics", promhttp.Handler())

	return router
}
