package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/adflow/adflow/internal/experiment"
	"github.com/adflow/adflow/internal/logging"
	"github.com/adflow/adflow/internal/session"
	"github.com/adflow/adflow/internal/store"
)

type Server struct {
	store       *store.SQLiteStore
	experiments *experiment.Service
	sessions    *session.Service
	port        int
	token       string
	tokenFile   string
	router      *mux.Router
	logger      *slog.Logger
	startTime   time.Time
}

// Options configures a Server. An empty Token gets a random one.
type Options struct {
	Port      int
	Token     string
	TokenFile string
	Logger    *slog.Logger
}

func New(st *store.SQLiteStore, experiments *experiment.Service, sessions *session.Service, opts Options) *Server {
	if opts.Token == "" {
		opts.Token = generateToken()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	srv := &Server{
		store:       st,
		experiments: experiments,
		sessions:    sessions,
		port:        opts.Port,
		token:       opts.Token,
		tokenFile:   opts.TokenFile,
		router:      mux.NewRouter(),
		logger:      opts.Logger,
		startTime:   time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	// Public endpoints
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	flows := s.router.PathPrefix("/api/flow").Subrouter()
	flows.Use(corsMiddleware)
	flows.HandleFunc("/sessions", s.handleStartSession).Methods(http.MethodPost, http.MethodOptions)
	flows.HandleFunc("/sessions/{sessionId}", s.handleNextAction).Methods(http.MethodGet, http.MethodOptions)
	flows.HandleFunc("/sessions/{sessionId}/complete", s.handleCompleteStep).Methods(http.MethodPost, http.MethodOptions)
	flows.HandleFunc("/sessions/{sessionId}/abandon", s.handleAbandon).Methods(http.MethodPost, http.MethodOptions)

	// Admin endpoints (protected)
	admin := s.router.PathPrefix("/api/experiments").Subrouter()
	admin.Use(s.authMiddleware)
	admin.HandleFunc("", s.handleCreateExperiment).Methods(http.MethodPost)
	admin.HandleFunc("", s.handleListExperiments).Methods(http.MethodGet)
	admin.HandleFunc("/{id:[0-9]+}", s.handleGetExperiment).Methods(http.MethodGet)
	admin.HandleFunc("/{id:[0-9]+}/start", s.handleExperimentTransition(s.experiments.Start)).Methods(http.MethodPost)
	admin.HandleFunc("/{id:[0-9]+}/pause", s.handleExperimentTransition(s.experiments.Pause)).Methods(http.MethodPost)
	admin.HandleFunc("/{id:[0-9]+}/stop", s.handleExperimentTransition(s.experiments.Stop)).Methods(http.MethodPost)
	admin.HandleFunc("/{id:[0-9]+}/results", s.handleExperimentResults).Methods(http.MethodGet)
	admin.HandleFunc("/{id:[0-9]+}/sessions", s.handleExperimentSessions).Methods(http.MethodGet)
}

// Start serves until ctx is cancelled, printing the admin URL first.
func (s *Server) Start(ctx context.Context) error {
	return s.StartWithOptions(ctx, true)
}

// StartQuiet starts the server without printing startup messages
func (s *Server) StartQuiet(ctx context.Context) error {
	return s.StartWithOptions(ctx, false)
}

func (s *Server) StartWithOptions(ctx context.Context, printMessages bool) error {
	// Write token to file for the CLI
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.logger.Warn("failed to write token file", "path", s.tokenFile, "error", err)
		}
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if printMessages {
		fmt.Println()
		fmt.Printf("adflow running on http://localhost:%d\n", s.port)
		fmt.Printf("Admin token: %s\n", s.token)
		fmt.Println()
		fmt.Println("Press Ctrl+C to stop")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a simple token if crypto/rand fails
		return "a1b2c3d4"
	}
	return hex.EncodeToString(bytes)
}
