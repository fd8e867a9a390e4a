package api

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/classlab/probsim/internal/bias"
	"github.com/classlab/probsim/internal/games"
	"github.com/classlab/probsim/internal/session"
	"github.com/classlab/probsim/internal/store"
)

// Server handles HTTP requests
type Server struct {
	db           store.DB
	sessions     session.Store
	engine       *bias.Engine
	tables       *games.Tables
	rules        []bias.Rule
	errorHandler *ErrorHandler
	logger       *log.Logger
	startTime    time.Time

	initialBalance  decimal.Decimal
	heartbeatWindow time.Duration
}

// Options configure the server. Zero values fall back to defaults.
type Options struct {
	Tables          *games.Tables
	Rules           []bias.Rule
	InitialBalance  decimal.Decimal
	HeartbeatWindow time.Duration
	Logger          *log.Logger
}

// NewServer creates a new API server
func NewServer(db store.DB, sessions session.Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile)
	}
	tables := opts.Tables
	if tables == nil {
		tables = games.DefaultTables()
	}
	initial := opts.InitialBalance
	if initial.IsZero() {
		initial = decimal.NewFromInt(10000)
	}
	window := opts.HeartbeatWindow
	if window <= 0 {
		window = session.DefaultHeartbeatWindow
	}

	return &Server{
		db:              db,
		sessions:        sessions,
		engine:          bias.NewEngine(logger),
		tables:          tables,
		rules:           opts.Rules,
		errorHandler:    NewErrorHandler(logger),
		logger:          logger,
		startTime:       time.Now(),
		initialBalance:  initial,
		heartbeatWindow: window,
	}
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/games", s.handleListGames)

		r.Get("/sessions", s.handleListSessions)
		r.Post("/sessions", s.handleCreateSession)
		r.Post("/sessions/verify", s.handleVerifySession)
		r.Post("/sessions/{key}/heartbeat", s.handleHeartbeat)

		r.Post("/play/{game}", s.handlePlay)

		r.Get("/horse/history", s.handleHorseHistory)
		r.Get("/horse/replay/{id}", s.handleHorseReplay)
		r.Get("/horse/replay/by-seed/{seed}", s.handleHorseReplayBySeed)

		r.Get("/settings", s.handleGetSettings)
		r.Post("/settings", s.handleSaveSettings)

		r.Get("/results", s.handleResults)

		r.Post("/adjustments", s.handleCreateAdjustment)
		r.Get("/adjustments", s.handleListAdjustments)
		r.Delete("/adjustments", s.handleDeleteAdjustments)

		r.Delete("/reset", s.handleReset)
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// writeError writes a structured error response
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, errType, message string) {
	engineErr := NewError(errType, message).
		WithRequestID(middleware.GetReqID(r.Context())).
		Build()
	s.errorHandler.logError(r, engineErr, status)
	s.errorHandler.writeErrorResponse(w, status, engineErr)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
