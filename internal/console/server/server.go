package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/estate-integrity/internal/console/handler"
	"github.com/xela07ax/estate-integrity/internal/domain"
	"github.com/xela07ax/estate-integrity/internal/infra/auth"
	"go.uber.org/zap"
)

// Pinger — проверка живости БД для /health
type Pinger interface {
	Ping(ctx context.Context) error
}

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Проверка bearer-токенов (RS256)
	authValidator auth.TokenValidator
	db            Pinger

	scanHandler      *handler.ScanHandler      // /v1/scans
	exceptionHandler *handler.ExceptionHandler // /v1/exceptions
	runHandler       *handler.RunHandler       // /v1/runs
}

// NewConsoleServer собирает admin API движка
func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	db Pinger,
	scanH *handler.ScanHandler,
	exceptionH *handler.ExceptionHandler,
	runH *handler.RunHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:           chi.NewRouter(),
		logger:           logger.Named("console-api"),
		authValidator:    validator,
		db:               db,
		scanHandler:      scanH,
		exceptionHandler: exceptionH,
		runHandler:       runH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Инфраструктурные Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. Публичные роуты ---
	r.Get("/health", s.health)

	// --- 3. Защищенный периметр (RS256) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Запуск прогона — отдельный scope
		r.With(auth.RequireScope(domain.ScopeRunScan)).Post("/v1/scans", s.scanHandler.Trigger)

		r.Get("/v1/exceptions", s.exceptionHandler.List)

		r.Route("/v1/runs", func(r chi.Router) {
			r.Get("/", s.runHandler.List)
			r.Get("/{id}", s.runHandler.Get)
		})
	})
}

func (s *ConsoleServer) health(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
