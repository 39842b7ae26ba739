package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jjudge-oj/accounts/config"
	"github.com/jjudge-oj/accounts/internal/auth"
	"github.com/jjudge-oj/accounts/internal/db"
	"github.com/jjudge-oj/accounts/internal/events"
	"github.com/jjudge-oj/accounts/internal/handlers"
	"github.com/jjudge-oj/accounts/internal/logging"
	"github.com/jjudge-oj/accounts/internal/metrics"
	"github.com/jjudge-oj/accounts/internal/mq"
	"github.com/jjudge-oj/accounts/internal/services"
	"github.com/jjudge-oj/accounts/internal/store"
)

// Server wraps the HTTP server and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	log        *slog.Logger
}

// New wires the identity service and its HTTP routes from cfg.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}

	codec, err := auth.NewTokenCodec(cfg.JWTSecret, cfg.TokenTTL())
	if err != nil {
		return nil, err
	}

	var (
		dbConn *sql.DB
		repo   services.UserRepository
	)
	if cfg.Database.Driver == db.DriverMemory {
		log.Warn("using in-memory user store; data is lost on restart")
		repo = store.NewMemoryUserRepository()
	} else {
		dbConn, err = db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		repo = store.NewUserRepository(dbConn)
	}

	queue, err := mq.NewFromConfig(ctx, cfg)
	if err != nil {
		closeDB(dbConn)
		return nil, err
	}
	var publisher events.Publisher = events.NopPublisher{}

	registry := metrics.NewRegistry()
	m := metrics.New(registry)
	if queue != nil {
		publisher = events.NewBrokerPublisher(queue, cfg.Events.Channel, m)
	}

	hasher := auth.NewHasher(auth.Argon2Params{
		MemoryKiB:   cfg.Argon2.MemoryKiB,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	identity := services.NewIdentityService(repo, auth.NewHashPool(hasher, cfg.HashPoolSize, m), codec,
		services.WithPublisher(publisher),
		services.WithMetrics(m),
		services.WithLogger(log),
	)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		logging.RequestLogger(log, m),
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	if dbConn != nil {
		router.Get("/readyz", handlers.Readyz(dbConn))
	} else {
		router.Get("/readyz", handlers.Readyz(nil))
	}
	router.Method(http.MethodGet, "/metrics", metrics.Handler(registry))
	handlers.UserRouter(router, identity, log)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		log:        log,
	}, nil
}

// Router exposes the chi router, mainly for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the broker and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if cerr := s.queue.Close(); cerr != nil {
		s.log.Warn("close message queue", "error", cerr)
	}
	closeDB(s.db)
	return err
}

func closeDB(conn *sql.DB) {
	if conn != nil {
		_ = conn.Close()
	}
}
