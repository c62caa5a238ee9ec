package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/guidopia/apiserver/config"
	"github.com/guidopia/apiserver/internal/auth"
	"github.com/guidopia/apiserver/internal/db"
	"github.com/guidopia/apiserver/internal/handlers"
	"github.com/guidopia/apiserver/internal/llm"
	"github.com/guidopia/apiserver/internal/logging"
	"github.com/guidopia/apiserver/internal/mq"
	"github.com/guidopia/apiserver/internal/ratelimit"
	"github.com/guidopia/apiserver/internal/services"
	"github.com/guidopia/apiserver/internal/storage"
	"github.com/guidopia/apiserver/internal/store"
)

// Server wires the database, object storage, message broker and HTTP
// router together and owns their lifecycles.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	db         *sql.DB
	broker     *mq.MQ
	logger     *zap.Logger
}

func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.IsProduction())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	database, err := db.Open(ctx, cfg)
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("open database: %w", err)
	}

	userRepo := store.NewUserRepository(database)
	reportRepo := store.NewReportRepository(database)

	userService := services.NewUserService(userRepo)

	issuer := auth.NewIssuer(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessTTL,
		cfg.JWT.RefreshTTL,
	)
	session := handlers.NewSession(userService, issuer, logger)

	objects := openStorage(ctx, cfg, logger)
	broker := openBroker(ctx, cfg, logger)

	llmClient := llm.NewClient(cfg.OpenAI)
	health := llm.NewHealthMonitor(llmClient.Ping)

	// Interface arguments must be untyped nil when a backend is absent,
	// or the service's nil checks never fire.
	var publisher services.Publisher
	if broker != nil {
		publisher = broker
	}
	var objectStore services.ObjectStore
	if objects != nil {
		objectStore = objects
	}
	reportService := services.NewReportService(reportRepo, llmClient, publisher, objectStore, logger)

	authHandler := handlers.NewAuthHandler(userService, issuer, cfg, logger)
	adminHandler := handlers.NewAdminHandler(userService, logger)
	reportHandler := handlers.NewReportHandler(reportService, userService, health, logger)

	signupLimit := handlers.RateLimit(ratelimit.New(cfg.RateLimit.Window, cfg.RateLimit.MaxSignup))
	loginLimit := handlers.RateLimit(ratelimit.New(cfg.RateLimit.Window, cfg.RateLimit.MaxAuth))
	reportLimit := handlers.RateLimit(ratelimit.New(cfg.RateLimit.Window, cfg.RateLimit.MaxReports))

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(handlers.Recoverer(logger, cfg.IsProduction()))
	router.Use(middleware.Logger)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.NotFound(handlers.NotFound)

	router.Get("/healthz", handlers.Healthz)
	router.Route("/api/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler, session, signupLimit, loginLimit)
	})
	router.Route("/api/users", func(r chi.Router) {
		handlers.AdminRouter(r, adminHandler, session)
	})
	router.Route("/api/reports", func(r chi.Router) {
		handlers.ReportRouter(r, reportHandler, session, reportLimit)
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: router,
		// Report generation waits on the LLM, so the write timeout is
		// generous compared to the read side.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         database,
		broker:     broker,
		logger:     logger,
	}, nil
}

// openStorage builds the configured object storage backend. Reports are
// still generated when storage is unavailable, so failures degrade to a
// nil store rather than aborting startup.
func openStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) *storage.Storage {
	var (
		backend storage.ObjectStorage
		err     error
	)
	switch cfg.Storage.Backend {
	case "gcs":
		backend, err = storage.NewGCSClient(ctx, cfg.Storage.GCS)
	case "minio":
		backend, err = storage.NewMinioClient(cfg.Storage.Minio)
	default:
		logger.Warn("unknown storage backend, report archiving disabled",
			zap.String("backend", cfg.Storage.Backend))
		return nil
	}
	if err != nil {
		logger.Warn("object storage unavailable, report archiving disabled",
			zap.String("backend", cfg.Storage.Backend),
			zap.String("error", logging.RedactError(err)))
		return nil
	}

	s := storage.NewStorage(backend)
	if err := s.EnsureBucket(ctx); err != nil {
		logger.Warn("bucket check failed, report archiving disabled",
			zap.String("bucket", s.Bucket()),
			zap.String("error", logging.RedactError(err)))
		return nil
	}
	return s
}

// openBroker builds the configured message broker. Like storage it is a
// best-effort dependency: auth and report generation keep working
// without it.
func openBroker(ctx context.Context, cfg config.Config, logger *zap.Logger) *mq.MQ {
	var (
		backend mq.Backend
		err     error
	)
	switch cfg.MQ.Backend {
	case "pubsub":
		backend, err = mq.NewPubSubClient(ctx, cfg.MQ.PubSub)
	case "rabbitmq":
		backend, err = mq.NewRabbitMQClient(cfg.MQ.RabbitMQ)
	default:
		logger.Warn("unknown mq backend, report events disabled",
			zap.String("backend", cfg.MQ.Backend))
		return nil
	}
	if err != nil {
		logger.Warn("message broker unavailable, report events disabled",
			zap.String("backend", cfg.MQ.Backend),
			zap.String("error", logging.RedactError(err)))
		return nil
	}
	return mq.New(backend)
}

// Router exposes the chi router, mainly for tests.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.broker != nil {
		if cerr := s.broker.Close(); cerr != nil {
			s.logger.Warn("broker close", zap.Error(cerr))
		}
	}
	if cerr := s.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	s.logger.Sync()
	return err
}
