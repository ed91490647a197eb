package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/bloghq/apiserver/config"
	"github.com/bloghq/apiserver/internal/db"
	"github.com/bloghq/apiserver/internal/handlers"
	"github.com/bloghq/apiserver/internal/mq"
	"github.com/bloghq/apiserver/internal/services"
	"github.com/bloghq/apiserver/internal/storage"
	"github.com/bloghq/apiserver/internal/store"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	events     *mq.EventPublisher
	logger     *zap.Logger
}

// New constructs a fully wired Server. Configuration is validated here,
// before any request can be served: a missing JWT secret is a
// construction error, never a per-request failure.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	userRepo := store.NewUserRepository(dbConn)
	postRepo := store.NewPostRepository(dbConn)
	attachmentRepo := store.NewAttachmentRepository(dbConn)

	userService := services.NewUserService(userRepo, cfg.JWT.Secret, cfg.JWT.TokenTTL)
	postService := services.NewPostService(postRepo)

	events, err := newEventPublisher(ctx, cfg, logger)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("init event publisher: %w", err)
	}

	objects, err := newObjectStorage(ctx, cfg)
	if err != nil {
		_ = events.Close()
		_ = dbConn.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	authMiddleware := handlers.RequireAuth(userService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/user", func(r chi.Router) {
		handlers.UserRouter(r, userService, events)
	})
	router.Route("/posts", func(r chi.Router) {
		handlers.PostRouter(r, postService, userService, events, authMiddleware)

		if objects != nil {
			attachmentService := services.NewAttachmentService(attachmentRepo, postRepo, objects)
			r.Route("/{postID}/attachments", func(r chi.Router) {
				handlers.AttachmentRouter(r, attachmentService, authMiddleware)
			})
		}
	})

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
		events:     events,
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	_ = s.events.Close()
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}

// newEventPublisher builds the configured broker backend. An empty
// MQ_BACKEND means events are disabled; the publisher is then nil and
// drops everything.
func newEventPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (*mq.EventPublisher, error) {
	var (
		backend mq.Backend
		err     error
	)
	switch cfg.MQ.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		backend, err = mq.NewRabbitMQBackend(cfg.MQ.RabbitMQ)
	case "pubsub":
		backend, err = mq.NewPubSubBackend(ctx, cfg.MQ.PubSub)
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.MQ.Backend)
	}
	if err != nil {
		return nil, err
	}
	return mq.NewEventPublisher(backend, cfg.MQ.EventChannel, logger), nil
}

// newObjectStorage builds the configured attachment backend. An empty
// STORAGE_BACKEND disables attachment routes.
func newObjectStorage(ctx context.Context, cfg config.Config) (storage.ObjectStorage, error) {
	var (
		backend storage.ObjectStorage
		err     error
	)
	switch cfg.Storage.Backend {
	case "":
		return nil, nil
	case "minio":
		backend, err = storage.NewMinioBackend(cfg.Storage.Minio)
	case "gcs":
		backend, err = storage.NewGCSBackend(ctx, cfg.Storage.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, err
	}
	if err := backend.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return backend, nil
}
