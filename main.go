package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"taskflow/api"
	"taskflow/board"
	"taskflow/config"
	"taskflow/domain"
	"taskflow/remote"
	"taskflow/storage"
	"taskflow/telemetry"
)

func main() {
	cfg := config.MustLoad(os.Getenv("CONFIG_PATH"))

	logger := log.New()
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("services: %v", err)
	}
	auth, closeAuth, err := newAuth(cfg.Auth, logger)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}
	svc.closers = append(svc.closers, closeAuth)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding},
	}))

	b := board.New(svc.tasks, svc.categories, logger)
	api.Register(e, b, svc.settings, auth, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(log.Fields{"addr": cfg.ListenAddr, "backend": cfg.Backend}).Info("taskflow listening")
		errCh <- e.Start(cfg.ListenAddr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	svc.close(shutdownCtx, logger)
}

type services struct {
	tasks      domain.TaskService
	categories domain.CategoryService
	settings   domain.SettingsService
	closers    []func(context.Context) error
}

func (s *services) close(ctx context.Context, logger *log.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			logger.WithError(err).Warn("close")
		}
	}
}

// buildServices selects the backend and wraps it with the optional cache,
// change journal and tracing. Settings always live in memory.
func buildServices(ctx context.Context, cfg config.Config, logger *log.Logger) (*services, error) {
	mem := storage.NewMemory(storage.MemoryOptions{Latency: storage.DefaultLatency.Scale(cfg.Memory.LatencyScale)})
	svc := &services{settings: mem.Settings()}

	switch cfg.Backend {
	case config.BackendMemory:
		if cfg.Memory.Seed {
			seed, err := storage.LoadSeed(cfg.Memory.SeedFile)
			if err != nil {
				return nil, err
			}
			if err := mem.Seed(seed); err != nil {
				return nil, err
			}
		}
		svc.tasks, svc.categories = mem.Tasks(), mem.Categories()
	case config.BackendRemote:
		client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.ProjectID, cfg.Remote.PublicKey, cfg.Remote.Timeout)
		svc.tasks, svc.categories = remote.NewTaskService(client), remote.NewCategoryService(client)
	case config.BackendTable:
		tables, err := storage.NewTables(cfg.Storage.ConnectionString)
		if err != nil {
			return nil, err
		}
		if err := tables.EnsureTables(ctx, cfg.Storage.TasksTable, cfg.Storage.CategoriesTable); err != nil {
			return nil, err
		}
		svc.tasks = tables.Tasks(cfg.Storage.TasksTable)
		svc.categories = tables.Categories(cfg.Storage.CategoriesTable)
	default:
		return nil, errors.New("unknown backend " + cfg.Backend)
	}

	d := decorators{logger: logger}
	if cfg.Cache.RedisURL != "" {
		rc := redis.NewClient(redisOptions(cfg.Cache.RedisURL))
		d.redis, d.ttl = rc, cfg.Cache.TTL
		svc.closers = append(svc.closers, func(context.Context) error { return rc.Close() })
	}
	if cfg.Storage.ChangesQueue != "" {
		q, err := storage.NewQueueClient(cfg.Storage.ConnectionString, cfg.Storage.ChangesQueue)
		if err != nil {
			return nil, err
		}
		if err := storage.EnsureQueue(ctx, q); err != nil {
			return nil, err
		}
		d.publisher = storage.NewQueuePublisher(q)
	}
	if cfg.Tracing {
		tp, shutdown := telemetry.Setup(logger)
		d.tracer = tp
		svc.closers = append(svc.closers, shutdown)
	}

	svc.tasks = decorate(svc.tasks, domain.TaskKind, d)
	svc.categories = decorate(svc.categories, domain.CategoryKind, d)
	return svc, nil
}

type decorators struct {
	logger    *log.Logger
	redis     *redis.Client
	ttl       time.Duration
	publisher storage.Publisher
	tracer    trace.TracerProvider
}

// decorate wraps base as Traced(Journal(Cache(base))), skipping the layers
// that are not configured.
func decorate[E any, F any](base domain.Service[E, F], kind domain.Kind[E, F], d decorators) domain.Service[E, F] {
	svc := base
	if d.redis != nil {
		svc = storage.NewCache(svc, kind, d.redis, d.ttl)
	}
	if d.publisher != nil {
		svc = storage.NewJournal(svc, kind, d.publisher, d.logger)
	}
	if d.tracer != nil {
		svc = telemetry.NewTraced(svc, kind, d.tracer)
	}
	return svc
}

// newAuth returns a nil Authenticator when auth is not configured.
func newAuth(cfg config.AuthConfig, logger *log.Logger) (api.Authenticator, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled() {
		logger.Warn("auth disabled: no AUTH_SHARED_SECRET or AUTH_JWKS_URL configured")
		return nil, noop, nil
	}
	if cfg.SharedSecret != "" {
		return api.NewSharedSecretAuth([]byte(cfg.SharedSecret), cfg.Audience, cfg.Issuer), noop, nil
	}
	jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.WithError(err).Warn("jwks refresh")
		},
	})
	if err != nil {
		return nil, noop, err
	}
	closeJWKS := func(context.Context) error {
		jwks.EndBackground()
		return nil
	}
	return api.NewAuth(jwks, cfg.Audience, cfg.Issuer, cfg.KeyCacheTTL), closeJWKS, nil
}

// redisOptions accepts a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts
}
