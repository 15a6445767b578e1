package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/aniflux/aniflux/internal/cache"
	"github.com/aniflux/aniflux/internal/config"
	"github.com/aniflux/aniflux/internal/constants"
	"github.com/aniflux/aniflux/internal/discovery"
	"github.com/aniflux/aniflux/internal/handlers"
	"github.com/aniflux/aniflux/internal/history"
	"github.com/aniflux/aniflux/internal/middleware"
	"github.com/aniflux/aniflux/internal/providers"
	"github.com/aniflux/aniflux/internal/providers/aniapi"
	"github.com/aniflux/aniflux/internal/providers/hianime"
	"github.com/aniflux/aniflux/internal/realtime"
	"github.com/aniflux/aniflux/internal/resolver"
	"github.com/aniflux/aniflux/internal/services"
	"github.com/aniflux/aniflux/pkg/httputil"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	logger.WithFields(logrus.Fields{
		"version": constants.AppVersion,
		"mode":    cfg.ProviderMode,
	}).Info("[App] starting " + constants.AppName)

	container, err := buildContainer(cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if container.History != nil {
		container.History.StartCleanup(ctx)
	}

	router := newRouter(container)
	srv := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No write timeout: websocket sessions outlive any sane value.
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.ServerPort).Info("[App] HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("[App] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

func buildContainer(cfg *config.Config, logger *logrus.Logger) (*services.Container, error) {
	httpClient := httputil.NewHTTPClient(cfg.UpstreamTimeout)

	var primary providers.Provider
	if cfg.UpstreamAPIURL != "" {
		primary = aniapi.New(cfg.UpstreamAPIURL, httpClient, logger)
	}
	secondary := hianime.New(httpClient, logger)
	selector := providers.NewSelector(primary, secondary, cfg.ProviderMode, logger)

	sourceCache := cache.New(cfg.RedisURL, cfg.CacheTTL, logger)
	disc := discovery.New(selector, logger)

	opts := []resolver.Option{
		resolver.WithRetryDelay(cfg.RetryDelay),
		resolver.WithEmbedBase(cfg.EmbedBaseURL),
	}

	hist, err := history.Open(cfg.DatabaseDir, logger)
	if err != nil {
		// History is an accessory; the resolver works without it.
		logger.WithError(err).Warn("[App] history store unavailable")
		hist = nil
	} else {
		opts = append(opts, resolver.WithHistory(hist))
	}

	engine := resolver.New(selector, disc, sourceCache, logger, opts...)

	return &services.Container{
		Config:    cfg,
		Logger:    logger,
		Selector:  selector,
		Discovery: disc,
		Cache:     sourceCache,
		History:   hist,
		Engine:    engine,
	}, nil
}

func newRouter(container *services.Container) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(container.Logger))
	router.Use(middleware.CORS())

	handlers.New(container).RegisterRoutes(router)

	ws := realtime.NewHandler(container.Engine, container.Cache.Enabled(), container.Logger)
	router.GET("/ws", ws.ServeWS)

	return router
}
