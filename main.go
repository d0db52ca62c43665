package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/is-it-pizza/internal/blobstore"
	"github.com/example/is-it-pizza/internal/config"
	"github.com/example/is-it-pizza/internal/handlers"
	"github.com/example/is-it-pizza/internal/logging"
	"github.com/example/is-it-pizza/internal/usecase"
	"github.com/example/is-it-pizza/internal/vision"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	store, localDir, err := initStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise blob store", zap.Error(err))
	}
	if cfg.Storage.Driver == config.DriverVercel && cfg.Storage.Token == "" {
		logger.Warn("BLOB_READ_WRITE_TOKEN is not set, uploads will fail")
	}
	if cfg.Model.APIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set, analysis will fail")
	}

	model := vision.NewOpenAIModel(vision.OpenAIConfig{
		APIKey:    cfg.Model.APIKey,
		BaseURL:   cfg.Model.BaseURL,
		ModelName: cfg.Model.Name,
	}, logger)

	redisCtx, redisCancel := context.WithTimeout(context.Background(), 5*time.Second)
	cache, closeCache := initCache(redisCtx, cfg, logger)
	redisCancel()
	defer closeCache()

	uc := usecase.NewPizzaUseCase(store, model, cache, usecase.Options{
		MaxTokens:    cfg.Model.MaxTokens,
		Temperature:  cfg.Model.Temperature,
		CacheTTL:     cfg.Cache.TTL,
		RandomSuffix: cfg.Storage.RandomSuffix,
	}, logger)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(cfg, uc, logger, localDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("pizza API listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("model", cfg.Model.Name))
	if err := serveHTTPServer(server, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// newRouter builds the engine. localDir is non-empty only for the local
// blob driver, whose files are then served under /blobs.
func newRouter(cfg *config.Config, uc *usecase.PizzaUseCase, logger *zap.Logger, localDir string) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = cfg.Server.MaxUploadSize
	r.Use(logging.GinMiddleware(logger))
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic while serving request", zap.Any("panic", recovered), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}))

	if len(cfg.Server.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.Server.AllowedOrigins,
			AllowMethods: []string{http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{"Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	if localDir != "" {
		r.Use(static.Serve(blobstore.LocalPrefix, static.LocalFile(localDir, false)))
	}

	handlers.RegisterRoutes(r, uc, handlers.Options{MaxUploadSize: cfg.Server.MaxUploadSize})
	return r
}

func initStore(cfg *config.Config, logger *zap.Logger) (blobstore.Store, string, error) {
	switch cfg.Storage.Driver {
	case config.DriverLocal:
		store, err := blobstore.NewLocalStore(cfg.Storage.LocalDir, cfg.Storage.PublicURL, logger)
		if err != nil {
			return nil, "", err
		}
		return store, store.Dir(), nil
	default:
		return blobstore.NewVercelStore(cfg.Storage.APIURL, cfg.Storage.Token, logger), "", nil
	}
}

// initCache returns a nil Cache when Redis is not configured or unreachable;
// the verdict cache is optional.
func initCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (usecase.Cache, func()) {
	if cfg.Cache.RedisAddr == "" {
		return nil, func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, verdict cache disabled", zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		_ = client.Close()
		return nil, func() {}
	}
	return usecase.NewRedisCache(client), func() { _ = client.Close() }
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

// serveHTTPServerWithOptions serves until the server fails or a signal
// arrives, then drains in-flight requests for up to shutdownTimeout.
// listener and signalCh may be nil.
func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	sigCh := signalCh
	if sigCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
