package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pagetext/internal/ratelimit"
	"pagetext/internal/servicetoken"
	"pagetext/internal/util"
	"pagetext/pkg/pdfproc"
	"pagetext/pkg/queue"
	"pagetext/pkg/storage"
	"pagetext/pkg/store"
	"pagetext/services/extract/internal/app"
	"pagetext/services/extract/internal/config"
	"pagetext/services/extract/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	processor, engine, err := pdfproc.NewFromSettings(cfg.ProcessingSettings(), logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	var results store.Store
	if cfg.DatabaseURL != "" {
		results, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
	} else {
		logger.Warn("databaseURL not set, results are kept in memory")
		results = store.NewMemoryStore()
	}

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		objects, err = storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return fmt.Errorf("init object store: %w", err)
		}
	}

	jobs, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		Stream:     cfg.QueueName,
		Group:      cfg.QueueGroup,
		MaxRetries: cfg.QueueMaxRetries,
		RetryDelay: time.Duration(cfg.QueueRetryDelaySeconds) * time.Second,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("init job queue: %w", err)
	}
	defer jobs.Close()

	appCore, err := app.New(app.Config{
		Queue:       jobs,
		Store:       results,
		Objects:     objects,
		Processor:   processor,
		ImageURLTTL: cfg.ImageURLTTL(),
		AllowLocal:  cfg.AllowLocalFiles,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	srvCfg := server.Config{App: appCore}
	if !cfg.InternalAuthDisabled {
		keys, err := servicetoken.ParseVerifyPublicKeys(cfg.InternalJWTVerifyPublicKeys)
		if err != nil {
			return fmt.Errorf("parse internal jwt verify keys: %w", err)
		}
		srvCfg.Verifier, err = servicetoken.NewVerifier(servicetoken.VerifierOptions{
			PublicKeyPath:  cfg.InternalJWTPublicKeyPath,
			PublicKeys:     keys,
			DefaultKeyID:   cfg.InternalJWTKeyID,
			Audience:       "extract",
			AllowedIssuers: cfg.InternalJWTAllowedIssuers,
		})
		if err != nil {
			return fmt.Errorf("init internal auth: %w", err)
		}
	} else {
		logger.Warn("internal auth disabled")
	}
	if cfg.RateLimitPerMinute > 0 {
		srvCfg.Limiter, err = ratelimit.NewFixedWindowLimiter(ratelimit.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Limit:    cfg.RateLimitPerMinute,
			Window:   time.Minute,
		})
		if err != nil {
			return fmt.Errorf("init rate limiter: %w", err)
		}
		defer srvCfg.Limiter.Close()
	}
	srvCfg.TrustedProxies, err = util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("parse trusted proxies: %w", err)
	}

	appCore.Start(ctx, cfg.QueueConcurrency)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.New(srvCfg).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("extract server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "err", err)
		}
	}
	jobs.Wait()
	return nil
}
