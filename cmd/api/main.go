package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/rx-ocr/internal/application"
	appocr "github.com/bryanwahyu/rx-ocr/internal/application/ocr"
	"github.com/bryanwahyu/rx-ocr/internal/config"
	domain "github.com/bryanwahyu/rx-ocr/internal/domain/ocr"
	"github.com/bryanwahyu/rx-ocr/internal/infra/ai/gemini"
	"github.com/bryanwahyu/rx-ocr/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/rx-ocr/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/rx-ocr/internal/infra/db/postgres"
	"github.com/bryanwahyu/rx-ocr/internal/infra/fetch"
	"github.com/bryanwahyu/rx-ocr/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/rx-ocr/internal/infra/storage"
	"github.com/bryanwahyu/rx-ocr/internal/logging"
	"github.com/bryanwahyu/rx-ocr/internal/middleware"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// run owns every resource so deferred cleanup happens before main exits.
func run() error {
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("config load error: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return fmt.Errorf("logger init error: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checkers := map[string]middleware.HealthChecker{}

	audit, db, err := initAudit(ctx, cfg)
	if err != nil {
		logger.Error("database init failed", zap.String("driver", cfg.Database.Driver), zap.Error(err))
		return fmt.Errorf("database init: %w", err)
	}
	if db != nil {
		defer db.Close()
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	}

	var archive domain.ArchiveStore
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			logger.Error("minio init failed", zap.Error(err))
			return fmt.Errorf("minio init: %w", err)
		}
		archive = store
		checkers["archive"] = middleware.CheckerFunc(store.Check)
	}

	svc := &appocr.Service{
		Fetcher:   fetch.NewHTTPFetcher(cfg.OCR.FetchTimeout),
		Extractor: newExtractor(cfg),
		Archive:   archive,
		Audit:     audit,
		Clock:     application.SystemClock{},
		Logger:    logger,
		MIMEType:  cfg.OCR.MIMEType,
	}

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimit.Capacity > 0 {
		limiter = middleware.NewRateLimiter(ctx, cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillRate)
	}

	handler := httpserver.NewRouter(svc, httpserver.Options{
		Logger:         logger,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RateLimiter:    limiter,
		HealthCheckers: checkers,
		HistoryEnabled: audit != nil,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("ocr relay listening",
		zap.String("addr", addr),
		zap.String("provider", cfg.OCR.Provider),
		zap.Bool("audit", audit != nil),
		zap.Bool("archive", archive != nil),
	)
	if err := serveHTTPServer(srv, 5*time.Second, logger, nil, nil); err != nil {
		logger.Error("server error", zap.Error(err))
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func newExtractor(cfg *config.Config) domain.Extractor {
	if cfg.OCR.Provider == config.ProviderOpenAI {
		return openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL)
	}
	return gemini.NewClient(cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.BaseURL)
}

// initAudit connects the optional extraction audit log.
func initAudit(ctx context.Context, cfg *config.Config) (domain.Repository, *sql.DB, error) {
	switch cfg.Database.Driver {
	case config.DriverMySQL:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, err
		}
		repo := mysqlp.NewExtractionRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return repo, db, nil
	case config.DriverPostgres:
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		repo := postgresp.NewExtractionRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return repo, db, nil
	default:
		return nil, nil, nil
	}
}

// serveHTTPServer runs srv until it fails or a shutdown signal arrives. A nil
// listener means ListenAndServe; a nil signalCh means SIGINT/SIGTERM.
func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
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

	if signalCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signalCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig := <-signalCh:
		logger.Info("shutting down server", zap.Stringer("signal", sig))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return err
		}
		return <-errCh
	}
}
