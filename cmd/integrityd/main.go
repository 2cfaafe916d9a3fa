package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/blackroad/shainfinity/internal/attest"
	"github.com/blackroad/shainfinity/internal/auditlog"
	"github.com/blackroad/shainfinity/internal/integrity"
	"github.com/blackroad/shainfinity/internal/monitor"
	"github.com/blackroad/shainfinity/internal/server/handler"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("integrityd exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("integrityd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("database.url", "")
	viper.SetDefault("hashing.chain_depth", 7)
	viper.SetDefault("attest.secret", "")
	viper.SetDefault("attest.ttl", "15m")
	viper.SetDefault("sweep.interval", "5m")
	viper.SetDefault("sweep.fail_threshold", 2)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	// ── Storage ──────────────────────────────────────────────────────────────
	var (
		store  integrity.Store
		ledger auditlog.Ledger
	)
	dbURL := viper.GetString("database.url")
	if dbURL != "" {
		db, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()

		if err := db.Ping(context.Background()); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")

		store = integrity.NewPostgresStore(db)
		ledger = auditlog.NewPostgresLedger(db, logger)
	} else {
		logger.Warn("no database.url configured — using in-memory storage, state is lost on restart")
		store = integrity.NewMemoryStore()
		ledger = auditlog.New()
	}

	// ── Audit log startup check ──────────────────────────────────────────────
	startCtx := context.Background()
	if err := ledger.Verify(startCtx); err != nil {
		logger.Warn("audit log integrity check FAILED", zap.Error(err))
	} else {
		n, _ := ledger.Len(startCtx)
		root, _ := ledger.Root(startCtx)
		logger.Info("audit log verified",
			zap.Int("entries", n),
			zap.String("root", root),
		)
	}

	// ── Receipt signer ───────────────────────────────────────────────────────
	secret := viper.GetString("attest.secret")
	if secret == "" {
		// Ephemeral secret: receipts stay valid only for this process.
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("generate attest secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		logger.Warn("no attest.secret configured — generated an ephemeral one")
	}
	signer, err := attest.NewSigner([]byte(secret), "integrityd", viper.GetDuration("attest.ttl"))
	if err != nil {
		return fmt.Errorf("attest signer: %w", err)
	}

	// ── Services ─────────────────────────────────────────────────────────────
	svc := integrity.NewService(store, ledger, logger)
	svc.SetChainDepth(viper.GetInt("hashing.chain_depth"))

	// ── Drift sweep ──────────────────────────────────────────────────────────
	sweeper := monitor.New(
		storeFileLister{store: store},
		monitor.Config{
			SweepInterval: viper.GetDuration("sweep.interval"),
			FailThreshold: viper.GetInt("sweep.fail_threshold"),
		},
		logger,
	)
	sweeper.SetMetricsRecord(handler.RecordSweepCheck)
	sweeper.SetDrift(func(ctx context.Context, path string) {
		if _, err := ledger.Append(ctx, path, auditlog.ActionVerifyFailed, auditlog.SystemActor, nil); err != nil {
			logger.Warn("record drift in audit log", zap.Error(err))
		}
	})

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("server.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	rps := viper.GetInt("server.rate_limit_rps")
	if rps > 0 {
		router.Use(handler.RateLimiter(rps, rps*2))
	}

	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	handler.NewToolsHandler(logger).Register(v1)
	handler.NewLedgerHandler(ledger, logger).Register(v1)
	handler.NewIntegrityHandler(svc, signer, logger).Register(v1)

	// ── Serve ────────────────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Separate stop channel: the sweeper must not consume the signal the
	// shutdown path below is waiting for.
	sweepStop := make(chan os.Signal)
	go sweeper.Start(sweepStop)

	port := viper.GetInt("server.port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("integrityd HTTP listening", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down integrityd...")
	close(sweepStop)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("integrityd stopped")
	return nil
}

// storeFileLister adapts the artifact store to the monitor's lister.
type storeFileLister struct {
	store integrity.Store
}

func (l storeFileLister) ListWatchedFiles(ctx context.Context) ([]monitor.WatchedFile, error) {
	artifacts, err := l.store.ListByKind(ctx, integrity.KindFile)
	if err != nil {
		return nil, err
	}
	files := make([]monitor.WatchedFile, 0, len(artifacts))
	for _, a := range artifacts {
		files = append(files, monitor.WatchedFile{ID: a.ID, Path: a.Key, Digest: a.Hash})
	}
	return files, nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
