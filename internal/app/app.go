// Package app wires configuration, storage and integrations into the HTTP
// server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/trustlend/trustlend/internal/analysis"
	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/assessment"
	"github.com/trustlend/trustlend/internal/chain"
	"github.com/trustlend/trustlend/internal/config"
	"github.com/trustlend/trustlend/internal/db"
	"github.com/trustlend/trustlend/internal/document"
	"github.com/trustlend/trustlend/internal/http/api/front"
	"github.com/trustlend/trustlend/internal/llm"
	"github.com/trustlend/trustlend/internal/loanrequest"
	"github.com/trustlend/trustlend/internal/passport"
	"github.com/trustlend/trustlend/internal/profile"
	"github.com/trustlend/trustlend/internal/ratelimit"
	"github.com/trustlend/trustlend/internal/vault"
	"github.com/trustlend/trustlend/internal/vision"
	"github.com/trustlend/trustlend/internal/wallet"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	info, err := os.Stat(configPath)
	return err == nil && !info.IsDir()
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// RunServer boots the API server and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	svcCfg, err := config.LoadServiceConfig(configPath)
	if err != nil {
		return err
	}
	logCloser, err := ConfigureLogging(svcCfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()
	if !ConfigExists(configPath) {
		log.Infof("config file %s not found, using defaults and environment", configPath)
	}

	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	jwtConfig, _ := config.LoadJWTConfig(configPath)
	if jwtConfig.Secret == "" {
		return fmt.Errorf("jwt secret is not configured (set jwt.secret or %s)", config.EnvJWTSecret)
	}

	services, cleanup, err := buildServices(ctx, conn, svcCfg)
	if err != nil {
		return err
	}
	defer cleanup()

	assessment.NewSweeper(services.Assessments, svcCfg.Assessment).Start(ctx)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(front.RequestLogger())
	engine.Use(corsMiddleware())
	front.RegisterFrontRoutes(engine, conn, jwtConfig, services)

	srv := &http.Server{
		Addr:              svcCfg.ListenAddr(defaultPort),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting trustlend on %s with config=%s", srv.Addr, configPath)
	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	return nil
}

// buildServices constructs every domain service. Integrations without
// credentials are left disabled and logged.
func buildServices(ctx context.Context, conn *gorm.DB, cfg config.ServiceConfig) (front.Services, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	analysisCompleter, errAnalysis := newCompleter(ctx, "analysis", cfg.Analysis)
	if errAnalysis != nil {
		return front.Services{}, cleanup, errAnalysis
	}
	closers = append(closers, func() { _ = llm.Close(analysisCompleter) })

	visionCompleter, errVision := newCompleter(ctx, "vision", cfg.Vision)
	if errVision != nil {
		cleanup()
		return front.Services{}, func() {}, errVision
	}
	closers = append(closers, func() { _ = llm.Close(visionCompleter) })

	var store vault.Store
	if cfg.Vault.Bucket != "" {
		s3Store, errS3 := vault.NewS3Store(ctx, cfg.Vault)
		if errS3 != nil {
			cleanup()
			return front.Services{}, func() {}, errS3
		}
		store = s3Store
	} else {
		log.Warn("vault: no bucket configured, sealed documents are kept in memory")
		store = vault.NewMemoryStore()
	}

	requests := loanrequest.NewService(conn)
	var waiter chain.Waiter
	confirmer, closeChain, errChain := chain.Dial(ctx, cfg.Chain)
	switch {
	case errChain == nil:
		waiter = confirmer
		closers = append(closers, closeChain)
	case errors.Is(errChain, apperr.ErrNotConfigured):
		log.Warn("chain: no rpc url configured, publish and fund are disabled")
	default:
		cleanup()
		return front.Services{}, func() {}, errChain
	}

	limiter := ratelimit.NewManager(cfg.RateLimit, nil, nil)
	closers = append(closers, func() { _ = limiter.Close() })

	passportClient := passport.NewClient(cfg.Passport)
	if !passportClient.Enabled() {
		log.Warn("passport: api key or scorer id missing, humanity scores are disabled")
	}
	analyzer := analysis.NewAnalyzer(analysisCompleter, cfg.Analysis.Temperature, cfg.Analysis.MaxTokens)

	return front.Services{
		Profiles:     profile.NewService(conn),
		Wallets:      wallet.NewService(conn, passportClient),
		Passport:     passportClient,
		LoanRequests: requests,
		Documents:    document.NewService(conn),
		Assessments:  assessment.NewService(conn, analyzer),
		Analyzer:     analyzer,
		Vision:       vision.NewClient(visionCompleter, cfg.Vision.MaxTokens),
		Vault:        vault.NewService(conn, store, cfg.Vault.Prefix),
		Publisher:    chain.NewPublisher(waiter, requests),
		Limiter:      limiter,
	}, cleanup, nil
}

// newCompleter returns nil without error when the role has no credentials.
func newCompleter(ctx context.Context, role string, cfg config.LLMConfig) (llm.Completer, error) {
	completer, err := llm.New(ctx, cfg)
	if errors.Is(err, apperr.ErrNotConfigured) {
		log.Warnf("%s: no api key configured, using fallback results", role)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", role, err)
	}
	return completer, nil
}

// corsMiddleware enables permissive CORS for browser clients.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
