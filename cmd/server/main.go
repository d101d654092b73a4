package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aegisgate/aegis/internal/agent"
	"github.com/aegisgate/aegis/internal/api"
	"github.com/aegisgate/aegis/internal/config"
	"github.com/aegisgate/aegis/internal/database"
	"github.com/aegisgate/aegis/internal/guardrails"
	"github.com/aegisgate/aegis/internal/logger"
	"github.com/aegisgate/aegis/internal/middleware"
	"github.com/aegisgate/aegis/internal/security"
	"github.com/aegisgate/aegis/internal/services/audit"
	"github.com/aegisgate/aegis/internal/services/ratelimit"
	"github.com/aegisgate/aegis/internal/tools"
)

type AppMode struct {
	DatabaseAvailable bool
	RedisAvailable    bool
	IsLiteMode        bool
}

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appMode := detectDependencies(cfg, log)

	if appMode.IsLiteMode {
		log.Warn("Running in LITE MODE - embedded database, in-memory rate limiting",
			zap.Bool("database", appMode.DatabaseAvailable),
			zap.Bool("redis", appMode.RedisAvailable))
	} else {
		log.Info("Running in FULL MODE")
	}

	dbConfig := &database.Config{
		DSN:             cfg.Database.URL,
		MaxConnections:  cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		Lite:            !appMode.DatabaseAvailable,
	}
	if err := database.Initialize(dbConfig); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()
	db := database.GetDB()

	if err := tools.Seed(db); err != nil {
		log.Warn("Failed to seed workplace data", zap.Error(err))
	}

	// Security primitives
	detector, err := security.NewDetector(log, cfg.Guardrails.CustomPIIPatterns)
	if err != nil {
		log.Fatal("Invalid PII pattern configuration", zap.Error(err))
	}
	redactor := security.NewRedactor(detector, log)
	rbac, err := security.NewRBACManager(security.ToolAccessPolicy{
		EmployeeTools: cfg.Guardrails.EmployeeTools,
		AdminTools:    cfg.Guardrails.AdminTools,
	}, log)
	if err != nil {
		log.Fatal("Invalid tool access policy", zap.Error(err))
	}

	// Guardrails engine with the async audit trail
	auditLogger := audit.NewLogger(db, log)
	defer auditLogger.Close()

	baseline := guardrails.NewBaselineBackend(detector, redactor, rbac, log)
	engine := guardrails.NewEngine(guardrails.Config{
		EvaluationTimeout: cfg.Guardrails.EvaluationTimeout,
		RulesURL:          cfg.Guardrails.RulesURL,
		RulesTimeout:      cfg.Guardrails.RulesTimeout,
	}, baseline, auditLogger, log)
	log.Info("Guardrails engine ready", zap.String("backend", engine.BackendName()))

	// Tool registry and the scripted agent behind the gate
	registry := tools.NewRegistry(log)
	for _, tool := range []tools.Tool{
		tools.NewKBSearchTool(db, log),
		tools.NewCreateTicketTool(db, log),
		tools.NewUserProfileTool(db, rbac, redactor, log),
		tools.NewQueryDatabaseTool(db, log),
		tools.NewWebSearchTool(log),
		tools.NewSensitiveDocsTool(db, rbac, log),
	} {
		if err := registry.Register(tool); err != nil {
			log.Fatal("Failed to register tool", zap.Error(err))
		}
	}
	scripted := agent.NewScriptedAgent(registry, engine, log)

	// Rate limiter: Redis-backed when available, in-memory otherwise
	var limiter ratelimit.RateLimiter
	healthChecks := map[string]func() error{
		"database": func() error {
			if !database.IsHealthy() {
				return fmt.Errorf("ping failed")
			}
			return nil
		},
	}
	if cfg.RateLimit.Enabled {
		if appMode.RedisAvailable {
			opts, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				log.Fatal("Invalid Redis URL", zap.Error(err))
			}
			if cfg.Redis.Password != "" {
				opts.Password = cfg.Redis.Password
			}
			opts.DB = cfg.Redis.DB
			opts.PoolSize = cfg.Redis.PoolSize
			client := redis.NewClient(opts)
			defer client.Close()

			limiter = ratelimit.NewFixedWindowLimiter(client, log)
			healthChecks["redis"] = func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				return client.Ping(ctx).Err()
			}
		} else {
			limiter = ratelimit.NewInMemoryLimiter(log)
		}
	}

	router := api.NewRouter(api.RouterConfig{
		Logger:     log,
		Auth:       middleware.NewAuthMiddleware(cfg.JWT.SecretKey, rbac, log),
		Limiter:    limiter,
		RateLimit:  cfg.RateLimit.RequestsPerWindow,
		RateWindow: cfg.RateLimit.Window,
		Chat:       api.NewChatHandler(engine, scripted, log),
		Tools:      api.NewToolsHandler(rbac, log),
		Violations: api.NewViolationsHandler(auditLogger, rbac, log),
		Health:     api.NewHealthHandler(engine, healthChecks),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("API server starting", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("API server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server shutdown complete")
}

// detectDependencies checks whether PostgreSQL and Redis are reachable.
func detectDependencies(cfg *config.Config, log *zap.Logger) AppMode {
	mode := AppMode{}

	if cfg.Database.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := database.TestConnection(ctx, &database.Config{
			DSN:             cfg.Database.URL,
			MaxConnections:  1,
			MaxIdleConns:    1,
			ConnMaxLifetime: 5 * time.Second,
		}); err == nil {
			mode.DatabaseAvailable = true
		} else {
			log.Debug("Database is not available", zap.Error(err))
		}
	}

	if cfg.Redis.URL != "" {
		if opts, err := redis.ParseURL(cfg.Redis.URL); err == nil {
			client := redis.NewClient(opts)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if client.Ping(ctx).Err() == nil {
				mode.RedisAvailable = true
			}
			cancel()
			client.Close()
		}
	}

	mode.IsLiteMode = !mode.DatabaseAvailable || !mode.RedisAvailable

	if os.Getenv("AEGIS_LITE_MODE") == "true" {
		mode.IsLiteMode = true
		log.Info("LITE MODE forced via environment variable")
	}

	return mode
}
