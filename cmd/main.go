package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/mobile-otp-auth/config"
	"github.com/oksasatya/mobile-otp-auth/internal/application"
	"github.com/oksasatya/mobile-otp-auth/internal/container"
	"github.com/oksasatya/mobile-otp-auth/internal/domain/repository"
	esinfra "github.com/oksasatya/mobile-otp-auth/internal/infrastructure/elasticsearch"
	"github.com/oksasatya/mobile-otp-auth/internal/infrastructure/memory"
	"github.com/oksasatya/mobile-otp-auth/internal/infrastructure/messaging"
	pginfra "github.com/oksasatya/mobile-otp-auth/internal/infrastructure/postgres"
	sqliteinfra "github.com/oksasatya/mobile-otp-auth/internal/infrastructure/sqlite"
	"github.com/oksasatya/mobile-otp-auth/internal/interface/middleware"
	"github.com/oksasatya/mobile-otp-auth/internal/router"
	"github.com/oksasatya/mobile-otp-auth/pkg/helpers"
	"github.com/oksasatya/mobile-otp-auth/pkg/validation"
)

type healthChecks map[string]func(ctx context.Context) error

func main() {
	_ = godotenv.Load() // load .env if present

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName, cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()
	checks := healthChecks{}

	store, closeStore := openStore(ctx, cfg, logger, checks)
	defer closeStore()

	// Rate limiting: Redis when reachable, in-process otherwise
	var limiter middleware.Limiter = middleware.NewMemoryLimiter()
	rdb := helpers.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer func() { _ = rdb.Close() }()
	if err := helpers.PingRedis(ctx, rdb, 2*time.Second); err != nil {
		helpers.LogError(logger, "redis unavailable, using in-process rate limiter", err, logrus.Fields{"addr": cfg.RedisAddr})
	} else {
		limiter = middleware.NewFallbackLimiter(middleware.NewRedisLimiter(rdb), limiter, logger)
		checks["redis"] = func(ctx context.Context) error { return helpers.PingRedis(ctx, rdb, time.Second) }
	}

	deps := application.Deps{Store: store, Logger: logger}

	if cfg.SearchBackend == config.SearchElasticsearch {
		es, err := helpers.NewESClient(cfg.ESAddrs(), cfg.ElasticsearchUser, cfg.ElasticsearchPass)
		if err != nil {
			logger.Fatalf("failed to init elasticsearch client: %v", err)
		}
		index := esinfra.NewUserIndex(es, cfg.ESUsersIndex)
		if err := index.EnsureIndex(ctx); err != nil {
			logger.Fatalf("failed to ensure index %s: %v", cfg.ESUsersIndex, err)
		}
		deps.Directory = index
		deps.Indexer = index
		checks["elasticsearch"] = func(ctx context.Context) error { return helpers.PingES(ctx, es, time.Second) }
	}

	if cfg.MailSendEnabled {
		queue, err := helpers.NewRabbitQueue(cfg.RabbitMQURL, cfg.RabbitMQEmailQueue)
		if err != nil {
			logger.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer queue.Close()
		deps.Notifier = messaging.NewEmailNotifier(queue, cfg)
	}

	otp, err := helpers.NewOTPManager(cfg.OTPSecret, helpers.SystemClock{})
	if err != nil {
		logger.Fatalf("invalid OTP secret: %v", err)
	}
	jwtManager, err := helpers.NewJWTManager(helpers.JWTSettings{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}, helpers.SystemClock{})
	if err != nil {
		logger.Fatalf("invalid JWT settings: %v", err)
	}
	deps.OTP = otp
	deps.Tokens = jwtManager

	// Provide singletons to container for registry auto-wiring
	container.SetConfig(cfg)
	container.SetLogger(logger)
	container.SetJWT(jwtManager)
	container.SetLimiter(limiter)
	container.SetService(application.NewService(deps))
	container.SetHealthChecks(checks)

	validation.Init()

	// Gin engine and global middleware
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RealIP(false))
	corsCfg := cors.Config{
		AllowOrigins:     cfg.CORSOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders:    []string{"Content-Length", middleware.HeaderRequestID, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(corsCfg.AllowOrigins) == 0 {
		corsCfg.AllowOrigins = nil
		corsCfg.AllowAllOrigins = true
	}
	r.Use(cors.New(corsCfg))
	if cfg.HTTPLogEnabled {
		r.Use(middleware.RequestLogger(logger))
	}

	reg := router.NewRegistry(r)
	router.InitModules(reg)
	reg.RegisterAll()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.WithFields(logrus.Fields{"port": cfg.Port, "db_driver": cfg.DBDriver, "search": cfg.SearchBackend}).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %s\n", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Fatalf("server forced to shutdown: %v", err)
	}
	logger.Info("server exited properly")
}

// openStore builds the Store selected by DB_DRIVER and runs its migrations.
func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger, checks healthChecks) (repository.Store, func()) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), cfg.DBMaxConns, cfg.DBMinConns, cfg.DBMaxConnLife)
		if err != nil {
			logger.Fatalf("failed to connect to postgres: %v", err)
		}
		db := pginfra.OpenDB(pool)
		if err := pginfra.RunMigrations(db, cfg.MigrationsDir, logger); err != nil {
			logger.Fatalf("migration failed: %v", err)
		}
		checks["postgres"] = pool.Ping
		return pginfra.NewStore(db), func() {
			_ = db.Close()
			pool.Close()
		}
	case config.DriverSQLite:
		db, err := sqliteinfra.New(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatalf("failed to open sqlite %s: %v", cfg.SQLitePath, err)
		}
		if err := sqliteinfra.Migrate(ctx, db); err != nil {
			logger.Fatalf("migration failed: %v", err)
		}
		checks["sqlite"] = db.PingContext
		return sqliteinfra.NewStore(db), func() { _ = db.Close() }
	default:
		logger.Warn("using in-memory store; data is lost on restart")
		return memory.NewStore(), func() {}
	}
}
