package main

import (
	"context"
	"errors"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/mobile-otp-auth/config"
	"github.com/oksasatya/mobile-otp-auth/internal/application"
	"github.com/oksasatya/mobile-otp-auth/internal/domain/entity"
	"github.com/oksasatya/mobile-otp-auth/internal/domain/repository"
	esinfra "github.com/oksasatya/mobile-otp-auth/internal/infrastructure/elasticsearch"
	pginfra "github.com/oksasatya/mobile-otp-auth/internal/infrastructure/postgres"
	sqliteinfra "github.com/oksasatya/mobile-otp-auth/internal/infrastructure/sqlite"
	"github.com/oksasatya/mobile-otp-auth/pkg/helpers"
)

type demoUser struct {
	id, mobile, first, last, email string
	dob                            time.Time
}

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

var demoUsers = []demoUser{
	{"11111111-1111-1111-1111-111111111111", "09123456789", "John", "Doe", "john.doe@example.com", day(1990, time.January, 1)},
	{"22222222-2222-2222-2222-222222222222", "09234567890", "Jane", "Smith", "jane.smith@example.com", day(1985, time.May, 15)},
	{"33333333-3333-3333-3333-333333333333", "09345678901", "Alice", "Johnson", "alice.johnson@example.com", day(1992, time.September, 30)},
	{"44444444-4444-4444-4444-444444444444", "09456789012", "Bob", "Williams", "bob.williams@example.com", day(1988, time.March, 20)},
	{"55555555-5555-5555-5555-555555555555", "09567890123", "Charlie", "Brown", "charlie.brown@example.com", day(1995, time.July, 10)},
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env)
	ctx := context.Background()

	store, closeStore := open(ctx, cfg, logger)
	defer closeStore()

	inserted := 0
	for _, d := range demoUsers {
		u := entity.RestoreUser(entity.UserSnapshot{
			ID:           d.id,
			MobileNumber: d.mobile,
			IsVerified:   true,
			FirstName:    d.first,
			LastName:     d.last,
			Email:        d.email,
			DateOfBirth:  d.dob,
		})
		err := store.WithinTx(ctx, func(ctx context.Context, users repository.UserRepository) error {
			if _, err := users.FindByMobileNumber(ctx, d.mobile); err == nil {
				return application.ErrUserAlreadyExists
			} else if !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			return users.Add(ctx, u)
		})
		switch {
		case errors.Is(err, application.ErrUserAlreadyExists), errors.Is(err, repository.ErrDuplicateMobile):
			logger.WithField("mobile_number", d.mobile).Info("already seeded")
		case err != nil:
			logger.Fatalf("failed to seed %s: %v", d.mobile, err)
		default:
			inserted++
		}
	}
	logger.WithField("inserted", inserted).Info("demo users seeded")

	if cfg.SearchBackend != config.SearchElasticsearch {
		return
	}
	es, err := helpers.NewESClient(cfg.ESAddrs(), cfg.ElasticsearchUser, cfg.ElasticsearchPass)
	if err != nil {
		logger.Fatalf("failed to init elasticsearch client: %v", err)
	}
	index := esinfra.NewUserIndex(es, cfg.ESUsersIndex)
	if err := index.EnsureIndex(ctx); err != nil {
		logger.Fatalf("failed to ensure index: %v", err)
	}
	n, err := index.Rebuild(ctx, store.Users())
	if err != nil {
		logger.Fatalf("reindex failed after %d users: %v", n, err)
	}
	logger.WithFields(logrus.Fields{"index": cfg.ESUsersIndex, "documents": n}).Info("directory reindexed")
}

func open(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (repository.Store, func()) {
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
		return pginfra.NewStore(db), func() {
			_ = db.Close()
			pool.Close()
		}
	case config.DriverSQLite:
		db, err := sqliteinfra.New(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatalf("failed to open sqlite: %v", err)
		}
		if err := sqliteinfra.Migrate(ctx, db); err != nil {
			logger.Fatalf("migration failed: %v", err)
		}
		return sqliteinfra.NewStore(db), func() { _ = db.Close() }
	default:
		logger.Fatalf("seeding needs a persistent DB_DRIVER, got %q", cfg.DBDriver)
		return nil, nil
	}
}
