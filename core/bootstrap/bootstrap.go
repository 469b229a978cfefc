package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/kaoribot/core/config"
	coredatabase "github.com/m3rciful/kaoribot/core/database"
	"github.com/m3rciful/kaoribot/core/logger"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config
	Modules  Modules

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(*sqlx.DB, coredatabase.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB *sqlx.DB
}

// Run initializes the logger, connects to the database, applies migrations
// and runs the registered seeders.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(db, opts.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	if err := opts.Modules.seed(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: seeding failed: %w", err)
	}

	return &Result{DB: db}, nil
}

func (m Modules) seed(ctx context.Context, db *sqlx.DB) error {
	for i, s := range m.Seeders {
		if s == nil {
			continue
		}
		start := time.Now()
		if err := s.Seed(ctx, db); err != nil {
			logger.SEED.Error("seed failed",
				slog.String("event", "db.seed"),
				slog.Int("count", i),
				slog.String("err", err.Error()),
			)
			return err
		}
		logger.SEED.Debug("seed applied",
			slog.String("event", "db.seed"),
			slog.Int("count", i),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	}
	return nil
}
