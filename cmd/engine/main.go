package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Tanth170203/EduXtend-sub002/internal/app"
	"github.com/Tanth170203/EduXtend-sub002/internal/config"
	"github.com/Tanth170203/EduXtend-sub002/internal/db"
	"github.com/Tanth170203/EduXtend-sub002/internal/jobs"
	"github.com/Tanth170203/EduXtend-sub002/internal/logging"
	"github.com/Tanth170203/EduXtend-sub002/internal/observability"
	"github.com/Tanth170203/EduXtend-sub002/internal/scoring"
)

var release = "dev"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not found, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer lg.Closer()

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, release)
	if err != nil {
		lg.Sugar.Warnw("sentry init failed", "err", err)
	}
	defer flush()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		lg.Sugar.Fatalw("db open", "err", err)
	}
	defer func() { _ = database.Close() }()

	if err := db.Migrate(database); err != nil {
		lg.Sugar.Fatalw("migrate", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, err := scoring.LoadCatalog(ctx, database)
	if err != nil {
		lg.Sugar.Fatalw("criterion catalog", "err", err)
	}
	engine := scoring.NewEngine(database, catalog, lg.Sugar, cfg.Location)

	runner := jobs.New(ctx, lg.Sugar)
	rollover := jobs.NewRollover(database, engine, lg.Sugar, cfg.Location)
	runner.Every(cfg.RolloverInterval, "rollover", rollover.Run)

	app.StartHTTP(ctx, cfg.HTTPAddr, database, engine, lg.Sugar)
	lg.Sugar.Infow("movement scoring engine started", "addr", cfg.HTTPAddr, "rollover_interval", cfg.RolloverInterval)

	<-ctx.Done()
	lg.Sugar.Infow("shutting down")
}
