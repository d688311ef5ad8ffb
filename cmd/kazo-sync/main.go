package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"kazo/internal/amqp"
	"kazo/internal/cli"
	"kazo/internal/config"
	"kazo/internal/core"
	"kazo/internal/health"
	"kazo/internal/log"
	"kazo/internal/metrics"
	"kazo/internal/sheets"
	gsheet "kazo/internal/sheets/google"
	"kazo/internal/sheets/memory"
	"kazo/internal/worker"
)

const backfillDays = 30

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg)

	logger.Info("Starting kazo-sync")

	mirror, name := newMirror(cfg, logger)

	repo := cli.InitSQLite(logger, cfg.DBPath)
	defer repo.Close()

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the sync worker")
		return
	}
	cli.MustValidate(logger, func() error {
		if name == "memory" {
			return nil
		}
		return cfg.ValidateSync()
	})

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		return
	}
	defer client.Close()

	m := metrics.New(prometheus.NewRegistry())
	w := worker.NewSyncWorker(repo, mirror, logger, m)

	var healthSrv *health.Server
	if cfg.HealthCheckPort > 0 {
		healthSrv = health.NewServer(fmt.Sprintf(":%d", cfg.HealthCheckPort), []health.Check{
			{Name: "db", Critical: true, Run: func(ctx context.Context) (string, error) {
				return "ok", repo.Ping(ctx)
			}},
			{Name: "amqp", Critical: true, Run: func(context.Context) (string, error) {
				return "ok", client.Ping()
			}},
			{Name: "mirror", Run: func(context.Context) (string, error) {
				return name, nil
			}},
		}, m.Handler(), logger)
		healthSrv.Start()
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if healthSrv != nil {
			if err := healthSrv.Shutdown(ctx); err != nil {
				logger.Error("Health server shutdown error", log.FieldError, err)
			}
		}
	})

	// Rows missed while the worker was down.
	if len(cfg.AllowedChatIDs) > 0 {
		today := core.Today(time.Now())
		if _, _, err := w.Backfill(ctx, cfg.AllowedChatIDs, today.AddDays(-backfillDays), today); err != nil {
			logger.Error("Startup backfill failed", log.FieldError, err)
		}
	}

	logger.Info("Consuming expense events", "queue", cfg.AMQPQueue, "mirror", name)
	if err := client.Consume(ctx, w.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		return
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Sync worker stopped gracefully")
}

// newMirror connects to Google Sheets when a spreadsheet is configured and
// falls back to an in-memory mirror for local runs.
func newMirror(cfg *config.Config, logger *log.Logger) (sheets.Mirror, string) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, mirroring to memory")
		return memory.New(), "memory"
	}
	creds, err := gsheet.LoadCredentials(cfg.GoogleServiceAccountJSON, cfg.GoogleServiceAccountFile)
	if err != nil {
		logger.Error("Failed to load Google credentials", log.FieldError, err)
		return memory.New(), "memory"
	}
	client, err := gsheet.New(context.Background(), gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: creds,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		return memory.New(), "memory"
	}
	logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, "google_sheets"
}
