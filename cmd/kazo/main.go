package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"kazo/internal/amqp"
	"kazo/internal/cache"
	"kazo/internal/cli"
	"kazo/internal/config"
	"kazo/internal/currency"
	"kazo/internal/health"
	"kazo/internal/llm"
	"kazo/internal/log"
	"kazo/internal/metrics"
	"kazo/internal/pending"
	"kazo/internal/ratelimit"
	"kazo/internal/services"
	"kazo/internal/telegram"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg)
	cli.MustValidate(logger, cfg.Validate)

	logger.Info("Starting kazo", "db", cfg.DBPath, "base_currency", cfg.BaseCurrency)

	repo := cli.InitSQLite(logger, cfg.DBPath)
	defer repo.Close()

	m := metrics.New(prometheus.NewRegistry())

	rates := currency.NewService(repo, repo,
		currency.NewHTTPProvider(cfg.ExchangeRateURL, &http.Client{Timeout: 10 * time.Second}),
		currency.Options{
			MaxAge:      cfg.ExchangeRateMaxAge,
			DefaultBase: cfg.BaseCurrency,
			Logger:      logger,
			Metrics:     m,
		})

	limiter := ratelimit.NewLimiter(ratelimit.Config{Limit: cfg.RateLimitPerHour, Window: time.Hour})
	defer limiter.Stop()
	model, settings := newModel(cfg, logger, m)

	opts := []services.ExpenseServiceOption{services.WithExpenseMetrics(m)}
	var publisher *amqp.Client
	if cfg.AMQPEnabled() {
		var err error
		publisher, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		} else {
			defer publisher.Close()
			opts = append(opts, services.WithPublisher(publisher))
			logger.Info("Publishing expense events", "exchange", cfg.AMQPExchange)
		}
	}

	registry := pending.NewRegistry(cfg.PendingTTL, nil)
	caches := cache.NewManager(logger)
	caches.Register(registry)
	caches.Register(rates.BaseCache())
	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	b, err := telegram.New(telegram.Config{
		Token:   cfg.TelegramToken,
		Debug:   cfg.Debug,
		Allowed: cfg.ChatAllowed,
	}, telegram.Deps{
		Expenses:      services.NewExpenseService(repo, rates, logger, opts...),
		Subscriptions: services.NewSubscriptionService(repo, rates, logger),
		Budgets:       services.NewBudgetService(repo),
		Categories:    services.NewCategoryService(repo),
		Summary:       services.NewSummaryService(repo),
		Rates:         rates,
		LLM:           llm.NewLimited(model, limiter),
		Registry:      registry,
		Backup:        repo,
		Metrics:       m,
		Settings:      settings,
	}, logger)
	if err != nil {
		logger.Error("Failed to create Telegram bot", log.FieldError, err)
		return
	}

	checks := []health.Check{
		{Name: "db", Critical: true, Run: func(ctx context.Context) (string, error) {
			return "ok", repo.Ping(ctx)
		}},
		{Name: "llm", Run: func(context.Context) (string, error) {
			return fmt.Sprintf("%s (%s)", settings.Backend, settings.Model), nil
		}},
	}
	if publisher != nil {
		checks = append(checks, health.Check{Name: "amqp", Run: func(context.Context) (string, error) {
			return "ok", publisher.Ping()
		}})
	}
	var healthSrv *health.Server
	if cfg.HealthCheckPort > 0 {
		healthSrv = health.NewServer(fmt.Sprintf(":%d", cfg.HealthCheckPort), checks, m.Handler(), logger)
		healthSrv.Start()
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if healthSrv != nil {
			if err := healthSrv.Shutdown(ctx); err != nil {
				logger.Error("Health server shutdown error", log.FieldError, err)
			}
		}
	})

	if err := b.Start(ctx); err != nil {
		logger.Error("Bot stopped", log.FieldError, err)
		return
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Kazo stopped gracefully")
}

// newModel picks the OpenAI-compatible API when a key is configured and the
// local CLI otherwise.
func newModel(cfg *config.Config, logger *log.Logger, m llm.Metrics) (llm.Client, telegram.Settings) {
	if cfg.LLMAPIKey != "" {
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
			Timeout: cfg.LLMTimeout,
			Logger:  logger,
			Metrics: m,
		}), telegram.Settings{Backend: "openai", Model: cfg.LLMModel}
	}
	return llm.NewCLIClient(llm.CLIConfig{
		Command: cfg.LLMCLICommand,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
		Logger:  logger,
		Metrics: m,
	}), telegram.Settings{Backend: "cli:" + cfg.LLMCLICommand, Model: cfg.LLMModel}
}
