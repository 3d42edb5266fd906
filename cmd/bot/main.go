package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-telegram/bot"

	cadence "github.com/cadence-bot/cadence"
	"github.com/cadence-bot/cadence/internal/config"
	"github.com/cadence-bot/cadence/internal/handler"
	"github.com/cadence-bot/cadence/internal/middleware"
	"github.com/cadence-bot/cadence/internal/repository"
	"github.com/cadence-bot/cadence/internal/scheduler"
	"github.com/cadence-bot/cadence/internal/service"
	"github.com/cadence-bot/cadence/internal/telegram"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Run migrations
	migrationsFS, err := fs.Sub(cadence.MigrationsFS, "migrations")
	if err != nil {
		slog.Error("failed to load embedded migrations", "error", err)
		os.Exit(1)
	}
	if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Create bot
	opts := []bot.Option{
		bot.WithMiddlewares(
			middleware.Recover(),
			middleware.Logging(),
			middleware.RateLimit(config.RateLimitPerWindow, config.RateLimitWindow),
		),
	}
	b, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		slog.Error("failed to create bot", "error", err)
		os.Exit(1)
	}

	me, err := b.GetMe(ctx)
	if err != nil {
		slog.Error("failed to get bot info", "error", err)
		os.Exit(1)
	}
	slog.Info("bot info retrieved", "id", me.ID, "username", me.Username)

	// Wire the engine: stores, collaborators, services
	notifier := telegram.NewNotifier(b)
	audit := telegram.NewAuditLog(b, cfg)
	timers := scheduler.NewTimers(config.TimerHorizon)

	reminderService := service.NewReminderService(service.ReminderDeps{
		Store:  repository.NewReminderRepo(pool),
		Msgr:   notifier,
		Timers: timers,
		Audit:  audit,
	})
	giveawayService := service.NewGiveawayService(service.GiveawayDeps{
		Store: repository.NewGiveawayRepo(pool),
		Ann:   notifier,
		Audit: audit,
	})

	h := handler.New(handler.Deps{
		Bot:       b,
		Cfg:       cfg,
		Reminders: reminderService,
		Giveaways: giveawayService,
	})
	h.Register()

	// Recovery: one synchronous pass at boot, then the periodic sweep.
	// Timers are rebuilt here; they do not survive restarts.
	sweep := scheduler.NewSweep(reminderService, giveawayService,
		config.ReminderSweepInterval, config.GiveawaySweepInterval)
	sweep.Startup(ctx)
	go sweep.Run(ctx)

	// Start bot
	slog.Info("starting bot", "username", me.Username, "id", me.ID)
	b.Start(ctx)

	// Graceful shutdown: pending work is recovered by the next startup pass.
	timers.StopAll()
	giveawayService.StopAll()
	slog.Info("bot stopped gracefully")
}
