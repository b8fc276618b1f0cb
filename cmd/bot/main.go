package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"keyword_bot/internal/bot"
	"keyword_bot/internal/config"
	"keyword_bot/internal/dispatcher"
	"keyword_bot/internal/prober"
	"keyword_bot/internal/reconciler"
	"keyword_bot/internal/registry"
	"keyword_bot/internal/roomqueue"
	"keyword_bot/internal/scheduler"
	"keyword_bot/internal/session"
	"keyword_bot/internal/storage"
	"keyword_bot/internal/subscription"
)

const sessionSweepInterval = 5 * time.Minute

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file with configuration")
	pflag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		slog.Error("load env file", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	b, err := bot.New(cfg.TelegramBotToken, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	probeOpts := prober.DefaultOptions()
	probeOpts.Timeout = cfg.ProbeTimeout
	probeOpts.Retries = cfg.ProbeRetries
	probeOpts.ExhaustedIsUnreachable = cfg.ProbeExhaustedUnreachable

	lanes := roomqueue.New()
	reg := registry.New(store, prober.New(b, probeOpts), log.With("component", "registry"))
	reg.SetSerializer(lanes)
	reg.SetConcurrency(cfg.ProbeConcurrency)

	disp := dispatcher.New(store, b, log.With("component", "dispatcher"))
	disp.SetSendRate(cfg.SendRate)

	sessions := session.New(cfg.SessionTTL)
	b.Attach(bot.Services{
		Rooms:         reg,
		Subscriptions: subscription.New(store, cfg.MaxKeywordsPerAdd, cfg.MaxKeywordsPerRoom),
		Events:        reconciler.New(reg, disp, log.With("component", "reconciler")),
		Sessions:      sessions,
		Lanes:         lanes,
	})

	sched := scheduler.New(reg, log.With("component", "scheduler"))
	sched.SetTickInterval(cfg.HealthCheckInterval)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Run(ctx)
		return nil
	})
	g.Go(func() error {
		sessions.RunSweeper(ctx, sessionSweepInterval)
		return nil
	})
	g.Go(func() error {
		defer cancel()
		b.Run(ctx)
		return nil
	})
	_ = g.Wait()

	log.Info("bot stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
