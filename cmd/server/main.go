package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"github.com/iokaravas/ksDiscordBot/internal/config"
	"github.com/iokaravas/ksDiscordBot/internal/logging"
	"github.com/iokaravas/ksDiscordBot/internal/metrics"
	"github.com/iokaravas/ksDiscordBot/internal/notifier"
	"github.com/iokaravas/ksDiscordBot/internal/processor"
	"github.com/iokaravas/ksDiscordBot/internal/stats"
)

func main() {
	slog.Info("Starting Kickstarter Discord bot...")
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Bot exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped.")
}

func run(ctx context.Context, cfg *config.Config) error {
	var browser stats.PageLoader
	if cfg.BrowserFallback {
		browser = stats.NewBrowser()
	}
	fetcher := stats.New(cfg, browser)
	channel := notifier.New(cfg.DiscordAPIURL, cfg.BotToken, cfg.ChannelID)

	reg := metrics.NewRegistry()
	recorder := metrics.New(reg)

	bot, err := processor.New(*cfg, fetcher, channel,
		processor.WithRecorder(recorder),
		processor.WithListener(processor.SlogListener{Logger: logging.WithCampaign(cfg.Campaign)}),
	)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})
	mux.Handle("/metrics", metrics.Handler(reg))

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := bot.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		slog.Info("Shutting down gracefully...")
		bot.Stop()
		return nil
	})
	g.Go(func() error {
		slog.Info("Listening on port", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})
	return g.Wait()
}
