package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MAGICGrants/campaign-site"
	"github.com/MAGICGrants/campaign-site/api"
	"github.com/MAGICGrants/campaign-site/integrations/prometheus"
	"github.com/MAGICGrants/campaign-site/internal/config"
	"github.com/MAGICGrants/campaign-site/service"
	"github.com/MAGICGrants/campaign-site/service/flags"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	confPath  = flag.String("config", "./config.toml", "Config path")
	flagsPath = flag.String("flags", "./flags.json", "Runtime flags path")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "could not load .env:", err)
	}

	if err := config.Load(*confPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	config.SetFlagPath(*flagsPath)

	slog.SetDefault(slog.New(campaign.GetSlogHandler(config.CommonConf.Debug, os.Stdout)))

	if err := run(); err != nil {
		slog.Error("Fatal error", slog.Any("err", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := config.LoadFlags(ctx); err != nil {
		return fmt.Errorf("could not load flags: %w", err)
	}
	// save the flag file for formatting and newly added flags
	if err := config.Save(ctx); err != nil {
		slog.WarnContext(ctx, "Could not save flag file", slog.Any("err", err))
	}

	if config.CommonConf.Debug {
		slog.WarnContext(ctx, "Debug mode activated")
	}

	base, err := service.Initialize(ctx)
	if err != nil {
		return err
	}
	defer base.Close()
	slog.InfoContext(ctx, "Connected to DB")

	base.Start(ctx)
	prometheus.InitMetrics()

	handler := api.New(base).Handler()
	if flags.OtelEnabled.Value() {
		handler = otelhttp.NewHandler(handler, "campaign-site")
	}
	server := &http.Server{
		Addr:    config.CommonConf.ListenAddr,
		Handler: handler,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "Server error", slog.Any("err", err))
			cancel()
		}
	}()
	slog.InfoContext(ctx, "Successfully started", slog.String("addr", config.CommonConf.ListenAddr))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	slog.Info("Shutting down")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := server.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("could not shut down cleanly: %w", err)
	}
	return nil
}
