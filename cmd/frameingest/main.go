// Command frameingest serves the profile ingestion HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/MrWong99/frameingest/internal/app"
	"github.com/MrWong99/frameingest/internal/config"
	"github.com/MrWong99/frameingest/internal/observe"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

type flags struct {
	config string
	env    string
	watch  bool
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "config.yaml", "path to the YAML configuration file")
	flag.StringVar(&f.env, "env", ".env", "optional dotenv file loaded before the config")
	flag.BoolVar(&f.watch, "watch", true, "reload log level and enrichment settings when the config file changes")
	flag.Parse()

	os.Exit(run(f, os.Stderr))
}

func run(f flags, stderr io.Writer) int {
	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(stderr, "frameingest: %v\n", err)
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(app.ParseLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	stopTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		SampleRatio:    cfg.Telemetry.TraceSampleRatio,
		Registry:       promReg,
	})
	if err != nil {
		slog.Error("telemetry setup failed", "err", err)
		return 1
	}

	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)
	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		slog.Error("provider setup failed", "err", err)
		return 1
	}

	a, err := app.New(ctx, cfg, providers,
		app.WithLogLevel(level),
		app.WithMetricsHandler(observe.MetricsHandler(promReg)),
	)
	if err != nil {
		slog.Error("application setup failed", "err", err)
		return 1
	}

	if f.watch {
		w, err := config.NewWatcher(f.config,
			func(d config.ConfigDiff, _ *config.Config) { a.ApplyConfigDiff(d) },
			config.WithLogger(slog.Default().With("component", "config")))
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("frameingest ready", startupAttrs(cfg, f.config)...)

	code := 0
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server stopped", "err", err)
		code = 1
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.RequestTimeout+5*time.Second)
	defer cancel()
	if err := a.Shutdown(sctx); err != nil {
		slog.Error("shutdown", "err", err)
		code = 1
	}
	if err := stopTelemetry(sctx); err != nil {
		slog.Warn("telemetry shutdown", "err", err)
	}
	slog.Info("frameingest stopped")
	return code
}

func loadConfig(f flags) (*config.Config, error) {
	if err := config.LoadDotEnv(f.env); err != nil {
		return nil, err
	}
	cfg, err := config.Load(f.config)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", f.config)
	}
	return cfg, err
}

func startupAttrs(cfg *config.Config, path string) []any {
	return []any{
		"version", version,
		"config", path,
		"listen_addr", cfg.Server.ListenAddr,
		"tls", cfg.Server.TLS != nil,
		"log_level", cfg.Server.LogLevel,
		"llm", entryLabel(cfg.Providers.LLM),
		"embeddings", entryLabel(cfg.Providers.Embeddings),
		"llm_fallbacks", len(cfg.Providers.LLMFallbacks),
		"embeddings_fallbacks", len(cfg.Providers.EmbeddingsFallbacks),
		"store", string(cfg.Store.Driver),
		"dimensions", cfg.Store.EmbeddingDimensions,
	}
}

func entryLabel(e config.ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + "/" + e.Model
}
