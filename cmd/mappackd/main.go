// mappackd serves the mappack HTTP API.
//
// It reads configuration from an optional YAML file (--config or
// MAPPACK_CONFIG) layered over defaults and environment overrides, then
// listens until SIGINT or SIGTERM.
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

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/meigma/mappack"
	mphttp "github.com/meigma/mappack/http"
	"github.com/meigma/mappack/internal/config"
	"github.com/meigma/mappack/internal/server"
	"github.com/meigma/mappack/internal/telemetry"
	"github.com/meigma/mappack/osu"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath string
	listen     string
	logLevel   string
	logFormat  string
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := pflag.NewFlagSet("mappackd", pflag.ContinueOnError)
	fs.StringVarP(&f.configPath, "config", "c", os.Getenv(config.ConfigEnv), "path to YAML config file")
	fs.StringVar(&f.listen, "listen", "", "listen address (overrides config)")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	fs.StringVar(&f.logFormat, "log-format", "", "json or text (overrides config)")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if fs.NArg() > 0 {
		return f, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return f, nil
}

func loadConfig(f flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.listen != "" {
		cfg.Listen = f.listen
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
}

func run() error {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	meters, shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		Insecure:     cfg.Telemetry.Insecure,
		Interval:     cfg.Telemetry.Interval,
		ServiceName:  cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("failed to flush metrics", "error", err)
		}
	}()

	tokens, closeTokens := newTokenSource(cfg, logger)
	defer closeTokens()

	osuOpts := []osu.Option{
		osu.WithAPIURL(cfg.Osu.APIURL),
		osu.WithRateLimit(rate.Limit(cfg.Osu.RateLimit), cfg.Osu.Burst),
		osu.WithTimeout(cfg.Osu.Timeout),
		osu.WithLogger(logger.With("component", "osu")),
	}
	if cfg.Osu.UserAgent != "" {
		osuOpts = append(osuOpts, osu.WithUserAgent(cfg.Osu.UserAgent))
	}
	metadata := osu.NewClient(tokens, osuOpts...)

	fetcherOpts := []mphttp.Option{
		mphttp.WithMirrors(cfg.Mirrors.URLs...),
		mphttp.WithTimeout(cfg.Mirrors.Timeout),
		mphttp.WithMaxBytes(cfg.Mirrors.MaxBytes),
		mphttp.WithLogger(logger.With("component", "mirror")),
	}
	if cfg.Mirrors.UserAgent != "" {
		fetcherOpts = append(fetcherOpts, mphttp.WithHeader("User-Agent", cfg.Mirrors.UserAgent))
	}
	archives := mphttp.NewFetcher(fetcherOpts...)

	packs, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	compression, err := mappack.ParseCompression(cfg.Build.Compression)
	if err != nil {
		return err
	}

	svc, err := mappack.New(
		mappack.WithStore(packs),
		mappack.WithMetadataClient(metadata),
		mappack.WithArchiveFetcher(archives),
		mappack.WithPublicBaseURL(cfg.PublicBaseURL),
		mappack.WithConcurrency(cfg.Build.Concurrency),
		mappack.WithCompression(compression),
		mappack.WithBuildTimeout(cfg.Build.Timeout),
		mappack.WithLogger(logger),
		mappack.WithMeterProvider(meters),
	)
	if err != nil {
		return err
	}

	srvOpts := []server.Option{
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithLogger(logger),
	}
	if cfg.Server.ServePacks {
		srvOpts = append(srvOpts, server.WithPackStore(packs))
	}
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.New(svc, cfg.InternalKey, srvOpts...).Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen, "store", cfg.Store.Type)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newTokenSource builds the osu! token source, sharing tokens through Redis
// when configured.
func newTokenSource(cfg *config.Config, logger *slog.Logger) (*osu.TokenSource, func()) {
	opts := []osu.TokenOption{
		osu.WithTokenURL(cfg.Osu.TokenURL),
		osu.WithTokenCacheTTL(cfg.Osu.TokenCacheTTL),
		osu.WithTokenLogger(logger.With("component", "osu-token")),
	}
	closer := func() {}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		opts = append(opts, osu.WithTokenStore(osu.NewRedisTokenStore(rdb, cfg.Redis.KeyPrefix)))
		closer = func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("failed to close redis client", "error", err)
			}
		}
	}
	return osu.NewTokenSource(cfg.Osu.ClientID, cfg.Osu.ClientSecret, opts...), closer
}
