// Package main implements tklserver, which relays game server kill feeds to
// chat webhooks.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tuokri/tklserver/assets"
	"github.com/tuokri/tklserver/config"
	"github.com/tuokri/tklserver/errors"
	"github.com/tuokri/tklserver/health"
	"github.com/tuokri/tklserver/input/tcp"
	"github.com/tuokri/tklserver/metric"
	"github.com/tuokri/tklserver/natsclient"
	"github.com/tuokri/tklserver/notify"
	"github.com/tuokri/tklserver/output/webhook"
	"github.com/tuokri/tklserver/pkg/retry"
	"github.com/tuokri/tklserver/registry"
	"github.com/tuokri/tklserver/relay"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "tklserver"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, err := parseFlags(args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		cliCfg.usage()
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logger := setupLogger(os.Stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("Starting tklserver",
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config", cfg.String())
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger, cliCfg.ShutdownTimeout)
}

// serve wires the relay from cfg and runs it until ctx is done.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, shutdownTimeout time.Duration) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	metricsRegistry := metric.NewMetricsRegistry()
	metrics := metricsRegistry.CoreMetrics()
	monitor := health.NewMonitor(appName)

	hook, err := webhook.NewClient(webhook.Config{
		APIBase:   cfg.Webhook.APIBase,
		Timeout:   cfg.Webhook.Timeout,
		UserAgent: cfg.Webhook.UserAgent,
	}, webhook.Deps{Logger: logger.With("component", "webhook")})
	if err != nil {
		return fmt.Errorf("create webhook client: %w", err)
	}

	reg := registry.Load(ctx, sourceURLs(cfg), hook, logger.With("component", "registry"))
	metrics.RecordRegistrySize(reg.Len())
	if reg.Len() == 0 {
		logger.Warn("No sources resolved, every line will be discarded")
		monitor.UpdateDegraded(health.ComponentRegistry, "no sources resolved")
	} else {
		monitor.UpdateHealthy(health.ComponentRegistry, fmt.Sprintf("%d sources", reg.Len()))
	}

	icons, err := loadIcons(cfg.Assets.Bundle, metricsRegistry, monitor, logger)
	switch {
	case err == nil:
	case cfg.Assets.Bundle == "":
		logger.Info("No asset bundle configured, kill icons disabled")
	default:
		logger.Warn("Kill icons disabled", "bundle", cfg.Assets.Bundle, "error", err)
	}

	mirror, closeMirror := setupMirror(ctx, cfg.NATS, monitor, logger, metrics)
	defer closeMirror()

	pipeline, err := relay.NewPipeline(relay.Config{
		Location:        loc,
		DeliveryTimeout: cfg.Webhook.Timeout,
	}, relay.Deps{
		Webhook: hook,
		Icons:   icons,
		Mirror:  mirror,
		Logger:  logger.With("component", "relay"),
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	input, err := tcp.NewInput(tcp.Config{
		Address:      cfg.ListenAddress(),
		Encoding:     cfg.Relay.Encoding,
		PollInterval: cfg.Relay.PollInterval,
	}, tcp.Deps{
		Router:     reg,
		Dispatcher: pipeline,
		Logger:     logger.With("component", "tcp-input"),
		Metrics:    metrics,
	})
	if err != nil {
		return err
	}
	if err := input.Start(ctx); err != nil {
		return err
	}
	monitor.AddProbe(health.ComponentListener, input.Health)

	g, gctx := errgroup.WithContext(ctx)

	var metricsServer *metric.Server
	if cfg.Metrics.Port > 0 {
		host, _, _ := net.SplitHostPort(cfg.ListenAddress())
		metricsServer = metric.NewServer(host, cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry, monitor.Check)
		metricsServer.Handle("/health/status", monitor)
		g.Go(metricsServer.Start)
		logger.Info("Serving metrics", "address", metricsServer.Address(), "path", cfg.Metrics.Path)
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", "timeout", shutdownTimeout)

		var errs []error
		if metricsServer != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			errs = append(errs, metricsServer.Stop(stopCtx))
			cancel()
		}
		errs = append(errs, input.Stop(shutdownTimeout))
		return errors.Join(errs...)
	})

	logger.Info("tklserver started", "address", input.Addr().String(), "sources", reg.Len())

	if err := g.Wait(); err != nil {
		return fmt.Errorf("relay stopped: %w", err)
	}

	logger.Info("tklserver shutdown complete")
	return nil
}

func sourceURLs(cfg *config.Config) map[string]string {
	urls := make(map[string]string, len(cfg.Sources))
	for ident, src := range cfg.Sources {
		urls[ident] = src.WebhookURL
	}
	return urls
}

// loadIcons opens the icon bundle. The returned error wraps
// errors.ErrFeatureOff whenever icons end up disabled; the relay then sends
// embeds without images.
func loadIcons(
	path string,
	metricsRegistry *metric.MetricsRegistry,
	monitor *health.Monitor,
	logger *slog.Logger,
) (notify.IconSource, error) {
	if path == "" {
		monitor.UpdateHealthy(health.ComponentAssets, "disabled")
		return nil, errors.ErrFeatureOff
	}

	icons, err := assets.Load(path, assets.Deps{
		Logger:          logger.With("component", "assets"),
		MetricsRegistry: metricsRegistry,
	})
	if err != nil {
		monitor.UpdateDegraded(health.ComponentAssets, "bundle unavailable")
		return nil, fmt.Errorf("%w: %w", errors.ErrFeatureOff, err)
	}
	monitor.UpdateHealthy(health.ComponentAssets, fmt.Sprintf("%d icons", icons.Len()))
	return icons, nil
}

// setupMirror connects the NATS event mirror. A missing URL or a failed
// connection leaves the mirror disabled; the relay runs either way.
func setupMirror(
	ctx context.Context,
	cfg config.NATSConfig,
	monitor *health.Monitor,
	logger *slog.Logger,
	metrics *metric.Metrics,
) (*relay.Mirror, func()) {
	noop := func() {}
	if cfg.URL == "" {
		return nil, noop
	}

	natsLogger := logger.With("component", "natsclient")
	client, err := natsclient.NewClient(cfg.URL, natsOptions(cfg, monitor, natsLogger)...)
	if err != nil {
		logger.Warn("Event mirror disabled", "error", err)
		monitor.UpdateDegraded(health.ComponentMirror, "client unavailable")
		return nil, noop
	}

	if err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		return client.Connect(ctx)
	}); err != nil {
		logger.Warn("Event mirror disabled", "url", cfg.URL, "error", err)
		monitor.UpdateDegraded(health.ComponentMirror, "connect failed")
		return nil, noop
	}

	closeFn := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			natsLogger.Warn("NATS close failed", "error", err)
		}
	}
	return relay.NewMirror(client, cfg.SubjectPrefix, logger.With("component", "mirror"), metrics), closeFn
}

// natsOptions maps the mirror config onto client options. Credentials are
// only passed when set; a token and a user/password pair may be combined.
func natsOptions(cfg config.NATSConfig, monitor *health.Monitor, logger *slog.Logger) []natsclient.ClientOption {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger),
		natsclient.WithName(appName),
		natsclient.WithHealthChangeCallback(monitor.MirrorCallback()),
	}
	if cfg.User != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.User, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}
	return opts
}
