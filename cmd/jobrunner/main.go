// jobrunner runs the job status API with its local worker pool ("serve")
// or a broker consumer that executes jobs submitted by API processes
// ("worker").
//
//	jobrunner [--config jobrunner.yaml] [--log-format json] serve
//	jobrunner [--config jobrunner.yaml] --allow-programs Rscript,gnuplot worker
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/jobrunner"
	"github.com/xraph/jobrunner/api"
	audithook "github.com/xraph/jobrunner/audit_hook"
	"github.com/xraph/jobrunner/config"
	"github.com/xraph/jobrunner/engine"
	"github.com/xraph/jobrunner/job"
	"github.com/xraph/jobrunner/observability"
	"github.com/xraph/jobrunner/tasks"
)

var (
	appName = "jobrunner"
	appSha  = "populated-at-link-time"
)

type options struct {
	configPath  string
	logFormat   string
	allowed     []string
	metricsAddr string
	audit       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := makeApp(ctx).Run(os.Args); err != nil {
		slog.Error("jobrunner failed", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}

func makeApp(ctx context.Context) *cli.App {
	app := cli.NewApp()
	app.Name = appName
	app.Version = appSha
	app.Usage = "run jobs in per-job work directories behind a status API"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config",
			EnvVar: "JOBRUNNER_CONFIG",
			Usage:  "Path to a YAML config file",
		},
		cli.StringFlag{
			Name:   "log-format",
			Value:  "json",
			EnvVar: "JOBRUNNER_LOG_FORMAT",
			Usage:  "Log format: json or text",
		},
		cli.StringFlag{
			Name:   "allow-programs",
			EnvVar: "JOBRUNNER_ALLOW_PROGRAMS",
			Usage:  "Comma-separated programs command.run may execute; command.run is not registered without it",
		},
		cli.StringFlag{
			Name:   "metrics-addr",
			EnvVar: "JOBRUNNER_METRICS_ADDR",
			Usage:  "Worker only: listen address for /metrics",
		},
		cli.BoolFlag{
			Name:   "audit",
			EnvVar: "JOBRUNNER_AUDIT",
			Usage:  "Log an audit record for every job lifecycle event",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "Run the HTTP API, the sweeper and, without a broker, the worker pool",
			Action: runCommand(ctx, serve),
		},
		{
			Name:   "worker",
			Usage:  "Consume the broker and execute submitted jobs",
			Action: runCommand(ctx, work),
		},
	}
	return app
}

type runFunc func(ctx context.Context, cfg jobrunner.Config, opts options, logger *slog.Logger) error

// runCommand loads the configuration named by the global flags and hands it
// to run.
func runCommand(ctx context.Context, run runFunc) func(*cli.Context) error {
	return func(appCtx *cli.Context) error {
		opts := optionsFrom(appCtx)
		cfg, err := config.Load(opts.configPath)
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		logger := newLogger(cfg.LogLevel, opts.logFormat)
		slog.SetDefault(logger)
		return run(ctx, cfg, opts, logger)
	}
}

func optionsFrom(appCtx *cli.Context) options {
	opts := options{
		configPath:  appCtx.GlobalString("config"),
		logFormat:   appCtx.GlobalString("log-format"),
		metricsAddr: appCtx.GlobalString("metrics-addr"),
		audit:       appCtx.GlobalBool("audit"),
	}
	for _, prog := range strings.Split(appCtx.GlobalString("allow-programs"), ",") {
		if prog = strings.TrimSpace(prog); prog != "" {
			opts.allowed = append(opts.allowed, prog)
		}
	}
	return opts
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, hopts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, hopts))
}

// engineOptions returns the options shared by both subcommands.
func engineOptions(opts options, logger *slog.Logger, mp metric.MeterProvider) []engine.Option {
	eopts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithRegistry(newRegistry(opts)),
		engine.WithMeterProvider(mp),
	}
	if opts.audit {
		recorder := audithook.NewLogRecorder(logger.With(slog.String("component", "audit")))
		eopts = append(eopts, engine.WithExtension(audithook.New(recorder, audithook.WithLogger(logger))))
	}
	return eopts
}

func newRegistry(opts options) *job.Registry {
	reg := job.NewRegistry()
	if len(opts.allowed) > 0 {
		reg.Register(tasks.Command(tasks.WithAllowedPrograms(opts.allowed...)))
	}
	return reg
}

// serve runs the HTTP API, the sweeper and, in local mode, the worker pool.
func serve(ctx context.Context, cfg jobrunner.Config, opts options, logger *slog.Logger) error {
	mp, metricsHandler, err := observability.NewPrometheus()
	if err != nil {
		return fmt.Errorf("setup metrics: %w", err)
	}

	eng, err := engine.New(cfg, engineOptions(opts, logger, mp)...)
	if err != nil {
		return err
	}
	if err := eng.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.New(eng,
			api.WithLogger(logger),
			api.WithMetricsHandler(metricsHandler),
		).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting API server",
			slog.String("addr", cfg.HTTPAddr),
			slog.String("mode", string(eng.Mode())),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Starting graceful shutdown")
		return shutdown(cfg, logger, eng, mp, srv)
	})
	return g.Wait()
}

// work consumes the broker until signalled. It refuses to run without one,
// since a local queue would never receive invocations.
func work(ctx context.Context, cfg jobrunner.Config, opts options, logger *slog.Logger) error {
	mp, metricsHandler, err := observability.NewPrometheus()
	if err != nil {
		return fmt.Errorf("setup metrics: %w", err)
	}

	eopts := append(engineOptions(opts, logger, mp),
		engine.WithWorkers(true),
		engine.WithSweeper(false),
	)
	eng, err := engine.New(cfg, eopts...)
	if err != nil {
		return err
	}
	if eng.Mode() != engine.ModeDistributed {
		_ = eng.Stop(context.Background())
		return fmt.Errorf("worker mode needs a reachable broker: %w", jobrunner.ErrBrokerUnavailable)
	}
	if err := eng.Start(ctx); err != nil {
		return err
	}
	logger.Info("Worker consuming broker", slog.Int("concurrency", cfg.MaxConcurrent))

	var srv *http.Server
	g, gctx := errgroup.WithContext(ctx)
	if opts.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", metricsHandler)
		srv = &http.Server{Addr: opts.metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Stopping worker")
		return shutdown(cfg, logger, eng, mp, srv)
	})
	return g.Wait()
}

type meterShutdowner interface {
	Shutdown(ctx context.Context) error
}

func shutdown(cfg jobrunner.Config, logger *slog.Logger, eng *engine.Engine, mp meterShutdowner, srv *http.Server) error {
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
	}
	err := eng.Stop(ctx)
	if mpErr := mp.Shutdown(ctx); mpErr != nil {
		logger.Warn("Meter provider shutdown error", slog.String("error", mpErr.Error()))
	}
	if err == nil {
		logger.Info("Shutdown complete")
	}
	return err
}
