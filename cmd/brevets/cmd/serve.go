package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/psantana5/brevets/pkg/acp"
	"github.com/psantana5/brevets/pkg/api"
	"github.com/psantana5/brevets/pkg/logging"
	"github.com/psantana5/brevets/pkg/metrics"
	"github.com/psantana5/brevets/pkg/ratelimit"
	"github.com/psantana5/brevets/pkg/shutdown"
	"github.com/psantana5/brevets/pkg/tracing"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=..."
var Version = "dev"

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the calculator HTTP API",
	Long: `Serve the control time calculator over HTTP. Prometheus metrics are
exposed on a separate port when metrics.enabled is set.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides server.port)")
}

func newLogger() (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.Log.Level)
	if cfg.Log.File != "" {
		return logging.NewFileLogger(cfg.Log.File, level, cfg.Log.JSON)
	}
	return logging.NewLogger(level, cfg.Log.JSON), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if servePort != 0 {
		cfg.Server.Port = servePort
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	rules, err := cfg.CalcRules()
	if err != nil {
		return err
	}

	mgr := shutdown.New(cfg.Shutdown.Timeout, logger)
	mgr.Register("logger", shutdown.CloseResource(logger))

	tp, err := tracing.InitTracer(tracing.Config{
		ServiceName:    "brevets",
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		Enabled:        cfg.Tracing.Enabled,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	mgr.Register("tracer", tp.Shutdown)

	handler := api.NewCalcHandler(acp.NewCalculator(rules), loc, logger)
	opts := api.RouterOptions{Logger: logger, Tracer: tp}

	g, gctx := errgroup.WithContext(cmd.Context())

	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector()
		opts.Metrics = collector

		metricsRouter := mux.NewRouter()
		metricsRouter.Handle("/metrics", collector).Methods("GET")
		metricsRouter.HandleFunc("/health", handler.Health).Methods("GET")

		metricsServer := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           metricsRouter,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
		}
		g.Go(func() error {
			logger.Info("Metrics server listening", logging.Fields{"addr": metricsServer.Addr})
			return listen(metricsServer)
		})
		mgr.Register("metrics server", shutdown.StopHTTPServer(metricsServer))
	}

	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		opts.Limiter = limiter
		opts.LimiterKey = ratelimit.KeyFunc(cfg.RateLimit.TrustProxy)

		ctx, cancel := context.WithCancel(gctx)
		g.Go(func() error {
			limiter.Run(ctx, time.Minute, cfg.RateLimit.IdleTTL)
			return nil
		})
		mgr.Register("rate limiter", func(context.Context) error {
			cancel()
			return nil
		})
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	g.Go(func() error {
		logger.Info("Brevet calculator listening", logging.Fields{
			"addr":     server.Addr,
			"rules":    string(rules),
			"timezone": loc.String(),
			"version":  Version,
		})
		return listen(server)
	})
	mgr.Register("api server", shutdown.StopHTTPServer(server))

	g.Go(func() error {
		return mgr.Wait(gctx)
	})

	return g.Wait()
}

func listen(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server on %s: %w", server.Addr, err)
	}
	return nil
}
