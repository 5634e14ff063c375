package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/moolen/engine-client/internal/config"
	"github.com/moolen/engine-client/internal/engine"
	"github.com/moolen/engine-client/internal/logging"
	"github.com/moolen/engine-client/internal/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

type rootOptions struct {
	logLevels   []string // Supports multiple --log-level flags
	configPath  string
	baseURL     string
	metricsAddr string
}

// session is the state shared by the subcommands of one invocation.
type session struct {
	opts    rootOptions
	cfg     *config.Config
	client  *engine.Client
	tracing *tracing.Provider
	metrics *http.Server
	logger  *logging.Logger
}

func newRootCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engine-client",
		Short: "Engine API client - anomaly detection jobs and their results",
		Long: `engine-client drives an Engine API service: it creates anomaly detection
jobs, streams data to them, closes them and reads the analysis results back.`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.open()
		},
	}

	// Supports per-package log levels: --log-level debug --log-level engine.transport=debug
	cmd.PersistentFlags().StringSliceVar(&s.opts.logLevels, "log-level", nil,
		"Log level for packages. Use 'level' or 'default=level' for the default, 'package.name=level' for per-package.\n"+
			"Examples: --log-level debug (all), --log-level engine.transport=debug --log-level engine.*=warn")
	cmd.PersistentFlags().StringVar(&s.opts.configPath, "config", "", "Path to the client configuration file (YAML)")
	cmd.PersistentFlags().StringVar(&s.opts.baseURL, "url", "", "Engine API base URL (overrides the configuration file), e.g. "+config.DefaultBaseURL)
	cmd.PersistentFlags().StringVar(&s.opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the command runs, e.g. :9090")

	cmd.AddCommand(newFarequoteCmd(s))
	cmd.AddCommand(newJobCmd(s))
	cmd.AddCommand(newBucketsCmd(s))
	cmd.AddCommand(newBucketCmd(s))
	cmd.AddCommand(newRecordsCmd(s))
	cmd.AddCommand(newConfigCmd(s))
	return cmd
}

// Execute runs the CLI until the command finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := &session{}
	defer s.close()
	return newRootCmd(s).ExecuteContext(ctx)
}

// open loads the configuration and builds the client. Flags take
// precedence over the configuration file.
func (s *session) open() error {
	cfg, err := config.LoadOrDefault(s.opts.configPath)
	if err != nil {
		return err
	}
	if s.opts.baseURL != "" {
		cfg.BaseURL = s.opts.baseURL
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid --url: %w", err)
		}
	}
	s.cfg = cfg

	if err := setupLog(append([]string{cfg.LogLevel}, s.opts.logLevels...)); err != nil {
		return err
	}
	s.logger = logging.GetLogger("cli")

	tp, err := tracing.NewProvider(cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.tracing = tp

	reg := prometheus.NewRegistry()
	opts := []engine.Option{
		engine.WithRequestTimeout(cfg.RequestTimeout),
		engine.WithFetchConcurrency(cfg.FetchConcurrency),
		engine.WithTracer(tp.Tracer(tracing.ServiceName)),
		engine.WithMetrics(engine.NewMetrics(reg, "cli")),
	}
	if cfg.BucketCache.Enabled {
		opts = append(opts, engine.WithBucketCache(cfg.BucketCache.Size, cfg.BucketCache.TTL))
	}
	client, err := engine.NewClient(cfg.BaseURL, opts...)
	if err != nil {
		return err
	}
	s.client = client
	s.logger.Debug("Client configured for %s", cfg.BaseURL)

	if s.opts.metricsAddr != "" {
		return s.serveMetrics(s.opts.metricsAddr, reg)
	}
	return nil
}

func (s *session) serveMetrics(addr string, reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server failed: %v", err)
		}
	}()
	s.logger.Info("Serving metrics on %s/metrics", ln.Addr())
	return nil
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.metrics != nil {
		_ = s.metrics.Shutdown(ctx)
		s.metrics = nil
	}
	if s.tracing != nil {
		_ = s.tracing.Shutdown(ctx)
		s.tracing = nil
	}
}

// reportAPIError logs the client's most recent API error, if any.
func (s *session) reportAPIError() {
	if apiErr := s.client.LastError(); apiErr != nil {
		s.logger.Warn("%s", apiErr.JSON())
	}
}

// setupLog initializes the logging system with parsed log level flags.
// Priority: CLI flags > LOG_LEVEL_* environment variables > config file
func setupLog(flags []string) error {
	defaultLevel, packageLevels, err := parseLogLevelFlags(flags)
	if err != nil {
		return err
	}
	return logging.Initialize(defaultLevel, packageLevels)
}

// parseLogLevelFlags parses CLI flags and environment variables.
//
// CLI format: ["debug"], ["default=info", "engine.client=debug"], or ["info"]
// Env vars: LOG_LEVEL_ENGINE_CLIENT=debug (package name uppercased, dots to underscores)
//
// Returns: (defaultLevel, packageLevels map, error)
func parseLogLevelFlags(flags []string) (string, map[string]string, error) {
	result := make(map[string]string)

	for _, envPair := range os.Environ() {
		if !strings.HasPrefix(envPair, "LOG_LEVEL_") {
			continue
		}
		parts := strings.SplitN(envPair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		result[convertEnvKeyToPackageName(parts[0])] = parts[1]
	}

	for _, flag := range flags {
		if flag == "" {
			continue
		}
		pkg, level, ok := strings.Cut(flag, "=")
		if !ok {
			result["default"] = flag
			continue
		}
		result[pkg] = level
	}

	defaultLevel := "info"
	if level, exists := result["default"]; exists {
		defaultLevel = level
		delete(result, "default")
	}

	if err := validateLogLevel(defaultLevel); err != nil {
		return "", nil, err
	}
	for pkg, level := range result {
		if err := validateLogLevel(level); err != nil {
			return "", nil, fmt.Errorf("invalid log level for package %q: %v", pkg, err)
		}
	}

	return defaultLevel, result, nil
}

// convertEnvKeyToPackageName converts LOG_LEVEL_ENGINE_CLIENT -> engine.client
func convertEnvKeyToPackageName(envKey string) string {
	name := strings.TrimPrefix(envKey, "LOG_LEVEL_")
	return strings.ToLower(strings.ReplaceAll(name, "_", "."))
}

func validateLogLevel(level string) error {
	if _, err := logging.ParseLevel(level); err != nil {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", level)
	}
	return nil
}
