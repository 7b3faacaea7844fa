// Package cmd provides the CLI commands for the MCP guardrails service.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/akto-api-security/mcp-guardrails/internal/adapter/inbound/http"
	"github.com/akto-api-security/mcp-guardrails/internal/adapter/outbound/llm"
	"github.com/akto-api-security/mcp-guardrails/internal/adapter/outbound/memory"
	"github.com/akto-api-security/mcp-guardrails/internal/adapter/outbound/policystore"
	"github.com/akto-api-security/mcp-guardrails/internal/adapter/outbound/rediskv"
	"github.com/akto-api-security/mcp-guardrails/internal/adapter/outbound/scanner"
	"github.com/akto-api-security/mcp-guardrails/internal/adapter/outbound/threat"
	"github.com/akto-api-security/mcp-guardrails/internal/background"
	"github.com/akto-api-security/mcp-guardrails/internal/config"
	"github.com/akto-api-security/mcp-guardrails/internal/domain/ratelimit"
	"github.com/akto-api-security/mcp-guardrails/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the validation server",
	Long: `Start the guardrails validation server.

The server exposes:
  POST /api/ingestData          batch ingestion of mirrored traffic
  POST /api/validate/request    validate a single request payload
  POST /api/validate/response   validate a single response payload
  GET  /health                  liveness probe
  GET  /metrics                 Prometheus metrics

Examples:
  # Start with config file settings
  mcp-guardrails start

  # Start with a specific config file
  mcp-guardrails --config /path/to/config.yaml start

  # Start in dev mode (debug logging, token checks relaxed)
  mcp-guardrails start --dev`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging, relaxed validation)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.DevMode = true
	}

	// Signal context for graceful shutdown. stop() restores default
	// signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	return run(ctx, cfg, logger)
}

// run wires all components together and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Observability.Tracing {
		shutdown, err := setupTracing()
		if err != nil {
			return fmt.Errorf("tracing setup: %w", err)
		}
		defer shutdown()
	}

	if !cfg.Guardrails.Enabled {
		logger.Warn("guardrails are DISABLED; all payloads will be allowed without inspection (set ENABLE_MCP_GUARDRAILS=true to enable)")
	}

	// Rate-limit counter store.
	var kv ratelimit.Store
	switch cfg.RateLimit.Store {
	case "redis":
		store := rediskv.NewStore(cfg.RateLimit.Redis.Addr, cfg.RateLimit.Redis.Password, cfg.RateLimit.Redis.DB)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := store.Ping(pingCtx); err != nil {
			cancel()
			return fmt.Errorf("redis unreachable at %s: %w", cfg.RateLimit.Redis.Addr, err)
		}
		cancel()
		defer func() { _ = store.Close() }()
		kv = store
		logger.Info("rate limit store: redis", "addr", cfg.RateLimit.Redis.Addr)
	default:
		store := memory.NewKVStore()
		defer store.Close()
		kv = store
		logger.Debug("rate limit store: memory")
	}

	// Outbound clients.
	policies := policystore.NewClient(cfg.DatabaseAbstractor.URL, cfg.DatabaseAbstractor.Token, logger)
	scan := scanner.NewClient(cfg.Scanner.URL, logger)
	reporter := threat.NewReporter(cfg.ThreatBackend.URL, cfg.ThreatBackend.Token, logger)

	// Detached task runner for threat reports, metadata audits and
	// mirror tees. Drained on shutdown.
	tasks := background.NewGroup(logger)

	var metaAuditor *service.MetadataAuditor
	if cfg.Guardrails.Enabled && cfg.DatabaseAbstractor.Token != "" {
		llmClient := llm.NewClient(cfg.DatabaseAbstractor.URL, cfg.DatabaseAbstractor.Token, logger)
		metaAuditor = service.NewMetadataAuditor(llmClient, reporter, logger)
	}

	guardrails, err := service.NewGuardrailService(
		guardrailConfig(cfg),
		policies,
		scan,
		reporter,
		tasks,
		kv,
		metaAuditor,
		logger,
	)
	if err != nil {
		return fmt.Errorf("guardrail service: %w", err)
	}

	batch := service.NewBatchService(guardrails, logger)
	handler := http.NewHandler(guardrails, batch, tasks, nil, cfg.Mirror.URL)

	server := http.NewServer(handler,
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithShutdownTimeout(parseShutdownTimeout(cfg.Server.ShutdownTimeout)),
		http.WithLogger(logger),
	)

	err = server.Start(ctx)

	// Let in-flight threat reports and audits finish before exiting.
	tasks.Wait()

	if err != nil {
		return err
	}
	logger.Info("mcp-guardrails stopped")
	return nil
}

// guardrailConfig maps the file configuration onto the service config.
func guardrailConfig(cfg *config.Config) service.GuardrailConfig {
	out := service.GuardrailConfig{
		Enabled:    cfg.Guardrails.Enabled,
		ServerName: cfg.MCPServerName,
		RateLimit: ratelimit.Config{
			Enabled:         cfg.RateLimit.IsEnabled(),
			Limit:           cfg.RateLimit.Limit,
			WindowSeconds:   cfg.RateLimit.WindowSeconds,
			IdentifierTypes: identifierTypes(cfg.RateLimit.Identifiers),
		},
	}
	for _, rule := range cfg.CustomRules {
		out.CustomRules = append(out.CustomRules, service.CustomRule{
			Name:      rule.Name,
			Condition: rule.Condition,
		})
	}
	return out
}

// identifierTypes maps the lowercase config values onto the limiter's
// identifier constants. Unknown values were rejected at validation.
func identifierTypes(names []string) []ratelimit.IdentifierType {
	out := make([]ratelimit.IdentifierType, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(name) {
		case "ip":
			out = append(out, ratelimit.IdentifierIP)
		case "user":
			out = append(out, ratelimit.IdentifierUser)
		case "tool":
			out = append(out, ratelimit.IdentifierTool)
		}
	}
	return out
}

// setupTracing installs a stdout span exporter and returns its shutdown
// function.
func setupTracing() (func(), error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	}, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parseShutdownTimeout parses the configured duration, falling back to
// 10s on bad input. Validation already warned about unparseable values.
func parseShutdownTimeout(raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}
