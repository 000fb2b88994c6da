package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	httpfacade "github.com/Sentinel-Gate/Sentinelgate/internal/adapter/inbound/http"
	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/statestore"
	"github.com/Sentinel-Gate/Sentinelgate/internal/config"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/gatemgr"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	serveHost      string
	servePort      int
	serveLedgerDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP REST façade",
	Long: `Start the HTTP REST façade: a JSON/HTTP surface over session.Manager
for operators and external systems that create sessions, evaluate
actions, and inspect ledgers without speaking MCP.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides config file's server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config file's server.port)")
	serveCmd.Flags().StringVar(&serveLedgerDir, "ledger-dir", "", "ledger directory (overrides config file's ledger.dir)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveLedgerDir != "" {
		cfg.Ledger.Dir = serveLedgerDir
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))

	autoThresh := policy.RiskLevel(cfg.Gates.AutoApproveRiskThreshold)
	gates := gatemgr.New(autoThresh)
	sessions := session.NewManager(cfg.Ledger.Dir, gates)

	handlerOpts := []httpfacade.HandlerOption{
		httpfacade.WithWebhookSecretHash(cfg.Gates.WebhookSecretHash),
	}
	if cfg.Server.StateDir != "" {
		store, err := statestore.Open(fmt.Sprintf("%s/sessions.db", cfg.Server.StateDir))
		if err != nil {
			return fmt.Errorf("opening state store: %w", err)
		}
		defer store.Close()
		sessions.SetIndexer(store)
		handlerOpts = append(handlerOpts, httpfacade.WithStateStore(store))
		logger.Info("durable session index enabled", "state_dir", cfg.Server.StateDir)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := httpfacade.NewMetrics(reg)
	handler := httpfacade.NewHandler(sessions, logger, metrics, handlerOpts...)
	health := httpfacade.NewHealthChecker("1.0")

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	transport := httpfacade.NewHTTPTransport(handler,
		httpfacade.WithAddr(addr),
		httpfacade.WithLogger(logger),
		httpfacade.WithHealthChecker(health),
		httpfacade.WithMetrics(metrics, reg),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info("gateway REST façade starting", "addr", addr, "policy", cfg.Policy.Path)
	return transport.Start(ctx)
}
