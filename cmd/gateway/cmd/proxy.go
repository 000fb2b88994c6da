package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/inbound/mcpproxy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/config"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/gatemgr"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/session"
)

var (
	proxyPolicyPath string
	proxyLedgerDir  string
	proxyEvolve     bool
)

var proxyCmd = &cobra.Command{
	Use:   "proxy [config]",
	Short: "Start the MCP Proxy",
	Long: `Start the MCP Proxy: a virtual MCP server, speaking MCP over stdio to
its caller, that multiplexes the backends named in the config file (or
--policy/--dir flags) behind one policy-governed session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProxy,
}

func init() {
	proxyCmd.Flags().StringVar(&proxyPolicyPath, "policy", "", "policy document path (overrides config file's policy.path)")
	proxyCmd.Flags().StringVar(&proxyLedgerDir, "ledger-dir", "", "ledger directory (overrides config file's ledger.dir)")
	proxyCmd.Flags().Bool("dir", false, "accept but ignore: use --policy/--ledger-dir instead") // kept for the "[--dir D]" surface named in the spec
	proxyCmd.Flags().BoolVar(&proxyEvolve, "evolve", false, "enable the Evolution Subsystem's in-band policy_evolution_approve tool")
	rootCmd.AddCommand(proxyCmd)
}

func runProxy(cmd *cobra.Command, args []string) error {
	var cfgFilePath string
	if len(args) == 1 {
		cfgFilePath = args[0]
	}
	config.InitViper(cfgFilePath)
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if proxyPolicyPath != "" {
		cfg.Policy.Path = proxyPolicyPath
	}
	if proxyLedgerDir != "" {
		cfg.Ledger.Dir = proxyLedgerDir
	}
	if proxyEvolve {
		cfg.Evolution.Enabled = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))

	pol, err := policy.Load(cfg.Policy.Path)
	if err != nil {
		return fmt.Errorf("loading policy: %w", err)
	}

	autoThresh := policy.RiskLevel(cfg.Gates.AutoApproveRiskThreshold)
	gates := gatemgr.New(autoThresh)
	sessions := session.NewManager(cfg.Ledger.Dir, gates)

	var backends []mcpproxy.Backend
	for _, b := range cfg.Backends {
		backends = append(backends, mcpproxy.Backend{Name: b.Name, Command: b.Command, Args: b.Args})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	px, err := mcpproxy.New(ctx, mcpproxy.Config{
		Backends:         backends,
		Policy:           pol,
		PolicyPath:       cfg.Policy.Path,
		Sessions:         sessions,
		EvolutionEnabled: cfg.Evolution.Enabled,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("starting mcp proxy: %w", err)
	}

	logger.Info("mcp proxy started", "session", px.SessionID(), "backends", len(backends), "evolution", cfg.Evolution.Enabled)

	return mcpproxy.ServeStdio(ctx, px, os.Stdin, os.Stdout, logger)
}

func parseLogLevel(level string) slog.Level {
	switch level {
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
