// Package cmd provides the CLI commands for the governance gateway.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/Sentinelgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Governance gateway for MCP agent tool calls",
	Long: `gateway is a capability-policy proxy that sits in front of one or more
MCP tool servers, evaluates every tool call against a YAML policy, keeps a
hash-chained evidence ledger of what happened, and can propose policy
widenings when an agent hits a denial it could plausibly have been granted.

Configuration is loaded from gateway.yaml in the current directory,
$HOME/.gateway/, or /etc/gateway/. Environment variables override config
values with the GATEWAY_ prefix (e.g. GATEWAY_SERVER_PORT=9090).

Commands:
  validate    Validate a policy document
  serve       Start the HTTP REST façade
  proxy       Start the MCP Proxy (virtual MCP server over stdio)
  exec        Evaluate and run a single command against a policy
  report      Verify and summarize a ledger file
  gates       Approval gate administration (e.g. hash-secret)`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./gateway.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
