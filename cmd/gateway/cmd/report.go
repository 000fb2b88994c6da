package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/ledger"
)

var reportCmd = &cobra.Command{
	Use:   "report <ledger-file>",
	Short: "Verify and summarize a ledger file",
	Long: `Replay a session's ledger file, verifying its hash chain and printing a
per-event-type summary. Exits 0 on a valid chain, 1 if it is broken.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	path := args[0]

	result, err := ledger.VerifyIntegrity(path)
	if err != nil {
		return fmt.Errorf("verifying ledger: %w", err)
	}

	summary, err := ledger.Summarize(path)
	if err != nil {
		return fmt.Errorf("summarizing ledger: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session: %s\n", summary.SessionID)
	fmt.Fprintf(out, "entries: %d\n", result.Entries)
	fmt.Fprintf(out, "valid:   %v\n", result.Valid)
	if !result.Valid {
		fmt.Fprintf(out, "brokenAt: %d\n", result.BrokenAt)
		fmt.Fprintf(out, "error:    %s\n", result.Error)
	}
	fmt.Fprintln(out, "events:")
	for _, eventType := range eventTypeOrder {
		if n, ok := summary.Counts[eventType]; ok {
			fmt.Fprintf(out, "  %-22s %d\n", eventType, n)
		}
	}

	if !result.Valid {
		os.Exit(1)
	}
	return nil
}

var eventTypeOrder = []ledger.EventType{
	ledger.EventSessionStart,
	ledger.EventActionEvaluate,
	ledger.EventActionResult,
	ledger.EventActionRollback,
	ledger.EventGateRequested,
	ledger.EventGateApproved,
	ledger.EventGateRejected,
	ledger.EventBudgetWarning,
	ledger.EventBudgetExceeded,
	ledger.EventEscalationTrigger,
	ledger.EventPolicyEvolve,
	ledger.EventSessionStateChange,
	ledger.EventSessionTerminate,
}
