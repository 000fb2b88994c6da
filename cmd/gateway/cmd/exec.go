package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/adapter"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/gatemgr"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/session"
)

var execLedgerDir string

var execCmd = &cobra.Command{
	Use:   "exec <policy> -- <command...>",
	Short: "Evaluate and run a single command against a policy",
	Long: `Load policy, evaluate a single command:run action against it, and if
allowed, run the command and propagate its exit code. A denial exits 1.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringVar(&execLedgerDir, "ledger-dir", "./ledger", "directory for the session's evidence ledger")
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	policyPath := args[0]
	rest := args[1:]
	if len(rest) > 0 && rest[0] == "--" {
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return fmt.Errorf("exec: no command given after --")
	}
	command := strings.Join(rest, " ")

	pol, err := policy.Load(policyPath)
	if err != nil {
		return fmt.Errorf("loading policy: %w", err)
	}

	gates := gatemgr.New(policy.RiskLow)
	sessions := session.NewManager(execLedgerDir, gates)

	sess, err := sessions.CreateSession(pol, map[string]string{"source": "exec"})
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	req := policy.ActionRequest{Tool: "command:run", Input: policy.ActionInput{Command: command}}
	outcome, err := sessions.Evaluate(context.Background(), sess.ID, req, map[string]any{"command": command})
	if err != nil {
		return fmt.Errorf("evaluating command: %w", err)
	}

	if outcome.Decision != policy.VerdictAllow {
		reasons := make([]string, len(outcome.Reasons))
		for i, r := range outcome.Reasons {
			reasons[i] = r.String()
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "denied: %v\n", reasons)
		_, _ = sessions.Terminate(sess.ID, "exec denied")
		os.Exit(1)
		return nil
	}

	registry := adapter.DefaultRegistry()
	commandAdapter, _ := registry.Lookup("command:run")
	execCtx := &adapter.Context{Context: context.Background(), Budget: &sess.Budget}
	result, err := commandAdapter.Execute(map[string]any{"command": command}, execCtx)
	if err != nil {
		_, _ = sessions.Terminate(sess.ID, "exec error")
		return fmt.Errorf("executing command: %w", err)
	}

	fmt.Fprint(cmd.OutOrStdout(), result.Output)

	_ = sessions.RecordResult(sess.ID, outcome.ActionID, session.ActionResult{
		Success:    result.Success,
		Output:     result.Output,
		Artifacts:  result.Artifacts,
		DurationMs: result.DurationMs,
		Error:      result.Error,
	})
	_, _ = sessions.Terminate(sess.ID, "exec complete")

	exitCode := 0
	for _, a := range result.Artifacts {
		if a.Type == "exit_code" {
			exitCode, _ = strconv.Atoi(a.Value)
		}
	}
	os.Exit(exitCode)
	return nil
}
