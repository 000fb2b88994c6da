package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

var validateCmd = &cobra.Command{
	Use:   "validate <policy>",
	Short: "Validate a policy document",
	Long: `Load and validate a policy YAML file. Exits 0 if the policy is valid,
1 with a line-per-issue diagnostic on each line of stderr otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]

	_, err := policy.Load(path)
	if err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", path)
		return nil
	}

	var verr *policy.ValidationError
	if errors.As(err, &verr) {
		for _, issue := range verr.Issues {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", issue.Path, issue.Message)
		}
		os.Exit(1)
		return nil
	}

	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	os.Exit(1)
	return nil
}
