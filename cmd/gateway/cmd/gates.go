package cmd

import (
	"fmt"

	"github.com/alexedwards/argon2id"
	"github.com/spf13/cobra"
)

var gatesCmd = &cobra.Command{
	Use:   "gates",
	Short: "Approval gate administration",
}

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret <secret>",
	Short: "Hash a webhook callback secret for gates.webhook_secret_hash",
	Long: `Hash a shared secret with argon2id and print the encoded hash.
Paste the result into gateway.yaml's gates.webhook_secret_hash to require
that secret on the serve command's /sessions/{id}/approve and .../reject
endpoints, via the X-Gate-Secret header.`,
	Args: cobra.ExactArgs(1),
	RunE: runHashSecret,
}

func init() {
	gatesCmd.AddCommand(hashSecretCmd)
	rootCmd.AddCommand(gatesCmd)
}

func runHashSecret(cmd *cobra.Command, args []string) error {
	hash, err := argon2id.CreateHash(args[0], argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("hashing secret: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}
