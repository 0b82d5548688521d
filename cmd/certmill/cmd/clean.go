package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quaypoint/certmill/store"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove all generated artifacts from the store directory",
	Long: `Removes the CA, server and client key pairs, the DH parameters and the
issuance state from the store directory. The directory itself is kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := store.New(storeDir).Cleanup(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed generated artifacts from %s.\n", storeDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
