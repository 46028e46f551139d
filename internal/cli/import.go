package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Import conversation logs from a JSONL file",
	Long: `Import one turn record per line from a JSONL file. Records committed
before the first invalid line stay imported and searchable.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	count, err := rt.store.ImportJSONL(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("import stopped after %d records: %w", count, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records from %s.\n", count, args[0])
	return nil
}
