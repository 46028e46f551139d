package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/recall/pkg/recall"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <session-id>",
	Short: "Summarize a session with the configured provider",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarize,
}

func init() {
	rootCmd.AddCommand(summarizeCmd)
}

func runSummarize(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	provider, err := newProvider(rt.cfg)
	if err != nil {
		return err
	}

	fn := recall.ProviderSummarizer(provider, rt.cfg.Provider.Model, rt.cfg.Provider.MaxTokens)
	summary, err := rt.store.Summarize(cmd.Context(), args[0], fn)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), summary)
	return nil
}
