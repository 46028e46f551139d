package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/recall/pkg/history"
)

var (
	searchSession     string
	searchLimit       int
	searchSuccessOnly bool
	searchJSON        bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>...",
	Short: "Search stored conversation traces",
	Long: `Run a ranked full-text search over all logged turns. Results are ordered
by relevance, with recency breaking ties.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchSession, "session", "s", "", "limit to one session")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum results")
	searchCmd.Flags().BoolVar(&searchSuccessOnly, "success-only", false, "skip traces marked unsuccessful")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	results, err := rt.store.Search(cmd.Context(), history.SearchQuery{
		Text:        strings.Join(args, " "),
		SessionID:   searchSession,
		Limit:       searchLimit,
		SuccessOnly: searchSuccessOnly,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if searchJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No matches.")
		return nil
	}

	for _, tr := range results {
		marker := ""
		if !tr.IsSuccess() {
			marker = " [failed]"
		}
		fmt.Fprintf(out, "[%s] (%s) %s%s: %s\n",
			tr.CreatedAt.UTC().Format("2006-01-02 15:04"),
			tr.SessionID, tr.Role, marker, tr.Content)
	}
	return nil
}
