package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"autoqa/internal/domain"
)

var (
	askJSON  bool
	searchK  int
	searchJS bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the indexed pages",
	Long: `Answers a question in French with [title](url) citations.
The outcome adjusts the retrieval threshold and is recorded in the log.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Show the passages retrieved for a query",
	Long:  `Runs retrieval only. The threshold and the log are left untouched.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the result as JSON")
	searchCmd.Flags().IntVarP(&searchK, "top-k", "k", 0, "number of passages (default from config)")
	searchCmd.Flags().BoolVar(&searchJS, "json", false, "output passages as JSON")
	rootCmd.AddCommand(askCmd, searchCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	res, err := app.Service.Answer(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	if askJSON {
		return printJSON(cmd, res)
	}
	cmd.Println(res.Text)
	cmd.Println()
	if len(res.Citations) > 0 {
		cmd.Println("Sources:")
		for i, c := range res.Citations {
			cmd.Printf("  [%d] %s - %s\n", i+1, c.Title, c.URL)
		}
	}
	cmd.Printf("confidence=%.3f success=%t threshold=%.3f backend=%s (%s)\n",
		res.Confidence, res.Success, res.Threshold, res.Backend, res.ResponseTime.Round(time.Millisecond))
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	passages, backend, err := app.Service.Search(cmd.Context(), strings.Join(args, " "), searchK)
	if err != nil {
		return err
	}
	if searchJS {
		if passages == nil {
			passages = []domain.Passage{}
		}
		return printJSON(cmd, map[string]any{"backend": backend, "passages": passages})
	}
	if len(passages) == 0 {
		cmd.Println("No passages above the threshold.")
		return nil
	}
	cmd.Printf("Backend: %s\n\n", backend)
	for i, p := range passages {
		cmd.Printf("  [%d] %s (%.3f)\n      %s\n", i+1, p.Title, p.Score, p.URL)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
