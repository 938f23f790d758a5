package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"autoqa/internal/domain"
)

var (
	ingestURL   string
	ingestTitle string
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the TF-IDF index from the document store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := app.Service.RebuildIndex(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("Indexed %d documents, %d terms.\n", stats.Documents, stats.Vocabulary)
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Add a local text file as a document",
	Long: `Reads plain text from a file ("-" for stdin) and stores it under --url.
A URL or content already stored is skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "source URL of the document")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title (defaults to the URL)")
	rootCmd.AddCommand(rebuildCmd, ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestURL == "" {
		return errors.New("--url is required")
	}
	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	ctx := cmd.Context()
	added, err := app.Service.Ingest(ctx, domain.Document{Title: ingestTitle, URL: ingestURL, Content: string(content)})
	if err != nil {
		return err
	}
	if !added {
		cmd.Println("Already stored, skipped.")
		return nil
	}
	if err := app.Service.Flush(ctx); err != nil {
		return err
	}
	cmd.Printf("Stored %s.\n", ingestURL)
	return nil
}
