package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"autoqa/internal/crawler"
)

var (
	crawlMaxPages   int
	crawlDelay      float64
	crawlAllDomains bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl [seed...]",
	Short: "Crawl pages from seed URLs into the document store",
	Long: `Crawls breadth-first from the seeds, staying on the seeds' domains
unless --all-domains is set. Ctrl+C stops the session; pages already
accepted are kept and indexed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCrawl,
}

func init() {
	crawlCmd.Flags().IntVarP(&crawlMaxPages, "max-pages", "n", 0, "maximum pages to visit (default from config)")
	crawlCmd.Flags().Float64Var(&crawlDelay, "delay", 0, "seconds between requests to one host (default from config)")
	crawlCmd.Flags().BoolVar(&crawlAllDomains, "all-domains", false, "follow links to other domains")
	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sameDomain := !crawlAllDomains
	st, err := app.Service.Crawl(ctx, crawler.Request{
		Seeds:      args,
		MaxPages:   crawlMaxPages,
		Delay:      crawlDelay,
		SameDomain: &sameDomain,
	})
	if err != nil {
		return err
	}
	cmd.Printf("visited=%d added=%d errors=%d queue=%d\n", st.Visited, st.Added, st.Errors, st.Queue)
	if st.LastError != "" {
		cmd.Printf("last error: %s\n", st.LastError)
	}
	if len(st.BlockedDomains) > 0 {
		cmd.Printf("blocked: %v\n", st.BlockedDomains)
	}
	return nil
}
