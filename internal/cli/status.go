package cli

import "github.com/spf13/cobra"

var (
	statusJSON bool
	logsLimit  int
	logsJSON   bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show document, index and threshold figures",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := app.Service.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if statusJSON {
			return printJSON(cmd, st)
		}
		cmd.Printf("documents:    %d\n", st.Documents)
		cmd.Printf("vocabulary:   %d\n", st.Vocabulary)
		cmd.Printf("interactions: %d\n", st.Interactions)
		cmd.Printf("threshold:    %.3f\n", st.Threshold)
		cmd.Printf("backend:      %s\n", st.Backend)
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List recent interactions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := app.Service.Interactions(cmd.Context(), logsLimit)
		if err != nil {
			return err
		}
		if logsJSON {
			return printJSON(cmd, list)
		}
		if len(list) == 0 {
			cmd.Println("No interactions yet.")
			return nil
		}
		for _, in := range list {
			mark := "-"
			if in.Success {
				mark = "+"
			}
			cmd.Printf("%s %s %q sources=%d threshold=%.3f %dms\n",
				mark, in.Timestamp.Local().Format("2006-01-02 15:04:05"), in.Question,
				len(in.Sources), in.ThresholdAfter, in.ResponseTime.Milliseconds())
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 20, "maximum interactions to show")
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statusCmd, logsCmd)
}
