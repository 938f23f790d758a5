package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"autoqa/internal/service"
	"autoqa/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive question console",
	Long: `Launch the interactive question console.

Controls:
  Enter   - Ask
  ↑/↓     - Move between sources
  Ctrl+E  - Lower the threshold by one evolve step
  Ctrl+C  - Quit`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := app.Service.Stats(ctx)
	if err != nil {
		return err
	}
	summary := fmt.Sprintf("%d documents, %d terms, %d interactions, backend %s",
		st.Documents, st.Vocabulary, st.Interactions, st.Backend)

	m := tui.New(ctx, app.Service, summary, service.EvolveStep)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
