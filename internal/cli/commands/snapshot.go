package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blitz-labs/tankrank/internal/cli/output"
)

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Show the current best score per tank",
		Long: `Show one row per catalog entry with the current best submission.
Tanks with no submissions appear with empty player and score columns.`,
		RunE: runSnapshot,
	}
	cmd.Flags().Int("tier", 0, "only this tier")
	cmd.Flags().String("type", "", "only this type (light|medium|heavy|td)")
	registerTypeCompletion(cmd)

	return cmd
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	filter, err := tankFilterFlags(cmd)
	if err != nil {
		return err
	}

	best, err := cc.Store.BestPerBucket(cmd.Context(), filter)
	if err != nil {
		return err
	}

	rows := make([][]string, len(best))
	for i := range best {
		rows[i] = bestRowCells(best[i])
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(viewBestRows(best))
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, fmt.Sprintf("Best per tank (%d)", len(best))))
		r.Println("")
		renderMarkdownTable(r.Writer(), bestRowHeader, rows)
		return nil
	default:
		renderTable(r.Writer(), bestRowHeader, rows)
		return nil
	}
}
