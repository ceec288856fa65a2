package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/blitz-labs/tankrank/internal/cli/output"
)

// NewTopCommand creates the top command.
func NewTopCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "top TIER",
		Short: "List the highest submissions in one tier",
		Args:  cobra.ExactArgs(1),
		RunE:  runTop,
	}
	cmd.Flags().Int("limit", 10, "number of rows")

	return cmd
}

func runTop(cmd *cobra.Command, args []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	tier, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid tier %q", args[0])
	}
	limit, _ := cmd.Flags().GetInt("limit")

	best, err := cc.Store.TopByTier(cmd.Context(), tier, limit)
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
		r.Println(output.FormatHeader(1, fmt.Sprintf("Top tier %d", tier)))
		r.Println("")
		renderMarkdownTable(r.Writer(), bestRowHeader, rows)
		return nil
	default:
		renderTable(r.Writer(), bestRowHeader, rows)
		return nil
	}
}
