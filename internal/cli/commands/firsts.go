package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blitz-labs/tankrank/internal/cli/output"
)

// NewFirstsCommand creates the firsts command.
func NewFirstsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "firsts",
		Short: "Rank players by how many tanks they currently top",
		RunE:  runFirsts,
	}
	cmd.Flags().Int("limit", 10, "number of rows")

	return cmd
}

func runFirsts(cmd *cobra.Command, _ []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	limit, _ := cmd.Flags().GetInt("limit")
	firsts, err := cc.Store.MostFirsts(cmd.Context(), limit)
	if err != nil {
		return err
	}

	rows := make([][]string, len(firsts))
	for i, f := range firsts {
		rows[i] = []string{fmt.Sprintf("%d", i+1), f.Player, fmt.Sprintf("%d", f.Firsts)}
	}
	header := []string{"#", "Player", "Firsts"}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		type firstsView struct {
			Player string `json:"player"`
			Firsts int    `json:"firsts"`
		}
		views := make([]firstsView, len(firsts))
		for i, f := range firsts {
			views[i] = firstsView{Player: f.Player, Firsts: f.Firsts}
		}
		return r.JSON(views)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Most first places"))
		r.Println("")
		renderMarkdownTable(r.Writer(), header, rows)
		return nil
	default:
		renderTable(r.Writer(), header, rows)
		return nil
	}
}
