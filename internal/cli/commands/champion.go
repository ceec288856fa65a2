package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blitz-labs/tankrank/internal/cli/output"
)

// NewChampionCommand creates the champion command.
func NewChampionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "champion",
		Short: "Show the single highest submission",
		RunE:  runChampion,
	}
	cmd.Flags().Int("tier", 0, "only this tier")
	cmd.Flags().String("type", "", "only this type (light|medium|heavy|td)")
	registerTypeCompletion(cmd)

	return cmd
}

func runChampion(cmd *cobra.Command, _ []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	filter, err := tankFilterFlags(cmd)
	if err != nil {
		return err
	}

	row, err := cc.Store.Champion(cmd.Context(), filter)
	if err != nil {
		return err
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(viewBestRow(*row))
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Champion"))
		r.Println("")
		r.Println(output.FormatKeyValue("Player", row.Player))
		r.Println(output.FormatKeyValue("Score", formatScore(row.Score)))
		r.Println(output.FormatKeyValue("Tank", fmt.Sprintf("%s (tier %d %s)", row.Tank, row.Tier, row.Type)))
		r.Println(output.FormatKeyValue("When", formatWhen(row.At)))
		return nil
	default:
		styles := r.Styles()
		r.Printf("%s holds the top score: %s on %s (tier %d %s, %s)\n",
			styles.Player.Render(row.Player),
			styles.Bold.Render(formatScore(row.Score)),
			styles.TankName.Render(row.Tank),
			row.Tier, row.Type, formatWhen(row.At))
		return nil
	}
}
