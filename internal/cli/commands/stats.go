package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blitz-labs/tankrank/internal/cli/output"
	"github.com/blitz-labs/tankrank/internal/ledger"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show ledger totals or grouped submission counts",
		Long: `Show overall ledger totals, or group submission counts with --by:

  tankrank stats            totals (tanks, submissions, players, aliases)
  tankrank stats --by tank  submissions per tank
  tankrank stats --by year  submissions per year
  tankrank stats --by month submissions per month`,
		RunE: runStats,
	}
	cmd.Flags().String("by", "", "group counts by tank, year, or month")
	_ = cmd.RegisterFlagCompletionFunc("by", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"tank", "year", "month"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runStats(cmd *cobra.Command, _ []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	by, _ := cmd.Flags().GetString("by")
	if by != "" {
		return runGroupedStats(cmd, cc, by)
	}

	stats, err := cc.Store.Stats(cmd.Context())
	if err != nil {
		return err
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		type statsView struct {
			Tanks       int `json:"tanks"`
			Submissions int `json:"submissions"`
			Players     int `json:"players"`
			Aliases     int `json:"aliases"`
		}
		return r.JSON(statsView{
			Tanks:       stats.Tanks,
			Submissions: stats.Submissions,
			Players:     stats.Players,
			Aliases:     stats.Aliases,
		})
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Ledger stats"))
		r.Println("")
		r.Println(output.FormatKeyValue("Tanks", fmt.Sprintf("%d", stats.Tanks)))
		r.Println(output.FormatKeyValue("Submissions", fmt.Sprintf("%d", stats.Submissions)))
		r.Println(output.FormatKeyValue("Players", fmt.Sprintf("%d", stats.Players)))
		r.Println(output.FormatKeyValue("Aliases", fmt.Sprintf("%d", stats.Aliases)))
		return nil
	default:
		r.Printf("Tanks:       %d\n", stats.Tanks)
		r.Printf("Submissions: %d\n", stats.Submissions)
		r.Printf("Players:     %d\n", stats.Players)
		r.Printf("Aliases:     %d\n", stats.Aliases)
		return nil
	}
}

func runGroupedStats(cmd *cobra.Command, cc *CommandContext, by string) error {
	var (
		counts []ledger.CountRow
		label  string
		err    error
	)
	switch by {
	case "tank":
		counts, err = cc.Store.CountsByTank(cmd.Context())
		label = "Tank"
	case "year":
		counts, err = cc.Store.CountsByYear(cmd.Context())
		label = "Year"
	case "month":
		counts, err = cc.Store.CountsByMonth(cmd.Context())
		label = "Month"
	default:
		return fmt.Errorf("invalid --by %q (valid: tank, year, month)", by)
	}
	if err != nil {
		return err
	}

	rows := make([][]string, len(counts))
	for i, c := range counts {
		rows[i] = []string{c.Key, fmt.Sprintf("%d", c.Count)}
	}
	header := []string{label, "Submissions"}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		type countView struct {
			Key   string `json:"key"`
			Count int    `json:"count"`
		}
		views := make([]countView, len(counts))
		for i, c := range counts {
			views[i] = countView{Key: c.Key, Count: c.Count}
		}
		return r.JSON(views)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, fmt.Sprintf("Submissions by %s", by)))
		r.Println("")
		renderMarkdownTable(r.Writer(), header, rows)
		return nil
	default:
		renderTable(r.Writer(), header, rows)
		return nil
	}
}
