package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blitz-labs/tankrank/internal/cli/output"
	"github.com/blitz-labs/tankrank/internal/ledger"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the audit trail",
		Long: `Show audit rows, newest first. By default the score-change tail is
shown; --catalog switches to catalog changes, and --tank together with
--player narrows to one pair's full history.`,
		RunE: runHistory,
	}
	cmd.Flags().Int("limit", 50, "number of rows")
	cmd.Flags().String("tank", "", "score history for this tank (requires --player)")
	cmd.Flags().String("player", "", "score history for this player (requires --tank)")
	cmd.Flags().Bool("catalog", false, "show catalog changes instead of score changes")

	return cmd
}

type scoreChangeView struct {
	ID       int64  `json:"id"`
	Action   string `json:"action"`
	Tank     string `json:"tank"`
	Player   string `json:"player"`
	OldScore *int   `json:"old_score,omitempty"`
	NewScore *int   `json:"new_score,omitempty"`
	Actor    string `json:"actor"`
	At       string `json:"at"`
	Details  string `json:"details,omitempty"`
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	limit, _ := cmd.Flags().GetInt("limit")
	catalog, _ := cmd.Flags().GetBool("catalog")
	tankArg, _ := cmd.Flags().GetString("tank")
	playerArg, _ := cmd.Flags().GetString("player")

	if catalog {
		if tankArg != "" || playerArg != "" {
			return errors.New("--catalog cannot be combined with --tank or --player")
		}
		return runCatalogHistory(cmd, cc, limit)
	}

	var changes []ledger.ScoreChange
	switch {
	case tankArg != "" && playerArg != "":
		tank, err := cc.Resolver.ResolveTank(cmd.Context(), tankArg)
		if err != nil {
			return err
		}
		player, err := cc.Resolver.ResolvePlayer(cmd.Context(), playerArg)
		if err != nil {
			return err
		}
		changes, err = cc.Store.ScoreHistory(cmd.Context(), tank.Name, player.Norm, limit)
		if err != nil {
			return err
		}
	case tankArg != "" || playerArg != "":
		return errors.New("pass both --tank and --player for a pair history")
	default:
		changes, err = cc.Store.ScoreChanges(cmd.Context(), limit)
		if err != nil {
			return err
		}
	}

	header := []string{"ID", "Action", "Tank", "Player", "Old", "New", "Actor", "When"}
	rows := make([][]string, len(changes))
	for i, c := range changes {
		rows[i] = []string{
			fmt.Sprintf("%d", c.ID),
			c.Action,
			c.TankName,
			c.PlayerNameRaw,
			optScore(c.OldScore),
			optScore(c.NewScore),
			c.Actor,
			formatWhen(c.CreatedAt),
		}
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		views := make([]scoreChangeView, len(changes))
		for i, c := range changes {
			views[i] = scoreChangeView{
				ID:       c.ID,
				Action:   c.Action,
				Tank:     c.TankName,
				Player:   c.PlayerNameRaw,
				OldScore: c.OldScore,
				NewScore: c.NewScore,
				Actor:    c.Actor,
				At:       ledger.FormatTime(c.CreatedAt),
				Details:  c.Details,
			}
		}
		return r.JSON(views)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Score changes"))
		r.Println("")
		renderMarkdownTable(r.Writer(), header, rows)
		return nil
	default:
		renderTable(r.Writer(), header, rows)
		return nil
	}
}

func runCatalogHistory(cmd *cobra.Command, cc *CommandContext, limit int) error {
	changes, err := cc.Store.TankChanges(cmd.Context(), limit)
	if err != nil {
		return err
	}

	header := []string{"ID", "Action", "Details", "Actor", "When"}
	rows := make([][]string, len(changes))
	for i, c := range changes {
		rows[i] = []string{
			fmt.Sprintf("%d", c.ID),
			c.Action,
			c.Details,
			c.Actor,
			formatWhen(c.CreatedAt),
		}
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		type tankChangeView struct {
			ID      int64  `json:"id"`
			Action  string `json:"action"`
			Details string `json:"details"`
			Actor   string `json:"actor"`
			At      string `json:"at"`
		}
		views := make([]tankChangeView, len(changes))
		for i, c := range changes {
			views[i] = tankChangeView{
				ID:      c.ID,
				Action:  c.Action,
				Details: c.Details,
				Actor:   c.Actor,
				At:      ledger.FormatTime(c.CreatedAt),
			}
		}
		return r.JSON(views)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Catalog changes"))
		r.Println("")
		renderMarkdownTable(r.Writer(), header, rows)
		return nil
	default:
		renderTable(r.Writer(), header, rows)
		return nil
	}
}

func optScore(v *int) string {
	if v == nil {
		return ""
	}
	return formatScore(*v)
}
