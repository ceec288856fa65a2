package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/blitz-labs/tankrank/internal/cli/output"
	"github.com/blitz-labs/tankrank/internal/ledger"
)

// NewSubmitCommand creates the submit command.
func NewSubmitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit PLAYER TANK SCORE",
		Short: "Record a score for a player on a tank",
		Long: `Record one score. Tank and player names are free text: the tank is
resolved through aliases and fuzzy matching against the catalog, the
player against the clan roster and prior submitters. A submission only
replaces an existing one when the score is strictly higher.`,
		Args: cobra.ExactArgs(3),
		RunE: runSubmit,
	}
	cmd.Flags().String("by", "cli", "who recorded the submission")

	return cmd
}

// submitView is the JSON shape of one submission outcome.
type submitView struct {
	Status       string `json:"status"`
	SubmissionID int64  `json:"submission_id"`
	Tank         string `json:"tank"`
	Player       string `json:"player"`
	OldScore     *int   `json:"old_score,omitempty"`
	NewScore     *int   `json:"new_score,omitempty"`
	Current      int    `json:"current"`
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	score, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid score %q", args[2])
	}

	tank, err := cc.Resolver.ResolveTank(cmd.Context(), args[1])
	if err != nil {
		return err
	}
	player, err := cc.Resolver.ResolvePlayer(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	by, _ := cmd.Flags().GetString("by")
	out, err := cc.Store.Submit(cmd.Context(), ledger.SubmitRequest{
		Player:      player.Display,
		Tank:        tank.Name,
		Score:       score,
		SubmittedBy: by,
	})
	if err != nil {
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		view := submitView{
			Status:       string(out.Status),
			SubmissionID: out.SubmissionID,
			Tank:         tank.Name,
			Player:       player.Display,
			Current:      out.Current,
		}
		switch out.Status {
		case ledger.StatusAdded:
			view.NewScore = &out.NewScore
		case ledger.StatusUpdated:
			view.OldScore = &out.OldScore
			view.NewScore = &out.NewScore
		}
		return r.JSON(view)
	}

	switch out.Status {
	case ledger.StatusAdded:
		r.Success(fmt.Sprintf("Added %s on %s: %s", player.Display, tank.Name, formatScore(out.NewScore)))
	case ledger.StatusUpdated:
		r.Success(fmt.Sprintf("Updated %s on %s: %s (was %s)",
			player.Display, tank.Name, formatScore(out.NewScore), formatScore(out.OldScore)))
	default:
		r.Warning(fmt.Sprintf("Ignored: %s already has %s on %s",
			player.Display, formatScore(out.Current), tank.Name))
	}
	return nil
}
