package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/blitz-labs/tankrank/internal/cli/output"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete SUBMISSION_ID",
		Short: "Delete a submission, reverting to the prior score when one exists",
		Long: `Delete one submission by id. When the audit trail records an earlier
score for the same pair, the row is reverted to it; otherwise the row is
removed. --hard removes the row outright without reverting.`,
		Args: cobra.ExactArgs(1),
		RunE: runDelete,
	}
	cmd.Flags().Bool("hard", false, "remove the row instead of reverting")
	cmd.Flags().String("actor", "", "actor recorded in the audit trail")

	return cmd
}

func runDelete(cmd *cobra.Command, args []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid submission id %q", args[0])
	}
	hard, _ := cmd.Flags().GetBool("hard")

	out, err := cc.Store.DeleteSubmission(cmd.Context(), id, actorFlag(cmd), hard)
	if err != nil {
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		type deleteView struct {
			Tank          string `json:"tank"`
			Player        string `json:"player"`
			OldScore      int    `json:"old_score"`
			Reverted      bool   `json:"reverted"`
			RestoredScore *int   `json:"restored_score,omitempty"`
			Removed       bool   `json:"removed"`
		}
		view := deleteView{
			Tank:     out.Tank,
			Player:   out.Player,
			OldScore: out.OldScore,
			Reverted: out.Reverted,
			Removed:  out.Removed,
		}
		if out.Reverted {
			view.RestoredScore = &out.RestoredScore
		}
		return r.JSON(view)
	}

	if out.Reverted {
		r.Success(fmt.Sprintf("Reverted %s on %s to %s (was %s)",
			out.Player, out.Tank, formatScore(out.RestoredScore), formatScore(out.OldScore)))
		return nil
	}
	r.Success(fmt.Sprintf("Removed %s on %s (was %s)",
		out.Player, out.Tank, formatScore(out.OldScore)))
	return nil
}
