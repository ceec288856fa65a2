package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/blitz-labs/tankrank/internal/cli/output"
)

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check TANK SCORE",
		Short: "Check whether a score would beat the current best",
		Long: `Compare a candidate score against the current best for a tank without
recording anything. Only strictly higher scores qualify; ties do not.`,
		Args: cobra.ExactArgs(2),
		RunE: runCheck,
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	score, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid score %q", args[1])
	}

	tank, err := cc.Resolver.ResolveTank(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	q, err := cc.Store.Qualifies(cmd.Context(), tank.Name, score)
	if err != nil {
		return err
	}

	r := cc.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		type checkView struct {
			Tank      string `json:"tank"`
			Score     int    `json:"score"`
			Best      *int   `json:"best,omitempty"`
			Qualifies bool   `json:"qualifies"`
			Margin    int    `json:"margin"`
		}
		return r.JSON(checkView{
			Tank: q.Tank, Score: q.Score, Best: q.Best,
			Qualifies: q.Qualifies, Margin: q.Margin,
		})
	}

	switch {
	case q.Best == nil:
		r.Success(fmt.Sprintf("%s would take first place on %s (no submissions yet)",
			formatScore(q.Score), q.Tank))
	case q.Qualifies:
		r.Success(fmt.Sprintf("%s beats the current best %s on %s by %s",
			formatScore(q.Score), formatScore(*q.Best), q.Tank, formatScore(q.Margin)))
	case q.Margin == 0:
		r.Warning(fmt.Sprintf("%s ties the current best on %s; only higher scores replace",
			formatScore(q.Score), q.Tank))
	default:
		r.Warning(fmt.Sprintf("%s falls short of the best %s on %s by %s",
			formatScore(q.Score), formatScore(*q.Best), q.Tank, formatScore(-q.Margin)))
	}
	return nil
}
