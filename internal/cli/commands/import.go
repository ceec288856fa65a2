package commands

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blitz-labs/tankrank/internal/cli/output"
	"github.com/blitz-labs/tankrank/internal/importer"
)

// NewImportCommand creates the import command group.
func NewImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import CSV files into the ledger",
		Long: `Import score or catalog CSV files. Each run is one transaction tagged
with a batch id in the audit trail. Without --yes a dry run is shown
first and the write must be confirmed; --dry-run never writes.`,
	}

	scores := &cobra.Command{
		Use:   "scores FILE",
		Short: "Import a score CSV (tank, player, score columns)",
		Args:  cobra.ExactArgs(1),
		RunE:  runImportScores,
	}
	scores.Flags().Bool("dry-run", false, "validate and report without writing")
	scores.Flags().Bool("yes", false, "skip the confirmation prompt")
	scores.Flags().String("by", "", "submitter recorded on rows without a submitted_by column")

	tanks := &cobra.Command{
		Use:   "tanks FILE",
		Short: "Import a catalog CSV (name, tier, type columns)",
		Args:  cobra.ExactArgs(1),
		RunE:  runImportTanks,
	}
	tanks.Flags().Bool("dry-run", false, "validate and report without writing")
	tanks.Flags().Bool("yes", false, "skip the confirmation prompt")
	tanks.Flags().String("actor", "", "actor recorded in the audit trail")

	cmd.AddCommand(scores)
	cmd.AddCommand(tanks)

	return cmd
}

// readImportFile slurps the input so the confirmation flow can run the
// importer twice, first dry then for real. "-" reads stdin.
func readImportFile(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// confirmWrite gates a real import behind a typed YES unless --yes was
// passed. Non-interactive runs must pass --yes or --dry-run explicitly.
func confirmWrite(cmd *cobra.Command, r *output.Renderer, rows int, what string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return nil
	}
	if !r.IsTTY() {
		return errors.New("refusing to write without confirmation; rerun with --yes or --dry-run")
	}
	r.Printf("About to write %d %s to %s. Type YES to confirm: ", rows, what, "the ledger")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if strings.TrimSpace(line) != "YES" {
		return errors.New("import cancelled")
	}
	return nil
}

func runImportScores(cmd *cobra.Command, args []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	data, err := readImportFile(cmd, args[0])
	if err != nil {
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	by, _ := cmd.Flags().GetString("by")
	im := importer.New(cc.Store, cc.Resolver, importer.Options{
		RowLimit: cc.Cfg.Import.RowLimit,
		MaxScore: cc.Cfg.MaxScore,
		Logger:   cc.Logger,
	})

	if !dryRun {
		probe, err := im.ImportScores(cmd.Context(), bytes.NewReader(data), importer.ScoreOptions{
			DryRun:      true,
			SubmittedBy: by,
		})
		if err != nil {
			return err
		}
		if probe.Valid == 0 {
			renderScoreReport(cc.Renderer, probe)
			return errors.New("no valid rows to import")
		}
		if err := confirmWrite(cmd, cc.Renderer, probe.Valid, "scores"); err != nil {
			return err
		}
	}

	rep, err := im.ImportScores(cmd.Context(), bytes.NewReader(data), importer.ScoreOptions{
		DryRun:      dryRun,
		SubmittedBy: by,
	})
	if err != nil {
		return err
	}

	if cc.Renderer.EffectiveMode() == output.ModeJSON {
		return cc.Renderer.JSON(viewScoreReport(rep))
	}
	renderScoreReport(cc.Renderer, rep)
	return nil
}

func runImportTanks(cmd *cobra.Command, args []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	data, err := readImportFile(cmd, args[0])
	if err != nil {
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	im := importer.New(cc.Store, cc.Resolver, importer.Options{
		RowLimit: cc.Cfg.Import.RowLimit,
		MaxScore: cc.Cfg.MaxScore,
		Logger:   cc.Logger,
	})
	opts := importer.TankOptions{DryRun: dryRun, Actor: actorFlag(cmd)}

	if !dryRun {
		probe, err := im.ImportTanks(cmd.Context(), bytes.NewReader(data), importer.TankOptions{
			DryRun: true,
			Actor:  opts.Actor,
		})
		if err != nil {
			return err
		}
		if probe.Valid == 0 {
			renderTankReport(cc.Renderer, probe)
			return errors.New("no valid rows to import")
		}
		if err := confirmWrite(cmd, cc.Renderer, probe.Valid, "catalog rows"); err != nil {
			return err
		}
	}

	rep, err := im.ImportTanks(cmd.Context(), bytes.NewReader(data), opts)
	if err != nil {
		return err
	}

	if cc.Renderer.EffectiveMode() == output.ModeJSON {
		return cc.Renderer.JSON(viewTankReport(rep))
	}
	renderTankReport(cc.Renderer, rep)
	return nil
}

type scoreReportView struct {
	BatchID   string   `json:"batch_id"`
	DryRun    bool     `json:"dry_run"`
	Attempted int      `json:"attempted"`
	Valid     int      `json:"valid"`
	Added     int      `json:"added"`
	Updated   int      `json:"updated"`
	Ignored   int      `json:"ignored"`
	Errors    []string `json:"errors,omitempty"`
}

func viewScoreReport(rep *importer.ScoreReport) scoreReportView {
	return scoreReportView{
		BatchID:   rep.BatchID,
		DryRun:    rep.DryRun,
		Attempted: rep.Attempted,
		Valid:     rep.Valid,
		Added:     rep.Added,
		Updated:   rep.Updated,
		Ignored:   rep.Ignored,
		Errors:    rowErrorStrings(rep.Errors),
	}
}

type tankReportView struct {
	BatchID   string   `json:"batch_id"`
	DryRun    bool     `json:"dry_run"`
	Attempted int      `json:"attempted"`
	Valid     int      `json:"valid"`
	Added     int      `json:"added"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

func viewTankReport(rep *importer.TankReport) tankReportView {
	return tankReportView{
		BatchID:   rep.BatchID,
		DryRun:    rep.DryRun,
		Attempted: rep.Attempted,
		Valid:     rep.Valid,
		Added:     rep.Added,
		Skipped:   rep.Skipped,
		Errors:    rowErrorStrings(rep.Errors),
	}
}

func rowErrorStrings(errs []importer.RowError) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.String()
	}
	return out
}

func renderScoreReport(r *output.Renderer, rep *importer.ScoreReport) {
	if rep.DryRun {
		r.Printf("Dry run (batch %s): %d of %d rows valid\n", rep.BatchID, rep.Valid, rep.Attempted)
	} else {
		r.Success(fmt.Sprintf("Imported batch %s: %d added, %d updated, %d ignored (%d rows)",
			rep.BatchID, rep.Added, rep.Updated, rep.Ignored, rep.Attempted))
	}
	renderRowErrors(r, rep.Errors)
}

func renderTankReport(r *output.Renderer, rep *importer.TankReport) {
	if rep.DryRun {
		r.Printf("Dry run (batch %s): %d of %d rows valid\n", rep.BatchID, rep.Valid, rep.Attempted)
	} else {
		r.Success(fmt.Sprintf("Imported batch %s: %d added, %d skipped (%d rows)",
			rep.BatchID, rep.Added, rep.Skipped, rep.Attempted))
	}
	renderRowErrors(r, rep.Errors)
}

func renderRowErrors(r *output.Renderer, errs []importer.RowError) {
	for _, e := range errs {
		r.StatusLine(fmt.Sprintf("line %d", e.Line), "error", e.Reason)
	}
}
