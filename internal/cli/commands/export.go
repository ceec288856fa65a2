package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/blitz-labs/tankrank/internal/importer"
)

// NewExportCommand creates the export command group.
func NewExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the ledger as CSV",
		Long: `Export catalog or submission rows as CSV, either to stdout or to the
file named by --out. The column layout round-trips through import.`,
	}

	scores := &cobra.Command{
		Use:   "scores",
		Short: "Export all submissions",
		Args:  cobra.NoArgs,
		RunE:  runExportScores,
	}
	scores.Flags().String("out", "", "write to this file instead of stdout")

	tanks := &cobra.Command{
		Use:   "tanks",
		Short: "Export the catalog",
		Args:  cobra.NoArgs,
		RunE:  runExportTanks,
	}
	tanks.Flags().String("out", "", "write to this file instead of stdout")

	cmd.AddCommand(scores)
	cmd.AddCommand(tanks)

	return cmd
}

func runExportScores(cmd *cobra.Command, _ []string) error {
	return runExport(cmd, "submissions", func(im *importer.Importer, w io.Writer) (int, error) {
		return im.ExportScores(cmd.Context(), w)
	})
}

func runExportTanks(cmd *cobra.Command, _ []string) error {
	return runExport(cmd, "tanks", func(im *importer.Importer, w io.Writer) (int, error) {
		return im.ExportTanks(cmd.Context(), w)
	})
}

func runExport(cmd *cobra.Command, what string, write func(*importer.Importer, io.Writer) (int, error)) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	im := importer.New(cc.Store, cc.Resolver, importer.Options{Logger: cc.Logger})
	outPath, _ := cmd.Flags().GetString("out")

	if outPath == "" {
		// CSV goes to stdout; keep the summary off it.
		n, err := write(im, cc.Renderer.Writer())
		if err != nil {
			return err
		}
		fmt.Fprintf(cc.Renderer.ErrWriter(), "exported %d %s\n", n, what)
		return nil
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	n, err := write(im, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	cc.Renderer.Success(fmt.Sprintf("Exported %d %s to %s", n, what, outPath))
	return nil
}
