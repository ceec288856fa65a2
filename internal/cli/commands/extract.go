package commands

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/blitz-labs/tankrank/internal/cli/output"
	"github.com/blitz-labs/tankrank/internal/importer"
)

// NewExtractCommand creates the extract command group.
func NewExtractCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Parse leaderboard pastes into catalog and score rows",
		Long: `Parse a pasted leaderboard into structured rows without touching the
ledger. "Tier N - Class" headers bucket the lines below them. --csv
emits import-ready CSV, so a paste can be piped straight into import:

  tankrank extract text paste.txt --csv scores | tankrank import scores - --yes`,
	}

	text := &cobra.Command{
		Use:   "text [FILE]",
		Short: "Parse plain-text leaderboard input",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExtractText,
	}
	html := &cobra.Command{
		Use:   "html [FILE]",
		Short: "Parse an HTML leaderboard export",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExtractHTML,
	}
	for _, sub := range []*cobra.Command{text, html} {
		sub.Flags().String("csv", "", "emit CSV for import: tanks or scores")
		_ = sub.RegisterFlagCompletionFunc("csv", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			return []string{"tanks", "scores"}, cobra.ShellCompDirectiveNoFileComp
		})
	}

	cmd.AddCommand(text)
	cmd.AddCommand(html)

	return cmd
}

func readExtractInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	}
	data, err := os.ReadFile(args[0])
	return string(data), err
}

func runExtractText(cmd *cobra.Command, args []string) error {
	cc := NewCommandContextWithoutStore(cmd)

	input, err := readExtractInput(cmd, args)
	if err != nil {
		return err
	}
	ext := importer.ExtractText(input, importer.ExtractOptions{MaxScore: cc.Cfg.MaxScore})
	return renderExtraction(cmd, cc.Renderer, ext)
}

func runExtractHTML(cmd *cobra.Command, args []string) error {
	cc := NewCommandContextWithoutStore(cmd)

	input, err := readExtractInput(cmd, args)
	if err != nil {
		return err
	}
	ext, err := importer.ExtractHTML(input, importer.ExtractOptions{MaxScore: cc.Cfg.MaxScore})
	if err != nil {
		return err
	}
	return renderExtraction(cmd, cc.Renderer, ext)
}

func renderExtraction(cmd *cobra.Command, r *output.Renderer, ext *importer.Extraction) error {
	if mode, _ := cmd.Flags().GetString("csv"); mode != "" {
		return writeExtractionCSV(r, ext, mode)
	}

	tankRows := make([][]string, len(ext.Tanks))
	for i, t := range ext.Tanks {
		tankRows[i] = []string{t.Name, strconv.Itoa(t.Tier), string(t.Type)}
	}
	scoreRows := make([][]string, len(ext.Scores))
	for i, s := range ext.Scores {
		scoreRows[i] = []string{s.Tank, formatScore(s.Score), s.Player}
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		type tankView struct {
			Name string `json:"name"`
			Tier int    `json:"tier"`
			Type string `json:"type"`
		}
		type scoreView struct {
			Tank   string `json:"tank"`
			Score  int    `json:"score"`
			Player string `json:"player"`
		}
		view := struct {
			Tanks  []tankView  `json:"tanks"`
			Scores []scoreView `json:"scores"`
			Errors []string    `json:"errors,omitempty"`
		}{
			Tanks:  make([]tankView, len(ext.Tanks)),
			Scores: make([]scoreView, len(ext.Scores)),
			Errors: rowErrorStrings(ext.Errors),
		}
		for i, t := range ext.Tanks {
			view.Tanks[i] = tankView{Name: t.Name, Tier: t.Tier, Type: string(t.Type)}
		}
		for i, s := range ext.Scores {
			view.Scores[i] = scoreView{Tank: s.Tank, Score: s.Score, Player: s.Player}
		}
		return r.JSON(view)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, fmt.Sprintf("Tanks (%d)", len(ext.Tanks))))
		r.Println("")
		renderMarkdownTable(r.Writer(), []string{"Tank", "Tier", "Type"}, tankRows)
		r.Println("")
		r.Println(output.FormatHeader(1, fmt.Sprintf("Scores (%d)", len(ext.Scores))))
		r.Println("")
		renderMarkdownTable(r.Writer(), []string{"Tank", "Score", "Player"}, scoreRows)
		renderRowErrors(r, ext.Errors)
		return nil
	default:
		r.Header(1, fmt.Sprintf("Tanks (%d)", len(ext.Tanks)))
		renderTable(r.Writer(), []string{"Tank", "Tier", "Type"}, tankRows)
		r.Println("")
		r.Header(1, fmt.Sprintf("Scores (%d)", len(ext.Scores)))
		renderTable(r.Writer(), []string{"Tank", "Score", "Player"}, scoreRows)
		renderRowErrors(r, ext.Errors)
		return nil
	}
}

// writeExtractionCSV emits rows in the column layout the import commands
// expect, with parse errors reported on stderr.
func writeExtractionCSV(r *output.Renderer, ext *importer.Extraction, mode string) error {
	w := csv.NewWriter(r.Writer())
	switch mode {
	case "tanks":
		if err := w.Write([]string{"name", "tier", "type"}); err != nil {
			return err
		}
		for _, t := range ext.Tanks {
			if err := w.Write([]string{t.Name, strconv.Itoa(t.Tier), string(t.Type)}); err != nil {
				return err
			}
		}
	case "scores":
		if err := w.Write([]string{"tank_name", "player_name", "score"}); err != nil {
			return err
		}
		for _, s := range ext.Scores {
			if err := w.Write([]string{s.Tank, s.Player, strconv.Itoa(s.Score)}); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("invalid --csv %q (valid: tanks, scores)", mode)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	for _, e := range ext.Errors {
		fmt.Fprintf(r.ErrWriter(), "line %d: %s\n", e.Line, e.Reason)
	}
	return nil
}
