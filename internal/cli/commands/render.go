package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/blitz-labs/tankrank/internal/ledger"
)

var scorePrinter = message.NewPrinter(language.English)

// formatScore renders a score with thousands separators: 12345 -> "12,345".
func formatScore(score int) string {
	return scorePrinter.Sprintf("%d", score)
}

func formatWhen(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// renderTable writes rows as a boxed table followed by a row count.
func renderTable(w io.Writer, header []string, rows [][]string) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	headerRow := make(table.Row, len(header))
	for i, col := range header {
		headerRow[i] = col
	}
	t.AppendHeader(headerRow)

	for _, r := range rows {
		row := make(table.Row, len(r))
		for i, v := range r {
			row[i] = v
		}
		t.AppendRow(row)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(rows))
}

// renderMarkdownTable writes rows as a markdown pipe table.
func renderMarkdownTable(w io.Writer, header []string, rows [][]string) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return
	}

	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(header, " | "))
	seps := make([]string, len(header))
	for i := range seps {
		seps[i] = "---"
	}
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))

	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(r, " | "))
	}
}

// bestRowCells flattens one snapshot row for table rendering. Tanks without
// submissions keep their catalog cells and leave the player side blank.
func bestRowCells(row ledger.BestRow) []string {
	cells := []string{row.Tank, fmt.Sprintf("%d", row.Tier), string(row.Type)}
	if row.HasScore {
		return append(cells, row.Player, formatScore(row.Score), formatWhen(row.At))
	}
	return append(cells, "", "", "")
}

var bestRowHeader = []string{"Tank", "Tier", "Type", "Player", "Score", "When"}

// bestRowView is the JSON shape shared by the snapshot-style commands.
type bestRowView struct {
	Tank         string `json:"tank"`
	Tier         int    `json:"tier"`
	Type         string `json:"type"`
	SubmissionID int64  `json:"submission_id,omitempty"`
	Player       string `json:"player,omitempty"`
	Score        int    `json:"score,omitempty"`
	HasScore     bool   `json:"has_score"`
	At           string `json:"at,omitempty"`
}

func viewBestRow(row ledger.BestRow) bestRowView {
	v := bestRowView{
		Tank:     row.Tank,
		Tier:     row.Tier,
		Type:     string(row.Type),
		HasScore: row.HasScore,
	}
	if row.HasScore {
		v.SubmissionID = row.SubmissionID
		v.Player = row.Player
		v.Score = row.Score
		v.At = ledger.FormatTime(row.At)
	}
	return v
}

func viewBestRows(rows []ledger.BestRow) []bestRowView {
	views := make([]bestRowView, len(rows))
	for i, row := range rows {
		views[i] = viewBestRow(row)
	}
	return views
}
