// Package importer moves catalog and score data across the system edge:
// header-driven CSV imports with per-row error reporting, deterministic CSV
// exports, and an extractor that turns pasted leaderboard text into rows the
// import pipeline accepts.
package importer

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/blitz-labs/tankrank/internal/ledger"
	"github.com/blitz-labs/tankrank/internal/names"
)

// Leaderboard row grammar. Entry lines parse from the right so tank names
// may contain spaces and digits: "<tank> <score> <player>".
var (
	sectionRE   = regexp.MustCompile(`(?i)^\s*Tier\s+(\d{1,2})\s*-\s*([A-Za-z ]+?)\s*$`)
	separatorRE = regexp.MustCompile(`^\s*-{3,}\s*$`)
	noSubRE     = regexp.MustCompile(`^(.+?)\s+-+\s+-+\s*$`)
	scoreRE     = regexp.MustCompile(`^(.+)\s+(\d{1,6})\s+(\S.*)$`)

	tankWordRE  = regexp.MustCompile(`\btank\b`)
	lettersOnly = regexp.MustCompile(`[^a-z]`)
	quotePrefix = regexp.MustCompile(`^\s*>\s*`)
	spaceCollRE = regexp.MustCompile(`\s+`)
)

// TankRow is one catalog entry found by the extractor.
type TankRow struct {
	Name string
	Tier int
	Type ledger.TankType
}

// ScoreRow is one score entry found by the extractor, in source order.
type ScoreRow struct {
	Tank   string
	Score  int
	Player string
}

// Extraction is the parse result of one leaderboard paste. Errors collect
// unrecognized rows with their line numbers; they never abort the parse.
type Extraction struct {
	Tanks  []TankRow
	Scores []ScoreRow
	Errors []RowError
}

// ExtractOptions tune the extractor. A zero MaxScore uses the ledger default.
type ExtractOptions struct {
	MaxScore int
}

// ExtractText parses pasted leaderboard text. Section headers of the form
// "Tier 8 - Heavy" set the bucket for the lines below; lines before the
// first header and separator rules are skipped. Tank rows are de-duped per
// (tier, type, name), score rows per (tank, player, score); scores outside
// 1..MaxScore are dropped.
func ExtractText(input string, opts ExtractOptions) *Extraction {
	maxScore := opts.MaxScore
	if maxScore <= 0 {
		maxScore = ledger.DefaultMaxScore
	}

	ex := &Extraction{}
	var tier int
	var typ ledger.TankType
	inSection := false

	tanksSeen := make(map[string]bool)
	scoresSeen := make(map[string]bool)

	for i, raw := range strings.Split(input, "\n") {
		lineNo := i + 1
		line := cleanLine(raw)
		if line == "" || separatorRE.MatchString(line) {
			continue
		}

		if m := sectionRE.FindStringSubmatch(line); m != nil {
			t, _ := strconv.Atoi(m[1])
			cls, ok := normalizeClass(m[2])
			if !ok {
				ex.Errors = append(ex.Errors, RowError{Line: lineNo, Reason: fmt.Sprintf("unknown vehicle class %q", strings.TrimSpace(m[2]))})
				inSection = false
				continue
			}
			if t < ledger.MinTier || t > ledger.MaxTier {
				ex.Errors = append(ex.Errors, RowError{Line: lineNo, Reason: fmt.Sprintf("tier %d out of range", t)})
				inSection = false
				continue
			}
			tier, typ, inSection = t, cls, true
			continue
		}

		// Junk above the first header is common in chat pastes.
		if !inSection {
			continue
		}

		tank, score, player, err := parseEntry(line)
		if err != nil {
			ex.Errors = append(ex.Errors, RowError{Line: lineNo, Reason: err.Error()})
			continue
		}

		tankKey := fmt.Sprintf("%d|%s|%s", tier, typ, names.NormTank(tank))
		if !tanksSeen[tankKey] {
			tanksSeen[tankKey] = true
			ex.Tanks = append(ex.Tanks, TankRow{Name: tank, Tier: tier, Type: typ})
		}

		if player == "" {
			continue
		}
		if score < 1 || score > maxScore {
			continue
		}
		scoreKey := fmt.Sprintf("%s|%s|%d", names.NormTank(tank), names.NormPlayer(player), score)
		if scoresSeen[scoreKey] {
			continue
		}
		scoresSeen[scoreKey] = true
		ex.Scores = append(ex.Scores, ScoreRow{Tank: tank, Score: score, Player: player})
	}

	sort.Slice(ex.Tanks, func(i, j int) bool {
		a, b := ex.Tanks[i], ex.Tanks[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return names.NormTank(a.Name) < names.NormTank(b.Name)
	})
	return ex
}

// ExtractHTML converts HTML (a saved forum or chat page) to markdown text
// and extracts that.
func ExtractHTML(html string, opts ExtractOptions) (*Extraction, error) {
	text, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return nil, fmt.Errorf("convert html: %w", err)
	}
	return ExtractText(text, opts), nil
}

// parseEntry splits one cleaned section line. A row ending in "- -" is a
// tank with no submission; player comes back empty then.
func parseEntry(line string) (tank string, score int, player string, err error) {
	if m := noSubRE.FindStringSubmatch(line); m != nil {
		tank = cleanTankName(m[1])
		if tank == "" {
			return "", 0, "", fmt.Errorf("unrecognized row %q", line)
		}
		return tank, 0, "", nil
	}
	m := scoreRE.FindStringSubmatch(line)
	if m == nil {
		return "", 0, "", fmt.Errorf("unrecognized row %q", line)
	}
	tank = cleanTankName(m[1])
	if tank == "" {
		return "", 0, "", fmt.Errorf("unrecognized row %q", line)
	}
	score, _ = strconv.Atoi(m[2])
	return tank, score, strings.TrimSpace(m[3]), nil
}

// cleanLine strips chat formatting noise: blockquote prefixes, bold and
// code markers, unicode dashes, zero-width spaces.
func cleanLine(raw string) string {
	s := strings.TrimSpace(raw)
	s = quotePrefix.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "`", "")
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "–", "-")
	s = strings.ReplaceAll(s, "—", "-")
	s = strings.ReplaceAll(s, "​", "")
	return strings.TrimSpace(s)
}

// cleanTankName drops asterisks and collapses whitespace.
func cleanTankName(raw string) string {
	s := strings.ReplaceAll(raw, "*", "")
	return strings.TrimSpace(spaceCollRE.ReplaceAllString(s, " "))
}

// normalizeClass maps a section type phrase onto a catalog class. A
// trailing "tank" word is dropped and common destroyer spellings collapse
// to td.
func normalizeClass(raw string) (ledger.TankType, bool) {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.TrimSpace(tankWordRE.ReplaceAllString(t, " "))
	t = strings.TrimSpace(spaceCollRE.ReplaceAllString(t, " "))
	switch {
	case strings.Contains(t, "light"):
		return ledger.TypeLight, true
	case strings.Contains(t, "medium"):
		return ledger.TypeMedium, true
	case strings.Contains(t, "heavy"):
		return ledger.TypeHeavy, true
	case strings.Contains(t, "destroyer"), lettersOnly.ReplaceAllString(t, "") == "td":
		return ledger.TypeTD, true
	}
	return "", false
}
