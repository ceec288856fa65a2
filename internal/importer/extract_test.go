package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blitz-labs/tankrank/internal/ledger"
)

func TestExtractText_Sections(t *testing.T) {
	input := `pasted from chat, junk before the first header
Tier 10 - Medium
Object 140    5000   Alice
T-54    -    -
----------
tier 8 - Heavy Tanks
**IS-3**  4200  bob_the_builder
> IS-3   4200   bob_the_builder
IS-3 4200 Bob_The_Builder
`

	ex := ExtractText(input, ExtractOptions{})
	require.Empty(t, ex.Errors)

	require.Len(t, ex.Tanks, 3, "tanks de-dupe per tier/type/name")
	assert.Equal(t, TankRow{Name: "IS-3", Tier: 8, Type: ledger.TypeHeavy}, ex.Tanks[0], "sorted by tier first")
	assert.Equal(t, TankRow{Name: "Object 140", Tier: 10, Type: ledger.TypeMedium}, ex.Tanks[1])
	assert.Equal(t, TankRow{Name: "T-54", Tier: 10, Type: ledger.TypeMedium}, ex.Tanks[2])

	require.Len(t, ex.Scores, 2, "score rows de-dupe case-insensitively")
	assert.Equal(t, ScoreRow{Tank: "Object 140", Score: 5000, Player: "Alice"}, ex.Scores[0])
	assert.Equal(t, ScoreRow{Tank: "IS-3", Score: 4200, Player: "bob_the_builder"}, ex.Scores[1])
}

func TestExtractText_RightParse(t *testing.T) {
	// The score is the last number before the player, so tank names may
	// contain digits and spaces.
	input := "Tier 9 - Medium\nT-54 ltwt. 122 1200 carl the great\n"

	ex := ExtractText(input, ExtractOptions{})
	require.Empty(t, ex.Errors)
	require.Len(t, ex.Scores, 1)
	assert.Equal(t, "T-54 ltwt. 122", ex.Scores[0].Tank)
	assert.Equal(t, 1200, ex.Scores[0].Score)
	assert.Equal(t, "carl the great", ex.Scores[0].Player)
}

func TestExtractText_NoSubmissionRow(t *testing.T) {
	input := "Tier 10 - TD\nGrille 15 — —\nJagdpanzer E 100 - -\n"

	ex := ExtractText(input, ExtractOptions{})
	require.Empty(t, ex.Errors)
	assert.Empty(t, ex.Scores)
	require.Len(t, ex.Tanks, 2)
	assert.Equal(t, "Grille 15", ex.Tanks[0].Name)
	assert.Equal(t, ledger.TypeTD, ex.Tanks[0].Type)
}

func TestExtractText_NoiseStripping(t *testing.T) {
	input := "Tier 10 - Heavy\n> `*Maus*` 3000​ dan\n"

	ex := ExtractText(input, ExtractOptions{})
	require.Empty(t, ex.Errors)
	require.Len(t, ex.Scores, 1)
	assert.Equal(t, "Maus", ex.Scores[0].Tank)
	assert.Equal(t, 3000, ex.Scores[0].Score)
	assert.Equal(t, "dan", ex.Scores[0].Player)
}

func TestExtractText_ClassVariants(t *testing.T) {
	cases := []struct {
		header string
		want   ledger.TankType
	}{
		{"Tier 5 - Light", ledger.TypeLight},
		{"Tier 5 - light tanks", ledger.TypeLight},
		{"Tier 5 - Medium Tank", ledger.TypeMedium},
		{"Tier 5 - Tank Destroyers", ledger.TypeTD},
		{"Tier 5 - TD", ledger.TypeTD},
		{"tier 5 - HEAVY", ledger.TypeHeavy},
	}
	for _, tc := range cases {
		ex := ExtractText(tc.header+"\nSomeTank 100 player\n", ExtractOptions{})
		require.Empty(t, ex.Errors, "header %q", tc.header)
		require.Len(t, ex.Tanks, 1, "header %q", tc.header)
		assert.Equal(t, tc.want, ex.Tanks[0].Type, "header %q", tc.header)
	}
}

func TestExtractText_BadSectionSkipsBody(t *testing.T) {
	input := "Tier 3 - Artillery\nSU-26 900 otto\nTier 12 - Heavy\nE 100 900 otto\nTier 6 - Heavy\nKV-2 800 otto\n"

	ex := ExtractText(input, ExtractOptions{})
	require.Len(t, ex.Errors, 2)
	assert.Equal(t, 1, ex.Errors[0].Line)
	assert.Contains(t, ex.Errors[0].Reason, "unknown vehicle class")
	assert.Equal(t, 3, ex.Errors[1].Line)
	assert.Contains(t, ex.Errors[1].Reason, "tier 12 out of range")

	// Only the section with a valid header contributes rows.
	require.Len(t, ex.Tanks, 1)
	assert.Equal(t, "KV-2", ex.Tanks[0].Name)
}

func TestExtractText_OutOfRangeScoreDropped(t *testing.T) {
	input := "Tier 10 - Heavy\nMaus 999999 overflow\nMaus 3000 dan\n"

	ex := ExtractText(input, ExtractOptions{MaxScore: 100000})
	require.Empty(t, ex.Errors)
	require.Len(t, ex.Tanks, 1, "the tank row survives a dropped score")
	require.Len(t, ex.Scores, 1)
	assert.Equal(t, 3000, ex.Scores[0].Score)
}

func TestExtractText_UnrecognizedRow(t *testing.T) {
	input := "Tier 10 - Heavy\nIS-7 5000 Alice\nwhat is this line\n"

	ex := ExtractText(input, ExtractOptions{})
	require.Len(t, ex.Errors, 1)
	assert.Equal(t, 3, ex.Errors[0].Line)
	assert.Contains(t, ex.Errors[0].Reason, "unrecognized row")
	require.Len(t, ex.Scores, 1)
}

func TestExtractHTML(t *testing.T) {
	html := `<html><body>
<p>Tier 10 - Heavy</p>
<p>IS-7 5000 Alice</p>
<p>Maus 4200 dan</p>
</body></html>`

	ex, err := ExtractHTML(html, ExtractOptions{})
	require.NoError(t, err)
	require.Len(t, ex.Tanks, 2)
	require.Len(t, ex.Scores, 2)
	assert.Equal(t, ScoreRow{Tank: "IS-7", Score: 5000, Player: "Alice"}, ex.Scores[0])
}
