package output

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func newBufRenderer(mode Mode, isTTY bool) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return NewRendererWithTTY(out, errOut, isTTY, mode), out, errOut
}

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		name  string
		mode  Mode
		isTTY bool
		want  Mode
	}{
		{"auto on tty is text", ModeAuto, true, ModeText},
		{"auto piped is markdown", ModeAuto, false, ModeMarkdown},
		{"empty mode behaves like auto", Mode(""), false, ModeMarkdown},
		{"unknown mode behaves like auto", Mode("fancy"), true, ModeText},
		{"md shorthand", Mode("md"), true, ModeMarkdown},
		{"explicit json ignores tty", ModeJSON, true, ModeJSON},
		{"explicit text ignores pipe", ModeText, false, ModeText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newBufRenderer(tt.mode, tt.isTTY)
			assert.Equal(t, tt.want, r.EffectiveMode())
		})
	}
}

func TestHeaderMarkdown(t *testing.T) {
	r, out, _ := newBufRenderer(ModeMarkdown, false)
	r.Header(1, "Catalog")
	r.Header(2, "Aliases")

	assert.Contains(t, out.String(), "# Catalog\n")
	assert.Contains(t, out.String(), "## Aliases\n")
	assert.False(t, ansiPattern.MatchString(out.String()))
}

func TestHeaderTextModeWithoutTTYStaysPlain(t *testing.T) {
	r, out, _ := newBufRenderer(ModeText, false)
	r.Header(1, "Catalog")

	assert.Equal(t, "Catalog\n", out.String())
}

func TestStatusLine(t *testing.T) {
	r, out, _ := newBufRenderer(ModeText, false)
	r.StatusLine("Object 140", "success", "tier 10 medium")
	r.StatusLine("Hummel", "skipped", "")

	assert.Contains(t, out.String(), "✓ Object 140 (tier 10 medium)")
	assert.Contains(t, out.String(), "! Hummel\n")
}

func TestSuccessAndErrorRouting(t *testing.T) {
	r, out, errOut := newBufRenderer(ModeText, false)
	r.Success("submitted")
	r.Error("store unreachable")
	r.Warning("close call")

	assert.Contains(t, out.String(), "✓ submitted")
	assert.Contains(t, errOut.String(), "✗ store unreachable")
	assert.Contains(t, errOut.String(), "! close call")
}

func TestNonTextModesProduceNoANSI(t *testing.T) {
	for _, mode := range []Mode{ModeMarkdown, ModeJSON} {
		r, out, errOut := newBufRenderer(mode, false)
		r.Header(1, "Snapshot")
		r.Success("ok")
		r.Error("bad")
		r.StatusLine("IS-7", "success", "")

		combined := out.String() + errOut.String()
		assert.False(t, ansiPattern.MatchString(combined), "mode %s leaked ANSI: %q", mode, combined)
	}
}

func TestJSON(t *testing.T) {
	r, out, _ := newBufRenderer(ModeJSON, false)
	require.NoError(t, r.JSON(map[string]int{"tanks": 3}))

	assert.JSONEq(t, `{"tanks": 3}`, out.String())
	assert.Contains(t, out.String(), "\n", "output is newline-terminated for piping")
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "# Title", FormatHeader(1, "Title"))
	assert.Equal(t, "### Deep", FormatHeader(3, "Deep"))
	assert.Equal(t, "# Clamped", FormatHeader(0, "Clamped"))
	assert.Equal(t, "###### Floor", FormatHeader(9, "Floor"))
	assert.Equal(t, "- **Tier**: 10", FormatKeyValue("Tier", "10"))
	assert.Equal(t, "```csv\na,b\n```", FormatCodeBlock("csv", "a,b\n"))
}

func TestSpinnerWithoutTTYPrintsOnlyFinalLine(t *testing.T) {
	r, out, errOut := newBufRenderer(ModeText, false)
	sp := r.NewSpinner("fetching roster...")
	sp.Start()
	sp.Success("roster synced")

	assert.Empty(t, errOut.String())
	assert.Contains(t, out.String(), "✓ roster synced")
}

func TestSpinnerFailIsIdempotent(t *testing.T) {
	r, _, errOut := newBufRenderer(ModeText, false)
	sp := r.NewSpinner("fetching...")
	sp.Start()
	sp.Fail("remote refused")
	// A second stop must not panic on the closed channel.
	sp.Fail("remote refused")

	assert.Contains(t, errOut.String(), "✗ remote refused")
}
