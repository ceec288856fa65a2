// Package names holds the text normalization and validation primitives the
// catalog and ledger key on. Three forms exist: the tank key (case and
// whitespace folded, punctuation kept), the player key (NFKC + casefold),
// and the loose key used only for tolerant matching during imports.
package names

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxTextLen is the default upper bound for user-supplied names.
const MaxTextLen = 64

var (
	wsRE       = regexp.MustCompile(`\s+`)
	objWordRE  = regexp.MustCompile(`\bobj\b`)
	noiseRE    = regexp.MustCompile(`\bmle\b|\bnumber\b`)
	alnumOnly  = regexp.MustCompile(`[^a-z0-9]+`)
	stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
)

// NormTank folds a tank name for case-insensitive lookup. Punctuation is
// kept: stored normalized names contain it. Only unicode compatibility
// forms, whitespace, and case are folded.
func NormTank(name string) string {
	s := norm.NFKC.String(name)
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.ToLower(strings.TrimSpace(s))
	return wsRE.ReplaceAllString(s, " ")
}

// NormPlayer folds a player name for identity comparison: NFKC, NBSP to
// space, trim, casefold, collapse whitespace.
func NormPlayer(name string) string {
	s := norm.NFKC.String(name)
	s = strings.ReplaceAll(s, " ", " ")
	s = cases.Fold().String(strings.TrimSpace(s))
	return wsRE.ReplaceAllString(s, " ")
}

// LooseKey is the aggressive key used only for tolerant matching during
// imports: case, space, diacritic, and punctuation insensitive, with a few
// noise words ("mle", "number") dropped and "obj" expanded to "object".
// Only ASCII letters and digits survive.
func LooseKey(s string) string {
	raw, _, err := transform.String(stripMarks, s)
	if err != nil {
		raw = s
	}
	raw = cases.Fold().String(raw)
	raw = strings.ReplaceAll(raw, " ", " ")
	raw = objWordRE.ReplaceAllString(raw, "object")
	raw = noiseRE.ReplaceAllString(raw, " ")
	raw = strings.TrimSpace(wsRE.ReplaceAllString(raw, " "))
	return alnumOnly.ReplaceAllString(raw, "")
}

// ValidateText trims value and rejects empty, oversized, multi-line, or
// control-character input. The label names the field in error messages.
func ValidateText(label, value string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = MaxTextLen
	}
	v := strings.TrimSpace(value)
	if v == "" {
		return "", fmt.Errorf("%s is required", label)
	}
	if utf8.RuneCountInString(v) > maxLen {
		return "", fmt.Errorf("%s is too long (max %d chars)", label, maxLen)
	}
	for _, ch := range v {
		if ch == '\n' || ch == '\r' || ch == '\t' || ch < 32 {
			return "", fmt.Errorf("%s must be a single line without control characters", label)
		}
	}
	return v, nil
}

// Clip shortens s to at most n runes, marking truncation with an ellipsis.
func Clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
