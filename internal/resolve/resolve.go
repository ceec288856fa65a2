// Package resolve maps free-text tank and player names onto canonical
// catalog entries. Resolution runs over an in-memory index of the catalog
// (tanks, aliases, roster, known player keys) through an ordered strategy
// that stops at the first confident hit and refuses to guess between close
// runners-up.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/blitz-labs/tankrank/internal/ledger"
	"github.com/blitz-labs/tankrank/internal/names"
)

// Acceptance thresholds for the fuzzy tier. The margin keeps two
// near-identical candidates from silently auto-resolving.
const (
	tankBar   = 0.90
	playerBar = 0.82
	margin    = 0.04

	// Substring containment needs some signal to work with.
	minLooseLen = 3

	maxCandidates = 3
)

// Source is the slice of the ledger the resolver indexes.
type Source interface {
	Tanks(ctx context.Context, filter ledger.TankFilter) ([]ledger.Tank, error)
	AllAliases(ctx context.Context) ([]ledger.TankAlias, error)
	RosterPlayers(ctx context.Context) ([]ledger.RosterPlayer, error)
	PlayerKeys(ctx context.Context) ([]ledger.PlayerKey, error)
}

var _ Source = (*ledger.Store)(nil)

// Player is a resolved player identity.
type Player struct {
	// Display is the canonical spelling: the roster nickname when the
	// player is on the roster, the latest submitted raw name when seen
	// before, otherwise the cleaned input itself.
	Display    string
	Norm       string
	FromRoster bool
}

// Candidate is a near miss reported with a failed resolution.
type Candidate struct {
	Name  string
	Score float64
}

// NoMatchError reports a failed resolution along with the nearest
// candidates for operator feedback.
type NoMatchError struct {
	Kind       string
	Input      string
	Candidates []Candidate
}

func (e *NoMatchError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("no %s matches %q", e.Kind, e.Input)
	}
	cands := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		cands[i] = c.Name
	}
	return fmt.Sprintf("no %s matches %q (closest: %s)", e.Kind, e.Input, strings.Join(cands, ", "))
}

// Options tune a Resolver. Zero values fall back to defaults.
type Options struct {
	// Scorer rates similarity for the fuzzy tier; nil uses normalized
	// Levenshtein similarity.
	Scorer Scorer
	// Logger receives resolution logging; nil discards it.
	Logger *slog.Logger
	// DictionaryPath overrides the embedded truncation dictionary.
	DictionaryPath string
}

// Resolver indexes the catalog once and answers lookups from memory.
// Reload rebuilds the index after catalog mutations.
type Resolver struct {
	src    Source
	scorer Scorer
	log    *slog.Logger

	mu   sync.RWMutex
	idx  *index
	dict map[string]string
}

type index struct {
	byNorm  map[string]ledger.Tank
	byName  map[string]ledger.Tank
	byAlias map[string]ledger.Tank
	byLoose map[string][]string
	// names and looseOf drive the deterministic substring and fuzzy scans.
	names   []string
	looseOf map[string]string

	roster      map[string]ledger.RosterPlayer
	submitted   map[string]string
	playerNorms []string
}

// New builds a resolver over src. The truncation dictionary loads from
// opts.DictionaryPath when set, otherwise from the embedded seed; the
// catalog index loads lazily on first use.
func New(src Source, opts Options) (*Resolver, error) {
	scorer := opts.Scorer
	if scorer == nil {
		scorer = LevenshteinScorer{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	r := &Resolver{src: src, scorer: scorer, log: log}
	if err := r.ReloadDictionary(opts.DictionaryPath); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload rebuilds the in-memory index from the source. Call it after
// catalog or roster mutations made since the last load.
func (r *Resolver) Reload(ctx context.Context) error {
	tanks, err := r.src.Tanks(ctx, ledger.TankFilter{})
	if err != nil {
		return fmt.Errorf("load tanks: %w", err)
	}
	aliases, err := r.src.AllAliases(ctx)
	if err != nil {
		return fmt.Errorf("load aliases: %w", err)
	}
	roster, err := r.src.RosterPlayers(ctx)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	keys, err := r.src.PlayerKeys(ctx)
	if err != nil {
		return fmt.Errorf("load player keys: %w", err)
	}

	idx := &index{
		byNorm:    make(map[string]ledger.Tank, len(tanks)),
		byName:    make(map[string]ledger.Tank, len(tanks)),
		byAlias:   make(map[string]ledger.Tank, len(aliases)),
		byLoose:   make(map[string][]string, len(tanks)),
		looseOf:   make(map[string]string, len(tanks)),
		roster:    make(map[string]ledger.RosterPlayer, len(roster)),
		submitted: make(map[string]string, len(keys)),
	}

	for _, t := range tanks {
		idx.byName[t.Name] = t
		idx.byNorm[t.NameNorm] = t
		idx.names = append(idx.names, t.Name)

		loose := names.LooseKey(t.Name)
		if loose != "" {
			idx.byLoose[loose] = append(idx.byLoose[loose], t.Name)
			idx.looseOf[t.Name] = loose
		}
	}
	sort.Strings(idx.names)

	for _, a := range aliases {
		if t, ok := idx.byName[a.TankName]; ok {
			idx.byAlias[a.AliasNorm] = t
		}
	}

	seen := make(map[string]bool, len(roster)+len(keys))
	for _, p := range roster {
		idx.roster[p.NicknameNorm] = p
		if !seen[p.NicknameNorm] {
			seen[p.NicknameNorm] = true
			idx.playerNorms = append(idx.playerNorms, p.NicknameNorm)
		}
	}
	for _, k := range keys {
		idx.submitted[k.Norm] = k.Raw
		if !seen[k.Norm] {
			seen[k.Norm] = true
			idx.playerNorms = append(idx.playerNorms, k.Norm)
		}
	}
	sort.Strings(idx.playerNorms)

	r.mu.Lock()
	r.idx = idx
	r.mu.Unlock()

	r.log.Debug("resolver index rebuilt",
		"tanks", len(tanks), "aliases", len(aliases),
		"roster", len(roster), "players", len(keys))
	return nil
}

func (r *Resolver) snapshot(ctx context.Context) (*index, map[string]string, error) {
	r.mu.RLock()
	idx, dict := r.idx, r.dict
	r.mu.RUnlock()
	if idx != nil {
		return idx, dict, nil
	}
	if err := r.Reload(ctx); err != nil {
		return nil, nil, err
	}
	r.mu.RLock()
	idx, dict = r.idx, r.dict
	r.mu.RUnlock()
	return idx, dict, nil
}

// ResolveTank maps free text to a catalog entry, trying exact normalized
// match, the alias table, a unique loose-key match, the truncation
// dictionary, a unique substring match, and finally fuzzy similarity.
func (r *Resolver) ResolveTank(ctx context.Context, input string) (*ledger.Tank, error) {
	clean, err := names.ValidateText("tank name", input, names.MaxTextLen)
	if err != nil {
		return nil, err
	}
	idx, dict, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	norm := names.NormTank(clean)
	if t, ok := idx.byNorm[norm]; ok {
		return &t, nil
	}
	if t, ok := idx.byAlias[norm]; ok {
		r.log.Debug("tank resolved via alias", "input", clean, "tank", t.Name)
		return &t, nil
	}

	loose := names.LooseKey(clean)
	if cands, ok := idx.byLoose[loose]; ok && len(cands) == 1 {
		t := idx.byName[cands[0]]
		r.log.Debug("tank resolved via loose key", "input", clean, "tank", t.Name)
		return &t, nil
	}

	if canon, ok := dict[norm]; ok {
		if t, ok := idx.byNorm[names.NormTank(canon)]; ok {
			r.log.Debug("tank resolved via dictionary", "input", clean, "tank", t.Name)
			return &t, nil
		}
	}

	if len(loose) >= minLooseLen {
		var hits []string
		for _, name := range idx.names {
			candLoose := idx.looseOf[name]
			if candLoose == "" {
				continue
			}
			if strings.Contains(candLoose, loose) || strings.Contains(loose, candLoose) {
				hits = append(hits, name)
			}
		}
		if len(hits) == 1 {
			t := idx.byName[hits[0]]
			r.log.Debug("tank resolved via substring", "input", clean, "tank", t.Name)
			return &t, nil
		}
	}

	ranked := r.rankTanks(idx, norm)
	if accepted(ranked, tankBar) {
		t := idx.byName[ranked[0].Name]
		r.log.Debug("tank resolved via fuzzy match",
			"input", clean, "tank", t.Name, "score", ranked[0].Score)
		return &t, nil
	}

	return nil, &NoMatchError{Kind: "tank", Input: clean, Candidates: top(ranked, maxCandidates)}
}

// ResolvePlayer maps free text to a player identity: exact roster match,
// exact submission-key match, then fuzzy across both. Input that matches
// nobody confidently becomes a new identity under its own normalized key;
// the resolver canonicalizes known players, it never refuses new ones.
func (r *Resolver) ResolvePlayer(ctx context.Context, input string) (Player, error) {
	clean, err := names.ValidateText("player name", input, names.MaxTextLen)
	if err != nil {
		return Player{}, err
	}
	idx, _, err := r.snapshot(ctx)
	if err != nil {
		return Player{}, err
	}

	norm := names.NormPlayer(clean)
	if p, ok := playerFor(idx, norm); ok {
		return p, nil
	}

	ranked := r.rankPlayers(idx, norm)
	if accepted(ranked, playerBar) {
		p, _ := playerFor(idx, ranked[0].Name)
		r.log.Debug("player resolved via fuzzy match",
			"input", clean, "player", p.Display, "score", ranked[0].Score)
		return p, nil
	}

	r.log.Debug("player treated as new", "input", clean, "norm", norm)
	return Player{Display: clean, Norm: norm}, nil
}

func playerFor(idx *index, norm string) (Player, bool) {
	if rp, ok := idx.roster[norm]; ok {
		return Player{Display: rp.Nickname, Norm: norm, FromRoster: true}, true
	}
	if raw, ok := idx.submitted[norm]; ok {
		return Player{Display: raw, Norm: norm}, true
	}
	return Player{}, false
}

func (r *Resolver) rankTanks(idx *index, norm string) []Candidate {
	ranked := make([]Candidate, 0, len(idx.names))
	for _, name := range idx.names {
		t := idx.byName[name]
		ranked = append(ranked, Candidate{Name: t.Name, Score: r.scorer.Similarity(norm, t.NameNorm)})
	}
	sortCandidates(ranked)
	return ranked
}

func (r *Resolver) rankPlayers(idx *index, norm string) []Candidate {
	ranked := make([]Candidate, 0, len(idx.playerNorms))
	for _, cand := range idx.playerNorms {
		ranked = append(ranked, Candidate{Name: cand, Score: r.scorer.Similarity(norm, cand)})
	}
	sortCandidates(ranked)
	return ranked
}

func sortCandidates(cands []Candidate) {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].Name < cands[j].Name
	})
}

// accepted applies the dual threshold: the leader must clear the bar and
// beat the runner-up by the margin.
func accepted(ranked []Candidate, bar float64) bool {
	if len(ranked) == 0 || ranked[0].Score < bar {
		return false
	}
	if len(ranked) == 1 {
		return true
	}
	return ranked[0].Score-ranked[1].Score >= margin
}

func top(ranked []Candidate, n int) []Candidate {
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]Candidate, 0, len(ranked))
	for _, c := range ranked {
		if c.Score > 0 {
			out = append(out, c)
		}
	}
	return out
}
