package syncjob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/blitz-labs/tankrank/internal/ledger"
	"github.com/blitz-labs/tankrank/internal/names"
	"github.com/blitz-labs/tankrank/internal/resolve"
)

// Store is the slice of the ledger the sync jobs write through.
type Store interface {
	ReplaceRoster(ctx context.Context, region string, players []ledger.RosterPlayer) (int, error)
	BulkAddTanks(ctx context.Context, inputs []ledger.TankInput, actor string) (ledger.BulkAddReport, error)
	SetSyncState(ctx context.Context, key, value string) error
}

var _ Store = (*ledger.Store)(nil)

// RunnerOptions wire a Runner. Clans maps each region onto the clan ids to
// pull; regions without clans are never touched.
type RunnerOptions struct {
	Clans map[string][]int64
	// Resolver, when set, is refreshed after catalog changes.
	Resolver *resolve.Resolver
	// Status, when set, receives in-memory run state for the web layer.
	Status *Status
	// Logger receives job summaries; nil discards them.
	Logger *slog.Logger
}

// Runner executes sync jobs against the store.
type Runner struct {
	store  Store
	client *Client
	res    *resolve.Resolver
	status *Status
	log    *slog.Logger
	clans  map[string][]int64
}

func NewRunner(store Store, client *Client, opts RunnerOptions) *Runner {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		store:  store,
		client: client,
		res:    opts.Resolver,
		status: opts.Status,
		log:    log,
		clans:  opts.Clans,
	}
}

// rosterState is the JSON blob persisted under roster:<region>.
type rosterState struct {
	RunID   string `json:"run_id"`
	At      string `json:"at"`
	Players int    `json:"players"`
	Clans   int    `json:"clans"`
	Error   string `json:"error,omitempty"`
}

// catalogState is the JSON blob persisted under catalog:<region>.
type catalogState struct {
	RunID   string `json:"run_id"`
	At      string `json:"at"`
	Fetched int    `json:"fetched"`
	Added   int    `json:"added"`
	Skipped int    `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// RosterReport summarizes one roster sync run across regions.
type RosterReport struct {
	RunID   string
	Regions map[string]int
}

// RosterSync pulls every configured region's clan members concurrently and
// replaces the roster cache region by region, each in a single transaction.
// Every region records its outcome under roster:<region>, successes and
// failures alike.
func (r *Runner) RosterSync(ctx context.Context) (*RosterReport, error) {
	if len(r.clans) == 0 {
		return nil, errors.New("no clans configured")
	}

	regions := make([]string, 0, len(r.clans))
	for region := range r.clans {
		regions = append(regions, region)
	}
	sort.Strings(regions)

	runID := uuid.NewString()
	rep := &RosterReport{RunID: runID, Regions: make(map[string]int, len(regions))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, region := range regions {
		g.Go(func() error {
			players, err := r.regionRoster(gctx, region)
			if err == nil {
				var n int
				if n, err = r.store.ReplaceRoster(gctx, region, players); err == nil {
					mu.Lock()
					rep.Regions[region] = n
					mu.Unlock()
					r.recordRoster(gctx, region, runID, n, nil)
					return nil
				}
			}
			r.recordRoster(gctx, region, runID, 0, err)
			return fmt.Errorf("roster sync %s: %w", region, err)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.log.Info("roster sync", "run", runID, "regions", len(regions))
	return rep, nil
}

// regionRoster fetches and normalizes all clan members for one region,
// de-duped by account id. Members with unusable nicknames are skipped.
func (r *Runner) regionRoster(ctx context.Context, region string) ([]ledger.RosterPlayer, error) {
	var out []ledger.RosterPlayer
	seen := make(map[int64]bool)
	for _, clanID := range r.clans[region] {
		members, err := r.client.ClanMembers(ctx, region, clanID)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			nick, err := names.ValidateText("player name", m.Nickname, names.MaxTextLen)
			if err != nil || seen[m.AccountID] {
				continue
			}
			seen[m.AccountID] = true
			out = append(out, ledger.RosterPlayer{
				AccountID:    m.AccountID,
				Nickname:     nick,
				NicknameNorm: names.NormPlayer(nick),
				ClanID:       m.ClanID,
				Region:       region,
			})
		}
	}
	return out, nil
}

func (r *Runner) recordRoster(ctx context.Context, region, runID string, players int, jobErr error) {
	now := time.Now().UTC()
	js := JobStatus{RunID: runID, At: now, Count: players}
	state := rosterState{RunID: runID, At: ledger.FormatTime(now), Players: players, Clans: len(r.clans[region])}
	if jobErr != nil {
		js.Error = jobErr.Error()
		state.Error = jobErr.Error()
	}
	if r.status != nil {
		r.status.SetRoster(region, js)
	}
	r.persistState(ctx, "roster:"+region, state)
}

// CatalogReport summarizes one catalog sync run.
type CatalogReport struct {
	RunID   string
	Region  string
	Fetched int
	Added   int
	Skipped int
}

// CatalogSync pulls the remote vehicle list for one region and adds the
// missing tanks through the same audited batch add the CLI uses. Vehicles
// outside tiers 1-10 or with classes the catalog does not track are
// dropped; existing names count as skipped.
func (r *Runner) CatalogSync(ctx context.Context, region string) (*CatalogReport, error) {
	runID := uuid.NewString()

	vehicles, err := r.client.Vehicles(ctx, region)
	if err != nil {
		r.recordCatalog(ctx, region, runID, 0, ledger.BulkAddReport{}, err)
		return nil, fmt.Errorf("catalog sync %s: %w", region, err)
	}

	inputs := make([]ledger.TankInput, 0, len(vehicles))
	for _, v := range vehicles {
		typ, ok := vehicleClass(v.Type)
		if !ok || v.Tier < ledger.MinTier || v.Tier > ledger.MaxTier {
			continue
		}
		name, err := names.ValidateText("tank name", v.Name, names.MaxTextLen)
		if err != nil {
			continue
		}
		inputs = append(inputs, ledger.TankInput{Name: name, Tier: v.Tier, Type: typ})
	}

	bulk, err := r.store.BulkAddTanks(ctx, inputs, "sync:"+runID)
	if err != nil {
		r.recordCatalog(ctx, region, runID, len(vehicles), ledger.BulkAddReport{}, err)
		return nil, fmt.Errorf("catalog sync %s: %w", region, err)
	}
	if bulk.Added > 0 && r.res != nil {
		if err := r.res.Reload(ctx); err != nil {
			return nil, fmt.Errorf("refresh resolver: %w", err)
		}
	}
	r.recordCatalog(ctx, region, runID, len(vehicles), bulk, nil)

	r.log.Info("catalog sync",
		"region", region, "run", runID,
		"fetched", len(vehicles), "added", bulk.Added, "skipped", bulk.Skipped)
	return &CatalogReport{
		RunID:   runID,
		Region:  region,
		Fetched: len(vehicles),
		Added:   bulk.Added,
		Skipped: bulk.Skipped,
	}, nil
}

func (r *Runner) recordCatalog(ctx context.Context, region, runID string, fetched int, bulk ledger.BulkAddReport, jobErr error) {
	now := time.Now().UTC()
	js := JobStatus{RunID: runID, At: now, Count: bulk.Added}
	state := catalogState{
		RunID:   runID,
		At:      ledger.FormatTime(now),
		Fetched: fetched,
		Added:   bulk.Added,
		Skipped: bulk.Skipped,
	}
	if jobErr != nil {
		js.Error = jobErr.Error()
		state.Error = jobErr.Error()
	}
	if r.status != nil {
		r.status.SetCatalog(region, js)
	}
	r.persistState(ctx, "catalog:"+region, state)
}

// persistState writes a sync_state blob even when the surrounding run was
// canceled; a failed run still deserves a recorded outcome.
func (r *Runner) persistState(ctx context.Context, key string, state any) {
	blob, err := json.Marshal(state)
	if err != nil {
		r.log.Warn("encode sync state", "key", key, "error", err)
		return
	}
	if err := r.store.SetSyncState(context.WithoutCancel(ctx), key, string(blob)); err != nil {
		r.log.Warn("record sync state", "key", key, "error", err)
	}
}

// vehicleClass maps the remote vehicle type onto a catalog class. Classes
// the catalog does not track (SPG) report false.
func vehicleClass(t string) (ledger.TankType, bool) {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "lighttank":
		return ledger.TypeLight, true
	case "mediumtank":
		return ledger.TypeMedium, true
	case "heavytank":
		return ledger.TypeHeavy, true
	case "at-spg":
		return ledger.TypeTD, true
	}
	return "", false
}
