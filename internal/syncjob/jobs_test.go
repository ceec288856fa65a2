package syncjob

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blitz-labs/tankrank/internal/ledger"
	"github.com/blitz-labs/tankrank/internal/resolve"
	"github.com/blitz-labs/tankrank/internal/testutil"
)

func openStore(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "sync.db"), ledger.Options{
		Logger: testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

// clanPayload builds a clans/info envelope for one clan with list-shaped members.
func clanPayload(clanID string, members []map[string]any) map[string]any {
	return map[string]any{
		"status": "ok",
		"data": map[string]any{
			clanID: map[string]any{"members": members},
		},
	}
}

func TestRunner_RosterSync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wotb/clans/info/", r.URL.Path)
		switch id := r.URL.Query().Get("clan_id"); id {
		case "100":
			writeJSON(t, w, clanPayload("100", []map[string]any{
				{"account_id": 1, "account_name": "Alice"},
				{"account_id": 2, "account_name": "Bob"},
			}))
		case "200":
			writeJSON(t, w, clanPayload("200", []map[string]any{
				{"account_id": 2, "account_name": "Bob_Elsewhere"},
				{"account_id": 3, "account_name": "Carol"},
				{"account_id": 4, "account_name": "multi\nline"},
			}))
		default:
			t.Errorf("unexpected clan id %s", id)
		}
	}))
	defer srv.Close()

	store := openStore(t)
	client := newTestClient(t, srv, 1)
	status := NewStatus()
	runner := NewRunner(store, client, RunnerOptions{
		Clans:  map[string][]int64{"eu": {100, 200}},
		Status: status,
		Logger: testutil.NewTestLogger(t),
	})

	rep, err := runner.RosterSync(context.Background())
	require.NoError(t, err)
	_, err = uuid.Parse(rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"eu": 3}, rep.Regions,
		"duplicate account ids and bad nicknames are dropped")

	players, err := store.RosterPlayers(context.Background())
	require.NoError(t, err)
	require.Len(t, players, 3)
	byID := make(map[int64]ledger.RosterPlayer, len(players))
	for _, p := range players {
		byID[p.AccountID] = p
	}
	assert.Equal(t, "Bob", byID[2].Nickname, "first clan fetched wins on duplicates")
	assert.Equal(t, int64(100), byID[2].ClanID)
	assert.Equal(t, int64(200), byID[3].ClanID)
	assert.Equal(t, "eu", byID[1].Region)
	assert.Equal(t, "carol", byID[3].NicknameNorm)

	st, err := store.GetSyncState(context.Background(), "roster:eu")
	require.NoError(t, err)
	var state rosterState
	require.NoError(t, json.Unmarshal([]byte(st.Value), &state))
	assert.Equal(t, rep.RunID, state.RunID)
	assert.Equal(t, 3, state.Players)
	assert.Equal(t, 2, state.Clans)
	assert.Empty(t, state.Error)
	_, err = ledger.ParseTime(state.At)
	assert.NoError(t, err)

	snap := status.Snapshot()
	require.Contains(t, snap.Roster, "eu")
	assert.Equal(t, rep.RunID, snap.Roster["eu"].RunID)
	assert.Equal(t, 3, snap.Roster["eu"].Count)
	assert.Empty(t, snap.Roster["eu"].Error)
}

func TestRunner_RosterSync_NoClans(t *testing.T) {
	store := openStore(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	runner := NewRunner(store, newTestClient(t, srv, 1), RunnerOptions{})
	_, err := runner.RosterSync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no clans configured")
}

func TestRunner_RosterSync_RecordsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	store := openStore(t)
	status := NewStatus()
	runner := NewRunner(store, newTestClient(t, srv, 1), RunnerOptions{
		Clans:  map[string][]int64{"eu": {100}},
		Status: status,
		Logger: testutil.NewTestLogger(t),
	})

	_, err := runner.RosterSync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "roster sync eu")

	st, err := store.GetSyncState(context.Background(), "roster:eu")
	require.NoError(t, err)
	var state rosterState
	require.NoError(t, json.Unmarshal([]byte(st.Value), &state))
	assert.Contains(t, state.Error, "http 404", "failed runs still leave a record")
	assert.Zero(t, state.Players)

	snap := status.Snapshot()
	require.Contains(t, snap.Roster, "eu")
	assert.NotEmpty(t, snap.Roster["eu"].Error)
}

func TestRunner_RosterSync_ReplacesPreviousRoster(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, clanPayload("100", []map[string]any{
			{"account_id": 9, "account_name": "NewGuy"},
		}))
	}))
	defer srv.Close()

	store := openStore(t)
	_, err := store.ReplaceRoster(context.Background(), "eu", []ledger.RosterPlayer{
		{AccountID: 1, Nickname: "OldGuy", NicknameNorm: "oldguy", ClanID: 100, Region: "eu"},
	})
	require.NoError(t, err)

	runner := NewRunner(store, newTestClient(t, srv, 1), RunnerOptions{
		Clans: map[string][]int64{"eu": {100}},
	})
	rep, err := runner.RosterSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Regions["eu"])

	players, err := store.RosterPlayers(context.Background())
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "NewGuy", players[0].Nickname)
}

func TestRunner_CatalogSync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wotb/encyclopedia/vehicles/", r.URL.Path)
		writeJSON(t, w, map[string]any{
			"status": "ok",
			"data": map[string]any{
				"1": map[string]any{"name": "IS-7", "tier": 10, "type": "heavyTank"},
				"2": map[string]any{"name": "Object 140", "tier": 10, "type": "mediumTank"},
				"3": map[string]any{"name": "Grille 15", "tier": 10, "type": "AT-SPG"},
				"4": map[string]any{"name": "Hummel", "tier": 6, "type": "SPG"},
				"5": map[string]any{"name": "Prototype", "tier": 11, "type": "lightTank"},
			},
		})
	}))
	defer srv.Close()

	store := openStore(t)
	_, err := store.AddTank(context.Background(), "IS-7", 10, ledger.TypeHeavy, "tester")
	require.NoError(t, err)

	res, err := resolve.New(store, resolve.Options{Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	require.NoError(t, res.Reload(context.Background()), "prime the index before the sync")
	_, err = res.ResolveTank(context.Background(), "Grille 15")
	require.Error(t, err, "not in the catalog yet")

	status := NewStatus()
	runner := NewRunner(store, newTestClient(t, srv, 1), RunnerOptions{
		Resolver: res,
		Status:   status,
		Logger:   testutil.NewTestLogger(t),
	})

	rep, err := runner.CatalogSync(context.Background(), "eu")
	require.NoError(t, err)
	_, err = uuid.Parse(rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, "eu", rep.Region)
	assert.Equal(t, 5, rep.Fetched)
	assert.Equal(t, 2, rep.Added, "SPG and tier 11 rows are dropped before the add")
	assert.Equal(t, 1, rep.Skipped, "IS-7 was already cataloged")

	grille, err := store.TankByName(context.Background(), "Grille 15")
	require.NoError(t, err)
	assert.Equal(t, ledger.TypeTD, grille.Type)
	assert.Equal(t, 10, grille.Tier)

	_, err = store.TankByName(context.Background(), "Hummel")
	require.Error(t, err, "SPG classes stay out of the catalog")

	got, err := res.ResolveTank(context.Background(), "grille 15")
	require.NoError(t, err, "resolver sees new tanks without an explicit reload")
	assert.Equal(t, "Grille 15", got.Name)

	st, err := store.GetSyncState(context.Background(), "catalog:eu")
	require.NoError(t, err)
	var state catalogState
	require.NoError(t, json.Unmarshal([]byte(st.Value), &state))
	assert.Equal(t, rep.RunID, state.RunID)
	assert.Equal(t, 5, state.Fetched)
	assert.Equal(t, 2, state.Added)
	assert.Equal(t, 1, state.Skipped)
	assert.Empty(t, state.Error)

	snap := status.Snapshot()
	require.Contains(t, snap.Catalog, "eu")
	assert.Equal(t, 2, snap.Catalog["eu"].Count)
	assert.WithinDuration(t, time.Now(), snap.Catalog["eu"].At, time.Minute)
}

func TestRunner_CatalogSync_RecordsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{
			"status": "error",
			"error":  map[string]any{"code": 504, "message": "SOURCE_NOT_AVAILABLE"},
		})
	}))
	defer srv.Close()

	store := openStore(t)
	runner := NewRunner(store, newTestClient(t, srv, 1), RunnerOptions{
		Logger: testutil.NewTestLogger(t),
	})

	_, err := runner.CatalogSync(context.Background(), "eu")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog sync eu")

	st, err := store.GetSyncState(context.Background(), "catalog:eu")
	require.NoError(t, err)
	var state catalogState
	require.NoError(t, json.Unmarshal([]byte(st.Value), &state))
	assert.Contains(t, state.Error, "SOURCE_NOT_AVAILABLE")
	assert.Zero(t, state.Added)
}

func TestVehicleClass(t *testing.T) {
	cases := []struct {
		in   string
		want ledger.TankType
		ok   bool
	}{
		{"lightTank", ledger.TypeLight, true},
		{"mediumTank", ledger.TypeMedium, true},
		{"heavyTank", ledger.TypeHeavy, true},
		{"AT-SPG", ledger.TypeTD, true},
		{" at-spg ", ledger.TypeTD, true},
		{"SPG", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := vehicleClass(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}
