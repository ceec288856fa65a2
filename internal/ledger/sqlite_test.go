package ledger

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blitz-labs/tankrank/internal/testutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := Open(path, Options{Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err, "open test store")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustAddTank(t *testing.T, store *Store, name string, tier int, typ TankType) *Tank {
	t.Helper()
	tank, err := store.AddTank(context.Background(), name, tier, typ, "test")
	require.NoError(t, err, "add tank %q", name)
	return tank
}

func mustSubmit(t *testing.T, store *Store, tank, player string, score int) Outcome {
	t.Helper()
	out, err := store.Submit(context.Background(), SubmitRequest{
		Player:      player,
		Tank:        tank,
		Score:       score,
		SubmittedBy: "test",
	})
	require.NoError(t, err, "submit %s/%s/%d", tank, player, score)
	return out
}

func TestOpen_CreatesAndMigrates(t *testing.T) {
	store := openTestStore(t)

	version, err := store.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(9), version, "schema should be fully migrated")

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Tanks)
	assert.Zero(t, stats.Submissions)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("", Options{})
	require.Error(t, err)

	_, err = Open("   ", Options{})
	require.Error(t, err)
}

func TestStore_MigrateRerunIsNoop(t *testing.T) {
	store := openTestStore(t)
	mustAddTank(t, store, "IS-7", 9, TypeHeavy)

	require.NoError(t, store.Migrate(), "re-running migrations must be a no-op")

	version, err := store.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(9), version)

	tank, err := store.TankByName(context.Background(), "IS-7")
	require.NoError(t, err)
	assert.Equal(t, 9, tank.Tier)
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	store, err := Open(path, Options{})
	require.NoError(t, err)
	mustAddTank(t, store, "Maus", 10, TypeHeavy)
	mustSubmit(t, store, "Maus", "Alice", 4200)
	require.NoError(t, store.Close())

	store, err = Open(path, Options{})
	require.NoError(t, err)
	defer store.Close()

	sub, err := store.SubmissionFor(context.Background(), "Maus", "alice")
	require.NoError(t, err)
	assert.Equal(t, 4200, sub.Score)
}

func TestOpenReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	rw, err := Open(path, Options{})
	require.NoError(t, err)
	mustAddTank(t, rw, "T-54", 9, TypeMedium)
	require.NoError(t, rw.Close())

	ro, err := OpenReadOnly(path, Options{})
	require.NoError(t, err)
	defer ro.Close()

	tank, err := ro.TankByName(context.Background(), "T-54")
	require.NoError(t, err)
	assert.Equal(t, TypeMedium, tank.Type)

	_, err = ro.AddTank(context.Background(), "E 50", 9, TypeMedium, "test")
	require.Error(t, err, "writes must fail on a read-only store")
}

func TestStore_ForeignKeysEnforced(t *testing.T) {
	store := openTestStore(t)

	_, err := store.db.Exec(
		`INSERT INTO submissions (player_name_raw, player_name_norm, tank_name, score, submitted_by, created_at)
		 VALUES ('Alice', 'alice', 'No Such Tank', 100, 'test', '2024-01-01T00:00:00Z')`)
	require.Error(t, err, "orphan tank reference must be rejected")
}

func TestStore_ScoreCheckConstraint(t *testing.T) {
	store := openTestStore(t)
	mustAddTank(t, store, "IS-7", 9, TypeHeavy)

	_, err := store.db.Exec(
		`INSERT INTO submissions (player_name_raw, player_name_norm, tank_name, score, submitted_by, created_at)
		 VALUES ('Alice', 'alice', 'IS-7', 0, 'test', '2024-01-01T00:00:00Z')`)
	require.Error(t, err, "non-positive scores must be rejected at the schema level")
}

func TestStore_WithTxRollsBack(t *testing.T) {
	store := openTestStore(t)
	mustAddTank(t, store, "IS-7", 9, TypeHeavy)

	boom := errors.New("boom")
	err := store.withTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO submissions (player_name_raw, player_name_norm, tank_name, score, submitted_by, created_at)
			 VALUES ('Alice', 'alice', 'IS-7', 100, 'test', '2024-01-01T00:00:00Z')`)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := store.SubmissionCount(context.Background(), "IS-7")
	require.NoError(t, err)
	assert.Zero(t, n, "rolled-back insert must not persist")
}

func TestStore_CloseNil(t *testing.T) {
	var store *Store
	assert.NoError(t, store.Close())
}
