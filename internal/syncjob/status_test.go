package syncjob

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blitz-labs/tankrank/internal/ledger"
)

func TestPersistedSnapshot(t *testing.T) {
	updated := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	snap := PersistedSnapshot([]ledger.SyncState{
		{Key: "roster:eu", Value: `{"run_id":"run-1","at":"2026-08-30T12:00:00Z","players":42,"clans":2}`, UpdatedAt: updated},
		{Key: "catalog:eu", Value: `{"run_id":"run-2","at":"bogus","fetched":10,"added":3,"skipped":7,"error":"boom"}`, UpdatedAt: updated},
		{Key: "roster:na", Value: `not json`, UpdatedAt: updated},
		{Key: "orphan", Value: `{}`, UpdatedAt: updated},
	})

	require.Contains(t, snap.Roster, "eu")
	assert.Equal(t, "run-1", snap.Roster["eu"].RunID)
	assert.Equal(t, 42, snap.Roster["eu"].Count)
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), snap.Roster["eu"].At)

	require.Contains(t, snap.Catalog, "eu")
	assert.Equal(t, 3, snap.Catalog["eu"].Count)
	assert.Equal(t, "boom", snap.Catalog["eu"].Error)
	assert.Equal(t, updated, snap.Catalog["eu"].At, "unparseable at falls back to the row update time")

	assert.NotContains(t, snap.Roster, "na", "garbage rows are skipped")
	assert.Len(t, snap.Roster, 1)
	assert.Len(t, snap.Catalog, 1)
}
