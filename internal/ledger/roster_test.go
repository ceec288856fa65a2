package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ReplaceRoster(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	n, err := store.ReplaceRoster(ctx, "eu", []RosterPlayer{
		{AccountID: 1, Nickname: "Alice", NicknameNorm: "alice", ClanID: 500},
		{AccountID: 2, Nickname: "Bob", NicknameNorm: "bob", ClanID: 500},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.ReplaceRoster(ctx, "na", []RosterPlayer{
		{AccountID: 3, Nickname: "Carol", NicknameNorm: "carol", ClanID: 900},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Replacing one region leaves the other intact.
	n, err = store.ReplaceRoster(ctx, "eu", []RosterPlayer{
		{AccountID: 4, Nickname: "Dave", NicknameNorm: "dave", ClanID: 500},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	players, err := store.RosterPlayers(ctx)
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, "carol", players[0].NicknameNorm)
	assert.Equal(t, "dave", players[1].NicknameNorm)

	_, err = store.RosterByNorm(ctx, "alice")
	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr, "replaced players are gone")
}

func TestStore_ReplaceRoster_MovedAccount(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.ReplaceRoster(ctx, "eu", []RosterPlayer{
		{AccountID: 1, Nickname: "Alice", NicknameNorm: "alice", ClanID: 500},
	})
	require.NoError(t, err)

	// The same account showing up under another region wins the row.
	_, err = store.ReplaceRoster(ctx, "na", []RosterPlayer{
		{AccountID: 1, Nickname: "Alice", NicknameNorm: "alice", ClanID: 900},
	})
	require.NoError(t, err)

	p, err := store.RosterByNorm(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "na", p.Region)
	assert.Equal(t, int64(900), p.ClanID)
}

func TestStore_ReplaceRoster_EmptyRegion(t *testing.T) {
	store := openTestStore(t)

	_, err := store.ReplaceRoster(context.Background(), "", nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestStore_SyncState(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.GetSyncState(ctx, "roster:eu")
	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr)

	require.NoError(t, store.SetSyncState(ctx, "roster:eu", `{"players":42}`))
	require.NoError(t, store.SetSyncState(ctx, "catalog:eu", `{"added":3}`))

	st, err := store.GetSyncState(ctx, "roster:eu")
	require.NoError(t, err)
	assert.Equal(t, `{"players":42}`, st.Value)
	assert.False(t, st.UpdatedAt.IsZero())

	require.NoError(t, store.SetSyncState(ctx, "roster:eu", `{"players":45}`))
	st, err = store.GetSyncState(ctx, "roster:eu")
	require.NoError(t, err)
	assert.Equal(t, `{"players":45}`, st.Value, "set overwrites")

	all, err := store.AllSyncStates(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "catalog:eu", all[0].Key, "key-ordered")
	assert.Equal(t, "roster:eu", all[1].Key)

	err = store.SetSyncState(ctx, "", "x")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}
