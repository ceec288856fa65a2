package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Submit_KeepHighest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	mustAddTank(t, store, "IS-7", 9, TypeHeavy)

	out := mustSubmit(t, store, "IS-7", "Alice", 5000)
	assert.Equal(t, StatusAdded, out.Status)
	assert.Equal(t, 5000, out.NewScore)
	assert.Equal(t, 5000, out.Current)
	require.NotZero(t, out.SubmissionID)
	id := out.SubmissionID

	out = mustSubmit(t, store, "IS-7", "Alice", 5400)
	assert.Equal(t, StatusUpdated, out.Status)
	assert.Equal(t, id, out.SubmissionID, "same row updated in place")
	assert.Equal(t, 5000, out.OldScore)
	assert.Equal(t, 5400, out.NewScore)
	assert.Equal(t, 5400, out.Current, "current tracks the retained score on every outcome")

	out = mustSubmit(t, store, "IS-7", "Alice", 5200)
	assert.Equal(t, StatusIgnored, out.Status, "lower score never downgrades")
	assert.Equal(t, 5400, out.Current)

	out = mustSubmit(t, store, "IS-7", "Alice", 5400)
	assert.Equal(t, StatusIgnored, out.Status, "equal score is idempotent")
	assert.Equal(t, 5400, out.Current)

	sub, err := store.SubmissionFor(ctx, "IS-7", "alice")
	require.NoError(t, err)
	assert.Equal(t, 5400, sub.Score)

	// Exactly one add and one edit were audited; ignored calls leave no
	// trace.
	history, err := store.ScoreHistory(ctx, "IS-7", "alice", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ActionEdit, history[0].Action)
	require.NotNil(t, history[0].OldScore)
	require.NotNil(t, history[0].NewScore)
	assert.Equal(t, 5000, *history[0].OldScore)
	assert.Equal(t, 5400, *history[0].NewScore)
	assert.Equal(t, ActionAdd, history[1].Action)
	assert.Nil(t, history[1].OldScore)
}

func TestStore_Submit_PlayerNormCollapses(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	mustAddTank(t, store, "IS-7", 9, TypeHeavy)

	first := mustSubmit(t, store, "IS-7", "Alice", 3000)
	second := mustSubmit(t, store, "IS-7", "  ALICE ", 3500)
	assert.Equal(t, StatusUpdated, second.Status, "case variants hit the same row")
	assert.Equal(t, first.SubmissionID, second.SubmissionID)

	sub, err := store.SubmissionFor(ctx, "IS-7", "alice")
	require.NoError(t, err)
	assert.Equal(t, "ALICE", sub.PlayerNameRaw, "latest spelling wins the display name")
	assert.Equal(t, 3500, sub.Score)

	n, err := store.SubmissionCount(ctx, "IS-7")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_Submit_Validation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	mustAddTank(t, store, "IS-7", 9, TypeHeavy)

	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{"empty player", SubmitRequest{Player: "", Tank: "IS-7", Score: 100}},
		{"blank player", SubmitRequest{Player: "  ", Tank: "IS-7", Score: 100}},
		{"empty tank", SubmitRequest{Player: "Alice", Tank: "", Score: 100}},
		{"zero score", SubmitRequest{Player: "Alice", Tank: "IS-7", Score: 0}},
		{"negative score", SubmitRequest{Player: "Alice", Tank: "IS-7", Score: -5}},
		{"over max", SubmitRequest{Player: "Alice", Tank: "IS-7", Score: DefaultMaxScore + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Submit(ctx, tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}

	_, err := store.Submit(ctx, SubmitRequest{Player: "Alice", Tank: "Ghost", Score: 100})
	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr, "unknown tank is not a validation problem")
}

func TestStore_Submit_MaxScoreOption(t *testing.T) {
	path := t.TempDir() + "/ledger.db"
	store, err := Open(path, Options{MaxScore: 500})
	require.NoError(t, err)
	defer store.Close()
	mustAddTank(t, store, "IS-7", 9, TypeHeavy)

	_, err = store.Submit(context.Background(), SubmitRequest{Player: "Alice", Tank: "IS-7", Score: 501})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	mustSubmit(t, store, "IS-7", "Alice", 500)
}

func TestStore_Submit_ExplicitTimestamp(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	mustAddTank(t, store, "IS-7", 9, TypeHeavy)

	at := time.Date(2023, 6, 15, 12, 30, 45, 999, time.UTC)
	_, err := store.Submit(ctx, SubmitRequest{Player: "Alice", Tank: "IS-7", Score: 100, At: at})
	require.NoError(t, err)

	sub, err := store.SubmissionFor(ctx, "IS-7", "alice")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 6, 15, 12, 30, 45, 0, time.UTC), sub.CreatedAt,
		"timestamps round to whole seconds")
}

func TestStore_SubmitBulk(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	mustAddTank(t, store, "IS-7", 9, TypeHeavy)
	mustAddTank(t, store, "T-54", 9, TypeMedium)
	mustSubmit(t, store, "IS-7", "Alice", 5000)

	out, err := store.SubmitBulk(ctx, []SubmitRequest{
		{Player: "Alice", Tank: "IS-7", Score: 5500, SubmittedBy: "import"},
		{Player: "Alice", Tank: "IS-7", Score: 4000, SubmittedBy: "import"},
		{Player: "Bob", Tank: "T-54", Score: 3000, SubmittedBy: "import"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Attempted)
	assert.Equal(t, 1, out.Added)
	assert.Equal(t, 1, out.Updated)
	assert.Equal(t, 1, out.Ignored)
	require.Len(t, out.Rows, 3)
	assert.Equal(t, StatusUpdated, out.Rows[0].Status)
	assert.Equal(t, StatusIgnored, out.Rows[1].Status)
	assert.Equal(t, StatusAdded, out.Rows[2].Status)
}

func TestStore_SubmitBulk_UnknownTankAbortsBatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	mustAddTank(t, store, "IS-7", 9, TypeHeavy)

	_, err := store.SubmitBulk(ctx, []SubmitRequest{
		{Player: "Alice", Tank: "IS-7", Score: 5000},
		{Player: "Bob", Tank: "Ghost", Score: 3000},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")

	n, err := store.SubmissionCount(ctx, "IS-7")
	require.NoError(t, err)
	assert.Zero(t, n, "aborted batch must write nothing")
}

func TestStore_SubmitBulk_Empty(t *testing.T) {
	store := openTestStore(t)

	out, err := store.SubmitBulk(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, out.Attempted)
}

func TestStore_DeleteSubmission_RevertChain(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	mustAddTank(t, store, "IS-7", 9, TypeHeavy)

	out := mustSubmit(t, store, "IS-7", "Alice", 100)
	id := out.SubmissionID
	mustSubmit(t, store, "IS-7", "Alice", 120)
	mustSubmit(t, store, "IS-7", "Alice", 150)

	del, err := store.DeleteSubmission(ctx, id, "mod", false)
	require.NoError(t, err)
	assert.True(t, del.Reverted)
	assert.Equal(t, 150, del.OldScore)
	assert.Equal(t, 120, del.RestoredScore)

	del, err = store.DeleteSubmission(ctx, id, "mod", false)
	require.NoError(t, err)
	assert.True(t, del.Reverted)
	assert.Equal(t, 120, del.OldScore)
	assert.Equal(t, 100, del.RestoredScore)

	del, err = store.DeleteSubmission(ctx, id, "mod", false)
	require.NoError(t, err)
	assert.True(t, del.Removed, "no prior score left to revert to")
	assert.Equal(t, 100, del.OldScore)

	_, err = store.SubmissionByID(ctx, id)
	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr)

	// Every step stayed in the audit trail.
	history, err := store.ScoreHistory(ctx, "IS-7", "alice", 20)
	require.NoError(t, err)
	assert.Len(t, history, 6, "add, two edits, three deletes")
}

func TestStore_DeleteSubmission_Hard(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	mustAddTank(t, store, "IS-7", 9, TypeHeavy)

	out := mustSubmit(t, store, "IS-7", "Alice", 100)
	mustSubmit(t, store, "IS-7", "Alice", 200)

	del, err := store.DeleteSubmission(ctx, out.SubmissionID, "mod", true)
	require.NoError(t, err)
	assert.True(t, del.Removed, "hard delete skips the revert")
	assert.False(t, del.Reverted)

	_, err = store.SubmissionFor(ctx, "IS-7", "alice")
	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr)
}

func TestStore_DeleteSubmission_NotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.DeleteSubmission(context.Background(), 999, "mod", false)
	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr)
}

func TestStore_Qualifies(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	mustAddTank(t, store, "IS-7", 9, TypeHeavy)

	q, err := store.Qualifies(ctx, "IS-7", 4000)
	require.NoError(t, err)
	assert.True(t, q.Qualifies, "any score tops an empty board")
	assert.Nil(t, q.Best)
	assert.Equal(t, 4000, q.Margin)

	mustSubmit(t, store, "IS-7", "Alice", 5000)

	q, err = store.Qualifies(ctx, "IS-7", 5001)
	require.NoError(t, err)
	assert.True(t, q.Qualifies)
	require.NotNil(t, q.Best)
	assert.Equal(t, 5000, *q.Best)
	assert.Equal(t, 1, q.Margin)

	q, err = store.Qualifies(ctx, "IS-7", 5000)
	require.NoError(t, err)
	assert.False(t, q.Qualifies, "ties do not qualify")
	assert.Zero(t, q.Margin)

	q, err = store.Qualifies(ctx, "IS-7", 4200)
	require.NoError(t, err)
	assert.False(t, q.Qualifies)
	assert.Equal(t, -800, q.Margin)

	_, err = store.Qualifies(ctx, "Ghost", 100)
	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr)

	_, err = store.Qualifies(ctx, "IS-7", 0)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestStore_LatestRawName(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	mustAddTank(t, store, "IS-7", 9, TypeHeavy)
	mustAddTank(t, store, "T-54", 9, TypeMedium)

	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := store.Submit(ctx, SubmitRequest{Player: "Alice", Tank: "IS-7", Score: 100, At: older})
	require.NoError(t, err)
	_, err = store.Submit(ctx, SubmitRequest{Player: "aLiCe", Tank: "T-54", Score: 200, At: newer})
	require.NoError(t, err)

	raw, err := store.LatestRawName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "aLiCe", raw)

	_, err = store.LatestRawName(ctx, "nobody")
	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr)
}

func TestStore_PlayerKeys(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	mustAddTank(t, store, "IS-7", 9, TypeHeavy)
	mustAddTank(t, store, "T-54", 9, TypeMedium)

	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := store.Submit(ctx, SubmitRequest{Player: "Alice", Tank: "IS-7", Score: 100, At: older})
	require.NoError(t, err)
	_, err = store.Submit(ctx, SubmitRequest{Player: "ALICE", Tank: "T-54", Score: 200, At: newer})
	require.NoError(t, err)
	_, err = store.Submit(ctx, SubmitRequest{Player: "Bob", Tank: "IS-7", Score: 300, At: older})
	require.NoError(t, err)

	keys, err := store.PlayerKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "alice", keys[0].Norm)
	assert.Equal(t, "ALICE", keys[0].Raw, "latest spelling per key")
	assert.Equal(t, "bob", keys[1].Norm)
}
