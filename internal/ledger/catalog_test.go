package ledger

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AddTank(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	tank, err := store.AddTank(ctx, "  Object 140 ", 10, TypeMedium, "tester")
	require.NoError(t, err)
	assert.Equal(t, "Object 140", tank.Name, "display name is trimmed")
	assert.Equal(t, "object 140", tank.NameNorm)
	assert.Equal(t, 10, tank.Tier)
	assert.False(t, tank.CreatedAt.IsZero())

	byName, err := store.TankByName(ctx, "Object 140")
	require.NoError(t, err)
	assert.Equal(t, tank.NameNorm, byName.NameNorm)

	byNorm, err := store.TankByNorm(ctx, "object 140")
	require.NoError(t, err)
	assert.Equal(t, "Object 140", byNorm.Name)

	changes, err := store.TankChanges(ctx, 10)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, ActionAdd, changes[0].Action)
	assert.Equal(t, "tester", changes[0].Actor)
	assert.Contains(t, changes[0].Details, "Object 140")
}

func TestStore_AddTank_Validation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		tank string
		tier int
		typ  TankType
	}{
		{"empty name", "", 5, TypeHeavy},
		{"blank name", "   ", 5, TypeHeavy},
		{"multiline name", "IS-7\nMaus", 5, TypeHeavy},
		{"control character", "IS-7\x00", 5, TypeHeavy},
		{"too long", strings.Repeat("x", 65), 5, TypeHeavy},
		{"tier too low", "IS-7", 0, TypeHeavy},
		{"tier too high", "IS-7", 11, TypeHeavy},
		{"bad type", "IS-7", 5, TankType("artillery")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.AddTank(ctx, tt.tank, tt.tier, tt.typ, "test")
			var verr *ValidationError
			require.ErrorAs(t, err, &verr, "expected validation error")
		})
	}
}

func TestStore_AddTank_BadTypeMessage(t *testing.T) {
	store := openTestStore(t)

	_, err := store.AddTank(context.Background(), "IS-7", 5, TankType("artillery"), "test")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "light, medium, heavy, td")
}

func TestStore_AddTank_NormCollision(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mustAddTank(t, store, "Object 140", 10, TypeMedium)

	_, err := store.AddTank(ctx, "OBJECT   140", 10, TypeMedium, "test")
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Detail, "Object 140")

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Tanks)
}

func TestStore_BulkAddTanks(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mustAddTank(t, store, "IS-7", 9, TypeHeavy)

	// "is-7" already exists in the table; the second "object 140" collides
	// with the first batch row.
	report, err := store.BulkAddTanks(ctx, []TankInput{
		{Name: "Object 140", Tier: 10, Type: TypeMedium},
		{Name: "is-7", Tier: 9, Type: TypeHeavy},
		{Name: "object 140", Tier: 10, Type: TypeMedium},
		{Name: "Maus", Tier: 10, Type: TypeHeavy},
	}, "importer")
	require.NoError(t, err)
	assert.Equal(t, 4, report.Attempted)
	assert.Equal(t, 2, report.Added)
	assert.Equal(t, 2, report.Skipped)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Tanks)
}

func TestStore_BulkAddTanks_InvalidRowAbortsBatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.BulkAddTanks(ctx, []TankInput{
		{Name: "Object 140", Tier: 10, Type: TypeMedium},
		{Name: "Broken", Tier: 99, Type: TypeMedium},
	}, "importer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Tanks, "failed batch must write nothing")
}

func TestStore_EditTank(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mustAddTank(t, store, "T-44", 8, TypeMedium)

	tier := 9
	typ := TypeHeavy
	tank, err := store.EditTank(ctx, "T-44", TankUpdate{Tier: &tier, Type: &typ}, "tester")
	require.NoError(t, err)
	assert.Equal(t, 9, tank.Tier)
	assert.Equal(t, TypeHeavy, tank.Type)

	stored, err := store.TankByName(ctx, "T-44")
	require.NoError(t, err)
	assert.Equal(t, 9, stored.Tier)
	assert.Equal(t, TypeHeavy, stored.Type)

	changes, err := store.TankChanges(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, changes)
	assert.Equal(t, ActionEdit, changes[0].Action)
	assert.Contains(t, changes[0].Details, "tier 8 to 9")
	assert.Contains(t, changes[0].Details, "type medium to heavy")
}

func TestStore_EditTank_NoFields(t *testing.T) {
	store := openTestStore(t)
	mustAddTank(t, store, "T-44", 8, TypeMedium)

	_, err := store.EditTank(context.Background(), "T-44", TankUpdate{}, "tester")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestStore_EditTank_NotFound(t *testing.T) {
	store := openTestStore(t)

	tier := 5
	_, err := store.EditTank(context.Background(), "Ghost", TankUpdate{Tier: &tier}, "tester")
	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr)
	assert.Equal(t, "tank", nferr.Kind)
}

func TestStore_EditTank_Rename(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	orig := mustAddTank(t, store, "Obj 140", 10, TypeMedium)
	mustSubmit(t, store, "Obj 140", "Alice", 5000)
	mustSubmit(t, store, "Obj 140", "Bob", 4000)
	_, err := store.AddAlias(ctx, "140 proto", "Obj 140", "tester")
	require.NoError(t, err)

	rename := "Object 140"
	tank, err := store.EditTank(ctx, "Obj 140", TankUpdate{Rename: &rename}, "tester")
	require.NoError(t, err)
	assert.Equal(t, "Object 140", tank.Name)
	assert.Equal(t, "object 140", tank.NameNorm)
	assert.Equal(t, orig.CreatedAt, tank.CreatedAt, "rename keeps the original creation time")

	_, err = store.TankByName(ctx, "Obj 140")
	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr, "old name must be gone")

	subs, err := store.Submissions(ctx, "Object 140")
	require.NoError(t, err)
	assert.Len(t, subs, 2, "submissions follow the rename")

	// The old spelling keeps resolving through the backward alias, and the
	// pre-existing alias is re-pointed.
	target, err := store.AliasTarget(ctx, "obj 140")
	require.NoError(t, err)
	assert.Equal(t, "Object 140", target.Name)

	target, err = store.AliasTarget(ctx, "140 proto")
	require.NoError(t, err)
	assert.Equal(t, "Object 140", target.Name)
}

func TestStore_EditTank_RenameCollision(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mustAddTank(t, store, "Object 140", 10, TypeMedium)
	mustAddTank(t, store, "Object 430", 10, TypeMedium)

	rename := "object   140"
	_, err := store.EditTank(ctx, "Object 430", TankUpdate{Rename: &rename}, "tester")
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)

	// Renaming a tank to itself with a tier change is not a collision.
	rename = "Object 430"
	tier := 9
	tank, err := store.EditTank(ctx, "Object 430", TankUpdate{Rename: &rename, Tier: &tier}, "tester")
	require.NoError(t, err)
	assert.Equal(t, 9, tank.Tier)
}

func TestStore_MergeTanks(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mustAddTank(t, store, "Obj 430U", 10, TypeMedium)
	mustAddTank(t, store, "Object 430U", 10, TypeMedium)

	// Alice exists only on the source; Bob wins on the source; Carol wins
	// on the target.
	mustSubmit(t, store, "Obj 430U", "Alice", 3000)
	mustSubmit(t, store, "Obj 430U", "Bob", 5000)
	mustSubmit(t, store, "Object 430U", "Bob", 4500)
	mustSubmit(t, store, "Obj 430U", "Carol", 2000)
	mustSubmit(t, store, "Object 430U", "Carol", 2500)

	report, err := store.MergeTanks(ctx, "Obj 430U", "Object 430U", "tester")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Moved, "alice moves")
	assert.Equal(t, 1, report.Upgraded, "bob upgrades the target")
	assert.Equal(t, 1, report.Dropped, "carol keeps the target score")
	assert.True(t, report.SourceRemoved)

	_, err = store.TankByName(ctx, "Obj 430U")
	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr)

	subs, err := store.Submissions(ctx, "Object 430U")
	require.NoError(t, err)
	require.Len(t, subs, 3)

	// Per-player best across both tanks is preserved on the target.
	byPlayer := map[string]int{}
	for _, sub := range subs {
		byPlayer[sub.PlayerNameNorm] = sub.Score
	}
	assert.Equal(t, 3000, byPlayer["alice"])
	assert.Equal(t, 5000, byPlayer["bob"])
	assert.Equal(t, 2500, byPlayer["carol"])

	// Future imports under the old name resolve to the target.
	target, err := store.AliasTarget(ctx, "obj 430u")
	require.NoError(t, err)
	assert.Equal(t, "Object 430U", target.Name)

	changes, err := store.TankChanges(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, changes)
	assert.Equal(t, ActionMerge, changes[0].Action)
}

func TestStore_MergeTanks_SameTank(t *testing.T) {
	store := openTestStore(t)
	mustAddTank(t, store, "IS-7", 9, TypeHeavy)

	_, err := store.MergeTanks(context.Background(), "IS-7", "IS-7", "tester")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestStore_MergeTanks_UnknownTank(t *testing.T) {
	store := openTestStore(t)
	mustAddTank(t, store, "IS-7", 9, TypeHeavy)

	_, err := store.MergeTanks(context.Background(), "Ghost", "IS-7", "tester")
	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr)

	_, err = store.MergeTanks(context.Background(), "IS-7", "Ghost", "tester")
	require.ErrorAs(t, err, &nferr)
}

func TestStore_RemoveTank(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mustAddTank(t, store, "E 50 M", 10, TypeMedium)
	_, err := store.AddAlias(ctx, "E50M", "E 50 M", "tester")
	require.NoError(t, err)
	out := mustSubmit(t, store, "E 50 M", "Alice", 3000)

	err = store.RemoveTank(ctx, "E 50 M", "tester")
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr, "removal must be refused while submissions exist")

	_, err = store.DeleteSubmission(ctx, out.SubmissionID, "tester", true)
	require.NoError(t, err)

	require.NoError(t, store.RemoveTank(ctx, "E 50 M", "tester"))

	_, err = store.TankByName(ctx, "E 50 M")
	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr)

	_, err = store.AliasTarget(ctx, "e50m")
	require.ErrorAs(t, err, &nferr, "aliases are dropped with the tank")
}

func TestStore_Tanks_Filter(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mustAddTank(t, store, "IS-7", 9, TypeHeavy)
	mustAddTank(t, store, "T-54", 9, TypeMedium)
	mustAddTank(t, store, "Maus", 10, TypeHeavy)

	all, err := store.Tanks(ctx, TankFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "IS-7", all[0].Name, "tier then name ordering")
	assert.Equal(t, "T-54", all[1].Name)
	assert.Equal(t, "Maus", all[2].Name)

	tier := 9
	nines, err := store.Tanks(ctx, TankFilter{Tier: &tier})
	require.NoError(t, err)
	assert.Len(t, nines, 2)

	typ := TypeHeavy
	heavies, err := store.Tanks(ctx, TankFilter{Type: &typ})
	require.NoError(t, err)
	assert.Len(t, heavies, 2)

	both, err := store.Tanks(ctx, TankFilter{Tier: &tier, Type: &typ})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "IS-7", both[0].Name)
}

func TestStore_AddAlias(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mustAddTank(t, store, "Object 140", 10, TypeMedium)

	alias, err := store.AddAlias(ctx, " Obj. 140 ", "Object 140", "tester")
	require.NoError(t, err)
	assert.Equal(t, "obj. 140", alias.AliasNorm)
	assert.Equal(t, "Obj. 140", alias.AliasRaw)
	assert.Equal(t, "Object 140", alias.TankName)

	target, err := store.AliasTarget(ctx, "obj. 140")
	require.NoError(t, err)
	assert.Equal(t, "Object 140", target.Name)

	list, err := store.Aliases(ctx, "Object 140")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_AddAlias_Errors(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mustAddTank(t, store, "Object 140", 10, TypeMedium)
	mustAddTank(t, store, "Object 430", 10, TypeMedium)

	_, err := store.AddAlias(ctx, "Obj. 140", "Ghost", "tester")
	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr)

	_, err = store.AddAlias(ctx, "object  430", "Object 140", "tester")
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr, "an alias shadowing a tank name is refused")

	_, err = store.AddAlias(ctx, "", "Object 140", "tester")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestStore_AddAlias_RepointsExisting(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mustAddTank(t, store, "Object 140", 10, TypeMedium)
	mustAddTank(t, store, "Object 430", 10, TypeMedium)

	_, err := store.AddAlias(ctx, "the object", "Object 140", "tester")
	require.NoError(t, err)
	_, err = store.AddAlias(ctx, "The Object", "Object 430", "tester")
	require.NoError(t, err)

	target, err := store.AliasTarget(ctx, "the object")
	require.NoError(t, err)
	assert.Equal(t, "Object 430", target.Name)

	all, err := store.AllAliases(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "re-adding replaces rather than duplicates")
}
