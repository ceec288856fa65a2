// Package rebuild plans the destructive schema transitions the migration
// runner executes: repairing orphaned tank references via alias lookup, and
// the rename/create/copy/drop rebuild that retrofits a table definition.
// Everything here is pure planning over in-memory snapshots so the
// transitions are testable without a live database.
package rebuild

import (
	"fmt"
	"sort"
)

// IntegrityError is a fatal inconsistency found while migrating: a
// duplicate or orphan the runner cannot resolve. Startup halts on it.
type IntegrityError struct {
	Migration int64
	Detail    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation in migration %d: %s", e.Migration, e.Detail)
}

// Snapshot is the minimal view of the live data the repair planner needs.
type Snapshot struct {
	// Tanks holds the canonical display names present in the catalog.
	Tanks map[string]bool
	// Refs maps each distinct submissions.tank_name to its row count.
	Refs map[string]int
	// Aliases maps alias_norm to the canonical tank name it points at.
	Aliases map[string]string
}

// Repair re-points every submission under From to the canonical tank To.
type Repair struct {
	From string
	To   string
	Rows int
}

// PlanRepairs finds referenced tank names missing from the catalog and
// resolves each through the alias table using the supplied normalizer.
// Repairs come back in deterministic (sorted by From) order; names that
// resolve to nothing or to another missing tank are returned in unresolved.
func PlanRepairs(snap Snapshot, normalize func(string) string) (repairs []Repair, unresolved []string) {
	orphans := make([]string, 0)
	for ref := range snap.Refs {
		if !snap.Tanks[ref] {
			orphans = append(orphans, ref)
		}
	}
	sort.Strings(orphans)

	for _, ref := range orphans {
		target, ok := snap.Aliases[normalize(ref)]
		if !ok || !snap.Tanks[target] {
			unresolved = append(unresolved, ref)
			continue
		}
		repairs = append(repairs, Repair{From: ref, To: target, Rows: snap.Refs[ref]})
	}
	return repairs, unresolved
}

// TableSpec describes the target shape of a rebuilt table. CreateSQL must
// create the table under TempName(spec.Name); Columns lists the copied
// columns in order; Indexes are recreated after the swap.
type TableSpec struct {
	Name      string
	CreateSQL string
	Columns   []string
	Indexes   []string
}

// TempName returns the scratch table name used during a rebuild.
func TempName(table string) string {
	return table + "_rebuild"
}

// Steps expands a TableSpec into the ordered SQL statements of an atomic
// rebuild: create scratch table, copy every row, drop the original, rename
// the scratch table into place, recreate indexes. Run inside one
// transaction, the swap preserves all rows or none.
func Steps(spec TableSpec) []string {
	cols := columnList(spec.Columns)
	steps := []string{
		spec.CreateSQL,
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", TempName(spec.Name), cols, cols, spec.Name),
		fmt.Sprintf("DROP TABLE %s", spec.Name),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", TempName(spec.Name), spec.Name),
	}
	return append(steps, spec.Indexes...)
}

func columnList(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
