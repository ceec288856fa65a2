package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/blitz-labs/tankrank/internal/names"
)

const tankColumns = `name, name_norm, tier, type, created_at`

func scanTank(sc interface{ Scan(dest ...any) error }) (*Tank, error) {
	var t Tank
	var createdAt string
	if err := sc.Scan(&t.Name, &t.NameNorm, &t.Tier, &t.Type, &createdAt); err != nil {
		return nil, err
	}
	t.CreatedAt = parseTimeOrZero(createdAt)
	return &t, nil
}

func validateTankInput(name string, tier int, typ TankType) (clean, norm string, err error) {
	clean, err = names.ValidateText("tank name", name, names.MaxTextLen)
	if err != nil {
		return "", "", validationErr("tank name", err.Error())
	}
	norm = names.NormTank(clean)
	if norm == "" {
		return "", "", validationErr("tank name", "empty after normalization")
	}
	if tier < MinTier || tier > MaxTier {
		return "", "", validationErr("tier", fmt.Sprintf("must be between %d and %d", MinTier, MaxTier))
	}
	if !ValidTankType(typ) {
		return "", "", validationErr("type", "must be one of "+strings.Join(TankTypeNames(), ", "))
	}
	return clean, norm, nil
}

// AddTank inserts a new catalog entry. Names must be unique under
// normalization; collisions are reported against the existing entry.
func (s *Store) AddTank(ctx context.Context, name string, tier int, typ TankType, actor string) (*Tank, error) {
	clean, norm, err := validateTankInput(name, tier, typ)
	if err != nil {
		return nil, err
	}

	now := nowZ()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx,
			`SELECT name FROM tanks WHERE name_norm = ?`, norm).Scan(&existing)
		switch {
		case err == nil:
			return &ConflictError{Op: "add tank", Detail: fmt.Sprintf("%q already exists as %q", clean, existing)}
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO tanks (name, name_norm, tier, type, created_at) VALUES (?, ?, ?, ?, ?)`,
			clean, norm, tier, string(typ), now)
		if err != nil {
			return err
		}
		return insertTankChange(ctx, tx, ActionAdd,
			fmt.Sprintf("added %q (tier %d %s)", clean, tier, typ), actor)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("tank added", "tank", clean, "tier", tier, "type", string(typ), "actor", actor)
	return &Tank{Name: clean, NameNorm: norm, Tier: tier, Type: typ, CreatedAt: parseTimeOrZero(now)}, nil
}

// BulkAddTanks inserts many entries in one transaction. Rows whose
// normalized name already exists (in the table or earlier in the batch)
// are skipped; any validation failure rejects the whole batch.
func (s *Store) BulkAddTanks(ctx context.Context, inputs []TankInput, actor string) (BulkAddReport, error) {
	report := BulkAddReport{Attempted: len(inputs)}
	if len(inputs) == 0 {
		return report, nil
	}

	type row struct {
		clean string
		norm  string
		tier  int
		typ   TankType
	}
	rows := make([]row, 0, len(inputs))
	for i, in := range inputs {
		clean, norm, err := validateTankInput(in.Name, in.Tier, in.Type)
		if err != nil {
			return report, fmt.Errorf("row %d: %w", i+1, err)
		}
		rows = append(rows, row{clean: clean, norm: norm, tier: in.Tier, typ: in.Type})
	}

	now := nowZ()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		seen := make(map[string]bool, len(rows))
		for _, r := range rows {
			if seen[r.norm] {
				report.Skipped++
				continue
			}
			seen[r.norm] = true

			var existing string
			err := tx.QueryRowContext(ctx,
				`SELECT name FROM tanks WHERE name_norm = ?`, r.norm).Scan(&existing)
			switch {
			case err == nil:
				report.Skipped++
				continue
			case !errors.Is(err, sql.ErrNoRows):
				return err
			}

			_, err = tx.ExecContext(ctx,
				`INSERT INTO tanks (name, name_norm, tier, type, created_at) VALUES (?, ?, ?, ?, ?)`,
				r.clean, r.norm, r.tier, string(r.typ), now)
			if err != nil {
				return err
			}
			if err := insertTankChange(ctx, tx, ActionAdd,
				fmt.Sprintf("added %q (tier %d %s)", r.clean, r.tier, r.typ), actor); err != nil {
				return err
			}
			report.Added++
		}
		return nil
	})
	if err != nil {
		report.Added, report.Skipped = 0, 0
		return report, err
	}

	s.log.Info("tanks bulk added", "attempted", report.Attempted, "added", report.Added, "skipped", report.Skipped, "actor", actor)
	return report, nil
}

// EditTank changes tier, type, or name. Renames keep the submissions
// foreign key valid by inserting the new row before re-pointing children
// and only then deleting the old row. A backward alias (old name, new
// tank) is recorded so stale references keep resolving.
func (s *Store) EditTank(ctx context.Context, name string, upd TankUpdate, actor string) (*Tank, error) {
	if upd.Tier == nil && upd.Type == nil && upd.Rename == nil {
		return nil, validationErr("update", "no fields to change")
	}
	if upd.Tier != nil && (*upd.Tier < MinTier || *upd.Tier > MaxTier) {
		return nil, validationErr("tier", fmt.Sprintf("must be between %d and %d", MinTier, MaxTier))
	}
	if upd.Type != nil && !ValidTankType(*upd.Type) {
		return nil, validationErr("type", "must be one of "+strings.Join(TankTypeNames(), ", "))
	}

	var newName, newNorm string
	if upd.Rename != nil {
		var err error
		newName, err = names.ValidateText("tank name", *upd.Rename, names.MaxTextLen)
		if err != nil {
			return nil, validationErr("tank name", err.Error())
		}
		newNorm = names.NormTank(newName)
		if newNorm == "" {
			return nil, validationErr("tank name", "empty after normalization")
		}
	}

	var out *Tank
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var cur Tank
		var createdAt string
		err := tx.QueryRowContext(ctx,
			`SELECT `+tankColumns+` FROM tanks WHERE name = ?`, name).
			Scan(&cur.Name, &cur.NameNorm, &cur.Tier, &cur.Type, &createdAt)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("tank", name)
		}
		if err != nil {
			return err
		}

		tier, typ := cur.Tier, cur.Type
		var changes []string
		if upd.Tier != nil && *upd.Tier != cur.Tier {
			changes = append(changes, fmt.Sprintf("tier %d to %d", cur.Tier, *upd.Tier))
			tier = *upd.Tier
		}
		if upd.Type != nil && *upd.Type != cur.Type {
			changes = append(changes, fmt.Sprintf("type %s to %s", cur.Type, *upd.Type))
			typ = *upd.Type
		}

		renaming := upd.Rename != nil && newName != cur.Name
		if renaming {
			var existing string
			err := tx.QueryRowContext(ctx,
				`SELECT name FROM tanks WHERE name_norm = ? AND name <> ?`, newNorm, cur.Name).Scan(&existing)
			switch {
			case err == nil:
				return &ConflictError{Op: "rename tank", Detail: fmt.Sprintf("%q already exists as %q", newName, existing)}
			case !errors.Is(err, sql.ErrNoRows):
				return err
			}
			changes = append(changes, fmt.Sprintf("renamed %q to %q", cur.Name, newName))
		}
		if len(changes) == 0 {
			out = &cur
			out.CreatedAt = parseTimeOrZero(createdAt)
			return nil
		}

		if renaming {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO tanks (name, name_norm, tier, type, created_at) VALUES (?, ?, ?, ?, ?)`,
				newName, newNorm, tier, string(typ), createdAt)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE submissions SET tank_name = ? WHERE tank_name = ?`, newName, cur.Name); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE tank_aliases SET tank_name = ? WHERE tank_name = ?`, newName, cur.Name); err != nil {
				return err
			}
			// An alias matching the new canonical name is shadowed now.
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM tank_aliases WHERE alias_norm = ?`, newNorm); err != nil {
				return err
			}
			if err := upsertAlias(ctx, tx, cur.NameNorm, cur.Name, newName); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM tanks WHERE name = ?`, cur.Name); err != nil {
				return err
			}
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE tanks SET tier = ?, type = ? WHERE name = ?`, tier, string(typ), cur.Name)
			if err != nil {
				return err
			}
		}

		display := cur.Name
		if renaming {
			display = newName
		}
		if err := insertTankChange(ctx, tx, ActionEdit,
			fmt.Sprintf("edited %q: %s", cur.Name, strings.Join(changes, ", ")), actor); err != nil {
			return err
		}

		out = &Tank{Name: display, NameNorm: cur.NameNorm, Tier: tier, Type: typ, CreatedAt: parseTimeOrZero(createdAt)}
		if renaming {
			out.NameNorm = newNorm
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("tank edited", "tank", name, "actor", actor)
	return out, nil
}

// MergeTanks folds every submission under source into target, keeping the
// higher score on player collisions, then records a source alias and drops
// the source entry once nothing references it.
func (s *Store) MergeTanks(ctx context.Context, source, target, actor string) (MergeReport, error) {
	report := MergeReport{Source: source, Target: target}
	if source == target {
		return report, validationErr("target", "source and target are the same tank")
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var srcNorm string
		err := tx.QueryRowContext(ctx, `SELECT name_norm FROM tanks WHERE name = ?`, source).Scan(&srcNorm)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("tank", source)
		}
		if err != nil {
			return err
		}
		var tgtNorm string
		err = tx.QueryRowContext(ctx, `SELECT name_norm FROM tanks WHERE name = ?`, target).Scan(&tgtNorm)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("tank", target)
		}
		if err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT id, player_name_raw, player_name_norm, score, created_at
			 FROM submissions WHERE tank_name = ? ORDER BY id`, source)
		if err != nil {
			return err
		}
		type sub struct {
			id        int64
			raw       string
			norm      string
			score     int
			createdAt string
		}
		var moved []sub
		for rows.Next() {
			var m sub
			if err := rows.Scan(&m.id, &m.raw, &m.norm, &m.score, &m.createdAt); err != nil {
				rows.Close()
				return err
			}
			moved = append(moved, m)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, m := range moved {
			var tgtID int64
			var tgtScore int
			err := tx.QueryRowContext(ctx,
				`SELECT id, score FROM submissions WHERE tank_name = ? AND player_name_norm = ?`,
				target, m.norm).Scan(&tgtID, &tgtScore)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				if _, err := tx.ExecContext(ctx,
					`UPDATE submissions SET tank_name = ? WHERE id = ?`, target, m.id); err != nil {
					return err
				}
				if err := insertScoreChange(ctx, tx, ActionEdit, m.id, target, m.raw, m.norm,
					&m.score, &m.score, actor,
					fmt.Sprintf("merge: moved from %q", source)); err != nil {
					return err
				}
				report.Moved++
			case err != nil:
				return err
			case m.score > tgtScore:
				if _, err := tx.ExecContext(ctx,
					`UPDATE submissions SET score = ?, player_name_raw = ?, created_at = ? WHERE id = ?`,
					m.score, m.raw, m.createdAt, tgtID); err != nil {
					return err
				}
				if err := insertScoreChange(ctx, tx, ActionEdit, tgtID, target, m.raw, m.norm,
					&tgtScore, &m.score, actor,
					fmt.Sprintf("merge: upgraded from %q", source)); err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE id = ?`, m.id); err != nil {
					return err
				}
				if err := insertScoreChange(ctx, tx, ActionDelete, m.id, source, m.raw, m.norm,
					&m.score, nil, actor,
					fmt.Sprintf("merge: folded into %q", target)); err != nil {
					return err
				}
				report.Upgraded++
			default:
				if _, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE id = ?`, m.id); err != nil {
					return err
				}
				if err := insertScoreChange(ctx, tx, ActionDelete, m.id, source, m.raw, m.norm,
					&m.score, nil, actor,
					fmt.Sprintf("merge: target %q already had %d", target, tgtScore)); err != nil {
					return err
				}
				report.Dropped++
			}
		}

		// Future lookups of the source name land on the target.
		if _, err := tx.ExecContext(ctx,
			`UPDATE tank_aliases SET tank_name = ? WHERE tank_name = ?`, target, source); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM tank_aliases WHERE alias_norm = ?`, tgtNorm); err != nil {
			return err
		}
		if err := upsertAlias(ctx, tx, srcNorm, source, target); err != nil {
			return err
		}

		var remaining int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM submissions WHERE tank_name = ?`, source).Scan(&remaining); err != nil {
			return err
		}
		if remaining == 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM tanks WHERE name = ?`, source); err != nil {
				return err
			}
			report.SourceRemoved = true
		}

		return insertTankChange(ctx, tx, ActionMerge,
			fmt.Sprintf("merged %q into %q (moved %d, upgraded %d, dropped %d)",
				source, target, report.Moved, report.Upgraded, report.Dropped), actor)
	})
	if err != nil {
		return MergeReport{Source: source, Target: target}, err
	}

	s.log.Info("tanks merged", "source", source, "target", target,
		"moved", report.Moved, "upgraded", report.Upgraded, "dropped", report.Dropped, "actor", actor)
	return report, nil
}

// RemoveTank deletes a catalog entry that has no submissions. Entries with
// submissions must be merged or have their scores deleted first.
func (s *Store) RemoveTank(ctx context.Context, name, actor string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var norm string
		err := tx.QueryRowContext(ctx, `SELECT name_norm FROM tanks WHERE name = ?`, name).Scan(&norm)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("tank", name)
		}
		if err != nil {
			return err
		}

		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM submissions WHERE tank_name = ?`, name).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return &ConflictError{Op: "remove tank", Detail: fmt.Sprintf("%q still has %d submissions", name, count)}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM tank_aliases WHERE tank_name = ?`, name); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tanks WHERE name = ?`, name); err != nil {
			return err
		}
		return insertTankChange(ctx, tx, ActionRemove, fmt.Sprintf("removed %q", name), actor)
	})
	if err != nil {
		return err
	}

	s.log.Info("tank removed", "tank", name, "actor", actor)
	return nil
}

// TankByName fetches by exact display name.
func (s *Store) TankByName(ctx context.Context, name string) (*Tank, error) {
	t, err := scanTank(s.db.QueryRowContext(ctx,
		`SELECT `+tankColumns+` FROM tanks WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("tank", name)
	}
	if err != nil {
		return nil, classify(err)
	}
	return t, nil
}

// TankByNorm fetches by normalized name.
func (s *Store) TankByNorm(ctx context.Context, norm string) (*Tank, error) {
	t, err := scanTank(s.db.QueryRowContext(ctx,
		`SELECT `+tankColumns+` FROM tanks WHERE name_norm = ?`, norm))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("tank", norm)
	}
	if err != nil {
		return nil, classify(err)
	}
	return t, nil
}

// Tanks lists the catalog, optionally filtered, ordered by tier then name.
func (s *Store) Tanks(ctx context.Context, filter TankFilter) ([]Tank, error) {
	var typ *string
	if filter.Type != nil {
		v := string(*filter.Type)
		typ = &v
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tankColumns+` FROM tanks
		 WHERE (?1 IS NULL OR tier = ?1) AND (?2 IS NULL OR type = ?2)
		 ORDER BY tier, name`, filter.Tier, typ)
	if err != nil {
		return nil, classify(fmt.Errorf("list tanks: %w", err))
	}
	defer rows.Close()

	var out []Tank
	for rows.Next() {
		t, err := scanTank(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// SubmissionCount reports how many score rows reference a tank.
func (s *Store) SubmissionCount(ctx context.Context, tank string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE tank_name = ?`, tank).Scan(&n)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}
