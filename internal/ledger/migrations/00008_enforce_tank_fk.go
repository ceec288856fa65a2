package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/blitz-labs/tankrank/internal/ledger/rebuild"
	"github.com/blitz-labs/tankrank/internal/names"
)

func init() {
	goose.AddMigrationContext(upEnforceTankFK, downEnforceTankFK)
}

const rebuiltSubmissionsSQL = `CREATE TABLE submissions_rebuild (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    player_name_raw TEXT NOT NULL,
    player_name_norm TEXT NOT NULL,
    tank_name TEXT NOT NULL REFERENCES tanks(name),
    score INTEGER NOT NULL CHECK (score > 0),
    submitted_by TEXT NOT NULL,
    created_at TEXT NOT NULL
)`

var submissionColumns = []string{
	"id", "player_name_raw", "player_name_norm", "tank_name",
	"score", "submitted_by", "created_at",
}

var submissionIndexes = []string{
	`CREATE UNIQUE INDEX idx_submissions_tank_player_norm
	     ON submissions (tank_name, player_name_norm)`,
	`CREATE INDEX idx_submissions_tank_score_id
	     ON submissions (tank_name, score DESC, id)`,
}

// upEnforceTankFK retrofits the tanks foreign key onto submissions. Orphaned
// tank references are re-pointed through the alias table first (keeping the
// higher score when the move collides with an existing pair); any reference
// that still resolves to nothing halts the migration. The table is then
// rebuilt in place with the constraint and its indexes.
func upEnforceTankFK(ctx context.Context, tx *sql.Tx) error {
	snap, err := loadSnapshot(ctx, tx)
	if err != nil {
		return err
	}

	repairs, unresolved := rebuild.PlanRepairs(snap, names.NormTank)
	if len(unresolved) > 0 {
		return &rebuild.IntegrityError{
			Migration: 8,
			Detail:    "unresolved tank references: " + strings.Join(unresolved, ", "),
		}
	}
	for _, repair := range repairs {
		if err := applyRepair(ctx, tx, repair); err != nil {
			return err
		}
	}

	steps := rebuild.Steps(rebuild.TableSpec{
		Name:      "submissions",
		CreateSQL: rebuiltSubmissionsSQL,
		Columns:   submissionColumns,
		Indexes:   submissionIndexes,
	})
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step); err != nil {
			return fmt.Errorf("rebuild submissions: %w", err)
		}
	}
	return nil
}

func loadSnapshot(ctx context.Context, tx *sql.Tx) (rebuild.Snapshot, error) {
	snap := rebuild.Snapshot{
		Tanks:   make(map[string]bool),
		Refs:    make(map[string]int),
		Aliases: make(map[string]string),
	}

	rows, err := tx.QueryContext(ctx, `SELECT name FROM tanks`)
	if err != nil {
		return snap, fmt.Errorf("list tanks: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return snap, err
		}
		snap.Tanks[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, err
	}

	rows, err = tx.QueryContext(ctx, `SELECT tank_name, COUNT(*) FROM submissions GROUP BY tank_name`)
	if err != nil {
		return snap, fmt.Errorf("list referenced tanks: %w", err)
	}
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			rows.Close()
			return snap, err
		}
		snap.Refs[name] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, err
	}

	rows, err = tx.QueryContext(ctx, `SELECT alias_norm, tank_name FROM tank_aliases`)
	if err != nil {
		return snap, fmt.Errorf("list aliases: %w", err)
	}
	for rows.Next() {
		var aliasNorm, tank string
		if err := rows.Scan(&aliasNorm, &tank); err != nil {
			rows.Close()
			return snap, err
		}
		snap.Aliases[aliasNorm] = tank
	}
	rows.Close()
	return snap, rows.Err()
}

func applyRepair(ctx context.Context, tx *sql.Tx, repair rebuild.Repair) error {
	orphans, err := loadPairRows(ctx, tx, repair.From)
	if err != nil {
		return err
	}

	now := utcNow()
	for _, orphan := range orphans {
		var targetID int64
		var targetScore int
		err := tx.QueryRowContext(ctx,
			`SELECT id, score FROM submissions WHERE tank_name = ? AND player_name_norm = ?`,
			repair.To, orphan.norm,
		).Scan(&targetID, &targetScore)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx,
				`UPDATE submissions SET tank_name = ? WHERE id = ?`,
				repair.To, orphan.id,
			); err != nil {
				return fmt.Errorf("re-point submission %d: %w", orphan.id, err)
			}
			if err := auditRepair(ctx, tx, "edit", orphan.id, repair.To, orphan,
				&orphan.score, &orphan.score, now,
				fmt.Sprintf("orphan repair: moved from %q to %q", repair.From, repair.To)); err != nil {
				return err
			}
		case err != nil:
			return fmt.Errorf("check repair target: %w", err)
		case orphan.score > targetScore:
			if _, err := tx.ExecContext(ctx,
				`UPDATE submissions SET score = ?, created_at = ? WHERE id = ?`,
				orphan.score, orphan.createdAt, targetID,
			); err != nil {
				return fmt.Errorf("upgrade repair target %d: %w", targetID, err)
			}
			if err := auditRepair(ctx, tx, "edit", targetID, repair.To, orphan,
				&targetScore, &orphan.score, now,
				fmt.Sprintf("orphan repair: upgraded by duplicate from %q", repair.From)); err != nil {
				return err
			}
			if err := deleteRepairLoser(ctx, tx, orphan, now, repair); err != nil {
				return err
			}
		default:
			if err := deleteRepairLoser(ctx, tx, orphan, now, repair); err != nil {
				return err
			}
		}
	}
	return nil
}

type pairRow struct {
	id        int64
	raw       string
	norm      string
	score     int
	createdAt string
}

func loadPairRows(ctx context.Context, tx *sql.Tx, tank string) ([]pairRow, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, player_name_raw, player_name_norm, score, created_at
		 FROM submissions WHERE tank_name = ? ORDER BY id`,
		tank,
	)
	if err != nil {
		return nil, fmt.Errorf("list submissions for %q: %w", tank, err)
	}
	defer rows.Close()

	var out []pairRow
	for rows.Next() {
		var r pairRow
		if err := rows.Scan(&r.id, &r.raw, &r.norm, &r.score, &r.createdAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func deleteRepairLoser(ctx context.Context, tx *sql.Tx, orphan pairRow, now string, repair rebuild.Repair) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE id = ?`, orphan.id); err != nil {
		return fmt.Errorf("delete orphan duplicate %d: %w", orphan.id, err)
	}
	return auditRepair(ctx, tx, "delete", orphan.id, repair.From, orphan,
		&orphan.score, nil, now,
		fmt.Sprintf("orphan repair: duplicate of %q", repair.To))
}

func auditRepair(ctx context.Context, tx *sql.Tx, action string, id int64, tank string, row pairRow, oldScore, newScore *int, now, details string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO score_changes
		     (action, submission_id, tank_name, player_name_raw, player_name_norm,
		      old_score, new_score, actor, created_at, details)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 'migration', ?, ?)`,
		action, id, tank, row.raw, row.norm, oldScore, newScore, now, details,
	)
	if err != nil {
		return fmt.Errorf("audit repair of submission %d: %w", id, err)
	}
	return nil
}

func downEnforceTankFK(context.Context, *sql.Tx) error {
	return errors.New("foreign key enforcement cannot be rolled back")
}
