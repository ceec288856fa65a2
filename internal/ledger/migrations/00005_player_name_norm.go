package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/pressly/goose/v3"

	"github.com/blitz-labs/tankrank/internal/names"
)

func init() {
	goose.AddMigrationContext(upPlayerNameNorm, downPlayerNameNorm)
}

type submissionRow struct {
	id        int64
	tank      string
	raw       string
	norm      string
	score     int
	createdAt string
}

// upPlayerNameNorm introduces the normalized player key: renames the raw
// column, backfills the norm column on submissions and score_changes, and
// collapses pairs that become duplicates under the new key. The winner is
// the row with the highest score, then the latest timestamp, then the
// highest id; losers are deleted with an audit row each. Finally the unique
// pair index moves from the raw to the normalized key.
func upPlayerNameNorm(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`ALTER TABLE submissions RENAME COLUMN player_name TO player_name_raw`,
		`ALTER TABLE submissions ADD COLUMN player_name_norm TEXT`,
		`ALTER TABLE score_changes RENAME COLUMN player_name TO player_name_raw`,
		`ALTER TABLE score_changes ADD COLUMN player_name_norm TEXT`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reshape player columns: %w", err)
		}
	}

	subs, err := loadSubmissionRows(ctx, tx)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE submissions SET player_name_norm = ? WHERE id = ?`,
			sub.norm, sub.id,
		); err != nil {
			return fmt.Errorf("backfill submission %d: %w", sub.id, err)
		}
	}

	if err := backfillAuditNorms(ctx, tx); err != nil {
		return err
	}

	if err := collapseDuplicatePlayers(ctx, tx, subs); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DROP INDEX IF EXISTS idx_submissions_tank_player`); err != nil {
		return fmt.Errorf("drop raw pair index: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_submissions_tank_player_norm
		     ON submissions (tank_name, player_name_norm)`,
	); err != nil {
		return fmt.Errorf("create norm pair index: %w", err)
	}
	return nil
}

func loadSubmissionRows(ctx context.Context, tx *sql.Tx) ([]submissionRow, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, tank_name, player_name_raw, score, created_at FROM submissions ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []submissionRow
	for rows.Next() {
		var sub submissionRow
		if err := rows.Scan(&sub.id, &sub.tank, &sub.raw, &sub.score, &sub.createdAt); err != nil {
			return nil, err
		}
		sub.norm = names.NormPlayer(sub.raw)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func backfillAuditNorms(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `SELECT id, player_name_raw FROM score_changes`)
	if err != nil {
		return fmt.Errorf("list score changes: %w", err)
	}
	type changeRow struct {
		id  int64
		raw string
	}
	var changes []changeRow
	for rows.Next() {
		var c changeRow
		if err := rows.Scan(&c.id, &c.raw); err != nil {
			rows.Close()
			return err
		}
		changes = append(changes, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, c := range changes {
		if _, err := tx.ExecContext(ctx,
			`UPDATE score_changes SET player_name_norm = ? WHERE id = ?`,
			names.NormPlayer(c.raw), c.id,
		); err != nil {
			return fmt.Errorf("backfill score change %d: %w", c.id, err)
		}
	}
	return nil
}

func collapseDuplicatePlayers(ctx context.Context, tx *sql.Tx, subs []submissionRow) error {
	type pairKey struct {
		tank string
		norm string
	}
	groups := make(map[pairKey][]submissionRow)
	for _, sub := range subs {
		key := pairKey{tank: sub.tank, norm: sub.norm}
		groups[key] = append(groups[key], sub)
	}

	keys := make([]pairKey, 0, len(groups))
	for key, group := range groups {
		if len(group) > 1 {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].tank != keys[j].tank {
			return keys[i].tank < keys[j].tank
		}
		return keys[i].norm < keys[j].norm
	})

	now := utcNow()
	for _, key := range keys {
		group := groups[key]
		sort.Slice(group, func(i, j int) bool {
			if group[i].score != group[j].score {
				return group[i].score > group[j].score
			}
			if group[i].createdAt != group[j].createdAt {
				return group[i].createdAt > group[j].createdAt
			}
			return group[i].id > group[j].id
		})

		for _, loser := range group[1:] {
			if _, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE id = ?`, loser.id); err != nil {
				return fmt.Errorf("delete duplicate submission %d: %w", loser.id, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO score_changes
				     (action, submission_id, tank_name, player_name_raw, player_name_norm,
				      old_score, new_score, actor, created_at, details)
				 VALUES ('delete', ?, ?, ?, ?, ?, NULL, 'migration', ?, ?)`,
				loser.id, loser.tank, loser.raw, loser.norm, loser.score, now,
				fmt.Sprintf("duplicate player key %q", key.norm),
			); err != nil {
				return fmt.Errorf("audit duplicate submission %d: %w", loser.id, err)
			}
		}
	}
	return nil
}

func downPlayerNameNorm(context.Context, *sql.Tx) error {
	return errors.New("player key normalization cannot be rolled back: duplicate rows were removed")
}
