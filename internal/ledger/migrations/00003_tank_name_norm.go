package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/blitz-labs/tankrank/internal/ledger/rebuild"
	"github.com/blitz-labs/tankrank/internal/names"
)

func init() {
	goose.AddMigrationContext(upTankNameNorm, downTankNameNorm)
}

// upTankNameNorm adds the normalized-name column to tanks and backfills it.
// The planned unique index would reject duplicate keys, so collisions are
// checked up front and abort the migration before anything is written.
func upTankNameNorm(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `ALTER TABLE tanks ADD COLUMN name_norm TEXT`); err != nil {
		return fmt.Errorf("add tanks.name_norm: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT name FROM tanks ORDER BY name`)
	if err != nil {
		return fmt.Errorf("list tanks: %w", err)
	}
	var tankNames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		tankNames = append(tankNames, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	byNorm := make(map[string][]string)
	for _, name := range tankNames {
		key := names.NormTank(name)
		byNorm[key] = append(byNorm[key], name)
	}

	var collisions []string
	for key, group := range byNorm {
		if len(group) > 1 {
			sort.Strings(group)
			collisions = append(collisions, fmt.Sprintf("%q <- %s", key, strings.Join(group, ", ")))
		}
	}
	if len(collisions) > 0 {
		sort.Strings(collisions)
		return &rebuild.IntegrityError{
			Migration: 3,
			Detail:    "tank name collisions on normalized key: " + strings.Join(collisions, "; "),
		}
	}

	for _, name := range tankNames {
		if _, err := tx.ExecContext(ctx,
			`UPDATE tanks SET name_norm = ? WHERE name = ?`,
			names.NormTank(name), name,
		); err != nil {
			return fmt.Errorf("backfill name_norm for %q: %w", name, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tanks_name_norm ON tanks (name_norm)`,
	); err != nil {
		return fmt.Errorf("create name_norm index: %w", err)
	}
	return nil
}

func downTankNameNorm(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DROP INDEX IF EXISTS idx_tanks_name_norm`); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `ALTER TABLE tanks DROP COLUMN name_norm`)
	return err
}
