package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCanonicalPlayerNames, downCanonicalPlayerNames)
}

// upCanonicalPlayerNames rewrites every submission's raw player spelling to
// the one from that player's latest submission, so each normalized key maps
// to exactly one display form.
func upCanonicalPlayerNames(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT player_name_norm, player_name_raw
		 FROM submissions
		 ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return fmt.Errorf("list player spellings: %w", err)
	}
	canon := make(map[string]string)
	for rows.Next() {
		var norm, raw string
		if err := rows.Scan(&norm, &raw); err != nil {
			rows.Close()
			return err
		}
		if _, seen := canon[norm]; !seen {
			canon[norm] = raw
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for norm, raw := range canon {
		if _, err := tx.ExecContext(ctx,
			`UPDATE submissions SET player_name_raw = ?
			 WHERE player_name_norm = ? AND player_name_raw <> ?`,
			raw, norm, raw,
		); err != nil {
			return fmt.Errorf("canonicalize %q: %w", norm, err)
		}
	}
	return nil
}

func downCanonicalPlayerNames(context.Context, *sql.Tx) error {
	return errors.New("display-name canonicalization cannot be rolled back: original spellings were overwritten")
}
