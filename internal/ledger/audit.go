package ledger

import (
	"context"
	"database/sql"
	"fmt"
)

// Audit writes happen inside the same transaction as the mutation they
// record; a failed audit insert rolls the whole mutation back.

func insertScoreChange(ctx context.Context, tx *sql.Tx, action string, submissionID int64, tank, raw, norm string, oldScore, newScore *int, actor, details string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO score_changes
		     (action, submission_id, tank_name, player_name_raw, player_name_norm,
		      old_score, new_score, actor, created_at, details)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		action, submissionID, tank, raw, norm, oldScore, newScore, actor, nowZ(), details,
	)
	if err != nil {
		return fmt.Errorf("write score audit: %w", err)
	}
	return nil
}

func insertTankChange(ctx context.Context, tx *sql.Tx, action, details, actor string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO tank_changes (action, details, actor, created_at) VALUES (?, ?, ?, ?)`,
		action, details, actor, nowZ(),
	)
	if err != nil {
		return fmt.Errorf("write tank audit: %w", err)
	}
	return nil
}

const scoreChangeColumns = `id, action, submission_id, tank_name, player_name_raw,
	player_name_norm, old_score, new_score, actor, created_at, details`

func scanScoreChange(rows *sql.Rows) (ScoreChange, error) {
	var (
		c            ScoreChange
		submissionID sql.NullInt64
		oldScore     sql.NullInt64
		newScore     sql.NullInt64
		createdAt    string
	)
	err := rows.Scan(&c.ID, &c.Action, &submissionID, &c.TankName, &c.PlayerNameRaw,
		&c.PlayerNameNorm, &oldScore, &newScore, &c.Actor, &createdAt, &c.Details)
	if err != nil {
		return c, err
	}
	if submissionID.Valid {
		c.SubmissionID = &submissionID.Int64
	}
	if oldScore.Valid {
		v := int(oldScore.Int64)
		c.OldScore = &v
	}
	if newScore.Valid {
		v := int(newScore.Int64)
		c.NewScore = &v
	}
	c.CreatedAt = parseTimeOrZero(createdAt)
	return c, nil
}

// ScoreChanges returns the audit tail, newest first.
func (s *Store) ScoreChanges(ctx context.Context, limit int) ([]ScoreChange, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scoreChangeColumns+` FROM score_changes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("list score changes: %w", err))
	}
	defer rows.Close()

	var out []ScoreChange
	for rows.Next() {
		c, err := scanScoreChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ScoreHistory returns the audit rows for one (tank, player) pair, newest
// first.
func (s *Store) ScoreHistory(ctx context.Context, tank, playerNorm string, limit int) ([]ScoreChange, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scoreChangeColumns+`
		 FROM score_changes
		 WHERE tank_name = ? AND player_name_norm = ?
		 ORDER BY id DESC LIMIT ?`,
		tank, playerNorm, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("list score history: %w", err))
	}
	defer rows.Close()

	var out []ScoreChange
	for rows.Next() {
		c, err := scanScoreChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TankChanges returns the catalog audit tail, newest first.
func (s *Store) TankChanges(ctx context.Context, limit int) ([]TankChange, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, details, actor, created_at
		 FROM tank_changes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("list tank changes: %w", err))
	}
	defer rows.Close()

	var out []TankChange
	for rows.Next() {
		var c TankChange
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Action, &c.Details, &c.Actor, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTimeOrZero(createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}
