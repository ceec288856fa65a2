package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blitz-labs/tankrank/internal/names"
)

const submissionColumns = `id, player_name_raw, player_name_norm, tank_name, score, submitted_by, created_at`

func scanSubmission(sc interface{ Scan(dest ...any) error }) (*Submission, error) {
	var sub Submission
	var createdAt string
	err := sc.Scan(&sub.ID, &sub.PlayerNameRaw, &sub.PlayerNameNorm, &sub.TankName,
		&sub.Score, &sub.SubmittedBy, &createdAt)
	if err != nil {
		return nil, err
	}
	sub.CreatedAt = parseTimeOrZero(createdAt)
	return &sub, nil
}

type submitReq struct {
	playerRaw  string
	playerNorm string
	tank       string
	score      int
	by         string
	at         string
}

func (s *Store) prepareSubmit(req SubmitRequest) (submitReq, error) {
	player, err := names.ValidateText("player name", req.Player, names.MaxTextLen)
	if err != nil {
		return submitReq{}, validationErr("player name", err.Error())
	}
	norm := names.NormPlayer(player)
	if norm == "" {
		return submitReq{}, validationErr("player name", "empty after normalization")
	}
	tank, err := names.ValidateText("tank name", req.Tank, names.MaxTextLen)
	if err != nil {
		return submitReq{}, validationErr("tank name", err.Error())
	}
	if req.Score <= 0 {
		return submitReq{}, validationErr("score", "must be positive")
	}
	if req.Score > s.maxScore {
		return submitReq{}, validationErr("score", fmt.Sprintf("exceeds maximum %d", s.maxScore))
	}
	by := req.SubmittedBy
	if by == "" {
		by = "unknown"
	}
	at := req.At
	if at.IsZero() {
		at = time.Now()
	}
	return submitReq{
		playerRaw:  player,
		playerNorm: norm,
		tank:       tank,
		score:      req.Score,
		by:         by,
		at:         FormatTime(at),
	}, nil
}

// submitTx applies the keep-highest rule for one row. The insert path is
// constraint-guarded so a lower score can never overwrite a higher one even
// if the classification read went stale.
func submitTx(ctx context.Context, tx *sql.Tx, req submitReq) (Outcome, error) {
	var canonical string
	err := tx.QueryRowContext(ctx, `SELECT name FROM tanks WHERE name = ?`, req.tank).Scan(&canonical)
	if errors.Is(err, sql.ErrNoRows) {
		return Outcome{}, notFound("tank", req.tank)
	}
	if err != nil {
		return Outcome{}, err
	}

	var existingID int64
	var existingScore int
	err = tx.QueryRowContext(ctx,
		`SELECT id, score FROM submissions WHERE tank_name = ? AND player_name_norm = ?`,
		req.tank, req.playerNorm).Scan(&existingID, &existingScore)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		var id int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO submissions (player_name_raw, player_name_norm, tank_name, score, submitted_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (tank_name, player_name_norm) DO UPDATE SET
			     score = excluded.score,
			     player_name_raw = excluded.player_name_raw,
			     submitted_by = excluded.submitted_by,
			     created_at = excluded.created_at
			 WHERE excluded.score > submissions.score
			 RETURNING id`,
			req.playerRaw, req.playerNorm, req.tank, req.score, req.by, req.at).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			// The guard rejected the write; report against the live row.
			var cur int
			if err := tx.QueryRowContext(ctx,
				`SELECT id, score FROM submissions WHERE tank_name = ? AND player_name_norm = ?`,
				req.tank, req.playerNorm).Scan(&existingID, &cur); err != nil {
				return Outcome{}, err
			}
			return Outcome{Status: StatusIgnored, SubmissionID: existingID, Current: cur}, nil
		}
		if err != nil {
			return Outcome{}, err
		}
		if err := insertScoreChange(ctx, tx, ActionAdd, id, req.tank, req.playerRaw, req.playerNorm,
			nil, &req.score, req.by, ""); err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: StatusAdded, SubmissionID: id, NewScore: req.score, Current: req.score}, nil

	case err != nil:
		return Outcome{}, err

	case req.score > existingScore:
		res, err := tx.ExecContext(ctx,
			`UPDATE submissions
			 SET score = ?, player_name_raw = ?, submitted_by = ?, created_at = ?
			 WHERE id = ? AND score < ?`,
			req.score, req.playerRaw, req.by, req.at, existingID, req.score)
		if err != nil {
			return Outcome{}, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return Outcome{}, err
		}
		if n == 0 {
			var cur int
			if err := tx.QueryRowContext(ctx,
				`SELECT score FROM submissions WHERE id = ?`, existingID).Scan(&cur); err != nil {
				return Outcome{}, err
			}
			return Outcome{Status: StatusIgnored, SubmissionID: existingID, Current: cur}, nil
		}
		if err := insertScoreChange(ctx, tx, ActionEdit, existingID, req.tank, req.playerRaw, req.playerNorm,
			&existingScore, &req.score, req.by, ""); err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: StatusUpdated, SubmissionID: existingID, OldScore: existingScore, NewScore: req.score, Current: req.score}, nil

	default:
		return Outcome{Status: StatusIgnored, SubmissionID: existingID, Current: existingScore}, nil
	}
}

// Submit records a score, keeping only the highest per (tank, player).
// Lower or equal scores leave the ledger untouched and report the current
// value.
func (s *Store) Submit(ctx context.Context, req SubmitRequest) (Outcome, error) {
	prepared, err := s.prepareSubmit(req)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = submitTx(ctx, tx, prepared)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}

	s.log.Info("score submitted", "tank", prepared.tank, "player", prepared.playerRaw,
		"score", prepared.score, "status", string(out.Status))
	return out, nil
}

// SubmitBulk applies the keep-highest rule to every row inside one
// transaction. Any invalid or unresolvable row aborts the whole batch.
func (s *Store) SubmitBulk(ctx context.Context, reqs []SubmitRequest) (BulkOutcome, error) {
	out := BulkOutcome{Attempted: len(reqs)}
	if len(reqs) == 0 {
		return out, nil
	}

	prepared := make([]submitReq, 0, len(reqs))
	for i, req := range reqs {
		p, err := s.prepareSubmit(req)
		if err != nil {
			return BulkOutcome{Attempted: len(reqs)}, fmt.Errorf("row %d: %w", i+1, err)
		}
		prepared = append(prepared, p)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for i, p := range prepared {
			res, err := submitTx(ctx, tx, p)
			if err != nil {
				return fmt.Errorf("row %d: %w", i+1, err)
			}
			out.Rows = append(out.Rows, res)
			switch res.Status {
			case StatusAdded:
				out.Added++
			case StatusUpdated:
				out.Updated++
			case StatusIgnored:
				out.Ignored++
			}
		}
		return nil
	})
	if err != nil {
		return BulkOutcome{Attempted: len(reqs)}, err
	}

	s.log.Info("scores bulk submitted", "attempted", out.Attempted,
		"added", out.Added, "updated", out.Updated, "ignored", out.Ignored)
	return out, nil
}

// DeleteSubmission retires a score row. By default it reverts to the prior
// best recorded in the audit trail; with no prior score, or with hard set,
// the row is removed. Every path writes a delete audit row.
func (s *Store) DeleteSubmission(ctx context.Context, id int64, actor string, hard bool) (DeleteOutcome, error) {
	var out DeleteOutcome
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sub, err := scanSubmission(tx.QueryRowContext(ctx,
			`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("submission", fmt.Sprintf("#%d", id))
		}
		if err != nil {
			return err
		}
		out.Tank = sub.TankName
		out.Player = sub.PlayerNameRaw
		out.OldScore = sub.Score

		if !hard {
			// The most recent edit whose result is the live score points
			// at the value it replaced.
			var prior int
			err := tx.QueryRowContext(ctx,
				`SELECT old_score FROM score_changes
				 WHERE submission_id = ? AND action = ? AND new_score = ? AND old_score IS NOT NULL
				 ORDER BY id DESC LIMIT 1`,
				id, ActionEdit, sub.Score).Scan(&prior)
			switch {
			case err == nil:
				if _, err := tx.ExecContext(ctx,
					`UPDATE submissions SET score = ? WHERE id = ?`, prior, id); err != nil {
					return err
				}
				if err := insertScoreChange(ctx, tx, ActionDelete, id, sub.TankName,
					sub.PlayerNameRaw, sub.PlayerNameNorm, &sub.Score, &prior, actor,
					"reverted to previous best"); err != nil {
					return err
				}
				out.Reverted = true
				out.RestoredScore = prior
				return nil
			case !errors.Is(err, sql.ErrNoRows):
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE id = ?`, id); err != nil {
			return err
		}
		details := "no prior score; removed"
		if hard {
			details = "removed"
		}
		if err := insertScoreChange(ctx, tx, ActionDelete, id, sub.TankName,
			sub.PlayerNameRaw, sub.PlayerNameNorm, &sub.Score, nil, actor, details); err != nil {
			return err
		}
		out.Removed = true
		return nil
	})
	if err != nil {
		return DeleteOutcome{}, err
	}

	s.log.Info("submission deleted", "id", id, "tank", out.Tank,
		"reverted", out.Reverted, "removed", out.Removed, "actor", actor)
	return out, nil
}

// Qualifies compares a candidate score against the current best for a tank.
// Ties do not qualify.
func (s *Store) Qualifies(ctx context.Context, tank string, score int) (Qualification, error) {
	if score <= 0 {
		return Qualification{}, validationErr("score", "must be positive")
	}
	if score > s.maxScore {
		return Qualification{}, validationErr("score", fmt.Sprintf("exceeds maximum %d", s.maxScore))
	}

	var canonical string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM tanks WHERE name = ?`, tank).Scan(&canonical)
	if errors.Is(err, sql.ErrNoRows) {
		return Qualification{}, notFound("tank", tank)
	}
	if err != nil {
		return Qualification{}, classify(err)
	}

	q := Qualification{Tank: canonical, Score: score}
	var best int
	err = s.db.QueryRowContext(ctx,
		`SELECT score FROM submissions WHERE tank_name = ?
		 ORDER BY score DESC, id ASC LIMIT 1`, canonical).Scan(&best)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		q.Qualifies = true
		q.Margin = score
		return q, nil
	case err != nil:
		return Qualification{}, classify(err)
	}

	q.Best = &best
	q.Margin = score - best
	q.Qualifies = q.Margin > 0
	return q, nil
}

// SubmissionByID fetches one score row.
func (s *Store) SubmissionByID(ctx context.Context, id int64) (*Submission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("submission", fmt.Sprintf("#%d", id))
	}
	if err != nil {
		return nil, classify(err)
	}
	return sub, nil
}

// SubmissionFor fetches the row for one (tank, player) pair.
func (s *Store) SubmissionFor(ctx context.Context, tank, playerNorm string) (*Submission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE tank_name = ? AND player_name_norm = ?`, tank, playerNorm))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("submission", playerNorm+" on "+tank)
	}
	if err != nil {
		return nil, classify(err)
	}
	return sub, nil
}

// Submissions lists score rows for one tank, best first.
func (s *Store) Submissions(ctx context.Context, tank string) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE tank_name = ? ORDER BY score DESC, id ASC`, tank)
	if err != nil {
		return nil, classify(fmt.Errorf("list submissions: %w", err))
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

// AllSubmissions lists every score row in deterministic order, for exports.
func (s *Store) AllSubmissions(ctx context.Context) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 ORDER BY tank_name, score DESC, id ASC`)
	if err != nil {
		return nil, classify(fmt.Errorf("list submissions: %w", err))
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

// LatestRawName returns the display spelling most recently stored for a
// normalized player key.
func (s *Store) LatestRawName(ctx context.Context, playerNorm string) (string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT player_name_raw FROM submissions
		 WHERE player_name_norm = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`, playerNorm).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("player", playerNorm)
	}
	if err != nil {
		return "", classify(err)
	}
	return raw, nil
}

// PlayerKeys lists every distinct player in the ledger with the latest raw
// spelling per normalized key.
func (s *Store) PlayerKeys(ctx context.Context) ([]PlayerKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT player_name_norm, player_name_raw FROM (
		     SELECT player_name_norm, player_name_raw,
		            ROW_NUMBER() OVER (
		                PARTITION BY player_name_norm
		                ORDER BY created_at DESC, id DESC) AS rn
		     FROM submissions)
		 WHERE rn = 1
		 ORDER BY player_name_norm`)
	if err != nil {
		return nil, classify(fmt.Errorf("list players: %w", err))
	}
	defer rows.Close()

	var out []PlayerKey
	for rows.Next() {
		var k PlayerKey
		if err := rows.Scan(&k.Norm, &k.Raw); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
