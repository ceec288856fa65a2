package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Read-side aggregations. All tie-breaks are deterministic (score DESC,
// then lowest id wins) so repeated calls render identical output.

// BestPerBucket returns one row per tank with its current best submission,
// if any. Ranked tanks come first by score, tanks without submissions
// trail in name order.
func (s *Store) BestPerBucket(ctx context.Context, filter TankFilter) ([]BestRow, error) {
	var typ *string
	if filter.Type != nil {
		v := string(*filter.Type)
		typ = &v
	}
	rows, err := s.db.QueryContext(ctx,
		`WITH ranked AS (
		     SELECT id, tank_name, player_name_raw, player_name_norm, score, created_at,
		            ROW_NUMBER() OVER (
		                PARTITION BY tank_name
		                ORDER BY score DESC, id ASC) AS rn
		     FROM submissions)
		 SELECT t.name, t.tier, t.type,
		        r.id, r.player_name_raw, r.player_name_norm, r.score, r.created_at
		 FROM tanks t
		 LEFT JOIN ranked r ON r.tank_name = t.name AND r.rn = 1
		 WHERE (?1 IS NULL OR t.tier = ?1) AND (?2 IS NULL OR t.type = ?2)
		 ORDER BY (r.score IS NULL) ASC, r.score DESC, t.name ASC`,
		filter.Tier, typ)
	if err != nil {
		return nil, classify(fmt.Errorf("snapshot query: %w", err))
	}
	defer rows.Close()

	var out []BestRow
	for rows.Next() {
		var (
			row       BestRow
			id        sql.NullInt64
			player    sql.NullString
			norm      sql.NullString
			score     sql.NullInt64
			createdAt sql.NullString
		)
		err := rows.Scan(&row.Tank, &row.Tier, &row.Type, &id, &player, &norm, &score, &createdAt)
		if err != nil {
			return nil, err
		}
		if id.Valid {
			row.SubmissionID = id.Int64
			row.Player = player.String
			row.PlayerNorm = norm.String
			row.Score = int(score.Int64)
			row.HasScore = true
			row.At = parseTimeOrZero(createdAt.String)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Champion returns the single highest submission within the filter, or a
// not-found error when nothing matches.
func (s *Store) Champion(ctx context.Context, filter TankFilter) (*BestRow, error) {
	var typ *string
	if filter.Type != nil {
		v := string(*filter.Type)
		typ = &v
	}
	var (
		row       BestRow
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT t.name, t.tier, t.type,
		        s.id, s.player_name_raw, s.player_name_norm, s.score, s.created_at
		 FROM submissions s
		 JOIN tanks t ON t.name = s.tank_name
		 WHERE (?1 IS NULL OR t.tier = ?1) AND (?2 IS NULL OR t.type = ?2)
		 ORDER BY s.score DESC, s.id ASC
		 LIMIT 1`,
		filter.Tier, typ).
		Scan(&row.Tank, &row.Tier, &row.Type, &row.SubmissionID,
			&row.Player, &row.PlayerNorm, &row.Score, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("champion", "no submissions match")
	}
	if err != nil {
		return nil, classify(err)
	}
	row.HasScore = true
	row.At = parseTimeOrZero(createdAt)
	return &row, nil
}

// MostFirsts counts how many tanks each player currently tops. Display
// variants collapse onto the normalized key; the spelling on the
// earliest-won first place is shown.
func (s *Store) MostFirsts(ctx context.Context, limit int) ([]FirstsRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`WITH ranked AS (
		     SELECT id, player_name_raw, player_name_norm,
		            ROW_NUMBER() OVER (
		                PARTITION BY tank_name
		                ORDER BY score DESC, id ASC) AS rn
		     FROM submissions)
		 SELECT player_name_norm, MIN(id), player_name_raw, COUNT(*) AS firsts
		 FROM ranked
		 WHERE rn = 1
		 GROUP BY player_name_norm
		 ORDER BY firsts DESC, MIN(id) ASC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("firsts query: %w", err))
	}
	defer rows.Close()

	var out []FirstsRow
	for rows.Next() {
		var row FirstsRow
		var minID int64
		if err := rows.Scan(&row.PlayerNorm, &minID, &row.Player, &row.Firsts); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// TopByTier lists the highest submissions across one tier.
func (s *Store) TopByTier(ctx context.Context, tier, limit int) ([]BestRow, error) {
	if tier < MinTier || tier > MaxTier {
		return nil, validationErr("tier", fmt.Sprintf("must be between %d and %d", MinTier, MaxTier))
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.name, t.tier, t.type,
		        s.id, s.player_name_raw, s.player_name_norm, s.score, s.created_at
		 FROM submissions s
		 JOIN tanks t ON t.name = s.tank_name
		 WHERE t.tier = ?
		 ORDER BY s.score DESC, s.id ASC
		 LIMIT ?`, tier, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("top query: %w", err))
	}
	defer rows.Close()

	var out []BestRow
	for rows.Next() {
		var row BestRow
		var createdAt string
		err := rows.Scan(&row.Tank, &row.Tier, &row.Type, &row.SubmissionID,
			&row.Player, &row.PlayerNorm, &row.Score, &createdAt)
		if err != nil {
			return nil, err
		}
		row.HasScore = true
		row.At = parseTimeOrZero(createdAt)
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountsByTank groups submission counts per tank, busiest first.
func (s *Store) CountsByTank(ctx context.Context) ([]CountRow, error) {
	return s.countRows(ctx,
		`SELECT tank_name, COUNT(*) AS n FROM submissions
		 GROUP BY tank_name ORDER BY n DESC, tank_name ASC`)
}

// CountsByYear groups submission counts by calendar year.
func (s *Store) CountsByYear(ctx context.Context) ([]CountRow, error) {
	return s.countRows(ctx,
		`SELECT substr(created_at, 1, 4) AS y, COUNT(*) FROM submissions
		 GROUP BY y ORDER BY y`)
}

// CountsByMonth groups submission counts by calendar month.
func (s *Store) CountsByMonth(ctx context.Context) ([]CountRow, error) {
	return s.countRows(ctx,
		`SELECT substr(created_at, 1, 7) AS m, COUNT(*) FROM submissions
		 GROUP BY m ORDER BY m`)
}

func (s *Store) countRows(ctx context.Context, query string) ([]CountRow, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(fmt.Errorf("count query: %w", err))
	}
	defer rows.Close()

	var out []CountRow
	for rows.Next() {
		var row CountRow
		if err := rows.Scan(&row.Key, &row.Count); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Stats reports ledger size counters.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM tanks),
		        (SELECT COUNT(*) FROM submissions),
		        (SELECT COUNT(DISTINCT player_name_norm) FROM submissions),
		        (SELECT COUNT(*) FROM tank_aliases)`).
		Scan(&st.Tanks, &st.Submissions, &st.Players, &st.Aliases)
	if err != nil {
		return Stats{}, classify(err)
	}
	return st, nil
}
