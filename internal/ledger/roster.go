package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ReplaceRoster swaps the cached member list for one region in a single
// transaction and reports how many players landed.
func (s *Store) ReplaceRoster(ctx context.Context, region string, players []RosterPlayer) (int, error) {
	if region == "" {
		return 0, validationErr("region", "required")
	}

	now := nowZ()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM roster_players WHERE region = ?`, region); err != nil {
			return err
		}
		for _, p := range players {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO roster_players (account_id, nickname, nickname_norm, clan_id, region, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?)
				 ON CONFLICT (account_id) DO UPDATE SET
				     nickname = excluded.nickname,
				     nickname_norm = excluded.nickname_norm,
				     clan_id = excluded.clan_id,
				     region = excluded.region,
				     updated_at = excluded.updated_at`,
				p.AccountID, p.Nickname, p.NicknameNorm, p.ClanID, region, now)
			if err != nil {
				return fmt.Errorf("roster insert %d: %w", p.AccountID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("roster replaced", "region", region, "players", len(players))
	return len(players), nil
}

// RosterByNorm finds a cached clan member by normalized nickname.
func (s *Store) RosterByNorm(ctx context.Context, norm string) (*RosterPlayer, error) {
	var (
		p         RosterPlayer
		clanID    sql.NullInt64
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT account_id, nickname, nickname_norm, clan_id, region, updated_at
		 FROM roster_players WHERE nickname_norm = ?
		 ORDER BY updated_at DESC LIMIT 1`, norm).
		Scan(&p.AccountID, &p.Nickname, &p.NicknameNorm, &clanID, &p.Region, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("roster player", norm)
	}
	if err != nil {
		return nil, classify(err)
	}
	p.ClanID = clanID.Int64
	p.UpdatedAt = parseTimeOrZero(updatedAt)
	return &p, nil
}

// RosterPlayers lists the whole roster cache in nickname order.
func (s *Store) RosterPlayers(ctx context.Context) ([]RosterPlayer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account_id, nickname, nickname_norm, clan_id, region, updated_at
		 FROM roster_players ORDER BY nickname_norm, account_id`)
	if err != nil {
		return nil, classify(fmt.Errorf("list roster: %w", err))
	}
	defer rows.Close()

	var out []RosterPlayer
	for rows.Next() {
		var (
			p         RosterPlayer
			clanID    sql.NullInt64
			updatedAt string
		)
		err := rows.Scan(&p.AccountID, &p.Nickname, &p.NicknameNorm, &clanID, &p.Region, &updatedAt)
		if err != nil {
			return nil, err
		}
		p.ClanID = clanID.Int64
		p.UpdatedAt = parseTimeOrZero(updatedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetSyncState upserts one sync status blob.
func (s *Store) SetSyncState(ctx context.Context, key, value string) error {
	if key == "" {
		return validationErr("key", "required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET
		     value = excluded.value,
		     updated_at = excluded.updated_at`,
		key, value, nowZ())
	if err != nil {
		return classify(fmt.Errorf("set sync state %q: %w", key, err))
	}
	return nil
}

// GetSyncState fetches one sync status blob.
func (s *Store) GetSyncState(ctx context.Context, key string) (*SyncState, error) {
	var st SyncState
	var updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT key, value, updated_at FROM sync_state WHERE key = ?`, key).
		Scan(&st.Key, &st.Value, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("sync state", key)
	}
	if err != nil {
		return nil, classify(err)
	}
	st.UpdatedAt = parseTimeOrZero(updatedAt)
	return &st, nil
}

// AllSyncStates lists every recorded sync status, key-ordered.
func (s *Store) AllSyncStates(ctx context.Context) ([]SyncState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, updated_at FROM sync_state ORDER BY key`)
	if err != nil {
		return nil, classify(fmt.Errorf("list sync state: %w", err))
	}
	defer rows.Close()

	var out []SyncState
	for rows.Next() {
		var st SyncState
		var updatedAt string
		if err := rows.Scan(&st.Key, &st.Value, &updatedAt); err != nil {
			return nil, err
		}
		st.UpdatedAt = parseTimeOrZero(updatedAt)
		out = append(out, st)
	}
	return out, rows.Err()
}
