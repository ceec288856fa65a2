package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/blitz-labs/tankrank/internal/names"
)

func upsertAlias(ctx context.Context, tx *sql.Tx, aliasNorm, aliasRaw, tank string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO tank_aliases (alias_norm, tank_name, alias_raw, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (alias_norm) DO UPDATE SET
		     tank_name = excluded.tank_name,
		     alias_raw = excluded.alias_raw`,
		aliasNorm, tank, aliasRaw, nowZ())
	if err != nil {
		return fmt.Errorf("upsert alias %q: %w", aliasRaw, err)
	}
	return nil
}

// AddAlias records an alternate spelling for a tank. Re-adding an existing
// alias re-points it at the new target.
func (s *Store) AddAlias(ctx context.Context, alias, tank, actor string) (*TankAlias, error) {
	clean, err := names.ValidateText("alias", alias, names.MaxTextLen)
	if err != nil {
		return nil, validationErr("alias", err.Error())
	}
	norm := names.NormTank(clean)
	if norm == "" {
		return nil, validationErr("alias", "empty after normalization")
	}

	var out *TankAlias
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var target string
		err := tx.QueryRowContext(ctx, `SELECT name FROM tanks WHERE name = ?`, tank).Scan(&target)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("tank", tank)
		}
		if err != nil {
			return err
		}

		var shadowed string
		err = tx.QueryRowContext(ctx, `SELECT name FROM tanks WHERE name_norm = ?`, norm).Scan(&shadowed)
		switch {
		case err == nil:
			return &ConflictError{Op: "add alias", Detail: fmt.Sprintf("%q is already a tank name (%q)", clean, shadowed)}
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		if err := upsertAlias(ctx, tx, norm, clean, target); err != nil {
			return err
		}
		if err := insertTankChange(ctx, tx, ActionAdd,
			fmt.Sprintf("added alias %q for %q", clean, target), actor); err != nil {
			return err
		}
		out = &TankAlias{AliasNorm: norm, TankName: target, AliasRaw: clean, CreatedAt: parseTimeOrZero(nowZ())}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("alias added", "alias", clean, "tank", out.TankName, "actor", actor)
	return out, nil
}

// AliasTarget resolves a normalized alias to its tank, if any.
func (s *Store) AliasTarget(ctx context.Context, aliasNorm string) (*Tank, error) {
	t, err := scanTank(s.db.QueryRowContext(ctx,
		`SELECT t.name, t.name_norm, t.tier, t.type, t.created_at
		 FROM tank_aliases a JOIN tanks t ON t.name = a.tank_name
		 WHERE a.alias_norm = ?`, aliasNorm))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("alias", aliasNorm)
	}
	if err != nil {
		return nil, classify(err)
	}
	return t, nil
}

// Aliases lists the alternate spellings recorded for one tank.
func (s *Store) Aliases(ctx context.Context, tank string) ([]TankAlias, error) {
	return s.listAliases(ctx,
		`SELECT alias_norm, tank_name, alias_raw, created_at
		 FROM tank_aliases WHERE tank_name = ? ORDER BY alias_norm`, tank)
}

// AllAliases lists every alias, ordered for stable output.
func (s *Store) AllAliases(ctx context.Context) ([]TankAlias, error) {
	return s.listAliases(ctx,
		`SELECT alias_norm, tank_name, alias_raw, created_at
		 FROM tank_aliases ORDER BY tank_name, alias_norm`)
}

func (s *Store) listAliases(ctx context.Context, query string, args ...any) ([]TankAlias, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("list aliases: %w", err))
	}
	defer rows.Close()

	var out []TankAlias
	for rows.Next() {
		var a TankAlias
		var createdAt string
		if err := rows.Scan(&a.AliasNorm, &a.TankName, &a.AliasRaw, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt = parseTimeOrZero(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}
