package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/blitz-labs/tankrank/internal/ledger"
)

// ExportTanks writes the catalog as CSV ordered by tier then name and
// returns the number of data rows. The header matches what ImportTanks
// accepts, so exports round-trip.
func (im *Importer) ExportTanks(ctx context.Context, w io.Writer) (int, error) {
	tanks, err := im.store.Tanks(ctx, ledger.TankFilter{})
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"name", "tier", "type", "created_at"})
	for _, t := range tanks {
		_ = cw.Write([]string{t.Name, strconv.Itoa(t.Tier), string(t.Type), ledger.FormatTime(t.CreatedAt)})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("write tank csv: %w", err)
	}
	im.log.Info("tank export", "rows", len(tanks))
	return len(tanks), nil
}

// ExportScores writes every submission as CSV ordered by tank, then score
// descending, then insertion order. The header matches what ImportScores
// accepts, so exports round-trip.
func (im *Importer) ExportScores(ctx context.Context, w io.Writer) (int, error) {
	subs, err := im.store.AllSubmissions(ctx)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"tank_name", "player_name", "score", "submitted_by", "created_at"})
	for _, s := range subs {
		_ = cw.Write([]string{s.TankName, s.PlayerNameRaw, strconv.Itoa(s.Score), s.SubmittedBy, ledger.FormatTime(s.CreatedAt)})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("write score csv: %w", err)
	}
	im.log.Info("score export", "rows", len(subs))
	return len(subs), nil
}
