package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blitz-labs/tankrank/internal/ledger"
	"github.com/blitz-labs/tankrank/internal/names"
	"github.com/blitz-labs/tankrank/internal/resolve"
)

// DefaultRowLimit caps how many data rows one import may carry. The cap is
// enforced before anything is written.
const DefaultRowLimit = 5000

// RowError is one rejected input row. Line counts from the top of the
// input, with the CSV header on line 1.
type RowError struct {
	Line   int
	Reason string
}

func (e RowError) String() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Options tune an Importer. Zero values fall back to defaults.
type Options struct {
	// RowLimit caps data rows per import (default DefaultRowLimit).
	RowLimit int
	// MaxScore bounds accepted scores; keep it aligned with the store's
	// limit or bulk writes will be rejected wholesale.
	MaxScore int
	// Logger receives import summaries; nil discards them.
	Logger *slog.Logger
}

// Importer runs CSV imports against a store, resolving free-text tank
// names through the resolver first.
type Importer struct {
	store    *ledger.Store
	res      *resolve.Resolver
	log      *slog.Logger
	limit    int
	maxScore int
}

func New(store *ledger.Store, res *resolve.Resolver, opts Options) *Importer {
	limit := opts.RowLimit
	if limit <= 0 {
		limit = DefaultRowLimit
	}
	maxScore := opts.MaxScore
	if maxScore <= 0 {
		maxScore = ledger.DefaultMaxScore
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Importer{store: store, res: res, log: log, limit: limit, maxScore: maxScore}
}

// ScoreOptions control one score import run.
type ScoreOptions struct {
	// DryRun builds the full report without writing anything.
	DryRun bool
	// SubmittedBy fills rows without a submitted_by column; empty falls
	// back to the batch actor "import:<batch id>".
	SubmittedBy string
}

// ScoreReport summarizes one score import run. In a dry run the outcome
// counts stay zero; Valid tells how many rows would be submitted.
type ScoreReport struct {
	BatchID   string
	DryRun    bool
	Attempted int
	Valid     int
	Added     int
	Updated   int
	Ignored   int
	Errors    []RowError
}

// ImportScores reads a score CSV and submits every valid row in one
// transaction. The header is required and column order is free: tank_name
// or tank, player_name or player, score, optional created_at (also
// timestamp or date), optional submitted_by. Rows that fail validation or
// resolution are reported with line numbers, never silently dropped.
func (im *Importer) ImportScores(ctx context.Context, r io.Reader, opts ScoreOptions) (*ScoreReport, error) {
	header, rows, rowErrs, err := readRows(r, im.limit)
	if err != nil {
		return nil, err
	}
	cols, err := scoreColumns(header)
	if err != nil {
		return nil, err
	}

	batch := uuid.NewString()
	rep := &ScoreReport{BatchID: batch, DryRun: opts.DryRun, Errors: rowErrs}
	fallback := strings.TrimSpace(opts.SubmittedBy)
	if fallback == "" {
		fallback = "import:" + batch
	}

	reqs := make([]ledger.SubmitRequest, 0, len(rows))
	for _, rec := range rows {
		rep.Attempted++
		req, rerr := im.scoreRow(ctx, rec, cols, fallback)
		if rerr != nil {
			rep.Errors = append(rep.Errors, RowError{Line: rec.line, Reason: rerr.Error()})
			continue
		}
		reqs = append(reqs, req)
	}
	rep.Valid = len(reqs)
	sortRowErrors(rep.Errors)

	if opts.DryRun {
		im.log.Info("score import dry run",
			"batch", batch, "rows", rep.Attempted, "valid", rep.Valid, "errors", len(rep.Errors))
		return rep, nil
	}

	if len(reqs) > 0 {
		out, err := im.store.SubmitBulk(ctx, reqs)
		if err != nil {
			return nil, fmt.Errorf("import batch %s: %w", batch, err)
		}
		rep.Added, rep.Updated, rep.Ignored = out.Added, out.Updated, out.Ignored
	}
	im.log.Info("score import",
		"batch", batch, "rows", rep.Attempted,
		"added", rep.Added, "updated", rep.Updated, "ignored", rep.Ignored,
		"errors", len(rep.Errors))
	return rep, nil
}

func (im *Importer) scoreRow(ctx context.Context, rec record, cols scoreCols, fallback string) (ledger.SubmitRequest, error) {
	var zero ledger.SubmitRequest

	player, err := names.ValidateText("player name", field(rec.fields, cols.player), names.MaxTextLen)
	if err != nil {
		return zero, err
	}

	scoreStr := field(rec.fields, cols.score)
	score, err := strconv.Atoi(scoreStr)
	if err != nil {
		return zero, fmt.Errorf("score %q is not a number", scoreStr)
	}
	if score < 1 || score > im.maxScore {
		return zero, fmt.Errorf("score %d out of range 1..%d", score, im.maxScore)
	}

	tank, err := im.res.ResolveTank(ctx, field(rec.fields, cols.tank))
	if err != nil {
		return zero, err
	}

	req := ledger.SubmitRequest{
		Player:      player,
		Tank:        tank.Name,
		Score:       score,
		SubmittedBy: fallback,
	}
	if cols.by >= 0 {
		if v := field(rec.fields, cols.by); v != "" {
			req.SubmittedBy = v
		}
	}
	if cols.created >= 0 {
		if v := field(rec.fields, cols.created); v != "" {
			at, err := parseWhen(v)
			if err != nil {
				return zero, err
			}
			req.At = at
		}
	}
	return req, nil
}

// TankOptions control one tank import run.
type TankOptions struct {
	DryRun bool
	// Actor is recorded in the audit trail; empty falls back to the batch
	// actor "import:<batch id>".
	Actor string
}

// TankReport summarizes one tank import run.
type TankReport struct {
	BatchID   string
	DryRun    bool
	Attempted int
	Valid     int
	Added     int
	Skipped   int
	Errors    []RowError
}

// ImportTanks reads a tank CSV (name or tank_name, tier, type) and adds the
// missing entries in one audited batch. Existing names are skipped, not
// errors. After a write the resolver index is refreshed so a following
// score import sees the new entries.
func (im *Importer) ImportTanks(ctx context.Context, r io.Reader, opts TankOptions) (*TankReport, error) {
	header, rows, rowErrs, err := readRows(r, im.limit)
	if err != nil {
		return nil, err
	}
	cols, err := tankColumns(header)
	if err != nil {
		return nil, err
	}

	batch := uuid.NewString()
	rep := &TankReport{BatchID: batch, DryRun: opts.DryRun, Errors: rowErrs}
	actor := strings.TrimSpace(opts.Actor)
	if actor == "" {
		actor = "import:" + batch
	}

	inputs := make([]ledger.TankInput, 0, len(rows))
	for _, rec := range rows {
		rep.Attempted++
		in, rerr := tankRow(rec, cols)
		if rerr != nil {
			rep.Errors = append(rep.Errors, RowError{Line: rec.line, Reason: rerr.Error()})
			continue
		}
		inputs = append(inputs, in)
	}
	rep.Valid = len(inputs)
	sortRowErrors(rep.Errors)

	if opts.DryRun {
		im.log.Info("tank import dry run",
			"batch", batch, "rows", rep.Attempted, "valid", rep.Valid, "errors", len(rep.Errors))
		return rep, nil
	}

	if len(inputs) > 0 {
		out, err := im.store.BulkAddTanks(ctx, inputs, actor)
		if err != nil {
			return nil, fmt.Errorf("import batch %s: %w", batch, err)
		}
		rep.Added, rep.Skipped = out.Added, out.Skipped
		if rep.Added > 0 {
			if err := im.res.Reload(ctx); err != nil {
				return nil, fmt.Errorf("refresh resolver: %w", err)
			}
		}
	}
	im.log.Info("tank import",
		"batch", batch, "rows", rep.Attempted,
		"added", rep.Added, "skipped", rep.Skipped, "errors", len(rep.Errors))
	return rep, nil
}

func tankRow(rec record, cols tankCols) (ledger.TankInput, error) {
	var zero ledger.TankInput

	name, err := names.ValidateText("tank name", field(rec.fields, cols.name), names.MaxTextLen)
	if err != nil {
		return zero, err
	}

	tierStr := field(rec.fields, cols.tier)
	tier, err := strconv.Atoi(tierStr)
	if err != nil {
		return zero, fmt.Errorf("tier %q is not a number", tierStr)
	}
	if tier < ledger.MinTier || tier > ledger.MaxTier {
		return zero, fmt.Errorf("tier %d out of range %d..%d", tier, ledger.MinTier, ledger.MaxTier)
	}

	rawType := field(rec.fields, cols.typ)
	typ, ok := normalizeClass(rawType)
	if !ok {
		return zero, fmt.Errorf("unknown vehicle class %q", rawType)
	}

	return ledger.TankInput{Name: name, Tier: tier, Type: typ}, nil
}

// record is one CSV data row with its 1-based row number (header is 1).
type record struct {
	line   int
	fields []string
}

// readRows reads the header and all data rows, refusing inputs over the
// row limit before the caller can write anything. Rows with a wrong field
// count come back as row errors; structural CSV failures abort the read.
func readRows(r io.Reader, limit int) (header []string, rows []record, rowErrs []RowError, err error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err = cr.Read()
	if err == io.EOF {
		return nil, nil, nil, errors.New("empty input: missing header row")
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read csv header: %w", err)
	}

	line := 1
	for {
		line++
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, csv.ErrFieldCount) {
				rowErrs = append(rowErrs, RowError{Line: line, Reason: "wrong number of fields"})
				continue
			}
			return nil, nil, nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, record{line: line, fields: rec})
		if len(rows) > limit {
			return nil, nil, nil, fmt.Errorf("import exceeds the %d-row limit", limit)
		}
	}
	return header, rows, rowErrs, nil
}

// scoreCols are the resolved header positions for a score CSV. Optional
// columns are -1 when absent.
type scoreCols struct {
	tank    int
	player  int
	score   int
	created int
	by      int
}

func scoreColumns(header []string) (scoreCols, error) {
	cols := scoreCols{
		tank:    findColumn(header, "tank_name", "tank"),
		player:  findColumn(header, "player_name", "player"),
		score:   findColumn(header, "score"),
		created: findColumn(header, "created_at", "timestamp", "date"),
		by:      findColumn(header, "submitted_by"),
	}
	switch {
	case cols.tank < 0:
		return cols, errors.New(`missing column "tank_name" (or "tank")`)
	case cols.player < 0:
		return cols, errors.New(`missing column "player_name" (or "player")`)
	case cols.score < 0:
		return cols, errors.New(`missing column "score"`)
	}
	return cols, nil
}

type tankCols struct {
	name int
	tier int
	typ  int
}

func tankColumns(header []string) (tankCols, error) {
	cols := tankCols{
		name: findColumn(header, "name", "tank_name", "tank"),
		tier: findColumn(header, "tier"),
		typ:  findColumn(header, "type", "class"),
	}
	switch {
	case cols.name < 0:
		return cols, errors.New(`missing column "name" (or "tank_name")`)
	case cols.tier < 0:
		return cols, errors.New(`missing column "tier"`)
	case cols.typ < 0:
		return cols, errors.New(`missing column "type"`)
	}
	return cols, nil
}

func findColumn(header []string, aliases ...string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, a := range aliases {
			if h == a {
				return i
			}
		}
	}
	return -1
}

func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

var whenLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseWhen(s string) (time.Time, error) {
	for _, layout := range whenLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad timestamp %q", s)
}

func sortRowErrors(errs []RowError) {
	sort.Slice(errs, func(i, j int) bool { return errs[i].Line < errs[j].Line })
}
