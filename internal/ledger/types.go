// Package ledger is the persistent tank-catalog and score-ledger store. It
// owns schema migrations, the monotonic best-score-wins upsert, catalog
// mutation (add/edit/merge/remove plus alias maintenance), the audit trail,
// read-only snapshot aggregations, and the roster cache used for player-name
// canonicalization.
package ledger

import "time"

// TankType classifies a tank. The catalog accepts exactly four classes.
type TankType string

const (
	TypeLight  TankType = "light"
	TypeMedium TankType = "medium"
	TypeHeavy  TankType = "heavy"
	TypeTD     TankType = "td"
)

// TankTypes lists the valid classes in display order.
var TankTypes = []TankType{TypeLight, TypeMedium, TypeHeavy, TypeTD}

// TankTypeNames returns the valid classes as plain strings, in display
// order, for validation messages.
func TankTypeNames() []string {
	names := make([]string, len(TankTypes))
	for i, t := range TankTypes {
		names[i] = string(t)
	}
	return names
}

// ValidTankType reports whether t is one of the four catalog classes.
func ValidTankType(t TankType) bool {
	switch t {
	case TypeLight, TypeMedium, TypeHeavy, TypeTD:
		return true
	}
	return false
}

// Tier bounds for the catalog.
const (
	MinTier = 1
	MaxTier = 10
)

// DefaultMaxScore caps accepted submission scores unless overridden.
const DefaultMaxScore = 100000

// Tank is one catalog entry. Name is the canonical display spelling and the
// primary key; NameNorm is the case/whitespace-folded unique lookup key.
type Tank struct {
	Name      string
	NameNorm  string
	Tier      int
	Type      TankType
	CreatedAt time.Time
}

// Submission is one player's current best score on one tank. At most one row
// exists per (tank, player_name_norm) pair.
type Submission struct {
	ID             int64
	PlayerNameRaw  string
	PlayerNameNorm string
	TankName       string
	Score          int
	SubmittedBy    string
	CreatedAt      time.Time
}

// TankAlias maps a normalized alternate spelling to a canonical tank name.
type TankAlias struct {
	AliasNorm string
	AliasRaw  string
	TankName  string
	CreatedAt time.Time
}

// Audit actions shared by score and tank change rows.
const (
	ActionAdd    = "add"
	ActionEdit   = "edit"
	ActionDelete = "delete"
	ActionMerge  = "merge"
	ActionRemove = "remove"
)

// ScoreChange is one audit row for a submission mutation. OldScore and
// NewScore are nil when the action has no prior or no resulting value.
type ScoreChange struct {
	ID             int64
	Action         string
	SubmissionID   *int64
	TankName       string
	PlayerNameRaw  string
	PlayerNameNorm string
	OldScore       *int
	NewScore       *int
	Actor          string
	CreatedAt      time.Time
	Details        string
}

// TankChange is one audit row for a catalog mutation.
type TankChange struct {
	ID        int64
	Action    string
	Details   string
	Actor     string
	CreatedAt time.Time
}

// RosterPlayer is one cached clan-roster entry.
type RosterPlayer struct {
	AccountID    int64
	Nickname     string
	NicknameNorm string
	ClanID       int64
	Region       string
	UpdatedAt    time.Time
}

// SyncState is one persisted sync-job status blob keyed by job and region.
type SyncState struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// SubmitRequest carries one score submission. Tank must already be the
// canonical catalog name; free-text input goes through the resolver first.
// A zero At means "now".
type SubmitRequest struct {
	Player      string
	Tank        string
	Score       int
	SubmittedBy string
	At          time.Time
}

// SubmitStatus tags a submission outcome.
type SubmitStatus string

const (
	StatusAdded   SubmitStatus = "added"
	StatusUpdated SubmitStatus = "updated"
	StatusIgnored SubmitStatus = "ignored"
)

// Outcome is the tagged result of one Submit call.
//
//	added:   SubmissionID, NewScore and Current are set.
//	updated: SubmissionID, OldScore, NewScore and Current are set.
//	ignored: SubmissionID and Current (the retained score) are set.
type Outcome struct {
	Status       SubmitStatus
	SubmissionID int64
	OldScore     int
	NewScore     int
	Current      int
}

// BulkOutcome aggregates one SubmitBulk transaction.
type BulkOutcome struct {
	Attempted int
	Added     int
	Updated   int
	Ignored   int
	Rows      []Outcome
}

// DeleteOutcome reports what a DeleteSubmission call did.
type DeleteOutcome struct {
	Tank     string
	Player   string
	OldScore int
	// Reverted is true when the row was restored to a prior score instead
	// of removed; RestoredScore holds that score.
	Reverted      bool
	RestoredScore int
	Removed       bool
}

// Qualification reports how a candidate score compares to the current best
// for a tank without mutating anything. Best is nil when the tank has no
// submissions yet.
type Qualification struct {
	Tank      string
	Score     int
	Best      *int
	Qualifies bool
	// Margin is the distance to the current best: positive when the
	// candidate beats it, negative when it falls short, zero on a tie.
	Margin int
}

// TankInput is one row of a bulk catalog add.
type TankInput struct {
	Name string
	Tier int
	Type TankType
}

// BulkAddReport aggregates one BulkAddTanks transaction. Skipped counts
// rows whose normalized name already exists.
type BulkAddReport struct {
	Attempted int
	Added     int
	Skipped   int
}

// TankUpdate describes an EditTank change; nil fields are left untouched.
type TankUpdate struct {
	Tier   *int
	Type   *TankType
	Rename *string
}

// MergeReport aggregates one MergeTanks transaction.
type MergeReport struct {
	Source        string
	Target        string
	Moved         int
	Upgraded      int
	Dropped       int
	SourceRemoved bool
}

// TankFilter narrows catalog listings and snapshot queries.
type TankFilter struct {
	Tier *int
	Type *TankType
}

// BestRow is one best-per-tank snapshot row. HasScore is false for tanks
// with no submissions; the player and score fields are zero then.
type BestRow struct {
	Tank         string
	Tier         int
	Type         TankType
	SubmissionID int64
	Player       string
	PlayerNorm   string
	Score        int
	HasScore     bool
	At           time.Time
}

// FirstsRow counts how many tanks a player currently holds first place on,
// grouped by normalized player key.
type FirstsRow struct {
	Player     string
	PlayerNorm string
	Firsts     int
}

// CountRow is one grouped submission count (by tank, year, or month).
type CountRow struct {
	Key   string
	Count int
}

// Stats summarizes ledger size for health and stats surfaces.
type Stats struct {
	Tanks       int
	Submissions int
	Players     int
	Aliases     int
}

// PlayerKey is one known (normalized, latest raw) player pair from the
// submission history, used by player-name resolution.
type PlayerKey struct {
	Norm string
	Raw  string
}
