// Package migrations holds the versioned schema migrations: plain SQL files
// embedded by the ledger package and registered Go migrations for the data
// backfills that need normalization logic. Versions interleave; goose
// orders them globally.
package migrations

import "time"

func utcNow() string {
	return time.Now().UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}
