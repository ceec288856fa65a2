package syncjob

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/blitz-labs/tankrank/internal/ledger"
)

// JobStatus is the last recorded outcome of one sync job for one region.
type JobStatus struct {
	RunID string    `json:"run_id"`
	At    time.Time `json:"at"`
	Count int       `json:"count"`
	Error string    `json:"error,omitempty"`
}

// Status holds in-memory sync run state shared between the job runner and
// the web layer. Construct one per process and inject it; there are no
// package globals.
type Status struct {
	mu      sync.Mutex
	roster  map[string]JobStatus
	catalog map[string]JobStatus
}

func NewStatus() *Status {
	return &Status{
		roster:  make(map[string]JobStatus),
		catalog: make(map[string]JobStatus),
	}
}

func (s *Status) SetRoster(region string, js JobStatus) {
	s.mu.Lock()
	s.roster[region] = js
	s.mu.Unlock()
}

func (s *Status) SetCatalog(region string, js JobStatus) {
	s.mu.Lock()
	s.catalog[region] = js
	s.mu.Unlock()
}

// Snapshot copies the current state for serialization.
type Snapshot struct {
	Roster  map[string]JobStatus `json:"roster"`
	Catalog map[string]JobStatus `json:"catalog"`
}

// PersistedSnapshot rebuilds a Snapshot from the sync_state rows past runs
// wrote to the store, so status survives process restarts. Rows that fail
// to parse are skipped.
func PersistedSnapshot(states []ledger.SyncState) Snapshot {
	snap := Snapshot{
		Roster:  make(map[string]JobStatus),
		Catalog: make(map[string]JobStatus),
	}
	for _, st := range states {
		kind, region, ok := strings.Cut(st.Key, ":")
		if !ok || region == "" {
			continue
		}
		switch kind {
		case "roster":
			var rs rosterState
			if json.Unmarshal([]byte(st.Value), &rs) != nil {
				continue
			}
			snap.Roster[region] = JobStatus{
				RunID: rs.RunID,
				At:    stateTime(rs.At, st.UpdatedAt),
				Count: rs.Players,
				Error: rs.Error,
			}
		case "catalog":
			var cs catalogState
			if json.Unmarshal([]byte(st.Value), &cs) != nil {
				continue
			}
			snap.Catalog[region] = JobStatus{
				RunID: cs.RunID,
				At:    stateTime(cs.At, st.UpdatedAt),
				Count: cs.Added,
				Error: cs.Error,
			}
		}
	}
	return snap
}

func stateTime(at string, fallback time.Time) time.Time {
	if t, err := ledger.ParseTime(at); err == nil {
		return t
	}
	return fallback
}

func (s *Status) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Snapshot{
		Roster:  make(map[string]JobStatus, len(s.roster)),
		Catalog: make(map[string]JobStatus, len(s.catalog)),
	}
	for k, v := range s.roster {
		out.Roster[k] = v
	}
	for k, v := range s.catalog {
		out.Catalog[k] = v
	}
	return out
}
