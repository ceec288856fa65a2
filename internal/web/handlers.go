package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/blitz-labs/tankrank/internal/ledger"
	"github.com/blitz-labs/tankrank/internal/resolve"
	"github.com/blitz-labs/tankrank/internal/syncjob"
)

// Handler builds the route table. Exposed separately from Serve so tests
// can drive it without a listening socket.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errors.New("read-only API: only GET is served"))
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("no such endpoint"))
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/snapshot", s.handleSnapshot)
	r.Get("/api/champion", s.handleChampion)
	r.Get("/api/top", s.handleTop)
	r.Get("/api/firsts", s.handleFirsts)
	r.Get("/api/stats", s.handleStats)
	r.Get("/api/resolve", s.handleResolve)
	r.Get("/api/sync/status", s.handleSyncStatus)
	return r
}

type snapshotRow struct {
	Tank         string `json:"tank"`
	Tier         int    `json:"tier"`
	Type         string `json:"type"`
	HasScore     bool   `json:"has_score"`
	SubmissionID int64  `json:"submission_id,omitempty"`
	Player       string `json:"player,omitempty"`
	Score        int    `json:"score,omitempty"`
	At           string `json:"at,omitempty"`
}

type snapshotResponse struct {
	GeneratedAt string        `json:"generated_at"`
	Count       int           `json:"count"`
	Rows        []snapshotRow `json:"rows"`
}

type firstsRow struct {
	Player     string `json:"player"`
	PlayerNorm string `json:"player_norm"`
	Firsts     int    `json:"firsts"`
}

type statsResponse struct {
	Tanks       int `json:"tanks"`
	Submissions int `json:"submissions"`
	Players     int `json:"players"`
	Aliases     int `json:"aliases"`
}

type tankView struct {
	Name string `json:"name"`
	Tier int    `json:"tier"`
	Type string `json:"type"`
}

type playerView struct {
	Display    string `json:"display"`
	Norm       string `json:"norm"`
	FromRoster bool   `json:"from_roster"`
}

type resolveResponse struct {
	Kind   string      `json:"kind"`
	Input  string      `json:"input"`
	Tank   *tankView   `json:"tank,omitempty"`
	Player *playerView `json:"player,omitempty"`
}

type candidateView struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

type errorResponse struct {
	Error      string          `json:"error"`
	Candidates []candidateView `json:"candidates,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	filter, err := tankFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rows, err := s.store.BestPerBucket(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := snapshotResponse{
		GeneratedAt: ledger.FormatTime(time.Now().UTC()),
		Count:       len(rows),
		Rows:        make([]snapshotRow, 0, len(rows)),
	}
	for _, row := range rows {
		resp.Rows = append(resp.Rows, viewRow(row))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChampion(w http.ResponseWriter, r *http.Request) {
	filter, err := tankFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	best, err := s.store.Champion(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewRow(*best))
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	tierStr := r.URL.Query().Get("tier")
	if tierStr == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing tier parameter"))
		return
	}
	tier, err := strconv.Atoi(tierStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad tier %q", tierStr))
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rows, err := s.store.TopByTier(r.Context(), tier, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]snapshotRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, viewRow(row))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFirsts(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rows, err := s.store.MostFirsts(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]firstsRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, firstsRow{Player: row.Player, PlayerNorm: row.PlayerNorm, Firsts: row.Firsts})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Tanks:       st.Tanks,
		Submissions: st.Submissions,
		Players:     st.Players,
		Aliases:     st.Aliases,
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing q parameter"))
		return
	}
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = "tank"
	}

	switch kind {
	case "tank":
		tank, err := s.res.ResolveTank(r.Context(), q)
		if err != nil {
			s.resolveFail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resolveResponse{
			Kind:  kind,
			Input: q,
			Tank:  &tankView{Name: tank.Name, Tier: tank.Tier, Type: string(tank.Type)},
		})
	case "player":
		p, err := s.res.ResolvePlayer(r.Context(), q)
		if err != nil {
			s.resolveFail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resolveResponse{
			Kind:   kind,
			Input:  q,
			Player: &playerView{Display: p.Display, Norm: p.Norm, FromRoster: p.FromRoster},
		})
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown kind %q", kind))
	}
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if s.syncStatus != nil {
		writeJSON(w, http.StatusOK, s.syncStatus.Snapshot())
		return
	}
	// No live runner in this process; report the outcomes past runs
	// persisted in the store.
	states, err := s.store.AllSyncStates(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syncjob.PersistedSnapshot(states))
}

// resolveFail reports failed resolutions as 404 with the near misses
// attached; anything else goes through the standard mapping.
func (s *Server) resolveFail(w http.ResponseWriter, r *http.Request, err error) {
	var nm *resolve.NoMatchError
	if errors.As(err, &nm) {
		resp := errorResponse{Error: nm.Error()}
		for _, c := range nm.Candidates {
			resp.Candidates = append(resp.Candidates, candidateView{Name: c.Name, Score: c.Score})
		}
		writeJSON(w, http.StatusNotFound, resp)
		return
	}
	s.fail(w, r, err)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err)
}

// errStatus maps the ledger error taxonomy onto HTTP statuses.
func errStatus(err error) int {
	var nf *ledger.NotFoundError
	var ve *ledger.ValidationError
	switch {
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrBusy):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func viewRow(row ledger.BestRow) snapshotRow {
	out := snapshotRow{
		Tank:     row.Tank,
		Tier:     row.Tier,
		Type:     string(row.Type),
		HasScore: row.HasScore,
	}
	if row.HasScore {
		out.SubmissionID = row.SubmissionID
		out.Player = row.Player
		out.Score = row.Score
		out.At = ledger.FormatTime(row.At)
	}
	return out
}

func tankFilter(r *http.Request) (ledger.TankFilter, error) {
	var f ledger.TankFilter
	if v := r.URL.Query().Get("tier"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("bad tier %q", v)
		}
		f.Tier = &n
	}
	if v := r.URL.Query().Get("type"); v != "" {
		t := ledger.TankType(strings.ToLower(v))
		if !ledger.ValidTankType(t) {
			return f, fmt.Errorf("bad type %q", v)
		}
		f.Type = &t
	}
	return f, nil
}

func limitParam(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad limit %q", v)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
