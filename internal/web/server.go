// Package web serves the read-only JSON view of the ledger: snapshot and
// leaderboard queries, a resolver probe, and sync-job status. All mutation
// stays with the CLI; the server rejects write verbs.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/blitz-labs/tankrank/internal/ledger"
	"github.com/blitz-labs/tankrank/internal/resolve"
	"github.com/blitz-labs/tankrank/internal/syncjob"
)

// Server is the snapshot API server.
type Server struct {
	store      *ledger.Store
	res        *resolve.Resolver
	syncStatus *syncjob.Status
	port       int
	dictPath   string
	log        *slog.Logger
}

// Config holds configuration for the snapshot server.
type Config struct {
	Store    *ledger.Store
	Resolver *resolve.Resolver
	// SyncStatus, when set, backs /api/sync/status with live in-process
	// run state; when nil the handler falls back to the sync_state rows
	// past runs persisted in the store.
	SyncStatus *syncjob.Status
	Port       int
	// DictionaryPath, when set, is watched; the resolver's truncation
	// dictionary reloads whenever the file changes.
	DictionaryPath string
	Logger         *slog.Logger
}

// NewServer creates a new snapshot server instance.
func NewServer(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{
		store:      cfg.Store,
		res:        cfg.Resolver,
		syncStatus: cfg.SyncStatus,
		port:       cfg.Port,
		dictPath:   cfg.DictionaryPath,
		log:        log,
	}
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info("starting snapshot server", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.dictPath != "" {
		eg.Go(func() error {
			return s.watchDictionary(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.log.Debug("shutting down snapshot server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// watchDictionary reloads the resolver's truncation dictionary whenever the
// configured file changes. The parent directory is watched so atomic
// rename-replace saves are seen too.
func (s *Server) watchDictionary(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(s.dictPath)
	if err := watcher.Add(dir); err != nil {
		s.log.Error("failed to watch dictionary directory", "dir", dir, "error", err)
		// Don't fail - continue without watching
		return nil
	}
	target := filepath.Clean(s.dictPath)

	// Debounce timer
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil

		case event := <-watcher.Events:
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != target {
				continue
			}

			// Debounce
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
				if err := s.res.ReloadDictionary(s.dictPath); err != nil {
					s.log.Error("dictionary reload failed", "path", s.dictPath, "error", err)
					return
				}
				s.log.Info("dictionary reloaded", "path", s.dictPath)
			})

		case err := <-watcher.Errors:
			s.log.Error("watcher error", "error", err)
		}
	}
}
