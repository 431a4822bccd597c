package artifacts

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// GC sweeps the outputs directory on a cron schedule. A disk object is
// removed when it is older than ttl AND its record is gone from the
// database; expired unreferenced records are pruned first so their objects
// qualify in the same pass.
type GC struct {
	store    *Store
	ttl      time.Duration
	schedule string
}

func NewGC(s *Store, ttl time.Duration, schedule string) *GC {
	if schedule == "" {
		schedule = "*/30 * * * *"
	}
	return &GC{store: s, ttl: ttl, schedule: schedule}
}

// Run blocks until ctx is done, firing Sweep whenever the cron expression
// matches the current minute.
func (g *GC) Run(ctx context.Context) {
	gron := gronx.New()
	if !gron.IsValid(g.schedule) {
		slog.Error("gc.bad_schedule", "schedule", g.schedule)
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := gron.IsDue(g.schedule, time.Now())
			if err != nil || !due {
				continue
			}
			if err := g.Sweep(ctx); err != nil {
				slog.Warn("gc.sweep_failed", "error", err)
			}
		}
	}
}

// Sweep runs one collection pass.
func (g *GC) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-g.ttl)

	pruned, err := g.store.db.PruneExpiredFiles(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, id := range pruned {
		if err := os.Remove(g.store.Path(id)); err != nil && !os.IsNotExist(err) {
			slog.Warn("gc.unlink_failed", "file_id", id, "error", err)
		}
	}

	live, err := g.store.db.LiveFileIDs(ctx)
	if err != nil {
		return err
	}

	removed := len(pruned)
	entries, err := os.ReadDir(g.store.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if live[e.Name()] {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(g.store.dir, e.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		slog.Info("gc.swept", "removed", removed, "cutoff", cutoff)
	}
	return nil
}
