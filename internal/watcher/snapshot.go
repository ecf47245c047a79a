package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

type fileSnapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// snapshot maps absolute paths to their last observed state. Roots
// themselves are not included.
type snapshot map[string]fileSnapshot

// takeSnapshot walks root and records every entry not under a skipped
// directory. Unreadable entries below the root are skipped; an unreadable
// root is an error.
func takeSnapshot(ctx context.Context, fsys afero.Fs, root string, skipDir func(rel string) bool) (snapshot, error) {
	snap := make(snapshot)

	err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if info.IsDir() && skipDir(rel) {
			return filepath.SkipDir
		}

		snap[path] = fileSnapshot{
			modTime: info.ModTime(),
			size:    info.Size(),
			isDir:   info.IsDir(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// snapshotRoots snapshots every root in parallel and merges the results.
func snapshotRoots(ctx context.Context, fsys afero.Fs, roots []string, skipDir func(rel string) bool) (snapshot, error) {
	parts := make([]snapshot, len(roots))

	g, gctx := errgroup.WithContext(ctx)
	for i, root := range roots {
		g.Go(func() error {
			s, err := takeSnapshot(gctx, fsys, root, skipDir)
			parts[i] = s
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(snapshot)
	for _, part := range parts {
		for path, fs := range part {
			merged[path] = fs
		}
	}
	return merged, nil
}

// diff compares two snapshots. New paths are creates, changed files are
// modifies and vanished paths are deletes; directories never produce
// modifies since their mtime only reflects child changes. Events are
// returned sorted by path and stamped with now.
func diff(prev, cur snapshot, now time.Time) []RawEvent {
	var events []RawEvent

	for path, fs := range cur {
		old, existed := prev[path]
		switch {
		case !existed:
			events = append(events, RawEvent{Path: path, Op: OpCreate, IsDir: fs.isDir, Timestamp: now})
		case old.isDir != fs.isDir:
			// Replaced by a different kind of entry.
			events = append(events, RawEvent{Path: path, Op: OpModify, IsDir: fs.isDir, Timestamp: now})
		case !fs.isDir && (!old.modTime.Equal(fs.modTime) || old.size != fs.size):
			events = append(events, RawEvent{Path: path, Op: OpModify, Timestamp: now})
		}
	}

	for path, fs := range prev {
		if _, ok := cur[path]; !ok {
			events = append(events, RawEvent{Path: path, Op: OpDelete, IsDir: fs.isDir, Timestamp: now})
		}
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	return events
}

// recent returns files in snap modified at or after since, as modify events
// stamped with their modification time, sorted by path.
func recent(snap snapshot, since time.Time) []RawEvent {
	var events []RawEvent
	for path, fs := range snap {
		if fs.isDir || fs.modTime.Before(since) {
			continue
		}
		events = append(events, RawEvent{Path: path, Op: OpModify, Timestamp: fs.modTime})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	return events
}
