// Package watcher turns file system activity under a set of roots into
// settled per-path changes.
//
// The package implements a hybrid watching strategy:
//   - Primary: fsnotify watches on every non-skipped directory
//   - Fallback: afero snapshot polling where fsnotify is unavailable
//     (network mounts, exhausted inotify limits, Docker volumes)
//
// HybridWatcher reports RawEvents to a Sink. A Debouncer collapses bursts of
// events on the same path into one PendingChange once the path has been
// quiet for the debounce window.
//
// Usage:
//
//	roots, err := watcher.ValidateRoots([]string{"."})
//	if err != nil {
//	    return err
//	}
//
//	d := watcher.NewDebouncer(300*time.Millisecond, func(batch []watcher.PendingChange) {
//	    for _, c := range batch {
//	        fmt.Println(c.Path)
//	    }
//	})
//	defer d.Stop()
//
//	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	if err := w.Start(ctx, roots, sink); err != nil {
//	    return err
//	}
package watcher
