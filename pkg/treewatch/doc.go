// Package treewatch watches directory trees and reports settled changes.
//
// A watch is set up in two steps. Watch validates the roots and compiles
// the ignore patterns; nothing is subscribed yet, so a bad root or pattern
// fails here with no side effects. OnChange then starts the session:
//
//	w, err := treewatch.Watch([]string{"./src"}, []string{"**/*.tmp", "build/**"})
//	if err != nil {
//	    return err
//	}
//	h, err := w.OnChange(ctx, func(ctx context.Context, path string) error {
//	    return rebuild(ctx, path)
//	})
//	if err != nil {
//	    return err
//	}
//	defer h.Cancel()
//
// Bursts of events on one path are coalesced into a single call once the
// path has been quiet for the debounce window (300ms by default). The
// callback receives absolute paths, one call at a time, oldest change
// first. Errors returned by the callback are reported on Handle.Errors and
// the watch continues.
//
// # Glob syntax
//
// Patterns are matched against paths relative to their root with '/' as the
// separator: '*' and '?' stay within one path segment, '**' spans segments,
// '[abc]' and '{a,b}' are supported. A path is ignored only when it matches
// a pattern itself; use "vendor/**" to hide everything below vendor.
package treewatch
