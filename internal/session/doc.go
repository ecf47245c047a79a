// Package session composes the watcher, the debouncer and the ignore
// matcher into a running watch.
//
// A Session is built from a Config, which validates every root and compiles
// every ignore pattern before anything is subscribed. Start then runs the
// pipeline:
//
//	HybridWatcher -> Debouncer -> Matcher -> delivery queue -> ReactFunc
//
// The ReactFunc is called from a single goroutine, one settled path at a
// time, in debouncer flush order. Errors it returns (and panics) are
// reported on Handle.Errors and do not end the session. A session ends when
// its Handle is cancelled, its context is cancelled or the watcher reports a
// fatal error such as a removed root.
package session
