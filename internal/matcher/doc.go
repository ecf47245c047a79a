// Package matcher compiles ignore globs into a predicate over paths relative
// to a watch root.
//
// Pattern syntax is doublestar's:
//   - * matches any run of characters except the separator
//   - ** matches any run including separators (whole path segments)
//   - ? matches one character
//   - [abc], [a-z], [^x] character classes
//   - {a,b} alternation
//
// A path is ignored only when the path itself matches a pattern. A rule of
// the form "base/**" also marks every directory matching base as prunable
// (see TestDir). Malformed patterns fail Compile; nothing is silently
// skipped.
//
// Usage:
//
//	m, err := matcher.Compile([]string{"**/*.tmp", "build/**"})
//	if err != nil {
//	    return err
//	}
//
//	if m.Test("src/cache.tmp") {
//	    // ignored
//	}
//
// Ignore files hold one pattern per line:
//
//	patterns, err := matcher.LoadFile(".treewatchignore")
package matcher
