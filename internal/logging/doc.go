// Package logging sets up slog for treewatch.
//
// Without --debug the CLI logs human-readable text to stderr at the
// configured level; stdout stays reserved for changed paths. With --debug
// every record is also written as JSON to a size-rotated file under
// ~/.treewatch/logs/.
package logging
