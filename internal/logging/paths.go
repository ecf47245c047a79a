package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeDir returns the treewatch state directory: $TREEWATCH_HOME, else
// ~/.treewatch. Falls back to the temp directory without a home.
func HomeDir() string {
	if home := os.Getenv("TREEWATCH_HOME"); home != "" {
		return home
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".treewatch")
	}
	return filepath.Join(home, ".treewatch")
}

// DefaultLogDir returns the log directory under HomeDir.
func DefaultLogDir() string {
	return filepath.Join(HomeDir(), "logs")
}

// DefaultLogPath returns the debug log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "treewatch.log")
}

// FindLogFile returns explicit if it exists, else the default log file.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("log file not found: %s", explicit)
		}
		return explicit, nil
	}

	path := DefaultLogPath()
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("no log file found; run with --debug first (expected at %s)", path)
	}
	return path, nil
}
