package matcher

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	twerrors "github.com/Aman-CERP/treewatch/internal/errors"
)

// defaultCacheSize bounds the number of memoized Test results.
const defaultCacheSize = 4096

// Matcher holds compiled ignore patterns. It is immutable after Compile and
// safe for concurrent use.
type Matcher struct {
	patterns        []string // as given, for display
	rules           []string // normalized, lower-cased when case-insensitive
	subtrees        []string // rules ending in "/**" with the suffix removed
	caseInsensitive bool
	cache           *lru.Cache[string, bool]
}

type options struct {
	caseInsensitive bool
	cacheSize       int
}

// Option configures Compile.
type Option func(*options)

// WithCaseInsensitive folds case for both patterns and paths.
func WithCaseInsensitive() Option {
	return func(o *options) { o.caseInsensitive = true }
}

// WithCacheSize sets the number of memoized results. Zero disables the cache.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// Compile validates and compiles patterns in order. It fails on the first
// malformed pattern with an ERR_402_INVALID_PATTERN error.
func Compile(patterns []string, opts ...Option) (*Matcher, error) {
	o := options{cacheSize: defaultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Matcher{
		patterns:        make([]string, 0, len(patterns)),
		rules:           make([]string, 0, len(patterns)),
		caseInsensitive: o.caseInsensitive,
	}

	for _, p := range patterns {
		rule, err := normalizePattern(p)
		if err != nil {
			return nil, err
		}
		if o.caseInsensitive {
			rule = strings.ToLower(rule)
		}
		m.patterns = append(m.patterns, p)
		m.rules = append(m.rules, rule)
		if base, ok := strings.CutSuffix(rule, "/**"); ok && base != "" {
			m.subtrees = append(m.subtrees, base)
		}
	}

	if o.cacheSize > 0 {
		cache, err := lru.New[string, bool](o.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create match cache: %w", err)
		}
		m.cache = cache
	}

	return m, nil
}

// normalizePattern trims and validates a single pattern.
func normalizePattern(p string) (string, error) {
	rule := strings.TrimSpace(p)
	if rule == "" {
		return "", twerrors.InvalidPattern(p, fmt.Errorf("empty pattern"))
	}
	rule = filepath.ToSlash(rule)
	rule = strings.TrimPrefix(rule, "./")
	// Patterns are relative to a root; a leading slash only anchors.
	rule = strings.TrimPrefix(rule, "/")
	if rule == "" {
		return "", twerrors.InvalidPattern(p, fmt.Errorf("pattern matches only the root"))
	}
	if !doublestar.ValidatePattern(rule) {
		return "", twerrors.InvalidPattern(p, doublestar.ErrBadPattern)
	}
	return rule, nil
}

// Test reports whether relPath (relative to its watch root) is ignored.
// The root itself ("." or "") is never ignored.
func (m *Matcher) Test(relPath string) bool {
	p, ok := m.normalizePath(relPath)
	if !ok {
		return false
	}
	if len(m.rules) == 0 {
		return false
	}

	if m.cache != nil {
		if v, hit := m.cache.Get(p); hit {
			return v
		}
	}

	ignored := m.matchAny(p)

	if m.cache != nil {
		m.cache.Add(p, ignored)
	}
	return ignored
}

// TestDir reports whether everything under the directory relDir is ignored,
// which lets a watcher skip it entirely. Only "base/**" rules prune: the
// directory or one of its ancestors must match a base.
func (m *Matcher) TestDir(relDir string) bool {
	p, ok := m.normalizePath(relDir)
	if !ok || len(m.subtrees) == 0 {
		return false
	}
	for {
		for _, base := range m.subtrees {
			if matched, _ := doublestar.Match(base, p); matched {
				return true
			}
		}
		i := strings.LastIndexByte(p, '/')
		if i < 0 {
			return false
		}
		p = p[:i]
	}
}

func (m *Matcher) matchAny(p string) bool {
	for _, rule := range m.rules {
		// Rules were validated in Compile, so Match cannot fail here.
		if matched, _ := doublestar.Match(rule, p); matched {
			return true
		}
	}
	return false
}

// normalizePath converts to forward slashes and cleans the path.
// Returns false for the root itself.
func (m *Matcher) normalizePath(relPath string) (string, bool) {
	p := path.Clean(filepath.ToSlash(relPath))
	p = strings.TrimPrefix(p, "/")
	if p == "." || p == "" {
		return "", false
	}
	if m.caseInsensitive {
		p = strings.ToLower(p)
	}
	return p, true
}

// Patterns returns a copy of the patterns as given to Compile.
func (m *Matcher) Patterns() []string {
	out := make([]string, len(m.patterns))
	copy(out, m.patterns)
	return out
}

// Len returns the number of compiled patterns.
func (m *Matcher) Len() int {
	return len(m.rules)
}

// ReadPatterns reads an ignore file: one pattern per line, blank lines and
// lines starting with # are skipped. A leading \# keeps a literal #.
func ReadPatterns(r io.Reader) ([]string, error) {
	var patterns []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, `\#`) {
			line = line[1:]
		}
		patterns = append(patterns, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ignore patterns: %w", err)
	}
	return patterns, nil
}

// LoadFile reads patterns from an ignore file on disk.
func LoadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ReadPatterns(f)
}
