package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/time/rate"

	twerrors "github.com/Aman-CERP/treewatch/internal/errors"
	"github.com/Aman-CERP/treewatch/internal/matcher"
	"github.com/Aman-CERP/treewatch/internal/telemetry"
	"github.com/Aman-CERP/treewatch/internal/watcher"
)

// ErrAlreadyStarted is returned when Start is called twice on one Session.
var ErrAlreadyStarted = errors.New("session already started")

// Session is a validated watch configuration. It is started once.
type Session struct {
	roots   []string // longest first
	matcher *matcher.Matcher
	opts    watcher.Options
	limit   rate.Limit
	logger  *slog.Logger
	stats   *telemetry.Stats
	started atomic.Bool
}

// New validates cfg: roots first, then ignore patterns. The first failure is
// returned and nothing is subscribed.
func New(cfg Config) (*Session, error) {
	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}
	if cfg.RescanInterval < 0 {
		return nil, twerrors.ValidationError(fmt.Sprintf("rescan interval must not be negative, got %s", cfg.RescanInterval), nil)
	}
	opts := cfg.Options.WithDefaults()

	roots, err := watcher.ValidateRootsFs(opts.Fs, cfg.Roots)
	if err != nil {
		return nil, err
	}
	sort.Slice(roots, func(i, j int) bool { return len(roots[i]) > len(roots[j]) })

	patterns := append([]string(nil), cfg.Ignore...)
	for _, file := range cfg.IgnoreFiles {
		loaded, err := matcher.LoadFile(file)
		if err != nil {
			return nil, twerrors.ConfigError("cannot read ignore file "+file, err)
		}
		patterns = append(patterns, loaded...)
	}

	var mopts []matcher.Option
	if cfg.CaseInsensitive {
		mopts = append(mopts, matcher.WithCaseInsensitive())
	}
	m, err := matcher.Compile(patterns, mopts...)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = opts.Logger
	}
	opts.Logger = logger

	// Directories whose whole subtree is ignored are not watched.
	userSkip := cfg.Options.SkipDir
	opts.SkipDir = func(rel string) bool {
		if userSkip != nil && userSkip(rel) {
			return true
		}
		return m.TestDir(rel)
	}

	interval := cfg.RescanInterval
	if interval == 0 {
		interval = DefaultRescanInterval
	}

	stats := cfg.Stats
	if stats == nil {
		stats = telemetry.NewStats()
	}

	return &Session{
		roots:   roots,
		matcher: m,
		opts:    opts,
		limit:   rate.Every(interval),
		logger:  logger,
		stats:   stats,
	}, nil
}

// Watch is New followed by Start.
func Watch(ctx context.Context, cfg Config, fn ReactFunc) (*Handle, error) {
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return s.Start(ctx, fn)
}

// Start subscribes to the roots and begins delivering settled changes to fn.
// The session runs until the Handle is cancelled, ctx is cancelled or a
// fatal watcher error occurs.
func (s *Session) Start(ctx context.Context, fn ReactFunc) (*Handle, error) {
	if fn == nil {
		return nil, twerrors.ValidationError("react function must not be nil", nil)
	}
	if !s.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}

	w, err := watcher.NewHybridWatcher(s.opts)
	if err != nil {
		return nil, err
	}

	h := newHandle(s, w)
	h.start(fn)

	if err := w.Start(ctx, s.roots, (*watcherSink)(h)); err != nil {
		h.abort(err)
		return nil, err
	}
	h.stopOnDone(ctx)

	s.logger.Info("watch started",
		slog.Any("roots", s.roots),
		slog.Int("ignore_patterns", s.matcher.Len()),
		slog.String("backend", w.Backend()),
		slog.Duration("debounce", s.opts.DebounceWindow))

	return h, nil
}

// Roots returns the validated roots.
func (s *Session) Roots() []string {
	out := make([]string, len(s.roots))
	copy(out, s.roots)
	sort.Strings(out)
	return out
}

// Ignored reports whether the absolute path is ignored. Paths outside every
// root are reported as ignored.
func (s *Session) Ignored(path string) bool {
	rel, ok := s.relative(path)
	if !ok {
		return true
	}
	return s.matcher.Test(rel)
}

// Stats returns the session counters.
func (s *Session) Stats() *telemetry.Stats {
	return s.stats
}

// relative returns path relative to the innermost root containing it.
func (s *Session) relative(path string) (string, bool) {
	for _, root := range s.roots {
		if path == root {
			return ".", true
		}
		prefix := root
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if strings.HasPrefix(path, prefix) {
			return filepath.ToSlash(path[len(prefix):]), true
		}
	}
	return "", false
}
