// Package source reads spreadsheet sources into one unified, typed table
// stamped with per-row provenance.
package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"loan-pipeline/internal/domain"
)

// DefaultPatterns are the file patterns matched in directory mode when the
// caller gives none.
var DefaultPatterns = []string{"*.xlsx", "*.xlsm", "*.csv"}

// defaultWorkers bounds how many source files are parsed at once.
const defaultWorkers = 4

// Loader is the SourceLoader. It is stateless and safe for concurrent use.
type Loader struct {
	logger  *slog.Logger
	now     func() time.Time
	workers int
}

// Option configures a Loader.
type Option func(*Loader)

// WithClock overrides the clock used for ingestion timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Loader) { l.now = now }
}

// WithWorkers sets how many files are parsed concurrently.
func WithWorkers(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.workers = n
		}
	}
}

// NewLoader creates a new Loader.
func NewLoader(logger *slog.Logger, opts ...Option) *Loader {
	l := &Loader{logger: logger, now: time.Now, workers: defaultWorkers}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// sheet is one parsed source before unification.
type sheet struct {
	file   domain.SourceFile
	header []string
	rows   [][]string
	readAt time.Time
}

// Load reads the sources selected by spec and returns the unified table and
// the files it was built from, in discovery order.
//
// Directory mode takes precedence when both spec.Dir and spec.Path are set.
func (l *Loader) Load(ctx context.Context, spec domain.SourceSpec) (*domain.Table, []domain.SourceFile, error) {
	paths, err := l.resolve(spec)
	if err != nil {
		return nil, nil, err
	}

	sheets := make([]sheet, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			header, rows, err := readFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", filepath.Base(path), err)
			}
			sheets[i] = sheet{
				file:   domain.SourceFile{Name: filepath.Base(path), Path: path, Rows: len(rows)},
				header: header,
				rows:   rows,
				readAt: l.now(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	files := make([]domain.SourceFile, len(sheets))
	for i, s := range sheets {
		files[i] = s.file
		l.logger.Info("source file loaded", "file", s.file.Name, "rows", s.file.Rows, "columns", len(s.header))
	}

	table := unify(sheets)
	l.logger.Info("sources unified", "files", len(files), "rows", table.NumRows(), "columns", len(table.Columns))
	return table, files, nil
}

// resolve turns a SourceSpec into the ordered list of files to read.
func (l *Loader) resolve(spec domain.SourceSpec) ([]string, error) {
	switch {
	case spec.Dir != "":
		if spec.Path != "" {
			l.logger.Warn("both a source file and a source directory were given; using the directory",
				"source", spec.Path, "source_dir", spec.Dir)
		}
		return discover(spec.Dir, spec.Pattern)
	case spec.Path != "":
		info, err := os.Stat(spec.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, domain.ErrSourceNotFound("source file not found: %s", spec.Path)
			}
			return nil, fmt.Errorf("stat source file: %w", err)
		}
		if info.IsDir() {
			return nil, domain.ErrInvalidConfiguration("source %s is a directory; use a source directory instead", spec.Path)
		}
		return []string{spec.Path}, nil
	default:
		return nil, domain.ErrInvalidConfiguration("either a source file or a source directory must be specified")
	}
}

// discover lists the files in dir matching pattern (or DefaultPatterns),
// sorted by name within each pattern and deduplicated across patterns.
func discover(dir, pattern string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrSourceNotFound("source directory not found: %s", dir)
		}
		return nil, fmt.Errorf("stat source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, domain.ErrInvalidConfiguration("source directory %s is not a directory", dir)
	}

	patterns := DefaultPatterns
	if pattern != "" {
		patterns = []string{pattern}
	}

	seen := make(map[string]bool)
	var out []string
	for _, p := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, p))
		if err != nil {
			return nil, domain.ErrInvalidConfiguration("invalid source pattern %q: %v", p, err)
		}
		for _, m := range matches {
			if seen[m] || isLockFile(m) {
				continue
			}
			if fi, err := os.Stat(m); err != nil || fi.IsDir() {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}

	if len(out) == 0 {
		return nil, domain.ErrSourceNotFound("no source files found in %s with pattern %s", dir, strings.Join(patterns, ", "))
	}
	return out, nil
}

// isLockFile reports whether path is an office lock file such as "~$loans.xlsx".
func isLockFile(path string) bool {
	return strings.HasPrefix(filepath.Base(path), "~$")
}
