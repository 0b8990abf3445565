// Package backup zips the table file into a rotation directory after
// successful cycles.
package backup

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const archivePrefix = "homelog-"

// Rotator copies and compresses the source file periodically and prunes old
// archives. Run is called after every successful cycle; it only acts when
// the configured interval has elapsed.
type Rotator struct {
	source   string
	dir      string
	keep     int
	interval time.Duration
	last     time.Time
	logger   *zap.Logger
}

// New creates a rotator for the given source file.
func New(source, dir string, keep int, interval time.Duration, logger *zap.Logger) *Rotator {
	return &Rotator{source: source, dir: dir, keep: keep, interval: interval, logger: logger}
}

// Run archives the source if the interval elapsed since the last archive.
// Failures are logged and returned but the caller treats them as
// housekeeping noise, not cycle failure.
func (r *Rotator) Run(now time.Time) error {
	if !r.last.IsZero() && now.Sub(r.last) < r.interval {
		return nil
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := archivePrefix + now.Format("20060102-150405") + ".zip"
	path := filepath.Join(r.dir, name)
	if err := r.archive(path); err != nil {
		return err
	}
	r.last = now

	pruned, err := r.prune()
	if err != nil {
		return err
	}
	r.logger.Info("table backed up",
		zap.String("archive", path),
		zap.Int("pruned", pruned))
	return nil
}

func (r *Rotator) archive(path string) error {
	src, err := os.Open(r.source)
	if err != nil {
		return fmt.Errorf("failed to open table for backup: %w", err)
	}
	defer src.Close()

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	entry, err := zw.Create(filepath.Base(r.source))
	if err != nil {
		return fmt.Errorf("failed to create archive entry: %w", err)
	}
	if _, err := io.Copy(entry, src); err != nil {
		return fmt.Errorf("failed to write archive entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

// prune deletes the oldest archives beyond the keep count. Archive names
// embed the timestamp, so lexical order is chronological.
func (r *Rotator) prune() (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list backup directory: %w", err)
	}
	var archives []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), archivePrefix) && strings.HasSuffix(e.Name(), ".zip") {
			archives = append(archives, e.Name())
		}
	}
	if len(archives) <= r.keep {
		return 0, nil
	}
	sort.Strings(archives)

	pruned := 0
	for _, name := range archives[:len(archives)-r.keep] {
		if err := os.Remove(filepath.Join(r.dir, name)); err != nil {
			r.logger.Warn("failed to prune old archive",
				zap.String("archive", name), zap.Error(err))
			continue
		}
		pruned++
	}
	return pruned, nil
}
