package backup

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func writeSource(t *testing.T, dir string) string {
	t.Helper()
	src := filepath.Join(dir, "telemetry.csv")
	if err := os.WriteFile(src, []byte("timestamp,ext_temp\n2026-01-15 14:05,5.3\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return src
}

func listArchives(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, archivePrefix+"*.zip"))
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	return matches
}

func TestRun_CreatesZipWithTableContent(t *testing.T) {
	base := t.TempDir()
	src := writeSource(t, base)
	dir := filepath.Join(base, "backups")

	r := New(src, dir, 5, time.Hour, zap.NewNop())
	now := time.Date(2026, 1, 15, 14, 5, 0, 0, time.Local)
	if err := r.Run(now); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	archives := listArchives(t, dir)
	if len(archives) != 1 {
		t.Fatalf("Expected 1 archive, got %d", len(archives))
	}

	zr, err := zip.OpenReader(archives[0])
	if err != nil {
		t.Fatalf("OpenReader failed: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 1 || zr.File[0].Name != "telemetry.csv" {
		t.Fatalf("Expected single entry telemetry.csv, got %v", zr.File)
	}
	f, err := zr.File[0].Open()
	if err != nil {
		t.Fatalf("Open entry failed: %v", err)
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "timestamp,ext_temp\n2026-01-15 14:05,5.3\n" {
		t.Errorf("Archive content mismatch: %q", string(data))
	}
}

func TestRun_SkipsWithinInterval(t *testing.T) {
	base := t.TempDir()
	src := writeSource(t, base)
	dir := filepath.Join(base, "backups")

	r := New(src, dir, 5, 24*time.Hour, zap.NewNop())
	now := time.Date(2026, 1, 15, 14, 5, 0, 0, time.Local)
	if err := r.Run(now); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if err := r.Run(now.Add(time.Hour)); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if got := len(listArchives(t, dir)); got != 1 {
		t.Errorf("Expected interval to suppress second archive, got %d", got)
	}
	if err := r.Run(now.Add(25 * time.Hour)); err != nil {
		t.Fatalf("Third run failed: %v", err)
	}
	if got := len(listArchives(t, dir)); got != 2 {
		t.Errorf("Expected second archive after interval elapsed, got %d", got)
	}
}

func TestRun_PrunesOldestBeyondKeep(t *testing.T) {
	base := t.TempDir()
	src := writeSource(t, base)
	dir := filepath.Join(base, "backups")

	r := New(src, dir, 2, time.Hour, zap.NewNop())
	now := time.Date(2026, 1, 15, 0, 5, 0, 0, time.Local)
	for i := 0; i < 4; i++ {
		if err := r.Run(now.Add(time.Duration(i) * 2 * time.Hour)); err != nil {
			t.Fatalf("Run %d failed: %v", i, err)
		}
	}

	archives := listArchives(t, dir)
	if len(archives) != 2 {
		t.Fatalf("Expected 2 archives kept, got %d", len(archives))
	}
	// Lexical order is chronological; the survivors must be the newest two.
	if filepath.Base(archives[0]) != archivePrefix+"20260115-040500.zip" {
		t.Errorf("Unexpected oldest survivor %s", archives[0])
	}
	if filepath.Base(archives[1]) != archivePrefix+"20260115-060500.zip" {
		t.Errorf("Unexpected newest survivor %s", archives[1])
	}
}

func TestRun_MissingSourceFails(t *testing.T) {
	base := t.TempDir()
	r := New(filepath.Join(base, "nope.csv"), filepath.Join(base, "backups"), 2, time.Hour, zap.NewNop())
	if err := r.Run(time.Now()); err == nil {
		t.Error("Expected error for missing source file")
	}
}
