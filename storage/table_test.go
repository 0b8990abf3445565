package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mbeaudry/homelog/record"
	"go.uber.org/zap"
)

func testSchema(t *testing.T) *record.Schema {
	t.Helper()
	schema, err := record.Build([]string{"salon"})
	if err != nil {
		t.Fatalf("Failed to build schema: %v", err)
	}
	return schema
}

func TestLoad_MissingFileYieldsEmptyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.csv")
	table, err := Load(path, testSchema(t), zap.NewNop())
	if err != nil {
		t.Fatalf("Expected empty table for missing file, got error: %v", err)
	}
	if table.Len() != 0 {
		t.Errorf("Expected 0 rows, got %d", table.Len())
	}
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	schema := testSchema(t)
	path := filepath.Join(t.TempDir(), "telemetry.csv")

	table, err := Load(path, schema, zap.NewNop())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	ts := time.Date(2026, 1, 15, 14, 5, 0, 0, time.Local)
	row := record.NewRow(ts)
	row.Set("ext_temp", record.Float(5.3))
	row.Set("ext_humidity", record.Int(62))
	row.Set("open_weather", record.String("light snow"))
	if err := table.Append(row); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := table.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path, schema, zap.NewNop())
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if loaded.Len() != 1 {
		t.Fatalf("Expected 1 row after reload, got %d", loaded.Len())
	}
	got := loaded.Last()
	if !got.Timestamp.Equal(ts) {
		t.Errorf("Timestamp mismatch: %v vs %v", got.Timestamp, ts)
	}
	if f, _ := got.Get("ext_temp").Float(); f != 5.3 {
		t.Errorf("Expected ext_temp 5.3, got %f", f)
	}
	if i, _ := got.Get("ext_humidity").Int(); i != 62 {
		t.Errorf("Expected ext_humidity 62, got %d", i)
	}
	if s, _ := got.Get("open_weather").Str(); s != "light snow" {
		t.Errorf("Expected open_weather %q, got %q", "light snow", s)
	}
	if !got.Get("int_temp").IsNull() {
		t.Error("Expected unset int_temp to read as null")
	}
}

func TestLoad_OlderFileWithFewerColumns(t *testing.T) {
	schema := testSchema(t)
	path := filepath.Join(t.TempDir(), "telemetry.csv")

	// File written by an older build that only knew three columns.
	old := strings.Join([]string{
		"timestamp,ext_temp,ext_humidity",
		"2026-01-15 13:05,4.8,70",
	}, "\n") + "\n"
	if err := os.WriteFile(path, []byte(old), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	table, err := Load(path, schema, zap.NewNop())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("Expected 1 row, got %d", table.Len())
	}
	row := table.Last()
	if f, _ := row.Get("ext_temp").Float(); f != 4.8 {
		t.Errorf("Expected ext_temp 4.8, got %f", f)
	}
	if !row.Get("int_temp").IsNull() {
		t.Error("Expected missing column to read as null")
	}

	// Saving upgrades the file to the full column set.
	if err := table.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	header := strings.SplitN(string(data), "\n", 2)[0]
	if len(strings.Split(header, ",")) != schema.Len() {
		t.Errorf("Expected %d header columns after save, got %q", schema.Len(), header)
	}
}

func TestLoad_UnknownColumnDropped(t *testing.T) {
	schema := testSchema(t)
	path := filepath.Join(t.TempDir(), "telemetry.csv")

	old := strings.Join([]string{
		"timestamp,ext_temp,legacy_column",
		"2026-01-15 13:05,4.8,junk",
	}, "\n") + "\n"
	if err := os.WriteFile(path, []byte(old), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	table, err := Load(path, schema, zap.NewNop())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("Expected 1 row, got %d", table.Len())
	}
	if f, _ := table.Last().Get("ext_temp").Float(); f != 4.8 {
		t.Errorf("Expected ext_temp 4.8, got %f", f)
	}
}

func TestAppend_RejectsNonIncreasingTimestamp(t *testing.T) {
	schema := testSchema(t)
	table, err := Load(filepath.Join(t.TempDir(), "t.csv"), schema, zap.NewNop())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	ts := time.Date(2026, 1, 15, 14, 5, 0, 0, time.Local)
	if err := table.Append(record.NewRow(ts)); err != nil {
		t.Fatalf("First append failed: %v", err)
	}
	if err := table.Append(record.NewRow(ts)); err == nil {
		t.Error("Expected error appending equal timestamp")
	}
	if err := table.Append(record.NewRow(ts.Add(-time.Hour))); err == nil {
		t.Error("Expected error appending earlier timestamp")
	}
	if err := table.Append(record.NewRow(ts.Add(time.Hour))); err != nil {
		t.Errorf("Expected later timestamp to append, got %v", err)
	}
}

func TestBackfill_FillsAndSkipsZero(t *testing.T) {
	schema := testSchema(t)
	table, err := Load(filepath.Join(t.TempDir(), "t.csv"), schema, zap.NewNop())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	t13 := time.Date(2026, 1, 15, 13, 5, 0, 0, time.Local)
	t14 := t13.Add(time.Hour)
	t15 := t13.Add(2 * time.Hour)
	for _, ts := range []time.Time{t13, t14, t15} {
		if err := table.Append(record.NewRow(ts)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	// t14 already holds a value that a zero reading must not erase.
	table.Rows()[1].Set(record.ColKwhHydro, record.Float(1.4))

	m := record.HourlyEnergyMap{
		record.DayHourOf(t13): 1.234,
		record.DayHourOf(t14): 0, // meter reported nothing yet
	}
	changed := table.Backfill(record.ColKwhHydro, m)
	if changed != 1 {
		t.Errorf("Expected 1 row changed, got %d", changed)
	}
	if f, _ := table.Rows()[0].Get(record.ColKwhHydro).Float(); f != 1.23 {
		t.Errorf("Expected backfilled 1.23, got %f", f)
	}
	if f, _ := table.Rows()[1].Get(record.ColKwhHydro).Float(); f != 1.4 {
		t.Errorf("Expected zero reading to leave 1.4 intact, got %f", f)
	}
	if !table.Rows()[2].Get(record.ColKwhHydro).IsNull() {
		t.Error("Expected hour absent from map to stay null")
	}
}

func TestBackfill_Idempotent(t *testing.T) {
	schema := testSchema(t)
	table, err := Load(filepath.Join(t.TempDir(), "t.csv"), schema, zap.NewNop())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	ts := time.Date(2026, 1, 15, 13, 5, 0, 0, time.Local)
	if err := table.Append(record.NewRow(ts)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	m := record.HourlyEnergyMap{record.DayHourOf(ts): 1.5}
	if changed := table.Backfill(record.ColKwhHydro, m); changed != 1 {
		t.Fatalf("Expected first backfill to change 1 row, got %d", changed)
	}
	if changed := table.Backfill(record.ColKwhHydro, m); changed != 0 {
		t.Errorf("Expected second backfill to change nothing, got %d", changed)
	}
}

func TestBackfill_UnknownColumn(t *testing.T) {
	schema := testSchema(t)
	table, err := Load(filepath.Join(t.TempDir(), "t.csv"), schema, zap.NewNop())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if changed := table.Backfill("no_such_column", record.HourlyEnergyMap{}); changed != 0 {
		t.Errorf("Expected 0 changed rows for unknown column, got %d", changed)
	}
}
