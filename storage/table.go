package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mbeaudry/homelog/record"
	"go.uber.org/zap"
)

// Table is the persisted, append-only, time-indexed record of all readings.
// It is loaded fully into memory at the start of each cycle and rewritten in
// full after the cycle; the scheduler guarantees a single writer.
type Table struct {
	schema *record.Schema
	path   string
	rows   []*record.Row
	logger *zap.Logger
}

// Load reads the backing CSV file into memory. A missing or empty file yields
// an empty table with the current schema. A file written by an older build
// with fewer columns is accepted; its rows read as null for the new columns.
func Load(path string, schema *record.Schema, logger *zap.Logger) (*Table, error) {
	t := &Table{schema: schema, path: path, logger: logger}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("table file absent, starting empty", zap.String("path", path))
			return t, nil
		}
		return nil, fmt.Errorf("failed to open table %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", path, err)
	}
	if len(records) == 0 {
		return t, nil
	}

	header := records[0]
	// Map file columns onto the current schema. Columns the schema no longer
	// knows are dropped with a warning; schema columns missing from the file
	// read as null.
	fileCols := make([]record.Column, len(header))
	known := make([]bool, len(header))
	for i, name := range header {
		col, ok := schema.Lookup(name)
		if !ok {
			logger.Warn("dropping unknown table column", zap.String("column", name))
			continue
		}
		fileCols[i] = col
		known[i] = true
	}

	for lineNo, rec := range records[1:] {
		row, err := decodeRow(rec, fileCols, known)
		if err != nil {
			return nil, fmt.Errorf("table %s line %d: %w", path, lineNo+2, err)
		}
		if n := len(t.rows); n > 0 && !row.Timestamp.After(t.rows[n-1].Timestamp) {
			logger.Warn("table rows out of timestamp order",
				zap.Time("previous", t.rows[n-1].Timestamp),
				zap.Time("current", row.Timestamp))
		}
		t.rows = append(t.rows, row)
	}

	logger.Info("table loaded",
		zap.String("path", path),
		zap.Int("rows", len(t.rows)),
		zap.Int("columns", schema.Len()))
	return t, nil
}

func decodeRow(rec []string, fileCols []record.Column, known []bool) (*record.Row, error) {
	var row *record.Row
	for i, cell := range rec {
		if i >= len(fileCols) || !known[i] {
			continue
		}
		col := fileCols[i]
		v, err := record.Decode(col.Kind, cell)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		if col.Name == record.ColTimestamp {
			ts, ok := v.Time()
			if !ok {
				return nil, fmt.Errorf("row has no timestamp")
			}
			row = record.NewRow(ts)
			row.Set(col.Name, v)
			continue
		}
		if row == nil {
			return nil, fmt.Errorf("timestamp column must come first")
		}
		row.Set(col.Name, v)
	}
	if row == nil {
		return nil, fmt.Errorf("row has no timestamp")
	}
	return row, nil
}

// Append adds one row. The new timestamp must be strictly greater than the
// current maximum; the table never reorders.
func (t *Table) Append(row *record.Row) error {
	if n := len(t.rows); n > 0 && !row.Timestamp.After(t.rows[n-1].Timestamp) {
		return fmt.Errorf("row timestamp %s not after last row %s",
			row.Timestamp.Format(record.TimeFormat),
			t.rows[n-1].Timestamp.Format(record.TimeFormat))
	}
	t.rows = append(t.rows, row)
	return nil
}

// Backfill overwrites the named column on every row whose day+hour key is
// present in the map with a non-zero reading. Rows outside the map's window
// and hours absent from it are untouched, which also makes the operation
// idempotent. Returns the number of rows changed.
func (t *Table) Backfill(column string, m record.HourlyEnergyMap) int {
	col, ok := t.schema.Lookup(column)
	if !ok {
		t.logger.Warn("backfill target column not in schema", zap.String("column", column))
		return 0
	}
	changed := 0
	for _, row := range t.rows {
		kwh, present := m[record.DayHourOf(row.Timestamp)]
		if !present || kwh == 0 {
			continue
		}
		v := record.Float(record.Round2(kwh))
		if col.Kind == record.KindInt {
			v = record.Int(int64(record.Round2(kwh)))
		}
		prev := row.Get(column)
		if pf, ok := prev.Float(); ok && pf == record.Round2(kwh) {
			continue
		}
		row.Set(column, v)
		changed++
	}
	return changed
}

// Len returns the row count.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns the rows in timestamp order.
func (t *Table) Rows() []*record.Row { return t.rows }

// Last returns the most recent row, or nil for an empty table.
func (t *Table) Last() *record.Row {
	if len(t.rows) == 0 {
		return nil
	}
	return t.rows[len(t.rows)-1]
}

// Path returns the backing file path.
func (t *Table) Path() string { return t.path }

// Save rewrites the backing file in full: temp file in the same directory,
// then atomic rename. A crash mid-save leaves the previous file intact.
func (t *Table) Save() error {
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create table directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(t.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp table file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := csv.NewWriter(tmp)
	if err := w.Write(t.schema.Header()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write table header: %w", err)
	}
	cells := make([]string, t.schema.Len())
	for _, row := range t.rows {
		for i, col := range t.schema.Columns() {
			if col.Name == record.ColTimestamp {
				cells[i] = row.Timestamp.Format(record.TimeFormat)
				continue
			}
			cells[i] = row.Get(col.Name).Encode()
		}
		if err := w.Write(cells); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write table row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp table file: %w", err)
	}
	if err := os.Rename(tmpPath, t.path); err != nil {
		return fmt.Errorf("failed to replace table file: %w", err)
	}

	t.logger.Debug("table saved", zap.String("path", t.path), zap.Int("rows", len(t.rows)))
	return nil
}
