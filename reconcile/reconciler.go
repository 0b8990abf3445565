package reconcile

import (
	"fmt"
	"time"

	"github.com/mbeaudry/homelog/collector"
	"github.com/mbeaudry/homelog/record"
	"github.com/mbeaudry/homelog/storage"
	"go.uber.org/zap"
)

// Reconciler shapes one cycle's merged record into exactly one table row:
// field whitelist against the fixed schema, type coercion and rounding, the
// indoor temperature aggregate, then the utility backfill over older rows.
type Reconciler struct {
	schema *record.Schema
	logger *zap.Logger
}

// New creates a reconciler for the given schema.
func New(schema *record.Schema, logger *zap.Logger) *Reconciler {
	return &Reconciler{schema: schema, logger: logger}
}

// Append produces and appends the cycle's row, then applies the utility
// backfill. Any error here leaves the in-memory table unchanged only for the
// append step; the caller treats a failure as total cycle failure and does
// not persist.
func (r *Reconciler) Append(t *storage.Table, now time.Time, res *collector.Result) (*record.Row, error) {
	fields := make(record.Partial, len(res.Fields))
	for name, v := range res.Fields {
		fields[name] = v
	}

	// The indoor aggregate is the mean of every contributing unrounded
	// per-room and per-sensor sample. Recomputing from the raw inputs here,
	// instead of averaging the adapters' already-rounded partial means,
	// keeps rounding error from compounding.
	if len(res.IndoorTemps) > 0 {
		fields[record.ColIntTemp] = record.Float(mean(res.IndoorTemps))
	}

	row := record.NewRow(now)
	for name, v := range fields {
		col, ok := r.schema.Lookup(name)
		if !ok {
			// Upstream APIs drift; unknown fields never reach the table.
			r.logger.Warn("dropping field not in schema", zap.String("field", name))
			continue
		}
		if v.IsNull() {
			continue
		}
		coerced, err := v.Coerce(col.Kind)
		if err != nil {
			r.logger.Warn("dropping field with incompatible value",
				zap.String("field", name), zap.Error(err))
			continue
		}
		row.Set(name, coerced)
	}

	if err := t.Append(row); err != nil {
		return nil, fmt.Errorf("failed to append row: %w", err)
	}

	if len(res.Energy) > 0 {
		changed := t.Backfill(record.ColKwhHydro, res.Energy)
		r.logger.Info("utility backfill applied",
			zap.Int("hours_in_map", len(res.Energy)),
			zap.Int("rows_changed", changed))
	}

	return row, nil
}

func mean(samples []float64) float64 {
	sum := 0.0
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}
