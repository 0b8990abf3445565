// Package pipeline wires one collection cycle end to end: load the table,
// collect from all sources, reconcile one row, persist, then the best-effort
// extras (metrics, chart, backup).
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mbeaudry/homelog/buffer"
	"github.com/mbeaudry/homelog/collector"
	"github.com/mbeaudry/homelog/metrics"
	"github.com/mbeaudry/homelog/reconcile"
	"github.com/mbeaudry/homelog/record"
	"github.com/mbeaudry/homelog/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ChartRenderer regenerates the chart from the table.
type ChartRenderer interface {
	Render(t *storage.Table) error
}

// BackupRotator archives the table file when due.
type BackupRotator interface {
	Run(now time.Time) error
}

// Pipeline owns one cycle's control flow. The scheduler guarantees no two
// cycles overlap, so the table needs no locking of its own.
type Pipeline struct {
	schema       *record.Schema
	tablePath    string
	collector    *collector.Collector
	reconciler   *reconcile.Reconciler
	metricBuffer *buffer.Ring[metrics.Reading] // nil when the pusher is disabled
	metricPrefix string
	chart        ChartRenderer // nil when chart output is disabled
	backup       BackupRotator // nil when backups are disabled
	logger       *zap.Logger
	now          func() time.Time

	mu          sync.Mutex
	lastSuccess time.Time
	rowCount    int
}

// Options configures the pipeline.
type Options struct {
	Schema       *record.Schema
	TablePath    string
	Collector    *collector.Collector
	Reconciler   *reconcile.Reconciler
	MetricBuffer *buffer.Ring[metrics.Reading]
	MetricPrefix string
	Chart        ChartRenderer
	Backup       BackupRotator
}

// New creates the pipeline.
func New(opts Options, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		schema:       opts.Schema,
		tablePath:    opts.TablePath,
		collector:    opts.Collector,
		reconciler:   opts.Reconciler,
		metricBuffer: opts.MetricBuffer,
		metricPrefix: opts.MetricPrefix,
		chart:        opts.Chart,
		backup:       opts.Backup,
		logger:       logger,
		now:          time.Now,
	}
}

// Run executes one cycle. Source failures are absorbed upstream by the
// collector; errors returned here mean the cycle as a whole produced nothing
// durable and the scheduler surfaces them to the operator.
func (p *Pipeline) Run(ctx context.Context) error {
	tracer := otel.Tracer("pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.cycle")
	defer span.End()

	start := p.now()
	p.logger.Info("cycle started", zap.Time("at", start))

	table, err := storage.Load(p.tablePath, p.schema, p.logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "table load failed")
		return fmt.Errorf("table load failed: %w", err)
	}

	merged, outcomes, err := p.collector.Collect(ctx)
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		p.logger.Info("source contributed",
			zap.String("source", o.Source),
			zap.Int("fields", o.Fields),
			zap.Duration("elapsed", o.Elapsed))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "collection failed")
		return fmt.Errorf("collection failed: %w", err)
	}

	row, err := p.reconciler.Append(table, start, merged)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconcile failed")
		return fmt.Errorf("reconcile failed: %w", err)
	}

	if err := table.Save(); err != nil {
		// Fatal for this cycle only; the next cycle rebuilds from sources.
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return fmt.Errorf("persist failed: %w", err)
	}

	p.mu.Lock()
	p.lastSuccess = p.now()
	p.rowCount = table.Len()
	p.mu.Unlock()

	p.logger.Info("cycle completed",
		zap.Int("rows", table.Len()),
		zap.Int("fields", merged.Fields.NonNull()),
		zap.Duration("elapsed", p.now().Sub(start)))
	span.SetAttributes(
		attribute.Int("pipeline.rows", table.Len()),
		attribute.Int("pipeline.merged_fields", merged.Fields.NonNull()),
	)
	span.SetStatus(codes.Ok, "cycle completed")

	p.afterCycle(table, row)
	return nil
}

// afterCycle runs the opportunistic steps. None of them can fail the cycle:
// the row is already durable.
func (p *Pipeline) afterCycle(table *storage.Table, row *record.Row) {
	if p.metricBuffer != nil {
		for _, r := range metrics.FlattenRow(p.schema, row, p.metricPrefix) {
			p.metricBuffer.Add(r)
		}
	}
	if p.chart != nil {
		if err := p.chart.Render(table); err != nil {
			p.logger.Error("chart regeneration failed", zap.Error(err))
		}
	}
	if p.backup != nil {
		if err := p.backup.Run(p.now()); err != nil {
			p.logger.Error("backup failed", zap.Error(err))
		}
	}
}

// Status reports the last successful cycle and current row count, for the
// health endpoint.
func (p *Pipeline) Status() (lastSuccess time.Time, rows int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSuccess, p.rowCount
}
