package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mbeaudry/homelog/record"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ErrEmptyCycle is returned when every source failed and the merged record
// carries no value at all.
var ErrEmptyCycle = errors.New("all sources failed, merged record is empty")

// Result is one source's contribution to a cycle, or the merged union of all
// of them. Beyond the named fields it carries the side channels the
// reconciler needs: the unrounded indoor temperature samples and the utility
// energy map.
type Result struct {
	Fields      record.Partial
	IndoorTemps []float64
	Energy      record.HourlyEnergyMap
}

// Source is the uniform adapter contract. Fetch must honor the context and
// clean up anything it spawned before returning; a failure is reported, not
// propagated past the collector.
type Source interface {
	Name() string
	Timeout() time.Duration
	Fetch(ctx context.Context) (*Result, error)
}

// Outcome records how one source fared during a cycle, for logging and the
// per-source failure accounting.
type Outcome struct {
	Source  string
	Fields  int
	Err     error
	Elapsed time.Duration
}

// Collector fans out to all sources concurrently and merges their output.
// Sources are merged in the order they were registered; that fixed precedence
// makes the merged record independent of completion order.
type Collector struct {
	sources []Source
	logger  *zap.Logger
}

// New creates a collector over the given sources, highest precedence first.
func New(sources []Source, logger *zap.Logger) *Collector {
	return &Collector{sources: sources, logger: logger}
}

// Collect runs every source in its own goroutine under its own timeout,
// joins them all, and merges the successful contributions. An individual
// source error or panic contributes nothing; the cycle fails only when the
// merged record is entirely empty.
func (c *Collector) Collect(ctx context.Context) (*Result, []Outcome, error) {
	tracer := otel.Tracer("collector")
	ctx, span := tracer.Start(ctx, "collector.Collect")
	defer span.End()

	results := make([]*Result, len(c.sources))
	outcomes := make([]Outcome, len(c.sources))

	var wg sync.WaitGroup
	for i, src := range c.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			start := time.Now()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = Outcome{
						Source:  src.Name(),
						Err:     fmt.Errorf("source panicked: %v", r),
						Elapsed: time.Since(start),
					}
				}
			}()

			sctx, cancel := context.WithTimeout(ctx, src.Timeout())
			defer cancel()

			res, err := src.Fetch(sctx)
			outcome := Outcome{Source: src.Name(), Err: err, Elapsed: time.Since(start)}
			if err == nil && res != nil {
				results[i] = res
				outcome.Fields = res.Fields.NonNull()
			}
			outcomes[i] = outcome
		}(i, src)
	}
	wg.Wait()

	merged := &Result{Fields: record.Partial{}}
	for i, res := range results {
		if res == nil {
			c.logger.Error("source contributed nothing this cycle",
				zap.String("source", c.sources[i].Name()),
				zap.Duration("elapsed", outcomes[i].Elapsed),
				zap.Error(outcomes[i].Err))
			continue
		}
		merged.Fields.Adopt(res.Fields)
		merged.IndoorTemps = append(merged.IndoorTemps, res.IndoorTemps...)
		if merged.Energy == nil && res.Energy != nil {
			merged.Energy = res.Energy
		}
	}

	span.SetAttributes(
		attribute.Int("collector.sources", len(c.sources)),
		attribute.Int("collector.merged_fields", merged.Fields.NonNull()),
	)

	if merged.Fields.NonNull() == 0 && len(merged.IndoorTemps) == 0 && len(merged.Energy) == 0 {
		span.SetStatus(codes.Error, "empty cycle")
		return nil, outcomes, ErrEmptyCycle
	}

	span.SetStatus(codes.Ok, "cycle collected")
	return merged, outcomes, nil
}
