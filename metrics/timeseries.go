// Package metrics mirrors each appended table row to a Prometheus
// remote_write endpoint, so the hourly history is graphable next to the
// household's other dashboards.
package metrics

import (
	"sort"
	"time"

	"github.com/mbeaudry/homelog/record"
	"github.com/prometheus/prometheus/prompb"
)

// Reading is one numeric sample extracted from a table row.
type Reading struct {
	Timestamp time.Time
	Name      string
	Value     float64
}

// FlattenRow converts a row's numeric cells into metric readings. String and
// time cells have no metric representation and are skipped; null cells
// produce no sample at all, so gaps stay gaps.
func FlattenRow(schema *record.Schema, row *record.Row, prefix string) []Reading {
	var readings []Reading
	for _, col := range schema.Columns() {
		if col.Name == record.ColTimestamp {
			continue
		}
		f, ok := row.Get(col.Name).Float()
		if !ok {
			continue
		}
		readings = append(readings, Reading{
			Timestamp: row.Timestamp,
			Name:      prefix + col.Name,
			Value:     f,
		})
	}
	return readings
}

// BuildTimeSeries groups readings by metric name into remote_write series,
// samples in timestamp order.
func BuildTimeSeries(readings []Reading) []prompb.TimeSeries {
	grouped := make(map[string][]prompb.Sample)
	for _, r := range readings {
		grouped[r.Name] = append(grouped[r.Name], prompb.Sample{
			Value:     r.Value,
			Timestamp: r.Timestamp.UnixMilli(),
		})
	}

	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)

	series := make([]prompb.TimeSeries, 0, len(grouped))
	for _, name := range names {
		samples := grouped[name]
		sort.Slice(samples, func(i, j int) bool { return samples[i].Timestamp < samples[j].Timestamp })
		series = append(series, prompb.TimeSeries{
			Labels:  []prompb.Label{{Name: "__name__", Value: name}},
			Samples: samples,
		})
	}
	return series
}
