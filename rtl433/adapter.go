// Package rtl433 polls a local RF receiver subprocess for temperature and
// humidity transmissions. The receiver appends one JSON object per detected
// transmission to an output file; the adapter tails that file until every
// expected sensor reported at least once or the cycle timeout elapses.
package rtl433

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mbeaudry/homelog/collector"
	"github.com/mbeaudry/homelog/record"
	"go.uber.org/zap"
)

// SensorConfig describes one expected RF transmitter.
type SensorConfig struct {
	Name    string `yaml:"name"`
	Outdoor bool   `yaml:"outdoor" env-default:"true"`
}

// transmission is one line of the receiver's output file.
type transmission struct {
	Model        string   `json:"model"`
	TemperatureC *float64 `json:"temperature_C"`
	Humidity     *float64 `json:"humidity"`
}

// reading is the latest accepted transmission for one sensor.
type reading struct {
	Temperature float64
	Humidity    *float64
}

// Adapter wraps the receiver process and its output file. One instance lives
// across cycles; it keeps the previous cycle's process handle so a stale
// receiver is torn down before a new one starts.
type Adapter struct {
	newHandle    func() ProcessHandle
	outputFile   string
	sensors      []SensorConfig
	timeout      time.Duration
	pollInterval time.Duration
	logger       *zap.Logger

	handle ProcessHandle // previous cycle's receiver, if any
}

// Options configures the adapter.
type Options struct {
	Command      string
	Args         []string // frequency/protocol arguments
	OutputFile   string
	Sensors      []SensorConfig
	Timeout      time.Duration
	PollInterval time.Duration
	// NewHandle overrides process spawning; tests use it.
	NewHandle func() ProcessHandle
}

// New creates the RF-sensor adapter.
func New(opts Options, logger *zap.Logger) *Adapter {
	newHandle := opts.NewHandle
	if newHandle == nil {
		args := append(append([]string{}, opts.Args...), "-F", "json:"+opts.OutputFile)
		newHandle = func() ProcessHandle {
			return NewExecHandle(opts.Command, args)
		}
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &Adapter{
		newHandle:    newHandle,
		outputFile:   opts.OutputFile,
		sensors:      opts.Sensors,
		timeout:      opts.Timeout,
		pollInterval: poll,
		logger:       logger,
	}
}

// Name implements collector.Source.
func (a *Adapter) Name() string { return "rtl433" }

// Timeout implements collector.Source.
func (a *Adapter) Timeout() time.Duration { return a.timeout }

// Fetch spawns the receiver, tails its output until all expected sensors
// reported or the context expires, and aggregates the readings. The receiver
// and its output file are always torn down before the next cycle reads them,
// even on error.
func (a *Adapter) Fetch(ctx context.Context) (*collector.Result, error) {
	if a.handle != nil && a.handle.IsRunning() {
		a.logger.Warn("stale receiver still running, terminating it")
		if err := a.handle.Terminate(); err != nil {
			return nil, fmt.Errorf("failed to terminate stale receiver: %w", err)
		}
	}
	if err := os.Remove(a.outputFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale output file: %w", err)
	}

	handle := a.newHandle()
	a.handle = handle
	if err := handle.Start(); err != nil {
		return nil, fmt.Errorf("failed to start receiver: %w", err)
	}
	defer func() {
		if err := handle.Terminate(); err != nil {
			a.logger.Error("failed to terminate receiver", zap.Error(err))
		}
	}()

	readings := a.tail(ctx)
	if len(readings) == 0 {
		return nil, fmt.Errorf("no expected sensor reported before timeout")
	}
	if len(readings) < len(a.sensors) {
		a.logger.Warn("only some sensors reported",
			zap.Int("reported", len(readings)),
			zap.Int("expected", len(a.sensors)))
	}

	return a.aggregate(readings), nil
}

// tail polls the output file for new lines until every expected sensor has
// reported at least once or the context is done. Returns whatever arrived.
func (a *Adapter) tail(ctx context.Context) map[string]reading {
	readings := make(map[string]reading)
	expected := make(map[string]bool, len(a.sensors))
	for _, s := range a.sensors {
		expected[s.Name] = true
	}

	var offset int64
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return readings
		case <-ticker.C:
		}

		consumed := a.readNewLines(offset, func(tx transmission) {
			if !expected[tx.Model] || tx.TemperatureC == nil {
				return
			}
			readings[tx.Model] = reading{Temperature: *tx.TemperatureC, Humidity: tx.Humidity}
			a.logger.Debug("sensor reported",
				zap.String("sensor", tx.Model),
				zap.Float64("temperature", *tx.TemperatureC))
		})
		offset += consumed

		if len(readings) == len(a.sensors) {
			return readings
		}
	}
}

// readNewLines parses complete lines past offset and returns how many bytes
// were consumed. A trailing partial line is left for the next poll.
func (a *Adapter) readNewLines(offset int64, emit func(transmission)) int64 {
	f, err := os.Open(a.outputFile)
	if err != nil {
		return 0 // receiver may not have created the file yet
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0
	}
	data, err := io.ReadAll(f)
	if err != nil {
		a.logger.Warn("failed to read receiver output", zap.Error(err))
		return 0
	}

	var consumed int64
	for {
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			break
		}
		line := bytes.TrimSpace(data[:nl])
		data = data[nl+1:]
		consumed += int64(nl + 1)
		if len(line) == 0 {
			continue
		}
		var tx transmission
		if err := json.Unmarshal(line, &tx); err != nil {
			a.logger.Warn("skipping malformed receiver line", zap.Error(err))
			continue
		}
		emit(tx)
	}
	return consumed
}

// aggregate computes the external aggregates: outdoor temperature is the
// minimum across distinct outdoor sensors (the conservative choice when
// redundant transmitters disagree), humidity the mean across every sensor
// reporting it. Indoor sensors contribute unrounded samples for the blended
// indoor aggregate downstream.
func (a *Adapter) aggregate(readings map[string]reading) *collector.Result {
	res := &collector.Result{Fields: record.Partial{
		record.ColExtTemp:     record.Null(),
		record.ColExtHumidity: record.Null(),
	}}

	var (
		minTemp    float64
		haveMin    bool
		humiditySu float64
		humidityN  int
	)
	for _, s := range a.sensors {
		r, ok := readings[s.Name]
		if !ok {
			continue
		}
		if r.Humidity != nil {
			humiditySu += *r.Humidity
			humidityN++
		}
		if s.Outdoor {
			if !haveMin || r.Temperature < minTemp {
				minTemp = r.Temperature
				haveMin = true
			}
		} else {
			res.IndoorTemps = append(res.IndoorTemps, r.Temperature)
		}
	}

	if haveMin {
		res.Fields[record.ColExtTemp] = record.Float(minTemp)
	}
	if humidityN > 0 {
		res.Fields[record.ColExtHumidity] = record.Float(humiditySu / float64(humidityN))
	}
	return res
}
