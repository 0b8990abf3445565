package hydroquebec

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mbeaudry/homelog/collector"
	"github.com/mbeaudry/homelog/record"
	"go.uber.org/zap"
)

// Adapter downloads the trailing window of hourly readings and the live
// breakdown for today, merged into one HourlyEnergyMap. The utility reports
// on its own cadence, so the map mostly back-fills hours already in the
// table rather than the current cycle's row.
type Adapter struct {
	session Session
	window  time.Duration
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// New creates the utility adapter. window is the trailing span the CSV
// download covers, typically a couple of weeks.
func New(session Session, window, timeout time.Duration, logger *zap.Logger) *Adapter {
	return &Adapter{
		session: session,
		window:  window,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Name implements collector.Source.
func (a *Adapter) Name() string { return "hydroquebec" }

// Timeout implements collector.Source.
func (a *Adapter) Timeout() time.Duration { return a.timeout }

// Fetch logs in, downloads the hourly CSV for the trailing window, overlays
// the live breakdown for today (it is fresher), and closes the session on
// the way out regardless of outcome.
func (a *Adapter) Fetch(ctx context.Context) (*collector.Result, error) {
	if err := a.session.Login(ctx); err != nil {
		return nil, fmt.Errorf("utility login failed: %w", err)
	}
	defer func() {
		// The portal counts open sessions; close with a fresh context so a
		// cycle timeout does not leak one.
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.session.Close(closeCtx); err != nil {
			a.logger.Warn("failed to close utility session", zap.Error(err))
		}
	}()

	end := a.now()
	start := end.Add(-a.window)

	body, err := a.session.HourlyEnergy(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("hourly CSV download failed: %w", err)
	}
	energy, err := parseHourlyCSV(body, a.logger)
	body.Close()
	if err != nil {
		return nil, fmt.Errorf("hourly CSV parse failed: %w", err)
	}

	today, err := a.session.TodayHourlyConsumption(ctx)
	if err != nil {
		a.logger.Warn("live daily breakdown unavailable, keeping CSV data", zap.Error(err))
	} else if today.Success {
		live := make(record.HourlyEnergyMap, len(today.Hours))
		day := end.Format("2006-01-02")
		for hour, kwh := range today.Hours {
			live[record.DayHour{Day: day, Hour: hour}] = kwh
		}
		energy.Override(live)
	}

	a.logger.Info("utility readings fetched", zap.Int("hours", len(energy)))
	return &collector.Result{
		Fields: record.Partial{record.ColKwhHydro: record.Null()},
		Energy: energy,
	}, nil
}

// parseHourlyCSV reads the portal's semicolon-delimited export: one header
// row, then date;hour;kWh. The portal renders decimals with a comma.
func parseHourlyCSV(r io.Reader, logger *zap.Logger) (record.HourlyEnergyMap, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(rows) == 0 {
		return record.HourlyEnergyMap{}, nil
	}

	energy := make(record.HourlyEnergyMap, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < 3 {
			continue
		}
		day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(row[0]), time.Local)
		if err != nil {
			logger.Warn("skipping CSV row with bad date", zap.String("date", row[0]))
			continue
		}
		hour, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil || hour < 0 || hour > 23 {
			logger.Warn("skipping CSV row with bad hour", zap.String("hour", row[1]))
			continue
		}
		kwh, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(row[2]), ",", "."), 64)
		if err != nil {
			logger.Warn("skipping CSV row with bad reading", zap.String("kwh", row[2]))
			continue
		}
		energy[record.DayHour{Day: day.Format("2006-01-02"), Hour: hour}] = kwh
	}
	return energy, nil
}
