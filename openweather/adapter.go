// Package openweather takes one current-conditions snapshot per cycle from
// the public weather API.
package openweather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mbeaudry/homelog/collector"
	"github.com/mbeaudry/homelog/record"
	"go.uber.org/zap"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.openweathermap.org/data/3.0/onecall"

type currentResponse struct {
	Current struct {
		Dt         int64   `json:"dt"`
		Sunrise    int64   `json:"sunrise"`
		Sunset     int64   `json:"sunset"`
		Temp       float64 `json:"temp"`
		FeelsLike  float64 `json:"feels_like"`
		Pressure   float64 `json:"pressure"`
		Humidity   float64 `json:"humidity"`
		UVI        float64 `json:"uvi"`
		Clouds     float64 `json:"clouds"`
		Visibility float64 `json:"visibility"`
		WindSpeed  float64 `json:"wind_speed"`
		WindGust   float64 `json:"wind_gust"`
		WindDeg    float64 `json:"wind_deg"`
		Rain       struct {
			OneHour float64 `json:"1h"`
		} `json:"rain"`
		Snow struct {
			OneHour float64 `json:"1h"`
		} `json:"snow"`
		Weather []struct {
			Description string `json:"description"`
			Icon        string `json:"icon"`
		} `json:"weather"`
	} `json:"current"`
}

// Adapter wraps the single authenticated GET.
type Adapter struct {
	client  *http.Client
	baseURL string
	apiKey  string
	lat     float64
	lon     float64
	units   string
	lang    string
	timeout time.Duration
	logger  *zap.Logger
}

// Options configures the weather adapter.
type Options struct {
	BaseURL string
	APIKey  string
	Lat     float64
	Lon     float64
	Units   string
	Lang    string
	Timeout time.Duration
}

// New creates the weather adapter.
func New(opts Options, logger *zap.Logger) *Adapter {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{
		client:  &http.Client{Timeout: opts.Timeout},
		baseURL: baseURL,
		apiKey:  opts.APIKey,
		lat:     opts.Lat,
		lon:     opts.Lon,
		units:   opts.Units,
		lang:    opts.Lang,
		timeout: opts.Timeout,
		logger:  logger,
	}
}

// Name implements collector.Source.
func (a *Adapter) Name() string { return "openweather" }

// Timeout implements collector.Source.
func (a *Adapter) Timeout() time.Duration { return a.timeout }

// Fetch pulls the current-conditions snapshot and normalizes it into the
// open_* fields. Floats keep 2 decimals; counts and angles become ints;
// precipitation defaults to 0 when the API omits it.
func (a *Adapter) Fetch(ctx context.Context) (*collector.Result, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.4f", a.lat))
	q.Set("lon", fmt.Sprintf("%.4f", a.lon))
	q.Set("appid", a.apiKey)
	q.Set("units", a.units)
	q.Set("lang", a.lang)
	q.Set("exclude", "minutely,hourly,daily,alerts")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create weather request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("weather API returned status %d: %s", resp.StatusCode, string(body))
	}

	var data currentResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}

	cur := data.Current
	fields := record.Partial{
		"open_temp":       record.Float(record.Round2(cur.Temp)),
		"open_feels_like": record.Float(record.Round2(cur.FeelsLike)),
		"open_humidity":   record.Int(int64(cur.Humidity)),
		"open_pressure":   record.Int(int64(cur.Pressure)),
		"open_clouds":     record.Int(int64(cur.Clouds)),
		"open_visibility": record.Int(int64(cur.Visibility)),
		"open_wind_speed": record.Float(record.Round2(cur.WindSpeed)),
		"open_wind_gust":  record.Float(record.Round2(cur.WindGust)),
		"open_wind_deg":   record.Int(int64(cur.WindDeg)),
		"open_rain":       record.Float(record.Round2(cur.Rain.OneHour)),
		"open_snow":       record.Float(record.Round2(cur.Snow.OneHour)),
		"open_uvi":        record.Float(record.Round2(cur.UVI)),
		"open_weather":    record.Null(),
		"open_icon":       record.Null(),
		"open_sunrise":    record.Null(),
		"open_sunset":     record.Null(),
	}
	if len(cur.Weather) > 0 {
		fields["open_weather"] = record.String(cur.Weather[0].Description)
		fields["open_icon"] = record.String(cur.Weather[0].Icon)
	}
	if cur.Sunrise > 0 {
		fields["open_sunrise"] = record.Time(time.Unix(cur.Sunrise, 0))
	}
	if cur.Sunset > 0 {
		fields["open_sunset"] = record.Time(time.Unix(cur.Sunset, 0))
	}

	a.logger.Info("weather snapshot fetched",
		zap.Float64("temp", cur.Temp),
		zap.Float64("humidity", cur.Humidity))
	return &collector.Result{Fields: fields}, nil
}
