package openweather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

const sampleJSON = `{
    "lat": 45.5088,
    "lon": -73.5617,
    "timezone": "America/Toronto",
    "current": {
        "dt": 1768500300,
        "sunrise": 1768480200,
        "sunset": 1768512600,
        "temp": -2.107,
        "feels_like": -7.341,
        "pressure": 1017,
        "humidity": 74,
        "uvi": 0.61,
        "clouds": 90,
        "visibility": 10000,
        "wind_speed": 5.66,
        "wind_gust": 9.83,
        "wind_deg": 250,
        "snow": {"1h": 0.42},
        "weather": [
            {"id": 600, "main": "Snow", "description": "light snow", "icon": "13d"}
        ]
    }
}`

func newTestAdapter(url string) *Adapter {
	return New(Options{
		BaseURL: url,
		APIKey:  "test-key",
		Lat:     45.5088,
		Lon:     -73.5617,
		Units:   "metric",
		Lang:    "en",
		Timeout: 5 * time.Second,
	}, zap.NewNop())
}

func TestFetch_Success(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleJSON))
	}))
	defer server.Close()

	res, err := newTestAdapter(server.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if f, _ := res.Fields["open_temp"].Float(); f != -2.11 {
		t.Errorf("Expected open_temp rounded to -2.11, got %f", f)
	}
	if f, _ := res.Fields["open_feels_like"].Float(); f != -7.34 {
		t.Errorf("Expected open_feels_like -7.34, got %f", f)
	}
	if i, _ := res.Fields["open_humidity"].Int(); i != 74 {
		t.Errorf("Expected open_humidity 74, got %d", i)
	}
	if i, _ := res.Fields["open_wind_deg"].Int(); i != 250 {
		t.Errorf("Expected open_wind_deg 250, got %d", i)
	}
	if f, _ := res.Fields["open_rain"].Float(); f != 0 {
		t.Errorf("Expected omitted rain to default to 0, got %f", f)
	}
	if f, _ := res.Fields["open_snow"].Float(); f != 0.42 {
		t.Errorf("Expected open_snow 0.42, got %f", f)
	}
	if s, _ := res.Fields["open_weather"].Str(); s != "light snow" {
		t.Errorf("Expected open_weather %q, got %q", "light snow", s)
	}
	if s, _ := res.Fields["open_icon"].Str(); s != "13d" {
		t.Errorf("Expected open_icon %q, got %q", "13d", s)
	}
	sunrise, ok := res.Fields["open_sunrise"].Time()
	if !ok || sunrise.Unix() != 1768480200 {
		t.Errorf("Expected sunrise 1768480200, got %v (ok=%v)", sunrise, ok)
	}

	for _, param := range []string{"lat=45.5088", "appid=test-key", "units=metric", "exclude="} {
		if !strings.Contains(gotQuery, param) {
			t.Errorf("Expected query to contain %q, got %q", param, gotQuery)
		}
	}
}

func TestFetch_MissingWeatherArrayIsNull(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"current":{"temp":1.0,"humidity":50}}`))
	}))
	defer server.Close()

	res, err := newTestAdapter(server.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !res.Fields["open_weather"].IsNull() {
		t.Error("Expected open_weather null when weather array is absent")
	}
	if !res.Fields["open_sunrise"].IsNull() {
		t.Error("Expected open_sunrise null when sunrise is absent")
	}
}

func TestFetch_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"cod":401,"message":"Invalid API key"}`))
	}))
	defer server.Close()

	if _, err := newTestAdapter(server.URL).Fetch(context.Background()); err == nil {
		t.Error("Expected error for HTTP 401")
	}
}

func TestFetch_BadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	if _, err := newTestAdapter(server.URL).Fetch(context.Background()); err == nil {
		t.Error("Expected error for malformed response body")
	}
}
