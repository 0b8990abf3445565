package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

const validConfig = `
rooms:
  - Salon
  - Chambre Principale
openWeather:
  enabled: true
  apiKey: test-key
  lat: 45.5088
  lon: -73.5617
`

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Rooms) != 2 {
		t.Errorf("Expected 2 rooms, got %d", len(cfg.Rooms))
	}
	if !cfg.OpenWeather.Enabled || cfg.OpenWeather.APIKey != "test-key" {
		t.Error("Expected openWeather section populated")
	}
	// Defaults fill the rest.
	if cfg.Schedule.Minute != 5 {
		t.Errorf("Expected default schedule minute 5, got %d", cfg.Schedule.Minute)
	}
	if cfg.Storage.TablePath == "" {
		t.Error("Expected default table path")
	}
	if cfg.HealthCheckPort != 8080 {
		t.Errorf("Expected default health port 8080, got %d", cfg.HealthCheckPort)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("Expected default logging config, got %+v", cfg.Logging)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestValidate_NoSourceEnabled(t *testing.T) {
	_, err := Load(writeConfig(t, "rooms:\n  - Salon\n"))
	if err == nil {
		t.Fatal("Expected error when no source is enabled")
	}
	if !strings.Contains(err.Error(), "at least one source") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestValidate_NoRooms(t *testing.T) {
	cfg := `
rooms: []
openWeather:
  enabled: true
  apiKey: k
`
	if _, err := Load(writeConfig(t, cfg)); err == nil {
		t.Error("Expected error for empty room list")
	}
}

func TestValidate_BadScheduleMinute(t *testing.T) {
	cfg := validConfig + `
schedule:
  minute: 73
`
	if _, err := Load(writeConfig(t, cfg)); err == nil {
		t.Error("Expected error for out-of-range schedule minute")
	}
}

func TestValidate_EnabledSourceNeedsCredentials(t *testing.T) {
	cfg := `
rooms:
  - Salon
hydroQuebec:
  enabled: true
`
	_, err := Load(writeConfig(t, cfg))
	if err == nil {
		t.Fatal("Expected error for utility source without credentials")
	}
	if !strings.Contains(err.Error(), "hydroQuebec") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestValidate_RTL433NeedsSensors(t *testing.T) {
	cfg := `
rooms:
  - Salon
rtl433:
  enabled: true
`
	if _, err := Load(writeConfig(t, cfg)); err == nil {
		t.Error("Expected error for RF source without sensors")
	}
}

func TestValidate_BadPrometheusURL(t *testing.T) {
	cfg := validConfig + `
prometheus:
  enabled: true
  url: "not a url"
`
	if _, err := Load(writeConfig(t, cfg)); err == nil {
		t.Error("Expected error for invalid prometheus url")
	}
}

func TestRedacted_MasksSecrets(t *testing.T) {
	cfg := validConfig + `
hydroQuebec:
  enabled: true
  username: someone@example.com
  password: hunter2
`
	loaded, err := Load(writeConfig(t, cfg))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	red := loaded.Redacted()
	hq := red["hydroQuebec"].(map[string]interface{})
	if hq["password"] != "***" {
		t.Errorf("Expected password masked, got %v", hq["password"])
	}
	ow := red["openWeather"].(map[string]interface{})
	if _, ok := ow["apiKey"]; ok {
		t.Error("Expected raw apiKey absent from redacted output")
	}
}
