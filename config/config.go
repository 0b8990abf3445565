// Package config loads and validates the service configuration from a YAML
// file with environment variable overrides.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mbeaudry/homelog/rtl433"
	"go.uber.org/zap"
)

// Config holds all configuration for the collection service.
type Config struct {
	// Rooms is the fixed room list the table schema is built from.
	Rooms []string `yaml:"rooms"`

	Storage  StorageConfig  `yaml:"storage"`
	Schedule ScheduleConfig `yaml:"schedule"`

	RTL433      RTL433Config      `yaml:"rtl433"`
	HydroQuebec HydroQuebecConfig `yaml:"hydroQuebec"`
	Neviweb     NeviwebConfig     `yaml:"neviweb"`
	OpenWeather OpenWeatherConfig `yaml:"openWeather"`

	Prometheus PrometheusConfig `yaml:"prometheus"`
	Backup     BackupConfig     `yaml:"backup"`
	Alerts     AlertConfig      `yaml:"alerts"`

	HealthCheckPort int `yaml:"healthCheckPort" env:"HEALTH_CHECK_PORT" env-default:"8080"`

	Logging       LoggingConfig       `yaml:"logging"`
	OpenTelemetry OpenTelemetryConfig `yaml:"opentelemetry"`
	Profiling     ProfilingConfig     `yaml:"profiling"`
}

// StorageConfig locates the persisted table and chart.
type StorageConfig struct {
	TablePath string `yaml:"tablePath" env:"TABLE_PATH" env-default:"data/telemetry.csv"`
	ChartPath string `yaml:"chartPath" env:"CHART_PATH" env-default:"data/telemetry.png"`
}

// ScheduleConfig sets the hourly trigger.
type ScheduleConfig struct {
	Minute int `yaml:"minute" env:"SCHEDULE_MINUTE" env-default:"5"`
}

// RTL433Config configures the RF receiver adapter.
type RTL433Config struct {
	Enabled        bool                  `yaml:"enabled" env:"RTL433_ENABLED" env-default:"false"`
	Command        string                `yaml:"command" env:"RTL433_COMMAND" env-default:"rtl_433"`
	Args           []string              `yaml:"args"`
	OutputFile     string                `yaml:"outputFile" env:"RTL433_OUTPUT_FILE" env-default:"data/rtl433.jsonl"`
	Sensors        []rtl433.SensorConfig `yaml:"sensors"`
	TimeoutSeconds int                   `yaml:"timeoutSeconds" env:"RTL433_TIMEOUT_SECONDS" env-default:"120"`
	PollMillis     int                   `yaml:"pollMillis" env:"RTL433_POLL_MILLIS" env-default:"500"`
}

// HydroQuebecConfig configures the utility portal adapter.
type HydroQuebecConfig struct {
	Enabled        bool   `yaml:"enabled" env:"HQ_ENABLED" env-default:"false"`
	BaseURL        string `yaml:"baseUrl" env:"HQ_BASE_URL" env-default:"https://session.hydroquebec.com"`
	Username       string `yaml:"username" env:"HQ_USERNAME"`
	Password       string `yaml:"password" env:"HQ_PASSWORD"`
	WindowWeeks    int    `yaml:"windowWeeks" env:"HQ_WINDOW_WEEKS" env-default:"2"`
	TimeoutSeconds int    `yaml:"timeoutSeconds" env:"HQ_TIMEOUT_SECONDS" env-default:"120"`
}

// NeviwebConfig configures the device cloud adapter.
type NeviwebConfig struct {
	Enabled        bool   `yaml:"enabled" env:"NEVIWEB_ENABLED" env-default:"false"`
	BaseURL        string `yaml:"baseUrl" env:"NEVIWEB_BASE_URL" env-default:"https://neviweb.com/api"`
	Username       string `yaml:"username" env:"NEVIWEB_USERNAME"`
	Password       string `yaml:"password" env:"NEVIWEB_PASSWORD"`
	NetworkName    string `yaml:"networkName" env:"NEVIWEB_NETWORK_NAME"`
	TimeoutSeconds int    `yaml:"timeoutSeconds" env:"NEVIWEB_TIMEOUT_SECONDS" env-default:"120"`
}

// OpenWeatherConfig configures the weather adapter.
type OpenWeatherConfig struct {
	Enabled        bool    `yaml:"enabled" env:"OPENWEATHER_ENABLED" env-default:"false"`
	BaseURL        string  `yaml:"baseUrl" env:"OPENWEATHER_BASE_URL"`
	APIKey         string  `yaml:"apiKey" env:"OPENWEATHER_API_KEY"`
	Lat            float64 `yaml:"lat" env:"OPENWEATHER_LAT"`
	Lon            float64 `yaml:"lon" env:"OPENWEATHER_LON"`
	Units          string  `yaml:"units" env:"OPENWEATHER_UNITS" env-default:"metric"`
	Lang           string  `yaml:"lang" env:"OPENWEATHER_LANG" env-default:"en"`
	TimeoutSeconds int     `yaml:"timeoutSeconds" env:"OPENWEATHER_TIMEOUT_SECONDS" env-default:"30"`
}

// PrometheusConfig configures the optional remote_write sink.
type PrometheusConfig struct {
	Enabled             bool   `yaml:"enabled" env:"PROMETHEUS_ENABLED" env-default:"false"`
	URL                 string `yaml:"url" env:"PROMETHEUS_URL"`
	Username            string `yaml:"username" env:"PROMETHEUS_USERNAME"`
	Password            string `yaml:"password" env:"PROMETHEUS_PASSWORD"`
	PushIntervalSeconds int    `yaml:"pushIntervalSeconds" env:"PUSH_INTERVAL_SECONDS" env-default:"60"`
	BufferSize          int    `yaml:"bufferSize" env:"BUFFER_SIZE" env-default:"1000"`
	MetricPrefix        string `yaml:"metricPrefix" env:"METRIC_PREFIX" env-default:"homelog_"`
}

// BackupConfig configures table archiving.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled" env:"BACKUP_ENABLED" env-default:"true"`
	Dir           string `yaml:"dir" env:"BACKUP_DIR" env-default:"data/backups"`
	Keep          int    `yaml:"keep" env:"BACKUP_KEEP" env-default:"10"`
	IntervalHours int    `yaml:"intervalHours" env:"BACKUP_INTERVAL_HOURS" env-default:"24"`
}

// AlertConfig configures operator alerting.
type AlertConfig struct {
	WebhookURL string `yaml:"webhookUrl" env:"ALERT_WEBHOOK_URL"`
}

// Load reads configuration from the given path and applies environment
// variable overrides.
func Load(configPath string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks that all configuration parameters are usable.
func (c *Config) Validate() error {
	if len(c.Rooms) == 0 {
		return fmt.Errorf("at least one room must be configured")
	}
	if !c.RTL433.Enabled && !c.HydroQuebec.Enabled && !c.Neviweb.Enabled && !c.OpenWeather.Enabled {
		return fmt.Errorf("at least one source must be enabled")
	}

	if c.Schedule.Minute < 0 || c.Schedule.Minute > 59 {
		return fmt.Errorf("schedule minute must be between 0 and 59, got %d", c.Schedule.Minute)
	}
	if strings.TrimSpace(c.Storage.TablePath) == "" {
		return fmt.Errorf("storage tablePath cannot be empty")
	}
	if c.HealthCheckPort <= 0 || c.HealthCheckPort > 65535 {
		return fmt.Errorf("healthCheckPort must be between 1 and 65535, got %d", c.HealthCheckPort)
	}

	if c.RTL433.Enabled {
		if len(c.RTL433.Sensors) == 0 {
			return fmt.Errorf("rtl433 enabled but no sensors configured")
		}
		if c.RTL433.TimeoutSeconds <= 0 {
			return fmt.Errorf("rtl433 timeoutSeconds must be positive")
		}
	}
	if c.HydroQuebec.Enabled {
		if c.HydroQuebec.Username == "" || c.HydroQuebec.Password == "" {
			return fmt.Errorf("hydroQuebec enabled but username/password not configured")
		}
		if c.HydroQuebec.WindowWeeks <= 0 {
			return fmt.Errorf("hydroQuebec windowWeeks must be positive")
		}
	}
	if c.Neviweb.Enabled {
		if c.Neviweb.Username == "" || c.Neviweb.Password == "" {
			return fmt.Errorf("neviweb enabled but username/password not configured")
		}
	}
	if c.OpenWeather.Enabled {
		if c.OpenWeather.APIKey == "" {
			return fmt.Errorf("openWeather enabled but apiKey not configured")
		}
	}

	if c.Prometheus.Enabled {
		if _, err := url.ParseRequestURI(c.Prometheus.URL); err != nil {
			return fmt.Errorf("invalid prometheus url: %w", err)
		}
		if c.Prometheus.PushIntervalSeconds <= 0 {
			return fmt.Errorf("prometheus pushIntervalSeconds must be positive")
		}
		if c.Prometheus.BufferSize <= 0 {
			return fmt.Errorf("prometheus bufferSize must be positive")
		}
	}
	if c.Backup.Enabled {
		if c.Backup.Keep <= 0 {
			return fmt.Errorf("backup keep must be positive")
		}
		if c.Backup.IntervalHours <= 0 {
			return fmt.Errorf("backup intervalHours must be positive")
		}
	}

	if err := ValidateLogging(&c.Logging); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}
	if err := ValidateOpenTelemetry(&c.OpenTelemetry); err != nil {
		return fmt.Errorf("opentelemetry validation failed: %w", err)
	}
	if err := ValidateProfiling(&c.Profiling); err != nil {
		return fmt.Errorf("profiling validation failed: %w", err)
	}
	return nil
}

// NewLogger creates a zap logger based on the configuration.
func (c *Config) NewLogger() (*zap.Logger, error) {
	return NewLogger(&c.Logging)
}

// Timeout returns the RF adapter cycle timeout.
func (c *RTL433Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollInterval returns the output file poll interval.
func (c *RTL433Config) PollInterval() time.Duration {
	return time.Duration(c.PollMillis) * time.Millisecond
}

// Timeout returns the utility adapter cycle timeout.
func (c *HydroQuebecConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Window returns the trailing span the CSV download covers.
func (c *HydroQuebecConfig) Window() time.Duration {
	return time.Duration(c.WindowWeeks) * 7 * 24 * time.Hour
}

// Timeout returns the device cloud adapter cycle timeout.
func (c *NeviwebConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the weather adapter cycle timeout.
func (c *OpenWeatherConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Redacted returns a copy of the config safe for logging.
func (c *Config) Redacted() map[string]interface{} {
	return map[string]interface{}{
		"rooms":           c.Rooms,
		"tablePath":       c.Storage.TablePath,
		"chartPath":       c.Storage.ChartPath,
		"scheduleMinute":  c.Schedule.Minute,
		"healthCheckPort": c.HealthCheckPort,
		"rtl433": map[string]interface{}{
			"enabled": c.RTL433.Enabled,
			"command": c.RTL433.Command,
			"sensors": len(c.RTL433.Sensors),
		},
		"hydroQuebec": map[string]interface{}{
			"enabled":     c.HydroQuebec.Enabled,
			"username":    c.HydroQuebec.Username,
			"password":    "***",
			"windowWeeks": c.HydroQuebec.WindowWeeks,
		},
		"neviweb": map[string]interface{}{
			"enabled":     c.Neviweb.Enabled,
			"username":    c.Neviweb.Username,
			"password":    "***",
			"networkName": c.Neviweb.NetworkName,
		},
		"openWeather": map[string]interface{}{
			"enabled":   c.OpenWeather.Enabled,
			"apiKeySet": c.OpenWeather.APIKey != "",
			"units":     c.OpenWeather.Units,
		},
		"prometheus": map[string]interface{}{
			"enabled":             c.Prometheus.Enabled,
			"pushIntervalSeconds": c.Prometheus.PushIntervalSeconds,
		},
		"backup": map[string]interface{}{
			"enabled":       c.Backup.Enabled,
			"keep":          c.Backup.Keep,
			"intervalHours": c.Backup.IntervalHours,
		},
		"alertWebhookSet": c.Alerts.WebhookURL != "",
		"logging": map[string]interface{}{
			"logFormat": c.Logging.Format,
			"logLevel":  c.Logging.Level,
		},
		"opentelemetry": map[string]interface{}{
			"enabled":     c.OpenTelemetry.Enabled,
			"serviceName": c.OpenTelemetry.ServiceName,
		},
		"profiling": map[string]interface{}{
			"enabled": c.Profiling.Enabled,
		},
	}
}
