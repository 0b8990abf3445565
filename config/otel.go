package config

import (
	"fmt"
	"os"
)

// OpenTelemetryConfig contains OpenTelemetry configuration.
type OpenTelemetryConfig struct {
	Enabled        bool              `yaml:"enabled" env:"OTEL_ENABLED" env-default:"false"`
	ServiceName    string            `yaml:"serviceName" env:"OTEL_SERVICE_NAME" env-default:"homelog"`
	ServiceVersion string            `yaml:"serviceVersion" env:"OTEL_SERVICE_VERSION" env-default:"1.0.0"`
	Environment    string            `yaml:"environment" env:"OTEL_ENVIRONMENT" env-default:"production"`
	Endpoint       string            `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Traces         OTelTracesConfig  `yaml:"traces"`
	Metrics        OTelMetricsConfig `yaml:"metrics"`
}

// OTelTracesConfig contains trace exporter configuration.
type OTelTracesConfig struct {
	Enabled       bool    `yaml:"enabled" env:"OTEL_TRACES_ENABLED" env-default:"true"`
	Endpoint      string  `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
	SamplingRatio float64 `yaml:"samplingRatio" env:"OTEL_TRACES_SAMPLING_RATIO" env-default:"1.0"`
}

// OTelMetricsConfig contains metric exporter configuration.
type OTelMetricsConfig struct {
	Enabled              bool   `yaml:"enabled" env:"OTEL_METRICS_ENABLED" env-default:"true"`
	Endpoint             string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"`
	IntervalMillis       int    `yaml:"intervalMillis" env:"OTEL_METRICS_INTERVAL" env-default:"30000"`
	EnableRuntimeMetrics bool   `yaml:"enableRuntimeMetrics" env:"OTEL_ENABLE_RUNTIME_METRICS" env-default:"true"`
}

// ValidateOpenTelemetry validates OpenTelemetry configuration if enabled.
func ValidateOpenTelemetry(cfg *OpenTelemetryConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.ServiceName == "" {
		return fmt.Errorf("opentelemetry service name is required when OpenTelemetry is enabled")
	}
	if cfg.Traces.Enabled {
		if cfg.Traces.Endpoint == "" && cfg.Endpoint == "" &&
			os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT") == "" &&
			os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
			return fmt.Errorf("opentelemetry traces endpoint is required when traces are enabled")
		}
		if cfg.Traces.SamplingRatio < 0 || cfg.Traces.SamplingRatio > 1 {
			return fmt.Errorf("opentelemetry traces sampling ratio must be between 0 and 1, got: %f", cfg.Traces.SamplingRatio)
		}
	}
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Endpoint == "" && cfg.Endpoint == "" &&
			os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT") == "" &&
			os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
			return fmt.Errorf("opentelemetry metrics endpoint is required when metrics are enabled")
		}
		if cfg.Metrics.IntervalMillis < 1000 {
			return fmt.Errorf("opentelemetry metrics interval must be at least 1000ms")
		}
	}
	return nil
}
