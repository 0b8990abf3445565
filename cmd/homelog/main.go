package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mbeaudry/homelog/alert"
	"github.com/mbeaudry/homelog/backup"
	"github.com/mbeaudry/homelog/buffer"
	"github.com/mbeaudry/homelog/chart"
	"github.com/mbeaudry/homelog/collector"
	"github.com/mbeaudry/homelog/config"
	"github.com/mbeaudry/homelog/health"
	"github.com/mbeaudry/homelog/hydroquebec"
	"github.com/mbeaudry/homelog/metrics"
	"github.com/mbeaudry/homelog/neviweb"
	"github.com/mbeaudry/homelog/openweather"
	"github.com/mbeaudry/homelog/pipeline"
	"github.com/mbeaudry/homelog/profiling"
	"github.com/mbeaudry/homelog/reconcile"
	"github.com/mbeaudry/homelog/record"
	"github.com/mbeaudry/homelog/rtl433"
	"github.com/mbeaudry/homelog/scheduler"
	"github.com/mbeaudry/homelog/telemetry"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("c", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		panic("Failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Configuration loaded", zap.String("path", *configPath), zap.Any("config", cfg.Redacted()))

	profiler, err := profiling.Start(&cfg.Profiling, logger)
	if err != nil {
		logger.Fatal("Failed to initialize profiler", zap.Error(err))
	}
	if profiler != nil {
		defer func() {
			if err := profiler.Stop(); err != nil {
				logger.Error("Error shutting down profiler", zap.Error(err))
			}
		}()
	}

	ctx := context.Background()
	otelProviders, err := telemetry.InitProviders(ctx, &cfg.OpenTelemetry, logger)
	if err != nil {
		logger.Fatal("Failed to initialize OpenTelemetry providers", zap.Error(err))
	}
	if otelProviders != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelProviders.Shutdown(shutdownCtx); err != nil {
				logger.Error("Error shutting down OpenTelemetry providers", zap.Error(err))
			}
		}()
	}

	schema, err := record.Build(cfg.Rooms)
	if err != nil {
		logger.Fatal("Failed to build table schema", zap.Error(err))
	}

	sources := buildSources(cfg, logger)
	logger.Info("Sources configured", zap.Int("count", len(sources)))

	var metricBuffer *buffer.Ring[metrics.Reading]
	var pusher *metrics.Pusher
	if cfg.Prometheus.Enabled {
		metricBuffer = buffer.New[metrics.Reading](cfg.Prometheus.BufferSize, logger)
		pusher = metrics.New(metrics.Config{
			URL:             cfg.Prometheus.URL,
			Username:        cfg.Prometheus.Username,
			Password:        cfg.Prometheus.Password,
			PushIntervalSec: cfg.Prometheus.PushIntervalSeconds,
		}, metricBuffer, logger)
	}

	var chartRenderer pipeline.ChartRenderer
	if cfg.Storage.ChartPath != "" {
		chartRenderer = chart.New(cfg.Storage.ChartPath, logger)
	}

	var rotator pipeline.BackupRotator
	if cfg.Backup.Enabled {
		rotator = backup.New(
			cfg.Storage.TablePath,
			cfg.Backup.Dir,
			cfg.Backup.Keep,
			time.Duration(cfg.Backup.IntervalHours)*time.Hour,
			logger,
		)
	}

	pipe := pipeline.New(pipeline.Options{
		Schema:       schema,
		TablePath:    cfg.Storage.TablePath,
		Collector:    collector.New(sources, logger),
		Reconciler:   reconcile.New(schema, logger),
		MetricBuffer: metricBuffer,
		MetricPrefix: cfg.Prometheus.MetricPrefix,
		Chart:        chartRenderer,
		Backup:       rotator,
	}, logger)

	notifier := buildNotifier(cfg, logger)

	healthServer := health.New(pipe, time.Hour, cfg.HealthCheckPort, logger)
	go func() {
		if err := healthServer.Start(); err != nil {
			logger.Error("Health server error", zap.Error(err))
		}
	}()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if pusher != nil {
		go pusher.Start(appCtx)
	}

	sched := scheduler.New(cfg.Schedule.Minute, pipe.Run, notifier, logger)
	logger.Info("Service started", zap.Int("scheduleMinute", cfg.Schedule.Minute))
	if err := sched.Run(appCtx); err != nil {
		logger.Error("Scheduler error", zap.Error(err))
	}

	if err := healthServer.Stop(); err != nil {
		logger.Error("Health server shutdown error", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

// buildSources assembles the enabled sources in merge precedence order: the
// RF receiver first, then the thermostat cloud, the weather API, and the
// utility portal last.
func buildSources(cfg *config.Config, logger *zap.Logger) []collector.Source {
	var sources []collector.Source

	if cfg.RTL433.Enabled {
		sources = append(sources, rtl433.New(rtl433.Options{
			Command:      cfg.RTL433.Command,
			Args:         cfg.RTL433.Args,
			OutputFile:   cfg.RTL433.OutputFile,
			Sensors:      cfg.RTL433.Sensors,
			Timeout:      cfg.RTL433.Timeout(),
			PollInterval: cfg.RTL433.PollInterval(),
		}, logger))
	}
	if cfg.Neviweb.Enabled {
		client := neviweb.NewClient(cfg.Neviweb.BaseURL, cfg.Neviweb.Username, cfg.Neviweb.Password, cfg.Neviweb.Timeout())
		sources = append(sources, neviweb.New(client, cfg.Neviweb.NetworkName, cfg.Neviweb.Timeout(), logger))
	}
	if cfg.OpenWeather.Enabled {
		sources = append(sources, openweather.New(openweather.Options{
			BaseURL: cfg.OpenWeather.BaseURL,
			APIKey:  cfg.OpenWeather.APIKey,
			Lat:     cfg.OpenWeather.Lat,
			Lon:     cfg.OpenWeather.Lon,
			Units:   cfg.OpenWeather.Units,
			Lang:    cfg.OpenWeather.Lang,
			Timeout: cfg.OpenWeather.Timeout(),
		}, logger))
	}
	if cfg.HydroQuebec.Enabled {
		session := hydroquebec.NewSession(cfg.HydroQuebec.BaseURL, cfg.HydroQuebec.Username, cfg.HydroQuebec.Password, cfg.HydroQuebec.Timeout())
		sources = append(sources, hydroquebec.New(session, cfg.HydroQuebec.Window(), cfg.HydroQuebec.Timeout(), logger))
	}
	return sources
}

func buildNotifier(cfg *config.Config, logger *zap.Logger) alert.Notifier {
	notifiers := alert.Multi{alert.NewLogNotifier(logger)}
	if cfg.Alerts.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewWebhookNotifier(cfg.Alerts.WebhookURL, logger))
	}
	return notifiers
}
