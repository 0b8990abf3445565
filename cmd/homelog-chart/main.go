// Command homelog-chart regenerates the chart from the persisted table and
// exits. Useful after hand-editing the table or restoring a backup.
package main

import (
	"flag"

	"github.com/mbeaudry/homelog/chart"
	"github.com/mbeaudry/homelog/config"
	"github.com/mbeaudry/homelog/record"
	"github.com/mbeaudry/homelog/storage"
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

	schema, err := record.Build(cfg.Rooms)
	if err != nil {
		logger.Fatal("Failed to build table schema", zap.Error(err))
	}

	table, err := storage.Load(cfg.Storage.TablePath, schema, logger)
	if err != nil {
		logger.Fatal("Failed to load table", zap.Error(err))
	}

	renderer := chart.New(cfg.Storage.ChartPath, logger)
	if err := renderer.Render(table); err != nil {
		logger.Fatal("Failed to render chart", zap.Error(err))
	}
	logger.Info("Chart rendered",
		zap.String("chart", cfg.Storage.ChartPath),
		zap.Int("rows", table.Len()))
}
