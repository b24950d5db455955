package main

import (
	"upbit_ingestor/cmd/ohlcvd/app"
	"upbit_ingestor/pkg/log"
)

func main() {
	logConfig := log.DefaultLogConfig()
	logConfig.LogDir = "logs"
	logConfig.Level = "info"

	log.InitLoggerWithConfig(logConfig)

	log.Info("upbit ingestion daemon starting", map[string]interface{}{
		"version":   "1.0.0",
		"log_dir":   logConfig.LogDir,
		"log_level": logConfig.Level,
	})

	app := app.NewApp()
	if err := app.Run(); err != nil {
		log.Fatalf("failed to start application: %v", err)
	}

	log.Info("upbit ingestion daemon started successfully")
}
