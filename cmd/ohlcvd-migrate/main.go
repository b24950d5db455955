// Command ohlcvd-migrate is the operator entry point for schema rollback.
// The daemon itself only ever applies migrations forward
// (cmd/ohlcvd/app.NewApp); stepping backward is an explicit operator
// action, never something the daemon does on its own.
package main

import (
	"context"
	"flag"

	"upbit_ingestor/internal/ohlcvconfig"
	"upbit_ingestor/pkg/database"
	"upbit_ingestor/pkg/log"
)

func main() {
	op := flag.String("op", "step", "rollback operation: step, all, to")
	version := flag.Uint("version", 0, "target schema version, required for -op=to")
	flag.Parse()

	logConfig := log.DefaultLogConfig()
	logConfig.LogDir = "logs"
	log.InitLoggerWithConfig(logConfig)

	appSettings, err := ohlcvconfig.LoadAppSettings()
	if err != nil {
		log.Fatalf("failed to load application configuration: %v", err)
	}
	dbConfig, err := appSettings.DatabaseConfig()
	if err != nil {
		log.Fatalf("failed to build database config: %v", err)
	}

	connMaster, cleanup, err := database.OpenMaster(context.Background(), dbConfig)
	if err != nil {
		log.Fatalf("unable to connect to database: %v", err)
	}
	defer cleanup()

	handler := database.NewMigrationHandler(connMaster, dbConfig)

	switch *op {
	case "step":
		err = handler.RollbackMigration()
	case "all":
		err = handler.RollbackAll()
	case "to":
		err = handler.RollbackTo(*version)
	default:
		log.Fatalf("unknown -op %q: expected step, all, or to", *op)
	}
	if err != nil {
		log.Fatalf("rollback failed: %v", err)
	}

	log.Info("rollback completed", map[string]interface{}{"op": *op})
}
