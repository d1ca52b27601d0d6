// Package main clears a dirty golang-migrate state in the QR tracker database.
// A migration interrupted mid-run leaves schema_migrations marked dirty and
// `serve` refuses to start until the flag is cleared. The tool reads the same
// configuration as the server (CONFIG_PATH and QRT_* variables).
//
// Usage:
//
//	fix-migration            # keep the recorded version, clear dirty
//	fix-migration -version 2 # record version 2 as applied
package main

import (
	"flag"
	"log"
	"os"

	"github.com/qr-tracker/qr-tracker/internal/config"
	"github.com/qr-tracker/qr-tracker/internal/db"
)

func main() {
	target := flag.Int("version", -1, "migration version to record (defaults to the current one)")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 1, 1)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check migration state: %v", err)
	}
	log.Printf("Current migration state: version=%d, dirty=%v", version, dirty)

	if !dirty && *target < 0 {
		log.Println("Migration state is already clean")
		return
	}

	force := int(version)
	if *target >= 0 {
		force = *target
	}
	if err := db.ForceMigrationVersion(database, force); err != nil {
		log.Fatalf("Failed to fix migration state: %v", err)
	}

	version, dirty, err = db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check final migration state: %v", err)
	}
	log.Printf("Final migration state: version=%d, dirty=%v", version, dirty)
}
