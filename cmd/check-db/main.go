// Package main checks database connectivity and prints a short summary of the
// QR tracker data: schema version, row counts, folders, and the most scanned
// codes. It exits non-zero on any failure so it can gate deployments.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/qr-tracker/qr-tracker/internal/config"
	"github.com/qr-tracker/qr-tracker/internal/db"
	"github.com/qr-tracker/qr-tracker/internal/db/repositories"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Migration check failed: %v", err)
	}
	fmt.Printf("Schema version: %d (dirty: %v)\n", version, dirty)

	sqlxDB := sqlx.NewDb(database, "postgres")
	stats := repositories.NewStatsRepository(sqlxDB)

	users, err := repositories.NewUserRepository(database).CountUsers(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	codes, err := stats.CountQRCodes(ctx, "")
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	scans, err := stats.CountScans(ctx, repositories.ScanFilter{})
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	fmt.Printf("Users: %d\nQR codes: %d\nScans: %d\n", users, codes, scans)

	fmt.Println("\n=== FOLDERS ===")
	folders, err := repositories.NewFolderRepository(sqlxDB).List(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	if len(folders) == 0 {
		fmt.Println("No folders")
	}
	for _, f := range folders {
		fmt.Println(f)
	}

	fmt.Println("\n=== TOP QR CODES ===")
	top, err := stats.TopQRCodes(ctx, repositories.ScanFilter{}, 5)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	for _, qr := range top {
		fmt.Printf("%s  %-30s %d scans\n", qr.ShortCode, qr.Name, qr.ScanCount)
	}
	if len(top) == 0 {
		fmt.Println("No scans recorded yet")
	}
}
