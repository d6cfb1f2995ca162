package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/5usu/depthcam/internal/dto"
	"github.com/5usu/depthcam/internal/repository/sqlite"
)

// migrate applies the telemetry schema to a database and optionally prunes
// old reports, so a fresh or stale database can be prepared offline.
func main() {
	dbPath := flag.String("db", "data/depthcam.db", "Database path")
	keepDays := flag.Int("keep-days", 0, "Delete reports older than this many days (0 keeps all)")
	flag.Parse()

	fmt.Printf("Migrating database %s\n", *dbPath)

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	reports := sqlite.NewReportRepository(db)

	if *keepDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -*keepDays)
		n, err := reports.DeleteBefore(cutoff)
		if err != nil {
			log.Fatalf("Failed to prune reports: %v", err)
		}
		fmt.Printf("Deleted %d reports older than %s\n", n, cutoff.Format(time.DateOnly))
	}

	total, err := reports.GetTotalCount(&dto.ReportFilter{})
	if err != nil {
		log.Fatalf("Failed to count reports: %v", err)
	}
	fmt.Printf("Schema is up to date, %d reports stored\n", total)
}
