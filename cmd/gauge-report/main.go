// gauge-report reads analog pressure gauge photos into a sqlite database
// and reports on the stored readings.
//
// Subcommands:
//
//	process   scan an image directory and store readings
//	report    print or render a time series of stored readings
//	serve     run the web dashboard and admin endpoints
//	repair    reclassify implausible large-angle readings as failures
//	migrate   manage the database schema
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/pressure.report/internal/config"
	"github.com/banshee-data/pressure.report/internal/db"
	"github.com/banshee-data/pressure.report/internal/pipeline"
	"github.com/banshee-data/pressure.report/internal/report"
	"github.com/banshee-data/pressure.report/internal/series"
	"github.com/banshee-data/pressure.report/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "process":
		runProcess(os.Args[2:])
	case "report":
		runReport(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "repair":
		runRepair(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		fmt.Printf("gauge-report %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: gauge-report <command> [flags]

Commands:
  process   Scan an image directory and store gauge readings
  report    Print or render a time series of stored readings
  serve     Run the web dashboard and admin endpoints
  repair    Reclassify implausible large-angle readings as failures
  migrate   Manage the database schema
  version   Print build information

Run 'gauge-report <command> -h' for command flags.`)
}

// loadConfig returns the defaults when no config file is given.
func loadConfig(path string) *config.Config {
	if path == "" {
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func resolveDBPath(flagValue string, cfg *config.Config) string {
	if flagValue != "" {
		return flagValue
	}
	return cfg.GetDBFile()
}

func runProcess(args []string) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to JSON config file")
	dbPath := fs.String("db", "", "Database path (overrides config)")
	dir := fs.String("dir", "", "Image directory (overrides config)")
	pattern := fs.String("pattern", "", "Image filename glob (overrides config)")
	force := fs.Bool("force", false, "Reprocess images that already have a row")
	retryFailures := fs.Bool("retry-failures", false, "Reprocess images recorded as failures")
	workers := fs.Int("workers", 0, "Worker count (overrides config)")
	noBackup := fs.Bool("no-backup", false, "Skip the pre-run database backup")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	path := resolveDBPath(*dbPath, cfg)

	if !*noBackup {
		if err := backupDatabase(path); err != nil {
			log.Fatalf("Failed to back up database: %v", err)
		}
	}

	store, err := db.EnsureSchema(path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	opts := pipeline.BatchOptions{
		Dir:           cfg.GetImageDir(),
		Pattern:       cfg.GetImagePattern(),
		Force:         *force,
		RetryFailures: *retryFailures,
		Workers:       cfg.GetWorkers(),
	}
	if *dir != "" {
		opts.Dir = *dir
	}
	if *pattern != "" {
		opts.Pattern = *pattern
	}
	if *workers > 0 {
		opts.Workers = *workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := pipeline.New(cfg, store).Run(ctx, opts)
	if summary != nil {
		log.Printf("Run %s finished: %d matched, %d skipped, %d succeeded, %d failed",
			summary.RunID, summary.Total, summary.Skipped, summary.Succeeded, summary.Failed)
	}
	if err != nil {
		if err == context.Canceled {
			log.Fatal("Batch interrupted; committed results are kept")
		}
		log.Fatalf("Batch failed: %v", err)
	}
}

// backupDatabase snapshots the database to <path>.bak before a batch run,
// so a bad run can be rolled back by hand. The snapshot goes through VACUUM
// INTO so WAL content is included. Missing databases (first run) are fine.
func backupDatabase(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	database, err := db.OpenDB(path)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.BackupTo(context.Background(), path+".bak"); err != nil {
		return err
	}
	log.Printf("Backed up %s to %s.bak", path, path)
	return nil
}

func runReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to JSON config file")
	dbPath := fs.String("db", "", "Database path (overrides config)")
	window := fs.Int("window", 0, "Lookback window in days (overrides config)")
	allTime := fs.Bool("all", false, "Report all stored readings")
	average := fs.Bool("average", false, "Average readings into time buckets")
	period := fs.String("period", "", "Bucket period: minute, hour or day (implies -average)")
	value := fs.Int("value", 0, "Bucket width multiplier (overrides config)")
	unit := fs.String("unit", "", "Series unit: angle, psi or bar (overrides config)")
	pngPath := fs.String("png", "", "Also render a PNG plot to this path")
	htmlPath := fs.String("html", "", "Also render an HTML chart to this path")
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	q := series.Query{
		WindowDays: cfg.GetDefaultWindowDays(),
		AllTime:    *allTime,
		Average:    *average,
		Period:     series.Period(cfg.GetDefaultAveragePeriod()),
		Value:      cfg.GetDefaultAverageValue(),
		Unit:       series.Unit(cfg.GetDefaultUnit()),
	}
	if *window > 0 {
		q.WindowDays = *window
	}
	if *period != "" {
		p, err := series.ParsePeriod(*period)
		if err != nil {
			log.Fatal(err)
		}
		q.Period = p
		q.Average = true
	}
	if *value > 0 {
		q.Value = *value
	}
	if *unit != "" {
		u, err := series.ParseUnit(*unit)
		if err != nil {
			log.Fatal(err)
		}
		q.Unit = u
	}

	store, err := db.OpenCurrent(resolveDBPath(*dbPath, cfg))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	err = report.Write(context.Background(), store, q, report.Options{
		Out:      os.Stdout,
		PNGPath:  *pngPath,
		HTMLPath: *htmlPath,
	})
	if err != nil {
		log.Fatalf("Report failed: %v", err)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to JSON config file")
	dbPath := fs.String("db", "", "Database path (overrides config)")
	listen := fs.String("listen", ":8080", "Listen address")
	fs.Parse(args)

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := loadConfig(*configPath)
	store, err := db.OpenCurrent(resolveDBPath(*dbPath, cfg))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	server := &http.Server{
		Addr:    *listen,
		Handler: report.NewServer(store, cfg).Handler(),
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("Listening on %s", *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Print("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	wg.Wait()
}

func runRepair(args []string) {
	fs := flag.NewFlagSet("repair", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to JSON config file")
	dbPath := fs.String("db", "", "Database path (overrides config)")
	threshold := fs.Float64("threshold", 0, "Angle above which a reading is reclassified (overrides config)")
	dryRun := fs.Bool("dry-run", false, "Report what would move without modifying")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	limit := cfg.GetLargeAngleThreshold()
	if *threshold > 0 {
		limit = *threshold
	}

	store, err := db.OpenCurrent(resolveDBPath(*dbPath, cfg))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	names, err := store.ReclassifyLargeAngles(context.Background(), limit, *dryRun)
	if err != nil {
		log.Fatalf("Repair failed: %v", err)
	}

	verb := "Reclassified"
	if *dryRun {
		verb = "Would reclassify"
	}
	log.Printf("%s %d readings with angle > %.1f", verb, len(names), limit)
	for _, name := range names {
		fmt.Println(name)
	}
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to JSON config file")
	dbPath := fs.String("db", "", "Database path (overrides config)")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	db.RunMigrateCommand(fs.Args(), resolveDBPath(*dbPath, cfg))
}
