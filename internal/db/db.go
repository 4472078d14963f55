// Package db is the sqlite persistence layer for gauge readings. Every
// image that enters the pipeline ends up in exactly one of two tables:
// gauge_results for successful reads and detection_failures for images the
// detector could not interpret. The schema is managed by versioned
// migrations (see migrate.go).
package db

import (
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

type DB struct {
	*sql.DB
}

// OpenDB opens (or creates) the sqlite database at path and applies the
// connection pragmas. It does not create or migrate the schema; callers run
// migrations explicitly.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &DB{db}, nil
}

// timeLayout is a fixed-width UTC encoding so that lexicographic comparison
// of stored timestamps matches chronological order. It is a write-side
// convention only: the TIMESTAMP columns make the driver hand back time.Time
// on reads, so rows are scanned directly into time.Time.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// GaugeReading is one successful read of the gauge face.
type GaugeReading struct {
	ID          int64
	ImageName   string
	Angle       float64
	CenterX     int
	CenterY     int
	Radius      int
	Timestamp   time.Time
	PressurePSI float64
	PressureBar float64
}

func (r *GaugeReading) String() string {
	return fmt.Sprintf(
		"ImageName: %s, Angle: %.2f, Center: (%d,%d), Radius: %d, Timestamp: %s, PSI: %.2f, Bar: %.2f",
		r.ImageName,
		r.Angle,
		r.CenterX,
		r.CenterY,
		r.Radius,
		r.Timestamp.UTC().Format(time.RFC3339),
		r.PressurePSI,
		r.PressureBar,
	)
}

// DetectionFailure records an image the detector gave up on.
type DetectionFailure struct {
	ID        int64
	ImageName string
	Timestamp time.Time
}

// HasBeenProcessed reports whether the image already has a row in either
// table. Batch runs use this to skip work unless forced.
func (db *DB) HasBeenProcessed(ctx context.Context, imageName string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM gauge_results WHERE image_name = ?) +
			(SELECT COUNT(*) FROM detection_failures WHERE image_name = ?)`,
		imageName, imageName,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check processed state for %s: %w", imageName, err)
	}
	return count > 0, nil
}

// SaveSuccess upserts a reading and removes any stale failure row for the
// same image. The two writes share a transaction so an image can never be
// in both tables.
func (db *DB) SaveSuccess(ctx context.Context, r GaugeReading) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM detection_failures WHERE image_name = ?", r.ImageName); err != nil {
		return fmt.Errorf("failed to clear stale failure for %s: %w", r.ImageName, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO gauge_results (
			image_name, angle, center_x, center_y, radius, timestamp,
			pressure_psi, pressure_bar
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(image_name) DO UPDATE SET
			angle        = excluded.angle,
			center_x     = excluded.center_x,
			center_y     = excluded.center_y,
			radius       = excluded.radius,
			timestamp    = excluded.timestamp,
			pressure_psi = excluded.pressure_psi,
			pressure_bar = excluded.pressure_bar`,
		r.ImageName, r.Angle, r.CenterX, r.CenterY, r.Radius,
		encodeTime(r.Timestamp), r.PressurePSI, r.PressureBar,
	)
	if err != nil {
		return fmt.Errorf("failed to save reading for %s: %w", r.ImageName, err)
	}

	return tx.Commit()
}

// SaveFailure upserts a failure row and removes any stale reading for the
// same image, in one transaction.
func (db *DB) SaveFailure(ctx context.Context, imageName string, timestamp time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM gauge_results WHERE image_name = ?", imageName); err != nil {
		return fmt.Errorf("failed to clear stale reading for %s: %w", imageName, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO detection_failures (image_name, timestamp)
		VALUES (?, ?)
		ON CONFLICT(image_name) DO UPDATE SET timestamp = excluded.timestamp`,
		imageName, encodeTime(timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to save failure for %s: %w", imageName, err)
	}

	return tx.Commit()
}

// Readings returns successful readings at or after since, ordered by
// timestamp then insertion id. A zero since returns everything.
func (db *DB) Readings(ctx context.Context, since time.Time) ([]GaugeReading, error) {
	query := `
		SELECT id, image_name, angle, center_x, center_y, radius, timestamp,
		       pressure_psi, pressure_bar
		FROM gauge_results`
	args := []any{}
	if !since.IsZero() {
		query += " WHERE timestamp >= ?"
		args = append(args, encodeTime(since))
	}
	query += " ORDER BY timestamp, id"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []GaugeReading
	for rows.Next() {
		var r GaugeReading
		if err := rows.Scan(
			&r.ID,
			&r.ImageName,
			&r.Angle,
			&r.CenterX,
			&r.CenterY,
			&r.Radius,
			&r.Timestamp,
			&r.PressurePSI,
			&r.PressureBar,
		); err != nil {
			return nil, err
		}
		r.Timestamp = r.Timestamp.UTC()
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return readings, nil
}

// Failures returns all recorded detection failures ordered by timestamp.
func (db *DB) Failures(ctx context.Context) ([]DetectionFailure, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, image_name, timestamp FROM detection_failures ORDER BY timestamp, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var failures []DetectionFailure
	for rows.Next() {
		var f DetectionFailure
		if err := rows.Scan(&f.ID, &f.ImageName, &f.Timestamp); err != nil {
			return nil, err
		}
		f.Timestamp = f.Timestamp.UTC()
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return failures, nil
}

// FailureNames returns the set of image names currently classified as
// failures. Batch runs with retry enabled use this to requeue them.
func (db *DB) FailureNames(ctx context.Context) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT image_name FROM detection_failures")
	if err != nil {
		return nil, fmt.Errorf("failed to query failure names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names[name] = true
	}
	return names, rows.Err()
}

// ReclassifyLargeAngles moves readings whose angle exceeds threshold into
// detection_failures. Such angles usually mean the detector latched onto a
// scale marking instead of the needle. With dryRun set it only reports what
// would move.
func (db *DB) ReclassifyLargeAngles(ctx context.Context, threshold float64, dryRun bool) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT image_name, timestamp FROM gauge_results WHERE angle > ? ORDER BY timestamp, id",
		threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to query large angles: %w", err)
	}
	type victim struct {
		name string
		ts   time.Time
	}
	var victims []victim
	for rows.Next() {
		var v victim
		if err := rows.Scan(&v.name, &v.ts); err != nil {
			rows.Close()
			return nil, err
		}
		victims = append(victims, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	names := make([]string, len(victims))
	for i, v := range victims {
		names[i] = v.name
	}
	if dryRun || len(victims) == 0 {
		return names, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, v := range victims {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM gauge_results WHERE image_name = ?", v.name); err != nil {
			return nil, fmt.Errorf("failed to delete reading for %s: %w", v.name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO detection_failures (image_name, timestamp)
			VALUES (?, ?)
			ON CONFLICT(image_name) DO UPDATE SET timestamp = excluded.timestamp`,
			v.name, encodeTime(v.ts)); err != nil {
			return nil, fmt.Errorf("failed to record failure for %s: %w", v.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return names, nil
}

// StartRun records the beginning of a batch run.
func (db *DB) StartRun(ctx context.Context, runID string, total int) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO process_runs (run_id, started_at, total) VALUES (?, ?, ?)",
		runID, encodeTime(time.Now()), total)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// FinishRun records the outcome counts for a batch run.
func (db *DB) FinishRun(ctx context.Context, runID string, processed, succeeded, failed int) error {
	_, err := db.ExecContext(ctx, `
		UPDATE process_runs
		SET finished_at = ?, processed = ?, succeeded = ?, failed = ?
		WHERE run_id = ?`,
		encodeTime(time.Now()), processed, succeeded, failed, runID)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	return nil
}

// BackupTo writes a consistent snapshot of the database to path using
// VACUUM INTO. Pending WAL content is folded into the snapshot, so it is
// complete even while writers are active. Any existing file at path is
// replaced.
func (db *DB) BackupTo(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("failed to back up database to %s: %w", path, err)
	}
	return nil
}

// AttachAdminRoutes mounts the live SQL console and backup endpoint under
// /debug/ on the given mux.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://gauge_data.db", db.DB, &tailsql.DBOptions{
		Label: "Gauge DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("gauge-backup-%d.db", unixTime)
		if err := db.BackupTo(r.Context(), backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			log.Printf("Failed to stream backup: %v", err)
			return
		}
	}))
}
