package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func newFileTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gauge_test.db")
	database, err := EnsureSchema(path)
	if err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestBackupTo(t *testing.T) {
	database := newFileTestDB(t)
	ctx := context.Background()

	ts := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)
	if err := database.SaveSuccess(ctx, testReading("240314_0926.jpg", 148, ts)); err != nil {
		t.Fatalf("SaveSuccess: %v", err)
	}

	backupPath := filepath.Join(t.TempDir(), "snapshot.db")
	if err := database.BackupTo(ctx, backupPath); err != nil {
		t.Fatalf("BackupTo: %v", err)
	}

	snapshot, err := OpenDB(backupPath)
	if err != nil {
		t.Fatalf("OpenDB(snapshot): %v", err)
	}
	defer snapshot.Close()

	readings, err := snapshot.Readings(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Readings(snapshot): %v", err)
	}
	if len(readings) != 1 || readings[0].ImageName != "240314_0926.jpg" {
		t.Errorf("snapshot readings = %+v, want the saved row", readings)
	}

	// A second snapshot to the same path replaces the first.
	if err := database.BackupTo(ctx, backupPath); err != nil {
		t.Fatalf("BackupTo (replace): %v", err)
	}
}

func TestAttachAdminRoutesTailsqlEndpoint(t *testing.T) {
	database := newFileTestDB(t)
	mux := http.NewServeMux()
	database.AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/tailsql/", nil)
	req.RemoteAddr = "127.0.0.1:12345" // debug routes only serve local clients
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code == http.StatusNotFound {
		t.Error("expected /debug/tailsql/ to be registered, got 404")
	}
}

func TestAttachAdminRoutesBackup(t *testing.T) {
	database := newFileTestDB(t)
	mux := http.NewServeMux()
	database.AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("backup status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Errorf("Content-Encoding = %q, want gzip", got)
	}
	if rec.Body.Len() == 0 {
		t.Error("backup body is empty")
	}
}
