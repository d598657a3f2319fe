package backup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/schemashift/schemashift/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Database: config.DatabaseConfig{
			Host: "localhost", Port: 5432, Database: "cmsdb",
			Username: "cms", Password: "pw",
		},
		Backup: config.BackupConfig{
			Directory: t.TempDir(), Tool: "pg_dump", TimeoutSeconds: 30,
		},
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDumpInvokesTool(t *testing.T) {
	runner := &MockRunner{}
	c := New(testConfig(t), runner, nil, discard())

	path, err := c.Dump(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(runner.Calls) != 1 {
		t.Fatalf("expected 1 tool invocation, got %d", len(runner.Calls))
	}
	call := runner.Calls[0]
	if call[0] != "pg_dump" {
		t.Errorf("expected pg_dump, got %s", call[0])
	}
	joined := strings.Join(call, " ")
	if !strings.Contains(joined, "-d cmsdb") || !strings.Contains(joined, "-Fc") {
		t.Errorf("unexpected pg_dump args: %s", joined)
	}
	if !strings.Contains(path, "cmsdb-run-1-") || !strings.HasSuffix(path, ".dump") {
		t.Errorf("unexpected artifact path: %s", path)
	}
	if len(runner.Envs[0]) != 1 || runner.Envs[0][0] != "PGPASSWORD=pw" {
		t.Errorf("password not passed via environment: %v", runner.Envs[0])
	}
}

func TestDumpToolFailure(t *testing.T) {
	runner := &MockRunner{Err: errors.New("exit status 1"), Output: []byte("pg_dump: connection refused")}
	c := New(testConfig(t), runner, nil, discard())

	_, err := c.Dump(context.Background(), "run-1")
	if !errors.Is(err, ErrBackupFailed) {
		t.Fatalf("expected ErrBackupFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("tool output missing from error: %v", err)
	}
}

func TestDumpUploadsWhenConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup.S3Bucket = "cms-backups"
	cfg.Backup.S3Prefix = "schemashift"

	uploader := &MockUploader{URI: "s3://cms-backups/schemashift/x.dump"}
	c := New(cfg, &MockRunner{}, uploader, discard())

	path, err := c.Dump(context.Background(), "run-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(uploader.Uploaded) != 1 || uploader.Uploaded[0] != path {
		t.Errorf("expected artifact %s uploaded, got %v", path, uploader.Uploaded)
	}
}

func TestDumpUploadFailureIsNotFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup.S3Bucket = "cms-backups"

	uploader := &MockUploader{Err: errors.New("access denied")}
	c := New(cfg, &MockRunner{}, uploader, discard())

	if _, err := c.Dump(context.Background(), "run-3"); err != nil {
		t.Fatalf("off-box copy failure must not fail the backup: %v", err)
	}
}
