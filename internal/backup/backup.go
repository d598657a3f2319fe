// Package backup takes the full-database dump that must exist before any
// mutation. The dump format is opaque to the engine; it only shells out to
// the configured tool and checks the exit status.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/schemashift/schemashift/internal/config"
)

// ErrBackupFailed means the external dump tool exited non-zero. The whole
// migration aborts; a run must never proceed from an unbacked state.
var ErrBackupFailed = errors.New("database backup failed")

// Runner executes the external dump tool. Injected so tests can assert the
// tool was (or was not) invoked without a real pg_dump.
type Runner interface {
	Run(ctx context.Context, env []string, name string, args ...string) ([]byte, error)
}

// Coordinator triggers the external dump and records the artifact.
type Coordinator struct {
	backup   config.BackupConfig
	db       config.DatabaseConfig
	runner   Runner
	uploader Uploader // nil when no off-box copy is configured
	logger   *slog.Logger
}

// New creates a Coordinator. uploader may be nil.
func New(cfg *config.Config, runner Runner, uploader Uploader, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		backup:   cfg.Backup,
		db:       cfg.Database,
		runner:   runner,
		uploader: uploader,
		logger:   logger,
	}
}

// Dump runs the external tool against the live connection and returns the
// timestamped artifact path. The step is bounded by the configured timeout
// since a dump of the largest table can run long.
func (c *Coordinator) Dump(ctx context.Context, runID string) (string, error) {
	dir := config.ExpandHome(c.backup.Directory)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}

	filename := fmt.Sprintf("%s-%s-%s.dump", c.db.Database, runID, time.Now().Format("20060102T150405"))
	path := filepath.Join(dir, filename)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.backup.TimeoutSeconds)*time.Second)
	defer cancel()

	args := []string{
		"-h", c.db.Host,
		"-p", strconv.Itoa(c.db.Port),
		"-U", c.db.Username,
		"-d", c.db.Database,
		"--no-owner", "--no-privileges",
		"-Fc", "-f", path,
	}
	env := []string{"PGPASSWORD=" + c.db.Password}

	c.logger.Info("taking pre-migration backup", "tool", c.backup.Tool, "path", path)

	out, err := c.runner.Run(ctx, env, c.backup.Tool, args...)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v (output: %s)", ErrBackupFailed, c.backup.Tool, err, string(out))
	}

	c.logger.Info("backup complete", "path", path)

	if c.uploader != nil && c.backup.S3Bucket != "" {
		uri, err := c.uploader.Upload(ctx, c.backup.S3Bucket, c.backup.S3Prefix, path)
		if err != nil {
			// The local artifact exists; an off-box copy failure is not
			// grounds to abort the migration.
			c.logger.Warn("uploading backup artifact failed", "error", err)
		} else {
			c.logger.Info("backup artifact uploaded", "uri", uri)
		}
	}

	return path, nil
}
