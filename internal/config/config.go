package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.schemashift/schemashift.yaml"
)

// Config is the top-level configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Database  DatabaseConfig  `yaml:"database"`
	Backup    BackupConfig    `yaml:"backup,omitempty"`
	Logging   LogConfig       `yaml:"logging,omitempty"`
	Migration MigrationConfig `yaml:"migration"`
}

// DatabaseConfig defines the live database connection.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	SSL      bool   `yaml:"ssl,omitempty"`
	Schema   string `yaml:"schema,omitempty"` // pg schema, defaults to "public"
}

// BackupConfig defines how pre-migration dumps are taken.
type BackupConfig struct {
	Directory      string `yaml:"directory,omitempty"`       // default ~/.schemashift/backups/
	Tool           string `yaml:"tool,omitempty"`            // default pg_dump
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"` // default 600
	S3Bucket       string `yaml:"s3_bucket,omitempty"`       // empty = no off-box copy
	S3Prefix       string `yaml:"s3_prefix,omitempty"`
	AWSRegion      string `yaml:"aws_region,omitempty"`
	AWSProfile     string `yaml:"aws_profile,omitempty"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level     string `yaml:"level,omitempty"`     // debug, info, warn, error
	Directory string `yaml:"directory,omitempty"` // default ~/.schemashift/logs/
}

// MigrationConfig defines the rename migration itself.
type MigrationConfig struct {
	// ExpectedDatabase is the identifier the connected database must report
	// before any write is attempted. The live name is read from the
	// connection, never from DatabaseConfig, so the two cannot drift apart.
	ExpectedDatabase string `yaml:"expected_database"`
	AuditTable       string `yaml:"audit_table,omitempty"`     // default audit_log
	LockKey          string `yaml:"lock_key,omitempty"`        // default schemashift.table-rename
	TimeoutSeconds   int    `yaml:"timeout_seconds,omitempty"` // transaction bound, default 300

	// Renames and Columns override the built-in mapping table when present.
	Renames []RenameOverride `yaml:"renames,omitempty"`
	Columns []ColumnOverride `yaml:"columns,omitempty"`
}

// RenameOverride is a single source → target mapping from the config file.
type RenameOverride struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
	Kind   string `yaml:"kind,omitempty"` // table (default), index, constraint
}

// ColumnOverride is a compatibility-column addition from the config file.
type ColumnOverride struct {
	Table        string `yaml:"table"`
	Column       string `yaml:"column"`
	Type         string `yaml:"type"`
	Default      string `yaml:"default,omitempty"`
	BackfillFrom string `yaml:"backfill_from,omitempty"`
}

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyDefaults() {
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.Schema == "" {
		c.Database.Schema = "public"
	}
	if c.Backup.Directory == "" {
		c.Backup.Directory = ExpandHome("~/.schemashift/backups/")
	}
	if c.Backup.Tool == "" {
		c.Backup.Tool = "pg_dump"
	}
	if c.Backup.TimeoutSeconds == 0 {
		c.Backup.TimeoutSeconds = 600
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.schemashift/logs/")
	}
	if c.Migration.AuditTable == "" {
		c.Migration.AuditTable = "audit_log"
	}
	if c.Migration.LockKey == "" {
		c.Migration.LockKey = "schemashift.table-rename"
	}
	if c.Migration.TimeoutSeconds == 0 {
		c.Migration.TimeoutSeconds = 300
	}
}

// ConnString returns a pgx-compatible DSN for the configured database.
func (c *Config) ConnString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s",
		c.Database.Host, c.Database.Port, c.Database.Database,
		c.Database.Username, c.Database.Password,
	)
	if c.Database.SSL {
		connStr += " sslmode=require"
	} else {
		connStr += " sslmode=disable"
	}
	return connStr
}

// URL returns the connection string in postgres:// form, suitable for
// passing to external tools such as pg_dump.
func (c *Config) URL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Database.Username, c.Database.Password),
		Host:   fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:   "/" + c.Database.Database,
	}
	q := u.Query()
	if c.Database.SSL {
		q.Set("sslmode", "require")
	} else {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT):([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	var err error
	c.Database.Password, err = ResolveValue(c.Database.Password)
	if err != nil {
		return fmt.Errorf("database password: %w", err)
	}
	return nil
}

// ResolveValue resolves secret references in a string value.
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider := matches[1]
	ref := matches[2]

	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
