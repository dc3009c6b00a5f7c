package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/alexanderjulianmartinez/quality-watch/internal/scan"
)

const (
	SourceFile  = "file"
	SourceMySQL = "mysql"

	StoreBigQuery = "bigquery"
	StoreMySQL    = "mysql"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite3"
)

type Config struct {
	Scan    ScanConfig    `yaml:"scan"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
	Archive ArchiveConfig `yaml:"archive"`
	Notify  NotifyConfig  `yaml:"notify"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ScanConfig struct {
	Source  string `yaml:"source"`
	Dialect string `yaml:"dialect"`
	// Table overrides the table named by a result document.
	Table string       `yaml:"table"`
	File  string       `yaml:"file"`
	MySQL SourceConfig `yaml:"mysql"`
}

type SourceConfig struct {
	DSN    string `yaml:"dsn"`
	Schema string `yaml:"schema"`
}

type StoreConfig struct {
	Type              string `yaml:"type"`
	DSN               string `yaml:"dsn"`
	ProjectID         string `yaml:"project_id"`
	CredentialsFile   string `yaml:"credentials_file"`
	Location          string `yaml:"location"`
	MeasurementsTable string `yaml:"measurements_table"`
	TestResultsTable  string `yaml:"test_results_table"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ArchiveConfig struct {
	GCS GCSConfig `yaml:"gcs"`
	S3  S3Config  `yaml:"s3"`
}

type GCSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentials_file"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

type NotifyConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// Error reports a missing or invalid configuration value.
type Error struct {
	Field string
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Msg)
}

func required(field string) error {
	return &Error{Field: field, Msg: "is required"}
}

func invalid(field, format string, args ...any) error {
	return &Error{Field: field, Msg: fmt.Sprintf(format, args...)}
}

func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, required("path")
	}

	_, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "config file not found")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}
	return Parse(data)
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references only; a bare $ is kept as written.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := envRef.FindSubmatch(ref)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Parse expands ${VAR} references from the environment, decodes the YAML,
// applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(expandEnv(data), &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "qualitywatch"
	}
}

// Validate checks the whole configuration. It is exported so callers can
// re-check after applying command line overrides.
func (c *Config) Validate() error {
	if err := c.Scan.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level", "must be one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return invalid("log.format", "must be json or console")
	}
	if c.Archive.GCS.Enabled && c.Archive.GCS.Bucket == "" {
		return required("archive.gcs.bucket")
	}
	if c.Archive.S3.Enabled {
		if c.Archive.S3.Bucket == "" {
			return required("archive.s3.bucket")
		}
		if c.Archive.S3.Region == "" {
			return required("archive.s3.region")
		}
	}
	if len(c.Notify.Kafka.Brokers) > 0 && c.Notify.Kafka.Topic == "" {
		return required("notify.kafka.topic")
	}
	return nil
}

func (s ScanConfig) validate() error {
	if _, err := scan.ParseDialect(s.Dialect); err != nil {
		if s.Dialect == "" {
			return required("scan.dialect")
		}
		return invalid("scan.dialect", "must be one of bigquery, mysql, postgres, snowflake")
	}
	switch s.Source {
	case "":
		return required("scan.source")
	case SourceFile:
		if s.File == "" {
			return required("scan.file")
		}
	case SourceMySQL:
		if s.MySQL.DSN == "" {
			return required("scan.mysql.dsn")
		}
		if s.MySQL.Schema == "" {
			return required("scan.mysql.schema")
		}
		if strings.TrimSpace(s.Table) == "" {
			return required("scan.table")
		}
	default:
		return invalid("scan.source", "must be file or mysql, got %q", s.Source)
	}
	return nil
}

func (s StoreConfig) validate() error {
	switch s.Type {
	case "":
		return required("store.type")
	case StoreBigQuery:
		if s.ProjectID == "" {
			return required("store.project_id")
		}
	case StoreMySQL, StorePostgres, StoreSQLite:
		if s.DSN == "" {
			return required("store.dsn")
		}
	default:
		return invalid("store.type", "must be one of bigquery, mysql, postgres, sqlite3, got %q", s.Type)
	}
	if s.MeasurementsTable == "" {
		return required("store.measurements_table")
	}
	if s.TestResultsTable == "" {
		return required("store.test_results_table")
	}
	return nil
}
