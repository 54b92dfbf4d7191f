package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guillermoBallester/auditspool/internal/core/domain"
)

// Default values for the audit log settings.
const (
	DefaultLogDirectory = "log"
	DefaultLogFilename  = "audit-%Y%m%d_%H%M.log"
	DefaultFileMode     = os.FileMode(0o600)
	DefaultWorkers      = 4
)

type Config struct {
	// Audit log.
	LogDirectory      string
	LogFilename       string
	LogRotationAge    int // minutes, 0 disables time-based rotation
	LogTimezone       string
	Location          *time.Location // resolved from LogTimezone
	LogFileMode       os.FileMode
	LogConnections    bool
	LogDisconnections bool
	Verbosity         domain.Verbosity
	QuoteFields       bool
	RedactStatements  bool

	// Coordination between writers.
	SignalFile string // empty means in-process signal only
	Workers    int

	// Database connection, used by the exec command.
	DatabaseURL string

	// Logging.
	LogLevel slog.Level

	// Observability.
	OTelEnabled bool

	// ConfigFile is the YAML file the config was loaded from, if any.
	ConfigFile string
}

// Overrides holds CLI flag values that override environment variables.
// Pointer fields distinguish "not set" from zero values.
type Overrides struct {
	ConfigFile        string
	LogDirectory      *string
	LogFilename       *string
	LogRotationAge    *int
	LogTimezone       *string
	LogFileMode       *string
	LogConnections    *bool
	LogDisconnections *bool
	Verbosity         *string
	QuoteFields       *bool
	RedactStatements  *bool
	SignalFile        *string
	Workers           *int
	DatabaseURL       *string
	LogLevel          *string
	OTelEnabled       bool
}

// fileConfig mirrors the YAML config file. All keys are optional.
type fileConfig struct {
	LogDirectory      *string `yaml:"log_directory"`
	LogFilename       *string `yaml:"log_filename"`
	LogRotationAge    *int    `yaml:"log_rotation_age"`
	LogTimezone       *string `yaml:"log_timezone"`
	LogFileMode       *string `yaml:"log_file_mode"`
	LogConnections    *bool   `yaml:"log_connections"`
	LogDisconnections *bool   `yaml:"log_disconnections"`
	Verbosity         *string `yaml:"log_error_verbosity"`
	QuoteFields       *bool   `yaml:"quote_fields"`
	RedactStatements  *bool   `yaml:"redact_statements"`
	SignalFile        *string `yaml:"signal_file"`
	Workers           *int    `yaml:"workers"`
	DatabaseURL       *string `yaml:"database_url"`
	LogLevel          *string `yaml:"log_level"`
	OTelEnabled       *bool   `yaml:"otel_enabled"`
}

// Load builds a Config from defaults, the optional config file, environment
// variables and CLI overrides, in that order, then validates the result.
func Load(overrides Overrides) (*Config, error) {
	cfg := defaults()

	cfg.ConfigFile = overrides.ConfigFile
	if cfg.ConfigFile == "" {
		cfg.ConfigFile = os.Getenv("AUDIT_CONFIG_FILE")
	}
	if cfg.ConfigFile != "" {
		if err := loadFile(cfg, cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config populated with default values.
func defaults() *Config {
	return &Config{
		LogDirectory:   DefaultLogDirectory,
		LogFilename:    DefaultLogFilename,
		LogRotationAge: domain.DefaultRotationAge,
		LogFileMode:    DefaultFileMode,
		Verbosity:      domain.VerbosityDefault,
		Workers:        DefaultWorkers,
		LogLevel:       slog.LevelInfo,
	}
}

// loadFile reads the YAML config file at path into cfg.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config YAML: %w", err)
	}

	setString(&cfg.LogDirectory, fc.LogDirectory)
	setString(&cfg.LogFilename, fc.LogFilename)
	setString(&cfg.LogTimezone, fc.LogTimezone)
	setString(&cfg.SignalFile, fc.SignalFile)
	setString(&cfg.DatabaseURL, fc.DatabaseURL)
	setBool(&cfg.LogConnections, fc.LogConnections)
	setBool(&cfg.LogDisconnections, fc.LogDisconnections)
	setBool(&cfg.QuoteFields, fc.QuoteFields)
	setBool(&cfg.RedactStatements, fc.RedactStatements)
	setBool(&cfg.OTelEnabled, fc.OTelEnabled)

	if fc.LogRotationAge != nil {
		cfg.LogRotationAge = *fc.LogRotationAge
	}
	if fc.Workers != nil {
		cfg.Workers = *fc.Workers
	}
	if fc.LogFileMode != nil {
		mode, err := parseFileMode(*fc.LogFileMode)
		if err != nil {
			return fmt.Errorf("invalid log_file_mode in %s: %w", path, err)
		}
		cfg.LogFileMode = mode
	}
	if fc.Verbosity != nil {
		v, err := domain.ParseVerbosity(*fc.Verbosity)
		if err != nil {
			return fmt.Errorf("invalid log_error_verbosity in %s: %w", path, err)
		}
		cfg.Verbosity = v
	}
	if fc.LogLevel != nil {
		level, err := parseLogLevel(*fc.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	return nil
}

// loadEnvVars reads all supported environment variables into cfg.
func loadEnvVars(cfg *Config) error {
	if v, ok := os.LookupEnv("AUDIT_LOG_DIRECTORY"); ok {
		cfg.LogDirectory = v
	}
	if v, ok := os.LookupEnv("AUDIT_LOG_FILENAME"); ok {
		cfg.LogFilename = v
	}

	if v := os.Getenv("AUDIT_LOG_ROTATION_AGE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AUDIT_LOG_ROTATION_AGE value %q: must be an integer number of minutes", v)
		}
		cfg.LogRotationAge = n
	}

	if v := os.Getenv("AUDIT_LOG_TIMEZONE"); v != "" {
		cfg.LogTimezone = v
	}

	if v := os.Getenv("AUDIT_LOG_FILE_MODE"); v != "" {
		mode, err := parseFileMode(v)
		if err != nil {
			return fmt.Errorf("invalid AUDIT_LOG_FILE_MODE value %q: %w", v, err)
		}
		cfg.LogFileMode = mode
	}

	if err := envBool("AUDIT_LOG_CONNECTIONS", &cfg.LogConnections); err != nil {
		return err
	}
	if err := envBool("AUDIT_LOG_DISCONNECTIONS", &cfg.LogDisconnections); err != nil {
		return err
	}
	if err := envBool("AUDIT_QUOTE_FIELDS", &cfg.QuoteFields); err != nil {
		return err
	}
	if err := envBool("AUDIT_REDACT_STATEMENTS", &cfg.RedactStatements); err != nil {
		return err
	}

	if v := os.Getenv("LOG_ERROR_VERBOSITY"); v != "" {
		verbosity, err := domain.ParseVerbosity(v)
		if err != nil {
			return fmt.Errorf("invalid LOG_ERROR_VERBOSITY value: %w", err)
		}
		cfg.Verbosity = verbosity
	}

	if v := os.Getenv("AUDIT_SIGNAL_FILE"); v != "" {
		cfg.SignalFile = v
	}

	if v := os.Getenv("WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid WORKERS value %q: must be a positive integer", v)
		}
		cfg.Workers = n
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	return envBool("OTEL_ENABLED", &cfg.OTelEnabled)
}

// applyOverrides applies CLI flag values on top of the env-loaded config.
func applyOverrides(cfg *Config, o Overrides) error {
	setString(&cfg.LogDirectory, o.LogDirectory)
	setString(&cfg.LogFilename, o.LogFilename)
	setString(&cfg.LogTimezone, o.LogTimezone)
	setString(&cfg.SignalFile, o.SignalFile)
	setString(&cfg.DatabaseURL, o.DatabaseURL)
	setBool(&cfg.LogConnections, o.LogConnections)
	setBool(&cfg.LogDisconnections, o.LogDisconnections)
	setBool(&cfg.QuoteFields, o.QuoteFields)
	setBool(&cfg.RedactStatements, o.RedactStatements)

	if o.LogRotationAge != nil {
		cfg.LogRotationAge = *o.LogRotationAge
	}
	if o.LogFileMode != nil {
		mode, err := parseFileMode(*o.LogFileMode)
		if err != nil {
			return fmt.Errorf("invalid --log-file-mode value: %w", err)
		}
		cfg.LogFileMode = mode
	}
	if o.Verbosity != nil {
		v, err := domain.ParseVerbosity(*o.Verbosity)
		if err != nil {
			return fmt.Errorf("invalid --log-error-verbosity value: %w", err)
		}
		cfg.Verbosity = v
	}
	if o.Workers != nil {
		if *o.Workers <= 0 {
			return fmt.Errorf("invalid --workers value: must be a positive integer")
		}
		cfg.Workers = *o.Workers
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled
	return nil
}

// validate checks cross-field constraints on the final config and resolves
// derived fields.
func validate(cfg *Config) error {
	if err := domain.ValidateRotationAge(cfg.LogRotationAge); err != nil {
		return fmt.Errorf("invalid log_rotation_age: %w", err)
	}

	loc, err := loadLocation(cfg.LogTimezone)
	if err != nil {
		return fmt.Errorf("invalid log_timezone %q: %w", cfg.LogTimezone, err)
	}
	cfg.Location = loc

	// An empty directory or filename disables the audit file; events then
	// go to the regular log.
	if strings.TrimSpace(cfg.LogDirectory) != "" {
		cfg.LogDirectory = filepath.Clean(cfg.LogDirectory)
		if strings.TrimSpace(cfg.LogFilename) != "" {
			if err := domain.ValidateTemplate(cfg.LogDirectory, cfg.LogFilename, loc); err != nil {
				return fmt.Errorf("invalid log_filename: %w", err)
			}
		}
	}

	if cfg.Workers <= 0 {
		return fmt.Errorf("workers (%d) must be a positive integer", cfg.Workers)
	}

	return nil
}

// AuditSettings implements port.SettingsProvider for a config that never
// changes.
func (c *Config) AuditSettings() domain.Settings {
	return domain.Settings{
		Directory:         c.LogDirectory,
		Filename:          c.LogFilename,
		RotationAge:       c.LogRotationAge,
		Location:          c.Location,
		FileMode:          c.LogFileMode,
		Verbosity:         c.Verbosity,
		QuoteFields:       c.QuoteFields,
		RedactStatements:  c.RedactStatements,
		LogConnections:    c.LogConnections,
		LogDisconnections: c.LogDisconnections,
	}
}

func loadLocation(name string) (*time.Location, error) {
	switch name {
	case "", "Local", "localtime":
		return time.Local, nil
	default:
		return time.LoadLocation(name)
	}
}

var errFileMode = errors.New("must be an octal permission between 0000 and 0777")

func parseFileMode(s string) (os.FileMode, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0o")
	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil || n > 0o777 {
		return 0, errFileMode
	}
	return os.FileMode(n), nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	*dst = b
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
