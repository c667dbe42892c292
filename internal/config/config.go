// Package config provides configuration loading and management for pgtop.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Report    ReportConfig    `yaml:"report"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig holds PostgreSQL connection settings shared by the primary and its replicas.
type DatabaseConfig struct {
	// Host is a host name, an IP address, or a unix socket directory (starting with "/").
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	DBName          string `yaml:"dbname"`
	SSLMode         string `yaml:"sslmode"`
	ApplicationName string `yaml:"application_name"`
}

// DSN returns the PostgreSQL connection string for host, using the configured
// port and credentials. Replicas are reached at the primary's port.
func (d *DatabaseConfig) DSN(host string) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s application_name=%s",
		quoteDSN(host), d.Port, quoteDSN(d.User), quoteDSN(d.Password),
		quoteDSN(d.DBName), quoteDSN(d.SSLMode), quoteDSN(d.ApplicationName),
	)
}

// IsSocket reports whether Host names a unix socket directory.
func (d *DatabaseConfig) IsSocket() bool {
	return strings.HasPrefix(d.Host, "/")
}

func quoteDSN(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// DiscoveryConfig controls how the monitored host set is built.
type DiscoveryConfig struct {
	// Replicas enables discovery of streaming replicas through the primary.
	Replicas bool `yaml:"replicas"`

	// ResolveHosts resolves the primary's host name to an address before connecting.
	ResolveHosts bool `yaml:"resolve_hosts"`
}

// MonitorConfig holds the timing constants and thresholds of the monitoring loop.
type MonitorConfig struct {
	PollInterval      string `yaml:"poll_interval"`
	ReconnectInterval string `yaml:"reconnect_interval"`

	// SessionsView is the (optionally schema qualified) relation reporting one row per backend.
	SessionsView string `yaml:"sessions_view"`

	// StatementAgeAlertThreshold is compared with the statement age column as is,
	// so it is expressed in whatever unit the sessions view emits.
	StatementAgeAlertThreshold int64 `yaml:"statement_age_alert_threshold"`

	// MaxSQLLines caps how many screen lines a row's SQL text may use. Zero hides SQL.
	MaxSQLLines int `yaml:"max_sql_lines"`

	// ClockTicksPerSecond is the server's SC_CLK_TCK. It cannot be queried portably.
	ClockTicksPerSecond int `yaml:"clock_ticks_per_second"`

	// ReservedUser is the maintenance account whose slow statements never raise alerts.
	ReservedUser string `yaml:"reserved_user"`

	// BulkCopyPattern matches statements that never raise slow statement alerts.
	// It is matched case-insensitively.
	BulkCopyPattern string `yaml:"bulk_copy_pattern"`
}

// PollIntervalParsed returns the parsed poll interval.
func (m *MonitorConfig) PollIntervalParsed() (time.Duration, error) {
	return time.ParseDuration(m.PollInterval)
}

// ReconnectIntervalParsed returns the parsed reconnect interval.
func (m *MonitorConfig) ReconnectIntervalParsed() (time.Duration, error) {
	return time.ParseDuration(m.ReconnectInterval)
}

// BulkCopyRegexp compiles BulkCopyPattern. An empty pattern yields nil.
func (m *MonitorConfig) BulkCopyRegexp() (*regexp.Regexp, error) {
	if m.BulkCopyPattern == "" {
		return nil, nil
	}
	return regexp.Compile("(?i)" + m.BulkCopyPattern)
}

// ReportConfig defines the periodic capacity report.
type ReportConfig struct {
	// Cron is a 6-field cron expression (with seconds).
	Cron string `yaml:"cron"`

	// ConnectionWarnPercent flags a host once its sessions reach this share of max_connections.
	ConnectionWarnPercent float64 `yaml:"connection_warn_percent"`

	TopN int `yaml:"top_n"`
}

// NotifierConfig holds notification channel settings.
type NotifierConfig struct {
	Type       string `yaml:"type"`
	WebhookURL string `yaml:"webhook_url"`
	Retries    int    `yaml:"retries"`
	RetryDelay string `yaml:"retry_delay"`
}

// RetryDelayParsed returns the parsed retry delay duration.
func (n *NotifierConfig) RetryDelayParsed() (time.Duration, error) {
	return time.ParseDuration(n.RetryDelay)
}

// ServerConfig holds HTTP status server settings.
type ServerConfig struct {
	// Port of the status endpoints; 0 disables the server.
	Port int `yaml:"port"`
}

// LogConfig holds log output settings.
type LogConfig struct {
	// File receives the log; empty discards it.
	File  string `yaml:"file"`
	Debug bool   `yaml:"debug"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		Discovery: DiscoveryConfig{Replicas: true, ResolveHosts: true},
		// Only defaulted here: an empty value in a file disables the suppression.
		Monitor: MonitorConfig{
			MaxSQLLines:     1,
			ReservedUser:    "postgres",
			BulkCopyPattern: `^\s*COPY\s+`,
		},
	}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses the configuration file. Values absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// expandEnvVars expands ${VAR} and ${VAR:-default} patterns in the input string.
func expandEnvVars(input string) string {
	// Pattern: ${VAR:-default} or ${VAR}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) > 2 {
			defaultVal = parts[2]
		}

		if val, exists := os.LookupEnv(varName); exists {
			return val
		}
		return defaultVal
	})
}

// applyDefaults sets default values for any unset configuration fields.
func applyDefaults(cfg *Config) {
	// Database defaults
	if cfg.Database.Host == "" {
		cfg.Database.Host = "/tmp"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.Password == "" {
		cfg.Database.Password = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "postgres"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.ApplicationName == "" {
		cfg.Database.ApplicationName = "pgtop"
	}

	// Monitor defaults
	if cfg.Monitor.PollInterval == "" {
		cfg.Monitor.PollInterval = "2s"
	}
	if cfg.Monitor.ReconnectInterval == "" {
		cfg.Monitor.ReconnectInterval = "5s"
	}
	if cfg.Monitor.SessionsView == "" {
		cfg.Monitor.SessionsView = "instrumentation.sessions_status"
	}
	if cfg.Monitor.StatementAgeAlertThreshold == 0 {
		cfg.Monitor.StatementAgeAlertThreshold = 1000
	}
	if cfg.Monitor.ClockTicksPerSecond == 0 {
		cfg.Monitor.ClockTicksPerSecond = 100
	}

	// Report defaults (6-field cron with seconds)
	if cfg.Report.Cron == "" {
		cfg.Report.Cron = "0 * * * * *" // every minute
	}
	if cfg.Report.ConnectionWarnPercent == 0 {
		cfg.Report.ConnectionWarnPercent = 80
	}
	if cfg.Report.TopN == 0 {
		cfg.Report.TopN = 5
	}

	// Notifier defaults
	if cfg.Notifier.Type == "" {
		cfg.Notifier.Type = "log"
	}
	if cfg.Notifier.Retries == 0 {
		cfg.Notifier.Retries = 3
	}
	if cfg.Notifier.RetryDelay == "" {
		cfg.Notifier.RetryDelay = "1s"
	}
}

// Validate checks that the configuration is valid.
// All problems are reported together on a single line.
func (c *Config) Validate() error {
	var errs []string

	// Validate database
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		errs = append(errs, "database.port must be between 1 and 65535")
	}

	// Validate monitor
	if d, err := c.Monitor.PollIntervalParsed(); err != nil {
		errs = append(errs, fmt.Sprintf("monitor.poll_interval is invalid: %v", err))
	} else if d <= 0 {
		errs = append(errs, "monitor.poll_interval must be positive")
	}
	if d, err := c.Monitor.ReconnectIntervalParsed(); err != nil {
		errs = append(errs, fmt.Sprintf("monitor.reconnect_interval is invalid: %v", err))
	} else if d <= 0 {
		errs = append(errs, "monitor.reconnect_interval must be positive")
	}
	if c.Monitor.MaxSQLLines < 0 {
		errs = append(errs, "monitor.max_sql_lines must not be negative")
	}
	if c.Monitor.ClockTicksPerSecond < 1 {
		errs = append(errs, "monitor.clock_ticks_per_second must be at least 1")
	}
	if c.Monitor.StatementAgeAlertThreshold < 0 {
		errs = append(errs, "monitor.statement_age_alert_threshold must not be negative")
	}
	if _, err := c.Monitor.BulkCopyRegexp(); err != nil {
		errs = append(errs, fmt.Sprintf("monitor.bulk_copy_pattern is invalid: %v", err))
	}

	// Validate report
	if c.Report.ConnectionWarnPercent <= 0 || c.Report.ConnectionWarnPercent > 100 {
		errs = append(errs, "report.connection_warn_percent must be in (0, 100]")
	}
	if c.Report.TopN < 1 {
		errs = append(errs, "report.top_n must be at least 1")
	}

	// Validate notifier type
	validNotifierTypes := map[string]bool{"wecom": true, "log": true}
	if !validNotifierTypes[c.Notifier.Type] {
		errs = append(errs, "notifier.type must be one of: wecom, log")
	}

	// Validate notifier webhook URL
	if c.Notifier.Type == "wecom" && c.Notifier.WebhookURL == "" {
		errs = append(errs, "notifier.webhook_url is required when type is 'wecom'")
	}
	if _, err := c.Notifier.RetryDelayParsed(); err != nil {
		errs = append(errs, fmt.Sprintf("notifier.retry_delay is invalid: %v", err))
	}

	// Validate server
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
