package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of the BenchLink Core configuration tree. It is
// populated from a YAML file with selected environment overrides on top.
type Config struct {
	Site        SiteConfig        `yaml:"site"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
	Instruments InstrumentsConfig `yaml:"instruments"`
}

// SiteConfig identifies the laboratory this core instance serves.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig tunes the embedded SQLite store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig holds everything needed to reach the supervisory broker.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig locates the broker and names this client.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig carries broker credentials. Password usually arrives via
// the BENCHLINK_MQTT_PASSWORD environment variable rather than the file.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig shapes the broker reconnection backoff.
// Delays are in seconds; MaxAttempts of 0 retries forever.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig configures the local HTTP API listener.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig sets the HTTP server timeouts, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig configures the optional telemetry sink.
// FlushInterval is in seconds.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig selects log level, format, and destination.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// InstrumentsConfig contains per-instrument adapter settings plus the
// shared polling and measurement-monitor tuning.
type InstrumentsConfig struct {
	Reader  InstrumentConfig `yaml:"reader"`
	Shaker  InstrumentConfig `yaml:"shaker"`
	Robot   InstrumentConfig `yaml:"robot"`
	Poll    PollConfig       `yaml:"poll"`
	Monitor MonitorConfig    `yaml:"monitor"`
}

// InstrumentConfig contains settings for one instrument kind.
type InstrumentConfig struct {
	// Enabled determines whether a manager is started for this instrument.
	Enabled bool `yaml:"enabled"`

	// Connection is the adapter connection string (vendor-specific, opaque
	// to the core; e.g. a serial port path or a TCP endpoint).
	Connection string `yaml:"connection"`

	// Simulated switches the instrument to the in-process simulated driver.
	// Used for development and bench-less testing.
	Simulated bool `yaml:"simulated"`
}

// PollConfig contains status poller tuning.
type PollConfig struct {
	// Interval is the normal polling cadence in milliseconds.
	// Default: 1000.
	Interval int `yaml:"interval"`

	// BackoffInterval is the reduced cadence used after repeated poll
	// failures, in milliseconds. Default: 30000.
	BackoffInterval int `yaml:"backoff_interval"`

	// FailureThreshold is the number of consecutive poll failures that
	// triggers backoff. Default: 3.
	FailureThreshold int `yaml:"failure_threshold"`
}

// MonitorConfig contains measurement completion-detection tuning.
//
// The quiescence thresholds are empirically tuned against one instrument
// family and approximate true completion; they are deliberately
// configuration rather than constants.
type MonitorConfig struct {
	// QuietAfterData is how long the progress stream must be silent after
	// at least one data event before the run is considered complete,
	// in milliseconds. Default: 3000.
	QuietAfterData int `yaml:"quiet_after_data"`

	// QuietAfterVolume is the shorter silence window applied once more
	// than MinDataPoints data events have arrived, in milliseconds.
	// Default: 2000.
	QuietAfterVolume int `yaml:"quiet_after_volume"`

	// MinDataPoints is the data-event count above which QuietAfterVolume
	// applies. Default: 10.
	MinDataPoints int `yaml:"min_data_points"`

	// CheckInterval is the monitor's polling cadence in milliseconds.
	// Default: 50.
	CheckInterval int `yaml:"check_interval"`

	// DefaultTimeout is the measurement timeout used when the caller does
	// not supply one, in seconds. Default: 1800.
	DefaultTimeout int `yaml:"default_timeout"`
}

// Load builds the configuration in three layers: built-in defaults, then
// the YAML file at path, then BENCHLINK_* environment variables. The
// result is validated before it is returned.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns the baseline configuration a bare YAML file
// inherits. A file with only site.id and database.path set is runnable.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "lab-001",
			Name:     "BenchLink",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/benchlink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "benchlink-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Instruments: InstrumentsConfig{
			Poll: PollConfig{
				Interval:         1000,
				BackoffInterval:  30000,
				FailureThreshold: 3,
			},
			Monitor: MonitorConfig{
				QuietAfterData:   3000,
				QuietAfterVolume: 2000,
				MinDataPoints:    10,
				CheckInterval:    50,
				DefaultTimeout:   1800,
			},
		},
	}
}

// applyEnvOverrides copies BENCHLINK_* environment variables over the
// loaded values. Only deployment-sensitive settings are overridable;
// everything else belongs in the file.
func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env    string
		target *string
	}{
		{"BENCHLINK_DATABASE_PATH", &cfg.Database.Path},
		{"BENCHLINK_MQTT_HOST", &cfg.MQTT.Broker.Host},
		{"BENCHLINK_MQTT_USERNAME", &cfg.MQTT.Auth.Username},
		{"BENCHLINK_MQTT_PASSWORD", &cfg.MQTT.Auth.Password},
		{"BENCHLINK_API_HOST", &cfg.API.Host},
		{"BENCHLINK_INFLUXDB_TOKEN", &cfg.InfluxDB.Token},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}

	if v := os.Getenv("BENCHLINK_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
}

// Validate checks the configuration and reports every problem found,
// joined into a single error.
func (c *Config) Validate() error {
	var problems []string
	bad := func(msg string) { problems = append(problems, msg) }

	if c.Site.ID == "" {
		bad("site.id is required")
	}
	if c.Database.Path == "" {
		bad("database.path is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		bad("mqtt.qos must be 0, 1, or 2")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		bad("api.port must be between 1 and 65535")
	}

	// A zero poll interval would spin the timer loop.
	if c.Instruments.Poll.Interval <= 0 {
		bad("instruments.poll.interval must be positive")
	}
	if c.Instruments.Poll.BackoffInterval < c.Instruments.Poll.Interval {
		bad("instruments.poll.backoff_interval must be >= instruments.poll.interval")
	}
	if c.Instruments.Poll.FailureThreshold < 1 {
		bad("instruments.poll.failure_threshold must be at least 1")
	}

	if c.Instruments.Monitor.CheckInterval <= 0 {
		bad("instruments.monitor.check_interval must be positive")
	}
	if c.Instruments.Monitor.MinDataPoints < 1 {
		bad("instruments.monitor.min_data_points must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(problems, "; "))
	}
	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetPollInterval returns the normal polling cadence as a Duration.
func (p PollConfig) GetPollInterval() time.Duration {
	return time.Duration(p.Interval) * time.Millisecond
}

// GetBackoffInterval returns the backoff polling cadence as a Duration.
func (p PollConfig) GetBackoffInterval() time.Duration {
	return time.Duration(p.BackoffInterval) * time.Millisecond
}

// GetQuietAfterData returns the post-data quiescence window as a Duration.
func (m MonitorConfig) GetQuietAfterData() time.Duration {
	return time.Duration(m.QuietAfterData) * time.Millisecond
}

// GetQuietAfterVolume returns the high-volume quiescence window as a Duration.
func (m MonitorConfig) GetQuietAfterVolume() time.Duration {
	return time.Duration(m.QuietAfterVolume) * time.Millisecond
}

// GetCheckInterval returns the monitor polling cadence as a Duration.
func (m MonitorConfig) GetCheckInterval() time.Duration {
	return time.Duration(m.CheckInterval) * time.Millisecond
}

// GetDefaultTimeout returns the default measurement timeout as a Duration.
func (m MonitorConfig) GetDefaultTimeout() time.Duration {
	return time.Duration(m.DefaultTimeout) * time.Second
}
