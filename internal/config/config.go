package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "REPTRACK_"

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Database  DatabaseConfig  `yaml:"database" envPrefix:"DB_"`
	Auth      AuthConfig      `yaml:"auth" envPrefix:"AUTH_"`
	Pose      PoseConfig      `yaml:"pose" envPrefix:"POSE_"`
	Events    EventsConfig    `yaml:"events" envPrefix:"EVENTS_"`
	Tailscale TailscaleConfig `yaml:"tailscale" envPrefix:"TAILSCALE_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
}

type ServerConfig struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
	// IdleTimeout closes a stream that sends nothing for this long.
	// Unset means 60s; a negative value disables it.
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	// FinalizeTimeout bounds persisting and publishing one finished session.
	FinalizeTimeout time.Duration `yaml:"finalize_timeout" env:"FINALIZE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"DRIVER"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	Name     string `yaml:"name" env:"NAME"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	SSLMode  string `yaml:"sslmode" env:"SSLMODE"`
	// Path is the SQLite file used when Driver is "sqlite".
	Path string `yaml:"path" env:"PATH"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key" env:"API_KEY"`
}

type PoseConfig struct {
	Enabled     bool    `yaml:"enabled" env:"ENABLED"`
	ModelPath   string  `yaml:"model_path" env:"MODEL_PATH"`
	Confidence  float32 `yaml:"confidence" env:"CONFIDENCE"`
	InputWidth  int     `yaml:"input_width" env:"INPUT_WIDTH"`
	InputHeight int     `yaml:"input_height" env:"INPUT_HEIGHT"`
}

type EventsConfig struct {
	Channel string `yaml:"channel" env:"CHANNEL"`
	// SummaryWorker turns completed sessions into workout logs in-process.
	SummaryWorker bool `yaml:"summary_worker" env:"SUMMARY_WORKER"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Hostname string `yaml:"hostname" env:"HOSTNAME"`
	StateDir string `yaml:"state_dir" env:"STATE_DIR"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix REPTRACK_ and the section name:
//
//	REPTRACK_SERVER_PORT, REPTRACK_SERVER_IDLE_TIMEOUT,
//	REPTRACK_DB_DRIVER, REPTRACK_DB_HOST, REPTRACK_DB_PASSWORD, REPTRACK_DB_PATH,
//	REPTRACK_AUTH_API_KEY, REPTRACK_POSE_ENABLED, REPTRACK_LOG_LEVEL, ...
//
// An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	return load(path, true)
}

// LoadWithoutAuth is Load for tools that only read the database and never
// serve HTTP, so auth.api_key may be left unset.
func LoadWithoutAuth(path string) (*Config, error) {
	return load(path, false)
}

func load(path string, requireAuth bool) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(requireAuth); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.FinalizeTimeout == 0 {
		c.Server.FinalizeTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Database.Driver == DriverSQLite && c.Database.Path == "" {
		c.Database.Path = "data/reptrack.db"
	}
	if c.Pose.ModelPath == "" {
		c.Pose.ModelPath = "models/yolov8n-pose.onnx"
	}
	if c.Pose.Confidence == 0 {
		c.Pose.Confidence = 0.5
	}
	if c.Pose.InputWidth == 0 {
		c.Pose.InputWidth = 640
	}
	if c.Pose.InputHeight == 0 {
		c.Pose.InputHeight = 640
	}
	if c.Events.Channel == "" {
		c.Events.Channel = "exercise_events"
	}
	if c.Tailscale.Hostname == "" {
		c.Tailscale.Hostname = "reptrack"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate(requireAuth bool) error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.FinalizeTimeout < 0 {
		return fmt.Errorf("server.finalize_timeout must not be negative")
	}
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Port == 0 {
			return fmt.Errorf("database.port is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	}
	if requireAuth && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Pose.Confidence <= 0 || c.Pose.Confidence > 1 {
		return fmt.Errorf("pose.confidence must be in (0, 1]")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}
