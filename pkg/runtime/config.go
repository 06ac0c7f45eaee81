package runtime

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvDatabaseURL overrides the configured connection when set.
const EnvDatabaseURL = "PEBBLE_DATABASE_URL"

// Config represents database configuration.
type Config struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`

	// ApplicationName tags the sessions in pg_stat_activity.
	ApplicationName string `yaml:"application_name"`
	// LockTimeout bounds the wait for row locks taken by deletes and
	// get-restore-or-create. Zero keeps the server setting.
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// Models is the directory the CLI loads model structs from.
	Models string `yaml:"models"`
}

// DefaultConfig returns a default database configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		Database: "postgres",
		User:     "postgres",
		SSLMode:  "prefer",
		MaxConns: 10,
		MinConns: 2,
		Models:   "./models",

		ApplicationName: "pebble-permanent",
	}
}

// LoadConfig reads a YAML config file over DefaultConfig. An empty path
// skips the file. PEBBLE_DATABASE_URL, when set, replaces the URL.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if url := os.Getenv(EnvDatabaseURL); url != "" {
		cfg.URL = url
	}
	return cfg, nil
}

// ConnString returns URL when set, otherwise a keyword/value DSN built from
// the individual fields.
func (c *Config) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s", c.Host, port, c.User, c.Database, sslMode)
	if c.Password != "" {
		dsn += " password=" + c.Password
	}
	return dsn
}

// runtimeParams returns the session parameters set on every connection.
func (c *Config) runtimeParams() map[string]string {
	params := make(map[string]string)
	if c.ApplicationName != "" {
		params["application_name"] = c.ApplicationName
	}
	if c.LockTimeout > 0 {
		params["lock_timeout"] = strconv.FormatInt(c.LockTimeout.Milliseconds(), 10)
	}
	return params
}
