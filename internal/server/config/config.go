// Package config handles configuration for the reconciliation server:
// defaults, then an optional JSON file, then environment variables, then
// command-line flags.
package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the server.
//
// Fields:
//   - Addr: listen address for REST and the event channel.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty selects the in-memory store.
//   - BroadcastBuffer: capacity of the event queue in front of the hub.
//   - WriteTimeout: per-client deadline for a single event write.
//   - S3*: snapshot export target. Export is disabled while S3Bucket is empty.
type Config struct {
	Addr            string        `env:"CONTACTSYNC_ADDR"`
	DatabaseDSN     string        `env:"DATABASE_DSN"`
	LogLevel        string        `env:"LOG_LEVEL"`
	BroadcastBuffer int           `env:"CONTACTSYNC_BROADCAST_BUFFER"`
	WriteTimeout    time.Duration `env:"CONTACTSYNC_WRITE_TIMEOUT"`
	S3Bucket        string        `env:"S3_BUCKET"`
	S3Region        string        `env:"S3_REGION"`
	S3BaseEndpoint  string        `env:"S3_BASE_ENDPOINT"`
	S3AccessKey     string        `env:"S3_ACCESS_KEY"`
	S3SecretKey     string        `env:"S3_SECRET_KEY"`
	S3ExportPrefix  string        `env:"S3_EXPORT_PREFIX"`
	S3PresignTTL    time.Duration `env:"S3_PRESIGN_TTL"`
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.Addr = ":3000"
	c.DatabaseDSN = ""
	c.LogLevel = "info"
	c.BroadcastBuffer = 256
	c.WriteTimeout = 5 * time.Second
	c.S3Bucket = ""
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = ""
	c.S3AccessKey = ""
	c.S3SecretKey = ""
	c.S3ExportPrefix = "exports"
	c.S3PresignTTL = 15 * time.Minute
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment and finally command-line flags.
func LoadConfig() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
