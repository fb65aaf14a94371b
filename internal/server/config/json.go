package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/contactsync/internal/flagx"
	"github.com/dmitrijs2005/contactsync/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept both
// "5s" strings and integer nanoseconds.
type JsonConfig struct {
	Addr            string         `json:"addr"`
	DatabaseDSN     string         `json:"database_dsn"`
	LogLevel        string         `json:"log_level"`
	BroadcastBuffer int            `json:"broadcast_buffer"`
	WriteTimeout    timex.Duration `json:"write_timeout"`
	S3Bucket        string         `json:"s3_bucket"`
	S3Region        string         `json:"s3_region"`
	S3BaseEndpoint  string         `json:"s3_base_endpoint"`
	S3AccessKey     string         `json:"s3_access_key"`
	S3SecretKey     string         `json:"s3_secret_key"`
	S3ExportPrefix  string         `json:"s3_export_prefix"`
	S3PresignTTL    timex.Duration `json:"s3_presign_ttl"`
}

// parseJson overlays the file named by -c/-config onto config. Keys absent
// from the file leave the current values in place.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigPath(args)

	// nothing to load
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&config.Addr, c.Addr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.LogLevel, c.LogLevel)
	if c.BroadcastBuffer > 0 {
		config.BroadcastBuffer = c.BroadcastBuffer
	}
	if c.WriteTimeout.Duration > 0 {
		config.WriteTimeout = c.WriteTimeout.Duration
	}
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3ExportPrefix, c.S3ExportPrefix)
	if c.S3PresignTTL.Duration > 0 {
		config.S3PresignTTL = c.S3PresignTTL.Duration
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
