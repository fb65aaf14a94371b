package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/contactsync/internal/flagx"
	"github.com/dmitrijs2005/contactsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations may
// be strings like "500ms" or integer nanoseconds.
type JsonConfig struct {
	ServerURL         string         `json:"server_url"`
	EventsURL         string         `json:"events_url"`
	DatabasePath      string         `json:"database_path"`
	ReconnectDelay    timex.Duration `json:"reconnect_delay"`
	ReconnectMaxDelay timex.Duration `json:"reconnect_max_delay"`
	RequestTimeout    timex.Duration `json:"request_timeout"`
	ConnectTimeout    timex.Duration `json:"connect_timeout"`
	PingInterval      timex.Duration `json:"ping_interval"`
	LogFile           string         `json:"log_file"`
	LogLevel          string         `json:"log_level"`
}

// parseJson overlays cfg with the file named by -c or -config. Keys missing
// from the file keep their current values.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	for dst, v := range map[*string]string{
		&cfg.ServerURL:    jc.ServerURL,
		&cfg.EventsURL:    jc.EventsURL,
		&cfg.DatabasePath: jc.DatabasePath,
		&cfg.LogFile:      jc.LogFile,
		&cfg.LogLevel:     jc.LogLevel,
	} {
		if v != "" {
			*dst = v
		}
	}
	for dst, v := range map[*time.Duration]timex.Duration{
		&cfg.ReconnectDelay:    jc.ReconnectDelay,
		&cfg.ReconnectMaxDelay: jc.ReconnectMaxDelay,
		&cfg.RequestTimeout:    jc.RequestTimeout,
		&cfg.ConnectTimeout:    jc.ConnectTimeout,
		&cfg.PingInterval:      jc.PingInterval,
	} {
		if v.Duration > 0 {
			*dst = v.Duration
		}
	}
	return nil
}
