package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Config holds runtime settings for the client.
//
// EventsURL may be left empty; EventsEndpoint derives it from ServerURL.
// ReconnectDelay is the first retry delay after a lost connection and
// ReconnectMaxDelay caps the exponential growth. Setting both to the same
// value gives a fixed delay.
type Config struct {
	ServerURL         string        `env:"CONTACTSYNC_SERVER_URL"`
	EventsURL         string        `env:"CONTACTSYNC_EVENTS_URL"`
	DatabasePath      string        `env:"CONTACTSYNC_DB"`
	ReconnectDelay    time.Duration `env:"CONTACTSYNC_RECONNECT_DELAY"`
	ReconnectMaxDelay time.Duration `env:"CONTACTSYNC_RECONNECT_MAX_DELAY"`
	RequestTimeout    time.Duration `env:"CONTACTSYNC_REQUEST_TIMEOUT"`
	ConnectTimeout    time.Duration `env:"CONTACTSYNC_CONNECT_TIMEOUT"`
	PingInterval      time.Duration `env:"CONTACTSYNC_PING_INTERVAL"`
	LogFile           string        `env:"CONTACTSYNC_LOG_FILE"`
	LogLevel          string        `env:"CONTACTSYNC_LOG_LEVEL"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:3000"
	c.EventsURL = ""
	c.DatabasePath = "contacts.db"
	c.ReconnectDelay = 500 * time.Millisecond
	c.ReconnectMaxDelay = 30 * time.Second
	c.RequestTimeout = 10 * time.Second
	c.ConnectTimeout = 8 * time.Second
	c.PingInterval = 15 * time.Second
	c.LogFile = "contactsync-client.log"
	c.LogLevel = "info"
}

// LoadConfig constructs a Config from defaults, JSON, environment and flags.
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
	if cfg.ReconnectMaxDelay < cfg.ReconnectDelay {
		cfg.ReconnectMaxDelay = cfg.ReconnectDelay
	}
	return cfg, nil
}

// EventsEndpoint returns EventsURL, or the /ws endpoint on the REST server
// with the scheme switched to ws or wss.
func (c *Config) EventsEndpoint() (string, error) {
	if c.EventsURL != "" {
		return c.EventsURL, nil
	}

	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", fmt.Errorf("server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("server url: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = ""
	return u.String(), nil
}
