package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// portEnv is the bare PORT variable set by most hosting platforms.
type portEnv struct {
	Port string `env:"PORT"`
}

// parseEnv overlays environment variables onto config. Unset variables leave
// the current values in place. PORT is accepted as a bare port number and
// wins over CONTACTSYNC_ADDR.
func parseEnv(config *Config) error {
	if err := cleanenv.ReadEnv(config); err != nil {
		return fmt.Errorf("read env: %w", err)
	}

	var p portEnv
	if err := cleanenv.ReadEnv(&p); err != nil {
		return fmt.Errorf("read env: %w", err)
	}
	if p.Port != "" {
		config.Addr = ":" + strings.TrimPrefix(p.Port, ":")
	}
	return nil
}
