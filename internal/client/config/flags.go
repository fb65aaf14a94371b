package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/contactsync/internal/flagx"
)

// parseFlags overlays cfg with command-line flags.
//
// Supported flags:
//
//	-a string     REST base URL of the server (e.g. "http://127.0.0.1:3000")
//	-w string     event channel URL, derived from -a when empty
//	-db string    path of the local SQLite database
//	-r duration   first reconnect delay
//	-m duration   reconnect delay cap
//	-t duration   REST request timeout
//	-log string   log file path
//
// Only these flags are picked out of args, so other components can share the
// command line.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-w", "-db", "-r", "-m", "-t", "-log"})

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "server base URL")
	fs.StringVar(&cfg.EventsURL, "w", cfg.EventsURL, "event channel URL")
	fs.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "local database path")
	fs.DurationVar(&cfg.ReconnectDelay, "r", cfg.ReconnectDelay, "first reconnect delay")
	fs.DurationVar(&cfg.ReconnectMaxDelay, "m", cfg.ReconnectMaxDelay, "reconnect delay cap")
	fs.DurationVar(&cfg.RequestTimeout, "t", cfg.RequestTimeout, "REST request timeout")
	fs.StringVar(&cfg.LogFile, "log", cfg.LogFile, "log file")

	return fs.Parse(args)
}
