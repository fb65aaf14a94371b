package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/contactsync/internal/flagx"
)

// parseFlags overlays command-line flags onto config.
//
// Supported flags:
//
//	-a string     listen address (e.g. ":3000")
//	-d string     PostgreSQL DSN, empty for the in-memory store
//	-l string     log level (debug, info, warn, error)
//	-q int        broadcast queue size
//	-w duration   per-client event write timeout
//	-b string     S3 bucket for exports
//	-g string     S3 region
//	-e string     S3 base endpoint (e.g. "http://127.0.0.1:9000/")
//	-u string     S3 access key
//	-p string     S3 secret key
//
// Only the flags listed above are picked out of args, so -c/-config and
// anything unknown pass through untouched.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-l", "-q", "-w", "-b", "-g", "-e", "-u", "-p"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.Addr, "a", config.Addr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.IntVar(&config.BroadcastBuffer, "q", config.BroadcastBuffer, "broadcast queue size")
	fs.DurationVar(&config.WriteTimeout, "w", config.WriteTimeout, "event write timeout")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.S3AccessKey, "u", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "p", config.S3SecretKey, "S3 secret key")

	return fs.Parse(args)
}
