// Package config loads runtime configuration for the contacts client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Environment variables with the CONTACTSYNC_ prefix (see parseEnv).
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// # JSON schema
//
// Durations can be strings like "500ms" or integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:3000",
//	  "database_path": "contacts.db",
//	  "reconnect_delay": "500ms",
//	  "reconnect_max_delay": "30s"
//	}
//
// The event channel URL is derived from server_url unless events_url is set:
// http://host:3000 becomes ws://host:3000/ws.
package config
