// Package config handles configuration loading for till.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. Every key is optional; missing keys keep the values from Default().
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from the --config flag
//  2. Path from TILL_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/till/config.yaml (~/.config/till/config.yaml)
//
// A path ending in .toml is decoded as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
//	auth:
//	  jwt_secret: "${TILL_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	store:
//	  dir: "~/.local/share/till"   # default: $XDG_DATA_HOME/till
//	  file: "db.json"
//	  backend: "json"              # json, sqlite
//
//	server:
//	  http_addr: "localhost:8787"
//
//	auth:
//	  jwt_secret: "${TILL_JWT_SECRET}"   # empty disables API auth; else >= 32 bytes
//
//	changes:
//	  retention: "720h"      # 0 or empty keeps the change log forever
//	  prune_interval: "1h"
//
//	api:
//	  idempotency_ttl: "10m"
//	  idempotency_max_keys: 1024
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Durations use time.ParseDuration syntax (ns, us, ms, s, m, h).
package config
