// Package config loads, normalizes, and validates rmqmeta configuration data.
//
// It supplies repository defaults, resolves working directories against
// paths.base_dir, reads TOML files, overlays an optional dotenv file, and
// honours environment fallbacks for secrets such as RMQ_PASSWORD. The Config
// type carries the route table that maps routing keys to processing settings.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical log names, and clear validation errors.
package config
