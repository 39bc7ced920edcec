// Package config loads the relay daemon configuration from YAML.
//
// Configuration is read once at startup; ${VAR} references in the file are
// expanded from the environment before parsing. Keys left out of the file
// keep their defaults, so an empty file runs an auto-create relay on :8080.
package config
