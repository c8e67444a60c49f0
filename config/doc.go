// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the server, probe, registry and
// notifier settings, and loads the roster of monitored services either inline
// or from a separate YAML roster file.
package config
