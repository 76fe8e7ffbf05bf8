// Package config provides the run configuration of streamscout: defaults,
// validation, the YAML config file with per-site overrides, and the
// environment variables understood for compatibility with older deployments.
package config
