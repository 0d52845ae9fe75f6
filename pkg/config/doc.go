// Package config loads service configuration from the process environment,
// with an optional YAML file override for local development.
//
// A missing database or object-store configuration is not fatal at load
// time: the affected subsystem degrades to a not-configured error path when
// first used.
package config
