// Package env loads .env files and expands ${VAR} references.
//
// Variables from an env file are exported to the process environment before
// the configuration file is read, so that configuration values can refer to
// them.
package env
