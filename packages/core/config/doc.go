// Package config handles configuration loading and management for conserve.
//
// It provides functionality for:
//   - Loading conserve.yaml, .conserve.yaml, .conserve.yml or conserve.json
//   - ${VAR} and ${VAR:-default} expansion from the environment
//   - JSON schema validation of the raw document
//   - Named profiles overlaid on the base configuration
package config
