// Package config loads the AgentKit runtime configuration from a YAML file,
// local .env files and process environment variables, and validates that the
// credentials required by the selected run mode are present.
package config
