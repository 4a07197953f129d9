// Package config defines the application configuration structure and
// provides functionality to load configuration from environment variables
// and config files, with validation of required settings.
package config
