// Package config defines the application configuration structures and
// loading logic. Configuration is read with viper from an optional YAML
// file and STUDYBUDDY_-prefixed environment variables, then validated
// with go-playground/validator struct tags.
package config
