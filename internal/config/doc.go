// Package config loads the lotwatch YAML configuration.
//
// ${VAR} references are expanded from the environment, which may be
// seeded from a .env file with LoadDotEnv.
package config
