// Package config loads typed configuration from the environment.
//
// It wraps github.com/joho/godotenv, which merges .env files into the process
// environment without overriding variables that are already set, and
// github.com/caarlos0/env/v11, which parses the environment into a struct
// through `env`, `envDefault` and `envPrefix` tags. Every variable is read
// under DefaultPrefix unless WithPrefix says otherwise.
//
//	cfg, err := config.Load[cloudauth.Config]()
//
// Load keeps no global state; call it once at startup and pass the result
// down.
package config
