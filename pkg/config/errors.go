package config

import "errors"

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into the config struct.
	ErrParsingConfig = errors.New("config: failed to parse environment variables")

	// ErrLoadingEnvFile is returned when a .env file exists but cannot be read or parsed.
	ErrLoadingEnvFile = errors.New("config: failed to load .env file")
)
