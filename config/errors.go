package config

import "errors"

var (
	// ErrInvalidPort indicates a listen port outside 0-65535.
	ErrInvalidPort = errors.New("config: invalid port")

	// ErrMissingAppName indicates app.name is empty.
	ErrMissingAppName = errors.New("config: app name is required")

	// ErrInvalidLogLevel indicates an unknown log level.
	ErrInvalidLogLevel = errors.New("config: invalid log level")

	// ErrNonPositiveDuration indicates a duration that must be positive is not.
	ErrNonPositiveDuration = errors.New("config: duration must be positive")

	// ErrNonPositiveLimit indicates a count that must be positive is not.
	ErrNonPositiveLimit = errors.New("config: limit must be positive")

	// ErrInvalidThreshold indicates a health threshold outside its range.
	ErrInvalidThreshold = errors.New("config: invalid threshold")

	// ErrMissingEnv indicates a ${VAR} reference to an unset variable.
	ErrMissingEnv = errors.New("config: missing required environment variables")

	// ErrInvalidRequestTimeout indicates REQUEST_TIMEOUT is not a millisecond count.
	ErrInvalidRequestTimeout = errors.New("config: REQUEST_TIMEOUT must be an integer number of milliseconds")
)
