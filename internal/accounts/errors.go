package accounts

import "errors"

// ErrRefreshRunning is returned by config edits attempted while a refresh is in flight.
var ErrRefreshRunning = errors.New("refresh in progress; please wait for it to finish and try again")

// ConfigErrorKind classifies configuration failures for status mapping.
type ConfigErrorKind string

const (
	ConfigMissing   ConfigErrorKind = "missing"
	ConfigMalformed ConfigErrorKind = "malformed"
	ConfigEmpty     ConfigErrorKind = "empty"
	ConfigNotFound  ConfigErrorKind = "not_found"
	ConfigInvalid   ConfigErrorKind = "invalid"
)

// ConfigError reports a missing or unusable account configuration.
type ConfigError struct {
	Kind    ConfigErrorKind
	Path    string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErrorf(kind ConfigErrorKind, path, msg string, err error) *ConfigError {
	return &ConfigError{Kind: kind, Path: path, Message: msg, Err: err}
}
