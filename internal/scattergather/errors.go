package scattergather

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Use errors.Is to test for them.
var (
	ErrEmptyKey                 = errors.New("gatherer key must not be empty")
	ErrMissingField             = errors.New("required field missing")
	ErrUnknownGathererType      = errors.New("no gatherer factory registered for type")
	ErrUnknownAggregator        = errors.New("no aggregator registered with name")
	ErrDuplicateGathererFactory = errors.New("gatherer factory already registered")
	ErrDuplicateAggregator      = errors.New("aggregator already registered")
	ErrRegistrySealed           = errors.New("gatherer factory registry is sealed")
	ErrServicesNotRegistered    = errors.New("scatter/gather services are not registered: build them with scattergather.NewServices and pass them to NewRegistrar before mapping routes from configuration")
	ErrDownstream               = errors.New("downstream request failed")
)

// ConfigError reports an invalid route or gatherer definition.
// It is returned at load or registration time, never while serving.
type ConfigError struct {
	Path    string // configuration path or gatherer key
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Err != nil && !strings.Contains(e.Message, e.Err.Error()) {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError builds a *ConfigError for the configuration path or gatherer key.
func NewConfigError(path string, err error, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Path: path, Message: fmt.Sprintf(format, args...), Err: err}
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// DownstreamError reports a failed call to a gatherer's downstream service.
type DownstreamError struct {
	Key        string
	URL        string
	StatusCode int    // 0 when no response was received
	Body       string // truncated response body, if any
	Err        error
}

func (e *DownstreamError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "gatherer %q: GET %s", e.Key, e.URL)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap lets errors.Is match both ErrDownstream and the underlying cause.
func (e *DownstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDownstream}
	}
	return []error{ErrDownstream, e.Err}
}

// IsDownstreamError reports whether err is or wraps a *DownstreamError.
func IsDownstreamError(err error) bool {
	var de *DownstreamError
	return errors.As(err, &de)
}
