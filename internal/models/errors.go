package models

import (
	"errors"
	"fmt"
)

// ErrMissingProject is returned when a stats document has no project object.
var ErrMissingProject = errors.New("stats document has no project object")

// ConfigurationError reports a bot that cannot be constructed. It is the
// only error kind that should stop the process.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// FetchError reports a transport failure reaching the stats endpoint.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MalformedResponseError reports a stats document that could not be turned
// into a Snapshot.
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed stats response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// PublishError reports a channel operation the chat platform rejected.
type PublishError struct {
	Op  string
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("discord %s failed: %v", e.Op, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
