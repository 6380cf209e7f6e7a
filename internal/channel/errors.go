package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a failed outcome.
type Kind string

const (
	KindConfig  Kind = "config"
	KindNetwork Kind = "network"
	KindAuth    Kind = "auth"
	KindStatus  Kind = "status"
	KindTimeout Kind = "timeout"
	// KindCanceled means the run was canceled before the attempt finished.
	KindCanceled Kind = "canceled"
	KindUnknown  Kind = "unknown"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrMissingRecipient   = errors.New("missing recipient")
	ErrMissingEndpoint    = errors.New("missing endpoint")
)

// ConfigError means the channel cannot be attempted. It is absorbed: the
// channel is treated as disabled for the run and never reported as a failure.
type ConfigError struct {
	Channel string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: config: %v", e.Channel, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError wraps err as a ConfigError for channel.
func NewConfigError(channel string, err error) *ConfigError {
	return &ConfigError{Channel: channel, Err: err}
}

// TransportError is a failed attempt: network, auth, non-2xx or timeout.
type TransportError struct {
	Channel string
	Kind    Kind
	Status  int
	Err     error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d): %v", e.Channel, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Channel, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError classifies err for channel. Deadline errors become
// KindTimeout, cancellation KindCanceled, net errors KindNetwork; anything
// else takes the given fallback kind.
func NewTransportError(channel string, fallback Kind, err error) *TransportError {
	kind := fallback
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindCanceled
	case errors.As(err, &ne) && ne.Timeout():
		kind = KindTimeout
	case errors.As(err, &ne):
		kind = KindNetwork
	}
	return &TransportError{Channel: channel, Kind: kind, Err: err}
}

// StatusError builds a TransportError for an unexpected HTTP status.
// 401 and 403 are reported as KindAuth.
func StatusError(channel string, status int, snippet string) *TransportError {
	kind := KindStatus
	if status == 401 || status == 403 {
		kind = KindAuth
	}
	if snippet == "" {
		snippet = "unexpected status"
	}
	return &TransportError{Channel: channel, Kind: kind, Status: status, Err: errors.New(snippet)}
}

// IsConfig reports whether err is a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// KindOf returns the outcome kind for a delivery error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return KindConfig
	}
	var te *TransportError
	if errors.As(err, &te) && te.Kind != "" {
		return te.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindUnknown
}
