package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

// FailureKind classifies why a provider call failed
type FailureKind string

const (
	KindTimeout     FailureKind = "timeout"
	KindHTTPError   FailureKind = "http_error"
	KindParseError  FailureKind = "parse_error"
	KindConfigError FailureKind = "config_error"
	KindNotReady    FailureKind = "not_ready"
	KindCircuitOpen FailureKind = "circuit_open"
	KindCanceled    FailureKind = "canceled"
)

// Failure is the only error type a Client returns
type Failure struct {
	Provider types.ProviderKind
	Kind     FailureKind
	Status   int // HTTP status for KindHTTPError, 0 for transport errors
	Message  string
	Err      error
}

func (f *Failure) Error() string {
	if f.Kind == KindHTTPError && f.Status != 0 {
		return fmt.Sprintf("%s: %s [%d]: %s", f.Provider, f.Kind, f.Status, f.Message)
	}
	return fmt.Sprintf("%s: %s: %s", f.Provider, f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Expected reports failures that are part of normal operation
// (an endpoint still provisioning, a provider without credentials)
func (f *Failure) Expected() bool {
	return f.Kind == KindNotReady || f.Kind == KindConfigError
}

// Attempt converts the failure into a result attempt record
func (f *Failure) Attempt(durationMs int64) types.Attempt {
	return types.Attempt{
		Provider:   f.Provider,
		Kind:       string(f.Kind),
		Status:     f.Status,
		Message:    f.Message,
		DurationMs: durationMs,
	}
}

// NewFailure creates a failure
func NewFailure(provider types.ProviderKind, kind FailureKind, err error, format string, args ...interface{}) *Failure {
	return &Failure{
		Provider: provider,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Err:      err,
	}
}

// AsFailure converts any error into a *Failure, classifying context errors
func AsFailure(provider types.ProviderKind, err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewFailure(provider, KindTimeout, err, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return NewFailure(provider, KindCanceled, err, "request canceled")
	}
	return NewFailure(provider, KindHTTPError, err, "%v", err)
}
