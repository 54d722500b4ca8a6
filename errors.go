// SPDX-FileCopyrightText: 2026 Fluxline, Inc.
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import "errors"

var (
	// ErrEncoding indicates record encoding or field mapping failed.
	ErrEncoding = &metricError{
		metric:  "encoding_error",
		message: "encoding failed",
	}

	// ErrDelivery indicates a batch send failed after the client exhausted
	// its internal retries.
	ErrDelivery = &metricError{
		metric:  "delivery_error",
		message: "delivery failed",
	}

	// ErrResolution indicates broker discovery failed.
	ErrResolution = &metricError{
		metric:  "resolution_error",
		message: "broker resolution failed",
	}

	// ErrClientBuild indicates constructing a delivery client failed despite
	// a non-empty broker set.
	ErrClientBuild = &metricError{
		metric:  "client_build_error",
		message: "client build failed",
	}

	// ErrValidation indicates configuration validation failed.
	ErrValidation = &metricError{
		metric:  "validation_error",
		message: "validation error",
	}

	// ErrNotStarted indicates the engine has not been started.
	ErrNotStarted = &metricError{
		metric:  "not_started",
		message: "engine not started",
	}

	// ErrAlreadyStarted indicates the engine has already been started.
	ErrAlreadyStarted = &metricError{
		metric:  "already_started",
		message: "engine already started",
	}
)

// metricError is an internal error type that wraps errors with a type classification
// for metrics and observability. The errorType field provides a string label for grouping
// errors in metrics systems.
type metricError struct {
	metric  string // Type classification for metrics (e.g., "delivery_error", "validation_error")
	message string // Human-readable message
}

// Error implements the error interface.
func (e *metricError) Error() string {
	return e.message
}

func (e *metricError) Metric() string {
	return e.metric
}

func (e *metricError) Is(target error) bool {
	if t, ok := target.(*metricError); ok {
		return e.message == t.message
	}
	return false
}

// errorType extracts the error type string for metrics classification.
// Walks the error chain to find metricError types.
func errorType(err error) string {
	if err == nil {
		return ""
	}

	// Walk the error chain to find a metricError
	var me *metricError
	if errors.As(err, &me) {
		return me.Metric()
	}

	return "unknown"
}
