package ota

import (
	"errors"
	"fmt"
)

// ErrUploadInProgress is returned by Start while a transfer is in flight
var ErrUploadInProgress = errors.New("an upload is already in progress")

// ValidationError reports a bad image selection. It is detected before any
// network activity and leaves the session state unchanged.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid image: " + e.Reason
}

// TransportError wraps a network level failure of the upload request
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upload transport failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DeviceRejectedError is a non-success HTTP status returned by the device
type DeviceRejectedError struct {
	StatusCode int
	Message    string
}

func (e *DeviceRejectedError) Error() string {
	return fmt.Sprintf("device rejected upload (HTTP %d): %s", e.StatusCode, e.Message)
}
