package engine

import (
	"context"
	"errors"
	"fmt"
)

// Resolution failures that are not worth retrying.
var (
	ErrUnsupported = errors.New("url not recognized by engine")
	ErrEmpty       = errors.New("no renditions available")
)

// TransferReason narrows down what went wrong during a stream transfer.
type TransferReason string

const (
	// transient: expected to succeed on retry
	ReasonTimeout      TransferReason = "timeout"
	ReasonNetworkReset TransferReason = "network-reset"
	ReasonEngineBusy   TransferReason = "engine-busy"

	// fatal: retrying will not help
	ReasonUnsupported      TransferReason = "unsupported"
	ReasonDiskFull         TransferReason = "disk-full"
	ReasonPermissionDenied TransferReason = "permission-denied"
	ReasonOutputConflict   TransferReason = "output-conflict"
)

// TransferError wraps a failure during a byte transfer with its retry class.
type TransferError struct {
	Reason    TransferReason
	Transient bool
	Err       error
}

func (e *TransferError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// NewTransient wraps err as a retryable transfer failure.
func NewTransient(reason TransferReason, err error) *TransferError {
	return &TransferError{Reason: reason, Transient: true, Err: err}
}

// NewFatal wraps err as a non-retryable transfer failure.
func NewFatal(reason TransferReason, err error) *TransferError {
	return &TransferError{Reason: reason, Err: err}
}

// IsTransient reports whether err should be retried. Context cancellation is
// never transient; unclassified errors are treated as network hiccups so a
// flaky engine gets the retry budget before the job is failed.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *TransferError
	if errors.As(err, &te) {
		return te.Transient
	}
	return true
}
